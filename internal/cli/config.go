package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/mesh-intelligence/dials/pkg/types"
)

const (
	configFileName = "config"
	configFileType = "yaml"
	configFileExt  = "config.yaml"

	cfgKeyBackend    = "backend"
	cfgKeyDataDir    = "data_dir"
	cfgKeyListenAddr = "listen_addr"
	cfgKeyServerURL  = "server_url"
	cfgKeySchemaFile = "schema_file"
	cfgKeyWireFormat = "wire_format"
	cfgKeyLogLevel   = "log_level"
	cfgKeyLogFormat  = "log_format"

	defaultListenAddr = "localhost:7420"
	defaultServerURL  = "http://localhost:7420"
)

// configFile is the structure written to config.yaml on first run.
type configFile struct {
	Backend    string `yaml:"backend"`
	DataDir    string `yaml:"data_dir,omitempty"`
	ListenAddr string `yaml:"listen_addr"`
	ServerURL  string `yaml:"server_url"`
	SchemaFile string `yaml:"schema_file,omitempty"`
	WireFormat string `yaml:"wire_format"`
	LogLevel   string `yaml:"log_level"`
	LogFormat  string `yaml:"log_format"`
}

func defaultConfig() configFile {
	return configFile{
		Backend:    types.BackendSQLite,
		ListenAddr: defaultListenAddr,
		ServerURL:  defaultServerURL,
		WireFormat: "cbor",
		LogLevel:   "info",
		LogFormat:  "text",
	}
}

// loadConfig reads config.yaml from configDir, creating the directory and
// a default file on first run.
func loadConfig(configDir string) (*viper.Viper, error) {
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return nil, fmt.Errorf("ensure config dir: %w", err)
	}
	if err := writeConfigIfMissing(filepath.Join(configDir, configFileExt)); err != nil {
		return nil, fmt.Errorf("ensure default config: %w", err)
	}

	def := defaultConfig()
	v := viper.New()
	v.SetDefault(cfgKeyBackend, def.Backend)
	v.SetDefault(cfgKeyListenAddr, def.ListenAddr)
	v.SetDefault(cfgKeyServerURL, def.ServerURL)
	v.SetDefault(cfgKeyWireFormat, def.WireFormat)
	v.SetDefault(cfgKeyLogLevel, def.LogLevel)
	v.SetDefault(cfgKeyLogFormat, def.LogFormat)
	v.SetConfigName(configFileName)
	v.SetConfigType(configFileType)
	v.AddConfigPath(configDir)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return v, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	return v, nil
}

// writeConfigIfMissing creates config.yaml with default values if the file
// does not exist.
func writeConfigIfMissing(path string) error {
	_, err := os.Stat(path)
	if err == nil {
		return nil
	}
	if !os.IsNotExist(err) {
		return fmt.Errorf("stat config file: %w", err)
	}

	cfg := defaultConfig()
	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	header := []byte("# dials configuration\n")
	return os.WriteFile(path, append(header, data...), 0o644)
}
