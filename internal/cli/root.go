// Package cli implements the dials command-line interface.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mesh-intelligence/dials/internal/logging"
	"github.com/mesh-intelligence/dials/internal/paths"
	"github.com/mesh-intelligence/dials/pkg/dials"
)

// Exit codes.
const (
	exitSuccess   = 0
	exitUserError = 1
	exitSysError  = 2
)

// app holds global flag values and the state every subcommand shares.
// PersistentPreRunE fills cfg and logger.
type app struct {
	configDir string
	dataDir   string
	jsonMode  bool
	logLevel  string

	cfg    *viper.Viper
	logger *slog.Logger
}

// NewRootCmd creates the top-level "dials" command with global flags and
// all subcommands registered.
func NewRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:     "dials",
		Short:   "Dials keeps named settings in sync between a server and its mirrors",
		Long:    "Dials declares typed settings per location, stores their canonical values,\nand exchanges only the changed ones between a server and mirroring clients.",
		Version: dials.Version,
		// Do not print usage on errors returned by subcommands.
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}

	root.PersistentFlags().StringVar(&a.configDir, "config-dir", "", "configuration directory (default: platform config dir)")
	root.PersistentFlags().StringVar(&a.dataDir, "data-dir", "", "data directory (default: $(CWD)/"+paths.DefaultDataDirName+")")
	root.PersistentFlags().BoolVar(&a.jsonMode, "json", false, "output in JSON format")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error")

	root.AddCommand(newVersionCmd())
	root.AddCommand(newInitCmd(a))
	root.AddCommand(newDeclareCmd(a))
	root.AddCommand(newLocationsCmd(a))
	root.AddCommand(newShowCmd(a))
	root.AddCommand(newSetCmd(a))
	root.AddCommand(newHistoryCmd(a))
	root.AddCommand(newForgetCmd(a))
	root.AddCommand(newExportCmd(a))
	root.AddCommand(newImportCmd(a))
	root.AddCommand(newServeCmd(a))
	root.AddCommand(newRemoteCmd(a))

	return root
}

// Execute runs the root command with os.Args and returns the process exit
// code.
func Execute() int {
	return Run(context.Background(), NewRootCmd(), os.Args[1:], os.Stdout, os.Stderr)
}

// Run executes root with args and maps its error onto an exit code.
// Long-running commands stop when ctx is done.
func Run(ctx context.Context, root *cobra.Command, args []string, stdout, stderr io.Writer) int {
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	err := root.ExecuteContext(ctx)
	if err == nil {
		return exitSuccess
	}
	fmt.Fprintln(stderr, "dials:", err)
	return exitCode(err)
}

// setup resolves the config directory, loads config.yaml and builds the
// logger.
func (a *app) setup(cmd *cobra.Command) error {
	configDir, err := paths.ResolveConfigDir(a.configDir)
	if err != nil {
		return sysError(err)
	}
	a.configDir = configDir

	if a.cfg, err = loadConfig(configDir); err != nil {
		return sysError(err)
	}
	if err := a.cfg.BindPFlag(cfgKeyLogLevel, cmd.Flags().Lookup("log-level")); err != nil {
		return sysError(err)
	}

	level, err := logging.ParseLevel(a.cfg.GetString(cfgKeyLogLevel))
	if err != nil {
		return userError(err)
	}
	a.logger, err = logging.New(logging.Options{
		Level:  level,
		Format: a.cfg.GetString(cfgKeyLogFormat),
		Writer: cmd.ErrOrStderr(),
	})
	if err != nil {
		return userError(err)
	}
	return nil
}

// resolveDataDir returns the data directory: --data-dir flag > config.yaml
// data_dir > DIALS_DATA_DIR env > $(CWD)/.dials-db.
func (a *app) resolveDataDir() (string, error) {
	return paths.ResolveDataDir(a.dataDir, a.cfg.GetString(cfgKeyDataDir))
}

// exitError carries the exit code a command failed with.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }

func (e *exitError) Unwrap() error { return e.err }

// userError marks err as caused by bad input.
func userError(err error) error {
	return &exitError{code: exitUserError, err: err}
}

// sysError marks err as an environment or storage failure.
func sysError(err error) error {
	return &exitError{code: exitSysError, err: err}
}

// exitCode returns the code carried by err. Errors that were not marked
// come from cobra itself (unknown command, bad flag) and count as user
// errors.
func exitCode(err error) int {
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return exitUserError
}
