package types

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Config selects the canonical store backend and where it keeps its files.
type Config struct {
	Backend string `json:"backend" yaml:"backend"`
	DataDir string `json:"data_dir" yaml:"data_dir"`
}

// BackendSQLite is the SQLite store with JSONL files as source of truth.
const BackendSQLite = "sqlite"

// Config errors.
var (
	ErrBackendEmpty   = errors.New("backend must not be empty")
	ErrBackendUnknown = errors.New("unknown backend")
	ErrDataDirEmpty   = errors.New("data directory must not be empty")
)

var knownBackends = map[string]bool{
	BackendSQLite: true,
}

// Backends lists the backend names Validate accepts, sorted.
func Backends() []string {
	names := make([]string, 0, len(knownBackends))
	for name := range knownBackends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate checks the backend name and that a data directory is set.
// ErrBackendEmpty is returned unwrapped; the other errors carry context.
func (c Config) Validate() error {
	if c.Backend == "" {
		return ErrBackendEmpty
	}
	if !knownBackends[c.Backend] {
		return fmt.Errorf("%w %q (want one of %s)", ErrBackendUnknown, c.Backend, strings.Join(Backends(), ", "))
	}
	if strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("%s: %w", c.Backend, ErrDataDirEmpty)
	}
	return nil
}
