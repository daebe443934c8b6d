package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr error
	}{
		{"sqlite", Config{Backend: BackendSQLite, DataDir: "/var/lib/dials"}, nil},
		{"no backend", Config{DataDir: "/var/lib/dials"}, ErrBackendEmpty},
		{"unknown backend", Config{Backend: "dolt", DataDir: "/var/lib/dials"}, ErrBackendUnknown},
		{"no data dir", Config{Backend: BackendSQLite}, ErrDataDirEmpty},
		{"blank data dir", Config{Backend: BackendSQLite, DataDir: "  "}, ErrDataDirEmpty},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestConfigValidateNamesKnownBackends(t *testing.T) {
	err := Config{Backend: "dolt", DataDir: "/x"}.Validate()
	assert.EqualError(t, err, `unknown backend "dolt" (want one of sqlite)`)
	assert.Equal(t, []string{BackendSQLite}, Backends())
}
