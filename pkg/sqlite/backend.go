// Package sqlite provides the public factory for the SQLite dials store,
// keeping the implementation internal.
package sqlite

import (
	"github.com/mesh-intelligence/dials/internal/sqlite"
	"github.com/mesh-intelligence/dials/pkg/types"
)

// NewBackend creates a new SQLite store. It is not attached; call Attach
// with a Config to initialize.
//
// Example:
//
//	store := sqlite.NewBackend()
//	err := store.Attach(types.Config{
//	    Backend: types.BackendSQLite,
//	    DataDir: ".dials-db",
//	})
//	defer store.Detach()
func NewBackend() types.Store {
	return sqlite.NewBackend()
}
