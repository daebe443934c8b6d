package types

import "time"

// Store is a canonical-state owner with a persistent backend. Callers
// attach to a backend, declare entries per location, and detach when done.
type Store interface {
	Container

	// Attach connects the Store to the backend described by config.
	// Creates the DataDir if it does not exist. Returns ErrAlreadyAttached
	// if called while already attached.
	Attach(config Config) error

	// Detach releases backend resources. Idempotent: multiple calls succeed.
	// After Detach, operations return ErrStoreDetached.
	Detach() error

	// Declare replaces the declared entry set of loc. Stored values of
	// entries that survive the redeclaration are kept.
	Declare(loc Location, title string, decls []Declaration) error

	// Locations lists every declared location in key order.
	Locations() ([]LocationInfo, error)
}

// LocationInfo summarizes one declared location.
type LocationInfo struct {
	Location  Location  `json:"location"`
	Title     string    `json:"title,omitempty"`
	Entries   int       `json:"entries"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AppliedBatch records one batch notification accepted by a store.
type AppliedBatch struct {
	BatchID   string    `json:"batch_id"`
	Location  Location  `json:"location"`
	Names     []string  `json:"names"`
	AppliedAt time.Time `json:"applied_at"`
}
