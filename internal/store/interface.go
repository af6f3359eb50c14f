package store

import (
	"context"
	"database/sql"
)

// StoreState represents the initialization state of the datastore.
type StoreState int

const (
	StateMissing        StoreState = iota // File doesn't exist
	StateUninitialized                    // File exists but no items table
	StateNeedsMigration                   // items exists without the cost column
	StateSchemaMismatch                   // items has columns we don't recognize
	StateReady                            // items has exactly id, name, quantity, cost
)

func (s StoreState) String() string {
	switch s {
	case StateMissing:
		return "missing"
	case StateUninitialized:
		return "uninitialized"
	case StateNeedsMigration:
		return "needs-migration"
	case StateSchemaMismatch:
		return "schema-mismatch"
	case StateReady:
		return "ready"
	}
	return "unknown"
}

// MarshalText lets the state appear by name in JSON output.
func (s StoreState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Report describes what an initialization run changed.
type Report struct {
	// CostAdded is true when the run added the cost column.
	CostAdded bool `json:"costAdded"`
}

// Store defines the inventory datastore contract.
// Implementations must be safe for concurrent use once Initialize returns.
type Store interface {
	// Open opens the datastore connection
	Open(ctx context.Context) error

	// Close closes the datastore connection
	Close() error

	// Initialize ensures the items table exists with the cost column
	Initialize(ctx context.Context) (Report, error)

	// Columns returns the column metadata of the items table
	Columns(ctx context.Context) ([]Column, error)

	// CheckState returns the current state of the datastore
	CheckState(ctx context.Context) (StoreState, error)

	// DB returns the open handle for collaborators
	DB() *sql.DB
}
