// Package store declares the persistence contract of the ledger. Concrete
// backends live in sub-packages and in internal/storage.
package store

import (
	"context"

	"flatmates/internal/core"
)

// Ports for outbound adapters.
type (
	// Loader returns the persisted ledger snapshot, newest first. An empty
	// backend yields an empty slice, not an error.
	Loader interface {
		Load(ctx context.Context) ([]core.Expense, error)
	}

	// Saver replaces the persisted snapshot with expenses.
	Saver interface {
		Save(ctx context.Context, expenses []core.Expense) error
	}

	Store interface {
		Loader
		Saver
	}
)
