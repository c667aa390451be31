package memory

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"flatmates/internal/core"
	"flatmates/internal/export"
	"flatmates/internal/store"
)

// SeedFile is the export bundle NewFromFiles looks for in the data directory.
const SeedFile = "seed_ledger.json"

var _ store.Store = (*Store)(nil)

// Store keeps the persisted snapshot in process memory.
type Store struct {
	mu    sync.Mutex
	items []core.Expense
	saves int
}

func New(seed []core.Expense) *Store {
	return &Store{items: slices.Clone(seed)}
}

// NewFromFiles seeds the store from base/seed_ledger.json when present. A
// missing or invalid seed yields an empty store.
func NewFromFiles(base string) *Store {
	path := filepath.Join(base, SeedFile)
	f, err := os.Open(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			slog.Warn("Cannot open ledger seed", "path", path, "error", err)
		}
		return New(nil)
	}
	defer f.Close()

	b, err := export.Decode(f)
	if err != nil {
		slog.Warn("Ignoring invalid ledger seed", "path", path, "error", err)
		return New(nil)
	}
	slog.Info("Seeded memory ledger", "path", path, "count", len(b.Expenses))
	return New(b.Expenses)
}

// Load returns a copy of the stored snapshot.
func (s *Store) Load(_ context.Context) ([]core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := slices.Clone(s.items)
	if out == nil {
		out = []core.Expense{}
	}
	return out, nil
}

// Save replaces the stored snapshot.
func (s *Store) Save(_ context.Context, expenses []core.Expense) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = slices.Clone(expenses)
	s.saves++
	return nil
}

// Saves reports how many snapshots were written.
func (s *Store) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}
