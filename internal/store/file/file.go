// Package file persists the ledger snapshot as a JSON array on local disk.
// It is the local source of truth when a remote backend is unreachable.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"flatmates/internal/core"
	"flatmates/internal/store"
)

var _ store.Store = (*Store)(nil)

type Store struct {
	mu   sync.Mutex
	path string
}

// New returns a store writing to path, creating its directory if needed.
func New(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("ledger file path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create ledger directory: %w", err)
	}
	return &Store{path: path}, nil
}

func (s *Store) Path() string {
	return s.path
}

// Load reads the snapshot. A missing file is an empty ledger.
func (s *Store) Load(_ context.Context) ([]core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return []core.Expense{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read ledger file: %w", err)
	}
	var out []core.Expense
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("decode ledger file %s: %w", s.path, err)
	}
	if out == nil {
		out = []core.Expense{}
	}
	return out, nil
}

// Save writes the snapshot through a temp file and rename so a crash never
// leaves a truncated ledger behind.
func (s *Store) Save(_ context.Context, expenses []core.Expense) error {
	if expenses == nil {
		expenses = []core.Expense{}
	}
	b, err := json.MarshalIndent(expenses, "", "  ")
	if err != nil {
		return fmt.Errorf("encode ledger: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".ledger-*.json")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace ledger file: %w", err)
	}
	return nil
}
