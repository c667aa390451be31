// Package ledger owns the canonical, ordered collection of expenses. It
// validates and normalises every mutation and hands read-only snapshots to
// the balance engine.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"flatmates/internal/core"
	"flatmates/internal/store"
)

type (
	// AddRequest carries the caller input of an add operation. The percentages
	// are only read for custom splits.
	AddRequest struct {
		Description    string
		Amount         float64
		PaidBy         core.Party
		Date           core.Date
		SplitType      core.SplitType
		SharathPercent *int
		ThejasPercent  *int
	}

	// Patch lists the fields an edit may change. Nil fields are left as is.
	Patch struct {
		Description *string
		Amount      *float64
		PaidBy      *core.Party
	}

	// Observer is notified after each mutation. Implementations must not block.
	Observer interface {
		LedgerMutated(op string, err error)
		PersistFailed(w *core.PersistenceWarning)
	}

	Store struct {
		mu       sync.Mutex
		items    []core.Expense
		version  uint64
		backend  store.Store
		name     string
		observer Observer
		lastWarn *core.PersistenceWarning

		// persistMu orders backend saves; savedSeq is the newest version
		// handed to the backend.
		persistMu sync.Mutex
		savedSeq  uint64

		now   func() time.Time
		newID func() string
	}

	Option func(*Store)
)

// WithClock overrides the clock used for timestamps and default dates.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithIDGenerator overrides the id source.
func WithIDGenerator(gen func() string) Option {
	return func(s *Store) { s.newID = gen }
}

// WithObserver registers a mutation observer, typically metrics.
func WithObserver(o Observer) Option {
	return func(s *Store) { s.observer = o }
}

// WithBackendName labels persistence warnings.
func WithBackendName(name string) Option {
	return func(s *Store) { s.name = name }
}

// New creates an empty store persisting through backend. A nil backend keeps
// the ledger in memory only.
func New(backend store.Store, opts ...Option) *Store {
	s := &Store{
		backend: backend,
		name:    "backend",
		now:     time.Now,
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load replaces the in-memory ledger with the backend snapshot. An
// unreachable backend leaves the ledger empty and is reported as a warning.
func (s *Store) Load(ctx context.Context) error {
	if s.backend == nil {
		return nil
	}
	items, err := s.backend.Load(ctx)
	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		w := s.warning("load", err)
		s.items = nil
		s.version++
		return w
	}
	clean := make([]core.Expense, 0, len(items))
	for _, e := range items {
		if verr := e.Validate(); verr != nil {
			slog.WarnContext(ctx, "Skipping invalid expense from backend", "id", e.ID, "error", verr)
			continue
		}
		clean = append(clean, e)
	}
	s.items = clean
	s.version++
	slog.InfoContext(ctx, "Ledger loaded", "backend", s.name, "count", len(clean))
	return nil
}

// Add validates the request, resolves the split and prepends a new record.
func (s *Store) Add(ctx context.Context, req AddRequest) (core.Expense, error) {
	e, err := s.build(req)
	if err != nil {
		s.notify("add", err)
		return core.Expense{}, err
	}

	s.mu.Lock()
	s.items = slices.Insert(s.items, 0, e)
	snap := s.commit("add")
	s.mu.Unlock()
	s.persist(ctx, snap)

	slog.InfoContext(ctx, "Expense added",
		"id", e.ID,
		"amount", e.Amount,
		"paid_by", e.PaidBy,
		"split_type", e.SplitType,
		"category", e.Category)
	return e, nil
}

func (s *Store) build(req AddRequest) (core.Expense, error) {
	desc := strings.TrimSpace(req.Description)
	if desc == "" {
		return core.Expense{}, core.NewValidationError("description", core.ErrEmptyDescription.Error())
	}
	if err := core.ValidateAmount(req.Amount); err != nil {
		return core.Expense{}, core.NewValidationError("amount", "must be a finite number greater than zero")
	}
	if !req.PaidBy.Valid() {
		return core.Expense{}, core.NewValidationError("paidBy", fmt.Sprintf("unknown party %q", req.PaidBy))
	}

	now := s.now()
	date := req.Date
	if date.IsZero() {
		date = core.DateOf(now)
	}

	split := req.SplitType
	if split == "" {
		split = core.SplitEqual
	}
	var pctA, pctB int
	if split == core.SplitCustom {
		if req.SharathPercent == nil || req.ThejasPercent == nil {
			return core.Expense{}, core.NewValidationError("percent", "custom split requires both percentages")
		}
		pctA, pctB = *req.SharathPercent, *req.ThejasPercent
		if err := core.ValidatePercents(pctA, pctB); err != nil {
			return core.Expense{}, err
		}
	} else {
		var err error
		if pctA, pctB, err = core.ResolveSplit(split, req.PaidBy); err != nil {
			return core.Expense{}, err
		}
	}

	return core.Expense{
		ID:             s.newID(),
		Description:    desc,
		Amount:         req.Amount,
		PaidBy:         req.PaidBy,
		Date:           date,
		SplitType:      split,
		SharathPercent: pctA,
		ThejasPercent:  pctB,
		Category:       core.Categorize(desc),
		Timestamp:      now.UTC(),
	}, nil
}

// Edit applies patch to the record with the given id. Split fields are not
// editable; the record is left untouched when validation fails.
func (s *Store) Edit(ctx context.Context, id string, patch Patch) (core.Expense, error) {
	e, snap, err := s.edit(id, patch)
	if err != nil {
		return core.Expense{}, err
	}
	s.persist(ctx, snap)
	slog.InfoContext(ctx, "Expense edited", "id", id)
	return e, nil
}

func (s *Store) edit(id string, patch Patch) (core.Expense, snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		err := &core.NotFoundError{ID: id}
		s.notify("edit", err)
		return core.Expense{}, snapshot{}, err
	}

	e := s.items[i]
	if patch.Description != nil {
		desc := strings.TrimSpace(*patch.Description)
		if desc == "" {
			err := core.NewValidationError("description", core.ErrEmptyDescription.Error())
			s.notify("edit", err)
			return core.Expense{}, snapshot{}, err
		}
		e.Description = desc
		e.Category = core.Categorize(desc)
	}
	if patch.Amount != nil {
		if err := core.ValidateAmount(*patch.Amount); err != nil {
			verr := core.NewValidationError("amount", "must be a finite number greater than zero")
			s.notify("edit", verr)
			return core.Expense{}, snapshot{}, verr
		}
		e.Amount = *patch.Amount
	}
	if patch.PaidBy != nil {
		if !patch.PaidBy.Valid() {
			err := core.NewValidationError("paidBy", fmt.Sprintf("unknown party %q", *patch.PaidBy))
			s.notify("edit", err)
			return core.Expense{}, snapshot{}, err
		}
		e.PaidBy = *patch.PaidBy
	}

	s.items[i] = e
	return e, s.commit("edit"), nil
}

// Delete removes the record with the given id.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	i := s.indexOf(id)
	if i < 0 {
		s.mu.Unlock()
		err := &core.NotFoundError{ID: id}
		s.notify("delete", err)
		return err
	}
	s.items = slices.Delete(s.items, i, i+1)
	snap := s.commit("delete")
	s.mu.Unlock()

	s.persist(ctx, snap)
	slog.InfoContext(ctx, "Expense deleted", "id", id)
	return nil
}

// Clear empties the ledger unconditionally. Callers confirm intent first.
func (s *Store) Clear(ctx context.Context) {
	s.mu.Lock()
	n := len(s.items)
	s.items = nil
	snap := s.commit("clear")
	s.mu.Unlock()

	s.persist(ctx, snap)
	slog.WarnContext(ctx, "Ledger cleared", "removed", n)
}

// Replace swaps the whole ledger for expenses after validating every record
// and rejecting duplicate ids. Used by import.
func (s *Store) Replace(ctx context.Context, expenses []core.Expense) error {
	seen := make(map[string]struct{}, len(expenses))
	for _, e := range expenses {
		if err := e.Validate(); err != nil {
			s.notify("replace", err)
			return fmt.Errorf("expense %q: %w", e.ID, err)
		}
		if _, dup := seen[e.ID]; dup {
			err := core.NewValidationError("id", fmt.Sprintf("duplicate id %q", e.ID))
			s.notify("replace", err)
			return err
		}
		seen[e.ID] = struct{}{}
	}

	s.mu.Lock()
	s.items = slices.Clone(expenses)
	snap := s.commit("replace")
	s.mu.Unlock()

	s.persist(ctx, snap)
	slog.InfoContext(ctx, "Ledger replaced", "count", len(expenses))
	return nil
}

// All returns a snapshot of the ledger, newest first.
func (s *Store) All() []core.Expense {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.items)
}

// Get returns the record with the given id.
func (s *Store) Get(id string) (core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(id)
	if i < 0 {
		return core.Expense{}, &core.NotFoundError{ID: id}
	}
	return s.items[i], nil
}

// Version increases on every mutation and identifies a snapshot.
func (s *Store) Version() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

// LastWarning returns the outcome of the most recent persist or load: nil
// when it succeeded.
func (s *Store) LastWarning() *core.PersistenceWarning {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastWarn
}

func (s *Store) indexOf(id string) int {
	return slices.IndexFunc(s.items, func(e core.Expense) bool { return e.ID == id })
}

// snapshot is a committed ledger state waiting to be persisted.
type snapshot struct {
	seq   uint64
	items []core.Expense
}

// commit bumps the version and captures the state to persist. Callers hold
// s.mu.
func (s *Store) commit(op string) snapshot {
	s.version++
	s.notify(op, nil)
	return snapshot{seq: s.version, items: slices.Clone(s.items)}
}

// persist saves snap without holding s.mu, so reads are never stuck behind
// backend I/O. Saves run one at a time; a snapshot older than one already
// saved is dropped because the newer one contains it.
func (s *Store) persist(ctx context.Context, snap snapshot) {
	if s.backend == nil {
		return
	}
	s.persistMu.Lock()
	defer s.persistMu.Unlock()
	if snap.seq <= s.savedSeq {
		return
	}
	s.savedSeq = snap.seq

	err := s.backend.Save(ctx, snap.items)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.warning("save", err)
		return
	}
	s.lastWarn = nil
}

// warning records a persistence failure. Callers hold s.mu.
func (s *Store) warning(op string, err error) *core.PersistenceWarning {
	var w *core.PersistenceWarning
	if !errors.As(err, &w) {
		w = &core.PersistenceWarning{Backend: s.name, Op: op, Err: err}
	}
	s.lastWarn = w
	slog.Warn("Ledger persistence failed, continuing with local state",
		"backend", w.Backend,
		"operation", w.Op,
		"error", w.Err)
	if s.observer != nil {
		s.observer.PersistFailed(w)
	}
	return w
}

func (s *Store) notify(op string, err error) {
	if s.observer != nil {
		s.observer.LedgerMutated(op, err)
	}
}
