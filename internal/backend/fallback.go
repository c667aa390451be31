package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"flatmates/internal/core"
	"flatmates/internal/resilience"
	"flatmates/internal/store"
)

// DefaultRemoteTimeout bounds each remote Load or Save.
const DefaultRemoteTimeout = 10 * time.Second

var _ store.Store = (*FallbackStore)(nil)

// FallbackStore pairs a remote store with a local copy. The local copy is the
// source of truth: writes land there first, and while the marker says the
// remote is behind, reads come from the local copy and the remote is
// overwritten with it.
type FallbackStore struct {
	local      store.Store
	remote     store.Store
	remoteName string
	breaker    *gobreaker.CircuitBreaker
	marker     SyncMarker
	timeout    time.Duration
}

// FallbackOption customises a FallbackStore.
type FallbackOption func(*FallbackStore)

// WithSyncMarker persists the "remote behind" flag, typically a FileMarker
// next to the local copy so it survives restarts.
func WithSyncMarker(m SyncMarker) FallbackOption {
	return func(s *FallbackStore) { s.marker = m }
}

// WithRemoteTimeout bounds each remote call.
func WithRemoteTimeout(d time.Duration) FallbackOption {
	return func(s *FallbackStore) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func NewFallbackStore(local, remote store.Store, remoteName string, breaker *gobreaker.CircuitBreaker, opts ...FallbackOption) *FallbackStore {
	if breaker == nil {
		breaker = resilience.NewCircuitBreaker(remoteName, resilience.Settings{})
	}
	s := &FallbackStore{
		local:      local,
		remote:     remote,
		remoteName: remoteName,
		breaker:    breaker,
		marker:     &MemoryMarker{},
		timeout:    DefaultRemoteTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *FallbackStore) Load(ctx context.Context) ([]core.Expense, error) {
	behind, err := s.marker.Behind()
	if err != nil {
		slog.WarnContext(ctx, "Cannot read sync marker, trusting local copy", "error", err)
		behind = true
	}
	if behind {
		return s.loadAndPushLocal(ctx)
	}

	v, err := s.callRemote(ctx, func(ctx context.Context) (interface{}, error) {
		return s.remote.Load(ctx)
	})
	if err == nil {
		expenses := v.([]core.Expense)
		if serr := s.local.Save(ctx, expenses); serr != nil {
			slog.WarnContext(ctx, "Failed to refresh local copy", "error", serr)
		}
		return expenses, nil
	}

	slog.WarnContext(ctx, "Remote load failed, using local copy",
		"backend", s.remoteName,
		"breaker", s.breaker.State().String(),
		"error", err)

	expenses, lerr := s.local.Load(ctx)
	if lerr != nil {
		return nil, &core.PersistenceWarning{
			Backend: s.remoteName,
			Op:      "load",
			Err:     errors.Join(fmt.Errorf("remote: %w", err), fmt.Errorf("local: %w", lerr)),
		}
	}
	return expenses, nil
}

// loadAndPushLocal serves the local copy when the remote missed writes and
// tries to bring the remote up to date. A failed push keeps the marker set.
func (s *FallbackStore) loadAndPushLocal(ctx context.Context) ([]core.Expense, error) {
	expenses, err := s.local.Load(ctx)
	if err != nil {
		return nil, &core.PersistenceWarning{Backend: "local", Op: "load", Err: err}
	}

	slog.InfoContext(ctx, "Remote is behind the local copy, pushing local snapshot",
		"backend", s.remoteName,
		"count", len(expenses))

	if err := s.saveRemote(ctx, expenses); err != nil {
		slog.WarnContext(ctx, "Remote catch-up failed, will retry on next save",
			"backend", s.remoteName,
			"error", err)
	}
	return expenses, nil
}

// Save writes the local copy, then the remote. A remote failure is returned
// as a PersistenceWarning; the local copy is already durable at that point.
func (s *FallbackStore) Save(ctx context.Context, expenses []core.Expense) error {
	if err := s.local.Save(ctx, expenses); err != nil {
		return &core.PersistenceWarning{Backend: "local", Op: "save", Err: err}
	}

	if err := s.saveRemote(ctx, expenses); err != nil {
		if resilience.IsOpen(err) {
			err = fmt.Errorf("%s unavailable, circuit open: %w", s.remoteName, err)
		}
		return &core.PersistenceWarning{Backend: s.remoteName, Op: "save", Err: err}
	}
	return nil
}

// saveRemote sets the marker before writing and clears it only after the
// remote accepted the snapshot, so a crash or a half-written sheet never
// looks up to date.
func (s *FallbackStore) saveRemote(ctx context.Context, expenses []core.Expense) error {
	if err := s.marker.MarkBehind(); err != nil {
		slog.WarnContext(ctx, "Failed to set sync marker", "error", err)
	}

	_, err := s.callRemote(ctx, func(ctx context.Context) (interface{}, error) {
		return nil, s.remote.Save(ctx, expenses)
	})
	if err != nil {
		return err
	}

	if err := s.marker.MarkCurrent(); err != nil {
		slog.WarnContext(ctx, "Failed to clear sync marker", "error", err)
	}
	return nil
}

func (s *FallbackStore) callRemote(ctx context.Context, fn func(context.Context) (interface{}, error)) (interface{}, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.breaker.Execute(func() (interface{}, error) {
		return fn(ctx)
	})
}

// BreakerState reports the remote circuit for readiness checks.
func (s *FallbackStore) BreakerState() gobreaker.State {
	return s.breaker.State()
}
