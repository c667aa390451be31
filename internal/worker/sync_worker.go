// Package worker mirrors the SQL ledger snapshot into Google Sheets.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"flatmates/internal/amqp"
	"flatmates/internal/core"
	"flatmates/internal/storage"
)

const (
	TriggerMessage = "message"
	TriggerTick    = "tick"
	TriggerStartup = "startup"
)

// SnapshotSource is the SQL side: the authoritative snapshot plus its sync
// bookkeeping.
type SnapshotSource interface {
	Load(ctx context.Context) ([]core.Expense, error)
	SyncState(ctx context.Context) (storage.SyncState, error)
	MarkSynced(ctx context.Context, version uint64) error
	MarkSyncError(ctx context.Context, cause error) error
}

// Mirror receives full snapshots.
type Mirror interface {
	Save(ctx context.Context, expenses []core.Expense) error
}

// Recorder counts sync attempts.
type Recorder interface {
	SyncRun(trigger string, err error)
}

// SyncWorker pushes the snapshot to the mirror whenever the source version
// is ahead of the last synced one. Runs are serialised.
type SyncWorker struct {
	source   SnapshotSource
	mirror   Mirror
	recorder Recorder

	mu sync.Mutex
}

func NewSyncWorker(source SnapshotSource, mirror Mirror, recorder Recorder) *SyncWorker {
	return &SyncWorker{source: source, mirror: mirror, recorder: recorder}
}

// HandleSyncMessage processes one sync announcement. Messages for versions
// already mirrored are acknowledged without work. A mirror failure is
// recorded and left to the periodic check, so the message is not requeued
// in a tight loop.
func (w *SyncWorker) HandleSyncMessage(ctx context.Context, msg *amqp.LedgerSyncMessage) error {
	slog.InfoContext(ctx, "Processing sync message", "version", msg.Version)

	state, err := w.source.SyncState(ctx)
	if err != nil {
		return fmt.Errorf("read sync state: %w", err)
	}
	if msg.Version <= state.SyncedVersion {
		slog.DebugContext(ctx, "Skipping stale sync message",
			"version", msg.Version,
			"synced_version", state.SyncedVersion)
		return nil
	}

	err = w.sync(ctx, TriggerMessage)
	var mirrorErr *mirrorError
	if errors.As(err, &mirrorErr) {
		return nil
	}
	return err
}

// ProcessPending syncs when the source has unsynced changes. It covers lost
// messages and earlier mirror failures.
func (w *SyncWorker) ProcessPending(ctx context.Context) error {
	return w.syncIfPending(ctx, TriggerTick)
}

// StartupSyncCheck catches up on changes made while the worker was down.
func (w *SyncWorker) StartupSyncCheck(ctx context.Context) error {
	return w.syncIfPending(ctx, TriggerStartup)
}

func (w *SyncWorker) syncIfPending(ctx context.Context, trigger string) error {
	state, err := w.source.SyncState(ctx)
	if err != nil {
		return fmt.Errorf("read sync state: %w", err)
	}
	if !state.Pending() {
		slog.DebugContext(ctx, "Mirror up to date", "version", state.Version, "trigger", trigger)
		return nil
	}
	slog.InfoContext(ctx, "Unsynced ledger changes found",
		"version", state.Version,
		"synced_version", state.SyncedVersion,
		"trigger", trigger)
	return w.sync(ctx, trigger)
}

type mirrorError struct{ err error }

func (e *mirrorError) Error() string { return "write mirror: " + e.err.Error() }
func (e *mirrorError) Unwrap() error { return e.err }

// sync reads the version before the snapshot, so the snapshot is at least as
// new as the version it gets marked with.
func (w *SyncWorker) sync(ctx context.Context, trigger string) (err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	defer func() {
		if w.recorder != nil {
			w.recorder.SyncRun(trigger, err)
		}
	}()

	state, err := w.source.SyncState(ctx)
	if err != nil {
		return fmt.Errorf("read sync state: %w", err)
	}
	if !state.Pending() {
		return nil
	}

	expenses, err := w.source.Load(ctx)
	if err != nil {
		return fmt.Errorf("load snapshot: %w", err)
	}

	if err := w.mirror.Save(ctx, expenses); err != nil {
		if markErr := w.source.MarkSyncError(ctx, err); markErr != nil {
			slog.ErrorContext(ctx, "Failed to record sync error", "error", markErr)
		}
		slog.ErrorContext(ctx, "Failed to mirror ledger",
			"version", state.Version,
			"trigger", trigger,
			"error", err)
		return &mirrorError{err: err}
	}

	if err := w.source.MarkSynced(ctx, state.Version); err != nil {
		// The mirror is current; the next run rewrites the same snapshot.
		slog.ErrorContext(ctx, "Failed to mark version synced", "version", state.Version, "error", err)
		return nil
	}

	slog.InfoContext(ctx, "Ledger mirrored",
		"version", state.Version,
		"count", len(expenses),
		"trigger", trigger)
	return nil
}
