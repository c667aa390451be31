package worker

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"flatmates/internal/amqp"
	"flatmates/internal/core"
	"flatmates/internal/metrics"
	"flatmates/internal/storage"
)

type fakeMirror struct {
	mu    sync.Mutex
	saves [][]core.Expense
	err   error
}

func (m *fakeMirror) Save(_ context.Context, expenses []core.Expense) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.saves = append(m.saves, expenses)
	return nil
}

func (m *fakeMirror) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.saves)
}

func newRepo(t *testing.T) *storage.Repository {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "flatmates.db"))
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func expense(id string) core.Expense {
	return core.Expense{
		ID: id, Description: "Rent", Amount: 500, PaidBy: core.PartySharath,
		Date: core.NewDate(2025, 7, 1), SplitType: core.SplitEqual,
		SharathPercent: 50, ThejasPercent: 50, Category: core.CategoryRent,
		Timestamp: time.Date(2025, 7, 1, 9, 0, 0, 0, time.UTC),
	}
}

func TestHandleSyncMessage(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	mirror := &fakeMirror{}
	m := metrics.New()
	w := NewSyncWorker(repo, mirror, m)

	version, err := repo.SaveSnapshot(ctx, []core.Expense{expense("a"), expense("b")})
	if err != nil {
		t.Fatal(err)
	}

	if err := w.HandleSyncMessage(ctx, amqp.NewLedgerSyncMessage(version)); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if mirror.count() != 1 || len(mirror.saves[0]) != 2 {
		t.Fatalf("mirror saves = %d", mirror.count())
	}
	st, _ := repo.SyncState(ctx)
	if st.SyncedVersion != version || st.Pending() {
		t.Fatalf("state = %+v", st)
	}

	// A redelivered message for the same version does nothing.
	if err := w.HandleSyncMessage(ctx, amqp.NewLedgerSyncMessage(version)); err != nil {
		t.Fatalf("handle duplicate: %v", err)
	}
	if mirror.count() != 1 {
		t.Fatalf("duplicate message re-synced, saves = %d", mirror.count())
	}
}

func TestMirrorFailureIsRecordedAndRetried(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	mirror := &fakeMirror{err: errors.New("quota exceeded")}
	m := metrics.New()
	w := NewSyncWorker(repo, mirror, m)

	version, _ := repo.SaveSnapshot(ctx, []core.Expense{expense("a")})

	// The message is acknowledged; the periodic check owns the retry.
	if err := w.HandleSyncMessage(ctx, amqp.NewLedgerSyncMessage(version)); err != nil {
		t.Fatalf("handle: %v", err)
	}
	st, _ := repo.SyncState(ctx)
	if st.LastError != "quota exceeded" || !st.Pending() {
		t.Fatalf("state = %+v", st)
	}

	if err := w.ProcessPending(ctx); err == nil {
		t.Fatal("expected mirror error from the periodic check")
	}

	mirror.err = nil
	if err := w.ProcessPending(ctx); err != nil {
		t.Fatalf("retry: %v", err)
	}
	st, _ = repo.SyncState(ctx)
	if st.Pending() || st.LastError != "" {
		t.Fatalf("state after retry = %+v", st)
	}

	if got := m.SyncRuns(TriggerMessage, "error"); got != 1 {
		t.Errorf("message errors = %v", got)
	}
	if got := m.SyncRuns(TriggerTick, "ok"); got != 1 {
		t.Errorf("tick successes = %v", got)
	}
}

func TestStartupSyncCheck(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	mirror := &fakeMirror{}
	w := NewSyncWorker(repo, mirror, nil)

	if err := w.StartupSyncCheck(ctx); err != nil || mirror.count() != 0 {
		t.Fatalf("empty repository should not sync: %v, %d", err, mirror.count())
	}

	repo.SaveSnapshot(ctx, []core.Expense{expense("a")})
	repo.SaveSnapshot(ctx, []core.Expense{expense("a"), expense("b")})
	if err := w.StartupSyncCheck(ctx); err != nil {
		t.Fatal(err)
	}
	if mirror.count() != 1 || len(mirror.saves[0]) != 2 {
		t.Fatalf("expected one sync of the latest snapshot, got %d", mirror.count())
	}
}
