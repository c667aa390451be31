// Package services orchestrates ledger persistence across the local database
// and the message broker that feeds the remote mirror.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"flatmates/internal/core"
)

// SnapshotRepository is the slice of storage.Repository the service needs.
type SnapshotRepository interface {
	Load(ctx context.Context) ([]core.Expense, error)
	SaveSnapshot(ctx context.Context, expenses []core.Expense) (uint64, error)
}

// SyncPublisher announces new snapshot versions, usually over AMQP.
type SyncPublisher interface {
	PublishLedgerSync(ctx context.Context, version uint64) error
}

// LedgerService is a store.Store that saves to the database and then tells
// the sync worker about the new version. A failed publish never fails the
// save: the worker's periodic check picks up unsynced versions.
type LedgerService struct {
	storage   SnapshotRepository
	publisher SyncPublisher
	closers   []func() error
}

// NewLedgerService wires storage and an optional publisher. Extra closers are
// run by Close, in order.
func NewLedgerService(storage SnapshotRepository, publisher SyncPublisher, closers ...func() error) *LedgerService {
	return &LedgerService{
		storage:   storage,
		publisher: publisher,
		closers:   closers,
	}
}

func (s *LedgerService) Load(ctx context.Context) ([]core.Expense, error) {
	expenses, err := s.storage.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	return expenses, nil
}

func (s *LedgerService) Save(ctx context.Context, expenses []core.Expense) error {
	version, err := s.storage.SaveSnapshot(ctx, expenses)
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}

	if err := s.publishSyncMessage(ctx, version); err != nil {
		slog.ErrorContext(ctx, "Failed to publish sync message",
			"version", version, "error", err)
	}

	return nil
}

func (s *LedgerService) publishSyncMessage(ctx context.Context, version uint64) error {
	if s.publisher == nil {
		slog.DebugContext(ctx, "AMQP client not available, skipping sync message")
		return nil
	}

	return s.publisher.PublishLedgerSync(ctx, version)
}

// Close releases storage and broker connections.
func (s *LedgerService) Close() error {
	var errs []error
	for _, c := range s.closers {
		if c == nil {
			continue
		}
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("close ledger service: %w", err)
	}
	return nil
}
