package services

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// PendingSyncer pushes unsynced ledger versions to the mirror.
type PendingSyncer interface {
	ProcessPending(ctx context.Context) error
}

// SyncProcessorConfig controls the polling loop.
type SyncProcessorConfig struct {
	// PollInterval is how often to look for unsynced versions (default: 30s)
	PollInterval time.Duration
}

func DefaultSyncProcessorConfig() SyncProcessorConfig {
	return SyncProcessorConfig{PollInterval: 30 * time.Second}
}

// ErrAlreadyRunning is returned by Start on a running processor.
var ErrAlreadyRunning = errors.New("sync processor is already running")

// SyncProcessor polls a PendingSyncer in the background. It is the safety net
// behind AMQP: lost messages and failed mirror writes are retried here.
type SyncProcessor struct {
	syncer PendingSyncer
	config SyncProcessorConfig

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewSyncProcessor(syncer PendingSyncer, config SyncProcessorConfig) *SyncProcessor {
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultSyncProcessorConfig().PollInterval
	}
	return &SyncProcessor{syncer: syncer, config: config}
}

// Start launches the loop, which runs once immediately and then every
// PollInterval until Stop or ctx cancellation.
func (p *SyncProcessor) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return ErrAlreadyRunning
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	p.mu.Unlock()

	go p.runLoop(ctx)

	slog.InfoContext(ctx, "Sync processor started", "poll_interval", p.config.PollInterval)
	return nil
}

// Stop signals the loop and waits for it, bounded by ctx.
func (p *SyncProcessor) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	stopCh, doneCh := p.stopCh, p.doneCh
	p.running = false
	p.mu.Unlock()

	close(stopCh)

	select {
	case <-doneCh:
		slog.InfoContext(ctx, "Sync processor stopped gracefully")
		return nil
	case <-ctx.Done():
		slog.WarnContext(ctx, "Sync processor stop timed out")
		return ctx.Err()
	}
}

func (p *SyncProcessor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *SyncProcessor) runLoop(ctx context.Context) {
	defer close(p.doneCh)

	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	p.poll(ctx)
	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.poll(ctx)
		}
	}
}

func (p *SyncProcessor) poll(ctx context.Context) {
	if err := p.syncer.ProcessPending(ctx); err != nil && ctx.Err() == nil {
		slog.ErrorContext(ctx, "Periodic sync failed", "error", err)
	}
}
