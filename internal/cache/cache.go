// Package cache holds small in-process caches for derived ledger views and
// remote reads, plus a manager that sweeps expired entries.
package cache

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Cache is the read/write surface shared by all caches.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, data T)
	Delete(key string)
	Purge()
	Size() int
}

var _ Cache[int] = (*LRUCache[int])(nil)

// Cleaner is implemented by caches that can drop expired entries.
type Cleaner interface {
	CleanExpired() int
}

// Manager periodically sweeps every registered cache.
type Manager struct {
	mu     sync.Mutex
	caches map[string]Cleaner
	cancel context.CancelFunc
	done   chan struct{}
}

func NewManager() *Manager {
	return &Manager{caches: make(map[string]Cleaner)}
}

// Register adds a named cache to the sweep.
func (m *Manager) Register(name string, c Cleaner) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.caches[name] = c
}

// Sweep cleans every registered cache once and returns the number of entries removed.
func (m *Manager) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := 0
	for name, c := range m.caches {
		n := c.CleanExpired()
		if n > 0 {
			slog.Debug("Cache entries expired", "cache", name, "removed", n)
		}
		total += n
	}
	return total
}

// StartCleanup sweeps every interval until Stop is called or ctx ends.
func (m *Manager) StartCleanup(ctx context.Context, interval time.Duration) {
	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})

	go func() {
		defer close(m.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.Sweep()
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop ends the cleanup loop and waits for it to exit.
func (m *Manager) Stop() {
	if m.cancel == nil {
		return
	}
	m.cancel()
	<-m.done
}
