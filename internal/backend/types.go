// Package backend builds the store.Store selected by configuration.
package backend

import (
	"context"
	"time"

	"flatmates/internal/store"
)

// BackendType names a persistence strategy.
type BackendType string

const (
	MemoryBackend   BackendType = "memory"
	FileBackend     BackendType = "file"
	SQLiteBackend   BackendType = "sqlite"
	PostgresBackend BackendType = "postgres"
	SheetsBackend   BackendType = "sheets"
)

func (bt BackendType) String() string {
	return string(bt)
}

func (bt BackendType) IsValid() bool {
	switch bt {
	case MemoryBackend, FileBackend, SQLiteBackend, PostgresBackend, SheetsBackend:
		return true
	default:
		return false
	}
}

// IsRemote reports whether the backend lives off-host and therefore gets a
// local fallback copy.
func (bt BackendType) IsRemote() bool {
	return bt == SheetsBackend
}

// CleanupFunc releases backend resources.
type CleanupFunc func() error

// Pinger is implemented by backends that can report readiness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// BackendResult is the store plus what the caller needs to manage it.
type BackendResult struct {
	Store   store.Store
	Type    BackendType
	Cleanup CleanupFunc
	// Ping is nil when the backend has nothing to probe.
	Ping func(ctx context.Context) error
}

// Factory creates backends from configuration.
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds what the factory needs from the application configuration.
type Config struct {
	Type BackendType

	// Memory and file
	DataDirectory string
	LedgerFile    string

	// SQL
	SQLiteDBPath string
	PostgresDSN  string
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Google Sheets
	GoogleSpreadsheetID      string
	GoogleSheetName          string
	GoogleServiceAccountJSON string
	GoogleServiceAccountFile string
	SheetsCacheTTL           time.Duration
	BreakerOpenTimeout       time.Duration
	// RemoteTimeout bounds each remote call; zero means DefaultRemoteTimeout.
	RemoteTimeout time.Duration
}
