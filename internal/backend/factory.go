package backend

import (
	"context"
	"fmt"
	"log/slog"

	"flatmates/internal/amqp"
	"flatmates/internal/resilience"
	"flatmates/internal/services"
	"flatmates/internal/storage"
	"flatmates/internal/store/file"
	"flatmates/internal/store/google"
	"flatmates/internal/store/memory"
)

// DefaultFactory implements Factory.
type DefaultFactory struct {
	logger *slog.Logger
}

func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{logger: logger}
}

func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var (
		res *BackendResult
		err error
	)
	switch config.Type {
	case MemoryBackend:
		res, err = f.createMemoryBackend(config)
	case FileBackend:
		res, err = f.createFileBackend(config)
	case SQLiteBackend:
		res, err = f.createSQLBackend(config, storage.DialectSQLite)
	case PostgresBackend:
		res, err = f.createSQLBackend(config, storage.DialectPostgres)
	case SheetsBackend:
		res, err = f.createSheetsBackend(ctx, config)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
	if err != nil {
		return nil, err
	}
	res.Type = config.Type
	return res, nil
}

func (f *DefaultFactory) createMemoryBackend(config Config) (*BackendResult, error) {
	dataDir := config.DataDirectory
	if dataDir == "" {
		dataDir = "data"
	}

	s := memory.NewFromFiles(dataDir)
	f.logger.Info("Initialized memory backend", "data_directory", dataDir)

	return &BackendResult{Store: s}, nil
}

func (f *DefaultFactory) createFileBackend(config Config) (*BackendResult, error) {
	s, err := file.New(config.LedgerFile)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize file backend: %w", err)
	}

	f.logger.Info("Initialized file backend", "path", s.Path())
	return &BackendResult{Store: s}, nil
}

func (f *DefaultFactory) createSQLBackend(config Config, dialect storage.Dialect) (*BackendResult, error) {
	var (
		repo *storage.Repository
		err  error
	)
	if dialect == storage.DialectPostgres {
		repo, err = storage.NewPostgresRepository(config.PostgresDSN)
	} else {
		repo, err = storage.NewSQLiteRepository(config.SQLiteDBPath)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to initialize %s repository: %w", dialect, err)
	}

	// AMQP is optional: without it the worker's periodic check does the syncing.
	var publisher services.SyncPublisher
	closers := []func() error{repo.Close}
	if config.AMQPURL != "" {
		client, err := amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue)
		if err != nil {
			f.logger.Warn("Failed to initialize AMQP client, continuing without sync messages", "error", err)
		} else {
			publisher = client
			closers = append(closers, client.Close)
			f.logger.Info("Initialized AMQP client",
				"exchange", config.AMQPExchange,
				"queue", config.AMQPQueue)
		}
	}

	svc := services.NewLedgerService(repo, publisher, closers...)

	f.logger.Info("Initialized SQL backend",
		"dialect", dialect,
		"amqp_enabled", publisher != nil)

	return &BackendResult{
		Store:   svc,
		Cleanup: svc.Close,
		Ping:    repo.Ping,
	}, nil
}

func (f *DefaultFactory) createSheetsBackend(ctx context.Context, config Config) (*BackendResult, error) {
	client, err := google.New(ctx, google.Config{
		SpreadsheetID:      config.GoogleSpreadsheetID,
		SheetName:          config.GoogleSheetName,
		ServiceAccountJSON: config.GoogleServiceAccountJSON,
		ServiceAccountFile: config.GoogleServiceAccountFile,
		CacheTTL:           config.SheetsCacheTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Google Sheets client: %w", err)
	}

	local, err := file.New(config.LedgerFile)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize local copy: %w", err)
	}

	marker, err := NewFileMarker(local.Path() + ".remote-behind")
	if err != nil {
		return nil, fmt.Errorf("failed to initialize sync marker: %w", err)
	}

	breaker := resilience.NewCircuitBreaker("sheets", resilience.Settings{OpenTimeout: config.BreakerOpenTimeout})

	f.logger.Info("Initialized Google Sheets backend",
		"sheet", config.GoogleSheetName,
		"local_copy", local.Path(),
		"remote_timeout", config.RemoteTimeout)

	fallback := NewFallbackStore(local, client, "sheets", breaker,
		WithSyncMarker(marker),
		WithRemoteTimeout(config.RemoteTimeout))
	return &BackendResult{Store: fallback}, nil
}
