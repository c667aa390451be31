package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"flatmates/internal/amqp"
	"flatmates/internal/cli"
	"flatmates/internal/config"
	applog "flatmates/internal/log"
	"flatmates/internal/metrics"
	"flatmates/internal/services"
	"flatmates/internal/storage"
	"flatmates/internal/store/google"
	"flatmates/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(applog.ComponentWorker)
	logger.Info("Starting flatmates-worker")

	cfg := cli.LoadAndValidateConfig(logger, (*config.Config).Validate, (*config.Config).ValidateWorker)

	repo, err := openRepository(cfg)
	if err != nil {
		logger.Error("Failed to open ledger database", "error", err, "backend", cfg.DataBackend)
		os.Exit(1)
	}
	defer repo.Close()

	sheetsClient, err := google.New(context.Background(), google.Config{
		SpreadsheetID:      cfg.GoogleSpreadsheetID,
		SheetName:          cfg.GoogleSheetName,
		ServiceAccountJSON: cfg.GoogleServiceAccountJSON,
		ServiceAccountFile: cfg.GoogleServiceAccountFile,
		CacheTTL:           cfg.SheetsCacheTTL,
	})
	if err != nil {
		logger.Error("Failed to initialize Google Sheets client", "error", err)
		os.Exit(1)
	}
	logger.Info("Google Sheets client initialized", "sheet", cfg.GoogleSheetName)

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", "error", err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	m := metrics.New()
	syncWorker := worker.NewSyncWorker(repo, sheetsClient, m)
	processor := services.NewSyncProcessor(syncWorker, services.SyncProcessorConfig{PollInterval: cfg.SyncInterval})

	var metricsSrv *http.Server
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", m.Handler())
		metricsSrv = &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	}

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := processor.Stop(ctx); err != nil {
			logger.Error("Sync processor stop error", "error", err)
		}
		if metricsSrv != nil {
			if err := metricsSrv.Shutdown(ctx); err != nil {
				logger.Error("Metrics server shutdown error", "error", err)
			}
		}
	})

	logger.Info("Performing startup sync check...")
	if err := syncWorker.StartupSyncCheck(ctx); err != nil {
		logger.Error("Failed startup sync check", "error", err)
	}

	if err := processor.Start(ctx); err != nil {
		logger.Error("Failed to start sync processor", "error", err)
		os.Exit(1)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := amqpClient.ConsumeLedgerSync(gctx, syncWorker.HandleSyncMessage)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	if metricsSrv != nil {
		g.Go(func() error {
			logger.Info("Serving worker metrics", "addr", cfg.MetricsAddr)
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		logger.Error("Worker stopped with error", "error", err)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker shutdown complete")
}

// openRepository follows DATA_BACKEND so the worker reads the same database
// the server writes.
func openRepository(cfg *config.Config) (*storage.Repository, error) {
	if cfg.DataBackend == "postgres" {
		return storage.NewPostgresRepository(cfg.PostgresDSN)
	}
	return storage.NewSQLiteRepository(cfg.SQLiteDBPath)
}
