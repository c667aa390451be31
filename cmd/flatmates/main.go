package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"flatmates/internal/backend"
	"flatmates/internal/cli"
	apphttp "flatmates/internal/http"
	"flatmates/internal/ledger"
	applog "flatmates/internal/log"
	"flatmates/internal/metrics"
	"flatmates/internal/middleware/ratelimit"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(applog.ComponentApp)
	cfg := cli.LoadAndValidateConfig(logger)

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", "error", err)
		os.Exit(1)
	}

	startCtx, cancelStart := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelStart()

	res, err := backend.NewFactory(logger.WithComponent(applog.ComponentBackend).Logger).CreateBackend(startCtx, backendCfg)
	if err != nil {
		logger.Error("Failed to initialize backend", "error", err, "backend", cfg.DataBackend)
		os.Exit(1)
	}

	m := metrics.New()
	ledgerStore := ledger.New(res.Store,
		ledger.WithObserver(m),
		ledger.WithBackendName(res.Type.String()))

	// A failed load starts from an empty ledger; the warning stays visible
	// on /readyz until the next successful save.
	if err := ledgerStore.Load(startCtx); err != nil {
		logger.Warn("Ledger load failed, starting empty", "error", err, "backend", res.Type)
	} else {
		logger.Info("Ledger loaded", "count", len(ledgerStore.All()), "backend", res.Type)
	}

	rl := ratelimit.DefaultConfig()
	rl.Limit = cfg.RateLimit

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Options{
		Ledger:    ledgerStore,
		Metrics:   m,
		Logger:    logger.WithComponent(applog.ComponentHTTP),
		Ready:     res.Ping,
		RateLimit: rl,
	})
	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 10 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		if res.Cleanup != nil {
			if err := res.Cleanup(); err != nil {
				logger.Error("Backend cleanup error", "error", err)
			}
		}
	})

	logger.Info("Starting flatmates server", "port", cfg.Port, "backend", res.Type)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
