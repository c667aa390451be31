// Package cli holds the start-up steps shared by cmd/flatmates and
// cmd/flatmates-worker.
package cli

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"flatmates/internal/config"
	applog "flatmates/internal/log"
)

// LoadEnvFile loads .env for local development. A missing file is normal in
// production; any other problem is logged.
func LoadEnvFile(paths ...string) {
	if err := godotenv.Load(paths...); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("Failed to load .env file", "error", err)
	}
}

// SetupLogger installs a text logger for component at the level named in
// LOG_LEVEL and returns it.
func SetupLogger(component string) *applog.Logger {
	cfg := &config.Config{LogLevel: strings.ToLower(os.Getenv("LOG_LEVEL"))}
	logger := applog.New(applog.Config{
		Level:     cfg.SlogLevel(),
		Component: component,
		Format:    os.Getenv("LOG_FORMAT"),
	})
	applog.SetDefault(logger)
	return logger
}

// LoadAndValidateConfig loads configuration and runs each validator in
// order. The process exits on the first failure.
func LoadAndValidateConfig(logger *applog.Logger, validators ...func(*config.Config) error) *config.Config {
	cfg := config.Load()
	if len(validators) == 0 {
		validators = []func(*config.Config) error{(*config.Config).Validate}
	}
	for _, validate := range validators {
		if err := validate(cfg); err != nil {
			logger.Error("Configuration validation failed", "error", err)
			os.Exit(1)
		}
	}
	return cfg
}

// GracefulShutdown returns a context cancelled on SIGINT or SIGTERM. After
// the signal, cleanup runs with a context bounded by timeout, and done is
// closed once it returns.
func GracefulShutdown(logger *applog.Logger, timeout time.Duration, cleanup func(context.Context)) (context.Context, <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
		defer shutdownCancel()

		if cleanup != nil {
			cleanup(shutdownCtx)
		}
		if shutdownCtx.Err() != nil {
			logger.Warn("Shutdown timeout reached")
		} else {
			logger.Info("Shutdown complete")
		}
		close(done)
	}()

	return ctx, done
}

// WaitForShutdown blocks until the context is cancelled and cleanup is done.
func WaitForShutdown(ctx context.Context, done <-chan struct{}) {
	<-ctx.Done()
	<-done
}
