package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Backends lists the accepted DATA_BACKEND values.
var Backends = []string{"memory", "file", "sqlite", "postgres", "sheets"}

type Config struct {
	// HTTP Server
	Port string
	// RateLimit is the write requests allowed per client per minute.
	RateLimit int

	// Backend selection
	DataBackend string
	DataDir     string
	LedgerFile  string

	// Database
	SQLiteDBPath string
	PostgresDSN  string

	// AMQP
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Google Sheets
	GoogleSpreadsheetID      string
	GoogleSheetName          string
	GoogleServiceAccountJSON string
	GoogleServiceAccountFile string
	SheetsCacheTTL           time.Duration
	RemoteBreakerOpenTimeout time.Duration
	RemoteTimeout            time.Duration

	// Worker
	SyncInterval time.Duration
	// MetricsAddr serves the worker's /metrics when set, e.g. ":9091".
	MetricsAddr string

	// Logging
	LogLevel string
}

func Load() *Config {
	dataDir := getEnv("DATA_DIR", "./data")
	return &Config{
		Port:      getEnv("PORT", "8080"),
		RateLimit: getEnvInt("RATE_LIMIT", 60),

		DataBackend: strings.ToLower(getEnv("DATA_BACKEND", "memory")),
		DataDir:     dataDir,
		LedgerFile:  getEnv("LEDGER_FILE", filepath.Join(dataDir, "ledger.json")),

		SQLiteDBPath: getEnv("SQLITE_DB_PATH", filepath.Join(dataDir, "flatmates.db")),
		PostgresDSN:  getEnv("POSTGRES_DSN", ""),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "flatmates"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "ledger_sync"),

		GoogleSpreadsheetID:      getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleSheetName:          getEnv("GOOGLE_SHEET_NAME", "Ledger"),
		GoogleServiceAccountJSON: getEnv("GOOGLE_SERVICE_ACCOUNT_JSON", ""),
		GoogleServiceAccountFile: getEnv("GOOGLE_SERVICE_ACCOUNT_FILE", ""),
		SheetsCacheTTL:           getEnvDuration("SHEETS_CACHE_TTL", 30*time.Second),
		RemoteBreakerOpenTimeout: getEnvDuration("REMOTE_BREAKER_TIMEOUT", 30*time.Second),
		RemoteTimeout:            getEnvDuration("REMOTE_TIMEOUT", 10*time.Second),

		SyncInterval: getEnvDuration("SYNC_INTERVAL", 30*time.Second),
		MetricsAddr:  getEnv("WORKER_METRICS_ADDR", ""),

		LogLevel: strings.ToLower(getEnv("LOG_LEVEL", "info")),
	}
}

// SlogLevel maps LogLevel onto slog levels; unknown values mean info.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Validate checks the configuration and reports every problem at once.
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if c.RateLimit < 1 {
		errors = append(errors, fmt.Sprintf("invalid rate limit %d: must be at least 1", c.RateLimit))
	}

	if !slices.Contains(Backends, c.DataBackend) {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, Backends))
	}

	switch c.DataBackend {
	case "file":
		if c.LedgerFile == "" {
			errors = append(errors, "ledger file path cannot be empty when using file backend")
		}
	case "sqlite":
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
		}
	case "postgres":
		if c.PostgresDSN == "" {
			errors = append(errors, "POSTGRES_DSN is required when using postgres backend")
		}
	case "sheets":
		errors = append(errors, c.validateSheets()...)
		if c.LedgerFile == "" {
			errors = append(errors, "ledger file path cannot be empty: the sheets backend keeps a local copy")
		}
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if c.RemoteTimeout < 0 {
		errors = append(errors, fmt.Sprintf("invalid remote timeout %v: must not be negative", c.RemoteTimeout))
	}

	if c.SyncInterval < time.Second {
		errors = append(errors, fmt.Sprintf("invalid sync interval %v: must be at least 1 second", c.SyncInterval))
	} else if c.SyncInterval > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid sync interval %v: must be at most 24 hours", c.SyncInterval))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

// ValidateWorker checks what the sync worker needs on top of Validate.
func (c *Config) ValidateWorker() error {
	var errors []string
	if c.SQLiteDBPath == "" {
		errors = append(errors, "SQLITE_DB_PATH is required by the sync worker")
	}
	if c.AMQPURL == "" {
		errors = append(errors, "AMQP_URL is required by the sync worker")
	}
	errors = append(errors, c.validateSheets()...)
	if len(errors) > 0 {
		return fmt.Errorf("worker configuration invalid:\n- %s", strings.Join(errors, "\n- "))
	}
	return nil
}

func (c *Config) validateSheets() []string {
	var errors []string
	if c.GoogleSpreadsheetID == "" {
		errors = append(errors, "GOOGLE_SPREADSHEET_ID is required for the sheets mirror")
	}
	if c.GoogleSheetName == "" {
		errors = append(errors, "GOOGLE_SHEET_NAME cannot be empty")
	}
	if c.GoogleServiceAccountJSON == "" && c.GoogleServiceAccountFile == "" && os.Getenv("GOOGLE_APPLICATION_CREDENTIALS") == "" {
		errors = append(errors, "either GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE or GOOGLE_APPLICATION_CREDENTIALS must be provided")
	}
	if c.GoogleServiceAccountFile != "" {
		if _, err := os.Stat(c.GoogleServiceAccountFile); os.IsNotExist(err) {
			errors = append(errors, fmt.Sprintf("Google service account file does not exist: %s", c.GoogleServiceAccountFile))
		}
	}
	return errors
}

func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
