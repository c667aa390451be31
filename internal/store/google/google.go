// Package google mirrors the ledger into a Google Sheets tab, one expense per
// row in export.Columns order.
package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"flatmates/internal/cache"
	"flatmates/internal/core"
	"flatmates/internal/store"
)

const (
	DefaultSheetName = "Ledger"
	DefaultCacheTTL  = 30 * time.Second

	snapshotKey = "snapshot"
	lastColumn  = "J"
)

var _ store.Store = (*Client)(nil)

// Config selects the spreadsheet and credentials.
type Config struct {
	SpreadsheetID      string
	SheetName          string
	ServiceAccountJSON string
	ServiceAccountFile string
	CacheTTL           time.Duration
}

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetName     string

	group singleflight.Group
	cache *cache.LRUCache[[]core.Expense]
}

// New creates a Sheets client authenticated with a service account.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}

	svc, err := newSheetsService(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}

	return NewWithService(svc, cfg), nil
}

// NewWithService wraps an existing Sheets service.
func NewWithService(svc *gsheet.Service, cfg Config) *Client {
	name := strings.TrimSpace(cfg.SheetName)
	if name == "" {
		name = DefaultSheetName
	}
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Client{
		svc:           svc,
		spreadsheetID: strings.TrimSpace(cfg.SpreadsheetID),
		sheetName:     name,
		cache:         cache.NewLRUCache[[]core.Expense](1, ttl),
	}
}

// newSheetsService uses inline JSON, a key file, or GOOGLE_APPLICATION_CREDENTIALS.
func newSheetsService(ctx context.Context, cfg Config) (*gsheet.Service, error) {
	serviceAccountJSON := strings.TrimSpace(cfg.ServiceAccountJSON)
	serviceAccountFile := strings.TrimSpace(cfg.ServiceAccountFile)
	if serviceAccountJSON == "" && serviceAccountFile == "" {
		serviceAccountFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	var credentialsJSON []byte
	switch {
	case serviceAccountJSON != "":
		credentialsJSON = []byte(serviceAccountJSON)
	case serviceAccountFile != "":
		b, err := os.ReadFile(serviceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		credentialsJSON = b
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}

	slog.InfoContext(ctx, "Creating Google Sheets service with Service Account",
		"credentials_size", len(credentialsJSON),
		"from_file", serviceAccountFile != "")

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return service, nil
}

func (c *Client) dataRange() string {
	return fmt.Sprintf("%s!A:%s", c.sheetName, lastColumn)
}

// Load reads the whole tab. Concurrent callers share one API request and
// recent results are served from cache.
func (c *Client) Load(ctx context.Context) ([]core.Expense, error) {
	if c.svc == nil {
		return nil, errors.New("sheets service not initialized")
	}
	if cached, ok := c.cache.Get(snapshotKey); ok {
		return cloneExpenses(cached), nil
	}

	v, err, shared := c.group.Do(snapshotKey, func() (interface{}, error) {
		resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, c.dataRange()).Context(ctx).Do()
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", c.dataRange(), err)
		}
		expenses, skipped := parseRows(resp.Values)
		if skipped > 0 {
			slog.WarnContext(ctx, "Skipped unparseable sheet rows",
				"sheet", c.sheetName,
				"skipped", skipped)
		}
		c.cache.Set(snapshotKey, expenses)
		return expenses, nil
	})
	if err != nil {
		return nil, err
	}

	expenses := v.([]core.Expense)
	slog.DebugContext(ctx, "Ledger read from Google Sheets",
		"sheet", c.sheetName,
		"count", len(expenses),
		"shared", shared)
	return cloneExpenses(expenses), nil
}

// Save overwrites the tab with a header row plus one row per expense.
func (c *Client) Save(ctx context.Context, expenses []core.Expense) error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}
	c.cache.Delete(snapshotKey)

	_, err := c.svc.Spreadsheets.Values.Clear(c.spreadsheetID, c.dataRange(), &gsheet.ClearValuesRequest{}).
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("clear sheet %s: %w", c.sheetName, err)
	}

	rng := fmt.Sprintf("%s!A1:%s%d", c.sheetName, lastColumn, len(expenses)+1)
	vr := &gsheet.ValueRange{Values: toValues(expenses)}
	_, err = c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, vr).
		ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("update sheet %s: %w", c.sheetName, err)
	}

	c.cache.Set(snapshotKey, cloneExpenses(expenses))
	slog.InfoContext(ctx, "Ledger written to Google Sheets",
		"sheet", c.sheetName,
		"rows", len(expenses))
	return nil
}

// Invalidate drops the cached snapshot.
func (c *Client) Invalidate() {
	c.cache.Delete(snapshotKey)
}

func cloneExpenses(in []core.Expense) []core.Expense {
	out := make([]core.Expense, len(in))
	copy(out, in)
	return out
}
