// Package storage persists ledger snapshots in a relational database. The
// same repository serves SQLite (modernc.org/sqlite) and PostgreSQL (lib/pq);
// only the placeholder syntax and the migration set differ.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"flatmates/internal/core"
)

// Dialect selects the SQL flavour of a repository.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

func (d Dialect) driverName() string {
	return string(d)
}

// rebind rewrites ? placeholders into $n for PostgreSQL.
func (d Dialect) rebind(query string) string {
	if d != DialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// SyncState tracks how far the remote mirror lags the local snapshot.
type SyncState struct {
	Version       uint64
	SyncedVersion uint64
	LastError     string
	UpdatedAt     time.Time
}

// Pending reports whether the latest snapshot has not been mirrored yet.
func (s SyncState) Pending() bool {
	return s.Version > s.SyncedVersion
}

type Repository struct {
	db      *sql.DB
	dialect Dialect
}

// NewSQLiteRepository opens (and migrates) a SQLite database at dbPath.
func NewSQLiteRepository(dbPath string) (*Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}
	return open(DialectSQLite, dbPath)
}

// NewPostgresRepository opens (and migrates) a PostgreSQL database.
func NewPostgresRepository(dsn string) (*Repository, error) {
	return open(DialectPostgres, dsn)
}

func open(d Dialect, dsn string) (*Repository, error) {
	db, err := sql.Open(d.driverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", d, err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(d, dsn); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	if d == DialectSQLite {
		// A single writer avoids SQLITE_BUSY between the saver and the sync worker.
		db.SetMaxOpenConns(1)
	}

	return &Repository{db: db, dialect: d}, nil
}

func (r *Repository) Dialect() Dialect {
	return r.dialect
}

func (r *Repository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping is used by the readiness probe.
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

const selectExpenses = `SELECT id, description, amount, paid_by, date, split_type,
	sharath_percent, thejas_percent, category, created_at
	FROM expenses ORDER BY position`

// Load returns the stored snapshot in ledger order.
func (r *Repository) Load(ctx context.Context) ([]core.Expense, error) {
	rows, err := r.db.QueryContext(ctx, selectExpenses)
	if err != nil {
		return nil, fmt.Errorf("query expenses: %w", err)
	}
	defer rows.Close()

	expenses := []core.Expense{}
	for rows.Next() {
		var (
			e                   core.Expense
			paidBy, split, date string
			category, created   string
		)
		if err := rows.Scan(&e.ID, &e.Description, &e.Amount, &paidBy, &date, &split,
			&e.SharathPercent, &e.ThejasPercent, &category, &created); err != nil {
			return nil, fmt.Errorf("scan expense: %w", err)
		}
		e.PaidBy = core.Party(paidBy)
		e.SplitType = core.SplitType(split)
		e.Category = core.Category(category)
		if e.Date, err = core.ParseDate(date); err != nil {
			return nil, fmt.Errorf("expense %s: %w", e.ID, err)
		}
		if e.Timestamp, err = time.Parse(time.RFC3339Nano, created); err != nil {
			return nil, fmt.Errorf("expense %s: parse created_at: %w", e.ID, err)
		}
		expenses = append(expenses, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate expenses: %w", err)
	}

	return expenses, nil
}

// Save implements store.Saver.
func (r *Repository) Save(ctx context.Context, expenses []core.Expense) error {
	_, err := r.SaveSnapshot(ctx, expenses)
	return err
}

// SaveSnapshot replaces the stored ledger with expenses in one transaction and
// returns the new snapshot version.
func (r *Repository) SaveSnapshot(ctx context.Context, expenses []core.Expense) (uint64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM expenses`); err != nil {
		return 0, fmt.Errorf("clear expenses: %w", err)
	}

	insert := r.dialect.rebind(`INSERT INTO expenses (id, position, description, amount, paid_by, date,
		split_type, sharath_percent, thejas_percent, category, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	stmt, err := tx.PrepareContext(ctx, insert)
	if err != nil {
		return 0, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, e := range expenses {
		_, err := stmt.ExecContext(ctx,
			e.ID, i, e.Description, e.Amount, string(e.PaidBy), e.Date.String(),
			string(e.SplitType), e.SharathPercent, e.ThejasPercent, string(e.Category),
			e.Timestamp.UTC().Format(time.RFC3339Nano))
		if err != nil {
			return 0, fmt.Errorf("insert expense %s: %w", e.ID, err)
		}
	}

	bump := r.dialect.rebind(`UPDATE sync_state SET version = version + 1, updated_at = ? WHERE id = 1`)
	if _, err := tx.ExecContext(ctx, bump, time.Now().UTC().Format(time.RFC3339Nano)); err != nil {
		return 0, fmt.Errorf("bump version: %w", err)
	}

	var version int64
	if err := tx.QueryRowContext(ctx, `SELECT version FROM sync_state WHERE id = 1`).Scan(&version); err != nil {
		return 0, fmt.Errorf("read version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit snapshot: %w", err)
	}

	slog.InfoContext(ctx, "Ledger snapshot saved",
		"dialect", r.dialect,
		"count", len(expenses),
		"version", version)

	return uint64(version), nil
}

// SyncState reads the mirror bookkeeping row.
func (r *Repository) SyncState(ctx context.Context) (SyncState, error) {
	var (
		st                     SyncState
		version, synced        int64
		lastError, updatedText string
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT version, synced_version, last_error, updated_at FROM sync_state WHERE id = 1`).
		Scan(&version, &synced, &lastError, &updatedText)
	if err != nil {
		return st, fmt.Errorf("read sync state: %w", err)
	}
	st.Version = uint64(version)
	st.SyncedVersion = uint64(synced)
	st.LastError = lastError
	if updatedText != "" {
		st.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedText)
	}
	return st, nil
}

// MarkSynced records that version has been mirrored. Older versions never
// move the marker backwards.
func (r *Repository) MarkSynced(ctx context.Context, version uint64) error {
	q := r.dialect.rebind(`UPDATE sync_state SET synced_version = ?, last_error = ''
		WHERE id = 1 AND synced_version < ?`)
	if _, err := r.db.ExecContext(ctx, q, int64(version), int64(version)); err != nil {
		return fmt.Errorf("mark synced: %w", err)
	}

	slog.InfoContext(ctx, "Ledger snapshot marked as synced", "version", version)
	return nil
}

// MarkSyncError stores the last mirror failure for diagnostics.
func (r *Repository) MarkSyncError(ctx context.Context, cause error) error {
	q := r.dialect.rebind(`UPDATE sync_state SET last_error = ? WHERE id = 1`)
	if _, err := r.db.ExecContext(ctx, q, cause.Error()); err != nil {
		return fmt.Errorf("mark sync error: %w", err)
	}

	slog.WarnContext(ctx, "Ledger snapshot marked with sync error", "error", cause)
	return nil
}
