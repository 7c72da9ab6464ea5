// Package persistence durably mirrors plans, steps, and the execution
// log audit trail into SQLite. The in-memory structures stay the source
// of truth during a run; the store is the record that survives it.
package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/voxlab/agentcore/internal/execlog"
	"github.com/voxlab/agentcore/internal/plan"
)

// Store defines the persistence interface for plans and audit entries.
type Store interface {
	// Plan lifecycle
	SavePlan(ctx context.Context, p *plan.Plan) error
	UpdateStepStatus(ctx context.Context, planID string, step *plan.Step) error
	UpdatePlanStatus(ctx context.Context, planID string, status plan.Status) error
	GetPlan(ctx context.Context, planID string) (*plan.Plan, error)

	// Audit trail
	AppendLogEntry(ctx context.Context, e execlog.Entry) error
	ListLogEntries(ctx context.Context, planID string, fromSeq int) ([]execlog.Entry, error)
	Sink(ctx context.Context) execlog.Sink

	// Lifecycle
	Close() error
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite-backed store at the given path.
// Creates parent directories if needed. Enables WAL mode, foreign keys,
// and a busy timeout.
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create parent directories: %w", err)
	}

	// Note: modernc.org/sqlite doesn't support _foreign_keys in the
	// connection string, so it is enabled via PRAGMA below.
	connStr := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL", dbPath)
	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	// One for primary queries, one for subqueries (prevents deadlock in
	// GetPlan's dependency lookups).
	db.SetMaxOpenConns(2)

	store := &SQLiteStore{db: db}
	if err := store.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// Sink adapts the store into an execution log sink. Append failures are
// logged rows lost to the database only; the in-memory log keeps the
// authoritative sequence.
func (s *SQLiteStore) Sink(ctx context.Context) execlog.Sink {
	return func(e execlog.Entry) {
		_ = s.AppendLogEntry(ctx, e)
	}
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
