package persistence

import (
	"context"
)

// initSchema creates all required tables if they don't exist.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS plans (
		id TEXT PRIMARY KEY,
		status TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS steps (
		id TEXT PRIMARY KEY,
		plan_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		agent_type TEXT NOT NULL,
		input TEXT,
		status TEXT NOT NULL,
		attempts INTEGER NOT NULL DEFAULT 0,
		worker_idx INTEGER NOT NULL DEFAULT 0,
		outcome_success INTEGER,
		outcome_kind TEXT,
		outcome_detail TEXT,
		outcome_payload TEXT,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (plan_id) REFERENCES plans(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_steps_plan_id ON steps(plan_id);

	CREATE TABLE IF NOT EXISTS step_dependencies (
		step_id TEXT NOT NULL,
		depends_on_id TEXT NOT NULL,
		PRIMARY KEY (step_id, depends_on_id),
		FOREIGN KEY (step_id) REFERENCES steps(id) ON DELETE CASCADE,
		FOREIGN KEY (depends_on_id) REFERENCES steps(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS log_entries (
		plan_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		step_id TEXT,
		timestamp DATETIME NOT NULL,
		event TEXT NOT NULL,
		detail TEXT,
		PRIMARY KEY (plan_id, seq),
		FOREIGN KEY (plan_id) REFERENCES plans(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_log_entries_plan_seq
		ON log_entries(plan_id, seq);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}
