package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/voxlab/agentcore/internal/execlog"
)

// AppendLogEntry mirrors one execution log entry. Entries are
// append-only: an existing (plan_id, seq) row is never overwritten.
func (s *SQLiteStore) AppendLogEntry(ctx context.Context, e execlog.Entry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO log_entries (plan_id, seq, step_id, timestamp, event, detail)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(plan_id, seq) DO NOTHING
	`, e.PlanID, e.Seq, e.StepID, e.Time, string(e.Event), e.Detail)
	if err != nil {
		return fmt.Errorf("failed to append log entry: %w", err)
	}
	return nil
}

// ListLogEntries returns a plan's audit trail from the given sequence
// number, in append order. Returns an empty slice (not nil) when there
// are no entries.
func (s *SQLiteStore) ListLogEntries(ctx context.Context, planID string, fromSeq int) ([]execlog.Entry, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT plan_id, seq, step_id, timestamp, event, detail
		FROM log_entries
		WHERE plan_id = ? AND seq >= ?
		ORDER BY seq ASC
	`, planID, fromSeq)
	if err != nil {
		return nil, fmt.Errorf("failed to query log entries: %w", err)
	}
	defer rows.Close()

	entries := []execlog.Entry{}
	for rows.Next() {
		var e execlog.Entry
		var event string
		if err := rows.Scan(&e.PlanID, &e.Seq, &e.StepID, &e.Time, &event, &e.Detail); err != nil {
			return nil, fmt.Errorf("failed to scan log entry: %w", err)
		}
		e.Event = execlog.Event(event)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating log entries: %w", err)
	}

	return entries, nil
}
