package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/voxlab/agentcore/internal/agent"
	"github.com/voxlab/agentcore/internal/plan"
)

// SavePlan saves the plan and all its steps and dependency edges.
// Uses ON CONFLICT so re-saves are idempotent.
func (s *SQLiteStore) SavePlan(ctx context.Context, p *plan.Plan) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO plans (id, status, created_at, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			updated_at = CURRENT_TIMESTAMP
	`, p.ID, p.Status.String(), p.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert plan: %w", err)
	}

	for i, step := range p.Steps {
		input, err := json.Marshal(step.Input)
		if err != nil {
			return fmt.Errorf("failed to encode input for step %s: %w", step.ID, err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO steps (id, plan_id, position, agent_type, input, status, attempts, worker_idx, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
			ON CONFLICT(id) DO UPDATE SET
				status = excluded.status,
				attempts = excluded.attempts,
				worker_idx = excluded.worker_idx,
				updated_at = CURRENT_TIMESTAMP
		`, step.ID, p.ID, i, string(step.Type), string(input), step.Status.String(), step.Attempts, step.WorkerIdx)
		if err != nil {
			return fmt.Errorf("failed to upsert step %s: %w", step.ID, err)
		}
	}

	// Dependency edges after all steps exist, to satisfy foreign keys.
	for _, step := range p.Steps {
		for _, depID := range step.DependsOn {
			_, err = tx.ExecContext(ctx, `
				INSERT INTO step_dependencies (step_id, depends_on_id)
				VALUES (?, ?)
				ON CONFLICT(step_id, depends_on_id) DO NOTHING
			`, step.ID, depID)
			if err != nil {
				return fmt.Errorf("failed to insert dependency %s -> %s: %w", step.ID, depID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// UpdateStepStatus records a step's current status, attempts, and
// outcome.
func (s *SQLiteStore) UpdateStepStatus(ctx context.Context, planID string, step *plan.Step) error {
	var success sql.NullBool
	var kind, detail, payload sql.NullString
	if step.Outcome != nil {
		success = sql.NullBool{Bool: step.Outcome.Success, Valid: true}
		kind = sql.NullString{String: step.Outcome.Kind.String(), Valid: true}
		detail = sql.NullString{String: step.Outcome.Detail, Valid: true}
		payload = sql.NullString{String: step.Outcome.Payload, Valid: true}
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE steps
		SET status = ?, attempts = ?, worker_idx = ?,
			outcome_success = ?, outcome_kind = ?, outcome_detail = ?, outcome_payload = ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND plan_id = ?
	`, step.Status.String(), step.Attempts, step.WorkerIdx, success, kind, detail, payload, step.ID, planID)
	if err != nil {
		return fmt.Errorf("failed to update step %s: %w", step.ID, err)
	}

	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return fmt.Errorf("step %s not found in plan %s", step.ID, planID)
	}
	return nil
}

// UpdatePlanStatus records a plan's current status.
func (s *SQLiteStore) UpdatePlanStatus(ctx context.Context, planID string, status plan.Status) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE plans SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?
	`, status.String(), planID)
	if err != nil {
		return fmt.Errorf("failed to update plan %s: %w", planID, err)
	}
	return nil
}

// GetPlan reloads a plan with its steps in position order.
func (s *SQLiteStore) GetPlan(ctx context.Context, planID string) (*plan.Plan, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var p plan.Plan
	var status string
	var createdAt time.Time
	err := s.db.QueryRowContext(ctx, `
		SELECT id, status, created_at FROM plans WHERE id = ?
	`, planID).Scan(&p.ID, &status, &createdAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("plan %s not found", planID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query plan: %w", err)
	}
	p.CreatedAt = createdAt
	p.Status = parsePlanStatus(status)

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, agent_type, input, status, attempts, worker_idx,
			outcome_success, outcome_kind, outcome_detail, outcome_payload
		FROM steps WHERE plan_id = ? ORDER BY position ASC
	`, planID)
	if err != nil {
		return nil, fmt.Errorf("failed to query steps: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		step, err := scanStep(rows)
		if err != nil {
			return nil, err
		}
		p.Steps = append(p.Steps, step)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating steps: %w", err)
	}

	for _, step := range p.Steps {
		depRows, err := s.db.QueryContext(ctx, `
			SELECT depends_on_id FROM step_dependencies WHERE step_id = ?
		`, step.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to query dependencies: %w", err)
		}
		for depRows.Next() {
			var depID string
			if err := depRows.Scan(&depID); err != nil {
				depRows.Close()
				return nil, fmt.Errorf("failed to scan dependency: %w", err)
			}
			step.DependsOn = append(step.DependsOn, depID)
		}
		if err := depRows.Err(); err != nil {
			depRows.Close()
			return nil, fmt.Errorf("error iterating dependencies: %w", err)
		}
		depRows.Close()
	}

	return &p, nil
}

// scanStep reads one step row.
func scanStep(rows *sql.Rows) (*plan.Step, error) {
	var step plan.Step
	var agentType, inputJSON, status string
	var success sql.NullBool
	var kind, detail, payload sql.NullString

	if err := rows.Scan(&step.ID, &agentType, &inputJSON, &status, &step.Attempts, &step.WorkerIdx,
		&success, &kind, &detail, &payload); err != nil {
		return nil, fmt.Errorf("failed to scan step: %w", err)
	}

	step.Type = agent.Type(agentType)
	step.Status = parseStepStatus(status)
	if inputJSON != "" {
		if err := json.Unmarshal([]byte(inputJSON), &step.Input); err != nil {
			return nil, fmt.Errorf("failed to decode input for step %s: %w", step.ID, err)
		}
	}
	if success.Valid {
		step.Outcome = &agent.Outcome{
			Success: success.Bool,
			Kind:    parseErrorKind(kind.String),
			Detail:  detail.String,
			Payload: payload.String,
		}
	}
	return &step, nil
}

func parsePlanStatus(s string) plan.Status {
	for _, st := range []plan.Status{plan.StatusPending, plan.StatusRunning, plan.StatusCompleted, plan.StatusFailed, plan.StatusPartiallyFailed} {
		if st.String() == s {
			return st
		}
	}
	return plan.StatusPending
}

func parseStepStatus(s string) plan.StepStatus {
	for _, st := range []plan.StepStatus{plan.StepPending, plan.StepDispatched, plan.StepRetryPending,
		plan.StepReassignPending, plan.StepSucceeded, plan.StepFailed, plan.StepTerminallyFailed, plan.StepSkipped} {
		if st.String() == s {
			return st
		}
	}
	return plan.StepPending
}

func parseErrorKind(s string) agent.ErrorKind {
	for _, k := range []agent.ErrorKind{agent.KindNone, agent.KindTimeout, agent.KindUnavailable,
		agent.KindInvalidInput, agent.KindUnknownAgent, agent.KindRejected, agent.KindCancelled, agent.KindInternal} {
		if k.String() == s {
			return k
		}
	}
	return agent.KindNone
}
