package automation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// stepDB is satisfied by *pgxpool.Pool and pgxmock.
type stepDB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const stepColumns = `id::text, run_id, workflow_id, org_id, lead_id, action_index, run_at, attempts, status, last_error, created_at, updated_at`

// PostgresStepStore persists steps in automation_steps. Claims use
// FOR UPDATE SKIP LOCKED so several runners can share the table.
type PostgresStepStore struct {
	db  stepDB
	now func() time.Time
}

func NewPostgresStepStore(db stepDB) *PostgresStepStore {
	if db == nil {
		panic("automation: step store db required")
	}
	return &PostgresStepStore{db: db, now: time.Now}
}

func (s *PostgresStepStore) Save(ctx context.Context, step Step) error {
	now := s.now().UTC()
	status := step.Status
	if status == "" {
		status = StepPending
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO automation_steps (id, run_id, workflow_id, org_id, lead_id, action_index, run_at, attempts, status, last_error, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)
		ON CONFLICT (id) DO UPDATE SET run_at = EXCLUDED.run_at, attempts = EXCLUDED.attempts,
			status = EXCLUDED.status, last_error = EXCLUDED.last_error, updated_at = EXCLUDED.updated_at
	`, step.ID, step.RunID, step.WorkflowID, step.OrgID, step.LeadID, step.ActionIndex, step.RunAt.UTC(), step.Attempts, string(status), step.LastError, now)
	if err != nil {
		return fmt.Errorf("automation: save step: %w", err)
	}
	return nil
}

func (s *PostgresStepStore) Get(ctx context.Context, id string) (Step, error) {
	row := s.db.QueryRow(ctx, `SELECT `+stepColumns+` FROM automation_steps WHERE id::text = $1`, id)
	step, err := scanStep(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Step{}, ErrStepNotFound
	}
	if err != nil {
		return Step{}, fmt.Errorf("automation: get step: %w", err)
	}
	return step, nil
}

func (s *PostgresStepStore) ClaimDue(ctx context.Context, now time.Time, limit int) ([]Step, error) {
	if limit <= 0 {
		limit = 25
	}
	rows, err := s.db.Query(ctx, `
		UPDATE automation_steps SET status = 'running', updated_at = $1
		WHERE id IN (
			SELECT id FROM automation_steps
			WHERE (status = 'pending' AND run_at <= $1)
			   OR (status = 'running' AND updated_at <= $2)
			ORDER BY run_at
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+stepColumns, now.UTC(), now.UTC().Add(-claimTimeout), limit)
	if err != nil {
		return nil, fmt.Errorf("automation: claim steps: %w", err)
	}
	defer rows.Close()

	var steps []Step
	for rows.Next() {
		step, err := scanStep(rows)
		if err != nil {
			return nil, fmt.Errorf("automation: scan step: %w", err)
		}
		steps = append(steps, step)
	}
	return steps, rows.Err()
}

func (s *PostgresStepStore) Complete(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, `UPDATE automation_steps SET status = 'done', updated_at = $2 WHERE id::text = $1`, id, s.now().UTC())
	if err != nil {
		return fmt.Errorf("automation: complete step: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrStepNotFound
	}
	return nil
}

func (s *PostgresStepStore) Release(ctx context.Context, id string, runAt time.Time, lastErr string) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE automation_steps SET status = 'pending', run_at = $2, attempts = attempts + 1, last_error = $3, updated_at = $4
		WHERE id::text = $1
	`, id, runAt.UTC(), lastErr, s.now().UTC())
	if err != nil {
		return fmt.Errorf("automation: release step: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrStepNotFound
	}
	return nil
}

func (s *PostgresStepStore) Fail(ctx context.Context, id string, lastErr string) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE automation_steps SET status = 'failed', last_error = $2, updated_at = $3
		WHERE id::text = $1
	`, id, lastErr, s.now().UTC())
	if err != nil {
		return fmt.Errorf("automation: fail step: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrStepNotFound
	}
	return nil
}

func (s *PostgresStepStore) Cancel(ctx context.Context, id string) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE automation_steps SET status = 'cancelled', updated_at = $2
		WHERE id::text = $1 AND status = 'pending'
	`, id, s.now().UTC())
	if err != nil {
		return false, fmt.Errorf("automation: cancel step: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func scanStep(row pgx.Row) (Step, error) {
	var (
		step   Step
		status string
	)
	if err := row.Scan(&step.ID, &step.RunID, &step.WorkflowID, &step.OrgID, &step.LeadID, &step.ActionIndex,
		&step.RunAt, &step.Attempts, &status, &step.LastError, &step.CreatedAt, &step.UpdatedAt); err != nil {
		return Step{}, err
	}
	step.Status = StepStatus(status)
	return step, nil
}

var _ StepStore = (*PostgresStepStore)(nil)
