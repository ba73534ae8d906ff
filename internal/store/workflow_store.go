package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/boternity/boternity/internal/workflow"
	"github.com/boternity/boternity/pkg/models"
)

// WorkflowStore implements workflow.Repository, the persistence interface
// internal/workflow.CheckpointManager records step and run transitions
// through for crash recovery.
type WorkflowStore struct {
	db *DB
}

// NewWorkflowStore builds a WorkflowStore over an already-opened DB.
func NewWorkflowStore(db *DB) *WorkflowStore {
	return &WorkflowStore{db: db}
}

var _ workflow.Repository = (*WorkflowStore)(nil)

func (s *WorkflowStore) CreateStepLog(ctx context.Context, log *models.WorkflowStepLog) error {
	if log.ID == uuid.Nil {
		log.ID = uuid.New()
	}
	_, err := s.db.conn.ExecContext(ctx, `
		INSERT INTO workflow_step_logs (
			id, run_id, step_id, step_name, status, attempt,
			idempotency_key, input, output, error, started_at, completed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		log.ID.String(), log.RunID.String(), log.StepID, log.StepName, string(log.Status),
		log.Attempt, log.IdempotencyKey, log.Input, log.Output, log.Error,
		log.StartedAt, log.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("store: create step log: %w", err)
	}
	return nil
}

func (s *WorkflowStore) UpdateStepStatus(ctx context.Context, logID uuid.UUID, status models.WorkflowStepStatus, output []byte, stepErr string) error {
	_, err := s.db.conn.ExecContext(ctx, `
		UPDATE workflow_step_logs SET status = ?, output = ?, error = ?, completed_at = CURRENT_TIMESTAMP
		WHERE id = ?`,
		string(status), output, stepErr, logID.String(),
	)
	if err != nil {
		return fmt.Errorf("store: update step status: %w", err)
	}
	return nil
}

func (s *WorkflowStore) GetCompletedStepIDs(ctx context.Context, runID uuid.UUID) ([]string, error) {
	rows, err := s.db.conn.QueryContext(ctx, `
		SELECT step_id FROM workflow_step_logs WHERE run_id = ? AND status = ?`,
		runID.String(), string(models.WorkflowStepCompleted),
	)
	if err != nil {
		return nil, fmt.Errorf("store: get completed steps: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("store: scan completed step id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *WorkflowStore) GetRun(ctx context.Context, runID uuid.UUID) (*models.WorkflowRun, error) {
	row := s.db.conn.QueryRowContext(ctx, `
		SELECT id, workflow_id, workflow_name, status, trigger_type, context, error, started_at, completed_at
		FROM workflow_runs WHERE id = ?`, runID.String())

	var run models.WorkflowRun
	var id, workflowID, status string
	var completedAt sql.NullTime

	err := row.Scan(&id, &workflowID, &run.WorkflowName, &status, &run.TriggerType,
		&run.Context, &run.Error, &run.StartedAt, &completedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get run: %w", err)
	}
	run.ID, err = uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("store: parse run id: %w", err)
	}
	run.WorkflowID, err = uuid.Parse(workflowID)
	if err != nil {
		return nil, fmt.Errorf("store: parse workflow id: %w", err)
	}
	run.Status = models.WorkflowRunStatus(status)
	if completedAt.Valid {
		run.CompletedAt = &completedAt.Time
	}
	return &run, nil
}

func (s *WorkflowStore) UpdateRunStatus(ctx context.Context, runID uuid.UUID, status models.WorkflowRunStatus, runErr string, contextSnapshot []byte) error {
	return s.db.withTx(func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE workflow_runs SET status = ?, error = ?, context = ?, completed_at = CURRENT_TIMESTAMP
			WHERE id = ?`, string(status), runErr, contextSnapshot, runID.String())
		if err != nil {
			return fmt.Errorf("store: update run status: %w", err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			return nil
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO workflow_runs (id, workflow_id, workflow_name, status, trigger_type, context, error, started_at)
			VALUES (?, ?, '', ?, '', ?, ?, CURRENT_TIMESTAMP)`,
			runID.String(), runID.String(), string(status), contextSnapshot, runErr,
		)
		if err != nil {
			return fmt.Errorf("store: insert run on first status update: %w", err)
		}
		return nil
	})
}

// CreateRun inserts a new workflow run row, used by the caller that starts
// a workflow before the first checkpoint call lands (UpdateRunStatus alone
// cannot carry WorkflowID/WorkflowName since the Repository interface
// doesn't plumb them through).
func (s *WorkflowStore) CreateRun(ctx context.Context, run *models.WorkflowRun) error {
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	_, err := s.db.conn.ExecContext(ctx, `
		INSERT INTO workflow_runs (id, workflow_id, workflow_name, status, trigger_type, context, error, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID.String(), run.WorkflowID.String(), run.WorkflowName, string(run.Status),
		run.TriggerType, run.Context, run.Error, run.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("store: create run: %w", err)
	}
	return nil
}
