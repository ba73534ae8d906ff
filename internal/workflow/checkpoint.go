package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/boternity/boternity/pkg/models"
	"github.com/google/uuid"
)

// Repository persists workflow run and step-log state. internal/store
// provides the SQLite-backed implementation; tests use an in-memory one.
type Repository interface {
	CreateStepLog(ctx context.Context, log *models.WorkflowStepLog) error
	UpdateStepStatus(ctx context.Context, logID uuid.UUID, status models.WorkflowStepStatus, output []byte, stepErr string) error
	GetCompletedStepIDs(ctx context.Context, runID uuid.UUID) ([]string, error)
	GetRun(ctx context.Context, runID uuid.UUID) (*models.WorkflowRun, error)
	UpdateRunStatus(ctx context.Context, runID uuid.UUID, status models.WorkflowRunStatus, runErr string, contextSnapshot []byte) error
}

// CheckpointManager records step-level state transitions for crash
// recovery: every transition is persisted through Repository before the
// runner moves on to the next step.
type CheckpointManager struct {
	repo   Repository
	logger *slog.Logger
}

// NewCheckpointManager builds a CheckpointManager backed by repo. logger
// may be nil.
func NewCheckpointManager(repo Repository, logger *slog.Logger) *CheckpointManager {
	return &CheckpointManager{repo: repo, logger: logger}
}

// Repo exposes the underlying repository.
func (m *CheckpointManager) Repo() Repository { return m.repo }

// StepStart checkpoints a step transitioning to Running, returning the new
// log entry's ID.
func (m *CheckpointManager) StepStart(ctx context.Context, runID uuid.UUID, stepID, stepName string, attempt uint32) (uuid.UUID, error) {
	logID := uuid.New()
	now := time.Now()
	log := &models.WorkflowStepLog{
		ID:             logID,
		RunID:          runID,
		StepID:         stepID,
		StepName:       stepName,
		Status:         models.WorkflowStepRunning,
		Attempt:        attempt,
		IdempotencyKey: fmt.Sprintf("%s-%s-%d", runID, stepID, attempt),
		StartedAt:      &now,
	}
	if err := m.repo.CreateStepLog(ctx, log); err != nil {
		return uuid.Nil, fmt.Errorf("workflow: checkpoint step start: %w", err)
	}
	if m.logger != nil {
		m.logger.Debug("checkpointed step start", "run_id", runID, "step_id", stepID, "log_id", logID)
	}
	return logID, nil
}

// StepComplete checkpoints a step as completed successfully.
func (m *CheckpointManager) StepComplete(ctx context.Context, logID uuid.UUID, output []byte) error {
	if err := m.repo.UpdateStepStatus(ctx, logID, models.WorkflowStepCompleted, output, ""); err != nil {
		return fmt.Errorf("workflow: checkpoint step complete: %w", err)
	}
	if m.logger != nil {
		m.logger.Debug("checkpointed step complete", "log_id", logID)
	}
	return nil
}

// StepFailed checkpoints a step as failed.
func (m *CheckpointManager) StepFailed(ctx context.Context, logID uuid.UUID, stepErr string) error {
	if err := m.repo.UpdateStepStatus(ctx, logID, models.WorkflowStepFailed, nil, stepErr); err != nil {
		return fmt.Errorf("workflow: checkpoint step failed: %w", err)
	}
	if m.logger != nil {
		m.logger.Debug("checkpointed step failed", "log_id", logID, "error", stepErr)
	}
	return nil
}

// StepSkipped checkpoints a step as skipped because its condition was not
// met, recording the entry directly (no prior Running transition).
func (m *CheckpointManager) StepSkipped(ctx context.Context, runID uuid.UUID, stepID, stepName string) error {
	now := time.Now()
	log := &models.WorkflowStepLog{
		ID:          uuid.New(),
		RunID:       runID,
		StepID:      stepID,
		StepName:    stepName,
		Status:      models.WorkflowStepSkipped,
		Attempt:     0,
		StartedAt:   &now,
		CompletedAt: &now,
	}
	if err := m.repo.CreateStepLog(ctx, log); err != nil {
		return fmt.Errorf("workflow: checkpoint step skipped: %w", err)
	}
	if m.logger != nil {
		m.logger.Debug("checkpointed step skipped", "run_id", runID, "step_id", stepID)
	}
	return nil
}

// StepWaitingApproval checkpoints a step as paused pending human approval.
func (m *CheckpointManager) StepWaitingApproval(ctx context.Context, logID uuid.UUID) error {
	if err := m.repo.UpdateStepStatus(ctx, logID, models.WorkflowStepWaitingApproval, nil, ""); err != nil {
		return fmt.Errorf("workflow: checkpoint step waiting approval: %w", err)
	}
	if m.logger != nil {
		m.logger.Debug("checkpointed step waiting approval", "log_id", logID)
	}
	return nil
}

// RunStatus updates the overall run status and optionally a context
// snapshot for resumption.
func (m *CheckpointManager) RunStatus(ctx context.Context, runID uuid.UUID, status models.WorkflowRunStatus, runErr string, contextSnapshot []byte) error {
	if err := m.repo.UpdateRunStatus(ctx, runID, status, runErr, contextSnapshot); err != nil {
		return fmt.Errorf("workflow: checkpoint run status: %w", err)
	}
	if m.logger != nil {
		m.logger.Debug("checkpointed run status", "run_id", runID, "status", status)
	}
	return nil
}

// CompletedSteps returns the step IDs that completed successfully in a
// run, used during crash recovery to determine which steps to skip.
func (m *CheckpointManager) CompletedSteps(ctx context.Context, runID uuid.UUID) ([]string, error) {
	ids, err := m.repo.GetCompletedStepIDs(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("workflow: get completed steps: %w", err)
	}
	return ids, nil
}

// RestoreContext loads the persisted context snapshot for a run.
func (m *CheckpointManager) RestoreContext(ctx context.Context, runID uuid.UUID) (*Context, error) {
	run, err := m.repo.GetRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("workflow: restore context: %w", err)
	}
	if run == nil {
		return nil, fmt.Errorf("workflow: restore context: %w: %s", ErrRunNotFound, runID)
	}
	return ContextFromJSON(run.Context)
}
