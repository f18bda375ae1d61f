package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/studiva/automation-api/internal/models"
)

// WorkflowRepository persists workflow execution records.
type WorkflowRepository struct {
	db *sqlx.DB
}

// NewWorkflowRepository constructs a WorkflowRepository.
func NewWorkflowRepository(db *sqlx.DB) *WorkflowRepository {
	return &WorkflowRepository{db: db}
}

const workflowColumns = `id, workflow_type, trigger_data, status, steps_completed, result_data,
        error_message, created_by, started_at, completed_at`

// Create inserts a new execution in the running state.
func (r *WorkflowRepository) Create(ctx context.Context, execution *models.WorkflowExecution) error {
	if execution.ID == "" {
		execution.ID = uuid.NewString()
	}
	if execution.StartedAt.IsZero() {
		execution.StartedAt = time.Now().UTC()
	}
	if execution.Status == "" {
		execution.Status = models.WorkflowStatusRunning
	}
	if execution.TriggerData == nil {
		execution.TriggerData = []byte("{}")
	}
	if execution.StepsCompleted == nil {
		execution.StepsCompleted = []string{}
	}
	const query = `INSERT INTO workflow_executions (id, workflow_type, trigger_data, status, steps_completed,
        result_data, error_message, created_by, started_at, completed_at)
        VALUES (:id, :workflow_type, :trigger_data, :status, :steps_completed, :result_data,
        :error_message, :created_by, :started_at, :completed_at)`
	if _, err := r.db.NamedExecContext(ctx, query, execution); err != nil {
		return fmt.Errorf("create workflow execution: %w", err)
	}
	return nil
}

// GetByID fetches one workflow execution.
func (r *WorkflowRepository) GetByID(ctx context.Context, id string) (*models.WorkflowExecution, error) {
	query := fmt.Sprintf(`SELECT %s FROM workflow_executions WHERE id = $1`, workflowColumns)
	var execution models.WorkflowExecution
	if err := r.db.GetContext(ctx, &execution, query, id); err != nil {
		return nil, err
	}
	return &execution, nil
}

// List returns executions matching the filter, newest first.
func (r *WorkflowRepository) List(ctx context.Context, filter models.WorkflowFilter) ([]models.WorkflowExecution, error) {
	conditions := []string{"1=1"}
	args := []interface{}{}

	if filter.Type != "" {
		conditions = append(conditions, fmt.Sprintf("workflow_type = $%d", len(args)+1))
		args = append(args, filter.Type)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.CreatedBy != "" {
		conditions = append(conditions, fmt.Sprintf("created_by = $%d", len(args)+1))
		args = append(args, filter.CreatedBy)
	}

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`SELECT %s FROM workflow_executions WHERE %s
        ORDER BY started_at DESC LIMIT %d OFFSET %d`,
		workflowColumns, strings.Join(conditions, " AND "), limit, offset)

	var executions []models.WorkflowExecution
	if err := r.db.SelectContext(ctx, &executions, query, args...); err != nil {
		return nil, fmt.Errorf("list workflow executions: %w", err)
	}
	return executions, nil
}

// FinalizeParams carries the terminal state of an execution. Steps are
// written once here, not incrementally during the run.
type FinalizeParams struct {
	ID             string
	Status         models.WorkflowStatus
	StepsCompleted []string
	ResultData     []byte
	ErrorMessage   *string
	CompletedAt    time.Time
}

// Finalize writes the terminal status, completed steps and result of a
// running execution.
func (r *WorkflowRepository) Finalize(ctx context.Context, params FinalizeParams) error {
	const query = `UPDATE workflow_executions
        SET status = $2, steps_completed = $3, result_data = $4, error_message = $5, completed_at = $6
        WHERE id = $1 AND status = $7`
	result, err := r.db.ExecContext(ctx, query,
		params.ID, params.Status, pq.StringArray(params.StepsCompleted), params.ResultData,
		params.ErrorMessage, params.CompletedAt, models.WorkflowStatusRunning)
	if err != nil {
		return fmt.Errorf("finalize workflow execution: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// MarkRolledBack moves a failed execution to rolled_back, appending the
// marker to the stored error message.
func (r *WorkflowRepository) MarkRolledBack(ctx context.Context, id, marker string) error {
	const query = `UPDATE workflow_executions
        SET status = $2, error_message = COALESCE(error_message, '') || $3
        WHERE id = $1 AND status = $4`
	result, err := r.db.ExecContext(ctx, query, id, models.WorkflowStatusRolledBack, marker, models.WorkflowStatusFailed)
	if err != nil {
		return fmt.Errorf("mark workflow rolled back: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
