package models

import (
	"fmt"
	"time"

	"github.com/jmoiron/sqlx/types"
	"github.com/lib/pq"
)

// WorkflowType enumerates the supported automation workflows.
type WorkflowType string

const (
	WorkflowStudentCreation    WorkflowType = "student_creation"
	WorkflowTeacherAssignment  WorkflowType = "teacher_assignment"
	WorkflowClassConfiguration WorkflowType = "class_configuration"
)

// ParseWorkflowType validates a raw workflow type string.
func ParseWorkflowType(raw string) (WorkflowType, error) {
	switch WorkflowType(raw) {
	case WorkflowStudentCreation, WorkflowTeacherAssignment, WorkflowClassConfiguration:
		return WorkflowType(raw), nil
	default:
		return "", fmt.Errorf("unknown workflow type %q", raw)
	}
}

// WorkflowStatus captures execution states. Running transitions to
// completed or failed; failed may transition to rolled_back. All other
// states are terminal.
type WorkflowStatus string

const (
	WorkflowStatusRunning    WorkflowStatus = "running"
	WorkflowStatusCompleted  WorkflowStatus = "completed"
	WorkflowStatusFailed     WorkflowStatus = "failed"
	WorkflowStatusRolledBack WorkflowStatus = "rolled_back"
)

// WorkflowExecution records one synchronous automation run for audit.
type WorkflowExecution struct {
	ID             string         `db:"id" json:"id"`
	Type           WorkflowType   `db:"workflow_type" json:"workflow_type"`
	TriggerData    types.JSONText `db:"trigger_data" json:"trigger_data"`
	Status         WorkflowStatus `db:"status" json:"status"`
	StepsCompleted pq.StringArray `db:"steps_completed" json:"steps_completed"`
	ResultData     types.JSONText `db:"result_data" json:"result_data,omitempty"`
	ErrorMessage   *string        `db:"error_message" json:"error_message,omitempty"`
	CreatedBy      string         `db:"created_by" json:"created_by"`
	StartedAt      time.Time      `db:"started_at" json:"started_at"`
	CompletedAt    *time.Time     `db:"completed_at" json:"completed_at,omitempty"`
}

// WorkflowFilter constrains workflow listing queries.
type WorkflowFilter struct {
	Type      WorkflowType
	Status    WorkflowStatus
	CreatedBy string
	Limit     int
	Offset    int
}
