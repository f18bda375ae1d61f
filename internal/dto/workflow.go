package dto

import "encoding/json"

// ExecuteWorkflowRequest starts one automation workflow.
type ExecuteWorkflowRequest struct {
	WorkflowType string          `json:"workflowType" validate:"required"`
	TriggerData  json.RawMessage `json:"triggerData" validate:"required"`
	CreatedBy    string          `json:"createdBy"`
}

// WorkflowQuery filters workflow listings.
type WorkflowQuery struct {
	Type      string `form:"workflowType"`
	Status    string `form:"status"`
	CreatedBy string `form:"createdBy"`
	Limit     int    `form:"limit"`
	Offset    int    `form:"offset"`
}

// StudentSeed is the minimal payload to register a student mid-workflow.
type StudentSeed struct {
	Name string `json:"name"`
	Age  int    `json:"age"`
}

// StudentCreationTrigger feeds the student_creation workflow. Either an
// existing studentId or the seed data for a new record is required.
type StudentCreationTrigger struct {
	StudentID   string       `json:"studentId"`
	StudentData *StudentSeed `json:"studentData"`
}

// TeacherAssignmentTrigger feeds the teacher_assignment workflow.
type TeacherAssignmentTrigger struct {
	TeacherID string `json:"teacherId"`
}

// ClassConfigurationTrigger feeds the class_configuration workflow.
type ClassConfigurationTrigger struct {
	ClassID string `json:"classId"`
}
