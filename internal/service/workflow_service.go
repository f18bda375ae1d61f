package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx/types"
	"go.uber.org/zap"

	"github.com/studiva/automation-api/internal/dto"
	"github.com/studiva/automation-api/internal/models"
	"github.com/studiva/automation-api/internal/repository"
	appErrors "github.com/studiva/automation-api/pkg/errors"
)

// Step names per workflow, in execution order.
var workflowSteps = map[models.WorkflowType][]string{
	models.WorkflowStudentCreation:    {"suggesting_class", "finding_parents", "recommending_subjects", "setting_up_communication"},
	models.WorkflowTeacherAssignment:  {"matching_subject_classes", "checking_capacity", "balancing_workload", "confirming_assignments"},
	models.WorkflowClassConfiguration: {"validating_capacity", "attaching_subjects", "recruiting_teachers", "publishing_roster"},
}

const rollbackMarker = "; rolled back (no compensation performed)"

type workflowStore interface {
	Create(ctx context.Context, execution *models.WorkflowExecution) error
	GetByID(ctx context.Context, id string) (*models.WorkflowExecution, error)
	List(ctx context.Context, filter models.WorkflowFilter) ([]models.WorkflowExecution, error)
	Finalize(ctx context.Context, params repository.FinalizeParams) error
	MarkRolledBack(ctx context.Context, id, marker string) error
}

type workflowStudentWriter interface {
	Create(ctx context.Context, student *models.Student) error
}

type workflowClassReader interface {
	ListByIDs(ctx context.Context, ids []string) ([]models.ClassDetail, error)
}

type workflowSubjectReader interface {
	FindByID(ctx context.Context, id string) (*models.Subject, error)
}

// WorkflowService orchestrates the multi-step automation workflows.
// Workflows run synchronously; each execution is persisted when it
// starts and finalized exactly once with its completed steps.
type WorkflowService struct {
	executions workflowStore
	analyzer   *AnalyzerService
	entities   *EntityService
	students   workflowStudentWriter
	classes    workflowClassReader
	subjects   workflowSubjectReader
	validator  *validator.Validate

	audit   *AuditService
	metrics *MetricsService
	logger  *zap.Logger
}

// WorkflowServiceOption customises the workflow service.
type WorkflowServiceOption func(*WorkflowService)

// WithWorkflowAudit wires the audit trail.
func WithWorkflowAudit(audit *AuditService) WorkflowServiceOption {
	return func(s *WorkflowService) { s.audit = audit }
}

// WithWorkflowMetrics wires execution duration metrics.
func WithWorkflowMetrics(metrics *MetricsService) WorkflowServiceOption {
	return func(s *WorkflowService) { s.metrics = metrics }
}

// WithWorkflowSubjects wires the subject catalogue so step results can
// carry subject names alongside IDs.
func WithWorkflowSubjects(subjects workflowSubjectReader) WorkflowServiceOption {
	return func(s *WorkflowService) { s.subjects = subjects }
}

// NewWorkflowService constructs a WorkflowService.
func NewWorkflowService(
	executions workflowStore,
	analyzer *AnalyzerService,
	entities *EntityService,
	students workflowStudentWriter,
	classes workflowClassReader,
	validate *validator.Validate,
	logger *zap.Logger,
	opts ...WorkflowServiceOption,
) *WorkflowService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &WorkflowService{
		executions: executions,
		analyzer:   analyzer,
		entities:   entities,
		students:   students,
		classes:    classes,
		validator:  validate,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// workflowStep is one named unit of work. Steps mutate the shared
// results map; the first error aborts the run.
type workflowStep struct {
	name string
	run  func(ctx context.Context, results map[string]interface{}) error
}

// Execute runs one workflow synchronously and returns its persisted
// terminal record.
func (s *WorkflowService) Execute(ctx context.Context, req *dto.ExecuteWorkflowRequest) (*models.WorkflowExecution, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid workflow payload")
	}
	workflowType, err := models.ParseWorkflowType(req.WorkflowType)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrUnknownType, err.Error())
	}

	steps, err := s.buildSteps(ctx, workflowType, req.TriggerData)
	if err != nil {
		return nil, err
	}

	execution := &models.WorkflowExecution{
		Type:        workflowType,
		TriggerData: types.JSONText(req.TriggerData),
		Status:      models.WorkflowStatusRunning,
		CreatedBy:   req.CreatedBy,
		StartedAt:   time.Now().UTC(),
	}
	if err := s.executions.Create(ctx, execution); err != nil {
		return nil, fmt.Errorf("record workflow start: %w", err)
	}

	completed, results, runErr := s.runSteps(ctx, steps)

	status := models.WorkflowStatusCompleted
	var errorMessage *string
	if runErr != nil {
		status = models.WorkflowStatusFailed
		msg := runErr.Error()
		errorMessage = &msg
	}

	resultData, err := json.Marshal(results)
	if err != nil {
		resultData = []byte("{}")
	}
	completedAt := time.Now().UTC()
	if err := s.executions.Finalize(ctx, repository.FinalizeParams{
		ID:             execution.ID,
		Status:         status,
		StepsCompleted: completed,
		ResultData:     resultData,
		ErrorMessage:   errorMessage,
		CompletedAt:    completedAt,
	}); err != nil {
		return nil, fmt.Errorf("finalize workflow: %w", err)
	}

	if s.metrics != nil {
		s.metrics.RecordWorkflow(string(workflowType), string(status), completedAt.Sub(execution.StartedAt))
	}
	s.recordWorkflow(execution.ID, models.AuditActionWorkflowExecute, req.CreatedBy, map[string]interface{}{
		"workflow_type":   workflowType,
		"status":          status,
		"steps_completed": completed,
	})
	s.logger.Info("workflow finished",
		zap.String("workflow_id", execution.ID),
		zap.String("workflow_type", string(workflowType)),
		zap.String("status", string(status)),
		zap.Strings("steps_completed", completed),
	)

	return s.GetStatus(ctx, execution.ID)
}

// GetStatus fetches one execution record.
func (s *WorkflowService) GetStatus(ctx context.Context, id string) (*models.WorkflowExecution, error) {
	execution, err := s.executions.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "workflow execution not found")
		}
		return nil, fmt.Errorf("get workflow execution: %w", err)
	}
	return execution, nil
}

// List returns executions matching the query.
func (s *WorkflowService) List(ctx context.Context, query dto.WorkflowQuery) ([]models.WorkflowExecution, error) {
	filter := models.WorkflowFilter{
		CreatedBy: query.CreatedBy,
		Limit:     query.Limit,
		Offset:    query.Offset,
	}
	if query.Type != "" {
		workflowType, err := models.ParseWorkflowType(query.Type)
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrUnknownType, err.Error())
		}
		filter.Type = workflowType
	}
	if query.Status != "" {
		switch status := models.WorkflowStatus(query.Status); status {
		case models.WorkflowStatusRunning, models.WorkflowStatusCompleted, models.WorkflowStatusFailed, models.WorkflowStatusRolledBack:
			filter.Status = status
		default:
			return nil, appErrors.Clone(appErrors.ErrUnknownType, fmt.Sprintf("unknown workflow status %q", query.Status))
		}
	}
	return s.executions.List(ctx, filter)
}

// Rollback moves a failed execution to rolled_back. No compensation is
// performed: entity mutations made by completed steps stand.
func (s *WorkflowService) Rollback(ctx context.Context, id string, actorID *string) (*models.WorkflowExecution, error) {
	execution, err := s.GetStatus(ctx, id)
	if err != nil {
		return nil, err
	}
	if execution.Status != models.WorkflowStatusFailed {
		return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("cannot roll back a workflow in status %q", execution.Status))
	}
	if err := s.executions.MarkRolledBack(ctx, id, rollbackMarker); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "workflow is no longer in a failed state")
		}
		return nil, fmt.Errorf("roll back workflow: %w", err)
	}

	s.recordWorkflow(id, models.AuditActionWorkflowRollback, derefOr(actorID, "system"), map[string]interface{}{
		"previous_status": models.WorkflowStatusFailed,
		"new_status":      models.WorkflowStatusRolledBack,
	})
	return s.GetStatus(ctx, id)
}

func (s *WorkflowService) runSteps(ctx context.Context, steps []workflowStep) ([]string, map[string]interface{}, error) {
	completed := []string{}
	results := map[string]interface{}{}
	for _, step := range steps {
		if err := step.run(ctx, results); err != nil {
			return completed, results, fmt.Errorf("step %s: %w", step.name, err)
		}
		completed = append(completed, step.name)
	}
	return completed, results, nil
}

func (s *WorkflowService) buildSteps(ctx context.Context, workflowType models.WorkflowType, trigger json.RawMessage) ([]workflowStep, error) {
	switch workflowType {
	case models.WorkflowStudentCreation:
		return s.studentCreationSteps(ctx, trigger)
	case models.WorkflowTeacherAssignment:
		return s.teacherAssignmentSteps(trigger)
	case models.WorkflowClassConfiguration:
		return s.classConfigurationSteps(trigger)
	default:
		return nil, appErrors.Clone(appErrors.ErrUnknownType, fmt.Sprintf("unknown workflow type %q", workflowType))
	}
}

func (s *WorkflowService) studentCreationSteps(ctx context.Context, raw json.RawMessage) ([]workflowStep, error) {
	var trigger dto.StudentCreationTrigger
	if err := json.Unmarshal(raw, &trigger); err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid student_creation trigger data")
	}

	studentID := trigger.StudentID
	if studentID == "" {
		if trigger.StudentData == nil || trigger.StudentData.Name == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "studentId or studentData is required")
		}
		student := &models.Student{
			FullName: trigger.StudentData.Name,
			Age:      trigger.StudentData.Age,
			Grade:    trigger.StudentData.Age/6 + 1,
			Active:   true,
		}
		if err := s.students.Create(ctx, student); err != nil {
			return nil, fmt.Errorf("create student: %w", err)
		}
		studentID = student.ID
	}

	names := workflowSteps[models.WorkflowStudentCreation]
	return []workflowStep{
		{name: names[0], run: func(ctx context.Context, results map[string]interface{}) error {
			analysis, err := s.analyzer.Analyze(ctx, models.EntityStudent, studentID, models.EntityClass, AnalyzeOptions{})
			if err != nil {
				return err
			}
			results[names[0]] = analysis
			return nil
		}},
		{name: names[1], run: func(ctx context.Context, results map[string]interface{}) error {
			analysis, err := s.analyzer.Analyze(ctx, models.EntityStudent, studentID, models.EntityParent, AnalyzeOptions{})
			if err != nil {
				return err
			}
			results[names[1]] = analysis
			return nil
		}},
		{name: names[2], run: func(ctx context.Context, results map[string]interface{}) error {
			subjects, err := s.recommendSubjects(ctx, results[names[0]])
			if err != nil {
				return err
			}
			result := map[string]interface{}{"recommended_subject_ids": subjects}
			if resolved := s.subjectNames(ctx, subjects); len(resolved) > 0 {
				result["recommended_subject_names"] = resolved
			}
			results[names[2]] = result
			return nil
		}},
		{name: names[3], run: func(ctx context.Context, results map[string]interface{}) error {
			parentMatches := 0
			if analysis, ok := results[names[1]].(*models.RelationshipAnalysis); ok {
				parentMatches = len(analysis.Suggestions)
			}
			results[names[3]] = map[string]interface{}{
				"student_id":           studentID,
				"parent_notifications": parentMatches,
				"channel":              "guardian-updates",
			}
			return nil
		}},
	}, nil
}

// recommendSubjects unions the subject IDs of every suggested class.
func (s *WorkflowService) recommendSubjects(ctx context.Context, classStepResult interface{}) ([]string, error) {
	analysis, ok := classStepResult.(*models.RelationshipAnalysis)
	if !ok || len(analysis.Suggestions) == 0 {
		return []string{}, nil
	}
	classIDs := make([]string, 0, len(analysis.Suggestions))
	for _, suggestion := range analysis.Suggestions {
		if suggestion.TargetType == models.EntityClass {
			classIDs = append(classIDs, suggestion.TargetID)
		}
	}
	classes, err := s.classes.ListByIDs(ctx, classIDs)
	if err != nil {
		return nil, fmt.Errorf("load suggested classes: %w", err)
	}
	seen := map[string]struct{}{}
	subjects := []string{}
	for _, class := range classes {
		for _, subjectID := range class.SubjectIDs {
			if _, ok := seen[subjectID]; ok {
				continue
			}
			seen[subjectID] = struct{}{}
			subjects = append(subjects, subjectID)
		}
	}
	return subjects, nil
}

// subjectNames resolves subject IDs against the catalogue. Unknown IDs
// are skipped so a stale class reference does not fail the step.
func (s *WorkflowService) subjectNames(ctx context.Context, ids []string) []string {
	if s.subjects == nil {
		return nil
	}
	resolved := make([]string, 0, len(ids))
	for _, id := range ids {
		subject, err := s.subjects.FindByID(ctx, id)
		if err != nil {
			continue
		}
		resolved = append(resolved, subject.Name)
	}
	return resolved
}

func (s *WorkflowService) teacherAssignmentSteps(raw json.RawMessage) ([]workflowStep, error) {
	var trigger dto.TeacherAssignmentTrigger
	if err := json.Unmarshal(raw, &trigger); err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid teacher_assignment trigger data")
	}
	if trigger.TeacherID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "teacherId is required")
	}

	names := workflowSteps[models.WorkflowTeacherAssignment]
	return []workflowStep{
		{name: names[0], run: func(ctx context.Context, results map[string]interface{}) error {
			analysis, err := s.analyzer.Analyze(ctx, models.EntityTeacher, trigger.TeacherID, models.EntityClass, AnalyzeOptions{})
			if err != nil {
				return err
			}
			results[names[0]] = analysis
			return nil
		}},
		{name: names[1], run: func(ctx context.Context, results map[string]interface{}) error {
			open := 0
			if analysis, ok := results[names[0]].(*models.RelationshipAnalysis); ok {
				for _, suggestion := range analysis.Suggestions {
					if suggestion.Strategy == string(StrategyCapacity) {
						open++
					}
				}
			}
			results[names[1]] = map[string]interface{}{"classes_with_open_seats": open}
			return nil
		}},
		{name: names[2], run: func(ctx context.Context, results map[string]interface{}) error {
			entity, err := s.entities.Get(ctx, models.EntityTeacher, trigger.TeacherID)
			if err != nil {
				return err
			}
			current := len(entity.Teacher.ClassIDs)
			results[names[2]] = map[string]interface{}{
				"current_class_count": current,
				"workload_balanced":   current < 5,
			}
			return nil
		}},
		{name: names[3], run: func(ctx context.Context, results map[string]interface{}) error {
			confirmable := 0
			if analysis, ok := results[names[0]].(*models.RelationshipAnalysis); ok {
				for _, suggestion := range analysis.Suggestions {
					if suggestion.Confidence >= 0.7 {
						confirmable++
					}
				}
			}
			results[names[3]] = map[string]interface{}{"confirmable_assignments": confirmable}
			return nil
		}},
	}, nil
}

func (s *WorkflowService) classConfigurationSteps(raw json.RawMessage) ([]workflowStep, error) {
	var trigger dto.ClassConfigurationTrigger
	if err := json.Unmarshal(raw, &trigger); err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid class_configuration trigger data")
	}
	if trigger.ClassID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "classId is required")
	}

	names := workflowSteps[models.WorkflowClassConfiguration]
	return []workflowStep{
		{name: names[0], run: func(ctx context.Context, results map[string]interface{}) error {
			entity, err := s.entities.Get(ctx, models.EntityClass, trigger.ClassID)
			if err != nil {
				return err
			}
			class := entity.Class
			maxCapacity := class.MaxCapacity
			if maxCapacity <= 0 {
				maxCapacity = defaultMaxCapacity
			}
			if class.EnrolledCount > maxCapacity {
				return fmt.Errorf("class %s enrollment %d exceeds capacity %d", class.ID, class.EnrolledCount, maxCapacity)
			}
			results[names[0]] = map[string]interface{}{
				"enrolled":     class.EnrolledCount,
				"max_capacity": maxCapacity,
				"at_capacity":  class.EnrolledCount >= maxCapacity,
			}
			return nil
		}},
		{name: names[1], run: func(ctx context.Context, results map[string]interface{}) error {
			entity, err := s.entities.Get(ctx, models.EntityClass, trigger.ClassID)
			if err != nil {
				return err
			}
			result := map[string]interface{}{"attached_subject_ids": []string(entity.Class.SubjectIDs)}
			if resolved := s.subjectNames(ctx, entity.Class.SubjectIDs); len(resolved) > 0 {
				result["attached_subject_names"] = resolved
			}
			results[names[1]] = result
			return nil
		}},
		{name: names[2], run: func(ctx context.Context, results map[string]interface{}) error {
			analysis, err := s.analyzer.Analyze(ctx, models.EntityClass, trigger.ClassID, models.EntityTeacher, AnalyzeOptions{})
			if err != nil {
				return err
			}
			results[names[2]] = analysis
			return nil
		}},
		{name: names[3], run: func(ctx context.Context, results map[string]interface{}) error {
			entity, err := s.entities.Get(ctx, models.EntityClass, trigger.ClassID)
			if err != nil {
				return err
			}
			results[names[3]] = map[string]interface{}{
				"class_id":  entity.Class.ID,
				"roster":    entity.Class.Name,
				"enrolled":  entity.Class.EnrolledCount,
				"published": true,
			}
			return nil
		}},
	}, nil
}

func (s *WorkflowService) recordWorkflow(executionID, action, actor string, values map[string]interface{}) {
	if s.audit == nil {
		return
	}
	encoded, _ := json.Marshal(values)
	var userID *string
	if actor != "" {
		userID = &actor
	}
	s.audit.Record(&models.AuditLog{
		UserID:     userID,
		Action:     action,
		Resource:   "workflow_execution",
		ResourceID: &executionID,
		NewValues:  encoded,
	})
}

func derefOr(value *string, fallback string) string {
	if value != nil && *value != "" {
		return *value
	}
	return fallback
}
