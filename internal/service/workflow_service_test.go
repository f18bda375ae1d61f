package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/studiva/automation-api/internal/dto"
	"github.com/studiva/automation-api/internal/models"
	"github.com/studiva/automation-api/internal/repository"
)

type fakeWorkflowStore struct {
	executions map[string]models.WorkflowExecution
	finalized  []repository.FinalizeParams
}

func newFakeWorkflowStore() *fakeWorkflowStore {
	return &fakeWorkflowStore{executions: map[string]models.WorkflowExecution{}}
}

func (f *fakeWorkflowStore) Create(ctx context.Context, execution *models.WorkflowExecution) error {
	if execution.ID == "" {
		execution.ID = fmt.Sprintf("wf-%d", len(f.executions)+1)
	}
	if execution.Status == "" {
		execution.Status = models.WorkflowStatusRunning
	}
	f.executions[execution.ID] = *execution
	return nil
}

func (f *fakeWorkflowStore) GetByID(ctx context.Context, id string) (*models.WorkflowExecution, error) {
	if e, ok := f.executions[id]; ok {
		return &e, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeWorkflowStore) List(ctx context.Context, filter models.WorkflowFilter) ([]models.WorkflowExecution, error) {
	out := make([]models.WorkflowExecution, 0, len(f.executions))
	for _, e := range f.executions {
		if filter.Type != "" && e.Type != filter.Type {
			continue
		}
		if filter.Status != "" && e.Status != filter.Status {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (f *fakeWorkflowStore) Finalize(ctx context.Context, params repository.FinalizeParams) error {
	execution, ok := f.executions[params.ID]
	if !ok || execution.Status != models.WorkflowStatusRunning {
		return sql.ErrNoRows
	}
	execution.Status = params.Status
	execution.StepsCompleted = params.StepsCompleted
	execution.ResultData = params.ResultData
	execution.ErrorMessage = params.ErrorMessage
	completedAt := params.CompletedAt
	execution.CompletedAt = &completedAt
	f.executions[params.ID] = execution
	f.finalized = append(f.finalized, params)
	return nil
}

func (f *fakeWorkflowStore) MarkRolledBack(ctx context.Context, id, marker string) error {
	execution, ok := f.executions[id]
	if !ok || execution.Status != models.WorkflowStatusFailed {
		return sql.ErrNoRows
	}
	execution.Status = models.WorkflowStatusRolledBack
	message := marker
	if execution.ErrorMessage != nil {
		message = *execution.ErrorMessage + marker
	}
	execution.ErrorMessage = &message
	f.executions[id] = execution
	return nil
}

type fakeSubjectReader struct {
	subjects map[string]models.Subject
}

func (f *fakeSubjectReader) FindByID(ctx context.Context, id string) (*models.Subject, error) {
	if s, ok := f.subjects[id]; ok {
		return &s, nil
	}
	return nil, sql.ErrNoRows
}

func newWorkflowFixture(students *fakeStudentReader, parents *fakeParentReader, teachers *fakeTeacherReader, classes *fakeClassReader, opts ...WorkflowServiceOption) (*WorkflowService, *fakeWorkflowStore) {
	if students == nil {
		students = &fakeStudentReader{}
	}
	if parents == nil {
		parents = &fakeParentReader{}
	}
	if teachers == nil {
		teachers = &fakeTeacherReader{}
	}
	if classes == nil {
		classes = &fakeClassReader{}
	}
	entities := NewEntityService(students, parents, teachers, classes, zap.NewNop())
	analyzer := NewAnalyzerService(entities, &fakeSuggestionWriter{}, nil, nil, 0, zap.NewNop())
	store := newFakeWorkflowStore()
	svc := NewWorkflowService(store, analyzer, entities, students, classes, nil, zap.NewNop(), opts...)
	return svc, store
}

func TestWorkflowStudentCreationCompletesStepsInOrder(t *testing.T) {
	students := &fakeStudentReader{students: map[string]models.Student{
		"tom": {ID: "tom", FullName: "Tom Smith", Grade: 5, Active: true},
	}}
	parents := &fakeParentReader{parents: map[string]models.Parent{
		"jane": {ID: "jane", FullName: "Jane Smith"},
	}}
	classes := &fakeClassReader{classes: map[string]models.ClassDetail{
		"g5": {Class: models.Class{ID: "g5", Name: "Grade 5A", Grade: 5, SubjectIDs: []string{"math"}, MaxCapacity: 30}, EnrolledCount: 10},
	}}
	svc, store := newWorkflowFixture(students, parents, nil, classes)

	execution, err := svc.Execute(context.Background(), &dto.ExecuteWorkflowRequest{
		WorkflowType: "student_creation",
		TriggerData:  json.RawMessage(`{"studentId":"tom"}`),
		CreatedBy:    "admin-1",
	})
	require.NoError(t, err)

	assert.Equal(t, models.WorkflowStatusCompleted, execution.Status)
	assert.Equal(t, []string{"suggesting_class", "finding_parents", "recommending_subjects", "setting_up_communication"},
		[]string(execution.StepsCompleted))
	assert.NotNil(t, execution.CompletedAt)
	assert.Nil(t, execution.ErrorMessage)
	require.Len(t, store.finalized, 1)

	var results map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(execution.ResultData, &results))
	assert.Contains(t, results, "recommending_subjects")
}

func TestWorkflowStudentCreationFromSeedData(t *testing.T) {
	students := &fakeStudentReader{}
	svc, _ := newWorkflowFixture(students, nil, nil, nil)

	execution, err := svc.Execute(context.Background(), &dto.ExecuteWorkflowRequest{
		WorkflowType: "student_creation",
		TriggerData:  json.RawMessage(`{"studentData":{"name":"New Kid","age":12}}`),
	})
	require.NoError(t, err)

	require.Len(t, students.created, 1)
	assert.Equal(t, "New Kid", students.created[0].FullName)
	assert.Equal(t, 3, students.created[0].Grade)
	assert.True(t, students.created[0].Active)
	assert.Equal(t, models.WorkflowStatusCompleted, execution.Status)
}

func TestWorkflowStudentCreationResolvesSubjectNames(t *testing.T) {
	students := &fakeStudentReader{students: map[string]models.Student{
		"tom": {ID: "tom", FullName: "Tom Smith", Grade: 5, Active: true},
	}}
	classes := &fakeClassReader{classes: map[string]models.ClassDetail{
		"g5": {Class: models.Class{ID: "g5", Name: "Grade 5A", Grade: 5, SubjectIDs: []string{"math", "sci"}, MaxCapacity: 30}, EnrolledCount: 10},
	}}
	subjects := &fakeSubjectReader{subjects: map[string]models.Subject{
		"math": {ID: "math", Code: "MATH", Name: "Mathematics"},
	}}
	svc, _ := newWorkflowFixture(students, nil, nil, classes, WithWorkflowSubjects(subjects))

	execution, err := svc.Execute(context.Background(), &dto.ExecuteWorkflowRequest{
		WorkflowType: "student_creation",
		TriggerData:  json.RawMessage(`{"studentId":"tom"}`),
	})
	require.NoError(t, err)
	require.Equal(t, models.WorkflowStatusCompleted, execution.Status)

	var results map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(execution.ResultData, &results))
	// The unknown "sci" ID is skipped rather than failing the step.
	assert.Contains(t, string(results["recommending_subjects"]), "Mathematics")
	assert.NotContains(t, string(results["recommending_subjects"]), "Science")
}

func TestWorkflowExecuteUnknownType(t *testing.T) {
	svc, store := newWorkflowFixture(nil, nil, nil, nil)

	_, err := svc.Execute(context.Background(), &dto.ExecuteWorkflowRequest{
		WorkflowType: "grade_promotion",
		TriggerData:  json.RawMessage(`{}`),
	})
	require.Error(t, err)
	assert.Empty(t, store.executions)
}

func TestWorkflowStudentCreationRequiresStudent(t *testing.T) {
	svc, store := newWorkflowFixture(nil, nil, nil, nil)

	_, err := svc.Execute(context.Background(), &dto.ExecuteWorkflowRequest{
		WorkflowType: "student_creation",
		TriggerData:  json.RawMessage(`{}`),
	})
	require.Error(t, err)
	assert.Empty(t, store.executions)
}

func TestWorkflowTeacherAssignmentFailsForMissingTeacher(t *testing.T) {
	svc, store := newWorkflowFixture(nil, nil, nil, nil)

	execution, err := svc.Execute(context.Background(), &dto.ExecuteWorkflowRequest{
		WorkflowType: "teacher_assignment",
		TriggerData:  json.RawMessage(`{"teacherId":"ghost"}`),
	})
	require.NoError(t, err)

	assert.Equal(t, models.WorkflowStatusFailed, execution.Status)
	assert.Empty(t, []string(execution.StepsCompleted))
	require.NotNil(t, execution.ErrorMessage)
	assert.Contains(t, *execution.ErrorMessage, "matching_subject_classes")
	require.Len(t, store.finalized, 1)
}

func TestWorkflowClassConfigurationOverCapacityFails(t *testing.T) {
	classes := &fakeClassReader{classes: map[string]models.ClassDetail{
		"packed": {Class: models.Class{ID: "packed", Name: "Packed", Grade: 5, MaxCapacity: 30}, EnrolledCount: 40},
	}}
	svc, _ := newWorkflowFixture(nil, nil, nil, classes)

	execution, err := svc.Execute(context.Background(), &dto.ExecuteWorkflowRequest{
		WorkflowType: "class_configuration",
		TriggerData:  json.RawMessage(`{"classId":"packed"}`),
	})
	require.NoError(t, err)

	assert.Equal(t, models.WorkflowStatusFailed, execution.Status)
	assert.Empty(t, []string(execution.StepsCompleted))
	require.NotNil(t, execution.ErrorMessage)
	assert.Contains(t, *execution.ErrorMessage, "validating_capacity")
}

func TestWorkflowRollbackOnlyFromFailed(t *testing.T) {
	svc, store := newWorkflowFixture(nil, nil, nil, nil)

	failedAt := time.Now().UTC()
	message := "step matching_subject_classes: teacher not found"
	store.executions["wf-failed"] = models.WorkflowExecution{
		ID:           "wf-failed",
		Type:         models.WorkflowTeacherAssignment,
		Status:       models.WorkflowStatusFailed,
		ErrorMessage: &message,
		StartedAt:    failedAt,
	}
	store.executions["wf-done"] = models.WorkflowExecution{
		ID:        "wf-done",
		Type:      models.WorkflowStudentCreation,
		Status:    models.WorkflowStatusCompleted,
		StartedAt: failedAt,
	}

	rolled, err := svc.Rollback(context.Background(), "wf-failed", nil)
	require.NoError(t, err)
	assert.Equal(t, models.WorkflowStatusRolledBack, rolled.Status)
	require.NotNil(t, rolled.ErrorMessage)
	assert.True(t, strings.Contains(*rolled.ErrorMessage, "rolled back (no compensation performed)"))

	_, err = svc.Rollback(context.Background(), "wf-done", nil)
	require.Error(t, err)

	_, err = svc.Rollback(context.Background(), "missing", nil)
	require.Error(t, err)
}

func TestWorkflowListFiltersByStatus(t *testing.T) {
	svc, store := newWorkflowFixture(nil, nil, nil, nil)
	store.executions["a"] = models.WorkflowExecution{ID: "a", Type: models.WorkflowStudentCreation, Status: models.WorkflowStatusCompleted}
	store.executions["b"] = models.WorkflowExecution{ID: "b", Type: models.WorkflowStudentCreation, Status: models.WorkflowStatusFailed}

	executions, err := svc.List(context.Background(), dto.WorkflowQuery{Status: "failed"})
	require.NoError(t, err)
	require.Len(t, executions, 1)
	assert.Equal(t, "b", executions[0].ID)

	_, err = svc.List(context.Background(), dto.WorkflowQuery{Status: "paused"})
	require.Error(t, err)
}
