package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/studiva/automation-api/internal/models"
	appErrors "github.com/studiva/automation-api/pkg/errors"
)

type fakeApplierSuggestions struct {
	suggestions map[string]models.RelationshipSuggestion
	acceptedIDs []string
	acceptErr   error
}

func (f *fakeApplierSuggestions) GetByID(ctx context.Context, id string) (*models.RelationshipSuggestion, error) {
	if s, ok := f.suggestions[id]; ok {
		return &s, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeApplierSuggestions) MarkAccepted(ctx context.Context, exec sqlx.ExtContext, id string, appliedAt time.Time) error {
	if f.acceptErr != nil {
		return f.acceptErr
	}
	f.acceptedIDs = append(f.acceptedIDs, id)
	if s, ok := f.suggestions[id]; ok {
		s.Accepted = true
		s.AppliedAt = &appliedAt
		f.suggestions[id] = s
	}
	return nil
}

type fakeApplierStudents struct {
	students  map[string]models.Student
	setClass  [][2]string
	setParent [][2]string
	mutateErr error
}

func (f *fakeApplierStudents) FindByID(ctx context.Context, id string) (*models.Student, error) {
	if s, ok := f.students[id]; ok {
		return &s, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeApplierStudents) SetClass(ctx context.Context, exec sqlx.ExtContext, studentID, classID string) error {
	if f.mutateErr != nil {
		return f.mutateErr
	}
	f.setClass = append(f.setClass, [2]string{studentID, classID})
	return nil
}

func (f *fakeApplierStudents) SetParent(ctx context.Context, exec sqlx.ExtContext, studentID, parentID string) error {
	f.setParent = append(f.setParent, [2]string{studentID, parentID})
	return nil
}

type fakeApplierParents struct {
	parents  map[string]models.Parent
	appended []string
}

func (f *fakeApplierParents) FindByID(ctx context.Context, id string) (*models.Parent, error) {
	if p, ok := f.parents[id]; ok {
		return &p, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeApplierParents) AppendChild(ctx context.Context, exec sqlx.ExtContext, parentID, childID string) error {
	// The push is unconditional: duplicates accumulate.
	if p, ok := f.parents[parentID]; ok {
		p.ChildrenIDs = append(p.ChildrenIDs, childID)
		f.parents[parentID] = p
	}
	f.appended = append(f.appended, childID)
	return nil
}

type fakeApplierTeachers struct {
	teachers map[string]models.Teacher
	appended [][2]string
}

func (f *fakeApplierTeachers) FindByID(ctx context.Context, id string) (*models.Teacher, error) {
	if teacher, ok := f.teachers[id]; ok {
		return &teacher, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeApplierTeachers) AppendClass(ctx context.Context, exec sqlx.ExtContext, teacherID, classID string) error {
	f.appended = append(f.appended, [2]string{teacherID, classID})
	return nil
}

type fakeApplierClasses struct {
	classes  map[string]models.ClassDetail
	appended [][2]string
}

func (f *fakeApplierClasses) FindByID(ctx context.Context, id string) (*models.ClassDetail, error) {
	if c, ok := f.classes[id]; ok {
		return &c, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeApplierClasses) AppendSubject(ctx context.Context, exec sqlx.ExtContext, classID, subjectID string) error {
	f.appended = append(f.appended, [2]string{classID, subjectID})
	return nil
}

func newApplierMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestApplierApplyParentChild(t *testing.T) {
	db, mock, cleanup := newApplierMock(t)
	defer cleanup()
	mock.ExpectBegin()
	mock.ExpectCommit()

	suggestions := &fakeApplierSuggestions{suggestions: map[string]models.RelationshipSuggestion{
		"sg1": {ID: "sg1", SourceType: models.EntityParent, SourceID: "jane", TargetType: models.EntityStudent, TargetID: "tom", Relationship: models.RelationshipParentChild},
	}}
	students := &fakeApplierStudents{students: map[string]models.Student{"tom": {ID: "tom", FullName: "Tom Smith"}}}
	parents := &fakeApplierParents{parents: map[string]models.Parent{"jane": {ID: "jane", FullName: "Jane Smith"}}}
	svc := NewApplierService(db, suggestions, students, parents, &fakeApplierTeachers{}, &fakeApplierClasses{}, zap.NewNop())

	result, err := svc.Apply(context.Background(), "sg1", nil)
	require.NoError(t, err)

	assert.Equal(t, models.RelationshipParentChild, result.Relationship)
	assert.Equal(t, []string{"tom"}, parents.appended)
	assert.Equal(t, [][2]string{{"tom", "jane"}}, students.setParent)
	assert.Equal(t, []string{"sg1"}, suggestions.acceptedIDs)
	assert.True(t, suggestions.suggestions["sg1"].Accepted)
	assert.NotNil(t, suggestions.suggestions["sg1"].AppliedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplierReApplyDuplicatesChildEntry(t *testing.T) {
	db, mock, cleanup := newApplierMock(t)
	defer cleanup()
	mock.ExpectBegin()
	mock.ExpectCommit()
	mock.ExpectBegin()
	mock.ExpectCommit()

	suggestions := &fakeApplierSuggestions{suggestions: map[string]models.RelationshipSuggestion{
		"sg1": {ID: "sg1", SourceType: models.EntityParent, SourceID: "jane", TargetType: models.EntityStudent, TargetID: "tom", Relationship: models.RelationshipParentChild},
	}}
	students := &fakeApplierStudents{students: map[string]models.Student{"tom": {ID: "tom"}}}
	parents := &fakeApplierParents{parents: map[string]models.Parent{"jane": {ID: "jane", ChildrenIDs: []string{"tom"}}}}
	svc := NewApplierService(db, suggestions, students, parents, &fakeApplierTeachers{}, &fakeApplierClasses{}, zap.NewNop())

	_, err := svc.Apply(context.Background(), "sg1", nil)
	require.NoError(t, err)
	_, err = svc.Apply(context.Background(), "sg1", nil)
	require.NoError(t, err)

	// Appending never de-duplicates: the child ID now appears three times.
	assert.Equal(t, []string{"tom", "tom", "tom"}, []string(parents.parents["jane"].ChildrenIDs))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplierApplyClassAssignment(t *testing.T) {
	db, mock, cleanup := newApplierMock(t)
	defer cleanup()
	mock.ExpectBegin()
	mock.ExpectCommit()

	suggestions := &fakeApplierSuggestions{suggestions: map[string]models.RelationshipSuggestion{
		"sg2": {ID: "sg2", SourceType: models.EntityStudent, SourceID: "tom", TargetType: models.EntityClass, TargetID: "g5", Relationship: models.RelationshipClassAssignment},
	}}
	students := &fakeApplierStudents{students: map[string]models.Student{"tom": {ID: "tom"}}}
	classes := &fakeApplierClasses{classes: map[string]models.ClassDetail{"g5": {Class: models.Class{ID: "g5", Name: "Grade 5A"}}}}
	svc := NewApplierService(db, suggestions, students, &fakeApplierParents{}, &fakeApplierTeachers{}, classes, zap.NewNop())

	result, err := svc.Apply(context.Background(), "sg2", nil)
	require.NoError(t, err)
	assert.Equal(t, [][2]string{{"tom", "g5"}}, students.setClass)
	assert.Equal(t, "g5", result.TargetID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplierApplyTeacherClass(t *testing.T) {
	db, mock, cleanup := newApplierMock(t)
	defer cleanup()
	mock.ExpectBegin()
	mock.ExpectCommit()

	suggestions := &fakeApplierSuggestions{suggestions: map[string]models.RelationshipSuggestion{
		"sg3": {ID: "sg3", SourceType: models.EntityTeacher, SourceID: "cruz", TargetType: models.EntityClass, TargetID: "g5", Relationship: models.RelationshipTeacherClass},
	}}
	teachers := &fakeApplierTeachers{teachers: map[string]models.Teacher{"cruz": {ID: "cruz"}}}
	classes := &fakeApplierClasses{classes: map[string]models.ClassDetail{"g5": {Class: models.Class{ID: "g5"}}}}
	svc := NewApplierService(db, suggestions, &fakeApplierStudents{}, &fakeApplierParents{}, teachers, classes, zap.NewNop())

	_, err := svc.Apply(context.Background(), "sg3", nil)
	require.NoError(t, err)
	assert.Equal(t, [][2]string{{"cruz", "g5"}}, teachers.appended)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplierApplyUnknownSuggestion(t *testing.T) {
	db, _, cleanup := newApplierMock(t)
	defer cleanup()

	suggestions := &fakeApplierSuggestions{}
	svc := NewApplierService(db, suggestions, &fakeApplierStudents{}, &fakeApplierParents{}, &fakeApplierTeachers{}, &fakeApplierClasses{}, zap.NewNop())

	_, err := svc.Apply(context.Background(), "missing", nil)
	require.Error(t, err)
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}

func TestApplierApplyRollsBackOnMutationFailure(t *testing.T) {
	db, mock, cleanup := newApplierMock(t)
	defer cleanup()
	mock.ExpectBegin()
	mock.ExpectRollback()

	suggestions := &fakeApplierSuggestions{suggestions: map[string]models.RelationshipSuggestion{
		"sg4": {ID: "sg4", SourceType: models.EntityStudent, SourceID: "tom", TargetType: models.EntityClass, TargetID: "g5", Relationship: models.RelationshipClassAssignment},
	}}
	students := &fakeApplierStudents{
		students:  map[string]models.Student{"tom": {ID: "tom"}},
		mutateErr: errors.New("write failed"),
	}
	classes := &fakeApplierClasses{classes: map[string]models.ClassDetail{"g5": {Class: models.Class{ID: "g5"}}}}
	svc := NewApplierService(db, suggestions, students, &fakeApplierParents{}, &fakeApplierTeachers{}, classes, zap.NewNop())

	_, err := svc.Apply(context.Background(), "sg4", nil)
	require.Error(t, err)
	assert.Empty(t, suggestions.acceptedIDs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplierApplyMissingTargetEntity(t *testing.T) {
	db, mock, cleanup := newApplierMock(t)
	defer cleanup()
	mock.ExpectBegin()
	mock.ExpectRollback()

	suggestions := &fakeApplierSuggestions{suggestions: map[string]models.RelationshipSuggestion{
		"sg5": {ID: "sg5", SourceType: models.EntityStudent, SourceID: "tom", TargetType: models.EntityClass, TargetID: "gone", Relationship: models.RelationshipClassAssignment},
	}}
	students := &fakeApplierStudents{students: map[string]models.Student{"tom": {ID: "tom"}}}
	svc := NewApplierService(db, suggestions, students, &fakeApplierParents{}, &fakeApplierTeachers{}, &fakeApplierClasses{}, zap.NewNop())

	_, err := svc.Apply(context.Background(), "sg5", nil)
	require.Error(t, err)
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}
