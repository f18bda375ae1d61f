package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/studiva/automation-api/internal/models"
)

type fakeStudentReader struct {
	students map[string]models.Student
	created  []models.Student
}

func (f *fakeStudentReader) FindByID(ctx context.Context, id string) (*models.Student, error) {
	if s, ok := f.students[id]; ok {
		return &s, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeStudentReader) ListActive(ctx context.Context, limit int) ([]models.Student, error) {
	out := make([]models.Student, 0, len(f.students))
	for _, s := range f.students {
		if s.Active {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeStudentReader) ListByIDs(ctx context.Context, ids []string) ([]models.Student, error) {
	var out []models.Student
	for _, id := range ids {
		if s, ok := f.students[id]; ok {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeStudentReader) Create(ctx context.Context, student *models.Student) error {
	if student.ID == "" {
		student.ID = "generated"
	}
	if f.students == nil {
		f.students = map[string]models.Student{}
	}
	f.students[student.ID] = *student
	f.created = append(f.created, *student)
	return nil
}

type fakeParentReader struct {
	parents map[string]models.Parent
}

func (f *fakeParentReader) FindByID(ctx context.Context, id string) (*models.Parent, error) {
	if p, ok := f.parents[id]; ok {
		return &p, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeParentReader) List(ctx context.Context, limit int) ([]models.Parent, error) {
	out := make([]models.Parent, 0, len(f.parents))
	for _, p := range f.parents {
		out = append(out, p)
	}
	return out, nil
}

type fakeTeacherReader struct {
	teachers map[string]models.Teacher
}

func (f *fakeTeacherReader) FindByID(ctx context.Context, id string) (*models.Teacher, error) {
	if t, ok := f.teachers[id]; ok {
		return &t, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeTeacherReader) ListActive(ctx context.Context, limit int) ([]models.Teacher, error) {
	out := make([]models.Teacher, 0, len(f.teachers))
	for _, teacher := range f.teachers {
		if teacher.Active {
			out = append(out, teacher)
		}
	}
	return out, nil
}

type fakeClassReader struct {
	classes map[string]models.ClassDetail
}

func (f *fakeClassReader) FindByID(ctx context.Context, id string) (*models.ClassDetail, error) {
	if c, ok := f.classes[id]; ok {
		return &c, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeClassReader) List(ctx context.Context, limit int) ([]models.ClassDetail, error) {
	out := make([]models.ClassDetail, 0, len(f.classes))
	for _, c := range f.classes {
		out = append(out, c)
	}
	return out, nil
}

func (f *fakeClassReader) ListByIDs(ctx context.Context, ids []string) ([]models.ClassDetail, error) {
	var out []models.ClassDetail
	for _, id := range ids {
		if c, ok := f.classes[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

type fakeSuggestionWriter struct {
	created []models.RelationshipSuggestion
}

func (f *fakeSuggestionWriter) Create(ctx context.Context, suggestion *models.RelationshipSuggestion) error {
	if suggestion.ID == "" {
		suggestion.ID = "sg-generated"
	}
	f.created = append(f.created, *suggestion)
	return nil
}

func newAnalyzerFixture(students *fakeStudentReader, parents *fakeParentReader, teachers *fakeTeacherReader, classes *fakeClassReader) (*AnalyzerService, *fakeSuggestionWriter) {
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
	writer := &fakeSuggestionWriter{}
	analyzer := NewAnalyzerService(entities, writer, nil, nil, 0, zap.NewNop())
	return analyzer, writer
}

func TestAnalyzeSurnameMatchPersistsSuggestion(t *testing.T) {
	students := &fakeStudentReader{students: map[string]models.Student{
		"tom": {ID: "tom", FullName: "Tom Smith", Grade: 5, Active: true},
	}}
	parents := &fakeParentReader{parents: map[string]models.Parent{
		"jane": {ID: "jane", FullName: "Jane Smith"},
	}}
	analyzer, writer := newAnalyzerFixture(students, parents, nil, nil)

	analysis, err := analyzer.Analyze(context.Background(), models.EntityParent, "jane", models.EntityStudent, AnalyzeOptions{})
	require.NoError(t, err)

	require.Len(t, analysis.Suggestions, 1)
	suggestion := analysis.Suggestions[0]
	assert.Equal(t, "tom", suggestion.TargetID)
	assert.Equal(t, models.RelationshipParentChild, suggestion.Relationship)
	assert.Equal(t, 0.8, suggestion.Confidence)
	assert.False(t, suggestion.Accepted)
	assert.Nil(t, suggestion.AppliedAt)

	require.Len(t, writer.created, 1)
	assert.Equal(t, models.SuggestionRelationshipInference, writer.created[0].Type)
	assert.Equal(t, 0.8, analysis.ConfidenceFactors[string(StrategySurname)])
}

func TestAnalyzeTeacherClassSubjectOverlap(t *testing.T) {
	teachers := &fakeTeacherReader{teachers: map[string]models.Teacher{
		"cruz": {ID: "cruz", FullName: "Ms Cruz", Subject: "Mathematics", SubjectIDs: []string{"math"}, Active: true},
	}}
	classes := &fakeClassReader{classes: map[string]models.ClassDetail{
		"g5math": {Class: models.Class{ID: "g5math", Name: "Grade 5 Math", Grade: 5, SubjectIDs: []string{"math"}, MaxCapacity: 30}, EnrolledCount: 10},
		"g5art":  {Class: models.Class{ID: "g5art", Name: "Grade 5 Art", Grade: 5, SubjectIDs: []string{"art"}, MaxCapacity: 30}, EnrolledCount: 10},
	}}
	analyzer, writer := newAnalyzerFixture(nil, nil, teachers, classes)

	analysis, err := analyzer.Analyze(context.Background(), models.EntityTeacher, "cruz", models.EntityClass, AnalyzeOptions{})
	require.NoError(t, err)

	// Subject overlap proposes only the math class; capacity proposes both.
	subjectTargets := []string{}
	for _, suggestion := range analysis.Suggestions {
		if suggestion.Strategy == string(StrategySubject) {
			subjectTargets = append(subjectTargets, suggestion.TargetID)
		}
	}
	assert.Equal(t, []string{"g5math"}, subjectTargets)
	assert.Equal(t, 0.8, analysis.ConfidenceFactors[string(StrategySubject)])
	assert.NotEmpty(t, writer.created)
	assert.ElementsMatch(t, []string{string(StrategySubject), string(StrategyCapacity)}, analysis.Strategies)
}

func TestAnalyzeUnknownEntity(t *testing.T) {
	analyzer, _ := newAnalyzerFixture(nil, nil, nil, nil)

	_, err := analyzer.Analyze(context.Background(), models.EntityStudent, "missing", models.EntityClass, AnalyzeOptions{})
	require.Error(t, err)
}

func TestAnalyzeNoStrategiesYieldsEmptyAnalysis(t *testing.T) {
	analyzer, writer := newAnalyzerFixture(nil, nil, nil, nil)

	analysis, err := analyzer.Analyze(context.Background(), models.EntityParent, "jane", models.EntityTeacher, AnalyzeOptions{})
	require.NoError(t, err)
	assert.Empty(t, analysis.Suggestions)
	assert.Empty(t, writer.created)
	assert.Zero(t, analysis.OverallConfidence)
}

func TestAnalyzeMinConfidenceFilter(t *testing.T) {
	students := &fakeStudentReader{students: map[string]models.Student{
		"kid": {ID: "kid", FullName: "Kid Jones", Grade: 5, Active: true},
	}}
	classes := &fakeClassReader{classes: map[string]models.ClassDetail{
		"far": {Class: models.Class{ID: "far", Name: "Grade 8A", Grade: 8, MaxCapacity: 30}, EnrolledCount: 0},
	}}
	analyzer, _ := newAnalyzerFixture(students, nil, nil, classes)

	analysis, err := analyzer.Analyze(context.Background(), models.EntityStudent, "kid", models.EntityClass, AnalyzeOptions{MinConfidence: 0.5})
	require.NoError(t, err)
	for _, suggestion := range analysis.Suggestions {
		assert.GreaterOrEqual(t, suggestion.Confidence, 0.5)
	}
}

func TestInferRelationshipsMergesTargetTypes(t *testing.T) {
	students := &fakeStudentReader{students: map[string]models.Student{
		"tom": {ID: "tom", FullName: "Tom Smith", Grade: 5, Active: true},
	}}
	parents := &fakeParentReader{parents: map[string]models.Parent{
		"jane": {ID: "jane", FullName: "Jane Smith"},
	}}
	classes := &fakeClassReader{classes: map[string]models.ClassDetail{
		"g5": {Class: models.Class{ID: "g5", Name: "Grade 5A", Grade: 5, MaxCapacity: 30}, EnrolledCount: 0},
	}}
	analyzer, _ := newAnalyzerFixture(students, parents, nil, classes)

	analysis, err := analyzer.InferRelationships(context.Background(), models.EntityStudent, "tom", AnalyzeOptions{})
	require.NoError(t, err)

	relationships := map[models.RelationshipType]bool{}
	for _, suggestion := range analysis.Suggestions {
		relationships[suggestion.Relationship] = true
	}
	assert.True(t, relationships[models.RelationshipParentChild])
	assert.True(t, relationships[models.RelationshipClassAssignment])
	assert.Contains(t, analysis.Strategies, string(StrategySurname))
	assert.Contains(t, analysis.Strategies, string(StrategyGrade))
	assert.Greater(t, analysis.OverallConfidence, 0.0)
}
