package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/studiva/automation-api/internal/models"
	appErrors "github.com/studiva/automation-api/pkg/errors"
)

type entityStudentReader interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
	ListActive(ctx context.Context, limit int) ([]models.Student, error)
	ListByIDs(ctx context.Context, ids []string) ([]models.Student, error)
}

type entityParentReader interface {
	FindByID(ctx context.Context, id string) (*models.Parent, error)
	List(ctx context.Context, limit int) ([]models.Parent, error)
}

type entityTeacherReader interface {
	FindByID(ctx context.Context, id string) (*models.Teacher, error)
	ListActive(ctx context.Context, limit int) ([]models.Teacher, error)
}

type entityClassReader interface {
	FindByID(ctx context.Context, id string) (*models.ClassDetail, error)
	List(ctx context.Context, limit int) ([]models.ClassDetail, error)
	ListByIDs(ctx context.Context, ids []string) ([]models.ClassDetail, error)
}

// EntityService loads typed entities and their immediate associations
// from storage. Reads are uncached; every call hits the store.
type EntityService struct {
	students entityStudentReader
	parents  entityParentReader
	teachers entityTeacherReader
	classes  entityClassReader
	logger   *zap.Logger
}

// NewEntityService constructs the entity accessor.
func NewEntityService(students entityStudentReader, parents entityParentReader, teachers entityTeacherReader, classes entityClassReader, logger *zap.Logger) *EntityService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EntityService{students: students, parents: parents, teachers: teachers, classes: classes, logger: logger}
}

// Get fetches one entity plus its declared associations.
func (s *EntityService) Get(ctx context.Context, entityType models.EntityType, id string) (*models.Entity, error) {
	switch entityType {
	case models.EntityStudent:
		return s.getStudent(ctx, id)
	case models.EntityParent:
		return s.getParent(ctx, id)
	case models.EntityTeacher:
		return s.getTeacher(ctx, id)
	case models.EntityClass:
		return s.getClass(ctx, id)
	default:
		return nil, appErrors.Clone(appErrors.ErrUnknownType, fmt.Sprintf("unknown entity type %q", entityType))
	}
}

func (s *EntityService) getStudent(ctx context.Context, id string) (*models.Entity, error) {
	student, err := s.students.FindByID(ctx, id)
	if err != nil {
		return nil, entityLoadError(err, "student")
	}
	entity := &models.Entity{Type: models.EntityStudent, Student: student, Associations: &models.EntityAssociations{}}
	if student.ParentID != nil {
		parent, err := s.parents.FindByID(ctx, *student.ParentID)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, entityLoadError(err, "student parent")
		}
		entity.Associations.Parent = parent
	}
	if student.ClassID != nil {
		class, err := s.classes.FindByID(ctx, *student.ClassID)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, entityLoadError(err, "student class")
		}
		entity.Associations.Class = class
	}
	return entity, nil
}

func (s *EntityService) getParent(ctx context.Context, id string) (*models.Entity, error) {
	parent, err := s.parents.FindByID(ctx, id)
	if err != nil {
		return nil, entityLoadError(err, "parent")
	}
	entity := &models.Entity{Type: models.EntityParent, Parent: parent, Associations: &models.EntityAssociations{}}
	if len(parent.ChildrenIDs) > 0 {
		children, err := s.students.ListByIDs(ctx, parent.ChildrenIDs)
		if err != nil {
			return nil, entityLoadError(err, "parent children")
		}
		entity.Associations.Children = children
	}
	return entity, nil
}

func (s *EntityService) getTeacher(ctx context.Context, id string) (*models.Entity, error) {
	teacher, err := s.teachers.FindByID(ctx, id)
	if err != nil {
		return nil, entityLoadError(err, "teacher")
	}
	entity := &models.Entity{Type: models.EntityTeacher, Teacher: teacher, Associations: &models.EntityAssociations{}}
	if len(teacher.ClassIDs) > 0 {
		classes, err := s.classes.ListByIDs(ctx, teacher.ClassIDs)
		if err != nil {
			return nil, entityLoadError(err, "teacher classes")
		}
		entity.Associations.Classes = classes
	}
	return entity, nil
}

func (s *EntityService) getClass(ctx context.Context, id string) (*models.Entity, error) {
	class, err := s.classes.FindByID(ctx, id)
	if err != nil {
		return nil, entityLoadError(err, "class")
	}
	return &models.Entity{Type: models.EntityClass, Class: class}, nil
}

// Candidates builds the strategy-facing candidate pool for a target
// entity type.
func (s *EntityService) Candidates(ctx context.Context, targetType models.EntityType, limit int) ([]MatchCandidate, error) {
	switch targetType {
	case models.EntityStudent:
		students, err := s.students.ListActive(ctx, limit)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student candidates")
		}
		candidates := make([]MatchCandidate, 0, len(students))
		for i := range students {
			candidates = append(candidates, studentCandidate(&students[i]))
		}
		return candidates, nil
	case models.EntityParent:
		parents, err := s.parents.List(ctx, limit)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load parent candidates")
		}
		candidates := make([]MatchCandidate, 0, len(parents))
		for i := range parents {
			candidates = append(candidates, parentCandidate(&parents[i]))
		}
		return candidates, nil
	case models.EntityTeacher:
		teachers, err := s.teachers.ListActive(ctx, limit)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher candidates")
		}
		candidates := make([]MatchCandidate, 0, len(teachers))
		for i := range teachers {
			candidates = append(candidates, teacherCandidate(&teachers[i]))
		}
		return candidates, nil
	case models.EntityClass:
		classes, err := s.classes.List(ctx, limit)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class candidates")
		}
		candidates := make([]MatchCandidate, 0, len(classes))
		for i := range classes {
			candidates = append(candidates, classCandidate(&classes[i]))
		}
		return candidates, nil
	default:
		return nil, appErrors.Clone(appErrors.ErrUnknownType, fmt.Sprintf("unknown entity type %q", targetType))
	}
}

// MatchSourceOf flattens an entity into the strategy-facing source view.
func MatchSourceOf(entity *models.Entity) MatchSource {
	src := MatchSource{Type: entity.Type, ID: entity.ID(), Name: entity.Name()}
	switch entity.Type {
	case models.EntityStudent:
		src.Age = entity.Student.Age
		src.Grade = entity.Student.Grade
		src.HasParent = entity.Student.ParentID != nil
	case models.EntityParent:
		src.ChildCount = len(entity.Parent.ChildrenIDs)
	case models.EntityTeacher:
		src.Subject = entity.Teacher.Subject
		src.SubjectIDs = entity.Teacher.SubjectIDs
	case models.EntityClass:
		src.Grade = entity.Class.Grade
		src.SubjectIDs = entity.Class.SubjectIDs
	}
	return src
}

func studentCandidate(student *models.Student) MatchCandidate {
	return MatchCandidate{
		Type:  models.EntityStudent,
		ID:    student.ID,
		Name:  student.FullName,
		Grade: student.Grade,
	}
}

func parentCandidate(parent *models.Parent) MatchCandidate {
	return MatchCandidate{
		Type:       models.EntityParent,
		ID:         parent.ID,
		Name:       parent.FullName,
		ChildCount: len(parent.ChildrenIDs),
	}
}

func teacherCandidate(teacher *models.Teacher) MatchCandidate {
	return MatchCandidate{
		Type:       models.EntityTeacher,
		ID:         teacher.ID,
		Name:       teacher.FullName,
		Subject:    teacher.Subject,
		SubjectIDs: teacher.SubjectIDs,
	}
}

func classCandidate(class *models.ClassDetail) MatchCandidate {
	return MatchCandidate{
		Type:        models.EntityClass,
		ID:          class.ID,
		Name:        class.Name,
		Grade:       class.Grade,
		SubjectIDs:  class.SubjectIDs,
		Enrolled:    class.EnrolledCount,
		MaxCapacity: class.MaxCapacity,
	}
}

func entityLoadError(err error, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, what+" not found")
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load "+what)
}
