package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/studiva/automation-api/internal/models"
	appErrors "github.com/studiva/automation-api/pkg/errors"
)

type transactionBeginner interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

type applierSuggestionStore interface {
	GetByID(ctx context.Context, id string) (*models.RelationshipSuggestion, error)
	MarkAccepted(ctx context.Context, exec sqlx.ExtContext, id string, appliedAt time.Time) error
}

type applierStudentStore interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
	SetClass(ctx context.Context, exec sqlx.ExtContext, studentID, classID string) error
	SetParent(ctx context.Context, exec sqlx.ExtContext, studentID, parentID string) error
}

type applierParentStore interface {
	FindByID(ctx context.Context, id string) (*models.Parent, error)
	AppendChild(ctx context.Context, exec sqlx.ExtContext, parentID, childID string) error
}

type applierTeacherStore interface {
	FindByID(ctx context.Context, id string) (*models.Teacher, error)
	AppendClass(ctx context.Context, exec sqlx.ExtContext, teacherID, classID string) error
}

type applierClassStore interface {
	FindByID(ctx context.Context, id string) (*models.ClassDetail, error)
	AppendSubject(ctx context.Context, exec sqlx.ExtContext, classID, subjectID string) error
}

// ApplierService commits accepted suggestions: each apply runs the
// entity mutations and the accepted-flag update inside one database
// transaction. Applies are not idempotent: re-applying a parent_child
// suggestion appends the child ID again.
type ApplierService struct {
	db          transactionBeginner
	suggestions applierSuggestionStore
	students    applierStudentStore
	parents     applierParentStore
	teachers    applierTeacherStore
	classes     applierClassStore

	cache   *CacheService
	audit   *AuditService
	metrics *MetricsService
	logger  *zap.Logger
}

// ApplierServiceOption customises the applier service.
type ApplierServiceOption func(*ApplierService)

// WithApplierCache wires cache invalidation on successful applies.
func WithApplierCache(cache *CacheService) ApplierServiceOption {
	return func(s *ApplierService) { s.cache = cache }
}

// WithApplierAudit wires the audit trail.
func WithApplierAudit(audit *AuditService) ApplierServiceOption {
	return func(s *ApplierService) { s.audit = audit }
}

// WithApplierMetrics wires apply counters.
func WithApplierMetrics(metrics *MetricsService) ApplierServiceOption {
	return func(s *ApplierService) { s.metrics = metrics }
}

// NewApplierService constructs an ApplierService.
func NewApplierService(
	db transactionBeginner,
	suggestions applierSuggestionStore,
	students applierStudentStore,
	parents applierParentStore,
	teachers applierTeacherStore,
	classes applierClassStore,
	logger *zap.Logger,
	opts ...ApplierServiceOption,
) *ApplierService {
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &ApplierService{
		db:          db,
		suggestions: suggestions,
		students:    students,
		parents:     parents,
		teachers:    teachers,
		classes:     classes,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// Apply commits the suggestion's relationship to the underlying
// entities and marks the suggestion accepted, atomically.
func (s *ApplierService) Apply(ctx context.Context, suggestionID string, actorID *string) (*models.ApplyResult, error) {
	suggestion, err := s.suggestions.GetByID(ctx, suggestionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "suggestion not found")
		}
		return nil, fmt.Errorf("load suggestion: %w", err)
	}

	result, err := s.apply(ctx, suggestion, actorID)
	if s.metrics != nil {
		s.metrics.RecordApply(string(suggestion.Relationship), err == nil)
	}
	return result, err
}

func (s *ApplierService) apply(ctx context.Context, suggestion *models.RelationshipSuggestion, actorID *string) (*models.ApplyResult, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin apply transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	appliedAt := time.Now().UTC()

	switch suggestion.Relationship {
	case models.RelationshipClassAssignment:
		if err := s.applyClassAssignment(ctx, tx, suggestion); err != nil {
			return nil, err
		}
	case models.RelationshipParentChild:
		if err := s.applyParentChild(ctx, tx, suggestion); err != nil {
			return nil, err
		}
	case models.RelationshipTeacherClass:
		if err := s.applyTeacherClass(ctx, tx, suggestion); err != nil {
			return nil, err
		}
	case models.RelationshipClassSubject:
		if err := s.applyClassSubject(ctx, tx, suggestion); err != nil {
			return nil, err
		}
	default:
		return nil, appErrors.Clone(appErrors.ErrUnknownType, fmt.Sprintf("unknown relationship type %q", suggestion.Relationship))
	}

	if err := s.suggestions.MarkAccepted(ctx, tx, suggestion.ID, appliedAt); err != nil {
		return nil, fmt.Errorf("mark suggestion accepted: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit apply transaction: %w", err)
	}

	s.cache.InvalidateEntity(ctx, suggestion.SourceType, suggestion.SourceID)
	s.cache.InvalidateEntity(ctx, suggestion.TargetType, suggestion.TargetID)
	s.recordApply(suggestion, actorID, appliedAt)

	s.logger.Info("relationship suggestion applied",
		zap.String("suggestion_id", suggestion.ID),
		zap.String("relationship", string(suggestion.Relationship)),
		zap.String("source_id", suggestion.SourceID),
		zap.String("target_id", suggestion.TargetID),
	)

	return &models.ApplyResult{
		SuggestionID: suggestion.ID,
		Relationship: suggestion.Relationship,
		SourceID:     suggestion.SourceID,
		TargetID:     suggestion.TargetID,
		AppliedAt:    appliedAt,
	}, nil
}

func (s *ApplierService) applyClassAssignment(ctx context.Context, tx *sqlx.Tx, suggestion *models.RelationshipSuggestion) error {
	studentID, classID := suggestion.SourceID, suggestion.TargetID
	if suggestion.SourceType == models.EntityClass {
		studentID, classID = suggestion.TargetID, suggestion.SourceID
	}
	if _, err := s.students.FindByID(ctx, studentID); err != nil {
		return applyLoadError(err, "student")
	}
	if _, err := s.classes.FindByID(ctx, classID); err != nil {
		return applyLoadError(err, "class")
	}
	return s.students.SetClass(ctx, tx, studentID, classID)
}

func (s *ApplierService) applyParentChild(ctx context.Context, tx *sqlx.Tx, suggestion *models.RelationshipSuggestion) error {
	parentID, childID := suggestion.SourceID, suggestion.TargetID
	if suggestion.SourceType == models.EntityStudent {
		parentID, childID = suggestion.TargetID, suggestion.SourceID
	}
	if _, err := s.parents.FindByID(ctx, parentID); err != nil {
		return applyLoadError(err, "parent")
	}
	if _, err := s.students.FindByID(ctx, childID); err != nil {
		return applyLoadError(err, "student")
	}
	if err := s.parents.AppendChild(ctx, tx, parentID, childID); err != nil {
		return err
	}
	return s.students.SetParent(ctx, tx, childID, parentID)
}

func (s *ApplierService) applyTeacherClass(ctx context.Context, tx *sqlx.Tx, suggestion *models.RelationshipSuggestion) error {
	teacherID, classID := suggestion.SourceID, suggestion.TargetID
	if suggestion.SourceType == models.EntityClass {
		teacherID, classID = suggestion.TargetID, suggestion.SourceID
	}
	if _, err := s.teachers.FindByID(ctx, teacherID); err != nil {
		return applyLoadError(err, "teacher")
	}
	if _, err := s.classes.FindByID(ctx, classID); err != nil {
		return applyLoadError(err, "class")
	}
	return s.teachers.AppendClass(ctx, tx, teacherID, classID)
}

func (s *ApplierService) applyClassSubject(ctx context.Context, tx *sqlx.Tx, suggestion *models.RelationshipSuggestion) error {
	classID, subjectID := suggestion.SourceID, suggestion.TargetID
	if _, err := s.classes.FindByID(ctx, classID); err != nil {
		return applyLoadError(err, "class")
	}
	return s.classes.AppendSubject(ctx, tx, classID, subjectID)
}

func (s *ApplierService) recordApply(suggestion *models.RelationshipSuggestion, actorID *string, appliedAt time.Time) {
	if s.audit == nil {
		return
	}
	values, _ := json.Marshal(map[string]interface{}{
		"relationship": suggestion.Relationship,
		"source_type":  suggestion.SourceType,
		"source_id":    suggestion.SourceID,
		"target_type":  suggestion.TargetType,
		"target_id":    suggestion.TargetID,
		"applied_at":   appliedAt,
	})
	s.audit.Record(&models.AuditLog{
		UserID:     actorID,
		Action:     models.AuditActionSuggestionApply,
		Resource:   "relationship_suggestion",
		ResourceID: &suggestion.ID,
		NewValues:  values,
	})
}

func applyLoadError(err error, resource string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, resource+" not found")
	}
	return fmt.Errorf("load %s: %w", resource, err)
}
