package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/studiva/automation-api/internal/dto"
	"github.com/studiva/automation-api/internal/models"
	appErrors "github.com/studiva/automation-api/pkg/errors"
	"github.com/studiva/automation-api/pkg/export"
)

type suggestionStore interface {
	GetByID(ctx context.Context, id string) (*models.RelationshipSuggestion, error)
	ListForEntity(ctx context.Context, entityType models.EntityType, entityID string, suggestionType models.SuggestionType) ([]models.RelationshipSuggestion, error)
	List(ctx context.Context, filter models.SuggestionFilter) ([]models.RelationshipSuggestion, error)
	Accept(ctx context.Context, id string, appliedAt time.Time) error
	MergePayload(ctx context.Context, id string, data []byte) error
}

// SuggestionService serves suggestion listings, reviewer decisions and
// exports. Reviewing a suggestion only records the decision; the entity
// mutation itself is the ApplierService's job.
type SuggestionService struct {
	repo      suggestionStore
	cache     *CacheService
	audit     *AuditService
	csv       *export.CSVExporter
	pdf       *export.PDFExporter
	validator *validator.Validate
	logger    *zap.Logger

	defaultLimit int
	cacheTTL     time.Duration
}

// SuggestionServiceOption customises the suggestion service.
type SuggestionServiceOption func(*SuggestionService)

// WithSuggestionCache wires the listing cache.
func WithSuggestionCache(cache *CacheService, ttl time.Duration) SuggestionServiceOption {
	return func(s *SuggestionService) {
		s.cache = cache
		s.cacheTTL = ttl
	}
}

// WithSuggestionAudit wires the audit trail.
func WithSuggestionAudit(audit *AuditService) SuggestionServiceOption {
	return func(s *SuggestionService) { s.audit = audit }
}

// WithSuggestionDefaultLimit overrides the default listing limit.
func WithSuggestionDefaultLimit(limit int) SuggestionServiceOption {
	return func(s *SuggestionService) {
		if limit > 0 {
			s.defaultLimit = limit
		}
	}
}

// NewSuggestionService constructs a SuggestionService.
func NewSuggestionService(repo suggestionStore, validate *validator.Validate, logger *zap.Logger, opts ...SuggestionServiceOption) *SuggestionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &SuggestionService{
		repo:         repo,
		csv:          export.NewCSVExporter(),
		pdf:          export.NewPDFExporter(),
		validator:    validate,
		logger:       logger,
		defaultLimit: 20,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// Get fetches one suggestion by ID.
func (s *SuggestionService) Get(ctx context.Context, id string) (*models.RelationshipSuggestion, error) {
	suggestion, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "suggestion not found")
		}
		return nil, fmt.Errorf("get suggestion: %w", err)
	}
	return suggestion, nil
}

// ListForEntity returns pending suggestions for one entity, optionally
// narrowed to a suggestion type, highest confidence first.
func (s *SuggestionService) ListForEntity(ctx context.Context, rawEntityType, entityID, rawSuggestionType string) ([]models.RelationshipSuggestion, error) {
	entityType, err := models.ParseEntityType(rawEntityType)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrUnknownType, err.Error())
	}
	var suggestionType models.SuggestionType
	if rawSuggestionType != "" {
		suggestionType, err = models.ParseSuggestionType(rawSuggestionType)
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrUnknownType, err.Error())
		}
	}

	key := SuggestionListKey(entityType, entityID, suggestionType)
	var cached []models.RelationshipSuggestion
	if hit, _ := s.cache.Get(ctx, key, &cached); hit {
		return cached, nil
	}

	suggestions, err := s.repo.ListForEntity(ctx, entityType, entityID, suggestionType)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Set(ctx, key, suggestions, s.cacheTTL); err != nil {
		s.logger.Debug("suggestion listing not cached", zap.String("key", key), zap.Error(err))
	}
	return suggestions, nil
}

// List returns suggestions matching the query across all entities.
func (s *SuggestionService) List(ctx context.Context, query dto.SuggestionQuery) ([]models.RelationshipSuggestion, error) {
	filter, err := s.filterFrom(query)
	if err != nil {
		return nil, err
	}
	return s.repo.List(ctx, filter)
}

// Review records a reviewer decision on a suggestion. The accepted flag
// is monotonic: a suggestion that has been accepted stays accepted.
func (s *SuggestionService) Review(ctx context.Context, id string, req *dto.ReviewSuggestionRequest, actorID *string) (*models.RelationshipSuggestion, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid review payload")
	}
	suggestion, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Accepted == nil || !*req.Accepted {
		if suggestion.Accepted {
			return nil, appErrors.Clone(appErrors.ErrConflict, "an accepted suggestion cannot be reverted")
		}
		return suggestion, nil
	}

	if len(req.AppliedData) > 0 {
		if !json.Valid(req.AppliedData) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "appliedData must be valid JSON")
		}
		if err := s.repo.MergePayload(ctx, id, req.AppliedData); err != nil {
			return nil, err
		}
	}

	if !suggestion.Accepted {
		if err := s.repo.Accept(ctx, id, time.Now().UTC()); err != nil {
			return nil, fmt.Errorf("accept suggestion: %w", err)
		}
	}

	s.cache.InvalidateEntity(ctx, suggestion.SourceType, suggestion.SourceID)
	s.recordReview(suggestion, actorID)

	return s.Get(ctx, id)
}

// Export renders the suggestions matching the query as CSV or PDF.
func (s *SuggestionService) Export(ctx context.Context, query dto.SuggestionQuery, format string) ([]byte, string, string, error) {
	suggestions, err := s.List(ctx, query)
	if err != nil {
		return nil, "", "", err
	}

	headers := []string{"ID", "Source", "Target", "Relationship", "Strategy", "Confidence", "Accepted", "Created"}
	rows := make([]map[string]string, 0, len(suggestions))
	for _, sg := range suggestions {
		rows = append(rows, map[string]string{
			"ID":           sg.ID,
			"Source":       fmt.Sprintf("%s/%s", sg.SourceType, sg.SourceID),
			"Target":       fmt.Sprintf("%s/%s", sg.TargetType, sg.TargetID),
			"Relationship": string(sg.Relationship),
			"Strategy":     sg.Strategy,
			"Confidence":   strconv.FormatFloat(sg.Confidence, 'f', 2, 64),
			"Accepted":     strconv.FormatBool(sg.Accepted),
			"Created":      sg.CreatedAt.Format(time.RFC3339),
		})
	}
	dataset := export.Dataset{Headers: headers, Rows: rows}
	stamp := time.Now().UTC().Format("2006-01-02")

	switch format {
	case "", "csv":
		content, err := s.csv.Render(dataset)
		if err != nil {
			return nil, "", "", fmt.Errorf("export suggestions csv: %w", err)
		}
		return content, fmt.Sprintf("relationship-suggestions-%s.csv", stamp), "text/csv", nil
	case "pdf":
		content, err := s.pdf.Render(dataset, "Relationship Suggestions")
		if err != nil {
			return nil, "", "", fmt.Errorf("export suggestions pdf: %w", err)
		}
		return content, fmt.Sprintf("relationship-suggestions-%s.pdf", stamp), "application/pdf", nil
	default:
		return nil, "", "", appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", format))
	}
}

func (s *SuggestionService) filterFrom(query dto.SuggestionQuery) (models.SuggestionFilter, error) {
	filter := models.SuggestionFilter{
		EntityID:      query.EntityID,
		MinConfidence: query.MinConfidence,
		Limit:         query.Limit,
	}
	if filter.Limit <= 0 {
		filter.Limit = s.defaultLimit
	}
	if query.EntityType != "" {
		entityType, err := models.ParseEntityType(query.EntityType)
		if err != nil {
			return models.SuggestionFilter{}, appErrors.Clone(appErrors.ErrUnknownType, err.Error())
		}
		filter.EntityType = entityType
	}
	if query.Type != "" {
		suggestionType, err := models.ParseSuggestionType(query.Type)
		if err != nil {
			return models.SuggestionFilter{}, appErrors.Clone(appErrors.ErrUnknownType, err.Error())
		}
		filter.Type = suggestionType
	}
	return filter, nil
}

func (s *SuggestionService) recordReview(suggestion *models.RelationshipSuggestion, actorID *string) {
	if s.audit == nil {
		return
	}
	values, _ := json.Marshal(map[string]interface{}{
		"accepted":     true,
		"relationship": suggestion.Relationship,
		"source_id":    suggestion.SourceID,
		"target_id":    suggestion.TargetID,
	})
	s.audit.Record(&models.AuditLog{
		UserID:     actorID,
		Action:     models.AuditActionSuggestionReview,
		Resource:   "relationship_suggestion",
		ResourceID: &suggestion.ID,
		NewValues:  values,
	})
}
