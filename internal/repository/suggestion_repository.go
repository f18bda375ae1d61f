package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/studiva/automation-api/internal/models"
)

// SuggestionRepository persists relationship suggestions. There is no
// uniqueness constraint on (source, target, suggestion_type): repeated
// inference runs append new rows.
type SuggestionRepository struct {
	db *sqlx.DB
}

// NewSuggestionRepository constructs a SuggestionRepository.
func NewSuggestionRepository(db *sqlx.DB) *SuggestionRepository {
	return &SuggestionRepository{db: db}
}

const suggestionColumns = `id, source_type, source_id, target_type, target_id, suggestion_type,
        relationship, strategy, confidence, reasoning, payload, accepted, applied_at, created_at`

// Create inserts a new suggestion row.
func (r *SuggestionRepository) Create(ctx context.Context, suggestion *models.RelationshipSuggestion) error {
	if suggestion.ID == "" {
		suggestion.ID = uuid.NewString()
	}
	if suggestion.CreatedAt.IsZero() {
		suggestion.CreatedAt = time.Now().UTC()
	}
	if suggestion.Payload == nil {
		suggestion.Payload = []byte("{}")
	}
	const query = `INSERT INTO relationship_suggestions (id, source_type, source_id, target_type, target_id,
        suggestion_type, relationship, strategy, confidence, reasoning, payload, accepted, applied_at, created_at)
        VALUES (:id, :source_type, :source_id, :target_type, :target_id, :suggestion_type, :relationship,
        :strategy, :confidence, :reasoning, :payload, :accepted, :applied_at, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, suggestion); err != nil {
		return fmt.Errorf("create suggestion: %w", err)
	}
	return nil
}

// GetByID fetches one suggestion.
func (r *SuggestionRepository) GetByID(ctx context.Context, id string) (*models.RelationshipSuggestion, error) {
	query := fmt.Sprintf(`SELECT %s FROM relationship_suggestions WHERE id = $1`, suggestionColumns)
	var suggestion models.RelationshipSuggestion
	if err := r.db.GetContext(ctx, &suggestion, query, id); err != nil {
		return nil, err
	}
	return &suggestion, nil
}

// ListForEntity returns unaccepted suggestions for a source entity,
// highest confidence first.
func (r *SuggestionRepository) ListForEntity(ctx context.Context, entityType models.EntityType, entityID string, suggestionType models.SuggestionType) ([]models.RelationshipSuggestion, error) {
	query := fmt.Sprintf(`SELECT %s FROM relationship_suggestions
        WHERE source_type = $1 AND source_id = $2 AND accepted = false`, suggestionColumns)
	args := []interface{}{entityType, entityID}
	if suggestionType != "" {
		query += fmt.Sprintf(" AND suggestion_type = $%d", len(args)+1)
		args = append(args, suggestionType)
	}
	query += " ORDER BY confidence DESC, created_at DESC"

	var suggestions []models.RelationshipSuggestion
	if err := r.db.SelectContext(ctx, &suggestions, query, args...); err != nil {
		return nil, fmt.Errorf("list suggestions for entity: %w", err)
	}
	return suggestions, nil
}

// List returns suggestions matching the filter, highest confidence first.
func (r *SuggestionRepository) List(ctx context.Context, filter models.SuggestionFilter) ([]models.RelationshipSuggestion, error) {
	conditions := []string{"1=1"}
	args := []interface{}{}

	if filter.EntityType != "" {
		conditions = append(conditions, fmt.Sprintf("source_type = $%d", len(args)+1))
		args = append(args, filter.EntityType)
	}
	if filter.EntityID != "" {
		conditions = append(conditions, fmt.Sprintf("source_id = $%d", len(args)+1))
		args = append(args, filter.EntityID)
	}
	if filter.Type != "" {
		conditions = append(conditions, fmt.Sprintf("suggestion_type = $%d", len(args)+1))
		args = append(args, filter.Type)
	}
	if filter.MinConfidence > 0 {
		conditions = append(conditions, fmt.Sprintf("confidence >= $%d", len(args)+1))
		args = append(args, filter.MinConfidence)
	}
	if filter.Accepted != nil {
		conditions = append(conditions, fmt.Sprintf("accepted = $%d", len(args)+1))
		args = append(args, *filter.Accepted)
	}

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	query := fmt.Sprintf(`SELECT %s FROM relationship_suggestions WHERE %s
        ORDER BY confidence DESC, created_at DESC LIMIT %d`,
		suggestionColumns, strings.Join(conditions, " AND "), limit)

	var suggestions []models.RelationshipSuggestion
	if err := r.db.SelectContext(ctx, &suggestions, query, args...); err != nil {
		return nil, fmt.Errorf("list suggestions: %w", err)
	}
	return suggestions, nil
}

// MarkAccepted flips the accepted flag and stamps applied_at within the
// provided executor. The flag only ever moves to true.
func (r *SuggestionRepository) MarkAccepted(ctx context.Context, exec sqlx.ExtContext, id string, appliedAt time.Time) error {
	const query = `UPDATE relationship_suggestions SET accepted = true, applied_at = $2 WHERE id = $1`
	result, err := exec.ExecContext(ctx, query, id, appliedAt)
	if err != nil {
		return fmt.Errorf("mark suggestion accepted: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Accept flips the accepted flag outside of any caller transaction.
func (r *SuggestionRepository) Accept(ctx context.Context, id string, appliedAt time.Time) error {
	return r.MarkAccepted(ctx, r.db, id, appliedAt)
}

// MergePayload merges reviewer-supplied data into the stored payload.
func (r *SuggestionRepository) MergePayload(ctx context.Context, id string, data []byte) error {
	const query = `UPDATE relationship_suggestions SET payload = payload || $2::jsonb WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, data); err != nil {
		return fmt.Errorf("merge suggestion payload: %w", err)
	}
	return nil
}
