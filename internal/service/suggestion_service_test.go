package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/studiva/automation-api/internal/dto"
	"github.com/studiva/automation-api/internal/models"
	appErrors "github.com/studiva/automation-api/pkg/errors"
)

type fakeSuggestionStore struct {
	suggestions map[string]models.RelationshipSuggestion
	lastFilter  models.SuggestionFilter
	accepted    []string
	merged      map[string][]byte
}

func newFakeSuggestionStore() *fakeSuggestionStore {
	return &fakeSuggestionStore{
		suggestions: map[string]models.RelationshipSuggestion{},
		merged:      map[string][]byte{},
	}
}

func (f *fakeSuggestionStore) GetByID(ctx context.Context, id string) (*models.RelationshipSuggestion, error) {
	if s, ok := f.suggestions[id]; ok {
		return &s, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeSuggestionStore) ListForEntity(ctx context.Context, entityType models.EntityType, entityID string, suggestionType models.SuggestionType) ([]models.RelationshipSuggestion, error) {
	var out []models.RelationshipSuggestion
	for _, s := range f.suggestions {
		if s.SourceType != entityType || s.SourceID != entityID || s.Accepted {
			continue
		}
		if suggestionType != "" && s.Type != suggestionType {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

func (f *fakeSuggestionStore) List(ctx context.Context, filter models.SuggestionFilter) ([]models.RelationshipSuggestion, error) {
	f.lastFilter = filter
	var out []models.RelationshipSuggestion
	for _, s := range f.suggestions {
		if filter.EntityType != "" && s.SourceType != filter.EntityType {
			continue
		}
		if filter.MinConfidence > 0 && s.Confidence < filter.MinConfidence {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

func (f *fakeSuggestionStore) Accept(ctx context.Context, id string, appliedAt time.Time) error {
	s, ok := f.suggestions[id]
	if !ok {
		return sql.ErrNoRows
	}
	s.Accepted = true
	s.AppliedAt = &appliedAt
	f.suggestions[id] = s
	f.accepted = append(f.accepted, id)
	return nil
}

func (f *fakeSuggestionStore) MergePayload(ctx context.Context, id string, data []byte) error {
	f.merged[id] = data
	return nil
}

func boolPtr(v bool) *bool { return &v }

func TestSuggestionReviewAccepts(t *testing.T) {
	store := newFakeSuggestionStore()
	store.suggestions["sg1"] = models.RelationshipSuggestion{
		ID: "sg1", SourceType: models.EntityParent, SourceID: "jane",
		TargetType: models.EntityStudent, TargetID: "tom",
		Type: models.SuggestionRelationshipInference, Relationship: models.RelationshipParentChild,
	}
	svc := NewSuggestionService(store, nil, zap.NewNop())

	suggestion, err := svc.Review(context.Background(), "sg1", &dto.ReviewSuggestionRequest{
		Accepted:    boolPtr(true),
		AppliedData: json.RawMessage(`{"note":"confirmed by registrar"}`),
	}, nil)
	require.NoError(t, err)

	assert.True(t, suggestion.Accepted)
	assert.NotNil(t, suggestion.AppliedAt)
	assert.Equal(t, []string{"sg1"}, store.accepted)
	assert.Contains(t, string(store.merged["sg1"]), "registrar")
}

func TestSuggestionReviewAcceptedIsMonotonic(t *testing.T) {
	appliedAt := time.Now().UTC()
	store := newFakeSuggestionStore()
	store.suggestions["sg1"] = models.RelationshipSuggestion{ID: "sg1", Accepted: true, AppliedAt: &appliedAt}
	svc := NewSuggestionService(store, nil, zap.NewNop())

	_, err := svc.Review(context.Background(), "sg1", &dto.ReviewSuggestionRequest{Accepted: boolPtr(false)}, nil)
	require.Error(t, err)
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)

	// Accepting again is a no-op, not an error.
	suggestion, err := svc.Review(context.Background(), "sg1", &dto.ReviewSuggestionRequest{Accepted: boolPtr(true)}, nil)
	require.NoError(t, err)
	assert.True(t, suggestion.Accepted)
	assert.Empty(t, store.accepted)
}

func TestSuggestionReviewRejectPendingIsNoOp(t *testing.T) {
	store := newFakeSuggestionStore()
	store.suggestions["sg1"] = models.RelationshipSuggestion{ID: "sg1"}
	svc := NewSuggestionService(store, nil, zap.NewNop())

	suggestion, err := svc.Review(context.Background(), "sg1", &dto.ReviewSuggestionRequest{Accepted: boolPtr(false)}, nil)
	require.NoError(t, err)
	assert.False(t, suggestion.Accepted)
	assert.Nil(t, suggestion.AppliedAt)
	assert.Empty(t, store.accepted)
}

func TestSuggestionReviewUnknownID(t *testing.T) {
	svc := NewSuggestionService(newFakeSuggestionStore(), nil, zap.NewNop())

	_, err := svc.Review(context.Background(), "missing", &dto.ReviewSuggestionRequest{Accepted: boolPtr(true)}, nil)
	require.Error(t, err)
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}

func TestSuggestionListForEntityRejectsUnknownTypes(t *testing.T) {
	svc := NewSuggestionService(newFakeSuggestionStore(), nil, zap.NewNop())

	_, err := svc.ListForEntity(context.Background(), "alien", "x", "")
	require.Error(t, err)

	_, err = svc.ListForEntity(context.Background(), "student", "x", "guesswork")
	require.Error(t, err)
}

func TestSuggestionListAppliesDefaultLimit(t *testing.T) {
	store := newFakeSuggestionStore()
	svc := NewSuggestionService(store, nil, zap.NewNop(), WithSuggestionDefaultLimit(7))

	_, err := svc.List(context.Background(), dto.SuggestionQuery{})
	require.NoError(t, err)
	assert.Equal(t, 7, store.lastFilter.Limit)
}

func TestSuggestionExportCSV(t *testing.T) {
	store := newFakeSuggestionStore()
	store.suggestions["sg1"] = models.RelationshipSuggestion{
		ID: "sg1", SourceType: models.EntityParent, SourceID: "jane",
		TargetType: models.EntityStudent, TargetID: "tom",
		Relationship: models.RelationshipParentChild, Strategy: string(StrategySurname),
		Confidence: 0.8, CreatedAt: time.Now().UTC(),
	}
	svc := NewSuggestionService(store, nil, zap.NewNop())

	content, filename, contentType, err := svc.Export(context.Background(), dto.SuggestionQuery{}, "csv")
	require.NoError(t, err)
	assert.Equal(t, "text/csv", contentType)
	assert.True(t, strings.HasSuffix(filename, ".csv"))

	lines := strings.Split(strings.TrimSpace(string(content)), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "Relationship")
	assert.Contains(t, lines[1], "parent_child")
}

func TestSuggestionExportUnknownFormat(t *testing.T) {
	svc := NewSuggestionService(newFakeSuggestionStore(), nil, zap.NewNop())

	_, _, _, err := svc.Export(context.Background(), dto.SuggestionQuery{}, "xlsx")
	require.Error(t, err)
}
