package service

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/studiva/automation-api/internal/models"
	appErrors "github.com/studiva/automation-api/pkg/errors"
)

type suggestionWriter interface {
	Create(ctx context.Context, suggestion *models.RelationshipSuggestion) error
}

// AnalyzeOptions tunes a single analysis run.
type AnalyzeOptions struct {
	CandidateLimit int
	MinConfidence  float64
}

// AnalyzerService runs the applicable matching strategies for an
// entity pair and persists the resulting suggestions.
type AnalyzerService struct {
	entities     *EntityService
	suggestions  suggestionWriter
	cache        *CacheService
	metrics      *MetricsService
	logger       *zap.Logger
	candidateCap int
}

// NewAnalyzerService constructs the relationship analyzer.
func NewAnalyzerService(entities *EntityService, suggestions suggestionWriter, cache *CacheService, metrics *MetricsService, candidateCap int, logger *zap.Logger) *AnalyzerService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if candidateCap <= 0 {
		candidateCap = 200
	}
	return &AnalyzerService{
		entities:     entities,
		suggestions:  suggestions,
		cache:        cache,
		metrics:      metrics,
		logger:       logger,
		candidateCap: candidateCap,
	}
}

// Analyze scores one (sourceType, targetType) pair. Entity-not-found
// propagates; a pair with no applicable strategies or no matches yields
// an empty analysis, not an error.
func (s *AnalyzerService) Analyze(ctx context.Context, sourceType models.EntityType, sourceID string, targetType models.EntityType, opts AnalyzeOptions) (*models.RelationshipAnalysis, error) {
	analysis := &models.RelationshipAnalysis{
		SourceType:        sourceType,
		SourceID:          sourceID,
		Strategies:        []string{},
		Suggestions:       []models.RelationshipSuggestion{},
		Reasoning:         []string{},
		ConfidenceFactors: map[string]float64{},
	}

	strategies := StrategiesFor(sourceType, targetType)
	if len(strategies) == 0 {
		return analysis, nil
	}

	entity, err := s.entities.Get(ctx, sourceType, sourceID)
	if err != nil {
		return nil, err
	}
	src := MatchSourceOf(entity)

	limit := opts.CandidateLimit
	if limit <= 0 {
		limit = s.candidateCap
	}
	pool, err := s.entities.Candidates(ctx, targetType, limit)
	if err != nil {
		return nil, err
	}
	pool = excludeSelf(pool, sourceType, sourceID)

	for _, name := range strategies {
		fn := strategyFuncs[name]
		matches := fn(src, pool)
		analysis.Strategies = append(analysis.Strategies, string(name))

		best := 0.0
		for _, match := range matches {
			if opts.MinConfidence > 0 && match.Confidence < opts.MinConfidence {
				continue
			}
			suggestion, err := s.persistMatch(ctx, src, name, match)
			if err != nil {
				return nil, err
			}
			analysis.Suggestions = append(analysis.Suggestions, *suggestion)
			analysis.Reasoning = append(analysis.Reasoning, match.Reasoning)
			if match.Confidence > best {
				best = match.Confidence
			}
		}
		if best > 0 {
			analysis.ConfidenceFactors[string(name)] = best
		}
	}

	analysis.OverallConfidence = overallConfidence(analysis.ConfidenceFactors)

	if s.cache != nil {
		s.cache.InvalidateEntity(ctx, sourceType, sourceID)
	}
	return analysis, nil
}

// InferRelationships runs every applicable target type for the source
// entity and merges the per-pair analyses.
func (s *AnalyzerService) InferRelationships(ctx context.Context, sourceType models.EntityType, sourceID string, opts AnalyzeOptions) (*models.RelationshipAnalysis, error) {
	merged := &models.RelationshipAnalysis{
		SourceType:        sourceType,
		SourceID:          sourceID,
		Strategies:        []string{},
		Suggestions:       []models.RelationshipSuggestion{},
		Reasoning:         []string{},
		ConfidenceFactors: map[string]float64{},
	}

	for _, targetType := range TargetTypesFor(sourceType) {
		analysis, err := s.Analyze(ctx, sourceType, sourceID, targetType, opts)
		if err != nil {
			return nil, err
		}
		merged.Suggestions = append(merged.Suggestions, analysis.Suggestions...)
		merged.Reasoning = append(merged.Reasoning, analysis.Reasoning...)
		for _, name := range analysis.Strategies {
			if !containsString(merged.Strategies, name) {
				merged.Strategies = append(merged.Strategies, name)
			}
		}
		for name, factor := range analysis.ConfidenceFactors {
			if factor > merged.ConfidenceFactors[name] {
				merged.ConfidenceFactors[name] = factor
			}
		}
	}

	merged.OverallConfidence = overallConfidence(merged.ConfidenceFactors)
	return merged, nil
}

func (s *AnalyzerService) persistMatch(ctx context.Context, src MatchSource, strategy StrategyName, match Match) (*models.RelationshipSuggestion, error) {
	payload, err := json.Marshal(map[string]interface{}{
		"strategy":    string(strategy),
		"confidence":  match.Confidence,
		"reasoning":   match.Reasoning,
		"target_name": match.TargetName,
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode suggestion payload")
	}

	suggestion := &models.RelationshipSuggestion{
		SourceType:   src.Type,
		SourceID:     src.ID,
		TargetType:   match.TargetType,
		TargetID:     match.TargetID,
		Type:         models.SuggestionRelationshipInference,
		Relationship: match.Relationship,
		Strategy:     string(strategy),
		Confidence:   match.Confidence,
		Reasoning:    match.Reasoning,
		Payload:      payload,
	}
	if err := s.suggestions.Create(ctx, suggestion); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist suggestion")
	}
	if s.metrics != nil {
		s.metrics.RecordSuggestion(string(strategy), match.Confidence)
	}
	s.logger.Debug("suggestion generated",
		zap.String("strategy", string(strategy)),
		zap.String("source", fmt.Sprintf("%s/%s", src.Type, src.ID)),
		zap.String("target", fmt.Sprintf("%s/%s", match.TargetType, match.TargetID)),
		zap.Float64("confidence", match.Confidence),
	)
	return suggestion, nil
}

// overallConfidence blends confidence factors using the per-strategy
// weight table as a weight-normalised average.
func overallConfidence(factors map[string]float64) float64 {
	var weighted, totalWeight float64
	for name, factor := range factors {
		weight, ok := strategyWeights[StrategyName(name)]
		if !ok {
			continue
		}
		if StrategyName(name) == StrategySurname && factor < surnameExactCutoff {
			weight = surnamePartialWeight
		}
		weighted += weight * factor
		totalWeight += weight
	}
	if totalWeight == 0 {
		return 0
	}
	return weighted / totalWeight
}

func excludeSelf(pool []MatchCandidate, sourceType models.EntityType, sourceID string) []MatchCandidate {
	out := pool[:0]
	for _, cand := range pool {
		if cand.Type == sourceType && cand.ID == sourceID {
			continue
		}
		out = append(out, cand)
	}
	return out
}

func containsString(list []string, value string) bool {
	for _, v := range list {
		if v == value {
			return true
		}
	}
	return false
}
