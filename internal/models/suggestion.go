package models

import (
	"fmt"
	"time"

	"github.com/jmoiron/sqlx/types"
)

// SuggestionType categorises how a suggestion was produced.
type SuggestionType string

const (
	SuggestionRelationshipInference SuggestionType = "relationship_inference"
	SuggestionIntelligentLinking    SuggestionType = "intelligent_linking"
)

// ParseSuggestionType validates a raw suggestion type string.
func ParseSuggestionType(raw string) (SuggestionType, error) {
	switch SuggestionType(raw) {
	case SuggestionRelationshipInference, SuggestionIntelligentLinking:
		return SuggestionType(raw), nil
	default:
		return "", fmt.Errorf("unknown suggestion type %q", raw)
	}
}

// RelationshipType enumerates the concrete link kinds the applier can commit.
type RelationshipType string

const (
	RelationshipClassAssignment RelationshipType = "class_assignment"
	RelationshipParentChild     RelationshipType = "parent_child"
	RelationshipTeacherClass    RelationshipType = "teacher_class"
	RelationshipClassSubject    RelationshipType = "class_subject"
)

// ParseRelationshipType validates a raw relationship type string.
func ParseRelationshipType(raw string) (RelationshipType, error) {
	switch RelationshipType(raw) {
	case RelationshipClassAssignment, RelationshipParentChild, RelationshipTeacherClass, RelationshipClassSubject:
		return RelationshipType(raw), nil
	default:
		return "", fmt.Errorf("unknown relationship type %q", raw)
	}
}

// RelationshipSuggestion is a proposed link between two entities with a
// confidence score. Accepted is monotonic: once true it is never reset,
// and AppliedAt is set exactly when the suggestion is accepted.
type RelationshipSuggestion struct {
	ID           string           `db:"id" json:"id"`
	SourceType   EntityType       `db:"source_type" json:"source_type"`
	SourceID     string           `db:"source_id" json:"source_id"`
	TargetType   EntityType       `db:"target_type" json:"target_type"`
	TargetID     string           `db:"target_id" json:"target_id"`
	Type         SuggestionType   `db:"suggestion_type" json:"suggestion_type"`
	Relationship RelationshipType `db:"relationship" json:"relationship"`
	Strategy     string           `db:"strategy" json:"strategy"`
	Confidence   float64          `db:"confidence" json:"confidence"`
	Reasoning    string           `db:"reasoning" json:"reasoning"`
	Payload      types.JSONText   `db:"payload" json:"payload,omitempty"`
	Accepted     bool             `db:"accepted" json:"accepted"`
	AppliedAt    *time.Time       `db:"applied_at" json:"applied_at,omitempty"`
	CreatedAt    time.Time        `db:"created_at" json:"created_at"`
}

// SuggestionFilter constrains suggestion listing queries.
type SuggestionFilter struct {
	EntityType    EntityType
	EntityID      string
	Type          SuggestionType
	MinConfidence float64
	Accepted      *bool
	Limit         int
}

// RelationshipAnalysis aggregates the outcome of one inference run.
type RelationshipAnalysis struct {
	SourceType        EntityType               `json:"source_type"`
	SourceID          string                   `json:"source_id"`
	Strategies        []string                 `json:"strategies"`
	Suggestions       []RelationshipSuggestion `json:"suggestions"`
	Reasoning         []string                 `json:"reasoning"`
	ConfidenceFactors map[string]float64       `json:"confidence_factors"`
	OverallConfidence float64                  `json:"overall_confidence"`
}

// ApplyResult reports the mutation performed for an accepted suggestion.
type ApplyResult struct {
	SuggestionID string           `json:"suggestion_id"`
	Relationship RelationshipType `json:"relationship"`
	SourceID     string           `json:"source_id"`
	TargetID     string           `json:"target_id"`
	AppliedAt    time.Time        `json:"applied_at"`
}
