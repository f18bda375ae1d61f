package dto

import "encoding/json"

// InferRelationshipsRequest triggers inference for one entity.
type InferRelationshipsRequest struct {
	EntityType string                 `json:"entityType" validate:"required"`
	EntityID   string                 `json:"entityId" validate:"required"`
	Context    map[string]interface{} `json:"context"`
}

// ApplyRelationshipRequest commits one accepted suggestion.
type ApplyRelationshipRequest struct {
	SuggestionID string `json:"suggestionId" validate:"required"`
}

// ReviewSuggestionRequest flips the accepted flag on a suggestion
// without performing the underlying entity mutation.
type ReviewSuggestionRequest struct {
	Accepted    *bool           `json:"accepted" validate:"required"`
	AppliedData json.RawMessage `json:"appliedData"`
}

// SuggestionQuery filters suggestion listings.
type SuggestionQuery struct {
	EntityType    string  `form:"entityType"`
	EntityID      string  `form:"entityId"`
	Type          string  `form:"suggestionType"`
	MinConfidence float64 `form:"minConfidence"`
	Limit         int     `form:"limit"`
}
