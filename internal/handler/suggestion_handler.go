package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/studiva/automation-api/internal/dto"
	"github.com/studiva/automation-api/internal/middleware"
	"github.com/studiva/automation-api/internal/models"
	"github.com/studiva/automation-api/internal/service"
	appErrors "github.com/studiva/automation-api/pkg/errors"
	"github.com/studiva/automation-api/pkg/response"
)

// SuggestionHandler exposes relationship inference, listing, review,
// apply and export endpoints.
type SuggestionHandler struct {
	analyzer      *service.AnalyzerService
	suggestions   *service.SuggestionService
	applier       *service.ApplierService
	minConfidence float64
	exportEnabled bool
}

// NewSuggestionHandler constructs a suggestion handler.
func NewSuggestionHandler(analyzer *service.AnalyzerService, suggestions *service.SuggestionService, applier *service.ApplierService, minConfidence float64, exportEnabled bool) *SuggestionHandler {
	return &SuggestionHandler{
		analyzer:      analyzer,
		suggestions:   suggestions,
		applier:       applier,
		minConfidence: minConfidence,
		exportEnabled: exportEnabled,
	}
}

// Infer godoc
// @Summary Run relationship inference for an entity
// @Tags Suggestions
// @Accept json
// @Produce json
// @Param payload body dto.InferRelationshipsRequest true "Inference payload"
// @Success 200 {object} response.Envelope
// @Router /workflows/infer-relationships [post]
func (h *SuggestionHandler) Infer(c *gin.Context) {
	var req dto.InferRelationshipsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	entityType, err := models.ParseEntityType(req.EntityType)
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrUnknownType, err.Error()))
		return
	}
	analysis, err := h.analyzer.InferRelationships(c.Request.Context(), entityType, req.EntityID, service.AnalyzeOptions{
		MinConfidence: h.minConfidence,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, analysis, nil)
}

// ListForEntity godoc
// @Summary List pending suggestions for one entity
// @Tags Suggestions
// @Produce json
// @Param entityType path string true "Entity type"
// @Param entityId path string true "Entity ID"
// @Param suggestionType query string false "Filter by suggestion type"
// @Success 200 {object} response.Envelope
// @Router /workflows/relationship-suggestions/{entityType}/{entityId} [get]
func (h *SuggestionHandler) ListForEntity(c *gin.Context) {
	suggestions, err := h.suggestions.ListForEntity(c.Request.Context(),
		c.Param("entityType"), c.Param("entityId"), c.Query("suggestionType"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, suggestions, nil)
}

// List godoc
// @Summary List suggestions across entities
// @Tags Suggestions
// @Produce json
// @Param entityType query string false "Filter by source entity type"
// @Param entityId query string false "Filter by source entity ID"
// @Param suggestionType query string false "Filter by suggestion type"
// @Param minConfidence query number false "Minimum confidence"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /workflows/suggestions [get]
func (h *SuggestionHandler) List(c *gin.Context) {
	var query dto.SuggestionQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query"))
		return
	}
	suggestions, err := h.suggestions.List(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, suggestions, nil)
}

// Review godoc
// @Summary Record a reviewer decision on a suggestion
// @Tags Suggestions
// @Accept json
// @Produce json
// @Param id path string true "Suggestion ID"
// @Param payload body dto.ReviewSuggestionRequest true "Review payload"
// @Success 200 {object} response.Envelope
// @Router /workflows/suggestions/{id} [put]
func (h *SuggestionHandler) Review(c *gin.Context) {
	var req dto.ReviewSuggestionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	suggestion, err := h.suggestions.Review(c.Request.Context(), c.Param("id"), &req, actorID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, suggestion, nil)
}

// Apply godoc
// @Summary Apply a relationship suggestion
// @Tags Suggestions
// @Accept json
// @Produce json
// @Param payload body dto.ApplyRelationshipRequest true "Apply payload"
// @Success 200 {object} response.Envelope
// @Router /workflows/apply-relationship [post]
func (h *SuggestionHandler) Apply(c *gin.Context) {
	var req dto.ApplyRelationshipRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	if req.SuggestionID == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "suggestionId is required"))
		return
	}
	result, err := h.applier.Apply(c.Request.Context(), req.SuggestionID, actorID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Export godoc
// @Summary Export suggestions as CSV or PDF
// @Tags Suggestions
// @Produce octet-stream
// @Param format query string false "csv or pdf"
// @Success 200 {file} binary
// @Router /workflows/suggestions/export [get]
func (h *SuggestionHandler) Export(c *gin.Context) {
	if !h.exportEnabled {
		response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "suggestion export is disabled"))
		return
	}
	var query dto.SuggestionQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query"))
		return
	}
	content, filename, contentType, err := h.suggestions.Export(c.Request.Context(), query, c.DefaultQuery("format", "csv"))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, contentType, content)
}

func actorID(c *gin.Context) *string {
	claims := middleware.CurrentUser(c)
	if claims == nil {
		return nil
	}
	return &claims.UserID
}
