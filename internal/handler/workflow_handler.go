package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/studiva/automation-api/internal/dto"
	"github.com/studiva/automation-api/internal/middleware"
	"github.com/studiva/automation-api/internal/service"
	appErrors "github.com/studiva/automation-api/pkg/errors"
	"github.com/studiva/automation-api/pkg/response"
)

// WorkflowHandler exposes the workflow orchestration endpoints.
type WorkflowHandler struct {
	service *service.WorkflowService
}

// NewWorkflowHandler constructs a workflow handler.
func NewWorkflowHandler(svc *service.WorkflowService) *WorkflowHandler {
	return &WorkflowHandler{service: svc}
}

// Execute godoc
// @Summary Execute an automation workflow
// @Tags Workflows
// @Accept json
// @Produce json
// @Param payload body dto.ExecuteWorkflowRequest true "Workflow payload"
// @Success 201 {object} response.Envelope
// @Router /workflows/execute [post]
func (h *WorkflowHandler) Execute(c *gin.Context) {
	var req dto.ExecuteWorkflowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	if req.CreatedBy == "" {
		if claims := middleware.CurrentUser(c); claims != nil {
			req.CreatedBy = claims.UserID
		}
	}
	execution, err := h.service.Execute(c.Request.Context(), &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, execution)
}

// List godoc
// @Summary List workflow executions
// @Tags Workflows
// @Produce json
// @Param workflowType query string false "Filter by workflow type"
// @Param status query string false "Filter by status"
// @Param createdBy query string false "Filter by creator"
// @Param limit query int false "Page size"
// @Param offset query int false "Offset"
// @Success 200 {object} response.Envelope
// @Router /workflows [get]
func (h *WorkflowHandler) List(c *gin.Context) {
	var query dto.WorkflowQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query"))
		return
	}
	executions, err := h.service.List(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, executions, nil)
}

// Status godoc
// @Summary Get workflow execution status
// @Tags Workflows
// @Produce json
// @Param id path string true "Execution ID"
// @Success 200 {object} response.Envelope
// @Router /workflows/{id}/status [get]
func (h *WorkflowHandler) Status(c *gin.Context) {
	execution, err := h.service.GetStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, execution, nil)
}

// Rollback godoc
// @Summary Roll back a failed workflow execution
// @Tags Workflows
// @Produce json
// @Param id path string true "Execution ID"
// @Success 200 {object} response.Envelope
// @Router /workflows/{id}/rollback [post]
func (h *WorkflowHandler) Rollback(c *gin.Context) {
	var actorID *string
	if claims := middleware.CurrentUser(c); claims != nil {
		actorID = &claims.UserID
	}
	execution, err := h.service.Rollback(c.Request.Context(), c.Param("id"), actorID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, execution, nil)
}
