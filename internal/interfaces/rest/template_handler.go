package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/procureflow/backend/internal/application/services"
	"github.com/procureflow/backend/internal/domain/models"
	"github.com/procureflow/backend/pkg/errors"
)

// TemplateHandler exposes workflow template authoring endpoints.
// All routes are admin-only.
type TemplateHandler struct {
	templates *services.TemplateService
}

// NewTemplateHandler creates a new TemplateHandler
func NewTemplateHandler(templates *services.TemplateService) *TemplateHandler {
	return &TemplateHandler{templates: templates}
}

// CreateTemplate handles POST /api/workflows/templates
func (h *TemplateHandler) CreateTemplate(c *gin.Context) {
	var req services.CreateTemplateRequest
	if !BindJSON(c, &req) {
		return
	}

	tpl, err := h.templates.CreateTemplate(c.Request.Context(), &req, GetUserFromContext(c))
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondCreated(c, "template", "Workflow template created", tpl)
}

// GetTemplate handles GET /api/workflows/templates/:id
func (h *TemplateHandler) GetTemplate(c *gin.Context) {
	tpl, err := h.templates.GetTemplate(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondOK(c, "template", tpl)
}

// ListTemplates handles GET /api/workflows/templates?entity_type=&entity_id=
func (h *TemplateHandler) ListTemplates(c *gin.Context) {
	entity := models.EntityRef{
		Type: c.Query("entity_type"),
		ID:   c.Query("entity_id"),
	}

	templates, err := h.templates.ListTemplates(c.Request.Context(), entity)
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondOK(c, "templates", templates)
}

// AddStage handles POST /api/workflows/templates/:id/stages
func (h *TemplateHandler) AddStage(c *gin.Context) {
	var req services.AddStageRequest
	if !BindJSON(c, &req) {
		return
	}
	if req.TemplateID == "" {
		req.TemplateID = c.Param("id")
	}
	if req.TemplateID != c.Param("id") {
		RespondAppError(c, errors.NewValidationError("template_id", "body and path template ids differ"))
		return
	}

	stage, err := h.templates.AddStage(c.Request.Context(), &req, GetUserFromContext(c))
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondCreated(c, "stage", "Workflow stage added", stage)
}

// AddStep handles POST /api/workflows/stages/:stageId/steps
func (h *TemplateHandler) AddStep(c *gin.Context) {
	var req services.AddStepRequest
	if !BindJSON(c, &req) {
		return
	}
	if req.StageID == "" {
		req.StageID = c.Param("stageId")
	}
	if req.StageID != c.Param("stageId") {
		RespondAppError(c, errors.NewValidationError("stage_id", "body and path stage ids differ"))
		return
	}

	step, err := h.templates.AddStep(c.Request.Context(), &req, GetUserFromContext(c))
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondCreated(c, "step", "Workflow step added", step)
}

// Activate handles PUT /api/workflows/templates/:id/activate
func (h *TemplateHandler) Activate(c *gin.Context) {
	if err := h.templates.Activate(c.Request.Context(), c.Param("id"), GetUserFromContext(c)); err != nil {
		RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Workflow template activated"})
}
