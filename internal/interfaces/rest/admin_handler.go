package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/procureflow/backend/internal/application/services"
)

// AdminHandler exposes operational endpoints: reference catalogs and a
// manual escalation sweep trigger.
type AdminHandler struct {
	templates  *services.TemplateService
	escalation *services.EscalationService
}

// NewAdminHandler creates a new AdminHandler
func NewAdminHandler(templates *services.TemplateService, escalation *services.EscalationService) *AdminHandler {
	return &AdminHandler{templates: templates, escalation: escalation}
}

// GetReferenceList handles GET /api/admin/references/:listType
func (h *AdminHandler) GetReferenceList(c *gin.Context) {
	items, err := h.templates.ListReferenceItems(c.Request.Context(), c.Param("listType"))
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondOK(c, "items", items)
}

// TriggerSweep handles POST /api/admin/sweep — runs one escalation
// sweep immediately instead of waiting for the schedule.
func (h *AdminHandler) TriggerSweep(c *gin.Context) {
	result, err := h.escalation.SweepOnce(c.Request.Context())
	if err != nil {
		RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "Escalation sweep completed",
		"result":  result,
	})
}
