package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/procureflow/backend/internal/application/services"
)

// ApprovalHandler exposes the approval runtime: submitting requests,
// recording decisions, and the approver's pending queue.
type ApprovalHandler struct {
	submission *services.SubmissionService
	decisions  *services.DecisionService
	audit      *services.AuditService
}

// NewApprovalHandler creates a new ApprovalHandler
func NewApprovalHandler(submission *services.SubmissionService, decisions *services.DecisionService, audit *services.AuditService) *ApprovalHandler {
	return &ApprovalHandler{
		submission: submission,
		decisions:  decisions,
		audit:      audit,
	}
}

// Submit handles POST /api/approvals/submit
func (h *ApprovalHandler) Submit(c *gin.Context) {
	var req services.SubmitRequest
	if !BindJSON(c, &req) {
		return
	}

	inst, err := h.submission.Submit(c.Request.Context(), &req, GetUserFromContext(c))
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondCreated(c, "instance", "Request submitted for approval", inst)
}

// GetInstance handles GET /api/approvals/instances/:id
func (h *ApprovalHandler) GetInstance(c *gin.Context) {
	inst, err := h.submission.GetInstance(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondOK(c, "instance", inst)
}

// GetInstanceByRequest handles GET /api/approvals/requests/:requestId
func (h *ApprovalHandler) GetInstanceByRequest(c *gin.Context) {
	inst, err := h.submission.GetInstanceByRequest(c.Request.Context(), c.Param("requestId"))
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondOK(c, "instance", inst)
}

// Decide handles POST /api/approvals/actions/:actionId/decide
func (h *ApprovalHandler) Decide(c *gin.Context) {
	var req services.DecisionRequest
	if !BindJSON(c, &req) {
		return
	}
	if req.ActionID == "" {
		req.ActionID = c.Param("actionId")
	}

	act, err := h.decisions.RecordDecision(c.Request.Context(), &req, GetUserFromContext(c))
	if err != nil {
		RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "Decision recorded",
		"action":  act,
	})
}

// GetPending handles GET /api/approvals/pending — the caller's own
// work queue.
func (h *ApprovalHandler) GetPending(c *gin.Context) {
	user := GetUserFromContext(c)

	actions, err := h.decisions.ListPendingForApprover(c.Request.Context(), user.ID)
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondOK(c, "actions", actions)
}

// GetProgress handles GET /api/approvals/instances/:id/progress
func (h *ApprovalHandler) GetProgress(c *gin.Context) {
	progress, err := h.audit.GetProgress(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondOK(c, "progress", progress)
}

// GetHistory handles GET /api/approvals/instances/:id/history?filter=
func (h *ApprovalHandler) GetHistory(c *gin.Context) {
	actions, err := h.audit.ActionHistory(c.Request.Context(), c.Param("id"), c.Query("filter"))
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondOK(c, "actions", actions)
}

// GetDashboard handles GET /api/approvals/dashboard?filter=
func (h *ApprovalHandler) GetDashboard(c *gin.Context) {
	user := GetUserFromContext(c)

	entries, err := h.audit.Dashboard(c.Request.Context(), user.ID, c.Query("filter"))
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondOK(c, "entries", entries)
}
