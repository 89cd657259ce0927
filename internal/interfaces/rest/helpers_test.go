package rest_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/procureflow/backend/internal/interfaces/rest"
	"github.com/procureflow/backend/pkg/errors"
)

func TestRespondAppErrorMapsWorkflowErrors(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cases := []struct {
		name     string
		err      error
		wantCode int
		wantKey  string
	}{
		{"not found", errors.NewNotFoundError("approval instance", "inst-1"), http.StatusNotFound, "NOT_FOUND"},
		{"validation", errors.NewValidationError("amount_cents", "amount cannot be negative"), http.StatusBadRequest, "VALIDATION_ERROR"},
		{"duplicate order", errors.NewDuplicateOrderError("stage", "stage_order", 2), http.StatusConflict, "DUPLICATE_ORDER"},
		{"no workflow", errors.NewNoWorkflowConfiguredError("team", "team-9"), http.StatusUnprocessableEntity, "NO_WORKFLOW_CONFIGURED"},
		{"already submitted", errors.NewAlreadySubmittedError("req-1", "inst-1"), http.StatusConflict, "ALREADY_SUBMITTED"},
		{"approver mismatch", errors.NewApproverMismatchError("act-1", "user-2"), http.StatusForbidden, "APPROVER_MISMATCH"},
		{"action not pending", errors.NewActionNotPendingError("act-1", "approved"), http.StatusConflict, "ACTION_NOT_PENDING"},
		{"instance complete", errors.NewInstanceCompleteError("inst-1", "approved"), http.StatusConflict, "INSTANCE_ALREADY_COMPLETE"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest("GET", "/test", nil)

			rest.RespondAppError(c, tc.err)

			assert.Equal(t, tc.wantCode, w.Code)

			var body map[string]interface{}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tc.wantKey, body["code"])
			assert.NotEmpty(t, body["message"])
		})
	}
}
