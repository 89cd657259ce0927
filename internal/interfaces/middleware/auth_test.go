package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/procureflow/backend/internal/interfaces/middleware"
	"github.com/procureflow/backend/pkg/auth"
	"github.com/procureflow/backend/pkg/constants"
)

func newProbeRouter(extra ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	handlers := append([]gin.HandlerFunc{middleware.RequireAuth()}, extra...)
	handlers = append(handlers, func(c *gin.Context) {
		user, _ := c.Get(constants.ContextKeyUser)
		session := user.(auth.UserSession)
		c.JSON(http.StatusOK, gin.H{"id": session.ID})
	})
	router.GET("/probe", handlers...)
	return router
}

func TestRequireAuthRejectsMissingToken(t *testing.T) {
	router := newProbeRouter()

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/probe", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireAuthRejectsMalformedHeader(t *testing.T) {
	router := newProbeRouter()

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/probe", nil)
	req.Header.Set(constants.HeaderAuthorization, "Token abc")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireAuthAcceptsValidToken(t *testing.T) {
	router := newProbeRouter()

	token, err := auth.GenerateToken(auth.UserSession{
		ID:   "user-1",
		Name: "Approver",
		Role: constants.RoleApprover,
	})
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/probe", nil)
	req.Header.Set(constants.HeaderAuthorization, "Bearer "+token)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "user-1")
}

func TestRequireAdminBlocksNonAdmins(t *testing.T) {
	router := newProbeRouter(middleware.RequireAdmin())

	token, err := auth.GenerateToken(auth.UserSession{
		ID:   "user-1",
		Role: constants.RoleApprover,
	})
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/probe", nil)
	req.Header.Set(constants.HeaderAuthorization, "Bearer "+token)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRequireAdminAllowsAdmins(t *testing.T) {
	router := newProbeRouter(middleware.RequireAdmin())

	token, err := auth.GenerateToken(auth.UserSession{
		ID:   "admin-1",
		Role: constants.RoleAdmin,
	})
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/probe", nil)
	req.Header.Set(constants.HeaderAuthorization, "Bearer "+token)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}
