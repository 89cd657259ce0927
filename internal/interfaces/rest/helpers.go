package rest

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/procureflow/backend/pkg/auth"
	"github.com/procureflow/backend/pkg/constants"
	"github.com/procureflow/backend/pkg/errors"
)

// GetUserFromContext extracts the authenticated user from gin.Context
func GetUserFromContext(c *gin.Context) *auth.UserSession {
	userInterface, exists := c.Get(constants.ContextKeyUser)
	if !exists {
		return nil
	}
	user := userInterface.(auth.UserSession)
	return &user
}

// RespondAppError sends a standardised JSON error response using pkg/errors
func RespondAppError(c *gin.Context, err error) {
	code := errors.GetHTTPStatus(err)
	errorCode := errors.GetErrorCode(err)
	message := err.Error()

	if code >= 500 {
		log.Printf("❌ ERROR [%d] %s %s: %s", code, c.Request.Method, c.Request.URL.Path, message)
	}

	c.JSON(code, gin.H{
		constants.ResponseError: message,
		constants.FieldMessage:  message,
		"code":                  errorCode,
	})
}

// BindJSON binds JSON and returns true if successful. If failed, it
// sends a bad request error.
func BindJSON(c *gin.Context, obj interface{}) bool {
	if err := c.ShouldBindJSON(obj); err != nil {
		RespondAppError(c, errors.NewValidationError("body", err.Error()))
		return false
	}
	return true
}

// RespondCreated sends a 201 with a message and the created object
func RespondCreated(c *gin.Context, key, message string, obj interface{}) {
	c.JSON(http.StatusCreated, gin.H{
		constants.FieldMessage: message,
		key:                    obj,
	})
}

// RespondOK sends a 200 with the result wrapped in a JSON key
func RespondOK(c *gin.Context, key string, obj interface{}) {
	c.JSON(http.StatusOK, gin.H{key: obj})
}
