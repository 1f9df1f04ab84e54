// util/http_util.go
package util

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	logger "github.com/fortress-iam/gateway/logging"
)

// ErrorBody is the error envelope returned on every failed request. The
// message never names a policy or rule; correlation_id ties the response
// to server-side logs for operator diagnosis.
type ErrorBody struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details"`
}

type RetryBody struct {
	Retryable         bool `json:"retryable"`
	RetryAfterSeconds *int `json:"retry_after_seconds"`
}

func RespondWithError(c *gin.Context, status int, code, message string, err error) {
	RespondWithRetryableError(c, status, code, message, err, false, nil)
}

func RespondWithRetryableError(c *gin.Context, status int, code, message string, err error, retryable bool, retryAfter *int) {
	correlationID := uuid.NewString()
	logger.Error(message,
		zap.Error(err),
		zap.String("code", code),
		zap.String("correlationID", correlationID),
		zap.String("path", c.Request.URL.Path),
		zap.String("method", c.Request.Method))
	c.JSON(status, gin.H{
		"error":          ErrorBody{Code: code, Message: message, Details: map[string]interface{}{}},
		"retry":          RetryBody{Retryable: retryable, RetryAfterSeconds: retryAfter},
		"correlation_id": correlationID,
	})
}

func GetPrincipalFromContext(c *gin.Context) (interface{}, bool) {
	return c.Get("principal")
}

func GetUserIDFromContext(c *gin.Context) (string, error) {
	userID, exists := c.Get("userID")
	if !exists {
		return "", nil
	}
	return userID.(string), nil
}
