// middleware/status.go
package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	gw_errors "github.com/fortress-iam/gateway/errors"
	"github.com/fortress-iam/gateway/status"
	"github.com/fortress-iam/gateway/util"
)

// RequireEnabled rejects requests from disabled users even when their
// token is still valid. A disabled user gets a terminal 403; an outage of
// the status dependency gets a retryable 503 instead, so clients can tell
// the two apart.
func RequireEnabled(gate *status.Gate) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := util.GetUserIDFromContext(c)
		if err != nil || userID == "" {
			// Unauthenticated routes pass through untouched.
			c.Next()
			return
		}

		enabled, err := gate.IsEnabled(c.Request.Context(), userID)
		if err != nil {
			if errors.Is(err, gw_errors.ErrDependencyUnavailable) {
				retryAfter := 5
				util.RespondWithRetryableError(c, http.StatusServiceUnavailable,
					"DEPENDENCY_UNAVAILABLE", "User status is temporarily unavailable", err, true, &retryAfter)
				c.Abort()
				return
			}
			util.RespondWithError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "User status check failed", err)
			c.Abort()
			return
		}

		if !enabled {
			util.RespondWithError(c, http.StatusForbidden, "USER_DISABLED", "User account is disabled", gw_errors.ErrUserDisabled)
			c.Abort()
			return
		}

		c.Next()
	}
}
