// middleware/auth.go
package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	gw_errors "github.com/fortress-iam/gateway/errors"
	"github.com/fortress-iam/gateway/token"
	"github.com/fortress-iam/gateway/util"
)

// Authenticate verifies the bearer token on every request and stores the
// resulting principal in the gin context for downstream handlers.
func Authenticate(validator *token.Validator) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			util.RespondWithError(c, http.StatusUnauthorized, "TOKEN_MISSING", "Authorization header is required", gw_errors.ErrUnauthorized)
			c.Abort()
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			util.RespondWithError(c, http.StatusUnauthorized, "TOKEN_INVALID", "Authorization header must be a bearer token", gw_errors.ErrTokenInvalid)
			c.Abort()
			return
		}

		claims, err := validator.Validate(c.Request.Context(), parts[1])
		if err != nil {
			switch {
			case errors.Is(err, gw_errors.ErrTokenExpired):
				util.RespondWithError(c, http.StatusUnauthorized, "TOKEN_EXPIRED", "Token has expired", err)
			case errors.Is(err, gw_errors.ErrIssuerMismatch):
				util.RespondWithError(c, http.StatusUnauthorized, "TOKEN_INVALID", "Token issuer is not trusted", err)
			case errors.Is(err, gw_errors.ErrDependencyUnavailable), errors.Is(err, gw_errors.ErrRequestTimeout):
				retryAfter := 5
				util.RespondWithRetryableError(c, http.StatusServiceUnavailable,
					"DEPENDENCY_UNAVAILABLE", "Token verification is temporarily unavailable", err, true, &retryAfter)
			default:
				util.RespondWithError(c, http.StatusUnauthorized, "TOKEN_INVALID", "Token is invalid", err)
			}
			c.Abort()
			return
		}

		principal := claims.Principal()
		c.Set("principal", principal)
		c.Set("userID", principal.ID)
		c.Next()
	}
}
