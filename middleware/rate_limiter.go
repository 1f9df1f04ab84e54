// middleware/rate_limiter.go

package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/fortress-iam/gateway/db"
	gw_errors "github.com/fortress-iam/gateway/errors"
	logger "github.com/fortress-iam/gateway/logging"
	"github.com/fortress-iam/gateway/util"
)

func RateLimiter(limit int, per time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.ClientIP()
		allowed, err := db.RateLimit(c, key, limit, per)
		if err != nil {
			logger.Error("Rate limiting failed", zap.Error(err), zap.String("ip", key))
			util.RespondWithError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Rate limiting failed", err)
			c.Abort()
			return
		}

		// Set rate limit headers
		c.Header("X-RateLimit-Limit", strconv.Itoa(limit))
		c.Header("X-RateLimit-Duration", per.String())

		if !allowed {
			logger.Warn("Rate limit exceeded",
				zap.String("ip", key),
				zap.Int("limit", limit),
				zap.Duration("per", per))
			retryAfter := int(per.Seconds())
			util.RespondWithRetryableError(c, http.StatusTooManyRequests,
				"RATE_LIMIT_EXCEEDED", "Rate limit exceeded", gw_errors.ErrRateLimitExceeded, true, &retryAfter)
			c.Abort()
			return
		}

		c.Next()
	}
}
