package middleware

import (
	"errors"
	"math"
	"strconv"

	"storefront/internal/apperror"
	"storefront/internal/logging"
	"storefront/internal/ratelimit"
	"storefront/pkg/response"

	"github.com/gin-gonic/gin"
)

// RateLimit throttles a route per client IP. When the limiter backend is
// down the request is let through and a warning is logged.
func RateLimit(limiter ratelimit.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.ClientIP() + ":" + c.FullPath()

		decision, err := limiter.Allow(c.Request.Context(), key)
		if err != nil {
			log := logging.FromContext(c.Request.Context())
			if errors.Is(err, ratelimit.ErrUnavailable) {
				log.Warn("rate limiter unavailable, allowing request", "error", err)
				c.Next()
				return
			}
			response.Fail(c, err)
			return
		}

		if !decision.Allowed {
			retryAfter := int(math.Max(1, math.Ceil(decision.RetryAfter.Seconds())))
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			logging.FromContext(c.Request.Context()).Warn("rate limit exceeded", "key", key, "retry_after", retryAfter)
			response.Fail(c, apperror.New(apperror.ErrRateLimited, "Too many requests. Please try again later."))
			return
		}
		c.Next()
	}
}
