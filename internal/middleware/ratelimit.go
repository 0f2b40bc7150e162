package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/twentyfive/authgate/internal/ratelimit"
	"github.com/twentyfive/authgate/pkg/errors"
	"github.com/twentyfive/authgate/pkg/logger"
	"github.com/twentyfive/authgate/pkg/metrics"
	"github.com/twentyfive/authgate/pkg/response"
)

// RateLimit limits requests per (client IP, route) through the shared limiter.
// A limiter failure lets the request through; throttling is best-effort.
func RateLimit(limiter ratelimit.Limiter, maxRequests int, scope string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil || maxRequests <= 0 {
			c.Next()
			return
		}

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		key := scope + ":" + c.ClientIP() + "|" + route

		result, err := limiter.Check(c.Request.Context(), key, maxRequests)
		if err != nil {
			logger.WithModule("ratelimit").Warn("rate limit check failed", zap.String("scope", scope), zap.Error(err))
			c.Next()
			return
		}

		resetIn := time.Until(result.ResetTime)
		if resetIn < 0 {
			resetIn = 0
		}
		c.Header("X-RateLimit-Limit", strconv.Itoa(maxRequests))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
		c.Header("X-RateLimit-Reset", strconv.Itoa(int(resetIn.Seconds())))

		if !result.Allowed {
			metrics.RateLimitDenials.WithLabelValues(scope).Inc()
			c.Header("Retry-After", strconv.Itoa(int(resetIn.Seconds())+1))
			response.Error(c, errors.ErrRateLimit)
			c.Abort()
			return
		}

		c.Next()
	}
}
