package middleware

import (
	"net/http"

	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/KarinaMilko/Fullstack-ClassWork/internal/pkg/metrics"
	"github.com/KarinaMilko/Fullstack-ClassWork/internal/pkg/ratelimit"
)

// RateLimit applies a per-client-IP token bucket to API routes.
// A nil limiter disables the check; Redis failures fail open so the
// API keeps serving without Redis.
func RateLimit(limiter *ratelimit.RateLimiter, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil {
			c.Next()
			return
		}

		ok, err := limiter.Allow(c.Request.Context(), c.ClientIP())
		if err != nil {
			if logger != nil {
				logger.Warn("rate limit check failed", slog.String("error", err.Error()))
			}
			c.Next()
			return
		}
		if !ok {
			metrics.RateLimitDeniedTotal.Inc()
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"message": "too many requests"})
			return
		}
		c.Next()
	}
}
