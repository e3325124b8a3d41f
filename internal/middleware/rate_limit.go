package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"blinkroom/internal/service"
	"blinkroom/pkg/logger"
)

type RateLimitMiddleware struct {
	rateLimitService service.RateLimitService
	limit            int
	window           time.Duration
	log              logger.Logger
}

func NewRateLimitMiddleware(rateLimitService service.RateLimitService, limit int, log logger.Logger) *RateLimitMiddleware {
	return &RateLimitMiddleware{
		rateLimitService: rateLimitService,
		limit:            limit,
		window:           time.Minute,
		log:              log,
	}
}

// Limit throttles per client IP. Rooms are self-service and unauthenticated,
// so creation has to be bounded somewhere.
func (m *RateLimitMiddleware) Limit() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := "ratelimit:" + c.ClientIP()

		allowed, err := m.rateLimitService.Allow(c.Request.Context(), key, m.limit, m.window)
		if err != nil {
			// Rate limiting is advisory; a broken limiter must not take
			// room creation down with it.
			m.log.Error("Rate limit check failed", "error", err)
			c.Next()
			return
		}

		if !allowed {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			c.Abort()
			return
		}

		c.Next()
	}
}
