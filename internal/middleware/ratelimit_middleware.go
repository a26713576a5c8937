// internal/middleware/ratelimit_middleware.go
package middleware

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"device-console/internal/config"
	"device-console/internal/utils"
)

// RateLimiter is a token bucket shared by every client of the routes it guards.
// The device behind the console has one serial line, so the limit is global.
type RateLimiter struct {
	limiter       *rate.Limiter
	allowedCount  atomic.Int64
	rejectedCount atomic.Int64
}

// NewRateLimiter allows requests per window with the given burst
func NewRateLimiter(requests int, window time.Duration, burst int) *RateLimiter {
	if requests <= 0 {
		requests = 20
	}
	if window <= 0 {
		window = time.Second
	}
	if burst <= 0 {
		burst = requests
	}
	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Every(window/time.Duration(requests)), burst),
	}
}

// Allow reports whether a request may proceed now
func (l *RateLimiter) Allow() bool {
	if l.limiter.Allow() {
		l.allowedCount.Add(1)
		return true
	}
	l.rejectedCount.Add(1)
	return false
}

// RejectedCount returns the number of rejected requests
func (l *RateLimiter) RejectedCount() int64 {
	return l.rejectedCount.Load()
}

// RateLimitMiddleware rejects requests with 429 once the limiter is exhausted.
// Disabled configs pass everything through.
func RateLimitMiddleware(cfg *config.SecurityConfig, logger *utils.ServiceLogger) gin.HandlerFunc {
	if !cfg.RateLimitEnabled {
		return func(c *gin.Context) { c.Next() }
	}
	return rateLimit(NewRateLimiter(cfg.RateLimitRequests, cfg.RateLimitWindow, cfg.RateLimitBurst), logger)
}

func rateLimit(limiter *RateLimiter, logger *utils.ServiceLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !limiter.Allow() {
			logger.LogRateLimitViolation(c.ClientIP(), c.FullPath())
			utils.ErrorResponse(c, http.StatusTooManyRequests, "Too many commands", nil)
			c.Abort()
			return
		}
		c.Next()
	}
}
