package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// TenantRateLimiter hands out one token bucket per tenant.
type TenantRateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	every    rate.Limit
	burst    int
}

// NewTenantRateLimiter allows perMinute requests per tenant with the given burst.
// perMinute <= 0 disables limiting.
func NewTenantRateLimiter(perMinute, burst int) *TenantRateLimiter {
	every := rate.Inf
	if perMinute > 0 {
		every = rate.Every(time.Minute / time.Duration(perMinute))
	}
	if burst < 1 {
		burst = 1
	}
	return &TenantRateLimiter{
		limiters: make(map[string]*rate.Limiter),
		every:    every,
		burst:    burst,
	}
}

func (l *TenantRateLimiter) limiter(tenantID string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	lim, ok := l.limiters[tenantID]
	if !ok {
		lim = rate.NewLimiter(l.every, l.burst)
		l.limiters[tenantID] = lim
	}
	return lim
}

// Allow consumes one token of the tenant's bucket.
func (l *TenantRateLimiter) Allow(tenantID string) bool {
	return l.limiter(tenantID).Allow()
}

// Middleware rejects requests over the tenant's budget with 429. It must run after TenantMiddleware.
func (l *TenantRateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !l.Allow(GetTenantID(c)) {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "RATE_LIMITED",
					"message": "Too many uploads, please retry later",
				},
			})
			c.Abort()
			return
		}
		c.Next()
	}
}
