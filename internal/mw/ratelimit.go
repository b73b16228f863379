package mw

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

// KeyedRateLimiter keeps one token bucket per client key. Buckets of idle
// clients expire so scanner churn does not grow memory without bound.
type KeyedRateLimiter struct {
	limiters *cache.Cache
	mu       sync.Mutex
	r        rate.Limit
	b        int
}

// NewKeyedRateLimiter creates a limiter whose idle buckets expire after idle.
func NewKeyedRateLimiter(r rate.Limit, b int, idle time.Duration) *KeyedRateLimiter {
	return &KeyedRateLimiter{
		limiters: cache.New(idle, 2*idle),
		r:        r,
		b:        b,
	}
}

// GetLimiter returns the bucket for key, creating it on first use.
func (k *KeyedRateLimiter) GetLimiter(key string) *rate.Limiter {
	k.mu.Lock()
	defer k.mu.Unlock()

	if l, found := k.limiters.Get(key); found {
		k.limiters.SetDefault(key, l)
		return l.(*rate.Limiter)
	}
	limiter := rate.NewLimiter(k.r, k.b)
	k.limiters.SetDefault(key, limiter)
	return limiter
}

// RateLimiter is a middleware for per-client rate limiting. Requests are keyed
// by actor when the header is present and by client IP otherwise.
func RateLimiter(r rate.Limit, b int) gin.HandlerFunc {
	limiter := NewKeyedRateLimiter(r, b, 10*time.Minute)
	return func(c *gin.Context) {
		key := c.ClientIP()
		if actor := c.GetHeader(ActorHeader); actor != "" {
			key = "actor:" + actor
		}
		if !limiter.GetLimiter(key).Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
			return
		}
		c.Next()
	}
}
