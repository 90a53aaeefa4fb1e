package middleware

import (
	"context"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	ratelimitopts "github.com/kart-io/videoqa/pkg/options/ratelimit"
	"github.com/kart-io/videoqa/pkg/utils/errors"
	"github.com/kart-io/videoqa/pkg/utils/response"
)

// RateLimiter decides whether a request identified by key may proceed.
type RateLimiter interface {
	// Allow consumes one token for key. When it returns false, retryAfter
	// is how long the caller should wait.
	Allow(key string) (ok bool, retryAfter time.Duration)
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// MemoryRateLimiter keeps one token bucket per key in memory.
type MemoryRateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	limit    rate.Limit
	burst    int
	idleTTL  time.Duration
	now      func() time.Time
}

// NewMemoryRateLimiter creates a limiter refilling opts.Limit tokens per
// opts.Window.
func NewMemoryRateLimiter(opts *ratelimitopts.Options) *MemoryRateLimiter {
	burst := opts.Burst
	if burst <= 0 {
		burst = opts.Limit
	}
	idle := opts.IdleTTL
	if idle <= 0 {
		idle = 10 * time.Minute
	}
	return &MemoryRateLimiter{
		visitors: make(map[string]*visitor),
		limit:    rate.Limit(float64(opts.Limit) / opts.Window.Seconds()),
		burst:    burst,
		idleTTL:  idle,
		now:      time.Now,
	}
}

// Allow implements RateLimiter.
func (l *MemoryRateLimiter) Allow(key string) (bool, time.Duration) {
	now := l.now()

	l.mu.Lock()
	v, ok := l.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.visitors[key] = v
	}
	v.lastSeen = now
	l.mu.Unlock()

	r := v.limiter.ReserveN(now, 1)
	if !r.OK() {
		return false, time.Duration(math.MaxInt64)
	}
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return false, delay
	}
	return true, 0
}

// Cleanup drops buckets idle for longer than the configured TTL.
func (l *MemoryRateLimiter) Cleanup() int {
	cutoff := l.now().Add(-l.idleTTL)

	l.mu.Lock()
	defer l.mu.Unlock()
	removed := 0
	for k, v := range l.visitors {
		if v.lastSeen.Before(cutoff) {
			delete(l.visitors, k)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked keys.
func (l *MemoryRateLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.visitors)
}

// RunCleanup evicts idle buckets every interval until ctx is done.
func (l *MemoryRateLimiter) RunCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Cleanup()
		}
	}
}

// RateLimitConfig defines the config for RateLimit middleware.
type RateLimitConfig struct {
	// Limiter is the limiter to consult.
	Limiter RateLimiter

	// KeyFunc extracts the limiter key. Default: client IP.
	KeyFunc func(c *gin.Context) string

	// SkipPaths is a list of paths exempt from limiting.
	SkipPaths []string
}

// RateLimit returns a middleware that rejects requests over the limit with
// 429 and a Retry-After header.
func RateLimit(config RateLimitConfig) gin.HandlerFunc {
	if config.Limiter == nil {
		return func(c *gin.Context) { c.Next() }
	}
	if config.KeyFunc == nil {
		config.KeyFunc = func(c *gin.Context) string { return c.ClientIP() }
	}
	skip := make(map[string]bool, len(config.SkipPaths))
	for _, p := range config.SkipPaths {
		skip[p] = true
	}

	return func(c *gin.Context) {
		if skip[c.Request.URL.Path] {
			c.Next()
			return
		}

		ok, retryAfter := config.Limiter.Allow(config.KeyFunc(c))
		if !ok {
			handleRateLimitExceeded(c, retryAfter)
			return
		}
		c.Next()
	}
}

func handleRateLimitExceeded(c *gin.Context, retryAfter time.Duration) {
	secs := int64(math.Ceil(retryAfter.Seconds()))
	if secs < 1 {
		secs = 1
	}
	c.Header("Retry-After", strconv.FormatInt(secs, 10))

	resp := response.Err(errors.ErrTooManyRequests).WithRequestID(GetRequestID(c))
	c.AbortWithStatusJSON(resp.HTTPStatus(), resp)
}
