package httpmiddleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// TokenBucket is an in-memory per-client rate limiter. Each key starts with
// a full bucket that refills at perMinute tokens per minute. Buckets idle for
// a full refill window are dropped, since they would be full again anyway.
type TokenBucket struct {
	capacity int
	rate     int
	now      func() time.Time
	onReject func()

	mu        sync.Mutex
	state     map[string]*bucket
	lastSweep time.Time
}

type bucket struct {
	tokens int
	last   time.Time
}

// Option configures a TokenBucket.
type Option func(*TokenBucket)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *TokenBucket) { l.now = now }
}

// OnReject registers a callback run for every rejected request.
func OnReject(fn func()) Option {
	return func(l *TokenBucket) { l.onReject = fn }
}

// NewTokenBucket creates a limiter with capacity tokens refilled at perMinute.
// A non-positive capacity defaults to perMinute.
func NewTokenBucket(capacity, perMinute int, opts ...Option) *TokenBucket {
	if capacity <= 0 {
		capacity = perMinute
	}
	l := &TokenBucket{
		capacity: capacity,
		rate:     perMinute,
		now:      time.Now,
		state:    make(map[string]*bucket),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.lastSweep = l.now()
	return l
}

// refillWindow is how long an empty bucket takes to fill completely.
func (l *TokenBucket) refillWindow() time.Duration {
	if l.rate <= 0 {
		return 0
	}
	return time.Duration(float64(l.capacity) / float64(l.rate) * float64(time.Minute))
}

// GinMiddleware enforces the limit per client IP. A non-positive rate
// disables limiting.
func (l *TokenBucket) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if l.rate <= 0 {
			c.Next()
			return
		}
		ip := c.ClientIP()
		if ip == "" {
			ip = "unknown"
		}
		if !l.Allow(ip) {
			if l.onReject != nil {
				l.onReject()
			}
			c.Header("Retry-After", "60")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"message": "Too many requests"})
			return
		}
		c.Next()
	}
}

// Allow takes one token from key's bucket, reporting whether one was left.
func (l *TokenBucket) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	if window := l.refillWindow(); window > 0 && now.Sub(l.lastSweep) >= window {
		l.sweep(now, window)
	}
	b, ok := l.state[key]
	if !ok {
		l.state[key] = &bucket{tokens: l.capacity - 1, last: now}
		return true
	}
	refill := int(now.Sub(b.last).Minutes() * float64(l.rate))
	if refill > 0 {
		b.tokens = min(b.tokens+refill, l.capacity)
		b.last = now
	}
	if b.tokens <= 0 {
		return false
	}
	b.tokens--
	return true
}

// sweep drops buckets untouched for at least window. Callers hold mu.
func (l *TokenBucket) sweep(now time.Time, window time.Duration) {
	for key, b := range l.state {
		if now.Sub(b.last) >= window {
			delete(l.state, key)
		}
	}
	l.lastSweep = now
}

func (l *TokenBucket) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.state)
}
