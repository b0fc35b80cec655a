package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"lootbox-hub/internal/api/response"
	"lootbox-hub/internal/metrics"
)

// sweepEvery bounds how many Allow calls pass between removals of idle keys.
const sweepEvery = 512

// Limiter caps how often one caller may hit a scope within a sliding window.
// Callers are keyed by actor id, or by client address before authentication.
type Limiter struct {
	scope  string
	limit  int
	window time.Duration
	now    func() time.Time

	mu      sync.Mutex
	history map[string][]time.Time
	calls   int
}

func NewLimiter(scope string, limit int, window time.Duration) *Limiter {
	if limit <= 0 {
		limit = 60
	}
	if window <= 0 {
		window = time.Minute
	}
	return &Limiter{
		scope:   scope,
		limit:   limit,
		window:  window,
		now:     time.Now,
		history: make(map[string][]time.Time),
	}
}

// Allow records a hit for key. When the window is full it reports false and
// how long until the oldest hit leaves the window.
func (l *Limiter) Allow(key string) (bool, time.Duration) {
	now := l.now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	l.calls++
	if l.calls%sweepEvery == 0 {
		l.sweep(cutoff)
	}

	hits := trimBefore(l.history[key], cutoff)
	if len(hits) >= l.limit {
		l.history[key] = hits
		return false, hits[0].Add(l.window).Sub(now)
	}
	l.history[key] = append(hits, now)
	return true, 0
}

func (l *Limiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		allowed, wait := l.Allow(limiterKey(c))
		if allowed {
			c.Next()
			return
		}

		metrics.IncRateLimited(l.scope)
		c.Header("Retry-After", strconv.Itoa(retryAfterSeconds(wait)))
		response.Fail(c, http.StatusTooManyRequests, response.ErrRateLimited, "too many requests")
		c.Abort()
	}
}

func (l *Limiter) sweep(cutoff time.Time) {
	for key, hits := range l.history {
		if len(hits) == 0 || !hits[len(hits)-1].After(cutoff) {
			delete(l.history, key)
		}
	}
}

// trimBefore drops hits at or before cutoff. hits is in arrival order.
func trimBefore(hits []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(hits) && !hits[i].After(cutoff) {
		i++
	}
	if i == 0 {
		return hits
	}
	return append(hits[:0], hits[i:]...)
}

func limiterKey(c *gin.Context) string {
	if actor, ok := GetActor(c); ok {
		return "user:" + actor.UserID.String()
	}
	return "addr:" + c.ClientIP()
}

func retryAfterSeconds(wait time.Duration) int {
	seconds := int(math.Ceil(wait.Seconds()))
	if seconds < 1 {
		return 1
	}
	return seconds
}
