// ratelimit.go throttles creator-facing endpoints per user.
//
// Each creator gets a token bucket holding up to `limit` requests that
// refills at limit/hour. Service callers (the cron triggers and operators)
// skip the limiter entirely: a tick must never be rejected for being busy.
package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Shimizu-Technology/autoshorts-api/internal/models"
)

// idleBucketTTL is how long an untouched bucket is kept. After an hour
// a bucket has refilled completely, so dropping it loses nothing.
const idleBucketTTL = time.Hour

// RateLimiter tracks request budgets per creator.
type RateLimiter struct {
	capacity float64
	perSec   float64
	now      func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket
	sweptAt time.Time
}

type bucket struct {
	tokens float64
	seenAt time.Time
}

// NewRateLimiter creates a limiter allowing limit requests per hour per user.
func NewRateLimiter(limit int) *RateLimiter {
	if limit < 1 {
		limit = 1
	}
	return &RateLimiter{
		capacity: float64(limit),
		perSec:   float64(limit) / time.Hour.Seconds(),
		now:      time.Now,
		buckets:  make(map[string]*bucket),
	}
}

// RateLimit returns Gin middleware that enforces per-user rate limits.
// It must run after the auth middleware that sets the caller.
func (rl *RateLimiter) RateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := GetUserID(c)
		if IsService(c) || userID == "" {
			c.Next()
			return
		}

		ok, remaining, wait := rl.take(userID)
		c.Header("X-RateLimit-Limit", strconv.Itoa(int(rl.capacity)))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
		if !ok {
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, models.ErrorResponse{
				Error:   "rate_limit_exceeded",
				Message: "Rate limit exceeded. Try again later.",
				Code:    http.StatusTooManyRequests,
			})
			return
		}
		c.Next()
	}
}

// take spends one token from key's bucket. When the bucket is empty it
// reports how long until the next token.
func (rl *RateLimiter) take(key string) (ok bool, remaining int, wait time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	rl.sweep(now)

	b, found := rl.buckets[key]
	if !found {
		b = &bucket{tokens: rl.capacity, seenAt: now}
		rl.buckets[key] = b
	}
	b.tokens = math.Min(rl.capacity, b.tokens+now.Sub(b.seenAt).Seconds()*rl.perSec)
	b.seenAt = now

	if b.tokens < 1 {
		missing := (1 - b.tokens) / rl.perSec
		return false, 0, time.Duration(missing * float64(time.Second))
	}
	b.tokens--
	return true, int(b.tokens), 0
}

// sweep drops idle buckets, at most once per idleBucketTTL. Caller holds mu.
func (rl *RateLimiter) sweep(now time.Time) {
	if now.Sub(rl.sweptAt) < idleBucketTTL {
		return
	}
	for key, b := range rl.buckets {
		if now.Sub(b.seenAt) > idleBucketTTL {
			delete(rl.buckets, key)
		}
	}
	rl.sweptAt = now
}
