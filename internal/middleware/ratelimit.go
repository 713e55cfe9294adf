package middleware

import (
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/freewebtopdf/logfilters/internal/domain"

	"github.com/gofiber/fiber/v2"
)

// idleBucketTTL is how long an unused bucket is kept
const idleBucketTTL = time.Hour

// Route classes share one bucket per client, so /v1/session/rules/3 and
// /v1/session/rules/4 draw from the same budget
const (
	ClassMatch   = "match"
	ClassBatch   = "batch"
	ClassSession = "session"
	ClassRead    = "read"
	ClassSystem  = "system"
)

// Limit is the burst size and refill rate of one bucket
type Limit struct {
	Capacity   int `json:"capacity"`
	RefillRate int `json:"refill_rate"` // tokens per second
}

// TokenBucket implements a token bucket rate limiter
type TokenBucket struct {
	limit      Limit
	tokens     float64
	lastRefill time.Time
	mutex      sync.Mutex
}

// NewTokenBucket creates a full token bucket
func NewTokenBucket(limit Limit) *TokenBucket {
	return &TokenBucket{
		limit:      limit,
		tokens:     float64(limit.Capacity),
		lastRefill: time.Now(),
	}
}

func (tb *TokenBucket) refill(now time.Time) {
	elapsed := now.Sub(tb.lastRefill).Seconds()
	tb.tokens = min(float64(tb.limit.Capacity), tb.tokens+elapsed*float64(tb.limit.RefillRate))
	tb.lastRefill = now
}

// Allow takes one token. It returns whether the request may proceed and
// the whole tokens left afterwards.
func (tb *TokenBucket) Allow() (bool, int) {
	tb.mutex.Lock()
	defer tb.mutex.Unlock()

	tb.refill(time.Now())
	if tb.tokens >= 1 {
		tb.tokens--
		return true, int(tb.tokens)
	}
	return false, 0
}

// RetryAfter is the wait until the next token is available
func (tb *TokenBucket) RetryAfter() time.Duration {
	tb.mutex.Lock()
	defer tb.mutex.Unlock()

	if tb.tokens >= 1 {
		return 0
	}
	if tb.limit.RefillRate <= 0 {
		return time.Minute
	}
	missing := 1 - tb.tokens
	return time.Duration(missing / float64(tb.limit.RefillRate) * float64(time.Second))
}

func (tb *TokenBucket) idle(now time.Time) time.Duration {
	tb.mutex.Lock()
	defer tb.mutex.Unlock()
	return now.Sub(tb.lastRefill)
}

// RateLimiter keeps one token bucket per client and route class
type RateLimiter struct {
	buckets map[string]*TokenBucket
	mutex   sync.RWMutex

	defaultLimit Limit
	classLimits  map[string]Limit
}

// NewRateLimiter creates a rate limiter. Matching gets twice the default
// budget, batches and session edits half of it.
func NewRateLimiter(rps, burst int) *RateLimiter {
	half := Limit{Capacity: max(burst/2, 1), RefillRate: max(rps/2, 1)}
	return &RateLimiter{
		buckets:      make(map[string]*TokenBucket),
		defaultLimit: Limit{Capacity: burst, RefillRate: rps},
		classLimits: map[string]Limit{
			ClassMatch:   {Capacity: burst * 2, RefillRate: rps * 2},
			ClassBatch:   half,
			ClassSession: half,
			ClassSystem:  {Capacity: 20, RefillRate: 2},
		},
	}
}

// Classify maps a request path to its route class
func Classify(path string) string {
	switch {
	case path == "/v1/match/batch":
		return ClassBatch
	case strings.HasPrefix(path, "/v1/match"):
		return ClassMatch
	case strings.HasPrefix(path, "/v1/session"):
		return ClassSession
	case path == "/health" || path == "/metrics":
		return ClassSystem
	default:
		return ClassRead
	}
}

// LimitFor returns the limit applied to class
func (rl *RateLimiter) LimitFor(class string) Limit {
	if limit, ok := rl.classLimits[class]; ok {
		return limit
	}
	return rl.defaultLimit
}

func (rl *RateLimiter) getBucket(clientID, class string) *TokenBucket {
	key := clientID + ":" + class

	rl.mutex.RLock()
	bucket, exists := rl.buckets[key]
	rl.mutex.RUnlock()
	if exists {
		return bucket
	}

	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	if bucket, exists := rl.buckets[key]; exists {
		return bucket
	}
	bucket = NewTokenBucket(rl.LimitFor(class))
	rl.buckets[key] = bucket
	return bucket
}

// getClientID prefers an API key, then the Authorization header, then the IP
func (rl *RateLimiter) getClientID(c *fiber.Ctx) string {
	if apiKey := c.Get("X-API-Key"); apiKey != "" {
		return "api:" + apiKey
	}
	if auth := c.Get("Authorization"); auth != "" {
		return "auth:" + auth
	}
	return "ip:" + c.IP()
}

// Middleware returns a Fiber middleware for rate limiting
func (rl *RateLimiter) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		clientID := rl.getClientID(c)
		class := Classify(c.Path())
		bucket := rl.getBucket(clientID, class)
		limit := strconv.Itoa(bucket.limit.Capacity)

		allowed, remaining := bucket.Allow()
		if !allowed {
			retry := int(math.Ceil(bucket.RetryAfter().Seconds()))
			if retry < 1 {
				retry = 1
			}
			appErr := domain.NewAppError(
				domain.ErrRateLimit,
				"Rate limit exceeded",
				429,
				map[string]any{
					"client_id":   clientID,
					"class":       class,
					"retry_after": retry,
				},
			).WithContext(c.Context(), "rate_limit")

			c.Set("Retry-After", strconv.Itoa(retry))
			c.Set("X-RateLimit-Limit", limit)
			c.Set("X-RateLimit-Remaining", "0")

			return c.Status(appErr.StatusCode).JSON(map[string]any{
				"status":  "error",
				"code":    appErr.Code,
				"message": appErr.Message,
				"details": appErr.Details,
			})
		}

		c.Set("X-RateLimit-Limit", limit)
		c.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		return c.Next()
	}
}

// CleanupOldBuckets drops buckets idle for longer than idleBucketTTL
func (rl *RateLimiter) CleanupOldBuckets() {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	now := time.Now()
	for key, bucket := range rl.buckets {
		if bucket.idle(now) > idleBucketTTL {
			delete(rl.buckets, key)
		}
	}
}

// StartCleanupRoutine starts a background routine to clean up old buckets
// Returns a stop function to cancel the routine
func (rl *RateLimiter) StartCleanupRoutine() (stop func()) {
	ticker := time.NewTicker(10 * time.Minute)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case <-ticker.C:
				rl.CleanupOldBuckets()
			case <-done:
				ticker.Stop()
				return
			}
		}
	}()

	var once sync.Once
	return func() { once.Do(func() { close(done) }) }
}

// GetStats returns rate limiter statistics
func (rl *RateLimiter) GetStats() map[string]any {
	rl.mutex.RLock()
	defer rl.mutex.RUnlock()

	return map[string]any{
		"active_buckets": len(rl.buckets),
		"default_limit":  rl.defaultLimit,
		"class_limits":   rl.classLimits,
	}
}
