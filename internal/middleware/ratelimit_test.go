package middleware

import (
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/freewebtopdf/logfilters/internal/domain"
)

func newLimitedApp(rl *RateLimiter) *fiber.App {
	app := fiber.New()
	app.Use(rl.Middleware())
	ok := func(c *fiber.Ctx) error { return c.SendStatus(200) }
	app.Post("/v1/match", ok)
	app.Post("/v1/match/batch", ok)
	app.Get("/v1/rules", ok)
	app.Put("/v1/session/rules/:index", ok)
	app.Get("/health", ok)
	return app
}

func TestClassify(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/v1/match", ClassMatch},
		{"/v1/match/batch", ClassBatch},
		{"/v1/session", ClassSession},
		{"/v1/session/rules/12/move", ClassSession},
		{"/v1/rules", ClassRead},
		{"/v1/palette", ClassRead},
		{"/health", ClassSystem},
		{"/metrics", ClassSystem},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.path))
		})
	}
}

func TestNewRateLimiter_ClassLimits(t *testing.T) {
	rl := NewRateLimiter(10, 20)

	assert.Equal(t, Limit{Capacity: 40, RefillRate: 20}, rl.LimitFor(ClassMatch))
	assert.Equal(t, Limit{Capacity: 10, RefillRate: 5}, rl.LimitFor(ClassBatch))
	assert.Equal(t, Limit{Capacity: 10, RefillRate: 5}, rl.LimitFor(ClassSession))
	assert.Equal(t, Limit{Capacity: 20, RefillRate: 10}, rl.LimitFor(ClassRead))
	assert.Equal(t, Limit{Capacity: 20, RefillRate: 2}, rl.LimitFor(ClassSystem))

	tiny := NewRateLimiter(1, 1)
	assert.Equal(t, Limit{Capacity: 1, RefillRate: 1}, tiny.LimitFor(ClassBatch))
}

func TestTokenBucket_AllowAndRefill(t *testing.T) {
	tb := NewTokenBucket(Limit{Capacity: 2, RefillRate: 1000})

	ok, remaining := tb.Allow()
	assert.True(t, ok)
	assert.Equal(t, 1, remaining)
	ok, _ = tb.Allow()
	assert.True(t, ok)

	assert.Eventually(t, func() bool {
		ok, _ := tb.Allow()
		return ok
	}, time.Second, 5*time.Millisecond)
}

func TestTokenBucket_RetryAfter(t *testing.T) {
	tb := NewTokenBucket(Limit{Capacity: 1, RefillRate: 1})
	assert.Equal(t, time.Duration(0), tb.RetryAfter())

	ok, _ := tb.Allow()
	require.True(t, ok)

	wait := tb.RetryAfter()
	assert.Greater(t, wait, time.Duration(0))
	assert.LessOrEqual(t, wait, time.Second)
}

func TestMiddleware_RejectsWhenExhausted(t *testing.T) {
	rl := NewRateLimiter(1, 2)
	app := newLimitedApp(rl)

	// Session class gets half the burst: one request
	req := httptest.NewRequest("PUT", "/v1/session/rules/0", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "1", resp.Header.Get("X-RateLimit-Limit"))
	assert.Equal(t, "0", resp.Header.Get("X-RateLimit-Remaining"))

	// A different index shares the bucket
	resp, err = app.Test(httptest.NewRequest("PUT", "/v1/session/rules/5", nil))
	require.NoError(t, err)
	assert.Equal(t, 429, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, domain.ErrRateLimit, body["code"])
	details := body["details"].(map[string]any)
	assert.Equal(t, ClassSession, details["class"])

	// Other classes are unaffected
	resp, err = app.Test(httptest.NewRequest("GET", "/v1/rules", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
}

func TestMiddleware_ClientsAreSeparate(t *testing.T) {
	rl := NewRateLimiter(1, 2)
	app := newLimitedApp(rl)

	send := func(key string) int {
		req := httptest.NewRequest("POST", "/v1/match/batch", nil)
		req.Header.Set("X-API-Key", key)
		resp, err := app.Test(req)
		require.NoError(t, err)
		return resp.StatusCode
	}

	assert.Equal(t, 200, send("alpha"))
	assert.Equal(t, 429, send("alpha"))
	assert.Equal(t, 200, send("beta"))

	stats := rl.GetStats()
	assert.Equal(t, 2, stats["active_buckets"])
}

func TestCleanupOldBuckets(t *testing.T) {
	rl := NewRateLimiter(10, 20)
	rl.getBucket("ip:1", ClassRead)
	stale := rl.getBucket("ip:2", ClassRead)
	stale.lastRefill = time.Now().Add(-2 * idleBucketTTL)

	rl.CleanupOldBuckets()

	assert.Equal(t, 1, rl.GetStats()["active_buckets"])
	_, kept := rl.buckets["ip:1:"+ClassRead]
	assert.True(t, kept)
}

func TestStartCleanupRoutine_StopTwice(t *testing.T) {
	rl := NewRateLimiter(10, 20)
	stop := rl.StartCleanupRoutine()
	stop()
	stop()
}
