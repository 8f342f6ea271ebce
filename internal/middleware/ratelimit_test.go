package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"foodies-api/internal/metrics"
)

var (
	sensitiveTier = Tier{Name: "sensitive", Max: 5, Window: 15 * time.Minute, SkipSuccessful: true}
	searchTier    = Tier{Name: "search", Max: 3, Window: time.Minute}
)

type manualClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func statusHandler(status int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	})
}

func hit(h http.Handler, ip string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
	req.RemoteAddr = ip + ":51234"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRateLimiterSensitiveTierCountsFailuresOnly(t *testing.T) {
	t.Parallel()

	clock := &manualClock{t: time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)}
	rl := NewRateLimiter(NewMemoryLimiter().WithClock(clock.Now), nil)

	failing := rl.Limit(sensitiveTier)(statusHandler(http.StatusUnauthorized))
	succeeding := rl.Limit(sensitiveTier)(statusHandler(http.StatusOK))

	for i := 0; i < 5; i++ {
		rec := hit(failing, "198.51.100.7")
		require.Equal(t, http.StatusUnauthorized, rec.Code, "attempt %d", i+1)
		require.Equal(t, "5", rec.Header().Get("X-RateLimit-Limit"))
		require.Equal(t, strconv.Itoa(4-i), rec.Header().Get("X-RateLimit-Remaining"))
	}

	rec := hit(failing, "198.51.100.7")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.Equal(t, "RATE_LIMITED", decodeErrorCode(t, rec))
	retryAfter, err := strconv.Atoi(rec.Header().Get("Retry-After"))
	require.NoError(t, err)
	require.Equal(t, 900, retryAfter)

	// A different client is unaffected.
	require.Equal(t, http.StatusOK, hit(succeeding, "198.51.100.8").Code)

	clock.Advance(15 * time.Minute)
	require.Equal(t, http.StatusUnauthorized, hit(failing, "198.51.100.7").Code)
}

func TestRateLimiterSuccessfulAttemptsAreRefunded(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(NewMemoryLimiter(), nil)
	failing := rl.Limit(sensitiveTier)(statusHandler(http.StatusUnauthorized))
	succeeding := rl.Limit(sensitiveTier)(statusHandler(http.StatusOK))

	for i := 0; i < 20; i++ {
		require.Equal(t, http.StatusOK, hit(succeeding, "203.0.113.1").Code)
	}
	for i := 0; i < 4; i++ {
		require.Equal(t, http.StatusUnauthorized, hit(failing, "203.0.113.1").Code)
	}

	// One failure slot is left: a success still goes through and does not use it up.
	require.Equal(t, http.StatusOK, hit(succeeding, "203.0.113.1").Code)
	require.Equal(t, http.StatusUnauthorized, hit(failing, "203.0.113.1").Code)
	require.Equal(t, http.StatusTooManyRequests, hit(failing, "203.0.113.1").Code)
}

func TestRateLimiterWindowTier(t *testing.T) {
	t.Parallel()

	clock := &manualClock{t: time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)}
	rl := NewRateLimiter(NewMemoryLimiter().WithClock(clock.Now), nil)
	handler := rl.Limit(searchTier)(statusHandler(http.StatusOK))

	for i := 0; i < 3; i++ {
		require.Equal(t, http.StatusOK, hit(handler, "192.0.2.10").Code)
	}

	clock.Advance(20 * time.Second)
	rec := hit(handler, "192.0.2.10")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.Equal(t, "40", rec.Header().Get("Retry-After"))

	clock.Advance(40 * time.Second)
	require.Equal(t, http.StatusOK, hit(handler, "192.0.2.10").Code)
}

func TestRateLimiterCeilingHoldsAcrossWindow(t *testing.T) {
	t.Parallel()

	tier := Tier{Name: "search", Max: 30, Window: time.Minute}
	clock := &manualClock{t: time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)}
	rl := NewRateLimiter(NewMemoryLimiter().WithClock(clock.Now), nil)
	handler := rl.Limit(tier)(statusHandler(http.StatusOK))

	allowed := 0
	for i := 0; i < 60; i++ {
		if hit(handler, "192.0.2.11").Code == http.StatusOK {
			allowed++
		}
		clock.Advance(time.Second)
	}
	require.Equal(t, tier.Max, allowed)
}

func TestRateLimiterDisabledTierPassesThrough(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(NewMemoryLimiter(), nil)
	handler := rl.Limit(Tier{Name: "general"})(statusHandler(http.StatusOK))

	for i := 0; i < 50; i++ {
		rec := hit(handler, "10.1.1.1")
		require.Equal(t, http.StatusOK, rec.Code)
		require.Empty(t, rec.Header().Get("X-RateLimit-Limit"))
	}
}

func TestMemoryLimiterConcurrentBurst(t *testing.T) {
	t.Parallel()

	limiter := NewMemoryLimiter()
	tier := Tier{Name: "sensitive", Max: 5, Window: time.Minute, SkipSuccessful: true}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := limiter.Allow(context.Background(), tier, "sensitive:10.0.0.1")
			assert.NoError(t, err)
			if d.Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 5, allowed)
}

type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, Tier, string) (Decision, error) {
	return Decision{}, errors.New("connection refused")
}
func (failingLimiter) Refund(context.Context, Tier, string) error { return nil }
func (failingLimiter) Backend() string { return "redis" }

func TestRateLimiterFailsOpen(t *testing.T) {
	t.Parallel()

	m := metrics.New()
	handler := NewRateLimiter(failingLimiter{}, m).Limit(sensitiveTier)(statusHandler(http.StatusUnauthorized))

	for i := 0; i < 10; i++ {
		require.Equal(t, http.StatusUnauthorized, hit(handler, "10.0.0.2").Code)
	}

	// The error log is throttled; the counter is not.
	require.Equal(t, float64(10), testutil.ToFloat64(m.LimiterErrorsTotal.WithLabelValues("redis")))
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisLimiterWindow(t *testing.T) {
	t.Parallel()

	mr, client := newTestRedis(t)
	limiter := NewRedisLimiter(client)
	ctx := context.Background()
	tier := Tier{Name: "sensitive", Max: 2, Window: time.Minute, SkipSuccessful: true}

	for i := 0; i < 2; i++ {
		d, err := limiter.Allow(ctx, tier, "sensitive:10.0.0.3")
		require.NoError(t, err)
		require.True(t, d.Allowed)
		require.Equal(t, 1-i, d.Remaining)
	}

	d, err := limiter.Allow(ctx, tier, "sensitive:10.0.0.3")
	require.NoError(t, err)
	require.False(t, d.Allowed)
	require.InDelta(t, time.Minute.Seconds(), d.RetryAfter.Seconds(), 1)
	require.Equal(t, time.Minute, mr.TTL("ratelimit:sensitive:10.0.0.3"))

	mr.FastForward(time.Minute)
	d, err = limiter.Allow(ctx, tier, "sensitive:10.0.0.3")
	require.NoError(t, err)
	require.True(t, d.Allowed)
}

func TestRedisLimiterRefund(t *testing.T) {
	t.Parallel()

	mr, client := newTestRedis(t)
	limiter := NewRedisLimiter(client)
	ctx := context.Background()
	key := "sensitive:10.0.0.4"

	_, err := limiter.Allow(ctx, sensitiveTier, key)
	require.NoError(t, err)
	require.NoError(t, limiter.Refund(ctx, sensitiveTier, key))

	value, err := mr.Get("ratelimit:" + key)
	require.NoError(t, err)
	require.Equal(t, "0", value)
	require.Positive(t, mr.TTL("ratelimit:"+key))

	// Refunding a key that does not exist must not create one.
	require.NoError(t, limiter.Refund(ctx, sensitiveTier, "sensitive:10.0.0.5"))
	require.False(t, mr.Exists("ratelimit:sensitive:10.0.0.5"))
}

func TestRedisLimiterThroughMiddleware(t *testing.T) {
	t.Parallel()

	_, client := newTestRedis(t)
	rl := NewRateLimiter(NewRedisLimiter(client), nil)
	failing := rl.Limit(sensitiveTier)(statusHandler(http.StatusUnauthorized))
	succeeding := rl.Limit(sensitiveTier)(statusHandler(http.StatusCreated))

	require.Equal(t, http.StatusCreated, hit(succeeding, "10.0.0.6").Code)
	for i := 0; i < 5; i++ {
		require.Equal(t, http.StatusUnauthorized, hit(failing, "10.0.0.6").Code)
	}
	require.Equal(t, http.StatusTooManyRequests, hit(failing, "10.0.0.6").Code)
}

func TestRedisLimiterUnavailable(t *testing.T) {
	t.Parallel()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	mr.Close()

	_, err = NewRedisLimiter(client).Allow(context.Background(), sensitiveTier, "sensitive:10.0.0.7")
	require.Error(t, err)

	handler := NewRateLimiter(NewRedisLimiter(client), nil).Limit(sensitiveTier)(statusHandler(http.StatusOK))
	require.Equal(t, http.StatusOK, hit(handler, "10.0.0.7").Code)
}
