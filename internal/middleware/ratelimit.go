package middleware

import (
	"context"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"foodies-api/internal/metrics"
)

const gcThreshold = 1000

// Tier is one independently counted request ceiling. With SkipSuccessful a
// request whose handler answers below 400 gives its hit back.
type Tier struct {
	Name           string
	Max            int
	Window         time.Duration
	SkipSuccessful bool
}

type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// Limiter counts hits per key. Allow must increment and check atomically so
// a concurrent burst from one key cannot undercount.
type Limiter interface {
	Allow(ctx context.Context, tier Tier, key string) (Decision, error)
	Refund(ctx context.Context, tier Tier, key string) error
	Backend() string
}

const failOpenLogInterval = 10 * time.Second

type RateLimiter struct {
	limiter Limiter
	metrics *metrics.Metrics
	// failOpenLog throttles the backend-down error log; every failure is
	// still counted in metrics.
	failOpenLog *rate.Sometimes
}

func NewRateLimiter(limiter Limiter, m *metrics.Metrics) *RateLimiter {
	return &RateLimiter{
		limiter:     limiter,
		metrics:     m,
		failOpenLog: &rate.Sometimes{First: 1, Interval: failOpenLogInterval},
	}
}

// Limit guards next with tier, keyed by client IP. Limiter failures let the
// request through.
func (rl *RateLimiter) Limit(tier Tier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if tier.Max <= 0 || tier.Window <= 0 {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := tier.Name + ":" + clientIP(r)

			decision, err := rl.limiter.Allow(r.Context(), tier, key)
			if err != nil {
				rl.failOpenLog.Do(func() {
					slog.Error("rate limiter unavailable, failing open", "backend", rl.limiter.Backend(), "tier", tier.Name, "error", err)
				})
				rl.metrics.LimiterError(rl.limiter.Backend())
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))

			if !decision.Allowed {
				rl.metrics.RateLimited(tier.Name)
				slog.Warn("rate limit exceeded", "tier", tier.Name, "client_ip", clientIP(r), "path", r.URL.Path)
				w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(decision.RetryAfter)))
				writeJSONError(w, http.StatusTooManyRequests, "RATE_LIMITED", "Too many requests", "")
				return
			}

			if !tier.SkipSuccessful {
				next.ServeHTTP(w, r)
				return
			}

			wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(wrapped, r)
			if wrapped.status >= http.StatusBadRequest {
				return
			}

			if err := rl.limiter.Refund(context.WithoutCancel(r.Context()), tier, key); err != nil {
				slog.Error("rate limit refund failed", "backend", rl.limiter.Backend(), "tier", tier.Name, "error", err)
				rl.metrics.LimiterError(rl.limiter.Backend())
			}
		})
	}
}

func retryAfterSeconds(d time.Duration) int {
	seconds := int(math.Ceil(d.Seconds()))
	if seconds < 1 {
		return 1
	}
	return seconds
}

type window struct {
	count   int
	resetAt time.Time
}

// MemoryLimiter is the single-process backend: a fixed window counter per
// key, the same arithmetic the Redis backend runs.
type MemoryLimiter struct {
	mu      sync.Mutex
	windows map[string]*window
	now     func() time.Time
}

func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{
		windows: map[string]*window{},
		now:     time.Now,
	}
}

// WithClock replaces the clock used for window arithmetic.
func (m *MemoryLimiter) WithClock(now func() time.Time) *MemoryLimiter {
	m.now = now
	return m
}

func (m *MemoryLimiter) Backend() string { return "memory" }

func (m *MemoryLimiter) Allow(_ context.Context, tier Tier, key string) (Decision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	w, ok := m.windows[key]
	if !ok || !now.Before(w.resetAt) {
		w = &window{resetAt: now.Add(tier.Window)}
		m.windows[key] = w
		m.gcLocked(now)
	}

	w.count++
	return Decision{
		Allowed:    w.count <= tier.Max,
		Limit:      tier.Max,
		Remaining:  max(tier.Max-w.count, 0),
		RetryAfter: w.resetAt.Sub(now),
	}, nil
}

func (m *MemoryLimiter) Refund(_ context.Context, tier Tier, key string) error {
	if !tier.SkipSuccessful {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if w, ok := m.windows[key]; ok && m.now().Before(w.resetAt) && w.count > 0 {
		w.count--
	}
	return nil
}

func (m *MemoryLimiter) gcLocked(now time.Time) {
	if len(m.windows) < gcThreshold {
		return
	}

	for key, w := range m.windows {
		if !now.Before(w.resetAt) {
			delete(m.windows, key)
		}
	}
}
