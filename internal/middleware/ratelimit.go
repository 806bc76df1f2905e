package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"eventproxy/internal/config"
	apperrors "eventproxy/internal/pkg/errors"
	"eventproxy/internal/services"
)

// RateLimiter applies a fixed request window per event. It runs after AuthMiddleware.
type RateLimiter struct {
	limit  int
	window time.Duration
	now    func() time.Time

	mu     sync.Mutex
	events map[string]int
	reset  map[string]time.Time
}

func NewRateLimiter(cfg config.RateLimitConfig) *RateLimiter {
	window := cfg.Window
	if window <= 0 {
		window = time.Minute
	}
	return &RateLimiter{
		limit:  cfg.PerMinute,
		window: window,
		now:    time.Now,
		events: make(map[string]int),
		reset:  make(map[string]time.Time),
	}
}

func (rl *RateLimiter) RateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// zero disables the limiter
		if rl.limit <= 0 {
			next.ServeHTTP(w, r)
			return
		}

		event, ok := services.EventFromContext(r.Context())
		if !ok {
			apperrors.WriteError(w, apperrors.Unauthenticated())
			return
		}

		allowed, remaining, reset := rl.take(event.ID.String())

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))

		if !allowed {
			retry := int(reset.Sub(rl.now()).Seconds()) + 1
			w.Header().Set("Retry-After", strconv.Itoa(retry))
			apperrors.WriteError(w, apperrors.RateLimited())
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (rl *RateLimiter) take(key string) (bool, int, time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if resetTime, exists := rl.reset[key]; !exists || !now.Before(resetTime) {
		rl.reset[key] = now.Add(rl.window)
		rl.events[key] = 0
	}

	if rl.events[key] >= rl.limit {
		return false, 0, rl.reset[key]
	}
	rl.events[key]++
	return true, rl.limit - rl.events[key], rl.reset[key]
}
