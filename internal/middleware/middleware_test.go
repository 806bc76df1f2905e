package middleware

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eventproxy/internal/config"
	"eventproxy/internal/models"
	"eventproxy/internal/repository"
	"eventproxy/internal/services"
)

var testNow = time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)

func newAuthService(t *testing.T, token string) (services.AuthService, models.Event) {
	t.Helper()
	store := repository.NewMemoryStore()
	event := store.PutEvent(models.Event{
		Name:          "E1",
		AuthTokenHash: services.HashToken(token),
		MaxTokenCap:   1000,
		Active:        true,
		StartDate:     testNow.Add(-time.Hour),
		EndDate:       testNow.Add(time.Hour),
	})
	return services.NewAuthServiceWithClock(store, func() time.Time { return testNow }), event
}

func eventEcho(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		event, ok := services.EventFromContext(r.Context())
		require.True(t, ok)
		_, _ = io.WriteString(w, event.Name)
	})
}

func TestEventToken(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/", nil)
	assert.Empty(t, EventToken(r))

	r.Header.Set("Authorization", "Bearer abc")
	assert.Equal(t, "abc", EventToken(r))

	r.Header.Set("api-key", "key-wins")
	assert.Equal(t, "key-wins", EventToken(r))

	r = httptest.NewRequest(http.MethodPost, "/", nil)
	r.Header.Set("Authorization", "Basic abc")
	assert.Empty(t, EventToken(r))
}

func TestAuthMiddleware(t *testing.T) {
	auth, _ := newAuthService(t, "good-token")
	h := AuthMiddleware(auth)(eventEcho(t))

	tests := []struct {
		name   string
		header string
		value  string
		status int
	}{
		{"api-key", "api-key", "good-token", http.StatusOK},
		{"bearer", "Authorization", "Bearer good-token", http.StatusOK},
		{"wrong token", "api-key", "nope", http.StatusUnauthorized},
		{"missing", "", "", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/openai/deployments/gpt-35/chat/completions", nil)
			if tt.header != "" {
				r.Header.Set(tt.header, tt.value)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, r)

			assert.Equal(t, tt.status, rec.Code)
			if tt.status == http.StatusOK {
				assert.Equal(t, "E1", rec.Body.String())
			} else {
				assert.JSONEq(t, `{"error":{"code":401,"message":"Access denied due to invalid or inactive credential."}}`, rec.Body.String())
			}
		})
	}
}

func TestRateLimiterPerEvent(t *testing.T) {
	rl := NewRateLimiter(config.RateLimitConfig{PerMinute: 2, Window: time.Minute})
	now := testNow
	rl.now = func() time.Time { return now }

	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	h := rl.RateLimit(ok)

	send := func(id uuid.UUID) *httptest.ResponseRecorder {
		r := httptest.NewRequest(http.MethodPost, "/", nil)
		r = r.WithContext(services.WithEvent(r.Context(), &models.Event{ID: id}))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, r)
		return rec
	}

	a, b := uuid.New(), uuid.New()
	assert.Equal(t, http.StatusOK, send(a).Code)
	rec := send(a)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))

	rec = send(a)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), `"code":429`)

	// other events have their own window
	assert.Equal(t, http.StatusOK, send(b).Code)

	now = now.Add(time.Minute)
	assert.Equal(t, http.StatusOK, send(a).Code)
}

func TestRateLimiterDisabled(t *testing.T) {
	rl := NewRateLimiter(config.RateLimitConfig{})
	h := rl.RateLimit(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	for i := 0; i < 5; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, rec.Header().Get("X-RateLimit-Limit"))
	}
}

func TestRequestID(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = services.RequestIDFromContext(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	_, err := uuid.Parse(seen)
	assert.NoError(t, err)
	assert.Equal(t, seen, rec.Header().Get(RequestIDHeader))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set(RequestIDHeader, "caller-id")
	h.ServeHTTP(httptest.NewRecorder(), r)
	assert.Equal(t, "caller-id", seen)
}

func TestLoggingMiddlewareKeepsFlusher(t *testing.T) {
	h := LoggingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f, ok := w.(http.Flusher)
		require.True(t, ok)
		w.WriteHeader(http.StatusAccepted)
		_, _ = io.WriteString(w, "data: x\n\n")
		f.Flush()
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.True(t, rec.Flushed)
}

func TestBodyLimit(t *testing.T) {
	var readErr error
	h := BodyLimit(8)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, readErr = io.ReadAll(r.Body)
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/", bytes.NewReader([]byte("0123456789"))))

	var maxErr *http.MaxBytesError
	assert.True(t, errors.As(readErr, &maxErr))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/", bytes.NewReader([]byte("small"))))
	assert.NoError(t, readErr)
}
