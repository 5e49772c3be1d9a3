package httpmiddleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiter_SlidingWindow(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	l := newRateLimiter(RateLimitConfig{Requests: 2, Window: time.Minute})
	l.now = func() time.Time { return now }

	assert.True(t, l.allow("10.0.0.1"))
	assert.True(t, l.allow("10.0.0.1"))
	assert.False(t, l.allow("10.0.0.1"))

	// Other clients are tracked independently.
	assert.True(t, l.allow("10.0.0.2"))

	// Once the first hits fall out of the window the client may go again.
	now = now.Add(61 * time.Second)
	assert.True(t, l.allow("10.0.0.1"))
}

func TestRateLimiter_Cleanup(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	l := newRateLimiter(RateLimitConfig{Requests: 5, Window: time.Minute})
	l.now = func() time.Time { return now }

	require.True(t, l.allow("10.0.0.1"))
	require.True(t, l.allow("10.0.0.2"))

	now = now.Add(2 * time.Minute)
	require.True(t, l.allow("10.0.0.2"))
	l.cleanup()

	l.mu.Lock()
	defer l.mu.Unlock()
	assert.NotContains(t, l.clients, "10.0.0.1")
	assert.Contains(t, l.clients, "10.0.0.2")
}

func TestRateLimit_Middleware(t *testing.T) {
	mw := RateLimit(RateLimitConfig{Requests: 1, Window: time.Minute})
	h := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	do := func() *httptest.ResponseRecorder {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.RemoteAddr = "192.0.2.10:51234"
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		return w
	}

	assert.Equal(t, http.StatusOK, do().Code)

	second := do()
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.NotEmpty(t, second.Header().Get("Retry-After"))
}

func TestRateLimit_Disabled(t *testing.T) {
	mw := RateLimit(RateLimitConfig{Requests: 0})
	h := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for range 10 {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.RemoteAddr = "192.0.2.10:51234"
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		assert.Equal(t, http.StatusOK, w.Code)
	}
}
