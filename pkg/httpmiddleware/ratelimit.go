package httpmiddleware

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"
)

// RateLimitConfig configures the per-client rate limiter.
type RateLimitConfig struct {
	// Requests is the number of requests allowed per Window. Zero disables
	// limiting entirely.
	Requests int

	// Window is the sliding window length. Defaults to one minute.
	Window time.Duration
}

type rateLimiter struct {
	cfg RateLimitConfig
	now func() time.Time

	mu      sync.Mutex
	clients map[string][]time.Time
}

func newRateLimiter(cfg RateLimitConfig) *rateLimiter {
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	return &rateLimiter{
		cfg:     cfg,
		now:     time.Now,
		clients: make(map[string][]time.Time),
	}
}

// allow records a hit for key and reports whether it stays within the window.
func (l *rateLimiter) allow(key string) bool {
	now := l.now()
	cutoff := now.Add(-l.cfg.Window)

	l.mu.Lock()
	defer l.mu.Unlock()

	hits := l.clients[key]
	kept := hits[:0]
	for _, t := range hits {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	if len(kept) >= l.cfg.Requests {
		l.clients[key] = kept
		return false
	}
	l.clients[key] = append(kept, now)
	return true
}

// cleanup drops clients whose entire window has expired.
func (l *rateLimiter) cleanup() {
	cutoff := l.now().Add(-l.cfg.Window)

	l.mu.Lock()
	defer l.mu.Unlock()

	for key, hits := range l.clients {
		idle := true
		for _, t := range hits {
			if t.After(cutoff) {
				idle = false
				break
			}
		}
		if idle {
			delete(l.clients, key)
		}
	}
}

func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// RateLimit returns a middleware applying a sliding-window limit keyed by
// client IP. Over-limit requests receive 429 with a Retry-After hint.
func RateLimit(cfg RateLimitConfig) Middleware {
	if cfg.Requests <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	l := newRateLimiter(cfg)
	return rateLimitWith(l)
}

// RateLimitWithCleanup is RateLimit plus a background goroutine evicting
// idle clients. The goroutine stops when ctx is done.
func RateLimitWithCleanup(ctx context.Context, cfg RateLimitConfig) Middleware {
	if cfg.Requests <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	l := newRateLimiter(cfg)
	go func() {
		ticker := time.NewTicker(l.cfg.Window)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				l.cleanup()
			}
		}
	}()
	return rateLimitWith(l)
}

func rateLimitWith(l *rateLimiter) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !l.allow(clientKey(r)) {
				w.Header().Set("Retry-After", l.cfg.Window.Round(time.Second).String())
				http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
