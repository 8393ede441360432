// Package middleware holds the HTTP middleware wrapping the codeexec
// request verbs: structured request logging and a concurrency-limiting
// semaphore.
package middleware

import (
	"log/slog"
	"net/http"
	"time"
)

// LoggingMiddleware logs each request's method, path, and duration.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		slog.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

// Backpressure bounds the number of in-flight requests to capacity,
// rejecting with 503 once the semaphore is full. Sized by the caller
// (cmd/codeexec uses runtime.NumCPU() * 4).
type Backpressure struct {
	slots chan struct{}
}

// NewBackpressure creates a Backpressure middleware allowing up to capacity
// concurrent requests through.
func NewBackpressure(capacity int) *Backpressure {
	if capacity <= 0 {
		capacity = 1
	}
	return &Backpressure{slots: make(chan struct{}, capacity)}
}

// Middleware returns the http.Handler wrapper.
func (b *Backpressure) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case b.slots <- struct{}{}:
			defer func() { <-b.slots }()
			next.ServeHTTP(w, r)
		default:
			w.Header().Set("Retry-After", "1")
			http.Error(w, "server busy", http.StatusServiceUnavailable)
		}
	})
}
