// Package ratelimit throttles requests per key, either in process or shared
// across nodes through Redis.
package ratelimit

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
)

// Limiter decides whether one more request for key may proceed
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// Middleware rejects requests over the limit for the client IP with 429.
// Limiter failures are logged and the request is let through.
func Middleware(l Limiter, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := clientIP(r)
			allowed, err := l.Allow(r.Context(), key)
			if err != nil {
				logger.ErrorContext(r.Context(), "rate limit check failed", "error", err)
				next.ServeHTTP(w, r)
				return
			}
			if !allowed {
				logger.DebugContext(r.Context(), "rate limited", "client_ip", key, "path", r.URL.Path)
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", "1")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(map[string]string{"error": "rate_limited"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP expects RemoteAddr to be rewritten by a trusted proxy middleware.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
