package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dlddu/registry-oauth/internal/auth"
	"github.com/dlddu/registry-oauth/internal/metrics"
	"github.com/dlddu/registry-oauth/internal/ratelimit"
)

// Pinger reports whether the backing store is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// RouterConfig carries everything NewRouter wires together. ProxyHeaders
// makes RemoteAddr follow X-Forwarded-For; enable it only behind a proxy that
// overwrites the header.
type RouterConfig struct {
	OAuth        OAuthService
	Store        Pinger
	Users        auth.UserHeader
	Limiter      ratelimit.Limiter
	Metrics      *metrics.Metrics
	Gatherer     prometheus.Gatherer
	Logger       *slog.Logger
	ProxyHeaders bool
}

// NewRouter builds the HTTP surface of the authorization server
func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	authorize := NewAuthorizeHandler(cfg.OAuth, logger)
	tokens := NewTokenHandler(cfg.OAuth, logger)
	admin := NewAdminHandler(cfg.OAuth, logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	if cfg.ProxyHeaders {
		r.Use(middleware.RealIP)
	}
	r.Use(accessLog(logger, cfg.Metrics))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", healthz(cfg.Store, logger))
	if cfg.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/oauth", func(r chi.Router) {
		if cfg.Limiter != nil {
			r.Use(ratelimit.Middleware(cfg.Limiter, logger))
		}

		r.Group(func(r chi.Router) {
			r.Use(cfg.Users.Require)
			r.Post("/authorize", authorize.Authorize)
			r.Get("/consentinformation", authorize.ConsentInformation)
		})

		r.Post("/token", tokens.Token)
		r.Post("/tokenvalidate", tokens.Validate)
		r.Post("/revoke", tokens.Revoke)
	})

	r.Post("/internal/users/{userID}/revoke-tokens", admin.RevokeUserTokens)

	return r
}

func healthz(store Pinger, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if store != nil {
			if err := store.Ping(ctx); err != nil {
				logger.WarnContext(r.Context(), "health check failed", "error", err)
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// accessLog logs one line per request and counts it by route pattern
func accessLog(logger *slog.Logger, m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				route := "unmatched"
				if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
					route = rctx.RoutePattern()
				}
				status := ww.Status()
				if status == 0 {
					status = http.StatusOK
				}
				m.IncHTTPRequest(route, status)
				logger.InfoContext(r.Context(), "http request",
					"method", r.Method,
					"path", r.URL.Path,
					"route", route,
					"status", status,
					"duration", time.Since(start),
					"request_id", middleware.GetReqID(r.Context()),
				)
			}()

			next.ServeHTTP(ww, r)
		})
	}
}
