package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"clipfeed/internal/handler"
	"clipfeed/internal/httputil"
	"clipfeed/internal/logging"
	feedmw "clipfeed/internal/transport/http/middleware"
)

// Pinger is a dependency checked by /health/ready.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) PingContext(ctx context.Context) error { return f(ctx) }

// StatusFunc reports a component state listed by /health/ready without gating it.
type StatusFunc func() string

// RouterConfig holds the dependencies needed to create routes
type RouterConfig struct {
	FeedHandler    *handler.FeedHandler
	JWTSecret      string
	RequestTimeout time.Duration
	RateLimit      int
	RateWindow     time.Duration
	Metrics        http.Handler
	// Readiness maps a dependency name to its check.
	Readiness map[string]Pinger
	// Components maps a component name to its state, e.g. a circuit breaker.
	Components map[string]StatusFunc
}

// NewRouter creates and configures a new Chi router with all route groups
func NewRouter(cfg RouterConfig) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(feedmw.RequestLogger(logging.Component("http")))
	r.Use(middleware.Recoverer)

	// Liveness
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// Readiness: every dependency must answer
	r.Get("/health/ready", readinessHandler(cfg.Readiness, cfg.Components))

	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics)
	}

	// Protected routes - require authentication
	r.Route("/api/feed", func(r chi.Router) {
		if cfg.RequestTimeout > 0 {
			r.Use(middleware.Timeout(cfg.RequestTimeout))
		}
		r.Use(feedmw.AuthMiddleware(cfg.JWTSecret))
		r.Use(feedmw.RateLimit(cfg.RateLimit, cfg.RateWindow))

		r.Get("/foryou", cfg.FeedHandler.ForYou)
		r.Get("/trending", cfg.FeedHandler.Trending)
	})

	return r
}

func readinessHandler(checks map[string]Pinger, components map[string]StatusFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := map[string]string{}
		ready := true
		for name, check := range checks {
			if err := check.PingContext(ctx); err != nil {
				status[name] = err.Error()
				ready = false
				continue
			}
			status[name] = "ok"
		}

		body := map[string]interface{}{
			"status": "ok",
			"checks": status,
		}
		if len(components) > 0 {
			states := make(map[string]string, len(components))
			for name, state := range components {
				states[name] = state()
			}
			body["components"] = states
		}

		if !ready {
			body["status"] = "unavailable"
			httputil.WriteJSON(w, http.StatusServiceUnavailable, body)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, body)
	}
}
