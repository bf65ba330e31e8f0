package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/httprate"

	"clipfeed/internal/httputil"
)

// RateLimit limits requests per viewer, or per client IP when the request is anonymous.
// Non-positive requests disables limiting.
func RateLimit(requests int, window time.Duration) func(http.Handler) http.Handler {
	if requests <= 0 || window <= 0 {
		return func(next http.Handler) http.Handler {
			return next
		}
	}

	return httprate.Limit(
		requests,
		window,
		httprate.WithKeyFuncs(keyByViewerOrIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			httputil.WriteTooManyRequests(w, "Too many requests, slow down")
		}),
	)
}

func keyByViewerOrIP(r *http.Request) (string, error) {
	if viewerID, ok := GetViewerIDFromContext(r.Context()); ok {
		return "viewer:" + viewerID, nil
	}
	return httprate.KeyByIP(r)
}
