package http

import (
	"context"
	"errors"
	stdhttp "net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clipfeed/internal/cache"
	"clipfeed/internal/handler"
	"clipfeed/internal/metrics"
	"clipfeed/internal/model"
)

const testSecret = "router-secret"

type stubForYou struct{}

func (stubForYou) GetForYou(context.Context, string, *string, int) (*model.FeedResponse, error) {
	return &model.FeedResponse{Results: []model.VideoCard{}}, nil
}

type stubTrending struct{}

func (stubTrending) GetTrending(context.Context, string, *string, int) (*model.TrendingResponse, error) {
	return &model.TrendingResponse{
		Results:  []model.TrendingCard{},
		Snapshot: model.SnapshotInfo{Version: "s1", ComputedAt: time.Now()},
	}, nil
}

func newTestRouter(readiness map[string]Pinger, components ...map[string]StatusFunc) stdhttp.Handler {
	reg := prometheus.NewRegistry()
	metrics.NewCollector(reg).RecordFeedRequest("foryou", "ok", time.Millisecond)

	return NewRouter(RouterConfig{
		FeedHandler:    handler.NewFeedHandler(stubForYou{}, stubTrending{}),
		JWTSecret:      testSecret,
		RequestTimeout: time.Second,
		RateLimit:      100,
		RateWindow:     time.Minute,
		Metrics:        metrics.Handler(reg),
		Readiness:      readiness,
		Components:     firstOrNil(components),
	})
}

func firstOrNil(components []map[string]StatusFunc) map[string]StatusFunc {
	if len(components) == 0 {
		return nil
	}
	return components[0]
}

func bearer(t *testing.T, viewerID string) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   viewerID,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return "Bearer " + token
}

func TestRouter_Health(t *testing.T) {
	w := httptest.NewRecorder()
	newTestRouter(nil).ServeHTTP(w, httptest.NewRequest(stdhttp.MethodGet, "/health", nil))

	assert.Equal(t, stdhttp.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestRouter_Readiness(t *testing.T) {
	healthy := PingFunc(func(context.Context) error { return nil })
	down := PingFunc(func(context.Context) error { return errors.New("connection refused") })

	w := httptest.NewRecorder()
	newTestRouter(map[string]Pinger{"postgres": healthy}).
		ServeHTTP(w, httptest.NewRequest(stdhttp.MethodGet, "/health/ready", nil))
	assert.Equal(t, stdhttp.StatusOK, w.Code)

	w = httptest.NewRecorder()
	newTestRouter(map[string]Pinger{"postgres": healthy, "redis": down}).
		ServeHTTP(w, httptest.NewRequest(stdhttp.MethodGet, "/health/ready", nil))
	assert.Equal(t, stdhttp.StatusServiceUnavailable, w.Code)

	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "unavailable", body.Status)
	assert.Equal(t, "ok", body.Checks["postgres"])
	assert.Equal(t, "connection refused", body.Checks["redis"])
}

func TestRouter_ReadinessReportsComponents(t *testing.T) {
	tc := cache.NewResilientTrendingCache(cache.NewMemoryTrendingCache(time.Hour), cache.DefaultBreakerConfig())

	w := httptest.NewRecorder()
	newTestRouter(
		map[string]Pinger{"postgres": PingFunc(func(context.Context) error { return nil })},
		map[string]StatusFunc{"trending_cache_breaker": func() string { return tc.State().String() }},
	).ServeHTTP(w, httptest.NewRequest(stdhttp.MethodGet, "/health/ready", nil))

	assert.Equal(t, stdhttp.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","checks":{"postgres":"ok"},"components":{"trending_cache_breaker":"closed"}}`, w.Body.String())
}

func TestRouter_Metrics(t *testing.T) {
	w := httptest.NewRecorder()
	newTestRouter(nil).ServeHTTP(w, httptest.NewRequest(stdhttp.MethodGet, "/metrics", nil))

	assert.Equal(t, stdhttp.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "clipfeed_feed_requests_total")
}

func TestRouter_FeedRequiresAuth(t *testing.T) {
	router := newTestRouter(nil)

	for _, path := range []string{"/api/feed/foryou", "/api/feed/trending"} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(stdhttp.MethodGet, path, nil))
		assert.Equal(t, stdhttp.StatusUnauthorized, w.Code, path)
	}
}

func TestRouter_FeedRoutes(t *testing.T) {
	router := newTestRouter(nil)

	req := httptest.NewRequest(stdhttp.MethodGet, "/api/feed/foryou?limit=3", nil)
	req.Header.Set("Authorization", bearer(t, "viewer-1"))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, stdhttp.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("Content-Type"))

	req = httptest.NewRequest(stdhttp.MethodGet, "/api/feed/trending", nil)
	req.Header.Set("Authorization", bearer(t, "viewer-1"))
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, stdhttp.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get(handler.TrendingSnapshotHeader), "s1; computedAt=")
}
