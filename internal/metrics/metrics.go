// Package metrics exposes Prometheus instrumentation for the feed endpoints.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder is what the services report to. Tests use Nop.
type Recorder interface {
	RecordFeedRequest(feed string, outcome string, duration time.Duration)
	RecordSourceRows(source string, rows int)
	RecordTrendingCache(result string)
	RecordTrendingRecompute(duration time.Duration, videos int, err error)
}

// Collector implements Recorder on Prometheus metrics.
type Collector struct {
	feedRequests      *prometheus.CounterVec
	feedLatency       *prometheus.HistogramVec
	sourceRows        *prometheus.HistogramVec
	trendingCache     *prometheus.CounterVec
	recomputeLatency  prometheus.Histogram
	recomputeFailures prometheus.Counter
	snapshotSize      prometheus.Gauge
}

// NewCollector registers all metrics on reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		feedRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "clipfeed_feed_requests_total",
			Help: "Feed requests by feed type and outcome.",
		}, []string{"feed", "outcome"}),
		feedLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "clipfeed_feed_request_duration_seconds",
			Help:    "Feed composition latency by feed type.",
			Buckets: prometheus.DefBuckets,
		}, []string{"feed"}),
		sourceRows: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "clipfeed_feed_source_rows",
			Help:    "Rows returned by each for-you candidate source.",
			Buckets: []float64{0, 1, 2, 5, 10, 20, 50},
		}, []string{"source"}),
		trendingCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "clipfeed_trending_cache_total",
			Help: "Trending snapshot lookups by result (hit, stale, miss, shared).",
		}, []string{"result"}),
		recomputeLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "clipfeed_trending_recompute_duration_seconds",
			Help:    "Time spent recomputing the trending snapshot.",
			Buckets: prometheus.DefBuckets,
		}),
		recomputeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "clipfeed_trending_recompute_failures_total",
			Help: "Failed trending recomputations.",
		}),
		snapshotSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "clipfeed_trending_snapshot_videos",
			Help: "Number of videos in the latest trending snapshot.",
		}),
	}

	reg.MustRegister(
		c.feedRequests,
		c.feedLatency,
		c.sourceRows,
		c.trendingCache,
		c.recomputeLatency,
		c.recomputeFailures,
		c.snapshotSize,
	)
	return c
}

func (c *Collector) RecordFeedRequest(feed string, outcome string, duration time.Duration) {
	c.feedRequests.WithLabelValues(feed, outcome).Inc()
	c.feedLatency.WithLabelValues(feed).Observe(duration.Seconds())
}

func (c *Collector) RecordSourceRows(source string, rows int) {
	c.sourceRows.WithLabelValues(source).Observe(float64(rows))
}

func (c *Collector) RecordTrendingCache(result string) {
	c.trendingCache.WithLabelValues(result).Inc()
}

func (c *Collector) RecordTrendingRecompute(duration time.Duration, videos int, err error) {
	c.recomputeLatency.Observe(duration.Seconds())
	if err != nil {
		c.recomputeFailures.Inc()
		return
	}
	c.snapshotSize.Set(float64(videos))
}

// Handler serves the gathered metrics for Prometheus scrapes.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Nop discards everything.
type Nop struct{}

func (Nop) RecordFeedRequest(string, string, time.Duration)   {}
func (Nop) RecordSourceRows(string, int)                      {}
func (Nop) RecordTrendingCache(string)                        {}
func (Nop) RecordTrendingRecompute(time.Duration, int, error) {}
