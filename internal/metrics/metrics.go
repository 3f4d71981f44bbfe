// Package metrics provides Prometheus metrics for the directory server.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP request metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dirserve_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dirserve_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// Snapshot metrics
	walksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dirserve_walks_total",
			Help: "Total directory snapshots taken",
		},
		[]string{"mode", "status"},
	)

	walkDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dirserve_walk_duration_seconds",
			Help:    "Time to walk a directory tree",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"mode"},
	)

	snapshotSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dirserve_snapshot_nodes",
			Help: "Number of files/directories in the most recent snapshot",
		},
	)

	// Content transfer metrics
	contentBytesDownloaded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dirserve_content_bytes_downloaded_total",
			Help: "Total bytes streamed from the files endpoint",
		},
	)

	contentChunksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dirserve_content_chunks_total",
			Help: "Total chunks streamed from the files endpoint",
		},
	)

	contentDownloadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dirserve_content_downloads_total",
			Help: "Total number of content downloads",
		},
		[]string{"status"},
	)

	// Search metrics
	findTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dirserve_find_total",
			Help: "Total glob searches",
		},
		[]string{"status"},
	)

	findDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dirserve_find_duration_seconds",
			Help:    "Glob search duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Rate limiting
	rateLimitHitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dirserve_rate_limit_hits_total",
			Help: "Total requests rejected by rate limiting",
		},
	)

	poolBusy = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dirserve_worker_pool_busy",
			Help: "Number of walk workers currently busy",
		},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordWalk records a snapshot. mode is "shallow" or "recursive"; nodes is
// ignored on failure.
func RecordWalk(mode string, duration time.Duration, nodes int, err error) {
	walkDuration.WithLabelValues(mode).Observe(duration.Seconds())
	if err != nil {
		walksTotal.WithLabelValues(mode, "error").Inc()
		return
	}
	walksTotal.WithLabelValues(mode, "success").Inc()
	snapshotSize.Set(float64(nodes))
}

// RecordChunk records one streamed chunk.
func RecordChunk(bytes int) {
	contentChunksTotal.Inc()
	contentBytesDownloaded.Add(float64(bytes))
}

// RecordContentDownload records a finished download. status is "success",
// "aborted", or "error".
func RecordContentDownload(status string) {
	contentDownloadsTotal.WithLabelValues(status).Inc()
}

// RecordFind records a glob search.
func RecordFind(duration time.Duration, success bool) {
	findDuration.Observe(duration.Seconds())
	status := "success"
	if !success {
		status = "error"
	}
	findTotal.WithLabelValues(status).Inc()
}

// RecordRateLimitHit records a rate limit rejection.
func RecordRateLimitHit() {
	rateLimitHitsTotal.Inc()
}

// SetPoolBusy sets the number of busy walk workers.
func SetPoolBusy(n int) {
	poolBusy.Set(float64(n))
}

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// Middleware returns HTTP middleware that records request metrics. Requests
// are labeled with the matched route pattern to keep label cardinality
// bounded.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)
		path := r.Pattern
		if path == "" {
			path = "unmatched"
		}
		RecordHTTPRequest(r.Method, path, rw.statusCode, time.Since(start))
	})
}
