// Package metrics provides Prometheus metrics for the PixelHub server.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pixelhub_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pixelhub_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	uploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pixelhub_uploads_total",
			Help: "Total number of image uploads",
		},
		[]string{"backend", "status"},
	)

	uploadBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pixelhub_upload_bytes_total",
			Help: "Total bytes written to storage backends",
		},
	)

	downloadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pixelhub_downloads_total",
			Help: "Total number of proxied image fetches",
		},
		[]string{"backend", "status"},
	)

	backendOpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pixelhub_backend_op_duration_seconds",
			Help:    "Storage backend operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"backend", "op"},
	)

	orphanedObjectsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pixelhub_orphaned_objects_total",
			Help: "Objects written to a backend with no metadata record",
		},
		[]string{"backend"},
	)

	dbQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pixelhub_db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"query"},
	)

	dbConnectionsOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pixelhub_db_connections_open",
			Help: "Number of open database connections",
		},
	)

	authAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pixelhub_auth_attempts_total",
			Help: "Total authentication attempts",
		},
		[]string{"result"},
	)
)

// RecordUpload records an upload outcome for a backend kind.
func RecordUpload(backend string, bytes int64, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	uploadsTotal.WithLabelValues(backend, status).Inc()
	if success {
		uploadBytesTotal.Add(float64(bytes))
	}
}

// RecordDownload records a proxied fetch outcome for a backend kind.
func RecordDownload(backend string, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	downloadsTotal.WithLabelValues(backend, status).Inc()
}

// RecordBackendOp records the duration of a backend transport call.
func RecordBackendOp(backend, op string, d time.Duration) {
	backendOpDuration.WithLabelValues(backend, op).Observe(d.Seconds())
}

// RecordOrphanedObject counts bytes left on a backend with no record.
func RecordOrphanedObject(backend string) {
	orphanedObjectsTotal.WithLabelValues(backend).Inc()
}

// RecordDBQuery records a database query duration.
func RecordDBQuery(query string, d time.Duration) {
	dbQueryDuration.WithLabelValues(query).Observe(d.Seconds())
}

// SetDBConnectionsOpen sets the open-connection gauge.
func SetDBConnectionsOpen(n int) {
	dbConnectionsOpen.Set(float64(n))
}

// RecordAuthAttempt records a login attempt outcome.
func RecordAuthAttempt(success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	authAttemptsTotal.WithLabelValues(result).Inc()
}

// Handler returns the /metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// HTTPMiddleware instruments request counts and latencies. Paths with
// per-object segments are collapsed to their route shape to keep label
// cardinality bounded.
func HTTPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		path := normalizePath(r.URL.Path)
		httpRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(rec.status)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

func normalizePath(p string) string {
	switch {
	case strings.HasPrefix(p, "/file/"):
		return "/file/{path}"
	case strings.HasPrefix(p, "/upload/"):
		return "/upload/{backend}"
	case strings.HasPrefix(p, "/api/v1/images/") && p != "/api/v1/images/stats":
		return "/api/v1/images/{id}"
	default:
		return p
	}
}
