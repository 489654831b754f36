// Package metrics provides Prometheus metrics for the directory browser.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP request metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swbrowse_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "swbrowse_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// Listing metrics
	listingsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swbrowse_directory_listings_total",
			Help: "Total directory scans",
		},
		[]string{"result"},
	)

	listingDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "swbrowse_directory_listing_duration_seconds",
			Help:    "Time spent scanning a directory",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Archive metrics
	archiveCreationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swbrowse_archive_creations_total",
			Help: "Total archive creation attempts",
		},
		[]string{"result"},
	)

	archiveCreationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "swbrowse_archive_creation_duration_seconds",
			Help:    "Time to write and commit an archive",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		},
	)

	archivesRemovedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swbrowse_archives_removed_total",
			Help: "Cached archives removed",
		},
		[]string{"reason"},
	)

	staleLocksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "swbrowse_archive_stale_locks_total",
			Help: "Abandoned archive lock files that were removed",
		},
	)
)

// Archive creation results.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultBusy    = "busy"
)

// Archive removal reasons.
const (
	ReasonObsolete = "obsolete"
	ReasonExpired  = "expired"
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordHTTPRequest records an HTTP request metric.
func RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordListing records one directory scan.
func RecordListing(duration time.Duration, success bool) {
	result := ResultSuccess
	if !success {
		result = ResultError
	}
	listingsTotal.WithLabelValues(result).Inc()
	listingDuration.Observe(duration.Seconds())
}

// RecordArchiveCreation records an archive creation attempt. Duration is only
// observed for successful creations.
func RecordArchiveCreation(result string, duration time.Duration) {
	archiveCreationsTotal.WithLabelValues(result).Inc()
	if result == ResultSuccess {
		archiveCreationDuration.Observe(duration.Seconds())
	}
}

// RecordArchivesRemoved records removed cache entries.
func RecordArchivesRemoved(reason string, count int) {
	if count > 0 {
		archivesRemovedTotal.WithLabelValues(reason).Add(float64(count))
	}
}

// RecordStaleLock records a recovered abandoned lock.
func RecordStaleLock() {
	staleLocksTotal.Inc()
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// Middleware returns HTTP middleware that records request metrics. Requests
// are labelled by chi route pattern to keep cardinality bounded.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rw, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		RecordHTTPRequest(r.Method, route, rw.status, time.Since(start))
	})
}
