// Package metrics provides Prometheus metrics collection.
package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector implements the MetricsCollector port using Prometheus.
type Collector struct {
	ingestCounter       *prometheus.CounterVec
	ingestDuration      *prometheus.HistogramVec
	layers              *prometheus.GaugeVec
	viewportCommands    *prometheus.CounterVec
	viewportConnected   prometheus.Gauge
	storageOperations   *prometheus.CounterVec
	storageDuration     *prometheus.HistogramVec
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// NewCollector creates a Prometheus metrics collector registered with reg,
// or with the default registerer when reg is nil.
func NewCollector(namespace string, reg prometheus.Registerer) *Collector {
	if namespace == "" {
		namespace = "geolayers"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Collector{
		ingestCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ingestions_total",
				Help:      "Total number of file ingestions",
			},
			[]string{"format", "status"},
		),

		ingestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "ingest_duration_seconds",
				Help:      "Ingestion duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"format"},
		),

		layers: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "layers",
				Help:      "Number of layers in the store",
			},
			[]string{"kind"},
		),

		viewportCommands: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "viewport_commands_total",
				Help:      "Total number of commands sent to the viewport",
			},
			[]string{"command"},
		),

		viewportConnected: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "viewport_connected",
				Help:      "Whether a map client is mounted (1) or not (0)",
			},
		),

		storageOperations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "storage_operations_total",
				Help:      "Total number of storage operations",
			},
			[]string{"operation", "status"},
		),

		storageDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "storage_duration_seconds",
				Help:      "Storage operation duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),

		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),

		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
	}
}

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

// IncIngestions increments the ingestion counter.
func (c *Collector) IncIngestions(format string, success bool) {
	c.ingestCounter.WithLabelValues(format, statusLabel(success)).Inc()
}

// ObserveIngestDuration records ingestion duration.
func (c *Collector) ObserveIngestDuration(format string, duration time.Duration) {
	c.ingestDuration.WithLabelValues(format).Observe(duration.Seconds())
}

// SetLayerCount sets the number of layers of a kind.
func (c *Collector) SetLayerCount(kind string, count int) {
	c.layers.WithLabelValues(kind).Set(float64(count))
}

// IncViewportCommands increments the viewport command counter.
func (c *Collector) IncViewportCommands(command string) {
	c.viewportCommands.WithLabelValues(command).Inc()
}

// SetViewportConnected records whether a map client is mounted.
func (c *Collector) SetViewportConnected(connected bool) {
	v := 0.0
	if connected {
		v = 1
	}
	c.viewportConnected.Set(v)
}

// IncStorageOperations increments storage operation counter.
func (c *Collector) IncStorageOperations(operation string, success bool) {
	c.storageOperations.WithLabelValues(operation, statusLabel(success)).Inc()
}

// ObserveStorageDuration records storage operation duration.
func (c *Collector) ObserveStorageDuration(operation string, duration time.Duration) {
	c.storageDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// IncHTTPRequests increments the HTTP request counter.
func (c *Collector) IncHTTPRequests(method, path, status string) {
	c.httpRequestsTotal.WithLabelValues(method, path, status).Inc()
}

// ObserveHTTPDuration records HTTP request duration.
func (c *Collector) ObserveHTTPDuration(method, path string, duration time.Duration) {
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// Middleware returns HTTP middleware for metrics collection.
func (c *Collector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Wrap response writer to capture status code
		wrapped := &statusResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start)
		path := routePath(r)
		status := statusToString(wrapped.statusCode)

		c.IncHTTPRequests(r.Method, path, status)
		c.ObserveHTTPDuration(r.Method, path, duration)
	})
}

type statusResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusResponseWriter) WriteHeader(code int) {
	w.statusCode = code
	w.ResponseWriter.WriteHeader(code)
}

// Hijack lets websocket upgrades pass through the middleware.
func (w *statusResponseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	w.statusCode = http.StatusSwitchingProtocols
	return hj.Hijack()
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (w *statusResponseWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// routePath returns the matched route template so layer ids do not become
// label values. Unmatched paths fall back to a truncated form.
func routePath(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return normalizePath(r.URL.Path)
}

// normalizePath normalizes the URL path for metrics.
func normalizePath(path string) string {
	if strings.HasPrefix(path, "/static/") {
		return "/static/"
	}
	if len(path) > 20 {
		return path[:20] + "..."
	}
	return path
}

// statusToString converts HTTP status code to string category.
func statusToString(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
