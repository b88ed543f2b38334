package metrics

import (
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "care"

type HTTPServerMetrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	uploadsTotal        *prometheus.CounterVec
	uploadBytes         *prometheus.HistogramVec
	deletesTotal        *prometheus.CounterVec
	processRequestTotal *prometheus.CounterVec
	breakerState        *prometheus.GaugeVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	uploadsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "files",
			Name:      "uploads_total",
			Help:      "Total stored uploads by sniffed category.",
		},
		[]string{"service", "category"},
	)
	uploadBytes := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "files",
			Name:      "upload_size_bytes",
			Help:      "Size distribution of stored uploads.",
			Buckets:   prometheus.ExponentialBuckets(1024, 4, 10),
		},
		[]string{"service", "category"},
	)
	deletesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "files",
			Name:      "deletes_total",
			Help:      "Total delete attempts by outcome.",
		},
		[]string{"service", "status"},
	)
	processRequestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "files",
			Name:      "process_requests_total",
			Help:      "Owner-triggered processing requests by audience and outcome.",
		},
		[]string{"service", "audience", "status"},
	)
	breakerState := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "resilience",
			Name:      "breaker_open",
			Help:      "1 while the circuit breaker of an operation is not closed.",
		},
		[]string{"service", "operation"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		uploadsTotal,
		uploadBytes,
		deletesTotal,
		processRequestTotal,
		breakerState,
	)

	return &HTTPServerMetrics{
		registry:            registry,
		requestTotal:        requestTotal,
		requestDuration:     requestDuration,
		requestInFlight:     requestInFlight,
		uploadsTotal:        uploadsTotal,
		uploadBytes:         uploadBytes,
		deletesTotal:        deletesTotal,
		processRequestTotal: processRequestTotal,
		breakerState:        breakerState,
	}
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *HTTPServerMetrics) Middleware(service string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		path := routePath(r)
		m.requestTotal.WithLabelValues(
			service,
			r.Method,
			path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(service, r.Method, path).Observe(time.Since(start).Seconds())
	})
}

// routePath prefers the matched chi pattern so ids do not explode label
// cardinality.
func routePath(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return normalizePath(r.URL.Path)
}

func normalizePath(path string) string {
	switch {
	case strings.HasPrefix(path, "/v1/files/"):
		return "/v1/files/{id}"
	default:
		return path
	}
}

func (m *HTTPServerMetrics) RecordUpload(service, category string, size int64) {
	if category == "" {
		category = "unknown"
	}
	m.uploadsTotal.WithLabelValues(service, category).Inc()
	m.uploadBytes.WithLabelValues(service, category).Observe(float64(size))
}

func (m *HTTPServerMetrics) RecordDelete(service string, err error) {
	m.deletesTotal.WithLabelValues(service, outcome(err)).Inc()
}

func (m *HTTPServerMetrics) RecordProcessRequest(service, audience string, err error) {
	if audience == "" {
		audience = "unknown"
	}
	m.processRequestTotal.WithLabelValues(service, audience, outcome(err)).Inc()
}

func (m *HTTPServerMetrics) ObserveBreakerState(service, operation, state string) {
	value := 0.0
	if state != "closed" {
		value = 1
	}
	m.breakerState.WithLabelValues(service, operation).Set(value)
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

// ReadFrom keeps io.Copy on the sendfile path for downloads.
func (w *statusRecorder) ReadFrom(src io.Reader) (int64, error) {
	if rf, ok := w.ResponseWriter.(io.ReaderFrom); ok {
		return rf.ReadFrom(src)
	}
	return io.Copy(w.ResponseWriter, src)
}
