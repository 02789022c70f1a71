/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricsLabelMethod       = "method"
	metricsLabelRoutePattern = "route_pattern"
	metricsLabelStatusCode   = "status_code"
)

// DefaultHTTPRequestDurationBuckets is default buckets into which observations of serving HTTP requests are counted.
var DefaultHTTPRequestDurationBuckets = []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}

// RouteFunc returns the route pattern (e.g., "/quotas/{namespace}/{key}") of the served request.
type RouteFunc func(r *http.Request) string

// HTTPMetricsOpts represents an options for HTTPMetrics.
type HTTPMetricsOpts struct {
	Namespace       string
	DurationBuckets []float64
	ConstLabels     prometheus.Labels
}

// HTTPMetrics is a set of Prometheus collectors for served HTTP requests.
// Rejections of exceeded quotas are observed with the 429 status code.
type HTTPMetrics struct {
	Durations *prometheus.HistogramVec
	InFlight  *prometheus.GaugeVec
}

// NewHTTPMetrics creates a new HTTPMetrics.
func NewHTTPMetrics(opts HTTPMetricsOpts) *HTTPMetrics {
	if opts.DurationBuckets == nil {
		opts.DurationBuckets = DefaultHTTPRequestDurationBuckets
	}
	return &HTTPMetrics{
		Durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   opts.Namespace,
			Name:        "http_request_duration_seconds",
			Help:        "A histogram of the HTTP request durations.",
			Buckets:     opts.DurationBuckets,
			ConstLabels: opts.ConstLabels,
		}, []string{metricsLabelMethod, metricsLabelRoutePattern, metricsLabelStatusCode}),
		InFlight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   opts.Namespace,
			Name:        "http_requests_in_flight",
			Help:        "Current number of HTTP requests being served.",
			ConstLabels: opts.ConstLabels,
		}, []string{metricsLabelMethod}),
	}
}

// MustRegister registers the collectors in Prometheus and panics on failure.
func (m *HTTPMetrics) MustRegister() {
	prometheus.MustRegister(m.Durations, m.InFlight)
}

// Unregister cancels registration of the collectors in Prometheus.
func (m *HTTPMetrics) Unregister() {
	prometheus.Unregister(m.InFlight)
	prometheus.Unregister(m.Durations)
}

func (m *HTTPMetrics) observe(method, route string, status int, since time.Time) {
	m.Durations.WithLabelValues(method, route, strconv.Itoa(status)).Observe(time.Since(since).Seconds())
}

// CollectMetrics is a middleware that observes the duration and the number of in-flight requests.
// The route is resolved after serving since routers fill it in while routing.
// Requests to the skipped paths (e.g., "/metrics") are not observed.
func CollectMetrics(m *HTTPMetrics, route RouteFunc, skippedPaths ...string) func(next http.Handler) http.Handler {
	if route == nil {
		panic("route func cannot be nil")
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			if isEndpointExcluded(r.URL.Path, skippedPaths) {
				next.ServeHTTP(rw, r)
				return
			}

			startTime := GetRequestStartTimeFromContext(r.Context())
			if startTime.IsZero() {
				startTime = time.Now()
				r = r.WithContext(NewContextWithRequestStartTime(r.Context(), startTime))
			}

			inFlight := m.InFlight.WithLabelValues(r.Method)
			inFlight.Inc()
			defer inFlight.Dec()

			wrw := WrapResponseWriterIfNeeded(rw, r.ProtoMajor)
			defer func() {
				if p := recover(); p != nil {
					if p != http.ErrAbortHandler {
						m.observe(r.Method, route(r), http.StatusInternalServerError, startTime)
					}
					panic(p)
				}
				m.observe(r.Method, route(r), responseStatus(wrw), startTime)
			}()

			next.ServeHTTP(wrw, r)
		})
	}
}
