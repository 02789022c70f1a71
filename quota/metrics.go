/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package quota

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Operations used as values of the "op" label.
const (
	OpHit   = "hit"
	OpGet   = "get"
	OpCheck = "check"
	OpReset = "reset"
)

const (
	metricsLabelOp    = "op"
	metricsLabelLimit = "limit"
)

// DefaultStoreCallDurationBuckets is the default buckets for the histogram of Redis calls durations.
var DefaultStoreCallDurationBuckets = []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1}

// MetricsCollector represents a collector of metrics for the Limiter.
type MetricsCollector interface {
	// ObserveStoreCall observes the duration of a single Redis call (script or DEL).
	ObserveStoreCall(op string, duration time.Duration)

	// IncStoreErrors increments the total number of failed Redis calls.
	IncStoreErrors(op string)

	// IncBreaches increments the total number of LimitExceededError returned for the limit.
	IncBreaches(op string, limitName string)
}

// PrometheusMetricsOpts represents options for PrometheusMetrics.
type PrometheusMetricsOpts struct {
	// Namespace is a namespace for metrics. It will be prepended to all metric names.
	Namespace string

	// ConstLabels is a set of labels that will be applied to all metrics.
	ConstLabels prometheus.Labels

	// CurriedLabelNames is a list of label names that will be curried with the provided labels.
	// See PrometheusMetrics.MustCurryWith method for more details.
	CurriedLabelNames []string

	// DurationBuckets is a list of buckets for the store call duration histogram.
	// DefaultStoreCallDurationBuckets is used if empty.
	DurationBuckets []float64
}

// PrometheusMetrics represents Prometheus metrics for the Limiter.
type PrometheusMetrics struct {
	StoreCallDuration *prometheus.HistogramVec
	StoreErrorsTotal  *prometheus.CounterVec
	BreachesTotal     *prometheus.CounterVec
}

// NewPrometheusMetrics creates a new instance of PrometheusMetrics with default options.
func NewPrometheusMetrics() *PrometheusMetrics {
	return NewPrometheusMetricsWithOpts(PrometheusMetricsOpts{})
}

// NewPrometheusMetricsWithOpts creates a new instance of PrometheusMetrics with the provided options.
func NewPrometheusMetricsWithOpts(opts PrometheusMetricsOpts) *PrometheusMetrics {
	buckets := opts.DurationBuckets
	if len(buckets) == 0 {
		buckets = DefaultStoreCallDurationBuckets
	}
	makeLabelNames := func(names ...string) []string {
		return append(append(make([]string, 0, len(opts.CurriedLabelNames)+len(names)), opts.CurriedLabelNames...), names...)
	}

	storeCallDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   opts.Namespace,
			Name:        "quota_store_call_duration_seconds",
			Help:        "Duration of Redis calls made by the quota limiter.",
			Buckets:     buckets,
			ConstLabels: opts.ConstLabels,
		},
		makeLabelNames(metricsLabelOp),
	)

	storeErrorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Name:        "quota_store_errors_total",
			Help:        "Number of failed Redis calls made by the quota limiter.",
			ConstLabels: opts.ConstLabels,
		},
		makeLabelNames(metricsLabelOp),
	)

	breachesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Name:        "quota_breaches_total",
			Help:        "Number of rejections due to exceeded quota limits.",
			ConstLabels: opts.ConstLabels,
		},
		makeLabelNames(metricsLabelOp, metricsLabelLimit),
	)

	return &PrometheusMetrics{
		StoreCallDuration: storeCallDuration,
		StoreErrorsTotal:  storeErrorsTotal,
		BreachesTotal:     breachesTotal,
	}
}

// MustCurryWith curries the metrics collector with the provided labels.
func (pm *PrometheusMetrics) MustCurryWith(labels prometheus.Labels) *PrometheusMetrics {
	return &PrometheusMetrics{
		StoreCallDuration: pm.StoreCallDuration.MustCurryWith(labels).(*prometheus.HistogramVec),
		StoreErrorsTotal:  pm.StoreErrorsTotal.MustCurryWith(labels),
		BreachesTotal:     pm.BreachesTotal.MustCurryWith(labels),
	}
}

// MustRegister does registration of metrics collector in Prometheus and panics if any error occurs.
func (pm *PrometheusMetrics) MustRegister() {
	prometheus.MustRegister(
		pm.StoreCallDuration,
		pm.StoreErrorsTotal,
		pm.BreachesTotal,
	)
}

// Unregister cancels registration of metrics collector in Prometheus.
func (pm *PrometheusMetrics) Unregister() {
	prometheus.Unregister(pm.StoreCallDuration)
	prometheus.Unregister(pm.StoreErrorsTotal)
	prometheus.Unregister(pm.BreachesTotal)
}

// ObserveStoreCall observes the duration of a single Redis call.
func (pm *PrometheusMetrics) ObserveStoreCall(op string, duration time.Duration) {
	pm.StoreCallDuration.With(prometheus.Labels{metricsLabelOp: op}).Observe(duration.Seconds())
}

// IncStoreErrors increments the total number of failed Redis calls.
func (pm *PrometheusMetrics) IncStoreErrors(op string) {
	pm.StoreErrorsTotal.With(prometheus.Labels{metricsLabelOp: op}).Inc()
}

// IncBreaches increments the total number of rejections for the limit.
func (pm *PrometheusMetrics) IncBreaches(op string, limitName string) {
	pm.BreachesTotal.With(prometheus.Labels{metricsLabelOp: op, metricsLabelLimit: limitName}).Inc()
}

type disabledMetrics struct{}

func (disabledMetrics) ObserveStoreCall(string, time.Duration) {}
func (disabledMetrics) IncStoreErrors(string)                  {}
func (disabledMetrics) IncBreaches(string, string)             {}

var disabledMetricsCollector = disabledMetrics{}
