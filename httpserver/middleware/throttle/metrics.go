/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package throttle

import "github.com/prometheus/client_golang/prometheus"

const (
	metricsLabelDryRun = "dry_run"
	metricsLabelRule   = "rule"
	metricsLabelZone   = "namespace"
)

const (
	metricsValYes = "yes"
	metricsValNo  = "no"
)

// MetricsCollector represents collector of metrics for quota rejects.
type MetricsCollector interface {
	IncQuotaRejects(rule, namespace string, dryRun bool)
}

// PrometheusMetrics represents collector of Prometheus metrics for quota rejects.
type PrometheusMetrics struct {
	QuotaRejects *prometheus.CounterVec
}

var _ MetricsCollector = (*PrometheusMetrics)(nil)

// NewPrometheusMetrics creates a new instance of PrometheusMetrics.
func NewPrometheusMetrics(namespace string, curriedLabelNames ...string) *PrometheusMetrics {
	labelNames := append(append([]string(nil), curriedLabelNames...), metricsLabelDryRun, metricsLabelRule, metricsLabelZone)
	return &PrometheusMetrics{
		QuotaRejects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quota_rejects_total",
			Help:      "Number of rejected requests due to exceeded quota limits.",
		}, labelNames),
	}
}

// MustCurryWith curries the metrics collector with the provided labels.
func (pm *PrometheusMetrics) MustCurryWith(labels prometheus.Labels) *PrometheusMetrics {
	return &PrometheusMetrics{QuotaRejects: pm.QuotaRejects.MustCurryWith(labels)}
}

// MustRegister does registration of metrics collector in Prometheus and panics if any error occurs.
func (pm *PrometheusMetrics) MustRegister() {
	prometheus.MustRegister(pm.QuotaRejects)
}

// Unregister cancels registration of metrics collector in Prometheus.
func (pm *PrometheusMetrics) Unregister() {
	prometheus.Unregister(pm.QuotaRejects)
}

// IncQuotaRejects increments the counter of rejected requests.
func (pm *PrometheusMetrics) IncQuotaRejects(rule, namespace string, dryRun bool) {
	dryRunVal := metricsValNo
	if dryRun {
		dryRunVal = metricsValYes
	}
	pm.QuotaRejects.With(prometheus.Labels{
		metricsLabelDryRun: dryRunVal,
		metricsLabelRule:   rule,
		metricsLabelZone:   namespace,
	}).Inc()
}

type disabledMetrics struct{}

func (disabledMetrics) IncQuotaRejects(string, string, bool) {}
