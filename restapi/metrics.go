/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package restapi

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/atomic"
)

const (
	metricsSubsystem = "restapi"

	metricsLabelResponseErrorDomain = "domain"
	metricsLabelResponseErrorCode   = "code"
)

// ResponseErrorsMetrics counts errors responded by RespondError and its wrappers,
// so rejections of exceeded quotas are counted too.
type ResponseErrorsMetrics struct {
	Errors *prometheus.CounterVec
}

// activeMetrics is used by all Respond* functions of the package.
var activeMetrics atomic.Pointer[ResponseErrorsMetrics]

// NewResponseErrorsMetrics creates a new ResponseErrorsMetrics.
func NewResponseErrorsMetrics(namespace string) *ResponseErrorsMetrics {
	return &ResponseErrorsMetrics{
		Errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: metricsSubsystem,
			Name:      "response_errors",
			Help:      "The total number of REST API errors that were responded (including rejections of exceeded quotas).",
		}, []string{metricsLabelResponseErrorDomain, metricsLabelResponseErrorCode}),
	}
}

// MustRegister registers the counter in Prometheus and starts counting into it.
func (m *ResponseErrorsMetrics) MustRegister() {
	prometheus.MustRegister(m.Errors)
	activeMetrics.Store(m)
}

// Unregister stops counting into the counter and cancels its registration in Prometheus.
func (m *ResponseErrorsMetrics) Unregister() {
	activeMetrics.CompareAndSwap(m, nil)
	prometheus.Unregister(m.Errors)
}

func countResponseError(err *Error) {
	if m := activeMetrics.Load(); m != nil {
		m.Errors.WithLabelValues(err.Domain, err.Code).Inc()
	}
}
