/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/acronis/go-quotakit/testutil"
)

func TestCollectMetrics(t *testing.T) {
	metrics := NewHTTPMetrics(HTTPMetricsOpts{})
	route := func(*http.Request) string { return "/quotas/{namespace}/{key}" }

	var inFlightDuringRequest float64
	status := http.StatusOK
	next := http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		inFlightDuringRequest = promtestutil.ToFloat64(metrics.InFlight.WithLabelValues(r.Method))
		rw.WriteHeader(status)
	})
	h := CollectMetrics(metrics, route, "/metrics")(next)

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/quotas/login/alice", nil))
	require.Equal(t, 1.0, inFlightDuringRequest)
	status = http.StatusTooManyRequests
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/quotas/login/alice", nil))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/metrics", nil))

	observed := func(code string) prometheus.Histogram {
		return metrics.Durations.WithLabelValues(http.MethodGet, "/quotas/{namespace}/{key}", code).(prometheus.Histogram)
	}
	testutil.RequireSamplesCountInHistogram(t, observed("200"), 1)
	testutil.RequireSamplesCountInHistogram(t, observed("429"), 1)
	require.Equal(t, 0.0, promtestutil.ToFloat64(metrics.InFlight.WithLabelValues(http.MethodGet)))
	require.Equal(t, 2, promtestutil.CollectAndCount(metrics.Durations))

	require.Panics(t, func() { CollectMetrics(metrics, nil) })
}

func TestCollectMetrics_Panic(t *testing.T) {
	metrics := NewHTTPMetrics(HTTPMetricsOpts{Namespace: "quotad"})
	next := http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") })
	h := CollectMetrics(metrics, func(*http.Request) string { return "/" })(next)

	require.Panics(t, func() {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/", nil))
	})
	testutil.RequireSamplesCountInHistogram(t,
		metrics.Durations.WithLabelValues(http.MethodPost, "/", "500").(prometheus.Histogram), 1)
}
