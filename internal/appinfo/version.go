/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package appinfo provides the build information of the module.
package appinfo

import (
	"regexp"
	"runtime"
	"runtime/debug"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const modulePath = "github.com/acronis/go-quotakit"

const unknownVersion = "v0.0.0"

var version string
var versionOnce sync.Once

// Version returns the version of the module.
// It's taken from the main module when the binary is built from this repository
// and from the dependency list otherwise. "v0.0.0" is returned if the version is unknown.
func Version() string {
	versionOnce.Do(func() {
		if bi, ok := debug.ReadBuildInfo(); ok {
			version = extractVersion(bi, modulePath)
		}
		if version == "" {
			version = unknownVersion
		}
	})
	return version
}

// extractVersion expects the module path in the form "path" or "path/vX".
func extractVersion(bi *debug.BuildInfo, modPath string) string {
	if bi == nil {
		return ""
	}
	re := regexp.MustCompile(`^` + regexp.QuoteMeta(modPath) + `(/v[0-9]+)?$`)
	if re.MatchString(bi.Main.Path) && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		return bi.Main.Version
	}
	for _, dep := range bi.Deps {
		if re.MatchString(dep.Path) {
			if dep.Replace != nil && dep.Replace.Version != "" {
				return dep.Replace.Version
			}
			return dep.Version
		}
	}
	return ""
}

// Metrics exposes the "build_info" gauge which is always 1 and carries the version labels.
type Metrics struct {
	gauge prometheus.Gauge
}

// NewMetrics creates a new Metrics.
func NewMetrics(namespace string) *Metrics {
	g := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace:   namespace,
		Name:        "build_info",
		Help:        "Build information of the running binary.",
		ConstLabels: prometheus.Labels{"version": Version(), "go_version": runtime.Version()},
	})
	g.Set(1)
	return &Metrics{gauge: g}
}

// MustRegister registers the gauge in the default Prometheus registerer.
func (m *Metrics) MustRegister() {
	prometheus.MustRegister(m.gauge)
}

// Unregister cancels registration of the gauge.
func (m *Metrics) Unregister() {
	prometheus.Unregister(m.gauge)
}
