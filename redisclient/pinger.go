/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package redisclient

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/atomic"

	"github.com/acronis/go-quotakit/log"
	"github.com/acronis/go-quotakit/service"
)

// PingClient is a subset of redis.UniversalClient used by Pinger.
type PingClient interface {
	Ping(ctx context.Context) *redis.StatusCmd
}

// PingerOpts represents an options for Pinger.
type PingerOpts struct {
	PingTimeout  time.Duration
	InitialDelay time.Duration

	// MetricsNamespace is a namespace of the "redis_up" gauge.
	MetricsNamespace string
}

// Pinger periodically pings Redis and remembers whether the last ping succeeded.
// It implements service.Worker and service.MetricsRegisterer, so it may be wrapped into service.WorkerUnit.
type Pinger struct {
	client      pingFunc
	interval    time.Duration
	opts        PingerOpts
	logger      log.FieldLogger
	healthy     atomic.Bool
	upGauge     prometheus.Gauge
	worker      *service.PeriodicWorker
	lastFailure atomic.Error
}

type pingFunc func(ctx context.Context) error

var _ service.Worker = (*Pinger)(nil)
var _ service.MetricsRegisterer = (*Pinger)(nil)

// NewPinger creates a new Pinger. Redis is considered unhealthy until the first successful ping.
func NewPinger(client PingClient, interval time.Duration, logger log.FieldLogger, opts PingerOpts) *Pinger {
	if logger == nil {
		logger = log.NewDisabledLogger()
	}
	if opts.PingTimeout <= 0 {
		opts.PingTimeout = defaultHealthCheckPingTimeout
	}
	p := &Pinger{
		client:   func(ctx context.Context) error { return client.Ping(ctx).Err() },
		interval: interval,
		opts:     opts,
		logger:   logger,
		upGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: opts.MetricsNamespace,
			Name:      "redis_up",
			Help:      "Whether the last ping of Redis succeeded (1) or not (0).",
		}),
	}
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = interval / 4
	eb.MaxInterval = interval
	eb.MaxElapsedTime = 0
	p.worker = service.NewPeriodicWorkerWithOpts(service.WorkerFunc(p.check), interval, logger,
		service.PeriodicWorkerOpts{InitialDelay: opts.InitialDelay, ErrorBackOff: eb})
	return p
}

// NewPingerFromConfig creates a new Pinger using the health check parameters from the configuration.
func NewPingerFromConfig(client PingClient, cfg *Config, logger log.FieldLogger, metricsNamespace string) *Pinger {
	return NewPinger(client, time.Duration(cfg.HealthCheck.Interval), logger, PingerOpts{
		PingTimeout:      time.Duration(cfg.HealthCheck.PingTimeout),
		InitialDelay:     time.Duration(cfg.HealthCheck.InitialDelay),
		MetricsNamespace: metricsNamespace,
	})
}

// Run runs the probing loop until the context is canceled.
func (p *Pinger) Run(ctx context.Context) error {
	return p.worker.Run(ctx)
}

// Healthy reports whether the last ping succeeded.
func (p *Pinger) Healthy() bool {
	return p.healthy.Load()
}

// LastError returns the error of the last failed ping or nil if the last ping succeeded.
func (p *Pinger) LastError() error {
	return p.lastFailure.Load()
}

// MustRegisterMetrics registers the "redis_up" gauge in Prometheus and panics if any error occurs.
func (p *Pinger) MustRegisterMetrics() {
	prometheus.MustRegister(p.upGauge)
}

// UnregisterMetrics cancels registration of the "redis_up" gauge in Prometheus.
func (p *Pinger) UnregisterMetrics() {
	prometheus.Unregister(p.upGauge)
}

func (p *Pinger) check(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, p.opts.PingTimeout)
	defer cancel()
	err := p.client(pingCtx)
	if ctx.Err() != nil {
		return nil
	}
	p.setResult(err)
	return err
}

func (p *Pinger) setResult(err error) {
	p.lastFailure.Store(err)
	wasHealthy := p.healthy.Swap(err == nil)
	if err != nil {
		p.upGauge.Set(0)
		if wasHealthy {
			p.logger.Warn("redis became unavailable", log.Error(err))
		}
		return
	}
	p.upGauge.Set(1)
	if !wasHealthy {
		p.logger.Info("redis is available")
	}
}
