/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/acronis/go-quotakit/httpserver"
	"github.com/acronis/go-quotakit/httpserver/middleware/throttle"
	"github.com/acronis/go-quotakit/internal/appinfo"
	"github.com/acronis/go-quotakit/log"
	"github.com/acronis/go-quotakit/profserver"
	"github.com/acronis/go-quotakit/quota"
	"github.com/acronis/go-quotakit/quotaapi"
	"github.com/acronis/go-quotakit/redisclient"
	"github.com/acronis/go-quotakit/restapi"
	"github.com/acronis/go-quotakit/service"
)

const (
	errDomain        = "Quota"
	metricsNamespace = "quotad"
	serviceNameInURL = "quota"

	// apiZoneName is the value of the "zone" metrics label for the limiter served by the quota API.
	apiZoneName = "api"
)

// app holds the wired components of quotad.
type app struct {
	server     *httpserver.HTTPServer
	pinger     *redisclient.Pinger
	profServer *profserver.ProfServer // nil if disabled
	unit       *service.CompositeUnit
}

func runApp(ctx context.Context, cfg *AppConfig) error {
	logger, closeLogger := log.NewLogger(cfg.Log)
	defer closeLogger()

	redisClient, err := redisclient.NewClient(ctx, cfg.Redis, logger)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := redisClient.Close(); closeErr != nil {
			logger.Error("close redis client", log.Error(closeErr))
		}
	}()

	a, err := newApp(cfg, redisClient, logger)
	if err != nil {
		return err
	}
	logger.Info("starting quotad", log.String("version", appinfo.Version()),
		log.String("quota_namespace", cfg.Quota.Namespace))
	return service.New(logger, a.unit).StartContext(ctx)
}

func newApp(cfg *AppConfig, redisClient redis.UniversalClient, logger log.FieldLogger) (*app, error) {
	limiterMetrics := quota.NewPrometheusMetricsWithOpts(quota.PrometheusMetricsOpts{
		Namespace:         metricsNamespace,
		CurriedLabelNames: []string{throttle.ZoneMetricsLabel},
	})
	limiter, err := quota.NewFromConfig(redisClient, cfg.Quota, nil, quota.Opts{
		Logger:           logger,
		MetricsCollector: limiterMetrics.MustCurryWith(prometheus.Labels{throttle.ZoneMetricsLabel: apiZoneName}),
	})
	if err != nil {
		return nil, fmt.Errorf("make quota limiter: %w", err)
	}

	throttleMetrics := throttle.NewPrometheusMetrics(metricsNamespace)
	throttleMiddleware, err := throttle.MiddlewareWithOpts(cfg.Throttle, redisClient, errDomain, throttleMetrics,
		throttle.MiddlewareOpts{
			LimiterLogger:  logger,
			LimiterMetrics: limiterMetrics,
			KeyPrefix:      cfg.Quota.RedisKeyPrefix,
			ClusterHashTag: cfg.Quota.ClusterHashTag,
		})
	if err != nil {
		return nil, fmt.Errorf("make throttling middleware: %w", err)
	}

	apiHandler, err := quotaapi.NewHandler([]quotaapi.Limiter{limiter}, quotaapi.HandlerOpts{
		ErrorDomain:      errDomain,
		MaxBodySizeBytes: uint64(cfg.Server.Limits.MaxBodySizeBytes),
	})
	if err != nil {
		return nil, err
	}

	pinger := redisclient.NewPingerFromConfig(redisClient, cfg.Redis, logger, metricsNamespace)

	server := httpserver.New(cfg.Server, logger, httpserver.Opts{
		ServiceNameInURL: serviceNameInURL,
		ErrorDomain:      errDomain,
		APIRoutes:        map[httpserver.APIVersion]httpserver.APIRoute{1: apiHandler.Register},
		RootMiddlewares:  []func(next http.Handler) http.Handler{throttleMiddleware},
		HealthCheck: httpserver.HealthCheckComponents(map[string]func() bool{
			"redis": pinger.Healthy,
		}),
		HTTPRequestMetrics: httpserver.HTTPRequestMetricsOpts{Namespace: metricsNamespace},
	})

	units := []service.Unit{
		server,
		service.NewWorkerUnitWithOpts(pinger, service.WorkerUnitOpts{MetricsRegisterer: pinger}),
		&metricsUnit{collectors: []metricsRegisterer{
			limiterMetrics, throttleMetrics,
			appinfo.NewMetrics(metricsNamespace), restapi.NewResponseErrorsMetrics(metricsNamespace),
		}},
	}
	var profServer *profserver.ProfServer
	if cfg.ProfServer.Enabled {
		profServer = profserver.New(cfg.ProfServer, logger, profserver.Opts{
			DebugHandlers: map[string]http.Handler{"/limits": newLimitsHandler(limiter, cfg.Throttle, logger)},
		})
		units = append(units, profServer)
	}

	return &app{server: server, pinger: pinger, profServer: profServer, unit: service.NewCompositeUnit(units...)}, nil
}

type limitsResponse struct {
	Namespace     string              `json:"namespace"`
	Limits        []string            `json:"limits"`
	ThrottleZones map[string][]string `json:"throttleZones,omitempty"`
}

// newLimitsHandler responds with the names of limits configured for the quota API and the throttling zones.
func newLimitsHandler(limiter *quota.Limiter, throttleCfg *throttle.Config, logger log.FieldLogger) http.Handler {
	resp := limitsResponse{Namespace: limiter.Namespace(), Limits: limiter.LimitNames()}
	for zoneName, zone := range throttleCfg.Zones {
		if resp.ThrottleZones == nil {
			resp.ThrottleZones = make(map[string][]string, len(throttleCfg.Zones))
		}
		names := make([]string, 0, len(zone.Limits))
		for _, l := range zone.Limits {
			names = append(names, l.Name)
		}
		resp.ThrottleZones[zoneName] = names
	}
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		restapi.RespondJSON(rw, resp, logger)
	})
}

type metricsRegisterer interface {
	MustRegister()
	Unregister()
}

// metricsUnit registers metrics of components that don't run on their own.
type metricsUnit struct {
	collectors []metricsRegisterer
}

var _ service.Unit = (*metricsUnit)(nil)
var _ service.MetricsRegisterer = (*metricsUnit)(nil)

func (u *metricsUnit) Start(chan<- error) {}

func (u *metricsUnit) Stop(bool) error { return nil }

func (u *metricsUnit) MustRegisterMetrics() {
	for _, c := range u.collectors {
		c.MustRegister()
	}
}

func (u *metricsUnit) UnregisterMetrics() {
	for _, c := range u.collectors {
		c.Unregister()
	}
}
