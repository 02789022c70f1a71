/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package httpserver provides the HTTP server of the quota service
// with predefined logging, metrics, panic recovery and health-checking.
package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/atomic"

	"github.com/acronis/go-quotakit/httpserver/middleware"
	"github.com/acronis/go-quotakit/log"
	"github.com/acronis/go-quotakit/service"
)

const (
	networkTCP  = "tcp"
	networkUnix = "unix"
)

// systemEndpoints are not involved in metrics collecting.
var systemEndpoints = []string{"/metrics", "/healthz"}

// APIVersion is a type alias for API version.
type APIVersion = int

// APIRoute is a type alias for single API route.
type APIRoute = func(router chi.Router)

// HTTPRequestMetricsOpts represents options for the HTTP request metrics used in HTTPServer.
type HTTPRequestMetricsOpts struct {
	Namespace       string
	DurationBuckets []float64
	ConstLabels     prometheus.Labels
	GetRoutePattern middleware.RouteFunc
}

// Opts represents options for creating HTTPServer.
type Opts struct {
	// ServiceNameInURL is a prefix for API routes (e.g., "/api/quota/v1").
	ServiceNameInURL string
	// APIRoutes is a map of API versions to their route configuration functions.
	APIRoutes map[APIVersion]APIRoute
	// RootMiddlewares are applied to every versioned API sub-router after the default ones (e.g., throttling).
	RootMiddlewares []func(http.Handler) http.Handler
	ErrorDomain     string
	// HealthCheck is called on each GET /healthz request.
	HealthCheck HealthChecker
	// MetricsHandler is a custom handler for the /metrics endpoint. promhttp.Handler() is used by default.
	MetricsHandler     http.Handler
	HTTPRequestMetrics HTTPRequestMetricsOpts
	// Listener is a pre-configured network listener to use instead of creating a new one.
	Listener net.Listener
}

// HTTPServer is a wrapper around http.Server with chi.Router as a handler.
// It implements service.Unit and service.MetricsRegisterer interfaces.
type HTTPServer struct {
	URL             string
	HTTPServer      *http.Server
	UnixSocketPath  string
	TLS             TLSConfig
	HTTPRouter      chi.Router
	Logger          log.FieldLogger
	ShutdownTimeout time.Duration

	listener         net.Listener
	port             atomic.Int32
	serveDone        chan struct{}
	started          atomic.Bool
	metricsCollector *middleware.HTTPMetrics
}

var _ service.Unit = (*HTTPServer)(nil)
var _ service.MetricsRegisterer = (*HTTPServer)(nil)

// New creates a new HTTPServer.
func New(cfg *Config, logger log.FieldLogger, opts Opts) *HTTPServer { //nolint:gocritic // hugeParam: opts is heavy, it's ok in this case.
	if logger == nil {
		logger = log.NewDisabledLogger()
	}
	metricsCollector := middleware.NewHTTPMetrics(middleware.HTTPMetricsOpts{
		Namespace:       opts.HTTPRequestMetrics.Namespace,
		DurationBuckets: opts.HTTPRequestMetrics.DurationBuckets,
		ConstLabels:     opts.HTTPRequestMetrics.ConstLabels,
	})

	router := chi.NewRouter()
	applyDefaultMiddlewaresToRouter(router, cfg, logger, opts, metricsCollector)
	configureRouter(router, opts)

	httpServer := &http.Server{
		Addr:              cfg.Address,
		WriteTimeout:      time.Duration(cfg.Timeouts.Write),
		ReadTimeout:       time.Duration(cfg.Timeouts.Read),
		ReadHeaderTimeout: time.Duration(cfg.Timeouts.ReadHeader),
		IdleTimeout:       time.Duration(cfg.Timeouts.Idle),
		Handler:           router,
	}

	return &HTTPServer{
		URL:              buildServerURL(cfg),
		HTTPServer:       httpServer,
		UnixSocketPath:   cfg.UnixSocketPath,
		TLS:              cfg.TLS,
		HTTPRouter:       router,
		Logger:           logger,
		ShutdownTimeout:  time.Duration(cfg.Timeouts.Shutdown),
		listener:         opts.Listener,
		serveDone:        make(chan struct{}),
		metricsCollector: metricsCollector,
	}
}

func buildServerURL(cfg *Config) string {
	host := cfg.Address
	if cfg.UnixSocketPath != "" {
		host = "localhost" // Not used for dialing in the unix socket case.
	}
	if cfg.TLS.Enabled {
		return "https://" + host
	}
	return "http://" + host
}

// Start starts the HTTP server in a blocking way.
// It's supposed that this method will be called in a separate goroutine.
// If a fatal error occurs, it will be sent to the fatalError channel.
func (s *HTTPServer) Start(fatalError chan<- error) {
	s.started.Store(true)
	defer close(s.serveDone)

	logger := s.Logger.With(
		log.String("address", s.HTTPServer.Addr),
		log.Duration("write_timeout", s.HTTPServer.WriteTimeout),
		log.Duration("read_timeout", s.HTTPServer.ReadTimeout),
		log.Duration("idle_timeout", s.HTTPServer.IdleTimeout),
		log.Duration("shutdown_timeout", s.ShutdownTimeout),
	)
	if s.UnixSocketPath != "" {
		logger = logger.With(log.String("unix_socket_path", s.UnixSocketPath))
		if err := os.Remove(s.UnixSocketPath); err != nil && !os.IsNotExist(err) {
			fatalError <- fmt.Errorf("remove unix socket file %q: %w", s.UnixSocketPath, err)
			return
		}
	}

	logger.Info("starting HTTP server...")

	if s.listener == nil {
		network, addr := s.NetworkAndAddr()
		listener, err := net.Listen(network, addr)
		if err != nil {
			logger.Error("HTTP server error", log.Error(err))
			fatalError <- err
			return
		}
		s.listener = listener
	}

	if s.listener.Addr().Network() == networkTCP {
		port, err := parseListenerPort(s.listener.Addr())
		if err != nil {
			logger.Error("unexpected format of TCP listener address", log.Error(err))
			fatalError <- err
			return
		}
		s.port.Store(port)
	}

	var err error
	if s.TLS.Enabled {
		err = s.HTTPServer.ServeTLS(s.listener, s.TLS.Certificate, s.TLS.Key)
	} else {
		err = s.HTTPServer.Serve(s.listener)
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("HTTP server error", log.Error(err))
		fatalError <- err
		return
	}
	logger.Info("HTTP server closed")
}

func parseListenerPort(addr net.Addr) (int32, error) {
	_, portStr, err := net.SplitHostPort(addr.String())
	if err != nil {
		return 0, fmt.Errorf("split host and port: %w", err)
	}
	port, err := strconv.ParseInt(portStr, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("parse port: %w", err)
	}
	return int32(port), nil
}

// Stop stops the HTTP server (gracefully or not).
// In the graceful case, in-flight requests are given ShutdownTimeout to complete.
func (s *HTTPServer) Stop(gracefully bool) error {
	if !gracefully {
		s.Logger.Info("closing HTTP server...")
		if err := s.HTTPServer.Close(); err != nil {
			s.Logger.Error("HTTP server closing error", log.Error(err))
			return err
		}
		s.waitServeDone()
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.ShutdownTimeout)
	defer cancel()

	s.Logger.Info("shutting down HTTP server...", log.Duration("timeout", s.ShutdownTimeout))
	if err := s.HTTPServer.Shutdown(ctx); err != nil {
		s.Logger.Error("HTTP server shutting down error", log.Error(err))
		return err
	}
	s.Logger.Info("HTTP server shut down")
	s.waitServeDone()
	return nil
}

func (s *HTTPServer) waitServeDone() {
	if s.started.Load() {
		<-s.serveDone
	}
}

// MustRegisterMetrics registers metrics in Prometheus client and panics if any error occurs.
func (s *HTTPServer) MustRegisterMetrics() {
	s.metricsCollector.MustRegister()
}

// UnregisterMetrics unregisters metrics in Prometheus client.
func (s *HTTPServer) UnregisterMetrics() {
	s.metricsCollector.Unregister()
}

// NetworkAndAddr returns network type ("tcp" or "unix") and address (path to unix socket in case of "unix" network).
func (s *HTTPServer) NetworkAndAddr() (network string, addr string) {
	if s.UnixSocketPath != "" {
		return networkUnix, s.UnixSocketPath
	}
	return networkTCP, s.HTTPServer.Addr
}

// GetPort returns the TCP port the server listens on. It's 0 until the server is started.
func (s *HTTPServer) GetPort() int {
	return int(s.port.Load())
}
