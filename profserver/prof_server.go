/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package profserver provides a separate HTTP server with pprof and other debug endpoints.
// It should listen on a private address only.
package profserver

import (
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/acronis/go-quotakit/httpserver/middleware"
	"github.com/acronis/go-quotakit/log"
	"github.com/acronis/go-quotakit/service"
)

const readHeaderTimeout = 5 * time.Second

// Opts represents options for ProfServer.
type Opts struct {
	// DebugHandlers are mounted under "/debug/" in addition to pprof. Keys are paths relative to "/debug".
	DebugHandlers map[string]http.Handler
}

// ProfServer is an HTTP server for profiling and debugging. pprof is served under "/debug/pprof/".
// It implements service.Unit interface.
type ProfServer struct {
	URL        string
	HTTPServer *http.Server
	Logger     log.FieldLogger

	serveDone chan struct{}
}

var _ service.Unit = (*ProfServer)(nil)

// New creates a new ProfServer.
func New(cfg *Config, logger log.FieldLogger, opts Opts) *ProfServer {
	if logger == nil {
		logger = log.NewDisabledLogger()
	}
	router := chi.NewRouter()
	router.Use(
		middleware.RequestID(),
		middleware.LoggingWithOpts(logger, middleware.LoggingOpts{RequestStart: true}),
	)
	router.Mount("/debug", chimiddleware.Profiler())
	for path, h := range opts.DebugHandlers {
		router.Handle("/debug"+path, h)
	}

	return &ProfServer{
		URL: "http://" + cfg.Address,
		HTTPServer: &http.Server{
			Addr:              cfg.Address,
			Handler:           router,
			ReadHeaderTimeout: readHeaderTimeout,
		},
		Logger:    logger,
		serveDone: make(chan struct{}),
	}
}

// Start starts the server in a blocking way.
// A fatal error is sent into the passed channel.
func (s *ProfServer) Start(fatalError chan<- error) {
	defer close(s.serveDone)

	logger := s.Logger.With(log.String("address", s.HTTPServer.Addr))

	ln, err := net.Listen("tcp", s.HTTPServer.Addr)
	if err != nil {
		logger.Error("profiling HTTP server listen error", log.Error(err))
		fatalError <- err
		return
	}

	logger.Info("starting profiling HTTP server...")
	if err = s.HTTPServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("profiling HTTP server error", log.Error(err))
		fatalError <- err
		return
	}
	logger.Info("profiling HTTP server closed")
}

// Stop closes the server. Active connections are always closed immediately.
func (s *ProfServer) Stop(bool) error {
	s.Logger.Info("closing profiling HTTP server...")
	if err := s.HTTPServer.Close(); err != nil {
		s.Logger.Error("profiling HTTP server closing error", log.Error(err))
		return err
	}
	<-s.serveDone
	return nil
}
