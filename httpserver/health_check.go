/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpserver

import (
	"context"
	"errors"
	"net/http"

	"github.com/acronis/go-quotakit/httpserver/middleware"
	"github.com/acronis/go-quotakit/log"
	"github.com/acronis/go-quotakit/restapi"
)

// StatusClientClosedRequest is the status code used by nginx for requests closed by the client before the response.
const StatusClientClosedRequest = 499

// HealthChecker reports whether each component of the service (e.g., "redis") is healthy.
type HealthChecker func(ctx context.Context) (map[string]bool, error)

// HealthCheckComponents makes HealthChecker from functions reporting health of the components
// (e.g., {"redis": pinger.Healthy}).
func HealthCheckComponents(components map[string]func() bool) HealthChecker {
	return func(ctx context.Context) (map[string]bool, error) {
		res := make(map[string]bool, len(components))
		for name, healthy := range components {
			res[name] = healthy()
		}
		return res, ctx.Err()
	}
}

type healthCheckResponseData struct {
	Components map[string]bool `json:"components"`
}

type healthCheckHandler struct {
	check HealthChecker
}

// NewHealthCheckHandler creates a handler that responds 200 with statuses of the components,
// or 503 if at least one of them is unhealthy. Nil checker reports no components.
func NewHealthCheckHandler(check HealthChecker) http.Handler {
	if check == nil {
		check = HealthCheckComponents(nil)
	}
	return &healthCheckHandler{check}
}

func (h *healthCheckHandler) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	logger := middleware.GetLoggerFromContext(r.Context())
	if logger == nil {
		logger = log.NewDisabledLogger()
	}

	components, err := h.check(r.Context())
	if err == nil {
		err = r.Context().Err()
	}
	switch {
	case errors.Is(err, context.Canceled):
		rw.WriteHeader(StatusClientClosedRequest)
		return
	case err != nil:
		logger.Error("error while checking health", log.Error(err))
		rw.WriteHeader(http.StatusInternalServerError)
		return
	}

	status := http.StatusOK
	for _, healthy := range components {
		if !healthy {
			status = http.StatusServiceUnavailable
			break
		}
	}
	if components == nil {
		components = map[string]bool{}
	}
	restapi.RespondCodeAndJSON(rw, status, healthCheckResponseData{components}, logger)
}
