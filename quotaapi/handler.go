/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package quotaapi provides REST handlers for inspecting and driving quota limiters over HTTP.
//
// Routes (relative to the mount point):
//
//	GET    /namespaces/{namespace}/keys/{key}          statuses of all limits
//	POST   /namespaces/{namespace}/keys/{key}/hit      register a hit, body: {"elements": ["..."]}
//	POST   /namespaces/{namespace}/keys/{key}/check    check without changing anything
//	DELETE /namespaces/{namespace}/keys/{key}?limit=.. reset all or the listed limits
//
// Hit and check respond 204 on success and 429 with the Retry-After header when a limit is exceeded.
package quotaapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/acronis/go-quotakit/httpserver/middleware"
	"github.com/acronis/go-quotakit/log"
	"github.com/acronis/go-quotakit/quota"
	"github.com/acronis/go-quotakit/restapi"
)

// Error codes of the quota API.
const (
	ErrCodeNamespaceNotFound = "namespaceNotFound"
	ErrCodeUnknownLimit      = "unknownLimit"
	ErrCodeLimitExceeded     = "limitExceeded"
)

const (
	urlParamNamespace = "namespace"
	urlParamKey       = "key"
	queryParamLimit   = "limit"

	// Nginx-specific status code for requests closed by the client.
	httpStatusClientClosedRequest = 499
)

// Limiter is the subset of *quota.Limiter served by Handler.
type Limiter interface {
	Namespace() string
	Hit(ctx context.Context, key string, elements ...string) error
	Get(ctx context.Context, key string) (quota.Statuses, error)
	Check(ctx context.Context, key string) error
	Reset(ctx context.Context, key string, limitNames ...string) error
}

var _ Limiter = (*quota.Limiter)(nil)

// HandlerOpts represents options for Handler.
type HandlerOpts struct {
	ErrorDomain string
	// MaxBodySizeBytes limits the hit request body. Zero means no limit.
	MaxBodySizeBytes uint64
}

// Handler serves the quota API for a set of limiters identified by their namespaces.
type Handler struct {
	limiters map[string]Limiter
	opts     HandlerOpts
}

// HitRequest is a body of the hit request.
type HitRequest struct {
	Elements []string `json:"elements"`
}

// StatusesResponse is a body of the successful get request.
type StatusesResponse struct {
	Namespace string         `json:"namespace"`
	Key       string         `json:"key"`
	Limits    quota.Statuses `json:"limits"`
}

// NewHandler creates a new Handler. Namespaces of the limiters should be unique.
func NewHandler(limiters []Limiter, opts HandlerOpts) (*Handler, error) {
	h := &Handler{limiters: make(map[string]Limiter, len(limiters)), opts: opts}
	for _, l := range limiters {
		if _, ok := h.limiters[l.Namespace()]; ok {
			return nil, fmt.Errorf("duplicate limiter namespace %q", l.Namespace())
		}
		h.limiters[l.Namespace()] = l
	}
	return h, nil
}

// Register mounts the routes of the handler on the router.
func (h *Handler) Register(router chi.Router) {
	router.Route("/namespaces/{"+urlParamNamespace+"}/keys/{"+urlParamKey+"}", func(r chi.Router) {
		r.Get("/", h.limiterHandler(h.serveGet))
		r.Delete("/", h.limiterHandler(h.serveReset))
		r.Post("/hit", h.limiterHandler(h.serveHit))
		r.Post("/check", h.limiterHandler(h.serveCheck))
	})
}

type limiterHandlerFunc func(rw http.ResponseWriter, r *http.Request, limiter Limiter, key string, logger log.FieldLogger)

func (h *Handler) limiterHandler(fn limiterHandlerFunc) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		logger := middleware.GetLoggerFromContext(r.Context())
		if logger == nil {
			logger = log.NewDisabledLogger()
		}
		namespace := chi.URLParam(r, urlParamNamespace)
		limiter, ok := h.limiters[namespace]
		if !ok {
			apiErr := restapi.NewError(h.opts.ErrorDomain, ErrCodeNamespaceNotFound,
				fmt.Sprintf("Quota namespace %q is not found.", namespace))
			restapi.RespondError(rw, http.StatusNotFound, apiErr, logger)
			return
		}
		key := chi.URLParam(r, urlParamKey)
		fn(rw, r, limiter, key, logger.With(log.String("quota_namespace", namespace), log.String("quota_key", key)))
	}
}

func (h *Handler) serveGet(rw http.ResponseWriter, r *http.Request, limiter Limiter, key string, logger log.FieldLogger) {
	statuses, err := limiter.Get(r.Context(), key)
	if err != nil {
		h.respondError(rw, err, logger)
		return
	}
	if statuses == nil {
		statuses = quota.Statuses{}
	}
	restapi.RespondJSON(rw, StatusesResponse{Namespace: limiter.Namespace(), Key: key, Limits: statuses}, logger)
}

func (h *Handler) serveHit(rw http.ResponseWriter, r *http.Request, limiter Limiter, key string, logger log.FieldLogger) {
	var req HitRequest
	if err := restapi.DecodeRequestJSON(rw, r, &req, h.opts.MaxBodySizeBytes, true); err != nil {
		restapi.RespondMalformedRequestOrInternalError(rw, h.opts.ErrorDomain, err, logger)
		return
	}
	if err := limiter.Hit(r.Context(), key, req.Elements...); err != nil {
		h.respondError(rw, err, logger)
		return
	}
	rw.WriteHeader(http.StatusNoContent)
}

func (h *Handler) serveCheck(rw http.ResponseWriter, r *http.Request, limiter Limiter, key string, logger log.FieldLogger) {
	if err := limiter.Check(r.Context(), key); err != nil {
		h.respondError(rw, err, logger)
		return
	}
	rw.WriteHeader(http.StatusNoContent)
}

func (h *Handler) serveReset(rw http.ResponseWriter, r *http.Request, limiter Limiter, key string, logger log.FieldLogger) {
	limitNames := r.URL.Query()[queryParamLimit]
	if err := limiter.Reset(r.Context(), key, limitNames...); err != nil {
		h.respondError(rw, err, logger)
		return
	}
	logger.Info("quota limits reset", log.Strings("quota_limits", limitNames))
	rw.WriteHeader(http.StatusNoContent)
}

func (h *Handler) respondError(rw http.ResponseWriter, err error, logger log.FieldLogger) {
	if exceededErr, ok := quota.AsLimitExceeded(err); ok {
		retryAfterSecs := int64((exceededErr.TTL + time.Second - 1) / time.Second)
		rw.Header().Set("Retry-After", strconv.FormatInt(retryAfterSecs, 10))
		apiErr := restapi.NewError(h.opts.ErrorDomain, ErrCodeLimitExceeded, "Quota limit is exceeded.").
			AddContext("limit", exceededErr.LimitName).
			AddContext("retryAfter", retryAfterSecs)
		restapi.RespondError(rw, http.StatusTooManyRequests, apiErr, logger)
		return
	}
	switch {
	case errors.Is(err, quota.ErrUnknownLimit):
		restapi.RespondError(rw, http.StatusBadRequest,
			restapi.NewError(h.opts.ErrorDomain, ErrCodeUnknownLimit, err.Error()), logger)
	case errors.Is(err, quota.ErrElementsRequired):
		restapi.RespondError(rw, http.StatusBadRequest,
			restapi.NewElementsRequiredError(h.opts.ErrorDomain), logger)
	case errors.Is(err, context.Canceled):
		logger.Warn("quota request canceled", log.Error(err))
		rw.WriteHeader(httpStatusClientClosedRequest)
	default:
		logger.Error("quota operation failed", log.Error(err))
		restapi.RespondInternalError(rw, h.opts.ErrorDomain, logger)
	}
}
