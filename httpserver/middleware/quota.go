/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/acronis/go-quotakit/log"
	"github.com/acronis/go-quotakit/quota"
	"github.com/acronis/go-quotakit/restapi"
)

// Logged fields that are added by the Quota middleware.
const (
	QuotaLogFieldKey   = "quota_key"
	QuotaLogFieldLimit = "quota_limit"
)

// QuotaLimiter is a subset of quota.Limiter methods used by the Quota middleware.
type QuotaLimiter interface {
	Namespace() string
	Hit(ctx context.Context, key string, elements ...string) error
	Check(ctx context.Context, key string) error
}

var _ QuotaLimiter = (*quota.Limiter)(nil)

// QuotaGetKeyFunc returns the caller key for the request.
// If bypass is true, the request is served without quota enforcement.
type QuotaGetKeyFunc func(r *http.Request) (key string, bypass bool, err error)

// QuotaGetElementsFunc returns elements that are added to unique set limits.
type QuotaGetElementsFunc func(r *http.Request) ([]string, error)

// QuotaParams contains data that relates to the quota enforcement
// and could be used for rejecting the request or handling an occurred error.
type QuotaParams struct {
	ErrDomain          string
	ResponseStatusCode int
	Namespace          string
	Key                string

	// Exceeded is nil when the callback is called because of an error.
	Exceeded *quota.LimitExceededError
}

// QuotaOnRejectFunc is a function that is called for rejecting HTTP request when the quota limit is exceeded.
type QuotaOnRejectFunc func(
	rw http.ResponseWriter, r *http.Request, params QuotaParams, next http.Handler, logger log.FieldLogger)

// QuotaOnErrorFunc is a function that is called when the quota cannot be evaluated (e.g., Redis is unavailable).
type QuotaOnErrorFunc func(
	rw http.ResponseWriter, r *http.Request, params QuotaParams, err error, next http.Handler, logger log.FieldLogger)

// QuotaOpts represents an options for the Quota middleware.
type QuotaOpts struct {
	// GetKey returns the caller key. Remote address IP is used if nil.
	GetKey QuotaGetKeyFunc

	// GetElements is required when the limiter has unique set limits.
	GetElements QuotaGetElementsFunc

	// CheckOnly makes the middleware call Limiter.Check instead of Limiter.Hit,
	// so requests are rejected only while the caller is blocked and nothing is counted.
	CheckOnly bool

	// ResponseStatusCode is used for rejected requests. 429 by default.
	ResponseStatusCode int

	// DryRun makes the middleware log exceeded limits and serve requests anyway.
	DryRun bool

	OnReject         QuotaOnRejectFunc
	OnRejectInDryRun QuotaOnRejectFunc
	OnError          QuotaOnErrorFunc
}

type quotaHandler struct {
	next      http.Handler
	limiter   QuotaLimiter
	errDomain string
	opts      QuotaOpts
	onReject  QuotaOnRejectFunc
	onError   QuotaOnErrorFunc
}

// Quota is a middleware that enforces limits of the passed limiter for every HTTP request.
// Remote address IP is used as a caller key.
func Quota(limiter QuotaLimiter, errDomain string) (func(next http.Handler) http.Handler, error) {
	return QuotaWithOpts(limiter, errDomain, QuotaOpts{})
}

// MustQuota is a version of Quota that panics if an error occurs.
func MustQuota(limiter QuotaLimiter, errDomain string) func(next http.Handler) http.Handler {
	mw, err := Quota(limiter, errDomain)
	if err != nil {
		panic(err)
	}
	return mw
}

// QuotaWithOpts is a configurable version of the Quota middleware.
func QuotaWithOpts(limiter QuotaLimiter, errDomain string, opts QuotaOpts) (func(next http.Handler) http.Handler, error) {
	if limiter == nil {
		return nil, fmt.Errorf("limiter is required")
	}
	if ue, ok := limiter.(interface{ UsesElements() bool }); ok && ue.UsesElements() && !opts.CheckOnly && opts.GetElements == nil {
		return nil, fmt.Errorf("GetElements is required for limiter %q with unique set limits", limiter.Namespace())
	}
	if opts.GetKey == nil {
		opts.GetKey = GetQuotaKeyRemoteAddr
	}
	if opts.ResponseStatusCode == 0 {
		opts.ResponseStatusCode = http.StatusTooManyRequests
	}
	onReject := makeQuotaOnRejectFunc(opts)
	onError := opts.OnError
	if onError == nil {
		onError = DefaultQuotaOnError
	}
	return func(next http.Handler) http.Handler {
		return &quotaHandler{
			next:      next,
			limiter:   limiter,
			errDomain: errDomain,
			opts:      opts,
			onReject:  onReject,
			onError:   onError,
		}
	}, nil
}

// MustQuotaWithOpts is a version of QuotaWithOpts that panics if an error occurs.
func MustQuotaWithOpts(limiter QuotaLimiter, errDomain string, opts QuotaOpts) func(next http.Handler) http.Handler {
	mw, err := QuotaWithOpts(limiter, errDomain, opts)
	if err != nil {
		panic(err)
	}
	return mw
}

func (h *quotaHandler) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	params := QuotaParams{
		ErrDomain:          h.errDomain,
		ResponseStatusCode: h.opts.ResponseStatusCode,
		Namespace:          h.limiter.Namespace(),
	}
	logger := GetLoggerFromContext(r.Context())

	key, bypass, err := h.opts.GetKey(r)
	if err != nil {
		h.onError(rw, r, params, fmt.Errorf("get quota key: %w", err), h.next, logger)
		return
	}
	if bypass {
		h.next.ServeHTTP(rw, r)
		return
	}
	params.Key = key

	startTime := time.Now()
	if h.opts.CheckOnly {
		err = h.limiter.Check(r.Context(), key)
	} else {
		var elements []string
		if h.opts.GetElements != nil {
			if elements, err = h.opts.GetElements(r); err != nil {
				h.onError(rw, r, params, fmt.Errorf("get quota elements: %w", err), h.next, logger)
				return
			}
		}
		err = h.limiter.Hit(r.Context(), key, elements...)
	}
	if lp := GetLoggingParamsFromContext(r.Context()); lp != nil {
		lp.AddTimeSlotDurationInMs("quota_ms", time.Since(startTime))
	}

	if err == nil {
		h.next.ServeHTTP(rw, r)
		return
	}
	if exceeded, ok := quota.AsLimitExceeded(err); ok {
		params.Exceeded = exceeded
		if lp := GetLoggingParamsFromContext(r.Context()); lp != nil {
			lp.ExtendFields(log.String(QuotaLogFieldKey, key), log.String(QuotaLogFieldLimit, exceeded.LimitName))
		}
		h.onReject(rw, r, params, h.next, logger)
		return
	}
	h.onError(rw, r, params, err, h.next, logger)
}

// GetQuotaKeyRemoteAddr returns IP of the remote address as a caller key.
func GetQuotaKeyRemoteAddr(r *http.Request) (key string, bypass bool, err error) {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	return host, false, err
}

// DefaultQuotaOnReject responds with the configured status code, Retry-After header and tooManyRequests error.
func DefaultQuotaOnReject(
	rw http.ResponseWriter, r *http.Request, params QuotaParams, _ http.Handler, logger log.FieldLogger,
) {
	if logger != nil {
		logger = logger.With(
			log.String(QuotaLogFieldKey, params.Key),
			log.String(QuotaLogFieldLimit, params.Exceeded.LimitName),
			log.String("user_agent", r.UserAgent()),
		)
	}
	restapi.RespondTooManyRequests(rw, params.ResponseStatusCode, params.ErrDomain, params.Exceeded.TTL, logger)
}

// DefaultQuotaOnRejectInDryRun logs the exceeded limit and serves the request.
func DefaultQuotaOnRejectInDryRun(
	rw http.ResponseWriter, r *http.Request, params QuotaParams, next http.Handler, logger log.FieldLogger,
) {
	if logger != nil {
		logger.Warn("quota limit exceeded, serving will be continued because of dry run mode",
			log.String(QuotaLogFieldKey, params.Key),
			log.String(QuotaLogFieldLimit, params.Exceeded.LimitName),
			log.Duration("quota_ttl", params.Exceeded.TTL),
		)
	}
	next.ServeHTTP(rw, r)
}

// DefaultQuotaOnError logs the error and responds with internal error.
// Missing elements for unique set limits are reported to the client as a bad request.
func DefaultQuotaOnError(
	rw http.ResponseWriter, _ *http.Request, params QuotaParams, err error, _ http.Handler, logger log.FieldLogger,
) {
	if errors.Is(err, quota.ErrElementsRequired) {
		if logger != nil {
			logger.Warn("quota elements are missing", log.String(QuotaLogFieldKey, params.Key))
		}
		restapi.RespondError(rw, http.StatusBadRequest, restapi.NewElementsRequiredError(params.ErrDomain), logger)
		return
	}
	if logger != nil {
		logger.Error("quota evaluation failed", log.Error(err), log.String(QuotaLogFieldKey, params.Key))
	}
	restapi.RespondInternalError(rw, params.ErrDomain, logger)
}

// QuotaOnErrorFailOpen logs the error and serves the request.
// It may be used as QuotaOpts.OnError when availability is more important than enforcement.
func QuotaOnErrorFailOpen(
	rw http.ResponseWriter, r *http.Request, params QuotaParams, err error, next http.Handler, logger log.FieldLogger,
) {
	if logger != nil {
		logger.Warn("quota evaluation failed, request will be served", log.Error(err), log.String(QuotaLogFieldKey, params.Key))
	}
	next.ServeHTTP(rw, r)
}

func makeQuotaOnRejectFunc(opts QuotaOpts) QuotaOnRejectFunc {
	if opts.DryRun {
		if opts.OnRejectInDryRun != nil {
			return opts.OnRejectInDryRun
		}
		return DefaultQuotaOnRejectInDryRun
	}
	if opts.OnReject != nil {
		return opts.OnReject
	}
	return DefaultQuotaOnReject
}
