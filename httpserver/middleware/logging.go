/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"fmt"
	"net"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/acronis/go-quotakit/log"
)

// LoggingOpts represents an options for Logging middleware.
type LoggingOpts struct {
	// RequestStart enables logging of the "request started" message.
	RequestStart bool

	// RequestHeaders maps names of request headers to keys of logged fields.
	RequestHeaders map[string]string

	// ExcludedEndpoints are not logged unless the response status is 4xx or 5xx.
	ExcludedEndpoints []string

	// AddRequestInfoToLogger adds request fields (method, uri, etc.) to the logger that is put into the context.
	AddRequestInfoToLogger bool
}

// Logging is a middleware that logs the completed response of each request.
// The logger with the request id is put into the request's context,
// so quota middlewares and handlers log on behalf of the request.
func Logging(logger log.FieldLogger) func(next http.Handler) http.Handler {
	return LoggingWithOpts(logger, LoggingOpts{})
}

// LoggingWithOpts is a more configurable version of Logging middleware.
func LoggingWithOpts(logger log.FieldLogger, opts LoggingOpts) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			startTime := GetRequestStartTimeFromContext(ctx)
			if startTime.IsZero() {
				startTime = time.Now()
				ctx = NewContextWithRequestStartTime(ctx, startTime)
			}

			ctxLogger := logger.With(log.String("request_id", GetRequestIDFromContext(ctx)))
			reqLogger := ctxLogger.With(requestLogFields(r, opts.RequestHeaders)...)
			if opts.AddRequestInfoToLogger {
				ctxLogger = reqLogger
			}

			excluded := slices.Contains(opts.ExcludedEndpoints, r.URL.Path)
			if opts.RequestStart && !excluded {
				reqLogger.Info("request started")
			}

			lp := &LoggingParams{}
			wrw := WrapResponseWriterIfNeeded(rw, r.ProtoMajor)
			next.ServeHTTP(wrw, r.WithContext(NewContextWithLoggingParams(NewContextWithLogger(ctx, ctxLogger), lp)))

			status := responseStatus(wrw)
			if excluded && status < http.StatusBadRequest {
				return
			}
			elapsed := time.Since(startTime)
			fields := append([]log.Field{
				log.Int64("duration_ms", elapsed.Milliseconds()),
				log.Int("status", status),
				log.Int("bytes_sent", wrw.BytesWritten()),
			}, lp.logFields()...)
			reqLogger.Info(fmt.Sprintf("response completed in %.3fs", elapsed.Seconds()), fields...)
		})
	}
}

func requestLogFields(r *http.Request, headers map[string]string) []log.Field {
	fields := []log.Field{
		log.String("method", r.Method),
		log.String("uri", r.RequestURI),
		log.String("remote_addr", r.RemoteAddr),
		log.Int64("content_length", r.ContentLength),
		log.String("user_agent", r.UserAgent()),
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		fields = append(fields, log.String("remote_addr_ip", host))
	}
	if addr := originAddr(r); addr != "" {
		fields = append(fields, log.String("origin_addr", addr))
	}
	for headerName, key := range headers {
		fields = append(fields, log.String(key, r.Header.Get(headerName)))
	}
	return fields
}

// originAddr returns the client address reported by proxies: the first X-Forwarded-For item or X-Real-IP.
func originAddr(r *http.Request) string {
	if forwardedFor := r.Header.Get("X-Forwarded-For"); forwardedFor != "" {
		first, _, _ := strings.Cut(forwardedFor, ",")
		return strings.TrimSpace(first)
	}
	return strings.TrimSpace(r.Header.Get("X-Real-IP"))
}

func isEndpointExcluded(urlPath string, endpoints []string) bool {
	return slices.Contains(endpoints, urlPath)
}
