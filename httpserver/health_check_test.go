/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/acronis/go-quotakit/httpserver/middleware"
	"github.com/acronis/go-quotakit/log"
	"github.com/acronis/go-quotakit/restapi"
)

func makeHealthCheckRequest(ctx context.Context) *http.Request {
	ctx = middleware.NewContextWithLogger(ctx, log.NewDisabledLogger())
	return httptest.NewRequest(http.MethodGet, "/healthz", nil).WithContext(ctx)
}

func TestHealthCheckHandler_ServeHTTP(t *testing.T) {
	tests := []struct {
		name           string
		fn             HealthChecker
		wantStatusCode int
		wantComponents map[string]bool
	}{
		{
			name:           "default function",
			wantStatusCode: http.StatusOK,
			wantComponents: map[string]bool{},
		},
		{
			name: "error",
			fn: func(_ context.Context) (map[string]bool, error) {
				return nil, fmt.Errorf("internal error")
			},
			wantStatusCode: http.StatusInternalServerError,
		},
		{
			name: "unhealthy component",
			fn: func(_ context.Context) (map[string]bool, error) {
				return map[string]bool{"redis": false, "config": true}, nil
			},
			wantStatusCode: http.StatusServiceUnavailable,
			wantComponents: map[string]bool{"redis": false, "config": true},
		},
		{
			name: "healthy components",
			fn: HealthCheckComponents(map[string]func() bool{
				"redis": func() bool { return true },
			}),
			wantStatusCode: http.StatusOK,
			wantComponents: map[string]bool{"redis": true},
		},
		{
			name: "component reported as unhealthy",
			fn: HealthCheckComponents(map[string]func() bool{
				"redis": func() bool { return false },
			}),
			wantStatusCode: http.StatusServiceUnavailable,
			wantComponents: map[string]bool{"redis": false},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := httptest.NewRecorder()
			NewHealthCheckHandler(tt.fn).ServeHTTP(resp, makeHealthCheckRequest(context.Background()))

			require.Equal(t, tt.wantStatusCode, resp.Code)
			if tt.wantComponents == nil {
				return
			}
			require.Equal(t, restapi.ContentTypeAppJSON, resp.Header().Get("Content-Type"))
			var gotRespData healthCheckResponseData
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&gotRespData))
			require.Equal(t, healthCheckResponseData{Components: tt.wantComponents}, gotRespData)
		})
	}
}

func TestHealthCheckHandler_ClientGone(t *testing.T) {
	t.Run("canceled request", func(t *testing.T) {
		for _, fn := range []HealthChecker{
			nil,
			func(ctx context.Context) (map[string]bool, error) { return map[string]bool{}, nil },
		} {
			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			resp := httptest.NewRecorder()
			NewHealthCheckHandler(fn).ServeHTTP(resp, makeHealthCheckRequest(ctx))
			require.Equal(t, StatusClientClosedRequest, resp.Code)
		}
	})

	t.Run("timed out request", func(t *testing.T) {
		const timeout = time.Millisecond
		h := NewHealthCheckHandler(func(ctx context.Context) (map[string]bool, error) {
			time.Sleep(timeout * 2)
			return map[string]bool{}, ctx.Err()
		})
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		resp := httptest.NewRecorder()
		h.ServeHTTP(resp, makeHealthCheckRequest(ctx))
		require.Equal(t, http.StatusInternalServerError, resp.Code)
	})
}
