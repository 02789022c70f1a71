/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/acronis/go-quotakit/config"
	"github.com/acronis/go-quotakit/log/logtest"
	"github.com/acronis/go-quotakit/quotaapi"
	"github.com/acronis/go-quotakit/restapi"
	"github.com/acronis/go-quotakit/testutil"
)

const testAppConfig = `
quota:
  namespace: login
  limits:
    - name: per_minute
      limit: 2
      ttl: 60
      ttlBlock: 15m
throttle:
  zones:
    api_clients:
      key:
        type: remote_addr
      limits:
        - name: per_minute
          limit: 4
          ttl: 1m
  rules:
    - alias: quota_api
      routes:
        - path: ^~ /api/quota/v1/
          methods: POST
      quotas:
        - zone: api_clients
`

func loadTestAppConfig(t *testing.T, cfgData string) *AppConfig {
	t.Helper()
	cfg := NewAppConfig()
	require.NoError(t, config.NewLoader(config.NewViperAdapter()).LoadFromReader(
		strings.NewReader(cfgData), config.DataTypeYAML, cfg))
	return cfg
}

func TestApp(t *testing.T) {
	_, client := testutil.NewRedis(t)
	cfg := loadTestAppConfig(t, testAppConfig)
	a, err := newApp(cfg, client, logtest.NewRecorder())
	require.NoError(t, err)

	require.NoError(t, a.pinger.Run(shortContext(t)))
	require.True(t, a.pinger.Healthy())

	do := func(method, path string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, nil)
		req.RemoteAddr = "192.0.2.10:5555"
		resp := httptest.NewRecorder()
		a.server.HTTPRouter.ServeHTTP(resp, req)
		return resp
	}

	const keyPath = "/api/quota/v1/namespaces/login/keys/alice"
	require.Equal(t, http.StatusNoContent, do(http.MethodPost, keyPath+"/hit").Code)
	require.Equal(t, http.StatusNoContent, do(http.MethodPost, keyPath+"/hit").Code)

	resp := do(http.MethodPost, keyPath+"/hit")
	testutil.RequireErrorInRecorder(t, resp, http.StatusTooManyRequests, errDomain, quotaapi.ErrCodeLimitExceeded)
	require.Equal(t, "900", resp.Header().Get("Retry-After"))

	resp = do(http.MethodGet, keyPath)
	require.Equal(t, http.StatusOK, resp.Code)
	require.JSONEq(t, `{"namespace":"login","key":"alice","limits":{"per_minute":{"state":"blocked","ttl":900}}}`,
		resp.Body.String())

	// The 4th POST passes throttling and reaches the quota API, the 5th one is rejected by the middleware.
	resp = do(http.MethodPost, keyPath+"/check")
	testutil.RequireErrorInRecorder(t, resp, http.StatusTooManyRequests, errDomain, quotaapi.ErrCodeLimitExceeded)
	resp = do(http.MethodPost, keyPath+"/check")
	testutil.RequireErrorInRecorder(t, resp, http.StatusTooManyRequests, errDomain, restapi.ErrCodeTooManyRequests)

	// Only POST requests are throttled. System endpoints are never throttled.
	require.Equal(t, http.StatusOK, do(http.MethodGet, keyPath).Code)
	resp = do(http.MethodGet, "/healthz")
	require.Equal(t, http.StatusOK, resp.Code)
	require.JSONEq(t, `{"components":{"redis":true}}`, resp.Body.String())
}

func shortContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	t.Cleanup(cancel)
	return ctx
}

func TestApp_Errors(t *testing.T) {
	_, client := testutil.NewRedis(t)

	cfg := loadTestAppConfig(t, `
quota:
  namespace: login
  limits: [{name: a, limit: 1, ttl: 1}]
`)
	cfg.Quota.Namespace = ""
	_, err := newApp(cfg, client, logtest.NewRecorder())
	require.ErrorContains(t, err, "make quota limiter")

	cfg = loadTestAppConfig(t, testAppConfig)
	cfg.Throttle.Zones["api_clients"].Limits[0].Limit = 0
	_, err = newApp(cfg, client, logtest.NewRecorder())
	require.ErrorContains(t, err, "make throttling middleware")
}

func TestLoadAppConfig(t *testing.T) {
	dir := t.TempDir()

	yamlPath := filepath.Join(dir, "quotad.yml")
	require.NoError(t, os.WriteFile(yamlPath, []byte(testAppConfig), 0o600))
	cfg, err := loadAppConfig(yamlPath)
	require.NoError(t, err)
	require.Equal(t, "login", cfg.Quota.Namespace)
	require.Len(t, cfg.Throttle.Rules, 1)
	require.Equal(t, []string{"127.0.0.1:6379"}, cfg.Redis.Addrs)

	jsonPath := filepath.Join(dir, "quotad.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`{"quota": {"namespace": "api", "limits": []}}`), 0o600))
	cfg, err = loadAppConfig(jsonPath)
	require.NoError(t, err)
	require.Equal(t, "api", cfg.Quota.Namespace)

	invalidPath := filepath.Join(dir, "invalid.yml")
	require.NoError(t, os.WriteFile(invalidPath, []byte("quota:\n  namespace: \"\"\n"), 0o600))
	_, err = loadAppConfig(invalidPath)
	require.ErrorContains(t, err, "quota.namespace: cannot be empty")
}

func TestValidateCommand(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "quotad.yml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(testAppConfig), 0o600))

	var out bytes.Buffer
	cmd := newRootCommand()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"validate", "--config", cfgPath})
	require.NoError(t, cmd.Execute())
	require.Equal(t, "configuration is valid: namespace \"login\", 1 limit(s), 1 throttling rule(s)\n", out.String())

	cmd = newRootCommand()
	cmd.SetArgs([]string{"validate", "--config", filepath.Join(t.TempDir(), "missing.yml")})
	require.Error(t, cmd.Execute())
}

func TestSampleConfig(t *testing.T) {
	cfg, err := loadAppConfig("quotad.yml")
	require.NoError(t, err)
	require.Len(t, cfg.Quota.Limits, 2)
	require.Contains(t, cfg.Throttle.Zones, "api_clients")
}

func TestApp_ProfServer(t *testing.T) {
	_, client := testutil.NewRedis(t)

	cfg := loadTestAppConfig(t, testAppConfig)
	a, err := newApp(cfg, client, logtest.NewRecorder())
	require.NoError(t, err)
	require.Nil(t, a.profServer)

	cfg.ProfServer.Enabled = true
	cfg.ProfServer.Address = testutil.GetLocalAddrWithFreeTCPPort()
	a, err = newApp(cfg, client, logtest.NewRecorder())
	require.NoError(t, err)
	require.NotNil(t, a.profServer)

	resp := httptest.NewRecorder()
	a.profServer.HTTPServer.Handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/debug/limits", nil))
	require.Equal(t, http.StatusOK, resp.Code)
	require.JSONEq(t, `{"namespace":"login","limits":["per_minute"],"throttleZones":{"api_clients":["per_minute"]}}`,
		resp.Body.String())
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	cmd := newRootCommand()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})
	require.NoError(t, cmd.Execute())
	require.True(t, strings.HasPrefix(out.String(), "quotad v"), out.String())
}

func TestApp_RegisterMetrics(t *testing.T) {
	_, client := testutil.NewRedis(t)
	a, err := newApp(loadTestAppConfig(t, testAppConfig), client, logtest.NewRecorder())
	require.NoError(t, err)

	a.unit.MustRegisterMetrics()
	defer a.unit.UnregisterMetrics()

	mfs, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)
	var names []string
	for _, mf := range mfs {
		names = append(names, mf.GetName())
	}
	require.Contains(t, names, metricsNamespace+"_build_info")
	require.Contains(t, names, metricsNamespace+"_redis_up")
}
