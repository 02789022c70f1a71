/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpserver

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"io"
	"math/big"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/require"

	"github.com/acronis/go-quotakit/config"
	"github.com/acronis/go-quotakit/httpserver/middleware"
	"github.com/acronis/go-quotakit/log"
	"github.com/acronis/go-quotakit/log/logtest"
	"github.com/acronis/go-quotakit/restapi"
	"github.com/acronis/go-quotakit/testutil"
)

func generateCertificate(certFilePath, privKeyPath string) error {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return fmt.Errorf("generate private key: %w", err)
	}

	template := x509.Certificate{
		SerialNumber:          big.NewInt(time.Now().UnixNano()),
		Subject:               pkix.Name{Organization: []string{"Quota Test"}},
		NotBefore:             time.Now(),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		IPAddresses:           []net.IP{net.ParseIP("127.0.0.1")},
	}
	certDER, err := x509.CreateCertificate(rand.Reader, &template, &template, &priv.PublicKey, priv)
	if err != nil {
		return fmt.Errorf("create certificate: %w", err)
	}
	privBytes, err := x509.MarshalECPrivateKey(priv)
	if err != nil {
		return fmt.Errorf("marshal private key: %w", err)
	}

	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: certDER})
	if err = os.WriteFile(certFilePath, certPEM, 0o600); err != nil {
		return err
	}
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: privBytes})
	return os.WriteFile(privKeyPath, keyPEM, 0o600)
}

func startServer(t *testing.T, cfg *Config, logger log.FieldLogger, opts Opts) *HTTPServer {
	t.Helper()
	httpServer := New(cfg, logger, opts)
	fatalErr := make(chan error, 1)
	go httpServer.Start(fatalErr)
	if cfg.UnixSocketPath == "" {
		require.NoError(t, testutil.WaitListeningServer(cfg.Address, time.Second*3))
	} else {
		require.NoError(t, testutil.WaitListeningServerWithUnixSocket(cfg.UnixSocketPath, time.Second*3))
	}
	t.Cleanup(func() {
		require.NoError(t, httpServer.Stop(false))
		testutil.RequireNoErrorInChannel(t, fatalErr)
	})
	return httpServer
}

func TestHTTPServer_Start_SecureServer(t *testing.T) {
	dirName := t.TempDir()
	certFilePath := filepath.Join(dirName, "cert.pem")
	privKeyFile := filepath.Join(dirName, "key.pem")
	require.NoError(t, generateCertificate(certFilePath, privKeyFile))

	addr := testutil.GetLocalAddrWithFreeTCPPort()
	tlsCfg := TLSConfig{Enabled: true, Certificate: certFilePath, Key: privKeyFile}
	httpServer := startServer(t, &Config{Address: addr, TLS: tlsCfg}, logtest.NewRecorder(), Opts{})
	require.Equal(t, "https://"+addr, httpServer.URL)
	require.Equal(t, addr, fmt.Sprintf("127.0.0.1:%d", httpServer.GetPort()))

	pemData, err := os.ReadFile(certFilePath)
	require.NoError(t, err)
	rootCAs := x509.NewCertPool()
	require.True(t, rootCAs.AppendCertsFromPEM(pemData))
	client := &http.Client{Transport: &http.Transport{TLSClientConfig: &tls.Config{RootCAs: rootCAs, MinVersion: tls.VersionTLS12}}}

	resp, err := client.Get(httpServer.URL + "/healthz")
	require.NoError(t, err)
	defer func() { require.NoError(t, resp.Body.Close()) }()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHTTPServer_Start(t *testing.T) {
	t.Run("static port", func(t *testing.T) {
		addr := testutil.GetLocalAddrWithFreeTCPPort()
		httpServer := startServer(t, &Config{Address: addr}, logtest.NewRecorder(), Opts{})
		requireSystemEndpoints(t, http.DefaultClient, httpServer.URL)
	})

	t.Run("dynamic port", func(t *testing.T) {
		httpServer := New(&Config{Address: "127.0.0.1:0"}, logtest.NewRecorder(), Opts{})
		fatalErr := make(chan error, 1)
		go httpServer.Start(fatalErr)
		defer func() {
			require.NoError(t, httpServer.Stop(false))
			testutil.RequireNoErrorInChannel(t, fatalErr)
		}()
		require.Eventually(t, func() bool { return httpServer.GetPort() > 0 }, time.Second*3, time.Millisecond*10)
		addr := fmt.Sprintf("127.0.0.1:%d", httpServer.GetPort())
		require.NoError(t, testutil.WaitListeningServer(addr, time.Second*3))
		requireSystemEndpoints(t, http.DefaultClient, "http://"+addr)
	})

	t.Run("unix socket", func(t *testing.T) {
		socketPath := filepath.Join(t.TempDir(), "s.sock")
		httpServer := startServer(t, &Config{UnixSocketPath: socketPath}, logtest.NewRecorder(), Opts{})
		require.Equal(t, 0, httpServer.GetPort())
		network, addr := httpServer.NetworkAndAddr()
		require.Equal(t, "unix", network)
		require.Equal(t, socketPath, addr)

		tr := http.DefaultTransport.(*http.Transport).Clone()
		tr.DialContext = func(ctx context.Context, _, _ string) (net.Conn, error) {
			var dialer net.Dialer
			return dialer.DialContext(ctx, "unix", socketPath)
		}
		requireSystemEndpoints(t, &http.Client{Transport: tr, Timeout: time.Second}, httpServer.URL)
	})
}

func requireSystemEndpoints(t *testing.T, client *http.Client, serverURL string) {
	t.Helper()

	resp, err := client.Get(serverURL + "/metrics")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	respBody, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NotEmpty(t, respBody)
	require.NoError(t, resp.Body.Close())

	resp, err = client.Get(serverURL + "/healthz")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	testutil.RequireStringJSONInResponse(t, resp, `{"components":{}}`)
	require.NoError(t, resp.Body.Close())
}

func TestHTTPServer_WithAPI(t *testing.T) {
	const errDomain = "Quota"
	var rootMwCalls int
	opts := Opts{
		ServiceNameInURL: "quota",
		ErrorDomain:      errDomain,
		APIRoutes: map[APIVersion]APIRoute{
			1: func(router chi.Router) {
				router.Get("/quotas/{key}", func(rw http.ResponseWriter, r *http.Request) {
					restapi.RespondJSON(rw, map[string]string{"key": chi.URLParam(r, "key")},
						middleware.GetLoggerFromContext(r.Context()))
				})
				router.Post("/panic", func(rw http.ResponseWriter, r *http.Request) {
					panic("PANIC!!!")
				})
			},
		},
		RootMiddlewares: []func(http.Handler) http.Handler{
			func(next http.Handler) http.Handler {
				return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
					rootMwCalls++
					next.ServeHTTP(rw, r)
				})
			},
		},
		HealthCheck: HealthCheckComponents(map[string]func() bool{
			"redis": func() bool { return false },
		}),
	}
	httpServer := startServer(t, &Config{Address: testutil.GetLocalAddrWithFreeTCPPort()}, logtest.NewRecorder(), opts)

	resp, err := http.Get(httpServer.URL + "/api/quota/v1/quotas/user-1")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	testutil.RequireStringJSONInResponse(t, resp, `{"key":"user-1"}`)
	require.NoError(t, resp.Body.Close())

	resp, err = http.Post(httpServer.URL+"/api/quota/v1/panic", restapi.ContentTypeAppJSON, nil)
	require.NoError(t, err)
	testutil.RequireErrorInResponse(t, resp, http.StatusInternalServerError, errDomain, restapi.ErrCodeInternal)
	require.NoError(t, resp.Body.Close())

	resp, err = http.Post(httpServer.URL+"/api/quota/v1/quotas/user-1", restapi.ContentTypeAppJSON, nil)
	require.NoError(t, err)
	testutil.RequireErrorInResponse(t, resp, http.StatusMethodNotAllowed, errDomain, restapi.ErrCodeMethodNotAllowed)
	require.NoError(t, resp.Body.Close())

	require.Equal(t, 3, rootMwCalls)

	// Unknown API version is answered by the root NotFound handler without root middlewares.
	resp, err = http.Get(httpServer.URL + "/api/quota/v2/quotas/user-1")
	require.NoError(t, err)
	testutil.RequireErrorInResponse(t, resp, http.StatusNotFound, errDomain, restapi.ErrCodeNotFound)
	require.NoError(t, resp.Body.Close())
	require.Equal(t, 3, rootMwCalls)

	// Root middlewares are not applied to the system endpoints.
	resp, err = http.Get(httpServer.URL + "/healthz")
	require.NoError(t, err)
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	testutil.RequireStringJSONInResponse(t, resp, `{"components":{"redis":false}}`)
	require.NoError(t, resp.Body.Close())
	require.Equal(t, 3, rootMwCalls)
}

func TestHTTPServer_Stop(t *testing.T) {
	opts := Opts{
		ServiceNameInURL: "quota",
		APIRoutes: map[APIVersion]APIRoute{
			1: func(router chi.Router) {
				router.Get("/sleep", func(rw http.ResponseWriter, r *http.Request) {
					time.Sleep(time.Second)
					restapi.RespondJSON(rw, map[string]string{"message": "done"}, middleware.GetLoggerFromContext(r.Context()))
				})
			},
		},
	}

	run := func(t *testing.T, gracefully bool) {
		addr := testutil.GetLocalAddrWithFreeTCPPort()
		cfg := &Config{Address: addr, Timeouts: TimeoutsConfig{Shutdown: config.TimeDuration(3 * time.Second)}}
		httpServer := New(cfg, logtest.NewRecorder(), opts)
		fatalErr := make(chan error, 1)
		go httpServer.Start(fatalErr)
		require.NoError(t, testutil.WaitListeningServer(addr, time.Second*3))

		respErr := make(chan error, 1)
		go func() {
			c := http.Client{Timeout: time.Second * 5}
			resp, err := c.Get(httpServer.URL + "/api/quota/v1/sleep")
			if err == nil {
				_ = resp.Body.Close()
			}
			respErr <- err
		}()
		time.Sleep(time.Millisecond * 500) // Give time to send request.

		require.NoError(t, httpServer.Stop(gracefully))
		testutil.RequireNoErrorInChannel(t, fatalErr)
		if gracefully {
			require.NoError(t, <-respErr, "in-flight request should be served")
		} else {
			require.Error(t, <-respErr, "connection should be closed immediately")
		}
	}

	t.Run("gracefully", func(t *testing.T) { run(t, true) })
	t.Run("not gracefully", func(t *testing.T) { run(t, false) })

	t.Run("without start", func(t *testing.T) {
		for _, gracefully := range []bool{true, false} {
			cfg := &Config{Address: testutil.GetLocalAddrWithFreeTCPPort(), Timeouts: TimeoutsConfig{Shutdown: config.TimeDuration(3 * time.Second)}}
			require.NoError(t, New(cfg, logtest.NewRecorder(), opts).Stop(gracefully))
		}
	})
}

func TestHTTPServer_MetricsHandler(t *testing.T) {
	marker := []byte("# custom metrics handler")
	metricsHandler := func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			_, _ = rw.Write(marker)
			h.ServeHTTP(rw, r)
		})
	}
	httpServer := startServer(t, &Config{Address: testutil.GetLocalAddrWithFreeTCPPort()}, logtest.NewRecorder(),
		Opts{MetricsHandler: metricsHandler(promhttp.Handler())})

	resp, err := http.Get(httpServer.URL + "/metrics")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	respBody, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	require.True(t, bytes.Contains(respBody, marker))
}

func TestHTTPServer_Logging(t *testing.T) {
	opts := Opts{
		ServiceNameInURL: "quota",
		APIRoutes: map[APIVersion]APIRoute{
			1: func(router chi.Router) {
				router.Get("/hello", func(rw http.ResponseWriter, r *http.Request) {
					restapi.RespondJSON(rw, map[string]string{"message": "hello"}, middleware.GetLoggerFromContext(r.Context()))
				})
			},
		},
	}
	logRecorder := logtest.NewRecorder()
	logCfg := LogConfig{
		RequestStart:      true,
		RequestHeaders:    []string{"X-Tenant-ID", "X-Custom-Header"},
		ExcludedEndpoints: []string{"/metrics", "/healthz"},
	}
	httpServer := startServer(t, &Config{Address: testutil.GetLocalAddrWithFreeTCPPort(), Log: logCfg}, logRecorder, opts)

	req, err := http.NewRequest(http.MethodGet, httpServer.URL+"/api/quota/v1/hello", nil)
	require.NoError(t, err)
	req.Header.Set("X-Tenant-ID", "tenant-1")
	req.Header.Set("X-Custom-Header", "value")
	req.Header.Set("X-Other-Header", "other")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, resp.Body.Close())

	for _, logMsg := range []string{"request started", "response completed"} {
		logEntry, found := logRecorder.FindEntryByFilter(func(entry logtest.RecordedEntry) bool {
			return strings.HasPrefix(entry.Text, logMsg)
		})
		require.True(t, found, "%q should be logged", logMsg)

		logField, found := logEntry.FindField("req_header_x_tenant_id")
		require.True(t, found)
		require.Equal(t, "tenant-1", string(logField.Bytes))
		logField, found = logEntry.FindField("req_header_x_custom_header")
		require.True(t, found)
		require.Equal(t, "value", string(logField.Bytes))
		_, found = logEntry.FindField("req_header_x_other_header")
		require.False(t, found)
	}

	logRecorder.Reset()
	for _, endpoint := range []string{"/metrics", "/healthz"} {
		resp, err = http.Get(httpServer.URL + endpoint)
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.NoError(t, resp.Body.Close())
	}
	require.Empty(t, logRecorder.FindAllEntriesByFilter(func(entry logtest.RecordedEntry) bool {
		return strings.HasPrefix(entry.Text, "response completed")
	}))
}
