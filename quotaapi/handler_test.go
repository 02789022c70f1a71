/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package quotaapi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/acronis/go-quotakit/httpserver/middleware"
	"github.com/acronis/go-quotakit/log/logtest"
	"github.com/acronis/go-quotakit/quota"
	"github.com/acronis/go-quotakit/restapi"
	"github.com/acronis/go-quotakit/testutil"
)

const testErrDomain = "QuotaTest"

type HandlerTestSuite struct {
	suite.Suite
	mr          *miniredis.Miniredis
	router      chi.Router
	logRecorder *logtest.Recorder
}

func TestHandler(t *testing.T) {
	suite.Run(t, &HandlerTestSuite{})
}

func (s *HandlerTestSuite) SetupTest() {
	var client quota.Client
	s.mr, client = newRedis(s.T())

	login, err := quota.New(client, "login", []quota.Limit{
		{Name: "per_minute", Kind: quota.KindCounter, Threshold: 2, TTL: time.Minute, BlockTTL: 5 * time.Minute},
		{Name: "per_day", Kind: quota.KindCounter, Threshold: 100, TTL: 24 * time.Hour},
	})
	s.Require().NoError(err)
	devices, err := quota.New(client, "devices", []quota.Limit{
		{Name: "distinct", Kind: quota.KindUniqueSet, Threshold: 2, TTL: time.Hour},
	})
	s.Require().NoError(err)

	h, err := NewHandler([]Limiter{login, devices}, HandlerOpts{ErrorDomain: testErrDomain, MaxBodySizeBytes: 64})
	s.Require().NoError(err)

	s.logRecorder = logtest.NewRecorder()
	s.router = chi.NewRouter()
	s.router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(rw, r.WithContext(middleware.NewContextWithLogger(r.Context(), s.logRecorder)))
		})
	})
	h.Register(s.router)
}

func newRedis(t *testing.T) (*miniredis.Miniredis, quota.Client) {
	mr, client := testutil.NewRedis(t)
	return mr, client
}

func (s *HandlerTestSuite) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", restapi.ContentTypeAppJSON)
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	resp := httptest.NewRecorder()
	s.router.ServeHTTP(resp, req)
	return resp
}

func (s *HandlerTestSuite) TestGet_Untouched() {
	resp := s.do(http.MethodGet, "/namespaces/login/keys/alice", "")
	testutil.RequireStringJSONInRecorder(s.T(), resp, `{
		"namespace": "login",
		"key": "alice",
		"limits": {
			"per_minute": {"state": "untouched", "counter": 0},
			"per_day": {"state": "untouched", "counter": 0}
		}
	}`)
}

func (s *HandlerTestSuite) TestHitAndGet() {
	for i := 0; i < 2; i++ {
		resp := s.do(http.MethodPost, "/namespaces/login/keys/alice/hit", "")
		s.Require().Equal(http.StatusNoContent, resp.Code, "hit #%d", i+1)
	}

	resp := s.do(http.MethodGet, "/namespaces/login/keys/alice", "")
	s.Require().Equal(http.StatusOK, resp.Code)
	testutil.RequireStringJSONInRecorder(s.T(), resp, `{
		"namespace": "login",
		"key": "alice",
		"limits": {
			"per_minute": {"state": "active", "counter": 2, "ttl": 60},
			"per_day": {"state": "active", "counter": 2, "ttl": 86400}
		}
	}`)

	resp = s.do(http.MethodPost, "/namespaces/login/keys/alice/hit", "")
	testutil.RequireErrorInRecorder(s.T(), resp, http.StatusTooManyRequests, testErrDomain, ErrCodeLimitExceeded)
	s.Require().Equal("300", resp.Header().Get("Retry-After"))

	resp = s.do(http.MethodPost, "/namespaces/login/keys/alice/check", "")
	s.Require().Equal(http.StatusTooManyRequests, resp.Code)
	s.Require().JSONEq(`{"error": {
		"domain": "QuotaTest",
		"code": "limitExceeded",
		"message": "Quota limit is exceeded.",
		"context": {"limit": "per_minute", "retryAfter": 300}
	}}`, resp.Body.String())

	// Other keys are not affected.
	resp = s.do(http.MethodPost, "/namespaces/login/keys/bob/check", "")
	s.Require().Equal(http.StatusNoContent, resp.Code)
}

func (s *HandlerTestSuite) TestHit_UniqueSet() {
	for _, el := range []string{"laptop", "phone", "laptop"} {
		resp := s.do(http.MethodPost, "/namespaces/devices/keys/alice/hit", `{"elements":["`+el+`"]}`)
		s.Require().Equal(http.StatusNoContent, resp.Code, "element %q", el)
	}
	resp := s.do(http.MethodPost, "/namespaces/devices/keys/alice/hit", `{"elements":["tablet"]}`)
	testutil.RequireErrorInRecorder(s.T(), resp, http.StatusTooManyRequests, testErrDomain, ErrCodeLimitExceeded)
	s.Require().Equal("3600", resp.Header().Get("Retry-After"))
}

func (s *HandlerTestSuite) TestHit_BadRequests() {
	resp := s.do(http.MethodPost, "/namespaces/devices/keys/alice/hit", "")
	testutil.RequireErrorInRecorder(s.T(), resp, http.StatusBadRequest, testErrDomain, restapi.ErrCodeElementsRequired)

	resp = s.do(http.MethodPost, "/namespaces/devices/keys/alice/hit", `{"elements":`)
	testutil.RequireErrorInRecorder(s.T(), resp, http.StatusBadRequest, testErrDomain, "badRequest")

	resp = s.do(http.MethodPost, "/namespaces/devices/keys/alice/hit", `{"elements":["a"],"unknown":1}`)
	testutil.RequireErrorInRecorder(s.T(), resp, http.StatusBadRequest, testErrDomain, "badRequest")

	resp = s.do(http.MethodPost, "/namespaces/devices/keys/alice/hit",
		`{"elements":["`+strings.Repeat("x", 100)+`"]}`)
	testutil.RequireErrorInRecorder(s.T(), resp, http.StatusRequestEntityTooLarge, testErrDomain, "requestEntityTooLarge")

	resp = s.do(http.MethodPost, "/namespaces/unknown/keys/alice/hit", "")
	testutil.RequireErrorInRecorder(s.T(), resp, http.StatusNotFound, testErrDomain, ErrCodeNamespaceNotFound)
}

func (s *HandlerTestSuite) TestReset() {
	for i := 0; i < 3; i++ {
		_ = s.do(http.MethodPost, "/namespaces/login/keys/alice/hit", "")
	}
	s.Require().Equal(http.StatusTooManyRequests, s.do(http.MethodPost, "/namespaces/login/keys/alice/check", "").Code)

	resp := s.do(http.MethodDelete, "/namespaces/login/keys/alice?limit=unknown", "")
	testutil.RequireErrorInRecorder(s.T(), resp, http.StatusBadRequest, testErrDomain, ErrCodeUnknownLimit)

	resp = s.do(http.MethodDelete, "/namespaces/login/keys/alice?limit=per_minute", "")
	s.Require().Equal(http.StatusNoContent, resp.Code)
	_, found := s.logRecorder.FindEntryWithField("quota limits reset", "quota_key", "alice")
	s.Require().True(found)

	s.Require().Equal(http.StatusNoContent, s.do(http.MethodPost, "/namespaces/login/keys/alice/check", "").Code)
	resp = s.do(http.MethodGet, "/namespaces/login/keys/alice", "")
	s.Require().Contains(resp.Body.String(), `"per_minute":{"state":"untouched","counter":0}`)
	s.Require().Contains(resp.Body.String(), `"per_day":{"state":"active","counter":3`)

	resp = s.do(http.MethodDelete, "/namespaces/login/keys/alice", "")
	s.Require().Equal(http.StatusNoContent, resp.Code)
	s.Require().Empty(s.mr.Keys())
}

func (s *HandlerTestSuite) TestStoreError() {
	s.mr.Close()
	resp := s.do(http.MethodGet, "/namespaces/login/keys/alice", "")
	testutil.RequireErrorInRecorder(s.T(), resp, http.StatusInternalServerError, testErrDomain, restapi.ErrCodeInternal)
	_, found := s.logRecorder.FindEntry("quota operation failed")
	s.Require().True(found)
}

type stubLimiter struct {
	namespace string
	err       error
}

func (l stubLimiter) Namespace() string { return l.namespace }

func (l stubLimiter) Hit(context.Context, string, ...string) error { return l.err }

func (l stubLimiter) Get(context.Context, string) (quota.Statuses, error) { return nil, l.err }

func (l stubLimiter) Check(context.Context, string) error { return l.err }

func (l stubLimiter) Reset(context.Context, string, ...string) error { return l.err }

func TestNewHandler(t *testing.T) {
	_, err := NewHandler([]Limiter{stubLimiter{namespace: "a"}, stubLimiter{namespace: "a"}}, HandlerOpts{})
	require.EqualError(t, err, `duplicate limiter namespace "a"`)

	h, err := NewHandler([]Limiter{stubLimiter{namespace: "empty"}}, HandlerOpts{})
	require.NoError(t, err)
	router := chi.NewRouter()
	h.Register(router)

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/namespaces/empty/keys/k", nil))
	testutil.RequireStringJSONInRecorder(t, resp, `{"namespace":"empty","key":"k","limits":{}}`)
}

func TestHandler_CanceledRequest(t *testing.T) {
	h, err := NewHandler([]Limiter{stubLimiter{namespace: "ns", err: context.Canceled}}, HandlerOpts{})
	require.NoError(t, err)
	router := chi.NewRouter()
	h.Register(router)

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/namespaces/ns/keys/k/check", nil))
	require.Equal(t, httpStatusClientClosedRequest, resp.Code)

	h, err = NewHandler([]Limiter{stubLimiter{namespace: "ns", err: errors.New("boom")}}, HandlerOpts{ErrorDomain: testErrDomain})
	require.NoError(t, err)
	router = chi.NewRouter()
	h.Register(router)
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/namespaces/ns/keys/k/check", nil))
	testutil.RequireErrorInRecorder(t, resp, http.StatusInternalServerError, testErrDomain, restapi.ErrCodeInternal)
}
