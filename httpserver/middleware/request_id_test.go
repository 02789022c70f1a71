/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockRequestIDNextHandler struct {
	called  int
	request *http.Request
}

func (h *mockRequestIDNextHandler) ServeHTTP(_ http.ResponseWriter, r *http.Request) {
	h.called++
	h.request = r
}

func TestRequestIDHandler_ServeHTTP(t *testing.T) {
	const genReqID = "generated-request-id"
	reqIDOpts := RequestIDOpts{GenerateID: func() string { return genReqID }}

	t.Run("use request id from header", func(t *testing.T) {
		const headerReqID = "header-request-id"
		next := &mockRequestIDNextHandler{}
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(headerRequestID, headerReqID)
		resp := httptest.NewRecorder()
		RequestIDWithOpts(reqIDOpts)(next).ServeHTTP(resp, req)

		require.Equal(t, 1, next.called)
		assert.Equal(t, headerReqID, GetRequestIDFromContext(next.request.Context()))
		assert.Equal(t, headerReqID, resp.Header().Get(headerRequestID))
	})

	t.Run("generate request id", func(t *testing.T) {
		next := &mockRequestIDNextHandler{}
		resp := httptest.NewRecorder()
		RequestIDWithOpts(reqIDOpts)(next).ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/", nil))

		require.Equal(t, 1, next.called)
		assert.Equal(t, genReqID, GetRequestIDFromContext(next.request.Context()))
		assert.Equal(t, genReqID, resp.Header().Get(headerRequestID))
	})

	t.Run("default generator", func(t *testing.T) {
		next := &mockRequestIDNextHandler{}
		h := RequestID()(next)
		ids := make(map[string]bool)
		for i := 0; i < 3; i++ {
			resp := httptest.NewRecorder()
			h.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/", nil))
			id := GetRequestIDFromContext(next.request.Context())
			assert.Len(t, id, 20)
			assert.Equal(t, id, resp.Header().Get(headerRequestID))
			ids[id] = true
		}
		require.Equal(t, 3, next.called)
		require.Len(t, ids, 3)
	})
}
