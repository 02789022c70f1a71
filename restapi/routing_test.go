/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package restapi

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func mustParseRoutePath(rp string) RoutePath {
	res, err := ParseRoutePath(rp)
	if err != nil {
		panic(err)
	}
	return res
}

func TestParseRoutePath(t *testing.T) {
	tests := []struct {
		name          string
		routePathStr  string
		wantRoutePath RoutePath
		wantErrStr    string
	}{
		{name: "only spaces", routePathStr: "  ", wantErrStr: "path is missing"},
		{
			name:         "prefixed match, not started with /",
			routePathStr: "login",
			wantErrStr:   `path should be started with "/" in case of prefixed matching`,
		},
		{
			name:          "prefixed match",
			routePathStr:  "/api/v1///",
			wantRoutePath: RoutePath{Raw: "/api/v1///", Match: RouteMatchPrefix, Path: "/api/v1/"},
		},
		{
			name:          "exact match",
			routePathStr:  " = ///login/./x/..",
			wantRoutePath: RoutePath{Raw: "= ///login/./x/..", Match: RouteMatchExact, Path: "/login"},
		},
		{
			name:         "exact match, not started with /",
			routePathStr: "= login",
			wantErrStr:   `path should be started with "/" in case of exact matching`,
		},
		{
			name:          "forward match",
			routePathStr:  "^~ /static",
			wantRoutePath: RoutePath{Raw: "^~ /static", Match: RouteMatchForward, Path: "/static"},
		},
		{
			name:         "forward match, not started with /",
			routePathStr: "^~static",
			wantErrStr:   `path should be started with "/" in case of forward matching`,
		},
		{name: "regexp missing", routePathStr: "~", wantErrStr: "regular expression is missing"},
		{name: "regexp parsing error", routePathStr: "~ (a", wantErrStr: "error parsing regexp: missing closing ): `(a`"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			routePath, err := ParseRoutePath(tt.routePathStr)
			if tt.wantErrStr != "" {
				require.EqualError(t, err, tt.wantErrStr)
				return
			}
			require.Equal(t, tt.wantRoutePath, routePath)
		})
	}

	var rp RoutePath
	require.NoError(t, rp.UnmarshalText([]byte("~ ^/users/[0-9]+$")))
	require.Equal(t, RouteMatchRegexp, rp.Match)
	require.True(t, rp.Regexp.MatchString("/users/42"))
	text, err := rp.MarshalText()
	require.NoError(t, err)
	require.Equal(t, "~ ^/users/[0-9]+$", string(text))
}

func TestRouteTable_Match(t *testing.T) {
	var table RouteTable[string]
	table.Add(RouteConfig{Path: mustParseRoutePath("/")}, "default")
	table.Add(RouteConfig{Path: mustParseRoutePath("= /login"), Methods: []string{"post"}}, "login")
	table.Add(RouteConfig{Path: mustParseRoutePath("/api/")}, "api")
	table.Add(RouteConfig{Path: mustParseRoutePath("/api/"), Methods: []string{"DELETE"}}, "api-delete")
	table.Add(RouteConfig{Path: mustParseRoutePath("^~ /static")}, "static")
	table.Add(RouteConfig{Path: mustParseRoutePath("~ ^/api/users/[0-9]+$")}, "user")
	table.Add(RouteConfig{Path: mustParseRoutePath("~ /[0-9]+$")}, "numeric")
	table.Exclude(RouteConfig{Path: mustParseRoutePath("/api/health")})
	table.Exclude(RouteConfig{Path: mustParseRoutePath("= /login"), Methods: []string{"GET"}})

	tests := []struct {
		method    string
		path      string
		wantFound bool
		wantValue string
	}{
		{http.MethodPost, "/login", true, "login"},
		{http.MethodGet, "/login", false, ""},
		{http.MethodPut, "/login", true, "default"},
		{http.MethodGet, "/api/orders", true, "api"},
		{http.MethodDelete, "/api/orders", true, "api-delete"},
		{http.MethodGet, "/api/users/42", true, "user"},
		{http.MethodGet, "/static/users/42", true, "static"},
		{http.MethodGet, "/files/42", true, "numeric"},
		{http.MethodGet, "/api/health", false, ""},
		{http.MethodGet, "/api/health/deep", false, ""},
		{http.MethodGet, "//api/./orders", true, "api"},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			value, found := table.Match(httptest.NewRequest(tt.method, tt.path, nil))
			require.Equal(t, tt.wantFound, found)
			require.Equal(t, tt.wantValue, value)
		})
	}

	var empty RouteTable[int]
	_, found := empty.Match(httptest.NewRequest(http.MethodGet, "/", nil))
	require.False(t, found)
}

func TestRouteConfig_Validate(t *testing.T) {
	cfg := RouteConfig{Path: mustParseRoutePath("/login"), Methods: []string{"get", "Post"}}
	require.NoError(t, cfg.Validate())
	require.Equal(t, []string{http.MethodGet, http.MethodPost}, cfg.MethodsInUpperCase())

	cfg.Methods = []string{"fetch"}
	require.EqualError(t, cfg.Validate(), `unknown method "FETCH"`)

	require.EqualError(t, (&RouteConfig{}).Validate(), "path is missing")
}

func TestNormalizeURLPath(t *testing.T) {
	require.Equal(t, "/", NormalizeURLPath(""))
	require.Equal(t, "/a/b", NormalizeURLPath("a//b"))
	require.Equal(t, "/a/", NormalizeURLPath("/a/c/../"))
}
