/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package restapi

import (
	"fmt"
	"net/http"
	"path"
	"regexp"
	"slices"
	"strings"
)

// RouteMatch is a kind of matching a request path against a route path.
// Kinds follow the nginx "location" modifiers (https://nginx.org/en/docs/http/ngx_http_core_module.html#location).
type RouteMatch int

// Supported kinds of route matching.
const (
	// RouteMatchPrefix is "/path". The longest prefix wins, but regular expressions are checked before it.
	RouteMatchPrefix RouteMatch = iota
	// RouteMatchExact is "= /path".
	RouteMatchExact
	// RouteMatchForward is "^~ /path". Same as RouteMatchPrefix, but regular expressions are not checked if it wins.
	RouteMatchForward
	// RouteMatchRegexp is "~ regexp".
	RouteMatchRegexp
)

var routeModifiers = []struct {
	modifier string
	match    RouteMatch
}{
	{"=", RouteMatchExact},
	{"^~", RouteMatchForward},
	{"~", RouteMatchRegexp},
}

func (m RouteMatch) String() string {
	switch m {
	case RouteMatchPrefix:
		return "prefixed"
	case RouteMatchExact:
		return "exact"
	case RouteMatchForward:
		return "forward"
	case RouteMatchRegexp:
		return "regexp"
	}
	return fmt.Sprintf("RouteMatch(%d)", int(m))
}

// RoutePath is a parsed route path. Syntax: [ = | ^~ | ~ ] urlPath.
type RoutePath struct {
	Raw    string
	Match  RouteMatch
	Path   string // normalized, empty for RouteMatchRegexp
	Regexp *regexp.Regexp
}

// ParseRoutePath parses string representation of route's path.
func ParseRoutePath(s string) (RoutePath, error) {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return RoutePath{}, fmt.Errorf("path is missing")
	}
	rp := RoutePath{Raw: raw, Match: RouteMatchPrefix}
	p := raw
	for _, m := range routeModifiers {
		if strings.HasPrefix(raw, m.modifier) {
			rp.Match = m.match
			p = strings.TrimSpace(raw[len(m.modifier):])
			break
		}
	}

	if rp.Match == RouteMatchRegexp {
		if p == "" {
			return RoutePath{}, fmt.Errorf("regular expression is missing")
		}
		re, err := regexp.Compile(p)
		if err != nil {
			return RoutePath{}, err
		}
		rp.Regexp = re
		return rp, nil
	}

	if !strings.HasPrefix(p, "/") {
		return RoutePath{}, fmt.Errorf("path should be started with \"/\" in case of %s matching", rp.Match)
	}
	rp.Path = NormalizeURLPath(p)
	return rp, nil
}

// UnmarshalText implements the encoding.TextUnmarshaler interface.
func (rp *RoutePath) UnmarshalText(text []byte) (err error) {
	*rp, err = ParseRoutePath(string(text))
	return
}

// MarshalText implements the encoding.TextMarshaler interface.
func (rp RoutePath) MarshalText() ([]byte, error) {
	return []byte(rp.Raw), nil
}

// RouteConfig represents route's configuration.
type RouteConfig struct {
	Path RoutePath `mapstructure:"path" yaml:"path" json:"path"`

	// Methods is a list of case-insensitive HTTP methods. All methods are matched if it's empty.
	Methods []string `mapstructure:"methods" yaml:"methods" json:"methods"`
}

// MethodsInUpperCase returns list of route's methods in upper-case.
func (r *RouteConfig) MethodsInUpperCase() []string {
	upperMethods := make([]string, 0, len(r.Methods))
	for _, m := range r.Methods {
		upperMethods = append(upperMethods, strings.ToUpper(m))
	}
	return upperMethods
}

var knownHTTPMethods = map[string]bool{
	http.MethodGet:     true,
	http.MethodHead:    true,
	http.MethodPost:    true,
	http.MethodPut:     true,
	http.MethodPatch:   true,
	http.MethodDelete:  true,
	http.MethodConnect: true,
	http.MethodOptions: true,
	http.MethodTrace:   true,
}

// Validate validates RouteConfig.
func (r *RouteConfig) Validate() error {
	if r.Path.Raw == "" {
		return fmt.Errorf("path is missing")
	}
	for _, m := range r.MethodsInUpperCase() {
		if !knownHTTPMethods[m] {
			return fmt.Errorf("unknown method %q", m)
		}
	}
	return nil
}

// RouteTable maps HTTP requests to values attached to the matched routes.
// A request that is matched by at least one excluded route is not matched at all.
// The zero value is an empty table ready to use. RouteTable is not safe for concurrent modification,
// but it may be matched concurrently once all routes are added.
type RouteTable[T any] struct {
	included routeSet[T]
	excluded routeSet[T]
}

// Add adds a route with the attached value. The config is expected to be validated.
func (t *RouteTable[T]) Add(cfg RouteConfig, value T) {
	t.included.add(route[T]{path: cfg.Path, methods: cfg.MethodsInUpperCase(), value: value})
}

// Exclude adds a route which requests are never matched by the table.
func (t *RouteTable[T]) Exclude(cfg RouteConfig) {
	t.excluded.add(route[T]{path: cfg.Path, methods: cfg.MethodsInUpperCase()})
}

// Match returns the value of the route matched by the request.
func (t *RouteTable[T]) Match(r *http.Request) (value T, ok bool) {
	p := NormalizeURLPath(r.URL.Path)
	if _, excluded := t.excluded.lookup(p, r.Method); excluded {
		return value, false
	}
	rt, ok := t.included.lookup(p, r.Method)
	if !ok {
		return value, false
	}
	return rt.value, true
}

type route[T any] struct {
	path    RoutePath
	methods []string
	value   T
}

func (rt *route[T]) allows(method string) bool {
	return len(rt.methods) == 0 || slices.Contains(rt.methods, method)
}

// Routes with methods go first in every slice, so they win over the same paths without methods.
type routeSet[T any] struct {
	exact    map[string][]route[T]
	prefixed []route[T] // longest path first
	regexps  []route[T]
}

func compareRouteMethods[T any](a, b route[T]) int {
	hasMethods := func(rt route[T]) int {
		if len(rt.methods) != 0 {
			return 0
		}
		return 1
	}
	return hasMethods(a) - hasMethods(b)
}

func (s *routeSet[T]) add(rt route[T]) {
	switch rt.path.Match {
	case RouteMatchExact:
		if s.exact == nil {
			s.exact = make(map[string][]route[T])
		}
		routes := append(s.exact[rt.path.Path], rt)
		slices.SortStableFunc(routes, compareRouteMethods[T])
		s.exact[rt.path.Path] = routes
	case RouteMatchRegexp:
		s.regexps = append(s.regexps, rt)
		slices.SortStableFunc(s.regexps, compareRouteMethods[T])
	default:
		s.prefixed = append(s.prefixed, rt)
		slices.SortStableFunc(s.prefixed, func(a, b route[T]) int {
			if d := len(b.path.Path) - len(a.path.Path); d != 0 {
				return d
			}
			return compareRouteMethods(a, b)
		})
	}
}

func (s *routeSet[T]) lookup(normalizedPath, method string) (*route[T], bool) {
	exact := s.exact[normalizedPath]
	for i := range exact {
		if exact[i].allows(method) {
			return &exact[i], true
		}
	}

	var longest *route[T]
	for i := range s.prefixed {
		if strings.HasPrefix(normalizedPath, s.prefixed[i].path.Path) && s.prefixed[i].allows(method) {
			longest = &s.prefixed[i]
			break
		}
	}
	if longest != nil && longest.path.Match == RouteMatchForward {
		return longest, true
	}

	for i := range s.regexps {
		if s.regexps[i].path.Regexp.MatchString(normalizedPath) && s.regexps[i].allows(method) {
			return &s.regexps[i], true
		}
	}

	return longest, longest != nil
}

// NormalizeURLPath cleans URL path keeping the trailing slash (e.g., "/foo///bar/.." becomes "/foo").
func NormalizeURLPath(urlPath string) string {
	res := path.Clean("/" + urlPath)
	if strings.HasSuffix(urlPath, "/") && res != "/" {
		res += "/"
	}
	return res
}
