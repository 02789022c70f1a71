/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package throttle

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/vasayxtx/go-glob"

	"github.com/acronis/go-quotakit/httpserver/middleware"
	"github.com/acronis/go-quotakit/log"
	"github.com/acronis/go-quotakit/quota"
	"github.com/acronis/go-quotakit/restapi"
)

// RuleLogFieldName is a logged field that contains the name of the throttling rule.
const RuleLogFieldName = "throttle_rule"

// ZoneMetricsLabel is a label that is curried into MiddlewareOpts.LimiterMetrics for every zone.
const ZoneMetricsLabel = "zone"

// MiddlewareOpts represents an options for Middleware.
type MiddlewareOpts struct {
	// GetKeyIdentity returns identity string representation.
	// The returned string is used as a caller key for zones with "identity" key type.
	GetKeyIdentity func(r *http.Request) (key string, bypass bool, err error)

	OnReject         middleware.QuotaOnRejectFunc
	OnRejectInDryRun middleware.QuotaOnRejectFunc
	OnError          middleware.QuotaOnErrorFunc

	// Tags is a list of tags for filtering throttling rules from the config. If it's empty, all rules can be applied.
	Tags []string

	// BreachHooks maps zone names to OnBreach hooks of the zone's limits (by limit name).
	BreachHooks map[string]map[string]quota.BreachFunc

	// LimiterLogger is passed to every zone's limiter.
	LimiterLogger log.FieldLogger

	// LimiterMetrics is shared by all zones' limiters.
	// It must be created with ZoneMetricsLabel in PrometheusMetricsOpts.CurriedLabelNames.
	LimiterMetrics *quota.PrometheusMetrics

	// KeyPrefix and ClusterHashTag are passed to every zone's limiter.
	KeyPrefix      string
	ClusterHashTag bool
}

// Middleware is a middleware that enforces quota limits for incoming HTTP requests based on the passed configuration.
func Middleware(
	cfg *Config, client quota.Client, errDomain string, mc MetricsCollector,
) (func(next http.Handler) http.Handler, error) {
	return MiddlewareWithOpts(cfg, client, errDomain, mc, MiddlewareOpts{})
}

// MiddlewareWithOpts is a more configurable version of Middleware.
func MiddlewareWithOpts(
	cfg *Config, client quota.Client, errDomain string, mc MetricsCollector, opts MiddlewareOpts,
) (func(next http.Handler) http.Handler, error) {
	if mc == nil {
		mc = disabledMetrics{}
	}

	limiters := make(map[string]*quota.Limiter)
	getLimiter := func(zoneName string, zone *ZoneConfig) (*quota.Limiter, error) {
		if l, ok := limiters[zoneName]; ok {
			return l, nil
		}
		l, err := newZoneLimiter(client, zoneName, zone, opts)
		if err != nil {
			return nil, err
		}
		limiters[zoneName] = l
		return l, nil
	}

	var routes restapi.RouteTable[int]
	ruleMiddlewares := make([][]func(http.Handler) http.Handler, len(cfg.Rules))
	for i := range cfg.Rules {
		rule := &cfg.Rules[i]
		if len(rule.Quotas) == 0 {
			continue
		}
		if len(opts.Tags) != 0 && !checkStringSlicesIntersect(opts.Tags, rule.Tags) {
			continue
		}

		for _, q := range rule.Quotas {
			zone, ok := cfg.Zones[q.Zone]
			if !ok {
				return nil, fmt.Errorf("quota zone %q is not defined", q.Zone)
			}
			limiter, err := getLimiter(q.Zone, &zone)
			if err != nil {
				return nil, fmt.Errorf("make limiter for zone %q: %w", q.Zone, err)
			}
			mw, err := makeQuotaMiddleware(limiter, &zone, errDomain, rule.Name(), mc, opts)
			if err != nil {
				return nil, fmt.Errorf("make quota middleware for zone %q: %w", q.Zone, err)
			}
			ruleMiddlewares[i] = append(ruleMiddlewares[i], mw)
		}

		for _, cfgRoute := range rule.Routes {
			routes.Add(cfgRoute, i)
		}
		for _, exclCfgRoute := range rule.ExcludedRoutes {
			routes.Exclude(exclCfgRoute)
		}
	}

	return func(next http.Handler) http.Handler {
		ruleHandlers := make([]http.Handler, len(ruleMiddlewares))
		for i, mws := range ruleMiddlewares {
			h := next
			for j := len(mws) - 1; j >= 0; j-- {
				h = mws[j](h)
			}
			ruleHandlers[i] = h
		}
		return &handler{next: next, routes: &routes, ruleHandlers: ruleHandlers}
	}, nil
}

type handler struct {
	next         http.Handler
	routes       *restapi.RouteTable[int]
	ruleHandlers []http.Handler // indexed by rule
}

func (h *handler) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	ruleIndex, ok := h.routes.Match(r)
	if !ok {
		h.next.ServeHTTP(rw, r)
		return
	}
	h.ruleHandlers[ruleIndex].ServeHTTP(rw, r)
}

func newZoneLimiter(client quota.Client, zoneName string, zone *ZoneConfig, opts MiddlewareOpts) (*quota.Limiter, error) {
	qc := quota.Config{
		Namespace:      zone.NamespaceOrDefault(zoneName),
		RedisKeyPrefix: opts.KeyPrefix,
		ClusterHashTag: opts.ClusterHashTag,
		Limits:         zone.Limits,
	}
	limiterOpts := quota.Opts{Logger: opts.LimiterLogger}
	if opts.LimiterMetrics != nil {
		limiterOpts.MetricsCollector = opts.LimiterMetrics.MustCurryWith(prometheus.Labels{ZoneMetricsLabel: zoneName})
	}
	return quota.NewFromConfig(client, &qc, opts.BreachHooks[zoneName], limiterOpts)
}

func makeQuotaMiddleware(
	limiter *quota.Limiter, zone *ZoneConfig, errDomain, ruleName string, mc MetricsCollector, opts MiddlewareOpts,
) (func(next http.Handler) http.Handler, error) {
	if zone.Key.Type == ZoneKeyTypeIdentity && opts.GetKeyIdentity == nil {
		return nil, fmt.Errorf("GetKeyIdentity is required for identity key type")
	}
	getKey, err := makeGetKeyFunc(zone.Key, opts.GetKeyIdentity, zone.ExcludedKeys, zone.IncludedKeys)
	if err != nil {
		return nil, err
	}

	onReject := opts.OnReject
	if onReject == nil {
		onReject = middleware.DefaultQuotaOnReject
	}
	onRejectInDryRun := opts.OnRejectInDryRun
	if onRejectInDryRun == nil {
		onRejectInDryRun = middleware.DefaultQuotaOnRejectInDryRun
	}
	withMetrics := func(fn middleware.QuotaOnRejectFunc, dryRun bool) middleware.QuotaOnRejectFunc {
		return func(rw http.ResponseWriter, r *http.Request, params middleware.QuotaParams, next http.Handler, logger log.FieldLogger) {
			mc.IncQuotaRejects(ruleName, params.Namespace, dryRun)
			if logger != nil {
				logger = logger.With(log.String(RuleLogFieldName, ruleName))
			}
			fn(rw, r, params, next, logger)
		}
	}

	return middleware.QuotaWithOpts(limiter, errDomain, middleware.QuotaOpts{
		GetKey:             getKey,
		GetElements:        makeGetElementsFunc(zone.Elements),
		CheckOnly:          zone.CheckOnly,
		ResponseStatusCode: zone.responseStatusCode(),
		DryRun:             zone.DryRun,
		OnReject:           withMetrics(onReject, false),
		OnRejectInDryRun:   withMetrics(onRejectInDryRun, true),
		OnError:            opts.OnError,
	})
}

func makeGetElementsFunc(cfg ZoneElementsConfig) middleware.QuotaGetElementsFunc {
	var getValues func(r *http.Request) []string
	switch cfg.Type {
	case ZoneElementsTypeHTTPHeader:
		getValues = func(r *http.Request) []string { return r.Header.Values(cfg.Name) }
	case ZoneElementsTypeQueryParam:
		getValues = func(r *http.Request) []string { return r.URL.Query()[cfg.Name] }
	default:
		return nil
	}
	return func(r *http.Request) ([]string, error) {
		var elements []string
		for _, v := range getValues(r) {
			for _, el := range strings.Split(v, ",") {
				if el = strings.TrimSpace(el); el != "" {
					elements = append(elements, el)
				}
			}
		}
		if len(elements) == 0 {
			return nil, fmt.Errorf("%s %q is missing or empty", cfg.Type, cfg.Name)
		}
		return elements, nil
	}
}

func makeGetKeyFunc(
	cfg ZoneKeyConfig,
	getKeyIdentity func(r *http.Request) (string, bool, error),
	excludedKeys []string,
	includedKeys []string,
) (middleware.QuotaGetKeyFunc, error) {
	var getKey middleware.QuotaGetKeyFunc
	switch cfg.Type {
	case ZoneKeyTypeIdentity:
		getKey = getKeyIdentity
	case ZoneKeyTypeHTTPHeader:
		getKey = func(r *http.Request) (string, bool, error) {
			headerVal := strings.TrimSpace(r.Header.Get(cfg.HeaderName))
			return headerVal, headerVal == "" && !cfg.NoBypassEmpty, nil
		}
	case "", ZoneKeyTypeRemoteAddr:
		getKey = middleware.GetQuotaKeyRemoteAddr
	default:
		return nil, fmt.Errorf("unknown key type %q", cfg.Type)
	}

	if len(excludedKeys) == 0 && len(includedKeys) == 0 {
		return getKey, nil
	}
	if len(excludedKeys) != 0 && len(includedKeys) != 0 {
		return nil, fmt.Errorf("excluded and included keys cannot be used together")
	}

	exclude := len(excludedKeys) != 0
	patterns := includedKeys
	if exclude {
		patterns = excludedKeys
	}
	matchers := make([]func(s string) bool, 0, len(patterns))
	for _, p := range patterns {
		matchers = append(matchers, glob.Compile(p))
	}
	return func(r *http.Request) (string, bool, error) {
		key, bypass, err := getKey(r)
		if err != nil || bypass {
			return key, bypass, err
		}
		matched := false
		for _, match := range matchers {
			if match(key) {
				matched = true
				break
			}
		}
		return key, matched == exclude, nil
	}, nil
}

func checkStringSlicesIntersect(slice1, slice2 []string) bool {
	for i := range slice1 {
		for j := range slice2 {
			if slice1[i] == slice2[j] {
				return true
			}
		}
	}
	return false
}
