/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package throttle

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/acronis/go-quotakit/config"
	"github.com/acronis/go-quotakit/quota"
	"github.com/acronis/go-quotakit/restapi"
)

const cfgDefaultKeyPrefix = "throttle"

// Config represents a configuration for throttling of HTTP requests with quota limits stored in Redis.
// Configuration can be loaded in different formats (YAML, JSON) using config.Loader.
//
// Example of YAML configuration:
//
//	throttle:
//	  zones:
//	    login_by_ip:
//	      key:
//	        type: remote_addr
//	      limits:
//	        - name: burst
//	          limit: 10
//	          ttl: 60
//	          ttlBlock: 15m
//	  rules:
//	    - routes:
//	        - path: "= /login"
//	          methods: POST
//	      quotas:
//	        - zone: login_by_ip
type Config struct {
	// Zones contains quota zones. Key is a zone's name, and value is a zone's configuration.
	Zones map[string]ZoneConfig `mapstructure:"zones" yaml:"zones" json:"zones"`

	// Rules binds routes to quota zones.
	Rules []RuleConfig `mapstructure:"rules" yaml:"rules" json:"rules"`

	keyPrefix string
}

var _ config.Config = (*Config)(nil)
var _ config.KeyPrefixProvider = (*Config)(nil)

// NewConfig creates a new instance of the Config.
// The optional argument overrides the key prefix ("throttle" by default) used by config.Loader.
func NewConfig(keyPrefix ...string) *Config {
	cfg := &Config{keyPrefix: cfgDefaultKeyPrefix}
	if len(keyPrefix) != 0 {
		cfg.keyPrefix = keyPrefix[0]
	}
	return cfg
}

// KeyPrefix returns a key prefix with which all configuration parameters should be presented.
// Implements config.KeyPrefixProvider interface.
func (c *Config) KeyPrefix() string {
	return c.keyPrefix
}

// SetProviderDefaults is a part of config.Config interface implementation.
func (c *Config) SetProviderDefaults(_ config.DataProvider) {
}

// Set sets throttling configuration values from config.DataProvider.
// Implements config.Config interface.
func (c *Config) Set(dp config.DataProvider) error {
	c.Zones = nil
	c.Rules = nil
	if err := dp.Unmarshal(c, config.WithDecodeHook()); err != nil {
		return err
	}
	return c.Validate()
}

// Validate validates configuration.
func (c *Config) Validate() error {
	for zoneName, zone := range c.Zones {
		if err := zone.Validate(zoneName); err != nil {
			return fmt.Errorf("validate zone %q: %w", zoneName, err)
		}
	}
	for _, rule := range c.Rules {
		if err := rule.Validate(c.Zones); err != nil {
			return fmt.Errorf("validate rule %q: %w", rule.Name(), err)
		}
	}
	return nil
}

// ZoneConfig represents a quota zone: a quota.Limiter with its limits and a way to get a caller key from the request.
type ZoneConfig struct {
	// Namespace of the limiter. Zone's name is used if empty.
	Namespace string `mapstructure:"namespace" yaml:"namespace" json:"namespace"`

	Key      ZoneKeyConfig       `mapstructure:"key" yaml:"key" json:"key"`
	Elements ZoneElementsConfig  `mapstructure:"elements" yaml:"elements" json:"elements"`
	Limits   []quota.LimitConfig `mapstructure:"limits" yaml:"limits" json:"limits"`

	// CheckOnly makes the zone reject blocked callers without counting requests.
	CheckOnly bool `mapstructure:"checkOnly" yaml:"checkOnly" json:"checkOnly"`

	// ResponseStatusCode is used for rejected requests. 429 by default.
	ResponseStatusCode int `mapstructure:"responseStatusCode" yaml:"responseStatusCode" json:"responseStatusCode"`

	DryRun bool `mapstructure:"dryRun" yaml:"dryRun" json:"dryRun"`

	// IncludedKeys and ExcludedKeys are lists of glob patterns (only the "*" wildcard is supported).
	// Only one of them may be specified.
	IncludedKeys []string `mapstructure:"includedKeys" yaml:"includedKeys" json:"includedKeys"`
	ExcludedKeys []string `mapstructure:"excludedKeys" yaml:"excludedKeys" json:"excludedKeys"`
}

// NamespaceOrDefault returns the namespace of the zone's limiter.
func (c *ZoneConfig) NamespaceOrDefault(zoneName string) string {
	if c.Namespace != "" {
		return c.Namespace
	}
	return zoneName
}

// Validate validates zone configuration.
func (c *ZoneConfig) Validate(zoneName string) error {
	if err := c.Key.Validate(); err != nil {
		return err
	}
	if err := c.Elements.Validate(); err != nil {
		return err
	}
	if c.ResponseStatusCode < 0 {
		return fmt.Errorf("response status code should be >= 0, got %d", c.ResponseStatusCode)
	}
	if len(c.IncludedKeys) != 0 && len(c.ExcludedKeys) != 0 {
		return fmt.Errorf("included and excluded lists cannot be specified at the same time")
	}
	if len(c.Limits) == 0 {
		return fmt.Errorf("limits are missing")
	}
	limits, err := c.buildLimits(zoneName)
	if err != nil {
		return err
	}
	if !c.CheckOnly && c.Elements.Type == ZoneElementsTypeNone {
		for _, l := range limits {
			if l.Kind == quota.KindUniqueSet {
				return fmt.Errorf("elements should be configured for unique set limit %q", l.Name)
			}
		}
	}
	return nil
}

func (c *ZoneConfig) buildLimits(zoneName string) ([]quota.Limit, error) {
	qc := quota.Config{Namespace: c.NamespaceOrDefault(zoneName), Limits: c.Limits}
	return qc.BuildLimits(nil)
}

// ZoneKeyType is a type of zone's key.
type ZoneKeyType string

// Zone key types.
const (
	ZoneKeyTypeIdentity   ZoneKeyType = "identity"
	ZoneKeyTypeHTTPHeader ZoneKeyType = "header"
	ZoneKeyTypeRemoteAddr ZoneKeyType = "remote_addr"
)

// ZoneKeyConfig represents a configuration of zone's key.
type ZoneKeyConfig struct {
	// Type determines type of key that will be used as a caller key. "remote_addr" is used if empty.
	Type ZoneKeyType `mapstructure:"type" yaml:"type" json:"type"`

	// HeaderName is a name of the HTTP request header which value will be used as a key.
	// Matters only when Type is a "header".
	HeaderName string `mapstructure:"headerName" yaml:"headerName" json:"headerName"`

	// NoBypassEmpty specifies whether quota will be enforced if the value obtained by the key is empty.
	NoBypassEmpty bool `mapstructure:"noBypassEmpty" yaml:"noBypassEmpty" json:"noBypassEmpty"`
}

// Validate validates keys zone configuration.
func (c *ZoneKeyConfig) Validate() error {
	switch c.Type {
	case "", ZoneKeyTypeIdentity, ZoneKeyTypeRemoteAddr:
	case ZoneKeyTypeHTTPHeader:
		if c.HeaderName == "" {
			return fmt.Errorf("header name should be specified for %q key type", ZoneKeyTypeHTTPHeader)
		}
	default:
		return fmt.Errorf("unknown key type %q", c.Type)
	}
	return nil
}

// ZoneElementsType is a source of elements for unique set limits.
type ZoneElementsType string

// Zone elements types.
const (
	ZoneElementsTypeNone       ZoneElementsType = ""
	ZoneElementsTypeHTTPHeader ZoneElementsType = "header"
	ZoneElementsTypeQueryParam ZoneElementsType = "query"
)

// ZoneElementsConfig represents a configuration of elements that are passed to unique set limits.
type ZoneElementsConfig struct {
	Type ZoneElementsType `mapstructure:"type" yaml:"type" json:"type"`

	// Name is a name of the HTTP header or the query parameter.
	Name string `mapstructure:"name" yaml:"name" json:"name"`
}

// Validate validates elements configuration.
func (c *ZoneElementsConfig) Validate() error {
	switch c.Type {
	case ZoneElementsTypeNone:
	case ZoneElementsTypeHTTPHeader, ZoneElementsTypeQueryParam:
		if c.Name == "" {
			return fmt.Errorf("name should be specified for %q elements type", c.Type)
		}
	default:
		return fmt.Errorf("unknown elements type %q", c.Type)
	}
	return nil
}

// RuleConfig represents configuration for throttling rule.
type RuleConfig struct {
	// Alias is an alternative name for the rule. It will be used as a label in metrics.
	Alias string `mapstructure:"alias" yaml:"alias" json:"alias"`

	// Routes contains a list of routes (HTTP verb + URL path) for which the rule will be applied.
	Routes []restapi.RouteConfig `mapstructure:"routes" yaml:"routes" json:"routes"`

	// ExcludedRoutes contains list of routes to be excluded from quota enforcement (e.g., health-check endpoint).
	ExcludedRoutes []restapi.RouteConfig `mapstructure:"excludedRoutes" yaml:"excludedRoutes" json:"excludedRoutes"`

	// Tags allow using different rules of the same config in different middlewares.
	Tags TagsList `mapstructure:"tags" yaml:"tags" json:"tags"`

	// Quotas contains a list of the quota zones that are used in the rule.
	Quotas []RuleQuota `mapstructure:"quotas" yaml:"quotas" json:"quotas"`
}

// Name returns throttling rule name.
func (c *RuleConfig) Name() string {
	if c.Alias != "" {
		return c.Alias
	}
	parts := make([]string, 0, len(c.Routes))
	for _, r := range c.Routes {
		parts = append(parts, strings.TrimSpace(strings.Join(r.Methods, "|")+" "+r.Path.Raw))
	}
	return strings.Join(parts, "; ")
}

// Validate validates throttling rule configuration.
func (c *RuleConfig) Validate(zones map[string]ZoneConfig) error {
	for _, q := range c.Quotas {
		if _, ok := zones[q.Zone]; !ok {
			return fmt.Errorf("quota zone %q is undefined", q.Zone)
		}
	}
	if len(c.Routes) == 0 {
		return fmt.Errorf("routes is missing")
	}
	for i := range c.Routes {
		if err := c.Routes[i].Validate(); err != nil {
			return fmt.Errorf("validate route #%d: %w", i+1, err)
		}
	}
	for i := range c.ExcludedRoutes {
		if err := c.ExcludedRoutes[i].Validate(); err != nil {
			return fmt.Errorf("validate excluded route #%d: %w", i+1, err)
		}
	}
	return nil
}

// RuleQuota references a quota zone from the rule.
type RuleQuota struct {
	Zone string `mapstructure:"zone" yaml:"zone" json:"zone"`
}

// TagsList represents a list of tags. It may be specified as a comma-separated string or as a list.
type TagsList []string

// UnmarshalText implements the encoding.TextUnmarshaler interface.
func (tl *TagsList) UnmarshalText(text []byte) error {
	tl.unmarshal(string(text))
	return nil
}

// UnmarshalJSON implements the json.Unmarshaler interface.
func (tl *TagsList) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		tl.unmarshal(s)
		return nil
	}
	var l []string
	if err := json.Unmarshal(data, &l); err != nil {
		return fmt.Errorf("invalid tags list: %s", data)
	}
	*tl = l
	return nil
}

// UnmarshalYAML implements the yaml.Unmarshaler interface.
func (tl *TagsList) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		tl.unmarshal(s)
		return nil
	}
	var l []string
	if err := value.Decode(&l); err != nil {
		return fmt.Errorf("invalid tags list: %v", value.Value)
	}
	*tl = l
	return nil
}

func (tl *TagsList) unmarshal(data string) {
	*tl = TagsList{}
	for _, tag := range strings.Split(data, ",") {
		if tag = strings.TrimSpace(tag); tag != "" {
			*tl = append(*tl, tag)
		}
	}
}

// String returns tags joined by comma.
func (tl TagsList) String() string {
	return strings.Join(tl, ",")
}

func (c *ZoneConfig) responseStatusCode() int {
	if c.ResponseStatusCode != 0 {
		return c.ResponseStatusCode
	}
	return http.StatusTooManyRequests
}
