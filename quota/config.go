/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package quota

import (
	"fmt"
	"time"

	"github.com/acronis/go-quotakit/config"
)

const cfgDefaultKeyPrefix = "quota"

const (
	cfgKeyNamespace      = "namespace"
	cfgKeyRedisKeyPrefix = "redisKeyPrefix"
	cfgKeyClusterHashTag = "clusterHashTag"
	cfgKeyLimits         = "limits"
)

// LimitConfig represents a configuration of a single limit.
type LimitConfig struct {
	Name string `mapstructure:"name" yaml:"name" json:"name"`

	// Type is "counter" (default) or "set".
	Type string `mapstructure:"type" yaml:"type" json:"type"`

	Limit int64 `mapstructure:"limit" yaml:"limit" json:"limit"`

	// TTL is the window duration. Bare integers are seconds (e.g. 60), strings like "1m" are supported too.
	TTL config.Seconds `mapstructure:"ttl" yaml:"ttl" json:"ttl"`

	// TTLBlock is the block duration. Zero means TTL is used.
	TTLBlock config.Seconds `mapstructure:"ttlBlock" yaml:"ttlBlock" json:"ttlBlock"`
}

// Config represents a set of configuration parameters for the Limiter.
//
// Example of YAML configuration:
//
//	quota:
//	  namespace: login
//	  limits:
//	    - name: per_minute
//	      limit: 5
//	      ttl: 60
//	      ttlBlock: 15m
//	    - name: distinct_users
//	      type: set
//	      limit: 3
//	      ttl: 1h
type Config struct {
	Namespace      string        `mapstructure:"namespace" yaml:"namespace" json:"namespace"`
	RedisKeyPrefix string        `mapstructure:"redisKeyPrefix" yaml:"redisKeyPrefix" json:"redisKeyPrefix"`
	ClusterHashTag bool          `mapstructure:"clusterHashTag" yaml:"clusterHashTag" json:"clusterHashTag"`
	Limits         []LimitConfig `mapstructure:"limits" yaml:"limits" json:"limits"`

	keyPrefix string
}

var _ config.Config = (*Config)(nil)
var _ config.KeyPrefixProvider = (*Config)(nil)

// NewConfig creates a new instance of the Config.
// The optional argument overrides the key prefix ("quota" by default) used by config.Loader.
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
	if c.keyPrefix == "" {
		return cfgDefaultKeyPrefix
	}
	return c.keyPrefix
}

// SetProviderDefaults sets default configuration values for the Limiter in config.DataProvider.
// Implements config.Config interface.
func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyRedisKeyPrefix, DefaultKeyPrefix)
	dp.SetDefault(cfgKeyClusterHashTag, false)
}

// Set sets the Limiter configuration values from config.DataProvider.
// Implements config.Config interface.
func (c *Config) Set(dp config.DataProvider) error {
	var err error
	if c.Namespace, err = dp.GetString(cfgKeyNamespace); err != nil {
		return err
	}
	if c.Namespace == "" {
		return dp.WrapKeyErr(cfgKeyNamespace, fmt.Errorf("cannot be empty"))
	}
	if c.RedisKeyPrefix, err = dp.GetString(cfgKeyRedisKeyPrefix); err != nil {
		return err
	}
	if c.ClusterHashTag, err = dp.GetBool(cfgKeyClusterHashTag); err != nil {
		return err
	}
	c.Limits = nil
	if err = dp.UnmarshalKey(cfgKeyLimits, &c.Limits, config.WithDecodeHook()); err != nil {
		return err
	}
	if _, err = c.limits(); err != nil {
		return dp.WrapKeyErr(cfgKeyLimits, err)
	}
	return nil
}

// BuildLimits converts the configured limits to Limit values.
// Hooks are looked up by limit name and may be nil.
func (c *Config) BuildLimits(hooks map[string]BreachFunc) ([]Limit, error) {
	limits, err := c.limits()
	if err != nil {
		return nil, err
	}
	for i := range limits {
		limits[i].OnBreach = hooks[limits[i].Name]
	}
	return limits, nil
}

func (c *Config) limits() ([]Limit, error) {
	limits := make([]Limit, 0, len(c.Limits))
	for i, lc := range c.Limits {
		kind := KindCounter
		if lc.Type != "" {
			var err error
			if kind, err = ParseKind(lc.Type); err != nil {
				return nil, fmt.Errorf("limit #%d: %w", i, err)
			}
		}
		limits = append(limits, Limit{
			Name:      lc.Name,
			Kind:      kind,
			Threshold: lc.Limit,
			TTL:       time.Duration(lc.TTL),
			BlockTTL:  time.Duration(lc.TTLBlock),
		})
	}
	if _, err := newRegistry(limits); err != nil {
		return nil, err
	}
	return limits, nil
}

// NewFromConfig creates a new Limiter from the configuration.
// Opts.KeyPrefix and Opts.ClusterHashTag are overridden by the configuration.
func NewFromConfig(client Client, cfg *Config, hooks map[string]BreachFunc, opts Opts) (*Limiter, error) {
	limits, err := cfg.BuildLimits(hooks)
	if err != nil {
		return nil, err
	}
	opts.KeyPrefix = cfg.RedisKeyPrefix
	opts.ClusterHashTag = cfg.ClusterHashTag
	return NewWithOpts(client, cfg.Namespace, limits, opts)
}
