/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package redisclient

import (
	"fmt"
	"time"

	"github.com/acronis/go-quotakit/config"
)

const cfgDefaultKeyPrefix = "redis"

const (
	cfgKeyAddrs                   = "addrs"
	cfgKeyMasterName              = "masterName"
	cfgKeyUsername                = "username"
	cfgKeyPassword                = "password" // nolint:gosec // false positive
	cfgKeyDB                      = "db"
	cfgKeyPoolSize                = "poolSize"
	cfgKeyTimeoutsDial            = "timeouts.dial"
	cfgKeyTimeoutsRead            = "timeouts.read"
	cfgKeyTimeoutsWrite           = "timeouts.write"
	cfgKeyConnectMaxAttempts      = "connect.maxAttempts"
	cfgKeyConnectInitialInterval  = "connect.initialInterval"
	cfgKeyHealthCheckInterval     = "healthCheck.interval"
	cfgKeyHealthCheckPingTimeout  = "healthCheck.pingTimeout"
	cfgKeyHealthCheckInitialDelay = "healthCheck.initialDelay"
)

const (
	defaultAddr                    = "127.0.0.1:6379"
	defaultTimeoutsDial            = time.Second * 5
	defaultTimeoutsRead            = time.Second * 3
	defaultTimeoutsWrite           = time.Second * 3
	defaultConnectMaxAttempts      = 5
	defaultConnectInitialInterval  = time.Millisecond * 500
	defaultHealthCheckInterval     = time.Second * 10
	defaultHealthCheckPingTimeout  = time.Second
	defaultHealthCheckInitialDelay = time.Duration(0)
)

// Config represents a set of configuration parameters for connecting to Redis.
//
// A single address means a standalone server, several addresses mean a cluster.
// If MasterName is set, addresses are treated as Sentinel ones.
//
// Example of YAML configuration:
//
//	redis:
//	  addrs: ["redis-0:6379", "redis-1:6379", "redis-2:6379"]
//	  password: secret
//	  connect:
//	    maxAttempts: 10
//	    initialInterval: 1s
type Config struct {
	Addrs       []string          `mapstructure:"addrs" yaml:"addrs" json:"addrs"`
	MasterName  string            `mapstructure:"masterName" yaml:"masterName" json:"masterName"`
	Username    string            `mapstructure:"username" yaml:"username" json:"username"`
	Password    string            `mapstructure:"password" yaml:"password" json:"-"`
	DB          int               `mapstructure:"db" yaml:"db" json:"db"`
	PoolSize    int               `mapstructure:"poolSize" yaml:"poolSize" json:"poolSize"`
	Timeouts    TimeoutsConfig    `mapstructure:"timeouts" yaml:"timeouts" json:"timeouts"`
	Connect     ConnectConfig     `mapstructure:"connect" yaml:"connect" json:"connect"`
	HealthCheck HealthCheckConfig `mapstructure:"healthCheck" yaml:"healthCheck" json:"healthCheck"`

	keyPrefix string
}

// TimeoutsConfig contains timeouts of Redis socket operations.
type TimeoutsConfig struct {
	Dial  config.TimeDuration `mapstructure:"dial" yaml:"dial" json:"dial"`
	Read  config.TimeDuration `mapstructure:"read" yaml:"read" json:"read"`
	Write config.TimeDuration `mapstructure:"write" yaml:"write" json:"write"`
}

// ConnectConfig determines how the initial connection is retried.
// Delays between attempts grow exponentially starting from InitialInterval.
type ConnectConfig struct {
	MaxAttempts     int                 `mapstructure:"maxAttempts" yaml:"maxAttempts" json:"maxAttempts"`
	InitialInterval config.TimeDuration `mapstructure:"initialInterval" yaml:"initialInterval" json:"initialInterval"`
}

// HealthCheckConfig configures the periodic Redis ping.
type HealthCheckConfig struct {
	Interval     config.TimeDuration `mapstructure:"interval" yaml:"interval" json:"interval"`
	PingTimeout  config.TimeDuration `mapstructure:"pingTimeout" yaml:"pingTimeout" json:"pingTimeout"`
	InitialDelay config.TimeDuration `mapstructure:"initialDelay" yaml:"initialDelay" json:"initialDelay"`
}

var _ config.Config = (*Config)(nil)
var _ config.KeyPrefixProvider = (*Config)(nil)

// NewConfig creates a new instance of the Config.
// The optional argument overrides the key prefix ("redis" by default) used by config.Loader.
func NewConfig(keyPrefix ...string) *Config {
	cfg := &Config{keyPrefix: cfgDefaultKeyPrefix}
	if len(keyPrefix) != 0 {
		cfg.keyPrefix = keyPrefix[0]
	}
	return cfg
}

// NewDefaultConfig creates a new instance of the Config with default values.
func NewDefaultConfig(keyPrefix ...string) *Config {
	cfg := NewConfig(keyPrefix...)
	cfg.Addrs = []string{defaultAddr}
	cfg.Timeouts = TimeoutsConfig{
		Dial:  config.TimeDuration(defaultTimeoutsDial),
		Read:  config.TimeDuration(defaultTimeoutsRead),
		Write: config.TimeDuration(defaultTimeoutsWrite),
	}
	cfg.Connect = ConnectConfig{
		MaxAttempts:     defaultConnectMaxAttempts,
		InitialInterval: config.TimeDuration(defaultConnectInitialInterval),
	}
	cfg.HealthCheck = HealthCheckConfig{
		Interval:     config.TimeDuration(defaultHealthCheckInterval),
		PingTimeout:  config.TimeDuration(defaultHealthCheckPingTimeout),
		InitialDelay: config.TimeDuration(defaultHealthCheckInitialDelay),
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

// SetProviderDefaults sets default configuration values for Redis connection in config.DataProvider.
// Implements config.Config interface.
func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyAddrs, []string{defaultAddr})
	dp.SetDefault(cfgKeyTimeoutsDial, defaultTimeoutsDial)
	dp.SetDefault(cfgKeyTimeoutsRead, defaultTimeoutsRead)
	dp.SetDefault(cfgKeyTimeoutsWrite, defaultTimeoutsWrite)
	dp.SetDefault(cfgKeyConnectMaxAttempts, defaultConnectMaxAttempts)
	dp.SetDefault(cfgKeyConnectInitialInterval, defaultConnectInitialInterval)
	dp.SetDefault(cfgKeyHealthCheckInterval, defaultHealthCheckInterval)
	dp.SetDefault(cfgKeyHealthCheckPingTimeout, defaultHealthCheckPingTimeout)
	dp.SetDefault(cfgKeyHealthCheckInitialDelay, defaultHealthCheckInitialDelay)
}

// Set sets Redis connection configuration values from config.DataProvider.
// Implements config.Config interface.
func (c *Config) Set(dp config.DataProvider) error {
	var err error

	if c.Addrs, err = dp.GetStringSlice(cfgKeyAddrs); err != nil {
		return err
	}
	if len(c.Addrs) == 0 {
		return dp.WrapKeyErr(cfgKeyAddrs, fmt.Errorf("at least one address should be specified"))
	}
	if c.MasterName, err = dp.GetString(cfgKeyMasterName); err != nil {
		return err
	}
	if c.Username, err = dp.GetString(cfgKeyUsername); err != nil {
		return err
	}
	if c.Password, err = dp.GetString(cfgKeyPassword); err != nil {
		return err
	}
	if c.DB, err = dp.GetInt(cfgKeyDB); err != nil {
		return err
	}
	if c.DB < 0 {
		return dp.WrapKeyErr(cfgKeyDB, fmt.Errorf("cannot be negative"))
	}
	if c.DB != 0 && len(c.Addrs) > 1 && c.MasterName == "" {
		return dp.WrapKeyErr(cfgKeyDB, fmt.Errorf("cannot be used with Redis cluster"))
	}
	if c.PoolSize, err = dp.GetInt(cfgKeyPoolSize); err != nil {
		return err
	}
	if c.PoolSize < 0 {
		return dp.WrapKeyErr(cfgKeyPoolSize, fmt.Errorf("cannot be negative"))
	}

	for _, d := range []struct {
		key string
		dst *config.TimeDuration
	}{
		{cfgKeyTimeoutsDial, &c.Timeouts.Dial},
		{cfgKeyTimeoutsRead, &c.Timeouts.Read},
		{cfgKeyTimeoutsWrite, &c.Timeouts.Write},
		{cfgKeyConnectInitialInterval, &c.Connect.InitialInterval},
		{cfgKeyHealthCheckInterval, &c.HealthCheck.Interval},
		{cfgKeyHealthCheckPingTimeout, &c.HealthCheck.PingTimeout},
		{cfgKeyHealthCheckInitialDelay, &c.HealthCheck.InitialDelay},
	} {
		var dur time.Duration
		if dur, err = dp.GetDuration(d.key); err != nil {
			return err
		}
		*d.dst = config.TimeDuration(dur)
	}

	if c.Connect.MaxAttempts, err = dp.GetInt(cfgKeyConnectMaxAttempts); err != nil {
		return err
	}
	if c.Connect.MaxAttempts < 1 {
		return dp.WrapKeyErr(cfgKeyConnectMaxAttempts, fmt.Errorf("should be >= 1"))
	}
	if c.HealthCheck.Interval <= 0 {
		return dp.WrapKeyErr(cfgKeyHealthCheckInterval, fmt.Errorf("should be positive"))
	}

	return nil
}
