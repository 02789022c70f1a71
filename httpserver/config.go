/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpserver

import (
	"fmt"
	"time"

	"github.com/acronis/go-quotakit/config"
)

const cfgDefaultKeyPrefix = "server"

const (
	cfgKeyAddress        = "address"
	cfgKeyUnixSocketPath = "unixSocketPath"

	// Sections, each one is read by its own Set through a scoped data provider.
	cfgSectionTLS      = "tls"
	cfgSectionTimeouts = "timeouts"
	cfgSectionLimits   = "limits"
	cfgSectionLog      = "log"
)

const (
	defaultServerAddress            = ":8080"
	defaultServerTimeoutsWrite      = time.Minute
	defaultServerTimeoutsRead       = time.Second * 15
	defaultServerTimeoutsReadHeader = time.Second * 10
	defaultServerTimeoutsIdle       = time.Minute
	defaultServerTimeoutsShutdown   = time.Second * 5
	defaultServerLimitsMaxBodySize  = "1M"
)

// Config represents a set of configuration parameters for HTTPServer.
// Configuration can be loaded in different formats (YAML, JSON) using config.Loader.
type Config struct {
	Address        string         `mapstructure:"address" yaml:"address" json:"address"`
	UnixSocketPath string         `mapstructure:"unixSocketPath" yaml:"unixSocketPath" json:"unixSocketPath"`
	Timeouts       TimeoutsConfig `mapstructure:"timeouts" yaml:"timeouts" json:"timeouts"`
	Limits         LimitsConfig   `mapstructure:"limits" yaml:"limits" json:"limits"`
	Log            LogConfig      `mapstructure:"log" yaml:"log" json:"log"`
	TLS            TLSConfig      `mapstructure:"tls" yaml:"tls" json:"tls"`

	keyPrefix string
}

var _ config.Config = (*Config)(nil)
var _ config.KeyPrefixProvider = (*Config)(nil)

// NewConfig creates a new instance of the Config.
// The optional argument overrides the key prefix ("server" by default) used by config.Loader.
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
	cfg.Address = defaultServerAddress
	cfg.Timeouts = TimeoutsConfig{
		Write:      config.TimeDuration(defaultServerTimeoutsWrite),
		Read:       config.TimeDuration(defaultServerTimeoutsRead),
		ReadHeader: config.TimeDuration(defaultServerTimeoutsReadHeader),
		Idle:       config.TimeDuration(defaultServerTimeoutsIdle),
		Shutdown:   config.TimeDuration(defaultServerTimeoutsShutdown),
	}
	_ = cfg.Limits.MaxBodySizeBytes.UnmarshalText([]byte(defaultServerLimitsMaxBodySize))
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

// SetProviderDefaults sets default configuration values for HTTPServer in config.DataProvider.
// Implements config.Config interface.
func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyAddress, defaultServerAddress)
	for key, val := range map[string]time.Duration{
		cfgKeyTimeoutsWrite:      defaultServerTimeoutsWrite,
		cfgKeyTimeoutsRead:       defaultServerTimeoutsRead,
		cfgKeyTimeoutsReadHeader: defaultServerTimeoutsReadHeader,
		cfgKeyTimeoutsIdle:       defaultServerTimeoutsIdle,
		cfgKeyTimeoutsShutdown:   defaultServerTimeoutsShutdown,
	} {
		dp.SetDefault(cfgSectionTimeouts+"."+key, val)
	}
	dp.SetDefault(cfgSectionLimits+"."+cfgKeyLimitsMaxBodySize, defaultServerLimitsMaxBodySize)
}

// Set sets HTTPServer configuration values from config.DataProvider.
// Implements config.Config interface.
func (c *Config) Set(dp config.DataProvider) error {
	var err error
	if c.Address, err = dp.GetString(cfgKeyAddress); err != nil {
		return err
	}
	if c.UnixSocketPath, err = dp.GetString(cfgKeyUnixSocketPath); err != nil {
		return err
	}
	if c.Address == "" && c.UnixSocketPath == "" {
		return dp.WrapKeyErr(cfgKeyAddress, fmt.Errorf("either address or unixSocketPath should be set"))
	}

	for _, section := range []struct {
		key string
		cfg interface{ Set(config.DataProvider) error }
	}{
		{cfgSectionTLS, &c.TLS},
		{cfgSectionTimeouts, &c.Timeouts},
		{cfgSectionLimits, &c.Limits},
		{cfgSectionLog, &c.Log},
	} {
		if err = section.cfg.Set(config.WithKeyPrefix(dp, section.key)); err != nil {
			return err
		}
	}
	return nil
}

const (
	cfgKeyTimeoutsWrite      = "write"
	cfgKeyTimeoutsRead       = "read"
	cfgKeyTimeoutsReadHeader = "readHeader"
	cfgKeyTimeoutsIdle       = "idle"
	cfgKeyTimeoutsShutdown   = "shutdown"
)

// TimeoutsConfig represents a set of configuration parameters for HTTPServer relating to timeouts.
type TimeoutsConfig struct {
	Write      config.TimeDuration `mapstructure:"write" yaml:"write" json:"write"`
	Read       config.TimeDuration `mapstructure:"read" yaml:"read" json:"read"`
	ReadHeader config.TimeDuration `mapstructure:"readHeader" yaml:"readHeader" json:"readHeader"`
	Idle       config.TimeDuration `mapstructure:"idle" yaml:"idle" json:"idle"`
	Shutdown   config.TimeDuration `mapstructure:"shutdown" yaml:"shutdown" json:"shutdown"`
}

// Set reads the "timeouts" section.
func (t *TimeoutsConfig) Set(dp config.DataProvider) error {
	for key, dst := range map[string]*config.TimeDuration{
		cfgKeyTimeoutsWrite:      &t.Write,
		cfgKeyTimeoutsRead:       &t.Read,
		cfgKeyTimeoutsReadHeader: &t.ReadHeader,
		cfgKeyTimeoutsIdle:       &t.Idle,
		cfgKeyTimeoutsShutdown:   &t.Shutdown,
	} {
		dur, err := dp.GetDuration(key)
		if err != nil {
			return err
		}
		*dst = config.TimeDuration(dur)
	}
	return nil
}

const cfgKeyLimitsMaxBodySize = "maxBodySize"

// LimitsConfig represents a set of configuration parameters for HTTPServer relating to limits.
type LimitsConfig struct {
	// MaxBodySizeBytes is the maximum size of the request body in bytes accepted by JSON handlers.
	MaxBodySizeBytes config.BytesCount `mapstructure:"maxBodySize" yaml:"maxBodySize" json:"maxBodySize"`
}

// Set reads the "limits" section.
func (l *LimitsConfig) Set(dp config.DataProvider) (err error) {
	l.MaxBodySizeBytes, err = dp.GetBytesCount(cfgKeyLimitsMaxBodySize)
	return err
}

// LogConfig represents a set of configuration parameters for HTTPServer relating to logging.
type LogConfig struct {
	RequestStart           bool     `mapstructure:"requestStart" yaml:"requestStart" json:"requestStart"`
	RequestHeaders         []string `mapstructure:"requestHeaders" yaml:"requestHeaders" json:"requestHeaders"`
	ExcludedEndpoints      []string `mapstructure:"excludedEndpoints" yaml:"excludedEndpoints" json:"excludedEndpoints"`
	AddRequestInfoToLogger bool     `mapstructure:"addRequestInfo" yaml:"addRequestInfo" json:"addRequestInfo"`
}

// Set reads the "log" section.
func (l *LogConfig) Set(dp config.DataProvider) error {
	var err error
	if l.RequestStart, err = dp.GetBool("requestStart"); err != nil {
		return err
	}
	if l.RequestHeaders, err = dp.GetStringSlice("requestHeaders"); err != nil {
		return err
	}
	if l.ExcludedEndpoints, err = dp.GetStringSlice("excludedEndpoints"); err != nil {
		return err
	}
	l.AddRequestInfoToLogger, err = dp.GetBool("addRequestInfo")
	return err
}

// TLSConfig enables HTTPS. Both the certificate and the key files are required when it's enabled.
type TLSConfig struct {
	Enabled     bool   `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	Certificate string `mapstructure:"cert" yaml:"cert" json:"cert"`
	Key         string `mapstructure:"key" yaml:"key" json:"key"`
}

// Set reads the "tls" section.
func (s *TLSConfig) Set(dp config.DataProvider) error {
	var err error
	if s.Enabled, err = dp.GetBool("enabled"); err != nil {
		return err
	}
	if s.Certificate, err = dp.GetString("cert"); err != nil {
		return err
	}
	if s.Key, err = dp.GetString("key"); err != nil {
		return err
	}
	if s.Enabled && (s.Certificate == "" || s.Key == "") {
		return dp.WrapKeyErr("key", fmt.Errorf("both cert and key should be set"))
	}
	return nil
}
