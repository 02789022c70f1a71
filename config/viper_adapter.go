/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package config

import (
	"fmt"
	"io"
	"strings"
	"time"

	"code.cloudfoundry.org/bytefmt"
	"github.com/spf13/cast"
	"github.com/spf13/viper"
)

// ViperAdapter is a DataSource implementation that uses viper library under the hood.
type ViperAdapter struct {
	viper *viper.Viper
}

var _ DataSource = (*ViperAdapter)(nil)

// NewViperAdapter creates a new ViperAdapter.
func NewViperAdapter() *ViperAdapter {
	return &ViperAdapter{viper.New()}
}

// UseEnvVars enables overriding of keys by environment variables ("redis.addrs" -> <PREFIX>_REDIS_ADDRS).
func (va *ViperAdapter) UseEnvVars(prefix string) {
	va.viper.AutomaticEnv()
	va.viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	va.viper.SetEnvPrefix(prefix)
}

// SetFromFile reads configuration data from file.
func (va *ViperAdapter) SetFromFile(path string, dataType DataType) error {
	va.viper.SetConfigType(string(dataType))
	va.viper.SetConfigFile(path)
	return va.viper.ReadInConfig()
}

// SetFromReader reads configuration data from reader.
func (va *ViperAdapter) SetFromReader(reader io.Reader, dataType DataType) error {
	va.viper.SetConfigType(string(dataType))
	return va.viper.ReadConfig(reader)
}

// Set overrides the value of the key.
func (va *ViperAdapter) Set(key string, value interface{}) { va.viper.Set(key, value) }

// SetDefault sets the value that is used when the key is set neither in the data nor in the environment.
func (va *ViperAdapter) SetDefault(key string, value interface{}) { va.viper.SetDefault(key, value) }

// IsSet reports whether the key has a value (defaults included).
func (va *ViperAdapter) IsSet(key string) bool { return va.viper.IsSet(key) }

// Get returns the raw value of the key.
func (va *ViperAdapter) Get(key string) interface{} { return va.viper.Get(key) }

// castKey converts the raw value of the key. A missing key gives the zero value.
func castKey[T any](va *ViperAdapter, key string, castFn func(interface{}) (T, error)) (T, error) {
	var res T
	val := va.viper.Get(key)
	if val == nil {
		return res, nil
	}
	res, err := castFn(val)
	return res, WrapKeyErrIfNeeded(key, err)
}

// GetInt returns the value of the key as an integer.
func (va *ViperAdapter) GetInt(key string) (int, error) { return castKey(va, key, cast.ToIntE) }

// GetString returns the value of the key as a string.
func (va *ViperAdapter) GetString(key string) (string, error) { return castKey(va, key, cast.ToStringE) }

// GetBool returns the value of the key as a bool.
func (va *ViperAdapter) GetBool(key string) (bool, error) { return castKey(va, key, cast.ToBoolE) }

// GetDuration returns the value of the key as a duration.
// Bare integers are treated as nanoseconds, use Seconds type when seconds are expected.
func (va *ViperAdapter) GetDuration(key string) (time.Duration, error) {
	return castKey(va, key, cast.ToDurationE)
}

// GetStringSlice returns the value of the key as a slice of strings.
// A string (e.g., from environment variable) is treated as a comma-separated list.
func (va *ViperAdapter) GetStringSlice(key string) ([]string, error) {
	return castKey(va, key, toStringSlice)
}

// GetBytesCount returns the value of the key as a size in bytes ("10MB", 1024).
func (va *ViperAdapter) GetBytesCount(key string) (BytesCount, error) {
	return castKey(va, key, toBytesCount)
}

// GetStringFromSet returns the value of the key if it is one of the set.
// The item of the set is returned as is, so case-insensitive matching normalizes the value.
func (va *ViperAdapter) GetStringFromSet(key string, set []string, ignoreCase bool) (string, error) {
	str, err := va.GetString(key)
	if err != nil {
		return "", err
	}
	for _, s := range set {
		if str == s || (ignoreCase && strings.EqualFold(str, s)) {
			return s, nil
		}
	}
	return "", WrapKeyErr(key, fmt.Errorf("unknown value %q, should be one of %v", str, set))
}

// Unmarshal decodes the whole configuration into rawVal.
func (va *ViperAdapter) Unmarshal(rawVal interface{}, opts ...DecoderConfigOption) error {
	return va.viper.Unmarshal(rawVal, toViperDecoderOpts(opts)...)
}

// UnmarshalKey decodes the value of the key into rawVal.
func (va *ViperAdapter) UnmarshalKey(key string, rawVal interface{}, opts ...DecoderConfigOption) error {
	return WrapKeyErrIfNeeded(key, va.viper.UnmarshalKey(key, rawVal, toViperDecoderOpts(opts)...))
}

// WrapKeyErr wraps error adding information about a key where this error occurs.
func (va *ViperAdapter) WrapKeyErr(key string, err error) error {
	return WrapKeyErr(key, err)
}

func toViperDecoderOpts(opts []DecoderConfigOption) []viper.DecoderConfigOption {
	res := make([]viper.DecoderConfigOption, len(opts))
	for i, opt := range opts {
		res[i] = viper.DecoderConfigOption(opt)
	}
	return res
}

func toStringSlice(val interface{}) ([]string, error) {
	str, ok := val.(string)
	if !ok {
		return cast.ToStringSliceE(val)
	}
	var res []string
	for _, item := range strings.Split(str, ",") {
		if item = strings.TrimSpace(item); item != "" {
			res = append(res, item)
		}
	}
	return res, nil
}

func toBytesCount(val interface{}) (BytesCount, error) {
	switch v := val.(type) {
	case BytesCount:
		return v, nil
	case string:
		num, err := bytefmt.ToBytes(v)
		if err != nil {
			return 0, fmt.Errorf("invalid bytes format: %s", v)
		}
		return BytesCount(num), nil
	case uint, uint8, uint16, uint32, uint64:
		return BytesCount(cast.ToUint64(val)), nil
	case float64:
		if v < 0 {
			return 0, fmt.Errorf("negative value is not allowed: %v", v)
		}
		return BytesCount(uint64(v)), nil
	case int, int8, int16, int32, int64:
		num := cast.ToInt64(val)
		if num < 0 {
			return 0, fmt.Errorf("negative value is not allowed: %d", num)
		}
		return BytesCount(num), nil
	}
	return 0, fmt.Errorf("unsupported type for bytes count: %T", val)
}
