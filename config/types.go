/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package config

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"code.cloudfoundry.org/bytefmt"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"
)

// BytesCount represents a size in bytes that can be parsed from both integers and human-readable strings (e.g. "100MB").
type BytesCount uint64

// UnmarshalText allows decoding from text.
// Implements encoding.TextUnmarshaler interface, which is used by mapstructure.TextUnmarshallerHookFunc.
func (b *BytesCount) UnmarshalText(text []byte) error {
	s := strings.TrimSpace(string(text))
	if num, err := strconv.ParseInt(s, 10, 64); err == nil {
		if num < 0 {
			return fmt.Errorf("negative value is not allowed: %d", num)
		}
		*b = BytesCount(num)
		return nil
	}
	// Handle k8s power-of-two values.
	for _, k8sByteSuffix := range [...]string{"Ki", "Mi", "Gi", "Ti"} {
		if strings.HasSuffix(s, k8sByteSuffix) {
			s = s[:len(s)-1]
			break
		}
	}
	num, err := bytefmt.ToBytes(s)
	if err != nil {
		return fmt.Errorf("invalid bytes format (%s): %w", s, err)
	}
	*b = BytesCount(num)
	return nil
}

// UnmarshalYAML allows decoding from YAML.
func (b *BytesCount) UnmarshalYAML(value *yaml.Node) error {
	return b.UnmarshalText([]byte(value.Value))
}

// String returns the human-readable string representation.
func (b BytesCount) String() string {
	return bytefmt.ByteSize(uint64(b))
}

// TimeDuration represents a time duration that can be parsed from both integers (nanoseconds)
// and human-readable strings (e.g. "1h30m").
type TimeDuration time.Duration

// UnmarshalText allows decoding from text.
func (d *TimeDuration) UnmarshalText(text []byte) error {
	dur, err := parseDuration(string(text), time.Nanosecond)
	if err != nil {
		return err
	}
	*d = TimeDuration(dur)
	return nil
}

// UnmarshalYAML allows decoding from YAML.
func (d *TimeDuration) UnmarshalYAML(value *yaml.Node) error {
	return d.UnmarshalText([]byte(value.Value))
}

// MarshalJSON encodes as a human-readable string in JSON.
func (d TimeDuration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// String returns the human-readable string representation.
func (d TimeDuration) String() string {
	return time.Duration(d).String()
}

// Seconds represents a time duration where bare integers mean seconds.
// Human-readable strings (e.g. "10m") are supported too.
// It's convenient for TTLs that are stored in Redis with the seconds precision.
type Seconds time.Duration

// UnmarshalText allows decoding from text.
func (s *Seconds) UnmarshalText(text []byte) error {
	dur, err := parseDuration(string(text), time.Second)
	if err != nil {
		return err
	}
	*s = Seconds(dur)
	return nil
}

// UnmarshalYAML allows decoding from YAML.
func (s *Seconds) UnmarshalYAML(value *yaml.Node) error {
	return s.UnmarshalText([]byte(value.Value))
}

// MarshalJSON encodes as a number of seconds in JSON.
func (s Seconds) MarshalJSON() ([]byte, error) {
	return json.Marshal(int64(time.Duration(s) / time.Second))
}

// Duration returns the value as time.Duration.
func (s Seconds) Duration() time.Duration {
	return time.Duration(s)
}

func parseDuration(str string, unit time.Duration) (time.Duration, error) {
	str = strings.TrimSpace(str)
	if num, err := strconv.ParseInt(str, 10, 64); err == nil {
		if num < 0 {
			return 0, fmt.Errorf("negative value is not allowed: %d", num)
		}
		return time.Duration(num) * unit, nil
	}
	dur, err := time.ParseDuration(str)
	if err != nil {
		return 0, fmt.Errorf("invalid time duration format (%s): %w", str, err)
	}
	if dur < 0 {
		return 0, fmt.Errorf("negative value is not allowed: %s", str)
	}
	return dur, nil
}

var (
	secondsType      = reflect.TypeOf(Seconds(0))
	timeDurationType = reflect.TypeOf(TimeDuration(0))
	bytesCountType   = reflect.TypeOf(BytesCount(0))
)

// DecodeHook returns a mapstructure decode hook that supports Seconds, TimeDuration and BytesCount types
// and comma-separated strings for slices (as they come from environment variables).
func DecodeHook() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		numericUnitsHookFunc(),
		mapstructure.TextUnmarshallerHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)
}

// numericUnitsHookFunc converts numbers (YAML integers, JSON floats) to custom types with respect to their units.
func numericUnitsHookFunc() mapstructure.DecodeHookFuncType {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		switch from.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
			reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
			reflect.Float32, reflect.Float64:
		default:
			return data, nil
		}
		var unit time.Duration
		switch to {
		case secondsType:
			unit = time.Second
		case timeDurationType:
			unit = time.Nanosecond
		case bytesCountType:
			num, err := cast.ToInt64E(data)
			if err != nil {
				return nil, err
			}
			if num < 0 {
				return nil, fmt.Errorf("negative value is not allowed: %d", num)
			}
			return BytesCount(num), nil
		default:
			return data, nil
		}
		num, err := cast.ToInt64E(data)
		if err != nil {
			return nil, err
		}
		if num < 0 {
			return nil, fmt.Errorf("negative value is not allowed: %d", num)
		}
		dur := time.Duration(num) * unit
		if to == secondsType {
			return Seconds(dur), nil
		}
		return TimeDuration(dur), nil
	}
}
