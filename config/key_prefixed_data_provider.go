/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package config

import (
	"strings"
	"time"
)

// WithKeyPrefix returns a DataProvider that resolves all keys relative to the prefix.
// Wrapping an already prefixed provider joins the prefixes, so "http" over "quotad" gives "quotad.http".
func WithKeyPrefix(dp DataProvider, prefix string) DataProvider {
	prefix = strings.Trim(prefix, ".")
	if prefix == "" {
		return dp
	}
	if p, ok := dp.(*prefixedProvider); ok {
		return &prefixedProvider{root: p.root, prefix: p.prefix + "." + prefix}
	}
	return &prefixedProvider{root: dp, prefix: prefix}
}

type prefixedProvider struct {
	root   DataProvider
	prefix string
}

func (p *prefixedProvider) key(key string) string {
	if key == "" {
		return p.prefix
	}
	return p.prefix + "." + key
}

func (p *prefixedProvider) Set(key string, value interface{}) { p.root.Set(p.key(key), value) }

func (p *prefixedProvider) SetDefault(key string, value interface{}) {
	p.root.SetDefault(p.key(key), value)
}

func (p *prefixedProvider) IsSet(key string) bool { return p.root.IsSet(p.key(key)) }

func (p *prefixedProvider) Get(key string) interface{} { return p.root.Get(p.key(key)) }

func (p *prefixedProvider) GetBool(key string) (bool, error) { return p.root.GetBool(p.key(key)) }

func (p *prefixedProvider) GetInt(key string) (int, error) { return p.root.GetInt(p.key(key)) }

func (p *prefixedProvider) GetString(key string) (string, error) { return p.root.GetString(p.key(key)) }

func (p *prefixedProvider) GetStringFromSet(key string, set []string, ignoreCase bool) (string, error) {
	return p.root.GetStringFromSet(p.key(key), set, ignoreCase)
}

func (p *prefixedProvider) GetStringSlice(key string) ([]string, error) {
	return p.root.GetStringSlice(p.key(key))
}

func (p *prefixedProvider) GetDuration(key string) (time.Duration, error) {
	return p.root.GetDuration(p.key(key))
}

func (p *prefixedProvider) GetBytesCount(key string) (BytesCount, error) {
	return p.root.GetBytesCount(p.key(key))
}

// Unmarshal decodes the whole prefixed subtree.
func (p *prefixedProvider) Unmarshal(rawVal interface{}, opts ...DecoderConfigOption) error {
	return p.root.UnmarshalKey(p.prefix, rawVal, opts...)
}

func (p *prefixedProvider) UnmarshalKey(key string, rawVal interface{}, opts ...DecoderConfigOption) error {
	return p.root.UnmarshalKey(p.key(key), rawVal, opts...)
}

func (p *prefixedProvider) WrapKeyErr(key string, err error) error {
	return WrapKeyErr(p.key(key), err)
}
