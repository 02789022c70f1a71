/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package config

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestSeconds_UnmarshalText(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Seconds
		wantErr bool
	}{
		{"bare integer", "30", Seconds(30 * time.Second), false},
		{"zero", "0", 0, false},
		{"human-readable", "1h30m", Seconds(90 * time.Minute), false},
		{"negative integer", "-1", 0, true},
		{"negative duration", "-1s", 0, true},
		{"garbage", "abc", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var s Seconds
			err := s.UnmarshalText([]byte(tt.input))
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, s)
		})
	}
}

func TestSeconds_YAMLAndJSON(t *testing.T) {
	var cfg struct {
		TTL   Seconds `yaml:"ttl"`
		Block Seconds `yaml:"block"`
	}
	require.NoError(t, yaml.Unmarshal([]byte("ttl: 60\nblock: 5m"), &cfg))
	require.Equal(t, time.Minute, cfg.TTL.Duration())
	require.Equal(t, 5*time.Minute, cfg.Block.Duration())

	data, err := json.Marshal(cfg.Block)
	require.NoError(t, err)
	require.Equal(t, "300", string(data))
}

func TestTimeDuration_UnmarshalText(t *testing.T) {
	var d TimeDuration
	require.NoError(t, d.UnmarshalText([]byte("250ms")))
	require.Equal(t, TimeDuration(250*time.Millisecond), d)
	require.NoError(t, d.UnmarshalText([]byte("1000")))
	require.Equal(t, TimeDuration(1000), d)
	require.Error(t, d.UnmarshalText([]byte("soon")))
}

func TestBytesCount_UnmarshalText(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    BytesCount
		wantErr bool
	}{
		{"integer", "1024", 1024, false},
		{"human-readable", "10MB", 10 * 1024 * 1024, false},
		{"k8s suffix", "1Gi", 1024 * 1024 * 1024, false},
		{"negative", "-5", 0, true},
		{"garbage", "ten", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var b BytesCount
			err := b.UnmarshalText([]byte(tt.input))
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, b)
		})
	}
}

func TestDecodeHook(t *testing.T) {
	va := NewViperAdapter()
	yamlData := `
ttl: 15
ttl_str: 2m
timeout: 1s
size: 1KB
size_num: 512
items: "x, y"
`
	require.NoError(t, va.SetFromReader(bytes.NewBufferString(yamlData), DataTypeYAML))

	var cfg struct {
		TTL     Seconds      `mapstructure:"ttl"`
		TTLStr  Seconds      `mapstructure:"ttl_str"`
		Timeout TimeDuration `mapstructure:"timeout"`
		Size    BytesCount   `mapstructure:"size"`
		SizeNum BytesCount   `mapstructure:"size_num"`
		Items   []string     `mapstructure:"items"`
	}
	require.NoError(t, va.Unmarshal(&cfg, WithDecodeHook()))
	require.Equal(t, Seconds(15*time.Second), cfg.TTL)
	require.Equal(t, Seconds(2*time.Minute), cfg.TTLStr)
	require.Equal(t, TimeDuration(time.Second), cfg.Timeout)
	require.Equal(t, BytesCount(1024), cfg.Size)
	require.Equal(t, BytesCount(512), cfg.SizeNum)
	require.Equal(t, []string{"x", " y"}, cfg.Items)
}
