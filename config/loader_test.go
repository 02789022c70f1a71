/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type testServerConfig struct {
	Address string
	Timeout time.Duration
}

func (c *testServerConfig) KeyPrefix() string {
	return "server"
}

func (c *testServerConfig) SetProviderDefaults(dp DataProvider) {
	dp.SetDefault("addr", ":8080")
	dp.SetDefault("timeout", "5s")
}

func (c *testServerConfig) Set(dp DataProvider) error {
	var err error
	if c.Address, err = dp.GetString("addr"); err != nil {
		return err
	}
	if c.Timeout, err = dp.GetDuration("timeout"); err != nil {
		return err
	}
	return nil
}

type testWindowConfig struct {
	TTL      Seconds `mapstructure:"ttl"`
	TTLBlock Seconds `mapstructure:"ttl_block"`
	Elements []string
}

func (c *testWindowConfig) KeyPrefix() string {
	return "window"
}

func (c *testWindowConfig) SetProviderDefaults(_ DataProvider) {}

func (c *testWindowConfig) Set(dp DataProvider) error {
	return dp.Unmarshal(c, WithDecodeHook())
}

type testAppConfig struct {
	Server *testServerConfig
	Window *testWindowConfig
	Skip   *testServerConfig
}

func (c *testAppConfig) SetProviderDefaults(dp DataProvider) {
	CallSetProviderDefaultsForFields(c, dp)
}

func (c *testAppConfig) Set(dp DataProvider) error {
	return CallSetForFields(c, dp)
}

func TestLoader_LoadFromReader(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg := &testServerConfig{}
		require.NoError(t, NewLoader(NewViperAdapter()).LoadFromReader(bytes.NewBufferString(`{}`), DataTypeJSON, cfg))
		require.Equal(t, ":8080", cfg.Address)
		require.Equal(t, 5*time.Second, cfg.Timeout)
	})

	t.Run("key prefix", func(t *testing.T) {
		cfg := &testServerConfig{}
		yamlData := `
server:
  addr: ":9090"
  timeout: 1m
`
		require.NoError(t, NewLoader(NewViperAdapter()).LoadFromReader(bytes.NewBufferString(yamlData), DataTypeYAML, cfg))
		require.Equal(t, ":9090", cfg.Address)
		require.Equal(t, time.Minute, cfg.Timeout)
	})

	t.Run("nested configs, nil fields are skipped", func(t *testing.T) {
		cfg := &testAppConfig{Server: &testServerConfig{}, Window: &testWindowConfig{}}
		yamlData := `
server:
  addr: ":7070"
window:
  ttl: 10
  ttl_block: 2m
  elements: [a, b]
`
		require.NoError(t, NewLoader(NewViperAdapter()).LoadFromReader(bytes.NewBufferString(yamlData), DataTypeYAML, cfg))
		require.Equal(t, ":7070", cfg.Server.Address)
		require.Equal(t, Seconds(10*time.Second), cfg.Window.TTL)
		require.Equal(t, Seconds(2*time.Minute), cfg.Window.TTLBlock)
		require.Equal(t, []string{"a", "b"}, cfg.Window.Elements)
		require.Nil(t, cfg.Skip)
	})

	t.Run("invalid value", func(t *testing.T) {
		cfg := &testServerConfig{}
		err := NewLoader(NewViperAdapter()).LoadFromReader(bytes.NewBufferString(`{"server":{"timeout":"forever"}}`), DataTypeJSON, cfg)
		require.ErrorContains(t, err, "server.timeout")
	})
}

func TestLoader_LoadFromFile(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("server:\n  addr: \":6060\"\n"), 0o600))

	cfg := &testServerConfig{}
	require.NoError(t, NewLoader(NewViperAdapter()).LoadFromFile(cfgPath, DataTypeYAML, cfg))
	require.Equal(t, ":6060", cfg.Address)

	err := NewLoader(NewViperAdapter()).LoadFromFile(filepath.Join(t.TempDir(), "missing.yml"), DataTypeYAML, cfg)
	require.Error(t, err)
}

func TestNewDefaultLoader_EnvVars(t *testing.T) {
	t.Setenv("QUOTATEST_SERVER_ADDR", ":5050")

	cfg := &testServerConfig{}
	require.NoError(t, NewDefaultLoader("quotatest").LoadFromReader(bytes.NewBufferString(`{}`), DataTypeJSON, cfg))
	require.Equal(t, ":5050", cfg.Address)
}
