/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package profserver

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/acronis/go-quotakit/config"
)

type AppConfig struct {
	ProfServer *Config `mapstructure:"profServer" json:"profServer" yaml:"profServer"`
}

func TestConfig(t *testing.T) {
	expectedCfg := func() *Config {
		cfg := NewDefaultConfig()
		cfg.Enabled = true
		cfg.Address = "0.0.0.0:6060"
		return cfg
	}

	tests := []struct {
		name        string
		cfgDataType config.DataType
		cfgData     string
	}{
		{
			name:        "yaml config",
			cfgDataType: config.DataTypeYAML,
			cfgData: `
profServer:
  enabled: true
  address: "0.0.0.0:6060"
`,
		},
		{
			name:        "json config",
			cfgDataType: config.DataTypeJSON,
			cfgData:     `{"profServer": {"enabled": true, "address": "0.0.0.0:6060"}}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			appCfg := AppConfig{ProfServer: NewDefaultConfig()}
			err := config.NewLoader(config.NewViperAdapter()).LoadFromReader(
				bytes.NewBufferString(tt.cfgData), tt.cfgDataType, appCfg.ProfServer)
			require.NoError(t, err)
			require.Equal(t, AppConfig{ProfServer: expectedCfg()}, appCfg)

			appCfg = AppConfig{ProfServer: NewDefaultConfig()}
			switch tt.cfgDataType {
			case config.DataTypeYAML:
				require.NoError(t, yaml.Unmarshal([]byte(tt.cfgData), &appCfg))
			case config.DataTypeJSON:
				require.NoError(t, json.Unmarshal([]byte(tt.cfgData), &appCfg))
			}
			require.Equal(t, AppConfig{ProfServer: expectedCfg()}, appCfg)
		})
	}
}

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewConfig()
	require.NoError(t, config.NewDefaultLoader("").LoadFromReader(bytes.NewBuffer(nil), config.DataTypeYAML, cfg))
	require.Equal(t, NewDefaultConfig(), cfg)
	require.False(t, cfg.Enabled)
}

func TestConfigKeyPrefix(t *testing.T) {
	cfgData := `
debugServer:
  enabled: true
  address: "127.0.0.1:7070"
`
	expectedCfg := NewDefaultConfig("debugServer")
	expectedCfg.Enabled = true
	expectedCfg.Address = "127.0.0.1:7070"

	cfg := NewConfig("debugServer")
	err := config.NewDefaultLoader("").LoadFromReader(bytes.NewBufferString(cfgData), config.DataTypeYAML, cfg)
	require.NoError(t, err)
	require.Equal(t, expectedCfg, cfg)
}

func TestConfigValidationErrors(t *testing.T) {
	cfg := NewConfig()
	err := config.NewDefaultLoader("").LoadFromReader(bytes.NewBufferString(`
profServer:
  enabled: true
  address: ""
`), config.DataTypeYAML, cfg)
	require.EqualError(t, err, "profServer.address: cannot be empty")
}
