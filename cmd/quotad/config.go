/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/acronis/go-quotakit/config"
	"github.com/acronis/go-quotakit/httpserver"
	"github.com/acronis/go-quotakit/httpserver/middleware/throttle"
	"github.com/acronis/go-quotakit/log"
	"github.com/acronis/go-quotakit/profserver"
	"github.com/acronis/go-quotakit/quota"
	"github.com/acronis/go-quotakit/redisclient"
)

const envVarsPrefix = "quotad"

// AppConfig is the configuration of quotad. Each field is loaded from its own section.
type AppConfig struct {
	Log      *log.Config
	Redis    *redisclient.Config
	Quota    *quota.Config
	Throttle *throttle.Config
	Server   *httpserver.Config

	ProfServer *profserver.Config
}

var _ config.Config = (*AppConfig)(nil)

// NewAppConfig creates a new instance of the AppConfig.
func NewAppConfig() *AppConfig {
	return &AppConfig{
		Log:      log.NewConfig(),
		Redis:    redisclient.NewConfig(),
		Quota:    quota.NewConfig(),
		Throttle: throttle.NewConfig(),
		Server:   httpserver.NewConfig(),

		ProfServer: profserver.NewConfig(),
	}
}

// SetProviderDefaults sets default configuration values in config.DataProvider.
func (c *AppConfig) SetProviderDefaults(dp config.DataProvider) {
	config.CallSetProviderDefaultsForFields(c, dp)
}

// Set sets configuration values from config.DataProvider.
func (c *AppConfig) Set(dp config.DataProvider) error {
	return config.CallSetForFields(c, dp)
}

func loadAppConfig(path string) (*AppConfig, error) {
	cfg := NewAppConfig()
	loader := config.NewDefaultLoader(envVarsPrefix)
	if path == "" {
		if err := loader.Load(cfg); err != nil {
			return nil, fmt.Errorf("load configuration from environment: %w", err)
		}
		return cfg, nil
	}
	if err := loader.LoadFromFile(path, configDataType(path), cfg); err != nil {
		return nil, fmt.Errorf("load configuration from %q: %w", path, err)
	}
	return cfg, nil
}

func configDataType(path string) config.DataType {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return config.DataTypeJSON
	}
	return config.DataTypeYAML
}
