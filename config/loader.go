/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package config

import (
	"fmt"
	"io"
)

// Loader fills configuration objects from a DataSource.
// Defaults of all objects are registered before any value is read,
// so one object may rely on defaults of another.
type Loader struct {
	Source DataSource
}

// NewDefaultLoader creates a Loader over viper with environment variables enabled.
// E.g., if envVarsPrefix is "quotad", "redis.addrs" may be overridden by QUOTAD_REDIS_ADDRS.
func NewDefaultLoader(envVarsPrefix string) *Loader {
	va := NewViperAdapter()
	va.UseEnvVars(envVarsPrefix)
	return NewLoader(va)
}

// NewLoader creates a new Loader.
func NewLoader(src DataSource) *Loader {
	return &Loader{Source: src}
}

// LoadFromFile reads the file and loads the configuration objects.
func (l *Loader) LoadFromFile(path string, dataType DataType, cfgs ...Config) error {
	if err := l.Source.SetFromFile(path, dataType); err != nil {
		return fmt.Errorf("read %s config: %w", dataType, err)
	}
	return l.Load(cfgs...)
}

// LoadFromReader reads the data and loads the configuration objects.
func (l *Loader) LoadFromReader(reader io.Reader, dataType DataType, cfgs ...Config) error {
	if err := l.Source.SetFromReader(reader, dataType); err != nil {
		return fmt.Errorf("read %s config: %w", dataType, err)
	}
	return l.Load(cfgs...)
}

// Load fills the configuration objects from values the source already has (e.g., environment variables).
func (l *Loader) Load(cfgs ...Config) error {
	providers := make([]DataProvider, len(cfgs))
	for i, c := range cfgs {
		providers[i] = dataProviderFor(c, l.Source)
		c.SetProviderDefaults(providers[i])
	}
	for i, c := range cfgs {
		if err := c.Set(providers[i]); err != nil {
			return err
		}
	}
	return nil
}
