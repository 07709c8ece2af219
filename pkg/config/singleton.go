package config

import (
	"fmt"
	"sync"
	"sync/atomic"
)

var (
	current  atomic.Pointer[Config]
	initOnce sync.Once
)

// Initialize loads path with environment overrides and publishes the result
// as the process configuration. Only the first call loads anything.
func Initialize(path string) error {
	var err error
	initOnce.Do(func() {
		var cfg *Config
		if cfg, err = LoadConfigWithEnvOverrides(path); err == nil {
			SetConfig(cfg)
		}
	})
	return err
}

// GetConfig returns the published configuration, or nil.
func GetConfig() *Config {
	return current.Load()
}

// SetConfig publishes cfg. Readers holding the previous value keep it.
func SetConfig(cfg *Config) {
	current.Store(cfg)
}

// ReloadConfig loads path and publishes it. A file that fails to load or
// validate leaves the published configuration untouched.
func ReloadConfig(path string) (*Config, error) {
	cfg, err := LoadConfigWithEnvOverrides(path)
	if err != nil {
		return nil, fmt.Errorf("failed to reload configuration: %w", err)
	}
	SetConfig(cfg)
	return cfg, nil
}

// MustGetConfig is GetConfig for callers that cannot run unconfigured.
func MustGetConfig() *Config {
	if cfg := GetConfig(); cfg != nil {
		return cfg
	}
	panic("configuration not initialized: call Initialize first")
}
