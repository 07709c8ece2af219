// Package config provides configuration management for creditgate.
//
// Configuration is read from a YAML file, layered on top of defaults and
// overridden by environment variables, then validated as a whole.
//
// # Configuration Loading
//
//	cfg, err := config.LoadConfig("creditgate.yaml")
//	cfg, err := config.LoadConfigWithEnvOverrides("creditgate.yaml")
//
// # Environment Variable Overrides
//
// Environment variables follow the naming convention CREDITGATE_SECTION_FIELD:
//
//   - CREDITGATE_STORAGE_BACKEND overrides storage.backend
//   - CREDITGATE_CREDITS_DEFAULT_LIMIT overrides credits.default_limit
//   - CREDITGATE_TELEMETRY_LOGGING_LEVEL overrides telemetry.logging.level
//
// A malformed override (for example a non-numeric limit) fails loading.
//
// # Configuration Precedence
//
//  1. Default values (defaults.go)
//  2. Values from the YAML file
//  3. Environment variable overrides
//  4. Validation
//
// # Hot Reload
//
// Watcher reloads the file on change and hands the new configuration to a
// callback. Only credit limits are meant to be applied at runtime; they take
// effect for period records created after the reload.
//
// # Singleton Pattern
//
//	if err := config.Initialize("creditgate.yaml"); err != nil {
//	    log.Fatal(err)
//	}
//	cfg := config.GetConfig()
//
// For testing, prefer explicit Config values over the singleton.
package config
