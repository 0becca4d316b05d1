// Package config loads, normalizes, and validates the TOML configuration
// consumed by the CLI and the job engine.
package config
