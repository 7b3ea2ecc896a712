// Package config loads the renewd service configuration from YAML, .env files and
// RENEWD_-prefixed environment variables, and converts it into a goRenew.Config.
package config
