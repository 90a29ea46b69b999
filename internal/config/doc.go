// Package config provides configuration management for tilegraph runs.
// It supports loading configuration from YAML files, environment variables,
// and command-line flags with proper precedence:
// defaults < YAML file < environment variables < command-line flags
package config
