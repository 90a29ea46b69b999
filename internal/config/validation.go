package config

import (
	"fmt"
	"net"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("configuration validation failed:\n  - %s", strings.Join(msgs, "\n  - "))
}

// HasErrors returns true if there are any validation errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Validator validates configuration values.
type Validator struct {
	errors ValidationErrors
}

// NewValidator creates a new configuration validator.
func NewValidator() *Validator {
	return &Validator{
		errors: make(ValidationErrors, 0),
	}
}

func (v *Validator) addError(field, message string) {
	v.errors = append(v.errors, ValidationError{Field: field, Message: message})
}

// Validate validates the entire configuration and returns any errors.
func (v *Validator) Validate(cfg *Config) error {
	v.errors = make(ValidationErrors, 0)

	v.validateProblemConfig(&cfg.Problem)
	v.validateGridConfig(&cfg.Grid)
	v.validateRuntimeConfig(&cfg.Runtime)
	v.validateNetworkConfig(&cfg.Network, &cfg.Grid)
	v.validateStatusConfig(&cfg.Status)
	v.validateLoggingConfig(&cfg.Logging)

	if v.errors.HasErrors() {
		return v.errors
	}
	return nil
}

func (v *Validator) validateProblemConfig(cfg *ProblemConfig) {
	if cfg.N <= 0 {
		v.addError("problem.n", "matrix order must be positive")
	}
	if cfg.M < 0 {
		v.addError("problem.m", "row count must be non-negative")
	}
	if cfg.MB <= 0 {
		v.addError("problem.mb", "tile rows must be positive")
	}
	if cfg.NB <= 0 {
		v.addError("problem.nb", "tile columns must be positive")
	}
}

func (v *Validator) validateGridConfig(cfg *GridConfig) {
	if cfg.Nodes <= 0 {
		v.addError("grid.nodes", "node count must be positive")
	}
	if cfg.P <= 0 {
		v.addError("grid.p", "grid rows must be positive")
	}
	if cfg.Q <= 0 {
		v.addError("grid.q", "grid columns must be positive")
	}
	if cfg.P > 0 && cfg.Q > 0 && cfg.Nodes > 0 && cfg.P*cfg.Q != cfg.Nodes {
		v.addError("grid", fmt.Sprintf("P*Q = %d does not match node count %d", cfg.P*cfg.Q, cfg.Nodes))
	}
}

func (v *Validator) validateRuntimeConfig(cfg *RuntimeConfig) {
	if cfg.Cores <= 0 {
		v.addError("runtime.cores", "core count must be positive")
	}
	switch strings.ToLower(cfg.StatusReduction) {
	case "sum", "max", "lor":
	default:
		v.addError("runtime.status_reduction", fmt.Sprintf("invalid reduction '%s', must be one of: sum, max, lor", cfg.StatusReduction))
	}
}

func (v *Validator) validateNetworkConfig(cfg *NetworkConfig, grid *GridConfig) {
	if !cfg.Enabled {
		return
	}
	if cfg.Rank < 0 || (grid.Nodes > 0 && cfg.Rank >= grid.Nodes) {
		v.addError("network.rank", fmt.Sprintf("rank %d outside [0, %d)", cfg.Rank, grid.Nodes))
	}
	if !isValidAddress(cfg.HubAddress) {
		v.addError("network.hub_address", "invalid address format, expected host:port")
	}
	if cfg.DialTimeout <= 0 {
		v.addError("network.dial_timeout", "dial timeout must be positive")
	}
}

func (v *Validator) validateStatusConfig(cfg *StatusConfig) {
	if cfg.Enabled && !isValidAddress(cfg.Address) {
		v.addError("status.address", "invalid address format, expected host:port or :port")
	}
}

func (v *Validator) validateLoggingConfig(cfg *LoggingConfig) {
	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if cfg.Level == "" {
		v.addError("logging.level", "log level is required")
	} else if !validLevels[strings.ToLower(cfg.Level)] {
		v.addError("logging.level", fmt.Sprintf("invalid log level '%s', must be one of: debug, info, warn, error", cfg.Level))
	}

	switch cfg.Format {
	case "json", "console":
	default:
		v.addError("logging.format", fmt.Sprintf("invalid log format '%s', must be one of: json, console", cfg.Format))
	}

	switch cfg.Output {
	case "stdout", "stderr", "both":
	case "file":
		if cfg.FilePath == "" {
			v.addError("logging.file_path", "file path is required for file output")
		}
	default:
		v.addError("logging.output", fmt.Sprintf("invalid log output '%s', must be one of: stdout, stderr, file, both", cfg.Output))
	}
}

func isValidAddress(addr string) bool {
	if addr == "" {
		return false
	}
	_, port, err := net.SplitHostPort(addr)
	return err == nil && port != ""
}

// Validate is a convenience function to validate a configuration.
func Validate(cfg *Config) error {
	return NewValidator().Validate(cfg)
}
