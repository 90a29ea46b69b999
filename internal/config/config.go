package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete configuration of a tilegraph run.
type Config struct {
	Problem ProblemConfig `yaml:"problem"`
	Grid    GridConfig    `yaml:"grid"`
	Runtime RuntimeConfig `yaml:"runtime"`
	Network NetworkConfig `yaml:"network"`
	Status  StatusConfig  `yaml:"status"`
	Logging LoggingConfig `yaml:"logging"`
}

// ProblemConfig describes the matrix handed to a kernel graph.
type ProblemConfig struct {
	N     int   `yaml:"n" env:"TG_PROBLEM_N"`
	M     int   `yaml:"m" env:"TG_PROBLEM_M"`
	MB    int   `yaml:"mb" env:"TG_PROBLEM_MB"`
	NB    int   `yaml:"nb" env:"TG_PROBLEM_NB"`
	Seed  int64 `yaml:"seed" env:"TG_PROBLEM_SEED"`
	Check bool  `yaml:"check" env:"TG_PROBLEM_CHECK"`
}

// GridConfig describes the process grid.
type GridConfig struct {
	P     int `yaml:"p" env:"TG_GRID_P"`
	Q     int `yaml:"q" env:"TG_GRID_Q"`
	Nodes int `yaml:"nodes" env:"TG_GRID_NODES"`
}

// RuntimeConfig holds per-rank scheduler settings.
type RuntimeConfig struct {
	Cores           int    `yaml:"cores" env:"TG_RUNTIME_CORES"`
	StatusReduction string `yaml:"status_reduction" env:"TG_RUNTIME_STATUS_REDUCTION"`
}

// NetworkConfig switches a process into multi-process mode. When Enabled is
// false every rank runs in-process.
type NetworkConfig struct {
	Enabled     bool          `yaml:"enabled" env:"TG_NETWORK_ENABLED"`
	Rank        int           `yaml:"rank" env:"TG_NETWORK_RANK"`
	HubAddress  string        `yaml:"hub_address" env:"TG_NETWORK_HUB_ADDRESS"`
	DialTimeout time.Duration `yaml:"dial_timeout" env:"TG_NETWORK_DIAL_TIMEOUT"`
}

// StatusConfig holds the optional status API settings.
type StatusConfig struct {
	Enabled bool   `yaml:"enabled" env:"TG_STATUS_ENABLED"`
	Address string `yaml:"address" env:"TG_STATUS_ADDRESS"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level    string `yaml:"level" env:"TG_LOG_LEVEL"`
	Format   string `yaml:"format" env:"TG_LOG_FORMAT"`
	Output   string `yaml:"output" env:"TG_LOG_OUTPUT"`
	FilePath string `yaml:"file_path" env:"TG_LOG_FILE_PATH"`
	MaxSize  int    `yaml:"max_size" env:"TG_LOG_MAX_SIZE"`
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		Problem: ProblemConfig{
			N:    1000,
			MB:   100,
			NB:   100,
			Seed: 3872,
		},
		Grid: GridConfig{
			P:     1,
			Nodes: 1,
		},
		Runtime: RuntimeConfig{
			Cores:           4,
			StatusReduction: "sum",
		},
		Network: NetworkConfig{
			HubAddress:  "127.0.0.1:7946",
			DialTimeout: 30 * time.Second,
		},
		Status: StatusConfig{
			Address: ":8089",
		},
		Logging: LoggingConfig{
			Level:   "info",
			Format:  "console",
			Output:  "stderr",
			MaxSize: 100,
		},
	}
}

// Derive fills in parameters that default relative to others: M follows N,
// Q follows Nodes/P.
func (c *Config) Derive() {
	if c.Problem.M <= 0 {
		c.Problem.M = c.Problem.N
	}
	if c.Grid.P <= 0 {
		c.Grid.P = 1
	}
	if c.Grid.Nodes <= 0 {
		c.Grid.Nodes = 1
	}
	if c.Grid.Q <= 0 {
		c.Grid.Q = c.Grid.Nodes / c.Grid.P
	}
}

// Loader handles configuration loading from multiple sources.
type Loader struct {
	configPath string
	envPrefix  string
	cmdArgs    map[string]string
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	return &Loader{
		envPrefix: "TG_",
		cmdArgs:   make(map[string]string),
	}
}

// WithConfigPath sets the path to the YAML configuration file.
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix sets the prefix for environment variables.
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithCmdArgs sets command-line arguments for configuration override.
// Keys use dot notation, e.g. "grid.p" or "problem.check".
func (l *Loader) WithCmdArgs(args map[string]string) *Loader {
	l.cmdArgs = args
	return l
}

// Load loads configuration from all sources with proper precedence:
// defaults < YAML file < environment variables < command-line flags
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	if err := l.applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("apply env overrides: %w", err)
	}

	if err := l.applyCmdOverrides(cfg); err != nil {
		return nil, fmt.Errorf("apply flag overrides: %w", err)
	}

	cfg.Derive()
	return cfg, nil
}

// loadFromFile loads configuration from a YAML file.
func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // File doesn't exist, use defaults
		}
		return fmt.Errorf("read %s: %w", l.configPath, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", l.configPath, err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func (l *Loader) applyEnvOverrides(cfg *Config) error {
	return l.applyEnvToStruct(reflect.ValueOf(cfg).Elem())
}

// applyEnvToStruct recursively applies environment variables to struct fields.
func (l *Loader) applyEnvToStruct(v reflect.Value) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		if field.Kind() == reflect.Struct {
			if err := l.applyEnvToStruct(field); err != nil {
				return err
			}
			continue
		}

		envTag := fieldType.Tag.Get("env")
		if envTag == "" {
			continue
		}
		if l.envPrefix != "" && l.envPrefix != "TG_" {
			envTag = l.envPrefix + strings.TrimPrefix(envTag, "TG_")
		}

		envValue := os.Getenv(envTag)
		if envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("field %s from %s: %w", fieldType.Name, envTag, err)
		}
	}

	return nil
}

// applyCmdOverrides applies command-line argument overrides to the configuration.
func (l *Loader) applyCmdOverrides(cfg *Config) error {
	for key, value := range l.cmdArgs {
		if err := l.setConfigValue(cfg, key, value); err != nil {
			return fmt.Errorf("set %s: %w", key, err)
		}
	}
	return nil
}

// setConfigValue sets a configuration value by dot-notation path. Path
// segments match either the yaml tag or the Go field name.
func (l *Loader) setConfigValue(cfg *Config, path, value string) error {
	parts := strings.Split(path, ".")
	v := reflect.ValueOf(cfg).Elem()

	for i, part := range parts {
		field := fieldByKey(v, part)
		if !field.IsValid() {
			return fmt.Errorf("unknown config path: %s", path)
		}

		if i == len(parts)-1 {
			return setFieldValue(field, value)
		}

		if field.Kind() != reflect.Struct {
			return fmt.Errorf("expected %s to be a struct, got %s", part, field.Kind())
		}
		v = field
	}

	return nil
}

func fieldByKey(v reflect.Value, key string) reflect.Value {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		tag := strings.Split(f.Tag.Get("yaml"), ",")[0]
		if tag == key || strings.EqualFold(f.Name, strings.ReplaceAll(key, "_", "")) {
			return v.Field(i)
		}
	}
	return reflect.Value{}
}

// setFieldValue sets a reflect.Value from a string value.
func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return fmt.Errorf("field cannot be set")
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return fmt.Errorf("invalid duration: %w", err)
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer: %w", err)
			}
			field.SetInt(i)
		}

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean: %w", err)
		}
		field.SetBool(b)

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid float: %w", err)
		}
		field.SetFloat(f)

	default:
		return fmt.Errorf("unsupported field type: %s", field.Kind())
	}

	return nil
}

// Serialize serializes the configuration to YAML bytes.
func (c *Config) Serialize() ([]byte, error) {
	return yaml.Marshal(c)
}

// ParseConfig parses a YAML configuration from bytes.
func ParseConfig(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// LoadFromFile loads configuration from a YAML file path.
func LoadFromFile(path string) (*Config, error) {
	return NewLoader().WithConfigPath(path).Load()
}

// Clone creates a deep copy of the configuration.
func (c *Config) Clone() *Config {
	data, _ := c.Serialize()
	clone, _ := ParseConfig(data)
	return clone
}
