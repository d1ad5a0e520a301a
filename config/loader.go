// Package config provides configuration loading and parsing functionality
package config

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pingcap/errors"
	"gopkg.in/yaml.v3"
)

// ConfigFormat represents the configuration file format
type ConfigFormat string

const (
	FormatYAML ConfigFormat = "yaml"
	FormatJSON ConfigFormat = "json"
)

// Loader handles configuration loading from various sources
type Loader struct {
	// Configuration search paths
	searchPaths []string

	// Environment variable prefix
	envPrefix string

	// Default configuration
	defaultConfig *Config

	// lookupEnv is os.LookupEnv, replaceable in tests
	lookupEnv func(string) (string, bool)
}

// NewLoader creates a new configuration loader
func NewLoader() *Loader {
	searchPaths := []string{
		".",
		"./config",
		"/etc/dining",
	}
	if home, err := os.UserHomeDir(); err == nil {
		searchPaths = append(searchPaths, filepath.Join(home, ".dining"))
	}

	return &Loader{
		searchPaths:   searchPaths,
		envPrefix:     "DINING",
		defaultConfig: DefaultConfig(),
		lookupEnv:     os.LookupEnv,
	}
}

// SetSearchPaths sets the configuration file search paths
func (l *Loader) SetSearchPaths(paths []string) *Loader {
	l.searchPaths = paths
	return l
}

// SetEnvPrefix sets the environment variable prefix
func (l *Loader) SetEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// SetDefaultConfig sets the default configuration
func (l *Loader) SetDefaultConfig(config *Config) *Loader {
	l.defaultConfig = config
	return l
}

// Load reads the configuration from filename (defaults only when empty),
// applies environment overrides and validates the result
func (l *Loader) Load(filename string) (*Config, error) {
	config, err := l.Read(filename)
	if err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, errors.Annotate(err, "configuration validation failed")
	}
	return config, nil
}

// Read is Load without validation, for callers that apply further
// overrides (e.g. command line flags) before validating
func (l *Loader) Read(filename string) (*Config, error) {
	config := l.defaults()

	if filename != "" {
		format, err := formatOf(filename)
		if err != nil {
			return nil, err
		}
		data, err := os.ReadFile(filename)
		if err != nil {
			return nil, errors.Annotatef(err, "failed to read config file %s", filename)
		}
		if err := parseConfig(data, format, config); err != nil {
			return nil, errors.Annotatef(err, "failed to parse config file %s", filename)
		}
	}

	if err := l.loadFromEnv(config); err != nil {
		return nil, errors.Annotate(err, "failed to load config from environment")
	}
	return config, nil
}

// LoadFromFile loads and validates configuration from a specific file
func (l *Loader) LoadFromFile(filename string) (*Config, error) {
	if filename == "" {
		return nil, errors.Annotate(ErrConfigFileNotFound, "empty file name")
	}
	return l.Load(filename)
}

// LoadFromReader loads configuration from an io.Reader, on top of defaults
func (l *Loader) LoadFromReader(reader io.Reader, format ConfigFormat) (*Config, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, errors.Annotate(err, "failed to read configuration data")
	}

	config := l.defaults()
	if err := parseConfig(data, format, config); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, errors.Annotate(err, "configuration validation failed")
	}
	return config, nil
}

// AutoLoad discovers a configuration file in the search paths and loads
// it, falling back to defaults when none exists
func (l *Loader) AutoLoad() (*Config, error) {
	configFile, err := l.findConfigFile()
	if err != nil && errors.Cause(err) != ErrConfigFileNotFound {
		return nil, err
	}
	return l.Load(configFile)
}

// findConfigFile searches for configuration files in search paths
func (l *Loader) findConfigFile() (string, error) {
	filenames := []string{
		"dining.yaml", "dining.yml", "dining.json",
	}

	for _, searchPath := range l.searchPaths {
		for _, filename := range filenames {
			fullPath := filepath.Join(searchPath, filename)
			if _, err := os.Stat(fullPath); err == nil {
				return fullPath, nil
			}
		}
	}

	return "", ErrConfigFileNotFound
}

func (l *Loader) defaults() *Config {
	base := l.defaultConfig
	if base == nil {
		base = DefaultConfig()
	}
	// Config holds no reference types, a value copy is a deep copy
	config := *base
	return &config
}

func formatOf(filename string) (ConfigFormat, error) {
	switch ext := strings.ToLower(filepath.Ext(filename)); ext {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	default:
		return "", errors.Annotatef(ErrUnsupportedFormat, "extension %q", ext)
	}
}

// parseConfig decodes data on top of config, so keys missing from the
// document keep their current values
func parseConfig(data []byte, format ConfigFormat, config *Config) error {
	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(data, config); err != nil {
			return errors.Annotate(err, "failed to parse YAML config")
		}
	case FormatJSON:
		if err := json.Unmarshal(data, config); err != nil {
			return errors.Annotate(err, "failed to parse JSON config")
		}
	default:
		return errors.Annotatef(ErrUnsupportedFormat, "format %q", format)
	}
	return nil
}

// loadFromEnv loads configuration overrides from environment variables
func (l *Loader) loadFromEnv(config *Config) error {
	strs := map[string]*string{
		"_APP_NAME":        &config.App.Name,
		"_LOG_FORMAT":      &config.Log.Format,
		"_LOG_OUTPUT":      &config.Log.Output,
		"_MONITOR_ADDRESS": &config.Monitor.Address,
		"_MONITOR_PATH":    &config.Monitor.MetricsPath,
	}
	for key, dst := range strs {
		if val, ok := l.env(key); ok {
			*dst = val
		}
	}
	if val, ok := l.env("_APP_ENVIRONMENT"); ok {
		config.App.Environment = Environment(val)
	}
	if val, ok := l.env("_LOG_LEVEL"); ok {
		config.Log.Level = LogLevel(strings.ToLower(val))
	}

	bools := map[string]*bool{
		"_APP_COLOR":       &config.App.Color,
		"_MONITOR_ENABLED": &config.Monitor.Enabled,
	}
	for key, dst := range bools {
		if val, ok := l.env(key); ok {
			b, err := strconv.ParseBool(val)
			if err != nil {
				return errors.Annotatef(err, "%s%s", l.envPrefix, key)
			}
			*dst = b
		}
	}

	ints := map[string]*int{
		"_PHILOSOPHERS": &config.Dining.Philosophers,
		"_MIN_MEALS":    &config.Dining.MinMeals,
		"_MONITOR_PORT": &config.Monitor.Port,
	}
	for key, dst := range ints {
		if val, ok := l.env(key); ok {
			n, err := strconv.Atoi(val)
			if err != nil {
				return errors.Annotatef(err, "%s%s", l.envPrefix, key)
			}
			*dst = n
		}
	}
	if val, ok := l.env("_SEED"); ok {
		seed, err := strconv.ParseInt(val, 10, 64)
		if err != nil {
			return errors.Annotatef(err, "%s_SEED", l.envPrefix)
		}
		config.Dining.Seed = seed
	}

	durations := map[string]*time.Duration{
		"_THINK_MIN": &config.Timing.ThinkMin,
		"_THINK_MAX": &config.Timing.ThinkMax,
		"_EAT_MIN":   &config.Timing.EatMin,
		"_EAT_MAX":   &config.Timing.EatMax,
	}
	for key, dst := range durations {
		if val, ok := l.env(key); ok {
			d, err := time.ParseDuration(val)
			if err != nil {
				return errors.Annotatef(err, "%s%s", l.envPrefix, key)
			}
			*dst = d
		}
	}

	return nil
}

func (l *Loader) env(suffix string) (string, bool) {
	val, ok := l.lookupEnv(l.envPrefix + suffix)
	if !ok || val == "" {
		return "", false
	}
	return val, true
}
