// Package config provides configuration management for the dining simulator
package config

import (
	"net"
	"strconv"
	"time"
)

// Environment represents the deployment environment
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvTesting     Environment = "testing"
	EnvProduction  Environment = "production"
)

// String returns the string representation of Environment
func (e Environment) String() string {
	return string(e)
}

// IsValid checks if the environment is valid
func (e Environment) IsValid() bool {
	switch e {
	case EnvDevelopment, EnvTesting, EnvProduction:
		return true
	default:
		return false
	}
}

// LogLevel represents the logging level
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
	LogLevelFatal LogLevel = "fatal"
)

// String returns the string representation of LogLevel
func (l LogLevel) String() string {
	return string(l)
}

// IsValid checks if the log level is valid
func (l LogLevel) IsValid() bool {
	switch l {
	case LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError, LogLevelFatal:
		return true
	default:
		return false
	}
}

// Config represents the complete simulator configuration
type Config struct {
	// Application configuration
	App AppConfig `yaml:"app" json:"app"`

	// Logging configuration
	Log LogConfig `yaml:"log" json:"log"`

	// Table and completion configuration
	Dining DiningConfig `yaml:"dining" json:"dining"`

	// Think and eat delays
	Timing TimingConfig `yaml:"timing" json:"timing"`

	// Monitoring configuration
	Monitor MonitorConfig `yaml:"monitor" json:"monitor"`
}

// AppConfig contains application-level configuration
type AppConfig struct {
	// Application name
	Name string `yaml:"name" json:"name"`

	// Deployment environment
	Environment Environment `yaml:"environment" json:"environment"`

	// Color the eating cells of the activity table
	Color bool `yaml:"color" json:"color"`
}

// LogConfig contains logging configuration
type LogConfig struct {
	// Log level
	Level LogLevel `yaml:"level" json:"level"`

	// Log format (json, text)
	Format string `yaml:"format" json:"format"`

	// Output destination (stdout, stderr, file path)
	Output string `yaml:"output" json:"output"`

	// Log rotation configuration, used when Output is a file
	Rotation LogRotationConfig `yaml:"rotation" json:"rotation"`
}

// LogRotationConfig contains log rotation settings
type LogRotationConfig struct {
	// Maximum file size in MB
	MaxSize int `yaml:"max_size" json:"max_size"`

	// Maximum number of old files to retain
	MaxBackups int `yaml:"max_backups" json:"max_backups"`

	// Maximum age in days
	MaxAge int `yaml:"max_age" json:"max_age"`
}

// DiningConfig describes the table
type DiningConfig struct {
	// Number of philosophers around the table
	Philosophers int `yaml:"philosophers" json:"philosophers"`

	// Meals every philosopher must finish before the simulation ends
	MinMeals int `yaml:"min_meals" json:"min_meals"`

	// Seed for the random delays, 0 picks one from the clock
	Seed int64 `yaml:"seed" json:"seed"`
}

// TimingConfig bounds the random think and eat delays
type TimingConfig struct {
	ThinkMin time.Duration `yaml:"think_min" json:"think_min"`
	ThinkMax time.Duration `yaml:"think_max" json:"think_max"`
	EatMin   time.Duration `yaml:"eat_min" json:"eat_min"`
	EatMax   time.Duration `yaml:"eat_max" json:"eat_max"`
}

// MonitorConfig contains monitoring configuration
type MonitorConfig struct {
	// Enable the metrics HTTP server
	Enabled bool `yaml:"enabled" json:"enabled"`

	// HTTP server address
	Address string `yaml:"address" json:"address"`

	// HTTP server port
	Port int `yaml:"port" json:"port"`

	// Metrics endpoint path
	MetricsPath string `yaml:"metrics_path" json:"metrics_path"`
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		App: AppConfig{
			Name:        "dining",
			Environment: EnvDevelopment,
			Color:       false,
		},
		Log: LogConfig{
			Level:  LogLevelInfo,
			Format: "text",
			Output: "stderr",
			Rotation: LogRotationConfig{
				MaxSize:    100,
				MaxBackups: 3,
				MaxAge:     7,
			},
		},
		Dining: DiningConfig{
			Philosophers: 5,
			MinMeals:     3,
		},
		Timing: TimingConfig{
			ThinkMin: 200 * time.Millisecond,
			ThinkMax: time.Second,
			EatMin:   200 * time.Millisecond,
			EatMax:   500 * time.Millisecond,
		},
		Monitor: MonitorConfig{
			Enabled:     false,
			Address:     "127.0.0.1",
			Port:        9090,
			MetricsPath: "/metrics",
		},
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	// Validate app config
	if c.App.Name == "" {
		return ErrInvalidAppName
	}
	if !c.App.Environment.IsValid() {
		return ErrInvalidEnvironment
	}

	// Validate log config
	if !c.Log.Level.IsValid() {
		return ErrInvalidLogLevel
	}

	// Validate dining config
	if c.Dining.Philosophers <= 0 {
		return ErrInvalidPhilosophers
	}
	if c.Dining.MinMeals <= 0 {
		return ErrInvalidMinMeals
	}
	if err := c.Timing.Validate(); err != nil {
		return err
	}

	// Validate monitor config
	if c.Monitor.Enabled && (c.Monitor.Port <= 0 || c.Monitor.Port > 65535) {
		return ErrInvalidPort
	}

	return nil
}

// Validate checks that both delay ranges are non negative and ordered
func (t TimingConfig) Validate() error {
	if t.ThinkMin < 0 || t.ThinkMax < t.ThinkMin || t.EatMin < 0 || t.EatMax < t.EatMin {
		return ErrInvalidTiming
	}
	return nil
}

// IsDevelopment returns true if the environment is development
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == EnvDevelopment
}

// MetricsAddress returns host:port of the metrics server
func (c *Config) MetricsAddress() string {
	return net.JoinHostPort(c.Monitor.Address, strconv.Itoa(c.Monitor.Port))
}
