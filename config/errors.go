// Package config provides error definitions for configuration management
package config

import "github.com/pingcap/errors"

// Configuration validation errors
var (
	ErrInvalidAppName      = errors.New("invalid application name")
	ErrInvalidEnvironment  = errors.New("invalid environment")
	ErrInvalidLogLevel     = errors.New("invalid log level")
	ErrInvalidPhilosophers = errors.New("number of philosophers must be positive")
	ErrInvalidMinMeals     = errors.New("minimum meals must be positive")
	ErrInvalidTiming       = errors.New("invalid think or eat duration range")
	ErrInvalidPort         = errors.New("invalid port number")
)

// Configuration loading errors
var (
	ErrConfigFileNotFound = errors.New("configuration file not found")
	ErrUnsupportedFormat  = errors.New("unsupported configuration format")
)
