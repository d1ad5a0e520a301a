// Package logutil initializes the process wide logger.
package logutil

import (
	"os"

	"github.com/najoast/dining/config"
	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// BuildLogger builds a logger for cfg without installing it.
//
// Output "stdout" and "stderr" write to the matching stream, any other
// value is a file path rotated according to cfg.Rotation.
func BuildLogger(cfg config.LogConfig) (*zap.Logger, *log.ZapProperties, error) {
	if !cfg.Level.IsValid() {
		return nil, nil, errors.Annotatef(config.ErrInvalidLogLevel, "level %q", cfg.Level)
	}

	logCfg := &log.Config{
		Level:  cfg.Level.String(),
		Format: cfg.Format,
	}
	if logCfg.Format == "" {
		logCfg.Format = "text"
	}

	var (
		lg    *zap.Logger
		props *log.ZapProperties
		err   error
	)
	switch cfg.Output {
	case "", "stderr":
		lg, props, err = log.InitLoggerWithWriteSyncer(logCfg, zapcore.Lock(os.Stderr), zapcore.Lock(os.Stderr))
	case "stdout":
		lg, props, err = log.InitLoggerWithWriteSyncer(logCfg, zapcore.Lock(os.Stdout), zapcore.Lock(os.Stderr))
	default:
		logCfg.File = log.FileLogConfig{
			Filename:   cfg.Output,
			MaxSize:    cfg.Rotation.MaxSize,
			MaxDays:    cfg.Rotation.MaxAge,
			MaxBackups: cfg.Rotation.MaxBackups,
		}
		lg, props, err = log.InitLogger(logCfg)
	}
	if err != nil {
		return nil, nil, errors.Trace(err)
	}
	return lg, props, nil
}

// InitLogger builds a logger for cfg and installs it as the global logger
// returned by log.L().
func InitLogger(cfg config.LogConfig) error {
	lg, props, err := BuildLogger(cfg)
	if err != nil {
		return err
	}
	log.ReplaceGlobals(lg, props)
	return nil
}
