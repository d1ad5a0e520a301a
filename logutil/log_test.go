package logutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/najoast/dining/config"
	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestBuildLoggerLevels(t *testing.T) {
	for level, want := range map[config.LogLevel]zapcore.Level{
		config.LogLevelDebug: zapcore.DebugLevel,
		config.LogLevelInfo:  zapcore.InfoLevel,
		config.LogLevelWarn:  zapcore.WarnLevel,
		config.LogLevelError: zapcore.ErrorLevel,
	} {
		lg, props, err := BuildLogger(config.LogConfig{Level: level})
		require.NoError(t, err)
		require.NotNil(t, lg)
		require.Equal(t, want, props.Level.Level())
	}
}

func TestBuildLoggerInvalidLevel(t *testing.T) {
	_, _, err := BuildLogger(config.LogConfig{Level: "chatty"})
	require.Equal(t, config.ErrInvalidLogLevel, errors.Cause(err))
}

func TestBuildLoggerFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dining.log")
	cfg := config.DefaultConfig().Log
	cfg.Output = path
	cfg.Format = "json"

	lg, _, err := BuildLogger(cfg)
	require.NoError(t, err)
	lg.Info("hello from the table")
	require.NoError(t, lg.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "hello from the table")
}

func TestInitLoggerReplacesGlobal(t *testing.T) {
	before := log.L()
	beforeProps := &log.ZapProperties{Level: zap.NewAtomicLevelAt(log.GetLevel())}
	defer log.ReplaceGlobals(before, beforeProps)

	require.NoError(t, InitLogger(config.LogConfig{Level: config.LogLevelWarn, Output: "stdout"}))
	require.NotSame(t, before, log.L())
	require.Equal(t, zapcore.WarnLevel, log.GetLevel())
}
