package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pingcap/errors"
	"github.com/stretchr/testify/require"
)

// fakeEnv replaces the loader's environment lookup
func fakeEnv(l *Loader, env map[string]string) *Loader {
	l.lookupEnv = func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
	return l
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write %s: %v", path, err)
	}
	return path
}

func TestDefaultConfigIsValid(t *testing.T) {
	config := DefaultConfig()
	if err := config.Validate(); err != nil {
		t.Fatalf("Default config validation failed: %v", err)
	}
	if config.Dining.MinMeals != 3 {
		t.Errorf("Expected 3 minimum meals, got %d", config.Dining.MinMeals)
	}
	if !config.IsDevelopment() {
		t.Error("Default environment should be development")
	}
	if config.MetricsAddress() != "127.0.0.1:9090" {
		t.Errorf("Unexpected metrics address %s", config.MetricsAddress())
	}
}

// TestConfigValidation tests configuration validation
func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr error
	}{
		{
			name:   "valid config",
			mutate: func(c *Config) {},
		},
		{
			name:    "invalid app name",
			mutate:  func(c *Config) { c.App.Name = "" },
			wantErr: ErrInvalidAppName,
		},
		{
			name:    "invalid environment",
			mutate:  func(c *Config) { c.App.Environment = "moon" },
			wantErr: ErrInvalidEnvironment,
		},
		{
			name:    "invalid log level",
			mutate:  func(c *Config) { c.Log.Level = "loud" },
			wantErr: ErrInvalidLogLevel,
		},
		{
			name:    "no philosophers",
			mutate:  func(c *Config) { c.Dining.Philosophers = 0 },
			wantErr: ErrInvalidPhilosophers,
		},
		{
			name:    "negative philosophers",
			mutate:  func(c *Config) { c.Dining.Philosophers = -1 },
			wantErr: ErrInvalidPhilosophers,
		},
		{
			name:    "no meals",
			mutate:  func(c *Config) { c.Dining.MinMeals = 0 },
			wantErr: ErrInvalidMinMeals,
		},
		{
			name:    "reversed think range",
			mutate:  func(c *Config) { c.Timing.ThinkMin, c.Timing.ThinkMax = time.Second, time.Millisecond },
			wantErr: ErrInvalidTiming,
		},
		{
			name:    "negative eat",
			mutate:  func(c *Config) { c.Timing.EatMin = -time.Second },
			wantErr: ErrInvalidTiming,
		},
		{
			name:   "zero delays",
			mutate: func(c *Config) { c.Timing = TimingConfig{} },
		},
		{
			name: "invalid port with monitor enabled",
			mutate: func(c *Config) {
				c.Monitor.Enabled = true
				c.Monitor.Port = 70000
			},
			wantErr: ErrInvalidPort,
		},
		{
			name:   "invalid port with monitor disabled",
			mutate: func(c *Config) { c.Monitor.Port = -1 },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			tt.mutate(config)
			err := config.Validate()
			if errors.Cause(err) != tt.wantErr {
				t.Errorf("Config.Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

// TestLoader tests configuration loading from YAML
func TestLoader(t *testing.T) {
	loader := fakeEnv(NewLoader(), nil)

	yamlContent := `
app:
  name: test-dinner
  color: true

log:
  level: debug

dining:
  philosophers: 7
  min_meals: 4

timing:
  think_min: 10ms
  think_max: 20ms
`
	yamlFile := writeFile(t, t.TempDir(), "dining.yaml", yamlContent)

	config, err := loader.Load(yamlFile)
	require.NoError(t, err)
	require.Equal(t, "test-dinner", config.App.Name)
	require.True(t, config.App.Color)
	require.Equal(t, LogLevelDebug, config.Log.Level)
	require.Equal(t, 7, config.Dining.Philosophers)
	require.Equal(t, 4, config.Dining.MinMeals)
	require.Equal(t, 10*time.Millisecond, config.Timing.ThinkMin)
	require.Equal(t, 20*time.Millisecond, config.Timing.ThinkMax)

	// keys missing from the file keep their defaults
	require.Equal(t, EnvDevelopment, config.App.Environment)
	require.Equal(t, 200*time.Millisecond, config.Timing.EatMin)
	require.Equal(t, "stderr", config.Log.Output)
}

func TestLoaderJSON(t *testing.T) {
	loader := fakeEnv(NewLoader(), nil)
	jsonFile := writeFile(t, t.TempDir(), "dining.json",
		`{"dining": {"philosophers": 3, "min_meals": 1}, "timing": {"eat_max": 1000000000}}`)

	config, err := loader.Load(jsonFile)
	require.NoError(t, err)
	require.Equal(t, 3, config.Dining.Philosophers)
	require.Equal(t, 1, config.Dining.MinMeals)
	require.Equal(t, time.Second, config.Timing.EatMax)
}

func TestLoaderInvalidFile(t *testing.T) {
	loader := fakeEnv(NewLoader(), nil)
	dir := t.TempDir()

	_, err := loader.Load(writeFile(t, dir, "dining.toml", "x = 1"))
	require.Equal(t, ErrUnsupportedFormat, errors.Cause(err))

	_, err = loader.Load(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)

	_, err = loader.Load(writeFile(t, dir, "broken.yaml", "dining: [1, 2"))
	require.Error(t, err)

	_, err = loader.Load(writeFile(t, dir, "zero.yaml", "dining:\n  philosophers: 0\n"))
	require.Equal(t, ErrInvalidPhilosophers, errors.Cause(err))

	_, err = loader.LoadFromFile("")
	require.Equal(t, ErrConfigFileNotFound, errors.Cause(err))
}

func TestLoaderEnvOverrides(t *testing.T) {
	loader := fakeEnv(NewLoader(), map[string]string{
		"DINING_PHILOSOPHERS":    "9",
		"DINING_MIN_MEALS":       "2",
		"DINING_LOG_LEVEL":       "WARN",
		"DINING_APP_COLOR":       "true",
		"DINING_MONITOR_ENABLED": "1",
		"DINING_MONITOR_PORT":    "9191",
		"DINING_THINK_MAX":       "2s",
		"DINING_SEED":            "42",
	})

	config, err := loader.Load("")
	require.NoError(t, err)
	require.Equal(t, 9, config.Dining.Philosophers)
	require.Equal(t, 2, config.Dining.MinMeals)
	require.Equal(t, LogLevelWarn, config.Log.Level)
	require.True(t, config.App.Color)
	require.True(t, config.Monitor.Enabled)
	require.Equal(t, 9191, config.Monitor.Port)
	require.Equal(t, 2*time.Second, config.Timing.ThinkMax)
	require.Equal(t, int64(42), config.Dining.Seed)
}

func TestLoaderEnvErrors(t *testing.T) {
	for key, val := range map[string]string{
		"DINING_PHILOSOPHERS":    "many",
		"DINING_APP_COLOR":       "perhaps",
		"DINING_EAT_MIN":         "soon",
		"DINING_SEED":            "x",
		"DINING_MONITOR_ENABLED": "nope",
	} {
		loader := fakeEnv(NewLoader(), map[string]string{key: val})
		_, err := loader.Read("")
		if err == nil || !strings.Contains(err.Error(), key) {
			t.Errorf("Expected error mentioning %s, got %v", key, err)
		}
	}

	loader := fakeEnv(NewLoader(), map[string]string{"DINING_PHILOSOPHERS": "-1"})
	config, err := loader.Read("")
	require.NoError(t, err)
	require.Equal(t, -1, config.Dining.Philosophers)
	require.Equal(t, ErrInvalidPhilosophers, errors.Cause(config.Validate()))
}

func TestLoaderEnvPrefix(t *testing.T) {
	loader := fakeEnv(NewLoader(), map[string]string{"PHILO_MIN_MEALS": "8"}).SetEnvPrefix("PHILO")
	config, err := loader.Load("")
	require.NoError(t, err)
	require.Equal(t, 8, config.Dining.MinMeals)
}

func TestLoaderFromReader(t *testing.T) {
	loader := NewLoader()
	config, err := loader.LoadFromReader(strings.NewReader("dining:\n  philosophers: 2\n"), FormatYAML)
	require.NoError(t, err)
	require.Equal(t, 2, config.Dining.Philosophers)

	_, err = loader.LoadFromReader(strings.NewReader("a = 1"), ConfigFormat("ini"))
	require.Equal(t, ErrUnsupportedFormat, errors.Cause(err))
}

func TestAutoLoad(t *testing.T) {
	dir := t.TempDir()
	loader := fakeEnv(NewLoader(), nil).SetSearchPaths([]string{dir})

	config, err := loader.AutoLoad()
	require.NoError(t, err)
	require.Equal(t, DefaultConfig(), config)

	writeFile(t, dir, "dining.yml", "dining:\n  philosophers: 11\n")
	config, err = loader.AutoLoad()
	require.NoError(t, err)
	require.Equal(t, 11, config.Dining.Philosophers)
}

func TestLoaderDefaultConfig(t *testing.T) {
	defaults := DefaultConfig()
	defaults.Dining.MinMeals = 10
	loader := fakeEnv(NewLoader(), nil).SetDefaultConfig(defaults)

	config, err := loader.Load("")
	require.NoError(t, err)
	require.Equal(t, 10, config.Dining.MinMeals)

	// the loader must not hand out its defaults
	config.Dining.MinMeals = 1
	require.Equal(t, 10, defaults.Dining.MinMeals)
}

func TestWatcherReload(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "dining.yaml", "timing:\n  eat_max: 300ms\n")

	watcher, err := NewWatcher(path, fakeEnv(NewLoader(), nil))
	require.NoError(t, err)
	watcher.SetDebounce(10 * time.Millisecond)
	require.Equal(t, 300*time.Millisecond, watcher.GetConfig().Timing.EatMax)

	changes := make(chan *Config, 4)
	watcher.OnConfigChange(func(_, newConfig *Config) {
		changes <- newConfig
	})
	require.NoError(t, watcher.Start())
	defer watcher.Stop()

	writeFile(t, dir, "dining.yaml", "timing:\n  eat_max: 400ms\n")

	select {
	case config := <-changes:
		require.Equal(t, 400*time.Millisecond, config.Timing.EatMax)
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for config reload")
	}
	require.Equal(t, 400*time.Millisecond, watcher.GetConfig().Timing.EatMax)
}

func TestWatcherManualReload(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "dining.yaml", "dining:\n  min_meals: 2\n")

	watcher, err := NewWatcher(path, fakeEnv(NewLoader(), nil))
	require.NoError(t, err)
	defer watcher.Stop()

	var calls int
	watcher.OnConfigChange(func(oldConfig, newConfig *Config) {
		calls++
		require.Equal(t, 2, oldConfig.Dining.MinMeals)
		require.Equal(t, 5, newConfig.Dining.MinMeals)
	})
	watcher.OnConfigChange(func(_, _ *Config) {
		panic("callback failure must not stop the reload")
	})

	writeFile(t, dir, "dining.yaml", "dining:\n  min_meals: 5\n")
	require.NoError(t, watcher.Reload())
	require.Equal(t, 1, calls)

	// invalid content keeps the previous configuration
	writeFile(t, dir, "dining.yaml", "dining:\n  min_meals: 0\n")
	require.Error(t, watcher.Reload())
	require.Equal(t, 5, watcher.GetConfig().Dining.MinMeals)
}

func TestNewWatcherErrors(t *testing.T) {
	_, err := NewWatcher("dining.ini", NewLoader())
	require.Equal(t, ErrUnsupportedFormat, errors.Cause(err))

	_, err = NewWatcher(filepath.Join(t.TempDir(), "missing.yaml"), NewLoader())
	require.Error(t, err)
}
