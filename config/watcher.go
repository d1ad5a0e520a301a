// Package config provides configuration watching and hot-reload functionality
package config

import (
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	"go.uber.org/zap"
)

const (
	defaultDebounce = 200 * time.Millisecond
	readdDelay      = time.Second
)

// Watcher watches a configuration file and reloads it on change
type Watcher struct {
	// Configuration file path
	configFile string

	// Configuration loader
	loader *Loader

	// Current configuration
	config   *Config
	configMu sync.RWMutex

	// File system watcher
	fsWatcher *fsnotify.Watcher

	// Event callbacks
	callbacks   []ConfigChangeCallback
	callbacksMu sync.RWMutex

	debounce time.Duration
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	logger   *zap.Logger
}

// ConfigChangeCallback is called when configuration changes
type ConfigChangeCallback func(oldConfig, newConfig *Config)

// NewWatcher creates a watcher and loads the initial configuration
func NewWatcher(configFile string, loader *Loader) (*Watcher, error) {
	if _, err := formatOf(configFile); err != nil {
		return nil, err
	}

	config, err := loader.LoadFromFile(configFile)
	if err != nil {
		return nil, errors.Annotate(err, "failed to load initial config")
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Annotate(err, "failed to create file system watcher")
	}

	return &Watcher{
		configFile: configFile,
		loader:     loader,
		config:     config,
		fsWatcher:  fsWatcher,
		debounce:   defaultDebounce,
		done:       make(chan struct{}),
		logger:     log.L().With(zap.String("file", configFile)),
	}, nil
}

// SetDebounce sets how long the watcher waits for writes to settle
func (w *Watcher) SetDebounce(d time.Duration) {
	w.debounce = d
}

// Start starts watching the configuration file
func (w *Watcher) Start() error {
	if err := w.fsWatcher.Add(w.configFile); err != nil {
		return errors.Annotate(err, "failed to watch config file")
	}

	w.wg.Add(1)
	go w.watchLoop()

	return nil
}

// Stop stops watching and waits for the watch loop to exit
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.done)
		err = w.fsWatcher.Close()
		w.wg.Wait()
	})
	return err
}

// GetConfig returns the current configuration
func (w *Watcher) GetConfig() *Config {
	w.configMu.RLock()
	defer w.configMu.RUnlock()
	return w.config
}

// OnConfigChange registers a callback for configuration changes
func (w *Watcher) OnConfigChange(callback ConfigChangeCallback) {
	w.callbacksMu.Lock()
	defer w.callbacksMu.Unlock()
	w.callbacks = append(w.callbacks, callback)
}

// Reload manually reloads the configuration
func (w *Watcher) Reload() error {
	return w.reloadConfig()
}

// watchLoop watches for file system events
func (w *Watcher) watchLoop() {
	defer w.wg.Done()

	// Timers are only ever read from this goroutine
	var (
		reload      *time.Timer
		reloadC     <-chan time.Time
		readd       *time.Timer
		readdC      <-chan time.Time
		resetReload = func() {
			if reload != nil {
				reload.Stop()
			}
			reload = time.NewTimer(w.debounce)
			reloadC = reload.C
		}
	)
	defer func() {
		if reload != nil {
			reload.Stop()
		}
		if readd != nil {
			readd.Stop()
		}
	}()

	for {
		select {
		case <-w.done:
			return

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if event.Name != w.configFile {
				continue
			}

			switch {
			case event.Has(fsnotify.Write) || event.Has(fsnotify.Create):
				resetReload()
			case event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename):
				w.logger.Info("config file was removed or renamed")
				// editors often replace the file, watch it again once it is back
				if readd == nil {
					readd = time.NewTimer(readdDelay)
					readdC = readd.C
				}
			}

		case <-reloadC:
			reloadC = nil
			if err := w.reloadConfig(); err != nil {
				w.logger.Warn("failed to reload config", zap.Error(err))
			}

		case <-readdC:
			readd, readdC = nil, nil
			if err := w.fsWatcher.Add(w.configFile); err != nil {
				w.logger.Warn("failed to watch config file again", zap.Error(err))
				continue
			}
			resetReload()

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("config watcher error", zap.Error(err))
		}
	}
}

// reloadConfig reloads the configuration from file
func (w *Watcher) reloadConfig() error {
	newConfig, err := w.loader.LoadFromFile(w.configFile)
	if err != nil {
		return errors.Annotate(err, "failed to reload config")
	}

	w.configMu.Lock()
	oldConfig := w.config
	w.config = newConfig
	w.configMu.Unlock()

	w.notifyCallbacks(oldConfig, newConfig)

	w.logger.Info("configuration reloaded")
	return nil
}

// notifyCallbacks runs the registered callbacks in registration order
func (w *Watcher) notifyCallbacks(oldConfig, newConfig *Config) {
	w.callbacksMu.RLock()
	callbacks := make([]ConfigChangeCallback, len(w.callbacks))
	copy(callbacks, w.callbacks)
	w.callbacksMu.RUnlock()

	for _, callback := range callbacks {
		func() {
			defer func() {
				if r := recover(); r != nil {
					w.logger.Error("config change callback panicked", zap.Any("panic", r))
				}
			}()
			callback(oldConfig, newConfig)
		}()
	}
}
