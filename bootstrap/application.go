package bootstrap

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/najoast/dining/config"
	"github.com/najoast/dining/core"
	"github.com/najoast/dining/metrics"
	"github.com/najoast/dining/philosopher"
	"github.com/najoast/dining/render"
	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	"go.uber.org/atomic"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ErrAlreadyRunning is returned when Run is called twice
var ErrAlreadyRunning = errors.New("application is already running")

const shutdownTimeout = 30 * time.Second

// Options contains what the configuration file does not describe
type Options struct {
	// ConfigFile is watched for timing and log level changes when Watch is set
	ConfigFile string
	Watch      bool

	// Overrides is applied to every reloaded configuration, e.g. to keep
	// command line flags in force over the file
	Overrides func(*config.Config)

	// Out receives the activity table, defaults to os.Stdout
	Out io.Writer

	// Clock drives the think and eat delays
	Clock clock.Clock

	// Durations replaces the random delays described by the configuration
	Durations philosopher.Durations
}

// DiningApplication seats the philosophers, renders their activity and
// manages the optional metrics server and configuration watcher
type DiningApplication struct {
	cfg *config.Config

	table     *core.Table
	dinner    *philosopher.Dinner
	printer   *render.Printer
	collector *metrics.Collector
	durations philosopher.Durations
	overrides func(*config.Config)

	lifecycle     *DefaultLifecycleManager
	dinnerService *DinnerService

	running      atomic.Bool
	shutdownChan chan os.Signal
	logger       *zap.Logger
}

// NewDiningApplication builds the application from a validated configuration
func NewDiningApplication(cfg *config.Config, opts Options) (*DiningApplication, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Annotate(err, "invalid configuration")
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}

	app := &DiningApplication{
		cfg:          cfg,
		durations:    opts.Durations,
		overrides:    opts.Overrides,
		lifecycle:    NewLifecycleManager(),
		shutdownChan: make(chan os.Signal, 1),
		logger:       log.L().With(zap.String("app", cfg.App.Name)),
	}
	if app.durations == nil {
		seed := cfg.Dining.Seed
		if seed == 0 {
			seed = time.Now().UnixNano()
		}
		app.durations = philosopher.NewRandomDurations(thinkRange(cfg.Timing), eatRange(cfg.Timing), seed)
	}

	app.printer = render.NewPrinter(opts.Out, cfg.Dining.Philosophers, cfg.App.Color)
	app.collector = metrics.NewCollector()

	table, err := core.NewTable(cfg.Dining.Philosophers,
		core.WithObserver(app.printer),
		core.WithObserver(app.collector),
		core.WithLogger(app.logger))
	if err != nil {
		return nil, err
	}
	app.table = table

	app.dinner, err = philosopher.NewDinner(table, philosopher.Options{
		MinMeals:  cfg.Dining.MinMeals,
		Durations: app.durations,
		Clock:     opts.Clock,
		Recorder:  app.collector,
		Logger:    app.logger,
	})
	if err != nil {
		return nil, err
	}

	if err := app.registerServices(opts); err != nil {
		return nil, err
	}
	return app, nil
}

func (app *DiningApplication) registerServices(opts Options) error {
	var deps []string

	if app.cfg.Monitor.Enabled {
		server := metrics.NewServer(app.cfg.MetricsAddress(), app.cfg.Monitor.MetricsPath, app.collector.Registry())
		if err := app.lifecycle.Register(NewMetricsService(server)); err != nil {
			return err
		}
		deps = append(deps, ServiceMetrics)
	}

	if opts.Watch && opts.ConfigFile != "" {
		watcher, err := config.NewWatcher(opts.ConfigFile, config.NewLoader())
		if err != nil {
			return errors.Annotate(err, "failed to watch configuration")
		}
		watcher.OnConfigChange(app.applyConfig)
		if err := app.lifecycle.Register(NewWatcherService(watcher)); err != nil {
			return err
		}
		deps = append(deps, ServiceWatcher)
	}

	app.dinnerService = NewDinnerService(app.dinner)
	return app.lifecycle.Register(app.dinnerService, deps...)
}

// applyConfig takes over the settings that can change while the dinner runs
func (app *DiningApplication) applyConfig(_, newConfig *config.Config) {
	if app.overrides != nil {
		cfg := *newConfig
		app.overrides(&cfg)
		newConfig = &cfg
	}
	if err := newConfig.Timing.Validate(); err != nil {
		app.logger.Warn("ignoring reloaded timing", zap.Error(err))
		return
	}

	if rd, ok := app.durations.(*philosopher.RandomDurations); ok {
		rd.SetRanges(thinkRange(newConfig.Timing), eatRange(newConfig.Timing))
		app.logger.Info("timing updated",
			zap.Duration("thinkMin", newConfig.Timing.ThinkMin),
			zap.Duration("thinkMax", newConfig.Timing.ThinkMax),
			zap.Duration("eatMin", newConfig.Timing.EatMin),
			zap.Duration("eatMax", newConfig.Timing.EatMax))
	}

	var level zapcore.Level
	if err := level.UnmarshalText([]byte(newConfig.Log.Level)); err == nil {
		log.SetLevel(level)
	}
}

// Run starts the services and blocks until the dinner is over, ctx is
// cancelled or the process is interrupted. The summary is printed once
// every philosopher has left the table.
func (app *DiningApplication) Run(ctx context.Context) error {
	if !app.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}

	signal.Notify(app.shutdownChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(app.shutdownChan)

	app.printer.PrintTitle()
	if err := app.lifecycle.Start(ctx); err != nil {
		return errors.Annotate(err, "failed to start services")
	}

	var runErr error
	select {
	case <-app.dinnerService.Done():
		runErr = app.dinnerService.Err()
	case sig := <-app.shutdownChan:
		app.logger.Info("received shutdown signal", zap.Stringer("signal", sig))
	case <-ctx.Done():
		runErr = ctx.Err()
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := app.lifecycle.Stop(stopCtx); err != nil && runErr == nil {
		runErr = errors.Annotate(err, "failed to stop services")
	}

	app.printer.PrintSummary(app.dinner.Stats())
	if err := app.printer.Err(); err != nil && runErr == nil {
		runErr = errors.Annotate(err, "failed to write activity")
	}
	return runErr
}

// Health returns the health of every registered service
func (app *DiningApplication) Health(ctx context.Context) map[string]HealthStatus {
	return app.lifecycle.Health(ctx)
}

// Lifecycle returns the lifecycle manager
func (app *DiningApplication) Lifecycle() *DefaultLifecycleManager {
	return app.lifecycle
}

// Table returns the shared table
func (app *DiningApplication) Table() *core.Table {
	return app.table
}

// Dinner returns the dinner runtime
func (app *DiningApplication) Dinner() *philosopher.Dinner {
	return app.dinner
}

// Collector returns the metrics collector
func (app *DiningApplication) Collector() *metrics.Collector {
	return app.collector
}

func thinkRange(t config.TimingConfig) philosopher.Range {
	return philosopher.Range{Min: t.ThinkMin, Max: t.ThinkMax}
}

func eatRange(t config.TimingConfig) philosopher.Range {
	return philosopher.Range{Min: t.EatMin, Max: t.EatMax}
}
