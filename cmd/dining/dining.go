package main

import (
	"context"
	"net"
	"strconv"
	"time"

	"github.com/najoast/dining/bootstrap"
	"github.com/najoast/dining/config"
	"github.com/najoast/dining/logutil"
	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

// options defines flags for the dining command.
type options struct {
	cfg *config.Config

	configFile  string
	metricsAddr string
	watch       bool

	// overrides re-applies the command line flags, set by complete
	overrides func(*config.Config)
}

func newOptions() *options {
	return &options{
		cfg: config.DefaultConfig(),
	}
}

// addFlags binds the command line flags to the default configuration, so
// the help output shows the effective defaults.
func (o *options) addFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.configFile, "config", "", "Path of the configuration file (yaml or json)")
	cmd.Flags().IntVar(&o.cfg.Dining.MinMeals, "min-meals", o.cfg.Dining.MinMeals, "meals every philosopher must eat before the dinner ends")
	cmd.Flags().Int64Var(&o.cfg.Dining.Seed, "seed", o.cfg.Dining.Seed, "seed for the random delays, 0 uses the current time")
	cmd.Flags().DurationVar(&o.cfg.Timing.ThinkMin, "think-min", o.cfg.Timing.ThinkMin, "shortest thinking time")
	cmd.Flags().DurationVar(&o.cfg.Timing.ThinkMax, "think-max", o.cfg.Timing.ThinkMax, "longest thinking time")
	cmd.Flags().DurationVar(&o.cfg.Timing.EatMin, "eat-min", o.cfg.Timing.EatMin, "shortest eating time")
	cmd.Flags().DurationVar(&o.cfg.Timing.EatMax, "eat-max", o.cfg.Timing.EatMax, "longest eating time")
	cmd.Flags().StringVar((*string)(&o.cfg.Log.Level), "log-level", string(o.cfg.Log.Level), "log level (etc: debug|info|warn|error)")
	cmd.Flags().StringVar(&o.cfg.Log.Output, "log-file", o.cfg.Log.Output, "log file path, or stdout/stderr")
	cmd.Flags().BoolVar(&o.cfg.App.Color, "color", o.cfg.App.Color, "highlight eating philosophers")
	cmd.Flags().StringVar(&o.metricsAddr, "metrics-addr", "", "serve prometheus metrics on this host:port")
	cmd.Flags().BoolVar(&o.watch, "watch", false, "reload timing and log level when the configuration file changes")
}

// complete layers the configuration file, the environment, the flags that
// were set and the positional table size, then validates the result.
func (o *options) complete(cmd *cobra.Command, args []string) error {
	cfg, err := config.NewLoader().Read(o.configFile)
	if err != nil {
		return errors.Trace(err)
	}

	overrides, err := o.flagOverrides(cmd)
	if err != nil {
		return err
	}
	overrides(cfg)

	if len(args) == 1 {
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return errors.Annotatef(config.ErrInvalidPhilosophers, "%q is not a number", args[0])
		}
		cfg.Dining.Philosophers = n
	}
	if o.watch && o.configFile == "" {
		return errors.New("--watch needs --config")
	}

	if err := cfg.Validate(); err != nil {
		return errors.Annotatef(err, "%d philosophers", cfg.Dining.Philosophers)
	}
	o.cfg = cfg
	o.overrides = overrides
	return nil
}

// flagOverrides captures the flags set on the command line as a function
// applying them to a configuration. It runs once on the loaded configuration
// and again on every reload, so a saved file never undoes a flag.
func (o *options) flagOverrides(cmd *cobra.Command) (func(*config.Config), error) {
	flags := *o.cfg

	var (
		names []string
		host  string
		port  int
	)
	cmd.Flags().Visit(func(flag *pflag.Flag) {
		switch flag.Name {
		case "min-meals", "seed", "think-min", "think-max", "eat-min", "eat-max",
			"log-level", "log-file", "color", "metrics-addr":
			names = append(names, flag.Name)
		case "config", "watch":
		default:
			log.Panic("unknown flag, please report a bug", zap.String("flagName", flag.Name))
		}
	})

	if cmd.Flags().Changed("metrics-addr") {
		h, p, err := net.SplitHostPort(o.metricsAddr)
		if err != nil {
			return nil, errors.Annotate(err, "--metrics-addr")
		}
		host = h
		if port, err = strconv.Atoi(p); err != nil {
			return nil, errors.Annotate(config.ErrInvalidPort, o.metricsAddr)
		}
	}

	return func(cfg *config.Config) {
		for _, name := range names {
			switch name {
			case "min-meals":
				cfg.Dining.MinMeals = flags.Dining.MinMeals
			case "seed":
				cfg.Dining.Seed = flags.Dining.Seed
			case "think-min":
				cfg.Timing.ThinkMin = flags.Timing.ThinkMin
			case "think-max":
				cfg.Timing.ThinkMax = flags.Timing.ThinkMax
			case "eat-min":
				cfg.Timing.EatMin = flags.Timing.EatMin
			case "eat-max":
				cfg.Timing.EatMax = flags.Timing.EatMax
			case "log-level":
				cfg.Log.Level = flags.Log.Level
			case "log-file":
				cfg.Log.Output = flags.Log.Output
			case "color":
				cfg.App.Color = flags.App.Color
			case "metrics-addr":
				cfg.Monitor.Enabled = true
				cfg.Monitor.Address = host
				cfg.Monitor.Port = port
			}
		}
	}, nil
}

// run seats the philosophers and blocks until the dinner is over. An
// interrupt signal ends the dinner cleanly; cancellation or a deadline of
// the command context is returned as an error.
func (o *options) run(cmd *cobra.Command) error {
	if err := logutil.InitLogger(o.cfg.Log); err != nil {
		return errors.Trace(err)
	}

	app, err := bootstrap.NewDiningApplication(o.cfg, bootstrap.Options{
		ConfigFile: o.configFile,
		Watch:      o.watch,
		Overrides:  o.overrides,
		Out:        cmd.OutOrStdout(),
	})
	if err != nil {
		return errors.Trace(err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	start := time.Now()
	err = app.Run(ctx)
	switch errors.Cause(err) {
	case nil:
	case context.Canceled, context.DeadlineExceeded:
		log.Warn("dinner interrupted", zap.Error(err))
		return errors.Trace(err)
	default:
		log.Error("dinner failed", zap.Error(err))
		return errors.Trace(err)
	}
	log.Info("dinner exits successfully", zap.Duration("elapsed", time.Since(start)))
	return nil
}

// NewCmdDining creates the dining command.
func NewCmdDining() *cobra.Command {
	o := newOptions()

	command := &cobra.Command{
		Use:   "dining [philosophers]",
		Short: "Simulate the dining philosophers around a shared table",
		Long: `Seats N philosophers (default 5) around a table and prints one row
per eating transition until every philosopher has eaten --min-meals times.`,
		Args:         cobra.MaximumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := o.complete(cmd, args); err != nil {
				return err
			}
			return o.run(cmd)
		},
	}
	o.addFlags(command)

	return command
}
