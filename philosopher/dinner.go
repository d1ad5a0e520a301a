package philosopher

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/najoast/dining/core"
	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	"go.uber.org/atomic"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Dinner errors
var (
	ErrInvalidMinMeals = errors.New("minimum meals must be positive")
	ErrAlreadyRunning  = errors.New("dinner already started")
)

// Table is the monitor plus the number of seats it guards.
type Table interface {
	Monitor
	Size() int
}

// Options contains configuration for a Dinner.
type Options struct {
	// MinMeals every philosopher must reach before the dinner ends
	MinMeals int

	// Durations of the think and eat phases, defaults to RandomDurations
	Durations Durations

	// Clock used for delays and wait measurement
	Clock clock.Clock

	// Recorder receives wait and meal measurements
	Recorder Recorder

	// Logger for runtime logs
	Logger *zap.Logger
}

// DefaultMinMeals is the number of meals each philosopher eats by default.
const DefaultMinMeals = 3

// DefaultOptions returns sensible default options.
func DefaultOptions() Options {
	return Options{
		MinMeals:  DefaultMinMeals,
		Durations: NewRandomDurations(DefaultThinkRange, DefaultEatRange, time.Now().UnixNano()),
		Clock:     clock.New(),
	}
}

// Dinner runs one philosopher goroutine per seat of a table until every
// philosopher has eaten at least MinMeals times.
type Dinner struct {
	table        Table
	philosophers []*Philosopher
	minMeals     int64
	started      atomic.Bool
	logger       *zap.Logger
}

// NewDinner seats a philosopher at every place of table.
func NewDinner(table Table, opts Options) (*Dinner, error) {
	if opts.MinMeals <= 0 {
		return nil, errors.Annotatef(ErrInvalidMinMeals, "min meals %d", opts.MinMeals)
	}
	defaults := DefaultOptions()
	if opts.Durations == nil {
		opts.Durations = defaults.Durations
	}
	if opts.Clock == nil {
		opts.Clock = defaults.Clock
	}
	if opts.Recorder == nil {
		opts.Recorder = nopRecorder{}
	}
	if opts.Logger == nil {
		opts.Logger = log.L()
	}

	d := &Dinner{
		table:        table,
		philosophers: make([]*Philosopher, table.Size()),
		minMeals:     int64(opts.MinMeals),
		logger:       opts.Logger,
	}
	for i := range d.philosophers {
		d.philosophers[i] = newPhilosopher(core.PhilosopherID(i), table, opts)
	}
	return d, nil
}

// Run starts all philosophers and blocks until every one of them returned.
// It returns the first error, or ctx.Err() if the dinner was interrupted.
func (d *Dinner) Run(ctx context.Context) error {
	if !d.started.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}

	d.logger.Info("dinner started",
		zap.Int("philosophers", len(d.philosophers)),
		zap.Int64("minMeals", d.minMeals))

	g, ctx := errgroup.WithContext(ctx)
	for _, p := range d.philosophers {
		p := p
		g.Go(func() error {
			return p.Run(ctx, d.Done)
		})
	}
	err := g.Wait()
	if err != nil {
		d.logger.Warn("dinner stopped early", zap.Error(err))
		return err
	}

	d.logger.Info("dinner finished")
	return nil
}

// Done reports whether every philosopher ate at least MinMeals times. The
// counters are read without the table lock; a stale read only delays
// termination by one cycle.
func (d *Dinner) Done() bool {
	for _, p := range d.philosophers {
		if p.Meals() < d.minMeals {
			return false
		}
	}
	return true
}

// MinMeals returns the completion threshold.
func (d *Dinner) MinMeals() int {
	return int(d.minMeals)
}

// Philosophers returns the seated philosophers ordered by id.
func (d *Dinner) Philosophers() []*Philosopher {
	return d.philosophers
}

// Stats returns statistics for all philosophers.
func (d *Dinner) Stats() []Stats {
	stats := make([]Stats, len(d.philosophers))
	for i, p := range d.philosophers {
		stats[i] = p.Stats()
	}
	return stats
}
