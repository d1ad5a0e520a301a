package philosopher

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/najoast/dining/core"
	"github.com/pingcap/errors"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// Monitor grants and takes back the right to eat.
type Monitor interface {
	Acquire(id core.PhilosopherID) error
	Release(id core.PhilosopherID) error
}

// Recorder is notified of runtime measurements, e.g. by metrics.
type Recorder interface {
	// ObserveWait reports how long a philosopher stayed hungry.
	ObserveWait(id core.PhilosopherID, d time.Duration)

	// ObserveMeal reports a finished meal.
	ObserveMeal(id core.PhilosopherID)
}

type nopRecorder struct{}

func (nopRecorder) ObserveWait(core.PhilosopherID, time.Duration) {}
func (nopRecorder) ObserveMeal(core.PhilosopherID)                {}

// Phase is the runtime view of a philosopher, readable without the table
// lock.
type Phase int32

const (
	// PhaseThinking means the philosopher is in its local think delay
	PhaseThinking Phase = iota

	// PhaseHungry means the philosopher is blocked in Acquire
	PhaseHungry

	// PhaseEating means the philosopher is in its eat delay
	PhaseEating

	// PhaseDone means the run loop has exited
	PhaseDone
)

// String returns the string representation of Phase.
func (p Phase) String() string {
	switch p {
	case PhaseThinking:
		return "thinking"
	case PhaseHungry:
		return "hungry"
	case PhaseEating:
		return "eating"
	case PhaseDone:
		return "done"
	default:
		return "unknown"
	}
}

// Stats contains runtime statistics for a philosopher.
type Stats struct {
	// ID of the philosopher
	ID core.PhilosopherID

	// Current phase
	Phase Phase

	// Meals eaten so far
	Meals int64

	// Total time spent hungry
	Waited time.Duration

	// Time the last meal finished, zero before the first one
	LastMealAt time.Time
}

// Philosopher drives one seat through think, acquire, eat and release.
type Philosopher struct {
	id        core.PhilosopherID
	monitor   Monitor
	durations Durations
	clock     clock.Clock
	recorder  Recorder
	logger    *zap.Logger

	phase      atomic.Int32
	meals      atomic.Int64
	waited     atomic.Duration
	lastMealAt atomic.Time
}

func newPhilosopher(id core.PhilosopherID, monitor Monitor, opts Options) *Philosopher {
	return &Philosopher{
		id:        id,
		monitor:   monitor,
		durations: opts.Durations,
		clock:     opts.Clock,
		recorder:  opts.Recorder,
		logger:    opts.Logger.With(zap.Int("philosopher", int(id))),
	}
}

// ID returns the seat of this philosopher.
func (p *Philosopher) ID() core.PhilosopherID {
	return p.id
}

// Meals returns how many meals the philosopher finished.
func (p *Philosopher) Meals() int64 {
	return p.meals.Load()
}

// Run loops until done reports true or ctx is cancelled. A cancelled
// think phase returns before asking for the table. A cancelled meal still
// releases, so neighbours get woken, but is not counted.
func (p *Philosopher) Run(ctx context.Context, done func() bool) error {
	defer p.phase.Store(int32(PhaseDone))

	for {
		if done() {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		p.phase.Store(int32(PhaseThinking))
		if !p.sleep(ctx, p.durations.Think()) {
			return ctx.Err()
		}

		p.phase.Store(int32(PhaseHungry))
		start := p.clock.Now()
		if err := p.monitor.Acquire(p.id); err != nil {
			return errors.Annotatef(err, "philosopher %d", p.id)
		}
		wait := p.clock.Since(start)
		p.waited.Add(wait)
		p.recorder.ObserveWait(p.id, wait)

		p.phase.Store(int32(PhaseEating))
		finished := p.sleep(ctx, p.durations.Eat())
		if err := p.monitor.Release(p.id); err != nil {
			return errors.Annotatef(err, "philosopher %d", p.id)
		}
		if !finished {
			p.logger.Debug("meal interrupted")
			return ctx.Err()
		}

		meals := p.meals.Inc()
		p.lastMealAt.Store(p.clock.Now())
		p.recorder.ObserveMeal(p.id)
		p.logger.Debug("meal finished", zap.Int64("meals", meals), zap.Duration("waited", wait))
	}
}

// Stats returns current runtime statistics.
func (p *Philosopher) Stats() Stats {
	return Stats{
		ID:         p.id,
		Phase:      Phase(p.phase.Load()),
		Meals:      p.meals.Load(),
		Waited:     p.waited.Load(),
		LastMealAt: p.lastMealAt.Load(),
	}
}

// sleep waits for d and reports false when ctx was cancelled first.
func (p *Philosopher) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := p.clock.Timer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
