package core

import (
	"sync"

	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	"go.uber.org/zap"
)

// seat holds one philosopher's state and the condition it waits on.
// cond.L is the table mutex.
type seat struct {
	state State
	cond  *sync.Cond
}

// Table is the monitor shared by every philosopher.
//
// All mutations go through Acquire and Release, both of which run entirely
// under mu. The state of the seats may only be touched with mu held.
type Table struct {
	mu    sync.Mutex
	seats []seat

	// seq numbers events in the order they were emitted
	seq uint64

	observers []Observer
	logger    *zap.Logger
}

// Option configures a Table.
type Option func(t *Table)

// WithObserver registers an observer for eating transitions.
func WithObserver(o Observer) Option {
	return func(t *Table) {
		if o != nil {
			t.observers = append(t.observers, o)
		}
	}
}

// WithLogger sets the logger used for transition debug logs.
func WithLogger(l *zap.Logger) Option {
	return func(t *Table) {
		if l != nil {
			t.logger = l
		}
	}
}

// NewTable creates a table with n philosophers, all thinking.
func NewTable(n int, opts ...Option) (*Table, error) {
	if n <= 0 {
		return nil, errors.Annotatef(ErrInvalidSize, "size %d", n)
	}

	t := &Table{
		seats:  make([]seat, n),
		logger: log.L(),
	}
	for i := range t.seats {
		t.seats[i] = seat{
			state: StateThinking,
			cond:  sync.NewCond(&t.mu),
		}
	}
	for _, opt := range opts {
		opt(t)
	}
	t.logger = t.logger.With(zap.Int("philosophers", n))

	return t, nil
}

// Size returns the number of philosophers around the table.
func (t *Table) Size() int {
	return len(t.seats)
}

// Left returns the neighbour at (id+1) mod N.
func (t *Table) Left(id PhilosopherID) PhilosopherID {
	return (id + 1) % PhilosopherID(len(t.seats))
}

// Right returns the neighbour at (id-1+N) mod N.
func (t *Table) Right(id PhilosopherID) PhilosopherID {
	n := PhilosopherID(len(t.seats))
	return (id - 1 + n) % n
}

// Acquire blocks until philosopher id is allowed to eat.
//
// The philosopher turns hungry and eats immediately if neither neighbour is
// eating. Otherwise it waits on its own condition until a releasing
// neighbour admits it. On a nil return the philosopher is eating.
func (t *Table) Acquire(id PhilosopherID) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.valid(id) {
		return errors.Annotatef(ErrInvalidPhilosopher, "acquire %d", id)
	}
	s := &t.seats[id]
	if s.state != StateThinking {
		return errors.Annotatef(ErrNotThinking, "acquire %d in state %s", id, s.state)
	}

	s.state = StateHungry
	if t.test(id) {
		return nil
	}

	t.logger.Debug("philosopher waits for neighbours",
		zap.Int("id", int(id)),
		zap.Stringer("left", t.seats[t.Left(id)].state),
		zap.Stringer("right", t.seats[t.Right(id)].state))

	// The waker sets EATING before signalling, the loop only guards
	// against spurious wakeups.
	for s.state != StateEating {
		s.cond.Wait()
	}
	return nil
}

// Release ends the meal of philosopher id and hands the right to eat to
// hungry neighbours that can now be admitted, left first.
func (t *Table) Release(id PhilosopherID) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.valid(id) {
		return errors.Annotatef(ErrInvalidPhilosopher, "release %d", id)
	}
	s := &t.seats[id]
	if s.state != StateEating {
		return errors.Annotatef(ErrNotEating, "release %d in state %s", id, s.state)
	}

	s.state = StateThinking
	t.emit(EventEndsEating, id)

	for _, n := range [2]PhilosopherID{t.Left(id), t.Right(id)} {
		if t.test(n) {
			t.seats[n].cond.Signal()
		}
	}
	return nil
}

// State returns the current state of philosopher id.
func (t *Table) State(id PhilosopherID) State {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.valid(id) {
		return StateThinking
	}
	return t.seats[id].state
}

// Snapshot returns a copy of all states.
func (t *Table) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.snapshot()
}

// test admits a hungry philosopher whose neighbours are both not eating.
// Must be called with mu held.
func (t *Table) test(id PhilosopherID) bool {
	if t.seats[id].state != StateHungry ||
		t.seats[t.Left(id)].state == StateEating ||
		t.seats[t.Right(id)].state == StateEating {
		return false
	}

	t.seats[id].state = StateEating
	t.emit(EventStartsEating, id)
	return true
}

// emit must be called with mu held.
func (t *Table) emit(kind EventKind, id PhilosopherID) {
	t.seq++
	ev := Event{Kind: kind, ID: id, Seq: t.seq}

	t.logger.Debug("eating transition",
		zap.Int("id", int(id)),
		zap.Stringer("event", kind),
		zap.Uint64("seq", ev.Seq))

	if len(t.observers) == 0 {
		return
	}
	snap := t.snapshot()
	for _, o := range t.observers {
		o.Observe(ev, snap)
	}
}

func (t *Table) snapshot() Snapshot {
	snap := make(Snapshot, len(t.seats))
	for i := range t.seats {
		snap[i] = t.seats[i].state
	}
	return snap
}

func (t *Table) valid(id PhilosopherID) bool {
	return id >= 0 && int(id) < len(t.seats)
}
