package core

import (
	"strings"
)

// PhilosopherID identifies a seat at the table, in [0, N).
type PhilosopherID int

// State represents what a philosopher is currently doing.
type State uint8

const (
	// StateThinking means the philosopher holds no claim on its neighbours
	StateThinking State = iota

	// StateHungry means the philosopher asked to eat and waits for admission
	StateHungry

	// StateEating means both neighbours are excluded until release
	StateEating
)

// String returns the string representation of State.
func (s State) String() string {
	switch s {
	case StateThinking:
		return "thinking"
	case StateHungry:
		return "hungry"
	case StateEating:
		return "eating"
	default:
		return "unknown"
	}
}

// EventKind tells whether an observed transition starts or ends a meal.
type EventKind uint8

const (
	// EventStartsEating is emitted when a philosopher becomes EATING
	EventStartsEating EventKind = iota

	// EventEndsEating is emitted when a philosopher goes back to THINKING
	EventEndsEating
)

// String returns the string representation of EventKind.
func (k EventKind) String() string {
	switch k {
	case EventStartsEating:
		return "starts eating"
	case EventEndsEating:
		return "ends eating"
	default:
		return "unknown"
	}
}

// Event is a single observed transition.
type Event struct {
	// Kind of the transition
	Kind EventKind

	// ID of the philosopher that changed state
	ID PhilosopherID

	// Seq orders all events of a table, starting at 1
	Seq uint64
}

// Snapshot is a copy of every philosopher's state taken under the table lock.
type Snapshot []State

// Eating reports whether id was eating when the snapshot was taken.
func (s Snapshot) Eating(id PhilosopherID) bool {
	return int(id) >= 0 && int(id) < len(s) && s[id] == StateEating
}

// String renders one column per philosopher, '*' for eating and ' ' otherwise.
func (s Snapshot) String() string {
	var b strings.Builder
	b.Grow(len(s))
	for _, st := range s {
		if st == StateEating {
			b.WriteByte('*')
		} else {
			b.WriteByte(' ')
		}
	}
	return b.String()
}

// Observer receives every transition to and from EATING.
//
// Observe is called with the table lock held, in the order the transitions
// happened, so implementations need no locking of their own. They must not
// call back into the Table.
type Observer interface {
	Observe(ev Event, snap Snapshot)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(ev Event, snap Snapshot)

// Observe calls f(ev, snap).
func (f ObserverFunc) Observe(ev Event, snap Snapshot) {
	f(ev, snap)
}
