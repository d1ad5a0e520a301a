package philosopher

import (
	"math/rand"
	"sync"
	"time"
)

// Durations decides how long the local phases of a cycle last.
type Durations interface {
	// Think returns how long a philosopher thinks before getting hungry.
	Think() time.Duration

	// Eat returns how long a philosopher eats once admitted.
	Eat() time.Duration
}

// FixedDurations always returns the same durations. Zero values make a
// dinner run as fast as the scheduler allows.
type FixedDurations struct {
	ThinkFor time.Duration
	EatFor   time.Duration
}

// Think implements Durations.
func (d FixedDurations) Think() time.Duration { return d.ThinkFor }

// Eat implements Durations.
func (d FixedDurations) Eat() time.Duration { return d.EatFor }

// Range is an inclusive duration interval.
type Range struct {
	Min time.Duration
	Max time.Duration
}

// Valid reports whether the range is non negative and ordered.
func (r Range) Valid() bool {
	return r.Min >= 0 && r.Max >= r.Min
}

// Default ranges: think 200ms to 1s, eat 200ms to 500ms.
var (
	DefaultThinkRange = Range{Min: 200 * time.Millisecond, Max: time.Second}
	DefaultEatRange   = Range{Min: 200 * time.Millisecond, Max: 500 * time.Millisecond}
)

// RandomDurations draws uniformly distributed durations. It is safe for
// concurrent use and its ranges can be replaced while a dinner runs.
type RandomDurations struct {
	mu    sync.Mutex
	rng   *rand.Rand
	think Range
	eat   Range
}

// NewRandomDurations creates a generator seeded with seed.
func NewRandomDurations(think, eat Range, seed int64) *RandomDurations {
	return &RandomDurations{
		rng:   rand.New(rand.NewSource(seed)),
		think: think,
		eat:   eat,
	}
}

// SetRanges replaces both ranges.
func (d *RandomDurations) SetRanges(think, eat Range) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.think = think
	d.eat = eat
}

// Ranges returns the ranges currently in use.
func (d *RandomDurations) Ranges() (think, eat Range) {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.think, d.eat
}

// Think implements Durations.
func (d *RandomDurations) Think() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.pick(d.think)
}

// Eat implements Durations.
func (d *RandomDurations) Eat() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.pick(d.eat)
}

func (d *RandomDurations) pick(r Range) time.Duration {
	if r.Max <= r.Min {
		return r.Min
	}
	return r.Min + time.Duration(d.rng.Int63n(int64(r.Max-r.Min)+1))
}
