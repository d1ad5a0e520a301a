package core

import (
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/pingcap/errors"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// recorder collects events; it is only called under the table lock.
type recorder struct {
	events []Event
	snaps  []Snapshot
}

func (r *recorder) Observe(ev Event, snap Snapshot) {
	r.events = append(r.events, ev)
	r.snaps = append(r.snaps, snap)
}

func waitHungry(t *testing.T, table *Table, id PhilosopherID) {
	require.Eventually(t, func() bool {
		return table.State(id) == StateHungry
	}, 5*time.Second, time.Millisecond)
}

func TestNewTableInvalidSize(t *testing.T) {
	for _, n := range []int{0, -1} {
		table, err := NewTable(n)
		require.Nil(t, table)
		require.Equal(t, ErrInvalidSize, errors.Cause(err))
	}
}

func TestNewTableAllThinking(t *testing.T) {
	table, err := NewTable(4)
	require.NoError(t, err)
	require.Equal(t, 4, table.Size())
	require.Equal(t, Snapshot{StateThinking, StateThinking, StateThinking, StateThinking}, table.Snapshot())
}

func TestNeighbours(t *testing.T) {
	table, err := NewTable(5)
	require.NoError(t, err)

	require.Equal(t, PhilosopherID(1), table.Left(0))
	require.Equal(t, PhilosopherID(4), table.Right(0))
	require.Equal(t, PhilosopherID(0), table.Left(4))
	require.Equal(t, PhilosopherID(3), table.Right(4))
}

func TestStrings(t *testing.T) {
	require.Equal(t, "thinking", StateThinking.String())
	require.Equal(t, "hungry", StateHungry.String())
	require.Equal(t, "eating", StateEating.String())
	require.Equal(t, "unknown", State(9).String())
	require.Equal(t, "starts eating", EventStartsEating.String())
	require.Equal(t, "ends eating", EventEndsEating.String())

	snap := Snapshot{StateEating, StateHungry, StateThinking, StateEating}
	require.Equal(t, "*  *", snap.String())
	require.True(t, snap.Eating(0))
	require.False(t, snap.Eating(1))
	require.False(t, snap.Eating(7))
}

func TestThreePhilosophersHandOver(t *testing.T) {
	rec := &recorder{}
	table, err := NewTable(3, WithObserver(rec))
	require.NoError(t, err)

	require.NoError(t, table.Acquire(0))
	require.Equal(t, Snapshot{StateEating, StateThinking, StateThinking}, table.Snapshot())

	acquired := make(chan error, 1)
	go func() {
		acquired <- table.Acquire(1)
	}()
	waitHungry(t, table, 1)

	select {
	case <-acquired:
		t.Fatal("philosopher 1 must wait while 0 is eating")
	default:
	}

	require.NoError(t, table.Release(0))
	require.NoError(t, <-acquired)
	require.Equal(t, Snapshot{StateThinking, StateEating, StateThinking}, table.Snapshot())

	require.Equal(t, []Event{
		{Kind: EventStartsEating, ID: 0, Seq: 1},
		{Kind: EventEndsEating, ID: 0, Seq: 2},
		{Kind: EventStartsEating, ID: 1, Seq: 3},
	}, rec.events)
	require.Equal(t, Snapshot{StateThinking, StateEating, StateThinking}, rec.snaps[2])

	require.NoError(t, table.Release(1))
}

func TestReleaseAdmitsBothNeighbours(t *testing.T) {
	rec := &recorder{}
	table, err := NewTable(5, WithObserver(rec))
	require.NoError(t, err)

	require.NoError(t, table.Acquire(2))

	var wg sync.WaitGroup
	for _, id := range []PhilosopherID{1, 3} {
		wg.Add(1)
		go func(id PhilosopherID) {
			defer wg.Done()
			if err := table.Acquire(id); err != nil {
				t.Error(err)
			}
		}(id)
		waitHungry(t, table, id)
	}

	require.NoError(t, table.Release(2))
	wg.Wait()

	require.Equal(t, Snapshot{StateThinking, StateEating, StateThinking, StateEating, StateThinking}, table.Snapshot())
	// left neighbour (id+1) is admitted before the right one (id-1)
	require.Equal(t, []Event{
		{Kind: EventStartsEating, ID: 2, Seq: 1},
		{Kind: EventEndsEating, ID: 2, Seq: 2},
		{Kind: EventStartsEating, ID: 3, Seq: 3},
		{Kind: EventStartsEating, ID: 1, Seq: 4},
	}, rec.events)

	require.NoError(t, table.Release(1))
	require.NoError(t, table.Release(3))
}

func TestReleaseLeavesBlockedNeighbourWaiting(t *testing.T) {
	table, err := NewTable(4)
	require.NoError(t, err)

	// 1 waits for both 0 and 2
	require.NoError(t, table.Acquire(0))
	require.NoError(t, table.Acquire(2))

	acquired := make(chan error, 1)
	go func() {
		acquired <- table.Acquire(1)
	}()
	waitHungry(t, table, 1)

	require.NoError(t, table.Release(0))
	require.Equal(t, StateHungry, table.State(1))

	require.NoError(t, table.Release(2))
	require.NoError(t, <-acquired)
	require.Equal(t, StateEating, table.State(1))
	require.NoError(t, table.Release(1))
}

func TestReleaseNotEating(t *testing.T) {
	rec := &recorder{}
	table, err := NewTable(3, WithObserver(rec))
	require.NoError(t, err)

	err = table.Release(1)
	require.Equal(t, ErrNotEating, errors.Cause(err))
	require.Equal(t, StateThinking, table.State(1))
	require.Empty(t, rec.events)

	require.NoError(t, table.Acquire(1))
	require.NoError(t, table.Release(1))
	err = table.Release(1)
	require.Equal(t, ErrNotEating, errors.Cause(err))
	require.Len(t, rec.events, 2)
}

func TestAcquireWhileEating(t *testing.T) {
	table, err := NewTable(3)
	require.NoError(t, err)

	require.NoError(t, table.Acquire(0))
	err = table.Acquire(0)
	require.Equal(t, ErrNotThinking, errors.Cause(err))
	require.Equal(t, StateEating, table.State(0))
	require.NoError(t, table.Release(0))
}

func TestInvalidPhilosopher(t *testing.T) {
	table, err := NewTable(3)
	require.NoError(t, err)

	for _, id := range []PhilosopherID{-1, 3, 42} {
		require.Equal(t, ErrInvalidPhilosopher, errors.Cause(table.Acquire(id)))
		require.Equal(t, ErrInvalidPhilosopher, errors.Cause(table.Release(id)))
	}
	require.Equal(t, Snapshot{StateThinking, StateThinking, StateThinking}, table.Snapshot())
}

func TestSinglePhilosopher(t *testing.T) {
	table, err := NewTable(1)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.NoError(t, table.Acquire(0))
		require.Equal(t, StateEating, table.State(0))
		require.NoError(t, table.Release(0))
	}
}

func TestTwoPhilosophers(t *testing.T) {
	table, err := NewTable(2)
	require.NoError(t, err)

	require.NoError(t, table.Acquire(1))

	acquired := make(chan error, 1)
	go func() {
		acquired <- table.Acquire(0)
	}()
	waitHungry(t, table, 0)

	require.NoError(t, table.Release(1))
	require.NoError(t, <-acquired)
	require.Equal(t, Snapshot{StateEating, StateThinking}, table.Snapshot())
	require.NoError(t, table.Release(0))
}

func TestSpuriousWakeupKeepsWaiting(t *testing.T) {
	table, err := NewTable(3)
	require.NoError(t, err)

	require.NoError(t, table.Acquire(0))

	acquired := make(chan error, 1)
	go func() {
		acquired <- table.Acquire(1)
	}()
	waitHungry(t, table, 1)

	// wake 1 without admitting it
	table.mu.Lock()
	table.seats[1].cond.Broadcast()
	table.mu.Unlock()

	select {
	case <-acquired:
		t.Fatal("spurious wakeup must not return from Acquire")
	case <-time.After(20 * time.Millisecond):
	}
	require.Equal(t, StateHungry, table.State(1))

	require.NoError(t, table.Release(0))
	require.NoError(t, <-acquired)
	require.NoError(t, table.Release(1))
}

func TestNeighboursNeverEatTogether(t *testing.T) {
	const (
		n      = 7
		rounds = 300
	)

	var (
		violations int
		starts     int
		ends       int
		lastSeq    uint64
		outOfOrder bool
		table      *Table
	)
	// the observer runs under the table lock
	check := ObserverFunc(func(ev Event, snap Snapshot) {
		if ev.Seq != lastSeq+1 {
			outOfOrder = true
		}
		lastSeq = ev.Seq
		if ev.Kind == EventEndsEating {
			ends++
			return
		}
		starts++
		if snap.Eating(table.Left(ev.ID)) || snap.Eating(table.Right(ev.ID)) {
			violations++
		}
	})

	var err error
	table, err = NewTable(n, WithObserver(check))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(id PhilosopherID) {
			defer wg.Done()
			for r := 0; r < rounds; r++ {
				if err := table.Acquire(id); err != nil {
					t.Error(err)
					return
				}
				runtime.Gosched()
				if err := table.Release(id); err != nil {
					t.Error(err)
					return
				}
			}
		}(PhilosopherID(i))
	}
	wg.Wait()

	require.Zero(t, violations)
	require.False(t, outOfOrder)
	require.Equal(t, n*rounds, starts)
	require.Equal(t, n*rounds, ends)
	for i := 0; i < n; i++ {
		require.Equal(t, StateThinking, table.State(PhilosopherID(i)))
	}
}
