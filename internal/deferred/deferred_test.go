package deferred

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"superkeys/internal/clock"
)

func newTestScheduler() (*Scheduler, *clock.Mock) {
	clk := clock.NewMock(time.Unix(0, 0))
	return NewScheduler(clk), clk
}

func TestSchedulerRunsOnce(t *testing.T) {
	s, clk := newTestScheduler()
	calls := 0
	tok := s.Schedule(10*time.Millisecond, func(time.Time) time.Duration {
		calls++
		return 0
	})
	require.NotEqual(t, InvalidToken, tok)

	assert.Equal(t, 0, s.Poll(clk.Advance(9*time.Millisecond)))
	assert.Equal(t, 1, s.Poll(clk.Advance(time.Millisecond)))
	assert.Equal(t, 0, s.Poll(clk.Advance(time.Second)))
	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, s.Pending())
}

func TestSchedulerRepeatsOnNonZeroReturn(t *testing.T) {
	s, clk := newTestScheduler()
	calls := 0
	s.Schedule(5*time.Millisecond, func(time.Time) time.Duration {
		calls++
		if calls < 3 {
			return 5 * time.Millisecond
		}
		return 0
	})
	for i := 0; i < 5; i++ {
		s.Poll(clk.Advance(5 * time.Millisecond))
	}
	assert.Equal(t, 3, calls)
}

func TestSchedulerExtendAndCancel(t *testing.T) {
	s, clk := newTestScheduler()
	fired := false
	tok := s.Schedule(10*time.Millisecond, func(time.Time) time.Duration {
		fired = true
		return 0
	})
	clk.Advance(8 * time.Millisecond)
	require.True(t, s.Extend(tok, 10*time.Millisecond))
	s.Poll(clk.Advance(5 * time.Millisecond))
	assert.False(t, fired)

	require.True(t, s.Cancel(tok))
	s.Poll(clk.Advance(time.Second))
	assert.False(t, fired)
	assert.False(t, s.Cancel(tok))
	assert.False(t, s.Extend(tok, time.Millisecond))
}

func TestSchedulerCapacity(t *testing.T) {
	s, _ := newTestScheduler()
	noop := func(time.Time) time.Duration { return 0 }
	for i := 0; i < DefaultCapacity; i++ {
		require.NotEqual(t, InvalidToken, s.Schedule(time.Millisecond, noop))
	}
	assert.Equal(t, InvalidToken, s.Schedule(time.Millisecond, noop))
	assert.Equal(t, InvalidToken, s.Schedule(0, noop))
}

func TestSchedulerNext(t *testing.T) {
	s, clk := newTestScheduler()
	_, ok := s.Next()
	assert.False(t, ok)
	noop := func(time.Time) time.Duration { return 0 }
	s.Schedule(30*time.Millisecond, noop)
	s.Schedule(10*time.Millisecond, noop)
	next, ok := s.Next()
	require.True(t, ok)
	assert.Equal(t, clk.Now().Add(10*time.Millisecond), next)
}

func TestTimerFiresOncePerArm(t *testing.T) {
	s, clk := newTestScheduler()
	fires := 0
	tm := NewTimer(s, func() { fires++ })

	tm.Arm(175 * time.Millisecond)
	assert.True(t, tm.Armed())
	s.Poll(clk.Advance(175 * time.Millisecond))
	assert.Equal(t, 1, fires)
	assert.False(t, tm.Armed())

	s.Poll(clk.Advance(time.Second))
	assert.Equal(t, 1, fires)
}

func TestTimerRearmReplacesDelay(t *testing.T) {
	s, clk := newTestScheduler()
	fires := 0
	tm := NewTimer(s, func() { fires++ })

	tm.Arm(100 * time.Millisecond)
	clk.Advance(90 * time.Millisecond)
	tm.Arm(100 * time.Millisecond)
	s.Poll(clk.Advance(20 * time.Millisecond))
	assert.Equal(t, 0, fires)
	s.Poll(clk.Advance(80 * time.Millisecond))
	assert.Equal(t, 1, fires)
	assert.Equal(t, 0, s.Pending())
}

func TestTimerDisarmIsIdempotent(t *testing.T) {
	s, clk := newTestScheduler()
	fires := 0
	tm := NewTimer(s, func() { fires++ })
	tm.Disarm()
	tm.Arm(10 * time.Millisecond)
	tm.Disarm()
	tm.Disarm()
	s.Poll(clk.Advance(time.Second))
	assert.Equal(t, 0, fires)
	assert.Equal(t, 0, s.Pending())
}

func TestTimerRearmFromCallback(t *testing.T) {
	s, clk := newTestScheduler()
	var tm *Timer
	fires := 0
	tm = NewTimer(s, func() {
		fires++
		if fires == 1 {
			tm.Arm(2500 * time.Millisecond)
		}
	})
	tm.Arm(175 * time.Millisecond)

	s.Poll(clk.Advance(175 * time.Millisecond))
	assert.Equal(t, 1, fires)
	assert.True(t, tm.Armed())
	assert.Equal(t, 1, s.Pending())

	s.Poll(clk.Advance(2499 * time.Millisecond))
	assert.Equal(t, 1, fires)
	s.Poll(clk.Advance(time.Millisecond))
	assert.Equal(t, 2, fires)
	assert.False(t, tm.Armed())
	assert.Equal(t, 0, s.Pending())
}

func TestTimerDisarmFromCallback(t *testing.T) {
	s, clk := newTestScheduler()
	var tm *Timer
	tm = NewTimer(s, func() {
		tm.Arm(time.Second)
		tm.Disarm()
	})
	tm.Arm(10 * time.Millisecond)
	s.Poll(clk.Advance(10 * time.Millisecond))
	assert.False(t, tm.Armed())
	assert.Equal(t, 0, s.Pending())

	// A fresh arm after the callback schedules again.
	tm.Arm(10 * time.Millisecond)
	assert.Equal(t, 1, s.Pending())
}
