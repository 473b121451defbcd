package dragscroll

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"superkeys/internal/clock"
	"superkeys/internal/keycode"
	"superkeys/internal/report"
	"superkeys/internal/snap"
)

type modCall struct {
	register bool
	mods     keycode.Mods
}

type recordingMods struct {
	calls []modCall
}

func (r *recordingMods) RegisterMods(m keycode.Mods)   { r.calls = append(r.calls, modCall{true, m}) }
func (r *recordingMods) UnregisterMods(m keycode.Mods) { r.calls = append(r.calls, modCall{false, m}) }

func linearParams() Params {
	return Params{
		MultiplierH:   1,
		MultiplierV:   1,
		Resolution:    1,
		Throttle:      time.Millisecond,
		Timeout:       500 * time.Millisecond,
		SnapThreshold: 0.25,
		SnapRatio:     2,
		Smoothing:     1,
	}
}

func newEngine(p Params) (*Engine, *clock.Mock, *recordingMods) {
	clk := clock.NewMock(time.Unix(100, 0))
	mods := &recordingMods{}
	return New(p, clk, mods), clk, mods
}

func TestInactivePassesThrough(t *testing.T) {
	e, clk, _ := newEngine(DefaultParams())
	m := report.Mouse{X: 4, Y: -2, V: 1}
	e.Task(clk.Now(), &m)
	assert.Equal(t, report.Mouse{X: 4, Y: -2, V: 1}, m)
	assert.False(t, e.Active())
}

func TestRoundTripKeepsFractions(t *testing.T) {
	p := linearParams()
	p.MultiplierH, p.MultiplierV = 0.3, 0.3
	e, clk, _ := newEngine(p)
	e.OnWithoutAxisSnapping()

	var sumV, sumH int
	for i := 0; i < 1000; i++ {
		m := report.Mouse{X: 1, Y: 1}
		e.Task(clk.Advance(time.Millisecond), &m)
		assert.Zero(t, m.X)
		assert.Zero(t, m.Y)
		sumV += int(m.V)
		sumH += int(m.H)
	}
	assert.InDelta(t, 300, sumV, 1)
	assert.InDelta(t, 300, sumH, 1)
}

func TestThrottleAccumulatesBetweenScrolls(t *testing.T) {
	p := linearParams()
	p.Throttle = 16 * time.Millisecond
	e, clk, _ := newEngine(p)
	e.OnWithoutAxisSnapping()

	m := report.Mouse{Y: 2}
	e.Task(clk.Now(), &m)
	assert.Equal(t, int16(2), m.V)

	for i := 0; i < 3; i++ {
		m = report.Mouse{Y: 2, V: 7}
		e.Task(clk.Advance(time.Millisecond), &m)
		assert.Zero(t, m.Y)
		assert.Equal(t, int16(7), m.V, "wheel is untouched between scrolls")
	}

	m = report.Mouse{}
	e.Task(clk.Advance(13*time.Millisecond), &m)
	assert.Equal(t, int16(6), m.V)
}

func TestIdleTimeoutResets(t *testing.T) {
	p := linearParams()
	p.Throttle = 16 * time.Millisecond
	e, clk, _ := newEngine(p)
	e.OnWithoutAxisSnapping()

	m := report.Mouse{Y: 1}
	e.Task(clk.Now(), &m)
	m = report.Mouse{Y: 3}
	e.Task(clk.Advance(time.Millisecond), &m)
	require.Equal(t, 3.0, e.accV)

	m = report.Mouse{}
	e.Task(clk.Advance(600*time.Millisecond), &m)
	assert.Zero(t, m.V)
	assert.Zero(t, e.accV)
}

func TestShortIdleFlushesAccumulator(t *testing.T) {
	p := linearParams()
	p.Throttle = 16 * time.Millisecond
	e, clk, _ := newEngine(p)
	e.OnWithoutAxisSnapping()

	m := report.Mouse{Y: 1}
	e.Task(clk.Now(), &m)
	m = report.Mouse{Y: 3}
	e.Task(clk.Advance(time.Millisecond), &m)

	m = report.Mouse{}
	e.Task(clk.Advance(100*time.Millisecond), &m)
	assert.Equal(t, int16(3), m.V)
}

func TestAxisSnapSwitchesOnceAndResetsCarry(t *testing.T) {
	p := linearParams()
	p.MultiplierH, p.MultiplierV = 0.5, 0.5
	p.Smoothing = 3
	e, clk, _ := newEngine(p)
	e.On(Config{})

	m := report.Mouse{X: 3}
	e.Task(clk.Advance(time.Millisecond), &m)
	require.Equal(t, snap.Horizontal, e.Axis())
	assert.Equal(t, int16(1), m.H)
	assert.Equal(t, 0.5, e.errH)

	switches := 0
	last := e.Axis()
	for i := 0; i < 20; i++ {
		m = report.Mouse{Y: 1}
		e.Task(clk.Advance(time.Millisecond), &m)
		if e.Axis() != last {
			switches++
			last = e.Axis()
			assert.Zero(t, e.errH)
			assert.Zero(t, m.H)
			assert.Zero(t, e.ringH.size)
			assert.Zero(t, e.ringV.size)
		}
		if e.Axis() == snap.Horizontal {
			assert.Zero(t, m.V)
		}
	}
	assert.Equal(t, 1, switches)
	assert.Equal(t, snap.Vertical, e.Axis())
}

func TestBitwigOverlay(t *testing.T) {
	p := linearParams()
	e, clk, mods := newEngine(p)
	e.On(BitwigConfig())

	m := report.Mouse{Y: 4}
	e.Task(clk.Advance(time.Millisecond), &m)
	require.Equal(t, snap.Vertical, e.Axis())
	assert.Equal(t, int16(4), m.V)
	assert.Equal(t, []modCall{{false, keycode.LAlt}, {true, keycode.LShift}}, mods.calls)

	// Sideways motion flips the lock; Alt joins Shift.
	mods.calls = nil
	m = report.Mouse{X: 4}
	e.Task(clk.Advance(time.Millisecond), &m)
	require.Equal(t, snap.Horizontal, e.Axis())
	assert.Equal(t, []modCall{{true, keycode.LShift | keycode.LAlt}}, mods.calls)
	assert.Equal(t, int16(-4), m.V, "inverted horizontal folds into the vertical wheel")
	assert.Zero(t, m.H)

	mods.calls = nil
	m = report.Mouse{Y: 4}
	e.Task(clk.Advance(time.Millisecond), &m)
	require.Equal(t, snap.Vertical, e.Axis())
	assert.Equal(t, []modCall{{false, keycode.LAlt}, {true, keycode.LShift}}, mods.calls)

	mods.calls = nil
	e.Off()
	e.Off()
	assert.Equal(t, []modCall{{false, keycode.LShift}}, mods.calls)
}

func TestOnIsNoOpWhileActive(t *testing.T) {
	e, _, _ := newEngine(linearParams())
	e.On(Config{VerticalOnly: true})
	e.On(Config{})
	assert.True(t, e.cfg.VerticalOnly)
	e.Off()
	e.On(Config{})
	assert.False(t, e.cfg.VerticalOnly)
}

func TestAccelerationIsMonotonic(t *testing.T) {
	p := DefaultParams()
	p.Smoothing = 1
	p.MultiplierH, p.MultiplierV = 1, 1
	speeds := []int16{1, 4, 16, 64}
	var prev float64
	for _, s := range speeds {
		e, clk, _ := newEngine(p)
		e.OnWithoutAxisSnapping()
		m := report.Mouse{Y: s}
		e.Task(clk.Now(), &m)
		out := float64(m.V) + e.errV
		gain := out / (float64(s) * p.Resolution)
		assert.Greater(t, gain, prev)
		assert.Greater(t, gain, 0.0)
		prev = gain
	}
}
