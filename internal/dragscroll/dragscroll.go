// Package dragscroll turns pointer motion into high-resolution wheel motion.
//
// While active, every pointer sample's motion is accumulated (and removed from
// the sample). Once per throttle interval the accumulated motion is smoothed,
// snapped to one axis, accelerated and scaled, and written into the sample's
// wheel fields. Sub-unit remainders carry over to the next interval.
package dragscroll

import (
	"math"
	"time"

	"superkeys/internal/clock"
	"superkeys/internal/keycode"
	"superkeys/internal/report"
	"superkeys/internal/snap"
)

// Modifiers receives the modifier overlay applied while scrolling.
type Modifiers interface {
	RegisterMods(keycode.Mods)
	UnregisterMods(keycode.Mods)
}

type nopModifiers struct{}

func (nopModifiers) RegisterMods(keycode.Mods)   {}
func (nopModifiers) UnregisterMods(keycode.Mods) {}

// Engine is the drag-scroll state.
type Engine struct {
	params Params
	clock  clock.Clock
	mods   Modifiers

	active bool
	cfg    Config

	multH, multV float64
	p, q, r      float64

	lastMovement time.Time
	lastScroll   time.Time

	accH, accV float64
	errH, errV float64
	snapper    snap.Snapper
	ringH      ring
	ringV      ring
	applied    keycode.Mods
}

// New creates an inactive engine. mods may be nil.
func New(p Params, c clock.Clock, mods Modifiers) *Engine {
	if mods == nil {
		mods = nopModifiers{}
	}
	e := &Engine{clock: c, mods: mods}
	e.SetParams(p)
	return e
}

// SetParams replaces the tunables and resets the accumulated state.
func (e *Engine) SetParams(p Params) {
	e.params = p
	e.snapper = snap.Snapper{Threshold: p.SnapThreshold, Ratio: p.SnapRatio}
	e.ringH = newRing(p.Smoothing)
	e.ringV = newRing(p.Smoothing)

	scale := p.AccelScale * float64(p.Throttle.Milliseconds())
	scale = math.Max(scale, 0)
	blend := math.Min(math.Max(p.AccelBlend, 0), 1)
	e.p = blend / scale
	e.q = blend + 1
	e.r = scale

	e.applyMultipliers()
	e.reset(e.clock.Now())
}

// Params returns the current tunables.
func (e *Engine) Params() Params { return e.params }

// On activates drag-scroll with cfg. It is a no-op while active.
func (e *Engine) On(cfg Config) {
	if e.active {
		return
	}
	e.active = true
	e.cfg = cfg
	e.applied = 0
	e.applyMultipliers()
	e.reset(e.clock.Now())
}

// OnWithoutAxisSnapping activates drag-scroll with both wheels free.
func (e *Engine) OnWithoutAxisSnapping() {
	e.On(Config{NoAxisSnapping: true})
}

// Off deactivates drag-scroll and releases any modifier overlay. It is
// idempotent.
func (e *Engine) Off() {
	e.active = false
	if e.applied != 0 {
		e.mods.UnregisterMods(e.applied)
		e.applied = 0
	}
}

// Active reports whether drag-scroll is on.
func (e *Engine) Active() bool { return e.active }

// Axis returns the snapped axis.
func (e *Engine) Axis() snap.Axis { return e.snapper.Axis() }

func (e *Engine) applyMultipliers() {
	e.multH, e.multV = e.params.MultiplierH, e.params.MultiplierV
	if e.cfg.InvertHorizontal {
		e.multH = -e.multH
	}
	if e.cfg.InvertVertical {
		e.multV = -e.multV
	}
}

func (e *Engine) reset(now time.Time) {
	e.lastMovement = now
	e.accH, e.accV = 0, 0
	e.errH, e.errV = 0, 0
	e.snapper.Reset()
	e.ringH.reset()
	e.ringV.reset()
}

// Task processes one pointer sample at now.
func (e *Engine) Task(now time.Time, m *report.Mouse) {
	if !e.active {
		return
	}
	e.accumulate(now, m)
	if now.Sub(e.lastScroll) < e.params.Throttle {
		return
	}
	e.lastScroll = now
	e.scroll(m)
}

func (e *Engine) accumulate(now time.Time, m *report.Mouse) {
	if m.X == 0 && m.Y == 0 {
		if now.Sub(e.lastMovement) > e.params.Timeout {
			e.reset(now)
		}
		return
	}
	e.lastMovement = now
	e.accH += float64(m.X) * e.params.Resolution
	e.accV += float64(m.Y) * e.params.Resolution
	m.X, m.Y = 0, 0
}

func (e *Engine) scroll(m *report.Mouse) {
	var h, v float64
	if e.params.Smoothing > 1 {
		e.ringH.push(e.accH)
		e.ringV.push(e.accV)
		h, v = e.ringH.mean(), e.ringV.mean()
	} else {
		h, v = e.accH, e.accV
	}
	e.accH, e.accV = 0, 0

	if !e.cfg.NoAxisSnapping {
		var change snap.Change
		h, v, change = e.snapper.Apply(h, v)
		switch change {
		case snap.Decided:
			e.updateModifiers()
		case snap.Switched:
			e.errH, e.errV = 0, 0
			e.updateModifiers()
			e.ringH.reset()
			e.ringV.reset()
		}
	}

	if e.params.Acceleration && !(h == 0 && v == 0) {
		speed := math.Hypot(h, v)
		off := speed - e.r
		f := e.q*off + e.r
		if off < 0 {
			f += e.p * off * off
		}
		f /= speed
		h *= f
		v *= f
	}

	h = h*e.multH + e.errH
	v = v*e.multV + e.errV
	outH, outV := trunc(h), trunc(v)
	e.errH = h - float64(outH)
	e.errV = v - float64(outV)

	if e.cfg.VerticalOnly {
		outV = report.Clamp(int32(outV) + int32(outH))
		outH = 0
	}
	m.H, m.V = outH, outV
}

func trunc(x float64) int16 {
	switch {
	case x > math.MaxInt16:
		return math.MaxInt16
	case x < math.MinInt16:
		return math.MinInt16
	}
	return int16(x)
}

func (e *Engine) overlay(axis snap.Axis) keycode.Mods {
	var m keycode.Mods
	switch axis {
	case snap.Vertical:
		if e.cfg.CtrlWhenVertical {
			m |= keycode.LCtrl
		}
		if e.cfg.ShiftWhenVertical {
			m |= keycode.LShift
		}
		if e.cfg.AltWhenVertical {
			m |= keycode.LAlt
		}
	case snap.Horizontal:
		if e.cfg.CtrlWhenHorizontal {
			m |= keycode.LCtrl
		}
		if e.cfg.ShiftWhenHorizontal {
			m |= keycode.LShift
		}
		if e.cfg.AltWhenHorizontal {
			m |= keycode.LAlt
		}
	}
	return m
}

// updateModifiers moves the overlay to the current axis: modifiers only the
// other axis wanted are released, the current axis' set is registered.
func (e *Engine) updateModifiers() {
	axis := e.snapper.Axis()
	other := snap.Horizontal
	if axis == snap.Horizontal {
		other = snap.Vertical
	}
	want := e.overlay(axis)
	if drop := e.overlay(other) &^ want; drop != 0 {
		e.mods.UnregisterMods(drop)
	}
	if want != 0 {
		e.mods.RegisterMods(want)
	}
	e.applied = want
}
