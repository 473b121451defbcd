package indicator

import (
	"time"

	"superkeys/internal/clock"
)

type step uint8

const (
	stepFadeIn step = iota
	stepHold
	stepFadeOut
	stepStatic
	stepBreathing
)

func (s step) String() string {
	switch s {
	case stepFadeIn:
		return "fade_in"
	case stepHold:
		return "hold"
	case stepFadeOut:
		return "fade_out"
	case stepBreathing:
		return "breathing"
	}
	return "static"
}

// Animator evaluates the indicator color over time. It is driven lazily:
// the color is computed from the clock whenever it is read.
type Animator struct {
	tables Tables
	clock  clock.Clock

	transition Transition
	state      State
	step       step
	start      time.Time
	duration   time.Duration
	from, to   HSV
	forward    bool
	last       HSV
}

// NewAnimator starts in the Off state.
func NewAnimator(t Tables, c clock.Clock) *Animator {
	a := &Animator{tables: t, clock: c}
	a.rest(StateOff, c.Now())
	return a
}

// SetTables swaps the tables and snaps to the current resting state.
func (a *Animator) SetTables(t Tables) {
	a.tables = t
	a.rest(a.state, a.clock.Now())
}

func (a *Animator) rest(s State, now time.Time) {
	a.state = s
	spec := a.tables.States[s]
	if spec.Breathing && spec.Period > 0 {
		a.step = stepBreathing
		a.start = now
		a.duration = spec.Period
		a.from, a.to = simplifyPair(spec.A, spec.B)
		a.forward = true
		a.last = a.from
		return
	}
	a.step = stepStatic
	a.last = spec.A
}

// StartTransition begins transition t from the color currently shown and
// settles in state s.
func (a *Animator) StartTransition(t Transition, s State) {
	if t >= numTransitions || int(s) >= len(a.tables.States) {
		return
	}
	now := a.clock.Now()
	a.Update(now)

	a.transition = t
	a.state = s
	a.step = stepFadeIn
	a.start = now
	a.duration = a.tables.Transitions[t].FadeIn
	a.from, a.to = simplifyPair(a.last, a.tables.Transitions[t].Accent)
}

// Color returns the color at the clock's current time.
func (a *Animator) Color() HSV {
	return a.Update(a.clock.Now())
}

// State returns the resting state the animator is in or heading to.
func (a *Animator) State() State { return a.state }

// Phase names the current animation step.
func (a *Animator) Phase() string { return a.step.String() }

// Update advances the animation to now and returns the color.
func (a *Animator) Update(now time.Time) HSV {
	for a.step != stepStatic {
		elapsed := now.Sub(a.start)
		if elapsed < 0 {
			elapsed = 0
		}
		if a.step == stepBreathing {
			if n := int64(elapsed / a.duration); n > 0 {
				if n%2 == 1 {
					a.from, a.to = simplifyPair(a.to, a.from)
				}
				a.start = a.start.Add(time.Duration(n) * a.duration)
				elapsed -= time.Duration(n) * a.duration
			}
		}
		if elapsed < a.duration {
			a.last = lerp(a.from, a.to, float64(elapsed)/float64(a.duration))
			return a.last
		}
		a.advance(a.start.Add(a.duration))
	}
	return a.last
}

func (a *Animator) advance(at time.Time) {
	tr := a.tables.Transitions[a.transition]
	target := a.tables.States[a.state]
	a.start = at

	switch a.step {
	case stepFadeIn:
		a.step = stepHold
		a.duration = tr.Hold
		a.from, a.to = simplifyPair(tr.Accent, tr.Accent)
	case stepHold:
		a.step = stepFadeOut
		a.duration = tr.FadeOut
		final := target.A
		if target.Breathing {
			if hueDistance(target.A.H, tr.Accent.H) < hueDistance(target.B.H, tr.Accent.H) {
				final, a.forward = target.A, true
			} else {
				final, a.forward = target.B, false
			}
		}
		a.from, a.to = simplifyPair(tr.Accent, final)
	case stepFadeOut:
		if target.Breathing && target.Period > 0 {
			a.step = stepBreathing
			a.duration = target.Period
			if a.forward {
				a.from, a.to = simplifyPair(target.A, target.B)
			} else {
				a.from, a.to = simplifyPair(target.B, target.A)
			}
			return
		}
		a.step = stepStatic
		a.last = a.to
	}
}
