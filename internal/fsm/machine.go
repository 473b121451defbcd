// Package fsm is the super-key state machine.
//
// A handful of physical "super" keys take on several roles depending on
// timing, key order and pointer activity: tapped, the Ctrl super key arms a
// one-shot utility layer or drag-scroll; held with another key it is Ctrl;
// the Alt and Gui super keys switch to momentary navigation and function
// layers or compose one-shot modifiers; the Base key flips the base layer.
//
// The machine is synchronous and single threaded. Everything it affects is
// reached through the Deps interfaces, and the timer and motion watcher feed
// their firings back in as Timeout and Motion events.
package fsm

import (
	"superkeys/internal/indicator"
	"superkeys/internal/keycode"
	"superkeys/internal/layer"
)

type action uint8

const (
	actPass action = iota
	actSuppress
	actRedispatch
)

// Machine holds the state and auxiliary variables.
type Machine struct {
	deps   Deps
	params Params

	node       Node
	base       layer.Layer
	bits       keycode.Mods
	persistent bool

	onStep func(Step)
}

// New creates a machine in Neutral on the Work base layer.
func New(deps Deps, params Params) *Machine {
	return &Machine{deps: deps.withDefaults(), params: params}
}

// SetParams replaces the tunables. The current state is kept.
func (m *Machine) SetParams(p Params) { m.params = p }

// Params returns the tunables.
func (m *Machine) Params() Params { return m.params }

// OnStep installs a hook called after every dispatch.
func (m *Machine) OnStep(fn func(Step)) { m.onStep = fn }

// Init sets the startup pointer routing: buttons and wheel through the
// pipeline, pointer motion direct.
func (m *Machine) Init() {
	m.deps.Passthrough.SetButtons(true, true)
	m.deps.Passthrough.SetWheel(true, true)
	m.deps.Passthrough.SetPointer(false, false)
}

// Node returns the current node.
func (m *Machine) Node() Node { return m.node }

// Status returns a snapshot of the machine.
func (m *Machine) Status() Status {
	return Status{Node: m.node, BaseLayer: m.base, Persistent: m.persistent, Mods: m.bits}
}

// Reset forces a transition to Neutral. Base layer and persistent mode are
// kept.
func (m *Machine) Reset() { m.toNeutral() }

// Dispatch runs one event through the machine. A handler that starts a new
// gesture while another is in flight returns to Neutral and asks for the
// event to be handled again; that happens at most once per event.
func (m *Machine) Dispatch(ev Event) Result {
	before := m.node
	act := m.handle(ev)
	redispatched := false
	if act == actRedispatch {
		redispatched = true
		act = m.handle(ev)
		if act == actRedispatch {
			act = actPass
		}
	}
	res := Pass
	if act == actSuppress {
		res = Suppress
	}
	if m.onStep != nil {
		m.onStep(Step{
			Time:         ev.Time,
			Code:         ev.Code,
			Pressed:      ev.Pressed,
			Before:       before,
			After:        m.node,
			Result:       res,
			Redispatched: redispatched,
		})
	}
	return res
}

func (m *Machine) handle(ev Event) action {
	if ev.Kind == keycode.Momentary {
		return actPass
	}
	if ev.Kind == keycode.Shift {
		if !m.persistent {
			return actPass
		}
		if ev.Pressed {
			m.deps.Snapping.On()
			m.deps.Passthrough.SetPointer(true, true)
		} else {
			m.deps.Snapping.Off()
			m.deps.Passthrough.SetPointer(false, false)
		}
		return actSuppress
	}

	switch m.node {
	case Neutral:
		return m.neutral(ev)
	case CtrlAmbiguous:
		return m.ctrlAmbiguous(ev)
	case CtrlHeld:
		return m.ctrlHeld(ev)
	case CtrlModifier:
		return m.ctrlModifier(ev, false)
	case CtrlMouse:
		return m.ctrlModifier(ev, true)
	case UtilOneshotWaiting:
		return m.utilWaiting(ev)
	case UtilOneshotActive:
		return m.utilActive(ev)
	case Dragscroll:
		return m.dragscroll(ev)
	case AltAmbiguous:
		return m.altAmbiguous(ev, true)
	case AltHeld:
		return m.altAmbiguous(ev, false)
	case MoveMomentary:
		return m.moveMomentary(ev)
	case AltMouse:
		return m.altMouse(ev)
	case GuiAmbiguous:
		return m.guiAmbiguous(ev)
	case GuiHeld:
		return m.guiHeld(ev)
	case FuncMomentary:
		return m.funcMomentary(ev)
	case CompositeOneshotWaiting:
		return m.compositeWaiting(ev)
	case CompositeOneshotActive:
		return m.compositeActive(ev)
	case BaseAmbiguous:
		return m.baseAmbiguous(ev)
	}
	return actPass
}

// toNeutral is idempotent. It leaves the base layer and persistent mode
// alone.
func (m *Machine) toNeutral() {
	m.node = Neutral
	m.bits = 0
	m.deps.Keyboard.Clear()
	m.deps.Scroller.Off()
	m.deps.Passthrough.SetPointer(false, false)
	m.deps.Watcher.Disarm()
	m.deps.Timer.Disarm()
	m.deps.Layers.Off(layer.Util)
	m.deps.Layers.Off(layer.Move)
	m.deps.Layers.Off(layer.Func)
}

// resting is where the indicator settles once a gesture ends.
func (m *Machine) resting() indicator.State {
	if m.base == layer.Work {
		return indicator.StateOff
	}
	return indicator.StateBase
}

func (m *Machine) indicate(t indicator.Transition, s indicator.State) {
	m.deps.Indicator.StartTransition(t, s)
}

func (m *Machine) setPersistent(on bool) {
	m.persistent = on
	if on {
		m.indicate(indicator.FlashBitwig, m.resting())
		return
	}
	m.deps.Snapping.Off()
	m.deps.Passthrough.SetPointer(false, false)
	m.indicate(indicator.FlashNeutral, m.resting())
}

func superPress(ev Event) bool { return ev.Pressed && ev.Kind.IsSuper() }

func released(ev Event, k keycode.Kind) bool { return !ev.Pressed && ev.Kind == k }

func physicalPress(ev Event) bool { return ev.Pressed && !ev.Kind.IsSynthetic() }

func arrowFor(c keycode.Code) keycode.Code {
	switch c {
	case keycode.WheelUp:
		return keycode.Up
	case keycode.WheelDown:
		return keycode.Down
	case keycode.WheelLeft:
		return keycode.Left
	}
	return keycode.Right
}
