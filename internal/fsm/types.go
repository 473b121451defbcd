package fsm

import (
	"time"

	"superkeys/internal/dragscroll"
	"superkeys/internal/keycode"
	"superkeys/internal/layer"
)

// Node is a state of the machine.
type Node uint8

const (
	Neutral Node = iota

	CtrlAmbiguous
	CtrlHeld
	CtrlModifier
	CtrlMouse
	UtilOneshotWaiting
	UtilOneshotActive
	Dragscroll

	AltAmbiguous
	AltHeld
	MoveMomentary
	AltMouse

	GuiAmbiguous
	GuiHeld
	FuncMomentary

	CompositeOneshotWaiting
	CompositeOneshotActive

	BaseAmbiguous

	// NumNodes is the number of defined nodes.
	NumNodes
)

var nodeNames = [NumNodes]string{
	"neutral",
	"ctrl_ambiguous", "ctrl_held", "ctrl_modifier", "ctrl_mouse",
	"util_oneshot_waiting", "util_oneshot_active", "dragscroll",
	"alt_ambiguous", "alt_held", "move_momentary", "alt_mouse",
	"gui_ambiguous", "gui_held", "func_momentary",
	"composite_oneshot_waiting", "composite_oneshot_active",
	"base_ambiguous",
}

func (n Node) String() string {
	if n < NumNodes {
		return nodeNames[n]
	}
	return "unknown"
}

// Result tells the caller whether the event continues to normal key
// processing.
type Result uint8

const (
	Pass Result = iota
	Suppress
)

func (r Result) String() string {
	if r == Pass {
		return "pass"
	}
	return "suppress"
}

// Event is one key edge. Kind is filled from Code by NewEvent.
type Event struct {
	Code    keycode.Code
	Kind    keycode.Kind
	Pressed bool
	Time    time.Time
}

// NewEvent classifies code and builds an event.
func NewEvent(code keycode.Code, pressed bool, at time.Time) Event {
	return Event{Code: code, Kind: keycode.Classify(code), Pressed: pressed, Time: at}
}

// Step records one dispatch for tracing.
type Step struct {
	Time         time.Time
	Code         keycode.Code
	Pressed      bool
	Before       Node
	After        Node
	Result       Result
	Redispatched bool
}

// Params are the timing tunables of the machine.
type Params struct {
	CtrlTerm     time.Duration
	AltTerm      time.Duration
	GuiTerm      time.Duration
	BaseTerm     time.Duration
	LongHoldTerm time.Duration

	// Deadzone is the pointer travel that turns a Ctrl tap into drag-scroll.
	Deadzone uint16

	// BufferDuration is how long clicks and scrolls are held back after a
	// super key becomes a modifier because of them.
	BufferDuration time.Duration

	// Scroll is used for drag-scroll normally, BitwigScroll in persistent
	// mode.
	Scroll       dragscroll.Config
	BitwigScroll dragscroll.Config
}

// DefaultParams returns the stock tunables.
func DefaultParams() Params {
	return Params{
		CtrlTerm:       175 * time.Millisecond,
		AltTerm:        175 * time.Millisecond,
		GuiTerm:        175 * time.Millisecond,
		BaseTerm:       800 * time.Millisecond,
		LongHoldTerm:   2500 * time.Millisecond,
		Deadzone:       50,
		BufferDuration: 50 * time.Millisecond,
		BitwigScroll:   dragscroll.BitwigConfig(),
	}
}

// Status is a snapshot of the machine.
type Status struct {
	Node       Node
	BaseLayer  layer.Layer
	Persistent bool
	Mods       keycode.Mods
}
