package fsm

import (
	"time"

	"superkeys/internal/dragscroll"
	"superkeys/internal/indicator"
	"superkeys/internal/keycode"
	"superkeys/internal/layer"
)

// Layers switches keymap layers.
type Layers interface {
	On(layer.Layer)
	Off(layer.Layer)
}

// Keyboard is the output keyboard model.
type Keyboard interface {
	RegisterMods(keycode.Mods)
	UnregisterMods(keycode.Mods)
	// Clear releases every held key and modifier.
	Clear()
	// ClearButMods releases held keys, keeping modifiers.
	ClearButMods()
	// Tap presses and releases code.
	Tap(keycode.Code)
}

// Timer is the single deferred timer.
type Timer interface {
	Arm(time.Duration)
	Disarm()
}

// Watcher is the pointer motion watcher.
type Watcher interface {
	Arm(threshold uint16)
	Disarm()
}

// Scroller is the drag-scroll engine.
type Scroller interface {
	On(dragscroll.Config)
	Off()
}

// Buffer is the mouse input buffer.
type Buffer interface {
	On(now time.Time, d time.Duration)
}

// Passthrough routes pointer components.
type Passthrough interface {
	SetPointer(send, block bool)
	SetButtons(send, block bool)
	SetWheel(send, block bool)
}

// Snapping is pointer axis snapping.
type Snapping interface {
	On()
	Off()
}

// Deps are the collaborators the machine drives. Nil members are replaced
// by no-ops.
type Deps struct {
	Layers      Layers
	Keyboard    Keyboard
	Timer       Timer
	Watcher     Watcher
	Scroller    Scroller
	Buffer      Buffer
	Passthrough Passthrough
	Snapping    Snapping
	Indicator   indicator.Indicator

	// ButtonsHeld reports whether any pointer button is down.
	ButtonsHeld func() bool
}

type nop struct{}

func (nop) On(layer.Layer)              {}
func (nop) Off(layer.Layer)             {}
func (nop) RegisterMods(keycode.Mods)   {}
func (nop) UnregisterMods(keycode.Mods) {}
func (nop) Clear()                      {}
func (nop) ClearButMods()               {}
func (nop) Tap(keycode.Code)            {}
func (nop) SetPointer(bool, bool)       {}
func (nop) SetButtons(bool, bool)       {}
func (nop) SetWheel(bool, bool)         {}

type nopTimer struct{}

func (nopTimer) Arm(time.Duration) {}
func (nopTimer) Disarm()           {}

type nopWatcher struct{}

func (nopWatcher) Arm(uint16) {}
func (nopWatcher) Disarm()    {}

type nopScroller struct{}

func (nopScroller) On(dragscroll.Config) {}
func (nopScroller) Off()                 {}

type nopBuffer struct{}

func (nopBuffer) On(time.Time, time.Duration) {}

type nopSnapping struct{}

func (nopSnapping) On()  {}
func (nopSnapping) Off() {}

func (d Deps) withDefaults() Deps {
	if d.Layers == nil {
		d.Layers = nop{}
	}
	if d.Keyboard == nil {
		d.Keyboard = nop{}
	}
	if d.Timer == nil {
		d.Timer = nopTimer{}
	}
	if d.Watcher == nil {
		d.Watcher = nopWatcher{}
	}
	if d.Scroller == nil {
		d.Scroller = nopScroller{}
	}
	if d.Buffer == nil {
		d.Buffer = nopBuffer{}
	}
	if d.Passthrough == nil {
		d.Passthrough = nop{}
	}
	if d.Snapping == nil {
		d.Snapping = nopSnapping{}
	}
	if d.Indicator == nil {
		d.Indicator = indicator.Nop{}
	}
	if d.ButtonsHeld == nil {
		d.ButtonsHeld = func() bool { return false }
	}
	return d
}
