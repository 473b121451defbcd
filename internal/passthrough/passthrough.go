// Package passthrough decides which parts of a pointer sample go through the
// remapping pipeline and which go straight to the output device.
//
// Each component (buttons, pointer motion, wheel) has a send flag, which
// routes it into the pipeline, and a block flag, which keeps it off the
// direct path. Changes that would cut a held button in half are deferred
// until every button is released.
package passthrough

import "superkeys/internal/report"

// State is a (send, block) pair.
type State struct {
	Send  bool `json:"send"`
	Block bool `json:"block"`
}

// Gate holds the per-component routing state.
type Gate struct {
	buttons State
	pointer State
	wheel   State

	blockButtonsQueued   bool
	sendButtonsOffQueued bool
	lastButtons          uint8
}

// New returns a gate with buttons and wheel routed through the pipeline and
// pointer motion sent directly.
func New() *Gate {
	g := &Gate{}
	g.Reset()
	return g
}

// Reset restores the startup routing.
func (g *Gate) Reset() {
	*g = Gate{
		buttons: State{Send: true, Block: true},
		wheel:   State{Send: true, Block: true},
	}
}

// SetPointer sets pointer motion routing.
func (g *Gate) SetPointer(send, block bool) { g.pointer = State{send, block} }

// SetWheel sets wheel routing.
func (g *Gate) SetWheel(send, block bool) { g.wheel = State{send, block} }

// SetButtons sets button routing. Blocking, and stopping to send, wait for
// the buttons to be released.
func (g *Gate) SetButtons(send, block bool) {
	if block {
		if !g.buttons.Block {
			if g.lastButtons == 0 {
				g.buttons.Block = true
			} else {
				g.blockButtonsQueued = true
			}
		}
	} else {
		g.buttons.Block = false
		g.blockButtonsQueued = false
	}

	if !send {
		if g.buttons.Send {
			if g.lastButtons == 0 {
				g.buttons.Send = false
			} else {
				g.sendButtonsOffQueued = true
			}
		}
	} else {
		g.buttons.Send = true
		g.sendButtonsOffQueued = false
	}
}

// Pointer returns the pointer routing.
func (g *Gate) Pointer() State { return g.pointer }

// Buttons returns the button routing.
func (g *Gate) Buttons() State { return g.buttons }

// Wheel returns the wheel routing.
func (g *Gate) Wheel() State { return g.wheel }

// Split divides raw into the routed part and the direct part.
func (g *Gate) Split(raw report.Mouse) (routed, direct report.Mouse) {
	g.lastButtons = raw.Buttons

	if g.buttons.Send {
		routed.Buttons = raw.Buttons
	}
	if !g.buttons.Block {
		direct.Buttons = raw.Buttons
	}
	if g.pointer.Send {
		routed.X, routed.Y = raw.X, raw.Y
	}
	if !g.pointer.Block {
		direct.X, direct.Y = raw.X, raw.Y
	}
	if g.wheel.Send {
		routed.V, routed.H = raw.V, raw.H
	}
	if !g.wheel.Block {
		direct.V, direct.H = raw.V, raw.H
	}

	if raw.Buttons == 0 {
		if g.blockButtonsQueued {
			g.buttons.Block = true
			g.blockButtonsQueued = false
		}
		if g.sendButtonsOffQueued {
			g.buttons.Send = false
			g.sendButtonsOffQueued = false
		}
	}
	return routed, direct
}
