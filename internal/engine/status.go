package engine

import (
	"context"

	"superkeys/internal/passthrough"
)

// Status is a point-in-time view of the engine.
type Status struct {
	Node       string       `json:"node"`
	BaseLayer  string       `json:"base_layer"`
	Layers     string       `json:"layers"`
	Persistent bool         `json:"persistent"`
	Composite  string       `json:"composite_mods"`
	OutputMods string       `json:"output_mods"`
	HeldKeys   int          `json:"held_keys"`
	TimerArmed bool         `json:"timer_armed"`
	Watching   bool         `json:"watching"`
	Buffering  bool         `json:"buffering"`
	Dragscroll bool         `json:"dragscroll"`
	ScrollAxis string       `json:"scroll_axis,omitempty"`
	Snapping   bool         `json:"snapping"`
	Routing    RoutingState `json:"routing"`
	Indicator  IndicatorRef `json:"indicator"`
}

// RoutingState is the pointer passthrough routing.
type RoutingState struct {
	Buttons passthrough.State `json:"buttons"`
	Pointer passthrough.State `json:"pointer"`
	Wheel   passthrough.State `json:"wheel"`
}

// IndicatorRef is the indicator's current animation.
type IndicatorRef struct {
	State string `json:"state"`
	Phase string `json:"phase"`
	Color string `json:"color"`
}

// Status reads the state directly. Only call it from the loop goroutine or
// when the loop is not running.
func (e *Engine) Status() Status {
	ms := e.machine.Status()
	st := Status{
		Node:       ms.Node.String(),
		BaseLayer:  ms.BaseLayer.String(),
		Layers:     e.stack.Active().String(),
		Persistent: ms.Persistent,
		Composite:  ms.Mods.String(),
		OutputMods: e.kb.Mods().String(),
		HeldKeys:   e.kb.Held(),
		TimerArmed: e.timer.Armed(),
		Watching:   e.watcher.Active(),
		Buffering:  e.buffer.Active(),
		Dragscroll: e.scroll.Active(),
		Snapping:   e.snapper.Active(),
		Routing: RoutingState{
			Buttons: e.gate.Buttons(),
			Pointer: e.gate.Pointer(),
			Wheel:   e.gate.Wheel(),
		},
		Indicator: IndicatorRef{
			Color: e.animator.Color().RGB().Hex(),
			State: e.animator.State().String(),
			Phase: e.animator.Phase(),
		},
	}
	if st.Dragscroll {
		st.ScrollAxis = e.scroll.Axis().String()
	}
	return st
}

// Snapshot returns Status through the loop.
func (e *Engine) Snapshot(ctx context.Context) (Status, error) {
	var st Status
	err := e.Do(ctx, func(e *Engine) { st = e.Status() })
	return st, err
}
