// Package inverse turns pointer button and wheel activity into key events so
// the state machine can react to clicks and scrolls the same way it reacts to
// keys.
package inverse

import (
	"superkeys/internal/keycode"
	"superkeys/internal/report"
)

// DispatchFunc delivers a synthetic key event and reports whether it should
// pass through.
type DispatchFunc func(code keycode.Code, pressed bool) bool

// Translator remembers the previous button state to find edges.
type Translator struct {
	dispatch DispatchFunc
	prev     uint8
}

// New creates a translator that sends edges to dispatch.
func New(dispatch DispatchFunc) *Translator {
	return &Translator{dispatch: dispatch}
}

// SetDispatch replaces the dispatch target.
func (t *Translator) SetDispatch(fn DispatchFunc) { t.dispatch = fn }

// Reset forgets the remembered button state.
func (t *Translator) Reset() { t.prev = 0 }

// Task dispatches the edges of m. A suppressed button edge is undone in m,
// and a suppressed wheel direction zeroes that wheel.
//
// The remembered state is the post-dispatch one, so a button whose press was
// suppressed is seen as pressed again on the next sample and dispatched
// again.
func (t *Translator) Task(m *report.Mouse) {
	if t.dispatch == nil {
		return
	}
	changed := m.Buttons ^ t.prev
	for i := 0; i < 8; i++ {
		mask := uint8(1) << i
		if changed&mask == 0 {
			continue
		}
		if !t.dispatch(keycode.MouseButton(i), m.Buttons&mask != 0) {
			m.Buttons ^= mask
		}
	}
	t.prev = m.Buttons

	if m.V != 0 {
		code := keycode.WheelDown
		if m.V > 0 {
			code = keycode.WheelUp
		}
		if !t.dispatch(code, true) {
			m.V = 0
		}
	}
	if m.H != 0 {
		code := keycode.WheelLeft
		if m.H > 0 {
			code = keycode.WheelRight
		}
		if !t.dispatch(code, true) {
			m.H = 0
		}
	}
}
