// Package mousebuf holds back pointer buttons and wheel for a short window.
//
// When a super key turns into a modifier because of a click or a scroll, the
// click that caused it must reach the host after the modifier. The buffer
// swallows buttons and wheel for the window and replays them merged into the
// first sample after it closes.
package mousebuf

import (
	"time"

	"superkeys/internal/report"
)

// Buffer coalesces buttons (OR) and wheel (sum) while active.
type Buffer struct {
	active   bool
	start    time.Time
	duration time.Duration

	buttons uint8
	v, h    int16
}

// New returns an inactive buffer.
func New() *Buffer { return &Buffer{} }

// On opens (or restarts) the window at now. Values already held are kept when
// the buffer is active.
func (b *Buffer) On(now time.Time, duration time.Duration) {
	if !b.active {
		b.buttons, b.v, b.h = 0, 0, 0
		b.active = true
	}
	b.start = now
	b.duration = duration
}

// Active reports whether the window is open.
func (b *Buffer) Active() bool { return b.active }

// Task processes one sample at now.
func (b *Buffer) Task(now time.Time, m *report.Mouse) {
	if !b.active {
		return
	}
	if now.Sub(b.start) < b.duration {
		b.buttons |= m.Buttons
		b.v = report.Clamp(int32(b.v) + int32(m.V))
		b.h = report.Clamp(int32(b.h) + int32(m.H))
		m.Buttons, m.V, m.H = 0, 0, 0
		return
	}
	m.Merge(report.Mouse{Buttons: b.buttons, V: b.v, H: b.h})
	b.buttons, b.v, b.h = 0, 0, 0
	b.active = false
}
