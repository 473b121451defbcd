// Package host connects the engine to real input devices: grabbed evdev
// sources feed it and a uinput device receives its output.
package host

import (
	"errors"
	"strings"

	"superkeys/internal/report"
)

// VirtualName is the name of the output device. Sources with this name are
// never attached.
const VirtualName = "superkeys virtual input"

var (
	// ErrDeviceNotFound is returned when no device matches.
	ErrDeviceNotFound = errors.New("host: no matching input device")
	// ErrClosed is returned by a closed sink.
	ErrClosed = errors.New("host: device closed")
)

// DeviceInfo describes an input device node.
type DeviceInfo struct {
	Path     string `json:"path"`
	Name     string `json:"name"`
	Keyboard bool   `json:"keyboard"`
	Pointer  bool   `json:"pointer"`
	HiRes    bool   `json:"hires_wheel"`
}

// Matcher selects the devices to grab. Name patterns are case-insensitive
// substrings. An empty Include matches every keyboard and pointer.
type Matcher struct {
	Include   []string
	Exclude   []string
	Keyboards bool
	Pointers  bool
}

// Match reports whether d should be attached.
func (m Matcher) Match(d DeviceInfo) bool {
	if d.Name == VirtualName {
		return false
	}
	if !(m.Keyboards && d.Keyboard) && !(m.Pointers && d.Pointer) {
		return false
	}
	name := strings.ToLower(d.Name)
	for _, ex := range m.Exclude {
		if ex != "" && strings.Contains(name, strings.ToLower(ex)) {
			return false
		}
	}
	if len(m.Include) == 0 {
		return true
	}
	for _, in := range m.Include {
		if in != "" && strings.Contains(name, strings.ToLower(in)) {
			return true
		}
	}
	return false
}

// wheelUnit is the hi-res wheel value of one detent.
const wheelUnit = 120

// wheelDetents splits accumulated hi-res wheel travel into whole detents
// for devices that only understand REL_WHEEL, keeping the remainder.
type wheelDetents struct {
	rem int
}

func (w *wheelDetents) add(hires int16) int32 {
	w.rem += int(hires)
	n := w.rem / wheelUnit
	w.rem -= n * wheelUnit
	return int32(n)
}

// buttonChanges lists (index, down) for every bit that differs between
// prev and next, lowest first.
func buttonChanges(prev, next uint8) []buttonChange {
	var out []buttonChange
	diff := prev ^ next
	for i := 0; i < 8; i++ {
		if diff&(1<<i) != 0 {
			out = append(out, buttonChange{index: i, down: next&(1<<i) != 0})
		}
	}
	return out
}

type buttonChange struct {
	index int
	down  bool
}

// pointerBatch collects relative motion and button state between two
// SYN_REPORTs.
type pointerBatch struct {
	cur     report.Mouse
	buttons uint8
	dirty   bool
	hires   bool
}

func (b *pointerBatch) button(i int, down bool) {
	if i < 0 || i > 7 {
		return
	}
	if down {
		b.buttons |= 1 << i
	} else {
		b.buttons &^= 1 << i
	}
	b.dirty = true
}

func (b *pointerBatch) move(x, y int32) {
	b.cur.X = report.Clamp(int32(b.cur.X) + x)
	b.cur.Y = report.Clamp(int32(b.cur.Y) + y)
	b.dirty = true
}

// wheel adds detents, ignored once the device has shown hi-res events.
func (b *pointerBatch) wheel(v, h int32) {
	if b.hires {
		return
	}
	b.wheelHiRes(v*wheelUnit, h*wheelUnit)
}

func (b *pointerBatch) wheelHiRes(v, h int32) {
	b.cur.V = report.Clamp(int32(b.cur.V) + v)
	b.cur.H = report.Clamp(int32(b.cur.H) + h)
	b.dirty = true
}

// flush returns the collected sample, if any, and starts a new batch.
func (b *pointerBatch) flush() (report.Mouse, bool) {
	if !b.dirty {
		return report.Mouse{}, false
	}
	out := b.cur
	out.Buttons = b.buttons
	b.cur = report.Mouse{}
	b.dirty = false
	return out, true
}
