package keycode

import "strings"

// Mods is a modifier bitset in HID order.
type Mods uint8

const (
	LCtrl Mods = 1 << iota
	LShift
	LAlt
	LGui
	RCtrl
	RShift
	RAlt
	RGui
)

var modCodes = [8]Code{LeftCtrl, LeftShift, LeftAlt, LeftMeta, RightCtrl, RightShift, RightAlt, RightMeta}

// ModOf returns the modifier bit for a modifier or shift code, or 0.
func ModOf(c Code) Mods {
	for i, mc := range modCodes {
		if mc == c {
			return 1 << i
		}
	}
	return 0
}

// Codes returns the key codes of the set bits, lowest bit first.
func (m Mods) Codes() []Code {
	var out []Code
	for i, c := range modCodes {
		if m&(1<<i) != 0 {
			out = append(out, c)
		}
	}
	return out
}

// Has reports whether every bit of o is set in m.
func (m Mods) Has(o Mods) bool { return m&o == o }

func (m Mods) String() string {
	if m == 0 {
		return "none"
	}
	var parts []string
	for _, c := range m.Codes() {
		parts = append(parts, c.String())
	}
	return strings.Join(parts, "+")
}
