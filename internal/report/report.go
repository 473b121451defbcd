// Package report holds the pointer sample passed between the pointer engines.
package report

// Mouse is one pointer sample: button bitmask, relative motion and wheel.
// V is the vertical wheel (positive away from the user), H the horizontal
// wheel (positive to the right).
type Mouse struct {
	Buttons uint8
	X, Y    int16
	V, H    int16
}

// IsZero reports whether the sample carries nothing.
func (m Mouse) IsZero() bool {
	return m == Mouse{}
}

// HasMotion reports whether the sample moves the pointer.
func (m Mouse) HasMotion() bool { return m.X != 0 || m.Y != 0 }

// HasWheel reports whether the sample scrolls.
func (m Mouse) HasWheel() bool { return m.V != 0 || m.H != 0 }

// Merge ORs buttons and adds motion and wheel of o into m, saturating at the
// int16 range.
func (m *Mouse) Merge(o Mouse) {
	m.Buttons |= o.Buttons
	m.X = add(m.X, o.X)
	m.Y = add(m.Y, o.Y)
	m.V = add(m.V, o.V)
	m.H = add(m.H, o.H)
}

func add(a, b int16) int16 {
	return Clamp(int32(a) + int32(b))
}

// Clamp saturates v to the int16 range.
func Clamp(v int32) int16 {
	switch {
	case v > 32767:
		return 32767
	case v < -32768:
		return -32768
	}
	return int16(v)
}
