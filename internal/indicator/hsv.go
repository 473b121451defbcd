package indicator

import "fmt"

// HSV is an 8-bit hue/saturation/value color. Hue wraps at 256.
type HSV struct {
	H uint8 `json:"h"`
	S uint8 `json:"s"`
	V uint8 `json:"v"`
}

// RGB is an 8-bit RGB color.
type RGB struct {
	R uint8 `json:"r"`
	G uint8 `json:"g"`
	B uint8 `json:"b"`
}

// Hex formats c as #rrggbb.
func (c RGB) Hex() string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

// RGB converts c using integer sector arithmetic.
func (c HSV) RGB() RGB {
	if c.S == 0 {
		return RGB{c.V, c.V, c.V}
	}
	h, s, v := uint16(c.H), uint16(c.S), uint16(c.V)
	region := h * 6 / 255
	remainder := (h*2 - region*85) * 3

	p := uint8((v * (255 - s)) >> 8)
	q := uint8((v * (255 - ((s * remainder) >> 8))) >> 8)
	t := uint8((v * (255 - ((s * (255 - remainder)) >> 8))) >> 8)
	vv := uint8(v)

	switch region {
	case 6, 0:
		return RGB{vv, t, p}
	case 1:
		return RGB{q, vv, p}
	case 2:
		return RGB{p, vv, t}
	case 3:
		return RGB{p, q, vv}
	case 4:
		return RGB{t, p, vv}
	}
	return RGB{vv, p, q}
}

// simplifyPair borrows hue and saturation across a fade so that fading from
// or to black or grey does not sweep through unrelated hues.
func simplifyPair(a, b HSV) (HSV, HSV) {
	if a.V == 0 || a.S == 0 {
		a.H = b.H
	} else if b.V == 0 || b.S == 0 {
		b.H = a.H
	}
	if a.V == 0 {
		a.S = b.S
	} else if b.V == 0 {
		b.S = a.S
	}
	return a, b
}

// lerp interpolates along the shorter way around the hue circle.
func lerp(from, to HSV, ratio float64) HSV {
	if ratio <= 0 {
		return from
	}
	if ratio >= 1 {
		return to
	}
	hDiff := int16(to.H) - int16(from.H)
	switch {
	case from.V == 0:
		hDiff = 0
	case hDiff > 127:
		hDiff -= 256
	case hDiff < -127:
		hDiff += 256
	}
	h := int16(from.H) + int16(float64(hDiff)*ratio)
	if h < 0 {
		h += 256
	} else if h > 255 {
		h -= 256
	}
	return HSV{
		H: uint8(h),
		S: uint8(float64(from.S) + float64(int16(to.S)-int16(from.S))*ratio),
		V: uint8(float64(from.V) + float64(int16(to.V)-int16(from.V))*ratio),
	}
}

// hueDistance is the distance between two hues on the circle.
func hueDistance(a, b uint8) int16 {
	d := int16(a) - int16(b)
	if d < 0 {
		d = -d
	}
	if d > 127 {
		d = 256 - d
	}
	return d
}
