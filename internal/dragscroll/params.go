package dragscroll

import "time"

// Params are the drag-scroll tunables.
type Params struct {
	// MultiplierH and MultiplierV scale accumulated motion into wheel units.
	// A negative vertical multiplier makes pushing the pointer up scroll up.
	MultiplierH float64
	MultiplierV float64

	// Resolution is the number of wheel units per detent (120 for hi-res).
	Resolution float64

	Throttle time.Duration
	Timeout  time.Duration

	SnapThreshold float64
	SnapRatio     float64

	// Smoothing is the depth of the moving average; 1 or less disables it.
	Smoothing int

	Acceleration bool
	AccelScale   float64
	AccelBlend   float64
}

// DefaultParams returns the tuned defaults.
func DefaultParams() Params {
	return Params{
		MultiplierH:   0.3,
		MultiplierV:   -0.3,
		Resolution:    120,
		Throttle:      16 * time.Millisecond,
		Timeout:       500 * time.Millisecond,
		SnapThreshold: 0.25,
		SnapRatio:     2.0,
		Smoothing:     5,
		Acceleration:  true,
		AccelScale:    500,
		AccelBlend:    0.872116,
	}
}

// Config selects the per-activation behavior.
type Config struct {
	// VerticalOnly folds horizontal scrolling into the vertical wheel.
	VerticalOnly bool

	CtrlWhenVertical  bool
	ShiftWhenVertical bool
	AltWhenVertical   bool

	CtrlWhenHorizontal  bool
	ShiftWhenHorizontal bool
	AltWhenHorizontal   bool

	InvertVertical   bool
	InvertHorizontal bool

	// NoAxisSnapping lets both wheels move at once.
	NoAxisSnapping bool
}

// BitwigConfig scrolls only the vertical wheel and holds Shift (plus Alt when
// horizontal) so a DAW timeline pans and zooms.
func BitwigConfig() Config {
	return Config{
		VerticalOnly:        true,
		ShiftWhenVertical:   true,
		ShiftWhenHorizontal: true,
		AltWhenHorizontal:   true,
		InvertHorizontal:    true,
	}
}
