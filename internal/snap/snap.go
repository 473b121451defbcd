// Package snap locks two-axis motion onto a single axis with hysteresis.
//
// The first non-tied sample picks an axis. After that, motion along the other
// axis builds up a signed deviation which motion along the locked axis decays
// back toward zero at Ratio times its magnitude. Once the deviation exceeds
// Threshold the lock flips to the other axis.
package snap

import "math"

// Axis is the currently locked axis.
type Axis uint8

const (
	Undecided Axis = iota
	Horizontal
	Vertical
)

func (a Axis) String() string {
	switch a {
	case Horizontal:
		return "horizontal"
	case Vertical:
		return "vertical"
	}
	return "undecided"
}

// Change reports what a call to Apply did to the lock.
type Change uint8

const (
	// Unchanged: the lock held (or stayed undecided on a tie).
	Unchanged Change = iota
	// Decided: an undecided snapper picked its first axis.
	Decided
	// Switched: the deviation crossed the threshold and the lock flipped.
	Switched
)

// Snapper is the float hysteresis shared by drag-scroll and pointer snapping.
type Snapper struct {
	Threshold float64
	Ratio     float64

	axis      Axis
	deviation float64
}

// New returns an undecided snapper.
func New(threshold, ratio float64) *Snapper {
	return &Snapper{Threshold: threshold, Ratio: ratio}
}

// Reset returns to Undecided with no deviation.
func (s *Snapper) Reset() {
	s.axis = Undecided
	s.deviation = 0
}

// Axis returns the locked axis.
func (s *Snapper) Axis() Axis { return s.axis }

// Deviation returns the accumulated cross-axis deviation.
func (s *Snapper) Deviation() float64 { return s.deviation }

// Apply snaps one horizontal/vertical pair and returns the result.
func (s *Snapper) Apply(h, v float64) (float64, float64, Change) {
	switch s.axis {
	case Undecided:
		switch {
		case math.Abs(h) > math.Abs(v):
			s.axis = Horizontal
			return h, 0, Decided
		case math.Abs(h) < math.Abs(v):
			s.axis = Vertical
			return 0, v, Decided
		}
		return h, v, Unchanged
	case Horizontal:
		if s.accumulate(v, h) {
			s.axis = Vertical
			return 0, v, Switched
		}
		return h, 0, Unchanged
	case Vertical:
		if s.accumulate(h, v) {
			s.axis = Horizontal
			return h, 0, Switched
		}
		return 0, v, Unchanged
	}
	return h, v, Unchanged
}

// accumulate adds cross-axis motion, decays by locked-axis motion and reports
// whether the threshold was crossed. A crossing clears the deviation.
func (s *Snapper) accumulate(cross, locked float64) bool {
	s.deviation += cross
	decay := math.Abs(locked) * s.Ratio
	if s.deviation > 0 {
		s.deviation = math.Max(s.deviation-decay, 0)
	} else if s.deviation < 0 {
		s.deviation = math.Min(s.deviation+decay, 0)
	}
	if math.Abs(s.deviation) > s.Threshold {
		s.deviation = 0
		return true
	}
	return false
}
