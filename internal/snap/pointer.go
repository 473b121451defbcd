package snap

import "superkeys/internal/report"

// Pointer defaults.
const (
	DefaultPointerThreshold = 25.0
	DefaultPointerRatio     = 2.0
)

// PointerSnapper applies axis snapping to pointer motion while it is on.
type PointerSnapper struct {
	active  bool
	snapper Snapper
}

// NewPointer creates an inactive pointer snapper.
func NewPointer(threshold, ratio float64) *PointerSnapper {
	return &PointerSnapper{snapper: Snapper{Threshold: threshold, Ratio: ratio}}
}

// SetParams replaces threshold and ratio and restarts from an undecided
// axis.
func (p *PointerSnapper) SetParams(threshold, ratio float64) {
	p.snapper = Snapper{Threshold: threshold, Ratio: ratio}
}

// On starts snapping from an undecided axis. It is a no-op when already on.
func (p *PointerSnapper) On() {
	if p.active {
		return
	}
	p.active = true
	p.snapper.Reset()
}

// Off stops snapping. It is idempotent.
func (p *PointerSnapper) Off() { p.active = false }

// Active reports whether snapping is on.
func (p *PointerSnapper) Active() bool { return p.active }

// Axis returns the locked axis.
func (p *PointerSnapper) Axis() Axis { return p.snapper.Axis() }

// Task snaps the motion of m in place.
func (p *PointerSnapper) Task(m *report.Mouse) {
	if !p.active {
		return
	}
	x, y, _ := p.snapper.Apply(float64(m.X), float64(m.Y))
	m.X, m.Y = int16(x), int16(y)
}
