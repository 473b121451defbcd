// Package motion detects pointer travel past a threshold.
package motion

import "superkeys/internal/report"

// Watcher accumulates relative motion while armed and calls its callback once
// either axis reaches the threshold, then disarms itself.
type Watcher struct {
	callback  func()
	active    bool
	threshold int32
	x, y      int32
}

// New creates a disarmed watcher.
func New(callback func()) *Watcher {
	return &Watcher{callback: callback, threshold: 1}
}

// SetCallback replaces the function run on a crossing.
func (w *Watcher) SetCallback(fn func()) { w.callback = fn }

// Arm zeroes the accumulators and starts watching.
func (w *Watcher) Arm(threshold uint16) {
	w.active = true
	w.threshold = int32(threshold)
	w.x, w.y = 0, 0
}

// Disarm stops watching. It is idempotent.
func (w *Watcher) Disarm() { w.active = false }

// Active reports whether the watcher is armed.
func (w *Watcher) Active() bool { return w.active }

// Task feeds one pointer sample. The report is not modified.
func (w *Watcher) Task(m *report.Mouse) {
	if !w.active {
		return
	}
	w.x += int32(m.X)
	w.y += int32(m.Y)
	if abs(w.x) >= w.threshold || abs(w.y) >= w.threshold {
		if w.callback != nil {
			w.callback()
		}
		w.Disarm()
	}
}

func abs(v int32) int32 {
	if v < 0 {
		return -v
	}
	return v
}
