package deferred

import "time"

// Timer is a single-slot, re-armable countdown over a Scheduler.
//
// Arm and Disarm may be called from inside the timer's own callback. There
// they only set what the wrapper returns to the scheduler: Arm(d) reschedules
// after d, Disarm (or doing nothing) finishes.
type Timer struct {
	sched    *Scheduler
	callback func()

	token  Token
	inside bool
	ret    time.Duration
}

// NewTimer creates a disarmed timer. callback may be set later with
// SetCallback.
func NewTimer(s *Scheduler, callback func()) *Timer {
	return &Timer{sched: s, callback: callback}
}

// SetCallback replaces the function run when the timer fires.
func (t *Timer) SetCallback(fn func()) { t.callback = fn }

// Arm starts the countdown, or restarts it with the new delay when already
// armed.
func (t *Timer) Arm(delay time.Duration) {
	if delay <= 0 {
		delay = time.Millisecond
	}
	switch {
	case t.inside:
		t.ret = delay
	case t.token == InvalidToken:
		t.token = t.sched.Schedule(delay, t.fire)
	default:
		if !t.sched.Extend(t.token, delay) {
			t.token = t.sched.Schedule(delay, t.fire)
		}
	}
}

// Disarm stops the countdown. It is idempotent.
func (t *Timer) Disarm() {
	switch {
	case t.inside:
		t.ret = 0
	case t.token != InvalidToken:
		t.sched.Cancel(t.token)
		t.token = InvalidToken
	}
}

// Armed reports whether the timer will fire.
func (t *Timer) Armed() bool {
	if t.inside {
		return t.ret > 0
	}
	return t.token != InvalidToken
}

func (t *Timer) fire(time.Time) time.Duration {
	t.ret = 0
	t.inside = true
	if t.callback != nil {
		t.callback()
	}
	t.inside = false
	if t.ret == 0 {
		t.token = InvalidToken
	}
	return t.ret
}
