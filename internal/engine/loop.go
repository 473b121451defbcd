package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"superkeys/internal/keycode"
	"superkeys/internal/report"
)

var (
	// ErrNotRunning is returned by Do when the loop is not running.
	ErrNotRunning = errors.New("engine: loop not running")
	// ErrClosed is returned by Do when the loop stopped before the request
	// ran.
	ErrClosed = errors.New("engine: loop closed")
)

// Input is one event from a device: a key edge, or a pointer sample when
// IsPointer is set. Keys and pointer samples share one queue so the engine
// sees them in arrival order.
type Input struct {
	IsPointer bool
	Code      keycode.Code
	Pressed   bool
	Report    report.Mouse
	Time      time.Time
}

// KeyInput returns a key edge input.
func KeyInput(code keycode.Code, pressed bool, at time.Time) Input {
	return Input{Code: code, Pressed: pressed, Time: at}
}

// PointerInput returns a pointer sample input.
func PointerInput(m report.Mouse, at time.Time) Input {
	return Input{IsPointer: true, Report: m, Time: at}
}

type request struct {
	fn   func(*Engine)
	done chan struct{}
}

type loopState struct {
	once  sync.Once
	input chan Input
	ctl   chan request

	mu      sync.Mutex
	running bool
	stopped chan struct{}
}

func (l *loopState) init() {
	l.once.Do(func() {
		l.input = make(chan Input, 256)
		l.ctl = make(chan request)
	})
}

// Input returns the channel device readers send events on.
func (e *Engine) Input() chan<- Input {
	e.loop.init()
	return e.loop.input
}

func (e *Engine) handle(in Input) {
	if in.IsPointer {
		e.HandlePointer(in.Report, in.Time)
		return
	}
	e.HandleKey(in.Code, in.Pressed, in.Time)
}

// poll runs the wall-clock tick only when no input is queued. Queued events
// carry earlier kernel timestamps and poll the timers themselves.
func (e *Engine) poll() {
	if len(e.loop.input) > 0 {
		return
	}
	e.Tick(e.clk.Now())
}

// Run owns the engine until ctx is done. On exit the machine is reset so no
// output key is left down.
func (e *Engine) Run(ctx context.Context) error {
	e.loop.init()

	e.loop.mu.Lock()
	if e.loop.running {
		e.loop.mu.Unlock()
		return errors.New("engine: already running")
	}
	e.loop.running = true
	e.loop.stopped = make(chan struct{})
	e.loop.mu.Unlock()

	defer func() {
		e.loop.mu.Lock()
		e.loop.running = false
		close(e.loop.stopped)
		e.loop.mu.Unlock()
	}()

	ticker := time.NewTicker(PollInterval)
	defer ticker.Stop()

	e.log.Info("engine started")
	for {
		select {
		case <-ctx.Done():
			e.Reset()
			e.log.Info("engine stopped")
			return ctx.Err()
		case in := <-e.loop.input:
			e.handle(in)
		case r := <-e.loop.ctl:
			r.fn(e)
			close(r.done)
		case <-ticker.C:
			e.poll()
		}
	}
}

// Do runs fn on the loop goroutine and waits for it.
func (e *Engine) Do(ctx context.Context, fn func(*Engine)) error {
	e.loop.init()

	e.loop.mu.Lock()
	if !e.loop.running {
		e.loop.mu.Unlock()
		return ErrNotRunning
	}
	stopped := e.loop.stopped
	e.loop.mu.Unlock()

	r := request{fn: fn, done: make(chan struct{})}
	select {
	case e.loop.ctl <- r:
	case <-stopped:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-r.done:
		return nil
	case <-stopped:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}
