package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"superkeys/internal/clock"
	"superkeys/internal/fsm"
	"superkeys/internal/keycode"
	"superkeys/internal/keymap"
	"superkeys/internal/layer"
	"superkeys/internal/metrics"
	"superkeys/internal/report"
)

type output struct {
	key     keycode.Code
	down    bool
	pointer *report.Mouse
}

type recordingEmitter struct {
	mu   sync.Mutex
	out  []output
	fail error
}

func (r *recordingEmitter) Key(c keycode.Code, down bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return r.fail
	}
	r.out = append(r.out, output{key: c, down: down})
	return nil
}

func (r *recordingEmitter) Pointer(m report.Mouse) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.out = append(r.out, output{pointer: &m})
	return nil
}

func (r *recordingEmitter) keys() []output {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ks []output
	for _, o := range r.out {
		if o.pointer == nil {
			ks = append(ks, o)
		}
	}
	return ks
}

func (r *recordingEmitter) pointers() []report.Mouse {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ps []report.Mouse
	for _, o := range r.out {
		if o.pointer != nil {
			ps = append(ps, *o.pointer)
		}
	}
	return ps
}

type rig struct {
	e     *Engine
	out   *recordingEmitter
	clk   *clock.Mock
	m     *metrics.EngineMetrics
	steps []fsm.Step
}

func newRig(t *testing.T, mutate ...func(*Settings)) *rig {
	t.Helper()
	r := &rig{
		out: &recordingEmitter{},
		clk: clock.NewMock(time.Unix(5000, 0)),
		m:   metrics.NewEngineMetrics(metrics.NewRegistry("test")),
	}
	s := DefaultSettings()
	for _, fn := range mutate {
		fn(&s)
	}
	r.e = New(Options{
		Settings: s,
		Emitter:  r.out,
		Clock:    r.clk,
		Metrics:  r.m,
		Trace:    func(st fsm.Step) { r.steps = append(r.steps, st) },
	})
	return r
}

func (r *rig) key(c keycode.Code, pressed bool) fsm.Result {
	return r.e.HandleKey(c, pressed, r.clk.Now())
}

func (r *rig) tap(c keycode.Code) {
	r.key(c, true)
	r.key(c, false)
}

func (r *rig) advance(d time.Duration) {
	r.e.Tick(r.clk.Advance(d))
}

func (r *rig) mouse(m report.Mouse) {
	r.e.HandlePointer(m, r.clk.Now())
}

func TestPlainKeysPassThrough(t *testing.T) {
	r := newRig(t)
	assert.Equal(t, fsm.Pass, r.key(keycode.A, true))
	assert.Equal(t, fsm.Pass, r.key(keycode.A, false))
	assert.Equal(t, []output{{key: keycode.A, down: true}, {key: keycode.A, down: false}}, r.out.keys())
	assert.Equal(t, uint64(2), r.m.PassTotal.Value())
	assert.Len(t, r.steps, 2)
}

func TestCtrlTapGivesUtilLayer(t *testing.T) {
	r := newRig(t)
	r.key(keycode.CapsLock, true)
	r.advance(80 * time.Millisecond)
	r.key(keycode.CapsLock, false)
	assert.Equal(t, "util_oneshot_waiting", r.e.Status().Node)
	assert.Empty(t, r.out.keys())

	r.tap(keycode.C)
	assert.Equal(t, []output{{key: keycode.Copy, down: true}, {key: keycode.Copy, down: false}}, r.out.keys())
	assert.Equal(t, "neutral", r.e.Status().Node)

	r.tap(keycode.C)
	assert.Equal(t, keycode.C, r.out.keys()[2].key)
}

func TestCtrlHoldRegistersCtrl(t *testing.T) {
	r := newRig(t)
	r.key(keycode.CapsLock, true)
	r.advance(200 * time.Millisecond)
	assert.Equal(t, "ctrl_held", r.e.Status().Node)
	assert.Equal(t, uint64(1), r.m.TimerFires.Value())

	r.tap(keycode.A)
	r.key(keycode.CapsLock, false)
	assert.Equal(t, []output{
		{key: keycode.LeftCtrl, down: true},
		{key: keycode.A, down: true},
		{key: keycode.A, down: false},
		{key: keycode.LeftCtrl, down: false},
	}, r.out.keys())
	assert.Equal(t, "none", r.e.Status().OutputMods)
}

func TestLayerChangeDoesNotStrandKey(t *testing.T) {
	r := newRig(t)
	r.key(keycode.LeftAlt, true)
	r.key(keycode.I, true)
	r.key(keycode.LeftAlt, false)
	r.key(keycode.I, false)
	// Leaving the layer clears the keyboard, so Up is released once.
	assert.Equal(t, []output{{key: keycode.Up, down: true}, {key: keycode.Up, down: false}}, r.out.keys())
}

func TestAltWheelTapsArrows(t *testing.T) {
	r := newRig(t)
	r.key(keycode.LeftAlt, true)
	r.mouse(report.Mouse{V: 120})
	assert.Equal(t, []output{{key: keycode.Up, down: true}, {key: keycode.Up, down: false}}, r.out.keys())
	assert.Empty(t, r.out.pointers(), "the wheel is consumed")
	assert.Equal(t, "move_momentary", r.e.Status().Node)
}

func TestCtrlClickIsBufferedBehindModifier(t *testing.T) {
	r := newRig(t)
	r.key(keycode.CapsLock, true)
	r.clk.Advance(10 * time.Millisecond)
	r.mouse(report.Mouse{Buttons: 1})
	assert.Equal(t, "ctrl_mouse", r.e.Status().Node)
	assert.Empty(t, r.out.pointers())
	assert.True(t, r.e.Status().Buffering)

	r.clk.Advance(10 * time.Millisecond)
	r.mouse(report.Mouse{Buttons: 1})
	assert.Empty(t, r.out.pointers())

	r.advance(50 * time.Millisecond)
	ps := r.out.pointers()
	require.Len(t, ps, 1)
	assert.Equal(t, uint8(1), ps[0].Buttons)
	require.NotEmpty(t, r.out.out)
	assert.Equal(t, keycode.LeftCtrl, r.out.out[0].key, "modifier goes out before the click")

	r.mouse(report.Mouse{})
	ps = r.out.pointers()
	assert.Equal(t, uint8(0), ps[len(ps)-1].Buttons)
	r.key(keycode.CapsLock, false)
	assert.Equal(t, "neutral", r.e.Status().Node)
}

func TestDragscroll(t *testing.T) {
	r := newRig(t)
	r.key(keycode.CapsLock, true)
	r.key(keycode.CapsLock, false)
	require.Equal(t, "util_oneshot_waiting", r.e.Status().Node)

	r.mouse(report.Mouse{X: 60})
	assert.Equal(t, "dragscroll", r.e.Status().Node)
	assert.Equal(t, uint64(1), r.m.WatcherFires.Value())

	for i := 0; i < 40; i++ {
		r.clk.Advance(5 * time.Millisecond)
		r.mouse(report.Mouse{X: 10})
	}
	var h int
	for _, p := range r.out.pointers() {
		assert.Zero(t, p.X, "pointer motion is consumed while scrolling")
		h += int(p.H)
	}
	assert.NotZero(t, h)

	r.tap(keycode.Esc)
	assert.Equal(t, "neutral", r.e.Status().Node)
	assert.False(t, r.e.Status().Dragscroll)
	assert.False(t, r.e.Status().Routing.Pointer.Send)
}

func TestPointerMotionDirectInNeutral(t *testing.T) {
	r := newRig(t)
	r.mouse(report.Mouse{X: 3, Y: -2})
	ps := r.out.pointers()
	require.Len(t, ps, 1)
	assert.Equal(t, report.Mouse{X: 3, Y: -2}, ps[0])

	r.mouse(report.Mouse{})
	assert.Len(t, r.out.pointers(), 1, "empty sample with unchanged buttons is not emitted")
}

func TestMomentaryLayerKey(t *testing.T) {
	r := newRig(t, func(s *Settings) {
		km := keymap.Default()
		km.Set(layer.Work, keycode.Space, keycode.MoMove)
		s.Keymap = km
	})
	r.key(keycode.Space, true)
	assert.Equal(t, "work,move", r.e.Status().Layers)
	r.tap(keycode.J)
	r.key(keycode.Space, false)
	assert.Equal(t, "work", r.e.Status().Layers)
	assert.Equal(t, []output{{key: keycode.Left, down: true}, {key: keycode.Left, down: false}}, r.out.keys())
}

func TestResetReleasesKeys(t *testing.T) {
	r := newRig(t)
	r.key(keycode.A, true)
	r.key(keycode.LeftShift, true)
	r.e.Reset()
	assert.Equal(t, []output{
		{key: keycode.A, down: true},
		{key: keycode.LeftShift, down: true},
		{key: keycode.A, down: false},
		{key: keycode.LeftShift, down: false},
	}, r.out.keys())
	r.key(keycode.A, false)
	assert.Len(t, r.out.keys(), 4)
}

func TestReconfigureAppliesTerms(t *testing.T) {
	r := newRig(t)
	s := DefaultSettings()
	s.FSM.CtrlTerm = 20 * time.Millisecond
	r.e.Reconfigure(s)

	r.key(keycode.CapsLock, true)
	r.advance(30 * time.Millisecond)
	assert.Equal(t, "ctrl_held", r.e.Status().Node)
}

func TestEmitErrorsCounted(t *testing.T) {
	r := newRig(t)
	r.out.fail = errors.New("device gone")
	r.tap(keycode.A)
	assert.Equal(t, uint64(2), r.m.EmitErrors.Value())
}

func TestStatusIndicator(t *testing.T) {
	r := newRig(t)
	st := r.e.Status()
	assert.Equal(t, "off", st.Indicator.State)
	assert.Equal(t, "#000000", st.Indicator.Color)

	r.tap(keycode.CapsLock)
	st = r.e.Status()
	assert.Equal(t, "oneshot", st.Indicator.State)
	assert.Equal(t, "fade_in", st.Indicator.Phase)
	assert.True(t, st.Routing.Pointer.Send)
}

func TestRunLoop(t *testing.T) {
	r := newRig(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.e.Run(ctx) }()

	require.Eventually(t, func() bool {
		_, err := r.e.Snapshot(ctx)
		return err == nil
	}, time.Second, time.Millisecond)

	r.e.Input() <- KeyInput(keycode.A, true, r.clk.Now())
	require.Eventually(t, func() bool {
		st, err := r.e.Snapshot(ctx)
		return err == nil && st.HeldKeys == 1
	}, time.Second, time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
	assert.ErrorIs(t, r.e.Do(context.Background(), func(*Engine) {}), ErrNotRunning)

	keys := r.out.keys()
	require.Len(t, keys, 2)
	assert.False(t, keys[1].down, "stopping releases held keys")
}

func TestRunKeepsArrivalOrder(t *testing.T) {
	for i := 0; i < 50; i++ {
		r := newRig(t)
		t0 := r.clk.Now()
		r.e.Input() <- KeyInput(keycode.CapsLock, true, t0)
		r.e.Input() <- PointerInput(report.Mouse{Buttons: 1}, t0.Add(20*time.Millisecond))

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- r.e.Run(ctx) }()

		var st Status
		require.Eventually(t, func() bool {
			var err error
			st, err = r.e.Snapshot(ctx)
			return err == nil && st.Node == "ctrl_mouse"
		}, time.Second, time.Millisecond)
		assert.True(t, st.Buffering)

		require.NoError(t, r.e.Do(ctx, func(e *Engine) {
			e.Tick(r.clk.Advance(100 * time.Millisecond))
		}))
		cancel()
		<-done

		require.NotEmpty(t, r.out.out)
		require.Equal(t, keycode.LeftCtrl, r.out.out[0].key, "run %d: modifier goes out before the click", i)
		require.Nil(t, r.out.out[0].pointer)
	}
}

func TestPollWaitsForQueuedInput(t *testing.T) {
	r := newRig(t)
	t0 := r.clk.Now()
	r.key(keycode.CapsLock, true)
	r.e.Input() <- KeyInput(keycode.CapsLock, false, t0.Add(80*time.Millisecond))

	// Wall clock is past the tapping term, but the release was earlier.
	r.clk.Advance(300 * time.Millisecond)
	r.e.poll()
	assert.Equal(t, "ctrl_ambiguous", r.e.Status().Node)

	r.e.handle(<-r.e.loop.input)
	assert.Equal(t, "util_oneshot_waiting", r.e.Status().Node)
	assert.Empty(t, r.out.keys())
	assert.Zero(t, r.m.TimerFires.Value())
}
