package fsm

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"superkeys/internal/clock"
	"superkeys/internal/deferred"
	"superkeys/internal/dragscroll"
	"superkeys/internal/indicator"
	"superkeys/internal/keycode"
	"superkeys/internal/layer"
)

type recorder struct {
	layers      layer.Set
	mods        keycode.Mods
	taps        []keycode.Code
	clears      int
	scrolling   bool
	scrollCfg   dragscroll.Config
	pointer     [2]bool
	buttons     [2]bool
	wheel       [2]bool
	watchArmed  bool
	bufferedAt  time.Time
	snapping    bool
	transitions []indicator.Transition
	states      []indicator.State
	held        bool
}

func (r *recorder) On(l layer.Layer)              { r.layers = r.layers.With(l) }
func (r *recorder) Off(l layer.Layer)             { r.layers = r.layers.Without(l) }
func (r *recorder) RegisterMods(m keycode.Mods)   { r.mods |= m }
func (r *recorder) UnregisterMods(m keycode.Mods) { r.mods &^= m }
func (r *recorder) Clear()                        { r.mods = 0; r.clears++ }
func (r *recorder) ClearButMods()                 {}
func (r *recorder) Tap(c keycode.Code)            { r.taps = append(r.taps, c) }
func (r *recorder) SetPointer(send, block bool)   { r.pointer = [2]bool{send, block} }
func (r *recorder) SetButtons(send, block bool)   { r.buttons = [2]bool{send, block} }
func (r *recorder) SetWheel(send, block bool)     { r.wheel = [2]bool{send, block} }
func (r *recorder) StartTransition(t indicator.Transition, s indicator.State) {
	r.transitions = append(r.transitions, t)
	r.states = append(r.states, s)
}

type fakeWatcher struct{ r *recorder }

func (w fakeWatcher) Arm(uint16) { w.r.watchArmed = true }
func (w fakeWatcher) Disarm()    { w.r.watchArmed = false }

type fakeScroller struct{ r *recorder }

func (s fakeScroller) On(cfg dragscroll.Config) { s.r.scrolling = true; s.r.scrollCfg = cfg }
func (s fakeScroller) Off()                     { s.r.scrolling = false }

type fakeBuffer struct{ r *recorder }

func (b fakeBuffer) On(now time.Time, _ time.Duration) { b.r.bufferedAt = now }

type fakeSnapping struct{ r *recorder }

func (s fakeSnapping) On()  { s.r.snapping = true }
func (s fakeSnapping) Off() { s.r.snapping = false }

type harness struct {
	t     *testing.T
	m     *Machine
	r     *recorder
	clk   *clock.Mock
	sched *deferred.Scheduler
	timer *deferred.Timer
	steps []Step
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{t: t, r: &recorder{}, clk: clock.NewMock(time.Unix(1000, 0))}
	h.sched = deferred.NewScheduler(h.clk)
	h.timer = deferred.NewTimer(h.sched, nil)
	h.m = New(Deps{
		Layers:      h.r,
		Keyboard:    h.r,
		Timer:       h.timer,
		Watcher:     fakeWatcher{h.r},
		Scroller:    fakeScroller{h.r},
		Buffer:      fakeBuffer{h.r},
		Passthrough: h.r,
		Snapping:    fakeSnapping{h.r},
		Indicator:   h.r,
		ButtonsHeld: func() bool { return h.r.held },
	}, DefaultParams())
	h.timer.SetCallback(func() {
		h.m.Dispatch(NewEvent(keycode.Timeout, false, h.clk.Now()))
	})
	h.m.OnStep(func(s Step) { h.steps = append(h.steps, s) })
	h.m.Init()
	return h
}

func (h *harness) press(c keycode.Code) Result {
	return h.m.Dispatch(NewEvent(c, true, h.clk.Now()))
}

func (h *harness) release(c keycode.Code) Result {
	return h.m.Dispatch(NewEvent(c, false, h.clk.Now()))
}

func (h *harness) wait(d time.Duration) {
	h.sched.Poll(h.clk.Advance(d))
}

func (h *harness) motion() Result {
	return h.m.Dispatch(NewEvent(keycode.Motion, false, h.clk.Now()))
}

func (h *harness) lastTransition() indicator.Transition {
	h.t.Helper()
	require.NotEmpty(h.t, h.r.transitions)
	return h.r.transitions[len(h.r.transitions)-1]
}

func TestInitRoutesButtonsAndWheel(t *testing.T) {
	h := newHarness(t)
	assert.Equal(t, [2]bool{true, true}, h.r.buttons)
	assert.Equal(t, [2]bool{true, true}, h.r.wheel)
	assert.Equal(t, Neutral, h.m.Node())
}

func TestCtrlTapArmsUtilOneshot(t *testing.T) {
	h := newHarness(t)
	assert.Equal(t, Suppress, h.press(keycode.SuperCtrl))
	assert.Equal(t, CtrlAmbiguous, h.m.Node())
	h.wait(100 * time.Millisecond)
	assert.Equal(t, Suppress, h.release(keycode.SuperCtrl))

	assert.Equal(t, UtilOneshotWaiting, h.m.Node())
	assert.True(t, h.r.layers.Has(layer.Util))
	assert.True(t, h.r.scrolling)
	assert.True(t, h.r.watchArmed)
	assert.Equal(t, [2]bool{true, true}, h.r.pointer)
	assert.Equal(t, indicator.ToCtrl, h.lastTransition())
	assert.False(t, h.timer.Armed())

	// A key press consumes the one-shot and passes through.
	assert.Equal(t, Pass, h.press(keycode.C))
	assert.Equal(t, UtilOneshotActive, h.m.Node())
	assert.False(t, h.r.watchArmed)
	h.release(keycode.C)
	assert.Equal(t, Neutral, h.m.Node())
	assert.False(t, h.r.layers.Has(layer.Util))
	assert.False(t, h.r.scrolling)
	assert.Equal(t, indicator.FromCtrl, h.lastTransition())
}

func TestCtrlHoldBecomesCtrl(t *testing.T) {
	h := newHarness(t)
	h.press(keycode.SuperCtrl)
	h.wait(200 * time.Millisecond)
	assert.Equal(t, CtrlHeld, h.m.Node())
	assert.True(t, h.timer.Armed())

	assert.Equal(t, Pass, h.press(keycode.A))
	assert.Equal(t, CtrlModifier, h.m.Node())
	assert.True(t, h.r.mods.Has(keycode.LCtrl))
	assert.False(t, h.timer.Armed())

	assert.Equal(t, Pass, h.release(keycode.A))
	h.release(keycode.SuperCtrl)
	assert.Equal(t, Neutral, h.m.Node())
	assert.Zero(t, h.r.mods)
}

func TestCtrlWithKeyBeforeTerm(t *testing.T) {
	h := newHarness(t)
	h.press(keycode.SuperCtrl)
	h.wait(20 * time.Millisecond)
	assert.Equal(t, Pass, h.press(keycode.S))
	assert.Equal(t, CtrlModifier, h.m.Node())
	assert.True(t, h.r.mods.Has(keycode.LCtrl))
	h.wait(time.Second)
	assert.Equal(t, CtrlModifier, h.m.Node())
}

func TestCtrlClickBuffers(t *testing.T) {
	h := newHarness(t)
	h.press(keycode.SuperCtrl)
	now := h.clk.Advance(10 * time.Millisecond)
	assert.Equal(t, Pass, h.press(keycode.MouseButton(0)))
	assert.Equal(t, CtrlMouse, h.m.Node())
	assert.Equal(t, now, h.r.bufferedAt)
	assert.Equal(t, Pass, h.release(keycode.MouseButton(0)))
	assert.Equal(t, Pass, h.press(keycode.WheelUp))
	h.release(keycode.SuperCtrl)
	assert.Equal(t, Neutral, h.m.Node())
}

func TestCtrlWithButtonsHeldSkipsAmbiguity(t *testing.T) {
	h := newHarness(t)
	h.r.held = true
	h.press(keycode.SuperCtrl)
	assert.Equal(t, CtrlMouse, h.m.Node())
	assert.True(t, h.r.mods.Has(keycode.LCtrl))
	assert.False(t, h.timer.Armed())
}

func TestDragscrollOnMotion(t *testing.T) {
	h := newHarness(t)
	h.press(keycode.SuperCtrl)
	h.release(keycode.SuperCtrl)
	assert.Equal(t, Suppress, h.motion())
	assert.Equal(t, Dragscroll, h.m.Node())
	assert.True(t, h.r.scrolling)
	assert.False(t, h.r.layers.Has(layer.Util))

	assert.Equal(t, Suppress, h.press(keycode.MouseButton(0)), "synthetic events are swallowed")
	assert.Equal(t, Dragscroll, h.m.Node())

	assert.Equal(t, Suppress, h.press(keycode.Esc))
	assert.Equal(t, Neutral, h.m.Node())
	assert.False(t, h.r.scrolling)
}

func TestDragscrollCtrlPressGoesToHeld(t *testing.T) {
	h := newHarness(t)
	h.press(keycode.SuperCtrl)
	h.release(keycode.SuperCtrl)
	h.motion()
	h.press(keycode.SuperCtrl)
	assert.Equal(t, CtrlHeld, h.m.Node())
	assert.False(t, h.r.scrolling)
	assert.False(t, h.timer.Armed())
	h.release(keycode.SuperCtrl)
	assert.Equal(t, Neutral, h.m.Node())
}

func TestUtilSecondCtrlTapCancels(t *testing.T) {
	h := newHarness(t)
	h.press(keycode.SuperCtrl)
	h.release(keycode.SuperCtrl)
	h.press(keycode.SuperCtrl)
	assert.Equal(t, Neutral, h.m.Node())
	assert.Equal(t, indicator.FromCtrl, h.lastTransition())
	assert.Equal(t, indicator.StateOff, h.r.states[len(h.r.states)-1])
}

func TestCompositeFromUtil(t *testing.T) {
	h := newHarness(t)
	h.press(keycode.SuperCtrl)
	h.release(keycode.SuperCtrl)
	h.press(keycode.SuperAlt)
	assert.Equal(t, CompositeOneshotWaiting, h.m.Node())
	assert.Equal(t, keycode.LCtrl|keycode.LAlt, h.m.Status().Mods)
	assert.Equal(t, indicator.FlashAlt, h.lastTransition())
	assert.False(t, h.r.scrolling)
	h.release(keycode.SuperAlt)

	assert.Equal(t, Pass, h.press(keycode.T))
	assert.Equal(t, CompositeOneshotActive, h.m.Node())
	assert.Equal(t, keycode.LCtrl|keycode.LAlt, h.r.mods)
	h.release(keycode.T)
	assert.Equal(t, Neutral, h.m.Node())
	assert.Equal(t, indicator.FromMultiple, h.lastTransition())
	assert.Zero(t, h.r.mods)
}

func TestCompositeToggle(t *testing.T) {
	h := newHarness(t)
	h.press(keycode.SuperGui)
	h.release(keycode.SuperGui)
	require.Equal(t, CompositeOneshotWaiting, h.m.Node())
	assert.Equal(t, keycode.LGui, h.m.Status().Mods)
	assert.False(t, h.r.layers.Has(layer.Func))

	h.press(keycode.SuperAlt)
	h.release(keycode.SuperAlt)
	assert.Equal(t, keycode.LGui|keycode.LAlt, h.m.Status().Mods)
	assert.Equal(t, indicator.FlashAlt, h.lastTransition())

	// Pressing one that is already set cancels the whole composition.
	h.press(keycode.SuperGui)
	assert.Equal(t, Neutral, h.m.Node())
	assert.Equal(t, indicator.FromMultiple, h.lastTransition())
}

func TestCompositeSingleCancel(t *testing.T) {
	h := newHarness(t)
	h.press(keycode.SuperAlt)
	h.release(keycode.SuperAlt)
	require.Equal(t, CompositeOneshotWaiting, h.m.Node())
	h.press(keycode.SuperAlt)
	assert.Equal(t, Neutral, h.m.Node())
	assert.Equal(t, indicator.FromAlt, h.lastTransition())
}

func TestAltMoveLayer(t *testing.T) {
	h := newHarness(t)
	h.press(keycode.SuperAlt)
	assert.True(t, h.r.layers.Has(layer.Move))
	assert.Equal(t, Pass, h.press(keycode.J))
	assert.Equal(t, MoveMomentary, h.m.Node())
	assert.False(t, h.timer.Armed())
	h.release(keycode.J)

	assert.Equal(t, Suppress, h.press(keycode.WheelDown))
	assert.Equal(t, []keycode.Code{keycode.Down}, h.r.taps)

	h.release(keycode.SuperAlt)
	assert.Equal(t, Neutral, h.m.Node())
	assert.False(t, h.r.layers.Has(layer.Move))
}

func TestAltWheelFromAmbiguousTapsArrow(t *testing.T) {
	h := newHarness(t)
	h.press(keycode.SuperAlt)
	assert.Equal(t, Suppress, h.press(keycode.WheelLeft))
	assert.Equal(t, MoveMomentary, h.m.Node())
	assert.Equal(t, []keycode.Code{keycode.Left}, h.r.taps)
}

func TestAltHoldThenClick(t *testing.T) {
	h := newHarness(t)
	h.press(keycode.SuperAlt)
	h.wait(200 * time.Millisecond)
	assert.Equal(t, AltHeld, h.m.Node())
	assert.Equal(t, Pass, h.press(keycode.MouseButton(1)))
	assert.Equal(t, AltMouse, h.m.Node())
	assert.True(t, h.r.mods.Has(keycode.LAlt))
	assert.False(t, h.r.layers.Has(layer.Move))
	h.release(keycode.SuperAlt)
	assert.Equal(t, Neutral, h.m.Node())
	assert.Zero(t, h.r.mods)
}

func TestGuiFuncLayer(t *testing.T) {
	h := newHarness(t)
	h.press(keycode.SuperGui)
	assert.True(t, h.r.layers.Has(layer.Func))
	h.wait(time.Second)
	assert.Equal(t, GuiHeld, h.m.Node())
	assert.Equal(t, Pass, h.press(keycode.Num1))
	assert.Equal(t, FuncMomentary, h.m.Node())
	h.release(keycode.Num1)
	h.release(keycode.SuperGui)
	assert.Equal(t, Neutral, h.m.Node())
	assert.False(t, h.r.layers.Has(layer.Func))
}

func TestSuperPressRedispatches(t *testing.T) {
	h := newHarness(t)
	h.press(keycode.SuperCtrl)
	h.wait(200 * time.Millisecond)
	require.Equal(t, CtrlHeld, h.m.Node())

	assert.Equal(t, Suppress, h.press(keycode.SuperGui))
	assert.Equal(t, GuiAmbiguous, h.m.Node())
	last := h.steps[len(h.steps)-1]
	assert.True(t, last.Redispatched)
	assert.Equal(t, CtrlHeld, last.Before)
	assert.Equal(t, GuiAmbiguous, last.After)
	assert.True(t, h.r.layers.Has(layer.Func))
}

func TestCtrlAmbiguousToAltRedispatches(t *testing.T) {
	h := newHarness(t)
	h.press(keycode.SuperCtrl)
	h.wait(100 * time.Millisecond)
	require.Equal(t, CtrlAmbiguous, h.m.Node())

	assert.Equal(t, Suppress, h.press(keycode.SuperAlt))
	assert.Equal(t, AltAmbiguous, h.m.Node())
	last := h.steps[len(h.steps)-1]
	assert.True(t, last.Redispatched)
	assert.Equal(t, CtrlAmbiguous, last.Before)
	assert.Equal(t, AltAmbiguous, last.After)
	assert.True(t, h.r.layers.Has(layer.Move))
	assert.False(t, h.r.layers.Has(layer.Util))
	assert.Zero(t, h.r.mods)

	// The Ctrl deadline was disarmed: only the Alt term can fire now.
	h.wait(100 * time.Millisecond)
	assert.Equal(t, AltAmbiguous, h.m.Node())
	h.wait(100 * time.Millisecond)
	assert.Equal(t, AltHeld, h.m.Node())
	assert.True(t, h.r.layers.Has(layer.Move))
}

func TestBaseLayerTapAndHold(t *testing.T) {
	h := newHarness(t)
	h.press(keycode.Base)
	assert.Equal(t, BaseAmbiguous, h.m.Node())
	h.release(keycode.Base)
	assert.Equal(t, Neutral, h.m.Node())
	assert.Equal(t, layer.Qwer, h.m.Status().BaseLayer)
	assert.True(t, h.r.layers.Has(layer.Qwer))
	assert.Equal(t, indicator.ToQwer, h.lastTransition())

	// Any Base press from a non-Work base returns to Work.
	h.press(keycode.Base)
	assert.Equal(t, Neutral, h.m.Node())
	assert.Equal(t, layer.Work, h.m.Status().BaseLayer)
	assert.False(t, h.r.layers.Has(layer.Qwer))
	assert.Equal(t, indicator.FromQwer, h.lastTransition())
	h.release(keycode.Base)

	h.press(keycode.Base)
	h.wait(time.Second)
	assert.Equal(t, Neutral, h.m.Node())
	assert.Equal(t, layer.Game, h.m.Status().BaseLayer)
	assert.True(t, h.r.layers.Has(layer.Game))
	assert.Equal(t, indicator.ToGame, h.lastTransition())
	h.release(keycode.Base)
	assert.Equal(t, layer.Game, h.m.Status().BaseLayer)
}

func TestRestingStateFollowsBase(t *testing.T) {
	h := newHarness(t)
	h.press(keycode.Base)
	h.release(keycode.Base)
	h.press(keycode.SuperCtrl)
	h.release(keycode.SuperCtrl)
	h.press(keycode.SuperCtrl)
	assert.Equal(t, indicator.StateBase, h.r.states[len(h.r.states)-1])
}

func TestPersistentModeToggle(t *testing.T) {
	h := newHarness(t)
	assert.Equal(t, Pass, h.press(keycode.LeftShift))

	h.press(keycode.SuperCtrl)
	h.wait(200 * time.Millisecond)
	h.wait(3 * time.Second)
	assert.True(t, h.m.Status().Persistent)
	assert.Equal(t, Neutral, h.m.Node())
	assert.Equal(t, indicator.FlashBitwig, h.lastTransition())
	h.release(keycode.SuperCtrl)

	assert.Equal(t, Suppress, h.press(keycode.LeftShift))
	assert.True(t, h.r.snapping)
	assert.Equal(t, [2]bool{true, true}, h.r.pointer)
	assert.Equal(t, Suppress, h.release(keycode.LeftShift))
	assert.False(t, h.r.snapping)

	h.press(keycode.SuperCtrl)
	h.release(keycode.SuperCtrl)
	assert.Equal(t, dragscroll.BitwigConfig(), h.r.scrollCfg)
	h.press(keycode.SuperCtrl)

	h.press(keycode.SuperCtrl)
	h.wait(200 * time.Millisecond)
	h.wait(3 * time.Second)
	assert.False(t, h.m.Status().Persistent)
	assert.Equal(t, indicator.FlashNeutral, h.lastTransition())
}

func TestPersistentWheelAddsAlt(t *testing.T) {
	h := newHarness(t)
	h.press(keycode.SuperCtrl)
	h.wait(200 * time.Millisecond)
	h.wait(3 * time.Second)
	h.release(keycode.SuperCtrl)
	require.True(t, h.m.Status().Persistent)

	h.press(keycode.SuperCtrl)
	h.press(keycode.WheelUp)
	assert.Equal(t, keycode.LCtrl|keycode.LAlt, h.r.mods)
}

func TestMomentaryAlwaysPasses(t *testing.T) {
	h := newHarness(t)
	h.press(keycode.SuperCtrl)
	assert.Equal(t, Pass, h.press(keycode.MoSymb))
	assert.Equal(t, CtrlAmbiguous, h.m.Node())
}

func TestResetIsIdempotent(t *testing.T) {
	h := newHarness(t)
	h.press(keycode.SuperAlt)
	h.m.Reset()
	snapshot := *h.r
	h.m.Reset()
	assert.Equal(t, Neutral, h.m.Node())
	assert.Equal(t, snapshot.layers, h.r.layers)
	assert.Equal(t, snapshot.mods, h.r.mods)
	assert.False(t, h.timer.Armed())
}

// Every node must accept every kind of event, press or lone release, without
// panicking and end in a defined node.
func TestTotalCoverage(t *testing.T) {
	codes := []keycode.Code{
		keycode.A, keycode.LeftShift, keycode.LeftCtrl, keycode.Mute,
		keycode.SuperCtrl, keycode.SuperAlt, keycode.SuperGui, keycode.Base,
		keycode.Timeout, keycode.Motion, keycode.MouseButton(0), keycode.WheelUp,
		keycode.MoSymb,
	}
	for n := Node(0); n < NumNodes; n++ {
		for _, c := range codes {
			for _, pressed := range []bool{true, false} {
				name := fmt.Sprintf("%s/%s/%v", n, c, pressed)
				t.Run(name, func(t *testing.T) {
					h := newHarness(t)
					h.m.node = n
					var res Result
					assert.NotPanics(t, func() {
						res = h.m.Dispatch(NewEvent(c, pressed, h.clk.Now()))
					})
					assert.Contains(t, []Result{Pass, Suppress}, res)
					assert.Less(t, h.m.Node(), NumNodes)

					require.NotEmpty(t, h.steps)
					last := h.steps[len(h.steps)-1]
					assert.Equal(t, n, last.Before)
					assert.Equal(t, c, last.Code)
					assert.Equal(t, pressed, last.Pressed)
					assert.Equal(t, res, last.Result)
				})
			}
		}
	}
}

func TestUnknownNodePasses(t *testing.T) {
	h := newHarness(t)
	h.m.node = NumNodes + 3
	assert.Equal(t, Pass, h.press(keycode.A))
}
