// Package engine wires the state machine to its collaborators and runs the
// event loop that feeds it.
//
// Everything in here runs on one goroutine. HandleKey, HandlePointer and
// Tick are the synchronous entry points used by tests; Run owns the loop the
// daemon uses and serializes device input, the poll ticker and control
// requests onto it.
package engine

import (
	"context"
	"log/slog"
	"time"

	"superkeys/internal/clock"
	"superkeys/internal/deferred"
	"superkeys/internal/dragscroll"
	"superkeys/internal/fsm"
	"superkeys/internal/indicator"
	"superkeys/internal/inverse"
	"superkeys/internal/keycode"
	"superkeys/internal/keymap"
	"superkeys/internal/layer"
	"superkeys/internal/metrics"
	"superkeys/internal/motion"
	"superkeys/internal/mousebuf"
	"superkeys/internal/passthrough"
	"superkeys/internal/report"
	"superkeys/internal/snap"
)

// PollInterval is how often Run polls the scheduler and drives idle
// drag-scroll and buffer handling.
const PollInterval = 5 * time.Millisecond

// Emitter writes to the output device.
type Emitter interface {
	Key(code keycode.Code, down bool) error
	Pointer(m report.Mouse) error
}

// Settings are the tunables that can change at runtime.
type Settings struct {
	FSM        fsm.Params
	Dragscroll dragscroll.Params
	Keymap     *keymap.Keymap
	Indicator  indicator.Tables

	// PointerSnapThreshold and PointerSnapRatio configure Shift snapping in
	// persistent mode.
	PointerSnapThreshold float64
	PointerSnapRatio     float64
}

// DefaultSettings returns the stock tunables and layout.
func DefaultSettings() Settings {
	return Settings{
		FSM:                  fsm.DefaultParams(),
		Dragscroll:           dragscroll.DefaultParams(),
		Keymap:               keymap.Default(),
		Indicator:            indicator.DefaultTables(),
		PointerSnapThreshold: snap.DefaultPointerThreshold,
		PointerSnapRatio:     snap.DefaultPointerRatio,
	}
}

// Options configure New.
type Options struct {
	Settings Settings
	Emitter  Emitter

	// Indicator receives transitions in addition to the built-in animator.
	Indicator indicator.Indicator
	Clock     clock.Clock
	Logger    *slog.Logger
	Metrics   *metrics.EngineMetrics

	// Trace is called for every dispatch. It must not block.
	Trace func(fsm.Step)
}

// Engine owns the state machine and everything it drives.
type Engine struct {
	clk     clock.Clock
	log     *slog.Logger
	metrics *metrics.EngineMetrics
	trace   func(fsm.Step)
	emitter Emitter

	settings Settings

	machine    *fsm.Machine
	sched      *deferred.Scheduler
	timer      *deferred.Timer
	watcher    *motion.Watcher
	scroll     *dragscroll.Engine
	buffer     *mousebuf.Buffer
	translator *inverse.Translator
	gate       *passthrough.Gate
	snapper    *snap.PointerSnapper
	stack      *keymap.Stack
	resolver   *keymap.Resolver
	animator   *indicator.Animator
	kb         *keyboard

	rawButtons  uint8
	buttons     uint8
	lastOut     uint8
	eventTime   time.Time
	nodeSince   time.Time
	lastEmitErr error

	loop loopState
}

// New builds an engine. Settings with a nil keymap use the default layout.
func New(opts Options) *Engine {
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewEngineMetrics(nil)
	}
	if opts.Settings.Keymap == nil {
		opts.Settings.Keymap = keymap.Default()
	}

	e := &Engine{
		clk:      opts.Clock,
		log:      opts.Logger.With("component", "engine"),
		metrics:  opts.Metrics,
		trace:    opts.Trace,
		emitter:  opts.Emitter,
		settings: opts.Settings,
		buffer:   mousebuf.New(),
		gate:     passthrough.New(),
		stack:    keymap.NewStack(),
	}
	e.kb = newKeyboard(e.emitKey)
	e.sched = deferred.NewScheduler(e.clk)
	e.timer = deferred.NewTimer(e.sched, e.onTimer)
	e.watcher = motion.New(e.onMotion)
	e.scroll = dragscroll.New(opts.Settings.Dragscroll, e.clk, e.kb)
	e.snapper = snap.NewPointer(opts.Settings.PointerSnapThreshold, opts.Settings.PointerSnapRatio)
	e.resolver = keymap.NewResolver(opts.Settings.Keymap, e.stack)
	e.animator = indicator.NewAnimator(opts.Settings.Indicator, e.clk)
	e.translator = inverse.New(e.dispatchSynthetic)

	var ind indicator.Indicator = e.animator
	if opts.Indicator != nil {
		ind = indicator.Multi{e.animator, opts.Indicator}
	}
	e.machine = fsm.New(fsm.Deps{
		Layers:      e.stack,
		Keyboard:    e.kb,
		Timer:       e.timer,
		Watcher:     e.watcher,
		Scroller:    e.scroll,
		Buffer:      e.buffer,
		Passthrough: e.gate,
		Snapping:    e.snapper,
		Indicator:   ind,
		ButtonsHeld: func() bool { return e.buttons != 0 },
	}, opts.Settings.FSM)
	e.machine.OnStep(e.onStep)
	e.machine.Init()

	now := e.clk.Now()
	e.eventTime = now
	e.nodeSince = now
	return e
}

func (e *Engine) emitKey(code keycode.Code, down bool) {
	if e.emitter == nil {
		return
	}
	if err := e.emitter.Key(code, down); err != nil {
		e.metrics.EmitErrors.Inc()
		if e.lastEmitErr == nil || e.lastEmitErr.Error() != err.Error() {
			e.log.Warn("emit key failed", "code", code.String(), "down", down, "error", err)
		}
		e.lastEmitErr = err
		return
	}
	e.lastEmitErr = nil
}

func (e *Engine) emitPointer(m report.Mouse) {
	if e.emitter == nil {
		return
	}
	if err := e.emitter.Pointer(m); err != nil {
		e.metrics.EmitErrors.Inc()
		if e.lastEmitErr == nil || e.lastEmitErr.Error() != err.Error() {
			e.log.Warn("emit pointer failed", "error", err)
		}
		e.lastEmitErr = err
		return
	}
	e.lastEmitErr = nil
}

func (e *Engine) onTimer() {
	e.metrics.TimerFires.Inc()
	e.machine.Dispatch(fsm.NewEvent(keycode.Timeout, false, e.clk.Now()))
}

func (e *Engine) onMotion() {
	e.metrics.WatcherFires.Inc()
	e.machine.Dispatch(fsm.NewEvent(keycode.Motion, false, e.eventTime))
}

func (e *Engine) dispatchSynthetic(code keycode.Code, pressed bool) bool {
	return e.machine.Dispatch(fsm.NewEvent(code, pressed, e.eventTime)) == fsm.Pass
}

func (e *Engine) onStep(s fsm.Step) {
	if s.Result == fsm.Pass {
		e.metrics.PassTotal.Inc()
	} else {
		e.metrics.SuppressTotal.Inc()
	}
	if s.Redispatched {
		e.metrics.Redispatches.Inc()
	}
	if s.After != s.Before {
		if !s.Time.Before(e.nodeSince) {
			e.metrics.StateDuration.ObserveDuration(s.Time.Sub(e.nodeSince))
		}
		e.nodeSince = s.Time
		e.metrics.Node.Set(int64(s.After))
	}
	if e.machine.Status().Persistent {
		e.metrics.Persistent.Set(1)
	} else {
		e.metrics.Persistent.Set(0)
	}
	if e.log.Enabled(context.Background(), slog.LevelDebug) {
		e.log.Debug("dispatch",
			"code", s.Code.String(),
			"pressed", s.Pressed,
			"before", s.Before.String(),
			"after", s.After.String(),
			"result", s.Result.String(),
			"redispatched", s.Redispatched,
		)
	}
	if e.trace != nil {
		e.trace(s)
	}
}

var momentaryLayers = map[keycode.Code]layer.Layer{
	keycode.MoSymb: layer.Symb,
	keycode.MoUtil: layer.Util,
	keycode.MoMove: layer.Move,
	keycode.MoFunc: layer.Func,
}

// HandleKey processes one physical key edge.
func (e *Engine) HandleKey(code keycode.Code, pressed bool, at time.Time) fsm.Result {
	e.metrics.KeysTotal.Inc()
	e.eventTime = at
	e.sched.Poll(at)

	out := e.resolver.Resolve(code, pressed)
	res := e.machine.Dispatch(fsm.NewEvent(out, pressed, at))
	if res != fsm.Pass {
		return res
	}
	if l, ok := momentaryLayers[out]; ok {
		if pressed {
			e.stack.On(l)
		} else {
			e.stack.Off(l)
		}
		return res
	}
	if out == keycode.None || out == keycode.Transparent || out.Reserved() {
		return res
	}
	e.kb.Key(out, pressed)
	return res
}

// HandlePointer runs one raw pointer sample through the pipeline and emits
// the result.
func (e *Engine) HandlePointer(raw report.Mouse, at time.Time) {
	e.metrics.PointerSamples.Inc()
	e.eventTime = at
	e.sched.Poll(at)
	e.rawButtons = raw.Buttons
	e.pipeline(raw, at)
}

func (e *Engine) pipeline(raw report.Mouse, now time.Time) {
	routed, direct := e.gate.Split(raw)

	e.translator.Task(&routed)
	e.buttons = routed.Buttons
	e.buffer.Task(now, &routed)
	e.watcher.Task(&routed)
	e.scroll.Task(now, &routed)
	e.snapper.Task(&routed)

	out := direct
	out.Merge(routed)
	if !out.HasMotion() && !out.HasWheel() && out.Buttons == e.lastOut {
		return
	}
	e.lastOut = out.Buttons
	e.emitPointer(out)
}

// Tick runs expired timers and, while drag-scroll or the buffer is active,
// an empty pointer sample so idle time is accounted for.
func (e *Engine) Tick(now time.Time) {
	e.sched.Poll(now)
	if e.scroll.Active() || e.buffer.Active() {
		e.eventTime = now
		e.pipeline(report.Mouse{Buttons: e.rawButtons}, now)
	}
}

// Reset returns the machine to neutral and releases every output key.
// Base layer and persistent mode are kept.
func (e *Engine) Reset() {
	e.machine.Reset()
	e.kb.Clear()
	e.resolver.Reset()
	e.nodeSince = e.clk.Now()
}

// Reconfigure resets and applies new settings.
func (e *Engine) Reconfigure(s Settings) {
	if s.Keymap == nil {
		s.Keymap = e.settings.Keymap
	}
	e.Reset()
	e.settings = s
	e.machine.SetParams(s.FSM)
	e.scroll.SetParams(s.Dragscroll)
	e.resolver.SetKeymap(s.Keymap)
	e.animator.SetTables(s.Indicator)
	e.snapper.SetParams(s.PointerSnapThreshold, s.PointerSnapRatio)
	e.log.Info("settings applied",
		"ctrl_term", s.FSM.CtrlTerm,
		"deadzone", s.FSM.Deadzone,
	)
}

// Settings returns the settings in use.
func (e *Engine) Settings() Settings { return e.settings }

// Machine exposes the state machine for inspection.
func (e *Engine) Machine() *fsm.Machine { return e.machine }
