//go:build linux

package host

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"sync"
	"syscall"
	"time"

	"github.com/holoplot/go-evdev"

	"superkeys/internal/engine"
	"superkeys/internal/keycode"
	"superkeys/internal/report"
)

func timevalTime(tv syscall.Timeval) time.Time {
	return time.Unix(int64(tv.Sec), int64(tv.Usec)*1000)
}

func inspect(dev *evdev.InputDevice, path string) DeviceInfo {
	name, _ := dev.Name()
	info := DeviceInfo{Path: path, Name: name}
	types := dev.CapableTypes()
	if slices.Contains(types, evdev.EV_KEY) && slices.Contains(types, evdev.EV_REP) {
		keys := dev.CapableEvents(evdev.EV_KEY)
		info.Keyboard = slices.Contains(keys, evdev.KEY_A) && slices.Contains(keys, evdev.KEY_ENTER)
	}
	if slices.Contains(types, evdev.EV_REL) {
		rels := dev.CapableEvents(evdev.EV_REL)
		info.Pointer = slices.Contains(rels, evdev.REL_X) && slices.Contains(rels, evdev.REL_Y)
		info.HiRes = slices.Contains(rels, evdev.REL_WHEEL_HI_RES)
	}
	return info
}

// Inspect opens path read-only and describes it.
func Inspect(path string) (DeviceInfo, error) {
	dev, err := evdev.OpenWithFlags(path, os.O_RDONLY)
	if err != nil {
		return DeviceInfo{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer dev.Close()
	return inspect(dev, path), nil
}

// Discover lists the input devices the current user can open.
func Discover() ([]DeviceInfo, error) {
	paths, err := evdev.ListDevicePaths()
	if err != nil {
		return nil, fmt.Errorf("list input devices: %w", err)
	}
	var out []DeviceInfo
	for _, p := range paths {
		info, err := Inspect(p.Path)
		if err != nil {
			continue
		}
		out = append(out, info)
	}
	return out, nil
}

// Source is a grabbed input device.
type Source struct {
	dev  *evdev.InputDevice
	info DeviceInfo
	log  *slog.Logger

	closeOnce sync.Once
}

// OpenSource opens and grabs path.
func OpenSource(path string, logger *slog.Logger) (*Source, error) {
	dev, err := evdev.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	info := inspect(dev, path)
	if err := dev.Grab(); err != nil {
		dev.Close()
		return nil, fmt.Errorf("grab %s: %w", path, err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Source{dev: dev, info: info, log: logger.With("device", info.Name, "path", path)}, nil
}

// Info describes the source.
func (s *Source) Info() DeviceInfo { return s.info }

// Close ungrabs and closes the device. It unblocks Run.
func (s *Source) Close() error {
	var err error
	s.closeOnce.Do(func() {
		_ = s.dev.Ungrab()
		err = s.dev.Close()
	})
	return err
}

// Run reads events until ctx is done or the device fails, and forwards key
// edges and per-report pointer samples on one channel in device order.
func (s *Source) Run(ctx context.Context, out chan<- engine.Input) error {
	stop := context.AfterFunc(ctx, func() { s.Close() })
	defer stop()

	batch := pointerBatch{hires: s.info.HiRes}
	send := func(in engine.Input) error {
		select {
		case out <- in:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	for {
		ev, err := s.dev.ReadOne()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read %s: %w", s.info.Path, err)
		}
		at := timevalTime(ev.Time)

		switch ev.Type {
		case evdev.EV_KEY:
			if ev.Value == 2 {
				continue
			}
			if ev.Code >= evdev.BTN_LEFT && ev.Code <= evdev.BTN_TASK {
				batch.button(int(ev.Code-evdev.BTN_LEFT), ev.Value != 0)
				continue
			}
			// Pointer changes earlier in the same report go first.
			if m, ok := batch.flush(); ok {
				if err := send(engine.PointerInput(m, at)); err != nil {
					return err
				}
			}
			if err := send(engine.KeyInput(keycode.Code(ev.Code), ev.Value != 0, at)); err != nil {
				return err
			}

		case evdev.EV_REL:
			switch ev.Code {
			case evdev.REL_X:
				batch.move(ev.Value, 0)
			case evdev.REL_Y:
				batch.move(0, ev.Value)
			case evdev.REL_WHEEL:
				batch.wheel(ev.Value, 0)
			case evdev.REL_HWHEEL:
				batch.wheel(0, ev.Value)
			case evdev.REL_WHEEL_HI_RES:
				batch.hires = true
				batch.wheelHiRes(ev.Value, 0)
			case evdev.REL_HWHEEL_HI_RES:
				batch.hires = true
				batch.wheelHiRes(0, ev.Value)
			}

		case evdev.EV_SYN:
			if ev.Code != evdev.SYN_REPORT {
				continue
			}
			if m, ok := batch.flush(); ok {
				if err := send(engine.PointerInput(m, at)); err != nil {
					return err
				}
			}
		}
	}
}

// Sink is the uinput output device.
type Sink struct {
	mu      sync.Mutex
	dev     *evdev.InputDevice
	buttons uint8
	v, h    wheelDetents
}

// sinkKeys lists the key and button codes the virtual device advertises.
func sinkKeys() []evdev.EvCode {
	var keys []evdev.EvCode
	for c := evdev.EvCode(1); c < evdev.BTN_MISC; c++ {
		keys = append(keys, c)
	}
	for c := evdev.EvCode(evdev.BTN_LEFT); c <= evdev.BTN_TASK; c++ {
		keys = append(keys, c)
	}
	return keys
}

// CreateSink creates the virtual keyboard and pointer.
func CreateSink() (*Sink, error) {
	dev, err := evdev.CreateDevice(VirtualName, evdev.InputID{
		BusType: 0x06, // BUS_VIRTUAL
		Vendor:  0x5355,
		Product: 0x4b59,
		Version: 1,
	}, map[evdev.EvType][]evdev.EvCode{
		evdev.EV_KEY: sinkKeys(),
		evdev.EV_REL: {
			evdev.REL_X, evdev.REL_Y,
			evdev.REL_WHEEL, evdev.REL_HWHEEL,
			evdev.REL_WHEEL_HI_RES, evdev.REL_HWHEEL_HI_RES,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create uinput device: %w", err)
	}
	return &Sink{dev: dev}, nil
}

func (s *Sink) write(events ...evdev.InputEvent) error {
	if s.dev == nil {
		return ErrClosed
	}
	var errs []error
	for i := range events {
		if err := s.dev.WriteOne(&events[i]); err != nil {
			errs = append(errs, err)
		}
	}
	syn := evdev.InputEvent{Type: evdev.EV_SYN, Code: evdev.SYN_REPORT}
	errs = append(errs, s.dev.WriteOne(&syn))
	return errors.Join(errs...)
}

func keyEvent(code evdev.EvCode, down bool) evdev.InputEvent {
	ev := evdev.InputEvent{Type: evdev.EV_KEY, Code: code}
	if down {
		ev.Value = 1
	}
	return ev
}

// Key writes one key edge.
func (s *Sink) Key(code keycode.Code, down bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(keyEvent(evdev.EvCode(code), down))
}

// Pointer writes one pointer sample. Buttons are diffed against the last
// sample; wheel values are hi-res units and also produce legacy detents.
func (s *Sink) Pointer(m report.Mouse) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var events []evdev.InputEvent
	for _, c := range buttonChanges(s.buttons, m.Buttons) {
		events = append(events, keyEvent(evdev.BTN_LEFT+evdev.EvCode(c.index), c.down))
	}
	s.buttons = m.Buttons

	rel := func(code evdev.EvCode, v int32) {
		if v != 0 {
			events = append(events, evdev.InputEvent{Type: evdev.EV_REL, Code: code, Value: v})
		}
	}
	rel(evdev.REL_X, int32(m.X))
	rel(evdev.REL_Y, int32(m.Y))
	rel(evdev.REL_WHEEL_HI_RES, int32(m.V))
	rel(evdev.REL_WHEEL, s.v.add(m.V))
	rel(evdev.REL_HWHEEL_HI_RES, int32(m.H))
	rel(evdev.REL_HWHEEL, s.h.add(m.H))

	if len(events) == 0 {
		return nil
	}
	return s.write(events...)
}

// Close destroys the virtual device.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dev == nil {
		return nil
	}
	err := s.dev.Close()
	s.dev = nil
	return err
}

// Manager attaches matching sources and keeps them running.
type Manager struct {
	matcher Matcher
	input   chan<- engine.Input
	log     *slog.Logger

	// OnChange is called with the device count after every attach and
	// detach.
	OnChange func(n int)

	mu      sync.Mutex
	sources map[string]*Source
	wg      sync.WaitGroup
}

// NewManager creates a manager feeding e.
func NewManager(m Matcher, e *engine.Engine, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		matcher: m,
		input:   e.Input(),
		log:     logger.With("component", "host"),
		sources: make(map[string]*Source),
	}
}

// Attach opens path if it matches and is not attached yet. It reports
// whether a source was started.
func (mg *Manager) Attach(ctx context.Context, path string) (bool, error) {
	mg.mu.Lock()
	_, exists := mg.sources[path]
	mg.mu.Unlock()
	if exists {
		return false, nil
	}

	info, err := Inspect(path)
	if err != nil {
		return false, err
	}
	if !mg.matcher.Match(info) {
		return false, nil
	}
	src, err := OpenSource(path, mg.log)
	if err != nil {
		return false, err
	}

	mg.mu.Lock()
	mg.sources[path] = src
	n := len(mg.sources)
	mg.mu.Unlock()
	mg.changed(n)
	mg.log.Info("device attached", "path", path, "name", info.Name,
		"keyboard", info.Keyboard, "pointer", info.Pointer)

	mg.wg.Add(1)
	go func() {
		defer mg.wg.Done()
		err := src.Run(ctx, mg.input)
		if err != nil && ctx.Err() == nil {
			mg.log.Warn("device lost", "path", path, "error", err)
		}
		mg.Detach(path)
	}()
	return true, nil
}

// AttachAll attaches every matching device. It fails with
// ErrDeviceNotFound when none matched.
func (mg *Manager) AttachAll(ctx context.Context) error {
	paths, err := evdev.ListDevicePaths()
	if err != nil {
		return fmt.Errorf("list input devices: %w", err)
	}
	attached := 0
	for _, p := range paths {
		ok, err := mg.Attach(ctx, p.Path)
		if err != nil {
			mg.log.Debug("skip device", "path", p.Path, "error", err)
			continue
		}
		if ok {
			attached++
		}
	}
	if attached == 0 && mg.Count() == 0 {
		return ErrDeviceNotFound
	}
	return nil
}

// Detach closes the source at path, if any.
func (mg *Manager) Detach(path string) {
	mg.mu.Lock()
	src, ok := mg.sources[path]
	delete(mg.sources, path)
	n := len(mg.sources)
	mg.mu.Unlock()
	if !ok {
		return
	}
	src.Close()
	mg.changed(n)
	mg.log.Info("device detached", "path", path)
}

func (mg *Manager) changed(n int) {
	if mg.OnChange != nil {
		mg.OnChange(n)
	}
}

// Count returns the number of attached sources.
func (mg *Manager) Count() int {
	mg.mu.Lock()
	defer mg.mu.Unlock()
	return len(mg.sources)
}

// Devices describes the attached sources.
func (mg *Manager) Devices() []DeviceInfo {
	mg.mu.Lock()
	defer mg.mu.Unlock()
	out := make([]DeviceInfo, 0, len(mg.sources))
	for _, s := range mg.sources {
		out = append(out, s.Info())
	}
	slices.SortFunc(out, func(a, b DeviceInfo) int {
		switch {
		case a.Path < b.Path:
			return -1
		case a.Path > b.Path:
			return 1
		}
		return 0
	})
	return out
}

// Close detaches everything and waits for the readers to stop.
func (mg *Manager) Close() {
	mg.mu.Lock()
	paths := make([]string, 0, len(mg.sources))
	for p := range mg.sources {
		paths = append(paths, p)
	}
	mg.mu.Unlock()
	for _, p := range paths {
		mg.Detach(p)
	}
	mg.wg.Wait()
}
