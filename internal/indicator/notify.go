package indicator

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/godbus/dbus/v5"
)

// Desktop notification D-Bus constants
const (
	NotificationsService = "org.freedesktop.Notifications"
	NotificationsPath    = "/org/freedesktop/Notifications"
	notifyMethod         = NotificationsService + ".Notify"
	notifyAppName        = "superkeys"
)

// caller is the part of dbus.BusObject the sink uses.
type caller interface {
	Call(method string, flags dbus.Flags, args ...interface{}) *dbus.Call
}

type notification struct {
	transition Transition
	state      State
}

// NotifySink shows transitions as desktop notifications. Each notification
// replaces the previous one. Calls happen on a background goroutine; when its
// queue is full the transition is dropped.
type NotifySink struct {
	obj    caller
	conn   *dbus.Conn
	tables Tables
	logger *slog.Logger

	queue    chan notification
	wg       sync.WaitGroup
	closeMu  sync.Once
	replaces uint32
	dropped  atomic.Uint64
}

// DialNotifySink connects to the session bus.
func DialNotifySink(tables Tables, logger *slog.Logger) (*NotifySink, error) {
	conn, err := dbus.SessionBus()
	if err != nil {
		return nil, fmt.Errorf("connect to session bus: %w", err)
	}
	s := newNotifySink(conn.Object(NotificationsService, NotificationsPath), tables, logger)
	s.conn = conn
	return s, nil
}

func newNotifySink(obj caller, tables Tables, logger *slog.Logger) *NotifySink {
	if logger == nil {
		logger = slog.Default()
	}
	s := &NotifySink{
		obj:    obj,
		tables: tables,
		logger: logger,
		queue:  make(chan notification, 16),
	}
	s.wg.Add(1)
	go s.run()
	return s
}

// StartTransition queues a notification without blocking.
func (s *NotifySink) StartTransition(t Transition, st State) {
	if t >= numTransitions {
		return
	}
	select {
	case s.queue <- notification{t, st}:
	default:
		s.dropped.Add(1)
	}
}

// Dropped returns how many transitions were discarded.
func (s *NotifySink) Dropped() uint64 { return s.dropped.Load() }

// Close drains the queue and releases the bus connection.
func (s *NotifySink) Close() error {
	s.closeMu.Do(func() { close(s.queue) })
	s.wg.Wait()
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

func (s *NotifySink) run() {
	defer s.wg.Done()
	for n := range s.queue {
		if err := s.send(n); err != nil {
			s.logger.Warn("desktop notification failed", "error", err)
		}
	}
}

func (s *NotifySink) send(n notification) error {
	spec := s.tables.Transitions[n.transition]
	color := spec.Accent.RGB().Hex()
	timeout := int32((spec.FadeIn + spec.Hold + spec.FadeOut).Milliseconds())
	if timeout <= 0 {
		timeout = 1000
	}
	hints := map[string]dbus.Variant{
		"transient":         dbus.MakeVariant(true),
		"urgency":           dbus.MakeVariant(byte(0)),
		"x-superkeys-color": dbus.MakeVariant(color),
	}
	call := s.obj.Call(notifyMethod, 0,
		notifyAppName,
		s.replaces,
		"input-keyboard",
		"superkeys: "+n.transition.String(),
		fmt.Sprintf("now %s (%s)", n.state, color),
		[]string{},
		hints,
		timeout,
	)
	var id uint32
	if err := call.Store(&id); err != nil {
		return fmt.Errorf("notify: %w", err)
	}
	s.replaces = id
	return nil
}
