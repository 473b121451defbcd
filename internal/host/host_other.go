//go:build !linux

package host

import (
	"context"
	"errors"
	"log/slog"

	"superkeys/internal/engine"
	"superkeys/internal/keycode"
	"superkeys/internal/report"
)

var errUnsupported = errors.New("host: evdev input is only available on linux")

// Inspect is unsupported off linux.
func Inspect(string) (DeviceInfo, error) { return DeviceInfo{}, errUnsupported }

// Discover is unsupported off linux.
func Discover() ([]DeviceInfo, error) { return nil, errUnsupported }

// Sink is unavailable off linux.
type Sink struct{}

// CreateSink is unsupported off linux.
func CreateSink() (*Sink, error) { return nil, errUnsupported }

func (*Sink) Key(keycode.Code, bool) error { return errUnsupported }
func (*Sink) Pointer(report.Mouse) error   { return errUnsupported }
func (*Sink) Close() error                 { return nil }

// Manager is unavailable off linux.
type Manager struct {
	OnChange func(n int)
}

// NewManager returns a manager that attaches nothing.
func NewManager(Matcher, *engine.Engine, *slog.Logger) *Manager { return &Manager{} }

func (*Manager) Attach(context.Context, string) (bool, error) { return false, errUnsupported }
func (*Manager) AttachAll(context.Context) error              { return errUnsupported }
func (*Manager) Detach(string)                                {}
func (*Manager) Count() int                                   { return 0 }
func (*Manager) Devices() []DeviceInfo                        { return nil }
func (*Manager) Close()                                       {}
