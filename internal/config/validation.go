package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"superkeys/internal/ipc"
	"superkeys/internal/logging"
)

//go:embed schema.json
var schemaJSON []byte

const schemaURL = "superkeys-config.schema.json"

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

func configSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(schemaURL, bytes.NewReader(schemaJSON)); err != nil {
			schemaErr = fmt.Errorf("add schema resource: %w", err)
			return
		}
		compiledSchema, schemaErr = compiler.Compile(schemaURL)
	})
	return compiledSchema, schemaErr
}

// validateSchema checks a JSON-shaped document (as produced by
// json.Unmarshal into any) against the embedded schema.
func validateSchema(doc any) error {
	schema, err := configSchema()
	if err != nil {
		return err
	}
	if err := schema.Validate(doc); err != nil {
		var verr *jsonschema.ValidationError
		if errors.As(err, &verr) {
			return schemaErrors(verr)
		}
		return err
	}
	return nil
}

// schemaErrors flattens the schema error tree into field errors.
func schemaErrors(verr *jsonschema.ValidationError) ValidationErrors {
	var errs ValidationErrors
	var walk func(e *jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			field := strings.TrimPrefix(strings.ReplaceAll(e.InstanceLocation, "/", "."), ".")
			if field == "" {
				field = "(root)"
			}
			errs = append(errs, ValidationError{Field: field, Message: e.Message})
			return
		}
		for _, c := range e.Causes {
			walk(c)
		}
	}
	walk(verr)
	return errs
}

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Has reports whether any error concerns field.
func (e ValidationErrors) Has(field string) bool {
	for _, err := range e {
		if err.Field == field {
			return true
		}
	}
	return false
}

// Validate checks cross-field constraints the schema cannot express and
// re-checks ranges for configs built in code.
func (c *Config) Validate() error {
	var errs ValidationErrors
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if c.Version != Version {
		add("version", "unsupported version %d (current: %d)", c.Version, Version)
	}

	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		add("logging.level", "%v", err)
	}
	if _, err := logging.ParseFormat(c.Logging.Format); err != nil {
		add("logging.format", "%v", err)
	}
	switch strings.ToLower(c.Logging.Output) {
	case "stdout", "stderr":
	case "file", "both":
		if c.Logging.FilePath == "" {
			add("logging.file_path", "required when output is %s", c.Logging.Output)
		}
		if c.Logging.MaxSizeMB <= 0 {
			add("logging.max_size_mb", "must be positive")
		}
	default:
		add("logging.output", "must be stdout, stderr, file or both")
	}

	if !c.Devices.Keyboards && !c.Devices.Pointers {
		add("devices", "at least one of keyboards or pointers must be enabled")
	}
	if c.Devices.HotPlug && c.Devices.InputDir == "" {
		add("devices.input_dir", "required when hot_plug is enabled")
	}
	if c.Devices.SettleMs < 0 {
		add("devices.settle_ms", "must not be negative")
	}

	terms := []struct {
		field string
		v     int
	}{
		{"timing.ctrl_term_ms", c.Timing.CtrlTermMs},
		{"timing.alt_term_ms", c.Timing.AltTermMs},
		{"timing.gui_term_ms", c.Timing.GuiTermMs},
		{"timing.base_term_ms", c.Timing.BaseTermMs},
		{"timing.long_hold_term_ms", c.Timing.LongHoldTermMs},
	}
	for _, term := range terms {
		if term.v <= 0 || term.v > 60000 {
			add(term.field, "must be between 1 and 60000, got %d", term.v)
		}
	}
	if c.Timing.LongHoldTermMs > 0 && c.Timing.LongHoldTermMs <= c.Timing.CtrlTermMs {
		add("timing.long_hold_term_ms", "must exceed ctrl_term_ms")
	}
	if c.Timing.Deadzone <= 0 || c.Timing.Deadzone > 65535 {
		add("timing.deadzone", "must be between 1 and 65535, got %d", c.Timing.Deadzone)
	}
	if c.Timing.BufferMs < 0 || c.Timing.BufferMs > 1000 {
		add("timing.buffer_ms", "must be between 0 and 1000, got %d", c.Timing.BufferMs)
	}

	d := c.Dragscroll
	if d.Resolution <= 0 {
		add("dragscroll.resolution", "must be positive")
	}
	if d.ThrottleMs <= 0 {
		add("dragscroll.throttle_ms", "must be positive")
	}
	if d.TimeoutMs < d.ThrottleMs {
		add("dragscroll.timeout_ms", "must be at least throttle_ms")
	}
	if d.SnapRatio < 1 {
		add("dragscroll.snap_ratio", "must be at least 1")
	}
	if d.Smoothing < 0 || d.Smoothing > 64 {
		add("dragscroll.smoothing", "must be between 0 and 64")
	}
	if d.Acceleration && d.AccelScale <= 0 {
		add("dragscroll.accel_scale", "must be positive when acceleration is on")
	}
	if d.AccelBlend < 0 || d.AccelBlend > 1 {
		add("dragscroll.accel_blend", "must be between 0 and 1")
	}
	if d.PointerSnapRatio < 1 {
		add("dragscroll.pointer_snap_ratio", "must be at least 1")
	}

	if c.Indicator.Brightness < 0 || c.Indicator.Brightness > 255 {
		add("indicator.brightness", "must be between 0 and 255")
	}

	if c.Trace.Enabled {
		if c.Trace.Path == "" {
			add("trace.path", "required when trace is enabled")
		}
		if c.Trace.QueueSize <= 0 {
			add("trace.queue_size", "must be positive")
		}
	}
	if c.Trace.RetentionHours < 0 {
		add("trace.retention_hours", "must not be negative")
	}

	if c.IPC.Enabled && c.IPC.SocketPath == "" {
		add("ipc.socket_path", "required when ipc is enabled")
	}
	if c.IPC.EventsAddr != "" {
		if err := ipc.CheckLoopback(c.IPC.EventsAddr); err != nil {
			add("ipc.events_addr", "%v", err)
		}
	}

	if _, err := c.BuildKeymap(); err != nil {
		add("keymap", "%v", err)
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}
