// Package config handles configuration loading, validation, and hot reload
// for superkeysd.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"superkeys/internal/dragscroll"
	"superkeys/internal/engine"
	"superkeys/internal/fsm"
	"superkeys/internal/host"
	"superkeys/internal/indicator"
	"superkeys/internal/keymap"
	"superkeys/internal/logging"
)

// Version is the current configuration schema version.
const Version = 1

// Config holds the complete daemon configuration.
type Config struct {
	// Version is the configuration schema version for migrations.
	Version int `toml:"version" json:"version" yaml:"version"`

	Logging    LoggingConfig    `toml:"logging" json:"logging" yaml:"logging"`
	Devices    DevicesConfig    `toml:"devices" json:"devices" yaml:"devices"`
	Timing     TimingConfig     `toml:"timing" json:"timing" yaml:"timing"`
	Dragscroll DragscrollConfig `toml:"dragscroll" json:"dragscroll" yaml:"dragscroll"`
	Indicator  IndicatorConfig  `toml:"indicator" json:"indicator" yaml:"indicator"`
	Trace      TraceConfig      `toml:"trace" json:"trace" yaml:"trace"`
	IPC        IPCConfig        `toml:"ipc" json:"ipc" yaml:"ipc"`

	// Keymap overlays the built-in layout: layer name to (key name to key
	// name). "TRNS" falls through to lower layers.
	Keymap map[string]map[string]string `toml:"keymap" json:"keymap,omitempty" yaml:"keymap"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `toml:"level" json:"level" yaml:"level"`

	// Format is text or json.
	Format string `toml:"format" json:"format" yaml:"format"`

	// Output is stdout, stderr, file or both.
	Output string `toml:"output" json:"output" yaml:"output"`

	FilePath   string `toml:"file_path" json:"file_path" yaml:"file_path"`
	MaxSizeMB  int64  `toml:"max_size_mb" json:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups" json:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days" json:"max_age_days" yaml:"max_age_days"`
	Compress   bool   `toml:"compress" json:"compress" yaml:"compress"`
}

// DevicesConfig selects which input devices are grabbed.
type DevicesConfig struct {
	// Include and Exclude are case-insensitive substrings of device names.
	// An empty Include list accepts every device of the enabled kinds.
	Include []string `toml:"include" json:"include,omitempty" yaml:"include"`
	Exclude []string `toml:"exclude" json:"exclude,omitempty" yaml:"exclude"`

	Keyboards bool `toml:"keyboards" json:"keyboards" yaml:"keyboards"`
	Pointers  bool `toml:"pointers" json:"pointers" yaml:"pointers"`

	// InputDir is watched for hot-plugged event nodes.
	InputDir string `toml:"input_dir" json:"input_dir" yaml:"input_dir"`
	HotPlug  bool   `toml:"hot_plug" json:"hot_plug" yaml:"hot_plug"`

	// SettleMs is how long a new node must exist before it is opened.
	SettleMs int `toml:"settle_ms" json:"settle_ms" yaml:"settle_ms"`
}

// TimingConfig holds the state machine tunables.
type TimingConfig struct {
	CtrlTermMs     int `toml:"ctrl_term_ms" json:"ctrl_term_ms" yaml:"ctrl_term_ms"`
	AltTermMs      int `toml:"alt_term_ms" json:"alt_term_ms" yaml:"alt_term_ms"`
	GuiTermMs      int `toml:"gui_term_ms" json:"gui_term_ms" yaml:"gui_term_ms"`
	BaseTermMs     int `toml:"base_term_ms" json:"base_term_ms" yaml:"base_term_ms"`
	LongHoldTermMs int `toml:"long_hold_term_ms" json:"long_hold_term_ms" yaml:"long_hold_term_ms"`

	// Deadzone is the pointer travel, in counts, that turns a Ctrl tap
	// into drag-scroll.
	Deadzone int `toml:"deadzone" json:"deadzone" yaml:"deadzone"`

	BufferMs int `toml:"buffer_ms" json:"buffer_ms" yaml:"buffer_ms"`
}

// DragscrollConfig holds the drag-scroll tunables.
type DragscrollConfig struct {
	MultiplierH   float64 `toml:"multiplier_h" json:"multiplier_h" yaml:"multiplier_h"`
	MultiplierV   float64 `toml:"multiplier_v" json:"multiplier_v" yaml:"multiplier_v"`
	Resolution    float64 `toml:"resolution" json:"resolution" yaml:"resolution"`
	ThrottleMs    int     `toml:"throttle_ms" json:"throttle_ms" yaml:"throttle_ms"`
	TimeoutMs     int     `toml:"timeout_ms" json:"timeout_ms" yaml:"timeout_ms"`
	SnapThreshold float64 `toml:"snap_threshold" json:"snap_threshold" yaml:"snap_threshold"`
	SnapRatio     float64 `toml:"snap_ratio" json:"snap_ratio" yaml:"snap_ratio"`
	Smoothing     int     `toml:"smoothing" json:"smoothing" yaml:"smoothing"`
	Acceleration  bool    `toml:"acceleration" json:"acceleration" yaml:"acceleration"`
	AccelScale    float64 `toml:"accel_scale" json:"accel_scale" yaml:"accel_scale"`
	AccelBlend    float64 `toml:"accel_blend" json:"accel_blend" yaml:"accel_blend"`

	// PointerSnapThreshold and PointerSnapRatio drive Shift snapping in
	// persistent mode.
	PointerSnapThreshold float64 `toml:"pointer_snap_threshold" json:"pointer_snap_threshold" yaml:"pointer_snap_threshold"`
	PointerSnapRatio     float64 `toml:"pointer_snap_ratio" json:"pointer_snap_ratio" yaml:"pointer_snap_ratio"`
}

// IndicatorConfig selects where indicator transitions go.
type IndicatorConfig struct {
	// Notify sends desktop notifications over the session bus.
	Notify bool `toml:"notify" json:"notify" yaml:"notify"`

	// Log writes transitions at debug level.
	Log bool `toml:"log" json:"log" yaml:"log"`

	// Brightness caps the V channel of every color (0-255).
	Brightness int `toml:"brightness" json:"brightness" yaml:"brightness"`
}

// TraceConfig holds transition trace storage configuration.
type TraceConfig struct {
	Enabled bool   `toml:"enabled" json:"enabled" yaml:"enabled"`
	Path    string `toml:"path" json:"path" yaml:"path"`

	// QueueSize bounds the writer queue; steps beyond it are dropped.
	QueueSize int `toml:"queue_size" json:"queue_size" yaml:"queue_size"`

	// RetentionHours prunes older rows at startup; 0 keeps everything.
	RetentionHours int `toml:"retention_hours" json:"retention_hours" yaml:"retention_hours"`
}

// IPCConfig holds control socket configuration.
type IPCConfig struct {
	Enabled    bool   `toml:"enabled" json:"enabled" yaml:"enabled"`
	SocketPath string `toml:"socket_path" json:"socket_path" yaml:"socket_path"`

	// EventsAddr serves state events over WebSocket on a loopback address
	// when set. EventsOrigins lists browser origins allowed to connect in
	// addition to localhost pages.
	EventsAddr    string   `toml:"events_addr" json:"events_addr" yaml:"events_addr"`
	EventsOrigins []string `toml:"events_origins" json:"events_origins,omitempty" yaml:"events_origins"`
}

// DefaultConfig returns the configuration used when no file exists.
func DefaultConfig() *Config {
	fp := fsm.DefaultParams()
	dp := dragscroll.DefaultParams()
	es := engine.DefaultSettings()
	return &Config{
		Version: Version,
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     "stderr",
			FilePath:   DefaultLogPath(),
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 14,
			Compress:   true,
		},
		Devices: DevicesConfig{
			Keyboards: true,
			Pointers:  true,
			InputDir:  "/dev/input",
			HotPlug:   true,
			SettleMs:  250,
		},
		Timing: TimingConfig{
			CtrlTermMs:     int(fp.CtrlTerm / time.Millisecond),
			AltTermMs:      int(fp.AltTerm / time.Millisecond),
			GuiTermMs:      int(fp.GuiTerm / time.Millisecond),
			BaseTermMs:     int(fp.BaseTerm / time.Millisecond),
			LongHoldTermMs: int(fp.LongHoldTerm / time.Millisecond),
			Deadzone:       int(fp.Deadzone),
			BufferMs:       int(fp.BufferDuration / time.Millisecond),
		},
		Dragscroll: DragscrollConfig{
			MultiplierH:          dp.MultiplierH,
			MultiplierV:          dp.MultiplierV,
			Resolution:           dp.Resolution,
			ThrottleMs:           int(dp.Throttle / time.Millisecond),
			TimeoutMs:            int(dp.Timeout / time.Millisecond),
			SnapThreshold:        dp.SnapThreshold,
			SnapRatio:            dp.SnapRatio,
			Smoothing:            dp.Smoothing,
			Acceleration:         dp.Acceleration,
			AccelScale:           dp.AccelScale,
			AccelBlend:           dp.AccelBlend,
			PointerSnapThreshold: es.PointerSnapThreshold,
			PointerSnapRatio:     es.PointerSnapRatio,
		},
		Indicator: IndicatorConfig{
			Notify:     false,
			Log:        true,
			Brightness: 255,
		},
		Trace: TraceConfig{
			Enabled:        false,
			Path:           DefaultTracePath(),
			QueueSize:      1024,
			RetentionHours: 24 * 7,
		},
		IPC: IPCConfig{
			Enabled:    true,
			SocketPath: DefaultSocketPath(),
		},
	}
}

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }

// FSMParams converts the timing section.
func (c *Config) FSMParams() fsm.Params {
	p := fsm.DefaultParams()
	p.CtrlTerm = ms(c.Timing.CtrlTermMs)
	p.AltTerm = ms(c.Timing.AltTermMs)
	p.GuiTerm = ms(c.Timing.GuiTermMs)
	p.BaseTerm = ms(c.Timing.BaseTermMs)
	p.LongHoldTerm = ms(c.Timing.LongHoldTermMs)
	p.Deadzone = uint16(c.Timing.Deadzone)
	p.BufferDuration = ms(c.Timing.BufferMs)
	return p
}

// DragscrollParams converts the dragscroll section.
func (c *Config) DragscrollParams() dragscroll.Params {
	d := c.Dragscroll
	return dragscroll.Params{
		MultiplierH:   d.MultiplierH,
		MultiplierV:   d.MultiplierV,
		Resolution:    d.Resolution,
		Throttle:      ms(d.ThrottleMs),
		Timeout:       ms(d.TimeoutMs),
		SnapThreshold: d.SnapThreshold,
		SnapRatio:     d.SnapRatio,
		Smoothing:     d.Smoothing,
		Acceleration:  d.Acceleration,
		AccelScale:    d.AccelScale,
		AccelBlend:    d.AccelBlend,
	}
}

// BuildKeymap returns the built-in layout with the configured tables
// merged over it.
func (c *Config) BuildKeymap() (*keymap.Keymap, error) {
	km := keymap.Default()
	if len(c.Keymap) == 0 {
		return km, nil
	}
	overlay, err := keymap.FromTables(c.Keymap)
	if err != nil {
		return nil, err
	}
	km.Merge(overlay)
	return km, nil
}

// IndicatorTables builds the color tables at the configured brightness.
func (c *Config) IndicatorTables() indicator.Tables {
	return indicator.NewTables(indicator.DefaultPalette(uint8(c.Indicator.Brightness)),
		indicator.TimingTo, indicator.TimingFrom, indicator.TimingFlash)
}

// Matcher converts the devices section.
func (c *Config) Matcher() host.Matcher {
	return host.Matcher{
		Include:   c.Devices.Include,
		Exclude:   c.Devices.Exclude,
		Keyboards: c.Devices.Keyboards,
		Pointers:  c.Devices.Pointers,
	}
}

// EngineSettings assembles everything the engine needs.
func (c *Config) EngineSettings() (engine.Settings, error) {
	km, err := c.BuildKeymap()
	if err != nil {
		return engine.Settings{}, fmt.Errorf("build keymap: %w", err)
	}
	return engine.Settings{
		FSM:                  c.FSMParams(),
		Dragscroll:           c.DragscrollParams(),
		Keymap:               km,
		Indicator:            c.IndicatorTables(),
		PointerSnapThreshold: c.Dragscroll.PointerSnapThreshold,
		PointerSnapRatio:     c.Dragscroll.PointerSnapRatio,
	}, nil
}

// LoggerConfig converts the logging section.
func (c *Config) LoggerConfig(component string) (*logging.Config, error) {
	level, err := logging.ParseLevel(c.Logging.Level)
	if err != nil {
		return nil, err
	}
	format, err := logging.ParseFormat(c.Logging.Format)
	if err != nil {
		return nil, err
	}
	return &logging.Config{
		Level:      level,
		Format:     format,
		Output:     c.Logging.Output,
		FilePath:   c.Logging.FilePath,
		MaxSize:    c.Logging.MaxSizeMB,
		MaxAge:     c.Logging.MaxAgeDays,
		MaxBackups: c.Logging.MaxBackups,
		Compress:   c.Logging.Compress,
		Component:  component,
	}, nil
}

// Environment variables that override file values.
const (
	EnvLogLevel  = "SUPERKEYS_LOG_LEVEL"
	EnvLogFormat = "SUPERKEYS_LOG_FORMAT"
	EnvSocket    = "SUPERKEYS_SOCKET"
	EnvEvents    = "SUPERKEYS_EVENTS_ADDR"
	EnvTrace     = "SUPERKEYS_TRACE"
	EnvTracePath = "SUPERKEYS_TRACE_PATH"
	EnvNotify    = "SUPERKEYS_NOTIFY"
	EnvInclude   = "SUPERKEYS_DEVICES"
)

// ApplyEnvOverrides applies SUPERKEYS_* variables. Malformed booleans are
// ignored.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv(EnvLogFormat); v != "" {
		c.Logging.Format = v
	}
	if v := os.Getenv(EnvSocket); v != "" {
		c.IPC.SocketPath = v
	}
	if v, ok := os.LookupEnv(EnvEvents); ok {
		c.IPC.EventsAddr = v
	}
	if b, ok := envBool(EnvTrace); ok {
		c.Trace.Enabled = b
	}
	if v := os.Getenv(EnvTracePath); v != "" {
		c.Trace.Path = v
	}
	if b, ok := envBool(EnvNotify); ok {
		c.Indicator.Notify = b
	}
	if v := os.Getenv(EnvInclude); v != "" {
		var include []string
		for _, s := range strings.Split(v, ",") {
			if s = strings.TrimSpace(s); s != "" {
				include = append(include, s)
			}
		}
		c.Devices.Include = include
	}
}

func envBool(name string) (bool, bool) {
	v := os.Getenv(name)
	if v == "" {
		return false, false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, false
	}
	return b, true
}
