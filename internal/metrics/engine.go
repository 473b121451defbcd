package metrics

// EngineMetrics holds the metrics the remapping engine updates.
type EngineMetrics struct {
	registry *Registry

	KeysTotal      *Counter
	PassTotal      *Counter
	SuppressTotal  *Counter
	Redispatches   *Counter
	TimerFires     *Counter
	WatcherFires   *Counter
	PointerSamples *Counter
	EmitErrors     *Counter
	TraceDropped   *Counter

	Node       *Gauge
	Persistent *Gauge
	Devices    *Gauge

	StateDuration *Histogram
}

// NewEngineMetrics registers the engine metrics on registry, or on a fresh
// "superkeys" registry when nil.
func NewEngineMetrics(registry *Registry) *EngineMetrics {
	if registry == nil {
		registry = NewRegistry("superkeys")
	}
	return &EngineMetrics{
		registry: registry,

		KeysTotal: registry.Counter("key_events_total",
			"Key edges received from input devices", nil),
		PassTotal: registry.Counter("dispatch_total",
			"State machine dispatches by result", Labels{"result": "pass"}),
		SuppressTotal: registry.Counter("dispatch_total",
			"State machine dispatches by result", Labels{"result": "suppress"}),
		Redispatches: registry.Counter("redispatch_total",
			"Events handled a second time after a return to neutral", nil),
		TimerFires: registry.Counter("timer_fires_total",
			"Tap/hold timer expirations", nil),
		WatcherFires: registry.Counter("watcher_fires_total",
			"Motion watcher threshold crossings", nil),
		PointerSamples: registry.Counter("pointer_samples_total",
			"Pointer samples processed", nil),
		EmitErrors: registry.Counter("emit_errors_total",
			"Failed writes to the output device", nil),
		TraceDropped: registry.Counter("trace_dropped_total",
			"Trace entries dropped because the writer was behind", nil),

		Node: registry.Gauge("node",
			"Current state machine node index", nil),
		Persistent: registry.Gauge("persistent_mode",
			"1 while persistent mode is on", nil),
		Devices: registry.Gauge("devices",
			"Input devices currently attached", nil),

		StateDuration: registry.Histogram("state_duration_seconds",
			"Time spent in a node before leaving it", nil, DurationBuckets),
	}
}

// Registry returns the registry the metrics live in.
func (m *EngineMetrics) Registry() *Registry { return m.registry }
