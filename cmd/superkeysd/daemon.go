package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"superkeys/internal/config"
	"superkeys/internal/engine"
	"superkeys/internal/fsm"
	"superkeys/internal/host"
	"superkeys/internal/indicator"
	"superkeys/internal/ipc"
	"superkeys/internal/logging"
	"superkeys/internal/metrics"
	"superkeys/internal/store"
	"superkeys/internal/watcher"
)

// daemon holds everything a running superkeysd owns. Fields are filled in
// by start and released in reverse order by shutdown.
type daemon struct {
	loader    *config.Loader
	cfg       *config.Config
	startedAt time.Time

	log     *logging.Logger
	crash   *logging.CrashHandler
	metrics *metrics.EngineMetrics

	sink    *host.Sink
	notify  *indicator.NotifySink
	trace   *store.Store
	session int64
	writer  *store.Writer
	engine  *engine.Engine
	devices *host.Manager
	hotplug *watcher.Watcher
	server  *ipc.Server
	events  *ipc.EventStream

	engineDone chan struct{}
	writerStop context.CancelFunc
}

func cmdRun(args []string) {
	_, cf := parseFlags("run", args)

	loader := config.NewLoader(cf.configPath)
	cfg, err := loader.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if cf.logLevel != "" {
		cfg.Logging.Level = cf.logLevel
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	d := &daemon{loader: loader, cfg: cfg, startedAt: time.Now()}
	if err := d.start(ctx); err != nil {
		stop()
		d.shutdown()
		fmt.Fprintf(os.Stderr, "Failed to start: %v\n", err)
		os.Exit(1)
	}

	<-ctx.Done()
	d.log.Info("shutting down")
	d.shutdown()
}

func (d *daemon) start(ctx context.Context) error {
	lc, err := d.cfg.LoggerConfig("superkeysd")
	if err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	d.log, err = logging.New(lc)
	if err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	logging.SetDefault(d.log)
	d.crash = logging.NewCrashHandler(config.DefaultCrashDir(), Version, d.log)
	if err := d.crash.Prune(30 * 24 * time.Hour); err != nil {
		d.log.Debug("prune crash reports", "error", err)
	}

	d.log.Info("starting", "version", Version, "config", d.loader.Path())
	d.metrics = metrics.NewEngineMetrics(nil)

	settings, err := d.cfg.EngineSettings()
	if err != nil {
		return err
	}

	d.sink, err = host.CreateSink()
	if err != nil {
		return fmt.Errorf("create output device: %w", err)
	}

	if err := d.openTrace(); err != nil {
		return err
	}

	inds := indicator.Multi{}
	if d.cfg.Indicator.Log {
		inds = append(inds, indicator.LogSink{
			Logger: d.log.WithComponent("indicator").Logger,
			Tables: settings.Indicator,
		})
	}
	if d.cfg.Indicator.Notify {
		d.notify, err = indicator.DialNotifySink(settings.Indicator, d.log.Logger)
		if err != nil {
			d.log.Warn("desktop notifications unavailable", "error", err)
		} else {
			inds = append(inds, d.notify)
		}
	}

	d.engine = engine.New(engine.Options{
		Settings:  settings,
		Emitter:   d.sink,
		Indicator: inds,
		Logger:    d.log.Logger,
		Metrics:   d.metrics,
		Trace:     d.onStep,
	})
	d.devices = host.NewManager(d.cfg.Matcher(), d.engine, d.log.Logger)
	d.devices.OnChange = func(n int) { d.metrics.Devices.Set(int64(n)) }

	if d.cfg.IPC.Enabled {
		backend := &daemonBackend{
			version:    Version,
			startedAt:  d.startedAt,
			configPath: d.loader.Path(),
			engine:     d.engine,
			metrics:    d.metrics,
			devices:    d.devicePaths,
			reload:     d.loader.Reload,
			trace:      d.trace,
			writer:     d.writer,
			now:        time.Now,
		}
		scfg := ipc.DefaultServerConfig(d.cfg.IPC.SocketPath)
		scfg.Logger = d.log.WithComponent("ipc").Logger
		d.server = ipc.NewServer(scfg, ipc.NewDaemonHandler(backend))
		if err := d.server.Start(); err != nil {
			d.server = nil
			return fmt.Errorf("start control socket: %w", err)
		}
		d.log.Info("control socket listening", "path", scfg.SocketPath)
	}
	if addr := d.cfg.IPC.EventsAddr; addr != "" {
		d.events = ipc.NewEventStream(addr, d.cfg.IPC.EventsOrigins, d.log.Logger)
		if err := d.events.Start(); err != nil {
			d.events = nil
			return fmt.Errorf("start event stream: %w", err)
		}
	}

	d.engineDone = make(chan struct{})
	go func() {
		defer close(d.engineDone)
		defer d.crash.Guard("engine")
		if err := d.engine.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			d.log.Error("engine stopped", "error", err)
		}
	}()

	if err := d.attachDevices(ctx); err != nil {
		return err
	}

	d.loader.OnChange(func(c *config.Config) { d.apply(ctx, c) })
	if err := d.loader.Watch(ctx); err != nil {
		d.log.Warn("config watch unavailable", "error", err)
	} else {
		go d.reportLoaderErrors(ctx)
	}
	return nil
}

func (d *daemon) openTrace() error {
	if !d.cfg.Trace.Enabled {
		return nil
	}
	st, err := store.Open(d.cfg.Trace.Path)
	if err != nil {
		return fmt.Errorf("open trace store: %w", err)
	}
	d.trace = st

	if h := d.cfg.Trace.RetentionHours; h > 0 {
		n, err := st.Prune(time.Now().Add(-time.Duration(h) * time.Hour))
		if err != nil {
			d.log.Warn("prune trace", "error", err)
		} else if n > 0 {
			d.log.Info("pruned trace", "rows", n)
		}
	}

	d.session, err = st.StartSession(d.startedAt, d.loader.Path())
	if err != nil {
		return fmt.Errorf("start trace session: %w", err)
	}
	d.writer = store.NewWriter(st, d.session,
		store.WithQueueSize(d.cfg.Trace.QueueSize),
		store.WithLogger(d.log.WithComponent("trace").Logger),
		store.WithDropHook(d.metrics.TraceDropped.Inc),
	)

	// The writer outlives the engine so it can drain the last steps.
	wctx, cancel := context.WithCancel(context.Background())
	d.writerStop = cancel
	go func() {
		defer d.crash.Guard("trace")
		d.writer.Run(wctx)
	}()
	d.log.Info("trace enabled", "path", d.cfg.Trace.Path, "session", d.session)
	return nil
}

// onStep runs on the engine goroutine and must not block.
func (d *daemon) onStep(s fsm.Step) {
	if d.writer != nil {
		d.writer.Enqueue(s)
	}
	if d.server == nil && d.events == nil {
		return
	}
	ev := ipc.StateEventFromStep(s)
	if d.server != nil {
		d.server.Broadcast(ev)
	}
	if d.events != nil {
		d.events.Broadcast(ev)
	}
}

func (d *daemon) attachDevices(ctx context.Context) error {
	err := d.devices.AttachAll(ctx)
	switch {
	case errors.Is(err, host.ErrDeviceNotFound) && d.cfg.Devices.HotPlug:
		d.log.Warn("no matching devices yet, waiting for hot plug")
	case err != nil:
		return err
	}

	if !d.cfg.Devices.HotPlug {
		return nil
	}
	settle := time.Duration(d.cfg.Devices.SettleMs) * time.Millisecond
	w, err := watcher.New(d.cfg.Devices.InputDir, "event*", settle)
	if err != nil {
		return fmt.Errorf("hot plug: %w", err)
	}
	if err := w.Start(); err != nil {
		return fmt.Errorf("hot plug: %w", err)
	}
	d.hotplug = w
	go d.hotplugLoop(ctx, w)
	return nil
}

func (d *daemon) hotplugLoop(ctx context.Context, w *watcher.Watcher) {
	defer d.crash.Guard("hotplug")
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.Events():
			if !ok {
				return
			}
			switch ev.Op {
			case watcher.Added:
				if _, err := d.devices.Attach(ctx, ev.Path); err != nil {
					d.log.Debug("skip device", "path", ev.Path, "error", err)
				}
			case watcher.Removed:
				d.devices.Detach(ev.Path)
			}
		case err, ok := <-w.Errors():
			if !ok {
				return
			}
			d.log.Warn("hot plug watcher", "error", err)
		}
	}
}

func (d *daemon) devicePaths() []string {
	infos := d.devices.Devices()
	out := make([]string, 0, len(infos))
	for _, i := range infos {
		out = append(out, i.Path)
	}
	return out
}

// apply pushes a reloaded configuration into the engine. Device selection,
// logging and socket changes take effect on restart.
func (d *daemon) apply(ctx context.Context, c *config.Config) {
	settings, err := c.EngineSettings()
	if err != nil {
		d.log.Error("reloaded config rejected", "error", err)
		return
	}
	if err := d.engine.Do(ctx, func(e *engine.Engine) { e.Reconfigure(settings) }); err != nil {
		d.log.Error("apply config", "error", err)
		return
	}
	d.log.Info("configuration reloaded", "path", d.loader.Path())
}

func (d *daemon) reportLoaderErrors(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case err := <-d.loader.Errors():
			d.log.Warn("config reload failed, keeping previous", "error", err)
		}
	}
}

// shutdown releases resources in reverse start order. It is safe after a
// partial start.
func (d *daemon) shutdown() {
	if d.server != nil {
		if err := d.server.Stop(); err != nil {
			d.log.Warn("stop control socket", "error", err)
		}
	}
	if d.events != nil {
		d.events.Stop()
	}
	if d.hotplug != nil {
		d.hotplug.Stop()
	}
	if d.devices != nil {
		d.devices.Close()
	}
	if d.engineDone != nil {
		select {
		case <-d.engineDone:
		case <-time.After(2 * time.Second):
			d.log.Warn("engine did not stop in time")
		}
	}
	if d.writer != nil {
		d.writerStop()
		<-d.writer.Done()
	}
	if d.trace != nil {
		if err := d.trace.EndSession(d.session, time.Now()); err != nil {
			d.log.Warn("end trace session", "error", err)
		}
		d.trace.Close()
	}
	if d.notify != nil {
		d.notify.Close()
	}
	if d.sink != nil {
		d.sink.Close()
	}
	if d.log != nil {
		d.log.Info("stopped")
		d.log.Close()
	}
}
