package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"superkeys/internal/engine"
	"superkeys/internal/ipc"
	"superkeys/internal/metrics"
	"superkeys/internal/store"
)

// traceSessions is how many recent sessions a trace response lists.
const traceSessions = 5

// daemonBackend answers control socket requests from the running daemon.
type daemonBackend struct {
	version    string
	startedAt  time.Time
	configPath string

	engine  *engine.Engine
	metrics *metrics.EngineMetrics

	// devices lists attached device paths.
	devices func() []string
	// reload re-reads the configuration and applies it.
	reload func() error

	// trace and writer are nil while tracing is off.
	trace  *store.Store
	writer *store.Writer

	now func() time.Time
}

func (b *daemonBackend) Status(ctx context.Context) (*ipc.StatusResponse, error) {
	st, err := b.engine.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	resp := &ipc.StatusResponse{
		Version:    b.version,
		StartedAt:  b.startedAt,
		Uptime:     b.now().Sub(b.startedAt).Round(time.Second).String(),
		ConfigPath: b.configPath,
		Devices:    []string{},
		Engine:     st,
		Metrics:    b.metrics.Registry().Snapshot(),
	}
	if b.devices != nil {
		resp.Devices = append(resp.Devices, b.devices()...)
	}
	return resp, nil
}

func (b *daemonBackend) Reset(ctx context.Context) (*ipc.ResetResponse, error) {
	var node string
	err := b.engine.Do(ctx, func(e *engine.Engine) {
		e.Reset()
		node = e.Machine().Node().String()
	})
	if err != nil {
		return nil, err
	}
	return &ipc.ResetResponse{Node: node}, nil
}

func (b *daemonBackend) Reload(ctx context.Context) (*ipc.ReloadResponse, error) {
	resp := &ipc.ReloadResponse{ConfigPath: b.configPath}
	if b.reload == nil {
		return nil, errors.New("reload not supported")
	}
	if err := b.reload(); err != nil {
		resp.Error = err.Error()
		return resp, nil
	}
	resp.Success = true
	return resp, nil
}

func (b *daemonBackend) Trace(ctx context.Context, limit int) (*ipc.TraceResponse, error) {
	if b.trace == nil {
		return &ipc.TraceResponse{Transitions: []store.Transition{}}, nil
	}
	ts, err := b.trace.Recent(limit)
	if err != nil {
		return nil, fmt.Errorf("read trace: %w", err)
	}
	stats, err := b.trace.Stats()
	if err != nil {
		return nil, fmt.Errorf("trace stats: %w", err)
	}
	sessions, err := b.trace.Sessions(traceSessions)
	if err != nil {
		return nil, fmt.Errorf("trace sessions: %w", err)
	}
	resp := &ipc.TraceResponse{
		Enabled:     true,
		Transitions: ts,
		Stats:       stats,
		Sessions:    sessions,
	}
	if b.writer != nil {
		resp.Dropped = b.writer.Dropped()
	}
	return resp, nil
}

func (b *daemonBackend) Metrics(ctx context.Context) (*ipc.MetricsResponse, error) {
	var sb strings.Builder
	if err := b.metrics.Registry().WritePrometheus(&sb); err != nil {
		return nil, err
	}
	return &ipc.MetricsResponse{Text: sb.String()}, nil
}
