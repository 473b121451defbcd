package store

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"superkeys/internal/fsm"
)

const (
	DefaultQueueSize  = 1024
	DefaultBatchSize  = 128
	DefaultFlushEvery = time.Second
)

// Writer moves machine steps onto disk off the input path. Enqueue never
// blocks; a full queue drops the step and counts it.
type Writer struct {
	store     *Store
	session   int64
	queue     chan Transition
	batchSize int
	every     time.Duration
	logger    *slog.Logger
	onDrop    func()

	dropped atomic.Uint64
	written atomic.Uint64

	startOnce sync.Once
	done      chan struct{}
}

// WriterOption configures a Writer.
type WriterOption func(*Writer)

// WithQueueSize bounds the pending queue.
func WithQueueSize(n int) WriterOption {
	return func(w *Writer) {
		if n > 0 {
			w.queue = make(chan Transition, n)
		}
	}
}

// WithBatch sets the flush size and interval.
func WithBatch(size int, every time.Duration) WriterOption {
	return func(w *Writer) {
		if size > 0 {
			w.batchSize = size
		}
		if every > 0 {
			w.every = every
		}
	}
}

// WithLogger sets the logger used for write failures.
func WithLogger(l *slog.Logger) WriterOption {
	return func(w *Writer) { w.logger = l }
}

// WithDropHook is called once per dropped step.
func WithDropHook(fn func()) WriterOption {
	return func(w *Writer) { w.onDrop = fn }
}

// NewWriter creates a writer tagging rows with session.
func NewWriter(s *Store, session int64, opts ...WriterOption) *Writer {
	w := &Writer{
		store:     s,
		session:   session,
		queue:     make(chan Transition, DefaultQueueSize),
		batchSize: DefaultBatchSize,
		every:     DefaultFlushEvery,
		logger:    slog.Default(),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// FromStep converts a machine step to a row.
func FromStep(step fsm.Step, session int64) Transition {
	return Transition{
		SessionID:    session,
		Time:         step.Time,
		Code:         step.Code.String(),
		Pressed:      step.Pressed,
		StateBefore:  step.Before.String(),
		StateAfter:   step.After.String(),
		Result:       step.Result.String(),
		Redispatched: step.Redispatched,
	}
}

// Enqueue queues a step and reports whether it was accepted.
func (w *Writer) Enqueue(step fsm.Step) bool {
	select {
	case w.queue <- FromStep(step, w.session):
		return true
	default:
		w.dropped.Add(1)
		if w.onDrop != nil {
			w.onDrop()
		}
		return false
	}
}

// Dropped returns the number of steps lost to a full queue.
func (w *Writer) Dropped() uint64 { return w.dropped.Load() }

// Written returns the number of rows committed.
func (w *Writer) Written() uint64 { return w.written.Load() }

// Run drains the queue until ctx is cancelled, then flushes what is left.
func (w *Writer) Run(ctx context.Context) {
	w.startOnce.Do(func() { defer close(w.done); w.run(ctx) })
}

// Done is closed after Run returns.
func (w *Writer) Done() <-chan struct{} { return w.done }

func (w *Writer) run(ctx context.Context) {
	ticker := time.NewTicker(w.every)
	defer ticker.Stop()

	batch := make([]Transition, 0, w.batchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := w.store.InsertTransitions(batch); err != nil {
			w.logger.Warn("trace write failed", "rows", len(batch), "error", err)
		} else {
			w.written.Add(uint64(len(batch)))
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case t := <-w.queue:
					batch = append(batch, t)
				default:
					flush()
					return
				}
			}
		case t := <-w.queue:
			batch = append(batch, t)
			if len(batch) >= w.batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}
