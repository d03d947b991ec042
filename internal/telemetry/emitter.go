package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

const (
	// DefaultBuffer is the number of events that may wait for delivery.
	DefaultBuffer = 256
	// DefaultDeliveryTimeout bounds a single sink call.
	DefaultDeliveryTimeout = 5 * time.Second
)

// Options configures an Emitter.
type Options struct {
	// PluginVersion is attached to every event.
	PluginVersion   string
	Buffer          int
	DeliveryTimeout time.Duration
	Logger          *slog.Logger
}

// Stats counts delivery outcomes.
type Stats struct {
	Sent    uint64
	Failed  uint64
	Dropped uint64
}

type queued struct {
	ctx     context.Context
	name    string
	payload map[string]any
}

// Emitter queues telemetry events and delivers them to a Sink from a single
// background goroutine. A nil *Emitter discards everything.
type Emitter struct {
	sink   Sink
	opts   Options
	logger *slog.Logger
	queue  chan queued
	done   chan struct{}

	mu     sync.RWMutex
	closed bool

	sent    atomic.Uint64
	failed  atomic.Uint64
	dropped atomic.Uint64
}

// NewEmitter starts an emitter delivering to sink.
func NewEmitter(sink Sink, opts Options) *Emitter {
	if opts.Buffer <= 0 {
		opts.Buffer = DefaultBuffer
	}
	if opts.DeliveryTimeout <= 0 {
		opts.DeliveryTimeout = DefaultDeliveryTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	e := &Emitter{
		sink:   sink,
		opts:   opts,
		logger: opts.Logger.With("component", "telemetry"),
		queue:  make(chan queued, opts.Buffer),
		done:   make(chan struct{}),
	}
	go e.worker()
	return e
}

// EmitEdit records an accepted cell edit.
func (e *Emitter) EmitEdit(ctx context.Context, ev EditEvent) {
	if e == nil {
		return
	}
	e.enqueue(ctx, EventEditCell, editPayload(ev, e.opts.PluginVersion))
}

// EmitView records a table render. columns are the declarative column
// definitions; their field and title are hashed.
func (e *Emitter) EmitView(ctx context.Context, dataset string, columns []map[string]any, rowCount int) {
	if e == nil {
		return
	}
	e.enqueue(ctx, EventDisplayTable, viewPayload(dataset, columns, rowCount, e.opts.PluginVersion))
}

func (e *Emitter) enqueue(ctx context.Context, name string, payload map[string]any) {
	if ctx == nil {
		ctx = context.Background()
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.closed {
		e.dropped.Add(1)
		return
	}
	select {
	case e.queue <- queued{ctx: context.WithoutCancel(ctx), name: name, payload: payload}:
	default:
		e.dropped.Add(1)
		e.logger.Debug("telemetry buffer full, event dropped", "event", name)
	}
}

func (e *Emitter) worker() {
	defer close(e.done)
	for q := range e.queue {
		if err := e.deliver(q); err != nil {
			e.failed.Add(1)
			e.logger.Debug("telemetry delivery failed", "event", q.name, "error", err)
			continue
		}
		e.sent.Add(1)
	}
}

func (e *Emitter) deliver(q queued) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sink panic: %v", r)
		}
	}()

	ctx, cancel := context.WithTimeout(q.ctx, e.opts.DeliveryTimeout)
	defer cancel()
	return e.sink.Event(ctx, q.name, q.payload)
}

// Close stops accepting events and waits for queued events to be delivered
// or for ctx to end. Close is idempotent.
func (e *Emitter) Close(ctx context.Context) error {
	if e == nil {
		return nil
	}

	e.mu.Lock()
	if !e.closed {
		e.closed = true
		close(e.queue)
	}
	e.mu.Unlock()

	select {
	case <-e.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats returns delivery counters.
func (e *Emitter) Stats() Stats {
	if e == nil {
		return Stats{}
	}
	return Stats{
		Sent:    e.sent.Load(),
		Failed:  e.failed.Load(),
		Dropped: e.dropped.Load(),
	}
}
