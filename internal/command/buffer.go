// Package command implements the CommandBuffer (C8) and
// CommandDispatcher (C9): the per-tenant single-consumer FIFO that
// serializes every domain mutation on a worker, and the gateway-side
// dispatcher that serializes commands over an RPC channel.
package command

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/JoshuaRamirez/acs-gateway/internal/errs"
	"github.com/JoshuaRamirez/acs-gateway/pkg/metrics"
)

// DefaultCapacity is the CommandBuffer's default bounded queue depth.
const DefaultCapacity = 10000

// DefaultEnqueueTimeout is how long Enqueue waits for room in a full
// queue before failing with Overloaded.
const DefaultEnqueueTimeout = 5 * time.Second

// ErrCancelled is the result recorded for a queued command whose
// caller's context was cancelled before its handler began; the handler
// is then skipped. Enqueue itself returns the context's error to that
// caller.
var ErrCancelled = errors.New("command: cancelled before execution")

// Command is an opaque unit of work enqueued on a worker's buffer.
type Command struct {
	TypeID        string
	Payload       []byte
	CorrelationID string
	Void          bool
}

// Result is what a Handler produces for a Command.
type Result struct {
	Data []byte
	Err  error
}

// Handler executes a single command against the worker's in-memory
// model. Handlers are never invoked concurrently for the same Buffer.
type Handler func(ctx context.Context, cmd Command) ([]byte, error)

type item struct {
	cmd       Command
	resultCh  chan Result
	cancelled atomic.Bool
}

// Buffer is a bounded, single-consumer FIFO of commands for one
// tenant worker.
type Buffer struct {
	tenantID       string
	queue          chan *item
	handler        Handler
	enqueueTimeout time.Duration
	metrics        *metrics.TenantWorkerMetrics
	processed      int64

	rateMu      sync.Mutex
	rateWindow  []time.Time
}

// Option configures a Buffer.
type Option func(*Buffer)

// WithEnqueueTimeout overrides DefaultEnqueueTimeout.
func WithEnqueueTimeout(d time.Duration) Option {
	return func(b *Buffer) { b.enqueueTimeout = d }
}

// WithMetrics attaches a Prometheus metrics set; nil is safe (no-op).
func WithMetrics(m *metrics.TenantWorkerMetrics) Option {
	return func(b *Buffer) { b.metrics = m }
}

// WithCapacity overrides DefaultCapacity.
func WithCapacity(capacity int) Option {
	return func(b *Buffer) {
		b.queue = make(chan *item, capacity)
	}
}

// NewBuffer builds a Buffer for tenantID that dispatches dequeued
// commands to handler.
func NewBuffer(tenantID string, handler Handler, opts ...Option) *Buffer {
	b := &Buffer{
		tenantID:       tenantID,
		queue:          make(chan *item, DefaultCapacity),
		handler:        handler,
		enqueueTimeout: DefaultEnqueueTimeout,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Run is the single consumer loop; call it in its own goroutine. It
// returns when ctx is done or the queue is closed.
func (b *Buffer) Run(ctx context.Context) {
	for {
		select {
		case it, ok := <-b.queue:
			if !ok {
				return
			}
			b.process(ctx, it)
		case <-ctx.Done():
			return
		}
	}
}

func (b *Buffer) process(ctx context.Context, it *item) {
	if it.cancelled.Load() {
		it.resultCh <- Result{Err: ErrCancelled}
		return
	}

	start := time.Now()
	data, err := b.handler(context.Background(), it.cmd)
	duration := time.Since(start)

	atomic.AddInt64(&b.processed, 1)
	b.recordTick()
	if b.metrics != nil {
		status := "success"
		if err != nil {
			status = "error"
		}
		b.metrics.CommandsExecutedTotal.WithLabelValues(it.cmd.TypeID, status).Inc()
		b.metrics.CommandDurationSeconds.WithLabelValues(it.cmd.TypeID).Observe(duration.Seconds())
		b.metrics.CommandQueueDepth.Set(float64(len(b.queue)))
		b.metrics.CommandsPerSecond.Set(b.commandsPerSecond())
	}

	it.resultCh <- Result{Data: data, Err: err}
}

// Enqueue submits cmd and blocks until its handler completes (or the
// enqueue itself fails with Overloaded, or ctx is cancelled). Commands
// enqueued earlier are guaranteed to complete before any handler
// invocation begins for a later-enqueued command.
func (b *Buffer) Enqueue(ctx context.Context, cmd Command) (Result, error) {
	it := &item{cmd: cmd, resultCh: make(chan Result, 1)}

	select {
	case b.queue <- it:
	case <-time.After(b.enqueueTimeout):
		return Result{}, errs.New(errs.KindBufferOverloaded, "command buffer full: Overloaded")
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}

	select {
	case res := <-it.resultCh:
		return res, res.Err
	case <-ctx.Done():
		it.cancelled.Store(true)
		return Result{}, ctx.Err()
	}
}

// QueueDepth reports the number of commands currently queued.
func (b *Buffer) QueueDepth() int {
	return len(b.queue)
}

// CommandsProcessed reports the total number of commands this buffer
// has completed (successfully or not).
func (b *Buffer) CommandsProcessed() int64 {
	return atomic.LoadInt64(&b.processed)
}

// recordTick appends now to a rolling one-minute window used by
// commandsPerSecond, trimming entries older than the window.
func (b *Buffer) recordTick() {
	now := time.Now()
	b.rateMu.Lock()
	defer b.rateMu.Unlock()
	b.rateWindow = append(b.rateWindow, now)
	cutoff := now.Add(-time.Minute)
	i := 0
	for i < len(b.rateWindow) && b.rateWindow[i].Before(cutoff) {
		i++
	}
	b.rateWindow = b.rateWindow[i:]
}

// commandsPerSecond returns the rolling-window throughput, averaged
// over the last minute (or less, early on).
func (b *Buffer) commandsPerSecond() float64 {
	b.rateMu.Lock()
	defer b.rateMu.Unlock()
	if len(b.rateWindow) == 0 {
		return 0
	}
	span := time.Since(b.rateWindow[0]).Seconds()
	if span < 1 {
		span = 1
	}
	return float64(len(b.rateWindow)) / span
}
