package uristat

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/torosent/uristat/internal/tracing"
)

const (
	// DefaultInterval is the default reporting window.
	DefaultInterval = 30 * time.Second
	// DefaultSendTimeout bounds a single Sink.Send call.
	DefaultSendTimeout = 5 * time.Second
)

// Sink receives closed windows for transmission.
type Sink interface {
	Send(ctx context.Context, snap Snapshot) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, snap Snapshot) error

func (f SinkFunc) Send(ctx context.Context, snap Snapshot) error { return f(ctx, snap) }

// Flusher rotates a Store on a fixed interval and hands snapshots to a Sink.
type Flusher struct {
	store    *Store
	sink     Sink
	interval time.Duration
	timeout  time.Duration
	clock    clock.Clock
	tracer   trace.Tracer
	logger   Logger

	active   int32
	ticker   *clock.Ticker
	done     chan struct{}
	finished chan struct{}

	sent    atomic.Int64
	failed  atomic.Int64
	skipped atomic.Int64
}

// FlusherOption configures a Flusher.
type FlusherOption func(*Flusher)

// WithSendTimeout bounds each Sink.Send call.
func WithSendTimeout(d time.Duration) FlusherOption {
	return func(f *Flusher) {
		if d > 0 {
			f.timeout = d
		}
	}
}

// WithFlushClock sets the clock driving the flush ticker.
func WithFlushClock(c clock.Clock) FlusherOption {
	return func(f *Flusher) {
		if c != nil {
			f.clock = c
		}
	}
}

// WithTracer wraps every flush in a span.
func WithTracer(t trace.Tracer) FlusherOption {
	return func(f *Flusher) {
		if t != nil {
			f.tracer = t
		}
	}
}

// WithFlushLogger logs dropped snapshots.
func WithFlushLogger(logger Logger) FlusherOption {
	return func(f *Flusher) { f.logger = logger }
}

// NewFlusher creates a flusher. A non-positive interval selects DefaultInterval.
func NewFlusher(store *Store, sink Sink, interval time.Duration, opts ...FlusherOption) *Flusher {
	if interval <= 0 {
		interval = DefaultInterval
	}
	f := &Flusher{
		store:    store,
		sink:     sink,
		interval: interval,
		timeout:  DefaultSendTimeout,
		clock:    clock.New(),
		tracer:   noop.NewTracerProvider().Tracer("uristat"),
		done:     make(chan struct{}),
		finished: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Start begins flushing in a background goroutine. Calling Start on a running
// flusher does nothing.
func (f *Flusher) Start(ctx context.Context) {
	if !atomic.CompareAndSwapInt32(&f.active, 0, 1) {
		return
	}
	// Created before the goroutine so a mock clock sees the ticker immediately.
	f.ticker = f.clock.Ticker(f.interval)
	go f.run(ctx)
}

// Stop halts the ticker and flushes the current window one last time.
func (f *Flusher) Stop(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&f.active, 1, 2) {
		return nil
	}
	close(f.done)
	<-f.finished
	return f.Flush(ctx)
}

func (f *Flusher) run(ctx context.Context) {
	defer close(f.finished)
	defer f.ticker.Stop()
	for {
		select {
		case <-f.done:
			return
		case <-ctx.Done():
			return
		case <-f.ticker.C:
			_ = f.Flush(ctx)
		}
	}
}

// Flush rotates the store and sends the closed window. Empty windows are not
// sent. On failure the window is discarded and the error returned.
func (f *Flusher) Flush(ctx context.Context) error {
	snap := f.store.Rotate()
	if snap.IsEmpty() {
		f.skipped.Add(1)
		return nil
	}

	ctx, span := tracing.StartFlushSpan(ctx, f.tracer, snap.ID, len(snap.URIs), snap.Dropped)
	sendCtx, cancel := context.WithTimeout(ctx, f.timeout)
	err := f.send(sendCtx, snap)
	cancel()
	tracing.EndSpan(span, err)

	if err != nil {
		f.failed.Add(1)
		if f.logger != nil {
			f.logger.Warnf("dropping window %s (%d uris): %v", snap.ID, len(snap.URIs), err)
		}
		return err
	}
	f.sent.Add(1)
	return nil
}

func (f *Flusher) send(ctx context.Context, snap Snapshot) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sink panic: %v", r)
		}
	}()
	if f.sink == nil {
		return nil
	}
	return f.sink.Send(ctx, snap)
}

// Sent returns the number of snapshots delivered.
func (f *Flusher) Sent() int64 { return f.sent.Load() }

// Failed returns the number of snapshots dropped after a send error.
func (f *Flusher) Failed() int64 { return f.failed.Load() }

// Skipped returns the number of empty windows that were not sent.
func (f *Flusher) Skipped() int64 { return f.skipped.Load() }
