package async

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/crimson-sun/maillog/internal/model"
	"github.com/crimson-sun/maillog/internal/output"
)

const (
	defaultBufferSize   = 1024
	defaultDrainTimeout = 5 * time.Second
)

// Option configures an Async wrapper.
type Option func(*Async)

// WithBufferSize sets the channel buffer capacity. Default: 1024.
func WithBufferSize(n int) Option {
	return func(a *Async) { a.bufSize = n }
}

// WithOnError sets the callback invoked when the inner output's Write fails.
// Default: logs a warning via slog.
func WithOnError(f func(error)) Option {
	return func(a *Async) { a.errFunc = f }
}

// WithDropOnFull makes Write return immediately (dropping the record) when
// the buffer is full, instead of blocking.
func WithDropOnFull() Option {
	return func(a *Async) { a.dropOnFull = true }
}

// WithDrainTimeout bounds how long Close waits for buffered records.
// Default: 5s.
func WithDrainTimeout(d time.Duration) Option {
	return func(a *Async) { a.drainTimeout = d }
}

type item struct {
	ctx context.Context
	rec *model.MailRecord
}

// Async decouples record production from consumption via a buffered channel.
// The scan writes into the channel; a background goroutine drains it to the
// wrapped output. Errors from the inner output are passed to errFunc rather
// than propagated to the caller. Context values (source file, run id)
// travel with each record; cancellation does not.
type Async struct {
	inner        output.Output
	ch           chan item
	done         chan struct{}
	errFunc      func(error)
	bufSize      int
	dropOnFull   bool
	drainTimeout time.Duration
	closeOnce    sync.Once
}

// New wraps an output.Output in an async channel-based writer.
// The background drain goroutine starts immediately.
func New(inner output.Output, opts ...Option) *Async {
	a := &Async{
		inner:        inner,
		bufSize:      defaultBufferSize,
		drainTimeout: defaultDrainTimeout,
		errFunc:      func(err error) { slog.Warn("async output write error", "error", err) },
	}
	for _, opt := range opts {
		opt(a)
	}
	a.ch = make(chan item, a.bufSize)
	a.done = make(chan struct{})
	go a.drain()
	return a
}

// Write sends a copy of the record into the channel, so the caller may keep
// changing rec after Write returns. By default, blocks if the channel
// is full (backpressure). With WithDropOnFull, returns nil immediately and
// the record is lost.
func (a *Async) Write(ctx context.Context, rec *model.MailRecord) error {
	it := item{ctx: context.WithoutCancel(ctx), rec: rec.Clone()}
	if a.dropOnFull {
		select {
		case a.ch <- it:
		default:
			slog.Warn("async output buffer full, dropping record",
				"host", rec.Host, "session_id", rec.SessionID)
		}
		return nil
	}
	a.ch <- it
	return nil
}

// Close closes the channel, waits for the drain goroutine to finish
// (with a timeout), then closes the inner output.
func (a *Async) Close() error {
	var err error
	a.closeOnce.Do(func() {
		close(a.ch)
		select {
		case <-a.done:
		case <-time.After(a.drainTimeout):
			slog.Warn("async output drain timed out")
		}
		err = a.inner.Close()
	})
	return err
}

// drain reads records from the channel and writes them to the inner output.
func (a *Async) drain() {
	defer close(a.done)
	for it := range a.ch {
		if err := a.inner.Write(it.ctx, it.rec); err != nil {
			a.errFunc(err)
		}
	}
}
