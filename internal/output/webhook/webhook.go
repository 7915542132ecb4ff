package webhook

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/crimson-sun/maillog/internal/model"
	"github.com/crimson-sun/maillog/internal/output"
)

const (
	defaultBatchSize     = 50
	defaultFlushInterval = 5 * time.Second
	defaultTimeout       = 10 * time.Second
	defaultRetries       = 3
	defaultBackoff       = time.Second
	maxErrorBody         = 512
)

// StatusError is a non-2xx response from the endpoint.
type StatusError struct {
	StatusCode int
	Body       string // first 512 bytes
	retryAfter time.Duration
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("webhook: HTTP %d: %s", e.StatusCode, e.Body)
}

func (e *StatusError) temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Option configures a webhook Output.
type Option func(*Output)

// WithHeaders sets custom HTTP headers sent with every POST.
func WithHeaders(h map[string]string) Option {
	return func(o *Output) { o.headers = h }
}

// WithBatchSize sets the number of records per POST. Default: 50.
func WithBatchSize(n int) Option {
	return func(o *Output) { o.batchSize = n }
}

// WithFlushInterval sets the longest a record waits in a partial batch.
// Default: 5s.
func WithFlushInterval(d time.Duration) Option {
	return func(o *Output) { o.flushInterval = d }
}

// WithTimeout sets the per-request timeout. Default: 10s.
func WithTimeout(d time.Duration) Option {
	return func(o *Output) { o.client.Timeout = d }
}

// WithRetries sets how many times a batch is re-sent after a 429 or 5xx.
// Default: 3.
func WithRetries(n int) Option {
	return func(o *Output) { o.retries = n }
}

// WithBackoff sets the first retry delay; each further retry doubles it.
// A 429 with Retry-After waits as long as the server asks. Default: 1s.
func WithBackoff(d time.Duration) Option {
	return func(o *Output) { o.backoff = d }
}

// WithOnError sets the callback for failures of timer-triggered flushes,
// which have no caller to return to. Default: slog warning.
func WithOnError(f func(error)) Option {
	return func(o *Output) { o.onError = f }
}

// Output POSTs mail records to an HTTP endpoint as JSON arrays. Each object
// is tagged with the input file ("source") and run id ("run_id") taken
// from the Write context, so one endpoint can receive several files.
type Output struct {
	client        *http.Client
	url           string
	headers       map[string]string
	batchSize     int
	flushInterval time.Duration
	retries       int
	backoff       time.Duration
	onError       func(error)

	mu      sync.Mutex
	pending []output.Entry
	enc     output.JSON
	timer   *time.Timer
}

// New creates a webhook output targeting url.
func New(url string, opts ...Option) *Output {
	o := &Output{
		client:        &http.Client{Timeout: defaultTimeout},
		url:           url,
		batchSize:     defaultBatchSize,
		flushInterval: defaultFlushInterval,
		retries:       defaultRetries,
		backoff:       defaultBackoff,
		onError:       func(err error) { slog.Warn("webhook flush failed", "error", err) },
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Write queues rec with the source and run id from ctx. A full batch is
// sent before Write returns; a partial one is sent by the flush timer.
// Cancelling ctx does not abort a send already started.
func (o *Output) Write(ctx context.Context, rec *model.MailRecord) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.pending = append(o.pending, output.EntryFrom(ctx, rec))
	if len(o.pending) >= o.batchSize {
		return o.flushLocked(context.WithoutCancel(ctx))
	}
	if o.timer == nil {
		o.timer = time.AfterFunc(o.flushInterval, o.flushOnTimer)
	}
	return nil
}

// Close sends whatever is still queued.
func (o *Output) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.flushLocked(context.Background())
}

func (o *Output) flushOnTimer() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.flushLocked(context.Background()); err != nil {
		o.onError(err)
	}
}

// flushLocked sends the pending batch. Caller must hold o.mu.
func (o *Output) flushLocked(ctx context.Context) error {
	if o.timer != nil {
		o.timer.Stop()
		o.timer = nil
	}
	if len(o.pending) == 0 {
		return nil
	}
	body := o.enc.AppendArray(nil, o.pending)
	n := len(o.pending)
	o.pending = nil

	if err := o.send(ctx, body); err != nil {
		return fmt.Errorf("webhook: %d records not delivered: %w", n, err)
	}
	return nil
}

// send POSTs body, retrying on 429 and 5xx.
func (o *Output) send(ctx context.Context, body []byte) error {
	var err error
	for attempt := 0; attempt <= o.retries; attempt++ {
		if attempt > 0 {
			if werr := wait(ctx, o.delay(attempt, err)); werr != nil {
				return werr
			}
		}
		err = o.post(ctx, body)
		se, ok := err.(*StatusError)
		if err == nil || !ok || !se.temporary() {
			return err
		}
	}
	return err
}

func (o *Output) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range o.headers {
		req.Header.Set(k, v)
	}

	resp, err := o.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	se := &StatusError{StatusCode: resp.StatusCode, Body: string(msg)}
	if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
		se.retryAfter = time.Duration(secs) * time.Second
	}
	return se
}

// delay is the wait before retry attempt n (1-based).
func (o *Output) delay(attempt int, last error) time.Duration {
	if se, ok := last.(*StatusError); ok && se.retryAfter > 0 {
		return se.retryAfter
	}
	return o.backoff << (attempt - 1)
}

func wait(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
