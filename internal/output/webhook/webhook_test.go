package webhook

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fastjson"

	"github.com/crimson-sun/maillog/internal/model"
	"github.com/crimson-sun/maillog/internal/output"
)

func testRecord(qid string) *model.MailRecord {
	rec := model.NewMailRecord("mx1", qid)
	rec.Observe(time.Date(2017, 1, 5, 9, 12, 1, 0, time.UTC))
	rec.EnvelopeFrom = "alice@example.com"
	return rec
}

// receiver records every batch POSTed to it and answers with the queued
// status codes, then 200.
type receiver struct {
	mu       sync.Mutex
	batches  [][]*fastjson.Value
	headers  []http.Header
	statuses []int
	calls    atomic.Int32
}

func (rv *receiver) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rv.calls.Add(1)
	body, _ := io.ReadAll(r.Body)

	rv.mu.Lock()
	defer rv.mu.Unlock()
	if len(rv.statuses) > 0 {
		code := rv.statuses[0]
		rv.statuses = rv.statuses[1:]
		if code == http.StatusTooManyRequests {
			w.Header().Set("Retry-After", "1")
		}
		w.WriteHeader(code)
		io.WriteString(w, "try later")
		return
	}
	v, err := fastjson.ParseBytes(body)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	rv.batches = append(rv.batches, v.GetArray())
	rv.headers = append(rv.headers, r.Header.Clone())
}

func (rv *receiver) received() [][]*fastjson.Value {
	rv.mu.Lock()
	defer rv.mu.Unlock()
	return rv.batches
}

func newReceiver(t *testing.T, statuses ...int) (*receiver, string) {
	t.Helper()
	rv := &receiver{statuses: statuses}
	srv := httptest.NewServer(rv)
	t.Cleanup(srv.Close)
	return rv, srv.URL
}

func taggedCtx(source, runID string) context.Context {
	return output.WithRunID(output.WithSource(context.Background(), source), runID)
}

func TestFullBatchIsSentOnWrite(t *testing.T) {
	rv, url := newReceiver(t)
	out := New(url, WithBatchSize(3), WithFlushInterval(time.Hour))

	for _, qid := range []string{"A1", "A2", "A3"} {
		require.NoError(t, out.Write(context.Background(), testRecord(qid)))
	}

	batches := rv.received()
	require.Len(t, batches, 1)
	require.Len(t, batches[0], 3)
	assert.Equal(t, "A3", string(batches[0][2].GetStringBytes("sessionId")))
	require.NoError(t, out.Close())
	assert.Len(t, rv.received(), 1, "nothing left for Close")
}

func TestPartialBatchIsSentByTimer(t *testing.T) {
	rv, url := newReceiver(t)
	out := New(url, WithBatchSize(100), WithFlushInterval(50*time.Millisecond))
	defer out.Close()

	require.NoError(t, out.Write(context.Background(), testRecord("A1")))
	assert.Empty(t, rv.received())

	assert.Eventually(t, func() bool { return len(rv.received()) == 1 },
		time.Second, 10*time.Millisecond)
}

func TestCloseSendsRemaining(t *testing.T) {
	rv, url := newReceiver(t)
	out := New(url, WithBatchSize(100), WithFlushInterval(time.Hour))

	require.NoError(t, out.Write(context.Background(), testRecord("A1")))
	require.NoError(t, out.Write(context.Background(), testRecord("A2")))
	require.NoError(t, out.Close())

	batches := rv.received()
	require.Len(t, batches, 1)
	assert.Len(t, batches[0], 2)
}

func TestRecordsCarrySourceAndRunID(t *testing.T) {
	rv, url := newReceiver(t)
	out := New(url, WithBatchSize(100), WithFlushInterval(time.Hour))

	require.NoError(t, out.Write(taggedCtx("/var/log/maillog", "run-a"), testRecord("A1")))
	require.NoError(t, out.Write(taggedCtx("/var/log/maillog.1.gz", "run-b"), testRecord("A1")))
	require.NoError(t, out.Write(context.Background(), testRecord("B2")))
	require.NoError(t, out.Close())

	batches := rv.received()
	require.Len(t, batches, 1)
	objs := batches[0]
	require.Len(t, objs, 3)

	assert.Equal(t, "/var/log/maillog", string(objs[0].GetStringBytes("source")))
	assert.Equal(t, "run-a", string(objs[0].GetStringBytes("run_id")))
	assert.Equal(t, "/var/log/maillog.1.gz", string(objs[1].GetStringBytes("source")))
	assert.Equal(t, "run-b", string(objs[1].GetStringBytes("run_id")))
	assert.Nil(t, objs[2].Get("source"))
	assert.Nil(t, objs[2].Get("run_id"))

	assert.Equal(t, "alice@example.com", string(objs[0].GetStringBytes("envelopeFrom")))
	assert.False(t, objs[0].GetBool("completed"))
}

func TestCancelledContextStillDelivers(t *testing.T) {
	rv, url := newReceiver(t)
	out := New(url, WithBatchSize(1))

	ctx, cancel := context.WithCancel(taggedCtx("maillog", "run-c"))
	cancel()
	require.NoError(t, out.Write(ctx, testRecord("A1")))

	batches := rv.received()
	require.Len(t, batches, 1)
	assert.Equal(t, "run-c", string(batches[0][0].GetStringBytes("run_id")))
}

func TestRetries(t *testing.T) {
	tests := []struct {
		name      string
		statuses  []int
		retries   int
		wantCalls int32
		wantErr   int // status code of the returned error, 0 = success
	}{
		{"5xx then ok", []int{500, 503}, 3, 3, 0},
		{"429 then ok", []int{429}, 3, 2, 0},
		{"4xx is final", []int{400}, 3, 1, 400},
		{"gives up", []int{500, 500, 500}, 2, 3, 500},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rv, url := newReceiver(t, tt.statuses...)
			out := New(url, WithBatchSize(1), WithRetries(tt.retries), WithBackoff(time.Millisecond))

			err := out.Write(context.Background(), testRecord("A1"))
			assert.Equal(t, tt.wantCalls, rv.calls.Load())
			if tt.wantErr == 0 {
				require.NoError(t, err)
				assert.Len(t, rv.received(), 1)
				return
			}
			var se *StatusError
			require.ErrorAs(t, err, &se)
			assert.Equal(t, tt.wantErr, se.StatusCode)
			assert.Equal(t, "try later", se.Body)
			assert.Contains(t, err.Error(), "1 records not delivered")
		})
	}
}

func TestRetryAfterIsHonoured(t *testing.T) {
	out := New("http://unused", WithBackoff(time.Millisecond))
	assert.Equal(t, 2*time.Second, out.delay(1, &StatusError{StatusCode: 429, retryAfter: 2 * time.Second}))
	assert.Equal(t, time.Millisecond, out.delay(1, &StatusError{StatusCode: 500}))
	assert.Equal(t, 4*time.Millisecond, out.delay(3, errors.New("other")))
}

func TestCustomHeaders(t *testing.T) {
	rv, url := newReceiver(t)
	out := New(url, WithBatchSize(1), WithHeaders(map[string]string{
		"Authorization": "Bearer token",
		"X-Env":         "prod",
	}))
	require.NoError(t, out.Write(context.Background(), testRecord("A1")))

	rv.mu.Lock()
	defer rv.mu.Unlock()
	require.Len(t, rv.headers, 1)
	h := rv.headers[0]
	assert.Equal(t, "Bearer token", h.Get("Authorization"))
	assert.Equal(t, "prod", h.Get("X-Env"))
	assert.Equal(t, "application/json", h.Get("Content-Type"))
}

func TestTimerFailureGoesToOnError(t *testing.T) {
	_, url := newReceiver(t, http.StatusBadRequest)
	errs := make(chan error, 1)
	out := New(url,
		WithBatchSize(100),
		WithFlushInterval(20*time.Millisecond),
		WithOnError(func(err error) { errs <- err }),
	)
	defer out.Close()

	require.NoError(t, out.Write(context.Background(), testRecord("A1")))

	select {
	case err := <-errs:
		var se *StatusError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, http.StatusBadRequest, se.StatusCode)
	case <-time.After(2 * time.Second):
		t.Fatal("OnError was not called")
	}
}
