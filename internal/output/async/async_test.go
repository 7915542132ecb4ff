package async

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/crimson-sun/maillog/internal/model"
	"github.com/crimson-sun/maillog/internal/output"
)

type mockOutput struct {
	mu      sync.Mutex
	records []*model.MailRecord
	sources []string
	closed  bool
	err     error         // if set, Write returns this
	delay   time.Duration // if >0, Write sleeps first
}

func (m *mockOutput) Write(ctx context.Context, rec *model.MailRecord) error {
	if m.delay > 0 {
		time.Sleep(m.delay)
	}
	m.mu.Lock()
	m.records = append(m.records, rec)
	m.sources = append(m.sources, output.SourceFrom(ctx))
	m.mu.Unlock()
	return m.err
}

func (m *mockOutput) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

func (m *mockOutput) recordCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

func testRecord(qid string) *model.MailRecord {
	return model.NewMailRecord("mx1", qid)
}

func TestRecordsFlowThrough(t *testing.T) {
	inner := &mockOutput{}
	a := New(inner, WithBufferSize(16))

	for i := 0; i < 10; i++ {
		if err := a.Write(context.Background(), testRecord("A1")); err != nil {
			t.Fatalf("Write error: %v", err)
		}
	}

	if err := a.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}

	if inner.recordCount() != 10 {
		t.Errorf("got %d records, want 10", inner.recordCount())
	}
}

func TestBackpressureBlocks(t *testing.T) {
	// Inner output is slow; buffer size is 1.
	inner := &mockOutput{delay: 50 * time.Millisecond}
	a := New(inner, WithBufferSize(1))

	// First write fills the buffer.
	a.Write(context.Background(), testRecord("B1"))

	// Second write should block until the drain goroutine consumes the first.
	done := make(chan struct{})
	go func() {
		a.Write(context.Background(), testRecord("B2"))
		close(done)
	}()

	select {
	case <-done:
		// Unblocked eventually.
	case <-time.After(2 * time.Second):
		t.Fatal("Write blocked indefinitely (expected eventual unblock via drain)")
	}

	a.Close()
}

func TestDropOnFull(t *testing.T) {
	// Slow inner output + tiny buffer + drop mode.
	inner := &mockOutput{delay: 100 * time.Millisecond}
	a := New(inner, WithBufferSize(1), WithDropOnFull())

	// Rapid-fire writes. Some will be dropped.
	for i := 0; i < 20; i++ {
		a.Write(context.Background(), testRecord("C1"))
	}

	a.Close()

	// Not all 20 records should have arrived (some were dropped).
	if inner.recordCount() == 20 {
		t.Error("expected some records to be dropped in drop-on-full mode")
	}
	if inner.recordCount() == 0 {
		t.Error("expected at least some records to be delivered")
	}
}

func TestCloseDrainsRemaining(t *testing.T) {
	inner := &mockOutput{}
	a := New(inner, WithBufferSize(100))

	for i := 0; i < 50; i++ {
		a.Write(context.Background(), testRecord("D1"))
	}

	a.Close()

	if inner.recordCount() != 50 {
		t.Errorf("after Close, got %d records, want 50 (drain incomplete)", inner.recordCount())
	}
}

func TestErrorCallbackInvoked(t *testing.T) {
	inner := &mockOutput{err: errors.New("write failed")}
	var errorCount atomic.Int64
	a := New(inner, WithBufferSize(16), WithOnError(func(err error) {
		errorCount.Add(1)
	}))

	for i := 0; i < 5; i++ {
		a.Write(context.Background(), testRecord("E1"))
	}

	a.Close()

	if errorCount.Load() != 5 {
		t.Errorf("error callback called %d times, want 5", errorCount.Load())
	}
}

func TestNoGoroutineLeakAfterClose(t *testing.T) {
	inner := &mockOutput{}
	a := New(inner, WithBufferSize(16))

	a.Write(context.Background(), testRecord("F1"))
	a.Close()

	// The done channel should be closed, indicating the drain goroutine exited.
	select {
	case <-a.done:
		// Goroutine finished.
	case <-time.After(time.Second):
		t.Fatal("drain goroutine did not exit after Close")
	}
}

func TestCloseIdempotent(t *testing.T) {
	inner := &mockOutput{}
	a := New(inner, WithBufferSize(16))

	a.Write(context.Background(), testRecord("F1"))

	// Close twice should not panic.
	if err := a.Close(); err != nil {
		t.Fatalf("first Close error: %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("second Close error: %v", err)
	}
}

func TestContextValuesSurviveCancel(t *testing.T) {
	inner := &mockOutput{delay: 10 * time.Millisecond}
	a := New(inner, WithBufferSize(16))

	ctx, cancel := context.WithCancel(output.WithSource(context.Background(), "maillog.1.gz"))
	for i := 0; i < 3; i++ {
		a.Write(ctx, testRecord("G1"))
	}
	cancel()
	a.Close()

	inner.mu.Lock()
	defer inner.mu.Unlock()
	if len(inner.sources) != 3 {
		t.Fatalf("got %d records, want 3", len(inner.sources))
	}
	for i, src := range inner.sources {
		if src != "maillog.1.gz" {
			t.Errorf("record %d: source = %q, want maillog.1.gz", i, src)
		}
	}
}

func TestWriteCopiesRecord(t *testing.T) {
	inner := &mockOutput{delay: 20 * time.Millisecond}
	a := New(inner)

	rec := testRecord("A1")
	rec.EnvelopeTo = []string{"first@x"}
	if err := a.Write(context.Background(), rec); err != nil {
		t.Fatalf("Write error: %v", err)
	}
	rec.EnvelopeTo = append(rec.EnvelopeTo, "late@x")
	rec.EnvelopeTo[0] = "changed@x"
	a.Close()

	if inner.recordCount() != 1 {
		t.Fatalf("got %d records, want 1", inner.recordCount())
	}
	got := inner.records[0].EnvelopeTo
	if len(got) != 1 || got[0] != "first@x" {
		t.Errorf("inner saw %v, want [first@x]", got)
	}
}
