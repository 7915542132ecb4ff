package file

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/valyala/fastjson"

	"github.com/crimson-sun/maillog/internal/model"
	"github.com/crimson-sun/maillog/internal/output"
)

func testRecord(qid string) *model.MailRecord {
	start := time.Date(2017, 1, 5, 9, 12, 1, 0, time.UTC)
	return &model.MailRecord{
		Host:         "mx1",
		SessionID:    qid,
		StartTime:    start,
		EndTime:      start.Add(time.Second),
		EnvelopeFrom: "alice@example.com",
		EnvelopeTo:   []string{"bob@remote.test"},
		Completed:    true,
	}
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return strings.Split(strings.TrimSpace(string(data)), "\n")
}

func TestWriteProducesValidNDJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.jsonl")
	out, err := New(path, &output.JSON{})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}

	for i := 0; i < 5; i++ {
		if err := out.Write(context.Background(), testRecord("ABC")); err != nil {
			t.Fatalf("Write error: %v", err)
		}
	}
	out.Close()

	lines := readLines(t, path)
	if len(lines) != 5 {
		t.Fatalf("got %d lines, want 5", len(lines))
	}
	for i, line := range lines {
		v, err := fastjson.Parse(line)
		if err != nil {
			t.Errorf("line %d: invalid JSON: %v", i, err)
			continue
		}
		if got := string(v.GetStringBytes("sessionId")); got != "ABC" {
			t.Errorf("line %d: sessionId = %q, want ABC", i, got)
		}
	}
}

func TestTSVHeaderWrittenOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.txt")
	for i := 0; i < 2; i++ {
		out, err := New(path, &output.TSV{})
		if err != nil {
			t.Fatalf("New error: %v", err)
		}
		out.Write(context.Background(), testRecord("ABC"))
		out.Close()
	}

	lines := readLines(t, path)
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want header + 2 rows", len(lines))
	}
	if !strings.HasPrefix(lines[0], "analyzed\tstart") {
		t.Errorf("first line = %q, want header", lines[0])
	}
	if strings.HasPrefix(lines[2], "analyzed") {
		t.Error("header repeated on reopen")
	}
}

func TestTruncateReplacesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.txt")
	os.WriteFile(path, []byte("stale\n"), 0644)

	out, err := New(path, &output.Orig{}, WithTruncate())
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	out.Write(context.Background(), testRecord("ABC"))
	out.Close()

	lines := readLines(t, path)
	if len(lines) != 1 || !strings.HasPrefix(lines[0], "anlyzd=true") {
		t.Errorf("lines = %q", lines)
	}
}

func TestRotationTriggersAtMaxSize(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.txt")

	// Each TSV row is well over 100 bytes, so every row after the first rotates.
	out, err := New(path, &output.TSV{}, WithMaxSize(400))
	if err != nil {
		t.Fatalf("New error: %v", err)
	}

	for i := 0; i < 5; i++ {
		if err := out.Write(context.Background(), testRecord("ABC")); err != nil {
			t.Fatalf("Write error: %v", err)
		}
	}
	out.Close()

	if _, err := os.Stat(path + ".1"); os.IsNotExist(err) {
		t.Error("expected rotated file .1 to exist")
	}

	lines := readLines(t, path)
	if !strings.HasPrefix(lines[0], "analyzed") {
		t.Error("rotated-in file is missing its header")
	}
}

func TestCloseFlushesData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.txt")
	out, err := New(path, &output.TSV{})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}

	out.Write(context.Background(), testRecord("ABC"))
	out.Close()

	data, _ := os.ReadFile(path)
	if len(data) == 0 {
		t.Error("file is empty: Close did not flush buffered data")
	}
}

func TestConcurrentWritesSafe(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.jsonl")
	out, err := New(path, &output.JSON{})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out.Write(context.Background(), testRecord("ABC"))
		}()
	}
	wg.Wait()
	out.Close()

	lines := readLines(t, path)
	if len(lines) != 50 {
		t.Errorf("got %d lines, want 50", len(lines))
	}
	for i, line := range lines {
		if _, err := fastjson.Parse(line); err != nil {
			t.Errorf("line %d: invalid JSON: %v", i, err)
		}
	}
}

func TestPathFor(t *testing.T) {
	got := PathFor("/tmp/out", "/var/log/maillog.1.gz")
	if want := filepath.Join("/tmp/out", "maillog.1.gz.txt"); got != want {
		t.Errorf("PathFor = %q, want %q", got, want)
	}
}
