package file

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/crimson-sun/maillog/internal/model"
	"github.com/crimson-sun/maillog/internal/output"
)

const defaultBufSize = 64 * 1024 // 64KB

// Option configures a file Output.
type Option func(*Output)

// WithMaxSize sets the file size (bytes) at which rotation triggers.
// 0 (default) disables rotation.
func WithMaxSize(bytes int64) Option {
	return func(o *Output) { o.maxSize = bytes }
}

// WithBufSize sets the bufio.Writer buffer size. Default: 64KB.
func WithBufSize(bytes int) Option {
	return func(o *Output) { o.bufSize = bytes }
}

// WithTruncate replaces an existing file instead of appending to it.
func WithTruncate() Option {
	return func(o *Output) { o.truncate = true }
}

// PathFor returns the per-input output path: <dir>/<input basename>.txt.
func PathFor(dir, input string) string {
	return filepath.Join(dir, filepath.Base(input)+".txt")
}

// Output writes encoded records, one per line, to a file with buffered I/O
// and optional size-based rotation. The encoder's header is written at the
// top of every new or rotated file.
type Output struct {
	w        *bufio.Writer
	f        *os.File
	mu       sync.Mutex
	path     string
	enc      output.Encoder
	maxSize  int64 // 0 = no rotation
	written  int64
	bufSize  int
	truncate bool
	line     []byte
}

// New creates a file output that writes records encoded by enc to path.
func New(path string, enc output.Encoder, opts ...Option) (*Output, error) {
	o := &Output{
		path:    path,
		enc:     enc,
		bufSize: defaultBufSize,
	}
	for _, opt := range opts {
		opt(o)
	}
	if err := o.openFile(); err != nil {
		return nil, err
	}
	return o, nil
}

// Write encodes the record and appends it as a line to the file.
func (o *Output) Write(_ context.Context, rec *model.MailRecord) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.line = append(o.enc.AppendRecord(o.line[:0], rec), '\n')

	if o.maxSize > 0 && o.written+int64(len(o.line)) > o.maxSize {
		if err := o.rotate(); err != nil {
			return fmt.Errorf("file output: rotate: %w", err)
		}
	}

	n, err := o.w.Write(o.line)
	o.written += int64(n)
	if err != nil {
		return fmt.Errorf("file output: write: %w", err)
	}
	return nil
}

// Close flushes the buffer and closes the file.
func (o *Output) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.w.Flush(); err != nil {
		o.f.Close()
		return fmt.Errorf("file output: flush: %w", err)
	}
	return o.f.Close()
}

// Path returns the file being written.
func (o *Output) Path() string { return o.path }

// openFile opens (or creates) the output file, wraps it in a bufio.Writer
// and writes the header if the file is empty.
func (o *Output) openFile() error {
	flags := os.O_CREATE | os.O_WRONLY | os.O_APPEND
	if o.truncate {
		flags = os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	}
	f, err := os.OpenFile(o.path, flags, 0644)
	if err != nil {
		return fmt.Errorf("file output: open %s: %w", o.path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("file output: stat %s: %w", o.path, err)
	}
	o.f = f
	o.w = bufio.NewWriterSize(f, o.bufSize)
	o.written = info.Size()

	if h := o.enc.Header(); h != "" && o.written == 0 {
		n, err := o.w.WriteString(h + "\n")
		o.written += int64(n)
		if err != nil {
			return fmt.Errorf("file output: header: %w", err)
		}
	}
	return nil
}

// rotate flushes, closes the current file, renames it to {path}.1
// (shifting existing rotated files), and opens a new file.
func (o *Output) rotate() error {
	if err := o.w.Flush(); err != nil {
		return err
	}
	if err := o.f.Close(); err != nil {
		return err
	}

	// Shift existing rotated files: .2 → .3, .1 → .2, current → .1
	for i := 9; i >= 1; i-- {
		from := fmt.Sprintf("%s.%d", o.path, i)
		to := fmt.Sprintf("%s.%d", o.path, i+1)
		os.Rename(from, to) // may not exist yet
	}
	if err := os.Rename(o.path, o.path+".1"); err != nil {
		return err
	}

	o.written = 0
	return o.openFile()
}
