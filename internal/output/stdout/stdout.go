package stdout

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/crimson-sun/maillog/internal/model"
	"github.com/crimson-sun/maillog/internal/output"
)

// Output writes encoded records to stdout, one per line.
type Output struct {
	mu     sync.Mutex
	w      *bufio.Writer
	enc    output.Encoder
	pretty bool
	header bool
	line   []byte
}

// New creates a new stdout Output. With pretty set, JSON lines are
// indented; other encodings are unaffected.
func New(enc output.Encoder, pretty bool) *Output {
	return newOutput(os.Stdout, enc, pretty)
}

func newOutput(w io.Writer, enc output.Encoder, pretty bool) *Output {
	_, isJSON := enc.(*output.JSON)
	return &Output{w: bufio.NewWriter(w), enc: enc, pretty: pretty && isJSON}
}

func (o *Output) Write(_ context.Context, rec *model.MailRecord) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.header {
		o.header = true
		if h := o.enc.Header(); h != "" {
			o.w.WriteString(h + "\n")
		}
	}

	o.line = o.enc.AppendRecord(o.line[:0], rec)
	if o.pretty {
		var buf bytes.Buffer
		if err := json.Indent(&buf, o.line, "", "  "); err != nil {
			return fmt.Errorf("stdout output: %w", err)
		}
		o.line = append(o.line[:0], buf.Bytes()...)
	}
	o.line = append(o.line, '\n')

	if _, err := o.w.Write(o.line); err != nil {
		return fmt.Errorf("stdout output: %w", err)
	}
	return nil
}

// Close flushes buffered lines. Stdout itself stays open.
func (o *Output) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.w.Flush(); err != nil {
		return fmt.Errorf("stdout output: %w", err)
	}
	return nil
}
