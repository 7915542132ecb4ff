package maillog

import (
	"io"
	"iter"

	"github.com/crimson-sun/maillog/internal/engine"
	"github.com/crimson-sun/maillog/internal/engine/dates"
	"github.com/crimson-sun/maillog/internal/source"

	// Register compressed input decoders.
	_ "github.com/crimson-sun/maillog/internal/source/gzip"
	_ "github.com/crimson-sun/maillog/internal/source/zstd"
)

var (
	// ErrNotExhausted is returned by Incomplete when Completed was not
	// drained first.
	ErrNotExhausted = engine.ErrScanNotExhausted

	// ErrConsumed is returned when a sequence is iterated a second time.
	ErrConsumed = engine.ErrScanConsumed
)

// FileError reports a fatal failure to read or parse an input. Records
// returned before it stay valid.
type FileError = engine.FileError

// DateError reports a timestamp that is not a valid date. It is wrapped in
// a FileError.
type DateError = dates.DateError

// Result is one pass over one input.
type Result struct {
	scan   *engine.Scan
	closer io.Closer
}

// Parse prepares a pass over r, which must yield plain text.
func Parse(r io.Reader, opts ...Option) *Result {
	return parse("input", r, nil, opts)
}

// Open prepares a pass over the file at path, decompressing it as needed.
// Close the Result when done.
func Open(path string, opts ...Option) (*Result, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	f, err := source.Open(path, o.compression)
	if err != nil {
		return nil, &FileError{File: path, Op: "open", Err: err}
	}
	return parse(path, f, f, opts), nil
}

func parse(name string, r io.Reader, closer io.Closer, opts []Option) *Result {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	eng := engine.New(o.engineOptions()...)
	return &Result{scan: eng.NewScan(name, r), closer: closer}
}

// Completed yields each record as the queue manager removes its message,
// in log order. A fatal error is yielded once as (Record{}, err) and ends
// the sequence.
func (r *Result) Completed() iter.Seq2[Record, error] {
	return func(yield func(Record, error) bool) {
		for rec, err := range r.scan.Completed() {
			if err != nil {
				yield(Record{}, err)
				return
			}
			if !yield(recordFromModel(rec), nil) {
				return
			}
		}
	}
}

// Incomplete yields the records never completed, in first-seen order. Call
// it only after Completed ran to the end.
func (r *Result) Incomplete() iter.Seq2[Record, error] {
	return func(yield func(Record, error) bool) {
		for rec, err := range r.scan.Incomplete() {
			if err != nil {
				yield(Record{}, err)
				return
			}
			if !yield(recordFromModel(rec), nil) {
				return
			}
		}
	}
}

// All yields completed records followed by incomplete ones.
func (r *Result) All() iter.Seq2[Record, error] {
	return func(yield func(Record, error) bool) {
		for rec, err := range r.Completed() {
			if !yield(rec, err) || err != nil {
				return
			}
		}
		for rec, err := range r.Incomplete() {
			if !yield(rec, err) || err != nil {
				return
			}
		}
	}
}

// Kept yields the completed records retained by WithKeepCompleted, in
// first-seen order, including events logged after their completion. It
// yields nothing until Completed ran to the end.
func (r *Result) Kept() iter.Seq[Record] {
	return func(yield func(Record) bool) {
		for rec := range r.scan.Kept() {
			if !yield(recordFromModel(rec)) {
				return
			}
		}
	}
}

// Stats returns counters for the pass so far.
func (r *Result) Stats() Stats { return r.scan.Stats() }

// Close releases the input opened by Open. It is a no-op for Parse.
func (r *Result) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer.Close()
}
