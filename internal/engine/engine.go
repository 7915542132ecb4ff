package engine

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/crimson-sun/maillog/internal/engine/classifier"
	"github.com/crimson-sun/maillog/internal/engine/dates"
	"github.com/crimson-sun/maillog/internal/engine/grammar"
	"github.com/crimson-sun/maillog/internal/engine/session"
	"github.com/crimson-sun/maillog/internal/model"
)

const defaultMaxLineSize = 1024 * 1024 // 1MB

var (
	// ErrScanNotExhausted is returned by Incomplete when Completed has not
	// been drained to the end of the input.
	ErrScanNotExhausted = errors.New("engine: completed records not fully drained")

	// ErrScanConsumed is returned when a scan sequence is iterated twice.
	ErrScanConsumed = errors.New("engine: scan already consumed")

	// ErrInvalidUTF8 is the cause of a "decode" FileError.
	ErrInvalidUTF8 = errors.New("line is not valid UTF-8")
)

// FileError is a fatal, per-file failure: the scan of File stopped at Line.
type FileError struct {
	File string
	Line int
	Op   string
	Err  error
}

func (e *FileError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d: %s: %v", e.File, e.Line, e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.File, e.Op, e.Err)
}

func (e *FileError) Unwrap() error { return e.Err }

// Stats summarizes one scan.
type Stats struct {
	LinesRead     int
	LinesMatched  int
	EventsApplied int
	Completed     int
	Incomplete    int
	Warnings      int
}

// Add accumulates o into s.
func (s *Stats) Add(o Stats) {
	s.LinesRead += o.LinesRead
	s.LinesMatched += o.LinesMatched
	s.EventsApplied += o.EventsApplied
	s.Completed += o.Completed
	s.Incomplete += o.Incomplete
	s.Warnings += o.Warnings
}

// Option configures an Engine.
type Option func(*Engine)

// WithYear sets the year log timestamps belong to. Default: current year.
func WithYear(year int) Option {
	return func(e *Engine) { e.year = year }
}

// WithLocation sets the zone log timestamps are read in. Default: UTC.
func WithLocation(loc *time.Location) Option {
	return func(e *Engine) { e.loc = loc }
}

// WithKeepCompleted keeps completed records in the session store after
// they are emitted. They are reachable through Scan.Store but are never
// yielded by Incomplete.
func WithKeepCompleted() Option {
	return func(e *Engine) { e.keepCompleted = true }
}

// WithLogger sets the logger grammar warnings are written to.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithMaxLineSize sets the longest accepted input line in bytes. Values
// below 1 keep the default.
func WithMaxLineSize(n int) Option {
	return func(e *Engine) { e.maxLineSize = n }
}

// Engine reconstructs mail transactions from Postfix logs. It holds only
// immutable configuration; all per-file state lives in a Scan.
type Engine struct {
	classifier    *classifier.Classifier
	resolver      *dates.Resolver
	year          int
	loc           *time.Location
	keepCompleted bool
	logger        *slog.Logger
	maxLineSize   int
}

// New creates an Engine. The year fallback is resolved here, once.
func New(opts ...Option) *Engine {
	e := &Engine{
		classifier:  classifier.New(),
		logger:      slog.Default(),
		maxLineSize: defaultMaxLineSize,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.maxLineSize < 1 {
		e.maxLineSize = defaultMaxLineSize
	}
	e.resolver = dates.New(e.year, dates.WithLocation(e.loc))
	return e
}

// Year returns the year timestamps are resolved against.
func (e *Engine) Year() int { return e.resolver.Year() }

// NewScan prepares a single pass over r. name identifies the input in
// errors and logs.
func (e *Engine) NewScan(name string, r io.Reader) *Scan {
	logger := e.logger.With("file", name)
	var aggOpts []session.Option
	if e.keepCompleted {
		aggOpts = append(aggOpts, session.WithKeepCompleted())
	}
	return &Scan{
		name:        name,
		r:           r,
		classifier:  e.classifier,
		resolver:    e.resolver,
		agg:         session.NewAggregator(grammar.NewSet(logger), aggOpts...),
		maxLineSize: e.maxLineSize,
	}
}

type scanState int

const (
	scanIdle scanState = iota
	scanRunning
	scanExhausted
	scanFailed
	scanDrained
)

// Scan is one pass over one input. Completed must be drained before
// Incomplete; both sequences can be iterated only once. A Scan is not safe
// for concurrent use.
type Scan struct {
	name        string
	r           io.Reader
	classifier  *classifier.Classifier
	resolver    *dates.Resolver
	agg         *session.Aggregator
	maxLineSize int

	state      scanState
	err        error
	linesRead  int
	matched    int
	incomplete int
}

// Completed reads the input and yields each record as its terminal event
// is seen, in input order. A fatal error is yielded once as (nil, err) and
// ends the sequence; records yielded before it stay valid.
func (s *Scan) Completed() iter.Seq2[*model.MailRecord, error] {
	return func(yield func(*model.MailRecord, error) bool) {
		if s.state != scanIdle {
			yield(nil, ErrScanConsumed)
			return
		}
		s.state = scanRunning

		sc := bufio.NewScanner(s.r)
		sc.Buffer(make([]byte, 0, min(64*1024, s.maxLineSize)), s.maxLineSize)
		for sc.Scan() {
			s.linesRead++
			if !utf8.Valid(sc.Bytes()) {
				yield(nil, s.fail("decode", ErrInvalidUTF8))
				return
			}
			ev, ok := s.classifier.Classify(sc.Text())
			if !ok {
				continue
			}
			s.matched++

			ts, err := s.resolver.Resolve(ev.Month, ev.Day, ev.Hour, ev.Minute, ev.Second)
			if err != nil {
				yield(nil, s.fail("resolve date", err))
				return
			}
			rec, done := s.agg.Apply(ev, ts)
			if done && !yield(rec, nil) {
				return
			}
		}
		if err := sc.Err(); err != nil {
			yield(nil, s.fail("read", err))
			return
		}
		s.state = scanExhausted
	}
}

// Incomplete yields every record never completed, in first-seen order. It
// is valid only after Completed ran to the end of the input; otherwise it
// yields (nil, ErrScanNotExhausted), or the scan's fatal error.
func (s *Scan) Incomplete() iter.Seq2[*model.MailRecord, error] {
	return func(yield func(*model.MailRecord, error) bool) {
		switch s.state {
		case scanExhausted:
		case scanFailed:
			yield(nil, s.err)
			return
		case scanDrained:
			yield(nil, ErrScanConsumed)
			return
		default:
			yield(nil, ErrScanNotExhausted)
			return
		}
		s.state = scanDrained

		for rec := range s.agg.Store().All() {
			if rec.Completed {
				continue
			}
			s.incomplete++
			if !yield(rec, nil) {
				return
			}
		}
	}
}

// Kept yields the completed records retained by WithKeepCompleted, in
// first-seen order, with every event read after their completion applied.
// It yields nothing until Completed ran to the end of the input. Records
// are copies.
func (s *Scan) Kept() iter.Seq[*model.MailRecord] {
	return func(yield func(*model.MailRecord) bool) {
		if !s.Exhausted() {
			return
		}
		for rec := range s.agg.Store().All() {
			if rec.Completed && !yield(rec.Clone()) {
				return
			}
		}
	}
}

// Store exposes the session table. With WithKeepCompleted it still holds
// completed records after they were emitted.
func (s *Scan) Store() *session.Store { return s.agg.Store() }

// Err returns the fatal error that stopped the scan, if any.
func (s *Scan) Err() error { return s.err }

// Exhausted reports whether Completed reached the end of the input.
func (s *Scan) Exhausted() bool {
	return s.state == scanExhausted || s.state == scanDrained
}

// Stats returns counters for the scan so far.
func (s *Scan) Stats() Stats {
	return Stats{
		LinesRead:     s.linesRead,
		LinesMatched:  s.matched,
		EventsApplied: s.agg.Applied(),
		Completed:     s.agg.Completed(),
		Incomplete:    s.incomplete,
		Warnings:      s.agg.Warnings(),
	}
}

func (s *Scan) fail(op string, err error) error {
	s.state = scanFailed
	s.err = &FileError{File: s.name, Line: s.linesRead, Op: op, Err: err}
	return s.err
}
