package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/crimson-sun/maillog/internal/engine"
	"github.com/crimson-sun/maillog/internal/logging"
	"github.com/crimson-sun/maillog/internal/model"
	"github.com/crimson-sun/maillog/internal/output"
	"github.com/crimson-sun/maillog/internal/source"
)

// Sink opens the output that receives the records of one input file. The
// pipeline closes it when the file is done; wrap shared outputs with
// output.NopCloser.
type Sink func(ctx context.Context, input string) (output.Output, error)

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithCompression sets the decoder name passed to source.Open. Default: auto.
func WithCompression(name string) Option {
	return func(p *Pipeline) { p.compression = name }
}

// WithYear fixes the year of every input's timestamps.
func WithYear(year int) Option {
	return func(p *Pipeline) { p.year = year }
}

// WithYearFromMtime takes each input's year from its modification time when
// no year is fixed.
func WithYearFromMtime() Option {
	return func(p *Pipeline) { p.yearFromMtime = true }
}

// WithWorkers sets how many files are processed in parallel. Default: 1.
func WithWorkers(n int) Option {
	return func(p *Pipeline) { p.workers = n }
}

// WithEngineOptions adds options applied to every per-file engine.
func WithEngineOptions(opts ...engine.Option) Option {
	return func(p *Pipeline) { p.engineOpts = append(p.engineOpts, opts...) }
}

// Pipeline connects input sources, the reconstruction engine and outputs.
// Each file gets its own engine scan, so files share no session state.
type Pipeline struct {
	sink          Sink
	compression   string
	year          int
	yearFromMtime bool
	workers       int
	engineOpts    []engine.Option
}

// New creates a Pipeline writing to the outputs opened by sink.
func New(sink Sink, opts ...Option) *Pipeline {
	p := &Pipeline{
		sink:        sink,
		compression: source.Auto,
		workers:     1,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// FileResult reports the outcome of one input file.
type FileResult struct {
	Path     string
	RunID    string
	Year     int
	Bytes    int64
	Stats    engine.Stats
	Duration time.Duration
	Err      error
}

// Summary aggregates a multi-file run.
type Summary struct {
	Files   int
	Failed  int
	Bytes   int64
	Stats   engine.Stats
	Results []FileResult
}

// Run processes every path with up to workers files in flight. A failed
// file does not stop the others; the returned error joins every per-file
// failure.
func (p *Pipeline) Run(ctx context.Context, paths []string) (Summary, error) {
	results := make([]FileResult, len(paths))

	var g errgroup.Group
	g.SetLimit(max(p.workers, 1))
	for i, path := range paths {
		g.Go(func() error {
			results[i] = p.ProcessFile(ctx, path)
			return nil
		})
	}
	g.Wait()

	sum := Summary{Files: len(paths), Results: results}
	var errs []error
	for _, r := range results {
		sum.Bytes += r.Bytes
		sum.Stats.Add(r.Stats)
		if r.Err != nil {
			sum.Failed++
			errs = append(errs, r.Err)
		}
	}
	return sum, errors.Join(errs...)
}

// ProcessFile reconstructs one input: completed records are written as
// their terminal line is read, then the records never completed. A fatal
// error stops the file; records already written stand.
func (p *Pipeline) ProcessFile(ctx context.Context, path string) (res FileResult) {
	start := time.Now()
	res = FileResult{Path: path, RunID: uuid.NewString()}
	logger := logging.ForFile(path, res.RunID)

	defer func() {
		res.Duration = time.Since(start)
		if res.Err != nil {
			logger.Error("file failed", "error", res.Err,
				"completed", res.Stats.Completed, "lines", res.Stats.LinesRead)
			return
		}
		logger.Info("file processed",
			"year", res.Year,
			"size", humanize.Bytes(uint64(res.Bytes)),
			"lines", res.Stats.LinesRead,
			"matched", res.Stats.LinesMatched,
			"completed", res.Stats.Completed,
			"incomplete", res.Stats.Incomplete,
			"warnings", res.Stats.Warnings,
			"duration", res.Duration)
	}()

	if err := ctx.Err(); err != nil {
		res.Err = &engine.FileError{File: path, Op: "start", Err: err}
		return res
	}

	f, err := source.Open(path, p.compression)
	if err != nil {
		res.Err = &engine.FileError{File: path, Op: "open", Err: err}
		return res
	}
	defer f.Close()
	res.Bytes = f.Size
	res.Year = p.yearFor(f)

	out, err := p.sink(ctx, path)
	if err != nil {
		res.Err = &engine.FileError{File: path, Op: "open output", Err: err}
		return res
	}

	eng := engine.New(append(slices.Clone(p.engineOpts),
		engine.WithYear(res.Year), engine.WithLogger(logger))...)
	res.Year = eng.Year()
	logger.Debug("scanning", "compression", f.Compression, "year", res.Year)

	scan := eng.NewScan(path, f)
	wctx := output.WithRunID(output.WithSource(ctx, path), res.RunID)
	err = drain(wctx, path, scan, out)
	res.Stats = scan.Stats()

	if cerr := out.Close(); cerr != nil && err == nil {
		err = &engine.FileError{File: path, Op: "close output", Err: cerr}
	}
	res.Err = err
	return res
}

func drain(ctx context.Context, path string, scan *engine.Scan, out output.Output) error {
	for rec, err := range scan.Completed() {
		if err != nil {
			return err
		}
		if err := write(ctx, path, out, rec); err != nil {
			return err
		}
	}
	for rec, err := range scan.Incomplete() {
		if err != nil {
			return err
		}
		if err := write(ctx, path, out, rec); err != nil {
			return err
		}
	}
	return nil
}

func write(ctx context.Context, path string, out output.Output, rec *model.MailRecord) error {
	if err := ctx.Err(); err != nil {
		return &engine.FileError{File: path, Op: "write", Err: err}
	}
	if err := out.Write(ctx, rec); err != nil {
		return &engine.FileError{File: path, Op: "write", Err: err}
	}
	return nil
}

func (p *Pipeline) yearFor(f *source.File) int {
	switch {
	case p.year > 0:
		return p.year
	case p.yearFromMtime:
		return f.ModTime.Year()
	}
	return 0
}

// Expand resolves glob patterns to a sorted, de-duplicated list of files.
// A pattern matching nothing is an error.
func Expand(patterns ...string) ([]string, error) {
	var paths []string
	for _, pattern := range patterns {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("glob %q: %w", pattern, err)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("no input matches %q", pattern)
		}
		paths = append(paths, matches...)
	}
	slices.Sort(paths)
	return slices.Compact(paths), nil
}
