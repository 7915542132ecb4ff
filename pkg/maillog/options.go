package maillog

import (
	"log/slog"
	"time"

	"github.com/crimson-sun/maillog/internal/engine"
	"github.com/crimson-sun/maillog/internal/source"
)

type options struct {
	year          int
	loc           *time.Location
	keepCompleted bool
	logger        *slog.Logger
	compression   string
	maxLineSize   int
}

// Option configures parsing.
type Option func(*options)

// WithYear sets the year of the log's timestamps; Postfix omits it.
// Default: the current year.
func WithYear(year int) Option {
	return func(o *options) {
		o.year = year
	}
}

// WithLocation sets the zone timestamps are read in. Default: UTC.
func WithLocation(loc *time.Location) Option {
	return func(o *options) {
		o.loc = loc
	}
}

// WithKeepCompleted retains completed records in memory after they are
// returned and keeps applying later lines to them. Read their final state
// with Result.Kept; Incomplete never returns them.
func WithKeepCompleted() Option {
	return func(o *options) {
		o.keepCompleted = true
	}
}

// WithLogger sets where warnings about unparsable numbers go.
// Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithCompression selects the decoder Open uses: "auto", "none", "gzip" or
// "zstd". Default: "auto".
func WithCompression(name string) Option {
	return func(o *options) {
		o.compression = name
	}
}

// WithMaxLineSize sets the longest accepted line in bytes. Default: 1MB.
func WithMaxLineSize(n int) Option {
	return func(o *options) {
		o.maxLineSize = n
	}
}

func defaultOptions() options {
	return options{compression: source.Auto}
}

func (o options) engineOptions() []engine.Option {
	opts := []engine.Option{engine.WithYear(o.year), engine.WithLocation(o.loc)}
	if o.keepCompleted {
		opts = append(opts, engine.WithKeepCompleted())
	}
	if o.logger != nil {
		opts = append(opts, engine.WithLogger(o.logger))
	}
	if o.maxLineSize > 0 {
		opts = append(opts, engine.WithMaxLineSize(o.maxLineSize))
	}
	return opts
}
