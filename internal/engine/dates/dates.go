// Package dates turns the year-less syslog timestamp of a Postfix log line
// into an absolute time using a year supplied once per input file.
package dates

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

var months = map[string]time.Month{
	"Jan": time.January,
	"Feb": time.February,
	"Mar": time.March,
	"Apr": time.April,
	"May": time.May,
	"Jun": time.June,
	"Jul": time.July,
	"Aug": time.August,
	"Sep": time.September,
	"Oct": time.October,
	"Nov": time.November,
	"Dec": time.December,
}

var (
	errUnknownMonth = errors.New("unknown month")
	errOutOfRange   = errors.New("component out of range")
)

// DateError reports a timestamp that cannot be resolved. It carries the raw
// matched fields so callers can point at the offending line.
type DateError struct {
	Year   int
	Month  string
	Day    string
	Hour   string
	Minute string
	Second string
	Err    error
}

func (e *DateError) Error() string {
	return fmt.Sprintf("date parse: %d/%s/%s %s:%s:%s: %v",
		e.Year, e.Month, e.Day, e.Hour, e.Minute, e.Second, e.Err)
}

func (e *DateError) Unwrap() error { return e.Err }

// Option configures a Resolver.
type Option func(*Resolver)

// WithLocation sets the zone the wall-clock timestamps are interpreted in.
// Default: UTC.
func WithLocation(loc *time.Location) Option {
	return func(r *Resolver) {
		if loc != nil {
			r.loc = loc
		}
	}
}

// Resolver combines partial log timestamps with a fixed year.
type Resolver struct {
	year int
	loc  *time.Location
}

// New creates a Resolver for the given year. A year <= 0 falls back to the
// current calendar year, read once here.
func New(year int, opts ...Option) *Resolver {
	if year <= 0 {
		year = time.Now().Year()
	}
	r := &Resolver{year: year, loc: time.UTC}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Year returns the year used for resolution.
func (r *Resolver) Year() int { return r.year }

// Resolve builds the absolute timestamp. Any unknown month or out-of-range
// component yields a *DateError; nothing is normalized.
func (r *Resolver) Resolve(month, day, hour, minute, second string) (time.Time, error) {
	fail := func(err error) (time.Time, error) {
		return time.Time{}, &DateError{
			Year: r.year, Month: month, Day: day,
			Hour: hour, Minute: minute, Second: second,
			Err: err,
		}
	}

	m, ok := months[month]
	if !ok {
		return fail(errUnknownMonth)
	}
	d, err := component("day", day, 1, daysIn(m, r.year))
	if err != nil {
		return fail(err)
	}
	h, err := component("hour", hour, 0, 23)
	if err != nil {
		return fail(err)
	}
	mi, err := component("minute", minute, 0, 59)
	if err != nil {
		return fail(err)
	}
	s, err := component("second", second, 0, 59)
	if err != nil {
		return fail(err)
	}
	return time.Date(r.year, m, d, h, mi, s, 0, r.loc), nil
}

func component(name, raw string, lo, hi int) (int, error) {
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s %q: %w", name, raw, err)
	}
	if v < lo || v > hi {
		return 0, fmt.Errorf("%s %d not in [%d, %d]: %w", name, v, lo, hi, errOutOfRange)
	}
	return v, nil
}

// daysIn returns the number of days in month m of year.
func daysIn(m time.Month, year int) int {
	return time.Date(year, m+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
