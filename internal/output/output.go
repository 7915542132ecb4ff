package output

import (
	"context"

	"github.com/crimson-sun/maillog/internal/model"
)

// Output defines the interface for reconstructed record destinations.
type Output interface {
	Write(ctx context.Context, rec *model.MailRecord) error
	Close() error
}

type ctxKey int

const (
	sourceKey ctxKey = iota
	runIDKey
)

// WithSource tags ctx with the input file a record came from, for outputs
// shared across files.
func WithSource(ctx context.Context, path string) context.Context {
	return context.WithValue(ctx, sourceKey, path)
}

// SourceFrom returns the input file set by WithSource, or "".
func SourceFrom(ctx context.Context) string {
	s, _ := ctx.Value(sourceKey).(string)
	return s
}

// WithRunID tags ctx with the id of the file-processing run.
func WithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, runIDKey, id)
}

// RunIDFrom returns the run id set by WithRunID, or "".
func RunIDFrom(ctx context.Context) string {
	s, _ := ctx.Value(runIDKey).(string)
	return s
}

// Entry is a record tagged with the input and run it came from.
type Entry struct {
	Record *model.MailRecord
	Source string
	RunID  string
}

// EntryFrom tags rec with the source and run id carried by ctx.
func EntryFrom(ctx context.Context, rec *model.MailRecord) Entry {
	return Entry{Record: rec, Source: SourceFrom(ctx), RunID: RunIDFrom(ctx)}
}

// NopCloser returns an Output whose Close does nothing, so a shared output
// can be handed to per-file code that closes what it is given.
func NopCloser(o Output) Output {
	return nopCloser{o}
}

type nopCloser struct {
	Output
}

func (nopCloser) Close() error { return nil }
