package session

import (
	"time"

	"github.com/crimson-sun/maillog/internal/engine/grammar"
	"github.com/crimson-sun/maillog/internal/model"
)

// Aggregator folds classified events into per-session records.
//
// A session moves absent -> open on its first event and open -> completed
// on the queue manager's "removed" token. Sessions still open when the
// input ends are incomplete; the caller drains them from Store.
type Aggregator struct {
	store         *Store
	grammars      *grammar.Set
	keepCompleted bool

	completed int
	warnings  int
	applied   int
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithKeepCompleted keeps completed records in the store instead of
// removing them on completion.
func WithKeepCompleted() Option {
	return func(a *Aggregator) { a.keepCompleted = true }
}

// NewAggregator creates an Aggregator with an empty store.
func NewAggregator(g *grammar.Set, opts ...Option) *Aggregator {
	a := &Aggregator{store: NewStore(), grammars: g}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Apply routes one event to its session. It returns the record and true
// when this event completed it; the record then belongs to the caller.
// With keep-completed the stored record keeps absorbing later events, so
// the caller gets a snapshot taken at completion.
func (a *Aggregator) Apply(ev model.LogEvent, ts time.Time) (*model.MailRecord, bool) {
	key := Key{Host: ev.Host, SessionID: ev.SessionID}
	rec, _ := a.store.GetOrCreate(key)

	rec.Observe(ts)
	rec.SubsystemsSeen = append(rec.SubsystemsSeen, string(ev.Subsystem))
	rec.Host = ev.Host

	out := a.grammars.Apply(rec, ev.Subsystem, ev.Payload)
	a.applied++
	a.warnings += out.Warnings
	if !out.Terminal {
		return nil, false
	}

	a.completed++
	if a.keepCompleted {
		return rec.Clone(), true
	}
	a.store.Remove(key)
	return rec, true
}

// Store exposes the live session table.
func (a *Aggregator) Store() *Store { return a.store }

// Completed is the number of terminal events seen.
func (a *Aggregator) Completed() int { return a.completed }

// Warnings is the number of dropped numeric updates.
func (a *Aggregator) Warnings() int { return a.warnings }

// Applied is the number of events folded into records.
func (a *Aggregator) Applied() int { return a.applied }
