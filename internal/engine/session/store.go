package session

import (
	"cmp"
	"iter"
	"slices"

	"github.com/crimson-sun/maillog/internal/model"
)

// Key addresses one transaction. Queue ids are only unique per host.
type Key struct {
	Host      string
	SessionID string
}

type entry struct {
	seq    uint64
	record *model.MailRecord
}

// Store is the live session table of one scan. It is not safe for
// concurrent use; each scan owns its own Store.
type Store struct {
	entries map[Key]*entry
	next    uint64
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{entries: make(map[Key]*entry)}
}

// GetOrCreate returns the record for key, creating it on first sight.
// created reports whether the record is new.
func (s *Store) GetOrCreate(key Key) (rec *model.MailRecord, created bool) {
	if e, ok := s.entries[key]; ok {
		return e.record, false
	}
	rec = model.NewMailRecord(key.Host, key.SessionID)
	s.entries[key] = &entry{seq: s.next, record: rec}
	s.next++
	return rec, true
}

// Get returns the record for key, if present.
func (s *Store) Get(key Key) (*model.MailRecord, bool) {
	e, ok := s.entries[key]
	if !ok {
		return nil, false
	}
	return e.record, true
}

// Remove drops key from the store.
func (s *Store) Remove(key Key) {
	delete(s.entries, key)
}

// Len returns the number of records held.
func (s *Store) Len() int { return len(s.entries) }

// All yields every held record in first-seen order.
func (s *Store) All() iter.Seq[*model.MailRecord] {
	return func(yield func(*model.MailRecord) bool) {
		ordered := make([]*entry, 0, len(s.entries))
		for _, e := range s.entries {
			ordered = append(ordered, e)
		}
		slices.SortFunc(ordered, func(a, b *entry) int { return cmp.Compare(a.seq, b.seq) })
		for _, e := range ordered {
			if !yield(e.record) {
				return
			}
		}
	}
}
