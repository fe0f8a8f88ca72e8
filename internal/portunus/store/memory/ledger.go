// Package memory provides in-process stores for tests and dev runs.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/BrandonDHaskell/Portunus/attendance/internal/portunus/store"
)

// Ledger is an in-memory store.Ledger.
type Ledger struct {
	mu        sync.RWMutex
	subjects  map[string]store.Subject
	records   []store.Record
	appendErr error
}

func NewLedger() *Ledger {
	return &Ledger{subjects: make(map[string]store.Subject)}
}

// ── Subjects ─────────────────────────────────────────────────────────────────

func (l *Ledger) FindSubject(_ context.Context, id string) (store.Subject, bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	s, ok := l.subjects[strings.TrimSpace(id)]
	return s, ok, nil
}

func (l *Ledger) EnsureSubject(_ context.Context, s store.Subject) (bool, error) {
	s.ID = strings.TrimSpace(s.ID)
	if s.ID == "" {
		return false, store.ErrInvalidSubjectID
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.subjects[s.ID]; ok {
		return false, nil
	}
	l.subjects[s.ID] = s
	return true, nil
}

func (l *Ledger) ListSubjects(_ context.Context) ([]store.Subject, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]store.Subject, 0, len(l.subjects))
	for _, s := range l.subjects {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// PutSubject inserts or replaces a subject, the way an admin edit would.
func (l *Ledger) PutSubject(s store.Subject) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.subjects[s.ID] = s
}

// ── Records ──────────────────────────────────────────────────────────────────

func (l *Ledger) AppendRecord(_ context.Context, rec store.Record) error {
	if strings.TrimSpace(rec.SubjectID) == "" {
		return store.ErrInvalidSubjectID
	}
	rec = rec.Normalize()

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.appendErr != nil {
		return l.appendErr
	}

	// Keep records sorted by OccurredAt; ties keep insertion order.
	i := sort.Search(len(l.records), func(i int) bool {
		return l.records[i].OccurredAt.After(rec.OccurredAt)
	})
	l.records = append(l.records, store.Record{})
	copy(l.records[i+1:], l.records[i:])
	l.records[i] = rec
	return nil
}

func (l *Ledger) LastRecordOnDay(_ context.Context, subjectID, day string) (store.Record, bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for i := len(l.records) - 1; i >= 0; i-- {
		r := l.records[i]
		if r.SubjectID == subjectID && r.Day == day {
			return r, true, nil
		}
	}
	return store.Record{}, false, nil
}

func (l *Ledger) HasRecordAfter(_ context.Context, subjectID string, since time.Time) (bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for i := len(l.records) - 1; i >= 0; i-- {
		r := l.records[i]
		if !r.OccurredAt.After(since) {
			break
		}
		if r.SubjectID == subjectID {
			return true, nil
		}
	}
	return false, nil
}

func (l *Ledger) RecordsOnDay(_ context.Context, subjectID, day string) ([]store.Record, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []store.Record
	for _, r := range l.records {
		if r.SubjectID == subjectID && r.Day == day {
			out = append(out, r)
		}
	}
	return out, nil
}

func (l *Ledger) RecordsSince(_ context.Context, since time.Time) ([]store.Record, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []store.Record
	for _, r := range l.records {
		if !r.OccurredAt.Before(since) {
			out = append(out, r)
		}
	}
	return out, nil
}

// Records returns a copy of every record.  Test-only helper.
func (l *Ledger) Records() []store.Record {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]store.Record, len(l.records))
	copy(out, l.records)
	return out
}

// FailAppends makes AppendRecord return err until called again with nil.
func (l *Ledger) FailAppends(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.appendErr = err
}
