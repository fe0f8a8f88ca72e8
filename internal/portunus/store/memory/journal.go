package memory

import (
	"context"
	"sync"
	"time"

	"github.com/segmentio/ksuid"

	"github.com/BrandonDHaskell/Portunus/attendance/internal/portunus/store"
)

// Journal is an in-memory store.Journal.
type Journal struct {
	mu      sync.Mutex
	entries []store.JournalEntry
}

func NewJournal() *Journal {
	return &Journal{}
}

func (j *Journal) Append(_ context.Context, e store.JournalEntry) error {
	if e.ReceivedAt.IsZero() {
		e.ReceivedAt = time.Now().UTC()
	}
	if e.ID == "" {
		id, err := ksuid.NewRandomWithTime(e.ReceivedAt)
		if err != nil {
			return err
		}
		e.ID = id.String()
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, e)
	return nil
}

func (j *Journal) List(_ context.Context, since time.Time, limit int) ([]store.JournalEntry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	var out []store.JournalEntry
	for _, e := range j.entries {
		if e.ReceivedAt.Before(since) {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (j *Journal) PruneOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	kept := j.entries[:0]
	var deleted int64
	for _, e := range j.entries {
		if e.ReceivedAt.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, e)
	}
	j.entries = kept
	return deleted, nil
}

// Entries returns a copy of every entry.  Test-only helper.
func (j *Journal) Entries() []store.JournalEntry {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]store.JournalEntry, len(j.entries))
	copy(out, j.entries)
	return out
}
