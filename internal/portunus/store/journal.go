package store

import (
	"context"
	"time"
)

// JournalEntry is a non-attendance device event kept for audit: denied
// access attempts and door state changes.
type JournalEntry struct {
	ID         string    `msgpack:"id"`
	Kind       string    `msgpack:"kind"`
	SubjectID  string    `msgpack:"subject_id,omitempty"`
	Method     string    `msgpack:"method,omitempty"`
	ReaderNo   int       `msgpack:"reader_no,omitempty"`
	OccurredAt time.Time `msgpack:"occurred_at"`
	ReceivedAt time.Time `msgpack:"received_at"`
}

// Journal is an append-only event log with retention pruning.
type Journal interface {
	Append(ctx context.Context, e JournalEntry) error

	// List returns up to limit entries received at or after since, oldest
	// first. limit <= 0 means no limit.
	List(ctx context.Context, since time.Time, limit int) ([]JournalEntry, error)

	PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
