// Package kv keeps the device event journal in an embedded badger store.
// Keys are "journal/<ksuid>" so a prefix scan returns entries in receipt
// order and retention pruning can stop at the first key inside the window.
package kv

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/rs/zerolog"
	"github.com/segmentio/ksuid"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/BrandonDHaskell/Portunus/attendance/internal/portunus/store"
)

var journalPrefix = []byte("journal/")

type Options struct {
	Path     string // directory for badger files; ignored when InMemory
	InMemory bool
}

// Journal is a badger-backed store.Journal.
type Journal struct {
	db     *badger.DB
	logger zerolog.Logger
}

// Open opens (or creates) the journal.
func Open(opt Options, logger zerolog.Logger) (*Journal, error) {
	opts := badger.DefaultOptions(opt.Path).
		WithInMemory(opt.InMemory).
		WithLogger(badgerLogger{logger}).
		WithLoggingLevel(badger.WARNING)
	if opt.InMemory {
		opts = opts.WithDir("").WithValueDir("")
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	return &Journal{db: db, logger: logger}, nil
}

func (j *Journal) Close() error {
	if err := j.db.Close(); err != nil {
		return fmt.Errorf("close journal: %w", err)
	}
	return nil
}

func (j *Journal) Append(_ context.Context, e store.JournalEntry) error {
	if e.ReceivedAt.IsZero() {
		e.ReceivedAt = time.Now().UTC()
	}
	if e.ID == "" {
		id, err := ksuid.NewRandomWithTime(e.ReceivedAt)
		if err != nil {
			return fmt.Errorf("journal id: %w", err)
		}
		e.ID = id.String()
	}

	buf, err := msgpack.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal journal entry: %w", err)
	}

	return j.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key(e.ID), buf)
	})
}

func (j *Journal) List(_ context.Context, since time.Time, limit int) ([]store.JournalEntry, error) {
	var out []store.JournalEntry

	err := j.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(seekKey(since)); it.ValidForPrefix(journalPrefix); it.Next() {
			var e store.JournalEntry
			if err := it.Item().Value(func(val []byte) error {
				return msgpack.Unmarshal(val, &e)
			}); err != nil {
				return err
			}
			if e.ReceivedAt.Before(since) {
				continue
			}
			out = append(out, e)
			if limit > 0 && len(out) == limit {
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list journal: %w", err)
	}
	return out, nil
}

// PruneOlderThan deletes entries whose id timestamp is before cutoff.
// ksuid timestamps have one-second resolution.
func (j *Journal) PruneOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	var stale [][]byte

	err := j.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(journalPrefix); it.ValidForPrefix(journalPrefix); it.Next() {
			k := it.Item().KeyCopy(nil)
			id, err := ksuid.Parse(string(k[len(journalPrefix):]))
			if err != nil {
				// Foreign key under our prefix; leave it alone.
				continue
			}
			if !id.Time().Before(cutoff) {
				break
			}
			stale = append(stale, k)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("scan journal: %w", err)
	}
	if len(stale) == 0 {
		return 0, nil
	}

	wb := j.db.NewWriteBatch()
	for _, k := range stale {
		if err := wb.Delete(k); err != nil {
			wb.Cancel()
			return 0, fmt.Errorf("delete journal entry: %w", err)
		}
	}
	if err := wb.Flush(); err != nil {
		return 0, fmt.Errorf("flush journal deletes: %w", err)
	}

	if err := j.db.RunValueLogGC(0.5); err != nil &&
		!errors.Is(err, badger.ErrNoRewrite) && !errors.Is(err, badger.ErrGCInMemoryMode) {
		j.logger.Debug().Err(err).Msg("journal value log gc")
	}
	return int64(len(stale)), nil
}

func key(id string) []byte {
	return append(append([]byte(nil), journalPrefix...), id...)
}

// seekKey is the smallest key that can hold an entry received at since.
func seekKey(since time.Time) []byte {
	if since.IsZero() || since.Unix() < ksuid.Nil.Time().Unix() {
		return journalPrefix
	}
	id, err := ksuid.FromParts(since, make([]byte, 16))
	if err != nil {
		return journalPrefix
	}
	return key(id.String())
}

// badgerLogger routes badger's internal logging through zerolog.
type badgerLogger struct {
	l zerolog.Logger
}

func (b badgerLogger) Errorf(f string, v ...interface{})   { b.l.Error().Msgf(f, v...) }
func (b badgerLogger) Warningf(f string, v ...interface{}) { b.l.Warn().Msgf(f, v...) }
func (b badgerLogger) Infof(f string, v ...interface{})    { b.l.Info().Msgf(f, v...) }
func (b badgerLogger) Debugf(f string, v ...interface{})   { b.l.Debug().Msgf(f, v...) }
