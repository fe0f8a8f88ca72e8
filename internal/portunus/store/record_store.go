package store

import (
	"context"
	"time"

	"github.com/segmentio/ksuid"

	"github.com/BrandonDHaskell/Portunus/attendance/internal/portunus/types"
)

// DayLayout formats Record.Day.
const DayLayout = "2006-01-02"

// Record is one immutable attendance ledger entry.
type Record struct {
	ID         string
	SubjectID  string
	Kind       types.EventKind
	OccurredAt time.Time // second precision
	Day        string    // local calendar day of OccurredAt, DayLayout
	ReaderNo   int
	Method     types.VerifyMethod
	Outcome    types.Outcome
}

// RecordStore is the append-only attendance ledger. Implementations order
// records by OccurredAt and then by insertion.
type RecordStore interface {
	// AppendRecord stores rec. Implementations backed by a subject table
	// return ErrUnknownSubject when the subject does not exist; callers
	// provision subjects first.
	AppendRecord(ctx context.Context, rec Record) error

	// LastRecordOnDay returns the latest record for subject on day.
	LastRecordOnDay(ctx context.Context, subjectID, day string) (Record, bool, error)

	// HasRecordAfter reports whether subject has any record strictly
	// after since.
	HasRecordAfter(ctx context.Context, subjectID string, since time.Time) (bool, error)

	// RecordsOnDay returns subject's records for day, oldest first.
	RecordsOnDay(ctx context.Context, subjectID, day string) ([]Record, error)

	// RecordsSince returns every record at or after since, oldest first.
	RecordsSince(ctx context.Context, since time.Time) ([]Record, error)
}

// Ledger is everything the attendance pipeline reads and writes.
type Ledger interface {
	SubjectStore
	RecordStore
}

// NewRecordID returns a time-ordered unique record id.
func NewRecordID() string { return ksuid.New().String() }

// Normalize fills the defaulted fields of rec.
func (rec Record) Normalize() Record {
	if rec.ID == "" {
		rec.ID = NewRecordID()
	}
	rec.OccurredAt = rec.OccurredAt.Truncate(time.Second)
	if rec.Day == "" {
		rec.Day = rec.OccurredAt.Format(DayLayout)
	}
	if rec.ReaderNo == 0 {
		rec.ReaderNo = 1
	}
	if rec.Method == "" {
		rec.Method = types.VerifyUnknown
	}
	if rec.Outcome == "" {
		rec.Outcome = types.OutcomeAuthorized
	}
	return rec
}
