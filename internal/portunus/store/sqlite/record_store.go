package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BrandonDHaskell/Portunus/attendance/internal/clock"
	dbpkg "github.com/BrandonDHaskell/Portunus/attendance/internal/db"
	"github.com/BrandonDHaskell/Portunus/attendance/internal/portunus/store"
	"github.com/BrandonDHaskell/Portunus/attendance/internal/portunus/types"
)

// RecordStore is the SQLite attendance ledger. Times are stored as Unix
// milliseconds and returned in the store's location.
type RecordStore struct {
	db     *sql.DB
	writer *dbpkg.Worker
	loc    *time.Location
	clock  clock.Clock
}

// NewRecordStore returns a RecordStore. A nil loc means time.Local; a nil
// clk means the real clock.
func NewRecordStore(db *sql.DB, writer *dbpkg.Worker, loc *time.Location, clk clock.Clock) *RecordStore {
	if loc == nil {
		loc = time.Local
	}
	if clk == nil {
		clk = clock.Real()
	}
	return &RecordStore{db: db, writer: writer, loc: loc, clock: clk}
}

const recordColumns = `record_id, subject_id, kind, occurred_at_ms, local_day, reader_no, verify_method, outcome`

func (s *RecordStore) AppendRecord(ctx context.Context, rec store.Record) error {
	rec.SubjectID = strings.TrimSpace(rec.SubjectID)
	if rec.SubjectID == "" {
		return store.ErrInvalidSubjectID
	}
	if rec.Day == "" {
		rec.OccurredAt = rec.OccurredAt.In(s.loc)
	}
	rec = rec.Normalize()
	nowMs := s.clock.Now().UTC().UnixMilli()

	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		// Provisioning belongs to the directory, which knows the
		// configured defaults.
		var one int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM subjects WHERE subject_id = ?;`, rec.SubjectID).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("AppendRecord %s: %w", rec.SubjectID, store.ErrUnknownSubject)
		}
		if err != nil {
			return fmt.Errorf("AppendRecord lookup: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
INSERT INTO attendance_records(
  record_id, subject_id, kind, occurred_at_ms, local_day,
  reader_no, verify_method, outcome, created_at_ms
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?);
`,
			rec.ID, rec.SubjectID, string(rec.Kind), rec.OccurredAt.UnixMilli(), rec.Day,
			rec.ReaderNo, string(rec.Method), string(rec.Outcome), nowMs,
		); err != nil {
			return fmt.Errorf("AppendRecord insert: %w", err)
		}
		return nil
	})
}

func (s *RecordStore) LastRecordOnDay(ctx context.Context, subjectID, day string) (store.Record, bool, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT `+recordColumns+`
FROM attendance_records
WHERE subject_id = ? AND local_day = ?
ORDER BY occurred_at_ms DESC, seq DESC
LIMIT 1;
`, subjectID, day)

	rec, err := s.scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Record{}, false, nil
	}
	if err != nil {
		return store.Record{}, false, fmt.Errorf("LastRecordOnDay: %w", err)
	}
	return rec, true, nil
}

func (s *RecordStore) HasRecordAfter(ctx context.Context, subjectID string, since time.Time) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `
SELECT 1 FROM attendance_records
WHERE subject_id = ? AND occurred_at_ms > ?
LIMIT 1;
`, subjectID, since.UnixMilli()).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("HasRecordAfter: %w", err)
	}
	return true, nil
}

func (s *RecordStore) RecordsOnDay(ctx context.Context, subjectID, day string) ([]store.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT `+recordColumns+`
FROM attendance_records
WHERE subject_id = ? AND local_day = ?
ORDER BY occurred_at_ms ASC, seq ASC;
`, subjectID, day)
	if err != nil {
		return nil, fmt.Errorf("RecordsOnDay: %w", err)
	}
	return s.collect(rows)
}

func (s *RecordStore) RecordsSince(ctx context.Context, since time.Time) ([]store.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT `+recordColumns+`
FROM attendance_records
WHERE occurred_at_ms >= ?
ORDER BY occurred_at_ms ASC, seq ASC;
`, since.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("RecordsSince: %w", err)
	}
	return s.collect(rows)
}

func (s *RecordStore) collect(rows *sql.Rows) ([]store.Record, error) {
	defer rows.Close()
	var out []store.Record
	for rows.Next() {
		rec, err := s.scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *RecordStore) scanRecord(sc scanner) (store.Record, error) {
	var (
		rec                   store.Record
		kind, method, outcome string
		occurredMs            int64
	)
	if err := sc.Scan(&rec.ID, &rec.SubjectID, &kind, &occurredMs, &rec.Day, &rec.ReaderNo, &method, &outcome); err != nil {
		return store.Record{}, err
	}
	rec.Kind = types.EventKind(kind)
	rec.Method = types.VerifyMethod(method)
	rec.Outcome = types.Outcome(outcome)
	rec.OccurredAt = time.UnixMilli(occurredMs).In(s.loc)
	return rec, nil
}
