package sqlite_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/BrandonDHaskell/Portunus/attendance/internal/clock"
	"github.com/BrandonDHaskell/Portunus/attendance/internal/portunus/store"
	sqlitestore "github.com/BrandonDHaskell/Portunus/attendance/internal/portunus/store/sqlite"
	"github.com/BrandonDHaskell/Portunus/attendance/internal/portunus/types"
)

var (
	tz      = time.FixedZone("local", -6*3600)
	stamped = time.Date(2025, 1, 10, 12, 0, 0, 0, time.UTC)
)

func newTestLedger(t *testing.T) (*sqlitestore.Ledger, *sql.DB) {
	t.Helper()
	conn := openTestDB(t)
	w := newTestWriter(t, conn)
	return sqlitestore.NewLedger(conn, w, tz, clock.Fake(stamped)), conn
}

func at(day, hour, min, sec int) time.Time {
	return time.Date(2025, 1, day, hour, min, sec, 0, tz)
}

// ═══════════════════════════════════════════════════════════════════════════
// Subjects — ensure / find / list
// ═══════════════════════════════════════════════════════════════════════════

func TestSubjectStore_EnsureSubject_CreatesOnce(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	created, err := l.EnsureSubject(ctx, store.Subject{
		ID: "42", Name: "Ana", Department: "General", Schedule: types.ScheduleStandard, Active: true,
	})
	if err != nil {
		t.Fatalf("EnsureSubject: %v", err)
	}
	if !created {
		t.Fatal("expected created=true on first insert")
	}

	created, err = l.EnsureSubject(ctx, store.Subject{ID: "42", Name: "Other", Department: "X"})
	if err != nil {
		t.Fatalf("EnsureSubject again: %v", err)
	}
	if created {
		t.Error("expected created=false for existing subject")
	}

	sub, ok, err := l.FindSubject(ctx, "42")
	if err != nil || !ok {
		t.Fatalf("FindSubject: ok=%v err=%v", ok, err)
	}
	if sub.Name != "Ana" || sub.Department != "General" {
		t.Errorf("existing subject was modified: %+v", sub)
	}
	if !sub.Active {
		t.Error("expected active=true")
	}
}

func TestSubjectStore_EnsureSubject_RejectsEmptyID(t *testing.T) {
	l, _ := newTestLedger(t)
	if _, err := l.EnsureSubject(context.Background(), store.Subject{ID: "  "}); err != store.ErrInvalidSubjectID {
		t.Errorf("expected ErrInvalidSubjectID, got %v", err)
	}
}

func TestSubjectStore_FindSubject_Missing(t *testing.T) {
	l, _ := newTestLedger(t)
	_, ok, err := l.FindSubject(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("FindSubject: %v", err)
	}
	if ok {
		t.Error("expected ok=false for missing subject")
	}
}

func TestSubjectStore_ScheduleVariantRoundTrip(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	if _, err := l.EnsureSubject(ctx, store.Subject{
		ID: "7", Name: "Luis", Department: "Refurbishing", Schedule: types.ScheduleMultiSegment, Active: true,
	}); err != nil {
		t.Fatalf("EnsureSubject: %v", err)
	}
	sub, _, err := l.FindSubject(ctx, "7")
	if err != nil {
		t.Fatalf("FindSubject: %v", err)
	}
	if sub.Schedule != types.ScheduleMultiSegment {
		t.Errorf("expected multi_segment, got %s", sub.Schedule)
	}
}

func TestSubjectStore_ListSubjectsOrdered(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	for _, id := range []string{"3", "1", "2"} {
		if _, err := l.EnsureSubject(ctx, store.Subject{ID: id, Name: id, Department: "General", Active: true}); err != nil {
			t.Fatalf("EnsureSubject %s: %v", id, err)
		}
	}

	subs, err := l.ListSubjects(ctx)
	if err != nil {
		t.Fatalf("ListSubjects: %v", err)
	}
	if len(subs) != 3 || subs[0].ID != "1" || subs[2].ID != "3" {
		t.Errorf("unexpected order: %+v", subs)
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Records — append
// ═══════════════════════════════════════════════════════════════════════════

func TestRecordStore_AppendRecord_ColumnsCorrect(t *testing.T) {
	l, conn := newTestLedger(t)
	ctx := context.Background()

	ensure(t, l, "42")

	when := at(1, 9, 0, 0)
	err := l.AppendRecord(ctx, store.Record{
		SubjectID:  "42",
		Kind:       types.KindEntry,
		OccurredAt: when,
		Day:        "2025-01-01",
		ReaderNo:   2,
		Method:     types.VerifyFingerprint,
		Outcome:    types.OutcomeAuthorized,
	})
	if err != nil {
		t.Fatalf("AppendRecord: %v", err)
	}

	var (
		kind, day, method, outcome, id string
		occurredMs, createdMs          int64
		reader                         int
	)
	err = conn.QueryRowContext(ctx, `
SELECT record_id, kind, local_day, verify_method, outcome, occurred_at_ms, reader_no, created_at_ms
FROM attendance_records WHERE subject_id = ?`, "42",
	).Scan(&id, &kind, &day, &method, &outcome, &occurredMs, &reader, &createdMs)
	if err != nil {
		t.Fatalf("query: %v", err)
	}

	if id == "" {
		t.Error("expected generated record_id")
	}
	if kind != "entry" {
		t.Errorf("expected kind=entry, got %q", kind)
	}
	if day != "2025-01-01" {
		t.Errorf("expected local_day=2025-01-01, got %q", day)
	}
	if method != "fingerprint" {
		t.Errorf("expected verify_method=fingerprint, got %q", method)
	}
	if outcome != "authorized" {
		t.Errorf("expected outcome=authorized, got %q", outcome)
	}
	if occurredMs != when.UnixMilli() {
		t.Errorf("expected occurred_at_ms=%d, got %d", when.UnixMilli(), occurredMs)
	}
	if reader != 2 {
		t.Errorf("expected reader_no=2, got %d", reader)
	}
	if createdMs != stamped.UnixMilli() {
		t.Errorf("expected created_at_ms from the store clock %d, got %d", stamped.UnixMilli(), createdMs)
	}
}

func TestRecordStore_AppendRecord_RejectsUnknownSubject(t *testing.T) {
	l, conn := newTestLedger(t)
	ctx := context.Background()

	err := l.AppendRecord(ctx, store.Record{SubjectID: "99", Kind: types.KindEntry, OccurredAt: at(1, 8, 0, 0)})
	if !errors.Is(err, store.ErrUnknownSubject) {
		t.Fatalf("expected ErrUnknownSubject, got %v", err)
	}

	if _, ok, _ := l.FindSubject(ctx, "99"); ok {
		t.Error("expected no subject row to be created")
	}
	var n int
	if err := conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM attendance_records`).Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 0 {
		t.Errorf("expected no records, got %d", n)
	}
}

func TestRecordStore_AppendRecord_DerivesDayInStoreLocation(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	ensure(t, l, "1")

	// 02:00 UTC on Jan 2 is still Jan 1 at UTC-6.
	utc := time.Date(2025, 1, 2, 2, 0, 0, 0, time.UTC)
	if err := l.AppendRecord(ctx, store.Record{SubjectID: "1", Kind: types.KindEntry, OccurredAt: utc}); err != nil {
		t.Fatalf("AppendRecord: %v", err)
	}

	if _, ok, _ := l.LastRecordOnDay(ctx, "1", "2025-01-01"); !ok {
		t.Error("expected record on local day 2025-01-01")
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Records — queries
// ═══════════════════════════════════════════════════════════════════════════

func TestRecordStore_LastRecordOnDay(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	appendAll(t, l,
		store.Record{SubjectID: "1", Kind: types.KindEntry, OccurredAt: at(1, 8, 0, 0)},
		store.Record{SubjectID: "1", Kind: types.KindExit, OccurredAt: at(1, 12, 0, 0)},
		store.Record{SubjectID: "2", Kind: types.KindEntry, OccurredAt: at(1, 13, 0, 0)},
		store.Record{SubjectID: "1", Kind: types.KindEntry, OccurredAt: at(2, 8, 0, 0)},
	)

	rec, ok, err := l.LastRecordOnDay(ctx, "1", "2025-01-01")
	if err != nil || !ok {
		t.Fatalf("LastRecordOnDay: ok=%v err=%v", ok, err)
	}
	if rec.Kind != types.KindExit {
		t.Errorf("expected exit, got %s", rec.Kind)
	}
	if !rec.OccurredAt.Equal(at(1, 12, 0, 0)) {
		t.Errorf("expected 12:00, got %v", rec.OccurredAt)
	}

	if _, ok, _ := l.LastRecordOnDay(ctx, "1", "2025-01-03"); ok {
		t.Error("expected no record on an empty day")
	}
}

func TestRecordStore_LastRecordOnDay_TieBreaksByInsertion(t *testing.T) {
	l, _ := newTestLedger(t)
	same := at(1, 9, 0, 0)

	appendAll(t, l,
		store.Record{SubjectID: "1", Kind: types.KindEntry, OccurredAt: same},
		store.Record{SubjectID: "1", Kind: types.KindExit, OccurredAt: same},
	)

	rec, _, err := l.LastRecordOnDay(context.Background(), "1", "2025-01-01")
	if err != nil {
		t.Fatalf("LastRecordOnDay: %v", err)
	}
	if rec.Kind != types.KindExit {
		t.Errorf("expected later insert to win, got %s", rec.Kind)
	}
}

func TestRecordStore_HasRecordAfter(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	appendAll(t, l, store.Record{SubjectID: "1", Kind: types.KindEntry, OccurredAt: at(1, 9, 0, 0)})

	got, err := l.HasRecordAfter(ctx, "1", at(1, 8, 59, 55))
	if err != nil {
		t.Fatalf("HasRecordAfter: %v", err)
	}
	if !got {
		t.Error("expected record after 08:59:55")
	}

	got, _ = l.HasRecordAfter(ctx, "1", at(1, 9, 0, 0))
	if got {
		t.Error("boundary is exclusive: record at 09:00:00 is not after 09:00:00")
	}

	got, _ = l.HasRecordAfter(ctx, "2", at(1, 0, 0, 0))
	if got {
		t.Error("expected no records for another subject")
	}
}

func TestRecordStore_RecordsOnDayAndSince(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	appendAll(t, l,
		store.Record{SubjectID: "1", Kind: types.KindExit, OccurredAt: at(1, 17, 0, 0)},
		store.Record{SubjectID: "1", Kind: types.KindEntry, OccurredAt: at(1, 7, 0, 0)},
		store.Record{SubjectID: "2", Kind: types.KindEntry, OccurredAt: at(2, 7, 0, 0)},
	)

	day, err := l.RecordsOnDay(ctx, "1", "2025-01-01")
	if err != nil {
		t.Fatalf("RecordsOnDay: %v", err)
	}
	if len(day) != 2 || day[0].Kind != types.KindEntry || day[1].Kind != types.KindExit {
		t.Errorf("expected entry then exit ordered by time, got %+v", day)
	}

	since, err := l.RecordsSince(ctx, at(1, 12, 0, 0))
	if err != nil {
		t.Fatalf("RecordsSince: %v", err)
	}
	if len(since) != 2 {
		t.Fatalf("expected 2 records since noon, got %d", len(since))
	}
	if since[0].SubjectID != "1" || since[1].SubjectID != "2" {
		t.Errorf("unexpected order: %+v", since)
	}
	if since[0].OccurredAt.Location() != tz {
		t.Errorf("expected times in store location, got %v", since[0].OccurredAt.Location())
	}
}

// ── Test helpers ─────────────────────────────────────────────────────────────

// ensure provisions subjects the way the directory would.
func ensure(t *testing.T, l *sqlitestore.Ledger, ids ...string) {
	t.Helper()
	for _, id := range ids {
		sub := store.Subject{ID: id, Name: "Subject " + id, Department: "General", Schedule: types.ScheduleStandard, Active: true}
		if _, err := l.EnsureSubject(context.Background(), sub); err != nil {
			t.Fatalf("EnsureSubject %s: %v", id, err)
		}
	}
}

func appendAll(t *testing.T, l *sqlitestore.Ledger, recs ...store.Record) {
	t.Helper()
	for _, r := range recs {
		ensure(t, l, r.SubjectID)
	}
	for i, r := range recs {
		if err := l.AppendRecord(context.Background(), r); err != nil {
			t.Fatalf("AppendRecord %d: %v", i, err)
		}
	}
}
