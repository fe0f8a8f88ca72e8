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

type SubjectStore struct {
	db     *sql.DB
	writer *dbpkg.Worker
	clock  clock.Clock
}

func NewSubjectStore(db *sql.DB, writer *dbpkg.Worker, clk clock.Clock) *SubjectStore {
	if clk == nil {
		clk = clock.Real()
	}
	return &SubjectStore{db: db, writer: writer, clock: clk}
}

const subjectColumns = `subject_id, name, department, schedule, active, created_at_ms`

func (s *SubjectStore) FindSubject(ctx context.Context, id string) (store.Subject, bool, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return store.Subject{}, false, nil
	}

	row := s.db.QueryRowContext(ctx, `SELECT `+subjectColumns+` FROM subjects WHERE subject_id = ?;`, id)
	sub, err := scanSubject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Subject{}, false, nil
	}
	if err != nil {
		return store.Subject{}, false, fmt.Errorf("FindSubject: %w", err)
	}
	return sub, true, nil
}

func (s *SubjectStore) EnsureSubject(ctx context.Context, sub store.Subject) (bool, error) {
	sub.ID = strings.TrimSpace(sub.ID)
	if sub.ID == "" {
		return false, store.ErrInvalidSubjectID
	}
	if sub.Schedule == "" {
		sub.Schedule = types.ScheduleStandard
	}
	nowMs := s.clock.Now().UTC().UnixMilli()
	if !sub.CreatedAt.IsZero() {
		nowMs = sub.CreatedAt.UTC().UnixMilli()
	}

	var created bool
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		var err error
		created, err = ensureSubject(ctx, tx, sub, nowMs)
		return err
	})
	return created, err
}

func (s *SubjectStore) ListSubjects(ctx context.Context) ([]store.Subject, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+subjectColumns+` FROM subjects ORDER BY subject_id;`)
	if err != nil {
		return nil, fmt.Errorf("ListSubjects: %w", err)
	}
	defer rows.Close()

	var out []store.Subject
	for rows.Next() {
		sub, err := scanSubject(rows)
		if err != nil {
			return nil, fmt.Errorf("ListSubjects scan: %w", err)
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSubject(sc scanner) (store.Subject, error) {
	var (
		sub       store.Subject
		schedule  string
		active    int
		createdMs int64
	)
	if err := sc.Scan(&sub.ID, &sub.Name, &sub.Department, &schedule, &active, &createdMs); err != nil {
		return store.Subject{}, err
	}
	sub.Schedule = types.ParseScheduleVariant(schedule)
	sub.Active = active == 1
	sub.CreatedAt = time.UnixMilli(createdMs).UTC()
	return sub, nil
}
