package store

import (
	"context"
	"errors"
	"time"

	"github.com/BrandonDHaskell/Portunus/attendance/internal/portunus/types"
)

var (
	ErrInvalidSubjectID = errors.New("subject_id is required")

	// ErrUnknownSubject is returned when a record references a subject
	// that was never provisioned.
	ErrUnknownSubject = errors.New("subject not found")
)

// Subject is a tracked person. Subjects are deactivated, never deleted.
type Subject struct {
	ID         string
	Name       string
	Department string
	Schedule   types.ScheduleVariant
	Active     bool
	CreatedAt  time.Time
}

// SubjectStore is the mutable directory of known subjects.
type SubjectStore interface {
	// FindSubject returns the subject and true, or false when absent.
	FindSubject(ctx context.Context, id string) (Subject, bool, error)

	// EnsureSubject inserts s unless a subject with the same id already
	// exists. Existing rows are not modified. It reports whether a row
	// was created.
	EnsureSubject(ctx context.Context, s Subject) (bool, error)

	// ListSubjects returns all subjects ordered by id.
	ListSubjects(ctx context.Context) ([]Subject, error)
}
