package service

import (
	"context"
	"strings"

	"github.com/BrandonDHaskell/Portunus/attendance/internal/portunus/store"
	"github.com/BrandonDHaskell/Portunus/attendance/internal/portunus/types"
)

const DefaultDepartment = "General"

type DirectoryConfig struct {
	// DefaultDepartment is assigned to auto-provisioned subjects.
	DefaultDepartment string

	// MultiSegmentDepartments are departments whose subjects use the
	// multi-segment schedule regardless of their stored variant.
	// Matching is case-insensitive.
	MultiSegmentDepartments []string
}

// Directory owns subject lookup and auto-provisioning.
type Directory struct {
	store      store.SubjectStore
	department string
	multi      map[string]struct{}
}

func NewDirectory(st store.SubjectStore, cfg DirectoryConfig) *Directory {
	dept := strings.TrimSpace(cfg.DefaultDepartment)
	if dept == "" {
		dept = DefaultDepartment
	}
	multi := make(map[string]struct{}, len(cfg.MultiSegmentDepartments))
	for _, d := range cfg.MultiSegmentDepartments {
		if d = strings.ToLower(strings.TrimSpace(d)); d != "" {
			multi[d] = struct{}{}
		}
	}
	return &Directory{store: st, department: dept, multi: multi}
}

func (d *Directory) Lookup(ctx context.Context, id string) (store.Subject, bool, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return store.Subject{}, false, nil
	}
	return d.store.FindSubject(ctx, id)
}

// EnsureKnown returns the subject for id, creating a default entry when
// none exists. name, when non-empty, is used for the new entry. created
// is true only if this call inserted the row.
func (d *Directory) EnsureKnown(ctx context.Context, id, name string) (store.Subject, bool, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return store.Subject{}, false, store.ErrInvalidSubjectID
	}

	sub, ok, err := d.store.FindSubject(ctx, id)
	if err != nil || ok {
		return sub, false, err
	}

	sub = store.Subject{
		ID:         id,
		Name:       DefaultName(id, name),
		Department: d.department,
		Schedule:   types.ScheduleStandard,
		Active:     true,
	}
	created, err := d.store.EnsureSubject(ctx, sub)
	if err != nil {
		return store.Subject{}, false, err
	}
	if !created {
		// Lost a race with another writer; return what they stored.
		if found, ok, err := d.store.FindSubject(ctx, id); err == nil && ok {
			return found, false, nil
		}
	}
	return sub, created, nil
}

// Schedule returns the variant the resolver applies to s.
func (d *Directory) Schedule(s store.Subject) types.ScheduleVariant {
	if s.Schedule == types.ScheduleMultiSegment {
		return types.ScheduleMultiSegment
	}
	if _, ok := d.multi[strings.ToLower(strings.TrimSpace(s.Department))]; ok {
		return types.ScheduleMultiSegment
	}
	return types.ScheduleStandard
}

func (d *Directory) List(ctx context.Context) ([]store.Subject, error) {
	return d.store.ListSubjects(ctx)
}

// DefaultName is the display name given to an auto-provisioned subject.
func DefaultName(id, reported string) string {
	if n := strings.TrimSpace(reported); n != "" {
		return n
	}
	return "Employee " + id
}

// View converts a subject for dashboard clients.
func (d *Directory) View(s store.Subject) types.SubjectView {
	return types.SubjectView{
		ID:         s.ID,
		Name:       s.Name,
		Department: s.Department,
		Schedule:   d.Schedule(s),
		Active:     s.Active,
	}
}
