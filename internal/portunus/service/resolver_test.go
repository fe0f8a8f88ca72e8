package service_test

import (
	"testing"
	"time"

	"github.com/BrandonDHaskell/Portunus/attendance/internal/portunus/types"
)

// ── Standard schedule ────────────────────────────────────────────────────────

func TestResolve_FirstRecordOfDayIsEntry(t *testing.T) {
	f := newFixture(t)

	kind, err := f.resolver.Resolve(t.Context(), "42", at(3, 9, 0, 0))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if kind != types.KindEntry {
		t.Errorf("expected entry, got %s", kind)
	}
}

func TestResolve_StandardAlternates(t *testing.T) {
	f := newFixture(t)
	f.putSubject("42", "General", types.ScheduleStandard)

	want := []types.EventKind{types.KindEntry, types.KindExit, types.KindEntry, types.KindExit}
	for i, w := range want {
		when := at(3, 9+i, 0, 0)
		kind, err := f.resolver.Resolve(t.Context(), "42", when)
		if err != nil {
			t.Fatalf("Resolve #%d: %v", i, err)
		}
		if kind != w {
			t.Fatalf("record #%d: expected %s, got %s", i, w, kind)
		}
		f.seed(t, "42", kind, when)
	}
}

func TestResolve_NewDayStartsWithEntry(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "42", types.KindEntry, at(3, 9, 0, 0))

	kind, err := f.resolver.Resolve(t.Context(), "42", at(4, 9, 0, 0))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if kind != types.KindEntry {
		t.Errorf("expected entry on a new day, got %s", kind)
	}
}

func TestResolve_DayUsesConfiguredLocation(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "42", types.KindEntry, at(3, 23, 0, 0))

	// 05:30 UTC on the 4th is still 23:30 on the 3rd in loc.
	kind, err := f.resolver.Resolve(t.Context(), "42", time.Date(2025, 3, 4, 5, 30, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if kind != types.KindExit {
		t.Errorf("expected exit on the same local day, got %s", kind)
	}
}

func TestResolve_SeesRecordsWrittenOutsideTheMonitor(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "42", types.KindEntry, at(3, 8, 0, 0))

	// An admin inserts a manual exit between device events.
	f.seed(t, "42", types.KindExit, at(3, 12, 0, 0))

	kind, err := f.resolver.Resolve(t.Context(), "42", at(3, 13, 0, 0))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if kind != types.KindEntry {
		t.Errorf("expected entry after the manual exit, got %s", kind)
	}
}

// ── Multi-segment schedule ───────────────────────────────────────────────────

func TestResolve_MultiSegment(t *testing.T) {
	tests := []struct {
		name string
		last types.EventKind
		when time.Time
		want types.EventKind
	}{
		{"friday early close forces exit", types.KindExit, at(7, 15, 50, 0), types.KindExit},
		{"friday early close start is inclusive", types.KindExit, at(7, 15, 45, 0), types.KindExit},
		{"friday after window alternates", types.KindExit, at(7, 18, 0, 1), types.KindEntry},
		{"monday 15:50 alternates", types.KindExit, at(3, 15, 50, 0), types.KindEntry},
		{"monday close forces exit", types.KindExit, at(3, 16, 50, 0), types.KindExit},
		{"thursday close end is inclusive", types.KindExit, at(6, 18, 0, 0), types.KindExit},
		{"morning window after entry alternates", types.KindEntry, at(3, 7, 30, 0), types.KindExit},
		{"morning window after exit is entry", types.KindExit, at(3, 7, 30, 0), types.KindEntry},
		{"break window alternates", types.KindExit, at(3, 9, 30, 0), types.KindEntry},
		{"meal window alternates", types.KindEntry, at(3, 12, 40, 0), types.KindExit},
		{"saturday has no override", types.KindExit, at(8, 17, 0, 0), types.KindEntry},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.putSubject("7", "Operations", types.ScheduleMultiSegment)
			f.seed(t, "7", tt.last, tt.when.Add(-time.Hour))

			kind, err := f.resolver.Resolve(t.Context(), "7", tt.when)
			if err != nil {
				t.Fatalf("Resolve: %v", err)
			}
			if kind != tt.want {
				t.Errorf("expected %s, got %s", tt.want, kind)
			}
		})
	}
}

func TestResolve_MultiSegmentFirstOfDayIsEntry(t *testing.T) {
	f := newFixture(t)
	f.putSubject("7", "Operations", types.ScheduleMultiSegment)

	// Inside the closing window, but nothing recorded today.
	kind, err := f.resolver.Resolve(t.Context(), "7", at(7, 16, 0, 0))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if kind != types.KindEntry {
		t.Errorf("expected entry, got %s", kind)
	}
}

func TestResolve_DepartmentSelectsMultiSegment(t *testing.T) {
	f := newFixture(t, "security")
	f.putSubject("9", "Security", types.ScheduleStandard)
	f.seed(t, "9", types.KindExit, at(7, 15, 0, 0))

	d, err := f.resolver.Decide(t.Context(), "9", at(7, 15, 50, 0))
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if d.Schedule != types.ScheduleMultiSegment {
		t.Errorf("expected multi_segment, got %s", d.Schedule)
	}
	if d.Kind != types.KindExit {
		t.Errorf("expected forced exit, got %s", d.Kind)
	}
	if d.Rule != "early_close" {
		t.Errorf("expected rule early_close, got %q", d.Rule)
	}
}

func TestResolve_StandardIgnoresWindows(t *testing.T) {
	f := newFixture(t)
	f.putSubject("5", "General", types.ScheduleStandard)
	f.seed(t, "5", types.KindExit, at(7, 15, 0, 0))

	kind, err := f.resolver.Resolve(t.Context(), "5", at(7, 15, 50, 0))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if kind != types.KindEntry {
		t.Errorf("expected entry, got %s", kind)
	}
}
