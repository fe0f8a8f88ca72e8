package types

import "strings"

// EventKind classifies an authorized access as the subject arriving or
// leaving.
type EventKind string

const (
	KindEntry EventKind = "entry"
	KindExit  EventKind = "exit"
)

// Opposite returns the kind that strictly alternates with k.
func (k EventKind) Opposite() EventKind {
	if k == KindEntry {
		return KindExit
	}
	return KindEntry
}

// VerifyMethod is how the terminal identified the subject.
type VerifyMethod string

const (
	VerifyFingerprint VerifyMethod = "fingerprint"
	VerifyCard        VerifyMethod = "card"
	VerifyFace        VerifyMethod = "face"
	VerifyUnknown     VerifyMethod = "unknown"
)

// ScheduleVariant selects the resolver rule applied to a subject.
type ScheduleVariant string

const (
	ScheduleStandard     ScheduleVariant = "standard"
	ScheduleMultiSegment ScheduleVariant = "multi_segment"
)

// ParseScheduleVariant accepts the stored spelling plus a few aliases.
// Anything unrecognised is treated as standard.
func ParseScheduleVariant(s string) ScheduleVariant {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "multi_segment", "multi-segment", "multisegment", "split":
		return ScheduleMultiSegment
	default:
		return ScheduleStandard
	}
}

// Outcome is the authorization result stored with each record.
type Outcome string

const (
	OutcomeAuthorized Outcome = "authorized"
)

// AttendanceView is one ledger record as exposed to dashboard clients.
type AttendanceView struct {
	ID         string       `json:"id"`
	SubjectID  string       `json:"subject_id"`
	Name       string       `json:"name,omitempty"`
	Department string       `json:"department,omitempty"`
	Kind       EventKind    `json:"kind"`
	OccurredAt string       `json:"occurred_at"`
	ReaderNo   int          `json:"reader_no"`
	Method     VerifyMethod `json:"method"`
	Outcome    Outcome      `json:"outcome"`
}

// SubjectView is the directory entry exposed to dashboard clients.
type SubjectView struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Department string          `json:"department"`
	Schedule   ScheduleVariant `json:"schedule"`
	Active     bool            `json:"active"`
}
