// Package publish fans attendance notifications out to live clients.
package publish

import (
	"time"

	"github.com/BrandonDHaskell/Portunus/attendance/internal/portunus/types"
)

// Name identifies a notification on the wire.
type Name string

const (
	AttendanceRecord   Name = "attendance_record"
	AccessDenied       Name = "access_denied"
	ConnectionStatus   Name = "connection_status"
	ConnectionRestored Name = "connection_restored"
	NewSubjectCreated  Name = "new_subject_created"
	DoorStatus         Name = "door_status"

	// Sent only to a dashboard client when it connects.
	Status          Name = "status"
	DashboardUpdate Name = "dashboard_update"
)

// Notification is one named message. Data holds one of the payload types
// below.
type Notification struct {
	Name Name      `json:"event"`
	At   time.Time `json:"at"`
	Data any       `json:"data"`
}

// Publisher accepts notifications. Implementations must not block the
// caller for long; the monitor loop publishes inline.
type Publisher interface {
	Publish(n Notification)
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(Notification)

func (f PublisherFunc) Publish(n Notification) { f(n) }

// Multi publishes to every member in order.
type Multi []Publisher

func (m Multi) Publish(n Notification) {
	for _, p := range m {
		if p != nil {
			p.Publish(n)
		}
	}
}

// Discard drops every notification.
var Discard Publisher = PublisherFunc(func(Notification) {})

// ── Payloads ─────────────────────────────────────────────────────────────────

type AttendancePayload struct {
	SubjectID  string                `json:"subject_id"`
	Name       string                `json:"name"`
	Department string                `json:"department"`
	Schedule   types.ScheduleVariant `json:"schedule"`
	Kind       types.EventKind       `json:"kind"`
	Timestamp  string                `json:"timestamp"`
	Method     types.VerifyMethod    `json:"method"`
	ReaderNo   int                   `json:"reader_no"`
}

type DeniedPayload struct {
	SubjectID string             `json:"subject_id"`
	Timestamp string             `json:"timestamp"`
	Method    types.VerifyMethod `json:"method"`
	ReaderNo  int                `json:"reader_no"`
}

type ConnectionPayload struct {
	Connected bool   `json:"connected"`
	Retrying  bool   `json:"retrying"`
	Attempt   int    `json:"attempt"`
	Reason    string `json:"reason,omitempty"`
	Category  string `json:"category,omitempty"`
}

type RestoredPayload struct {
	AfterFailures int    `json:"after_failures"`
	Timestamp     string `json:"timestamp"`
}

type NewSubjectPayload struct {
	SubjectID  string `json:"subject_id"`
	Name       string `json:"name"`
	Department string `json:"department"`
}

type DoorPayload struct {
	Open      bool   `json:"open"`
	ReaderNo  int    `json:"reader_no"`
	Timestamp string `json:"timestamp"`
}
