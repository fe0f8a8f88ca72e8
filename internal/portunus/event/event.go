// Package event decodes device notification frames into a closed set of
// access-event kinds.
package event

import (
	"time"

	"github.com/BrandonDHaskell/Portunus/attendance/internal/portunus/types"
)

// Kind is the tagged variant produced by the decoder. Consumers switch on
// it exhaustively.
type Kind int

const (
	KindUnrecognized Kind = iota
	KindAuthorized
	KindDenied
	KindDoorOpen
	KindDoorClosed
)

func (k Kind) String() string {
	switch k {
	case KindAuthorized:
		return "authorized"
	case KindDenied:
		return "denied"
	case KindDoorOpen:
		return "door_open"
	case KindDoorClosed:
		return "door_closed"
	default:
		return "unrecognized"
	}
}

// Device sub-event codes carried in AccessControllerEvent.subEventType.
const (
	SubTypeDoorOpen   = 21
	SubTypeDoorClosed = 22
	SubTypeAuthorized = 38
	SubTypeDenied     = 39
)

// UnknownSubject is used for denied events that carry no subject id.
const UnknownSubject = "unknown"

// Event is one decoded access event.
type Event struct {
	Kind Kind

	// SubjectID is empty on an authorized event whose frame carried no id;
	// such events are dropped by the processor.
	SubjectID string
	Name      string

	ReaderNo  int
	VerifyRaw string
	Method    types.VerifyMethod

	// OccurredAt is second-precision wall time in the configured location.
	OccurredAt time.Time

	// DeviceTime is false when OccurredAt came from the local clock.
	DeviceTime bool
}

// Skip reports whether the event carries nothing the pipeline acts on.
func (e Event) Skip() bool { return e.Kind == KindUnrecognized }
