package event

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/BrandonDHaskell/Portunus/attendance/internal/clock"
)

// TimestampSource selects where an event's instant comes from.
type TimestampSource string

const (
	// SourceDevice uses the frame's dateTime, falling back to the local
	// clock when it is absent or unparseable.
	SourceDevice TimestampSource = "device"

	// SourceReceipt always stamps events with the local clock at decode
	// time.
	SourceReceipt TimestampSource = "receipt"
)

// ParseTimestampSource maps a config value onto a TimestampSource.
func ParseTimestampSource(s string) (TimestampSource, bool) {
	switch TimestampSource(strings.ToLower(strings.TrimSpace(s))) {
	case "", SourceDevice:
		return SourceDevice, true
	case SourceReceipt:
		return SourceReceipt, true
	default:
		return "", false
	}
}

// Layouts accepted for dateTime, tried in order. Zone-less layouts are
// interpreted in the decoder's location.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// Decoder turns frames into Events. It is stateless apart from its clock
// and is safe for concurrent use.
type Decoder struct {
	clock  clock.Clock
	loc    *time.Location
	source TimestampSource
}

// NewDecoder returns a Decoder. A nil loc means time.Local.
func NewDecoder(clk clock.Clock, loc *time.Location, source TimestampSource) *Decoder {
	if loc == nil {
		loc = time.Local
	}
	if source == "" {
		source = SourceDevice
	}
	return &Decoder{clock: clk, loc: loc, source: source}
}

// wire mirrors the fields of an alertStream notification the decoder reads.
type wire struct {
	DateTime string      `json:"dateTime"`
	ACE      *wireAccess `json:"AccessControllerEvent"`
}

type wireAccess struct {
	SubEventType      json.RawMessage `json:"subEventType"`
	EmployeeNoString  string          `json:"employeeNoString"`
	EmployeeNo        json.RawMessage `json:"employeeNo"`
	CardReaderNo      json.RawMessage `json:"cardReaderNo"`
	CurrentVerifyMode json.RawMessage `json:"currentVerifyMode"`
	Name              string          `json:"name"`
}

// Decode classifies frame. It never fails: malformed JSON and
// unrecognised shapes yield KindUnrecognized.
func (d *Decoder) Decode(frame []byte) Event {
	var w wire
	if err := json.Unmarshal(frame, &w); err != nil || w.ACE == nil {
		return Event{Kind: KindUnrecognized}
	}

	code, ok := rawInt(w.ACE.SubEventType)
	if !ok {
		return Event{Kind: KindUnrecognized}
	}

	var ev Event
	switch code {
	case SubTypeAuthorized:
		ev.Kind = KindAuthorized
	case SubTypeDenied:
		ev.Kind = KindDenied
	case SubTypeDoorOpen:
		ev.Kind = KindDoorOpen
	case SubTypeDoorClosed:
		ev.Kind = KindDoorClosed
	default:
		return Event{Kind: KindUnrecognized}
	}

	ev.SubjectID = subjectID(w.ACE)
	if ev.Kind == KindDenied && ev.SubjectID == "" {
		ev.SubjectID = UnknownSubject
	}
	ev.Name = strings.TrimSpace(w.ACE.Name)

	ev.ReaderNo = 1
	if n, ok := rawInt(w.ACE.CardReaderNo); ok {
		ev.ReaderNo = n
	}

	ev.VerifyRaw = rawString(w.ACE.CurrentVerifyMode)
	ev.Method = DecodeVerifyMethod(ev.VerifyRaw)

	ev.OccurredAt, ev.DeviceTime = d.instant(w.DateTime)
	return ev
}

func (d *Decoder) instant(raw string) (time.Time, bool) {
	if d.source == SourceDevice {
		if t, ok := parseDeviceTime(raw, d.loc); ok {
			return t, true
		}
	}
	return d.clock.Now().In(d.loc).Truncate(time.Second), false
}

func parseDeviceTime(raw string, loc *time.Location) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return t.In(loc).Truncate(time.Second), true
		}
	}
	return time.Time{}, false
}

func subjectID(a *wireAccess) string {
	if id := strings.TrimSpace(a.EmployeeNoString); id != "" {
		return id
	}
	// Older firmware sends a numeric employeeNo only.
	if n, ok := rawInt(a.EmployeeNo); ok && n > 0 {
		return strconv.Itoa(n)
	}
	return ""
}

// rawInt accepts a JSON number or a quoted integer.
func rawInt(raw json.RawMessage) (int, bool) {
	s := rawString(raw)
	if s == "" {
		return 0, false
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		f, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil || f != float64(int(f)) {
			return 0, false
		}
		return int(f), true
	}
	return n, true
}

// rawString returns a JSON string's contents, or the literal text of any
// other scalar. null and absent values yield "".
func rawString(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return ""
		}
		return strings.TrimSpace(s)
	}
	if raw[0] == '{' || raw[0] == '[' {
		return ""
	}
	return string(raw)
}
