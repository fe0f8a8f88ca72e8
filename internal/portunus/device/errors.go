package device

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
)

// StatusError is a non-2xx answer from the device.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("device returned HTTP %d", e.Code)
	}
	return fmt.Sprintf("device returned HTTP %d: %s", e.Code, e.Body)
}

// ErrStale is reported when an open stream stayed silent past the
// liveness window and the status probe failed.
var ErrStale = errors.New("stream stale: no frames within liveness window")

// Category classifies transport failures for logs and connection
// notifications.
type Category int

const (
	CategoryUnknown Category = iota
	CategoryNetwork
	CategoryTimeout
	CategoryAuth
	CategoryStatus
	CategoryCanceled
)

func (c Category) String() string {
	switch c {
	case CategoryNetwork:
		return "network"
	case CategoryTimeout:
		return "timeout"
	case CategoryAuth:
		return "auth"
	case CategoryStatus:
		return "status"
	case CategoryCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// Classify maps err onto a Category. A nil error is CategoryUnknown.
func Classify(err error) Category {
	if err == nil {
		return CategoryUnknown
	}

	var se *StatusError
	if errors.As(err, &se) {
		if se.Code == http.StatusUnauthorized || se.Code == http.StatusForbidden {
			return CategoryAuth
		}
		return CategoryStatus
	}

	switch {
	case errors.Is(err, context.Canceled):
		return CategoryCanceled
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, ErrStale):
		return CategoryTimeout
	}

	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return CategoryTimeout
	}
	var oe *net.OpError
	if errors.As(err, &oe) {
		return CategoryNetwork
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return CategoryNetwork
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "deadline"):
		return CategoryTimeout
	case strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "connection reset"),
		strings.Contains(msg, "broken pipe"),
		strings.Contains(msg, "no such host"),
		strings.Contains(msg, "network is unreachable"):
		return CategoryNetwork
	case strings.Contains(msg, "unauthorized"):
		return CategoryAuth
	}
	return CategoryUnknown
}
