package domain

import (
	"errors"
	"fmt"
)

// ErrInvalidConfig is wrapped by every EngineConfig validation failure.
var ErrInvalidConfig = errors.New("invalid engine config")

// ValidationError reports a malformed hazard registry entry.
type ValidationError struct {
	HazardID string
	Index    int
	Reason   string
}

func (e *ValidationError) Error() string {
	if e.HazardID == "" {
		return fmt.Sprintf("hazard #%d: %s", e.Index, e.Reason)
	}
	return fmt.Sprintf("hazard %q (#%d): %s", e.HazardID, e.Index, e.Reason)
}

// ErrorKind classifies location source failures.
type ErrorKind int

const (
	ErrPermissionDenied ErrorKind = iota + 1
	ErrTimeout
	ErrUnavailable
)

func (k ErrorKind) String() string {
	switch k {
	case ErrPermissionDenied:
		return "permission_denied"
	case ErrTimeout:
		return "timeout"
	case ErrUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// LocationError is surfaced by location sources. It never ends a subscription.
type LocationError struct {
	Kind ErrorKind
	Err  error
}

// NewLocationError wraps err with a kind.
func NewLocationError(kind ErrorKind, err error) *LocationError {
	return &LocationError{Kind: kind, Err: err}
}

func (e *LocationError) Error() string {
	if e.Err == nil {
		return "location " + e.Kind.String()
	}
	return fmt.Sprintf("location %s: %v", e.Kind, e.Err)
}

func (e *LocationError) Unwrap() error { return e.Err }

// KindOf extracts the ErrorKind from an error chain.
func KindOf(err error) (ErrorKind, bool) {
	var le *LocationError
	if errors.As(err, &le) {
		return le.Kind, true
	}
	return 0, false
}
