package simulator

import (
	"errors"
	"fmt"
)

// SimError is a custom error type for simulation errors
type SimError struct {
	Message string
}

func (e SimError) Error() string {
	return fmt.Sprintf("simulation error: %s", e.Message)
}

// ErrInvalidConfig creates an error for invalid configuration
func ErrInvalidConfig(msg string) error {
	return SimError{Message: fmt.Sprintf("invalid config: %s", msg)}
}

var (
	// ErrNonLinearTime is returned when the queue yields a bucket earlier
	// than the current time. It aborts the run.
	ErrNonLinearTime = errors.New("non-linear time")
	// ErrInvalidProbability is returned when a dynamics probability is
	// outside [0, 1].
	ErrInvalidProbability = errors.New("invalid probability")
	// ErrUnknownEvent is returned when dispatch meets an event type it has no
	// handler for.
	ErrUnknownEvent = errors.New("unknown event")
	// ErrNoProtocol is returned when nodes are created before NodeType.
	ErrNoProtocol = errors.New("no routing protocol bound to nodes")

	// ErrMessageDropped is raised by handlers whose target node died or left
	// the sender's range after the event was scheduled. Dispatch records it
	// and moves on; it never aborts a run.
	ErrMessageDropped = errors.New("message dropped")
)

// NonLinearTimeError carries the two times that violated monotonicity
type NonLinearTimeError struct {
	Now  int64
	Time int64
}

func (e *NonLinearTimeError) Error() string {
	return fmt.Sprintf("%s: bucket at t=%d popped at t=%d", ErrNonLinearTime, e.Time, e.Now)
}

func (e *NonLinearTimeError) Unwrap() error { return ErrNonLinearTime }

// dropped wraps ErrMessageDropped with the reason
func dropped(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrMessageDropped, fmt.Sprintf(format, args...))
}
