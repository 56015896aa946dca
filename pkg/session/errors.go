package session

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidGeometry is returned for a non-positive width or height
	ErrInvalidGeometry = errors.New("invalid geometry")
	// ErrClosed is returned by every operation after Shutdown
	ErrClosed = errors.New("session closed")
	// ErrReentrant is returned when Feed or Snapshot is called from inside an
	// update delivered by the engine
	ErrReentrant = errors.New("session called from inside an engine update")
	// ErrEngineInit matches every InitError
	ErrEngineInit = errors.New("engine initialization failed")
)

// InitError reports a failure while bringing up a session
type InitError struct {
	Op    string
	Cause error
}

// Error implements the error interface
func (e *InitError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("session %s failed: %v", e.Op, e.Cause)
	}
	return fmt.Sprintf("session %s failed", e.Op)
}

// Unwrap returns the underlying cause
func (e *InitError) Unwrap() error { return e.Cause }

// Is makes errors.Is(err, ErrEngineInit) hold for any InitError
func (e *InitError) Is(target error) bool { return target == ErrEngineInit }

func newInitError(op string, cause error) *InitError {
	return &InitError{Op: op, Cause: cause}
}
