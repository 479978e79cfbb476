package collaboration

import (
	"errors"
	"fmt"

	"collab-engine/internal/services/ot"
)

var (
	// ErrSessionNotFound is returned for operations on unknown session IDs
	ErrSessionNotFound = errors.New("session not found")

	// ErrAlreadyExists is returned when creating a session ID that is in use
	ErrAlreadyExists = errors.New("session already exists")

	// ErrInvalidOperation marks an operation that fails bounds or shape checks.
	// It is the same value the OT engine wraps, so errors.Is works on both.
	ErrInvalidOperation = ot.ErrInvalidOperation

	// ErrStaleOperation is returned when an operation's base version lags
	// too far behind the session's current version
	ErrStaleOperation = errors.New("stale operation")

	// ErrConflictDetected is matched by *ConflictError
	ErrConflictDetected = errors.New("conflict detected")

	// ErrBusy is returned when the session lock could not be acquired in time
	ErrBusy = errors.New("session busy")

	// ErrCursorNotFound is returned when a participant has no cursor yet
	ErrCursorNotFound = errors.New("cursor not found")
)

// ConflictError is returned when the reject policy refuses a conflicting
// operation. Nothing was applied.
type ConflictError struct {
	SessionID       string
	Conflict        *ot.Conflict
	ResolvedContent string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("session %s: %v: %s", e.SessionID, ErrConflictDetected, e.Conflict)
}

// Is lets errors.Is(err, ErrConflictDetected) match.
func (e *ConflictError) Is(target error) bool {
	return target == ErrConflictDetected
}
