package session

import (
	"errors"
	"fmt"
	"log"
)

var (
	// ErrEmptyRoutine is returned when loading a routine without exercises.
	ErrEmptyRoutine = errors.New("routine has no exercises")
	// ErrBlockedByActiveSet is returned by navigation while a set is running.
	ErrBlockedByActiveSet = errors.New("stop the current set first")
	// ErrNoRoutineLoaded is returned by routine operations before a routine is loaded.
	ErrNoRoutineLoaded = errors.New("no routine loaded")
	// ErrNotInSetReady is returned by set-ready operations outside the SetReady flow.
	ErrNotInSetReady = errors.New("not in set ready")
	// ErrWorkoutInProgress is returned when starting while another set is underway.
	ErrWorkoutInProgress = errors.New("workout already in progress")
	// ErrInvalidPosition flags a position that does not exist in the loaded routine.
	ErrInvalidPosition = errors.New("invalid routine position")
	// ErrExecutorStopped is returned by calls made after the session was closed.
	ErrExecutorStopped = errors.New("session executor stopped")
)

// StrictInvariants makes invariant violations panic. Tests turn it on.
var StrictInvariants = false

// invariant reports a programmer error. It logs and returns ErrInvalidPosition
// wrapped with msg, or panics when StrictInvariants is set.
func invariant(logger *log.Logger, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	if StrictInvariants {
		panic("session invariant violated: " + msg)
	}
	logger.Printf("Session: invariant violated: %s", msg)
	return fmt.Errorf("%w: %s", ErrInvalidPosition, msg)
}
