package session

import (
	"context"

	"github.com/lowaak/smart-trainer/cable-trainer-app/internal/history"
	"github.com/lowaak/smart-trainer/cable-trainer-app/internal/routine"
	"github.com/lowaak/smart-trainer/cable-trainer-app/internal/telemetry"
)

// Device is the cable trainer driver. Commands may block on the transport
// and may fail; subscriptions return an unsubscribe func. Callbacks are
// invoked from the driver's goroutine, one at a time, in arrival order.
type Device interface {
	SendStart(ctx context.Context) error
	SendStop(ctx context.Context) error
	SendReset(ctx context.Context) error
	SendClearFault(ctx context.Context) error
	SendWeight(ctx context.Context, kgPerCable float64) error
	SendProgramMode(ctx context.Context, mode routine.ProgramMode) error

	SubscribeTelemetry(fn func(telemetry.Sample)) func()
	SubscribeReps(fn func(telemetry.RepEvent)) func()
	// SubscribeConnectionErrors reports link failures to the session.
	SubscribeConnectionErrors(fn func(error)) func()
}

// RoutineRepository is durable routine and superset storage.
type RoutineRepository interface {
	ListRoutines(ctx context.Context) ([]*routine.Routine, error)
	GetRoutine(ctx context.Context, id string) (*routine.Routine, error)
	SaveRoutine(ctx context.Context, r *routine.Routine) error
	DeleteRoutine(ctx context.Context, id string) error
	SaveSuperset(ctx context.Context, s routine.Superset) error
	DeleteSuperset(ctx context.Context, routineID, supersetID string) error
}

// SessionRepository is the append-only workout log plus the PR table.
type SessionRepository interface {
	SaveSession(ctx context.Context, rec history.SessionRecord) error
	SaveCompletedSet(ctx context.Context, set history.CompletedSet) error
	PersonalRecord(ctx context.Context, exerciseID string, mode routine.ProgramMode) (history.PersonalRecord, bool, error)
	SavePersonalRecord(ctx context.Context, pr history.PersonalRecord) error
}
