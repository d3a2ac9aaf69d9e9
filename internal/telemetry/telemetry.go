// Package telemetry holds the typed values exchanged between the device
// drivers, the session core and its notification sinks.
package telemetry

import "time"

// Sample is one cable monitor reading. Position is in millimetres of cable
// travel, Velocity in mm/s and Force in kg per cable.
type Sample struct {
	Timestamp time.Time
	Position  float64
	Velocity  float64
	Force     float64
}

// RepEvent is the device's own rep notification. The counters are cumulative
// since the last start command and wrap at 16 bits; the core only uses their
// increments.
type RepEvent struct {
	Timestamp   time.Time
	TopCounter  int
	BottomCount int
}

// HapticEvent names a cue for the haptic sink.
type HapticEvent int

const (
	HapticRepCompleted HapticEvent = iota
	HapticWarmupComplete
	HapticSetComplete
	HapticWorkoutComplete
	HapticRestEnding
	HapticCountdownTick
	HapticPersonalRecord
	HapticError
)

func (h HapticEvent) String() string {
	switch h {
	case HapticRepCompleted:
		return "rep_completed"
	case HapticWarmupComplete:
		return "warmup_complete"
	case HapticSetComplete:
		return "set_complete"
	case HapticWorkoutComplete:
		return "workout_complete"
	case HapticRestEnding:
		return "rest_ending"
	case HapticCountdownTick:
		return "countdown_tick"
	case HapticPersonalRecord:
		return "personal_record"
	case HapticError:
		return "error"
	default:
		return "unknown"
	}
}

// WarningSource tells the user which subsystem produced a warning.
type WarningSource string

const (
	WarningSourceDevice     WarningSource = "device"
	WarningSourceStorage    WarningSource = "storage"
	WarningSourceNavigation WarningSource = "navigation"
	WarningSourceConnection WarningSource = "connection"
)

// Warning is a user-facing, non-blocking message.
type Warning struct {
	Source  WarningSource
	Message string
	Err     error
}

func (w Warning) String() string {
	if w.Err != nil {
		return string(w.Source) + ": " + w.Message + ": " + w.Err.Error()
	}
	return string(w.Source) + ": " + w.Message
}
