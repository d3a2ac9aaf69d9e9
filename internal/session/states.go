package session

import (
	"fmt"
	"slices"
	"time"

	"github.com/lowaak/smart-trainer/cable-trainer-app/internal/history"
	"github.com/lowaak/smart-trainer/cable-trainer-app/internal/routine"
)

// WorkoutPhase is the lifecycle position of the active session.
type WorkoutPhase int

const (
	PhaseIdle WorkoutPhase = iota
	PhaseInitializing
	PhaseCountdown
	PhaseActive
	PhaseSetSummary
	PhaseResting
	PhaseCompleted
)

func (p WorkoutPhase) String() string {
	switch p {
	case PhaseIdle:
		return "Idle"
	case PhaseInitializing:
		return "Initializing"
	case PhaseCountdown:
		return "Countdown"
	case PhaseActive:
		return "Active"
	case PhaseSetSummary:
		return "SetSummary"
	case PhaseResting:
		return "Resting"
	case PhaseCompleted:
		return "Completed"
	default:
		return fmt.Sprintf("WorkoutPhase(%d)", int(p))
	}
}

// WorkoutState is the published workout lifecycle value. SecondsRemaining is
// meaningful in Countdown and Resting; Summary is set in SetSummary.
type WorkoutState struct {
	Phase            WorkoutPhase
	SecondsRemaining int
	Summary          *SetSummary
}

// CanStartIndependent reports whether a new independent workout may start.
func (s WorkoutState) CanStartIndependent() bool {
	return s.Phase == PhaseIdle || s.Phase == PhaseCompleted
}

func (s WorkoutState) String() string {
	switch s.Phase {
	case PhaseCountdown, PhaseResting:
		return fmt.Sprintf("%s(%d)", s.Phase, s.SecondsRemaining)
	default:
		return s.Phase.String()
	}
}

func idleState() WorkoutState         { return WorkoutState{Phase: PhaseIdle} }
func initializingState() WorkoutState { return WorkoutState{Phase: PhaseInitializing} }
func countdownState(seconds int) WorkoutState {
	return WorkoutState{Phase: PhaseCountdown, SecondsRemaining: seconds}
}
func activeState() WorkoutState { return WorkoutState{Phase: PhaseActive} }
func restingState(seconds int) WorkoutState {
	return WorkoutState{Phase: PhaseResting, SecondsRemaining: seconds}
}
func completedState() WorkoutState { return WorkoutState{Phase: PhaseCompleted} }

func summaryState(summary SetSummary) WorkoutState {
	return WorkoutState{Phase: PhaseSetSummary, Summary: &summary}
}

// SetSummary describes a finished set.
type SetSummary struct {
	SessionID        string
	ExerciseName     string
	ExerciseIndex    int
	SetIndex         int
	WorkingReps      int
	WarmupReps       int
	TotalReps        int
	WeightPerCableKg float64
	Duration         time.Duration
	PeakForceKg      float64
	AverageForceKg   float64
	TotalVolumeKg    float64
	IsPersonalRecord bool
	Reason           history.CompletionReason
	RestSeconds      int
}

// FlowKind tags the RoutineFlowState variant.
type FlowKind int

const (
	FlowNotInRoutine FlowKind = iota
	FlowOverview
	FlowSetReady
	FlowComplete
)

func (k FlowKind) String() string {
	switch k {
	case FlowNotInRoutine:
		return "NotInRoutine"
	case FlowOverview:
		return "Overview"
	case FlowSetReady:
		return "SetReady"
	case FlowComplete:
		return "Complete"
	default:
		return fmt.Sprintf("FlowKind(%d)", int(k))
	}
}

// RoutineFlowState is the routine-level screen the user is on. Only the
// fields of the active Kind are meaningful.
type RoutineFlowState struct {
	Kind FlowKind

	// Overview
	Routine               *routine.Routine
	SelectedExerciseIndex int

	// SetReady
	ExerciseIndex        int
	SetIndex             int
	AdjustedWeightKg     float64
	AdjustedReps         int
	AdjustedAMRAP        bool
	EchoLevel            *routine.EchoLevel
	EccentricLoadPercent *int

	// Complete
	RoutineName     string
	TotalSets       int
	TotalExercises  int
	TotalDurationMs int64
}

func notInRoutine() RoutineFlowState { return RoutineFlowState{Kind: FlowNotInRoutine} }

// WorkoutParameters configure the set about to run. Reps of 0 means no target.
type WorkoutParameters struct {
	ProgramMode           routine.ProgramMode
	EchoLevel             routine.EchoLevel
	EccentricLoadPercent  int
	Reps                  int
	WeightPerCableKg      float64
	ProgressionKg         float64
	IsAMRAP               bool
	StallDetectionEnabled bool
	WarmupReps            int
	SelectedExerciseID    string
	IsJustLift            bool
	UseAutoStart          bool
}

// HasRepTarget reports whether reaching Reps working reps ends the set.
func (p WorkoutParameters) HasRepTarget() bool {
	return !p.IsAMRAP && !p.IsJustLift && p.Reps > 0
}

// RepPhase is the direction of the current rep.
type RepPhase int

const (
	RepPhaseIdle RepPhase = iota
	RepPhaseConcentric
	RepPhaseEccentric
)

// RepCount is the running rep tally of the current set.
type RepCount struct {
	Working int
	Warmup  int
	Total   int
	Phase   RepPhase
}

// AutoStopState is the auto-stop bookkeeping of the current set. All fields
// are reset together at every set boundary.
type AutoStopState struct {
	DangerZoneStartedAt time.Time
	Triggered           bool
	StopRequested       bool
	StallStartedAt      time.Time
	IsStalled           bool
}

// SessionTotals aggregate the sets completed since the workout began.
type SessionTotals struct {
	StartedAt     time.Time
	SetsCompleted int
	TotalReps     int
	TotalVolumeKg float64
}

// RoutineProgress tracks which exercises were finished or skipped.
type RoutineProgress struct {
	StartedAt time.Time
	Completed []int
	Skipped   []int
}

func (p RoutineProgress) markCompleted(exerciseIndex int) RoutineProgress {
	out := RoutineProgress{StartedAt: p.StartedAt}
	out.Completed = insertSorted(slices.Clone(p.Completed), exerciseIndex)
	out.Skipped = slices.DeleteFunc(slices.Clone(p.Skipped), func(i int) bool { return i == exerciseIndex })
	return out
}

func (p RoutineProgress) markSkipped(exerciseIndex int) RoutineProgress {
	if slices.Contains(p.Completed, exerciseIndex) {
		return p
	}
	out := RoutineProgress{StartedAt: p.StartedAt, Completed: slices.Clone(p.Completed)}
	out.Skipped = insertSorted(slices.Clone(p.Skipped), exerciseIndex)
	return out
}

// IsCompleted reports whether the exercise was finished.
func (p RoutineProgress) IsCompleted(exerciseIndex int) bool {
	return slices.Contains(p.Completed, exerciseIndex)
}

// IsSkipped reports whether the exercise was left without working reps.
func (p RoutineProgress) IsSkipped(exerciseIndex int) bool {
	return slices.Contains(p.Skipped, exerciseIndex)
}

func insertSorted(list []int, v int) []int {
	i, found := slices.BinarySearch(list, v)
	if found {
		return list
	}
	return slices.Insert(list, i, v)
}
