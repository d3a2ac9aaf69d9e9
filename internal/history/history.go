// Package history holds the records a finished set leaves behind.
package history

import (
	"time"

	"github.com/lowaak/smart-trainer/cable-trainer-app/internal/routine"
)

// MetricPoint is a persisted telemetry sample, relative to set start.
type MetricPoint struct {
	OffsetMs int64   `json:"t"`
	Position float64 `json:"p"`
	Velocity float64 `json:"v"`
	Force    float64 `json:"f"`
}

// CompletionReason records why a set ended.
type CompletionReason string

const (
	ReasonUserStop      CompletionReason = "user_stop"
	ReasonTargetReached CompletionReason = "target_reached"
	ReasonDangerZone    CompletionReason = "auto_stop_position"
	ReasonStall         CompletionReason = "auto_stop_stall"
	ReasonTimer         CompletionReason = "bodyweight_timer"
)

// SessionRecord is the saved summary of one completed set.
type SessionRecord struct {
	ID                string
	RoutineID         string
	RoutineExerciseID string
	ExerciseID        string
	ExerciseName      string
	StartedAt         time.Time
	Duration          time.Duration
	ProgramMode       routine.ProgramMode
	WeightPerCableKg  float64
	TargetReps        int
	IsAMRAP           bool
	IsJustLift        bool
	WorkingReps       int
	WarmupReps        int
	TotalReps         int
	PeakForceKg       float64
	AverageForceKg    float64
	TotalVolumeKg     float64
	IsPersonalRecord  bool
	CompletionReason  CompletionReason
	Metrics           []MetricPoint
}

// CompletedSet is the per-set log used by routine history screens.
type CompletedSet struct {
	ID               string
	SessionID        string
	RoutineID        string
	ExerciseIndex    int
	SetIndex         int
	ExerciseID       string
	WeightPerCableKg float64
	TargetReps       int
	ActualReps       int
	IsAMRAP          bool
	CompletedAt      time.Time
}

// PersonalRecord is the best weight × reps seen for an exercise in a mode.
type PersonalRecord struct {
	ExerciseID       string
	ProgramMode      routine.ProgramMode
	WeightPerCableKg float64
	Reps             int
	AchievedAt       time.Time
}

// Volume is the score PRs are compared by.
func (p PersonalRecord) Volume() float64 {
	return p.WeightPerCableKg * float64(p.Reps)
}

// Downsample keeps at most limit points, evenly spaced, always keeping the last.
func Downsample(points []MetricPoint, limit int) []MetricPoint {
	if limit <= 0 || len(points) <= limit {
		return points
	}
	out := make([]MetricPoint, 0, limit)
	stride := float64(len(points)-1) / float64(limit-1)
	for i := 0; i < limit; i++ {
		out = append(out, points[int(float64(i)*stride+0.5)])
	}
	return out
}
