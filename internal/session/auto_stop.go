package session

import (
	"math"
	"time"

	"github.com/lowaak/smart-trainer/cable-trainer-app/internal/history"
	"github.com/lowaak/smart-trainer/cable-trainer-app/internal/telemetry"
)

// AutoStopInput is what the detectors need from the current set.
type AutoStopInput struct {
	Sample         telemetry.Sample
	ROMBottom      float64
	ROMTop         float64
	ROMKnown       bool
	LastRepAt      time.Time
	IsAMRAP        bool
	StallDetection bool
}

// EvaluateAutoStop advances the danger-zone and stall detectors by one
// sample. It returns the new state and, when a detector fired on this sample,
// the completion reason. Once Triggered is set every later call is a no-op.
// Times come from sample timestamps.
func EvaluateAutoStop(cfg AutoStopConfig, st AutoStopState, in AutoStopInput) (AutoStopState, history.CompletionReason, bool) {
	if st.Triggered || !in.ROMKnown {
		return st, "", false
	}
	now := in.Sample.Timestamp
	pos := in.Sample.Position

	threshold := in.ROMBottom + cfg.DangerZoneFraction*(in.ROMTop-in.ROMBottom)
	if pos <= threshold {
		if st.DangerZoneStartedAt.IsZero() {
			st.DangerZoneStartedAt = now
		}
	} else {
		st.DangerZoneStartedAt = time.Time{}
	}

	if in.StallDetection {
		speed := math.Abs(in.Sample.Velocity)
		switch {
		case pos <= cfg.StallMinPosition || speed > cfg.StallVelocityHigh:
			st.StallStartedAt = time.Time{}
			st.IsStalled = false
		case speed < cfg.StallVelocityLow:
			if st.StallStartedAt.IsZero() {
				st.StallStartedAt = now
			}
			st.IsStalled = true
		}
	} else {
		st.StallStartedAt = time.Time{}
		st.IsStalled = false
	}

	if in.IsAMRAP && !in.LastRepAt.IsZero() && now.Sub(in.LastRepAt) < cfg.AMRAPGrace {
		return st, "", false
	}
	if !st.DangerZoneStartedAt.IsZero() && now.Sub(st.DangerZoneStartedAt) >= cfg.DangerZoneDwell {
		st.Triggered = true
		st.StopRequested = true
		return st, history.ReasonDangerZone, true
	}
	if !st.StallStartedAt.IsZero() && now.Sub(st.StallStartedAt) >= cfg.StallDwell {
		st.Triggered = true
		st.StopRequested = true
		return st, history.ReasonStall, true
	}
	return st, "", false
}
