package session

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lowaak/smart-trainer/cable-trainer-app/internal/history"
	"github.com/lowaak/smart-trainer/cable-trainer-app/internal/telemetry"
)

var autoStopEpoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func autoStopInput(offset time.Duration, position, velocity float64) AutoStopInput {
	return AutoStopInput{
		Sample:    telemetry.Sample{Timestamp: autoStopEpoch.Add(offset), Position: position, Velocity: velocity},
		ROMBottom: 0,
		ROMTop:    500,
		ROMKnown:  true,
	}
}

func TestEvaluateAutoStop_DangerZoneFiresAfterDwell(t *testing.T) {
	cfg := DefaultSettings().AutoStop
	var st AutoStopState

	for offset := time.Duration(0); offset < cfg.DangerZoneDwell; offset += 100 * time.Millisecond {
		var fired bool
		st, _, fired = EvaluateAutoStop(cfg, st, autoStopInput(offset, 10, 0))
		require.False(t, fired, "fired after %v", offset)
	}
	assert.Equal(t, autoStopEpoch, st.DangerZoneStartedAt)

	st, reason, fired := EvaluateAutoStop(cfg, st, autoStopInput(cfg.DangerZoneDwell, 10, 0))
	assert.True(t, fired)
	assert.Equal(t, history.ReasonDangerZone, reason)
	assert.True(t, st.Triggered)
	assert.True(t, st.StopRequested)
}

func TestEvaluateAutoStop_LeavingZoneRestartsDwell(t *testing.T) {
	cfg := DefaultSettings().AutoStop
	var st AutoStopState

	st, _, _ = EvaluateAutoStop(cfg, st, autoStopInput(0, 10, 0))
	st, _, _ = EvaluateAutoStop(cfg, st, autoStopInput(2*time.Second, 200, 0))
	assert.True(t, st.DangerZoneStartedAt.IsZero())

	st, _, fired := EvaluateAutoStop(cfg, st, autoStopInput(3*time.Second, 10, 0))
	assert.False(t, fired)
	_, _, fired = EvaluateAutoStop(cfg, st, autoStopInput(5*time.Second, 10, 0))
	assert.False(t, fired, "only 2s since re-entering the zone")
}

func TestEvaluateAutoStop_IdempotentOnceTriggered(t *testing.T) {
	cfg := DefaultSettings().AutoStop
	st := AutoStopState{Triggered: true, StopRequested: true}

	next, _, fired := EvaluateAutoStop(cfg, st, autoStopInput(time.Hour, 0, 0))
	assert.False(t, fired)
	assert.Equal(t, st, next)
}

func TestEvaluateAutoStop_WaitsForFirstRep(t *testing.T) {
	cfg := DefaultSettings().AutoStop
	var st AutoStopState
	for offset := time.Duration(0); offset < 10*time.Second; offset += time.Second {
		in := autoStopInput(offset, 0, 0)
		in.ROMKnown = false
		var fired bool
		st, _, fired = EvaluateAutoStop(cfg, st, in)
		assert.False(t, fired)
	}
	assert.Equal(t, AutoStopState{}, st)
}

func TestEvaluateAutoStop_StallHysteresis(t *testing.T) {
	cfg := DefaultSettings().AutoStop
	var st AutoStopState
	stall := func(offset time.Duration, velocity float64) bool {
		in := autoStopInput(offset, 250, velocity)
		in.StallDetection = true
		var fired bool
		st, _, fired = EvaluateAutoStop(cfg, st, in)
		return fired
	}

	assert.False(t, stall(0, 1))
	assert.True(t, st.IsStalled)
	// Between the thresholds the window keeps running.
	assert.False(t, stall(3*time.Second, 5))
	assert.Equal(t, autoStopEpoch, st.StallStartedAt)
	// Above the high threshold the window resets.
	assert.False(t, stall(4*time.Second, 20))
	assert.True(t, st.StallStartedAt.IsZero())
	assert.False(t, st.IsStalled)

	assert.False(t, stall(5*time.Second, 1))
	assert.False(t, stall(9*time.Second, 1))
	assert.True(t, stall(10*time.Second, 1))
	assert.True(t, st.Triggered)
}

func TestEvaluateAutoStop_StallDisabled(t *testing.T) {
	cfg := DefaultSettings().AutoStop
	var st AutoStopState
	for offset := time.Duration(0); offset < 20*time.Second; offset += time.Second {
		var fired bool
		st, _, fired = EvaluateAutoStop(cfg, st, autoStopInput(offset, 250, 0))
		assert.False(t, fired)
	}
	assert.False(t, st.IsStalled)
}

func TestEvaluateAutoStop_AMRAPGrace(t *testing.T) {
	cfg := DefaultSettings().AutoStop
	var st AutoStopState
	lastRep := autoStopEpoch.Add(2 * time.Second)

	for offset := time.Duration(0); offset < lastRep.Sub(autoStopEpoch)+cfg.AMRAPGrace; offset += 100 * time.Millisecond {
		in := autoStopInput(offset, 10, 0)
		in.IsAMRAP = true
		in.LastRepAt = lastRep
		var fired bool
		st, _, fired = EvaluateAutoStop(cfg, st, in)
		require.False(t, fired, "fired inside the grace period at %v", offset)
	}
	in := autoStopInput(lastRep.Sub(autoStopEpoch)+cfg.AMRAPGrace, 10, 0)
	in.IsAMRAP = true
	in.LastRepAt = lastRep
	_, reason, fired := EvaluateAutoStop(cfg, st, in)
	assert.True(t, fired)
	assert.Equal(t, history.ReasonDangerZone, reason)
}

func TestEvaluateAutoStop_NeverBeforeDwellForRandomTelemetry(t *testing.T) {
	cfg := DefaultSettings().AutoStop
	rng := rand.New(rand.NewPCG(7, 11))

	for run := 0; run < 200; run++ {
		var st AutoStopState
		offset := time.Duration(0)
		for i := 0; i < 400; i++ {
			offset += time.Duration(20+rng.IntN(100)) * time.Millisecond
			in := autoStopInput(offset, rng.Float64()*60, rng.Float64()*15)
			in.StallDetection = rng.IntN(2) == 0
			prev := st
			var reason history.CompletionReason
			var fired bool
			st, reason, fired = EvaluateAutoStop(cfg, prev, in)
			if !fired {
				continue
			}
			now := in.Sample.Timestamp
			switch reason {
			case history.ReasonDangerZone:
				require.False(t, st.DangerZoneStartedAt.IsZero())
				require.GreaterOrEqual(t, now.Sub(st.DangerZoneStartedAt), cfg.DangerZoneDwell)
			case history.ReasonStall:
				require.False(t, st.StallStartedAt.IsZero())
				require.GreaterOrEqual(t, now.Sub(st.StallStartedAt), cfg.StallDwell)
			default:
				t.Fatalf("unexpected reason %q", reason)
			}
			break
		}
	}
}
