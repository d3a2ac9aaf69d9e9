package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lowaak/smart-trainer/cable-trainer-app/internal/history"
	"github.com/lowaak/smart-trainer/cable-trainer-app/internal/routine"
	"github.com/lowaak/smart-trainer/cable-trainer-app/internal/telemetry"
)

func stageReps(h *harness, reps int) {
	h.active.StageParameters(WorkoutParameters{
		ProgramMode:      routine.ProgramOldSchool,
		Reps:             reps,
		IsAMRAP:          reps == 0,
		WeightPerCableKg: 20,
	})
}

func TestActiveSession_StartWorkout_PublishesInitializingBeforeDeviceStart(t *testing.T) {
	h := newHarness(t)
	stageReps(h, 10)
	phaseAtStart := WorkoutPhase(-1)
	h.device.onCommand = func(name string) {
		if name == "start" {
			phaseAtStart = h.phase()
		}
	}

	require.NoError(t, h.active.StartWorkout(false, false))
	assert.Equal(t, PhaseInitializing, phaseAtStart)
	assert.Equal(t, countdownState(5), h.store.WorkoutState().Get())
	assert.Equal(t, []string{"program", "weight", "start"}, h.device.Commands())
}

func TestActiveSession_Countdown_TicksToActive(t *testing.T) {
	h := newHarness(t)
	stageReps(h, 10)
	require.NoError(t, h.active.StartWorkout(false, false))

	for remaining := 4; remaining >= 1; remaining-- {
		h.clock.Advance(time.Second)
		assert.Equal(t, countdownState(remaining), h.store.WorkoutState().Get())
	}
	h.clock.Advance(time.Second)
	assert.Equal(t, PhaseActive, h.phase())

	ticks := 0
	for _, ev := range drainHaptics(h.haptics) {
		if ev == telemetry.HapticCountdownTick {
			ticks++
		}
	}
	assert.Equal(t, 5, ticks)
	assert.Equal(t, 0, h.clock.Pending())
}

func TestActiveSession_RepEventsDuringCountdownAreNotCounted(t *testing.T) {
	h := newHarness(t)
	stageReps(h, 3)
	require.NoError(t, h.active.StartWorkout(false, false))
	require.Equal(t, PhaseCountdown, h.phase())

	// The machine counts from its start command, so reps made during the
	// countdown show up in its counter.
	h.active.HandleRepEvent(telemetry.RepEvent{Timestamp: h.clock.Now(), TopCounter: 1})
	h.active.HandleRepEvent(telemetry.RepEvent{Timestamp: h.clock.Now(), TopCounter: 2})
	h.clock.Advance(5 * time.Second)
	require.Equal(t, PhaseActive, h.phase())
	assert.Equal(t, RepCount{}, h.store.RepCount().Get())

	h.active.HandleRepEvent(telemetry.RepEvent{Timestamp: h.clock.Now(), TopCounter: 3})
	assert.Equal(t, 1, h.store.RepCount().Get().Working)
	assert.Equal(t, 1, h.store.RepCount().Get().Total)
}

func TestActiveSession_SkipCountdown(t *testing.T) {
	h := newHarness(t)
	stageReps(h, 10)
	require.NoError(t, h.active.StartWorkout(false, false))

	h.active.SkipCountdown()
	assert.Equal(t, PhaseActive, h.phase())
	assert.False(t, h.store.TimerPending(TimerCountdown))

	// A second skip outside Countdown does nothing.
	h.active.SkipCountdown()
	assert.Equal(t, PhaseActive, h.phase())
}

func TestActiveSession_StartWorkout_DeviceFailureReturnsToIdle(t *testing.T) {
	h := newHarness(t)
	stageReps(h, 10)
	h.device.fail("start", errDevice)

	err := h.active.StartWorkout(false, false)
	require.ErrorIs(t, err, errDevice)
	assert.Equal(t, PhaseIdle, h.phase())

	warnings := drainWarnings(h.warnings)
	require.Len(t, warnings, 1)
	assert.Equal(t, telemetry.WarningSourceDevice, warnings[0].Source)
	assert.Contains(t, drainHaptics(h.haptics), telemetry.HapticError)
}

func TestActiveSession_StartWorkout_RefusedWhileActive(t *testing.T) {
	h := newHarness(t)
	stageReps(h, 10)
	require.NoError(t, h.active.StartWorkout(true, false))

	assert.ErrorIs(t, h.active.StartWorkout(true, false), ErrWorkoutInProgress)
}

func TestActiveSession_TargetReached_CompletesSet(t *testing.T) {
	h := newHarness(t)
	stageReps(h, 3)
	require.NoError(t, h.active.StartWorkout(true, false))

	h.lift(3)

	state := h.store.WorkoutState().Get()
	require.Equal(t, PhaseSetSummary, state.Phase)
	require.NotNil(t, state.Summary)
	assert.Equal(t, 3, state.Summary.WorkingReps)
	assert.Equal(t, history.ReasonTargetReached, state.Summary.Reason)
	assert.Equal(t, justLiftName, state.Summary.ExerciseName)

	sessions := h.sessions.Sessions()
	require.Len(t, sessions, 1)
	assert.Equal(t, 3, sessions[0].WorkingReps)
	assert.Equal(t, 60.0, sessions[0].TotalVolumeKg)
	assert.InDelta(t, 20, sessions[0].PeakForceKg, 0.001)
	assert.NotEmpty(t, sessions[0].Metrics)
	assert.LessOrEqual(t, len(sessions[0].Metrics), testSettings().MetricHistoryLimit)
	assert.Empty(t, h.sessions.Sets(), "no routine loaded")
	assert.Equal(t, 1, h.device.Count("stop"))
	assert.Equal(t, 1, h.store.Totals().Get().SetsCompleted)
	assert.Contains(t, drainHaptics(h.haptics), telemetry.HapticSetComplete)
}

func TestActiveSession_HandleSetCompletion_TwiceSavesOnce(t *testing.T) {
	h := newHarness(t)
	stageReps(h, 10)
	require.NoError(t, h.active.StartWorkout(true, false))
	h.lift(2)

	h.active.HandleSetCompletion(history.ReasonUserStop)
	h.active.HandleSetCompletion(history.ReasonUserStop)

	assert.Len(t, h.sessions.Sessions(), 1)
	assert.Equal(t, 1, h.device.Count("stop"))
	assert.True(t, h.store.SetCompletionInProgress())
}

func TestActiveSession_SamplesOutsideActiveAreDropped(t *testing.T) {
	h := newHarness(t)
	stageReps(h, 2)

	h.lift(3)
	assert.Equal(t, RepCount{}, h.store.RepCount().Get())

	require.NoError(t, h.active.StartWorkout(true, false))
	h.lift(2)
	require.Equal(t, PhaseSetSummary, h.phase())
	count := h.store.RepCount().Get()

	h.lift(2)
	assert.Equal(t, count, h.store.RepCount().Get())
	assert.Len(t, h.sessions.Sessions(), 1)
}

func TestActiveSession_WarmupReps(t *testing.T) {
	h := newHarness(t)
	h.active.StageParameters(WorkoutParameters{Reps: 2, WeightPerCableKg: 10, WarmupReps: 2})
	require.NoError(t, h.active.StartWorkout(true, false))

	h.lift(3)
	count := h.store.RepCount().Get()
	assert.Equal(t, 2, count.Warmup)
	assert.Equal(t, 1, count.Working)
	assert.Equal(t, PhaseActive, h.phase())
	assert.Contains(t, drainHaptics(h.haptics), telemetry.HapticWarmupComplete)

	h.lift(1)
	assert.Equal(t, PhaseSetSummary, h.phase())
}

func TestActiveSession_Bodyweight_NeverSendsStop(t *testing.T) {
	h := newHarness(t)
	r := testRoutine(bodyweightExercise("pushup", 2, 10))
	require.NoError(t, h.nav.LoadRoutine(r))

	require.NoError(t, h.active.StartWorkout(true, false))
	assert.Equal(t, PhaseActive, h.phase())
	assert.True(t, h.store.TimerPending(TimerBodyweight))

	h.clock.Advance(30 * time.Second)
	state := h.store.WorkoutState().Get()
	require.Equal(t, PhaseSetSummary, state.Phase)
	assert.Equal(t, history.ReasonTimer, state.Summary.Reason)
	assert.Equal(t, 10, state.Summary.WorkingReps)

	// The user stop path skips the machine too.
	require.NoError(t, h.active.StartWorkout(true, false))
	h.active.StopWorkout()
	assert.Equal(t, PhaseSetSummary, h.phase())
	assert.False(t, h.store.TimerPending(TimerBodyweight))

	assert.Zero(t, h.device.Count("stop"))
	assert.Zero(t, h.device.Count("start"))
}

func TestActiveSession_Bodyweight_UsesExerciseDuration(t *testing.T) {
	h := newHarness(t)
	ex := bodyweightExercise("plank", 1, 1)
	ex.DurationSeconds = 45
	require.NoError(t, h.nav.LoadRoutine(testRoutine(ex)))
	require.NoError(t, h.active.StartWorkout(true, false))

	h.clock.Advance(44 * time.Second)
	assert.Equal(t, PhaseActive, h.phase())
	h.clock.Advance(time.Second)
	assert.Equal(t, PhaseSetSummary, h.phase())
}

func TestActiveSession_RestTimerCancelledAfterManualStop(t *testing.T) {
	h := newHarness(t)
	ex := cableExercise("row", 2, 3, 20)
	ex.RestSeconds = 30
	require.NoError(t, h.nav.LoadRoutine(testRoutine(ex)))
	require.NoError(t, h.active.StartWorkout(true, false))

	h.lift(3)
	state := h.store.WorkoutState().Get()
	require.Equal(t, PhaseSetSummary, state.Phase)
	assert.Equal(t, 30, state.Summary.RestSeconds)
	require.True(t, h.store.TimerPending(TimerRest))

	h.active.StopWorkout()
	assert.Equal(t, PhaseIdle, h.phase())
	assert.False(t, h.store.TimerPending(TimerRest))

	h.clock.Advance(time.Minute)
	assert.Zero(t, h.restElapsed)
	assert.Equal(t, PhaseIdle, h.phase())
}

func TestActiveSession_StopGuard_OnlyClearedByStart(t *testing.T) {
	h := newHarness(t)
	ex := cableExercise("row", 2, 10, 20)
	ex.RestSeconds = 30
	require.NoError(t, h.nav.LoadRoutine(testRoutine(ex)))
	require.NoError(t, h.active.StartWorkout(true, false))
	h.lift(1)

	h.active.StopWorkout()
	require.Equal(t, PhaseSetSummary, h.phase())
	assert.True(t, h.store.StopWorkoutInProgress())

	// Ignored: the guard from the first stop is still set.
	h.active.StopWorkout()
	assert.Equal(t, PhaseSetSummary, h.phase())
	assert.True(t, h.store.TimerPending(TimerRest))

	require.NoError(t, h.active.StartWorkout(false, false))
	assert.False(t, h.store.StopWorkoutInProgress())
	h.active.StopWorkout()
	assert.Equal(t, PhaseIdle, h.phase())
	assert.False(t, h.store.TimerPending(TimerCountdown))
}

func TestActiveSession_DangerZoneEndsAMRAPSet(t *testing.T) {
	h := newHarness(t)
	stageReps(h, 0)
	require.NoError(t, h.active.StartWorkout(true, false))

	h.lift(2)
	h.hold(0, 2*time.Second)
	assert.Equal(t, PhaseActive, h.phase(), "still inside the AMRAP grace period")
	assert.False(t, h.store.AutoStop().Get().DangerZoneStartedAt.IsZero())

	h.hold(0, 2*time.Second)
	state := h.store.WorkoutState().Get()
	require.Equal(t, PhaseSetSummary, state.Phase)
	assert.Equal(t, history.ReasonDangerZone, state.Summary.Reason)
	assert.Equal(t, 2, state.Summary.WorkingReps)

	st := h.store.AutoStop().Get()
	assert.True(t, st.Triggered)
	assert.True(t, st.StopRequested)
}

func TestActiveSession_StallEndsSet(t *testing.T) {
	h := newHarness(t)
	h.active.StageParameters(WorkoutParameters{Reps: 10, WeightPerCableKg: 20, StallDetectionEnabled: true})
	require.NoError(t, h.active.StartWorkout(true, false))

	h.lift(1)
	h.hold(300, 4*time.Second)
	assert.Equal(t, PhaseActive, h.phase())
	assert.True(t, h.store.AutoStop().Get().IsStalled)

	h.hold(300, 1500*time.Millisecond)
	state := h.store.WorkoutState().Get()
	require.Equal(t, PhaseSetSummary, state.Phase)
	assert.Equal(t, history.ReasonStall, state.Summary.Reason)
}

func TestActiveSession_NewSetResetsAutoStop(t *testing.T) {
	h := newHarness(t)
	stageReps(h, 0)
	require.NoError(t, h.active.StartWorkout(true, false))
	h.lift(1)
	h.hold(0, 5*time.Second)
	require.True(t, h.store.AutoStop().Get().Triggered)

	require.NoError(t, h.active.StartWorkout(true, false))
	assert.Equal(t, AutoStopState{}, h.store.AutoStop().Get())
	assert.Equal(t, RepCount{}, h.store.RepCount().Get())
	assert.False(t, h.store.SetCompletionInProgress())
}

func TestActiveSession_WeightChanges(t *testing.T) {
	h := newHarness(t)
	stageReps(h, 10)

	h.active.AdjustWeight(22.3)
	assert.Equal(t, 22.5, h.store.Parameters().Get().WeightPerCableKg)
	h.active.AdjustWeight(500)
	assert.Equal(t, 100.0, h.store.Parameters().Get().WeightPerCableKg)
	h.active.IncrementWeight(-5)
	assert.Equal(t, 95.0, h.store.Parameters().Get().WeightPerCableKg)
	assert.True(t, h.active.ApplyWeightPreset(0))
	assert.Equal(t, 5.0, h.store.Parameters().Get().WeightPerCableKg)
	assert.False(t, h.active.ApplyWeightPreset(99))
	assert.Zero(t, h.device.Count("weight"), "nothing is sent outside an active set")

	require.NoError(t, h.active.StartWorkout(true, false))
	h.device.ClearCommands()
	h.active.IncrementWeight(2.5)
	h.active.SetProgramMode(routine.ProgramPump)
	assert.Equal(t, []string{"weight", "program", "weight"}, h.device.Commands())
	assert.Equal(t, routine.ProgramPump, h.store.Parameters().Get().ProgramMode)
}

func TestActiveSession_ParameterMutations(t *testing.T) {
	h := newHarness(t)
	stageReps(h, 10)

	h.active.SetTargetReps(0)
	p := h.store.Parameters().Get()
	assert.True(t, p.IsAMRAP)
	assert.False(t, p.HasRepTarget())

	h.active.SetTargetReps(12)
	p = h.store.Parameters().Get()
	assert.Equal(t, 12, p.Reps)
	assert.False(t, p.IsAMRAP)

	h.active.SetAMRAP(true)
	h.active.SetStallDetection(true)
	h.active.SetEchoLevel(routine.EchoEpic)
	h.active.SetEccentricLoad(200)
	p = h.store.Parameters().Get()
	assert.True(t, p.IsAMRAP)
	assert.True(t, p.StallDetectionEnabled)
	assert.Equal(t, routine.EchoEpic, p.EchoLevel)
	assert.Equal(t, 150, p.EccentricLoadPercent)
	assert.Empty(t, h.device.Commands())
}

func TestActiveSession_PersonalRecord(t *testing.T) {
	h := newHarness(t)
	h.sessions.prs[prKey("row", routine.ProgramOldSchool)] = history.PersonalRecord{
		ExerciseID: "row", WeightPerCableKg: 20, Reps: 5,
	}
	require.NoError(t, h.nav.LoadRoutine(testRoutine(cableExercise("row", 2, 6, 20))))

	require.NoError(t, h.active.StartWorkout(true, false))
	h.lift(6)
	state := h.store.WorkoutState().Get()
	require.Equal(t, PhaseSetSummary, state.Phase)
	assert.True(t, state.Summary.IsPersonalRecord)
	assert.Equal(t, 6, h.sessions.prs[prKey("row", routine.ProgramOldSchool)].Reps)
	assert.Contains(t, drainHaptics(h.haptics), telemetry.HapticPersonalRecord)

	sets := h.sessions.Sets()
	require.Len(t, sets, 1)
	assert.Equal(t, "routine-1", sets[0].RoutineID)
	assert.Equal(t, 6, sets[0].ActualReps)

	h.active.SetTargetReps(4)
	require.NoError(t, h.active.StartWorkout(true, false))
	h.lift(4)
	assert.False(t, h.store.WorkoutState().Get().Summary.IsPersonalRecord)
}

func TestActiveSession_PersonalRecordLookupFailureWarns(t *testing.T) {
	h := newHarness(t)
	h.sessions.prErr = errDevice
	require.NoError(t, h.nav.LoadRoutine(testRoutine(cableExercise("row", 1, 2, 20))))
	drainWarnings(h.warnings)

	require.NoError(t, h.active.StartWorkout(true, false))
	h.lift(2)
	assert.Equal(t, PhaseSetSummary, h.phase())
	assert.False(t, h.store.WorkoutState().Get().Summary.IsPersonalRecord)

	warnings := drainWarnings(h.warnings)
	require.Len(t, warnings, 1)
	assert.Equal(t, telemetry.WarningSourceStorage, warnings[0].Source)
}

func TestActiveSession_RestSizing(t *testing.T) {
	h := newHarness(t)
	a := inSuperset(cableExercise("a", 2, 10, 20), "s", 0)
	a.RestSeconds = 90
	b := inSuperset(cableExercise("b", 2, 10, 20), "s", 1)
	c := cableExercise("c", 1, 10, 20)
	require.NoError(t, h.nav.LoadRoutine(testRoutine(a, b, c)))

	cases := []struct {
		at   routine.Step
		rest int
	}{
		{routine.Step{ExerciseIndex: 0, SetIndex: 0}, 15},
		{routine.Step{ExerciseIndex: 1, SetIndex: 0}, 15},
		{routine.Step{ExerciseIndex: 1, SetIndex: 1}, 60},
		{routine.Step{ExerciseIndex: 2, SetIndex: 0}, 0},
	}
	for _, tc := range cases {
		h.nav.w.setPosition(tc.at)
		assert.Equal(t, tc.rest, h.active.restAfterCurrentSet(), "at %+v", tc.at)
	}
}

func TestActiveSession_RestCountdown(t *testing.T) {
	h := newHarness(t)
	ex := cableExercise("row", 2, 1, 20)
	ex.RestSeconds = 5
	require.NoError(t, h.nav.LoadRoutine(testRoutine(ex)))
	require.NoError(t, h.active.StartWorkout(true, false))
	h.lift(1)
	require.Equal(t, PhaseSetSummary, h.phase())
	drainHaptics(h.haptics)

	require.True(t, h.active.EnterResting())
	assert.Equal(t, PhaseResting, h.phase())

	h.clock.Advance(2 * time.Second)
	assert.Equal(t, restingState(3), h.store.WorkoutState().Get())
	assert.Contains(t, drainHaptics(h.haptics), telemetry.HapticRestEnding)

	h.clock.Advance(3 * time.Second)
	assert.Equal(t, 1, h.restElapsed)
	assert.False(t, h.store.TimerPending(TimerRest))
	assert.False(t, h.active.EnterResting())
}

func TestActiveSession_SkipRest(t *testing.T) {
	h := newHarness(t)
	ex := cableExercise("row", 2, 1, 20)
	ex.RestSeconds = 60
	require.NoError(t, h.nav.LoadRoutine(testRoutine(ex)))
	require.NoError(t, h.active.StartWorkout(true, false))
	h.lift(1)

	h.active.SkipRest()
	assert.Equal(t, 1, h.restElapsed)
	assert.False(t, h.store.TimerPending(TimerRest))

	h.clock.Advance(2 * time.Minute)
	assert.Equal(t, 1, h.restElapsed)
}

func TestActiveSession_JustLift(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.nav.LoadRoutine(testRoutine(cableExercise("row", 2, 10, 20))))
	stageReps(h, 10)

	require.NoError(t, h.active.StartWorkout(true, true))
	p := h.store.Parameters().Get()
	assert.True(t, p.IsJustLift)
	assert.False(t, p.HasRepTarget())

	h.lift(12)
	assert.Equal(t, PhaseActive, h.phase(), "no rep target in Just Lift")
	h.active.StopWorkout()

	state := h.store.WorkoutState().Get()
	require.Equal(t, PhaseSetSummary, state.Phase)
	assert.Zero(t, state.Summary.RestSeconds)
	sessions := h.sessions.Sessions()
	require.Len(t, sessions, 1)
	assert.True(t, sessions[0].IsJustLift)
	assert.Empty(t, h.sessions.Sets())
}

func TestActiveSession_FinishAndReset(t *testing.T) {
	h := newHarness(t)
	stageReps(h, 1)
	require.NoError(t, h.active.StartWorkout(true, false))
	h.lift(1)

	h.active.FinishWorkout()
	assert.Equal(t, PhaseCompleted, h.phase())
	assert.Contains(t, drainHaptics(h.haptics), telemetry.HapticWorkoutComplete)
	assert.True(t, h.store.WorkoutState().Get().CanStartIndependent())

	h.active.ResetToIdle()
	assert.Equal(t, PhaseIdle, h.phase())
	assert.Equal(t, SessionTotals{}, h.store.Totals().Get())
}
