package session

import (
	"context"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/lowaak/smart-trainer/cable-trainer-app/internal/history"
	"github.com/lowaak/smart-trainer/cable-trainer-app/internal/metrics"
	"github.com/lowaak/smart-trainer/cable-trainer-app/internal/routine"
	"github.com/lowaak/smart-trainer/cable-trainer-app/internal/telemetry"
)

// restEndingWarningSeconds is when the rest-ending cue fires.
const restEndingWarningSeconds = 3

const justLiftName = "Just Lift"

// ActiveSessionEngine owns the live workout lifecycle: start, countdown,
// telemetry processing, auto-stop, set completion, rest and weight changes.
// Every method must run on the session executor.
type ActiveSessionEngine struct {
	store    *Store
	w        activeWriter
	device   Device
	sessions SessionRepository
	sched    Scheduler
	settings Settings
	logger   *log.Logger
	ctx      context.Context

	reps          *RepCounter
	samples       []telemetry.Sample
	setStartedAt  time.Time
	bodyweight    bool
	restRemaining int
}

func newActiveSessionEngine(ctx context.Context, store *Store, device Device, sessions SessionRepository,
	sched Scheduler, settings Settings, logger *log.Logger) *ActiveSessionEngine {
	if store == nil {
		panic("ActiveSession: store cannot be nil")
	}
	if device == nil {
		panic("ActiveSession: device cannot be nil")
	}
	if sessions == nil {
		panic("ActiveSession: sessions cannot be nil")
	}
	if sched == nil {
		panic("ActiveSession: scheduler cannot be nil")
	}
	if logger == nil {
		panic("ActiveSession: logger cannot be nil")
	}
	return &ActiveSessionEngine{
		store:    store,
		w:        activeWriter{s: store},
		device:   device,
		sessions: sessions,
		sched:    sched,
		settings: settings,
		logger:   logger,
		ctx:      ctx,
		reps:     NewRepCounter(settings.MinRepTravelMm, settings.DefaultWarmupReps),
	}
}

func (e *ActiveSessionEngine) phase() WorkoutPhase {
	return e.store.workoutState.Get().Phase
}

// currentExercise returns the exercise at the current routine position, or
// nil in Just Lift or without a routine.
func (e *ActiveSessionEngine) currentExercise() *routine.RoutineExercise {
	if e.store.parameters.Get().IsJustLift {
		return nil
	}
	r := e.store.loaded.Get()
	pos := e.store.position.Get()
	if r == nil || !r.Contains(pos) {
		return nil
	}
	return &r.Exercises[pos.ExerciseIndex]
}

// StageParameters publishes the parameters for the next set.
func (e *ActiveSessionEngine) StageParameters(p WorkoutParameters) {
	e.w.setParameters(p)
}

// ResetForNewSet clears the rep counter, metric history and auto-stop state.
func (e *ActiveSessionEngine) ResetForNewSet() {
	e.reps.Reset(e.store.parameters.Get().WarmupReps)
	e.samples = nil
	e.w.setRepCount(RepCount{})
	e.ResetAutoStop()
}

// ResetAutoStop clears every auto-stop field at once.
func (e *ActiveSessionEngine) ResetAutoStop() {
	e.w.setAutoStop(AutoStopState{})
}

// StartWorkout publishes Initializing, starts the machine and then runs the
// countdown or goes straight to Active.
func (e *ActiveSessionEngine) StartWorkout(skipCountdown, isJustLift bool) error {
	current := e.store.workoutState.Get()
	if current.Phase == PhaseActive || current.Phase == PhaseInitializing {
		return ErrWorkoutInProgress
	}

	e.store.cancelAllTimers()
	e.w.setStopInProgress(false)
	e.w.setCompletionInProgress(false)

	params := e.w.updateParameters(func(p WorkoutParameters) WorkoutParameters {
		p.IsJustLift = isJustLift
		if isJustLift {
			p.SelectedExerciseID = ""
			p.Reps = 0
			p.IsAMRAP = false
		}
		return p
	})
	e.ResetForNewSet()

	now := e.sched.Now()
	if current.Phase == PhaseCompleted || e.store.totals.Get().StartedAt.IsZero() {
		e.w.setTotals(SessionTotals{StartedAt: now})
	}

	ex := e.currentExercise()
	e.bodyweight = ex != nil && ex.Exercise.IsBodyweight()

	e.w.setWorkoutState(initializingState())
	e.logger.Printf("ActiveSession: Starting set (weight %.1f kg, reps %d, amrap %v, just lift %v, bodyweight %v)",
		params.WeightPerCableKg, params.Reps, params.IsAMRAP, params.IsJustLift, e.bodyweight)

	if !e.bodyweight {
		e.sendProgram(params)
		ctx, cancel := e.commandContext()
		err := e.device.SendStart(ctx)
		cancel()
		if err != nil {
			e.deviceFailure("start", "Could not start the machine", err)
			e.w.setWorkoutState(idleState())
			return fmt.Errorf("start workout: %w", err)
		}
	}

	if skipCountdown || e.settings.CountdownSeconds <= 0 {
		e.goActive()
		return nil
	}
	e.w.setWorkoutState(countdownState(e.settings.CountdownSeconds))
	e.store.emitHaptic(telemetry.HapticCountdownTick)
	e.scheduleCountdownTick(e.settings.CountdownSeconds)
	return nil
}

func (e *ActiveSessionEngine) scheduleCountdownTick(remaining int) {
	var t Timer
	t = e.sched.AfterFunc(time.Second, func() {
		e.w.releaseTimer(TimerCountdown, t)
		if e.phase() != PhaseCountdown {
			return
		}
		next := remaining - 1
		if next <= 0 {
			e.goActive()
			return
		}
		e.w.setWorkoutState(countdownState(next))
		e.store.emitHaptic(telemetry.HapticCountdownTick)
		e.scheduleCountdownTick(next)
	})
	e.w.trackTimer(TimerCountdown, t)
}

// SkipCountdown jumps from Countdown straight to Active.
func (e *ActiveSessionEngine) SkipCountdown() {
	if e.phase() != PhaseCountdown {
		return
	}
	e.store.cancelTimer(TimerCountdown)
	e.goActive()
}

func (e *ActiveSessionEngine) goActive() {
	e.setStartedAt = e.sched.Now()
	e.w.setWorkoutState(activeState())
	if !e.bodyweight {
		return
	}
	seconds := e.settings.BodyweightDefaultSeconds
	if ex := e.currentExercise(); ex != nil && ex.DurationSeconds > 0 {
		seconds = ex.DurationSeconds
	}
	var t Timer
	t = e.sched.AfterFunc(time.Duration(seconds)*time.Second, func() {
		e.w.releaseTimer(TimerBodyweight, t)
		e.HandleSetCompletion(history.ReasonTimer)
	})
	e.w.trackTimer(TimerBodyweight, t)
}

// HandleSample runs the per-sample pipeline: rep counting, metric history,
// auto-stop, then the rep target check. Samples outside Active are dropped.
func (e *ActiveSessionEngine) HandleSample(s telemetry.Sample) {
	if e.phase() != PhaseActive {
		metrics.ObserveSample(false)
		return
	}
	metrics.ObserveSample(true)

	before := e.reps.Count()
	e.reps.Sample(s)
	e.publishReps(before)

	e.samples = append(e.samples, s)

	if e.evaluateAutoStop(s) {
		return
	}

	params := e.store.parameters.Get()
	if params.HasRepTarget() && e.reps.Count().Working >= params.Reps {
		e.logger.Printf("ActiveSession: Target of %d reps reached", params.Reps)
		e.HandleSetCompletion(history.ReasonTargetReached)
	}
}

// HandleRepEvent applies a device rep notification. Outside Active the event
// only moves the counter baseline, so reps made during the countdown are not
// credited to the set.
func (e *ActiveSessionEngine) HandleRepEvent(ev telemetry.RepEvent) {
	if e.phase() != PhaseActive {
		e.reps.SyncDevice(ev)
		return
	}
	before := e.reps.Count()
	e.reps.DeviceRep(ev)
	e.publishReps(before)
}

func (e *ActiveSessionEngine) publishReps(before RepCount) {
	after := e.reps.Count()
	if after == before {
		return
	}
	e.w.setRepCount(after)
	for range after.Warmup - before.Warmup {
		metrics.ObserveRep(true)
		e.store.emitHaptic(telemetry.HapticRepCompleted)
	}
	for range after.Working - before.Working {
		metrics.ObserveRep(false)
		e.store.emitHaptic(telemetry.HapticRepCompleted)
	}
	target := e.reps.WarmupTarget()
	if target > 0 && before.Warmup < target && after.Warmup >= target {
		e.store.emitHaptic(telemetry.HapticWarmupComplete)
	}
}

// evaluateAutoStop returns true when it ended the set.
func (e *ActiveSessionEngine) evaluateAutoStop(s telemetry.Sample) bool {
	if e.phase() != PhaseActive {
		return false
	}
	params := e.store.parameters.Get()
	bottom, top, known := e.reps.RangeOfMotion()
	prev := e.store.autoStop.Get()
	next, reason, fired := EvaluateAutoStop(e.settings.AutoStop, prev, AutoStopInput{
		Sample:         s,
		ROMBottom:      bottom,
		ROMTop:         top,
		ROMKnown:       known,
		LastRepAt:      e.reps.LastRepAt(),
		IsAMRAP:        params.IsAMRAP || params.IsJustLift || params.Reps <= 0,
		StallDetection: params.StallDetectionEnabled,
	})
	if next != prev {
		e.w.setAutoStop(next)
	}
	if !fired {
		return false
	}
	e.logger.Printf("ActiveSession: Auto-stop triggered (%s)", reason)
	e.HandleSetCompletion(reason)
	return true
}

// HandleSetCompletion ends the active set: stops the machine, saves the
// session, publishes SetSummary and starts the rest timer. Repeated calls
// are no-ops until the next set starts.
func (e *ActiveSessionEngine) HandleSetCompletion(reason history.CompletionReason) {
	if e.store.SetCompletionInProgress() {
		e.logger.Printf("ActiveSession: Set completion already in progress, ignoring %s", reason)
		return
	}
	if e.phase() != PhaseActive {
		e.logger.Printf("ActiveSession: Ignoring set completion (%s) in %s", reason, e.phase())
		return
	}
	e.w.setCompletionInProgress(true)
	e.store.cancelTimer(TimerBodyweight)
	e.store.cancelTimer(TimerCountdown)

	if !e.bodyweight {
		ctx, cancel := e.commandContext()
		if err := e.device.SendStop(ctx); err != nil {
			e.deviceFailure("stop", "Could not stop the machine", err)
		}
		cancel()
	}

	record, summary := e.buildRecord(reason)
	if e.detectPersonalRecord(record) {
		record.IsPersonalRecord = true
		summary.IsPersonalRecord = true
	}
	e.persist(record, summary)

	totals := e.store.totals.Get()
	totals.SetsCompleted++
	totals.TotalReps += record.TotalReps
	totals.TotalVolumeKg += record.TotalVolumeKg
	e.w.setTotals(totals)

	metrics.ObserveSetCompleted(string(reason), record.Duration.Seconds())
	e.store.emitHaptic(telemetry.HapticSetComplete)
	if summary.IsPersonalRecord {
		e.store.emitHaptic(telemetry.HapticPersonalRecord)
	}

	summary.RestSeconds = e.restAfterCurrentSet()
	e.logger.Printf("ActiveSession: Set complete (%s): %d working + %d warm-up reps at %.1f kg",
		reason, record.WorkingReps, record.WarmupReps, record.WeightPerCableKg)
	e.w.setWorkoutState(summaryState(summary))

	if summary.RestSeconds > 0 {
		e.startRestTimer(summary.RestSeconds)
	}
}

func (e *ActiveSessionEngine) buildRecord(reason history.CompletionReason) (history.SessionRecord, SetSummary) {
	params := e.store.parameters.Get()
	count := e.reps.Count()
	now := e.sched.Now()
	duration := now.Sub(e.setStartedAt)

	working := count.Working
	total := count.Total
	if e.bodyweight && working == 0 {
		working = params.Reps
		total = params.Reps + count.Warmup
	}

	rec := history.SessionRecord{
		ID:               uuid.NewString(),
		StartedAt:        e.setStartedAt,
		Duration:         duration,
		ProgramMode:      params.ProgramMode,
		WeightPerCableKg: params.WeightPerCableKg,
		TargetReps:       params.Reps,
		IsAMRAP:          params.IsAMRAP,
		IsJustLift:       params.IsJustLift,
		WorkingReps:      working,
		WarmupReps:       count.Warmup,
		TotalReps:        total,
		TotalVolumeKg:    params.WeightPerCableKg * float64(working),
		CompletionReason: reason,
		ExerciseName:     justLiftName,
	}
	rec.Metrics, rec.PeakForceKg, rec.AverageForceKg = e.metricHistory()

	pos := e.store.position.Get()
	if ex := e.currentExercise(); ex != nil {
		rec.RoutineExerciseID = ex.ID
		rec.ExerciseID = ex.Exercise.ID
		rec.ExerciseName = ex.Exercise.Name
		if r := e.store.loaded.Get(); r != nil {
			rec.RoutineID = r.ID
		}
	}

	summary := SetSummary{
		SessionID:        rec.ID,
		ExerciseName:     rec.ExerciseName,
		ExerciseIndex:    pos.ExerciseIndex,
		SetIndex:         pos.SetIndex,
		WorkingReps:      rec.WorkingReps,
		WarmupReps:       rec.WarmupReps,
		TotalReps:        rec.TotalReps,
		WeightPerCableKg: rec.WeightPerCableKg,
		Duration:         duration,
		PeakForceKg:      rec.PeakForceKg,
		AverageForceKg:   rec.AverageForceKg,
		TotalVolumeKg:    rec.TotalVolumeKg,
		Reason:           reason,
	}
	return rec, summary
}

func (e *ActiveSessionEngine) metricHistory() (points []history.MetricPoint, peak, avg float64) {
	if len(e.samples) == 0 {
		return nil, 0, 0
	}
	points = make([]history.MetricPoint, 0, len(e.samples))
	var sum float64
	for _, s := range e.samples {
		points = append(points, history.MetricPoint{
			OffsetMs: s.Timestamp.Sub(e.setStartedAt).Milliseconds(),
			Position: s.Position,
			Velocity: s.Velocity,
			Force:    s.Force,
		})
		peak = math.Max(peak, s.Force)
		sum += s.Force
	}
	avg = sum / float64(len(e.samples))
	return history.Downsample(points, e.settings.MetricHistoryLimit), peak, avg
}

// detectPersonalRecord compares the set against the stored PR and saves it
// when beaten.
func (e *ActiveSessionEngine) detectPersonalRecord(rec history.SessionRecord) bool {
	if rec.ExerciseID == "" || rec.WorkingReps == 0 || rec.WeightPerCableKg <= 0 {
		return false
	}
	ctx, cancel := e.commandContext()
	defer cancel()

	best, found, err := e.sessions.PersonalRecord(ctx, rec.ExerciseID, rec.ProgramMode)
	if err != nil {
		e.storageFailure("personal_record", "Could not look up personal record", err)
		return false
	}
	candidate := history.PersonalRecord{
		ExerciseID:       rec.ExerciseID,
		ProgramMode:      rec.ProgramMode,
		WeightPerCableKg: rec.WeightPerCableKg,
		Reps:             rec.WorkingReps,
		AchievedAt:       rec.StartedAt.Add(rec.Duration),
	}
	if found && candidate.Volume() <= best.Volume() {
		return false
	}
	if err := e.sessions.SavePersonalRecord(ctx, candidate); err != nil {
		e.storageFailure("save_personal_record", "Could not save personal record", err)
	}
	e.logger.Printf("ActiveSession: New personal record for %s: %d x %.1f kg",
		rec.ExerciseName, candidate.Reps, candidate.WeightPerCableKg)
	return true
}

func (e *ActiveSessionEngine) persist(rec history.SessionRecord, summary SetSummary) {
	ctx, cancel := e.commandContext()
	defer cancel()

	if err := e.sessions.SaveSession(ctx, rec); err != nil {
		e.storageFailure("save_session", "Could not save the set", err)
	}
	if rec.IsJustLift || e.store.loaded.Get() == nil {
		return
	}
	set := history.CompletedSet{
		ID:               uuid.NewString(),
		SessionID:        rec.ID,
		RoutineID:        rec.RoutineID,
		ExerciseIndex:    summary.ExerciseIndex,
		SetIndex:         summary.SetIndex,
		ExerciseID:       rec.ExerciseID,
		WeightPerCableKg: rec.WeightPerCableKg,
		TargetReps:       rec.TargetReps,
		ActualReps:       rec.WorkingReps,
		IsAMRAP:          rec.IsAMRAP,
		CompletedAt:      rec.StartedAt.Add(rec.Duration),
	}
	if err := e.sessions.SaveCompletedSet(ctx, set); err != nil {
		e.storageFailure("save_completed_set", "Could not save the set log", err)
	}
}

// restAfterCurrentSet sizes the rest before the next step, zero when the
// routine is finished or outside a routine.
func (e *ActiveSessionEngine) restAfterCurrentSet() int {
	if e.store.parameters.Get().IsJustLift {
		return 0
	}
	r := e.store.loaded.Get()
	pos := e.store.position.Get()
	if r == nil || !r.Contains(pos) {
		return 0
	}
	next, ok := r.NextStep(pos)
	if !ok {
		return 0
	}
	current := r.Exercises[pos.ExerciseIndex]
	if current.SupersetID != "" && r.Exercises[next.ExerciseIndex].SupersetID == current.SupersetID {
		if ss, ok := r.Superset(current.SupersetID); ok {
			return ss.RestBetweenSeconds
		}
	}
	if current.RestSeconds > 0 {
		return current.RestSeconds
	}
	return e.settings.DefaultRestSeconds
}

func (e *ActiveSessionEngine) startRestTimer(seconds int) {
	e.restRemaining = seconds
	e.scheduleRestTick()
}

func (e *ActiveSessionEngine) scheduleRestTick() {
	var t Timer
	t = e.sched.AfterFunc(time.Second, func() {
		e.restRemaining--
		if e.restRemaining <= 0 {
			e.restRemaining = 0
			e.w.releaseTimer(TimerRest, t)
			e.logger.Printf("ActiveSession: Rest elapsed")
			e.w.notifyRestElapsed()
			return
		}
		if e.phase() == PhaseResting {
			e.w.setWorkoutState(restingState(e.restRemaining))
		}
		if e.restRemaining == restEndingWarningSeconds {
			e.store.emitHaptic(telemetry.HapticRestEnding)
		}
		e.scheduleRestTick()
	})
	e.w.trackTimer(TimerRest, t)
}

// EnterResting moves from SetSummary to Resting. It returns false when no
// rest timer is running.
func (e *ActiveSessionEngine) EnterResting() bool {
	if e.phase() != PhaseSetSummary || !e.store.TimerPending(TimerRest) {
		return false
	}
	e.w.setWorkoutState(restingState(e.restRemaining))
	return true
}

// SkipRest ends the rest period now.
func (e *ActiveSessionEngine) SkipRest() {
	phase := e.phase()
	if phase != PhaseSetSummary && phase != PhaseResting {
		return
	}
	e.store.cancelTimer(TimerRest)
	e.restRemaining = 0
	e.logger.Printf("ActiveSession: Rest skipped")
	e.w.notifyRestElapsed()
}

// StopWorkout is the user's stop button. While a stop is in progress
// further calls are ignored; only StartWorkout clears that guard.
func (e *ActiveSessionEngine) StopWorkout() {
	if e.store.StopWorkoutInProgress() {
		e.logger.Printf("ActiveSession: Stop already in progress, ignoring")
		return
	}
	e.w.setStopInProgress(true)

	switch phase := e.phase(); phase {
	case PhaseActive:
		e.HandleSetCompletion(history.ReasonUserStop)
	case PhaseInitializing, PhaseCountdown:
		e.store.cancelAllTimers()
		if !e.bodyweight {
			ctx, cancel := e.commandContext()
			if err := e.device.SendStop(ctx); err != nil {
				e.deviceFailure("stop", "Could not stop the machine", err)
			}
			cancel()
		}
		e.ResetForNewSet()
		e.w.setWorkoutState(idleState())
	case PhaseSetSummary, PhaseResting:
		e.store.cancelAllTimers()
		e.restRemaining = 0
		e.w.setWorkoutState(idleState())
	default:
		e.logger.Printf("ActiveSession: Nothing to stop in %s", phase)
	}
}

// FinishWorkout publishes Completed.
func (e *ActiveSessionEngine) FinishWorkout() {
	e.store.cancelAllTimers()
	e.restRemaining = 0
	e.w.setWorkoutState(completedState())
	e.store.emitHaptic(telemetry.HapticWorkoutComplete)
	totals := e.store.totals.Get()
	e.logger.Printf("ActiveSession: Workout complete: %d sets, %d reps", totals.SetsCompleted, totals.TotalReps)
}

// ResetToIdle cancels timers and returns to Idle with fresh counters.
func (e *ActiveSessionEngine) ResetToIdle() {
	e.store.cancelAllTimers()
	e.restRemaining = 0
	e.ResetForNewSet()
	e.w.setTotals(SessionTotals{})
	e.w.setWorkoutState(idleState())
}

// AdjustWeight sets the per-cable weight.
func (e *ActiveSessionEngine) AdjustWeight(kg float64) {
	e.setWeight(kg)
}

// IncrementWeight changes the per-cable weight by delta.
func (e *ActiveSessionEngine) IncrementWeight(delta float64) {
	e.setWeight(e.store.parameters.Get().WeightPerCableKg + delta)
}

// ApplyWeightPreset selects one of the configured weights.
func (e *ActiveSessionEngine) ApplyWeightPreset(index int) bool {
	if index < 0 || index >= len(e.settings.WeightPresetsKg) {
		return false
	}
	e.setWeight(e.settings.WeightPresetsKg[index])
	return true
}

func (e *ActiveSessionEngine) setWeight(kg float64) {
	kg = ClampWeight(e.settings, kg)
	e.w.updateParameters(func(p WorkoutParameters) WorkoutParameters {
		p.WeightPerCableKg = kg
		return p
	})
	if e.phase() != PhaseActive || e.bodyweight {
		return
	}
	ctx, cancel := e.commandContext()
	defer cancel()
	if err := e.device.SendWeight(ctx, kg); err != nil {
		e.deviceFailure("weight", "Could not change the weight", err)
	}
}

// SetProgramMode changes the resistance program.
func (e *ActiveSessionEngine) SetProgramMode(mode routine.ProgramMode) {
	e.updateProgram(func(p WorkoutParameters) WorkoutParameters {
		p.ProgramMode = mode
		return p
	})
}

// SetEchoLevel changes the echo difficulty.
func (e *ActiveSessionEngine) SetEchoLevel(level routine.EchoLevel) {
	e.updateProgram(func(p WorkoutParameters) WorkoutParameters {
		p.EchoLevel = level
		return p
	})
}

// SetEccentricLoad sets the eccentric load percentage, clamped to 0..150.
func (e *ActiveSessionEngine) SetEccentricLoad(percent int) {
	percent = min(max(percent, 0), 150)
	e.updateProgram(func(p WorkoutParameters) WorkoutParameters {
		p.EccentricLoadPercent = percent
		return p
	})
}

func (e *ActiveSessionEngine) updateProgram(fn func(WorkoutParameters) WorkoutParameters) {
	p := e.w.updateParameters(fn)
	if e.phase() != PhaseActive || e.bodyweight {
		return
	}
	e.sendProgram(p)
}

// SetTargetReps sets the rep target; zero means no target.
func (e *ActiveSessionEngine) SetTargetReps(reps int) {
	e.w.updateParameters(func(p WorkoutParameters) WorkoutParameters {
		p.Reps = max(reps, 0)
		p.IsAMRAP = p.Reps == 0
		return p
	})
}

// SetAMRAP toggles as-many-reps-as-possible for the next set.
func (e *ActiveSessionEngine) SetAMRAP(amrap bool) {
	e.w.updateParameters(func(p WorkoutParameters) WorkoutParameters {
		p.IsAMRAP = amrap
		return p
	})
}

// SetStallDetection toggles velocity-based auto-stop.
func (e *ActiveSessionEngine) SetStallDetection(enabled bool) {
	e.w.updateParameters(func(p WorkoutParameters) WorkoutParameters {
		p.StallDetectionEnabled = enabled
		return p
	})
}

func (e *ActiveSessionEngine) sendProgram(p WorkoutParameters) {
	ctx, cancel := e.commandContext()
	defer cancel()
	if err := e.device.SendProgramMode(ctx, p.ProgramMode); err != nil {
		e.deviceFailure("program_mode", "Could not set the program mode", err)
		return
	}
	if err := e.device.SendWeight(ctx, p.WeightPerCableKg); err != nil {
		e.deviceFailure("weight", "Could not set the weight", err)
	}
}

func (e *ActiveSessionEngine) commandContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(e.ctx, e.settings.CommandTimeout)
}

func (e *ActiveSessionEngine) deviceFailure(command, message string, err error) {
	metrics.ObserveDeviceFailure(command)
	e.store.warn(telemetry.WarningSourceDevice, message, err)
	e.store.emitHaptic(telemetry.HapticError)
}

func (e *ActiveSessionEngine) storageFailure(operation, message string, err error) {
	metrics.ObserveStorageFailure(operation)
	e.store.warn(telemetry.WarningSourceStorage, message, err)
}

// ClampWeight snaps kg to the weight step and clamps it to the configured
// bounds.
func ClampWeight(s Settings, kg float64) float64 {
	if s.WeightStepKg > 0 {
		kg = math.Round(kg/s.WeightStepKg) * s.WeightStepKg
	}
	return min(max(kg, s.MinWeightKg), s.MaxWeightKg)
}
