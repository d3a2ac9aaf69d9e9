package session

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/lowaak/smart-trainer/cable-trainer-app/internal/metrics"
	"github.com/lowaak/smart-trainer/cable-trainer-app/internal/routine"
	"github.com/lowaak/smart-trainer/cable-trainer-app/internal/telemetry"
)

// setRunner is what navigation needs from the active session engine.
type setRunner interface {
	StageParameters(p WorkoutParameters)
	ResetForNewSet()
	ResetAutoStop()
	StartWorkout(skipCountdown, isJustLift bool) error
}

// NavigationEngine owns the loaded routine, the current position and the
// routine flow screens. Methods touching state must run on the session
// executor; ResolveRoutine and the superset operations may run anywhere.
type NavigationEngine struct {
	store    *Store
	w        navigationWriter
	runner   setRunner
	device   Device
	routines RoutineRepository
	sessions SessionRepository
	sched    Scheduler
	settings Settings
	logger   *log.Logger
	ctx      context.Context
}

func newNavigationEngine(ctx context.Context, store *Store, runner setRunner, device Device, routines RoutineRepository,
	sessions SessionRepository, sched Scheduler, settings Settings, logger *log.Logger) *NavigationEngine {
	if store == nil {
		panic("Navigation: store cannot be nil")
	}
	if runner == nil {
		panic("Navigation: runner cannot be nil")
	}
	if device == nil {
		panic("Navigation: device cannot be nil")
	}
	if routines == nil {
		panic("Navigation: routines cannot be nil")
	}
	if sessions == nil {
		panic("Navigation: sessions cannot be nil")
	}
	if logger == nil {
		panic("Navigation: logger cannot be nil")
	}
	return &NavigationEngine{
		store:    store,
		w:        navigationWriter{s: store},
		runner:   runner,
		device:   device,
		routines: routines,
		sessions: sessions,
		sched:    sched,
		settings: settings,
		logger:   logger,
		ctx:      ctx,
	}
}

// ValidateRoutine rejects routines that cannot be loaded.
func ValidateRoutine(r *routine.Routine) error {
	if r == nil || len(r.Exercises) == 0 {
		return ErrEmptyRoutine
	}
	return nil
}

// ResolveRoutine returns a copy of r with percentage-of-PR weights replaced
// by absolute weights. Lookup failures keep the absolute weights.
func (n *NavigationEngine) ResolveRoutine(ctx context.Context, r *routine.Routine) *routine.Routine {
	out := r.Clone()
	for i := range out.Exercises {
		ex := &out.Exercises[i]
		if !ex.UsesPercentOfPR() || ex.Exercise.ID == "" {
			continue
		}
		pr, found, err := n.sessions.PersonalRecord(ctx, ex.Exercise.ID, ex.ProgramMode)
		if err != nil {
			metrics.ObserveStorageFailure("personal_record")
			n.store.warn(telemetry.WarningSourceStorage, "Could not resolve weight from personal record for "+ex.Exercise.Name, err)
			continue
		}
		if !found {
			n.logger.Printf("Navigation: No personal record for %s, using absolute weight", ex.Exercise.Name)
			continue
		}
		*ex = ex.ResolvePercentOfPR(pr.WeightPerCableKg)
	}
	return out
}

// LoadRoutine validates, resolves and publishes r. It is the synchronous
// form used on the executor; the session façade splits it so the PR lookup
// happens off the executor.
func (n *NavigationEngine) LoadRoutine(r *routine.Routine) error {
	if err := ValidateRoutine(r); err != nil {
		return err
	}
	if err := n.RefuseWhileActive(loadBlockedMessage); err != nil {
		return err
	}
	n.PublishRoutine(n.ResolveRoutine(n.ctx, r))
	return nil
}

const loadBlockedMessage = "Stop the current set before loading a routine"

// RefuseWhileActive warns with message and returns ErrBlockedByActiveSet
// while a set is active.
func (n *NavigationEngine) RefuseWhileActive(message string) error {
	if n.store.workoutState.Get().Phase != PhaseActive {
		return nil
	}
	n.store.warn(telemetry.WarningSourceNavigation, message, ErrBlockedByActiveSet)
	return ErrBlockedByActiveSet
}

// PublishLoadedRoutine is PublishRoutine for a routine whose resolution
// finished after the load was requested; it is dropped if a set went active
// meanwhile.
func (n *NavigationEngine) PublishLoadedRoutine(r *routine.Routine) error {
	if err := n.RefuseWhileActive(loadBlockedMessage); err != nil {
		return err
	}
	n.PublishRoutine(r)
	return nil
}

// PublishRoutine makes r the loaded routine: position (0,0), cleared
// progress and parameters seeded from the first set. The flow state is left
// alone.
func (n *NavigationEngine) PublishRoutine(r *routine.Routine) {
	n.w.setRoutine(r)
	n.w.setPosition(routine.Step{})
	n.w.setProgress(RoutineProgress{StartedAt: n.sched.Now()})
	n.runner.StageParameters(n.parametersFor(r, routine.Step{}))
	n.runner.ResetForNewSet()
	n.logger.Printf("Navigation: Loaded routine '%s' (%d exercises, %d sets)", r.Name, len(r.Exercises), r.TotalSets())
}

// parametersFor derives the workout parameters of a routine step.
func (n *NavigationEngine) parametersFor(r *routine.Routine, step routine.Step) WorkoutParameters {
	ex := &r.Exercises[step.ExerciseIndex]
	reps, amrap := ex.SetTarget(step.SetIndex)
	warmup := n.settings.DefaultWarmupReps
	if ex.WarmupReps != nil {
		warmup = *ex.WarmupReps
	}
	if ex.Exercise.IsBodyweight() {
		warmup = 0
	}
	eccentric := ex.EccentricLoadPercent
	if eccentric == 0 {
		eccentric = 100
	}
	return WorkoutParameters{
		ProgramMode:           ex.ProgramMode,
		EchoLevel:             ex.EchoLevel,
		EccentricLoadPercent:  eccentric,
		Reps:                  reps,
		WeightPerCableKg:      ex.SetWeight(step.SetIndex),
		ProgressionKg:         ex.ProgressionKg,
		IsAMRAP:               amrap,
		StallDetectionEnabled: ex.StallDetectionEnabled,
		WarmupReps:            warmup,
		SelectedExerciseID:    ex.Exercise.ID,
	}
}

// EnterRoutineOverview shows the routine overview, loading r first when it
// is not the loaded routine. A nil r reuses the loaded routine.
func (n *NavigationEngine) EnterRoutineOverview(r *routine.Routine) error {
	if err := n.RefuseWhileActive("Stop the current set before opening the routine overview"); err != nil {
		return err
	}
	loaded := n.store.loaded.Get()
	if r == nil {
		if loaded == nil {
			return ErrNoRoutineLoaded
		}
		r = loaded
	}
	if err := ValidateRoutine(r); err != nil {
		return err
	}
	if loaded == nil || (r != loaded && (r.ID == "" || r.ID != loaded.ID)) {
		n.PublishRoutine(r)
	} else {
		r = loaded
		n.runner.StageParameters(n.parametersFor(r, n.store.position.Get()))
	}
	n.w.setRoutineFlow(RoutineFlowState{Kind: FlowOverview, Routine: r})
	return nil
}

// SelectExerciseInOverview highlights an exercise. Out-of-range indexes and
// calls outside the overview are ignored.
func (n *NavigationEngine) SelectExerciseInOverview(index int) {
	flow := n.store.routineFlow.Get()
	if flow.Kind != FlowOverview || flow.Routine == nil {
		return
	}
	if index < 0 || index >= len(flow.Routine.Exercises) {
		return
	}
	flow.SelectedExerciseIndex = index
	n.w.setRoutineFlow(flow)
}

// EnterSetReady stages a set for the user to confirm.
func (n *NavigationEngine) EnterSetReady(exerciseIndex, setIndex int) error {
	r := n.store.loaded.Get()
	if r == nil {
		return ErrNoRoutineLoaded
	}
	step := routine.Step{ExerciseIndex: exerciseIndex, SetIndex: setIndex}
	if !r.Contains(step) {
		return fmt.Errorf("%w: exercise %d set %d", ErrInvalidPosition, exerciseIndex, setIndex)
	}
	if n.store.workoutState.Get().Phase == PhaseActive {
		return ErrBlockedByActiveSet
	}
	n.w.setPosition(step)
	p := n.parametersFor(r, step)
	n.runner.StageParameters(p)
	n.w.setRoutineFlow(setReadyFlow(step, p))
	return nil
}

func setReadyFlow(step routine.Step, p WorkoutParameters) RoutineFlowState {
	flow := RoutineFlowState{
		Kind:             FlowSetReady,
		ExerciseIndex:    step.ExerciseIndex,
		SetIndex:         step.SetIndex,
		AdjustedWeightKg: p.WeightPerCableKg,
		AdjustedReps:     p.Reps,
		AdjustedAMRAP:    p.IsAMRAP,
	}
	switch p.ProgramMode {
	case routine.ProgramEcho:
		level := p.EchoLevel
		flow.EchoLevel = &level
		eccentric := p.EccentricLoadPercent
		flow.EccentricLoadPercent = &eccentric
	case routine.ProgramEccentricOnly:
		eccentric := p.EccentricLoadPercent
		flow.EccentricLoadPercent = &eccentric
	}
	return flow
}

// AdjustSetReady changes the staged weight and reps. Zero reps means AMRAP.
func (n *NavigationEngine) AdjustSetReady(weightKg float64, reps int) error {
	flow := n.store.routineFlow.Get()
	if flow.Kind != FlowSetReady {
		return ErrNotInSetReady
	}
	flow.AdjustedWeightKg = ClampWeight(n.settings, weightKg)
	flow.AdjustedReps = max(reps, 0)
	flow.AdjustedAMRAP = flow.AdjustedReps == 0
	n.w.setRoutineFlow(flow)

	p := n.store.parameters.Get()
	p.WeightPerCableKg = flow.AdjustedWeightKg
	p.Reps = flow.AdjustedReps
	p.IsAMRAP = flow.AdjustedAMRAP
	n.runner.StageParameters(p)
	return nil
}

// SetReadyNext stages the step after the one in SetReady.
func (n *NavigationEngine) SetReadyNext() (bool, error) {
	return n.stepSetReady((*routine.Routine).NextStep)
}

// SetReadyPrevious stages the step before the one in SetReady.
func (n *NavigationEngine) SetReadyPrevious() (bool, error) {
	return n.stepSetReady((*routine.Routine).PreviousStep)
}

func (n *NavigationEngine) stepSetReady(move func(*routine.Routine, routine.Step) (routine.Step, bool)) (bool, error) {
	flow := n.store.routineFlow.Get()
	if flow.Kind != FlowSetReady {
		return false, ErrNotInSetReady
	}
	r := n.store.loaded.Get()
	if r == nil {
		return false, ErrNoRoutineLoaded
	}
	step, ok := move(r, routine.Step{ExerciseIndex: flow.ExerciseIndex, SetIndex: flow.SetIndex})
	if !ok {
		return false, nil
	}
	return true, n.EnterSetReady(step.ExerciseIndex, step.SetIndex)
}

// StartSetFromReady starts the staged set without a countdown.
func (n *NavigationEngine) StartSetFromReady() error {
	flow := n.store.routineFlow.Get()
	if flow.Kind != FlowSetReady {
		return ErrNotInSetReady
	}
	r := n.store.loaded.Get()
	step := routine.Step{ExerciseIndex: flow.ExerciseIndex, SetIndex: flow.SetIndex}
	if r == nil || !r.Contains(step) {
		return invariant(n.logger, "set ready points at exercise %d set %d outside the loaded routine",
			step.ExerciseIndex, step.SetIndex)
	}
	p := n.store.parameters.Get()
	p.WeightPerCableKg = flow.AdjustedWeightKg
	p.Reps = flow.AdjustedReps
	p.IsAMRAP = flow.AdjustedAMRAP
	p.IsJustLift = false
	p.UseAutoStart = false
	n.runner.StageParameters(p)
	n.runner.ResetForNewSet()
	return n.runner.StartWorkout(true, false)
}

// NextStep returns the step after the current position.
func (n *NavigationEngine) NextStep() (routine.Step, bool) {
	r := n.store.loaded.Get()
	if r == nil {
		return routine.Step{}, false
	}
	return r.NextStep(n.store.position.Get())
}

// PreviousStep returns the step before the current position.
func (n *NavigationEngine) PreviousStep() (routine.Step, bool) {
	r := n.store.loaded.Get()
	if r == nil {
		return routine.Step{}, false
	}
	return r.PreviousStep(n.store.position.Get())
}

// AdvanceTo moves to step after a finished set. In a routine flow it stages
// SetReady; in single-exercise mode it only moves and restages parameters.
func (n *NavigationEngine) AdvanceTo(step routine.Step) error {
	r := n.store.loaded.Get()
	if r == nil {
		return ErrNoRoutineLoaded
	}
	if !r.Contains(step) {
		return invariant(n.logger, "advance to exercise %d set %d outside the loaded routine",
			step.ExerciseIndex, step.SetIndex)
	}
	prev := n.store.position.Get()
	if step.ExerciseIndex != prev.ExerciseIndex && r.Contains(prev) &&
		prev.SetIndex == r.Exercises[prev.ExerciseIndex].SetCount()-1 {
		n.w.updateProgress(func(p RoutineProgress) RoutineProgress { return p.markCompleted(prev.ExerciseIndex) })
	}
	if n.store.routineFlow.Get().Kind == FlowNotInRoutine {
		n.w.setPosition(step)
		n.runner.StageParameters(n.parametersFor(r, step))
		return nil
	}
	return n.EnterSetReady(step.ExerciseIndex, step.SetIndex)
}

// JumpToExercise abandons the current exercise and starts another one with
// a countdown. It is refused while a set is active.
func (n *NavigationEngine) JumpToExercise(index int) error {
	if err := n.RefuseWhileActive("Stop the current set before switching exercises"); err != nil {
		return err
	}
	r := n.store.loaded.Get()
	if r == nil {
		return ErrNoRoutineLoaded
	}
	if index < 0 || index >= len(r.Exercises) {
		return fmt.Errorf("%w: exercise %d", ErrInvalidPosition, index)
	}

	prev := n.store.position.Get()
	if prev.ExerciseIndex != index {
		if n.store.repCount.Get().Working > 0 {
			n.w.updateProgress(func(p RoutineProgress) RoutineProgress { return p.markCompleted(prev.ExerciseIndex) })
		} else {
			n.w.updateProgress(func(p RoutineProgress) RoutineProgress { return p.markSkipped(prev.ExerciseIndex) })
		}
	}

	n.store.cancelTimer(TimerRest)
	n.store.cancelTimer(TimerBodyweight)
	n.store.cancelTimer(TimerCountdown)
	n.runner.ResetAutoStop()
	n.resetDevice()

	step := routine.Step{ExerciseIndex: index}
	n.w.setPosition(step)
	p := n.parametersFor(r, step)
	n.runner.StageParameters(p)
	if n.store.routineFlow.Get().Kind != FlowNotInRoutine {
		n.w.setRoutineFlow(setReadyFlow(step, p))
	}
	n.logger.Printf("Navigation: Jumped from exercise %d to %d", prev.ExerciseIndex, index)
	return n.runner.StartWorkout(false, false)
}

// resetDevice clears any fault and resets the machine, in that order, each
// followed by the settle delay. Failures are logged and tolerated.
func (n *NavigationEngine) resetDevice() {
	ctx, cancel := context.WithTimeout(n.ctx, n.settings.CommandTimeout+2*n.settings.SettleDelay)
	defer cancel()

	if err := n.device.SendClearFault(ctx); err != nil {
		metrics.ObserveDeviceFailure("clear_fault")
		n.logger.Printf("Navigation: Clear fault failed, continuing: %v", err)
	}
	settle(ctx, n.settings.SettleDelay)
	if err := n.device.SendReset(ctx); err != nil {
		metrics.ObserveDeviceFailure("reset")
		n.logger.Printf("Navigation: Reset failed, continuing: %v", err)
	}
	settle(ctx, n.settings.SettleDelay)
}

func settle(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

// CompleteRoutine publishes Complete for a routine flow and records the
// routine's use.
func (n *NavigationEngine) CompleteRoutine() {
	r := n.store.loaded.Get()
	if r == nil {
		return
	}
	pos := n.store.position.Get()
	if n.store.repCount.Get().Working > 0 {
		n.w.updateProgress(func(p RoutineProgress) RoutineProgress { return p.markCompleted(pos.ExerciseIndex) })
	}
	now := n.sched.Now()
	progress := n.store.progress.Get()
	if n.store.routineFlow.Get().Kind != FlowNotInRoutine {
		var duration time.Duration
		if !progress.StartedAt.IsZero() {
			duration = now.Sub(progress.StartedAt)
		}
		n.w.setRoutineFlow(RoutineFlowState{
			Kind:            FlowComplete,
			RoutineName:     r.Name,
			TotalSets:       n.store.totals.Get().SetsCompleted,
			TotalExercises:  len(progress.Completed),
			TotalDurationMs: duration.Milliseconds(),
		})
	}
	n.logger.Printf("Navigation: Routine '%s' complete", r.Name)
	if r.ID == "" {
		return
	}
	used := r.Clone()
	used.LastUsed = now
	used.UseCount++
	ctx, cancel := context.WithTimeout(n.ctx, n.settings.CommandTimeout)
	defer cancel()
	if err := n.routines.SaveRoutine(ctx, used); err != nil {
		metrics.ObserveStorageFailure("save_routine")
		n.store.warn(telemetry.WarningSourceStorage, "Could not record routine use", err)
		return
	}
	n.w.setRoutine(used)
}

// LoadSingleExercise loads ex as a one-exercise routine outside any routine
// flow.
func (n *NavigationEngine) LoadSingleExercise(ex routine.RoutineExercise) {
	r := &routine.Routine{Name: ex.Exercise.Name, Exercises: []routine.RoutineExercise{ex}}
	r.Normalize()
	n.w.setRoutineFlow(notInRoutine())
	n.PublishRoutine(r)
}

// ExitRoutine leaves the routine flow and unloads the routine.
func (n *NavigationEngine) ExitRoutine() {
	n.w.setRoutineFlow(notInRoutine())
	n.w.setRoutine(nil)
	n.w.setPosition(routine.Step{})
	n.w.setProgress(RoutineProgress{})
}

// CreateSuperset adds an empty superset to r and saves it.
func (n *NavigationEngine) CreateSuperset(ctx context.Context, r *routine.Routine, name string) (*routine.Routine, routine.Superset, error) {
	out, ss := routine.CreateSuperset(r, name)
	if err := n.routines.SaveSuperset(ctx, ss); err != nil {
		metrics.ObserveStorageFailure("save_superset")
		return nil, routine.Superset{}, fmt.Errorf("create superset: %w", err)
	}
	return out, ss, nil
}

// UpdateSuperset saves new superset settings.
func (n *NavigationEngine) UpdateSuperset(ctx context.Context, r *routine.Routine, ss routine.Superset) (*routine.Routine, error) {
	out, err := routine.UpdateSuperset(r, ss)
	if err != nil {
		return nil, err
	}
	if err := n.routines.SaveSuperset(ctx, ss); err != nil {
		metrics.ObserveStorageFailure("save_superset")
		return nil, fmt.Errorf("update superset: %w", err)
	}
	return out, nil
}

// DeleteSuperset removes a superset and detaches its members.
func (n *NavigationEngine) DeleteSuperset(ctx context.Context, r *routine.Routine, supersetID string) (*routine.Routine, error) {
	out, err := routine.DeleteSuperset(r, supersetID)
	if err != nil {
		return nil, err
	}
	if err := n.routines.DeleteSuperset(ctx, r.ID, supersetID); err != nil {
		metrics.ObserveStorageFailure("delete_superset")
		return nil, fmt.Errorf("delete superset: %w", err)
	}
	if err := n.routines.SaveRoutine(ctx, out); err != nil {
		metrics.ObserveStorageFailure("save_routine")
		return nil, fmt.Errorf("delete superset: %w", err)
	}
	return out, nil
}

// AddExerciseToSuperset moves an exercise into a superset.
func (n *NavigationEngine) AddExerciseToSuperset(ctx context.Context, r *routine.Routine, exerciseID, supersetID string) (*routine.Routine, error) {
	out, err := routine.AddExerciseToSuperset(r, exerciseID, supersetID)
	if err != nil {
		return nil, err
	}
	if err := n.routines.SaveRoutine(ctx, out); err != nil {
		metrics.ObserveStorageFailure("save_routine")
		return nil, fmt.Errorf("add exercise to superset: %w", err)
	}
	return out, nil
}

// RemoveExerciseFromSuperset makes an exercise standalone again.
func (n *NavigationEngine) RemoveExerciseFromSuperset(ctx context.Context, r *routine.Routine, exerciseID string) (*routine.Routine, error) {
	out, err := routine.RemoveExerciseFromSuperset(r, exerciseID)
	if err != nil {
		return nil, err
	}
	if err := n.routines.SaveRoutine(ctx, out); err != nil {
		metrics.ObserveStorageFailure("save_routine")
		return nil, fmt.Errorf("remove exercise from superset: %w", err)
	}
	return out, nil
}
