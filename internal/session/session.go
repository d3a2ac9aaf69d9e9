// Package session is the workout session core: a shared state store, the
// routine navigation engine, the active session engine and the Session
// façade that serialises every mutation onto one executor.
package session

import (
	"context"
	"errors"
	"log"
	"sync"

	"github.com/lowaak/smart-trainer/cable-trainer-app/internal/go_func_utils"
	"github.com/lowaak/smart-trainer/cable-trainer-app/internal/routine"
	"github.com/lowaak/smart-trainer/cable-trainer-app/internal/telemetry"
)

const defaultQueueSize = 256

// Deps are the collaborators of a Session.
type Deps struct {
	Device   Device
	Routines RoutineRepository
	Sessions SessionRepository
	Logger   *log.Logger
	Settings Settings
	// Clock defaults to the wall clock.
	Clock     Scheduler
	QueueSize int
}

// Session is the single entry point for the presentation layer and the
// device driver. Commands are executed on the session executor in the order
// they were made.
type Session struct {
	store    *Store
	exec     *Executor
	nav      *NavigationEngine
	active   *ActiveSessionEngine
	routines RoutineRepository
	logger   *log.Logger

	ctx    context.Context
	cancel context.CancelFunc

	// loads tracks routine loads resolving PRs off the executor.
	loads       sync.WaitGroup
	unsubscribe []func()
	closeOnce   sync.Once
}

// New builds a Session and subscribes it to the device streams.
func New(deps Deps) *Session {
	if deps.Device == nil {
		panic("Session: device cannot be nil")
	}
	if deps.Routines == nil {
		panic("Session: routines cannot be nil")
	}
	if deps.Sessions == nil {
		panic("Session: sessions cannot be nil")
	}
	if deps.Logger == nil {
		panic("Session: logger cannot be nil")
	}
	clock := deps.Clock
	if clock == nil {
		clock = wallClock{}
	}
	queueSize := deps.QueueSize
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}

	ctx, cancel := context.WithCancel(context.Background())
	exec := NewExecutor(deps.Logger, queueSize)
	sched := executorScheduler{clock: clock, executor: exec}
	store := newStore(deps.Logger)
	active := newActiveSessionEngine(ctx, store, deps.Device, deps.Sessions, sched, deps.Settings, deps.Logger)
	nav := newNavigationEngine(ctx, store, active, deps.Device, deps.Routines, deps.Sessions, sched, deps.Settings, deps.Logger)

	s := &Session{
		store:    store,
		exec:     exec,
		nav:      nav,
		active:   active,
		routines: deps.Routines,
		logger:   deps.Logger,
		ctx:      ctx,
		cancel:   cancel,
	}

	s.unsubscribe = append(s.unsubscribe,
		store.restElapsed.Listen(func(struct{}) { s.onRestElapsed() }),
		deps.Device.SubscribeTelemetry(func(sample telemetry.Sample) {
			s.submit(func() { s.active.HandleSample(sample) })
		}),
		deps.Device.SubscribeReps(func(ev telemetry.RepEvent) {
			s.submit(func() { s.active.HandleRepEvent(ev) })
		}),
		deps.Device.SubscribeConnectionErrors(func(err error) {
			s.submit(func() {
				s.store.warn(telemetry.WarningSourceConnection, "Lost connection to the machine", err)
				s.store.emitHaptic(telemetry.HapticError)
			})
		}),
	)
	return s
}

// Store exposes the observable session state.
func (s *Session) Store() *Store { return s.store }

func (s *Session) submit(fn func()) {
	if err := s.exec.Submit(fn); err != nil {
		s.logger.Printf("Session: Dropping task: %v", err)
	}
}

func (s *Session) do(fn func() error) error {
	return s.exec.Do(s.ctx, fn)
}

func (s *Session) run(fn func()) error {
	return s.do(func() error {
		fn()
		return nil
	})
}

// Sync waits until every routine load and every command issued so far has
// been applied.
func (s *Session) Sync(ctx context.Context) error {
	loaded := make(chan struct{})
	go_func_utils.SafeGo(s.logger, func() {
		s.loads.Wait()
		close(loaded)
	})
	select {
	case <-loaded:
	case <-ctx.Done():
		return ctx.Err()
	}
	return s.exec.Do(ctx, func() error { return nil })
}

// Close unsubscribes from the device, stops every timer and the executor.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		for _, unsubscribe := range s.unsubscribe {
			unsubscribe()
		}
		_ = s.run(func() { s.store.cancelAllTimers() })
		s.cancel()
		s.loads.Wait()
		s.exec.Close()
	})
}

// LoadRoutine validates r synchronously and then loads it asynchronously:
// position and parameters are updated once PR weights are resolved. It is
// refused while a set is active.
func (s *Session) LoadRoutine(r *routine.Routine) error {
	if err := ValidateRoutine(r); err != nil {
		return err
	}
	if err := s.do(func() error { return s.nav.RefuseWhileActive(loadBlockedMessage) }); err != nil {
		return err
	}
	s.resolveThen(r, func(resolved *routine.Routine) {
		if err := s.nav.PublishLoadedRoutine(resolved); err != nil {
			s.logger.Printf("Session: Routine '%s' not loaded: %v", resolved.Name, err)
		}
	})
	return nil
}

// EnterRoutineOverview loads r if needed and shows its overview. It is
// refused while a set is active.
func (s *Session) EnterRoutineOverview(r *routine.Routine) error {
	if r == nil {
		return s.do(func() error { return s.nav.EnterRoutineOverview(nil) })
	}
	if err := ValidateRoutine(r); err != nil {
		return err
	}
	if err := s.do(func() error { return s.nav.RefuseWhileActive(loadBlockedMessage) }); err != nil {
		return err
	}
	s.resolveThen(r, func(resolved *routine.Routine) {
		if err := s.nav.EnterRoutineOverview(resolved); err != nil {
			s.logger.Printf("Session: Enter overview failed: %v", err)
		}
	})
	return nil
}

// StartSingleExercise runs ex for all its sets outside a routine flow.
func (s *Session) StartSingleExercise(ex routine.RoutineExercise) error {
	if err := s.requireIndependentStart(); err != nil {
		return err
	}
	r := &routine.Routine{Name: ex.Exercise.Name, Exercises: []routine.RoutineExercise{ex}}
	s.resolveThen(r, func(resolved *routine.Routine) {
		if !s.store.workoutState.Get().CanStartIndependent() {
			s.logger.Printf("Session: Single exercise dropped, a workout started meanwhile")
			return
		}
		s.nav.LoadSingleExercise(resolved.Exercises[0])
		if err := s.active.StartWorkout(false, false); err != nil {
			s.logger.Printf("Session: Single exercise start failed: %v", err)
		}
	})
	return nil
}

func (s *Session) resolveThen(r *routine.Routine, publish func(*routine.Routine)) {
	go_func_utils.SafeGoWG(s.logger, &s.loads, func() {
		resolved := s.nav.ResolveRoutine(s.ctx, r)
		s.submit(func() { publish(resolved) })
	})
}

func (s *Session) requireIndependentStart() error {
	if !s.store.workoutState.Get().CanStartIndependent() {
		return ErrWorkoutInProgress
	}
	return nil
}

// SelectExerciseInOverview highlights an exercise in the overview.
func (s *Session) SelectExerciseInOverview(index int) error {
	return s.run(func() { s.nav.SelectExerciseInOverview(index) })
}

// EnterSetReady stages the given set.
func (s *Session) EnterSetReady(exerciseIndex, setIndex int) error {
	return s.do(func() error { return s.nav.EnterSetReady(exerciseIndex, setIndex) })
}

// AdjustSetReady changes the staged weight and reps.
func (s *Session) AdjustSetReady(weightKg float64, reps int) error {
	return s.do(func() error { return s.nav.AdjustSetReady(weightKg, reps) })
}

// SetReadyNext stages the next step; false at the end of the routine.
func (s *Session) SetReadyNext() (bool, error) {
	var moved bool
	err := s.do(func() error {
		var err error
		moved, err = s.nav.SetReadyNext()
		return err
	})
	return moved, err
}

// SetReadyPrevious stages the previous step; false at the start.
func (s *Session) SetReadyPrevious() (bool, error) {
	var moved bool
	err := s.do(func() error {
		var err error
		moved, err = s.nav.SetReadyPrevious()
		return err
	})
	return moved, err
}

// StartSetFromReady starts the staged set.
func (s *Session) StartSetFromReady() error {
	return s.do(s.nav.StartSetFromReady)
}

// JumpToExercise switches to another exercise; refused while a set is active.
func (s *Session) JumpToExercise(index int) error {
	return s.do(func() error { return s.nav.JumpToExercise(index) })
}

// NextStep returns the step after the current position.
func (s *Session) NextStep() (routine.Step, bool) { return s.nav.NextStep() }

// PreviousStep returns the step before the current position.
func (s *Session) PreviousStep() (routine.Step, bool) { return s.nav.PreviousStep() }

// GetNextStep is the routine navigation algorithm for an arbitrary position.
func GetNextStep(r *routine.Routine, from routine.Step) (routine.Step, bool) {
	return r.NextStep(from)
}

// GetPreviousStep mirrors GetNextStep.
func GetPreviousStep(r *routine.Routine, from routine.Step) (routine.Step, bool) {
	return r.PreviousStep(from)
}

// ExitRoutine leaves the routine and returns to Idle. Refused while a set is
// active.
func (s *Session) ExitRoutine() error {
	return s.do(func() error {
		if s.store.workoutState.Get().Phase == PhaseActive {
			s.store.warn(telemetry.WarningSourceNavigation, "Stop the current set before leaving the routine", ErrBlockedByActiveSet)
			return ErrBlockedByActiveSet
		}
		s.nav.ExitRoutine()
		s.active.ResetToIdle()
		return nil
	})
}

// StartWorkout starts an independent workout with the current parameters.
func (s *Session) StartWorkout(skipCountdown bool) error {
	return s.do(func() error {
		if err := s.requireIndependentStart(); err != nil {
			return err
		}
		return s.active.StartWorkout(skipCountdown, false)
	})
}

// StartJustLift leaves any routine and starts a free-form set.
func (s *Session) StartJustLift() error {
	return s.do(func() error {
		if err := s.requireIndependentStart(); err != nil {
			return err
		}
		if s.store.routineFlow.Get().Kind != FlowNotInRoutine || s.store.loaded.Get() != nil {
			s.nav.ExitRoutine()
		}
		return s.active.StartWorkout(false, true)
	})
}

// SkipCountdown starts the set now.
func (s *Session) SkipCountdown() error { return s.run(s.active.SkipCountdown) }

// StopWorkout is the user's stop button.
func (s *Session) StopWorkout() error { return s.run(s.active.StopWorkout) }

// SkipRest ends the rest period.
func (s *Session) SkipRest() error { return s.run(s.active.SkipRest) }

// ProceedFromSummary moves on from a set summary.
func (s *Session) ProceedFromSummary() error { return s.do(s.proceedFromSummary) }

// ResetForNewWorkout returns to Idle keeping the loaded routine.
func (s *Session) ResetForNewWorkout() error { return s.run(s.active.ResetToIdle) }

// proceedFromSummary asks navigation for the next step. With one, a routine
// flow stages SetReady and rests (or starts at once when there is no rest),
// single-exercise mode restarts with a countdown and Just Lift restarts
// straight away. Without one the routine completes.
func (s *Session) proceedFromSummary() error {
	if s.store.workoutState.Get().Phase != PhaseSetSummary {
		return nil
	}
	if s.store.parameters.Get().IsJustLift {
		return s.active.StartWorkout(false, true)
	}
	r := s.store.loaded.Get()
	if r == nil {
		s.active.ResetToIdle()
		return nil
	}
	next, ok := r.NextStep(s.store.position.Get())
	if !ok {
		s.nav.CompleteRoutine()
		s.active.FinishWorkout()
		return nil
	}
	inRoutineFlow := s.store.routineFlow.Get().Kind != FlowNotInRoutine
	if err := s.nav.AdvanceTo(next); err != nil {
		return err
	}
	if !inRoutineFlow {
		return s.active.StartWorkout(false, false)
	}
	if s.active.EnterResting() {
		return nil
	}
	return s.nav.StartSetFromReady()
}

// onRestElapsed runs on the executor when the rest timer ends or is skipped.
func (s *Session) onRestElapsed() {
	var err error
	switch s.store.workoutState.Get().Phase {
	case PhaseSetSummary:
		err = s.proceedFromSummary()
	case PhaseResting:
		err = s.nav.StartSetFromReady()
	}
	if err != nil && !errors.Is(err, ErrNotInSetReady) {
		s.logger.Printf("Session: Starting after rest failed: %v", err)
	}
}

// AdjustWeight sets the per-cable weight.
func (s *Session) AdjustWeight(kg float64) error {
	return s.run(func() { s.active.AdjustWeight(kg) })
}

// IncrementWeight changes the per-cable weight by delta.
func (s *Session) IncrementWeight(delta float64) error {
	return s.run(func() { s.active.IncrementWeight(delta) })
}

// ApplyWeightPreset selects a configured weight; false for an unknown index.
func (s *Session) ApplyWeightPreset(index int) (bool, error) {
	var ok bool
	err := s.run(func() { ok = s.active.ApplyWeightPreset(index) })
	return ok, err
}

// SetProgramMode changes the resistance program.
func (s *Session) SetProgramMode(mode routine.ProgramMode) error {
	return s.run(func() { s.active.SetProgramMode(mode) })
}

// SetEchoLevel changes the echo difficulty.
func (s *Session) SetEchoLevel(level routine.EchoLevel) error {
	return s.run(func() { s.active.SetEchoLevel(level) })
}

// SetEccentricLoad sets the eccentric load percentage.
func (s *Session) SetEccentricLoad(percent int) error {
	return s.run(func() { s.active.SetEccentricLoad(percent) })
}

// SetTargetReps sets the rep target; zero means AMRAP.
func (s *Session) SetTargetReps(reps int) error {
	return s.run(func() { s.active.SetTargetReps(reps) })
}

// SetAMRAP toggles AMRAP for the next set.
func (s *Session) SetAMRAP(amrap bool) error {
	return s.run(func() { s.active.SetAMRAP(amrap) })
}

// SetStallDetection toggles velocity-based auto-stop.
func (s *Session) SetStallDetection(enabled bool) error {
	return s.run(func() { s.active.SetStallDetection(enabled) })
}

// ListRoutines returns every stored routine.
func (s *Session) ListRoutines(ctx context.Context) ([]*routine.Routine, error) {
	return s.routines.ListRoutines(ctx)
}

// GetRoutine returns one stored routine.
func (s *Session) GetRoutine(ctx context.Context, id string) (*routine.Routine, error) {
	return s.routines.GetRoutine(ctx, id)
}

// SaveRoutine validates and stores r.
func (s *Session) SaveRoutine(ctx context.Context, r *routine.Routine) error {
	if err := r.Validate(); err != nil {
		return err
	}
	return s.routines.SaveRoutine(ctx, r)
}

// DeleteRoutine removes a stored routine.
func (s *Session) DeleteRoutine(ctx context.Context, id string) error {
	return s.routines.DeleteRoutine(ctx, id)
}

// CreateSuperset adds a superset to r.
func (s *Session) CreateSuperset(ctx context.Context, r *routine.Routine, name string) (*routine.Routine, routine.Superset, error) {
	return s.nav.CreateSuperset(ctx, r, name)
}

// UpdateSuperset changes a superset's settings.
func (s *Session) UpdateSuperset(ctx context.Context, r *routine.Routine, ss routine.Superset) (*routine.Routine, error) {
	return s.nav.UpdateSuperset(ctx, r, ss)
}

// DeleteSuperset removes a superset from r.
func (s *Session) DeleteSuperset(ctx context.Context, r *routine.Routine, supersetID string) (*routine.Routine, error) {
	return s.nav.DeleteSuperset(ctx, r, supersetID)
}

// AddExerciseToSuperset moves an exercise into a superset.
func (s *Session) AddExerciseToSuperset(ctx context.Context, r *routine.Routine, exerciseID, supersetID string) (*routine.Routine, error) {
	return s.nav.AddExerciseToSuperset(ctx, r, exerciseID, supersetID)
}

// RemoveExerciseFromSuperset makes an exercise standalone.
func (s *Session) RemoveExerciseFromSuperset(ctx context.Context, r *routine.Routine, exerciseID string) (*routine.Routine, error) {
	return s.nav.RemoveExerciseFromSuperset(ctx, r, exerciseID)
}
