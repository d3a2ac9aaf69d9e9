package session

import (
	"log"
	"sync"
	"sync/atomic"

	"github.com/lowaak/smart-trainer/cable-trainer-app/internal/events"
	"github.com/lowaak/smart-trainer/cable-trainer-app/internal/routine"
	"github.com/lowaak/smart-trainer/cable-trainer-app/internal/telemetry"
)

// Observable is the read side of a store field.
type Observable[T any] interface {
	Get() T
	// Listen delivers the current value and later changes to ch without blocking.
	Listen(ch chan<- T) func()
	// Observe calls fn on the writer's goroutine for every later change.
	Observe(fn func(T)) func()
}

// TimerKind names a cancellable timer slot.
type TimerKind int

const (
	TimerCountdown TimerKind = iota
	TimerRest
	TimerBodyweight
)

func (k TimerKind) String() string {
	switch k {
	case TimerCountdown:
		return "countdown"
	case TimerRest:
		return "rest"
	case TimerBodyweight:
		return "bodyweight"
	default:
		return "unknown"
	}
}

// Store holds the state shared by the navigation and active session engines.
// Anyone may read. Each field has exactly one writer, enforced by the writer
// views: activeWriter for the workout lifecycle fields, navigationWriter for
// the routine fields.
type Store struct {
	logger *log.Logger

	// Written by the active session engine.
	workoutState *events.Cell[WorkoutState]
	parameters   *events.Cell[WorkoutParameters]
	repCount     *events.Cell[RepCount]
	autoStop     *events.Cell[AutoStopState]
	totals       *events.Cell[SessionTotals]

	stopWorkoutInProgress   atomic.Bool
	setCompletionInProgress atomic.Bool

	// Written by the navigation engine.
	routineFlow *events.Cell[RoutineFlowState]
	loaded      *events.Cell[*routine.Routine]
	position    *events.Cell[routine.Step]
	progress    *events.Cell[RoutineProgress]

	// Timer handles. Created by the active engine, cancellable by both.
	timersMu sync.Mutex
	timers   map[TimerKind]Timer

	// Fire-and-forget queues, any engine may publish.
	haptics     *events.ChannelEvent[telemetry.HapticEvent]
	warnings    *events.ChannelEvent[telemetry.Warning]
	restElapsed *events.CallbackEvent[struct{}]
}

func newStore(logger *log.Logger) *Store {
	if logger == nil {
		panic("Store: logger cannot be nil")
	}
	return &Store{
		logger:       logger,
		workoutState: events.NewCell(idleState()),
		parameters:   events.NewCell(WorkoutParameters{}),
		repCount:     events.NewCell(RepCount{}),
		autoStop:     events.NewCell(AutoStopState{}),
		totals:       events.NewCell(SessionTotals{}),
		routineFlow:  events.NewCell(notInRoutine()),
		loaded:       events.NewCell[*routine.Routine](nil),
		position:     events.NewCell(routine.Step{}),
		progress:     events.NewCell(RoutineProgress{}),
		timers:       make(map[TimerKind]Timer),
		haptics:      events.NewChannelEvent[telemetry.HapticEvent](false),
		warnings:     events.NewChannelEvent[telemetry.Warning](false),
		restElapsed:  events.NewCallbackEvent[struct{}](false),
	}
}

func (s *Store) WorkoutState() Observable[WorkoutState]    { return s.workoutState }
func (s *Store) Parameters() Observable[WorkoutParameters] { return s.parameters }
func (s *Store) RepCount() Observable[RepCount]            { return s.repCount }
func (s *Store) AutoStop() Observable[AutoStopState]       { return s.autoStop }
func (s *Store) Totals() Observable[SessionTotals]         { return s.totals }
func (s *Store) RoutineFlow() Observable[RoutineFlowState] { return s.routineFlow }
func (s *Store) Routine() Observable[*routine.Routine]     { return s.loaded }
func (s *Store) Position() Observable[routine.Step]        { return s.position }
func (s *Store) Progress() Observable[RoutineProgress]     { return s.progress }
func (s *Store) StopWorkoutInProgress() bool               { return s.stopWorkoutInProgress.Load() }
func (s *Store) SetCompletionInProgress() bool             { return s.setCompletionInProgress.Load() }

// ListenHaptics subscribes ch to haptic cues.
func (s *Store) ListenHaptics(ch chan<- telemetry.HapticEvent) func() {
	return s.haptics.Listen(ch)
}

// ListenWarnings subscribes ch to user-facing warnings.
func (s *Store) ListenWarnings(ch chan<- telemetry.Warning) func() {
	return s.warnings.Listen(ch)
}

func (s *Store) emitHaptic(h telemetry.HapticEvent) {
	s.haptics.Notify(h)
}

func (s *Store) warn(source telemetry.WarningSource, message string, err error) {
	w := telemetry.Warning{Source: source, Message: message, Err: err}
	s.logger.Printf("Session: warning: %s", w)
	s.warnings.Notify(w)
}

// cancelTimer stops the timer in slot kind, if any.
func (s *Store) cancelTimer(kind TimerKind) bool {
	s.timersMu.Lock()
	t, ok := s.timers[kind]
	delete(s.timers, kind)
	s.timersMu.Unlock()
	if !ok {
		return false
	}
	return t.Stop()
}

// cancelAllTimers stops every pending timer.
func (s *Store) cancelAllTimers() {
	for _, kind := range []TimerKind{TimerCountdown, TimerRest, TimerBodyweight} {
		s.cancelTimer(kind)
	}
}

// TimerPending reports whether slot kind holds a timer.
func (s *Store) TimerPending(kind TimerKind) bool {
	s.timersMu.Lock()
	defer s.timersMu.Unlock()
	_, ok := s.timers[kind]
	return ok
}

// activeWriter is the active session engine's write access.
type activeWriter struct{ s *Store }

func (w activeWriter) setWorkoutState(v WorkoutState) { w.s.workoutState.Set(v) }
func (w activeWriter) setParameters(v WorkoutParameters) {
	w.s.parameters.Set(v)
}
func (w activeWriter) updateParameters(fn func(WorkoutParameters) WorkoutParameters) WorkoutParameters {
	return w.s.parameters.Update(fn)
}
func (w activeWriter) setRepCount(v RepCount)      { w.s.repCount.Set(v) }
func (w activeWriter) setAutoStop(v AutoStopState) { w.s.autoStop.Set(v) }
func (w activeWriter) setTotals(v SessionTotals)   { w.s.totals.Set(v) }
func (w activeWriter) setStopInProgress(v bool)    { w.s.stopWorkoutInProgress.Store(v) }
func (w activeWriter) setCompletionInProgress(v bool) {
	w.s.setCompletionInProgress.Store(v)
}

// trackTimer stores t in slot kind, cancelling the timer it replaces.
func (w activeWriter) trackTimer(kind TimerKind, t Timer) {
	w.s.timersMu.Lock()
	prev, ok := w.s.timers[kind]
	w.s.timers[kind] = t
	w.s.timersMu.Unlock()
	if ok {
		prev.Stop()
	}
}

// releaseTimer forgets slot kind after its timer fired.
func (w activeWriter) releaseTimer(kind TimerKind, t Timer) {
	w.s.timersMu.Lock()
	if w.s.timers[kind] == t {
		delete(w.s.timers, kind)
	}
	w.s.timersMu.Unlock()
}

func (w activeWriter) notifyRestElapsed() { w.s.restElapsed.Notify(struct{}{}) }

// navigationWriter is the navigation engine's write access.
type navigationWriter struct{ s *Store }

func (w navigationWriter) setRoutineFlow(v RoutineFlowState) { w.s.routineFlow.Set(v) }
func (w navigationWriter) setRoutine(r *routine.Routine)     { w.s.loaded.Set(r) }
func (w navigationWriter) setPosition(step routine.Step)     { w.s.position.Set(step) }
func (w navigationWriter) setProgress(p RoutineProgress)     { w.s.progress.Set(p) }
func (w navigationWriter) updateProgress(fn func(RoutineProgress) RoutineProgress) {
	w.s.progress.Update(fn)
}
