package console

import (
	"fmt"
	"log"

	"github.com/gdamore/tcell/v2"

	"github.com/lowaak/smart-trainer/cable-trainer-app/internal/routine"
	"github.com/lowaak/smart-trainer/cable-trainer-app/internal/session"
)

// Commands is the part of the session the console drives.
type Commands interface {
	StartWorkout(skipCountdown bool) error
	StartJustLift() error
	SkipCountdown() error
	StopWorkout() error
	SkipRest() error
	ProceedFromSummary() error
	ResetForNewWorkout() error

	IncrementWeight(delta float64) error
	ApplyWeightPreset(index int) (bool, error)
	SetProgramMode(mode routine.ProgramMode) error
	SetEchoLevel(level routine.EchoLevel) error
	SetTargetReps(reps int) error
	SetAMRAP(amrap bool) error
	SetStallDetection(enabled bool) error

	SelectExerciseInOverview(index int) error
	EnterSetReady(exerciseIndex, setIndex int) error
	AdjustSetReady(weightKg float64, reps int) error
	SetReadyNext() (bool, error)
	SetReadyPrevious() (bool, error)
	StartSetFromReady() error
	ExitRoutine() error
}

// Snapshot is the state a key press is interpreted against.
type Snapshot struct {
	Workout session.WorkoutState
	Params  session.WorkoutParameters
	Flow    session.RoutineFlowState
	Routine *routine.Routine
}

var programModes = []routine.ProgramMode{
	routine.ProgramOldSchool,
	routine.ProgramPump,
	routine.ProgramTUT,
	routine.ProgramTUTBeast,
	routine.ProgramEccentricOnly,
	routine.ProgramEcho,
}

var echoLevels = []routine.EchoLevel{
	routine.EchoHard,
	routine.EchoHarder,
	routine.EchoHardest,
	routine.EchoEpic,
}

// Controller maps key presses onto session commands.
type Controller struct {
	commands     Commands
	weightStepKg float64
	logger       *log.Logger
}

func NewController(commands Commands, weightStepKg float64, logger *log.Logger) *Controller {
	if commands == nil {
		panic("Controller: commands cannot be nil")
	}
	if logger == nil {
		panic("Controller: logger cannot be nil")
	}
	if weightStepKg <= 0 {
		weightStepKg = 0.5
	}
	return &Controller{commands: commands, weightStepKg: weightStepKg, logger: logger}
}

// HandleKey runs the command bound to ev. It reports whether the key was
// bound and the command's error, if any.
func (c *Controller) HandleKey(ev *tcell.EventKey, snap Snapshot) (bool, error) {
	switch ev.Key() {
	case tcell.KeyEnter:
		return true, c.Primary(snap)
	case tcell.KeyUp:
		return true, c.changeWeight(snap, c.weightStepKg)
	case tcell.KeyDown:
		return true, c.changeWeight(snap, -c.weightStepKg)
	case tcell.KeyLeft:
		return true, c.navigate(snap, -1)
	case tcell.KeyRight:
		return true, c.navigate(snap, 1)
	case tcell.KeyRune:
	default:
		return false, nil
	}

	r := ev.Rune()
	switch {
	case r == ' ':
		return true, c.Primary(snap)
	case r == '+' || r == '=':
		return true, c.changeWeight(snap, c.weightStepKg)
	case r == '-':
		return true, c.changeWeight(snap, -c.weightStepKg)
	case r >= '1' && r <= '8':
		applied, err := c.commands.ApplyWeightPreset(int(r - '1'))
		if err == nil && !applied {
			c.logger.Printf("Controller: Preset %c not applied", r)
		}
		return true, err
	case r == '[':
		return true, c.changeReps(snap, -1)
	case r == ']':
		return true, c.changeReps(snap, 1)
	case r == 'j' || r == 'J':
		return true, c.commands.StartJustLift()
	case r == 's' || r == 'S':
		return true, c.commands.StopWorkout()
	case r == 'm' || r == 'M':
		return true, c.commands.SetProgramMode(nextProgramMode(snap.Params.ProgramMode))
	case r == 'e' || r == 'E':
		return true, c.commands.SetEchoLevel(nextEchoLevel(snap.Params.EchoLevel))
	case r == 'a' || r == 'A':
		return true, c.commands.SetAMRAP(!snap.Params.IsAMRAP)
	case r == 't' || r == 'T':
		return true, c.commands.SetStallDetection(!snap.Params.StallDetectionEnabled)
	case r == 'x' || r == 'X':
		return true, c.commands.ExitRoutine()
	case r == 'r' || r == 'R':
		return true, c.commands.ResetForNewWorkout()
	}
	return false, nil
}

// Primary is the context-dependent Space action: it moves the workout or the
// routine flow one step forward.
func (c *Controller) Primary(snap Snapshot) error {
	switch snap.Workout.Phase {
	case session.PhaseCountdown:
		return c.commands.SkipCountdown()
	case session.PhaseActive:
		return c.commands.StopWorkout()
	case session.PhaseSetSummary:
		return c.commands.ProceedFromSummary()
	case session.PhaseResting:
		return c.commands.SkipRest()
	case session.PhaseInitializing:
		return nil
	}

	switch snap.Flow.Kind {
	case session.FlowOverview:
		return c.commands.EnterSetReady(snap.Flow.SelectedExerciseIndex, 0)
	case session.FlowSetReady:
		return c.commands.StartSetFromReady()
	case session.FlowComplete:
		return c.commands.ExitRoutine()
	}
	return c.commands.StartWorkout(false)
}

func (c *Controller) changeWeight(snap Snapshot, delta float64) error {
	if snap.Flow.Kind == session.FlowSetReady {
		return c.commands.AdjustSetReady(snap.Flow.AdjustedWeightKg+delta, snap.Flow.AdjustedReps)
	}
	return c.commands.IncrementWeight(delta)
}

func (c *Controller) changeReps(snap Snapshot, delta int) error {
	if snap.Flow.Kind == session.FlowSetReady {
		return c.commands.AdjustSetReady(snap.Flow.AdjustedWeightKg, max(snap.Flow.AdjustedReps+delta, 0))
	}
	return c.commands.SetTargetReps(max(snap.Params.Reps+delta, 0))
}

func (c *Controller) navigate(snap Snapshot, dir int) error {
	switch snap.Flow.Kind {
	case session.FlowOverview:
		r := snap.Flow.Routine
		if r == nil {
			r = snap.Routine
		}
		if r == nil || len(r.Exercises) == 0 {
			return nil
		}
		n := len(r.Exercises)
		return c.commands.SelectExerciseInOverview((snap.Flow.SelectedExerciseIndex + dir + n) % n)
	case session.FlowSetReady:
		var moved bool
		var err error
		if dir > 0 {
			moved, err = c.commands.SetReadyNext()
		} else {
			moved, err = c.commands.SetReadyPrevious()
		}
		if err != nil {
			return fmt.Errorf("moving set: %w", err)
		}
		if !moved {
			c.logger.Println("Controller: No set in that direction")
		}
	}
	return nil
}

func nextProgramMode(m routine.ProgramMode) routine.ProgramMode {
	for i, mode := range programModes {
		if mode == m {
			return programModes[(i+1)%len(programModes)]
		}
	}
	return programModes[0]
}

func nextEchoLevel(l routine.EchoLevel) routine.EchoLevel {
	for i, level := range echoLevels {
		if level == l {
			return echoLevels[(i+1)%len(echoLevels)]
		}
	}
	return echoLevels[0]
}
