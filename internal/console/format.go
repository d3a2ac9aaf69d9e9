package console

import (
	"fmt"
	"strings"
	"time"

	"github.com/rivo/tview"

	"github.com/lowaak/smart-trainer/cable-trainer-app/internal/routine"
	"github.com/lowaak/smart-trainer/cable-trainer-app/internal/session"
	"github.com/lowaak/smart-trainer/cable-trainer-app/internal/telemetry"
)

const helpText = "[yellow]Space[white] Start/Stop/Next  |  [yellow]J[white] Just Lift  |  [yellow]+/-[white] Weight  |  [yellow]1-8[white] Presets  |  [yellow][ ][white] Reps\n" +
	"[yellow]M[white] Mode  |  [yellow]E[white] Echo  |  [yellow]A[white] AMRAP  |  [yellow]T[white] Stall  |  [yellow]←/→[white] Navigate  |  [yellow]X[white] Exit routine  |  [yellow]R[white] Reset  |  [yellow]Q[white] Quit"

// WorkoutView is everything the workout panel shows.
type WorkoutView struct {
	State  session.WorkoutState
	Params session.WorkoutParameters
	Reps   session.RepCount
	Auto   session.AutoStopState
	Totals session.SessionTotals
}

func phaseColor(p session.WorkoutPhase) string {
	switch p {
	case session.PhaseCountdown:
		return "yellow"
	case session.PhaseActive:
		return "green"
	case session.PhaseSetSummary, session.PhaseCompleted:
		return "aqua"
	case session.PhaseResting:
		return "blue"
	default:
		return "gray"
	}
}

func formatWorkout(v WorkoutView, now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "\n  Phase:   [%s]%s[white]\n", phaseColor(v.State.Phase), v.State.Phase)

	switch v.State.Phase {
	case session.PhaseCountdown:
		fmt.Fprintf(&b, "  Starting in [yellow]%d[white]\n", v.State.SecondsRemaining)
	case session.PhaseResting:
		fmt.Fprintf(&b, "  Rest:    [yellow]%s[white]\n", formatSeconds(v.State.SecondsRemaining))
	}

	fmt.Fprintf(&b, "\n  Mode:    %s", v.Params.ProgramMode)
	switch v.Params.ProgramMode {
	case routine.ProgramEcho:
		fmt.Fprintf(&b, " (%s, eccentric %d%%)", v.Params.EchoLevel, v.Params.EccentricLoadPercent)
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "  Weight:  [yellow]%.1f[white] kg per cable\n", v.Params.WeightPerCableKg)
	fmt.Fprintf(&b, "  Target:  %s\n", formatTarget(v.Params))
	if v.Params.StallDetectionEnabled {
		b.WriteString("  Stall detection on\n")
	}

	b.WriteString("\n")
	if v.Reps.Warmup < v.Params.WarmupReps && !v.Params.IsJustLift {
		fmt.Fprintf(&b, "  Warmup:  [yellow]%d[white] / %d\n", v.Reps.Warmup, v.Params.WarmupReps)
	} else {
		fmt.Fprintf(&b, "  Warmup:  %d\n", v.Reps.Warmup)
	}
	if v.Params.HasRepTarget() {
		fmt.Fprintf(&b, "  Reps:    [green]%d[white] / %d\n", v.Reps.Working, v.Params.Reps)
	} else {
		fmt.Fprintf(&b, "  Reps:    [green]%d[white]\n", v.Reps.Working)
	}

	if line := formatAutoStop(v.Auto, now); line != "" {
		b.WriteString("\n  " + line + "\n")
	}

	if v.State.Summary != nil {
		b.WriteString("\n" + formatSummary(*v.State.Summary))
	}

	if v.Totals.SetsCompleted > 0 {
		fmt.Fprintf(&b, "\n  Session: %d sets, %d reps, %.0f kg volume\n",
			v.Totals.SetsCompleted, v.Totals.TotalReps, v.Totals.TotalVolumeKg)
	}
	return b.String()
}

func formatTarget(p session.WorkoutParameters) string {
	switch {
	case p.IsJustLift:
		return "Just Lift"
	case p.IsAMRAP:
		return "AMRAP"
	case p.Reps > 0:
		return fmt.Sprintf("%d reps", p.Reps)
	default:
		return "open"
	}
}

func formatAutoStop(a session.AutoStopState, now time.Time) string {
	switch {
	case a.Triggered:
		return "[red]Auto-stop triggered[white]"
	case a.IsStalled:
		return "[red]Stalled[white]"
	case !a.DangerZoneStartedAt.IsZero():
		return fmt.Sprintf("[orange]Handles down %.1fs[white]", now.Sub(a.DangerZoneStartedAt).Seconds())
	case !a.StallStartedAt.IsZero():
		return fmt.Sprintf("[orange]Slowing %.1fs[white]", now.Sub(a.StallStartedAt).Seconds())
	default:
		return ""
	}
}

func formatSummary(s session.SetSummary) string {
	var b strings.Builder
	title := "Set complete"
	if s.IsPersonalRecord {
		title = "[yellow]Personal record![white]"
	}
	fmt.Fprintf(&b, "  %s: %s\n", title, tview.Escape(s.ExerciseName))
	fmt.Fprintf(&b, "    %d working + %d warmup reps at %.1f kg\n", s.WorkingReps, s.WarmupReps, s.WeightPerCableKg)
	fmt.Fprintf(&b, "    peak %.1f kg, avg %.1f kg, volume %.0f kg\n", s.PeakForceKg, s.AverageForceKg, s.TotalVolumeKg)
	fmt.Fprintf(&b, "    %s, ended by %s\n", s.Duration.Round(time.Second), s.Reason)
	if s.RestSeconds > 0 {
		fmt.Fprintf(&b, "    next: rest %s\n", formatSeconds(s.RestSeconds))
	}
	return b.String()
}

// RoutineView is everything the routine panel shows.
type RoutineView struct {
	Flow     session.RoutineFlowState
	Routine  *routine.Routine
	Position routine.Step
	Progress session.RoutineProgress
}

func formatRoutine(v RoutineView) string {
	if v.Flow.Kind == session.FlowComplete {
		return fmt.Sprintf("\n  [aqua]%s complete[white]\n\n  %d exercises, %d sets in %s\n\n  Press Space to finish.",
			tview.Escape(v.Flow.RoutineName), v.Flow.TotalExercises, v.Flow.TotalSets,
			(time.Duration(v.Flow.TotalDurationMs) * time.Millisecond).Round(time.Second))
	}

	r := v.Routine
	if v.Flow.Kind == session.FlowOverview && v.Flow.Routine != nil {
		r = v.Flow.Routine
	}
	if r == nil {
		return "\n  [gray]No routine loaded.[white]\n\n  Import one with `cable-trainer routine import`\n  and start it with --routine."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "\n  [yellow]%s[white]\n\n", tview.Escape(r.Name))
	for i := range r.Exercises {
		ex := &r.Exercises[i]
		marker := "  "
		switch {
		case v.Flow.Kind == session.FlowOverview && i == v.Flow.SelectedExerciseIndex:
			marker = "> "
		case v.Flow.Kind == session.FlowSetReady && i == v.Flow.ExerciseIndex:
			marker = "> "
		case v.Flow.Kind == session.FlowNotInRoutine && i == v.Position.ExerciseIndex:
			marker = "> "
		}
		status := ""
		switch {
		case v.Progress.IsCompleted(i):
			status = " [green]done[white]"
		case v.Progress.IsSkipped(i):
			status = " [gray]skipped[white]"
		}
		superset := ""
		if ex.SupersetID != "" {
			if ss, ok := r.Superset(ex.SupersetID); ok {
				superset = fmt.Sprintf(" [purple](%s)[white]", tview.Escape(ss.Name))
			}
		}
		fmt.Fprintf(&b, "  %s%s%s  %d x %s%s\n", marker, tview.Escape(ex.Exercise.Name), superset,
			ex.SetCount(), formatSetTarget(ex), status)
	}

	if v.Flow.Kind == session.FlowSetReady {
		b.WriteString("\n" + formatSetReady(v.Flow, r))
	}
	return b.String()
}

func formatSetTarget(ex *routine.RoutineExercise) string {
	if ex.DurationSeconds > 0 && ex.Exercise.IsBodyweight() {
		return formatSeconds(ex.DurationSeconds)
	}
	reps, amrap := ex.SetTarget(0)
	if amrap {
		return fmt.Sprintf("AMRAP @ %.1f kg", ex.SetWeight(0))
	}
	return fmt.Sprintf("%d @ %.1f kg", reps, ex.SetWeight(0))
}

func formatSetReady(f session.RoutineFlowState, r *routine.Routine) string {
	var b strings.Builder
	name := ""
	sets := 1
	if f.ExerciseIndex >= 0 && f.ExerciseIndex < len(r.Exercises) {
		name = r.Exercises[f.ExerciseIndex].Exercise.Name
		sets = r.Exercises[f.ExerciseIndex].SetCount()
	}
	fmt.Fprintf(&b, "  [green]Ready:[white] %s, set %d of %d\n", tview.Escape(name), f.SetIndex+1, sets)
	if f.AdjustedAMRAP {
		fmt.Fprintf(&b, "    AMRAP at %.1f kg\n", f.AdjustedWeightKg)
	} else {
		fmt.Fprintf(&b, "    %d reps at %.1f kg\n", f.AdjustedReps, f.AdjustedWeightKg)
	}
	if f.EchoLevel != nil {
		fmt.Fprintf(&b, "    echo %s", *f.EchoLevel)
		if f.EccentricLoadPercent != nil {
			fmt.Fprintf(&b, ", eccentric %d%%", *f.EccentricLoadPercent)
		}
		b.WriteString("\n")
	}
	b.WriteString("  Press Space to start.")
	return b.String()
}

func formatSample(s telemetry.Sample, ok bool) string {
	if !ok {
		return "\n  [gray]Waiting for the machine...[white]"
	}
	return fmt.Sprintf("\n  Position:  [yellow]%6.1f[white] mm\n\n  Velocity:  [yellow]%6.1f[white] mm/s\n\n  Force:     [yellow]%6.1f[white] kg",
		s.Position, s.Velocity, s.Force)
}

func formatWarning(at time.Time, w telemetry.Warning) string {
	return fmt.Sprintf("[gray]%s[white] [red]%s[white]", at.Format("15:04:05"), tview.Escape(w.String()))
}

func formatHaptic(at time.Time, h telemetry.HapticEvent) string {
	return fmt.Sprintf("[gray]%s[white] %s", at.Format("15:04:05"), h)
}

func formatSeconds(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}
