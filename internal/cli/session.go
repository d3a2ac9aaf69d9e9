package cli

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/lowaak/smart-trainer/cable-trainer-app/internal/history"
	"github.com/lowaak/smart-trainer/cable-trainer-app/internal/storage"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Inspect workout history",
}

var sessionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent sets, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		return withDB(cmd, func(ctx context.Context, e *env, db *storage.DB) error {
			records, err := db.ListSessions(ctx, limit)
			if err != nil {
				return err
			}
			if len(records) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no sessions")
				return nil
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "STARTED\tEXERCISE\tMODE\tKG\tREPS\tVOLUME\tENDED BY\tID")
			for _, rec := range records {
				fmt.Fprintf(w, "%s\t%s\t%s\t%.1f\t%s\t%.0f\t%s\t%s\n",
					rec.StartedAt.Local().Format("2006-01-02 15:04"), exerciseLabel(rec), rec.ProgramMode,
					rec.WeightPerCableKg, repsLabel(rec), rec.TotalVolumeKg, rec.CompletionReason, rec.ID)
			}
			return w.Flush()
		})
	},
}

var sessionMetricsCmd = &cobra.Command{
	Use:   "metrics <session-id>",
	Short: "Print the stored force curve of one set as CSV",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDB(cmd, func(ctx context.Context, e *env, db *storage.DB) error {
			points, err := db.SessionMetrics(ctx, args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "offset_ms,position_mm,velocity_mm_s,force_kg")
			for _, p := range points {
				fmt.Fprintf(out, "%d,%.1f,%.1f,%.2f\n", p.OffsetMs, p.Position, p.Velocity, p.Force)
			}
			return nil
		})
	},
}

var sessionSetsCmd = &cobra.Command{
	Use:   "sets <routine-id>",
	Short: "List the sets completed in a routine",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDB(cmd, func(ctx context.Context, e *env, db *storage.DB) error {
			sets, err := db.CompletedSets(ctx, args[0])
			if err != nil {
				return err
			}
			if len(sets) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no completed sets")
				return nil
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "COMPLETED\tEXERCISE\tSET\tKG\tREPS")
			for _, s := range sets {
				target := fmt.Sprintf("%d/%d", s.ActualReps, s.TargetReps)
				if s.IsAMRAP {
					target = fmt.Sprintf("%d (AMRAP)", s.ActualReps)
				}
				fmt.Fprintf(w, "%s\t%d\t%d\t%.1f\t%s\n",
					s.CompletedAt.Local().Format("2006-01-02 15:04"), s.ExerciseIndex+1, s.SetIndex+1, s.WeightPerCableKg, target)
			}
			return w.Flush()
		})
	},
}

func exerciseLabel(rec history.SessionRecord) string {
	name := rec.ExerciseName
	if name == "" {
		name = "-"
	}
	if rec.IsJustLift {
		name += " (Just Lift)"
	}
	if rec.IsPersonalRecord {
		name += " *PR*"
	}
	return name
}

func repsLabel(rec history.SessionRecord) string {
	switch {
	case rec.IsAMRAP || rec.IsJustLift || rec.TargetReps <= 0:
		return fmt.Sprintf("%d", rec.WorkingReps)
	default:
		return fmt.Sprintf("%d/%d", rec.WorkingReps, rec.TargetReps)
	}
}

func init() {
	sessionListCmd.Flags().Int("limit", 20, "number of sets to show")

	sessionCmd.AddCommand(sessionListCmd)
	sessionCmd.AddCommand(sessionMetricsCmd)
	sessionCmd.AddCommand(sessionSetsCmd)
}
