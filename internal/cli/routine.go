package cli

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/lowaak/smart-trainer/cable-trainer-app/internal/routine"
	"github.com/lowaak/smart-trainer/cable-trainer-app/internal/storage"
)

var routineCmd = &cobra.Command{
	Use:   "routine",
	Short: "Manage saved routines",
}

var routineImportCmd = &cobra.Command{
	Use:   "import <file.yaml>...",
	Short: "Import routines from YAML files",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDB(cmd, func(ctx context.Context, e *env, db *storage.DB) error {
			for _, path := range args {
				r, err := routine.LoadFile(path)
				if err != nil {
					return err
				}
				if err := db.SaveRoutine(ctx, r); err != nil {
					return fmt.Errorf("saving %s: %w", path, err)
				}
				e.logger.Printf("CLI: Imported routine %s (%s) from %s", r.ID, r.Name, path)
				fmt.Fprintf(cmd.OutOrStdout(), "imported %s (%s): %d exercises, %d sets\n",
					r.Name, r.ID, len(r.Exercises), r.TotalSets())
			}
			return nil
		})
	},
}

var routineListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved routines",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDB(cmd, func(ctx context.Context, e *env, db *storage.DB) error {
			routines, err := db.ListRoutines(ctx)
			if err != nil {
				return err
			}
			if len(routines) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no routines")
				return nil
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tEXERCISES\tSETS\tUSED\tLAST USED")
			for _, r := range routines {
				last := "never"
				if !r.LastUsed.IsZero() {
					last = r.LastUsed.Local().Format("2006-01-02 15:04")
				}
				fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%s\n", r.ID, r.Name, len(r.Exercises), r.TotalSets(), r.UseCount, last)
			}
			return w.Flush()
		})
	},
}

var routineShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print a saved routine as YAML",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDB(cmd, func(ctx context.Context, e *env, db *storage.DB) error {
			r, err := db.GetRoutine(ctx, args[0])
			if err != nil {
				return err
			}
			out, err := routine.Marshal(r)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		})
	},
}

var routineDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a saved routine",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDB(cmd, func(ctx context.Context, e *env, db *storage.DB) error {
			if err := db.DeleteRoutine(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
			return nil
		})
	},
}

func init() {
	routineCmd.AddCommand(routineImportCmd)
	routineCmd.AddCommand(routineListCmd)
	routineCmd.AddCommand(routineShowCmd)
	routineCmd.AddCommand(routineDeleteCmd)
}
