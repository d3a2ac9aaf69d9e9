package cli

import (
	"github.com/spf13/cobra"

	"github.com/lowaak/smart-trainer/cable-trainer-app/internal/config"
)

var version = "dev"

func SetVersion(v string) {
	version = v
}

var rootCmd = &cobra.Command{
	Use:   "cable-trainer",
	Short: "Run workouts on a connected cable machine",
	Long: `cable-trainer drives a connected cable resistance machine through routines,
supersets and freeform Just Lift sets, counting reps and stopping sets on its own.

State lives in ~/.cable-trainer/ (SQLite for routines and history, a rotating log).
Run with --device sim to train against the built-in simulator.`,
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	config.BindFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(routineCmd)
	rootCmd.AddCommand(sessionCmd)
	rootCmd.AddCommand(migrateCmd)
}
