package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/lowaak/smart-trainer/cable-trainer-app/internal/storage"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database schema migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := setup(cmd)
		if err != nil {
			return err
		}
		defer e.Close()

		path := e.cfg.DatabasePath()
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("creating data dir: %w", err)
		}
		v, err := storage.Migrate(path)
		if err != nil {
			return err
		}
		e.logger.Printf("CLI: %s at schema version %d", path, v)
		fmt.Fprintf(cmd.OutOrStdout(), "%s: schema version %d\n", path, v)
		return nil
	},
}
