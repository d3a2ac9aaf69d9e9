package cli

import (
	"context"
	"fmt"
	"io"
	"log"

	"github.com/spf13/cobra"

	"github.com/lowaak/smart-trainer/cable-trainer-app/internal/config"
	"github.com/lowaak/smart-trainer/cable-trainer-app/internal/logging"
	"github.com/lowaak/smart-trainer/cable-trainer-app/internal/storage"
)

// env is what every command starts from.
type env struct {
	cfg    *config.Config
	logger *log.Logger
	// file is the rotating log file without the stderr copy.
	file io.WriteCloser
}

func setup(cmd *cobra.Command) (*env, error) {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return nil, err
	}
	logger, file, err := logging.New(cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("opening log: %w", err)
	}
	logger.Printf("CLI: cable-trainer %s %s", version, cmd.CommandPath())
	return &env{cfg: cfg, logger: logger, file: file}, nil
}

func (e *env) Close() {
	if err := e.file.Close(); err != nil {
		e.logger.Printf("CLI: Error closing log: %v", err)
	}
}

func (e *env) openDB(ctx context.Context) (*storage.DB, error) {
	db, err := storage.Open(ctx, e.cfg.DatabasePath(), e.logger)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	return db, nil
}

// withDB runs fn against an open database and closes everything afterwards.
func withDB(cmd *cobra.Command, fn func(ctx context.Context, e *env, db *storage.DB) error) error {
	e, err := setup(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	db, err := e.openDB(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			e.logger.Printf("CLI: Error closing database: %v", err)
		}
	}()
	return fn(ctx, e, db)
}
