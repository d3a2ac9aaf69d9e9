// Package logging builds the application *log.Logger on a rotating file.
package logging

import (
	"io"
	"log"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/lowaak/smart-trainer/cable-trainer-app/internal/config"
)

const flags = log.LstdFlags | log.Lmicroseconds

// New returns a logger writing to cfg.File with rotation, and to stderr when
// cfg.Stderr is set. The returned file is the rotating sink alone; closing it
// flushes and closes the log file.
func New(cfg config.LogConfig) (*log.Logger, io.WriteCloser, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
		return nil, nil, err
	}
	rotator := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}
	var out io.Writer = rotator
	if cfg.Stderr {
		out = io.MultiWriter(rotator, os.Stderr)
	}
	return log.New(out, "", flags), rotator, nil
}

// Discard returns a logger that drops everything.
func Discard() *log.Logger {
	return log.New(io.Discard, "", 0)
}
