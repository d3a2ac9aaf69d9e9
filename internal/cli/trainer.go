package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"tinygo.org/x/bluetooth"

	"github.com/lowaak/smart-trainer/cable-trainer-app/internal/bt"
	"github.com/lowaak/smart-trainer/cable-trainer-app/internal/device/sim"
	"github.com/lowaak/smart-trainer/cable-trainer-app/internal/go_func_utils"
	"github.com/lowaak/smart-trainer/cable-trainer-app/internal/routine"
	"github.com/lowaak/smart-trainer/cable-trainer-app/internal/session"
	"github.com/lowaak/smart-trainer/cable-trainer-app/internal/storage"
)

// trainer bundles the long-lived pieces of a training run.
type trainer struct {
	env     *env
	db      *storage.DB
	device  session.Device
	session *session.Session
	closers []func()
}

func startTrainer(ctx context.Context, e *env) (*trainer, error) {
	t := &trainer{env: e}

	db, err := e.openDB(ctx)
	if err != nil {
		return nil, err
	}
	t.db = db
	t.closers = append(t.closers, func() {
		if err := db.Close(); err != nil {
			e.logger.Printf("CLI: Error closing database: %v", err)
		}
	})

	device, closeDevice, err := openDevice(ctx, e)
	if err != nil {
		t.Close()
		return nil, err
	}
	t.device = device
	t.closers = append(t.closers, closeDevice)

	t.session = session.New(session.Deps{
		Device:   device,
		Routines: db,
		Sessions: db,
		Logger:   e.logger,
		Settings: e.cfg.SessionSettings(),
	})
	t.closers = append(t.closers, t.session.Close)
	return t, nil
}

// Close releases everything in reverse order of creation.
func (t *trainer) Close() {
	for i := len(t.closers) - 1; i >= 0; i-- {
		t.closers[i]()
	}
	t.closers = nil
}

func openDevice(ctx context.Context, e *env) (session.Device, func(), error) {
	switch e.cfg.Device.Driver {
	case "sim":
		s := sim.New(e.logger, sim.Config{
			SamplePeriod: e.cfg.Sim.SamplePeriod,
			RepPeriod:    e.cfg.Sim.RepPeriod,
			TravelMm:     e.cfg.Sim.TravelMm,
			Addr:         e.cfg.Sim.HTTPAddr,
		})
		if err := s.Start(); err != nil {
			return nil, nil, fmt.Errorf("starting simulator: %w", err)
		}
		return s, s.Shutdown, nil
	case "ble":
		return connectBLE(ctx, e)
	default:
		return nil, nil, fmt.Errorf("unknown device driver %q", e.cfg.Device.Driver)
	}
}

func connectBLE(ctx context.Context, e *env) (session.Device, func(), error) {
	preferred := bt.NewPreferredTrainer(e.cfg.DataDir, e.logger)
	target := e.cfg.Device.Address
	if target == "" {
		target = preferred.Address()
	}

	scanCtx, cancel := context.WithTimeout(ctx, e.cfg.Device.ScanTimeout)
	defer cancel()
	p, err := bt.Connect(scanCtx, bluetooth.DefaultAdapter, e.logger, target)
	if err != nil {
		return nil, nil, err
	}
	preferred.Remember(p.Address(), p.Name(), time.Now())

	link := bt.NewLink(e.logger, p)
	if err := link.Open(); err != nil {
		if derr := p.Disconnect(); derr != nil {
			e.logger.Printf("CLI: Error disconnecting: %v", derr)
		}
		return nil, nil, err
	}
	return link, func() {
		if err := link.Close(); err != nil {
			e.logger.Printf("CLI: Error closing link: %v", err)
		}
	}, nil
}

func isRoutineFile(ref string) bool {
	ext := strings.ToLower(filepath.Ext(ref))
	if ext == ".yaml" || ext == ".yml" {
		return true
	}
	info, err := os.Stat(ref)
	return err == nil && !info.IsDir()
}

// resolveRoutine loads a routine by id, or imports it first when ref is a
// routine file so completed sets refer to a stored routine.
func (t *trainer) resolveRoutine(ctx context.Context, ref string) (*routine.Routine, error) {
	if !isRoutineFile(ref) {
		return t.db.GetRoutine(ctx, ref)
	}
	r, err := routine.LoadFile(ref)
	if err != nil {
		return nil, err
	}
	if err := t.db.SaveRoutine(ctx, r); err != nil {
		return nil, fmt.Errorf("saving %s: %w", ref, err)
	}
	t.env.logger.Printf("CLI: Imported routine %s (%s) from %s", r.ID, r.Name, ref)
	return r, nil
}

func metricsRouter() http.Handler {
	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	return r
}

// serveMetrics serves /metrics on addr until ctx is done.
func serveMetrics(ctx context.Context, addr string, e *env) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           metricsRouter(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go_func_utils.SafeGo(e.logger, func() {
		e.logger.Printf("CLI: Metrics listening on %s", addr)
		errCh <- server.ListenAndServe()
	})

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			e.logger.Printf("CLI: Metrics server shutdown error: %v", err)
		}
		<-errCh
		return nil
	}
}
