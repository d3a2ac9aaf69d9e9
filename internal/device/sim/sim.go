// Package sim is a simulated cable trainer. It produces a steady rep motion
// while a set is started and can be steered over HTTP to hold the cable,
// fail commands or drop the connection.
package sim

import (
	"context"
	"fmt"
	"log"
	"math"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/lowaak/smart-trainer/cable-trainer-app/internal/events"
	"github.com/lowaak/smart-trainer/cable-trainer-app/internal/go_func_utils"
	"github.com/lowaak/smart-trainer/cable-trainer-app/internal/routine"
	"github.com/lowaak/smart-trainer/cable-trainer-app/internal/telemetry"
)

const maxCommandLog = 100

// Config tunes the simulated motion.
type Config struct {
	// SamplePeriod is the interval between telemetry samples.
	SamplePeriod time.Duration
	// RepPeriod is the time for one full rep, bottom to top and back.
	RepPeriod time.Duration
	// TravelMm is the cable travel at the top of a rep.
	TravelMm float64
	// Addr is the control server listen address. Empty disables it.
	Addr string
}

// DefaultConfig returns a 20 Hz simulator doing a 500mm rep every 3s.
func DefaultConfig() Config {
	return Config{
		SamplePeriod: 50 * time.Millisecond,
		RepPeriod:    3 * time.Second,
		TravelMm:     500,
	}
}

// Command is one command the simulator received.
type Command struct {
	At    time.Time `json:"at"`
	Name  string    `json:"name"`
	Value string    `json:"value,omitempty"`
	Err   string    `json:"error,omitempty"`
}

// State is a snapshot of the simulated machine.
type State struct {
	Running       bool    `json:"running"`
	Held          bool    `json:"held"`
	PositionMm    float64 `json:"position_mm"`
	WeightKg      float64 `json:"weight_kg"`
	ProgramMode   string  `json:"program_mode"`
	TopCounter    int     `json:"top_counter"`
	BottomCounter int     `json:"bottom_counter"`
	Fault         string  `json:"fault,omitempty"`
}

// Simulator implements the session's Device over a simulated machine.
type Simulator struct {
	logger *log.Logger
	cfg    Config

	mu          sync.Mutex
	running     bool
	held        bool
	holdPos     float64
	phase       time.Duration
	position    float64
	weight      float64
	mode        routine.ProgramMode
	top, bottom int
	faults      map[string]error
	dropLink    error
	commands    []Command

	telemetryEvent *events.CallbackEvent[telemetry.Sample]
	repEvent       *events.CallbackEvent[telemetry.RepEvent]
	connErrEvent   *events.CallbackEvent[error]

	server *http.Server
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a stopped simulator. Start begins streaming telemetry.
func New(logger *log.Logger, cfg Config) *Simulator {
	if logger == nil {
		panic("Simulator: logger cannot be nil")
	}
	def := DefaultConfig()
	if cfg.SamplePeriod <= 0 {
		cfg.SamplePeriod = def.SamplePeriod
	}
	if cfg.RepPeriod <= 0 {
		cfg.RepPeriod = def.RepPeriod
	}
	if cfg.TravelMm <= 0 {
		cfg.TravelMm = def.TravelMm
	}
	return &Simulator{
		logger:         logger,
		cfg:            cfg,
		faults:         make(map[string]error),
		telemetryEvent: events.NewCallbackEvent[telemetry.Sample](false),
		repEvent:       events.NewCallbackEvent[telemetry.RepEvent](false),
		connErrEvent:   events.NewCallbackEvent[error](false),
	}
}

// Start launches the sample loop and, when configured, the control server.
func (s *Simulator) Start() error {
	s.logger.Printf("Simulator: Starting (sample period %v, rep period %v)", s.cfg.SamplePeriod, s.cfg.RepPeriod)
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	if s.cfg.Addr != "" {
		s.server = &http.Server{
			Addr:              s.cfg.Addr,
			Handler:           s.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go_func_utils.SafeGoWG(s.logger, &s.wg, func() {
			s.logger.Printf("Simulator: Control server listening on %s", s.cfg.Addr)
			if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				s.logger.Printf("Simulator: Control server error: %v", err)
			}
		})
	}

	go_func_utils.SafeGoWG(s.logger, &s.wg, func() {
		ticker := time.NewTicker(s.cfg.SamplePeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				s.tick(now)
			}
		}
	})
	return nil
}

// Shutdown stops the control server and the sample loop.
func (s *Simulator) Shutdown() {
	s.logger.Println("Simulator: Shutting down")
	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(ctx); err != nil {
			s.logger.Printf("Simulator: Control server shutdown error: %v", err)
		}
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	s.logger.Println("Simulator: Shutdown complete")
}

// tick advances the motion by one sample period and publishes the results.
// Listeners are called outside the lock, from the sample loop only.
func (s *Simulator) tick(now time.Time) {
	s.mu.Lock()
	linkErr := s.dropLink
	s.dropLink = nil

	var reps []telemetry.RepEvent
	prev := s.position
	force := 0.0
	switch {
	case !s.running:
		s.position = 0
	case s.held:
		s.position = s.holdPos
		force = s.weight
	default:
		before := s.phase % s.cfg.RepPeriod
		s.phase += s.cfg.SamplePeriod
		after := s.phase % s.cfg.RepPeriod
		half := s.cfg.RepPeriod / 2
		if before < half && after >= half {
			s.top++
			reps = append(reps, telemetry.RepEvent{Timestamp: now, TopCounter: s.top, BottomCount: s.bottom})
		}
		if after < before {
			s.bottom++
			reps = append(reps, telemetry.RepEvent{Timestamp: now, TopCounter: s.top, BottomCount: s.bottom})
		}
		s.position = s.positionAt(after)
		force = s.weight
	}
	sample := telemetry.Sample{
		Timestamp: now,
		Position:  s.position,
		Velocity:  (s.position - prev) / s.cfg.SamplePeriod.Seconds(),
		Force:     force,
	}
	s.mu.Unlock()

	if linkErr != nil {
		s.connErrEvent.Notify(linkErr)
	}
	s.telemetryEvent.Notify(sample)
	for _, r := range reps {
		s.repEvent.Notify(r)
	}
}

// positionAt is a cosine profile: 0 at the start of the rep, TravelMm halfway.
func (s *Simulator) positionAt(offset time.Duration) float64 {
	frac := float64(offset) / float64(s.cfg.RepPeriod)
	return s.cfg.TravelMm * (1 - math.Cos(2*math.Pi*frac)) / 2
}

func (s *Simulator) command(ctx context.Context, name, value string, apply func()) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cmd := Command{At: time.Now(), Name: name, Value: value}
	err := s.faults[name]
	if err != nil {
		delete(s.faults, name)
		cmd.Err = err.Error()
	} else if apply != nil {
		apply()
	}
	s.commands = append(s.commands, cmd)
	if len(s.commands) > maxCommandLog {
		s.commands = s.commands[len(s.commands)-maxCommandLog:]
	}
	if err != nil {
		s.logger.Printf("Simulator: %s failed: %v", name, err)
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

func (s *Simulator) SendStart(ctx context.Context) error {
	return s.command(ctx, "start", "", func() {
		s.running = true
		s.held = false
		s.phase = 0
		s.top, s.bottom = 0, 0
	})
}

func (s *Simulator) SendStop(ctx context.Context) error {
	return s.command(ctx, "stop", "", func() {
		s.running = false
		s.held = false
	})
}

func (s *Simulator) SendReset(ctx context.Context) error {
	return s.command(ctx, "reset", "", func() {
		s.running = false
		s.held = false
		s.phase = 0
		s.top, s.bottom = 0, 0
	})
}

func (s *Simulator) SendClearFault(ctx context.Context) error {
	return s.command(ctx, "clear_fault", "", nil)
}

func (s *Simulator) SendWeight(ctx context.Context, kgPerCable float64) error {
	return s.command(ctx, "weight", fmt.Sprintf("%.1f", kgPerCable), func() { s.weight = kgPerCable })
}

func (s *Simulator) SendProgramMode(ctx context.Context, mode routine.ProgramMode) error {
	return s.command(ctx, "program", mode.String(), func() { s.mode = mode })
}

func (s *Simulator) SubscribeTelemetry(fn func(telemetry.Sample)) func() {
	return s.telemetryEvent.Listen(fn)
}

func (s *Simulator) SubscribeReps(fn func(telemetry.RepEvent)) func() {
	return s.repEvent.Listen(fn)
}

func (s *Simulator) SubscribeConnectionErrors(fn func(error)) func() {
	return s.connErrEvent.Listen(fn)
}

// Hold freezes the cable at positionMm, or where it is when positionMm is
// negative, until Release.
func (s *Simulator) Hold(positionMm float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if positionMm < 0 {
		positionMm = s.position
	}
	s.held = true
	s.holdPos = min(positionMm, s.cfg.TravelMm)
	s.position = s.holdPos
	s.logger.Printf("Simulator: Holding cable at %.0fmm", s.holdPos)
}

// Release resumes the rep motion from the bottom.
func (s *Simulator) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.held {
		s.held = false
		s.phase = (s.phase/s.cfg.RepPeriod + 1) * s.cfg.RepPeriod
		s.logger.Println("Simulator: Released cable")
	}
}

// FailNext makes the next command called name fail with err.
func (s *Simulator) FailNext(name string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults[name] = err
}

// DropConnection reports err on the connection error stream with the next
// sample.
func (s *Simulator) DropConnection(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dropLink = err
}

// ClearFaults forgets pending command failures.
func (s *Simulator) ClearFaults() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.faults)
}

// Commands returns the most recent commands, oldest first.
func (s *Simulator) Commands() []Command {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.commands)
}

// State returns a snapshot of the machine.
func (s *Simulator) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := State{
		Running:       s.running,
		Held:          s.held,
		PositionMm:    s.position,
		WeightKg:      s.weight,
		ProgramMode:   s.mode.String(),
		TopCounter:    s.top,
		BottomCounter: s.bottom,
	}
	for name, err := range s.faults {
		st.Fault = name + ": " + err.Error()
		break
	}
	return st
}
