// Package console is the terminal dashboard for a workout session.
package console

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/lowaak/smart-trainer/cable-trainer-app/internal/go_func_utils"
	"github.com/lowaak/smart-trainer/cable-trainer-app/internal/routine"
	"github.com/lowaak/smart-trainer/cable-trainer-app/internal/session"
	"github.com/lowaak/smart-trainer/cable-trainer-app/internal/telemetry"
)

const (
	refreshInterval = 100 * time.Millisecond
	eventTailLines  = 8
	logTailLines    = 200
)

// State is the observable session state the dashboard renders.
type State interface {
	WorkoutState() session.Observable[session.WorkoutState]
	Parameters() session.Observable[session.WorkoutParameters]
	RepCount() session.Observable[session.RepCount]
	AutoStop() session.Observable[session.AutoStopState]
	Totals() session.Observable[session.SessionTotals]
	RoutineFlow() session.Observable[session.RoutineFlowState]
	Routine() session.Observable[*routine.Routine]
	Position() session.Observable[routine.Step]
	Progress() session.Observable[session.RoutineProgress]
	ListenHaptics(ch chan<- telemetry.HapticEvent) func()
	ListenWarnings(ch chan<- telemetry.Warning) func()
}

// TelemetrySource feeds the live metrics panel.
type TelemetrySource interface {
	SubscribeTelemetry(fn func(telemetry.Sample)) func()
}

// NewDashboardArg holds the arguments for creating a new Dashboard.
type NewDashboardArg struct {
	App        *tview.Application
	State      State
	Controller *Controller
	Telemetry  TelemetrySource
	Logs       *LogBuffer
	Logger     *log.Logger
}

// Dashboard lays out the workout, routine, metrics and event panels and keeps
// them in sync with the session state.
type Dashboard struct {
	app        *tview.Application
	state      State
	controller *Controller
	logs       *LogBuffer
	events     *LogBuffer
	logger     *log.Logger
	now        func() time.Time

	root         *tview.Flex
	workoutPanel *tview.TextView
	routinePanel *tview.TextView
	metricsPanel *tview.TextView
	eventsPanel  *tview.TextView
	logView      *tview.TextView
	tabWidgets   []*tview.Box

	sampleMu   sync.Mutex
	lastSample telemetry.Sample
	hasSample  bool

	dirty       chan struct{}
	unsubscribe []func()
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
}

func NewDashboard(args NewDashboardArg) *Dashboard {
	if args.Logger == nil {
		panic("Dashboard: logger cannot be nil")
	}
	if args.App == nil {
		panic("Dashboard: app cannot be nil")
	}
	if args.State == nil {
		panic("Dashboard: state cannot be nil")
	}
	if args.Controller == nil {
		panic("Dashboard: controller cannot be nil")
	}
	ctx, cancel := context.WithCancel(context.Background())
	d := &Dashboard{
		app:        args.App,
		state:      args.State,
		controller: args.Controller,
		logs:       args.Logs,
		events:     NewLogBuffer(),
		logger:     args.Logger,
		now:        time.Now,
		dirty:      make(chan struct{}, 1),
		ctx:        ctx,
		cancel:     cancel,
	}
	d.initLayout()
	d.setupKeyboardHandlers()

	if args.Telemetry != nil {
		d.unsubscribe = append(d.unsubscribe, args.Telemetry.SubscribeTelemetry(d.onSample))
	}
	d.setupEventListeners()
	d.render()
	return d
}

func newPanel(title string) *tview.TextView {
	v := tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignLeft)
	v.SetBorder(true).SetTitle(" " + title + " ")
	return v
}

func (d *Dashboard) initLayout() {
	instructions := tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter).
		SetText(helpText)

	// Don't use SetChangedFunc with app.Draw(); it can hang during shutdown.
	d.workoutPanel = newPanel("Workout")
	d.routinePanel = newPanel("Routine")
	d.metricsPanel = newPanel("Live")
	d.eventsPanel = newPanel("Events")
	d.logView = newPanel("Log")
	// Not scrollable so the view always shows the newest lines.
	d.logView.SetScrollable(false)

	d.tabWidgets = []*tview.Box{d.workoutPanel.Box, d.routinePanel.Box, d.metricsPanel.Box}

	left := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(d.workoutPanel, 0, 3, true).
		AddItem(d.metricsPanel, 9, 0, false)
	right := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(d.routinePanel, 0, 3, false).
		AddItem(d.eventsPanel, eventTailLines+2, 0, false)
	panels := tview.NewFlex().
		SetDirection(tview.FlexColumn).
		AddItem(left, 0, 1, true).
		AddItem(right, 0, 1, false)
	if d.logs != nil {
		panels.AddItem(d.logView, 0, 1, false)
	}

	d.root = tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(instructions, 2, 0, false).
		AddItem(panels, 0, 1, true)
}

func (d *Dashboard) setupKeyboardHandlers() {
	d.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if event.Key() == tcell.KeyEscape || (event.Key() == tcell.KeyRune && (event.Rune() == 'q' || event.Rune() == 'Q')) {
			d.logger.Println("Dashboard: Quit requested")
			d.app.Stop()
			return nil
		}

		// Tab to switch focus between panels
		if event.Key() == tcell.KeyTab {
			for i, w := range d.tabWidgets {
				if w.HasFocus() {
					d.app.SetFocus(d.tabWidgets[(i+1)%len(d.tabWidgets)])
					return nil
				}
			}
			d.app.SetFocus(d.tabWidgets[0])
			return nil
		}

		handled, err := d.controller.HandleKey(event, d.snapshot())
		if err != nil {
			d.logger.Printf("Dashboard: Command failed: %v", err)
			d.addEvent("[red]" + tview.Escape(err.Error()) + "[white]")
		}
		if handled {
			return nil
		}
		return event
	})
}

func (d *Dashboard) snapshot() Snapshot {
	return Snapshot{
		Workout: d.state.WorkoutState().Get(),
		Params:  d.state.Parameters().Get(),
		Flow:    d.state.RoutineFlow().Get(),
		Routine: d.state.Routine().Get(),
	}
}

func (d *Dashboard) onSample(s telemetry.Sample) {
	d.sampleMu.Lock()
	d.lastSample = s
	d.hasSample = true
	d.sampleMu.Unlock()
}

func (d *Dashboard) sample() (telemetry.Sample, bool) {
	d.sampleMu.Lock()
	defer d.sampleMu.Unlock()
	return d.lastSample, d.hasSample
}

func (d *Dashboard) markDirty() {
	select {
	case d.dirty <- struct{}{}:
	default:
	}
}

func (d *Dashboard) addEvent(line string) {
	d.events.Add(formatEventTime(d.now()) + line)
	d.markDirty()
}

func formatEventTime(t time.Time) string {
	return "[gray]" + t.Format("15:04:05") + "[white] "
}

// watch turns every change of obs into a redraw.
func watch[T any](d *Dashboard, obs session.Observable[T]) {
	ch := make(chan T, 1)
	d.unsubscribe = append(d.unsubscribe, obs.Listen(ch))
	d.wg.Add(1)
	go_func_utils.SafeGo(d.logger, func() {
		defer d.wg.Done()
		for {
			select {
			case <-d.ctx.Done():
				return
			case <-ch:
				d.markDirty()
			}
		}
	})
}

func (d *Dashboard) setupEventListeners() {
	watch(d, d.state.WorkoutState())
	watch(d, d.state.Parameters())
	watch(d, d.state.RepCount())
	watch(d, d.state.AutoStop())
	watch(d, d.state.Totals())
	watch(d, d.state.RoutineFlow())
	watch(d, d.state.Routine())
	watch(d, d.state.Position())
	watch(d, d.state.Progress())

	warnings := make(chan telemetry.Warning, 16)
	d.unsubscribe = append(d.unsubscribe, d.state.ListenWarnings(warnings))
	d.wg.Add(1)
	go_func_utils.SafeGo(d.logger, func() {
		defer d.wg.Done()
		for {
			select {
			case <-d.ctx.Done():
				return
			case w := <-warnings:
				d.events.Add(formatWarning(d.now(), w))
				d.markDirty()
			}
		}
	})

	haptics := make(chan telemetry.HapticEvent, 16)
	d.unsubscribe = append(d.unsubscribe, d.state.ListenHaptics(haptics))
	d.wg.Add(1)
	go_func_utils.SafeGo(d.logger, func() {
		defer d.wg.Done()
		for {
			select {
			case <-d.ctx.Done():
				return
			case h := <-haptics:
				// Reps and countdown ticks are already visible in the workout panel.
				if h == telemetry.HapticRepCompleted || h == telemetry.HapticCountdownTick {
					continue
				}
				d.events.Add(formatHaptic(d.now(), h))
				d.markDirty()
			}
		}
	})

	if d.logs != nil {
		logs := make(chan string, 16)
		d.unsubscribe = append(d.unsubscribe, d.logs.Listen(logs))
		d.wg.Add(1)
		go_func_utils.SafeGo(d.logger, func() {
			defer d.wg.Done()
			for {
				select {
				case <-d.ctx.Done():
					return
				case <-logs:
					d.markDirty()
				}
			}
		})
	}

	// Redraw on change, and periodically for the live metrics and dwell timers.
	d.wg.Add(1)
	go_func_utils.SafeGo(d.logger, func() {
		defer d.wg.Done()
		ticker := time.NewTicker(refreshInterval)
		defer ticker.Stop()
		for {
			select {
			case <-d.ctx.Done():
				return
			case <-d.dirty:
			case <-ticker.C:
			}
			d.render()
			d.app.Draw()
		}
	})
}

func (d *Dashboard) render() {
	now := d.now()
	d.workoutPanel.SetText(formatWorkout(WorkoutView{
		State:  d.state.WorkoutState().Get(),
		Params: d.state.Parameters().Get(),
		Reps:   d.state.RepCount().Get(),
		Auto:   d.state.AutoStop().Get(),
		Totals: d.state.Totals().Get(),
	}, now))
	d.routinePanel.SetText(formatRoutine(RoutineView{
		Flow:     d.state.RoutineFlow().Get(),
		Routine:  d.state.Routine().Get(),
		Position: d.state.Position().Get(),
		Progress: d.state.Progress().Get(),
	}))
	d.metricsPanel.SetText(formatSample(d.sample()))
	d.eventsPanel.SetText(strings.Join(d.events.Tail(eventTailLines), "\n"))

	if d.logs != nil {
		lines := d.logs.Tail(logTailLines)
		for i := range lines {
			lines[i] = tview.Escape(lines[i])
		}
		d.logView.SetText(strings.Join(lines, "\n"))
	}
}

// Run starts the UI and blocks until it exits.
func (d *Dashboard) Run() error {
	// SetRoot must be called before setting focus, otherwise focus may be reset
	d.app.SetRoot(d.root, true)
	d.app.SetFocus(d.workoutPanel)
	return d.app.Run()
}

// Stop stops the UI framework.
func (d *Dashboard) Stop() {
	d.app.Stop()
}

// Shutdown stops all goroutines and waits for them to finish.
func (d *Dashboard) Shutdown() {
	d.logger.Println("Dashboard: Shutting down")
	for _, unsubscribe := range d.unsubscribe {
		unsubscribe()
	}
	d.cancel()
	d.wg.Wait()
	d.logger.Println("Dashboard: Shutdown complete")
}
