package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rivo/tview"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/lowaak/smart-trainer/cable-trainer-app/internal/console"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Connect to the trainer and open the workout dashboard",
	Long: `run connects to the trainer (or starts the simulator), opens the database and
shows the workout dashboard until you quit with Q or Esc.

--routine takes a saved routine id or a YAML routine file; files are imported
before the routine opens. --headless skips the dashboard and runs until
interrupted, which is useful with the simulator control server.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		routineRef, _ := cmd.Flags().GetString("routine")
		headless, _ := cmd.Flags().GetBool("headless")

		e, err := setup(cmd)
		if err != nil {
			return err
		}
		defer e.Close()

		parent := cmd.Context()
		if parent == nil {
			parent = context.Background()
		}
		ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
		defer stop()

		t, err := startTrainer(ctx, e)
		if err != nil {
			return err
		}
		defer t.Close()

		if routineRef != "" {
			r, err := t.resolveRoutine(ctx, routineRef)
			if err != nil {
				return err
			}
			if err := t.session.EnterRoutineOverview(r); err != nil {
				return fmt.Errorf("opening routine %s: %w", r.Name, err)
			}
		}

		runCtx, cancelRun := context.WithCancel(ctx)
		defer cancelRun()
		g, gctx := errgroup.WithContext(runCtx)

		if addr := e.cfg.Metrics.Listen; addr != "" {
			g.Go(func() error { return serveMetrics(gctx, addr, e) })
		}

		if headless {
			e.logger.Println("CLI: Running headless")
			fmt.Fprintln(cmd.OutOrStdout(), "running headless, interrupt to stop")
			g.Go(func() error {
				<-gctx.Done()
				return nil
			})
			return g.Wait()
		}

		// The dashboard owns the terminal, so the log goes to the file and the
		// log panel only.
		logs := console.NewLogBuffer()
		e.logger.SetOutput(io.MultiWriter(e.file, logs))

		dash := console.NewDashboard(console.NewDashboardArg{
			App:        tview.NewApplication(),
			State:      t.session.Store(),
			Controller: console.NewController(t.session, e.cfg.Workout.WeightStepKg, e.logger),
			Telemetry:  t.device,
			Logs:       logs,
			Logger:     e.logger,
		})
		g.Go(func() error {
			defer cancelRun()
			defer dash.Shutdown()
			if gctx.Err() != nil {
				return nil
			}
			return dash.Run()
		})
		g.Go(func() error {
			<-gctx.Done()
			dash.Stop()
			return nil
		})
		return g.Wait()
	},
}

func init() {
	runCmd.Flags().String("routine", "", "routine id or YAML file to open")
	runCmd.Flags().Bool("headless", false, "run without the dashboard")
}
