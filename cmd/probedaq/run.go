package main

import (
	"encoding/csv"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jingxuanxu04/LAPD-DAQ/motion"
	"github.com/jingxuanxu04/LAPD-DAQ/scan"
	"github.com/jingxuanxu04/LAPD-DAQ/trigger"
)

func newRunCmd(cfgPath *string) *cobra.Command {
	var dryRun bool
	var positionsPath string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the configured scan session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			r, err := buildRig(ctx, *cfgPath)
			if err != nil {
				return err
			}
			defer r.Close()
			r.serveMetrics()

			// A signal halts the drives immediately, not just at the
			// next waypoint.
			go func() {
				<-ctx.Done()
				r.ctrl.Stop()
			}()

			var firer scan.Firer
			if tc := r.cfg.Trigger; tc != nil && !dryRun {
				firer = trigger.New(trigger.Config{
					Address:  tc.Address,
					Timeout:  tc.Timeout.Std(),
					Attempts: tc.Attempts,
					Logger:   r.log,
				})
			}

			var rec scan.Recorder
			if positionsPath != "" {
				cr, err := newCSVRecorder(positionsPath)
				if err != nil {
					return err
				}
				defer cr.Close()
				rec = cr
			}

			sess, err := scan.NewSession(scan.Config{
				Grid:      r.cfg.ScanGrid(),
				Mover:     r.ctrl,
				Trigger:   firer,
				Recorder:  rec,
				ShotDelay: r.cfg.Grid.ShotDelay.Std(),
				Logger:    r.log,
			})
			if err != nil {
				return err
			}

			sum, runErr := sess.Run(ctx)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "run %s: %d shots, %d completed, %d skipped\n",
				sum.RunID, sum.Shots, sum.Completed, sum.Skipped)
			for reason, n := range sum.SkipReasons {
				fmt.Fprintf(out, "  skipped %d: %s\n", n, reason)
			}
			return runErr
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false,
		"move the probe without firing the trigger")
	cmd.Flags().StringVar(&positionsPath, "positions", "",
		"write per-shot achieved positions to this CSV file")
	return cmd
}

// csvRecorder writes one row per shot so skipped shots are visible in the
// position record alongside achieved ones.
type csvRecorder struct {
	f *os.File
	w *csv.Writer
}

func newCSVRecorder(path string) (*csvRecorder, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	w := csv.NewWriter(f)
	if err := w.Write([]string{"shot", "x", "y", "z", "skipped", "reason"}); err != nil {
		f.Close()
		return nil, err
	}
	return &csvRecorder{f: f, w: w}, nil
}

func (r *csvRecorder) Record(shot int, res motion.Result) error {
	row := []string{
		strconv.Itoa(shot),
		strconv.FormatFloat(res.Achieved.X, 'f', 4, 64),
		strconv.FormatFloat(res.Achieved.Y, 'f', 4, 64),
		strconv.FormatFloat(res.Achieved.Z, 'f', 4, 64),
		strconv.FormatBool(res.Skipped),
		res.SkipReason,
	}
	if err := r.w.Write(row); err != nil {
		return err
	}
	r.w.Flush()
	return r.w.Error()
}

func (r *csvRecorder) Close() error {
	r.w.Flush()
	return r.f.Close()
}
