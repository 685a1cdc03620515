package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jingxuanxu04/LAPD-DAQ/trigger"
)

func newHomeCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "home",
		Short: "Home every axis and zero the position counters",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			r, err := buildRig(ctx, *cfgPath)
			if err != nil {
				return err
			}
			defer r.Close()

			go func() {
				<-ctx.Done()
				r.ctrl.Stop()
			}()

			if err := r.ctrl.Home(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "all axes homed")
			return nil
		},
	}
}

func newStatusCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Report drive status and probe position",
		RunE: func(cmd *cobra.Command, _ []string) error {
			r, err := buildRig(cmd.Context(), *cfgPath)
			if err != nil {
				return err
			}
			defer r.Close()
			out := cmd.OutOrStdout()

			for _, ax := range r.axes {
				st, err := ax.Status()
				if err != nil {
					return err
				}
				pos, err := ax.Position()
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "axis %-2s %-12s %8.3f cm\n", ax.Name(), st, pos)
			}

			probe, err := r.ctrl.Position()
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "probe at (%.3f, %.3f, %.3f)\n", probe.X, probe.Y, probe.Z)

			if tc := r.cfg.Trigger; tc != nil {
				tr := trigger.New(trigger.Config{
					Address:  tc.Address,
					Timeout:  tc.Timeout.Std(),
					Attempts: tc.Attempts,
					Logger:   r.log,
				})
				if err := tr.Ready(cmd.Context()); err != nil {
					fmt.Fprintf(out, "trigger: %v\n", err)
				} else {
					fmt.Fprintln(out, "trigger: ready")
				}
			}
			return nil
		},
	}
}
