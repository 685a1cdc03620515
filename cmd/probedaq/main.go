// probedaq drives a plasma probe through a configured scan raster:
// it connects to the motor drives, plans collision-free paths, and
// coordinates moves with the discharge trigger.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfgPath string

	cmd := &cobra.Command{
		Use:           "probedaq",
		Short:         "Probe motion control and data acquisition",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	cmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "daq.yaml",
		"experiment configuration file")

	cmd.AddCommand(
		newRunCmd(&cfgPath),
		newHomeCmd(&cfgPath),
		newStatusCmd(&cfgPath),
		newVersionCmd(),
	)
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the probedaq version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "probedaq", version)
		},
	}
}
