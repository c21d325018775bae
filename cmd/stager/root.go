package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/memlab-tools/stager/pkg/logging"
	"github.com/memlab-tools/stager/pkg/report"
)

var (
	verbosity int

	rootCmd = &cobra.Command{
		Use:   "stager",
		Short: "Manifest-driven research dataset assembly",
		Long: `stager resolves a transfer manifest against a subject's source trees
(imaging exports, FreeSurfer outputs, coordinate files, clinical documents)
and materializes the result into one normalized destination layout.

Planning is separated from execution: "stager plan" produces a deterministic,
auditable transfer plan without touching the destination; "stager run"
validates that plan and performs the copies and links.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logging.SetupLogger(verbosity)
			report.AutoStyle()
			log.Debug().Str("command", cmd.Name()).Msg("Command started")
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

// Execute adds all child commands to the root command and runs it.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	return err
}

func init() {
	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v",
		"Increase verbosity (-v INFO, -vv DEBUG, -vvv TRACE)")

	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}
