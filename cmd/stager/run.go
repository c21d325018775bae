package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/memlab-tools/stager/pkg/checksum"
	"github.com/memlab-tools/stager/pkg/config"
	"github.com/memlab-tools/stager/pkg/errors"
	"github.com/memlab-tools/stager/pkg/executor"
	"github.com/memlab-tools/stager/pkg/filesystem"
	"github.com/memlab-tools/stager/pkg/logging"
	"github.com/memlab-tools/stager/pkg/planner"
	"github.com/memlab-tools/stager/pkg/report"
	"github.com/memlab-tools/stager/pkg/validator"
)

var (
	runBinding  bindingFlags
	runManifest string
	runPrefer   []string
	runDry      bool
	runJSON     bool
	runMode     string

	runCmd = &cobra.Command{
		Use:   "run",
		Short: "Validate and execute the transfer plan",
		Long: `Resolve the manifest, validate every planned item against the origin
trees (existence, policy, digests, destination collisions), then materialize
the plan. Optional-missing entries are skipped; required-missing entries and
exhausted retries are aggregated into the final report rather than aborting
the run.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cliOverrides(runManifest, runPrefer, runMode))
			if err != nil {
				return err
			}

			plan, err := resolvePlan(cfg, runBinding, false)
			if err != nil {
				return err
			}

			digester, err := checksum.New(cfg.Checksum)
			if err != nil {
				return err
			}

			mode, err := executor.ParseMode(cfg.Mode)
			if err != nil {
				return err
			}

			timeout, err := cfg.ItemTimeoutDuration()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			fs := filesystem.NewOS()

			vp, err := validator.New(fs, digester, validator.Options{
				Workers: cfg.Workers,
			}).Validate(ctx, plan)
			if err != nil {
				return err
			}

			results, err := executor.New(fs, digester, executor.Options{
				Mode:        mode,
				Workers:     cfg.Workers,
				Retries:     cfg.Retries,
				ItemTimeout: timeout,
				DryRun:      runDry,
			}).Execute(ctx, vp)
			if err != nil {
				return err
			}

			if runJSON {
				doc, err := report.ResultsJSON(vp, results)
				if err != nil {
					return err
				}
				if _, err := os.Stdout.WriteString(doc); err != nil {
					return err
				}
			} else if err := report.RenderResults(os.Stdout, results); err != nil {
				return err
			}

			if !runDry {
				runLog := logging.GetLogger("run")
				if path, err := report.WriteRunReport(vp, results, time.Now()); err != nil {
					runLog.Warn().Err(err).Msg("Could not persist run report")
				} else {
					runLog.Info().Str("path", path).Msg("Run report written")
				}
			}

			return runError(plan.Failures, results)
		},
	}
)

func init() {
	runBinding.register(runCmd)
	runCmd.Flags().StringVar(&runManifest, "manifest", "", "manifest file (default: embedded manifest)")
	runCmd.Flags().StringSliceVar(&runPrefer, "prefer", nil,
		"group preference order (default from configuration)")
	runCmd.Flags().BoolVar(&runDry, "dry-run", false, "validate and report without transferring")
	runCmd.Flags().BoolVar(&runJSON, "json", false, "emit the result report as JSON")
	runCmd.Flags().StringVar(&runMode, "mode", "", "materialization mode: copy or link")
}

// runError folds the aggregated per-item outcomes into the process exit
// status: any failed or aborted item, or unresolved branch, is a failure.
func runError(failures []planner.Failure, results []executor.Result) error {
	bad := len(failures)
	for _, r := range results {
		if r.Status == executor.StatusFailed || r.Status == executor.StatusAborted {
			bad++
		}
	}
	if bad > 0 {
		return errors.Newf(errors.ErrTransferFailed,
			"%d item(s) did not transfer cleanly", bad)
	}
	return nil
}
