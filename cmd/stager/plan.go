package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/memlab-tools/stager/pkg/config"
	"github.com/memlab-tools/stager/pkg/filesystem"
	"github.com/memlab-tools/stager/pkg/manifest"
	"github.com/memlab-tools/stager/pkg/planner"
	"github.com/memlab-tools/stager/pkg/report"
)

var (
	planBinding  bindingFlags
	planManifest string
	planPrefer   []string
	planAll      bool
	planJSON     bool

	planCmd = &cobra.Command{
		Use:   "plan",
		Short: "Resolve the manifest into an auditable transfer plan",
		Long: `Resolve every manifest entry against the supplied parameters and print
the transfer plan without touching the destination tree. Use --json for a
deterministic, diffable document; --all-groups plans every variant of each
grouped role for auditing (such plans cannot be executed).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cliOverrides(planManifest, planPrefer, ""))
			if err != nil {
				return err
			}

			plan, err := resolvePlan(cfg, planBinding, planAll)
			if err != nil {
				return err
			}

			if planJSON {
				doc, err := report.PlanJSON(plan)
				if err != nil {
					return err
				}
				_, err = os.Stdout.WriteString(doc)
				return err
			}
			return report.RenderPlan(os.Stdout, plan)
		},
	}
)

func init() {
	planBinding.register(planCmd)
	planCmd.Flags().StringVar(&planManifest, "manifest", "", "manifest file (default: embedded manifest)")
	planCmd.Flags().StringSliceVar(&planPrefer, "prefer", nil,
		"group preference order (default from configuration)")
	planCmd.Flags().BoolVar(&planAll, "all-groups", false,
		"plan every group variant (audit mode)")
	planCmd.Flags().BoolVar(&planJSON, "json", false, "emit the plan as JSON")
}

// cliOverrides translates set command-line flags into the top configuration
// layer; unset flags leave the lower layers in charge.
func cliOverrides(manifestPath string, prefer []string, mode string) map[string]interface{} {
	overrides := make(map[string]interface{})
	if manifestPath != "" {
		overrides["manifest"] = manifestPath
	}
	if prefer != nil {
		overrides["group_preference"] = prefer
	}
	if mode != "" {
		overrides["mode"] = mode
	}
	return overrides
}

// resolvePlan runs the pure pipeline stages shared by plan and run.
func resolvePlan(cfg *config.Config, bf bindingFlags, allGroups bool) (*planner.Plan, error) {
	m, err := loadManifestSource(cfg)
	if err != nil {
		return nil, err
	}

	binding, err := bf.binding()
	if err != nil {
		return nil, err
	}

	return planner.New(filesystem.NewOS()).Plan(m, binding, planner.Options{
		GroupPreference: cfg.GroupPreference,
		AllGroups:       allGroups,
	})
}

func loadManifestSource(cfg *config.Config) (*manifest.Manifest, error) {
	if cfg.Manifest == "" {
		return manifest.LoadDefault()
	}
	return manifest.LoadFile(filesystem.NewOS(), cfg.Manifest)
}
