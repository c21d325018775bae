// Package report renders transfer plans and transfer results: JSON for
// machine consumption (dry-run audits, diffable plans) and terminal tables
// for humans.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/pterm/pterm"

	"github.com/memlab-tools/stager/pkg/executor"
	"github.com/memlab-tools/stager/pkg/paths"
	"github.com/memlab-tools/stager/pkg/planner"
	"github.com/memlab-tools/stager/pkg/validator"
)

// AutoStyle disables terminal decoration when stdout is not a TTY, so
// piped output stays machine friendly.
func AutoStyle() {
	if !isatty.IsTerminal(os.Stdout.Fd()) {
		pterm.DisableColor()
		pterm.DisableStyling()
	}
}

// PlanJSON serializes a plan for audit and diffing. Item order matches
// manifest declaration order, so two runs over the same inputs produce
// byte-identical documents.
func PlanJSON(plan *planner.Plan) (string, error) {
	out, err := json.MarshalIndent(plan, "", "  ")
	if err != nil {
		return "", err
	}
	return string(out) + "\n", nil
}

// ResultsJSON serializes executed results, including validation context.
func ResultsJSON(vp *validator.ValidatedPlan, results []executor.Result) (string, error) {
	doc := struct {
		Plan    *planner.Plan     `json:"plan"`
		Results []executor.Result `json:"results"`
		Summary string            `json:"summary"`
	}{vp.Plan, results, executor.Summary(results)}

	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", err
	}
	return string(out) + "\n", nil
}

// WriteRunReport persists the result document under the report directory,
// one file per run, and returns its path. Every run leaves a record, the
// same way the original submission pipeline kept per-run transfer logs.
func WriteRunReport(vp *validator.ValidatedPlan, results []executor.Result, now time.Time) (string, error) {
	doc, err := ResultsJSON(vp, results)
	if err != nil {
		return "", err
	}

	dir := paths.ReportDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, "run-"+now.Format("20060102-150405")+".json")
	if err := os.WriteFile(path, []byte(doc), 0644); err != nil {
		return "", err
	}
	return path, nil
}

// RenderPlan prints a human-readable plan table.
func RenderPlan(w io.Writer, plan *planner.Plan) error {
	data := pterm.TableData{{"ENTRY", "TYPE", "ORIGIN", "DESTINATION", "POLICY"}}
	for _, item := range plan.Items {
		data = append(data, []string{
			item.EntryName,
			item.Kind.String(),
			item.Origin,
			item.Destination,
			policyLabel(item),
		})
	}

	table, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintln(w, table); err != nil {
		return err
	}

	if len(plan.Failures) > 0 {
		if _, err := fmt.Fprintf(w, "\n%d branch(es) failed to resolve:\n", len(plan.Failures)); err != nil {
			return err
		}
		for _, f := range plan.Failures {
			if _, err := fmt.Fprintf(w, "  %s: %s\n", f.EntryName, f.Reason); err != nil {
				return err
			}
		}
	}
	return nil
}

// RenderResults prints a per-item result table plus the run summary.
func RenderResults(w io.Writer, results []executor.Result) error {
	data := pterm.TableData{{"ENTRY", "STATUS", "DESTINATION", "DETAIL"}}
	for _, r := range results {
		detail := r.Message
		if r.Err != nil && detail == "" {
			detail = r.Err.Error()
		}
		data = append(data, []string{
			r.Item.EntryName,
			r.Status.String(),
			r.Item.Destination,
			detail,
		})
	}

	table, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintln(w, table); err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "\n%s\n", executor.Summary(results))
	return err
}

func policyLabel(item planner.Item) string {
	label := "optional"
	if item.Policy.Required {
		label = "required"
	}
	if item.Policy.Multiple {
		label += fmt.Sprintf(", %d matched", item.MatchedCount)
	}
	if item.Policy.ChecksumContents {
		label += ", checksummed"
	}
	return label
}
