// Package validator checks a transfer plan against the origin filesystem:
// presence versus required/optional policy, content digests where
// requested, and destination collisions. Validation only reads; a plan
// that validates cleanly is safe to hand to the executor.
package validator

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/memlab-tools/stager/pkg/checksum"
	"github.com/memlab-tools/stager/pkg/errors"
	"github.com/memlab-tools/stager/pkg/filesystem"
	"github.com/memlab-tools/stager/pkg/logging"
	"github.com/memlab-tools/stager/pkg/manifest"
	"github.com/memlab-tools/stager/pkg/planner"
)

// Status classifies one validated plan item.
type Status int

const (
	// StatusOK: origin present, item ready for execution.
	StatusOK Status = iota
	// StatusSkipped: origin absent and the entry is optional.
	StatusSkipped
	// StatusMissingRequired: origin absent and the entry is required.
	StatusMissingRequired
	// StatusError: origin present but could not be inspected (digest I/O).
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusSkipped:
		return "skipped"
	case StatusMissingRequired:
		return "missing-required"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// MarshalJSON renders the status as its report keyword.
func (s Status) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// Result is the validation outcome for one plan item.
type Result struct {
	Item   planner.Item `json:"item"`
	Status Status       `json:"status"`
	Digest string       `json:"digest,omitempty"`
	Err    error        `json:"-"`
	Reason string       `json:"reason,omitempty"`
}

// ValidatedPlan couples the plan with its per-item validation results, in
// plan order. Only validated plans reach the executor.
type ValidatedPlan struct {
	Plan    *planner.Plan `json:"plan"`
	Results []Result      `json:"results"`
}

// OK reports whether every required item is present and no item errored.
func (vp *ValidatedPlan) OK() bool {
	for _, r := range vp.Results {
		if r.Status == StatusMissingRequired || r.Status == StatusError {
			return false
		}
	}
	return true
}

// Options configure validation.
type Options struct {
	// Workers bounds parallel filesystem probes. Zero means sequential.
	Workers int
}

// Validator inspects plans against origin state.
type Validator struct {
	fs       filesystem.FS
	digester checksum.Digester
	workers  int
	logger   zerolog.Logger
}

// New creates a validator. The digester is the external checksum
// collaborator; it is only invoked for entries with checksum_contents set.
func New(fs filesystem.FS, digester checksum.Digester, opts Options) *Validator {
	if fs == nil {
		fs = filesystem.NewOS()
	}
	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}
	return &Validator{
		fs:       fs,
		digester: digester,
		workers:  workers,
		logger:   logging.GetLogger("validator"),
	}
}

// Validate checks every plan item. Destination collisions are fatal: an
// ambiguous plan must not execute, so they return an error rather than a
// per-item result. Per-item problems (required-missing, digest failures)
// are collected so one run reports the complete picture.
func (v *Validator) Validate(ctx context.Context, plan *planner.Plan) (*ValidatedPlan, error) {
	if !plan.AllGroups {
		// Audit plans deliberately share destination slots across group
		// variants; every other plan must be collision free.
		if err := detectCollisions(plan.Items); err != nil {
			return nil, err
		}
	}

	results := make([]Result, len(plan.Items))

	sem := make(chan struct{}, v.workers)
	var wg sync.WaitGroup
	for i := range plan.Items {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			results[i] = v.validateItem(ctx, plan.Items[i])
		}(i)
	}
	wg.Wait()

	v.logger.Info().
		Str("summary", Summary(results)).
		Msg("Plan validated")

	return &ValidatedPlan{Plan: plan, Results: results}, nil
}

func (v *Validator) validateItem(ctx context.Context, item planner.Item) Result {
	if err := ctx.Err(); err != nil {
		return Result{Item: item, Status: StatusError, Err: err, Reason: "validation canceled"}
	}

	// A multiple pattern that matched nothing at plan time carries the
	// pattern itself as origin; Stat fails and policy decides below.
	_, err := v.fs.Stat(item.Origin)
	if err != nil {
		if item.Policy.Required {
			missing := errors.Newf(errors.ErrMissingRequiredFile,
				"required origin %s for entry %q does not exist", item.Origin, item.EntryName).
				WithDetail("entry", item.EntryName)
			return Result{Item: item, Status: StatusMissingRequired, Err: missing, Reason: missing.Message}
		}
		return Result{Item: item, Status: StatusSkipped, Reason: "optional origin absent"}
	}

	if item.Policy.ChecksumContents && item.Kind != manifest.Directory {
		digest, err := checksum.File(v.fs, v.digester, item.Origin)
		if err != nil {
			return Result{Item: item, Status: StatusError, Err: err, Reason: err.Error()}
		}
		return Result{Item: item, Status: StatusOK, Digest: digest}
	}

	return Result{Item: item, Status: StatusOK}
}

// detectCollisions reports two plan items resolving to the same destination
// from different origins. Identical (origin, destination) pairs are merely
// redundant, not ambiguous, and pass. Zero-match placeholder items never
// write anything, so two absent patterns sharing a destination directory
// are not a collision.
func detectCollisions(items []planner.Item) error {
	byDest := make(map[string]planner.Item, len(items))
	for _, item := range items {
		if item.MatchedCount == 0 {
			continue
		}
		prev, seen := byDest[item.Destination]
		if !seen {
			byDest[item.Destination] = item
			continue
		}
		if prev.Origin != item.Origin {
			return errors.Newf(errors.ErrDestinationCollision,
				"entries %q and %q both resolve to destination %s (origins %s, %s)",
				prev.EntryName, item.EntryName, item.Destination, prev.Origin, item.Origin).
				WithDetail("destination", item.Destination)
		}
	}
	return nil
}

// Summary condenses validation results for logging.
func Summary(results []Result) string {
	var ok, skipped, missing, failed int
	for _, r := range results {
		switch r.Status {
		case StatusOK:
			ok++
		case StatusSkipped:
			skipped++
		case StatusMissingRequired:
			missing++
		case StatusError:
			failed++
		}
	}
	return fmt.Sprintf("%d ok, %d skipped, %d missing-required, %d errored",
		ok, skipped, missing, failed)
}
