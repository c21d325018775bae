// Package executor materializes a validated transfer plan: copying or
// linking each origin to its destination. Items are independent (the
// validator guarantees disjoint destinations), so execution runs with
// bounded parallelism; one item failing never aborts the rest. Re-running
// an executed plan against unchanged origins is a no-op.
package executor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/memlab-tools/stager/pkg/checksum"
	"github.com/memlab-tools/stager/pkg/errors"
	"github.com/memlab-tools/stager/pkg/filesystem"
	"github.com/memlab-tools/stager/pkg/logging"
	"github.com/memlab-tools/stager/pkg/planner"
	"github.com/memlab-tools/stager/pkg/validator"
)

// Mode selects how file entries are materialized.
type Mode int

const (
	// ModeCopy duplicates bytes into the destination tree.
	ModeCopy Mode = iota
	// ModeLink creates symlinks instead of duplicating storage.
	ModeLink
)

func (m Mode) String() string {
	if m == ModeLink {
		return "link"
	}
	return "copy"
}

// ParseMode converts the configuration keyword into a Mode.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "", "copy":
		return ModeCopy, nil
	case "link":
		return ModeLink, nil
	default:
		return ModeCopy, errors.Newf(errors.ErrInvalidInput, "unknown transfer mode %q", s)
	}
}

// Status classifies one executed plan item.
type Status int

const (
	// StatusMaterialized: destination created or replaced this run.
	StatusMaterialized Status = iota
	// StatusNoop: destination already up to date (idempotent re-run).
	StatusNoop
	// StatusSkipped: nothing to do (optional absent origin, dry run).
	StatusSkipped
	// StatusFailed: validation failure carried through, or retries exhausted.
	StatusFailed
	// StatusAborted: canceled or timed out; a partial destination may remain
	// and is flagged rather than silently accepted.
	StatusAborted
)

func (s Status) String() string {
	switch s {
	case StatusMaterialized:
		return "materialized"
	case StatusNoop:
		return "noop"
	case StatusSkipped:
		return "skipped"
	case StatusFailed:
		return "failed"
	case StatusAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// MarshalJSON renders the status as its report keyword.
func (s Status) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// Result is the transfer outcome for one plan item.
type Result struct {
	Item     planner.Item  `json:"item"`
	Status   Status        `json:"status"`
	Message  string        `json:"message,omitempty"`
	Attempts int           `json:"attempts,omitempty"`
	Duration time.Duration `json:"duration_ns,omitempty"`
	Err      error         `json:"-"`
}

// Options configure execution.
type Options struct {
	Mode    Mode
	Workers int
	// Retries bounds re-attempts per item for transient I/O failures.
	Retries int
	// ItemTimeout applies per item, never globally, so one stuck file does
	// not stall unrelated transfers. Zero disables the timeout.
	ItemTimeout time.Duration
	DryRun      bool
}

// Executor materializes validated plans.
type Executor struct {
	fs       filesystem.FS
	digester checksum.Digester
	opts     Options
	logger   zerolog.Logger
}

// New creates an executor writing through fs.
func New(fs filesystem.FS, digester checksum.Digester, opts Options) *Executor {
	if fs == nil {
		fs = filesystem.NewOS()
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	return &Executor{
		fs:       fs,
		digester: digester,
		opts:     opts,
		logger:   logging.GetLogger("executor"),
	}
}

// Execute materializes every executable item of a validated plan and
// returns per-item results in plan order. Audit plans are refused: their
// group variants share destination slots by construction.
func (e *Executor) Execute(ctx context.Context, vp *validator.ValidatedPlan) ([]Result, error) {
	if vp.Plan.AllGroups {
		return nil, errors.New(errors.ErrInvalidInput,
			"audit plans carry every group variant and cannot execute")
	}

	results := make([]Result, len(vp.Results))

	sem := make(chan struct{}, e.opts.Workers)
	var wg sync.WaitGroup
	for i := range vp.Results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			results[i] = e.executeItem(ctx, vp.Results[i])
		}(i)
	}
	wg.Wait()

	e.logger.Info().
		Str("summary", Summary(results)).
		Bool("dryRun", e.opts.DryRun).
		Msg("Plan executed")

	return results, nil
}

func (e *Executor) executeItem(ctx context.Context, vr validator.Result) Result {
	start := time.Now()
	item := vr.Item

	switch vr.Status {
	case validator.StatusSkipped:
		return Result{Item: item, Status: StatusSkipped, Message: vr.Reason}
	case validator.StatusMissingRequired, validator.StatusError:
		return Result{Item: item, Status: StatusFailed, Message: vr.Reason, Err: vr.Err}
	}

	if err := ctx.Err(); err != nil {
		return Result{Item: item, Status: StatusAborted, Message: "canceled before start", Err: err}
	}

	if e.opts.DryRun {
		return Result{Item: item, Status: StatusSkipped, Message: "dry run - no changes made"}
	}

	if reason, done := e.alreadyMaterialized(item, vr.Digest); done {
		e.logger.Debug().
			Str("entry", item.EntryName).
			Str("destination", item.Destination).
			Str("reason", reason).
			Msg("Destination already materialized")
		return Result{Item: item, Status: StatusNoop, Message: reason, Duration: time.Since(start)}
	}

	itemCtx := ctx
	cancel := context.CancelFunc(func() {})
	if e.opts.ItemTimeout > 0 {
		itemCtx, cancel = context.WithTimeout(ctx, e.opts.ItemTimeout)
	}
	defer cancel()

	var err error
	attempts := 0
	for attempts <= e.opts.Retries {
		attempts++
		err = e.transfer(itemCtx, item)
		if err == nil {
			// A copy that lands with the wrong digest is as failed as one
			// that never landed; retry it within the same budget.
			err = e.verifyDestination(item, vr.Digest)
		}
		if err == nil || itemCtx.Err() != nil {
			break
		}
		e.logger.Warn().
			Str("entry", item.EntryName).
			Int("attempt", attempts).
			Err(err).
			Msg("Transfer attempt failed")
		select {
		case <-itemCtx.Done():
		case <-time.After(time.Duration(attempts) * 50 * time.Millisecond):
		}
	}

	if itemCtx.Err() != nil {
		return Result{
			Item:   item,
			Status: StatusAborted,
			Message: fmt.Sprintf("transfer interrupted; partial destination may remain at %s",
				item.Destination),
			Attempts: attempts,
			Duration: time.Since(start),
			Err:      itemCtx.Err(),
		}
	}
	if err != nil {
		code := errors.ErrTransferFailed
		if errors.IsErrorCode(err, errors.ErrChecksumMismatch) {
			code = errors.ErrChecksumMismatch
		}
		wrapped := errors.Wrapf(err, code,
			"transfer of %q failed after %d attempts", item.EntryName, attempts)
		return Result{
			Item:     item,
			Status:   StatusFailed,
			Message:  wrapped.Message,
			Attempts: attempts,
			Duration: time.Since(start),
			Err:      wrapped,
		}
	}

	if vr.Digest != "" {
		if werr := checksum.WriteSidecar(e.fs, item.Destination, e.digester, vr.Digest); werr != nil {
			e.logger.Warn().
				Str("entry", item.EntryName).
				Err(werr).
				Msg("Could not record destination digest")
		}
	}

	e.logger.Info().
		Str("entry", item.EntryName).
		Str("origin", item.Origin).
		Str("destination", item.Destination).
		Dur("duration", time.Since(start)).
		Msg("Item materialized")

	return Result{
		Item:     item,
		Status:   StatusMaterialized,
		Attempts: attempts,
		Duration: time.Since(start),
	}
}

// Summary condenses transfer results for logging and reports.
func Summary(results []Result) string {
	var materialized, noop, skipped, failed, aborted int
	for _, r := range results {
		switch r.Status {
		case StatusMaterialized:
			materialized++
		case StatusNoop:
			noop++
		case StatusSkipped:
			skipped++
		case StatusFailed:
			failed++
		case StatusAborted:
			aborted++
		}
	}
	return fmt.Sprintf("%d materialized, %d noop, %d skipped, %d failed, %d aborted",
		materialized, noop, skipped, failed, aborted)
}
