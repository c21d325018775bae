// Package planner walks the manifest with a parameter binding and produces
// the transfer plan: a flat, declaration-ordered sequence of resolved
// (origin, destination, policy) items. Planning composes paths as pure
// strings; the origin filesystem is only consulted for multiplicity
// expansion and group existence probes, and the destination tree is never
// touched.
package planner

import (
	"path"
	"time"

	"github.com/rs/zerolog"

	"github.com/memlab-tools/stager/pkg/errors"
	"github.com/memlab-tools/stager/pkg/filesystem"
	"github.com/memlab-tools/stager/pkg/logging"
	"github.com/memlab-tools/stager/pkg/manifest"
	"github.com/memlab-tools/stager/pkg/template"
)

// Item is one fully resolved, not-yet-executed transfer.
type Item struct {
	EntryName    string             `json:"entry_name"`
	Kind         manifest.EntryType `json:"type"`
	Origin       string             `json:"origin"`
	Destination  string             `json:"destination"`
	Policy       manifest.Policy    `json:"policy"`
	MatchedCount int                `json:"matched_count"`
}

// Failure records a branch that could not be resolved. Branch failures are
// aggregated rather than aborting the plan, so one run reports everything.
type Failure struct {
	EntryName string `json:"entry_name"`
	Reason    string `json:"reason"`
}

// Plan is the planner's output: audit-ready before any I/O happens.
type Plan struct {
	Items    []Item    `json:"items"`
	Failures []Failure `json:"failures,omitempty"`

	// AllGroups marks audit plans that carry every group variant. Such
	// plans must never execute: variants share the destination slot.
	AllGroups bool `json:"all_groups,omitempty"`
}

// Options select group variants and the planning mode.
type Options struct {
	// GroupPreference orders the search among grouped variants; candidates
	// whose tag appears earlier are probed first. Existence still gates
	// before rank.
	GroupPreference []string

	// AllGroups plans every variant of every role (audit mode).
	AllGroups bool
}

// Planner resolves manifests against bindings.
type Planner struct {
	fs     filesystem.FS
	logger zerolog.Logger
}

// New creates a planner reading origin state through fs.
func New(fs filesystem.FS) *Planner {
	if fs == nil {
		fs = filesystem.NewOS()
	}
	return &Planner{
		fs:     fs,
		logger: logging.GetLogger("planner"),
	}
}

// Plan resolves every manifest entry. The returned error is reserved for
// problems that invalidate the whole plan (an unresolvable destination
// root); per-branch resolution failures are collected on the plan itself.
func (p *Planner) Plan(m *manifest.Manifest, binding template.Binding, opts Options) (*Plan, error) {
	defer logging.LogDuration(time.Now(), "plan resolution")

	sess := m.Templates.Session(binding)

	destRoot, err := sess.ResolveRaw(m.DestinationRoot)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrTemplateParamMissing,
			"cannot resolve destination root")
	}

	w := &walker{
		planner:  p,
		sess:     sess,
		destRoot: destRoot,
		opts:     opts,
		plan:     &Plan{AllGroups: opts.AllGroups},
	}
	w.walk(m.Entries, "")

	p.logger.Debug().
		Int("items", len(w.plan.Items)).
		Int("failures", len(w.plan.Failures)).
		Str("destinationRoot", destRoot).
		Msg("Plan resolved")

	return w.plan, nil
}

type walker struct {
	planner  *Planner
	sess     *template.Session
	destRoot string
	opts     Options
	plan     *Plan
}

// walk visits siblings in declaration order. Grouped siblings sharing a
// destination slot form one role and are resolved together at the position
// of their first member.
func (w *walker) walk(entries []*manifest.Entry, parentBase string) {
	handled := make(map[string]bool)

	for _, entry := range entries {
		if !entry.Policy.Grouped() {
			w.visit(entry, parentBase)
			continue
		}
		if handled[entry.Destination] {
			continue
		}
		handled[entry.Destination] = true

		role := collectRole(entries, entry.Destination)
		if w.opts.AllGroups {
			for _, candidate := range role {
				w.visit(candidate, parentBase)
			}
			continue
		}

		chosen, err := w.selectVariant(role, parentBase)
		if err != nil {
			w.fail(entry.Name, err)
			continue
		}
		if chosen != nil {
			w.visit(chosen, parentBase)
		}
	}
}

// collectRole gathers the grouped siblings sharing a destination template,
// keeping declaration order.
func collectRole(entries []*manifest.Entry, destination string) []*manifest.Entry {
	var role []*manifest.Entry
	for _, e := range entries {
		if e.Policy.Grouped() && e.Destination == destination {
			role = append(role, e)
		}
	}
	return role
}

// visit resolves one entry into plan items, recursing into directories.
func (w *walker) visit(entry *manifest.Entry, parentBase string) {
	origin, err := w.resolveOrigin(entry, parentBase)
	if err != nil {
		w.fail(entry.Name, err)
		return
	}

	if entry.Type == manifest.Directory && len(entry.Children) > 0 {
		// The directory itself is only a base for its children.
		w.walk(entry.Children, origin)
		return
	}

	dest, err := w.sess.ResolveRaw(entry.Destination)
	if err != nil {
		w.fail(entry.Name, err)
		return
	}

	if entry.Policy.Multiple {
		w.expand(entry, origin, dest)
		return
	}

	w.plan.Items = append(w.plan.Items, Item{
		EntryName:    entry.Name,
		Kind:         entry.Type,
		Origin:       origin,
		Destination:  path.Join(w.destRoot, dest),
		Policy:       entry.Policy,
		MatchedCount: 1,
	})
}

// expand treats the resolved origin as a glob pattern and emits one item
// per match, all sharing the destination directory. A pattern with no
// matches still emits a single zero-count item so the validator can apply
// required/optional policy to it.
func (w *walker) expand(entry *manifest.Entry, pattern, destDir string) {
	matches, err := w.planner.fs.Glob(pattern)
	if err != nil {
		w.fail(entry.Name, errors.Wrapf(err, errors.ErrInvalidInput,
			"bad origin pattern %q", pattern))
		return
	}

	if len(matches) == 0 {
		w.plan.Items = append(w.plan.Items, Item{
			EntryName:    entry.Name,
			Kind:         entry.Type,
			Origin:       pattern,
			Destination:  path.Join(w.destRoot, destDir),
			Policy:       entry.Policy,
			MatchedCount: 0,
		})
		return
	}

	for _, match := range matches {
		w.plan.Items = append(w.plan.Items, Item{
			EntryName:    entry.Name,
			Kind:         entry.Type,
			Origin:       match,
			Destination:  path.Join(w.destRoot, destDir, path.Base(match)),
			Policy:       entry.Policy,
			MatchedCount: len(matches),
		})
	}
}

// resolveOrigin composes the absolute origin path for an entry: its own
// origin_directory when declared, otherwise the parent's resolved base,
// joined with the resolved origin_file when present.
func (w *walker) resolveOrigin(entry *manifest.Entry, parentBase string) (string, error) {
	base := parentBase
	if entry.OriginDirectory != "" {
		resolved, err := w.sess.ResolveRaw(entry.OriginDirectory)
		if err != nil {
			return "", err
		}
		base = resolved
	}

	if entry.OriginFile == "" {
		return base, nil
	}

	file, err := w.sess.ResolveRaw(entry.OriginFile)
	if err != nil {
		return "", err
	}
	return path.Join(base, file), nil
}

func (w *walker) fail(entryName string, err error) {
	w.planner.logger.Warn().
		Str("entry", entryName).
		Err(err).
		Msg("Branch failed to resolve")
	w.plan.Failures = append(w.plan.Failures, Failure{
		EntryName: entryName,
		Reason:    err.Error(),
	})
}
