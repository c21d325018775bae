package planner

import (
	"strings"

	"github.com/memlab-tools/stager/pkg/errors"
	"github.com/memlab-tools/stager/pkg/manifest"
)

// selectVariant picks which grouped candidate fills a role for this run.
// Candidates are probed in preference order and the first whose resolved
// origin exists on disk wins — existence gates before rank, so a lower
// ranked legacy format is still chosen when it is the only one present.
// Returns (nil, nil) when every candidate is optional and none exists.
func (w *walker) selectVariant(role []*manifest.Entry, parentBase string) (*manifest.Entry, error) {
	ordered := orderByPreference(role, w.opts.GroupPreference)

	var tried []string
	anyRequired := false

	for _, candidate := range ordered {
		if candidate.Policy.Required {
			anyRequired = true
		}
		origin, err := w.resolveOrigin(candidate, parentBase)
		if err != nil {
			return nil, err
		}
		tried = append(tried, candidate.Name+" ("+origin+")")

		if w.exists(origin, candidate.Policy.Multiple) {
			w.planner.logger.Debug().
				Str("entry", candidate.Name).
				Strs("groups", candidate.Policy.Groups).
				Str("origin", origin).
				Msg("Group variant selected")
			return candidate, nil
		}
	}

	if anyRequired {
		return nil, errors.Newf(errors.ErrMissingRequiredArtifact,
			"no variant found for required artifact; tried in order: %s",
			strings.Join(tried, ", "))
	}
	return nil, nil
}

// orderByPreference sorts candidates so that those tagged with an earlier
// preference come first; candidates whose tags are unranked keep their
// declaration order at the end of the search.
func orderByPreference(role []*manifest.Entry, preference []string) []*manifest.Entry {
	rank := func(e *manifest.Entry) int {
		best := len(preference)
		for _, tag := range e.Policy.Groups {
			for i, p := range preference {
				if tag == p && i < best {
					best = i
				}
			}
		}
		return best
	}

	ordered := make([]*manifest.Entry, len(role))
	copy(ordered, role)
	// Stable insertion sort: roles are tiny and declaration order must be
	// preserved among equally ranked candidates.
	for i := 1; i < len(ordered); i++ {
		for j := i; j > 0 && rank(ordered[j]) < rank(ordered[j-1]); j-- {
			ordered[j], ordered[j-1] = ordered[j-1], ordered[j]
		}
	}
	return ordered
}

// exists probes the origin filesystem for a group candidate. Candidates
// with multiple=true are patterns, present when at least one file matches.
func (w *walker) exists(origin string, pattern bool) bool {
	if pattern {
		matches, err := w.planner.fs.Glob(origin)
		return err == nil && len(matches) > 0
	}
	_, err := w.planner.fs.Stat(origin)
	return err == nil
}
