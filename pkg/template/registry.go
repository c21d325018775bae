package template

import (
	"strings"

	"github.com/memlab-tools/stager/pkg/errors"
)

// Registry holds the manifest's named path fragments. Templates may
// reference each other by name, forming a DAG; Validate rejects cycles at
// load time so resolution can never recurse forever.
type Registry struct {
	named map[string]*Template
	order []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{named: make(map[string]*Template)}
}

// Add parses raw and registers it under name. Re-registering a name is a
// schema error: named fragments are static configuration, not variables.
func (r *Registry) Add(name, raw string) error {
	if _, exists := r.named[name]; exists {
		return errors.Newf(errors.ErrSchema, "duplicate template name %q", name)
	}
	t, err := Parse(raw)
	if err != nil {
		return err
	}
	r.named[name] = t
	r.order = append(r.order, name)
	return nil
}

// Lookup returns the named template, if registered.
func (r *Registry) Lookup(name string) (*Template, bool) {
	t, ok := r.named[name]
	return t, ok
}

// Names returns the registered names in declaration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Validate checks the reference graph for cycles. Only placeholders that
// name another registered template count as reference edges; everything
// else is expected from the parameter binding at resolve time.
func (r *Registry) Validate() error {
	const (
		white = iota // unvisited
		grey         // on the current DFS path
		black        // fully explored
	)
	color := make(map[string]int, len(r.named))

	var visit func(name string, path []string) error
	visit = func(name string, path []string) error {
		switch color[name] {
		case grey:
			cycle := append(path, name)
			return errors.Newf(errors.ErrCyclicTemplate,
				"cyclic template reference: %s", strings.Join(cycle, " -> "))
		case black:
			return nil
		}
		color[name] = grey
		for _, ref := range r.named[name].Placeholders() {
			if _, ok := r.named[ref]; ok {
				if err := visit(ref, append(path, name)); err != nil {
					return err
				}
			}
		}
		color[name] = black
		return nil
	}

	for _, name := range r.order {
		if err := visit(name, nil); err != nil {
			return err
		}
	}
	return nil
}

// Session pairs the registry with one parameter binding and memoizes
// resolved named templates, so shared prefixes (the subject directory used
// by most entries) are computed once per invocation.
type Session struct {
	reg     *Registry
	binding Binding
	cache   map[string]string
}

// Session creates a resolution session for the given binding.
func (r *Registry) Session(binding Binding) *Session {
	return &Session{
		reg:     r,
		binding: binding,
		cache:   make(map[string]string),
	}
}

// Resolve substitutes every placeholder in t: bound values take precedence,
// then named templates (resolved recursively with the same binding). A name
// found in neither is a fatal resolution error for the affected branch.
func (s *Session) Resolve(t *Template) (string, error) {
	var b strings.Builder
	for _, tok := range t.tokens {
		if tok.name == "" {
			b.WriteString(tok.literal)
			continue
		}
		val, err := s.lookup(tok.name, t.raw)
		if err != nil {
			return "", err
		}
		b.WriteString(val)
	}
	return b.String(), nil
}

// ResolveRaw parses and resolves a raw template string in one step.
func (s *Session) ResolveRaw(raw string) (string, error) {
	t, err := Parse(raw)
	if err != nil {
		return "", err
	}
	return s.Resolve(t)
}

func (s *Session) lookup(name, from string) (string, error) {
	if val, ok := s.binding[name]; ok {
		return val, nil
	}
	if val, ok := s.cache[name]; ok {
		return val, nil
	}
	ref, ok := s.reg.named[name]
	if !ok {
		return "", errors.Newf(errors.ErrTemplateParamMissing,
			"no binding or named template for %q (referenced from %q)", name, from).
			WithDetail("placeholder", name)
	}
	val, err := s.Resolve(ref)
	if err != nil {
		return "", err
	}
	s.cache[name] = val
	return val, nil
}
