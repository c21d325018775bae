// Package template implements path templates: strings containing {name}
// placeholders that resolve against a parameter binding, or against other
// named templates registered alongside them. Templates are parsed once and
// resolved many times; resolution is pure, so identical inputs always
// compose identical paths.
package template

import (
	"strings"

	"github.com/memlab-tools/stager/pkg/errors"
)

// token is one parsed segment of a template: either a literal run of text
// or a single {name} placeholder.
type token struct {
	literal string
	name    string
}

// Template is an immutable, pre-parsed path template.
type Template struct {
	raw    string
	tokens []token
}

// Binding maps placeholder names to concrete values for one invocation
// (subject code, protocol, data roots, ...). Roots travel in the binding
// like every other parameter; there is no ambient state.
type Binding map[string]string

// Parse tokenizes a raw template into literal and placeholder segments.
// Placeholder names consist of letters, digits and underscores. An
// unterminated or empty placeholder is a syntax error.
func Parse(raw string) (*Template, error) {
	t := &Template{raw: raw}
	rest := raw
	for {
		open := strings.IndexByte(rest, '{')
		if open < 0 {
			if rest != "" {
				t.tokens = append(t.tokens, token{literal: rest})
			}
			return t, nil
		}
		if open > 0 {
			t.tokens = append(t.tokens, token{literal: rest[:open]})
		}
		closing := strings.IndexByte(rest[open:], '}')
		if closing < 0 {
			return nil, errors.Newf(errors.ErrTemplateSyntax,
				"unterminated placeholder in template %q", raw)
		}
		name := rest[open+1 : open+closing]
		if name == "" || !validName(name) {
			return nil, errors.Newf(errors.ErrTemplateSyntax,
				"invalid placeholder %q in template %q", name, raw)
		}
		t.tokens = append(t.tokens, token{name: name})
		rest = rest[open+closing+1:]
	}
}

// MustParse is Parse for templates known valid at compile time (tests,
// embedded defaults).
func MustParse(raw string) *Template {
	t, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return t
}

// Raw returns the original template string.
func (t *Template) Raw() string {
	return t.raw
}

// IsLiteral reports whether the template contains no placeholders.
func (t *Template) IsLiteral() bool {
	for _, tok := range t.tokens {
		if tok.name != "" {
			return false
		}
	}
	return true
}

// Placeholders returns the placeholder names in order of first appearance.
func (t *Template) Placeholders() []string {
	var names []string
	seen := make(map[string]bool)
	for _, tok := range t.tokens {
		if tok.name != "" && !seen[tok.name] {
			seen[tok.name] = true
			names = append(names, tok.name)
		}
	}
	return names
}

func validName(name string) bool {
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '_':
		default:
			return false
		}
	}
	return true
}
