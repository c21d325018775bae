// Test Type: Unit Test
// Description: Tests for the template package - parsing, cycle detection and resolution

package template_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memlab-tools/stager/pkg/errors"
	"github.com/memlab-tools/stager/pkg/template"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name         string
		raw          string
		wantErr      bool
		placeholders []string
	}{
		{
			name:         "literal_only",
			raw:          "docs/jacksheet.txt",
			placeholders: nil,
		},
		{
			name:         "single_placeholder",
			raw:          "{data_root}/eeg",
			placeholders: []string{"data_root"},
		},
		{
			name:         "mixed",
			raw:          "{db_root}/protocols/{protocol}/subjects/{subject}",
			placeholders: []string{"db_root", "protocol", "subject"},
		},
		{
			name:         "repeated_placeholder_listed_once",
			raw:          "{code}/{code}",
			placeholders: []string{"code"},
		},
		{
			name:    "unterminated",
			raw:     "{data_root/eeg",
			wantErr: true,
		},
		{
			name:    "empty_name",
			raw:     "{}/eeg",
			wantErr: true,
		},
		{
			name:    "invalid_name",
			raw:     "{data root}/eeg",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tpl, err := template.Parse(tt.raw)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.IsErrorCode(err, errors.ErrTemplateSyntax))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.raw, tpl.Raw())
			assert.Equal(t, tt.placeholders, tpl.Placeholders())
			assert.Equal(t, len(tt.placeholders) == 0, tpl.IsLiteral())
		})
	}
}

func TestSessionResolve(t *testing.T) {
	reg := template.NewRegistry()
	require.NoError(t, reg.Add("subject_import", "{data_root}/eeg/{code}"))
	require.NoError(t, reg.Add("tal", "{subject_import}/tal"))
	require.NoError(t, reg.Add("docs", "{subject_import}/docs"))
	require.NoError(t, reg.Validate())

	binding := template.Binding{
		"data_root": "/data",
		"code":      "R1001P",
	}

	sess := reg.Session(binding)

	got, err := sess.ResolveRaw("{docs}/jacksheet.txt")
	require.NoError(t, err)
	assert.Equal(t, "/data/eeg/R1001P/docs/jacksheet.txt", got)

	got, err = sess.ResolveRaw("{tal}/VOX_coords_mother.txt")
	require.NoError(t, err)
	assert.Equal(t, "/data/eeg/R1001P/tal/VOX_coords_mother.txt", got)
}

func TestResolveIsDeterministic(t *testing.T) {
	reg := template.NewRegistry()
	require.NoError(t, reg.Add("base", "{root}/{code}"))

	binding := template.Binding{"root": "/data", "code": "R1001P"}

	// Same (template, binding) pair resolves identically across sessions.
	first, err := reg.Session(binding).ResolveRaw("{base}/tal")
	require.NoError(t, err)
	second, err := reg.Session(binding).ResolveRaw("{base}/tal")
	require.NoError(t, err)
	assert.Equal(t, first, second)

	// And twice within a session (memoized path).
	sess := reg.Session(binding)
	a, err := sess.ResolveRaw("{base}/tal")
	require.NoError(t, err)
	b, err := sess.ResolveRaw("{base}/tal")
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestResolveMissingParameter(t *testing.T) {
	reg := template.NewRegistry()
	sess := reg.Session(template.Binding{"data_root": "/data"})

	_, err := sess.ResolveRaw("{data_root}/{code}/docs")
	require.Error(t, err)
	assert.True(t, errors.IsErrorCode(err, errors.ErrTemplateParamMissing))
}

func TestBindingShadowsNothing(t *testing.T) {
	// The binding is consulted before named templates, so a parameter and a
	// fragment never collide silently: parameters win.
	reg := template.NewRegistry()
	require.NoError(t, reg.Add("protocol", "should-not-be-used"))
	sess := reg.Session(template.Binding{"protocol": "r1"})

	got, err := sess.ResolveRaw("{protocol}")
	require.NoError(t, err)
	assert.Equal(t, "r1", got)
}

func TestRegistryValidateRejectsCycles(t *testing.T) {
	tests := []struct {
		name  string
		adds  map[string]string
		cycle bool
	}{
		{
			name: "self_reference",
			adds: map[string]string{
				"a": "{a}/x",
			},
			cycle: true,
		},
		{
			name: "two_node_cycle",
			adds: map[string]string{
				"a": "{b}/x",
				"b": "{a}/y",
			},
			cycle: true,
		},
		{
			name: "diamond_is_fine",
			adds: map[string]string{
				"root": "/data",
				"a":    "{root}/a",
				"b":    "{root}/b",
				"c":    "{a}/{b}",
			},
			cycle: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := template.NewRegistry()
			for name, raw := range tt.adds {
				require.NoError(t, reg.Add(name, raw))
			}
			err := reg.Validate()
			if tt.cycle {
				require.Error(t, err)
				assert.True(t, errors.IsErrorCode(err, errors.ErrCyclicTemplate))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRegistryDuplicateName(t *testing.T) {
	reg := template.NewRegistry()
	require.NoError(t, reg.Add("tal", "{base}/tal"))
	err := reg.Add("tal", "{base}/other")
	require.Error(t, err)
	assert.True(t, errors.IsErrorCode(err, errors.ErrSchema))
}
