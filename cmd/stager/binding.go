package main

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/memlab-tools/stager/pkg/errors"
	"github.com/memlab-tools/stager/pkg/template"
)

// bindingFlags collects the per-invocation parameters every resolution
// needs. Data roots travel here too: resolution never reads globals.
type bindingFlags struct {
	code         string
	subject      string
	protocol     string
	localization string
	montage      string
	dataRoot     string
	dbRoot       string
	extra        []string
}

func (b *bindingFlags) register(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringVar(&b.code, "code", "", "subject code as used in the source trees (e.g. R1001P)")
	flags.StringVar(&b.subject, "subject", "", "canonical subject identifier")
	flags.StringVar(&b.protocol, "protocol", "", "protocol name (e.g. r1)")
	flags.StringVar(&b.localization, "localization", "0", "localization number")
	flags.StringVar(&b.montage, "montage", "0", "montage number")
	flags.StringVar(&b.dataRoot, "data-root", "", "root of the source data trees")
	flags.StringVar(&b.dbRoot, "db-root", "", "root of the destination database")
	flags.StringArrayVar(&b.extra, "param", nil,
		"additional template parameter as key=value (repeatable)")
}

// binding assembles the template parameter binding. Only explicitly set
// values are bound; the planner reports per-branch which parameters a
// reached template actually needed.
func (b *bindingFlags) binding() (template.Binding, error) {
	bound := template.Binding{}
	set := func(key, value string) {
		if value != "" {
			bound[key] = value
		}
	}
	set("code", b.code)
	set("subject", b.subject)
	set("protocol", b.protocol)
	set("localization", b.localization)
	set("montage_num", b.montage)
	set("data_root", b.dataRoot)
	set("db_root", b.dbRoot)

	for _, kv := range b.extra {
		key, value, found := strings.Cut(kv, "=")
		if !found || key == "" {
			return nil, errors.Newf(errors.ErrInvalidInput,
				"--param expects key=value, got %q", kv)
		}
		bound[key] = value
	}
	return bound, nil
}
