package engine

import (
	"fmt"
	"io"

	"github.com/scottpeterman/wirlwind/models"
	"github.com/scottpeterman/wirlwind/pkg/telemetry/config"
	"github.com/scottpeterman/wirlwind/pkg/telemetry/templates"
)

// Preflight resolves every template of every collection for the vendor and
// writes the resolution paths per collection, without connecting to the
// device. It returns an error when any template fails to resolve. A missing
// optional _schema.yaml is only warned about.
func Preflight(reg *config.Registry, resolver *templates.Resolver, collectionsDir string, w io.Writer) error {
	failures := 0

	for _, def := range reg.Definitions() {
		fmt.Fprintf(w, "%s (%s, interval=%ds)\n", def.Name, def.Vendor, def.Interval)
		fmt.Fprintf(w, "  command: %s\n", def.Command)

		for _, spec := range def.Parsers {
			switch spec.Type {
			case models.ParserTextFSM, models.ParserTTP:
				for _, tname := range spec.Templates {
					res, err := resolver.Resolve(string(spec.Type), tname, nil)
					if err != nil {
						failures++
						fmt.Fprintf(w, "  %-8s %s: NOT FOUND (%v)\n", spec.Type, tname, err)
						continue
					}
					fmt.Fprintf(w, "  %-8s %s: %s (%s)\n", spec.Type, tname, res.Path, res.Tier)
				}
			case models.ParserRegex:
				fmt.Fprintf(w, "  %-8s inline pattern\n", spec.Type)
			}
		}

		if path, ok := config.SchemaPath(collectionsDir, def.Name); !ok {
			fmt.Fprintf(w, "  warning: no schema at %s\n", path)
		}
		fmt.Fprintln(w)
	}

	if failures > 0 {
		return fmt.Errorf("preflight: %d template(s) failed to resolve", failures)
	}
	return nil
}
