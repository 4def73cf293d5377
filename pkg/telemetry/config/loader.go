// Package config loads per-vendor collection definitions from the
// collections/ directory tree and produces the Registry consumed by the poll
// engine.
//
// Directory structure:
//
//	collections/
//	├── cpu/
//	│   ├── _schema.yaml
//	│   ├── cisco_ios.yaml
//	│   └── arista_eos.yaml
//	├── interfaces/
//	│   └── ...
//
// Lookup applies the vendor fallback rule: when <vendor>.yaml is absent, a
// single trailing _segment is stripped and the lookup retried once
// (cisco_ios_xe → cisco_ios). Errors from individual files are accumulated
// and returned together so operators see all problems at once.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/scottpeterman/wirlwind/models"
)

// Default poll intervals (seconds) applied when a collection YAML omits
// `interval`. Unlisted collections fall back to 60.
var defaultIntervals = map[string]int{
	"cpu":              30,
	"memory":           30,
	"log":              30,
	"interfaces":       60,
	"interface_detail": 60,
	"bgp_summary":      60,
	"environment":      120,
	"neighbors":        300,
}

const fallbackInterval = 60

// ─────────────────────────────────────────────────────────────────────────────
// Raw YAML forms
// ─────────────────────────────────────────────────────────────────────────────

type rawCollection struct {
	Command   string            `yaml:"command"`
	Interval  *int              `yaml:"interval"`
	Parsers   []rawParser       `yaml:"parsers"`
	Normalize map[string]string `yaml:"normalize"`
}

type rawParser struct {
	Type      string         `yaml:"type"`
	Templates []string       `yaml:"templates"`
	Pattern   string         `yaml:"pattern"`
	Flags     string         `yaml:"flags"`
	Groups    map[string]any `yaml:"groups"`
}

type rawSchema struct {
	Fields map[string]models.FieldSpec `yaml:"fields"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Registry
// ─────────────────────────────────────────────────────────────────────────────

// Registry holds every collection definition resolved for one vendor, in
// definition-file order. It is immutable after Load.
type Registry struct {
	vendor string
	defs   []*models.CollectionDefinition
	byName map[string]*models.CollectionDefinition
}

// Vendor returns the vendor the registry was loaded for.
func (r *Registry) Vendor() string { return r.vendor }

// Definitions returns all loaded definitions in directory (definition-file)
// order. Callers must not mutate the returned slice.
func (r *Registry) Definitions() []*models.CollectionDefinition { return r.defs }

// Get returns the definition for a collection name, or nil.
func (r *Registry) Get(name string) *models.CollectionDefinition { return r.byName[name] }

// Names lists collection names in definition order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.defs))
	for i, d := range r.defs {
		names[i] = d.Name
	}
	return names
}

// ─────────────────────────────────────────────────────────────────────────────
// Load
// ─────────────────────────────────────────────────────────────────────────────

// Load reads every collection under dir for the given vendor. Collections
// with no file for the vendor (after one fallback) are skipped with a debug
// log; malformed files are collected into a single error.
func Load(dir, vendor string, logger *slog.Logger) (*Registry, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read collections dir %q: %w", dir, err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), "_") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	reg := &Registry{
		vendor: vendor,
		byName: make(map[string]*models.CollectionDefinition),
	}
	var errs []string

	for _, name := range names {
		def, err := loadCollection(dir, name, vendor, logger)
		if err != nil {
			errs = append(errs, err.Error())
			continue
		}
		if def == nil {
			logger.Debug("no collection config for vendor", "collection", name, "vendor", vendor)
			continue
		}
		reg.defs = append(reg.defs, def)
		reg.byName[name] = def
		logger.Debug("loaded collection",
			"collection", name,
			"vendor", def.Vendor,
			"interval", def.Interval,
			"parsers", len(def.Parsers),
		)
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("config: %d error(s):\n  %s", len(errs), strings.Join(errs, "\n  "))
	}
	if len(reg.defs) == 0 {
		return nil, fmt.Errorf("config: no collections found for vendor %q under %q", vendor, dir)
	}

	logger.Info("collections loaded", "vendor", vendor, "count", len(reg.defs))
	return reg, nil
}

// loadCollection resolves one collection directory for the vendor, applying
// the single-strip fallback. Returns (nil, nil) when no file exists.
func loadCollection(dir, name, vendor string, logger *slog.Logger) (*models.CollectionDefinition, error) {
	path := filepath.Join(dir, name, vendor+".yaml")
	resolvedVendor := vendor

	if !fileExists(path) {
		if base := models.FallbackVendor(vendor); base != "" {
			fallback := filepath.Join(dir, name, base+".yaml")
			if fileExists(fallback) {
				path = fallback
				resolvedVendor = base
			}
		}
	}
	if !fileExists(path) {
		return nil, nil
	}

	var raw rawCollection
	if err := decodeFile(path, &raw); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	def, err := convert(name, resolvedVendor, path, raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	schema, err := loadSchema(filepath.Join(dir, name, "_schema.yaml"))
	if err != nil {
		return nil, err
	}
	def.Schema = schema

	if err := def.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return def, nil
}

// convert turns the raw YAML form into a resolved definition: parser group
// references stringified, the normalize map inverted (on disk it reads
// canonical: source; the runtime needs source → canonical).
func convert(name, vendor, path string, raw rawCollection) (*models.CollectionDefinition, error) {
	if raw.Command == "" {
		return nil, fmt.Errorf("collection %q: missing command", name)
	}

	interval := fallbackInterval
	if d, ok := defaultIntervals[name]; ok {
		interval = d
	}
	if raw.Interval != nil {
		if *raw.Interval < 0 {
			return nil, fmt.Errorf("collection %q: negative interval %d", name, *raw.Interval)
		}
		interval = *raw.Interval
	}

	parsers := make([]models.ParserSpec, 0, len(raw.Parsers))
	for _, p := range raw.Parsers {
		spec := models.ParserSpec{
			Type:      models.ParserKind(strings.ToLower(p.Type)),
			Templates: p.Templates,
			Pattern:   p.Pattern,
			Flags:     p.Flags,
		}
		if len(p.Groups) > 0 {
			spec.Groups = make(map[string]string, len(p.Groups))
			for field, ref := range p.Groups {
				spec.Groups[strings.ToLower(field)] = fmt.Sprintf("%v", ref)
			}
		}
		parsers = append(parsers, spec)
	}

	inverted, err := invertNormalize(raw.Normalize)
	if err != nil {
		return nil, fmt.Errorf("collection %q: %w", name, err)
	}

	return &models.CollectionDefinition{
		Name:       name,
		Vendor:     vendor,
		Command:    raw.Command,
		Interval:   interval,
		Parsers:    parsers,
		Normalize:  inverted,
		SourcePath: path,
	}, nil
}

// invertNormalize flips {canonical: source} into {source: canonical}.
// Two canonical names claiming the same source field is a config error.
func invertNormalize(m map[string]string) (map[string]string, error) {
	if len(m) == 0 {
		return nil, nil
	}
	inverted := make(map[string]string, len(m))
	for canonical, source := range m {
		source = strings.ToLower(source)
		canonical = strings.ToLower(canonical)
		if prev, dup := inverted[source]; dup {
			return nil, fmt.Errorf("normalize: source field %q mapped to both %q and %q", source, prev, canonical)
		}
		inverted[source] = canonical
	}
	return inverted, nil
}

// loadSchema reads an optional _schema.yaml. A missing file is not an error.
func loadSchema(path string) (*models.Schema, error) {
	if !fileExists(path) {
		return nil, nil
	}
	var raw rawSchema
	if err := decodeFile(path, &raw); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if len(raw.Fields) == 0 {
		return nil, nil
	}
	fields := make(map[string]models.FieldSpec, len(raw.Fields))
	for k, v := range raw.Fields {
		fields[strings.ToLower(k)] = v
	}
	return &models.Schema{Fields: fields}, nil
}

// SchemaPath returns the _schema.yaml location for a collection (used by
// preflight to warn on missing optional schemas).
func SchemaPath(dir, collection string) (string, bool) {
	p := filepath.Join(dir, collection, "_schema.yaml")
	return p, fileExists(p)
}

// ─────────────────────────────────────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────────────────────────────────────

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// decodeFile opens path and unmarshals the YAML content into out.
func decodeFile(path string, out any) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	dec := yaml.NewDecoder(f)
	dec.KnownFields(false) // be lenient — extra keys are fine
	return dec.Decode(out)
}

// noopWriter discards log output.
type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }
