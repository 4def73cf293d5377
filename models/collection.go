// Package models defines the core data structures shared across all layers of
// Wirlwind Telemetry. These types represent the canonical in-memory form of
// everything the poll pipeline produces; every other package depends on this
// package and nothing here depends on any other internal package.
package models

import "fmt"

// ParserKind identifies one parser family in a collection's fallback chain.
type ParserKind string

const (
	ParserTextFSM ParserKind = "textfsm"
	ParserTTP     ParserKind = "ttp"
	ParserRegex   ParserKind = "regex"

	// ParserNone is reported in events when every parser in the chain failed.
	ParserNone ParserKind = "none"
)

// CollectionDefinition is the fully resolved configuration for one piece of
// telemetry on one vendor: the CLI command to issue, how often, the ordered
// parser fallback chain, the field rename map, and optional type coercion.
//
// This is the parsed form of collections/<name>/<vendor>.yaml plus the
// sibling _schema.yaml.
type CollectionDefinition struct {
	// Name is the collection identifier, e.g. "cpu", "interfaces".
	Name string

	// Vendor is the vendor the definition was loaded for (post-fallback),
	// e.g. "cisco_ios" when "cisco_ios_xe" fell back.
	Vendor string

	// Command is the literal CLI string issued to the device.
	Command string

	// Interval is the poll cadence in seconds. 0 means one-shot: run once at
	// session start, never re-polled.
	Interval int

	// Parsers is the ordered fallback chain. The first parser attempt that
	// yields at least one row wins.
	Parsers []ParserSpec

	// Normalize maps source field → canonical field. The on-disk form is
	// canonical: source for readability; the loader inverts it once.
	Normalize map[string]string

	// Schema, when non-nil, declares per-field type coercion rules applied
	// after normalization.
	Schema *Schema

	// SourcePath is the YAML file the definition was loaded from.
	SourcePath string
}

// OneShot reports whether the collection runs exactly once at session start.
func (d *CollectionDefinition) OneShot() bool { return d.Interval == 0 }

// ParserSpec is one entry in a collection's parser chain.
//
// For textfsm and ttp, Templates lists template filenames tried in order.
// For regex, Pattern/Flags/Groups describe an inline pattern where Groups
// maps canonical field names to capture-group names or 1-based indices.
type ParserSpec struct {
	Type      ParserKind        `yaml:"type"`
	Templates []string          `yaml:"templates,omitempty"`
	Pattern   string            `yaml:"pattern,omitempty"`
	Flags     string            `yaml:"flags,omitempty"` // "MULTILINE", "DOTALL", "IGNORECASE", comma/pipe separated
	Groups    map[string]string `yaml:"groups,omitempty"`
}

// Schema declares per-field coercion for a collection. Fields absent from the
// schema pass through as strings.
type Schema struct {
	Fields map[string]FieldSpec `yaml:"fields"`
}

// FieldSpec is the coercion rule for a single canonical field.
type FieldSpec struct {
	// Type is one of "int", "float", "bool", "str".
	Type string `yaml:"type"`

	// Description documents the field for operators; unused at runtime.
	Description string `yaml:"description,omitempty"`
}

// FallbackVendor strips a single trailing "_segment" from a vendor identifier
// (cisco_ios_xe → cisco_ios). It returns "" when no segment can be stripped.
// Lookup code applies this at most once.
func FallbackVendor(vendor string) string {
	for i := len(vendor) - 1; i > 0; i-- {
		if vendor[i] == '_' {
			return vendor[:i]
		}
	}
	return ""
}

// Validate rejects definitions that cannot be executed.
func (d *CollectionDefinition) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("collection has no name")
	}
	if d.Command == "" {
		return fmt.Errorf("collection %q: missing command", d.Name)
	}
	if d.Interval < 0 {
		return fmt.Errorf("collection %q: negative interval %d", d.Name, d.Interval)
	}
	if len(d.Parsers) == 0 {
		return fmt.Errorf("collection %q: no parsers defined", d.Name)
	}
	for i, p := range d.Parsers {
		switch p.Type {
		case ParserTextFSM, ParserTTP:
			if len(p.Templates) == 0 {
				return fmt.Errorf("collection %q: parser %d (%s) lists no templates", d.Name, i, p.Type)
			}
		case ParserRegex:
			if p.Pattern == "" {
				return fmt.Errorf("collection %q: parser %d (regex) has no pattern", d.Name, i)
			}
		default:
			return fmt.Errorf("collection %q: parser %d has unknown type %q", d.Name, i, p.Type)
		}
	}
	return nil
}
