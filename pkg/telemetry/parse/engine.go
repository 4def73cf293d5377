package parse

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/sirikothe/gotextfsm"

	"github.com/scottpeterman/wirlwind/models"
)

// ─────────────────────────────────────────────────────────────────────────────
// Engine — template-driven parser backend
// ─────────────────────────────────────────────────────────────────────────────

// Engine is a template-driven parser backend (TextFSM, TTP, ...). Parse
// returns the extracted rows with lowercase keys. Zero rows with a nil error
// means the template ran but matched nothing — the chain advances without
// recording an error. A non-nil error is a real parse failure (malformed
// template, engine exception).
type Engine interface {
	// Name is the engine identifier matching models.ParserKind.
	Name() string

	// Parse applies the template at templatePath to text.
	Parse(text, templatePath string) ([]models.Row, error)
}

// Engines beyond the built-in TextFSM register here. TTP is consumed through
// this seam: when no "ttp" engine is registered, chain specs of that type are
// skipped silently per the collection contract.
var (
	engineMu sync.RWMutex
	engines  = map[string]Engine{}
)

// RegisterEngine installs a parser backend. Registering the same name twice
// is a programming error.
func RegisterEngine(e Engine) {
	engineMu.Lock()
	defer engineMu.Unlock()
	if _, dup := engines[e.Name()]; dup {
		panic(fmt.Sprintf("parse: duplicate engine registration %q", e.Name()))
	}
	engines[e.Name()] = e
}

// LookupEngine returns the engine registered under name, or nil.
func LookupEngine(name string) Engine {
	engineMu.RLock()
	defer engineMu.RUnlock()
	return engines[name]
}

func init() {
	RegisterEngine(textFSMEngine{})
}

// ─────────────────────────────────────────────────────────────────────────────
// TextFSM
// ─────────────────────────────────────────────────────────────────────────────

// textFSMEngine adapts gotextfsm behind the Engine seam. Value Filldown and
// Value Required semantics come from the engine itself, per the TextFSM
// specification.
type textFSMEngine struct{}

func (textFSMEngine) Name() string { return string(models.ParserTextFSM) }

func (textFSMEngine) Parse(text, templatePath string) ([]models.Row, error) {
	content, err := os.ReadFile(templatePath)
	if err != nil {
		return nil, fmt.Errorf("read template: %w", err)
	}

	fsm := gotextfsm.TextFSM{}
	if err := fsm.ParseString(string(content)); err != nil {
		return nil, fmt.Errorf("template syntax error: %w", err)
	}

	out := gotextfsm.ParserOutput{}
	if err := out.ParseTextString(text, fsm, true); err != nil {
		return nil, fmt.Errorf("parse exception: %w", err)
	}

	rows := make([]models.Row, 0, len(out.Dict))
	for _, rec := range out.Dict {
		row := make(models.Row, len(rec))
		for k, v := range rec {
			row[strings.ToLower(k)] = stringify(v)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// stringify flattens gotextfsm values: List values arrive as []string and are
// joined with a space so downstream stages see flat scalars.
func stringify(v any) any {
	switch t := v.(type) {
	case string:
		return t
	case []string:
		return strings.Join(t, " ")
	default:
		return fmt.Sprintf("%v", t)
	}
}
