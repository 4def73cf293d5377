package parse

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/scottpeterman/wirlwind/models"
	"github.com/scottpeterman/wirlwind/pkg/telemetry/templates"
	"github.com/scottpeterman/wirlwind/pkg/telemetry/trace"
)

// ErrAllParsersFailed is the aggregate failure: every parser in the chain
// yielded no rows or errored.
var ErrAllParsersFailed = errors.New("all parsers failed")

// AllFailedError carries the per-attempt reasons behind an aggregate failure.
type AllFailedError struct {
	Attempts []string
}

func (e *AllFailedError) Error() string {
	if len(e.Attempts) == 0 {
		return "all parsers failed (no parsers defined)"
	}
	return "all parsers failed (" + strings.Join(e.Attempts, "; ") + ")"
}

func (e *AllFailedError) Unwrap() error { return ErrAllParsersFailed }

// Outcome is a successful chain run: the normalized, coerced rows plus
// metadata identifying which parser and template won.
type Outcome struct {
	Rows     []models.Row
	ParsedBy models.ParserKind
	Template string // template filename, "" for regex
}

// ─────────────────────────────────────────────────────────────────────────────
// Chain
// ─────────────────────────────────────────────────────────────────────────────

// Chain applies a collection's ordered parser list to sanitized CLI output.
// The first parser attempt that returns a non-empty row list wins; the winner
// then flows through normalize and schema coercion. A parser exception aborts
// only that parser, with its reason recorded in the trace.
type Chain struct {
	resolver *templates.Resolver
	logger   *slog.Logger
}

// NewChain creates a Chain resolving template filenames through resolver.
func NewChain(resolver *templates.Resolver, logger *slog.Logger) *Chain {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	return &Chain{resolver: resolver, logger: logger}
}

// Parse runs raw output through sanitize → parser chain → normalize → coerce
// for the given collection definition. prompt is the detected session prompt
// used by the sanitizer. Every attempt is recorded in tr.
func (c *Chain) Parse(raw string, def *models.CollectionDefinition, prompt string, tr *trace.Trace) (Outcome, error) {
	if strings.TrimSpace(raw) == "" {
		return Outcome{}, &AllFailedError{Attempts: []string{"empty output"}}
	}

	cleaned := Sanitize(raw, def.Command, prompt, tr)
	var attempts []string

	for _, spec := range def.Parsers {
		switch spec.Type {
		case models.ParserTextFSM, models.ParserTTP:
			rows, tname, reasons := c.tryTemplates(cleaned, spec, tr)
			if len(rows) > 0 {
				return c.finish(rows, spec.Type, tname, def, tr), nil
			}
			attempts = append(attempts, reasons...)

		case models.ParserRegex:
			rows, err := parseRegex(cleaned, spec)
			reason := ""
			if err != nil {
				reason = err.Error()
			} else if len(rows) == 0 {
				reason = "0 matches for pattern"
			}
			if tr != nil {
				tr.ParserTried(string(models.ParserRegex), "inline", "",
					len(rows) > 0, reason, len(rows), firstRowFields(rows))
			}
			if len(rows) > 0 {
				lowered := make([]models.Row, len(rows))
				for i, r := range rows {
					lowered[i] = r.LowercaseKeys()
				}
				return c.finish(lowered, models.ParserRegex, "", def, tr), nil
			}
			attempts = append(attempts, "regex: "+reason)

		default:
			attempts = append(attempts, fmt.Sprintf("unknown parser type: %s", spec.Type))
		}
	}

	return Outcome{}, &AllFailedError{Attempts: attempts}
}

// tryTemplates runs one template-engine spec: each listed template in
// declared order, first to yield rows wins. A missing engine (the optional
// TTP adapter) skips the whole spec without contributing to the failure
// aggregate.
func (c *Chain) tryTemplates(cleaned string, spec models.ParserSpec, tr *trace.Trace) ([]models.Row, string, []string) {
	kind := string(spec.Type)
	engine := LookupEngine(kind)
	if engine == nil {
		c.logger.Debug("parser engine not available, skipping", "engine", kind)
		return nil, "", nil
	}

	var reasons []string
	for _, tname := range spec.Templates {
		res, err := c.resolver.Resolve(kind, tname, tr)
		if err != nil {
			if tr != nil {
				tr.ParserTried(kind, tname, "", false, "template not found in search paths", 0, nil)
			}
			reasons = append(reasons, fmt.Sprintf("%s %s: not found", kind, tname))
			continue
		}

		rows, perr := engine.Parse(cleaned, res.Path)
		reason := ""
		if perr != nil {
			reason = perr.Error()
		} else if len(rows) == 0 {
			reason = "0 rows returned (template ran but matched no data)"
		}
		if tr != nil {
			tr.ParserTried(kind, tname, res.Path, len(rows) > 0, reason, len(rows), firstRowFields(rows))
		}
		if len(rows) > 0 {
			return rows, tname, nil
		}
		reasons = append(reasons, fmt.Sprintf("%s %s: %s", kind, tname, reason))
	}
	return nil, "", reasons
}

// finish applies normalize + schema coercion to the winning rows.
func (c *Chain) finish(rows []models.Row, kind models.ParserKind, tname string, def *models.CollectionDefinition, tr *trace.Trace) Outcome {
	rows = Normalize(rows, def.Normalize, tr)
	rows = Coerce(rows, def.Schema, c.logger, tr)
	return Outcome{Rows: rows, ParsedBy: kind, Template: tname}
}

func firstRowFields(rows []models.Row) []string {
	if len(rows) == 0 {
		return nil
	}
	return fieldNames(rows[0])
}

// noopWriter discards log output.
type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }
