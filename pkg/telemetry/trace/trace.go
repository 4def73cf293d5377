// Package trace records structured provenance for every parse attempt.
//
// Each poll of a collection builds one Trace: what command was sent, what
// sanitization removed, which templates resolved where, which parsers were
// tried in what order and why each failed or succeeded, and what was finally
// delivered to the state store. Traces are emitted as structured slog records
// and retained in a per-collection ring buffer for diagnostic queries.
package trace

import (
	"log/slog"
	"time"
)

// Tier identifies which search tier satisfied a template lookup.
type Tier string

const (
	TierLocal  Tier = "local"
	TierSystem Tier = "system"
	TierNone   Tier = "none"
)

// Step is one recorded stage in the trace. Kind is one of "raw", "sanitize",
// "resolve", "parse", "normalize", "coerce", "post_process". Only the fields
// relevant to the kind are populated.
type Step struct {
	Kind string `json:"step"`

	// raw
	Length  int    `json:"length,omitempty"`
	Command string `json:"command,omitempty"`

	// sanitize
	CleanedLen    int `json:"cleaned_len,omitempty"`
	LinesStripped int `json:"lines_stripped,omitempty"`

	// resolve
	Template     string   `json:"template,omitempty"`
	ResolvedPath string   `json:"resolved,omitempty"`
	ResolvedTier Tier     `json:"tier,omitempty"`
	Found        bool     `json:"found,omitempty"`
	SearchPaths  []string `json:"search_paths,omitempty"`

	// parse
	Parser  string   `json:"parser,omitempty"`
	Success bool     `json:"success,omitempty"`
	Reason  string   `json:"reason,omitempty"`
	Rows    int      `json:"rows,omitempty"`
	Fields  []string `json:"fields,omitempty"`

	// normalize / coerce / post_process
	Before    []string          `json:"before,omitempty"`
	After     []string          `json:"after,omitempty"`
	Changes   map[string]string `json:"changes,omitempty"`
	Transform string            `json:"transform,omitempty"`
}

// Result summarizes the trace outcome: which parser won (or "none"), row and
// field counts, total duration, and the error when nothing parsed.
type Result struct {
	ParsedBy   string   `json:"parsed_by"`
	Template   string   `json:"template,omitempty"`
	Fields     []string `json:"fields,omitempty"`
	Rows       int      `json:"rows"`
	DurationMs float64  `json:"duration_ms"`
	Error      string   `json:"error,omitempty"`
}

// Trace accumulates parse provenance for one collection poll cycle. Build it
// incrementally as data flows through the chain, then Emit to write a single
// structured log record. A Trace is used by one goroutine; the Store it ends
// up in is the concurrency boundary.
type Trace struct {
	Collection string    `json:"collection"`
	Vendor     string    `json:"vendor"`
	Command    string    `json:"command"`
	RawLen     int       `json:"raw_len"`
	RawPreview string    `json:"raw_preview,omitempty"`
	Steps      []Step    `json:"steps"`
	Outcome    *Result   `json:"result"`
	StartedAt  time.Time `json:"started_at"`
}

// New starts a trace for one poll of collection on vendor.
func New(collection, vendor string, now time.Time) *Trace {
	return &Trace{
		Collection: collection,
		Vendor:     vendor,
		StartedAt:  now,
	}
}

// RawReceived records receipt of raw CLI output.
func (t *Trace) RawReceived(raw, command string) {
	t.Command = command
	t.RawLen = len(raw)
	t.RawPreview = preview(raw, 200)
	t.Steps = append(t.Steps, Step{Kind: "raw", Length: len(raw), Command: command})
}

// Sanitized records what sanitization removed.
func (t *Trace) Sanitized(cleaned string, linesStripped int) {
	t.Steps = append(t.Steps, Step{
		Kind:          "sanitize",
		Length:        t.RawLen,
		CleanedLen:    len(cleaned),
		LinesStripped: linesStripped,
	})
}

// TemplateResolved records one template resolution attempt and which tier
// satisfied it. A nil-path resolution (tier none) means not found.
func (t *Trace) TemplateResolved(name, path string, tier Tier, searchPaths []string) {
	t.Steps = append(t.Steps, Step{
		Kind:         "resolve",
		Template:     name,
		ResolvedPath: path,
		ResolvedTier: tier,
		Found:        path != "",
		SearchPaths:  searchPaths,
	})
}

// ParserTried records one parser attempt in the chain.
func (t *Trace) ParserTried(parser, template, resolvedPath string, success bool, reason string, rows int, fields []string) {
	t.Steps = append(t.Steps, Step{
		Kind:         "parse",
		Parser:       parser,
		Template:     template,
		ResolvedPath: resolvedPath,
		Success:      success,
		Reason:       reason,
		Rows:         rows,
		Fields:       fields,
	})
}

// Normalized records the field rename pass.
func (t *Trace) Normalized(before, after []string, remap map[string]string) {
	t.Steps = append(t.Steps, Step{Kind: "normalize", Before: before, After: after, Changes: remap})
}

// Coerced records schema type coercion. changes: {field: "string→int", ...}.
func (t *Trace) Coerced(changes map[string]string) {
	if len(changes) == 0 {
		return
	}
	t.Steps = append(t.Steps, Step{Kind: "coerce", Changes: changes})
}

// PostProcessed records a driver transform.
func (t *Trace) PostProcessed(transform string, reason string) {
	t.Steps = append(t.Steps, Step{Kind: "post_process", Transform: transform, Reason: reason})
}

// Delivered records the final outcome and stamps the duration.
func (t *Trace) Delivered(parsedBy, template string, fields []string, rows int, errText string, now time.Time) {
	t.Outcome = &Result{
		ParsedBy:   parsedBy,
		Template:   template,
		Fields:     fields,
		Rows:       rows,
		DurationMs: round1(now.Sub(t.StartedAt).Seconds() * 1000),
		Error:      errText,
	}
}

// Success reports whether any recorded parser attempt succeeded.
func (t *Trace) Success() bool {
	for _, s := range t.Steps {
		if s.Kind == "parse" && s.Success {
			return true
		}
	}
	return false
}

// ParsersTried counts recorded parser attempts.
func (t *Trace) ParsersTried() int {
	n := 0
	for _, s := range t.Steps {
		if s.Kind == "parse" {
			n++
		}
	}
	return n
}

// Emit writes the trace to the logger: a one-line summary at info (warn on
// failure), and a detail record at debug carrying vendor, command, raw
// length and preview, and the step count. The steps themselves are not
// logged; they stay on the Trace in the Store.
func (t *Trace) Emit(logger *slog.Logger) {
	if logger == nil {
		return
	}
	res := t.Outcome
	if res == nil {
		res = &Result{ParsedBy: "none", Error: "trace incomplete"}
	}

	attrs := []any{
		"collection", t.Collection,
		"parsed_by", res.ParsedBy,
		"rows", res.Rows,
		"fields", len(res.Fields),
		"duration_ms", res.DurationMs,
	}
	if res.Template != "" {
		attrs = append(attrs, "template", res.Template)
	}
	if res.Error != "" {
		attrs = append(attrs, "error", res.Error)
		logger.Warn("trace", attrs...)
	} else {
		logger.Info("trace", attrs...)
	}

	logger.Debug("trace detail",
		"collection", t.Collection,
		"vendor", t.Vendor,
		"command", t.Command,
		"raw_len", t.RawLen,
		"raw_preview", t.RawPreview,
		"steps", len(t.Steps),
	)
}

// preview returns the first n bytes of s with newlines flattened, for
// single-line log readability.
func preview(s string, n int) string {
	if len(s) > n {
		s = s[:n]
	}
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			out = append(out, '\\', 'n')
			continue
		}
		out = append(out, s[i])
	}
	return string(out)
}

func round1(f float64) float64 {
	return float64(int(f*10+0.5)) / 10
}
