// Package json serialises the telemetry event stream. It is the primary
// (and currently only) serialisation format for the published contract.
//
// Pipeline position:
//
//	state store fanout → format/json → front-end bridge / stdout tap
//
// The formatter converts a models.UpdateEvent (or a full state snapshot)
// into a JSON byte slice whose schema matches the published event contract.
// All json struct tags are already declared on the model types themselves,
// so serialisation is a single json.Marshal call with optional indentation.
package json

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/scottpeterman/wirlwind/models"
)

// ─────────────────────────────────────────────────────────────────────────────
// Formatter interface
// ─────────────────────────────────────────────────────────────────────────────

// Formatter serialises an update event into a byte slice. Alternative
// formatters (protobuf, msgpack …) can be added by implementing this
// interface without touching any other package.
type Formatter interface {
	Format(ev *models.UpdateEvent) ([]byte, error)
}

// ─────────────────────────────────────────────────────────────────────────────
// Configuration
// ─────────────────────────────────────────────────────────────────────────────

// Config controls EventFormatter behaviour.
type Config struct {
	// PrettyPrint emits indented, human-readable JSON when true.
	// Use false (default) for the wire to minimise byte count.
	PrettyPrint bool

	// Indent is the indent string used when PrettyPrint=true.
	// Defaults to two spaces when empty and PrettyPrint=true.
	Indent string
}

// ─────────────────────────────────────────────────────────────────────────────
// EventFormatter
// ─────────────────────────────────────────────────────────────────────────────

// EventFormatter implements Formatter using encoding/json. It is safe for
// concurrent use; all fields are immutable after construction.
type EventFormatter struct {
	cfg    Config
	logger *slog.Logger
}

// New constructs an EventFormatter. If logger is nil, a no-op logger is
// substituted.
func New(cfg Config, logger *slog.Logger) *EventFormatter {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	if cfg.PrettyPrint && cfg.Indent == "" {
		cfg.Indent = "  "
	}
	return &EventFormatter{cfg: cfg, logger: logger}
}

// Format serialises ev to JSON. It returns a non-nil error only when
// json.Marshal itself fails (an un-serialisable value entered an envelope
// upstream). The returned byte slice is always non-nil on success.
//
// The JSON schema matches the published event contract:
//
//	{
//	  "collection": "cpu",
//	  "envelope": { "five_sec_total": 13, … },
//	  "sequence": 42,
//	  "parsed_by": "textfsm",
//	  "template": "cisco_ios_show_processes_cpu_sorted.textfsm",
//	  "error": "…"            // only on error envelopes
//	}
func (f *EventFormatter) Format(ev *models.UpdateEvent) ([]byte, error) {
	if ev == nil {
		return nil, fmt.Errorf("format/json: event must not be nil")
	}
	data, err := f.marshal(ev)
	if err != nil {
		f.logger.Error("format/json: marshal failed",
			"collection", ev.Collection,
			"sequence", ev.Sequence,
			"error", err.Error(),
		)
		return nil, fmt.Errorf("format/json: marshal: %w", err)
	}

	f.logger.Debug("format/json: formatted event",
		"collection", ev.Collection,
		"sequence", ev.Sequence,
		"bytes", len(data),
	)
	return data, nil
}

// FormatSnapshot serialises an arbitrary snapshot value (the state store's
// full view) with the same indentation settings.
func (f *EventFormatter) FormatSnapshot(snapshot any) ([]byte, error) {
	data, err := f.marshal(snapshot)
	if err != nil {
		return nil, fmt.Errorf("format/json: marshal snapshot: %w", err)
	}
	return data, nil
}

func (f *EventFormatter) marshal(v any) ([]byte, error) {
	if f.cfg.PrettyPrint {
		return json.MarshalIndent(v, "", f.cfg.Indent)
	}
	return json.Marshal(v)
}

// ─────────────────────────────────────────────────────────────────────────────
// no-op logger writer
// ─────────────────────────────────────────────────────────────────────────────

type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }
