package models

import "strings"

// Row is one record extracted by a parser: field name → value. Keys are
// always lowercase. Values are strings as parsed; schema coercion may replace
// them with int64, float64, or bool.
type Row map[string]any

// LowercaseKeys returns a copy of the row with every key lowercased.
// Parsers call this before handing rows downstream.
func (r Row) LowercaseKeys() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[strings.ToLower(k)] = v
	}
	return out
}

// Clone returns a shallow copy of the row.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Envelope is the canonical published value for one collection: either the
// first row's fields hoisted flat (single-row collections), or rows wrapped
// under a collection-specific list key. Envelopes are JSON-serializable and
// treated as immutable once published.
type Envelope map[string]any

// ErrorEnvelope builds the sentinel envelope published when a collection's
// cycle fails. Consumers route on _collection and render an error state
// instead of a stalled spinner.
func ErrorEnvelope(collection, kind, detail string) Envelope {
	return Envelope{
		"error":       kind + ": " + detail,
		"_collection": collection,
	}
}

// IsError reports whether the envelope is an error sentinel.
func (e Envelope) IsError() bool {
	_, ok := e["error"]
	return ok
}

// Rows extracts the row list stored under key, tolerating both []Row and
// []any shapes. Drivers use this to reach wrapped rows without caring how the
// shaper stored them.
func (e Envelope) Rows(key string) []Row {
	switch v := e[key].(type) {
	case []Row:
		return v
	case []any:
		rows := make([]Row, 0, len(v))
		for _, item := range v {
			if r, ok := item.(Row); ok {
				rows = append(rows, r)
			} else if m, ok := item.(map[string]any); ok {
				rows = append(rows, Row(m))
			}
		}
		return rows
	default:
		return nil
	}
}
