package state

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/scottpeterman/wirlwind/models"
)

// ─────────────────────────────────────────────────────────────────────────────
// Series configuration
// ─────────────────────────────────────────────────────────────────────────────

// SeriesSpec declares one numeric time series to extract from a collection's
// envelopes into a ring buffer.
//
// Flat series (ListKey == "") read Field from the envelope top level and are
// keyed "<collection>.<field>". Per-row series read Field from each row under
// ListKey, using KeyField as the row identity, and are keyed
// "<collection>.<listkey>[<id>].<field>". Per-row buffers are created lazily
// on first sighting and destroyed once the row has been absent for more than
// GraceCycles consecutive updates of the collection.
type SeriesSpec struct {
	Collection string
	Field      string
	ListKey    string
	KeyField   string
	Capacity   int // ring capacity; 0 = DefaultRingCapacity
}

// DefaultGraceCycles is how many collection updates a per-row series survives
// without being sighted before its buffer is destroyed.
const DefaultGraceCycles = 10

// DefaultSeries is the standard tracking set: CPU and memory headlines plus
// per-interface rates.
func DefaultSeries() []SeriesSpec {
	return []SeriesSpec{
		{Collection: "cpu", Field: "five_sec_total"},
		{Collection: "memory", Field: "used_pct"},
		{Collection: "interface_detail", ListKey: "interfaces", KeyField: "interface", Field: "input_rate_bps"},
		{Collection: "interface_detail", ListKey: "interfaces", KeyField: "interface", Field: "output_rate_bps"},
	}
}

// seriesKey builds the stable lookup key for a series instance.
func seriesKey(spec SeriesSpec, rowID string) string {
	if spec.ListKey == "" {
		return spec.Collection + "." + spec.Field
	}
	return fmt.Sprintf("%s.%s[%s].%s", spec.Collection, spec.ListKey, rowID, spec.Field)
}

// numericValue extracts a float64 from the mixed scalar types a coerced row
// can hold. Strings are parsed after stripping %, commas, and whitespace.
func numericValue(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case uint64:
		return float64(t), true
	case string:
		s := strings.TrimSpace(strings.NewReplacer("%", "", ",", "").Replace(t))
		f, err := strconv.ParseFloat(s, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// rowIdentity pulls the row's identity field as a string.
func rowIdentity(row models.Row, keyField string) string {
	v, ok := row[keyField]
	if !ok {
		return ""
	}
	return fmt.Sprintf("%v", v)
}
