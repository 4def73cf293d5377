package drivers

import "github.com/scottpeterman/wirlwind/models"

// ─────────────────────────────────────────────────────────────────────────────
// Output shaping
// ─────────────────────────────────────────────────────────────────────────────

// CollectionListKeys maps multi-row collection names to the key their rows
// are wrapped under in the envelope. Unknown collections wrap under "data".
var CollectionListKeys = map[string]string{
	"interfaces":       "interfaces",
	"interface_detail": "interfaces",
	"bgp_summary":      "peers",
	"neighbors":        "neighbors",
	"log":              "entries",
	"environment":      "sensors",
}

// singleRowCollections collapse to a flat envelope: the first row's fields
// hoisted to the top level.
var singleRowCollections = map[string]bool{
	"cpu":         true,
	"memory":      true,
	"device_info": true,
}

// ListKey returns the wrapper key for a collection and whether the
// collection is multi-row at all.
func ListKey(collection string) (string, bool) {
	if singleRowCollections[collection] {
		return "", false
	}
	if key, ok := CollectionListKeys[collection]; ok {
		return key, true
	}
	return "data", true
}

// DefaultShape converts parser rows into the canonical envelope.
//
// Single-row collections (cpu, memory, device_info) hoist the first row
// flat; for cpu, surplus rows become the process table. Other single-row
// collections discard surplus rows. Multi-row collections wrap rows under
// their list key; an empty row list yields an empty list, never a missing
// key. The envelope's top-level shape is stable across polls.
func DefaultShape(collection string, rows []models.Row) models.Envelope {
	if key, multi := ListKey(collection); multi {
		wrapped := make([]models.Row, len(rows))
		copy(wrapped, rows)
		return models.Envelope{key: wrapped}
	}

	if len(rows) == 0 {
		return models.Envelope{}
	}

	env := make(models.Envelope, len(rows[0]))
	for k, v := range rows[0] {
		env[k] = v
	}
	if collection == "cpu" && len(rows) > 1 {
		env["processes"] = rows[1:]
	}
	return env
}
