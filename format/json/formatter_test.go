package json_test

import (
	stdjson "encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	fmtjson "github.com/scottpeterman/wirlwind/format/json"
	"github.com/scottpeterman/wirlwind/models"
)

// ─────────────────────────────────────────────────────────────────────────────
// Shared fixtures
// ─────────────────────────────────────────────────────────────────────────────

var fullEvent = models.UpdateEvent{
	Collection: "cpu",
	Envelope: models.Envelope{
		"five_sec_total": 13.0,
		"one_min":        11.0,
		"five_min":       10.0,
		"processes": []models.Row{
			{"pid": "112", "name": "ARP Input", "cpu_pct": 1.27},
		},
	},
	Sequence: 42,
	ParsedBy: "textfsm",
	Template: "cisco_ios_show_processes_cpu_sorted.textfsm",
}

var errorEvent = models.UpdateEvent{
	Collection: "cpu",
	Envelope:   models.ErrorEnvelope("cpu", "AllParsersFailed", "every attempt empty"),
	Sequence:   43,
	ParsedBy:   "none",
	Error:      "AllParsersFailed: every attempt empty",
}

// ─────────────────────────────────────────────────────────────────────────────
// Tests
// ─────────────────────────────────────────────────────────────────────────────

func TestFormatEventContract(t *testing.T) {
	f := fmtjson.New(fmtjson.Config{}, nil)
	data, err := f.Format(&fullEvent)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, stdjson.Unmarshal(data, &decoded))

	assert.Equal(t, "cpu", decoded["collection"])
	assert.Equal(t, float64(42), decoded["sequence"])
	assert.Equal(t, "textfsm", decoded["parsed_by"])
	assert.Equal(t, "cisco_ios_show_processes_cpu_sorted.textfsm", decoded["template"])
	_, hasError := decoded["error"]
	assert.False(t, hasError, "error key must be absent on success events")

	env := decoded["envelope"].(map[string]any)
	assert.Equal(t, 13.0, env["five_sec_total"])
}

func TestFormatErrorEvent(t *testing.T) {
	f := fmtjson.New(fmtjson.Config{}, nil)
	data, err := f.Format(&errorEvent)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, stdjson.Unmarshal(data, &decoded))

	assert.Equal(t, "AllParsersFailed: every attempt empty", decoded["error"])
	env := decoded["envelope"].(map[string]any)
	assert.Equal(t, "cpu", env["_collection"])
}

func TestFormatNilEvent(t *testing.T) {
	f := fmtjson.New(fmtjson.Config{}, nil)
	_, err := f.Format(nil)
	assert.Error(t, err)
}

func TestPrettyPrintIndents(t *testing.T) {
	compact := fmtjson.New(fmtjson.Config{}, nil)
	pretty := fmtjson.New(fmtjson.Config{PrettyPrint: true}, nil)

	c, err := compact.Format(&fullEvent)
	require.NoError(t, err)
	p, err := pretty.Format(&fullEvent)
	require.NoError(t, err)

	assert.False(t, strings.Contains(string(c), "\n"))
	assert.True(t, strings.Contains(string(p), "\n  "))
	assert.Greater(t, len(p), len(c))
}

func TestFormatSnapshot(t *testing.T) {
	f := fmtjson.New(fmtjson.Config{}, nil)
	data, err := f.FormatSnapshot(map[string]any{"device": map[string]string{"hostname": "r1"}})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"hostname":"r1"`)
}
