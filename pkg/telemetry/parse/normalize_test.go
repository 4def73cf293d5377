package parse_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scottpeterman/wirlwind/models"
	"github.com/scottpeterman/wirlwind/pkg/telemetry/parse"
)

func TestNormalizeRenamesAndPassesThrough(t *testing.T) {
	rows := []models.Row{
		{"intf": "Gi0/0", "ipaddr": "10.0.0.1", "extra": "kept"},
		{"intf": "Gi0/1", "ipaddr": "unassigned"},
	}
	remap := map[string]string{"intf": "interface", "ipaddr": "ip_address"}

	out := parse.Normalize(rows, remap, nil)
	require.Len(t, out, 2)

	for _, row := range out {
		// Source fields never survive under their original names; canonical
		// names are present exactly when the source was.
		_, hasIntf := row["intf"]
		_, hasAddr := row["ipaddr"]
		assert.False(t, hasIntf)
		assert.False(t, hasAddr)
		assert.Contains(t, row, "interface")
		assert.Contains(t, row, "ip_address")
	}
	assert.Equal(t, "kept", out[0]["extra"])

	// Absent sources do not conjure canonical fields.
	out2 := parse.Normalize([]models.Row{{"other": "x"}}, remap, nil)
	_, has := out2[0]["interface"]
	assert.False(t, has)
}

func TestNormalizeNilMapIsIdentity(t *testing.T) {
	rows := []models.Row{{"a": "1"}}
	assert.Equal(t, rows, parse.Normalize(rows, nil, nil))
}

func TestCoerceTypes(t *testing.T) {
	schema := &models.Schema{Fields: map[string]models.FieldSpec{
		"count":   {Type: "int"},
		"pct":     {Type: "float"},
		"enabled": {Type: "bool"},
		"label":   {Type: "str"},
	}}
	rows := []models.Row{{
		"count":   "1,234",
		"pct":     "97.5",
		"enabled": "yes",
		"label":   "up",
		"loose":   "untouched",
	}}

	out := parse.Coerce(rows, schema, nil, nil)
	row := out[0]
	assert.Equal(t, int64(1234), row["count"])
	assert.Equal(t, 97.5, row["pct"])
	assert.Equal(t, true, row["enabled"])
	assert.Equal(t, "up", row["label"])
	assert.Equal(t, "untouched", row["loose"])
}

func TestCoerceFailureLeavesString(t *testing.T) {
	schema := &models.Schema{Fields: map[string]models.FieldSpec{
		"count": {Type: "int"},
	}}
	rows := []models.Row{
		{"count": "not-a-number"},
		{"count": "7"},
	}

	out := parse.Coerce(rows, schema, nil, nil)
	// Row-by-row: the bad row keeps its string, the good row coerces.
	assert.Equal(t, "not-a-number", out[0]["count"])
	assert.Equal(t, int64(7), out[1]["count"])
}

func TestCoerceIntAcceptsFloatSyntax(t *testing.T) {
	schema := &models.Schema{Fields: map[string]models.FieldSpec{
		"rate": {Type: "int"},
	}}
	out := parse.Coerce([]models.Row{{"rate": "13.7"}}, schema, nil, nil)
	assert.Equal(t, int64(13), out[0]["rate"])
}
