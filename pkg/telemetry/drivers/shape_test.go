package drivers_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scottpeterman/wirlwind/models"
	"github.com/scottpeterman/wirlwind/pkg/telemetry/drivers"
)

func TestShapeSingleRowHoistsFirstRow(t *testing.T) {
	rows := []models.Row{{"used_pct": 42.0, "total": "8192"}}
	env := drivers.DefaultShape("memory", rows)

	assert.Equal(t, 42.0, env["used_pct"])
	assert.Equal(t, "8192", env["total"])
}

func TestShapeCPUHoistWithProcesses(t *testing.T) {
	rows := []models.Row{
		{"five_sec_total": "13"},
		{"pid": "112", "process_name": "ARP Input"},
		{"pid": "214", "process_name": "IP Background"},
	}
	env := drivers.DefaultShape("cpu", rows)

	assert.Equal(t, "13", env["five_sec_total"])
	procs := env.Rows("processes")
	require.Len(t, procs, 2)
	assert.Equal(t, "112", procs[0]["pid"])
}

func TestShapeSingleRowDiscardsSurplus(t *testing.T) {
	rows := []models.Row{
		{"version": "17.3"},
		{"version": "bogus second row"},
	}
	env := drivers.DefaultShape("device_info", rows)
	assert.Equal(t, "17.3", env["version"])
	_, has := env["processes"]
	assert.False(t, has)
}

func TestShapeMultiRowWrapsUnderListKey(t *testing.T) {
	rows := []models.Row{{"neighbor": "10.0.0.2"}}
	env := drivers.DefaultShape("bgp_summary", rows)
	require.Len(t, env.Rows("peers"), 1)

	env = drivers.DefaultShape("interface_detail", rows)
	require.Len(t, env.Rows("interfaces"), 1)
}

// An empty multi-row collection publishes an empty list, not a missing key:
// the top-level shape is stable across polls.
func TestShapeEmptyRows(t *testing.T) {
	env := drivers.DefaultShape("interfaces", nil)
	rows, has := env["interfaces"]
	assert.True(t, has)
	assert.Empty(t, rows)

	assert.Empty(t, drivers.DefaultShape("cpu", nil))
}

func TestShapeUnknownCollectionWrapsUnderData(t *testing.T) {
	env := drivers.DefaultShape("mystery", []models.Row{{"k": "v"}})
	require.Len(t, env.Rows("data"), 1)
}
