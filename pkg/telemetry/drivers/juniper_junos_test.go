package drivers_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scottpeterman/wirlwind/models"
	"github.com/scottpeterman/wirlwind/pkg/telemetry/drivers"
)

func TestJunOSCPUFromTopHeader(t *testing.T) {
	d := drivers.Lookup("juniper_junos")
	env := d.Shape("cpu", []models.Row{
		{"cpu_idle": "97.0", "pid": "1423", "name": "rpd", "wcpu": "1.51", "res": "45M"},
		{"pid": "12", "name": "[idle]", "wcpu": "96.0", "res": "0"},
		{"pid": "1500", "name": "snmpd", "wcpu": "0.30", "res": "12K"},
	})
	env, err := d.PostProcess("cpu", env, nil)
	require.NoError(t, err)

	assert.InDelta(t, 3.0, env["five_sec_total"].(float64), 0.01)

	procs := env.Rows("processes")
	// The [idle] kernel thread is filtered; rpd and snmpd survive sorted
	// by WCPU.
	require.Len(t, procs, 2)
	assert.Equal(t, "rpd", procs[0]["name"])
	assert.Equal(t, int64(45*1024*1024), procs[0]["holding"])
	assert.Equal(t, "snmpd", procs[1]["name"])
	assert.Equal(t, int64(12*1024), procs[1]["holding"])
}

// Dual routing engines: when row[0] is the backup RE, the master from the
// overflow rows is promoted.
func TestJunOSMemoryPicksMasterRE(t *testing.T) {
	d := drivers.Lookup("juniper_junos")
	env := d.Shape("memory", []models.Row{
		{"slot": "0", "status": "Backup", "memory_utilization": "12", "dram": "16384"},
		{"slot": "1", "status": "Master", "memory_utilization": "34", "dram": "16384"},
	})
	env, err := d.PostProcess("memory", env, nil)
	require.NoError(t, err)

	assert.Equal(t, 34.0, env["used_pct"])
	assert.Equal(t, "16.0 GB", env["total_display"])
	_, hasProcs := env["processes"]
	assert.False(t, hasProcs)
}

func TestJunOSLogSeverityInference(t *testing.T) {
	d := drivers.Lookup("juniper_junos")
	env := d.Shape("log", []models.Row{
		{"month": "Mar", "day": "2", "time": "10:00:01", "facility": "sshd", "message": "UI_CHILD_EXITED: child exited"},
		{"month": "Mar", "day": "2", "time": "10:00:02", "facility": "/kernel", "message": "interface ge-0/0/0 link down"},
		{"month": "Mar", "day": "2", "time": "10:00:03", "facility": "mgd", "message": "commit complete"},
	})
	env, err := d.PostProcess("log", env, nil)
	require.NoError(t, err)

	entries := env.Rows("entries")
	require.Len(t, entries, 3)

	// Newest first.
	assert.Equal(t, "commit complete", entries[0]["message"])
	assert.Equal(t, "MGD", entries[0]["mnemonic"])
	assert.Equal(t, int64(6), entries[0]["severity"])

	// "down" keyword beats the kernel default.
	assert.Equal(t, int64(2), entries[1]["severity"])
	assert.Equal(t, "kernel", entries[1]["facility"])

	// Structured event name becomes the mnemonic; "exited" keyword → 4.
	assert.Equal(t, "UI_CHILD_EXITED", entries[2]["mnemonic"])
	assert.Equal(t, int64(4), entries[2]["severity"])
	assert.Equal(t, "Mar 2 10:00:01", entries[2]["timestamp"])
}

func TestJunOSInterfaceDetailUnlimitedMTU(t *testing.T) {
	d := drivers.Lookup("juniper_junos")
	env := d.Shape("interface_detail", []models.Row{{
		"interface":   "ge-0/0/0",
		"link_status": "up",
		"admin_state": "Enabled",
		"mtu":         "Unlimited",
		"input_rate":  "1.23 Kbps",
	}})
	env, err := d.PostProcess("interface_detail", env, nil)
	require.NoError(t, err)

	intf := env.Rows("interfaces")[0]
	assert.Equal(t, int64(65535), intf["mtu"])
	assert.Equal(t, int64(1230), intf["input_rate_bps"])
	assert.Equal(t, "up", intf["status"])
}

func TestJunOSNeighborCapabilityInference(t *testing.T) {
	d := drivers.Lookup("juniper_junos")
	env := d.Shape("neighbors", []models.Row{
		{"device_id": "core1.lab.net", "neighbor_description": "Juniper Networks MX480"},
	})
	env, err := d.PostProcess("neighbors", env, nil)
	require.NoError(t, err)

	nbr := env.Rows("neighbors")[0]
	assert.Equal(t, "core1", nbr["device_id"])
	assert.Equal(t, "Juniper JunOS", nbr["platform"])
	assert.Equal(t, "Router", nbr["capabilities"])
}
