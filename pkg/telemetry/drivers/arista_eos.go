package drivers

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/scottpeterman/wirlwind/models"
)

// AristaEOS covers Arista EOS platforms.
//
// EOS quirks handled here:
//   - CPU: Linux top output, so the headline is derived from idle percent
//     and the process list is an instantaneous snapshot — keep the top 20 by
//     CPU then memory, including zero-CPU rows (a drop-zero filter would
//     empty the table on most polls)
//   - Memory: KiB values from top
//   - Interface detail: rates arrive as strings with unit suffixes
//     ("1.23 Mbps") and must convert to integer bps
//   - Neighbors: LLDP field cleanup for the dashboard graph
type AristaEOS struct {
	Base
}

func init() {
	Register(func(vendor string) Driver {
		return &AristaEOS{Base{vendor: vendor}}
	}, "arista_eos")
}

const aristaTopProcesses = 20

func (d *AristaEOS) PaginationCommand() string { return "terminal length 0" }

func (d *AristaEOS) PostProcess(collection string, env models.Envelope, store StoreReader) (models.Envelope, error) {
	switch collection {
	case "cpu":
		normalizeAristaCPU(env)
		buildAristaProcessList(env)

	case "memory":
		normalizeAristaMemory(env)

	case "log":
		PostProcessLog(env, MaxLogEntries)

	case "bgp_summary":
		NormalizeBGPPeers(env)

	case "neighbors":
		nbrs := env.Rows("neighbors")
		// Infer before the platform string is condensed — the heuristic
		// needs the raw description.
		InferCapabilities(nbrs)
		postProcessAristaNeighbors(nbrs)

	case "interface_detail":
		for _, intf := range env.Rows("interfaces") {
			intf["input_rate_bps"] = ParseRateToBps(firstOf(intf, "input_rate_raw", "input_rate_bps", "input_rate"))
			intf["output_rate_bps"] = ParseRateToBps(firstOf(intf, "output_rate_raw", "output_rate_bps", "output_rate"))
			FinishInterfaceRow(intf)
		}
	}
	return env, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// CPU
// ─────────────────────────────────────────────────────────────────────────────

// normalizeAristaCPU computes five_sec_total from the idle percentage (or
// user+system when idle is absent), then mirrors it into one_min/five_min —
// top output has no load-interval breakdown.
func normalizeAristaCPU(env models.Envelope) {
	idle, hasIdle := firstNumeric(env, "global_cpu_percent_idle", "idle_pct", "cpu_idle")
	user, hasUser := firstNumeric(env, "global_cpu_percent_user", "user_pct", "cpu_usr")
	system, _ := firstNumeric(env, "global_cpu_percent_system", "system_pct", "cpu_sys")

	var total float64
	switch {
	case hasIdle:
		total = round1(100 - idle)
	case hasUser:
		total = round1(user + system)
	default:
		return
	}

	env["five_sec_total"] = total
	if _, has := env["one_min"]; !has {
		env["one_min"] = total
	}
	if _, has := env["five_min"]; !has {
		env["five_min"] = total
	}
}

// Matches top RES values with a unit suffix: "45M", "1.5g", "128K".
var resPattern = regexp.MustCompile(`(?i)^([\d.]+)\s*([KMGT])B?$`)

var resMultipliersKB = map[string]float64{
	"k": 1,
	"m": 1024,
	"g": 1024 * 1024,
	"t": 1024 * 1024 * 1024,
}

// buildAristaProcessList aliases top per-process fields to the published
// contract and keeps the top N by CPU descending, memory as tiebreaker.
func buildAristaProcessList(env models.Envelope) {
	procs := env.Rows("processes")
	if len(procs) == 0 {
		return
	}

	for _, proc := range procs {
		cpu, ok := toFloat(firstOf(proc, "percent_cpu", "cpu_pct", "cpu"))
		if !ok {
			cpu = 0
		}
		proc["cpu_pct"] = cpu
		proc["five_sec"] = cpu
		if name := fmt.Sprintf("%v", firstOf(proc, "command", "name")); name != "" {
			proc["name"] = name
		}
		if mem, ok := toFloat(firstOf(proc, "percent_memory", "mem_pct")); ok {
			proc["mem_pct"] = mem
		}

		// RES column: KB by default, unit suffix for larger values.
		resKB := parseResidentKB(firstOf(proc, "resident_memory_size", "res"))
		if resKB > 0 {
			proc["holding"] = int64(resKB * 1024)
			switch {
			case resKB > 1_000_000:
				proc["holding_display"] = fmt.Sprintf("%.0fM", resKB/1024)
			case resKB > 1000:
				proc["holding_display"] = fmt.Sprintf("%.0fK", resKB)
			default:
				proc["holding_display"] = fmt.Sprintf("%.0f", resKB)
			}
		}
	}

	sort.SliceStable(procs, func(i, j int) bool {
		ci, _ := toFloat(procs[i]["cpu_pct"])
		cj, _ := toFloat(procs[j]["cpu_pct"])
		if ci != cj {
			return ci > cj
		}
		mi, _ := toFloat(procs[i]["mem_pct"])
		mj, _ := toFloat(procs[j]["mem_pct"])
		return mi > mj
	})

	if len(procs) > aristaTopProcesses {
		procs = procs[:aristaTopProcesses]
	}
	env["processes"] = procs
}

func parseResidentKB(v any) float64 {
	s := strings.TrimSpace(fmt.Sprintf("%v", v))
	if s == "" {
		return 0
	}
	if m := resPattern.FindStringSubmatch(s); m != nil {
		val, _ := toFloat(m[1])
		return val * resMultipliersKB[strings.ToLower(m[2])]
	}
	val, _ := toFloat(s)
	return val
}

// ─────────────────────────────────────────────────────────────────────────────
// Memory
// ─────────────────────────────────────────────────────────────────────────────

// normalizeAristaMemory computes used_pct from top's KiB totals.
func normalizeAristaMemory(env models.Envelope) {
	total, hasTotal := firstNumeric(env, "global_mem_total", "mem_total", "total_kb")
	used, hasUsed := firstNumeric(env, "global_mem_used", "mem_used", "used_kb")
	free, hasFree := firstNumeric(env, "global_mem_free", "mem_free", "free_kb")

	if !hasUsed && hasTotal && hasFree {
		used = total - free
		hasUsed = true
	}
	if !hasTotal || !hasUsed || total <= 0 {
		return
	}

	env["used_pct"] = round1(used / total * 100)
	env["used"] = int64(used)
	env["total"] = int64(total)
	if hasFree {
		env["free"] = int64(free)
	} else {
		env["free"] = int64(total - used)
	}
	env["total_display"] = fmt.Sprintf("%.1f GB", total/(1024*1024))
	env["used_display"] = fmt.Sprintf("%.1f GB", used/(1024*1024))
}

// ─────────────────────────────────────────────────────────────────────────────
// Neighbors
// ─────────────────────────────────────────────────────────────────────────────

// Interface name abbreviations for graph edge labels. Each long name is
// matched as a prefix of the interface name; the first entry that matches
// wins.
var intfShort = []struct{ long, short string }{
	{"TwentyFiveGigE", "Twe"},
	{"FortyGigabitEthernet", "Fo"},
	{"TenGigabitEthernet", "Te"},
	{"HundredGigE", "Hu"},
	{"GigabitEthernet", "Gi"},
	{"FastEthernet", "Fa"},
	{"Port-Channel", "Po"},
	{"Management", "Ma"},
	{"Loopback", "Lo"},
	{"Ethernet", "Et"},
	{"Vlan", "Vl"},
}

// postProcessAristaNeighbors cleans LLDP quirks: FQDN stripping, platform
// shortening from verbose system descriptions, and interface abbreviation.
func postProcessAristaNeighbors(neighbors []models.Row) {
	for _, nbr := range neighbors {
		deviceID := fmt.Sprintf("%v", firstOf(nbr, "device_id"))
		if strings.Contains(deviceID, ".") && !isDotted(deviceID) {
			nbr["device_id"] = strings.SplitN(deviceID, ".", 2)[0]
		}

		platform := fmt.Sprintf("%v", firstOf(nbr, "platform"))
		if platform == "" {
			platform = fmt.Sprintf("%v", firstOf(nbr, "neighbor_description"))
			if platform != "" {
				nbr["platform"] = platform
			}
		}
		if short := shortPlatform(platform); short != "" {
			nbr["platform"] = short
		}

		for _, field := range []string{"local_intf", "remote_intf"} {
			intf := fmt.Sprintf("%v", firstOf(nbr, field))
			for _, ab := range intfShort {
				if strings.HasPrefix(intf, ab.long) {
					nbr[field] = ab.short + intf[len(ab.long):]
					break
				}
			}
		}

		if caps := strings.TrimSpace(fmt.Sprintf("%v", firstOf(nbr, "capabilities"))); caps != "" {
			nbr["capabilities"] = caps
		}
	}
}

// isDotted reports whether s is all digits and dots (an IP, not an FQDN).
func isDotted(s string) bool {
	for _, r := range s {
		if r != '.' && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}

// shortPlatform condenses a verbose LLDP system description to a short
// platform label.
func shortPlatform(platform string) string {
	p := strings.ToLower(platform)
	switch {
	case strings.Contains(p, "arista"):
		return "Arista EOS"
	case strings.Contains(p, "cisco") && strings.Contains(p, "nx-os"):
		return "Cisco NX-OS"
	case strings.Contains(p, "cisco") && strings.Contains(p, "ios-xe"):
		return "Cisco IOS-XE"
	case strings.Contains(p, "cisco"):
		return "Cisco IOS"
	case strings.Contains(p, "juniper"):
		return "Juniper JunOS"
	}
	return ""
}
