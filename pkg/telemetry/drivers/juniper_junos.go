package drivers

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/scottpeterman/wirlwind/models"
)

// JuniperJunOS covers EX, QFX, MX, and SRX platforms.
//
// Key differences from Cisco/Arista handled here:
//   - CPU and memory both come from "show chassis routing-engine"; dual
//     routing engines produce two rows and the master must be selected
//   - Per-process CPU comes from "show system processes extensive" (top),
//     filtered of kernel threads and trimmed to the top 15 by WCPU
//   - Syslog is BSD format with no structured severity: the mnemonic is
//     extracted from structured event names and severity inferred from
//     keywords
//   - MTU may be the literal "unlimited"
type JuniperJunOS struct {
	Base
}

func init() {
	Register(func(vendor string) Driver {
		return &JuniperJunOS{Base{vendor: vendor}}
	}, "juniper_junos")
}

const junosTopProcesses = 15

func (d *JuniperJunOS) PaginationCommand() string { return "set cli screen-length 0" }

// Shape keeps surplus memory rows instead of discarding them: on a dual-RE
// chassis the second routing-engine row rides along under "processes" until
// pickMasterRE decides which RE wins.
func (d *JuniperJunOS) Shape(collection string, rows []models.Row) models.Envelope {
	env := DefaultShape(collection, rows)
	if collection == "memory" && len(rows) > 1 {
		env["processes"] = rows[1:]
	}
	return env
}

func (d *JuniperJunOS) PostProcess(collection string, env models.Envelope, store StoreReader) (models.Envelope, error) {
	switch collection {
	case "cpu":
		normalizeJunOSCPU(env)
		buildJunOSProcessList(env)

	case "memory":
		pickMasterRE(env)
		normalizeJunOSMemory(env)

	case "log":
		postProcessJunOSLog(env)

	case "bgp_summary":
		NormalizeBGPPeers(env)

	case "neighbors":
		nbrs := env.Rows("neighbors")
		postProcessJunOSNeighbors(nbrs)

	case "interface_detail":
		for _, intf := range env.Rows("interfaces") {
			intf["input_rate_bps"] = ParseRateToBps(firstOf(intf, "input_rate_bps", "input_rate"))
			intf["output_rate_bps"] = ParseRateToBps(firstOf(intf, "output_rate_bps", "output_rate"))
			if strings.EqualFold(fmt.Sprintf("%v", intf["mtu"]), "unlimited") {
				intf["mtu"] = int64(65535)
			}
			if _, has := intf["status"]; !has {
				admin := strings.ToLower(fmt.Sprintf("%v", firstOf(intf, "admin_state")))
				link := strings.ToLower(fmt.Sprintf("%v", firstOf(intf, "link_status")))
				if admin == "disabled" || admin == "down" {
					intf["status"] = "admin down"
				} else {
					intf["status"] = link
				}
			}
			FinishInterfaceRow(intf)
		}
	}
	return env, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Dual-RE handling
// ─────────────────────────────────────────────────────────────────────────────

// pickMasterRE handles dual routing engine output. The shaper hoists row[0]
// flat and parks rows[1:] under "processes" — for routing-engine output the
// overflow is the backup RE, not process data. When row[0] is the backup and
// a master row exists in the overflow, the master is promoted; the bogus
// processes key is cleared either way.
func pickMasterRE(env models.Envelope) {
	overflow := env.Rows("processes")
	delete(env, "processes")

	status := strings.ToLower(fmt.Sprintf("%v", firstOf(env, "status")))
	if status != "backup" || len(overflow) == 0 {
		return
	}
	for _, row := range overflow {
		if strings.EqualFold(fmt.Sprintf("%v", row["status"]), "master") {
			for k := range env {
				delete(env, k)
			}
			for k, v := range row {
				env[k] = v
			}
			return
		}
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// CPU
// ─────────────────────────────────────────────────────────────────────────────

// normalizeJunOSCPU derives five_sec_total from the top header idle percent
// (or the sum of known components). JunOS reports instantaneous CPU only, so
// one_min and five_min mirror the headline. The load_avg fields are Unix
// load averages, not percentages, and are left alone.
func normalizeJunOSCPU(env models.Envelope) {
	var total float64
	if idle, ok := firstNumeric(env, "cpu_idle"); ok {
		total = round1(100 - idle)
	} else if user, ok := firstNumeric(env, "cpu_user"); ok {
		kernel, _ := firstNumeric(env, "cpu_kernel", "cpu_sys")
		interrupt, _ := firstNumeric(env, "cpu_interrupt")
		background, _ := firstNumeric(env, "cpu_background")
		total = round1(user + kernel + interrupt + background)
	} else {
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

// Structured event name pattern: ALL_CAPS_WITH_UNDERSCORES: ...
var junosMnemonic = regexp.MustCompile(`^([A-Z][A-Z0-9_]{2,}):\s*`)

// Kernel threads and system idle filtered out of the process table.
var junosKernelNames = map[string]bool{
	"idle": true, "swapper": true, "kernel": true, "init": true,
}

var junosKernelPrefixes = []string{
	"swi", "irq", "g_", "em0", "em1", "kqueue", "thread",
	"mastersh", "yarrow", "busdma",
}

// buildJunOSProcessList reassembles the full process table (the shaper
// flattened row[0] to the top level), filters kernel threads, and keeps the
// top 15 by WCPU with memory as tiebreaker.
func buildJunOSProcessList(env models.Envelope) {
	rows := env.Rows("processes")

	// Row[0] was hoisted — rebuild it when the top level carries process
	// fields (pid is the telltale).
	if pid := fmt.Sprintf("%v", firstOf(env, "pid")); pid != "" {
		row0 := models.Row{}
		for _, key := range []string{
			"pid", "username", "pri", "nice", "size", "res", "rss",
			"state", "time", "wcpu", "name", "command",
		} {
			if v, ok := env[key]; ok {
				row0[key] = v
			}
		}
		rows = append([]models.Row{row0}, rows...)
	}

	var procs []models.Row
	for _, proc := range rows {
		name := strings.TrimSpace(strings.Trim(fmt.Sprintf("%v", firstOf(proc, "name", "command")), "[]"))
		lower := strings.ToLower(name)
		if junosKernelNames[lower] || hasAnyPrefix(lower, junosKernelPrefixes) {
			continue
		}

		cpu := 0.0
		if v, ok := toFloat(firstOf(proc, "wcpu", "cpu_pct")); ok {
			cpu = v
		}

		out := models.Row{
			"pid":     toInt(proc["pid"], 0),
			"name":    name,
			"cpu_pct": cpu,
			"holding": parseResToBytes(firstOf(proc, "res", "rss")),
		}
		procs = append(procs, out)
	}

	sort.SliceStable(procs, func(i, j int) bool {
		ci, _ := toFloat(procs[i]["cpu_pct"])
		cj, _ := toFloat(procs[j]["cpu_pct"])
		if ci != cj {
			return ci > cj
		}
		return procs[i]["holding"].(int64) > procs[j]["holding"].(int64)
	})
	if len(procs) > junosTopProcesses {
		procs = procs[:junosTopProcesses]
	}
	env["processes"] = procs
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

// Matches top(1) memory sizes with unit suffixes: "45M", "1.5G", "12K".
var junosResPattern = regexp.MustCompile(`(?i)^([\d.]+)\s*([KMGT])B?$`)

var junosResMultipliers = map[string]int64{
	"k": 1 << 10, "m": 1 << 20, "g": 1 << 30, "t": 1 << 40,
}

// parseResToBytes handles both top(1) sizes with units ("45M") and BSD ps
// bare-integer RSS in KB ("95432").
func parseResToBytes(v any) int64 {
	s := strings.TrimSpace(fmt.Sprintf("%v", v))
	if s == "" || s == "0" {
		return 0
	}
	if m := junosResPattern.FindStringSubmatch(s); m != nil {
		val, _ := strconv.ParseFloat(m[1], 64)
		return int64(val * float64(junosResMultipliers[strings.ToLower(m[2])]))
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n * 1024
	}
	return 0
}

// ─────────────────────────────────────────────────────────────────────────────
// Memory
// ─────────────────────────────────────────────────────────────────────────────

// normalizeJunOSMemory uses the direct percentage from
// "show chassis routing-engine" (memory_utilization) plus DRAM size — no
// used/total arithmetic needed on this platform.
func normalizeJunOSMemory(env models.Envelope) {
	pct, hasPct := firstNumeric(env, "memory_utilization", "used_pct")
	if !hasPct {
		return
	}
	env["used_pct"] = round1(pct)

	dramMB, hasDram := firstNumeric(env, "dram", "mem_total")
	if !hasDram || dramMB <= 0 {
		return
	}
	usedMB := dramMB * pct / 100

	if dramMB >= 1024 {
		env["total_display"] = fmt.Sprintf("%.1f GB", dramMB/1024)
	} else {
		env["total_display"] = fmt.Sprintf("%d MB", int(dramMB))
	}
	if usedMB >= 1024 {
		env["used_display"] = fmt.Sprintf("%.1f GB", usedMB/1024)
	} else {
		env["used_display"] = fmt.Sprintf("%d MB", int(usedMB))
	}

	env["total"] = int64(dramMB * 1024) // KB for cross-vendor consistency
	env["used"] = int64(usedMB * 1024)
	env["free"] = int64((dramMB - usedMB) * 1024)
}

// ─────────────────────────────────────────────────────────────────────────────
// Log
// ─────────────────────────────────────────────────────────────────────────────

// Keyword → BSD severity (lower = more severe). Most severe match wins.
var junosSeverityKeywords = []struct {
	keyword  string
	severity int64
}{
	{"panic", 0}, {"kernel panic", 0},
	{"core dumped", 1}, {"fatal", 1}, {"abort", 1},
	{"down", 2},
	{"failed", 3}, {"failure", 3}, {"error", 3},
	{"warning", 4}, {"warn", 4}, {"exceeded", 4}, {"threshold", 4},
	{"mismatch", 4}, {"timeout", 4}, {"closed", 4}, {"exited", 4},
	{"accepted", 5}, {"established", 5}, {"logged in", 5},
}

// postProcessJunOSLog turns BSD syslog rows into the published log contract:
// assembled timestamp, mnemonic from the structured event name (or the
// daemon name), keyword-inferred severity, newest-first, capped.
func postProcessJunOSLog(env models.Envelope) {
	entries := env.Rows("entries")
	if len(entries) == 0 {
		return
	}

	processed := make([]models.Row, 0, len(entries))
	for _, entry := range entries {
		month := strings.TrimSpace(fmt.Sprintf("%v", firstOf(entry, "month")))
		day := strings.TrimSpace(fmt.Sprintf("%v", firstOf(entry, "day")))
		tod := strings.TrimSpace(fmt.Sprintf("%v", firstOf(entry, "time")))
		timestamp := strings.TrimSpace(month + " " + day + " " + tod)

		facility := fmt.Sprintf("%v", firstOf(entry, "facility"))
		message := fmt.Sprintf("%v", firstOf(entry, "message"))

		mnemonic := ""
		if m := junosMnemonic.FindStringSubmatch(message); m != nil {
			mnemonic = m[1]
		} else {
			mnemonic = strings.ToUpper(strings.Trim(facility, "/"))
			if mnemonic == "" {
				mnemonic = "SYSTEM"
			}
		}

		var severity int64 = 6 // informational
		if facility == "/kernel" {
			severity = 4
		}
		text := strings.ToLower(facility + " " + message)
		for _, kw := range junosSeverityKeywords {
			if strings.Contains(text, kw.keyword) && kw.severity < severity {
				severity = kw.severity
			}
		}

		fac := strings.Trim(facility, "/")
		if fac == "" {
			fac = "system"
		}
		processed = append(processed, models.Row{
			"timestamp": timestamp,
			"facility":  fac,
			"severity":  severity,
			"mnemonic":  mnemonic,
			"message":   message,
		})
	}

	// show log messages is chronological; newest first for the dashboard.
	reversed := make([]models.Row, len(processed))
	for i, e := range processed {
		reversed[len(processed)-1-i] = e
	}
	if len(reversed) > MaxLogEntries {
		reversed = reversed[:MaxLogEntries]
	}
	env["entries"] = reversed
}

// ─────────────────────────────────────────────────────────────────────────────
// Neighbors
// ─────────────────────────────────────────────────────────────────────────────

// postProcessJunOSNeighbors cleans LLDP summary rows. The JunOS summary
// template carries no platform or capabilities fields, so both are inferred
// where possible: platform from the description, capabilities from Juniper
// model-family keywords.
func postProcessJunOSNeighbors(neighbors []models.Row) {
	for _, nbr := range neighbors {
		deviceID := fmt.Sprintf("%v", firstOf(nbr, "device_id"))
		if strings.Contains(deviceID, ".") && !isDotted(deviceID) {
			nbr["device_id"] = strings.SplitN(deviceID, ".", 2)[0]
		}

		platform := fmt.Sprintf("%v", firstOf(nbr, "platform"))
		if platform == "" {
			desc := fmt.Sprintf("%v", firstOf(nbr, "neighbor_description"))
			if desc != "" {
				if short := shortPlatform(desc); short != "" {
					platform = short
				} else if len(desc) > 40 {
					platform = desc[:40]
				} else {
					platform = desc
				}
				nbr["platform"] = platform
			}
		}

		caps := strings.TrimSpace(fmt.Sprintf("%v", firstOf(nbr, "capabilities")))
		if caps == "" {
			// Match against the raw description too — the condensed
			// platform label drops the model family the heuristic needs.
			text := strings.ToLower(platform + " " +
				fmt.Sprintf("%v", firstOf(nbr, "neighbor_description")))
			switch {
			case containsAny(text, "router", "mx", "srx", "ptx"):
				caps = "Router"
			case containsAny(text, "switch", "ex4", "ex3", "ex2", "qfx"):
				caps = "Switch"
			}
		}
		if caps != "" {
			nbr["capabilities"] = caps
		}
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
