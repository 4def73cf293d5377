package drivers

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/scottpeterman/wirlwind/models"
)

// MaxLogEntries caps the published log collection.
const MaxLogEntries = 50

// ─────────────────────────────────────────────────────────────────────────────
// Scalar helpers
// ─────────────────────────────────────────────────────────────────────────────

// toFloat converts any row value to a float64, tolerating %, commas, and
// surrounding whitespace. Returns (0, false) on anything non-numeric.
func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case nil:
		return 0, false
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
	case bool:
		return 0, false
	default:
		s := strings.TrimSpace(strings.NewReplacer("%", "", ",", "").Replace(fmt.Sprintf("%v", t)))
		if s == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(s, 64)
		return f, err == nil
	}
}

// toInt converts any row value to an int64, defaulting on failure.
func toInt(v any, def int64) int64 {
	f, ok := toFloat(v)
	if !ok {
		return def
	}
	return int64(f)
}

// firstNumeric returns the first key in keys whose value converts to a
// number.
func firstNumeric(env models.Envelope, keys ...string) (float64, bool) {
	for _, k := range keys {
		if f, ok := toFloat(env[k]); ok {
			return f, true
		}
	}
	return 0, false
}

func round1(f float64) float64 {
	if f < 0 {
		return float64(int(f*10-0.5)) / 10
	}
	return float64(int(f*10+0.5)) / 10
}

// ─────────────────────────────────────────────────────────────────────────────
// Memory
// ─────────────────────────────────────────────────────────────────────────────

// ComputeMemoryPct derives used_pct plus human-readable totals from whatever
// memory fields the vendor exposed. It detects which unit pair is present:
// {total_bytes, used_bytes}, {total_kb, used_kb}, or {total, used, free}
// (used derived from total−free when absent). The normalize map should have
// mapped vendor fields already; raw names are handled as a fallback.
func ComputeMemoryPct(env models.Envelope) {
	total, hasTotal := firstNumeric(env, "total_bytes", "total_kb", "total_mb", "total", "memory_total")
	used, hasUsed := firstNumeric(env, "used_bytes", "used_kb", "used_mb", "used", "memory_used")
	free, hasFree := firstNumeric(env, "free_bytes", "free", "free_kb", "memory_free")

	if hasTotal && hasFree && !hasUsed {
		used = total - free
		hasUsed = true
	}
	if !hasTotal || !hasUsed || total <= 0 {
		return
	}

	env["used_pct"] = round1(used / total * 100)

	// Display values scale by magnitude of the source unit; kb and mb
	// sources are converted to bytes first so the label matches the value.
	scale := 1.0
	if _, ok := firstNumeric(env, "total_bytes"); !ok {
		if _, ok := firstNumeric(env, "total_kb"); ok {
			scale = 1024
		} else if _, ok := firstNumeric(env, "total_mb"); ok {
			scale = 1024 * 1024
		}
	}
	total, used = total*scale, used*scale
	switch {
	case total > 1_000_000_000:
		env["total_display"] = fmt.Sprintf("%.1f GB", total/(1024*1024*1024))
		env["used_display"] = fmt.Sprintf("%.1f GB", used/(1024*1024*1024))
	case total > 1_000_000:
		env["total_display"] = fmt.Sprintf("%.1f MB", total/(1024*1024))
		env["used_display"] = fmt.Sprintf("%.1f MB", used/(1024*1024))
	case total > 1_000:
		env["total_display"] = fmt.Sprintf("%.1f KB", total/1024)
		env["used_display"] = fmt.Sprintf("%.1f KB", used/1024)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// CPU processes
// ─────────────────────────────────────────────────────────────────────────────

// FilterCPUProcesses drops idle processes and adds the short field aliases
// the published contract requires. This is the Cisco-style filter: the
// source command reports averaged per-process CPU, so a zero really means
// idle and can be dropped. Rows whose CPU field cannot be parsed are kept.
func FilterCPUProcesses(env models.Envelope) {
	procs := env.Rows("processes")
	if len(procs) == 0 {
		return
	}

	active := make([]models.Row, 0, len(procs))
	for _, proc := range procs {
		cpu5s, ok := toFloat(firstOf(proc, "process_cpu_usage_5_sec", "cpu_pct", "five_sec"))
		if ok && cpu5s <= 0 {
			continue
		}

		if _, has := proc["pid"]; !has {
			proc["pid"] = fmt.Sprintf("%v", firstOf(proc, "process_pid"))
		}
		if _, has := proc["name"]; !has {
			proc["name"] = fmt.Sprintf("%v", firstOf(proc, "process_name"))
		}
		if ok {
			proc["cpu_pct"] = cpu5s
			proc["five_sec"] = cpu5s
		}
		active = append(active, proc)
	}
	env["processes"] = active
}

// MergeMemoryIntoProcesses cross-references per-process memory from the
// memory collection into CPU process rows. The shipped memory template
// returns parallel lists (process_id / process_holding); each holding lands
// on the matching CPU row as bytes.
func MergeMemoryIntoProcesses(env models.Envelope, store StoreReader) {
	procs := env.Rows("processes")
	if len(procs) == 0 || store == nil {
		return
	}
	mem := store.Get("memory")
	if mem == nil {
		return
	}

	pids := splitList(mem["process_id"])
	holdings := splitList(mem["process_holding"])
	if len(pids) == 0 || len(pids) != len(holdings) {
		return
	}

	holdingByPID := make(map[string]int64, len(pids))
	for i, pid := range pids {
		if h, err := strconv.ParseInt(holdings[i], 10, 64); err == nil {
			holdingByPID[pid] = h
		}
	}

	for _, proc := range procs {
		pid := fmt.Sprintf("%v", firstOf(proc, "pid", "process_pid"))
		if h, ok := holdingByPID[pid]; ok {
			proc["holding"] = h
		}
	}
}

// splitList flattens a value that may be a space-joined string (TextFSM List
// values), a []string, or a []any into a string slice.
func splitList(v any) []string {
	switch t := v.(type) {
	case nil:
		return nil
	case []string:
		return t
	case []any:
		out := make([]string, len(t))
		for i, item := range t {
			out[i] = fmt.Sprintf("%v", item)
		}
		return out
	case string:
		return strings.Fields(t)
	default:
		return strings.Fields(fmt.Sprintf("%v", t))
	}
}

// firstOf returns the first present, non-empty value among keys. It accepts
// both Row and Envelope values.
func firstOf(row map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := row[k]; ok && v != nil && fmt.Sprintf("%v", v) != "" {
			return v
		}
	}
	return ""
}

// ─────────────────────────────────────────────────────────────────────────────
// BGP
// ─────────────────────────────────────────────────────────────────────────────

// NormalizeBGPPeers normalizes peer rows across vendors: the state_pfx field
// is either a state word ("Idle", "Active") or a number (prefix count, which
// implies Established).
func NormalizeBGPPeers(env models.Envelope) {
	peers := env.Rows("peers")
	for _, peer := range peers {
		raw := strings.TrimSpace(fmt.Sprintf("%v", firstOf(peer, "state_pfx", "state")))
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
			peer["state"] = "Established"
			peer["prefixes_rcvd"] = n
			continue
		}
		if raw == "" {
			peer["state"] = "Unknown"
		} else {
			peer["state"] = raw
		}
		if _, has := peer["prefixes_rcvd"]; !has {
			peer["prefixes_rcvd"] = int64(0)
		} else {
			peer["prefixes_rcvd"] = toInt(peer["prefixes_rcvd"], 0)
		}
	}
	env["peers"] = peers
}

// ─────────────────────────────────────────────────────────────────────────────
// Log
// ─────────────────────────────────────────────────────────────────────────────

// PostProcessLog assembles timestamps from TextFSM-split components, coerces
// severity to int, reverses to newest-first, and trims to maxEntries.
//
// Timestamp assembly requires all of month, day, and time to be present;
// when any component is missing the raw timestamp field passes through
// untouched rather than guessing.
func PostProcessLog(env models.Envelope, maxEntries int) {
	entries := env.Rows("entries")
	if len(entries) == 0 {
		return
	}

	for _, entry := range entries {
		if _, has := entry["timestamp"]; !has {
			month := strings.TrimSpace(fmt.Sprintf("%v", firstOf(entry, "month")))
			day := strings.TrimSpace(fmt.Sprintf("%v", firstOf(entry, "day")))
			tod := strings.TrimSpace(fmt.Sprintf("%v", firstOf(entry, "time")))
			if month != "" && day != "" && tod != "" {
				ts := month + " " + day + " " + tod
				if tz := strings.TrimSpace(fmt.Sprintf("%v", firstOf(entry, "timezone"))); tz != "" {
					ts += " " + tz
				}
				entry["timestamp"] = ts
			}
		}

		if sev, ok := toFloat(entry["severity"]); ok {
			entry["severity"] = int64(sev)
		}
	}

	// Device log output is oldest-first; the dashboard wants newest-first.
	reversed := make([]models.Row, len(entries))
	for i, e := range entries {
		reversed[len(entries)-1-i] = e
	}
	if len(reversed) > maxEntries {
		reversed = reversed[:maxEntries]
	}
	env["entries"] = reversed
}

// ─────────────────────────────────────────────────────────────────────────────
// Neighbors
// ─────────────────────────────────────────────────────────────────────────────

// InferCapabilities fills a missing capabilities field from the platform
// string. LLDP on some platforms never reports capabilities, so the
// downstream shape selection falls back to substring matching — "Router" →
// router-like, "Switch" → switch-like. This is a lossy heuristic; when
// neither substring matches, the field stays absent and consumers render an
// unknown node type.
func InferCapabilities(neighbors []models.Row) {
	for _, nbr := range neighbors {
		if v, has := nbr["capabilities"]; has && fmt.Sprintf("%v", v) != "" {
			continue
		}
		platform := fmt.Sprintf("%v", firstOf(nbr, "platform"))
		switch {
		case strings.Contains(platform, "Router"):
			nbr["capabilities"] = "Router"
		case strings.Contains(platform, "Switch"):
			nbr["capabilities"] = "Switch"
		}
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Interface rates and bandwidth
// ─────────────────────────────────────────────────────────────────────────────

// Matches "1000000 Kbit", "100000 Kbit/sec", "1000000Kbit".
var bwPattern = regexp.MustCompile(`(\d+)\s*[Kk]`)

// Matches "1234 bps", "1.23 Kbps", "5.67 Mbps", "1.2 Gbps".
var ratePattern = regexp.MustCompile(`(?i)([\d.]+)\s*([KMG]?bps)`)

var rateMultipliers = map[string]float64{
	"bps":  1,
	"kbps": 1_000,
	"mbps": 1_000_000,
	"gbps": 1_000_000_000,
}

// ParseRateToBps converts a rate value with optional unit suffix to integer
// bits/second. Bare numerics are taken as bps already.
func ParseRateToBps(v any) int64 {
	if v == nil {
		return 0
	}
	s := strings.TrimSpace(fmt.Sprintf("%v", v))
	if s == "" {
		return 0
	}
	if f, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64); err == nil {
		return int64(f)
	}
	if m := ratePattern.FindStringSubmatch(s); m != nil {
		value, _ := strconv.ParseFloat(m[1], 64)
		return int64(value * rateMultipliers[strings.ToLower(m[2])])
	}
	return 0
}

// ParseBandwidthKbps extracts the numeric Kbps from vendor bandwidth strings
// like "1000000 Kbit".
func ParseBandwidthKbps(v any) int64 {
	if v == nil {
		return 0
	}
	if m := bwPattern.FindStringSubmatch(fmt.Sprintf("%v", v)); m != nil {
		n, _ := strconv.ParseInt(m[1], 10, 64)
		return n
	}
	return 0
}

// FinishInterfaceRow applies the shared tail of interface_detail
// post-processing: bandwidth parse, integer error counters and MTU, and
// utilization percent (peak of in/out over bandwidth). Rate conversion is
// vendor-specific and happens before this call.
func FinishInterfaceRow(intf models.Row) {
	bwKbps := ParseBandwidthKbps(firstOf(intf, "bandwidth_raw", "bandwidth"))
	intf["bandwidth_kbps"] = bwKbps

	for _, field := range []string{"input_rate_bps", "output_rate_bps", "in_errors", "out_errors", "crc_errors"} {
		intf[field] = toInt(intf[field], 0)
	}
	if _, has := intf["mtu"]; has {
		intf["mtu"] = toInt(intf["mtu"], 0)
	}

	if bwKbps > 0 {
		bwBps := float64(bwKbps) * 1000
		peak := intf["input_rate_bps"].(int64)
		if out := intf["output_rate_bps"].(int64); out > peak {
			peak = out
		}
		intf["utilization_pct"] = round1(float64(peak) / bwBps * 100)
	} else {
		intf["utilization_pct"] = 0.0
	}

	delete(intf, "bandwidth_raw")
}
