package drivers

import (
	"github.com/scottpeterman/wirlwind/models"
)

// CiscoIOS covers IOS and IOS-XE platforms (ISR, ASR, CSR1000v, Catalyst).
//
// IOS quirks handled here:
//   - CPU: template fields cpu_usage_5_sec / cpu_usage_1_min / cpu_usage_5_min
//     map to five_sec_total / one_min / five_min
//   - Processes: averaged per-process CPU, so zero rows are dropped; memory
//     holdings merged in from the memory collection's parallel lists
//   - Interface detail: bandwidth string parse, integer rates, utilization
type CiscoIOS struct {
	Base
}

func init() {
	Register(func(vendor string) Driver {
		return &CiscoIOS{Base{vendor: vendor}}
	}, "cisco_ios", "cisco_ios_xe")
}

func (d *CiscoIOS) PaginationCommand() string { return "terminal length 0" }

func (d *CiscoIOS) PostProcess(collection string, env models.Envelope, store StoreReader) (models.Envelope, error) {
	switch collection {
	case "cpu":
		normalizeCiscoCPU(env)
		FilterCPUProcesses(env)
		MergeMemoryIntoProcesses(env, store)

	case "memory":
		ComputeMemoryPct(env)

	case "log":
		PostProcessLog(env, MaxLogEntries)

	case "bgp_summary":
		NormalizeBGPPeers(env)

	case "neighbors":
		InferCapabilities(env.Rows("neighbors"))

	case "interface_detail":
		for _, intf := range env.Rows("interfaces") {
			// IOS reports rates as bare integers in bps.
			intf["input_rate_bps"] = ParseRateToBps(firstOf(intf, "input_rate_raw", "input_rate_bps", "input_rate"))
			intf["output_rate_bps"] = ParseRateToBps(firstOf(intf, "output_rate_raw", "output_rate_bps", "output_rate"))
			FinishInterfaceRow(intf)
		}
	}
	return env, nil
}

// normalizeCiscoCPU maps IOS CPU fields to the canonical headline keys,
// accepting normalize-mapped and raw template names, and forces the three
// headline values numeric.
func normalizeCiscoCPU(env models.Envelope) {
	headlines := []struct {
		target string
		alts   []string
	}{
		{"five_sec_total", []string{"five_sec_total", "five_sec", "cpu_usage_5_sec"}},
		{"one_min", []string{"one_min", "cpu_usage_1_min"}},
		{"five_min", []string{"five_min", "cpu_usage_5_min"}},
	}
	for _, h := range headlines {
		if v, ok := firstNumeric(env, h.alts...); ok {
			env[h.target] = v
		}
	}
}
