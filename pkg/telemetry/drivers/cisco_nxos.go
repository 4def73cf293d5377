package drivers

import (
	"github.com/scottpeterman/wirlwind/models"
)

// CiscoNXOS covers Nexus platforms. NX-OS reports user/kernel/idle
// percentages from "show system resources" instead of the IOS load-interval
// breakdown, so the CPU headline derives from idle.
type CiscoNXOS struct {
	Base
}

func init() {
	Register(func(vendor string) Driver {
		return &CiscoNXOS{Base{vendor: vendor}}
	}, "cisco_nxos")
}

func (d *CiscoNXOS) PaginationCommand() string { return "terminal length 0" }

func (d *CiscoNXOS) PostProcess(collection string, env models.Envelope, store StoreReader) (models.Envelope, error) {
	switch collection {
	case "cpu":
		normalizeNXOSCPU(env)
		FilterCPUProcesses(env)

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
			intf["input_rate_bps"] = ParseRateToBps(firstOf(intf, "input_rate_raw", "input_rate_bps", "input_rate"))
			intf["output_rate_bps"] = ParseRateToBps(firstOf(intf, "output_rate_raw", "output_rate_bps", "output_rate"))
			FinishInterfaceRow(intf)
		}
	}
	return env, nil
}

// normalizeNXOSCPU computes the headline totals from idle (or user+system).
func normalizeNXOSCPU(env models.Envelope) {
	var total float64
	if idle, ok := firstNumeric(env, "idle_pct", "cpu_state_idle"); ok {
		total = round1(100 - idle)
	} else if user, ok := firstNumeric(env, "user_pct", "cpu_state_user"); ok {
		system, _ := firstNumeric(env, "system_pct", "kernel_pct", "cpu_state_kernel")
		total = round1(user + system)
	} else {
		return
	}

	if _, has := env["five_sec_total"]; !has {
		env["five_sec_total"] = total
	}
	if _, has := env["one_min"]; !has {
		env["one_min"] = total
	}
	if _, has := env["five_min"]; !has {
		env["five_min"] = total
	}
}
