package drivers

import (
	"fmt"
	"sort"
	"sync"

	"github.com/scottpeterman/wirlwind/models"
)

// ─────────────────────────────────────────────────────────────────────────────
// Registry — vendor id → driver constructor
// ─────────────────────────────────────────────────────────────────────────────

// Factory constructs a driver bound to the vendor identifier it was looked
// up under (so cisco_ios_xe and cisco_ios share a type but report their own
// vendor string).
type Factory func(vendor string) Driver

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

// Register binds a factory to one or more vendor identifiers. Drivers call
// this from init, which guarantees registration happens before any lookup.
// Duplicate registration is a programming error and fails startup.
func Register(factory Factory, vendorIDs ...string) {
	registryMu.Lock()
	defer registryMu.Unlock()
	for _, vid := range vendorIDs {
		if _, dup := registry[vid]; dup {
			panic(fmt.Sprintf("drivers: duplicate registration for vendor %q", vid))
		}
		registry[vid] = factory
	}
}

// Lookup returns a driver for the vendor. When no exact registration exists,
// a single trailing _segment is stripped and retried (cisco_ios_xe →
// cisco_ios); failing that, the Base driver is returned. Lookup never fails —
// every vendor gets something usable.
func Lookup(vendor string) Driver {
	registryMu.RLock()
	factory := registry[vendor]
	if factory == nil {
		if base := models.FallbackVendor(vendor); base != "" {
			factory = registry[base]
		}
	}
	registryMu.RUnlock()

	if factory == nil {
		return NewBase(vendor)
	}
	return factory(vendor)
}

// Registered lists known vendor identifiers, sorted.
func Registered() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	ids := make([]string, 0, len(registry))
	for vid := range registry {
		ids = append(ids, vid)
	}
	sort.Strings(ids)
	return ids
}
