// Package drivers abstracts vendor-specific behavior away from the poll
// engine: pagination commands, output shaping, and per-collection
// post-processing transforms.
//
// Each vendor driver registers itself from an init hook; the engine looks
// drivers up by vendor identifier with a single-strip fallback
// (cisco_ios_xe → cisco_ios). The Base driver carries the transforms that
// work across vendors; vendor drivers override only where their platform
// diverges.
//
// Adding a new vendor:
//  1. Create drivers/my_vendor.go
//  2. Embed Base and override what differs
//  3. Register from init() — no other wiring needed
package drivers

import (
	"github.com/scottpeterman/wirlwind/models"
)

// StoreReader is the read-only slice of the state store available to
// post-processing (for cross-collection joins such as memory holdings merged
// into CPU processes). Drivers must not mutate what they read.
type StoreReader interface {
	Get(collection string) models.Envelope
}

// Driver is the per-vendor strategy contract consumed by the poll engine.
//
// PostProcess is a pure per-collection transform over the shaped envelope.
// Two simultaneous invocations for the same collection name are forbidden;
// the engine's single worker guarantees this.
type Driver interface {
	// Vendor returns the identifier the driver was instantiated for.
	Vendor() string

	// PaginationCommand is issued once per connect to disable CLI paging.
	// Empty means the vendor needs none.
	PaginationCommand() string

	// Shape converts parsed rows into the canonical envelope for the
	// collection (flat, list-under-key, or the CPU hoist).
	Shape(collection string, rows []models.Row) models.Envelope

	// PostProcess applies vendor transforms after shaping. It may read prior
	// state from store (which may be nil during one-shot startup).
	PostProcess(collection string, env models.Envelope, store StoreReader) (models.Envelope, error)
}

// ─────────────────────────────────────────────────────────────────────────────
// Base — fallback driver and shared behavior
// ─────────────────────────────────────────────────────────────────────────────

// Base is the driver for unknown vendors and the embedded foundation of
// every vendor driver: default shaping plus the vendor-agnostic transforms.
type Base struct {
	vendor string
}

// NewBase creates the fallback driver for a vendor with no registration.
func NewBase(vendor string) *Base { return &Base{vendor: vendor} }

func (b *Base) Vendor() string { return b.vendor }

// PaginationCommand is empty for unknown vendors, so no pagination command
// is issued on connect.
func (b *Base) PaginationCommand() string { return "" }

// Shape applies the default single-row/multi-row envelope rules.
func (b *Base) Shape(collection string, rows []models.Row) models.Envelope {
	return DefaultShape(collection, rows)
}

// PostProcess runs the common cross-vendor transforms: memory percent, log
// assembly, BGP peer normalization.
func (b *Base) PostProcess(collection string, env models.Envelope, store StoreReader) (models.Envelope, error) {
	switch collection {
	case "memory":
		ComputeMemoryPct(env)
	case "log":
		PostProcessLog(env, MaxLogEntries)
	case "bgp_summary":
		NormalizeBGPPeers(env)
	}
	return env, nil
}
