// Package wasmrun hosts the WASM skill executor from spec.md §4.10 and
// §5: fuel metering, a memory cap, and a trust-tier-scoped set of host
// imports, invoked through github.com/tetratelabs/wazero. No teacher or
// pack example wires wazero (it is an out-of-pack addition — see
// DESIGN.md), so the instantiate/host-module/ABI shape below follows
// wazero's own public API conventions rather than a ported pattern.
package wasmrun

import "time"

// Limits bounds a single WASM invocation (spec.md §5's skill resource
// limits).
type Limits struct {
	MaxMemoryBytes int64
	MaxFuel        uint64
	MaxDuration    time.Duration
}

// DefaultLimits returns the spec.md §5 defaults: 64 MB memory, 1,000,000
// fuel units, 30 second wall clock.
func DefaultLimits() Limits {
	return Limits{
		MaxMemoryBytes: 64 * 1024 * 1024,
		MaxFuel:        1_000_000,
		MaxDuration:    30 * time.Second,
	}
}

const wasmPageSize = 65536

func (l Limits) memoryLimitPages() uint32 {
	pages := l.MaxMemoryBytes / wasmPageSize
	if pages <= 0 {
		pages = 1
	}
	if pages > 1<<16 {
		pages = 1 << 16
	}
	return uint32(pages)
}
