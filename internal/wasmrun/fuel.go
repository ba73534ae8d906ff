package wasmrun

import "sync/atomic"

// fuelMeter is a best-effort approximation of spec.md §5's "max_fuel"
// limit. wazero has no built-in instruction-level fuel counter (unlike
// wasmtime, which the original spec's fuel terminology comes from), so
// fuel here is charged per host-import call instead of per guest
// instruction — enough to bound skills that interact with the host
// (logging, capability checks) while a pure compute loop is still
// bounded by Limits.MaxDuration via context cancellation.
type fuelMeter struct {
	remaining int64
	used      int64
}

func newFuelMeter(max uint64) *fuelMeter {
	return &fuelMeter{remaining: int64(max)}
}

// consume charges n fuel units, returning false (and leaving the meter
// exhausted) if doing so would go negative.
func (f *fuelMeter) consume(n int64) bool {
	if atomic.AddInt64(&f.remaining, -n) < 0 {
		return false
	}
	atomic.AddInt64(&f.used, n)
	return true
}

func (f *fuelMeter) consumed() uint64 {
	return uint64(atomic.LoadInt64(&f.used))
}
