// Package skillexec dispatches an installed skill invocation to the
// executor appropriate for its trust tier: prompt skills return their
// body directly, Local tool skills spawn a host process, and
// Verified/Untrusted tool skills run inside the WASM sandbox (with an
// additional OS-level sandbox subprocess for Untrusted). Grounded on
// original_source/crates/boternity-infra/src/skill/local_executor.rs for
// the local-process executor's shape and timeout, and on
// original_source/crates/boternity-core/src/skill/chaining.rs for
// chain_skills' sequential-pipe semantics.
package skillexec

import "time"

// Result is the outcome of one skill invocation, regardless of which
// executor produced it.
type Result struct {
	Output          string
	FuelConsumed    *uint64
	MemoryPeakBytes *uint64
	Duration        time.Duration
}
