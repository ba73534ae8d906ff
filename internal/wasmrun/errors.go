package wasmrun

import "errors"

// ErrFuelExhausted is returned when a skill consumes more fuel than its
// Limits.MaxFuel allows. The invocation is aborted, not retried.
var ErrFuelExhausted = errors.New("wasmrun: fuel exhausted")

// ErrTimedOut is returned when execution exceeds Limits.MaxDuration.
var ErrTimedOut = errors.New("wasmrun: execution timed out")

// ErrMissingExport is returned when the module lacks one of the
// "alloc"/"run" entry points the host ABI requires.
var ErrMissingExport = errors.New("wasmrun: module missing required export")

// ErrCapabilityDenied is returned when a guest calls a host import it
// does not hold the matching capability for.
var ErrCapabilityDenied = errors.New("wasmrun: capability denied")
