// Package sandbox implements the OS-level sandbox dispatch layer from
// spec.md §4.10: for Untrusted skills, the WASM executor runs inside a
// subprocess of the host binary with platform-specific restrictions
// applied (Landlock on Linux, Seatbelt on macOS) before the WASM
// component is instantiated. WASM is always the first isolation layer;
// this package adds a second, OS-enforced layer around it. Grounded on
// original_source/crates/boternity-infra/src/skill/sandbox.rs for the
// request/response JSON protocol and trust-tier gating.
package sandbox

import (
	"os"
	"path/filepath"
	"time"

	"github.com/boternity/boternity/internal/skills"
	"github.com/boternity/boternity/internal/wasmrun"
)

// Config describes one sandboxed WASM invocation, passed to the
// platform dispatcher which spawns the subprocess.
type Config struct {
	WasmPath       string
	Input          []byte
	ReadablePaths  []string
	WritablePaths  []string
	AllowNetwork   bool
	TempDir        string
	TrustTier      skills.TrustTier
	ResourceLimits wasmrun.Limits
}

// Request is the JSON payload written to the sandbox subprocess's stdin.
type Request struct {
	WasmPath       string           `json:"wasm_path"`
	Input          string           `json:"input"`
	TrustTier      skills.TrustTier `json:"trust_tier"`
	MaxMemoryBytes int64            `json:"max_memory_bytes"`
	MaxFuel        uint64           `json:"max_fuel"`
	MaxDurationMs  int64            `json:"max_duration_ms"`
}

// Response is the JSON payload read from the sandbox subprocess's
// stdout.
type Response struct {
	Success      bool    `json:"success"`
	Output       string  `json:"output,omitempty"`
	Error        string  `json:"error,omitempty"`
	FuelConsumed *uint64 `json:"fuel_consumed,omitempty"`
	DurationMs   *int64  `json:"duration_ms,omitempty"`
}

// ShouldUseOSSandbox reports whether tier requires the OS sandbox layer
// in addition to WASM. Only Untrusted skills do; Verified skills rely on
// WASM sandboxing alone and Local skills are not sandboxed at all.
func ShouldUseOSSandbox(tier skills.TrustTier) bool {
	return tier == skills.TrustUntrusted
}

// BuildConfigForSkill constructs a restrictive default Config: only the
// skill's own install directory is readable, nothing is writable, and
// network access is denied unless the caller overrides it.
func BuildConfigForSkill(wasmPath string, input []byte, tier skills.TrustTier, limits wasmrun.Limits) Config {
	var readable []string
	if dir := filepath.Dir(wasmPath); dir != "" && dir != "." {
		readable = []string{dir}
	}
	return Config{
		WasmPath:       wasmPath,
		Input:          input,
		ReadablePaths:  readable,
		WritablePaths:  nil,
		AllowNetwork:   false,
		TempDir:        filepath.Join(os.TempDir(), "boternity-sandbox"),
		TrustTier:      tier,
		ResourceLimits: limits,
	}
}

func (c Config) toRequest() Request {
	return Request{
		WasmPath:       c.WasmPath,
		Input:          string(c.Input),
		TrustTier:      c.TrustTier,
		MaxMemoryBytes: c.ResourceLimits.MaxMemoryBytes,
		MaxFuel:        c.ResourceLimits.MaxFuel,
		MaxDurationMs:  c.ResourceLimits.MaxDuration.Milliseconds(),
	}
}

func durationFromRequest(r Request) time.Duration {
	return time.Duration(r.MaxDurationMs) * time.Millisecond
}
