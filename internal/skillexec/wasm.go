package skillexec

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/boternity/boternity/internal/sandbox"
	"github.com/boternity/boternity/internal/skills"
	"github.com/boternity/boternity/internal/wasmrun"
	"github.com/boternity/boternity/pkg/models"
)

// WasmExecutor runs Verified and Untrusted tool skills through the WASM
// sandbox. Untrusted skills additionally run inside an OS-sandboxed
// subprocess (internal/sandbox); Verified skills run in-process, relying
// on WASM isolation alone.
type WasmExecutor struct {
	runtime *wasmrun.Runtime
	limits  wasmrun.Limits
}

// NewWasmExecutor creates a WasmExecutor with spec-default resource
// limits. logger may be nil.
func NewWasmExecutor(logger *slog.Logger) *WasmExecutor {
	return &WasmExecutor{
		runtime: wasmrun.New(logger),
		limits:  wasmrun.DefaultLimits(),
	}
}

// Execute runs skill's compiled WASM artifact with input, dispatching to
// the OS sandbox subprocess when the skill's trust tier requires it.
func (e *WasmExecutor) Execute(ctx context.Context, skill *models.InstalledSkill, input string, enforcer *skills.CapabilityEnforcer) (*Result, error) {
	if skill.SkillType == string(skills.SkillTypePrompt) {
		return &Result{Output: skill.Body}, nil
	}

	if skill.WASMPath == "" {
		return nil, ErrNoWasmPath
	}

	tier := skills.TrustTier(skill.TrustTier)
	switch tier {
	case skills.TrustVerified, skills.TrustUntrusted:
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownTrustTier, skill.TrustTier)
	}

	if sandbox.ShouldUseOSSandbox(tier) {
		cfg := sandbox.BuildConfigForSkill(skill.WASMPath, []byte(input), tier, e.limits)
		resp, err := sandbox.Dispatch(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("skillexec: dispatch sandboxed skill %q: %w", skill.Name, err)
		}
		if !resp.Success {
			return nil, fmt.Errorf("skillexec: sandboxed skill %q failed: %s", skill.Name, resp.Error)
		}
		result := &Result{Output: resp.Output, FuelConsumed: resp.FuelConsumed}
		if resp.DurationMs != nil {
			result.Duration = durationFromMs(*resp.DurationMs)
		}
		return result, nil
	}

	wasmBytes, err := readWasm(skill.WASMPath)
	if err != nil {
		return nil, fmt.Errorf("skillexec: read wasm for skill %q: %w", skill.Name, err)
	}

	res, err := e.runtime.Execute(ctx, wasmBytes, []byte(input), e.limits, enforcer)
	if err != nil {
		return nil, fmt.Errorf("skillexec: execute wasm skill %q: %w", skill.Name, err)
	}

	fuel := res.FuelConsumed
	peak := res.PeakMemoryBytes
	return &Result{
		Output:          string(res.Output),
		FuelConsumed:    &fuel,
		MemoryPeakBytes: &peak,
		Duration:        res.Duration,
	}, nil
}
