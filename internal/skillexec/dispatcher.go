package skillexec

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/boternity/boternity/internal/skills"
	"github.com/boternity/boternity/pkg/models"
)

// Dispatcher routes a skill invocation to LocalExecutor or WasmExecutor
// based on the skill's trust tier, so callers (the agent's tool-call
// path, ChainSkills) don't need to know which executor handles which
// tier.
type Dispatcher struct {
	local *LocalExecutor
	wasm  *WasmExecutor
}

// NewDispatcher builds a Dispatcher with a LocalExecutor and a
// WasmExecutor. logger may be nil.
func NewDispatcher(logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		local: NewLocalExecutor(),
		wasm:  NewWasmExecutor(logger),
	}
}

// Execute dispatches skill to the executor matching its trust tier.
func (d *Dispatcher) Execute(ctx context.Context, skill *models.InstalledSkill, input string, enforcer *skills.CapabilityEnforcer) (*Result, error) {
	switch skills.TrustTier(skill.TrustTier) {
	case skills.TrustLocal:
		return d.local.Execute(ctx, skill, input, enforcer)
	case skills.TrustVerified, skills.TrustUntrusted:
		return d.wasm.Execute(ctx, skill, input, enforcer)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownTrustTier, skill.TrustTier)
	}
}
