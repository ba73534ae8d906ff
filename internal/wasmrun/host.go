package wasmrun

import (
	"context"
	"log/slog"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/boternity/boternity/internal/skills"
)

// buildHostModule registers the "boternity_host" import set a guest
// skill links against. The surface is deliberately small: logging, a
// clock, and a capability self-check — enough for a skill to behave
// differently when a capability it wants is missing, without handing it
// any capability directly (actual capability-gated actions, e.g.
// network access, are brokered by the skill executor around the WASM
// call, not from inside it).
func buildHostModule(ctx context.Context, rt wazero.Runtime, fuel *fuelMeter, enforcer *skills.CapabilityEnforcer, logger *slog.Logger) (api.Module, error) {
	builder := rt.NewHostModuleBuilder("boternity_host")

	builder.NewFunctionBuilder().
		WithFunc(func(_ context.Context, mod api.Module, msgPtr, msgLen uint32) {
			if !fuel.consume(1) {
				panic(ErrFuelExhausted)
			}
			mem := mod.Memory()
			if mem == nil {
				return
			}
			data, ok := mem.Read(msgPtr, msgLen)
			if !ok {
				return
			}
			logger.Info("skill log", "message", string(data))
		}).
		Export("host_log")

	builder.NewFunctionBuilder().
		WithFunc(func(_ context.Context, _ api.Module) uint64 {
			if !fuel.consume(1) {
				panic(ErrFuelExhausted)
			}
			return uint64(time.Now().UnixMilli())
		}).
		Export("host_time_now")

	builder.NewFunctionBuilder().
		WithFunc(func(_ context.Context, mod api.Module, capPtr, capLen uint32) uint32 {
			if !fuel.consume(1) {
				panic(ErrFuelExhausted)
			}
			mem := mod.Memory()
			if mem == nil || enforcer == nil {
				return 0
			}
			data, ok := mem.Read(capPtr, capLen)
			if !ok {
				return 0
			}
			if enforcer.Has(string(data)) {
				return 1
			}
			return 0
		}).
		Export("host_has_capability")

	return builder.Instantiate(ctx)
}
