package wasmrun

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"

	"github.com/boternity/boternity/internal/skills"
)

// Result is the outcome of one WASM skill invocation.
type Result struct {
	Output          []byte
	FuelConsumed    uint64
	PeakMemoryBytes uint64
	Duration        time.Duration
}

// Runtime executes compiled WASM skill components under fuel, memory,
// and wall-clock limits.
type Runtime struct {
	logger *slog.Logger
}

// New creates a Runtime. logger defaults to slog.Default() if nil.
func New(logger *slog.Logger) *Runtime {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runtime{logger: logger.With("component", "wasmrun")}
}

// Execute instantiates wasmBytes fresh (one runtime per call — skills
// are not trusted to share state across invocations) and calls its
// "run" export with input, enforcing limits. enforcer may be nil, in
// which case every host_has_capability check answers false.
//
// Guest ABI: the module must export "alloc(size i32) -> ptr i32" and
// "run(ptr i32, len i32) -> packed i64" where packed is
// (outPtr << 32) | outLen addressing bytes in the module's own linear
// memory.
func (r *Runtime) Execute(ctx context.Context, wasmBytes []byte, input []byte, limits Limits, enforcer *skills.CapabilityEnforcer) (*Result, error) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, limits.MaxDuration)
	defer cancel()

	cfg := wazero.NewRuntimeConfig().
		WithMemoryLimitPages(limits.memoryLimitPages()).
		WithCloseOnContextDone(true)
	rt := wazero.NewRuntimeWithConfig(ctx, cfg)
	defer rt.Close(ctx)

	if _, err := wasi_snapshot_preview1.Instantiate(ctx, rt); err != nil {
		return nil, fmt.Errorf("wasmrun: instantiate wasi: %w", err)
	}

	fuel := newFuelMeter(limits.MaxFuel)
	if _, err := buildHostModule(ctx, rt, fuel, enforcer, r.logger); err != nil {
		return nil, fmt.Errorf("wasmrun: build host module: %w", err)
	}

	compiled, err := rt.CompileModule(ctx, wasmBytes)
	if err != nil {
		return nil, fmt.Errorf("wasmrun: compile module: %w", err)
	}

	mod, err := rt.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().WithName("skill"))
	if err != nil {
		if ctx.Err() != nil {
			return nil, ErrTimedOut
		}
		return nil, fmt.Errorf("wasmrun: instantiate module: %w", err)
	}

	output, err := invoke(ctx, mod, input, fuel)
	duration := time.Since(start)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ErrTimedOut
		}
		return nil, err
	}

	var peak uint64
	if mem := mod.Memory(); mem != nil {
		peak = uint64(mem.Size())
	}

	return &Result{
		Output:          output,
		FuelConsumed:    fuel.consumed(),
		PeakMemoryBytes: peak,
		Duration:        duration,
	}, nil
}

func invoke(ctx context.Context, mod api.Module, input []byte, fuel *fuelMeter) (out []byte, err error) {
	defer func() {
		if p := recover(); p != nil {
			if e, ok := p.(error); ok {
				err = e
			} else {
				err = fmt.Errorf("wasmrun: guest panic: %v", p)
			}
		}
	}()

	allocFn := mod.ExportedFunction("alloc")
	runFn := mod.ExportedFunction("run")
	if allocFn == nil || runFn == nil {
		return nil, ErrMissingExport
	}

	allocResults, err := allocFn.Call(ctx, uint64(len(input)))
	if err != nil {
		return nil, fmt.Errorf("wasmrun: alloc: %w", err)
	}
	inPtr := uint32(allocResults[0])

	mem := mod.Memory()
	if mem == nil {
		return nil, fmt.Errorf("wasmrun: module exports no memory")
	}
	if len(input) > 0 && !mem.Write(inPtr, input) {
		return nil, fmt.Errorf("wasmrun: write input out of bounds")
	}

	runResults, err := runFn.Call(ctx, uint64(inPtr), uint64(len(input)))
	if err != nil {
		return nil, fmt.Errorf("wasmrun: run: %w", err)
	}

	packed := runResults[0]
	outPtr := uint32(packed >> 32)
	outLen := uint32(packed)
	if outLen == 0 {
		return nil, nil
	}

	data, ok := mem.Read(outPtr, outLen)
	if !ok {
		return nil, fmt.Errorf("wasmrun: read output out of bounds")
	}

	out = make([]byte, len(data))
	copy(out, data)
	return out, nil
}
