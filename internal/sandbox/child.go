package sandbox

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/boternity/boternity/internal/wasmrun"
)

// RunChildProcess is the entry point cmd/boternity wires to ChildFlag. It
// reads a Request from stdin, applies this platform's restrictions via
// applyPlatformRestrictions, executes the WASM skill, and writes a
// Response to stdout. It never returns a non-nil error for failures
// inside the sandboxed execution itself — those are reported through
// Response.Error so the parent always gets valid JSON back.
func RunChildProcess(ctx context.Context, stdin io.Reader, stdout io.Writer) error {
	var req Request
	if err := json.NewDecoder(stdin).Decode(&req); err != nil {
		return writeResponse(stdout, &Response{Success: false, Error: fmt.Sprintf("decode request: %v", err)})
	}

	if err := applyPlatformRestrictions(req); err != nil {
		return writeResponse(stdout, &Response{Success: false, Error: fmt.Sprintf("apply sandbox restrictions: %v", err)})
	}

	wasmBytes, err := os.ReadFile(req.WasmPath)
	if err != nil {
		return writeResponse(stdout, &Response{Success: false, Error: fmt.Sprintf("read wasm: %v", err)})
	}

	limits := wasmrun.Limits{
		MaxMemoryBytes: req.MaxMemoryBytes,
		MaxFuel:        req.MaxFuel,
		MaxDuration:    durationFromRequest(req),
	}

	start := time.Now()
	rt := wasmrun.New(nil)
	result, err := rt.Execute(ctx, wasmBytes, []byte(req.Input), limits, nil)
	elapsed := time.Since(start)
	if err != nil {
		ms := elapsed.Milliseconds()
		return writeResponse(stdout, &Response{Success: false, Error: err.Error(), DurationMs: &ms})
	}

	fuel := result.FuelConsumed
	ms := elapsed.Milliseconds()
	return writeResponse(stdout, &Response{
		Success:      true,
		Output:       string(result.Output),
		FuelConsumed: &fuel,
		DurationMs:   &ms,
	})
}

func writeResponse(w io.Writer, resp *Response) error {
	return json.NewEncoder(w).Encode(resp)
}
