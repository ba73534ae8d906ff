package sandbox

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/boternity/boternity/internal/skills"
	"github.com/boternity/boternity/internal/wasmrun"
)

func TestShouldUseOSSandboxOnlyForUntrusted(t *testing.T) {
	cases := []struct {
		tier skills.TrustTier
		want bool
	}{
		{skills.TrustLocal, false},
		{skills.TrustVerified, false},
		{skills.TrustUntrusted, true},
	}
	for _, c := range cases {
		if got := ShouldUseOSSandbox(c.tier); got != c.want {
			t.Errorf("ShouldUseOSSandbox(%v) = %v, want %v", c.tier, got, c.want)
		}
	}
}

func TestBuildConfigForSkillIsRestrictiveByDefault(t *testing.T) {
	cfg := BuildConfigForSkill("/opt/skills/echo/echo.wasm", []byte("hi"), skills.TrustUntrusted, wasmrun.DefaultLimits())

	if cfg.AllowNetwork {
		t.Error("expected network to be denied by default")
	}
	if len(cfg.WritablePaths) != 0 {
		t.Errorf("expected no writable paths by default, got %v", cfg.WritablePaths)
	}
	if len(cfg.ReadablePaths) != 1 || cfg.ReadablePaths[0] != "/opt/skills/echo" {
		t.Errorf("expected readable paths to be the wasm's own directory, got %v", cfg.ReadablePaths)
	}
	if cfg.TrustTier != skills.TrustUntrusted {
		t.Errorf("TrustTier = %v, want Untrusted", cfg.TrustTier)
	}
}

func TestConfigToRequestCarriesResourceLimits(t *testing.T) {
	limits := wasmrun.Limits{MaxMemoryBytes: 32 * 1024 * 1024, MaxFuel: 500_000, MaxDuration: 10 * time.Second}
	cfg := BuildConfigForSkill("/opt/skills/echo/echo.wasm", []byte("payload"), skills.TrustUntrusted, limits)

	req := cfg.toRequest()
	if req.WasmPath != cfg.WasmPath {
		t.Errorf("WasmPath = %q, want %q", req.WasmPath, cfg.WasmPath)
	}
	if req.Input != "payload" {
		t.Errorf("Input = %q, want %q", req.Input, "payload")
	}
	if req.MaxMemoryBytes != limits.MaxMemoryBytes || req.MaxFuel != limits.MaxFuel {
		t.Errorf("resource limits did not carry through: %+v", req)
	}
	if req.MaxDurationMs != 10_000 {
		t.Errorf("MaxDurationMs = %d, want 10000", req.MaxDurationMs)
	}
}

func TestDurationFromRequestRoundTrips(t *testing.T) {
	req := Request{MaxDurationMs: 2_500}
	if got := durationFromRequest(req); got != 2500*time.Millisecond {
		t.Errorf("durationFromRequest() = %v, want 2.5s", got)
	}
}

func TestRequestSerializesWithSnakeCaseFields(t *testing.T) {
	req := Request{
		WasmPath:       "/opt/skills/echo/echo.wasm",
		Input:          "hi",
		TrustTier:      skills.TrustUntrusted,
		MaxMemoryBytes: 1024,
		MaxFuel:        100,
		MaxDurationMs:  1000,
	}
	data, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var roundTripped Request
	if err := json.Unmarshal(data, &roundTripped); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if roundTripped != req {
		t.Errorf("round trip mismatch: got %+v, want %+v", roundTripped, req)
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("Unmarshal to map failed: %v", err)
	}
	for _, field := range []string{"wasm_path", "input", "trust_tier", "max_memory_bytes", "max_fuel", "max_duration_ms"} {
		if _, ok := raw[field]; !ok {
			t.Errorf("expected JSON field %q to be present, got %v", field, raw)
		}
	}
}

func TestResponseSuccessOmitsErrorField(t *testing.T) {
	fuel := uint64(42)
	duration := int64(12)
	resp := Response{Success: true, Output: "result", FuelConsumed: &fuel, DurationMs: &duration}

	data, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if _, ok := raw["error"]; ok {
		t.Errorf("expected no error field on success, got %v", raw)
	}
	if raw["output"] != "result" {
		t.Errorf("output = %v, want %q", raw["output"], "result")
	}
}

func TestResponseFailureOmitsOutputAndStats(t *testing.T) {
	resp := Response{Success: false, Error: "fuel exhausted"}

	data, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	for _, field := range []string{"output", "fuel_consumed", "duration_ms"} {
		if _, ok := raw[field]; ok {
			t.Errorf("expected field %q to be omitted on failure, got %v", field, raw)
		}
	}
	if raw["error"] != "fuel exhausted" {
		t.Errorf("error = %v, want %q", raw["error"], "fuel exhausted")
	}
}
