// Package fallback implements the ordered LLM provider pool described in
// spec.md's fallback chain: priority failover driven by per-provider
// circuit breakers, a built-in overridable cost table, and cost-warning
// events when routing diverges from the cheapest/primary provider.
//
// Grounded on internal/agent/routing/router.go's candidate-list
// construction and internal/agent/failover.go's retry/failover control
// flow, generalized to use internal/circuit for breaker state instead of an
// inline cooldown map.
package fallback

import (
	"context"
	"fmt"
	"sync"

	"github.com/boternity/boternity/internal/circuit"
	"github.com/boternity/boternity/internal/providers"
)

// DefaultCostWarningMultiplier is applied when a routed provider's cost
// exceeds this multiple of the highest-priority provider's cost.
const DefaultCostWarningMultiplier = 3.0

// Pricing is a (input, output) per-million-token rate pair.
type Pricing struct {
	InputPerMillion  float64
	OutputPerMillion float64
}

// candidate pairs a Provider with its priority rank (lower = preferred).
type candidate struct {
	provider providers.Provider
	priority int
}

// CostWarning is emitted (not returned as an error) when a non-primary
// provider was selected at a cost exceeding the configured multiplier.
type CostWarning struct {
	PrimaryProvider string
	ChosenProvider  string
	PrimaryCost     float64
	ChosenCost      float64
	Multiplier      float64
}

// WarningSink receives non-blocking cost warnings. Implementations should
// not block; the chain does not wait on them.
type WarningSink func(CostWarning)

// Config configures a Chain.
type Config struct {
	CostWarningMultiplier float64
	PricingTable          map[string]Pricing // keyed by provider name
	Breakers              *circuit.Registry
	OnCostWarning         WarningSink
}

// builtinPricing is the default, overridable per-million pricing table.
// Values are advisory mid-2020s figures per spec.md §8's documented
// disclaimer; callers should override via Config.PricingTable.
var builtinPricing = map[string]Pricing{
	"anthropic": {InputPerMillion: 3.00, OutputPerMillion: 15.00},
	"openai":    {InputPerMillion: 2.50, OutputPerMillion: 10.00},
	"bedrock":   {InputPerMillion: 3.00, OutputPerMillion: 15.00},
}

// Chain is an ordered, circuit-breaker-aware LLM provider pool.
type Chain struct {
	mu         sync.RWMutex
	candidates []candidate
	cfg        Config
}

// New creates an empty Chain. Add providers with AddProvider in priority
// order (first added is highest priority).
func New(cfg Config) *Chain {
	if cfg.CostWarningMultiplier <= 0 {
		cfg.CostWarningMultiplier = DefaultCostWarningMultiplier
	}
	if cfg.Breakers == nil {
		cfg.Breakers = circuit.NewRegistry(circuit.Config{})
	}
	if cfg.PricingTable == nil {
		cfg.PricingTable = builtinPricing
	}
	return &Chain{cfg: cfg}
}

// AddProvider appends a provider at the next priority rank.
func (c *Chain) AddProvider(p providers.Provider) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.candidates = append(c.candidates, candidate{provider: p, priority: len(c.candidates)})
}

func (c *Chain) snapshot() []candidate {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]candidate, len(c.candidates))
	copy(out, c.candidates)
	return out
}

// pricingFor looks up the pricing entry for a provider name, returning the
// zero value (treated as free/unknown) if absent.
func (c *Chain) pricingFor(name string) Pricing {
	if p, ok := c.cfg.PricingTable[name]; ok {
		return p
	}
	return Pricing{}
}

func estimatedCost(p Pricing, inputTokens, outputTokens int) float64 {
	return float64(inputTokens)/1e6*p.InputPerMillion + float64(outputTokens)/1e6*p.OutputPerMillion
}

// emitCostWarningIfDiverged implements spec.md §4.4's cost policy: when the
// chosen provider differs from the highest-priority one and its estimated
// cost for a representative request exceeds CostWarningMultiplier times the
// primary's cost, fire a non-blocking warning.
func (c *Chain) emitCostWarningIfDiverged(primary, chosen string, inputTokens, outputTokens int) {
	if primary == chosen || c.cfg.OnCostWarning == nil {
		return
	}
	primaryCost := estimatedCost(c.pricingFor(primary), inputTokens, outputTokens)
	chosenCost := estimatedCost(c.pricingFor(chosen), inputTokens, outputTokens)
	if primaryCost <= 0 {
		return
	}
	if chosenCost > c.cfg.CostWarningMultiplier*primaryCost {
		c.cfg.OnCostWarning(CostWarning{
			PrimaryProvider: primary,
			ChosenProvider:  chosen,
			PrimaryCost:     primaryCost,
			ChosenCost:      chosenCost,
			Multiplier:      c.cfg.CostWarningMultiplier,
		})
	}
}

// Result carries a completion response along with which provider served it.
type Result struct {
	Provider string
	Response *providers.Response
}

// Complete iterates providers in priority order, skipping unhealthy ones,
// and returns the first successful completion. Non-failover errors abort
// immediately without trying the remaining providers.
func (c *Chain) Complete(ctx context.Context, req *providers.Request) (*Result, error) {
	candidates := c.snapshot()
	if len(candidates) == 0 {
		return nil, fmt.Errorf("fallback: no providers configured")
	}
	primary := candidates[0].provider.Name()

	var lastErr error
	var lastName string
	for _, cd := range candidates {
		name := cd.provider.Name()
		breaker := c.cfg.Breakers.For(name)
		if !breaker.Allow() {
			continue
		}

		resp, err := cd.provider.Complete(ctx, req)
		if err == nil {
			breaker.RecordSuccess()
			c.emitCostWarningIfDiverged(primary, name, resp.Usage.InputTokens, resp.Usage.OutputTokens)
			return &Result{Provider: name, Response: resp}, nil
		}

		reason := providers.ClassifyAny(err)
		breaker.RecordFailure(circuit.FailoverReason(reason))
		lastErr = err
		lastName = name

		if !reason.ShouldFailover() {
			return nil, fmt.Errorf("fallback: %s returned non-failover error: %w", name, err)
		}
	}

	if lastErr == nil {
		return nil, fmt.Errorf("fallback: all providers unavailable")
	}
	return nil, fmt.Errorf("fallback: exhausted all providers, last tried %s: %w", lastName, lastErr)
}

// StreamResult carries a streaming channel along with which provider is
// serving it.
type StreamResult struct {
	Provider string
	Chunks   <-chan *providers.Chunk
}

// Stream performs the same provider selection as Complete, but returns a
// streaming channel. Per spec.md §4.4, once a stream starts the chain does
// not retry mid-response on a later failure — the consumer has already
// seen partial output.
func (c *Chain) Stream(ctx context.Context, req *providers.Request) (*StreamResult, error) {
	candidates := c.snapshot()
	if len(candidates) == 0 {
		return nil, fmt.Errorf("fallback: no providers configured")
	}
	primary := candidates[0].provider.Name()

	var lastErr error
	var lastName string
	for _, cd := range candidates {
		name := cd.provider.Name()
		breaker := c.cfg.Breakers.For(name)
		if !breaker.Allow() {
			continue
		}

		chunks, err := cd.provider.Stream(ctx, req)
		if err == nil {
			breaker.RecordSuccess()
			c.emitCostWarningIfDiverged(primary, name, 0, 0)
			return &StreamResult{Provider: name, Chunks: chunks}, nil
		}

		reason := providers.ClassifyAny(err)
		breaker.RecordFailure(circuit.FailoverReason(reason))
		lastErr = err
		lastName = name

		if !reason.ShouldFailover() {
			return nil, fmt.Errorf("fallback: %s returned non-failover error: %w", name, err)
		}
	}

	if lastErr == nil {
		return nil, fmt.Errorf("fallback: all providers unavailable")
	}
	return nil, fmt.Errorf("fallback: exhausted all providers, last tried %s: %w", lastName, lastErr)
}
