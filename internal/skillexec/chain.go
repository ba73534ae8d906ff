package skillexec

import (
	"context"
	"errors"
	"fmt"

	"github.com/boternity/boternity/internal/skills"
	"github.com/boternity/boternity/pkg/models"
)

// ErrEmptyChain is returned by ChainSkills when given no skills.
var ErrEmptyChain = errors.New("skillexec: skill chain must contain at least one skill")

// Executor runs a single installed skill and returns its result.
type Executor interface {
	Execute(ctx context.Context, skill *models.InstalledSkill, input string, enforcer *skills.CapabilityEnforcer) (*Result, error)
}

// ChainSkills runs skills sequentially, piping each skill's output as the
// next skill's input. initialInput feeds the first skill. The returned
// Result carries the last skill's output with fuel, peak memory, and
// duration accumulated across the whole chain.
func ChainSkills(ctx context.Context, executor Executor, chain []*models.InstalledSkill, initialInput string, enforcer *skills.CapabilityEnforcer) (*Result, error) {
	if len(chain) == 0 {
		return nil, ErrEmptyChain
	}

	currentInput := initialInput
	var totalFuel uint64
	var haveFuel bool
	var peakMemory *uint64
	var totalDuration int64 // nanoseconds, summed via time.Duration below

	for i, skill := range chain {
		result, err := executor.Execute(ctx, skill, currentInput, enforcer)
		if err != nil {
			return nil, fmt.Errorf("skillexec: skill chain failed at position %d (skill %q): %w", i, skill.Name, err)
		}

		if result.FuelConsumed != nil {
			totalFuel += *result.FuelConsumed
			haveFuel = true
		}

		if result.MemoryPeakBytes != nil {
			if peakMemory == nil || *result.MemoryPeakBytes > *peakMemory {
				v := *result.MemoryPeakBytes
				peakMemory = &v
			}
		}

		totalDuration += result.Duration.Nanoseconds()
		currentInput = result.Output
	}

	final := &Result{
		Output:          currentInput,
		MemoryPeakBytes: peakMemory,
		Duration:        nsToDuration(totalDuration),
	}
	if haveFuel {
		final.FuelConsumed = &totalFuel
	}
	return final, nil
}
