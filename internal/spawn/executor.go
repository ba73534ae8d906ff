package spawn

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/boternity/boternity/internal/agentctx"
	"github.com/boternity/boternity/internal/budget"
	"github.com/boternity/boternity/internal/loopguard"
)

// DefaultMaxDepth is spawn's own depth ceiling (spec.md §4.7), distinct
// from loopguard.DefaultMaxDepth (5): sub-agent spawning is capped
// tighter than bot-to-bot delegation.
const DefaultMaxDepth = 3

// ErrBudgetExhausted is returned for a child that was rejected because the
// shared token budget was already exhausted before it could be scheduled.
var ErrBudgetExhausted = errors.New("spawn: budget exhausted")

// ChildRunner executes a single child context to completion and reports
// the tokens it consumed. Implementations adapt this to whatever runs the
// actual agent loop (e.g. internal/agent.Runtime); kept as an interface so
// this package has no dependency on the concrete agent runtime.
type ChildRunner interface {
	RunChild(ctx context.Context, child *agentctx.Context) (result string, tokensUsed int, err error)
}

// ChildResult is one spawned child's outcome.
type ChildResult struct {
	AgentID string
	Task    string
	Index   int
	Result  string
	Err     error
}

// Spawner drives parallel/sequential sub-agent execution per spec.md §4.7:
// depth tracked via loopguard, budget consulted before each child is
// scheduled, events published on an EventBus.
type Spawner struct {
	guard    *loopguard.Guard
	bus      *EventBus
	runner   ChildRunner
	maxDepth int
}

// NewSpawner creates a Spawner. maxDepth <= 0 falls back to
// DefaultMaxDepth.
func NewSpawner(runner ChildRunner, bus *EventBus, maxDepth int) *Spawner {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	return &Spawner{
		guard:    loopguard.New(loopguard.Config{MaxDepth: maxDepth}),
		bus:      bus,
		runner:   runner,
		maxDepth: maxDepth,
	}
}

// Run executes instruction's tasks against parent, tracking depth under
// conversationID and consulting tracker before each child is scheduled.
// Results are returned in launch order regardless of completion order.
func (s *Spawner) Run(ctx context.Context, parent *agentctx.Context, instruction *Instruction, tracker *budget.Tracker, conversationID string) []ChildResult {
	if instruction == nil || len(instruction.Tasks) == 0 {
		return nil
	}

	total := len(instruction.Tasks)
	results := make([]ChildResult, total)

	switch instruction.Mode {
	case ModeSequential:
		for i, task := range instruction.Tasks {
			results[i] = s.runOne(ctx, parent, task, i, total, tracker, conversationID)
		}
	default: // ModeParallel, and the zero value
		var wg sync.WaitGroup
		wg.Add(total)
		for i, task := range instruction.Tasks {
			go func(i int, task string) {
				defer wg.Done()
				// Errors on one child must not cancel siblings: each
				// runOne call uses the shared ctx only for cancellation
				// propagation, never cancelling it itself.
				results[i] = s.runOne(ctx, parent, task, i, total, tracker, conversationID)
			}(i, task)
		}
		wg.Wait()
	}

	return results
}

func (s *Spawner) runOne(ctx context.Context, parent *agentctx.Context, task string, index, total int, tracker *budget.Tracker, conversationID string) ChildResult {
	if tracker != nil && tracker.IsExhausted() {
		s.publish(NewAgentEvent(EventBudgetExhausted, map[string]any{
			"completed":   index,
			"incomplete":  total - index,
		}))
		return ChildResult{Task: task, Index: index, Err: ErrBudgetExhausted}
	}

	depth, err := s.guard.TrackDepth(conversationID)
	if err != nil {
		s.publish(NewAgentEvent(EventDepthLimitReached, map[string]any{
			"conversation_id": conversationID,
			"task":            task,
			"max_depth":       s.maxDepth,
		}))
		return ChildResult{Task: task, Index: index, Err: err}
	}

	agentID := uuid.NewString()
	child := parent.ChildForTask(task, depth)

	s.publish(NewAgentEvent(EventAgentSpawned, map[string]any{
		"agent_id":  agentID,
		"parent_id": parent.Identity.BotID,
		"task":      task,
		"depth":     depth,
		"index":     index,
		"total":     total,
	}))

	select {
	case <-ctx.Done():
		s.publish(NewAgentEvent(EventAgentCancelled, map[string]any{"agent_id": agentID}))
		return ChildResult{AgentID: agentID, Task: task, Index: index, Err: ctx.Err()}
	default:
	}

	result, tokensUsed, err := s.runner.RunChild(ctx, child)
	if tracker != nil {
		tracker.RecordUsage(tokensUsed)
		if tracker.ShouldWarn() {
			s.publish(NewAgentEvent(EventBudgetWarning, map[string]any{"used": tracker.Used(), "total": tracker.Total()}))
		}
		s.publish(NewAgentEvent(EventBudgetUpdate, map[string]any{"used": tracker.Used(), "total": tracker.Total()}))
	}

	if err != nil {
		if errors.Is(err, context.Canceled) {
			s.publish(NewAgentEvent(EventAgentCancelled, map[string]any{"agent_id": agentID}))
		} else {
			s.publish(NewAgentEvent(EventAgentFailed, map[string]any{"agent_id": agentID, "error": err.Error(), "will_retry": false}))
		}
		return ChildResult{AgentID: agentID, Task: task, Index: index, Err: err}
	}

	s.publish(NewAgentEvent(EventAgentCompleted, map[string]any{"agent_id": agentID, "result": result}))
	return ChildResult{AgentID: agentID, Task: task, Index: index, Result: result}
}

func (s *Spawner) publish(ev AgentEvent) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(ev)
}
