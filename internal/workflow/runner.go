package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/boternity/boternity/pkg/models"
	"github.com/google/uuid"
)

// DefaultMaxSubWorkflowDepth bounds SubWorkflow step nesting so a cyclic
// reference between workflow definitions can't recurse forever.
const DefaultMaxSubWorkflowDepth = 5

// DefaultConcurrency bounds how many steps in one wave run at once when a
// WorkflowDefinition doesn't set Concurrency.
const DefaultConcurrency = 4

// ErrAwaitingApproval is returned by Run when it reaches an Approval step.
// The step's log entry is checkpointed as waiting_approval; the run itself
// is recorded as Failed, since WorkflowRunStatus has no waiting state. Run
// has no input for recording an approval, so running the same definition
// again stops at the same Approval step.
var ErrAwaitingApproval = fmt.Errorf("workflow: run is waiting on human approval")

// WorkflowLookup resolves a workflow definition by name, used to execute
// SubWorkflow steps.
type WorkflowLookup interface {
	GetWorkflow(name string) (*models.WorkflowDefinition, error)
}

// Runner executes a WorkflowDefinition: plans its DAG into waves,
// dispatches each wave's steps to a StepExecutor, applies retry policy on
// failure, and checkpoints every transition through a CheckpointManager.
type Runner struct {
	checkpoint *CheckpointManager
	executor   StepExecutor
	workflows  WorkflowLookup
	logger     *slog.Logger
	maxDepth   uint32
}

// NewRunner builds a Runner. workflows may be nil if the caller never uses
// SubWorkflow steps. logger may be nil.
func NewRunner(checkpoint *CheckpointManager, executor StepExecutor, workflows WorkflowLookup, logger *slog.Logger) *Runner {
	return &Runner{checkpoint: checkpoint, executor: executor, workflows: workflows, logger: logger, maxDepth: DefaultMaxSubWorkflowDepth}
}

// Run executes def as run runID, triggered by triggerPayload (nil for a
// manual trigger with no payload). depth tracks SubWorkflow nesting and
// should be 0 for a top-level run.
func (r *Runner) Run(ctx context.Context, def *models.WorkflowDefinition, runID uuid.UUID, triggerPayload []byte, depth uint32) (*Context, error) {
	if depth > r.maxDepth {
		return nil, &SubWorkflowDepthExceededError{Depth: depth, Max: r.maxDepth}
	}

	wfCtx := NewContext(def.Name, runID, triggerPayload)
	allSteps := make(map[string]models.StepDefinition, len(def.Steps))
	for _, s := range def.Steps {
		allSteps[s.ID] = s
	}

	if r.checkpoint != nil {
		if err := r.checkpoint.RunStatus(ctx, runID, models.WorkflowRunRunning, "", nil); err != nil {
			return nil, err
		}
	}

	waves, err := BuildExecutionPlan(def.Steps)
	if err != nil {
		r.failRun(ctx, runID, wfCtx, err)
		return wfCtx, err
	}

	skipped := make(map[string]bool)
	branchOf, loopOf := branchMembership(def.Steps)

	concurrency := DefaultConcurrency
	if def.Concurrency != nil {
		concurrency = int(*def.Concurrency)
	}

	for _, wave := range waves {
		active := make([]models.StepDefinition, 0, len(wave))
		for _, step := range wave {
			if stepSkipped(step, skipped, branchOf, loopOf) {
				skipped[step.ID] = true
				if r.checkpoint != nil {
					_ = r.checkpoint.StepSkipped(ctx, runID, step.ID, step.Name)
				}
				continue
			}
			active = append(active, step)
		}

		if err := r.runWave(ctx, runID, wfCtx, active, skipped, depth, concurrency, allSteps); err != nil {
			r.failRun(ctx, runID, wfCtx, err)
			return wfCtx, err
		}
	}

	if r.checkpoint != nil {
		snapshot, _ := wfCtx.ToJSON()
		_ = r.checkpoint.RunStatus(ctx, runID, models.WorkflowRunCompleted, "", snapshot)
	}
	return wfCtx, nil
}

func (r *Runner) failRun(ctx context.Context, runID uuid.UUID, wfCtx *Context, err error) {
	if r.checkpoint == nil {
		return
	}
	snapshot, _ := wfCtx.ToJSON()
	_ = r.checkpoint.RunStatus(ctx, runID, models.WorkflowRunFailed, err.Error(), snapshot)
}

// runWave executes all steps of one wave concurrently, bounded by
// concurrency, stopping at the first step failure after letting its
// siblings in the wave finish.
func (r *Runner) runWave(ctx context.Context, runID uuid.UUID, wfCtx *Context, steps []models.StepDefinition, skipped map[string]bool, depth uint32, concurrency int, allSteps map[string]models.StepDefinition) error {
	if len(steps) == 0 {
		return nil
	}
	if concurrency < 1 {
		concurrency = 1
	}
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error

	for _, step := range steps {
		step := step
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			out, err := r.runStep(ctx, runID, wfCtx, step, skipped, depth, allSteps)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstErr == nil {
					firstErr = fmt.Errorf("step %q failed: %w", step.ID, err)
				}
				return
			}
			if setErr := wfCtx.SetStepOutput(r.logger, step.ID, out); setErr != nil && firstErr == nil {
				firstErr = setErr
			}
		}()
	}

	wg.Wait()
	return firstErr
}

// runStep executes one step, applying its retry policy on failure. It
// also resolves Conditional/Loop control flow by mutating skipped in
// place so later waves know which branch/iteration steps to run.
func (r *Runner) runStep(ctx context.Context, runID uuid.UUID, wfCtx *Context, step models.StepDefinition, skipped map[string]bool, depth uint32, allSteps map[string]models.StepDefinition) (any, error) {
	var logID uuid.UUID
	if r.checkpoint != nil {
		id, err := r.checkpoint.StepStart(ctx, runID, step.ID, step.Name, 1)
		if err != nil {
			return nil, err
		}
		logID = id
	}

	out, err := r.dispatchStep(ctx, wfCtx, step, skipped, depth, allSteps)

	attempt := uint32(1)
	for err != nil && step.Retry != nil && ShouldRetry(*step.Retry, attempt) {
		action := PrepareRetry(*step.Retry, step, err.Error())
		retryStep := step
		if action.SelfCorrect && step.Config.Agent != nil {
			correction, correctErr := r.executor.ExecuteAgent(ctx, step.Config.Agent.Bot, action.AnalysisPrompt, step.Config.Agent.Model)
			if correctErr == nil {
				if text, ok := correction["response"].(string); ok && text != "" {
					patched := *step.Config.Agent
					patched.Prompt = text
					retryStep.Config.Agent = &patched
				}
			}
		}
		attempt++
		out, err = r.dispatchStep(ctx, wfCtx, retryStep, skipped, depth, allSteps)
	}

	if r.checkpoint != nil && logID != uuid.Nil {
		if err == ErrAwaitingApproval {
			_ = r.checkpoint.StepWaitingApproval(ctx, logID)
		} else if err != nil {
			_ = r.checkpoint.StepFailed(ctx, logID, err.Error())
		} else {
			serialized, _ := marshalAny(out)
			_ = r.checkpoint.StepComplete(ctx, logID, serialized)
		}
	}
	return out, err
}

func (r *Runner) dispatchStep(ctx context.Context, wfCtx *Context, step models.StepDefinition, skipped map[string]bool, depth uint32, allSteps map[string]models.StepDefinition) (any, error) {
	switch step.StepType {
	case models.StepTypeAgent:
		if step.Config.Agent == nil {
			return nil, fmt.Errorf("agent step %q missing config", step.ID)
		}
		prompt := wfCtx.ResolveTemplate(step.Config.Agent.Prompt)
		return r.executor.ExecuteAgent(ctx, step.Config.Agent.Bot, prompt, step.Config.Agent.Model)

	case models.StepTypeSkill:
		if step.Config.Skill == nil {
			return nil, fmt.Errorf("skill step %q missing config", step.ID)
		}
		input := wfCtx.ResolveTemplate(step.Config.Skill.Input)
		return r.executor.ExecuteSkill(ctx, step.Config.Skill.Skill, input)

	case models.StepTypeHTTP:
		if step.Config.HTTP == nil {
			return nil, fmt.Errorf("http step %q missing config", step.ID)
		}
		headers := make(map[string]string, len(step.Config.HTTP.Headers))
		for k, v := range step.Config.HTTP.Headers {
			headers[k] = wfCtx.ResolveTemplate(v)
		}
		body := wfCtx.ResolveTemplate(step.Config.HTTP.Body)
		return r.executor.ExecuteHTTP(ctx, step.Config.HTTP.Method, step.Config.HTTP.URL, headers, body)

	case models.StepTypeConditional:
		return r.dispatchConditional(wfCtx, step, skipped)

	case models.StepTypeLoop:
		return r.dispatchLoop(ctx, runIDFromContext(wfCtx), wfCtx, step, skipped, depth, allSteps)

	case models.StepTypeApproval:
		return nil, ErrAwaitingApproval

	case models.StepTypeSubWorkflow:
		return r.dispatchSubWorkflow(ctx, wfCtx, step, depth)

	default:
		return nil, fmt.Errorf("unknown step type %q", step.StepType)
	}
}

func (r *Runner) dispatchConditional(wfCtx *Context, step models.StepDefinition, skipped map[string]bool) (any, error) {
	cfg := step.Config.Conditional
	resolved := wfCtx.ResolveTemplate(cfg.Condition)
	taken := evaluateCondition(resolved)

	var skipSteps []string
	if taken {
		skipSteps = cfg.ElseSteps
	} else {
		skipSteps = cfg.ThenSteps
	}
	for _, id := range skipSteps {
		skipped[id] = true
	}

	branch := "else"
	if taken {
		branch = "then"
	}
	return map[string]any{"type": "conditional", "branch": branch, "condition": resolved}, nil
}

// dispatchLoop re-runs a loop step's body steps directly (outside the
// outer wave plan) for as long as Condition holds, up to MaxIterations.
// Because body steps are executed here, the outer plan marks them skipped
// when it reaches their wave.
func (r *Runner) dispatchLoop(ctx context.Context, runID uuid.UUID, wfCtx *Context, step models.StepDefinition, skipped map[string]bool, depth uint32, allSteps map[string]models.StepDefinition) (any, error) {
	cfg := step.Config.Loop
	for _, id := range cfg.BodySteps {
		skipped[id] = true
	}

	bodyByID := make(map[string]models.StepDefinition, len(cfg.BodySteps))
	for _, id := range cfg.BodySteps {
		if s, ok := allSteps[id]; ok {
			bodyByID[id] = s
		}
	}

	iterations := 0
	for {
		resolved := wfCtx.ResolveTemplate(cfg.Condition)
		if !evaluateCondition(resolved) {
			break
		}
		if cfg.MaxIterations != nil && uint32(iterations) >= *cfg.MaxIterations {
			break
		}

		for _, id := range cfg.BodySteps {
			bodyStep, ok := bodyByID[id]
			if !ok {
				continue
			}
			out, err := r.runStep(ctx, runID, wfCtx, bodyStep, skipped, depth, allSteps)
			if err != nil {
				return nil, fmt.Errorf("loop %q iteration %d: %w", step.ID, iterations, err)
			}
			if err := wfCtx.SetStepOutput(r.logger, bodyStep.ID, out); err != nil {
				return nil, err
			}
		}
		iterations++
	}

	return map[string]any{"type": "loop", "iterations": iterations}, nil
}

func (r *Runner) dispatchSubWorkflow(ctx context.Context, wfCtx *Context, step models.StepDefinition, depth uint32) (any, error) {
	if r.workflows == nil {
		return nil, fmt.Errorf("sub-workflow step %q: no workflow lookup configured", step.ID)
	}
	cfg := step.Config.SubWorkflow
	sub, err := r.workflows.GetWorkflow(cfg.WorkflowName)
	if err != nil {
		return nil, fmt.Errorf("sub-workflow %q: %w", cfg.WorkflowName, err)
	}

	subRunID := uuid.New()
	subCtx, err := r.Run(ctx, sub, subRunID, nil, depth+1)
	if err != nil {
		return nil, fmt.Errorf("sub-workflow %q: %w", cfg.WorkflowName, err)
	}

	var lastOutput any
	if len(sub.Steps) > 0 {
		lastID := sub.Steps[len(sub.Steps)-1].ID
		if raw, ok := subCtx.GetStepOutput(lastID); ok {
			_ = unmarshalAny(raw, &lastOutput)
		}
	}
	return map[string]any{"type": "sub_workflow", "workflow": cfg.WorkflowName, "output": lastOutput}, nil
}

// branchMembership indexes which steps are exclusively reachable through a
// Conditional branch or a Loop body, so the runner can pre-skip the
// branch/iteration that wasn't selected.
func branchMembership(steps []models.StepDefinition) (branchOf, loopOf map[string]string) {
	branchOf = make(map[string]string)
	loopOf = make(map[string]string)
	for _, s := range steps {
		switch {
		case s.Config.Conditional != nil:
			for _, id := range s.Config.Conditional.ThenSteps {
				branchOf[id] = s.ID
			}
			for _, id := range s.Config.Conditional.ElseSteps {
				branchOf[id] = s.ID
			}
		case s.Config.Loop != nil:
			for _, id := range s.Config.Loop.BodySteps {
				loopOf[id] = s.ID
			}
		}
	}
	return
}

// stepSkipped reports whether step should be skipped because a dependency
// was skipped, because it belongs to a loop body (loops run their body
// steps directly, not through the outer wave plan), or because it was
// already marked skipped by a conditional's branch selection.
func stepSkipped(step models.StepDefinition, skipped map[string]bool, branchOf, loopOf map[string]string) bool {
	if skipped[step.ID] {
		return true
	}
	if _, isLoopBody := loopOf[step.ID]; isLoopBody {
		return true
	}
	for _, dep := range step.DependsOn {
		if skipped[dep] {
			return true
		}
	}
	if parent, ok := branchOf[step.ID]; ok && skipped[parent] {
		return true
	}
	return false
}

// evaluateCondition interprets a resolved condition string. It recognizes
// `a == b` / `a != b` comparisons (after template substitution, both sides
// are plain values) and otherwise treats non-empty, non-"false" text as
// truthy. There is no general expression language here: conditions are
// expected to already have their step/trigger/variable references
// resolved by ResolveTemplate before reaching this function.
func evaluateCondition(resolved string) bool {
	resolved = strings.TrimSpace(resolved)
	for _, op := range []string{"==", "!="} {
		if idx := strings.Index(resolved, op); idx != -1 {
			left := unquote(strings.TrimSpace(resolved[:idx]))
			right := unquote(strings.TrimSpace(resolved[idx+len(op):]))
			eq := left == right
			if op == "!=" {
				return !eq
			}
			return eq
		}
	}
	switch strings.ToLower(resolved) {
	case "", "false", "0":
		return false
	}
	if b, err := strconv.ParseBool(resolved); err == nil {
		return b
	}
	return true
}

func unquote(s string) string {
	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'') && s[len(s)-1] == s[0] {
		return s[1 : len(s)-1]
	}
	return s
}

func runIDFromContext(wfCtx *Context) uuid.UUID { return wfCtx.RunID }

func marshalAny(v any) ([]byte, error) { return json.Marshal(v) }

func unmarshalAny(data []byte, v any) error { return json.Unmarshal(data, v) }
