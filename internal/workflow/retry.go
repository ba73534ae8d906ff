package workflow

import (
	"fmt"
	"strings"

	"github.com/boternity/boternity/pkg/models"
)

// RetryAction is what should happen next after a step fails and a retry
// is warranted.
type RetryAction struct {
	// SelfCorrect is true when the caller should send AnalysisPrompt to an
	// LLM before re-running the step; false means a plain re-run.
	SelfCorrect    bool
	AnalysisPrompt string
}

// ShouldRetry reports whether another attempt is warranted. attempt is
// 1-based: the first execution is attempt 1.
func ShouldRetry(config models.RetryConfig, attempt uint32) bool {
	return attempt < config.MaxAttempts
}

// PrepareRetry builds the RetryAction for a failed step. Simple strategy
// always reruns; LlmSelfCorrect builds a self-correction analysis prompt.
func PrepareRetry(config models.RetryConfig, step models.StepDefinition, stepErr string) RetryAction {
	if config.Strategy != models.RetryLLMSelfCorrect {
		return RetryAction{SelfCorrect: false}
	}
	return RetryAction{
		SelfCorrect:    true,
		AnalysisPrompt: BuildSelfCorrectPrompt(step.Name, step.Config, stepErr, 0, config.MaxAttempts),
	}
}

// BuildSelfCorrectPrompt builds the prompt sent to an LLM asking it to
// diagnose why a step failed and suggest a corrected approach for the next
// attempt. attempt is 0-based (the attempt that just failed).
func BuildSelfCorrectPrompt(stepName string, config models.StepConfig, stepErr string, attempt, maxAttempts uint32) string {
	summary := summarizeStepConfig(config)
	remaining := int(maxAttempts) - int(attempt+1)
	if remaining < 0 {
		remaining = 0
	}

	return fmt.Sprintf(
		"## Workflow Step Self-Correction Analysis\n\n"+
			"A workflow step has failed and needs your help to determine a better approach.\n\n"+
			"**Step:** %s\n"+
			"**Configuration:** %s\n"+
			"**Attempt:** %d of %d (%d remaining)\n"+
			"**Error:**\n```\n%s\n```\n\n"+
			"Please analyze this failure and suggest a corrected approach. Consider:\n"+
			"1. What went wrong in the previous attempt?\n"+
			"2. What should be different in the next attempt?\n"+
			"3. Is there a fundamental issue that retrying won't fix?\n\n"+
			"Provide a concise corrected instruction or approach for the next attempt.",
		stepName, summary, attempt+1, maxAttempts, remaining, stepErr,
	)
}

func summarizeStepConfig(config models.StepConfig) string {
	switch {
	case config.Agent != nil:
		model := config.Agent.Model
		if model == "" {
			model = "default"
		}
		return fmt.Sprintf("Agent step (bot=%s, model=%s, prompt=%q)", config.Agent.Bot, model, config.Agent.Prompt)
	case config.Skill != nil:
		input := config.Skill.Input
		if input == "" {
			input = "none"
		}
		return fmt.Sprintf("Skill step (skill=%s, input=%q)", config.Skill.Skill, input)
	case config.Code != nil:
		source := config.Code.Source
		if len(source) > 60 {
			source = source[:60] + "..."
		}
		return fmt.Sprintf("Code step (language=%s, source=%q)", strings.ToLower(config.Code.Language), source)
	case config.HTTP != nil:
		return fmt.Sprintf("HTTP step (%s %s)", config.HTTP.Method, config.HTTP.URL)
	case config.Conditional != nil:
		return fmt.Sprintf("Conditional step (condition=%q)", config.Conditional.Condition)
	case config.Loop != nil:
		max := "unlimited"
		if config.Loop.MaxIterations != nil {
			max = fmt.Sprintf("%d", *config.Loop.MaxIterations)
		}
		return fmt.Sprintf("Loop step (condition=%q, max_iterations=%s)", config.Loop.Condition, max)
	case config.Approval != nil:
		return fmt.Sprintf("Approval step (prompt=%q)", config.Approval.Prompt)
	case config.SubWorkflow != nil:
		return fmt.Sprintf("SubWorkflow step (workflow=%s)", config.SubWorkflow.WorkflowName)
	default:
		return "unknown step"
	}
}
