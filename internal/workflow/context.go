package workflow

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// MaxStepOutputSize is the per-step output cap (1 MB). Outputs larger than
// this are replaced with a truncation marker before being stored.
const MaxStepOutputSize = 1_048_576

// MaxContextSize is the total cap (10 MB) across all step outputs,
// variables, and the trigger payload combined.
const MaxContextSize = 10_485_760

// Context is the mutable state that flows through one workflow run: step
// outputs, user-defined variables, and the payload that triggered the run.
// It supports `{{ ... }}` template resolution and JSON (de)serialization
// for checkpointing.
type Context struct {
	StepOutputs    map[string]json.RawMessage `json:"step_outputs"`
	Variables      map[string]json.RawMessage `json:"variables"`
	TriggerPayload json.RawMessage            `json:"trigger_payload,omitempty"`
	WorkflowName   string                     `json:"workflow_name"`
	RunID          uuid.UUID                  `json:"run_id"`
}

// NewContext creates an empty execution context for a run.
func NewContext(workflowName string, runID uuid.UUID, triggerPayload json.RawMessage) *Context {
	return &Context{
		StepOutputs:    make(map[string]json.RawMessage),
		Variables:      make(map[string]json.RawMessage),
		TriggerPayload: triggerPayload,
		WorkflowName:   workflowName,
		RunID:          runID,
	}
}

// SetStepOutput stores a completed step's output, keyed by step ID.
// Outputs larger than MaxStepOutputSize are replaced with a truncation
// marker (logged as a warning, not an error). Returns an error if the
// total context size would exceed MaxContextSize.
func (c *Context) SetStepOutput(logger *slog.Logger, stepID string, output any) error {
	serialized, err := json.Marshal(output)
	if err != nil {
		return fmt.Errorf("workflow: marshal step output: %w", err)
	}

	if len(serialized) > MaxStepOutputSize {
		if logger != nil {
			logger.Warn("step output exceeds size limit, truncating",
				"step_id", stepID, "size", len(serialized), "max", MaxStepOutputSize)
		}
		truncated, _ := json.Marshal(map[string]any{
			"_truncated":     true,
			"_original_size": len(serialized),
			"_message":       fmt.Sprintf("output exceeded %d byte limit and was truncated", MaxStepOutputSize),
		})
		c.StepOutputs[stepID] = truncated
	} else {
		c.StepOutputs[stepID] = serialized
	}

	if total := c.TotalSize(); total > MaxContextSize {
		return fmt.Errorf("workflow: total context size (%d bytes) exceeds maximum (%d bytes)", total, MaxContextSize)
	}
	return nil
}

// GetStepOutput returns a completed step's raw output, or nil if absent.
func (c *Context) GetStepOutput(stepID string) (json.RawMessage, bool) {
	v, ok := c.StepOutputs[stepID]
	return v, ok
}

// TotalSize computes the combined serialized size of all context data.
func (c *Context) TotalSize() int {
	total := 0
	for _, v := range c.StepOutputs {
		total += len(v)
	}
	for _, v := range c.Variables {
		total += len(v)
	}
	total += len(c.TriggerPayload)
	return total
}

// ToJSON serializes the entire context for checkpointing.
func (c *Context) ToJSON() ([]byte, error) {
	return json.Marshal(c)
}

// ContextFromJSON restores a context from a checkpointed JSON snapshot.
func ContextFromJSON(data []byte) (*Context, error) {
	var c Context
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("workflow: failed to restore context: %w", err)
	}
	if c.StepOutputs == nil {
		c.StepOutputs = make(map[string]json.RawMessage)
	}
	if c.Variables == nil {
		c.Variables = make(map[string]json.RawMessage)
	}
	return &c, nil
}

// ToExpressionContext builds the JSON shape used by condition/template
// expression evaluation:
//
//	{
//	  "steps": { "<step_id>": { "output": <value> }, ... },
//	  "trigger": <trigger payload or {}>,
//	  "variables": { ... },
//	  "workflow": { "name": "...", "run_id": "..." }
//	}
func (c *Context) ToExpressionContext() map[string]any {
	steps := make(map[string]any, len(c.StepOutputs))
	for id, output := range c.StepOutputs {
		var v any
		_ = json.Unmarshal(output, &v)
		steps[id] = map[string]any{"output": v}
	}

	var trigger any = map[string]any{}
	if len(c.TriggerPayload) > 0 {
		_ = json.Unmarshal(c.TriggerPayload, &trigger)
	}

	variables := make(map[string]any, len(c.Variables))
	for k, v := range c.Variables {
		var val any
		_ = json.Unmarshal(v, &val)
		variables[k] = val
	}

	return map[string]any{
		"steps":     steps,
		"trigger":   trigger,
		"variables": variables,
		"workflow": map[string]any{
			"name":   c.WorkflowName,
			"run_id": c.RunID.String(),
		},
	}
}

// templateRefPattern matches `{{ steps.<id>.output }}`, `{{ trigger.<field> }}`,
// and `{{ variables.<name> }}` references.
var templateRefPattern = regexp.MustCompile(`\{\{\s*(steps|trigger|variables)\.([^}]+?)\s*\}\}`)

// ResolveTemplate substitutes `{{ steps.<id>.output }}`,
// `{{ trigger.<field> }}`, and `{{ variables.<name> }}` references in
// template with their current values. Unknown references are left as-is
// rather than causing an error.
func (c *Context) ResolveTemplate(template string) string {
	triggerFields := c.triggerFields()
	return templateRefPattern.ReplaceAllStringFunc(template, func(match string) string {
		groups := templateRefPattern.FindStringSubmatch(match)
		kind, path := groups[1], groups[2]

		switch kind {
		case "steps":
			dot := strings.LastIndex(path, ".")
			if dot == -1 || path[dot+1:] != "output" {
				return match
			}
			stepID := path[:dot]
			if output, ok := c.StepOutputs[stepID]; ok {
				return valueToString(output)
			}
		case "trigger":
			if val, ok := triggerFields[path]; ok {
				return valueToString(val)
			}
		case "variables":
			if val, ok := c.Variables[path]; ok {
				return valueToString(val)
			}
		}
		return match
	})
}

func (c *Context) triggerFields() map[string]json.RawMessage {
	if len(c.TriggerPayload) == 0 {
		return nil
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(c.TriggerPayload, &m); err != nil {
		return nil
	}
	return m
}

func valueToString(raw json.RawMessage) string {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	switch val := v.(type) {
	case string:
		return val
	case nil:
		return "null"
	case bool:
		if val {
			return "true"
		}
		return "false"
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		out, _ := json.Marshal(val)
		return string(out)
	}
}
