package models

import (
	"time"

	"github.com/google/uuid"
)

// WorkflowOwner attributes a workflow definition to either the global
// workspace or a single bot. Only Slug/BotID are meaningful when Type is
// WorkflowOwnerBot.
type WorkflowOwner struct {
	Type  string    `json:"type" yaml:"type"`
	BotID uuid.UUID `json:"bot_id,omitempty" yaml:"bot_id,omitempty"`
	Slug  string    `json:"slug,omitempty" yaml:"slug,omitempty"`
}

const (
	WorkflowOwnerGlobal = "global"
	WorkflowOwnerBot    = "bot"
)

// GlobalWorkflowOwner returns the owner value for a workspace-wide workflow.
func GlobalWorkflowOwner() WorkflowOwner {
	return WorkflowOwner{Type: WorkflowOwnerGlobal}
}

// BotWorkflowOwner returns the owner value for a workflow scoped to one bot.
func BotWorkflowOwner(botID uuid.UUID, slug string) WorkflowOwner {
	return WorkflowOwner{Type: WorkflowOwnerBot, BotID: botID, Slug: slug}
}

// TriggerConfig describes one way a workflow run can be started. Only the
// fields relevant to Type are populated.
type TriggerConfig struct {
	Type     string `json:"type" yaml:"type"`
	Schedule string `json:"schedule,omitempty" yaml:"schedule,omitempty"`
}

const (
	TriggerManual  = "manual"
	TriggerCron    = "cron"
	TriggerWebhook = "webhook"
)

// StepType identifies which of StepConfig's variants a step uses.
type StepType string

const (
	StepTypeAgent       StepType = "agent"
	StepTypeSkill       StepType = "skill"
	StepTypeCode        StepType = "code"
	StepTypeHTTP        StepType = "http"
	StepTypeConditional StepType = "conditional"
	StepTypeLoop        StepType = "loop"
	StepTypeApproval    StepType = "approval"
	StepTypeSubWorkflow StepType = "sub_workflow"
)

// AgentStepConfig sends a prompt to a bot and records its reply as the
// step's output.
type AgentStepConfig struct {
	Bot    string `json:"bot" yaml:"bot"`
	Prompt string `json:"prompt" yaml:"prompt"`
	Model  string `json:"model,omitempty" yaml:"model,omitempty"`
}

// SkillStepConfig invokes an installed skill by name.
type SkillStepConfig struct {
	Skill string `json:"skill" yaml:"skill"`
	Input string `json:"input,omitempty" yaml:"input,omitempty"`
}

// CodeStepConfig runs an inline script through a WASM-sandboxed interpreter.
type CodeStepConfig struct {
	Language string `json:"language" yaml:"language"`
	Source   string `json:"source" yaml:"source"`
}

// HTTPStepConfig issues a single outbound HTTP request.
type HTTPStepConfig struct {
	Method  string            `json:"method" yaml:"method"`
	URL     string            `json:"url" yaml:"url"`
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	Body    string            `json:"body,omitempty" yaml:"body,omitempty"`
}

// ConditionalStepConfig branches to ThenSteps or ElseSteps depending on
// whether Condition evaluates truthy against the run's expression context.
type ConditionalStepConfig struct {
	Condition string   `json:"condition" yaml:"condition"`
	ThenSteps []string `json:"then_steps,omitempty" yaml:"then_steps,omitempty"`
	ElseSteps []string `json:"else_steps,omitempty" yaml:"else_steps,omitempty"`
}

// LoopStepConfig repeats BodySteps while Condition holds, up to
// MaxIterations (unbounded if nil).
type LoopStepConfig struct {
	Condition     string   `json:"condition" yaml:"condition"`
	MaxIterations *uint32  `json:"max_iterations,omitempty" yaml:"max_iterations,omitempty"`
	BodySteps     []string `json:"body_steps,omitempty" yaml:"body_steps,omitempty"`
}

// ApprovalStepConfig pauses the run until a human approves or rejects it.
type ApprovalStepConfig struct {
	Prompt      string  `json:"prompt" yaml:"prompt"`
	TimeoutSecs *uint64 `json:"timeout_secs,omitempty" yaml:"timeout_secs,omitempty"`
}

// SubWorkflowStepConfig runs another workflow definition to completion and
// uses its final step output as this step's output.
type SubWorkflowStepConfig struct {
	WorkflowName string `json:"workflow_name" yaml:"workflow_name"`
}

// StepConfig is a tagged union of per-step-type configuration. Exactly one
// field should be populated, matching the owning StepDefinition's StepType.
type StepConfig struct {
	Agent       *AgentStepConfig       `json:"agent,omitempty" yaml:"agent,omitempty"`
	Skill       *SkillStepConfig       `json:"skill,omitempty" yaml:"skill,omitempty"`
	Code        *CodeStepConfig        `json:"code,omitempty" yaml:"code,omitempty"`
	HTTP        *HTTPStepConfig        `json:"http,omitempty" yaml:"http,omitempty"`
	Conditional *ConditionalStepConfig `json:"conditional,omitempty" yaml:"conditional,omitempty"`
	Loop        *LoopStepConfig        `json:"loop,omitempty" yaml:"loop,omitempty"`
	Approval    *ApprovalStepConfig    `json:"approval,omitempty" yaml:"approval,omitempty"`
	SubWorkflow *SubWorkflowStepConfig `json:"sub_workflow,omitempty" yaml:"sub_workflow,omitempty"`
}

// RetryStrategy selects how a failed step is retried.
type RetryStrategy string

const (
	RetrySimple         RetryStrategy = "simple"
	RetryLLMSelfCorrect RetryStrategy = "llm_self_correct"
)

// RetryConfig governs retry behavior for a single step.
type RetryConfig struct {
	Strategy    RetryStrategy `json:"strategy" yaml:"strategy"`
	MaxAttempts uint32        `json:"max_attempts" yaml:"max_attempts"`
}

// DefaultRetryMaxAttempts is used when a RetryConfig omits max_attempts.
const DefaultRetryMaxAttempts uint32 = 3

// StepUI carries optional presentation hints for dashboards; the engine
// never reads it.
type StepUI struct {
	Label string `json:"label,omitempty" yaml:"label,omitempty"`
	Icon  string `json:"icon,omitempty" yaml:"icon,omitempty"`
}

// StepDefinition is one node in a workflow's DAG.
type StepDefinition struct {
	ID          string       `json:"id" yaml:"id"`
	Name        string       `json:"name" yaml:"name"`
	StepType    StepType     `json:"type" yaml:"type"`
	DependsOn   []string     `json:"depends_on,omitempty" yaml:"depends_on,omitempty"`
	Condition   string       `json:"condition,omitempty" yaml:"condition,omitempty"`
	TimeoutSecs *uint64      `json:"timeout_secs,omitempty" yaml:"timeout_secs,omitempty"`
	Retry       *RetryConfig `json:"retry,omitempty" yaml:"retry,omitempty"`
	Config      StepConfig   `json:"config" yaml:"config"`
	UI          *StepUI      `json:"ui,omitempty" yaml:"ui,omitempty"`
}

// WorkflowDefinition is the canonical, validated shape of a workflow loaded
// from YAML.
type WorkflowDefinition struct {
	ID          uuid.UUID         `json:"id" yaml:"id"`
	Name        string            `json:"name" yaml:"name"`
	Description string            `json:"description,omitempty" yaml:"description,omitempty"`
	Version     string            `json:"version" yaml:"version"`
	Owner       WorkflowOwner     `json:"owner" yaml:"owner"`
	Concurrency *uint32           `json:"concurrency,omitempty" yaml:"concurrency,omitempty"`
	TimeoutSecs *uint64           `json:"timeout_secs,omitempty" yaml:"timeout_secs,omitempty"`
	Triggers    []TriggerConfig   `json:"triggers" yaml:"triggers"`
	Steps       []StepDefinition  `json:"steps" yaml:"steps"`
	Metadata    map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// WorkflowRunStatus is the lifecycle state of one workflow run.
type WorkflowRunStatus string

const (
	WorkflowRunPending   WorkflowRunStatus = "pending"
	WorkflowRunRunning   WorkflowRunStatus = "running"
	WorkflowRunCompleted WorkflowRunStatus = "completed"
	WorkflowRunFailed    WorkflowRunStatus = "failed"
	WorkflowRunCancelled WorkflowRunStatus = "cancelled"
)

// WorkflowRun is one execution instance of a WorkflowDefinition.
type WorkflowRun struct {
	ID           uuid.UUID         `json:"id"`
	WorkflowID   uuid.UUID         `json:"workflow_id"`
	WorkflowName string            `json:"workflow_name"`
	Status       WorkflowRunStatus `json:"status"`
	TriggerType  string            `json:"trigger_type"`
	Context      []byte            `json:"context,omitempty"`
	Error        string            `json:"error,omitempty"`
	StartedAt    time.Time         `json:"started_at"`
	CompletedAt  *time.Time        `json:"completed_at,omitempty"`
}

// WorkflowStepStatus is the lifecycle state of one step log entry.
type WorkflowStepStatus string

const (
	WorkflowStepPending         WorkflowStepStatus = "pending"
	WorkflowStepRunning         WorkflowStepStatus = "running"
	WorkflowStepCompleted       WorkflowStepStatus = "completed"
	WorkflowStepFailed          WorkflowStepStatus = "failed"
	WorkflowStepSkipped         WorkflowStepStatus = "skipped"
	WorkflowStepWaitingApproval WorkflowStepStatus = "waiting_approval"
)

// WorkflowStepLog records one attempt of one step within a run, persisted
// so a crashed run can resume from its last completed step.
type WorkflowStepLog struct {
	ID             uuid.UUID          `json:"id"`
	RunID          uuid.UUID          `json:"run_id"`
	StepID         string             `json:"step_id"`
	StepName       string             `json:"step_name"`
	Status         WorkflowStepStatus `json:"status"`
	Attempt        uint32             `json:"attempt"`
	IdempotencyKey string             `json:"idempotency_key,omitempty"`
	Input          []byte             `json:"input,omitempty"`
	Output         []byte             `json:"output,omitempty"`
	Error          string             `json:"error,omitempty"`
	StartedAt      *time.Time         `json:"started_at,omitempty"`
	CompletedAt    *time.Time         `json:"completed_at,omitempty"`
}
