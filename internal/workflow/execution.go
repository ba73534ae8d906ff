package workflow

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/boternity/boternity/internal/providers"
	"github.com/boternity/boternity/internal/skillexec"
	"github.com/boternity/boternity/internal/skills"
	"github.com/boternity/boternity/pkg/models"
)

// StepError distinguishes a step-execution failure from a programming
// error in the runner itself, mirroring the Agent/Skill/HTTP step
// boundary of a live execution context.
type StepError struct {
	Op  string
	Err error
}

func (e *StepError) Error() string { return fmt.Sprintf("workflow: %s: %v", e.Op, e.Err) }
func (e *StepError) Unwrap() error { return e.Err }

func stepErr(op string, err error) error { return &StepError{Op: op, Err: err} }

// BotResolver resolves a bot slug to the LLM provider and default model it
// should use, following whatever identity-file lookup the caller wires in.
type BotResolver interface {
	ResolveBot(ctx context.Context, botSlug string) (provider providers.Provider, model string, temperature float64, maxTokens int, err error)
}

// SkillLookup resolves an installed skill by name plus the capability
// enforcer governing it, so StepExecutor doesn't need to know how skills
// are stored.
type SkillLookup interface {
	LookupSkill(name string) (*models.InstalledSkill, *skills.CapabilityEnforcer, error)
}

// StepExecutor runs the three "leaf" step kinds against real services.
// Conditional/Loop/Approval/SubWorkflow are control flow handled by the
// runner itself and never reach a StepExecutor.
type StepExecutor interface {
	ExecuteAgent(ctx context.Context, bot, prompt, modelOverride string) (map[string]any, error)
	ExecuteSkill(ctx context.Context, skill, input string) (map[string]any, error)
	ExecuteHTTP(ctx context.Context, method, url string, headers map[string]string, body string) (map[string]any, error)
}

// LiveStepExecutor wires Agent/Skill/HTTP steps to real LLM providers, the
// skill dispatcher, and outbound HTTP, the same wiring a production runner
// uses (as opposed to a mock used in tests).
type LiveStepExecutor struct {
	bots       BotResolver
	skillStore SkillLookup
	dispatcher *skillexec.Dispatcher
	httpClient *http.Client
}

// NewLiveStepExecutor builds a LiveStepExecutor. httpClient may be nil, in
// which case a 30s-timeout client is created.
func NewLiveStepExecutor(bots BotResolver, skillStore SkillLookup, dispatcher *skillexec.Dispatcher, httpClient *http.Client) *LiveStepExecutor {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &LiveStepExecutor{bots: bots, skillStore: skillStore, dispatcher: dispatcher, httpClient: httpClient}
}

// ExecuteAgent sends prompt to bot's resolved provider/model and returns a
// structured record of the response and token usage.
func (e *LiveStepExecutor) ExecuteAgent(ctx context.Context, bot, prompt, modelOverride string) (map[string]any, error) {
	provider, defaultModel, temperature, maxTokens, err := e.bots.ResolveBot(ctx, bot)
	if err != nil {
		return nil, stepErr("agent step", err)
	}
	model := defaultModel
	if modelOverride != "" {
		model = modelOverride
	}

	req := &providers.Request{
		Model:       model,
		Messages:    []providers.Message{{Role: providers.RoleUser, Content: prompt}},
		MaxTokens:   maxTokens,
		Temperature: temperature,
	}
	resp, err := provider.Complete(ctx, req)
	if err != nil {
		return nil, stepErr("agent step", fmt.Errorf("LLM completion failed: %w", err))
	}

	return map[string]any{
		"type":     "agent",
		"bot":      bot,
		"model":    model,
		"response": resp.Text,
		"usage": map[string]any{
			"input_tokens":  resp.Usage.InputTokens,
			"output_tokens": resp.Usage.OutputTokens,
		},
	}, nil
}

// ExecuteSkill invokes an installed skill through the capability-gated
// dispatcher (prompt skills short-circuit, tool skills route by trust
// tier) and returns its output.
func (e *LiveStepExecutor) ExecuteSkill(ctx context.Context, skill, input string) (map[string]any, error) {
	installed, enforcer, err := e.skillStore.LookupSkill(skill)
	if err != nil {
		return nil, stepErr("skill step", fmt.Errorf("skill %q not found: %w", skill, err))
	}

	result, err := e.dispatcher.Execute(ctx, installed, input, enforcer)
	if err != nil {
		return nil, stepErr("skill step", err)
	}

	return map[string]any{
		"type":   "skill",
		"skill":  skill,
		"output": result.Output,
	}, nil
}

// ExecuteHTTP issues one outbound HTTP request and returns its status,
// headers, and body.
func (e *LiveStepExecutor) ExecuteHTTP(ctx context.Context, method, url string, headers map[string]string, body string) (map[string]any, error) {
	var bodyReader io.Reader
	if body != "" {
		bodyReader = strings.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, strings.ToUpper(method), url, bodyReader)
	if err != nil {
		return nil, stepErr("http step", fmt.Errorf("invalid HTTP method or URL: %w", err))
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, stepErr("http step", fmt.Errorf("request to %q failed: %w", url, err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, stepErr("http step", fmt.Errorf("failed to read response body: %w", err))
	}

	respHeaders := make(map[string]string, len(resp.Header))
	for k := range resp.Header {
		respHeaders[k] = resp.Header.Get(k)
	}

	return map[string]any{
		"type":    "http",
		"status":  resp.StatusCode,
		"body":    string(respBody),
		"headers": respHeaders,
	}, nil
}
