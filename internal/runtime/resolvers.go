// Package runtime wires the standalone domain packages (providers,
// skills, identityfiles) into the interfaces internal/workflow.StepExecutor
// needs (BotResolver, SkillLookup), the same seam the teacher's cmd/nexus
// filled with its gateway/agent runtime. Boternity has no channel gateway,
// so this package is the entire bridge between "bot directories on disk"
// and a running workflow.
package runtime

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/boternity/boternity/internal/config"
	"github.com/boternity/boternity/internal/identityfiles"
	"github.com/boternity/boternity/internal/providers"
	"github.com/boternity/boternity/internal/skills"
	"github.com/boternity/boternity/pkg/models"
)

// BotRegistry resolves a bot slug to the config's default provider and
// to the model, temperature and max tokens read from
// <botsDir>/<slug>/IDENTITY.md, falling back to the default provider's
// model (and 0.7 / 4096) for whatever IDENTITY.md does not set.
type BotRegistry struct {
	botsDir   string
	llm       config.LLMConfig
	providers map[string]providers.Provider
}

// NewBotRegistry builds a BotRegistry. providers maps a provider name
// ("anthropic", "openai", "bedrock") to its already-constructed adapter;
// callers build these once at startup from cfg.LLM.Providers.
func NewBotRegistry(botsDir string, llm config.LLMConfig, provs map[string]providers.Provider) *BotRegistry {
	return &BotRegistry{botsDir: botsDir, llm: llm, providers: provs}
}

// ResolveBot implements workflow.BotResolver.
func (r *BotRegistry) ResolveBot(ctx context.Context, botSlug string) (providers.Provider, string, float64, int, error) {
	providerName := r.llm.DefaultProvider
	model := ""
	temperature := 0.7
	maxTokens := 4096

	if pc, ok := r.llm.Providers[providerName]; ok && pc.DefaultModel != "" {
		model = pc.DefaultModel
	}

	if r.botsDir != "" {
		dir := filepath.Join(r.botsDir, botSlug)
		if id, err := identityfiles.ReadIdentity(dir); err == nil {
			if id.Model != "" {
				model = id.Model
			}
			if id.Temperature != 0 {
				temperature = id.Temperature
			}
			if id.MaxTokens != 0 {
				maxTokens = id.MaxTokens
			}
		}
	}

	provider, ok := r.providers[providerName]
	if !ok {
		return nil, "", 0, 0, fmt.Errorf("runtime: no provider configured for %q", providerName)
	}
	return provider, model, temperature, maxTokens, nil
}

// SkillRegistry adapts a *skills.Manager to workflow.SkillLookup,
// translating a discovered SkillEntry into the models.InstalledSkill +
// CapabilityEnforcer shape a workflow Skill step expects.
type SkillRegistry struct {
	manager *skills.Manager
	grants  map[string][]models.PermissionGrant
}

// NewSkillRegistry builds a SkillRegistry over an already-discovered
// manager. grants supplies each skill's granted capabilities by name;
// a skill absent from grants is denied every capability.
func NewSkillRegistry(manager *skills.Manager, grants map[string][]models.PermissionGrant) *SkillRegistry {
	return &SkillRegistry{manager: manager, grants: grants}
}

// LookupSkill implements workflow.SkillLookup.
func (r *SkillRegistry) LookupSkill(name string) (*models.InstalledSkill, *skills.CapabilityEnforcer, error) {
	entry, ok := r.manager.GetEligible(name)
	if !ok {
		return nil, nil, fmt.Errorf("runtime: skill %q not installed or ineligible", name)
	}
	body, err := r.manager.LoadContent(name)
	if err != nil {
		return nil, nil, fmt.Errorf("runtime: load skill %q content: %w", name, err)
	}

	installed := &models.InstalledSkill{
		Name:   entry.Name,
		Body:   body,
		Source: models.InstalledSkillSource{Local: &struct{}{}},
	}
	enforcer, err := skills.NewCapabilityEnforcer(r.grants[name])
	if err != nil {
		return nil, nil, fmt.Errorf("runtime: capabilities for skill %q: %w", name, err)
	}
	return installed, enforcer, nil
}
