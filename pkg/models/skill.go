package models

import "time"

// PermissionGrant is a single (skill, capability) authorization decision.
// The complete permission state for a skill is the set of its grants; only
// granted=true entries are enforceable.
type PermissionGrant struct {
	SkillName  string    `json:"skill_name"`
	Capability string    `json:"capability"`
	Granted    bool      `json:"granted"`
	GrantedAt  time.Time `json:"granted_at"`
}

// InstalledSkillSource distinguishes a locally authored skill from one
// pulled from a registry.
type InstalledSkillSource struct {
	Local *struct{} `json:"local,omitempty"`
	Registry *InstalledSkillRegistrySource `json:"registry,omitempty"`
}

// InstalledSkillRegistrySource names the registry a skill was installed from.
type InstalledSkillRegistrySource struct {
	RegistryName string `json:"registry_name"`
	Repo         string `json:"repo"`
	Path         string `json:"path"`
}

// IsLocal reports whether the skill was authored locally rather than
// pulled from a registry.
func (s InstalledSkillSource) IsLocal() bool {
	return s.Local != nil
}

// InstalledSkill is a manifest plus its markdown body, install location, and
// optional compiled WASM artifact.
type InstalledSkill struct {
	Name        string               `json:"name"`
	Body        string               `json:"body"`
	Source      InstalledSkillSource `json:"source"`
	InstallPath string               `json:"install_path"`
	WASMPath    string               `json:"wasm_path,omitempty"`
	Grants      []PermissionGrant    `json:"grants"`
	InstalledAt time.Time            `json:"installed_at"`

	// SkillType mirrors skills.SkillType ("prompt" or "tool"). Prompt
	// skills never spawn a process or a WASM instance; their body is
	// injected directly into the caller's context.
	SkillType string `json:"skill_type,omitempty"`

	// TrustTier mirrors skills.TrustTier ("local", "verified",
	// "untrusted") and selects which executor handles a tool skill.
	TrustTier string `json:"trust_tier,omitempty"`
}
