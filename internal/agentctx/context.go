// Package agentctx assembles the per-bot AgentContext and its XML-tagged
// system prompt, per spec.md §4.5.
//
// Grounded on internal/gateway/system_prompt.go's buildSystemPrompt: the
// normalize-then-append-section idiom (trim, skip empties, join with
// blank lines) is kept, adapted from gateway's plain-text sections to the
// spec's XML-tagged document.
package agentctx

import (
	"fmt"
	"strings"

	"github.com/boternity/boternity/internal/skills"
	"github.com/boternity/boternity/pkg/models"
)

// Identity is the bot-level identity bundle carried unchanged through
// ChildForTask.
type Identity struct {
	BotID       string
	Name        string
	Slug        string
	Model       string
	Temperature float64
	MaxTokens   int
}

// Context bundles everything needed to run one turn of an agent loop:
// identity, the three standing-instruction blobs, session memory, and the
// assembled system prompt.
type Context struct {
	Identity Identity

	// Soul, IdentityNotes, and UserInstructions are the three standing
	// content blobs rendered into <soul>, <identity>, and <instructions>.
	Soul             string
	IdentityNotes    string
	UserInstructions string

	// Memories is the session-scoped memory set, rendered into <memories>.
	Memories []*models.MemoryEntry

	// RecalledMemories is populated dynamically by memory recall and
	// rendered into <long_term_memory> when non-empty. The system prompt
	// must be rebuilt (BuildSystemPrompt) whenever this changes.
	RecalledMemories []*models.SearchResult

	// ConversationHistory is the turn-by-turn message log. Cleared by
	// ChildForTask.
	ConversationHistory []*models.Message

	// AvailableSkills is Level-1 metadata (name + description only) of
	// every installed skill, rendered into <available_skills>.
	AvailableSkills []*skills.SkillEntry

	// ActiveSkills is Level-2 full content of enabled skills, rendered
	// into <active_skills>.
	ActiveSkills []*skills.SkillEntry

	// Task and SubAgentInstructions are only populated on contexts
	// produced by ChildForTask; they render a <task> and
	// <sub_agent_instructions> section ahead of everything else.
	Task                 string
	SubAgentInstructions string
	Depth                int

	// SystemPrompt is the last-assembled prompt. Call BuildSystemPrompt
	// to refresh it after mutating any of the fields above.
	SystemPrompt string
}

// BuildSystemPrompt assembles c.SystemPrompt from the context's current
// fields and returns it. Call again whenever RecalledMemories (or any
// other section) changes.
func (c *Context) BuildSystemPrompt() string {
	var sections []string

	if task := strings.TrimSpace(c.Task); task != "" {
		sections = append(sections, wrapTag("task", task))
	}
	if instr := strings.TrimSpace(c.SubAgentInstructions); instr != "" {
		sections = append(sections, wrapTag("sub_agent_instructions", instr))
	}
	if soul := strings.TrimSpace(c.Soul); soul != "" {
		sections = append(sections, wrapTag("soul", soul))
	}
	if identity := strings.TrimSpace(c.IdentityNotes); identity != "" {
		sections = append(sections, wrapTag("identity", identity))
	}
	if instructions := strings.TrimSpace(c.UserInstructions); instructions != "" {
		sections = append(sections, wrapTag("instructions", instructions))
	}
	if memories := renderMemories(c.Memories); memories != "" {
		sections = append(sections, wrapTag("memories", memories))
	}
	if recalled := renderRecalled(c.RecalledMemories); recalled != "" {
		sections = append(sections, wrapTag("long_term_memory", recalled))
	}
	if available := renderSkillSummaries(c.AvailableSkills); available != "" {
		sections = append(sections, wrapTag("available_skills", available))
	}
	if active := renderSkillBodies(c.ActiveSkills); active != "" {
		sections = append(sections, wrapTag("active_skills", active))
	}

	c.SystemPrompt = strings.Join(sections, "\n\n")
	return c.SystemPrompt
}

func wrapTag(tag, content string) string {
	return fmt.Sprintf("<%s>\n%s\n</%s>", tag, content, tag)
}

func renderMemories(entries []*models.MemoryEntry) string {
	lines := make([]string, 0, len(entries))
	for _, m := range entries {
		if m == nil {
			continue
		}
		fact := strings.TrimSpace(m.Content)
		if fact == "" {
			continue
		}
		lines = append(lines, fmt.Sprintf("- [%s] %s", m.Category, fact))
	}
	return strings.Join(lines, "\n")
}

func renderRecalled(results []*models.SearchResult) string {
	lines := make([]string, 0, len(results))
	for _, r := range results {
		if r == nil || r.Entry == nil {
			continue
		}
		fact := strings.TrimSpace(r.Entry.Content)
		if fact == "" {
			continue
		}
		lines = append(lines, fmt.Sprintf("- [%.2f] %s", r.Score, fact))
	}
	return strings.Join(lines, "\n")
}

func renderSkillSummaries(entries []*skills.SkillEntry) string {
	lines := make([]string, 0, len(entries))
	for _, s := range entries {
		if s == nil {
			continue
		}
		name := strings.TrimSpace(s.Name)
		if name == "" {
			continue
		}
		desc := strings.TrimSpace(s.Description)
		if desc != "" {
			lines = append(lines, fmt.Sprintf("- %s: %s", name, desc))
		} else {
			lines = append(lines, fmt.Sprintf("- %s", name))
		}
	}
	return strings.Join(lines, "\n")
}

func renderSkillBodies(entries []*skills.SkillEntry) string {
	blocks := make([]string, 0, len(entries))
	for _, s := range entries {
		if s == nil {
			continue
		}
		body := strings.TrimSpace(s.Content)
		if body == "" {
			continue
		}
		blocks = append(blocks, fmt.Sprintf("## %s\n\n%s", s.Name, body))
	}
	return strings.Join(blocks, "\n\n")
}

// ChildForTask derives a sub-agent context for the given task at the given
// spawn depth. The child inherits Identity and Soul (personality + model)
// but starts with no conversation history and no standing user
// instructions, and carries the task description forward as its
// <task>/<sub_agent_instructions> sections. AvailableSkills/ActiveSkills
// are inherited since a sub-agent has access to the same installed skill
// set as its parent.
func (c *Context) ChildForTask(task string, depth int) *Context {
	child := &Context{
		Identity:             c.Identity,
		Soul:                 c.Soul,
		IdentityNotes:        c.IdentityNotes,
		AvailableSkills:      c.AvailableSkills,
		ActiveSkills:         c.ActiveSkills,
		Task:                 task,
		SubAgentInstructions: fmt.Sprintf("You are a sub-agent spawned by %s to complete the task above. Report your result and stop.", c.Identity.Name),
		Depth:                depth,
	}
	child.BuildSystemPrompt()
	return child
}
