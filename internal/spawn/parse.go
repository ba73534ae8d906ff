// Package spawn parses <spawn_agents> blocks out of assistant responses
// and drives parallel/sequential sub-agent execution, per spec.md §4.6
// and §4.7.
package spawn

import (
	"regexp"
	"strings"
)

// Mode selects how an Instruction's tasks are executed.
type Mode string

const (
	ModeParallel   Mode = "parallel"
	ModeSequential Mode = "sequential"
)

// Instruction is a parsed <spawn_agents> block.
type Instruction struct {
	Mode  Mode
	Tasks []string
}

var spawnBlockPattern = regexp.MustCompile(`(?s)<spawn_agents(?:\s+mode="(parallel|sequential)")?\s*>(.*?)</spawn_agents>`)

var agentTaskPattern = regexp.MustCompile(`<agent\s+task="((?:[^"\\]|\\.)*)"\s*/>`)

// Parse scans text for a single <spawn_agents> block. It returns the
// pre-spawn preamble (everything before the block, trimmed, shown to the
// user as-is) and the parsed instruction, or a nil instruction if no block
// is present or the block contains no <agent> tasks.
func Parse(text string) (preamble string, instruction *Instruction) {
	loc := spawnBlockPattern.FindStringSubmatchIndex(text)
	if loc == nil {
		return text, nil
	}

	preamble = strings.TrimSpace(text[:loc[0]])

	mode := ModeParallel
	if loc[2] != -1 && Mode(text[loc[2]:loc[3]]) == ModeSequential {
		mode = ModeSequential
	}

	body := text[loc[4]:loc[5]]
	matches := agentTaskPattern.FindAllStringSubmatch(body, -1)
	if len(matches) == 0 {
		return preamble, nil
	}

	tasks := make([]string, 0, len(matches))
	for _, m := range matches {
		tasks = append(tasks, unescapeQuotes(m[1]))
	}

	return preamble, &Instruction{Mode: mode, Tasks: tasks}
}

func unescapeQuotes(s string) string {
	return strings.ReplaceAll(s, `\"`, `"`)
}
