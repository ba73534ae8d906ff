// Package identityfiles reads and writes the three per-bot markdown
// documents that configure a bot's persona and behavior: SOUL.md,
// IDENTITY.md, and USER.md (spec.md §6). Frontmatter splitting follows
// internal/skills/parser.go's SKILL.md convention: a leading "---"
// delimited YAML block followed by a markdown body.
package identityfiles

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// FrontmatterDelimiter marks the beginning and end of a YAML frontmatter
// block, matching internal/skills.FrontmatterDelimiter.
const FrontmatterDelimiter = "---"

const (
	SoulFilename     = "SOUL.md"
	IdentityFilename = "IDENTITY.md"
	UserFilename     = "USER.md"
)

// Soul is the bot's personality document: free-form markdown, no
// frontmatter. Mutable at runtime and versioned in internal/store's
// soul_versions table per spec.md §6.
type Soul struct {
	// Content is the full markdown body.
	Content string
}

// IdentityHeader is IDENTITY.md's YAML frontmatter (spec.md §6: "model,
// temperature, max_tokens").
type IdentityHeader struct {
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
}

// Identity is the parsed IDENTITY.md: frontmatter header plus any
// trailing markdown notes.
type Identity struct {
	IdentityHeader
	Notes string
}

// User is USER.md: free-form user instructions, no frontmatter.
type User struct {
	Content string
}

// ReadSoul loads SOUL.md from dir.
func ReadSoul(dir string) (*Soul, error) {
	data, err := os.ReadFile(filepath.Join(dir, SoulFilename))
	if err != nil {
		return nil, fmt.Errorf("identityfiles: read soul: %w", err)
	}
	return &Soul{Content: strings.TrimSpace(string(data))}, nil
}

// WriteSoul writes content to SOUL.md in dir, creating dir if necessary.
func WriteSoul(dir, content string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("identityfiles: mkdir: %w", err)
	}
	path := filepath.Join(dir, SoulFilename)
	if err := os.WriteFile(path, []byte(strings.TrimSpace(content)+"\n"), 0o644); err != nil {
		return fmt.Errorf("identityfiles: write soul: %w", err)
	}
	return nil
}

// ReadIdentity loads and parses IDENTITY.md from dir.
func ReadIdentity(dir string) (*Identity, error) {
	data, err := os.ReadFile(filepath.Join(dir, IdentityFilename))
	if err != nil {
		return nil, fmt.Errorf("identityfiles: read identity: %w", err)
	}
	frontmatter, body, err := splitFrontmatter(data)
	if err != nil {
		return nil, fmt.Errorf("identityfiles: parse identity: %w", err)
	}
	var header IdentityHeader
	if err := yaml.Unmarshal(frontmatter, &header); err != nil {
		return nil, fmt.Errorf("identityfiles: unmarshal identity frontmatter: %w", err)
	}
	return &Identity{IdentityHeader: header, Notes: strings.TrimSpace(string(body))}, nil
}

// WriteIdentity serializes id as YAML frontmatter plus id.Notes and writes
// it to IDENTITY.md in dir.
func WriteIdentity(dir string, id *Identity) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("identityfiles: mkdir: %w", err)
	}
	header, err := yaml.Marshal(id.IdentityHeader)
	if err != nil {
		return fmt.Errorf("identityfiles: marshal identity header: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString(FrontmatterDelimiter + "\n")
	buf.Write(header)
	buf.WriteString(FrontmatterDelimiter + "\n")
	if notes := strings.TrimSpace(id.Notes); notes != "" {
		buf.WriteString("\n" + notes + "\n")
	}

	path := filepath.Join(dir, IdentityFilename)
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("identityfiles: write identity: %w", err)
	}
	return nil
}

// ReadUser loads USER.md from dir.
func ReadUser(dir string) (*User, error) {
	data, err := os.ReadFile(filepath.Join(dir, UserFilename))
	if err != nil {
		return nil, fmt.Errorf("identityfiles: read user: %w", err)
	}
	return &User{Content: strings.TrimSpace(string(data))}, nil
}

// WriteUser writes content to USER.md in dir, creating dir if necessary.
func WriteUser(dir, content string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("identityfiles: mkdir: %w", err)
	}
	path := filepath.Join(dir, UserFilename)
	if err := os.WriteFile(path, []byte(strings.TrimSpace(content)+"\n"), 0o644); err != nil {
		return fmt.Errorf("identityfiles: write user: %w", err)
	}
	return nil
}

// splitFrontmatter separates a leading "---"-delimited YAML block from
// the remaining markdown body, matching internal/skills's SKILL.md
// convention.
func splitFrontmatter(data []byte) ([]byte, []byte, error) {
	scanner := bufio.NewScanner(bytes.NewReader(data))

	if !scanner.Scan() {
		return nil, nil, fmt.Errorf("empty file")
	}
	if strings.TrimSpace(scanner.Text()) != FrontmatterDelimiter {
		return nil, nil, fmt.Errorf("missing opening frontmatter delimiter")
	}

	var frontmatterLines []string
	foundClosing := false
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == FrontmatterDelimiter {
			foundClosing = true
			break
		}
		frontmatterLines = append(frontmatterLines, line)
	}
	if !foundClosing {
		return nil, nil, fmt.Errorf("missing closing frontmatter delimiter")
	}

	var bodyLines []string
	for scanner.Scan() {
		bodyLines = append(bodyLines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, fmt.Errorf("scan file: %w", err)
	}

	return []byte(strings.Join(frontmatterLines, "\n")), []byte(strings.Join(bodyLines, "\n")), nil
}
