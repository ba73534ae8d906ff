package workflow

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/boternity/boternity/pkg/models"
	"gopkg.in/yaml.v3"
)

// ParseYAML parses a YAML document into a validated WorkflowDefinition.
// Validate runs automatically, so a returned definition is always
// structurally sound.
func ParseYAML(data []byte) (*models.WorkflowDefinition, error) {
	var def models.WorkflowDefinition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("workflow: parse error: %w", err)
	}
	if err := Validate(&def); err != nil {
		return nil, err
	}
	return &def, nil
}

// SerializeYAML serializes a WorkflowDefinition back to YAML.
func SerializeYAML(def *models.WorkflowDefinition) ([]byte, error) {
	out, err := yaml.Marshal(def)
	if err != nil {
		return nil, fmt.Errorf("workflow: serialize error: %w", err)
	}
	return out, nil
}

// Validate checks the structural constraints every WorkflowDefinition must
// satisfy: a well-formed name, at least one step, unique step IDs, valid
// dependency/branch/loop references, and sane concurrency/timeout values.
func Validate(def *models.WorkflowDefinition) error {
	if def.Name == "" {
		return validationErr(ErrEmptyName, "")
	}
	for _, c := range def.Name {
		if !(c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '-') {
			return validationErr(ErrEmptyName, fmt.Sprintf(
				"workflow name %q contains invalid characters (only alphanumeric and hyphens allowed)", def.Name))
		}
	}

	if len(def.Steps) == 0 {
		return validationErr(ErrNoSteps, "")
	}

	seen := make(map[string]struct{}, len(def.Steps))
	for _, step := range def.Steps {
		if _, dup := seen[step.ID]; dup {
			return validationErr(ErrDuplicateStepID, fmt.Sprintf("duplicate step ID: %q", step.ID))
		}
		seen[step.ID] = struct{}{}
	}

	for _, step := range def.Steps {
		for _, dep := range step.DependsOn {
			if _, ok := seen[dep]; !ok {
				return validationErr(ErrUnknownDependency, fmt.Sprintf(
					"step %q depends on unknown step %q", step.ID, dep))
			}
		}
	}

	for _, step := range def.Steps {
		switch {
		case step.Config.Conditional != nil:
			for _, ref := range append(append([]string{}, step.Config.Conditional.ThenSteps...), step.Config.Conditional.ElseSteps...) {
				if _, ok := seen[ref]; !ok {
					return validationErr(ErrUnknownDependency, fmt.Sprintf(
						"conditional step %q references unknown step %q", step.ID, ref))
				}
			}
		case step.Config.Loop != nil:
			for _, ref := range step.Config.Loop.BodySteps {
				if _, ok := seen[ref]; !ok {
					return validationErr(ErrUnknownDependency, fmt.Sprintf(
						"loop step %q references unknown step %q", step.ID, ref))
				}
			}
		}
	}

	if def.Concurrency != nil && *def.Concurrency < 1 {
		return validationErr(ErrInvalidConcurrency, "")
	}

	if def.TimeoutSecs != nil && *def.TimeoutSecs == 0 {
		return validationErr(ErrInvalidTimeout, "")
	}

	return nil
}

// LoadFile loads and validates a workflow definition from a YAML file.
func LoadFile(path string) (*models.WorkflowDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("workflow: %w", err)
	}
	return ParseYAML(data)
}

// SaveFile writes a workflow definition to a YAML file, creating parent
// directories as needed.
func SaveFile(path string, def *models.WorkflowDefinition) error {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("workflow: %w", err)
		}
	}
	data, err := SerializeYAML(def)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("workflow: %w", err)
	}
	return nil
}

// Discovered pairs a workflow definition with the file it was loaded from.
type Discovered struct {
	Path       string
	Definition *models.WorkflowDefinition
}

// DiscoverWorkflows recursively scans baseDir for .yaml/.yml files and
// parses each as a workflow definition. Files that fail to parse (because
// they are not workflows, or are malformed) are skipped rather than
// failing the whole scan. Returns an empty slice if baseDir does not exist.
func DiscoverWorkflows(baseDir string) ([]Discovered, error) {
	var results []Discovered
	if _, err := os.Stat(baseDir); os.IsNotExist(err) {
		return results, nil
	}

	err := filepath.WalkDir(baseDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}
		def, loadErr := LoadFile(path)
		if loadErr != nil {
			return nil
		}
		results = append(results, Discovered{Path: path, Definition: def})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("workflow: discover: %w", err)
	}
	return results, nil
}
