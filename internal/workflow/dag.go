package workflow

import (
	"fmt"

	"github.com/boternity/boternity/pkg/models"
)

// BuildExecutionPlan groups steps into waves: each wave is a set of steps
// whose dependencies are all satisfied by earlier waves, so every step in
// a wave can run concurrently. Wave 0 is the first to execute.
//
// Detects cycles and references to unknown steps before computing depths.
func BuildExecutionPlan(steps []models.StepDefinition) ([][]models.StepDefinition, error) {
	if len(steps) == 0 {
		return nil, nil
	}

	byID := make(map[string]models.StepDefinition, len(steps))
	for _, s := range steps {
		byID[s.ID] = s
	}

	order, err := toposort(steps, byID)
	if err != nil {
		return nil, err
	}

	depths := make(map[string]int, len(steps))
	for _, id := range order {
		step := byID[id]
		depth := 0
		for _, dep := range step.DependsOn {
			if d := depths[dep] + 1; d > depth {
				depth = d
			}
		}
		depths[id] = depth
	}

	maxDepth := 0
	for _, d := range depths {
		if d > maxDepth {
			maxDepth = d
		}
	}

	waves := make([][]models.StepDefinition, maxDepth+1)
	for _, s := range steps {
		d := depths[s.ID]
		waves[d] = append(waves[d], s)
	}
	return waves, nil
}

// ValidateDAG checks for cycles and unknown dependency references without
// computing an execution plan. Useful for validating a definition before
// it is saved.
func ValidateDAG(steps []models.StepDefinition) error {
	byID := make(map[string]models.StepDefinition, len(steps))
	for _, s := range steps {
		byID[s.ID] = s
	}
	_, err := toposort(steps, byID)
	return err
}

// toposort performs a Kahn's-algorithm topological sort over the
// dependency graph (edges point from dependency to dependent), returning
// step IDs in an order where every dependency precedes its dependents.
func toposort(steps []models.StepDefinition, byID map[string]models.StepDefinition) ([]string, error) {
	inDegree := make(map[string]int, len(steps))
	adj := make(map[string][]string, len(steps))
	for _, s := range steps {
		if _, ok := inDegree[s.ID]; !ok {
			inDegree[s.ID] = 0
		}
		for _, dep := range s.DependsOn {
			if _, ok := byID[dep]; !ok {
				return nil, validationErr(ErrUnknownDependency, fmt.Sprintf(
					"step %q depends on unknown step %q", s.ID, dep))
			}
			adj[dep] = append(adj[dep], s.ID)
			inDegree[s.ID]++
		}
	}

	queue := make([]string, 0, len(steps))
	for _, s := range steps {
		if inDegree[s.ID] == 0 {
			queue = append(queue, s.ID)
		}
	}

	order := make([]string, 0, len(steps))
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		order = append(order, id)
		for _, next := range adj[id] {
			inDegree[next]--
			if inDegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}

	if len(order) != len(steps) {
		for _, s := range steps {
			if inDegree[s.ID] > 0 {
				return nil, validationErr(ErrCycle, fmt.Sprintf("cycle detected involving step %q", s.ID))
			}
		}
		return nil, validationErr(ErrCycle, "")
	}

	return order, nil
}

// GetStepDependencies returns the transitive closure of stepID's
// dependencies. Returns an empty slice if stepID is not found.
func GetStepDependencies(stepID string, steps []models.StepDefinition) []string {
	byID := make(map[string]models.StepDefinition, len(steps))
	for _, s := range steps {
		byID[s.ID] = s
	}

	visited := make(map[string]struct{})
	stack := []string{stepID}
	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		step, ok := byID[current]
		if !ok {
			continue
		}
		for _, dep := range step.DependsOn {
			if _, seen := visited[dep]; !seen {
				visited[dep] = struct{}{}
				stack = append(stack, dep)
			}
		}
	}

	result := make([]string, 0, len(visited))
	for id := range visited {
		result = append(result, id)
	}
	return result
}
