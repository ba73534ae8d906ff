package skills

import (
	"fmt"
	"sort"
	"strings"
)

// ErrCycle is returned when the dependency graph contains a cycle.
var ErrCycle = fmt.Errorf("skills: dependency cycle detected")

// ErrVersionConflict is returned when two skills require incompatible
// versions of the same dependency.
var ErrVersionConflict = fmt.Errorf("skills: version conflict")

// ErrConflictingSkill is returned when installing a skill would violate a
// conflicts_with declaration, checked bidirectionally.
var ErrConflictingSkill = fmt.Errorf("skills: conflicting skill")

// parseDependency splits a "name" or "name@version" dependency spec.
func parseDependency(spec string) (name, version string) {
	if i := strings.Index(spec, "@"); i >= 0 {
		return spec[:i], spec[i+1:]
	}
	return spec, ""
}

// versionsCompatible decides whether two version requirements for the same
// dependency name can coexist. Empty requirements are always compatible
// with anything. Otherwise one must be a dot-prefix of the other (e.g.
// "1.2" is compatible with "1.2.3") — an exact mismatch at the shared
// prefix length is a conflict. This is a representative-version existence
// check rather than full semver range intersection: it answers "does a
// version exist that satisfies both requirements" for the common case of
// pinned or partially-pinned versions without pulling in a semver library
// the corpus doesn't already depend on.
func versionsCompatible(a, b string) bool {
	if a == "" || b == "" || a == b {
		return true
	}
	shorter, longer := a, b
	if len(a) > len(b) {
		shorter, longer = b, a
	}
	return strings.HasPrefix(longer, shorter+".")
}

// Resolver builds and topologically sorts the dependency graph across a
// skill and everything reachable from it via Metadata.Dependencies.
//
// Grounded on spec.md §4.9's resolver description; the name-keyed lookup
// and topological-sort idiom follows internal/skills/discovery.go's
// map[string]*SkillEntry index pattern.
type Resolver struct {
	index map[string]*SkillEntry
}

// NewResolver builds a Resolver over the given skill index, keyed by name.
func NewResolver(index map[string]*SkillEntry) *Resolver {
	return &Resolver{index: index}
}

// Resolve returns target's dependencies in topological order (dependencies
// first), followed by target itself. It returns ErrCycle if the transitive
// dependency graph rooted at target contains a cycle, and ErrVersionConflict
// if two skills require incompatible versions of the same dependency name.
func (r *Resolver) Resolve(target *SkillEntry) ([]*SkillEntry, error) {
	// requirement[name] = version string required by whichever skill first
	// declared a dependency on name, used to detect conflicting re-requires.
	requirement := make(map[string]string)
	visited := make(map[string]bool)
	order := make([]*SkillEntry, 0)

	var visit func(entry *SkillEntry, stack map[string]bool) error
	visit = func(entry *SkillEntry, stack map[string]bool) error {
		if visited[entry.Name] {
			return nil
		}
		if stack[entry.Name] {
			return fmt.Errorf("%w: %s", ErrCycle, entry.Name)
		}
		stack[entry.Name] = true

		deps := dependencyNames(entry)
		sort.Strings(deps) // deterministic traversal order
		for _, spec := range deps {
			depName, depVersion := parseDependency(spec)
			if existing, ok := requirement[depName]; ok {
				if !versionsCompatible(existing, depVersion) {
					return fmt.Errorf("%w: %s requires %q and %q", ErrVersionConflict, depName, existing, depVersion)
				}
			} else {
				requirement[depName] = depVersion
			}

			dep, ok := r.index[depName]
			if !ok {
				return fmt.Errorf("skills: unresolved dependency %q of %q", depName, entry.Name)
			}
			if err := visit(dep, stack); err != nil {
				return err
			}
		}

		delete(stack, entry.Name)
		visited[entry.Name] = true
		order = append(order, entry)
		return nil
	}

	if err := visit(target, map[string]bool{}); err != nil {
		return nil, err
	}
	return order, nil
}

func dependencyNames(entry *SkillEntry) []string {
	if entry.Metadata == nil {
		return nil
	}
	return entry.Metadata.Dependencies
}

// CheckConflicts reports ErrConflictingSkill if target's conflicts_with
// names an already-installed skill, or if any installed skill's
// conflicts_with names target (the bidirectional check spec.md requires).
func CheckConflicts(target *SkillEntry, installed []*SkillEntry) error {
	targetConflicts := map[string]bool{}
	if target.Metadata != nil {
		for _, c := range target.Metadata.ConflictsWith {
			targetConflicts[c] = true
		}
	}

	for _, other := range installed {
		if other.Name == target.Name {
			continue
		}
		if targetConflicts[other.Name] {
			return fmt.Errorf("%w: %s conflicts with installed skill %s", ErrConflictingSkill, target.Name, other.Name)
		}
		if other.Metadata != nil {
			for _, c := range other.Metadata.ConflictsWith {
				if c == target.Name {
					return fmt.Errorf("%w: installed skill %s conflicts with %s", ErrConflictingSkill, other.Name, target.Name)
				}
			}
		}
	}
	return nil
}
