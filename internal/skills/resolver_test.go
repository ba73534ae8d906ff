package skills

import (
	"errors"
	"testing"
)

func skill(name string, deps []string, conflicts []string) *SkillEntry {
	return &SkillEntry{
		Name:        name,
		Description: "test skill " + name,
		Metadata: &SkillMetadata{
			Dependencies:  deps,
			ConflictsWith: conflicts,
		},
	}
}

func TestResolveOrdersDependenciesFirst(t *testing.T) {
	a := skill("a", []string{"b"}, nil)
	b := skill("b", []string{"c"}, nil)
	c := skill("c", nil, nil)
	index := map[string]*SkillEntry{"a": a, "b": b, "c": c}

	order, err := NewResolver(index).Resolve(a)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	names := make([]string, len(order))
	for i, s := range order {
		names[i] = s.Name
	}
	if len(names) != 3 || names[0] != "c" || names[1] != "b" || names[2] != "a" {
		t.Fatalf("unexpected order: %v", names)
	}
}

func TestResolveDetectsCycle(t *testing.T) {
	a := skill("a", []string{"b"}, nil)
	b := skill("b", []string{"a"}, nil)
	index := map[string]*SkillEntry{"a": a, "b": b}

	_, err := NewResolver(index).Resolve(a)
	if !errors.Is(err, ErrCycle) {
		t.Fatalf("expected ErrCycle, got %v", err)
	}
}

func TestResolveDetectsVersionConflict(t *testing.T) {
	a := skill("a", []string{"shared@1.0"}, nil)
	b := skill("b", []string{"shared@2.0"}, nil)
	shared := skill("shared", nil, nil)
	top := skill("top", []string{"a", "b"}, nil)
	index := map[string]*SkillEntry{"a": a, "b": b, "shared": shared, "top": top}

	_, err := NewResolver(index).Resolve(top)
	if !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("expected ErrVersionConflict, got %v", err)
	}
}

func TestResolveAllowsCompatiblePartialVersions(t *testing.T) {
	a := skill("a", []string{"shared@1.2"}, nil)
	b := skill("b", []string{"shared@1.2.3"}, nil)
	shared := skill("shared", nil, nil)
	top := skill("top", []string{"a", "b"}, nil)
	index := map[string]*SkillEntry{"a": a, "b": b, "shared": shared, "top": top}

	order, err := NewResolver(index).Resolve(top)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(order) != 4 {
		t.Fatalf("expected 4 resolved skills, got %d", len(order))
	}
}

func TestResolveReportsUnresolvedDependency(t *testing.T) {
	a := skill("a", []string{"missing"}, nil)
	index := map[string]*SkillEntry{"a": a}

	_, err := NewResolver(index).Resolve(a)
	if err == nil {
		t.Fatalf("expected error for unresolved dependency")
	}
}

func TestCheckConflictsDetectsDirectConflict(t *testing.T) {
	target := skill("new-skill", nil, []string{"old-skill"})
	installed := []*SkillEntry{skill("old-skill", nil, nil)}

	if err := CheckConflicts(target, installed); !errors.Is(err, ErrConflictingSkill) {
		t.Fatalf("expected ErrConflictingSkill, got %v", err)
	}
}

func TestCheckConflictsDetectsReverseConflict(t *testing.T) {
	target := skill("new-skill", nil, nil)
	installed := []*SkillEntry{skill("old-skill", nil, []string{"new-skill"})}

	if err := CheckConflicts(target, installed); !errors.Is(err, ErrConflictingSkill) {
		t.Fatalf("expected ErrConflictingSkill, got %v", err)
	}
}

func TestCheckConflictsPassesWhenNoOverlap(t *testing.T) {
	target := skill("new-skill", nil, nil)
	installed := []*SkillEntry{skill("old-skill", nil, nil)}

	if err := CheckConflicts(target, installed); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
