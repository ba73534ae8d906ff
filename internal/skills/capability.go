package skills

import (
	"fmt"

	"github.com/boternity/boternity/pkg/models"
)

// ErrNoGrants is returned when a CapabilityEnforcer is built from an empty
// grant slice — a skill with no grants at all cannot do anything, and the
// caller should treat this distinctly from "denied a specific capability".
var ErrNoGrants = fmt.Errorf("skills: no grants")

// ErrCapabilityDenied is returned by Check when the capability is absent
// from the granted set.
var ErrCapabilityDenied = fmt.Errorf("skills: capability denied")

// Capability names a fine-grained right a skill may request at install
// time and that is checked at invocation. Values match spec.md §3's
// Capability variants, snake_cased.
const (
	CapabilityReadFile     = "read_file"
	CapabilityWriteFile    = "write_file"
	CapabilityHTTPGet      = "http_get"
	CapabilityHTTPPost     = "http_post"
	CapabilityExecCommand  = "exec_command"
	CapabilityReadEnv      = "read_env"
	CapabilityRecallMemory = "recall_memory"
	CapabilityGetSecret    = "get_secret"
)

// CapabilityEnforcer holds the set of capabilities granted to a skill and
// answers O(1) membership checks.
type CapabilityEnforcer struct {
	granted map[string]bool
}

// NewCapabilityEnforcer builds an enforcer from a slice of permission
// grants. Only entries with Granted=true contribute to the set. An empty
// input slice returns ErrNoGrants.
func NewCapabilityEnforcer(grants []models.PermissionGrant) (*CapabilityEnforcer, error) {
	if len(grants) == 0 {
		return nil, ErrNoGrants
	}

	granted := make(map[string]bool, len(grants))
	for _, g := range grants {
		if g.Granted {
			granted[g.Capability] = true
		}
	}
	return &CapabilityEnforcer{granted: granted}, nil
}

// Check returns ErrCapabilityDenied if cap is not in the granted set.
func (e *CapabilityEnforcer) Check(cap string) error {
	if !e.granted[cap] {
		return fmt.Errorf("%w: %s", ErrCapabilityDenied, cap)
	}
	return nil
}

// Has reports whether cap is granted, without an error allocation.
func (e *CapabilityEnforcer) Has(cap string) bool {
	return e.granted[cap]
}

// MergeInheritedGrants combines a child skill's own grants with its parent's,
// preferring the child's entry whenever both name the same capability. The
// parent's grant for a capability only applies when the child does not
// mention that capability at all.
func MergeInheritedGrants(child, parent []models.PermissionGrant) []models.PermissionGrant {
	byCapability := make(map[string]models.PermissionGrant, len(child)+len(parent))
	order := make([]string, 0, len(child)+len(parent))

	for _, g := range parent {
		if _, exists := byCapability[g.Capability]; !exists {
			order = append(order, g.Capability)
		}
		byCapability[g.Capability] = g
	}
	for _, g := range child {
		if _, exists := byCapability[g.Capability]; !exists {
			order = append(order, g.Capability)
		}
		byCapability[g.Capability] = g
	}

	merged := make([]models.PermissionGrant, 0, len(order))
	for _, cap := range order {
		merged = append(merged, byCapability[cap])
	}
	return merged
}
