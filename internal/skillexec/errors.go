package skillexec

import "errors"

var (
	// ErrNotLocalSkill is returned by LocalExecutor when handed a skill
	// whose Source is not local.
	ErrNotLocalSkill = errors.New("skillexec: executor only handles locally authored skills")

	// ErrScriptNotFound is returned when a Local tool skill has neither
	// run.sh nor run.py in its scripts/ directory.
	ErrScriptNotFound = errors.New("skillexec: no run.sh or run.py found in scripts/")

	// ErrExecutionTimeout is returned when a local skill process runs
	// past its wall-clock budget.
	ErrExecutionTimeout = errors.New("skillexec: local skill execution timed out")

	// ErrNoWasmPath is returned when a Verified or Untrusted tool skill
	// has no compiled WASM artifact to run.
	ErrNoWasmPath = errors.New("skillexec: skill has no wasm_path")

	// ErrUnknownTrustTier is returned when a skill's trust tier does not
	// match any known executor.
	ErrUnknownTrustTier = errors.New("skillexec: unknown trust tier")
)
