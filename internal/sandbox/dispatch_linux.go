//go:build linux

package sandbox

import (
	"context"
	"os/exec"
)

// On Linux the child restricts itself with Landlock (see landlock_linux.go)
// before touching the WASM runtime, so the parent spawns it directly.
func platformCommand(ctx context.Context, selfPath string, cfg Config) (*exec.Cmd, error) {
	return exec.CommandContext(ctx, selfPath, ChildFlag), nil
}
