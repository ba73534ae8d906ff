//go:build darwin

package sandbox

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// On macOS there is no Landlock equivalent the child can apply to itself,
// so the parent wraps the subprocess in a Seatbelt profile via
// sandbox-exec instead.
func platformCommand(ctx context.Context, selfPath string, cfg Config) (*exec.Cmd, error) {
	profile := seatbeltProfile(selfPath, cfg)
	return exec.CommandContext(ctx, "sandbox-exec", "-p", profile, selfPath, ChildFlag), nil
}

// seatbeltProfile builds a deny-by-default Seatbelt profile granting only
// what cfg needs: execution of the host binary itself, read access to the
// WASM file and any configured readable paths, read/write of the sandbox
// temp dir, and network if explicitly allowed.
func seatbeltProfile(selfPath string, cfg Config) string {
	var b strings.Builder
	b.WriteString("(version 1)\n(deny default)\n")
	b.WriteString(fmt.Sprintf("(allow process-exec (literal %q))\n", selfPath))
	b.WriteString(fmt.Sprintf("(allow file-read* (literal %q))\n", cfg.WasmPath))
	for _, p := range cfg.ReadablePaths {
		b.WriteString(fmt.Sprintf("(allow file-read* (subpath %q))\n", p))
	}
	for _, p := range cfg.WritablePaths {
		b.WriteString(fmt.Sprintf("(allow file-read* file-write* (subpath %q))\n", p))
	}
	if cfg.TempDir != "" {
		b.WriteString(fmt.Sprintf("(allow file-read* file-write* (subpath %q))\n", cfg.TempDir))
	}
	b.WriteString("(allow file-read* (subpath \"/usr/lib\") (subpath \"/System/Library\"))\n")
	if cfg.AllowNetwork {
		b.WriteString("(allow network*)\n")
	}
	return b.String()
}
