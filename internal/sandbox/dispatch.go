package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"
)

// ChildFlag is the argument that re-invokes the host binary as a
// sandbox subprocess (cmd/boternity checks for this before doing
// anything else).
const ChildFlag = "--wasm-sandbox-exec"

// ErrUnsupportedPlatform is returned by Dispatch on any OS other than
// linux or darwin.
var ErrUnsupportedPlatform = errors.New("sandbox: OS-level sandbox not supported on this platform")

// Dispatch runs cfg inside an OS-sandboxed subprocess and returns its
// Response. The subprocess model means OS-level restrictions only ever
// apply to the child — the host process itself is never restricted.
func Dispatch(ctx context.Context, cfg Config) (*Response, error) {
	selfPath, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("sandbox: resolve self path: %w", err)
	}

	timeout := cfg.ResourceLimits.MaxDuration
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd, err := platformCommand(ctx, selfPath, cfg)
	if err != nil {
		return nil, err
	}

	reqJSON, err := json.Marshal(cfg.toRequest())
	if err != nil {
		return nil, fmt.Errorf("sandbox: marshal request: %w", err)
	}
	cmd.Stdin = bytes.NewReader(reqJSON)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	if ctx.Err() == context.DeadlineExceeded {
		return &Response{Success: false, Error: "sandbox subprocess timed out"}, nil
	}
	if runErr != nil {
		return &Response{Success: false, Error: fmt.Sprintf("sandbox subprocess failed: %v: %s", runErr, stderr.String())}, nil
	}

	var resp Response
	if err := json.Unmarshal(stdout.Bytes(), &resp); err != nil {
		return nil, fmt.Errorf("sandbox: parse response: %w", err)
	}
	return &resp, nil
}

// platformCommand builds the subprocess command for this platform. It is
// implemented per-OS in dispatch_linux.go, dispatch_darwin.go, and
// dispatch_other.go: func platformCommand(ctx context.Context, selfPath string, cfg Config) (*exec.Cmd, error)
