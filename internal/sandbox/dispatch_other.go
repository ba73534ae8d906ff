//go:build !linux && !darwin

package sandbox

import (
	"context"
	"os/exec"
)

func platformCommand(ctx context.Context, selfPath string, cfg Config) (*exec.Cmd, error) {
	return nil, ErrUnsupportedPlatform
}
