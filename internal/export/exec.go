package export

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
)

// runFunc executes an external command to completion. Tests override the
// engine's runner to record invocations without spawning ffmpeg.
type runFunc func(ctx context.Context, name string, args ...string) error

// captureFunc executes an external command and returns its stdout.
type captureFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

func runCommand(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	b, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s: %w\n%s", name, err, string(b))
	}
	return nil
}

func captureCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("%s: %w\n%s", name, err, stderr.String())
	}
	return out, nil
}
