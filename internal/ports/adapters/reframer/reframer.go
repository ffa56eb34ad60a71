// Package reframer shells out to a face-tracking reframe tool that follows
// the subject through 9:16 crops. The render engine treats any failure here
// as non-fatal and falls back to a static crop.
package reframer

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
)

type runFunc func(ctx context.Context, name string, args ...string) error

type Adapter struct {
	bin        string
	strategy   string
	sampleRate int

	run runFunc
}

// New builds an adapter around the reframe executable. strategy is
// "keep_in_frame" (less camera movement) or "centered"; sampleRate processes
// every Nth frame, trading smoothness for speed.
func New(bin, strategy string, sampleRate int) *Adapter {
	if bin == "" {
		bin = "clipcut-reframe"
	}
	if strategy == "" {
		strategy = "keep_in_frame"
	}
	if sampleRate <= 0 {
		sampleRate = 3
	}
	return &Adapter{bin: bin, strategy: strategy, sampleRate: sampleRate, run: runCommand}
}

func runCommand(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	b, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s failed: %w\n%s", name, err, string(b))
	}
	return nil
}

func (a *Adapter) ReframeVideo(ctx context.Context, inputPath, outputPath string, targetW, targetH int, start, end float64) error {
	args := []string{
		"--input", inputPath,
		"--output", outputPath,
		"--width", strconv.Itoa(targetW),
		"--height", strconv.Itoa(targetH),
		"--start", strconv.FormatFloat(start, 'f', 3, 64),
		"--end", strconv.FormatFloat(end, 'f', 3, 64),
		"--strategy", a.strategy,
		"--sample-rate", strconv.Itoa(a.sampleRate),
	}
	return a.run(ctx, a.bin, args...)
}
