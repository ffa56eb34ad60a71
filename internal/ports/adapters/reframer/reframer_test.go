package reframer

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestReframeVideoBuildsArgs(t *testing.T) {
	var gotName string
	var gotArgs []string
	a := New("", "centered", 5)
	a.run = func(ctx context.Context, name string, args ...string) error {
		gotName = name
		gotArgs = args
		return nil
	}

	if err := a.ReframeVideo(context.Background(), "in.mp4", "out.mp4", 1080, 1920, 12.5, 43.25); err != nil {
		t.Fatalf("ReframeVideo: %v", err)
	}
	if gotName != "clipcut-reframe" {
		t.Fatalf("unexpected binary: %s", gotName)
	}
	joined := strings.Join(gotArgs, " ")
	for _, want := range []string{
		"--input in.mp4",
		"--output out.mp4",
		"--width 1080",
		"--height 1920",
		"--start 12.500",
		"--end 43.250",
		"--strategy centered",
		"--sample-rate 5",
	} {
		if !strings.Contains(joined, want) {
			t.Fatalf("expected %q in args: %s", want, joined)
		}
	}
}

func TestReframeVideoDefaults(t *testing.T) {
	var gotArgs []string
	a := New("reframe-bin", "", 0)
	a.run = func(ctx context.Context, name string, args ...string) error {
		gotArgs = args
		return nil
	}

	if err := a.ReframeVideo(context.Background(), "in.mp4", "out.mp4", 1080, 1920, 0, 10); err != nil {
		t.Fatalf("ReframeVideo: %v", err)
	}
	joined := strings.Join(gotArgs, " ")
	if !strings.Contains(joined, "--strategy keep_in_frame") || !strings.Contains(joined, "--sample-rate 3") {
		t.Fatalf("expected default strategy and sample rate, got: %s", joined)
	}
}

func TestReframeVideoPropagatesFailure(t *testing.T) {
	a := New("", "", 0)
	wantErr := errors.New("no faces found")
	a.run = func(ctx context.Context, name string, args ...string) error {
		return wantErr
	}

	if err := a.ReframeVideo(context.Background(), "in.mp4", "out.mp4", 1080, 1920, 0, 10); !errors.Is(err, wantErr) {
		t.Fatalf("expected propagated error, got %v", err)
	}
}
