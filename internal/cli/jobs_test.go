package cli

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"clipcut/internal/config"
	"clipcut/internal/core"
	"clipcut/internal/state"
)

func openTestStore(t *testing.T) *state.Store {
	t.Helper()
	store, err := state.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestBuildJobSpecDefaultsFromConfig(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	if err := store.RegisterVideo(ctx, "vid1", "vid1.mp4", "/videos/vid1.mp4", "video/mp4"); err != nil {
		t.Fatalf("register video: %v", err)
	}
	cfg := config.Default()
	cfg.Export.AspectRatio = "1:1"
	cfg.Export.VideoCRF = 20

	spec, err := buildJobSpec(ctx, &cfg, store, enqueueFlags{
		videos: []string{"vid1"},
		steps:  []string{"transcribe", "generate_clips", "export_clips"},
	})
	if err != nil {
		t.Fatalf("buildJobSpec: %v", err)
	}
	if spec.JobID == "" {
		t.Fatalf("expected generated job id")
	}
	if len(spec.Steps) != 3 || spec.Steps[0] != core.StepTranscribe {
		t.Fatalf("unexpected steps: %v", spec.Steps)
	}
	if spec.Settings.Export.AspectRatio != "1:1" {
		t.Fatalf("expected config aspect ratio, got %q", spec.Settings.Export.AspectRatio)
	}
	if spec.Settings.Export.VideoCRF != 20 {
		t.Fatalf("expected config CRF, got %d", spec.Settings.Export.VideoCRF)
	}
	if spec.Settings.Export.SkipDone != nil {
		t.Fatalf("expected default skip-done (nil)")
	}
	if spec.Settings.Transcribe.Model != "base" {
		t.Fatalf("expected config transcription model, got %q", spec.Settings.Transcribe.Model)
	}
}

func TestBuildJobSpecFlagOverrides(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	if err := store.RegisterVideo(ctx, "vid1", "vid1.mp4", "/videos/vid1.mp4", ""); err != nil {
		t.Fatalf("register video: %v", err)
	}
	cfg := config.Default()

	spec, err := buildJobSpec(ctx, &cfg, store, enqueueFlags{
		videos:      []string{"vid1"},
		steps:       []string{"export_shorts"},
		aspectRatio: "16:9",
		crf:         18,
		rerun:       true,
		logo:        "assets/logo.png",
	})
	if err != nil {
		t.Fatalf("buildJobSpec: %v", err)
	}
	if spec.Settings.Export.AspectRatio != "16:9" || spec.Settings.Export.VideoCRF != 18 {
		t.Fatalf("expected flag overrides, got %+v", spec.Settings.Export)
	}
	if !spec.Settings.Export.AddLogo || spec.Settings.Export.LogoPath != "assets/logo.png" {
		t.Fatalf("expected logo enabled, got %+v", spec.Settings.Export)
	}
	if spec.Settings.Export.SkipDone == nil || *spec.Settings.Export.SkipDone {
		t.Fatalf("expected rerun to disable skip-done")
	}
}

func TestBuildJobSpecRejectsUnknownVideo(t *testing.T) {
	store := openTestStore(t)
	cfg := config.Default()

	_, err := buildJobSpec(context.Background(), &cfg, store, enqueueFlags{
		videos: []string{"ghost"},
		steps:  []string{"transcribe"},
	})
	if err == nil || !strings.Contains(err.Error(), "not registered") {
		t.Fatalf("expected unregistered-video error, got %v", err)
	}
}

func TestBuildJobSpecRejectsUnknownStep(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	if err := store.RegisterVideo(ctx, "vid1", "vid1.mp4", "/videos/vid1.mp4", ""); err != nil {
		t.Fatalf("register video: %v", err)
	}
	cfg := config.Default()

	_, err := buildJobSpec(ctx, &cfg, store, enqueueFlags{
		videos: []string{"vid1"},
		steps:  []string{"upload"},
	})
	if err == nil {
		t.Fatalf("expected unknown-step error")
	}
}

func TestVideoIDFromPath(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"/videos/My Talk (final).mp4", "my_talk_final"},
		{"simple.mp4", "simple"},
		{"Already_Snaked.mov", "already_snaked"},
		{"___.mp4", "video"},
		{"Episode 12 - Growth.mkv", "episode_12_growth"},
	}
	for _, tt := range tests {
		if got := videoIDFromPath(tt.in); got != tt.want {
			t.Fatalf("videoIDFromPath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
