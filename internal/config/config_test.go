package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"clipcut/internal/core"
)

func TestDefaultValidates(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "clipcut.toml")
	content := `
[paths]
output_dir = "renders"

[export]
aspect_ratio = "1:1"
video_crf = 18

[detector]
min_clip_seconds = 10
max_clip_seconds = 45
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Paths.OutputDir != "renders" {
		t.Fatalf("expected file value for output_dir, got %q", cfg.Paths.OutputDir)
	}
	if cfg.Export.AspectRatio != "1:1" || cfg.Export.VideoCRF != 18 {
		t.Fatalf("expected file export values, got %+v", cfg.Export)
	}
	// Untouched sections keep defaults.
	if cfg.Transcription.Model != "base" {
		t.Fatalf("expected default transcription model, got %q", cfg.Transcription.Model)
	}
	if cfg.Detector.RequestsPerMinute != 20 {
		t.Fatalf("expected default rate limit, got %d", cfg.Detector.RequestsPerMinute)
	}
}

func TestLoadMissingExplicitPathFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	if err == nil {
		t.Fatalf("expected error for missing explicit config path")
	}
	if !errors.Is(err, core.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestEnvOverridesApiKey(t *testing.T) {
	t.Setenv("OPENROUTER_API_KEY", "sk-or-env")

	cfg := Default()
	cfg.applyEnv()
	if cfg.Detector.APIKey != "sk-or-env" {
		t.Fatalf("expected env API key, got %q", cfg.Detector.APIKey)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad aspect ratio", func(c *Config) { c.Export.AspectRatio = "4:3" }},
		{"crf too high", func(c *Config) { c.Export.VideoCRF = 70 }},
		{"zero logo scale", func(c *Config) { c.Export.LogoScale = 0 }},
		{"inverted clip bounds", func(c *Config) { c.Detector.MinClipSeconds = 60; c.Detector.MaxClipSeconds = 30 }},
		{"http base url", func(c *Config) { c.Detector.BaseURL = "http://openrouter.ai" }},
		{"unknown log level", func(c *Config) { c.Logging.Level = "chatty" }},
		{"unknown strategy", func(c *Config) { c.FaceTracking.Strategy = "zoom" }},
		{"empty output dir", func(c *Config) { c.Paths.OutputDir = " " }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatalf("expected validation error")
			}
			if !errors.Is(err, core.ErrConfiguration) {
				t.Fatalf("expected configuration error, got %v", err)
			}
		})
	}
}

func TestValidateAllowsConfiguredProxyHost(t *testing.T) {
	cfg := Default()
	cfg.Detector.BaseURL = "https://proxy.internal"
	cfg.Detector.AllowedHosts = []string{"proxy.internal"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected proxy host to validate: %v", err)
	}
}
