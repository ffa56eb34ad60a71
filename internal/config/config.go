// Package config loads and validates the clipcut configuration file.
// Defaults are usable out of the box; a TOML file and a handful of
// environment variables (loaded from .env when present) override them.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"

	"clipcut/internal/core"
	"clipcut/internal/ports/adapters/openrouter"
)

// Paths contains directory and state-store configuration.
type Paths struct {
	OutputDir    string `toml:"output_dir"`
	DatabasePath string `toml:"database_path"`
	AssetsDir    string `toml:"assets_dir"`
}

// Transcription configures the whisperx adapter.
type Transcription struct {
	Bin         string `toml:"bin"`
	HubBin      string `toml:"hub_bin"`
	Model       string `toml:"model"`
	Device      string `toml:"device"`
	ComputeType string `toml:"compute_type"`
	Language    string `toml:"language"`
}

// Detector configures the OpenRouter clip detector.
type Detector struct {
	APIKey            string   `toml:"api_key"`
	Model             string   `toml:"model"`
	BaseURL           string   `toml:"base_url"`
	AllowedHosts      []string `toml:"allowed_hosts"`
	MinClipSeconds    float64  `toml:"min_clip_seconds"`
	MaxClipSeconds    float64  `toml:"max_clip_seconds"`
	RequestsPerMinute int      `toml:"requests_per_minute"`
}

// Export configures the ffmpeg render engine defaults. Per-job settings in
// the job spec take precedence.
type Export struct {
	FFmpegBin     string  `toml:"ffmpeg_bin"`
	FFprobeBin    string  `toml:"ffprobe_bin"`
	AspectRatio   string  `toml:"aspect_ratio"`
	SubtitleStyle string  `toml:"subtitle_style"`
	VideoCRF      int     `toml:"video_crf"`
	Threads       int     `toml:"threads"`
	LogoPath      string  `toml:"logo_path"`
	LogoPosition  string  `toml:"logo_position"`
	LogoScale     float64 `toml:"logo_scale"`
}

// FaceTracking configures the external reframer.
type FaceTracking struct {
	Bin        string `toml:"bin"`
	Strategy   string `toml:"strategy"`
	SampleRate int    `toml:"sample_rate"`
}

// Logging configures console and rotating-file output.
type Logging struct {
	Level      string `toml:"level"`
	File       string `toml:"file"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
}

type Config struct {
	Paths         Paths         `toml:"paths"`
	Transcription Transcription `toml:"transcription"`
	Detector      Detector      `toml:"detector"`
	Export        Export        `toml:"export"`
	FaceTracking  FaceTracking  `toml:"face_tracking"`
	Logging       Logging       `toml:"logging"`
}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			OutputDir:    "output",
			DatabasePath: filepath.Join("output", "clipcut.db"),
			AssetsDir:    "assets",
		},
		Transcription: Transcription{
			Bin:         "whisperx",
			HubBin:      "huggingface-cli",
			Model:       "base",
			Device:      "cpu",
			ComputeType: "int8",
		},
		Detector: Detector{
			Model:             "anthropic/claude-3.5-sonnet",
			BaseURL:           "https://openrouter.ai",
			MinClipSeconds:    15,
			MaxClipSeconds:    90,
			RequestsPerMinute: 20,
		},
		Export: Export{
			FFmpegBin:     "ffmpeg",
			FFprobeBin:    "ffprobe",
			AspectRatio:   "9:16",
			SubtitleStyle: "default",
			VideoCRF:      23,
			LogoPosition:  "top-right",
			LogoScale:     0.1,
		},
		FaceTracking: FaceTracking{
			Bin:        "clipcut-reframe",
			Strategy:   "keep_in_frame",
			SampleRate: 3,
		},
		Logging: Logging{
			Level:      "info",
			File:       filepath.Join("output", "logs", "clipcut.log"),
			MaxSizeMB:  10,
			MaxBackups: 5,
			MaxAgeDays: 30,
		},
	}
}

// Load reads the config file at path (or the default locations when path is
// empty), applies environment overrides and validates the result.
func Load(path string) (*Config, error) {
	// Secrets usually live in a .env next to the binary; missing file is fine.
	_ = godotenv.Load()

	cfg := Default()

	resolved, exists, err := resolvePath(path)
	if err != nil {
		return nil, err
	}
	if exists {
		f, err := os.Open(resolved)
		if err != nil {
			return nil, core.Wrap(core.ErrConfiguration, "open config", err)
		}
		defer f.Close()
		if err := toml.NewDecoder(f).Decode(&cfg); err != nil {
			return nil, core.Wrap(core.ErrConfiguration, "parse config", err)
		}
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func resolvePath(path string) (string, bool, error) {
	if path != "" {
		_, err := os.Stat(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return "", false, core.Wrap(core.ErrConfiguration, "locate config",
					fmt.Errorf("config file %s does not exist", path))
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return path, true, nil
	}

	if info, err := os.Stat("clipcut.toml"); err == nil && !info.IsDir() {
		return "clipcut.toml", true, nil
	}
	if home, err := os.UserHomeDir(); err == nil {
		p := filepath.Join(home, ".config", "clipcut", "config.toml")
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p, true, nil
		}
	}
	return "", false, nil
}

// applyEnv layers environment variables over file values. Only secrets and
// endpoint knobs are env-tunable; everything else belongs in the file.
func (c *Config) applyEnv() {
	if v := os.Getenv("OPENROUTER_API_KEY"); v != "" {
		c.Detector.APIKey = v
	}
	if v := os.Getenv("OPENROUTER_BASE_URL"); v != "" {
		c.Detector.BaseURL = v
	}
	if v := os.Getenv("OPENROUTER_MODEL"); v != "" {
		c.Detector.Model = v
	}
	if v := os.Getenv("CLIPCUT_OUTPUT_DIR"); v != "" {
		c.Paths.OutputDir = v
	}
}

var validAspectRatios = map[string]struct{}{
	"16:9": {},
	"9:16": {},
	"1:1":  {},
}

// Validate rejects values the pipeline cannot run with.
func (c *Config) Validate() error {
	fail := func(err error) error {
		return core.Wrap(core.ErrConfiguration, "validate config", err)
	}

	if strings.TrimSpace(c.Paths.OutputDir) == "" {
		return fail(errors.New("paths.output_dir must not be empty"))
	}
	if strings.TrimSpace(c.Paths.DatabasePath) == "" {
		return fail(errors.New("paths.database_path must not be empty"))
	}
	if _, ok := validAspectRatios[c.Export.AspectRatio]; !ok {
		return fail(fmt.Errorf("export.aspect_ratio %q is not one of 16:9, 9:16, 1:1", c.Export.AspectRatio))
	}
	if c.Export.VideoCRF < 0 || c.Export.VideoCRF > 51 {
		return fail(fmt.Errorf("export.video_crf %d outside [0, 51]", c.Export.VideoCRF))
	}
	if c.Export.LogoScale <= 0 || c.Export.LogoScale > 1 {
		return fail(fmt.Errorf("export.logo_scale %v outside (0, 1]", c.Export.LogoScale))
	}
	if c.Detector.MinClipSeconds <= 0 || c.Detector.MaxClipSeconds <= c.Detector.MinClipSeconds {
		return fail(fmt.Errorf("detector clip bounds [%v, %v] are not an increasing positive range",
			c.Detector.MinClipSeconds, c.Detector.MaxClipSeconds))
	}
	if err := openrouter.ValidateBaseURL(c.Detector.BaseURL, c.Detector.AllowedHosts); err != nil {
		return fail(err)
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warning", "warn", "error":
	default:
		return fail(fmt.Errorf("logging.level %q is not one of debug, info, warning, error", c.Logging.Level))
	}
	switch c.FaceTracking.Strategy {
	case "keep_in_frame", "centered":
	default:
		return fail(fmt.Errorf("face_tracking.strategy %q is not keep_in_frame or centered", c.FaceTracking.Strategy))
	}
	return nil
}
