// Package whisperx shells out to the whisperx CLI for word-aligned
// transcription and probes/populates the local Hugging Face model cache so
// the dependency gate can verify model weights before a job starts.
package whisperx

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"clipcut/internal/types"
)

type runFunc func(ctx context.Context, name string, args ...string) error

type Adapter struct {
	bin         string
	hubBin      string
	modelSize   string
	device      string
	computeType string
	outputDir   string
	cacheDir    string
	log         *logrus.Logger

	run runFunc
}

type Options struct {
	// Bin is the whisperx executable. Defaults to "whisperx".
	Bin string
	// HubBin downloads model weights. Defaults to "huggingface-cli".
	HubBin      string
	ModelSize   string
	Device      string
	ComputeType string
	// OutputDir receives transcript JSON files.
	OutputDir string
	// CacheDir overrides the Hugging Face cache root. Defaults to HF_HOME or
	// ~/.cache/huggingface.
	CacheDir string
	Logger   *logrus.Logger
}

func New(opts Options) *Adapter {
	bin := opts.Bin
	if bin == "" {
		bin = "whisperx"
	}
	hubBin := opts.HubBin
	if hubBin == "" {
		hubBin = "huggingface-cli"
	}
	modelSize := opts.ModelSize
	if modelSize == "" {
		modelSize = "base"
	}
	device := opts.Device
	if device == "" {
		device = "cpu"
	}
	computeType := opts.ComputeType
	if computeType == "" {
		computeType = "int8"
	}
	outputDir := opts.OutputDir
	if outputDir == "" {
		outputDir = filepath.Join("output", "transcripts")
	}
	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Adapter{
		bin:         bin,
		hubBin:      hubBin,
		modelSize:   modelSize,
		device:      device,
		computeType: computeType,
		outputDir:   outputDir,
		cacheDir:    resolveCacheDir(opts.CacheDir),
		log:         log,
		run:         runCommand,
	}
}

func runCommand(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	b, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s failed: %w\n%s", name, err, string(b))
	}
	return nil
}

func resolveCacheDir(override string) string {
	if override != "" {
		return override
	}
	if hf := os.Getenv("HF_HOME"); hf != "" {
		return hf
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".cache", "huggingface")
	}
	return filepath.Join(home, ".cache", "huggingface")
}

// Transcribe runs whisperx on videoPath and returns the path of the word
// aligned transcript JSON. With skipIfExists set, an already present
// transcript short-circuits the subprocess entirely.
func (a *Adapter) Transcribe(ctx context.Context, videoPath, language string, skipIfExists bool) (string, error) {
	stem := strings.TrimSuffix(filepath.Base(videoPath), filepath.Ext(videoPath))
	transcriptPath := filepath.Join(a.outputDir, stem+".json")

	if skipIfExists {
		if _, err := os.Stat(transcriptPath); err == nil {
			a.log.WithField("transcript", transcriptPath).Info("transcript exists, skipping whisperx")
			return transcriptPath, nil
		}
	}

	if err := os.MkdirAll(a.outputDir, 0o755); err != nil {
		return "", fmt.Errorf("create transcript dir: %w", err)
	}

	args := []string{
		videoPath,
		"--model", a.modelSize,
		"--device", a.device,
		"--compute_type", a.computeType,
		"--output_dir", a.outputDir,
		"--output_format", "json",
	}
	if language != "" {
		args = append(args, "--language", language)
	}
	if err := a.run(ctx, a.bin, args...); err != nil {
		return "", err
	}

	if err := normalizeTranscript(transcriptPath); err != nil {
		return "", err
	}
	return transcriptPath, nil
}

// normalizeTranscript trims the leading space whisper emits on most words so
// downstream consumers never have to.
func normalizeTranscript(path string) error {
	tr, err := types.LoadTranscript(path)
	if err != nil {
		return err
	}
	for i := range tr.Segments {
		tr.Segments[i].Text = strings.TrimSpace(tr.Segments[i].Text)
		for j := range tr.Segments[i].Words {
			tr.Segments[i].Words[j].Word = strings.TrimSpace(tr.Segments[i].Words[j].Word)
		}
	}
	for i := range tr.WordSegments {
		tr.WordSegments[i].Word = strings.TrimSpace(tr.WordSegments[i].Word)
	}
	b, err := json.Marshal(tr)
	if err != nil {
		return fmt.Errorf("marshal transcript: %w", err)
	}
	return os.WriteFile(path, b, 0o644)
}

const whisperRepoPrefix = "Systran/faster-whisper-"

// alignRepos maps whisperx alignment languages to their wav2vec2 checkpoints.
var alignRepos = map[string]string{
	"en": "jonatasgrosman/wav2vec2-large-xlsr-53-english",
	"es": "jonatasgrosman/wav2vec2-large-xlsr-53-spanish",
	"fr": "jonatasgrosman/wav2vec2-large-xlsr-53-french",
	"de": "jonatasgrosman/wav2vec2-large-xlsr-53-german",
	"it": "jonatasgrosman/wav2vec2-large-xlsr-53-italian",
	"pt": "jonatasgrosman/wav2vec2-large-xlsr-53-portuguese",
	"nl": "jonatasgrosman/wav2vec2-large-xlsr-53-dutch",
	"ru": "jonatasgrosman/wav2vec2-large-xlsr-53-russian",
	"ja": "jonatasgrosman/wav2vec2-large-xlsr-53-japanese",
	"zh": "jonatasgrosman/wav2vec2-large-xlsr-53-chinese-zh-cn",
}

func (a *Adapter) ModelCached(modelSize string) bool {
	return a.repoCached(whisperRepoPrefix + modelSize)
}

func (a *Adapter) FetchModel(ctx context.Context, modelSize, device, computeType string) error {
	a.log.WithField("model", modelSize).Info("downloading whisper model")
	return a.run(ctx, a.hubBin, "download", whisperRepoPrefix+modelSize)
}

func (a *Adapter) AlignModelCached(language string) bool {
	repo, ok := alignRepos[language]
	if !ok {
		return false
	}
	return a.repoCached(repo)
}

func (a *Adapter) FetchAlignModel(ctx context.Context, language, device string) error {
	repo, ok := alignRepos[language]
	if !ok {
		return fmt.Errorf("no alignment model known for language %q", language)
	}
	a.log.WithField("language", language).Info("downloading alignment model")
	return a.run(ctx, a.hubBin, "download", repo)
}

// repoCached reports whether the Hugging Face hub cache holds at least one
// snapshot of the repo.
func (a *Adapter) repoCached(repo string) bool {
	dir := filepath.Join(a.cacheDir, "hub", "models--"+strings.ReplaceAll(repo, "/", "--"), "snapshots")
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false
	}
	return len(entries) > 0
}
