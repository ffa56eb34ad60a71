package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"clipcut/internal/ports"
)

// Runner drives a job through its steps: videos outer, steps inner, in the
// exact listed order. One step at a time; nothing is rendered or inferred
// in parallel. Progress and per-video artifacts are persisted after each
// transition so an interrupted batch can be re-run cheaply.
type Runner struct {
	store       StateStore
	exporter    ClipExporter
	gate        DependencyGate
	transcriber ports.Transcriber
	detector    ports.ClipDetector
	emit        EmitFunc
	outputDir   string

	// Dependency pre-flights confirmed this run, keyed by model config.
	depsOK map[string]struct{}

	now func() time.Time
}

// RunnerOptions wires the runner's collaborators. Emit may be nil.
type RunnerOptions struct {
	Store       StateStore
	Exporter    ClipExporter
	Gate        DependencyGate
	Transcriber ports.Transcriber
	Detector    ports.ClipDetector
	Emit        EmitFunc
	OutputDir   string
}

// NewRunner builds a Runner. OutputDir defaults to "output".
func NewRunner(opts RunnerOptions) *Runner {
	emit := opts.Emit
	if emit == nil {
		emit = func(Event) {}
	}
	outputDir := opts.OutputDir
	if outputDir == "" {
		outputDir = "output"
	}
	return &Runner{
		store:       opts.Store,
		exporter:    opts.Exporter,
		gate:        opts.Gate,
		transcriber: opts.Transcriber,
		detector:    opts.Detector,
		emit:        emit,
		outputDir:   outputDir,
		depsOK:      make(map[string]struct{}),
		now:         time.Now,
	}
}

// RunJob executes the spec and returns its final status. Any step error
// aborts the remaining work for the whole job and marks it FAILED; artifacts
// persisted before the failure stay valid. The returned status is also
// persisted to the state store.
func (r *Runner) RunJob(ctx context.Context, spec JobSpec) JobStatus {
	status := NewJobStatus(spec)
	status.markStarted(r.now())
	r.emit(JobStatusEvent{CoreEvent: newCoreEvent(spec.JobID, ""), State: status.State})
	r.persistStatus(ctx, spec.JobID, status)

	runDir, err := r.ensureRunDir(spec.JobID)
	if err != nil {
		return r.failJob(ctx, spec.JobID, &status, err)
	}

	for _, videoID := range spec.VideoIDs {
		videoDir := filepath.Join(runDir, videoID)
		if err := os.MkdirAll(videoDir, 0o755); err != nil {
			return r.failJob(ctx, spec.JobID, &status, fmt.Errorf("create video cache dir: %w", err))
		}

		for _, step := range spec.Steps {
			status.Label = fmt.Sprintf("%s (%s)", step, videoID)
			r.emit(ProgressEvent{
				CoreEvent: newCoreEvent(spec.JobID, videoID),
				Current:   status.ProgressCurrent, Total: status.ProgressTotal, Label: status.Label,
			})

			if err := r.runStep(ctx, spec.JobID, videoID, step, spec.Settings, videoDir); err != nil {
				return r.failJob(ctx, spec.JobID, &status, err)
			}

			status.ProgressCurrent++
			r.persistStatus(ctx, spec.JobID, status)
			r.emit(ProgressEvent{
				CoreEvent: newCoreEvent(spec.JobID, videoID),
				Current:   status.ProgressCurrent, Total: status.ProgressTotal, Label: status.Label,
			})
		}
	}

	status.markSucceeded(r.now())
	r.emit(JobStatusEvent{CoreEvent: newCoreEvent(spec.JobID, ""), State: status.State})
	r.persistStatus(ctx, spec.JobID, status)
	return status
}

func (r *Runner) failJob(ctx context.Context, jobID string, status *JobStatus, err error) JobStatus {
	status.markFailed(r.now(), err)
	r.emit(LogEvent{CoreEvent: newCoreEvent(jobID, ""), Level: LevelError, Message: "job failed: " + err.Error()})
	r.emit(JobStatusEvent{CoreEvent: newCoreEvent(jobID, ""), State: status.State, Error: status.Error})
	r.persistStatus(ctx, jobID, *status)
	return *status
}

// persistStatus is best-effort: a store hiccup must not knock over a job
// that is otherwise making progress, so it is reported as a warning.
func (r *Runner) persistStatus(ctx context.Context, jobID string, status JobStatus) {
	if err := r.store.UpdateJobStatus(ctx, jobID, status); err != nil {
		r.emit(LogEvent{
			CoreEvent: newCoreEvent(jobID, ""),
			Level:     LevelWarning,
			Message:   "could not persist job status: " + err.Error(),
		})
	}
}

// ensureRunDir creates the job-scoped cache directory. Intermediate
// artifacts live here; final renders go to the exports directory so they
// survive cache cleanup.
func (r *Runner) ensureRunDir(jobID string) (string, error) {
	dir := filepath.Join(r.outputDir, ".cache", jobID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create job cache dir: %w", err)
	}
	return dir, nil
}

func (r *Runner) exportDirFor(videoID string) string {
	return filepath.Join(r.outputDir, "exports", videoID)
}

func (r *Runner) runStep(ctx context.Context, jobID, videoID string, step JobStep, settings JobSettings, videoDir string) error {
	switch step {
	case StepTranscribe:
		return r.stepTranscribe(ctx, jobID, videoID, settings.Transcribe, videoDir)
	case StepGenerateClips:
		return r.stepGenerateClips(ctx, jobID, videoID, settings.Clips, videoDir)
	case StepExportClips:
		return r.stepExportClips(ctx, jobID, videoID, settings.Export)
	case StepExportShorts:
		return r.stepExportShorts(ctx, jobID, videoID, settings, videoDir)
	case StepDownload:
		return Wrap(ErrConfiguration, "dispatch step",
			errors.New("download is not a job step; register videos before enqueueing"))
	default:
		return Wrap(ErrConfiguration, "dispatch step", fmt.Errorf("unknown job step %q", step))
	}
}

func (r *Runner) videoState(ctx context.Context, videoID string) (VideoState, error) {
	st, ok, err := r.store.GetVideoState(ctx, videoID)
	if err != nil {
		return VideoState{}, fmt.Errorf("load video state: %w", err)
	}
	if !ok || st.Path == "" {
		return VideoState{}, fmt.Errorf("video path not registered for %q", videoID)
	}
	return st, nil
}

func (r *Runner) stepTranscribe(ctx context.Context, jobID, videoID string, set TranscribeSettings, videoDir string) error {
	r.logInfo(jobID, videoID, "starting transcription")

	st, err := r.videoState(ctx, videoID)
	if err != nil {
		return err
	}

	if st.Transcribed && st.TranscriptPath != "" && skipDone(set.SkipDone) {
		r.cacheArtifact(jobID, videoID, st.TranscriptPath, videoDir)
		r.logInfo(jobID, videoID, "already transcribed; skipping")
		return nil
	}

	if err := r.ensureTranscriptionDeps(ctx, set); err != nil {
		return err
	}

	transcriptPath, err := r.transcriber.Transcribe(ctx, st.Path, set.Language, true)
	if err != nil {
		return fmt.Errorf("transcription failed: %w", err)
	}
	if transcriptPath == "" {
		return errors.New("transcription failed (no transcript returned)")
	}

	if err := r.store.MarkTranscribed(ctx, videoID, transcriptPath); err != nil {
		return fmt.Errorf("persist transcript: %w", err)
	}
	r.emit(StateEvent{
		CoreEvent: newCoreEvent(jobID, videoID),
		Updates:   map[string]any{"transcribed": true, "transcript_path": transcriptPath},
	})
	r.logInfo(jobID, videoID, "transcription complete")
	return nil
}

// ensureTranscriptionDeps runs the dependency gate once per model
// configuration per job run; later videos with the same configuration skip
// the pre-flight entirely.
func (r *Runner) ensureTranscriptionDeps(ctx context.Context, set TranscribeSettings) error {
	model := set.ModelOrDefault()
	device := set.DeviceOrDefault()
	computeType := set.ComputeTypeOrDefault()

	key := strings.Join([]string{model, set.Language, device, computeType}, "|")
	if _, ok := r.depsOK[key]; ok {
		return nil
	}

	var languages []string
	if set.Language != "" {
		languages = []string{set.Language}
	}
	if err := r.gate.EnsureTranscription(ctx, model, device, computeType, languages); err != nil {
		return err
	}
	r.depsOK[key] = struct{}{}
	return nil
}

func (r *Runner) stepGenerateClips(ctx context.Context, jobID, videoID string, set ClipSettings, videoDir string) error {
	r.logInfo(jobID, videoID, "generating clips")

	st, err := r.videoState(ctx, videoID)
	if err != nil {
		return err
	}
	if st.TranscriptPath == "" {
		return errors.New("no transcript path found; run transcribe first")
	}

	if (st.ClipsGenerated || st.ClipsMetadata != "") && skipDone(set.SkipDone) {
		r.cacheArtifact(jobID, videoID, st.ClipsMetadata, videoDir)
		r.logInfo(jobID, videoID, "clips already generated; skipping")
		return nil
	}

	minClips := set.MinClips
	if minClips <= 0 {
		minClips = 3
	}
	maxClips := set.MaxClips
	if maxClips <= 0 {
		maxClips = 10
	}

	clips, err := r.detector.GenerateClips(ctx, st.TranscriptPath, minClips, maxClips)
	if err != nil {
		return fmt.Errorf("clip generation failed: %w", err)
	}
	if len(clips) == 0 {
		return errors.New("clip generation failed (no clips returned)")
	}

	metadataPath, err := r.detector.SaveClipsMetadata(clips, videoID, videoDir)
	if err != nil {
		return fmt.Errorf("save clip metadata: %w", err)
	}

	if err := r.store.MarkClipsGenerated(ctx, videoID, clips, metadataPath); err != nil {
		return fmt.Errorf("persist clips: %w", err)
	}
	r.emit(StateEvent{
		CoreEvent: newCoreEvent(jobID, videoID),
		Updates: map[string]any{
			"clips_generated":     true,
			"clips_count":         len(clips),
			"clips_metadata_path": metadataPath,
		},
	})
	r.logInfo(jobID, videoID, "clip generation complete")
	return nil
}

func (r *Runner) stepExportClips(ctx context.Context, jobID, videoID string, set ExportSettings) error {
	r.logInfo(jobID, videoID, "exporting clips")

	st, err := r.videoState(ctx, videoID)
	if err != nil {
		return err
	}
	if len(st.Clips) == 0 {
		return errors.New("no clips in state; run generate_clips first")
	}

	if st.ClipsExported && skipDone(set.SkipDone) {
		r.logInfo(jobID, videoID, "clips already exported; skipping")
		return nil
	}

	exported, err := r.exporter.ExportClips(ctx, ExportRequest{
		VideoPath:      st.Path,
		VideoName:      videoID,
		OutputDir:      r.exportDirFor(videoID),
		Clips:          st.Clips,
		ClipStyles:     st.ClipStyles,
		TranscriptPath: st.TranscriptPath,
		Settings:       set,
	})
	if err != nil {
		return fmt.Errorf("export clips: %w", err)
	}

	if err := r.store.MarkClipsExported(ctx, videoID, exported, set.AspectRatio); err != nil {
		return fmt.Errorf("persist exported clips: %w", err)
	}
	r.emit(StateEvent{
		CoreEvent: newCoreEvent(jobID, videoID),
		Updates:   map[string]any{"clips_exported": true, "exported_count": len(exported)},
	})
	r.logInfo(jobID, videoID, "export complete")
	return nil
}

func (r *Runner) stepExportShorts(ctx context.Context, jobID, videoID string, settings JobSettings, videoDir string) error {
	r.logInfo(jobID, videoID, "exporting short")

	set := settings.Shorts
	st, err := r.videoState(ctx, videoID)
	if err != nil {
		return err
	}

	if st.ShortsExported && skipDone(set.SkipDone) {
		r.logInfo(jobID, videoID, "short already exported; skipping")
		return nil
	}

	// Subtitles and speech trimming both need a transcript; produce one on
	// demand so a shorts-only job does not require a separate transcribe
	// step.
	if st.TranscriptPath == "" && (set.AddSubtitles || set.TrimStartMS > 0 || set.TrimEndMS > 0) {
		if err := r.stepTranscribe(ctx, jobID, videoID, settings.Transcribe, videoDir); err != nil {
			return err
		}
		st, err = r.videoState(ctx, videoID)
		if err != nil {
			return err
		}
	}

	inputPath := st.Path
	if override, ok := set.InputPaths[videoID]; ok && override != "" {
		inputPath = override
	}

	shortPath, err := r.exporter.ExportShort(ctx, ShortRequest{
		VideoPath:      inputPath,
		VideoName:      videoID,
		OutputDir:      r.exportDirFor(videoID),
		Filename:       set.Filename,
		TranscriptPath: st.TranscriptPath,
		Settings:       set,
	})
	if err != nil {
		return fmt.Errorf("export short: %w", err)
	}

	if err := r.store.MarkShortsExported(ctx, videoID, shortPath); err != nil {
		return fmt.Errorf("persist exported short: %w", err)
	}
	r.emit(StateEvent{
		CoreEvent: newCoreEvent(jobID, videoID),
		Updates:   map[string]any{"shorts_exported": true, "short_path": shortPath},
	})
	r.logInfo(jobID, videoID, "short export complete")
	return nil
}

func (r *Runner) logInfo(jobID, videoID, message string) {
	r.emit(LogEvent{CoreEvent: newCoreEvent(jobID, videoID), Level: LevelInfo, Message: message})
}

// cacheArtifact copies a finished step's artifact into this job's cache so
// the run owns a complete record without touching another job's output.
// Copy failures only warn; the durable artifact still exists at its source.
func (r *Runner) cacheArtifact(jobID, videoID, src, videoDir string) {
	if src == "" {
		return
	}
	if err := copyFile(src, filepath.Join(videoDir, filepath.Base(src))); err != nil {
		r.emit(LogEvent{
			CoreEvent: newCoreEvent(jobID, videoID),
			Level:     LevelWarning,
			Message:   "could not cache artifact: " + err.Error(),
		})
	}
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
