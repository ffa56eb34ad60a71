package core

import (
	"fmt"
	"time"

	"clipcut/internal/types"
)

// JobStep is one pipeline stage applied to a video.
type JobStep string

const (
	StepDownload      JobStep = "download"
	StepTranscribe    JobStep = "transcribe"
	StepGenerateClips JobStep = "generate_clips"
	StepExportClips   JobStep = "export_clips"
	StepExportShorts  JobStep = "export_shorts"
)

var allSteps = []JobStep{
	StepDownload,
	StepTranscribe,
	StepGenerateClips,
	StepExportClips,
	StepExportShorts,
}

// ParseStep maps a wire value to a JobStep.
func ParseStep(raw string) (JobStep, error) {
	for _, s := range allSteps {
		if string(s) == raw {
			return s, nil
		}
	}
	return "", fmt.Errorf("%w: unknown job step %q", ErrConfiguration, raw)
}

// JobState is the job lifecycle. Terminal states are final.
type JobState string

const (
	StatePending   JobState = "pending"
	StateRunning   JobState = "running"
	StateSucceeded JobState = "succeeded"
	StateFailed    JobState = "failed"
	StateCanceled  JobState = "canceled"
)

// Terminal reports whether the state admits no further transitions.
func (s JobState) Terminal() bool {
	switch s {
	case StateSucceeded, StateFailed, StateCanceled:
		return true
	}
	return false
}

// JobSpec describes one batch unit: an ordered list of steps applied to an
// ordered list of registered videos. Immutable once enqueued.
type JobSpec struct {
	JobID    string      `json:"job_id"`
	VideoIDs []string    `json:"video_ids"`
	Steps    []JobStep   `json:"steps"`
	Settings JobSettings `json:"settings"`
}

// ProgressTotal is the number of progress units the job will consume.
func (s JobSpec) ProgressTotal() int {
	steps := len(s.Steps)
	if steps < 1 {
		steps = 1
	}
	return len(s.VideoIDs) * steps
}

// JobSettings carries per-step configuration, keyed by step the way the
// job spec is serialized.
type JobSettings struct {
	Transcribe TranscribeSettings `json:"transcribe,omitempty"`
	Clips      ClipSettings       `json:"clips,omitempty"`
	Export     ExportSettings     `json:"export,omitempty"`
	Shorts     ShortsSettings     `json:"shorts,omitempty"`
}

// TranscribeSettings configures the transcription step.
type TranscribeSettings struct {
	Model       string `json:"model,omitempty"`
	Device      string `json:"device,omitempty"`
	ComputeType string `json:"compute_type,omitempty"`
	Language    string `json:"language,omitempty"`
	SkipDone    *bool  `json:"skip_done,omitempty"`
}

// ModelOrDefault returns the configured model size, defaulting to "base".
func (s TranscribeSettings) ModelOrDefault() string {
	if s.Model == "" {
		return "base"
	}
	return s.Model
}

// DeviceOrDefault returns the configured device, defaulting to "cpu".
func (s TranscribeSettings) DeviceOrDefault() string {
	if s.Device == "" {
		return "cpu"
	}
	return s.Device
}

// ComputeTypeOrDefault returns the configured compute type, defaulting to "int8".
func (s TranscribeSettings) ComputeTypeOrDefault() string {
	if s.ComputeType == "" {
		return "int8"
	}
	return s.ComputeType
}

// ClipSettings configures the clip-detection step.
type ClipSettings struct {
	MinSeconds int   `json:"min_seconds,omitempty"`
	MaxSeconds int   `json:"max_seconds,omitempty"`
	MinClips   int   `json:"min_clips,omitempty"`
	MaxClips   int   `json:"max_clips,omitempty"`
	SkipDone   *bool `json:"skip_done,omitempty"`
}

// ExportSettings configures clip rendering.
type ExportSettings struct {
	AspectRatio             string  `json:"aspect_ratio,omitempty"`
	AddSubtitles            bool    `json:"add_subtitles,omitempty"`
	SubtitleStyle           string  `json:"subtitle_style,omitempty"`
	SubtitleMaxCharsPerLine int     `json:"subtitle_max_chars_per_line,omitempty"`
	SubtitleMaxDuration     float64 `json:"subtitle_max_duration,omitempty"`
	OrganizeByStyle         bool    `json:"organize_by_style,omitempty"`
	EnableFaceTracking      bool    `json:"enable_face_tracking,omitempty"`
	FaceTrackingStrategy    string  `json:"face_tracking_strategy,omitempty"`
	FaceTrackingSampleRate  int     `json:"face_tracking_sample_rate,omitempty"`
	AddLogo                 bool    `json:"add_logo,omitempty"`
	LogoPath                string  `json:"logo_path,omitempty"`
	LogoPosition            string  `json:"logo_position,omitempty"`
	LogoScale               float64 `json:"logo_scale,omitempty"`
	TrimStartMS             int     `json:"trim_ms_start,omitempty"`
	TrimEndMS               int     `json:"trim_ms_end,omitempty"`
	VideoCRF                int     `json:"video_crf,omitempty"`
	FFmpegThreads           int     `json:"ffmpeg_threads,omitempty"`
	SkipDone                *bool   `json:"skip_done,omitempty"`
}

// ShortsSettings configures whole-video short export.
type ShortsSettings struct {
	// InputPaths optionally overrides the source video per video id, so a
	// previously exported clip can be re-processed as a short.
	InputPaths    map[string]string `json:"input_paths,omitempty"`
	Filename      string            `json:"filename,omitempty"`
	AddSubtitles  bool              `json:"add_subtitles,omitempty"`
	SubtitleStyle string            `json:"subtitle_style,omitempty"`
	AddLogo       bool              `json:"add_logo,omitempty"`
	LogoPath      string            `json:"logo_path,omitempty"`
	LogoPosition  string            `json:"logo_position,omitempty"`
	LogoScale     float64           `json:"logo_scale,omitempty"`
	TrimStartMS   int               `json:"trim_ms_start,omitempty"`
	TrimEndMS     int               `json:"trim_ms_end,omitempty"`
	SkipDone      *bool             `json:"skip_done,omitempty"`
}

// skipDone resolves the tri-state skip flag; re-running finished steps is
// skipped unless explicitly disabled.
func skipDone(v *bool) bool {
	if v == nil {
		return true
	}
	return *v
}

// JobStatus is the mutable run record persisted alongside a JobSpec.
type JobStatus struct {
	State           JobState `json:"state"`
	ProgressCurrent int      `json:"progress_current"`
	ProgressTotal   int      `json:"progress_total"`
	Label           string   `json:"label,omitempty"`
	StartedAt       string   `json:"started_at,omitempty"`
	FinishedAt      string   `json:"finished_at,omitempty"`
	Error           string   `json:"error,omitempty"`
}

// NewJobStatus returns a pending status sized for the given spec.
func NewJobStatus(spec JobSpec) JobStatus {
	return JobStatus{State: StatePending, ProgressTotal: spec.ProgressTotal()}
}

func (s *JobStatus) markStarted(now time.Time) {
	s.State = StateRunning
	s.StartedAt = now.Format(time.RFC3339)
}

func (s *JobStatus) markSucceeded(now time.Time) {
	s.State = StateSucceeded
	s.FinishedAt = now.Format(time.RFC3339)
}

func (s *JobStatus) markFailed(now time.Time, err error) {
	s.State = StateFailed
	s.Error = err.Error()
	s.FinishedAt = now.Format(time.RFC3339)
}

// VideoState is the persisted per-video artifact record in the state store.
// Each mark call in the store updates one slice of it durably.
type VideoState struct {
	VideoID        string         `json:"video_id"`
	Filename       string         `json:"filename"`
	Path           string         `json:"path"`
	ContentType    string         `json:"content_type,omitempty"`
	Transcribed    bool           `json:"transcribed,omitempty"`
	TranscriptPath string         `json:"transcript_path,omitempty"`
	ClipsGenerated bool           `json:"clips_generated,omitempty"`
	Clips          []types.Clip   `json:"clips,omitempty"`
	ClipsMetadata  string         `json:"clips_metadata_path,omitempty"`
	ClipStyles     map[int]string `json:"clip_styles,omitempty"`
	ClipsExported  bool           `json:"clips_exported,omitempty"`
	ExportedClips  []string       `json:"exported_clips,omitempty"`
	ExportAspect   string         `json:"export_aspect_ratio,omitempty"`
	ShortsExported bool           `json:"shorts_exported,omitempty"`
	ShortPath      string         `json:"short_path,omitempty"`
}
