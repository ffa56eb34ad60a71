package core

import (
	"context"

	"clipcut/internal/types"
)

// StateStore persists per-video artifact progress and job records. The
// sqlite implementation lives in internal/state.
type StateStore interface {
	GetVideoState(ctx context.Context, videoID string) (VideoState, bool, error)
	MarkTranscribed(ctx context.Context, videoID, transcriptPath string) error
	MarkClipsGenerated(ctx context.Context, videoID string, clips []types.Clip, metadataPath string) error
	MarkClipsExported(ctx context.Context, videoID string, exported []string, aspectRatio string) error
	MarkShortsExported(ctx context.Context, videoID, shortPath string) error
	UpdateJobStatus(ctx context.Context, jobID string, status JobStatus) error
}

// ExportRequest describes one export_clips unit of work.
type ExportRequest struct {
	VideoPath      string
	VideoName      string
	OutputDir      string
	Clips          []types.Clip
	ClipStyles     map[int]string
	TranscriptPath string
	Settings       ExportSettings
}

// ShortRequest describes one whole-video export_shorts unit of work.
type ShortRequest struct {
	VideoPath      string
	VideoName      string
	OutputDir      string
	Filename       string
	TranscriptPath string
	Settings       ShortsSettings
}

// ClipExporter renders clips and shorts to disk. Implemented by the ffmpeg
// engine in internal/export.
type ClipExporter interface {
	// ExportClips renders every clip in the request. A failed clip is
	// logged and skipped; the returned slice holds only the paths that
	// rendered successfully.
	ExportClips(ctx context.Context, req ExportRequest) ([]string, error)
	// ExportShort renders the whole source video as a single short.
	ExportShort(ctx context.Context, req ShortRequest) (string, error)
}

// DependencyGate ensures external model artifacts are present before a
// transcription step runs. Implemented by deps.TranscriptionGate.
type DependencyGate interface {
	EnsureTranscription(ctx context.Context, modelSize, device, computeType string, languages []string) error
}
