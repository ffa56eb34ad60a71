// Package ports declares the contracts for external pipeline collaborators:
// transcription, clip detection, face reframing, and subtitle generation.
// Adapters under ports/adapters satisfy them by shelling out to the real
// tools; tests substitute fakes.
package ports

import (
	"context"

	"clipcut/internal/types"
)

// Transcriber produces a word-aligned transcript file for a video and
// returns its path. An empty path without an error means the component
// declined to transcribe; callers treat it as a failure.
type Transcriber interface {
	Transcribe(ctx context.Context, videoPath, language string, skipIfExists bool) (string, error)
}

// ClipDetector proposes clip windows from a transcript.
type ClipDetector interface {
	GenerateClips(ctx context.Context, transcriptPath string, minClips, maxClips int) ([]types.Clip, error)
	SaveClipsMetadata(clips []types.Clip, videoID, dir string) (string, error)
}

// Reframer produces a face-tracked, pre-cropped rendition of the clip
// window at the target resolution. It returns an error on any failure;
// callers fall back to the static crop path.
type Reframer interface {
	ReframeVideo(ctx context.Context, inputPath, outputPath string, targetWidth, targetHeight int, startTime, endTime float64) error
}

// SubtitleWriter renders an SRT file covering [clipStart, clipEnd) with
// timestamps rebased to the clip. ok=false means no cues fell inside the
// window and no file was written.
type SubtitleWriter interface {
	GenerateSRTForClip(transcriptPath string, clipStart, clipEnd float64, outputPath string, maxCharsPerLine int, maxDuration float64) (bool, error)
}
