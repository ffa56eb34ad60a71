package state

import (
	"context"

	"clipcut/internal/core"
	"clipcut/internal/types"
)

// MarkTranscribed records the transcript artifact for a video.
func (s *Store) MarkTranscribed(ctx context.Context, videoID, transcriptPath string) error {
	return s.mutateVideo(ctx, videoID, func(st *core.VideoState) {
		st.Transcribed = true
		st.TranscriptPath = transcriptPath
	})
}

// MarkClipsGenerated records detected clips and their metadata artifact.
func (s *Store) MarkClipsGenerated(ctx context.Context, videoID string, clips []types.Clip, metadataPath string) error {
	return s.mutateVideo(ctx, videoID, func(st *core.VideoState) {
		st.ClipsGenerated = true
		st.Clips = clips
		st.ClipsMetadata = metadataPath
	})
}

// MarkClipsExported records rendered clip paths for a video.
func (s *Store) MarkClipsExported(ctx context.Context, videoID string, exported []string, aspectRatio string) error {
	return s.mutateVideo(ctx, videoID, func(st *core.VideoState) {
		st.ClipsExported = true
		st.ExportedClips = exported
		st.ExportAspect = aspectRatio
	})
}

// MarkShortsExported records the whole-video short artifact.
func (s *Store) MarkShortsExported(ctx context.Context, videoID, shortPath string) error {
	return s.mutateVideo(ctx, videoID, func(st *core.VideoState) {
		st.ShortsExported = true
		st.ShortPath = shortPath
	})
}

// SetClipStyles records style classification metadata used to organize
// exports into per-style subdirectories.
func (s *Store) SetClipStyles(ctx context.Context, videoID string, styles map[int]string) error {
	return s.mutateVideo(ctx, videoID, func(st *core.VideoState) {
		st.ClipStyles = styles
	})
}
