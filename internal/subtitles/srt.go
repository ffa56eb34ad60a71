// Package subtitles renders clip-relative SRT files from word-aligned
// transcripts for burn-in by the render engine.
package subtitles

import (
	"fmt"
	"os"
	"strings"

	"clipcut/internal/types"
)

// Writer implements ports.SubtitleWriter on top of transcript JSON files.
type Writer struct{}

// NewWriter returns a transcript-backed subtitle writer.
func NewWriter() *Writer { return &Writer{} }

type cue struct {
	start float64
	end   float64
	text  string
}

// GenerateSRTForClip writes an SRT covering [clipStart, clipEnd) with
// timestamps rebased so the first clip frame is 00:00:00,000. Segments are
// clamped to the window, wrapped at maxCharsPerLine, and split so no cue
// outlives maxDuration seconds. Returns ok=false when nothing spoken falls
// inside the window.
func (w *Writer) GenerateSRTForClip(transcriptPath string, clipStart, clipEnd float64, outputPath string, maxCharsPerLine int, maxDuration float64) (bool, error) {
	if clipEnd <= clipStart {
		return false, fmt.Errorf("invalid clip window [%v, %v)", clipStart, clipEnd)
	}
	tr, err := types.LoadTranscript(transcriptPath)
	if err != nil {
		return false, err
	}

	cues := buildCues(tr, clipStart, clipEnd, maxDuration)
	if len(cues) == 0 {
		return false, nil
	}

	var b strings.Builder
	for i, c := range cues {
		fmt.Fprintf(&b, "%d\n", i+1)
		fmt.Fprintf(&b, "%s --> %s\n", formatTimestamp(c.start), formatTimestamp(c.end))
		for _, line := range splitTextIntoLines(c.text, maxCharsPerLine) {
			b.WriteString(line)
			b.WriteByte('\n')
		}
		b.WriteByte('\n')
	}

	if err := os.WriteFile(outputPath, []byte(b.String()), 0o644); err != nil {
		return false, fmt.Errorf("write srt: %w", err)
	}
	return true, nil
}

func buildCues(tr types.Transcript, clipStart, clipEnd, maxDuration float64) []cue {
	var out []cue
	for _, seg := range tr.Segments {
		if seg.End <= clipStart || seg.Start >= clipEnd {
			continue
		}
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}

		start := seg.Start
		if start < clipStart {
			start = clipStart
		}
		end := seg.End
		if end > clipEnd {
			end = clipEnd
		}
		if end <= start {
			continue
		}

		out = append(out, splitCue(cue{start: start - clipStart, end: end - clipStart, text: text}, maxDuration)...)
	}
	return out
}

// splitCue chops an over-long cue into equal slices under maxDuration,
// distributing words proportionally so pacing stays roughly aligned.
func splitCue(c cue, maxDuration float64) []cue {
	if maxDuration <= 0 || c.end-c.start <= maxDuration {
		return []cue{c}
	}

	words := strings.Fields(c.text)
	total := c.end - c.start
	parts := int(total/maxDuration) + 1
	if parts > len(words) {
		parts = len(words)
	}
	if parts <= 1 {
		return []cue{c}
	}

	out := make([]cue, 0, parts)
	span := total / float64(parts)
	perPart := (len(words) + parts - 1) / parts
	for i := 0; i < parts; i++ {
		lo := i * perPart
		if lo >= len(words) {
			break
		}
		hi := lo + perPart
		if hi > len(words) {
			hi = len(words)
		}
		out = append(out, cue{
			start: c.start + float64(i)*span,
			end:   c.start + float64(i+1)*span,
			text:  strings.Join(words[lo:hi], " "),
		})
	}
	return out
}

// splitTextIntoLines wraps text at word boundaries. A single word longer
// than maxChars is kept intact on its own line.
func splitTextIntoLines(text string, maxChars int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if maxChars <= 0 {
		maxChars = 42
	}

	var lines []string
	var cur strings.Builder
	for _, word := range strings.Fields(text) {
		switch {
		case cur.Len() == 0:
			cur.WriteString(word)
		case cur.Len()+1+len(word) <= maxChars:
			cur.WriteByte(' ')
			cur.WriteString(word)
		default:
			lines = append(lines, cur.String())
			cur.Reset()
			cur.WriteString(word)
		}
	}
	if cur.Len() > 0 {
		lines = append(lines, cur.String())
	}
	return lines
}

// formatTimestamp renders seconds as the SRT HH:MM:SS,mmm form.
func formatTimestamp(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	totalMS := int64(seconds*1000 + 0.5)
	ms := totalMS % 1000
	totalSec := totalMS / 1000
	h := totalSec / 3600
	m := (totalSec % 3600) / 60
	s := totalSec % 60
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms)
}
