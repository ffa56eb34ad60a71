package types

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Transcript is the word-aligned transcription schema shared across the
// pipeline: transcriber adapters produce it, the clip detector and the
// boundary trimmer consume it.
type Transcript struct {
	Segments     []Segment `json:"segments"`
	WordSegments []Word    `json:"word_segments,omitempty"`
	Language     string    `json:"language,omitempty"`
}

type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
	Words []Word  `json:"words,omitempty"`
}

type Word struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Word  string  `json:"word"`
}

// Words flattens per-segment words plus any top-level word segments,
// preserving transcript order. Words with empty text or a non-positive
// interval are dropped.
func (t Transcript) Words() []Word {
	var out []Word
	for _, s := range t.Segments {
		for _, w := range s.Words {
			if w.End <= w.Start || strings.TrimSpace(w.Word) == "" {
				continue
			}
			out = append(out, w)
		}
	}
	for _, w := range t.WordSegments {
		if w.End <= w.Start || strings.TrimSpace(w.Word) == "" {
			continue
		}
		out = append(out, w)
	}
	return out
}

// LoadTranscript reads a transcript JSON file produced by a transcriber
// adapter. Timestamps are absolute seconds on the original media timeline.
func LoadTranscript(path string) (Transcript, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Transcript{}, fmt.Errorf("read transcript: %w", err)
	}
	var tr Transcript
	if err := json.Unmarshal(b, &tr); err != nil {
		return Transcript{}, fmt.Errorf("parse transcript %s: %w", path, err)
	}
	return tr, nil
}

// Clip is a time-windowed excerpt of a source video selected for export.
type Clip struct {
	ID          int     `json:"clip_id"`
	Start       float64 `json:"start_time"`
	End         float64 `json:"end_time"`
	Duration    float64 `json:"duration"`
	TextPreview string  `json:"text_preview,omitempty"`
}
