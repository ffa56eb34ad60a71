package trim

import (
	"testing"

	"clipcut/internal/types"
)

func transcriptWith(words ...types.Word) types.Transcript {
	return types.Transcript{Segments: []types.Segment{{Start: 0, End: 100, Words: words}}}
}

func TestTrimToSpeech(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name        string
		words       []types.Word
		start, end  float64
		budgetStart int
		budgetEnd   int
		wantStart   float64
		wantEnd     float64
	}{
		{
			name:        "silence beyond budget snaps both edges",
			words:       []types.Word{{Start: 2.0, End: 2.2, Word: "hi"}},
			start:       0, end: 10,
			budgetStart: 1000, budgetEnd: 1000,
			wantStart: 1.0, wantEnd: 3.2,
		},
		{
			name:        "silence within budget is left alone",
			words:       []types.Word{{Start: 0.5, End: 0.7, Word: "hi"}},
			start:       0, end: 10,
			budgetStart: 1000, budgetEnd: 1000,
			wantStart: 0.0, wantEnd: 1.7,
		},
		{
			name:        "no speech in window is a no-op",
			words:       nil,
			start:       5, end: 9,
			budgetStart: 1000, budgetEnd: 1000,
			wantStart: 5, wantEnd: 9,
		},
		{
			name:        "word overlapping start pins the boundary",
			words:       []types.Word{{Start: 1.0, End: 2.0, Word: "hi"}},
			start:       1.5, end: 10,
			budgetStart: 1000, budgetEnd: 1000,
			wantStart: 1.5, wantEnd: 3.0,
		},
		{
			name:        "zero budgets disable trimming",
			words:       []types.Word{{Start: 2.0, End: 2.2, Word: "hi"}},
			start:       0, end: 10,
			budgetStart: 0, budgetEnd: 0,
			wantStart: 0, wantEnd: 10,
		},
		{
			name:        "only end budget set leaves start untouched",
			words:       []types.Word{{Start: 2.0, End: 2.2, Word: "hi"}},
			start:       0, end: 10,
			budgetStart: 0, budgetEnd: 500,
			wantStart: 0, wantEnd: 2.7,
		},
		{
			name:        "inverted window returned unchanged",
			words:       []types.Word{{Start: 2.0, End: 2.2, Word: "hi"}},
			start:       9, end: 4,
			budgetStart: 1000, budgetEnd: 1000,
			wantStart: 9, wantEnd: 4,
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			gotStart, gotEnd := TrimToSpeech(transcriptWith(tc.words...), tc.start, tc.end, tc.budgetStart, tc.budgetEnd)
			if !almostEqual(gotStart, tc.wantStart) || !almostEqual(gotEnd, tc.wantEnd) {
				t.Fatalf("TrimToSpeech = (%v, %v), want (%v, %v)", gotStart, gotEnd, tc.wantStart, tc.wantEnd)
			}
		})
	}
}

func TestTrimToSpeechNeverExpandsWindow(t *testing.T) {
	t.Parallel()

	// Speech starts before the window; a naive snap would move the start
	// left of the nominal boundary.
	tr := transcriptWith(types.Word{Start: 0.2, End: 6.0, Word: "long"})
	start, end := TrimToSpeech(tr, 1.0, 10.0, 2000, 2000)
	if start < 1.0 {
		t.Fatalf("start expanded outward: %v", start)
	}
	if end > 10.0 {
		t.Fatalf("end expanded outward: %v", end)
	}
}

func TestSpeechBoundsUsesWordSegments(t *testing.T) {
	t.Parallel()

	tr := types.Transcript{WordSegments: []types.Word{{Start: 3.0, End: 3.5, Word: "hey"}}}
	first, last, ok := SpeechBounds(tr.Words(), 0, 10)
	if !ok {
		t.Fatal("expected speech bounds from word_segments")
	}
	if first != 3.0 || last != 3.5 {
		t.Fatalf("bounds = (%v, %v), want (3, 3.5)", first, last)
	}
}

func TestSpeechBoundsIgnoresDegenerateWords(t *testing.T) {
	t.Parallel()

	words := []types.Word{
		{Start: 5.0, End: 5.0, Word: "zero"},
		{Start: 6.0, End: 5.5, Word: "inverted"},
	}
	if _, _, ok := SpeechBounds(words, 0, 10); ok {
		t.Fatal("expected no bounds from degenerate words")
	}
}

func almostEqual(a, b float64) bool {
	d := a - b
	if d < 0 {
		d = -d
	}
	return d < 1e-9
}
