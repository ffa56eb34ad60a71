// Package trim adjusts clip boundaries using word-level speech timing
// instead of fixed duration offsets. All functions are pure; both the
// per-clip and whole-video export paths call the same TrimToSpeech helper.
package trim

import "clipcut/internal/types"

// SpeechBounds finds the first and last speech timestamps inside the
// [start, end) window, in absolute seconds on the original timeline.
// A word that overlaps a window boundary counts as speech at that boundary,
// so the window can never be trimmed into it. Returns ok=false when no word
// intersects the window.
func SpeechBounds(words []types.Word, start, end float64) (first, last float64, ok bool) {
	if end <= start {
		return 0, 0, false
	}

	found := false
	for _, w := range words {
		if w.End <= w.Start {
			continue
		}
		if w.End <= start || w.Start >= end {
			continue
		}

		effStart := w.Start
		if effStart < start {
			effStart = start
		}
		effEnd := w.End
		if effEnd > end {
			effEnd = end
		}

		if !found {
			first, last = effStart, effEnd
			found = true
			continue
		}
		if effStart < first {
			first = effStart
		}
		if effEnd > last {
			last = effEnd
		}
	}

	if !found || last <= first {
		return 0, 0, false
	}
	return first, last, true
}

// TrimToSpeech trims excess silence from a clip window. trimStartMS and
// trimEndMS are independent maximum-silence budgets: when the gap between a
// nominal boundary and its speech edge exceeds the budget, the boundary
// snaps to speech edge minus (or plus) the budget. A window already within
// budget is never expanded outward, and a zero budget disables trimming for
// that side. With no speech in the window the input is returned unchanged.
func TrimToSpeech(tr types.Transcript, start, end float64, trimStartMS, trimEndMS int) (float64, float64) {
	if end <= start {
		return start, end
	}

	maxSilenceStart := msToSeconds(trimStartMS)
	maxSilenceEnd := msToSeconds(trimEndMS)
	if maxSilenceStart == 0 && maxSilenceEnd == 0 {
		return start, end
	}

	speechStart, speechEnd, ok := SpeechBounds(tr.Words(), start, end)
	if !ok {
		return start, end
	}

	newStart, newEnd := start, end
	if maxSilenceStart > 0 {
		if leading := speechStart - start; leading > maxSilenceStart {
			newStart = speechStart - maxSilenceStart
		}
	}
	if maxSilenceEnd > 0 {
		if trailing := end - speechEnd; trailing > maxSilenceEnd {
			newEnd = speechEnd + maxSilenceEnd
		}
	}

	newStart = clamp(newStart, start, end)
	newEnd = clamp(newEnd, start, end)
	if newEnd <= newStart {
		return start, end
	}
	return newStart, newEnd
}

func msToSeconds(ms int) float64 {
	if ms < 0 {
		ms = 0
	}
	return float64(ms) / 1000.0
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
