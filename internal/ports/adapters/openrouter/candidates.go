package openrouter

import (
	"regexp"
	"strings"
	"time"

	"clipcut/internal/types"
)

// candidate is one scored transcript window considered for export.
type candidate struct {
	Start time.Duration
	End   time.Duration
	Text  string
	Info  float64
	Hook  float64
}

// Caps keep candidate generation predictable on long transcripts.
const (
	maxCandidates  = 400
	maxWordsPerWin = 220
	maxStartPoints = 120
	endStride      = 4
)

// buildCandidates slides windows over the transcript and scores each one.
// Word timestamps give tighter boundaries, so they are preferred; segment
// windows keep the detector functional for transcripts without word timing.
func buildCandidates(tr types.Transcript, minClip, maxClip time.Duration) []candidate {
	if minClip <= 0 {
		minClip = time.Second
	}
	if maxClip <= 0 || maxClip < minClip {
		return nil
	}

	words := timedWords(tr)
	if len(words) >= 2 {
		if out := candidatesFromWords(words, minClip, maxClip); len(out) > 0 {
			return out
		}
	}
	return candidatesFromSegments(tr.Segments, minClip, maxClip)
}

type timedWord struct {
	Start time.Duration
	End   time.Duration
	Text  string
}

func timedWords(tr types.Transcript) []timedWord {
	src := tr.Words()
	out := make([]timedWord, 0, len(src))
	for _, w := range src {
		out = append(out, timedWord{
			Start: dur(w.Start),
			End:   dur(w.End),
			Text:  strings.TrimSpace(w.Word),
		})
	}
	return out
}

func candidatesFromWords(words []timedWord, minClip, maxClip time.Duration) []candidate {
	startStride := 1
	if len(words) > maxStartPoints {
		startStride = (len(words) + maxStartPoints - 1) / maxStartPoints
	}
	starts := make([]int, 0, len(words)/startStride+2)
	for i := 0; i < len(words)-1; i += startStride {
		starts = append(starts, i)
	}
	// Keep a near-tail start so downsampling cannot starve the end of long
	// transcripts of candidates.
	if tail := len(words) - 2; tail >= 0 && (len(starts) == 0 || starts[len(starts)-1] != tail) {
		starts = append(starts, tail)
	}

	var out []candidate
	for _, i := range starts {
		start := words[i].Start
		parts := make([]string, 0, maxWordsPerWin)
		for j := i; j < len(words) && j-i <= maxWordsPerWin; j++ {
			parts = append(parts, words[j].Text)
			if j == i {
				continue
			}
			// Striding end indices trades a little coverage for a lot less work.
			if (j-i)%endStride != 0 && j != i+1 {
				continue
			}
			end := words[j].End
			win := end - start
			if win > maxClip {
				break
			}
			if win < minClip {
				continue
			}
			text := strings.TrimSpace(strings.Join(parts, " "))
			if text == "" {
				continue
			}
			info, hook := scoreText(text)
			out = append(out, candidate{Start: start, End: end, Text: text, Info: info, Hook: hook})
			if len(out) >= maxCandidates {
				return out
			}
		}
	}
	return out
}

func candidatesFromSegments(segs []types.Segment, minClip, maxClip time.Duration) []candidate {
	var out []candidate
	for i := 0; i < len(segs); i++ {
		start := dur(segs[i].Start)
		var parts []string
		for j := i; j < len(segs); j++ {
			end := dur(segs[j].End)
			win := end - start
			if win > maxClip {
				break
			}
			if t := strings.TrimSpace(segs[j].Text); t != "" {
				parts = append(parts, t)
			}
			if win < minClip {
				continue
			}
			text := strings.Join(parts, " ")
			if text == "" {
				continue
			}
			info, hook := scoreText(text)
			out = append(out, candidate{Start: start, End: end, Text: text, Info: info, Hook: hook})
			if len(out) >= maxCandidates {
				return out
			}
		}
	}
	return out
}

var (
	reNumber  = regexp.MustCompile(`\b\d+(?:[\.,]\d+)?\b`)
	reHookCue = regexp.MustCompile(`(?i)\b(important|key|secret|mistake|never|always|here\s+is\s+why|remember)\b`)
	reHowCue  = regexp.MustCompile(`(?i)\b(how\s+to|step\s+\d+|first|second|third|do\s+this)\b`)
	reStep    = regexp.MustCompile(`(?i)\bstep\s+\d+\b`)
)

// scoreText is a cheap deterministic pre-rank in [0..10] per axis. The LLM
// makes the final call; this only decides which candidates it gets to see.
func scoreText(text string) (info, hook float64) {
	t := strings.TrimSpace(text)
	if t == "" {
		return 0, 0
	}
	lower := strings.ToLower(t)

	info = float64(len(reNumber.FindAllStringIndex(t, -1))) * 0.4
	if reHowCue.MatchString(lower) {
		info += 1.2
	}
	info -= 0.0006 * float64(len([]rune(t)))

	hook = float64(len(reHookCue.FindAllStringIndex(lower, -1))) * 0.9
	hook += float64(len(reStep.FindAllStringIndex(lower, -1))) * 0.4
	hook += float64(strings.Count(t, "?")) * 0.7
	hook += float64(strings.Count(t, "!")) * 0.3

	return clamp(info), clamp(hook)
}

func clamp(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 10 {
		return 10
	}
	return x
}

func dur(sec float64) time.Duration { return time.Duration(sec * float64(time.Second)) }
