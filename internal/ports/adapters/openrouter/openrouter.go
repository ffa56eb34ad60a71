package openrouter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"clipcut/internal/core"
	"clipcut/internal/types"
)

// Detector selects clip windows from a transcript by pre-ranking candidate
// windows locally and asking an OpenRouter-hosted model to pick the best ones.
// Any model failure degrades to the deterministic local ranking, so a flaky
// LLM never blocks the pipeline.
type Detector struct {
	key     string
	model   string
	baseURL string
	minClip time.Duration
	maxClip time.Duration
	client  *http.Client
	limiter *rate.Limiter
	log     *logrus.Logger
}

type Options struct {
	APIKey  string
	Model   string
	BaseURL string
	// MinClipSeconds/MaxClipSeconds bound candidate window durations.
	MinClipSeconds float64
	MaxClipSeconds float64
	// RequestsPerMinute throttles chat-completion calls. Zero means 20.
	RequestsPerMinute int
	Logger            *logrus.Logger
}

const (
	defaultModel    = "anthropic/claude-3.5-sonnet"
	requestTimeout  = 90 * time.Second
	promptCandLimit = 80
	minClipGap      = 2 * time.Second
)

func New(opts Options) *Detector {
	model := opts.Model
	if model == "" {
		model = defaultModel
	}
	minClip := time.Duration(opts.MinClipSeconds * float64(time.Second))
	if minClip <= 0 {
		minClip = 15 * time.Second
	}
	maxClip := time.Duration(opts.MaxClipSeconds * float64(time.Second))
	if maxClip <= minClip {
		maxClip = minClip + 75*time.Second
	}
	rpm := opts.RequestsPerMinute
	if rpm <= 0 {
		rpm = 20
	}
	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Detector{
		key:     opts.APIKey,
		model:   model,
		baseURL: normalizeBaseURL(opts.BaseURL),
		minClip: minClip,
		maxClip: maxClip,
		client:  &http.Client{Timeout: 5 * time.Minute},
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), 1),
		log:     log,
	}
}

// GenerateClips loads the transcript, builds scored candidate windows and
// refines them through the model. minClips is advisory (the model may decide
// fewer moments are worth clipping); maxClips is a hard cap.
func (d *Detector) GenerateClips(ctx context.Context, transcriptPath string, minClips, maxClips int) ([]types.Clip, error) {
	if maxClips <= 0 {
		return nil, nil
	}
	tr, err := types.LoadTranscript(transcriptPath)
	if err != nil {
		return nil, err
	}

	cands := buildCandidates(tr, d.minClip, d.maxClip)
	if len(cands) == 0 {
		return nil, core.Wrap(core.ErrConfiguration, "generate clips",
			fmt.Errorf("no candidate windows in %s (transcript too short for %s minimum)", transcriptPath, d.minClip))
	}
	top := selectPromptCandidates(cands, promptCandLimit)
	words := timedWords(tr)

	picks, err := d.refine(ctx, top, words, minClips, maxClips)
	if err != nil {
		return nil, err
	}
	if len(picks) == 0 {
		d.log.Warn("model returned no usable clips, using local ranking")
		picks = fallbackPicks(top, maxClips, d.minClip, d.maxClip, words)
	}

	clips := make([]types.Clip, 0, len(picks))
	for i, p := range picks {
		clips = append(clips, types.Clip{
			ID:          i + 1,
			Start:       p.start.Seconds(),
			End:         p.end.Seconds(),
			Duration:    (p.end - p.start).Seconds(),
			TextPreview: preview(p.text, 140),
		})
	}
	return clips, nil
}

// SaveClipsMetadata writes the selected clips as JSON next to the job's other
// per-video artifacts and returns the file path.
func (d *Detector) SaveClipsMetadata(clips []types.Clip, videoID, dir string) (string, error) {
	doc := struct {
		VideoID     string       `json:"video_id"`
		GeneratedAt string       `json:"generated_at"`
		Clips       []types.Clip `json:"clips"`
	}{
		VideoID:     videoID,
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		Clips:       clips,
	}
	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal clips metadata: %w", err)
	}
	path := filepath.Join(dir, videoID+"_clips.json")
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return "", fmt.Errorf("write clips metadata: %w", err)
	}
	return path, nil
}

// pick is a refined clip window with its source text.
type pick struct {
	start time.Duration
	end   time.Duration
	text  string
}

func (d *Detector) refine(ctx context.Context, top []candidate, words []timedWord, minClips, maxClips int) ([]pick, error) {
	if len(top) == 0 {
		return nil, nil
	}

	type promptCand struct {
		Idx      int     `json:"idx"`
		StartSec float64 `json:"start_sec"`
		EndSec   float64 `json:"end_sec"`
		Text     string  `json:"text"`
		Info     float64 `json:"info"`
		Hook     float64 `json:"hook"`
	}
	arr := make([]promptCand, 0, len(top))
	for i, c := range top {
		arr = append(arr, promptCand{Idx: i, StartSec: c.Start.Seconds(), EndSec: c.End.Seconds(), Text: c.Text, Info: c.Info, Hook: c.Hook})
	}
	prompt := map[string]any{
		"minClips":   minClips,
		"maxClips":   maxClips,
		"minSec":     d.minClip.Seconds(),
		"maxSec":     d.maxClip.Seconds(),
		"candidates": arr,
	}
	pb, err := json.Marshal(prompt)
	if err != nil {
		return nil, fmt.Errorf("marshal prompt: %w", err)
	}

	payload := map[string]any{
		"model":  d.model,
		"stream": false,
		"messages": []map[string]any{
			{"role": "user", "content": buildPrompt(pb)},
		},
		"response_format": map[string]any{
			"type": "json_schema",
			"json_schema": map[string]any{
				"name": "clipcut_select",
				"schema": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"clips": map[string]any{
							"type": "array",
							"items": map[string]any{
								"type": "object",
								"properties": map[string]any{
									"idx":       map[string]any{"type": "integer"},
									"start_sec": map[string]any{"type": "number"},
									"end_sec":   map[string]any{"type": "number"},
									"reason":    map[string]any{"type": "string"},
								},
								"required": []string{"idx", "start_sec", "end_sec", "reason"},
							},
						},
					},
					"required": []string{"clips"},
				},
			},
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	if err := d.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, d.baseURL+"/api/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+d.key)
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		if errors.Is(reqCtx.Err(), context.DeadlineExceeded) {
			return nil, core.Wrap(core.ErrTransient, "call openrouter",
				fmt.Errorf("timeout after %s (model=%s)", requestTimeout, d.model))
		}
		return nil, core.Wrap(core.ErrTransient, "call openrouter", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		rb, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return nil, core.Wrap(core.ErrTransient, "call openrouter",
				fmt.Errorf("status %d and read body failed: %v", resp.StatusCode, readErr))
		}
		return nil, core.Wrap(core.ErrTransient, "call openrouter",
			fmt.Errorf("status %d: %s", resp.StatusCode, truncate(redactSecrets(string(rb), d.key), 400)))
	}

	var raw struct {
		Choices []struct {
			Message struct {
				Content any `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, err
	}
	if len(raw.Choices) == 0 {
		return nil, nil
	}
	content, err := messageContentToString(raw.Choices[0].Message.Content)
	if err != nil {
		return nil, nil
	}
	clean, err := extractJSONObject(content)
	if err != nil {
		return nil, nil
	}

	var out struct {
		Clips []struct {
			Idx      int     `json:"idx"`
			StartSec float64 `json:"start_sec"`
			EndSec   float64 `json:"end_sec"`
			Reason   string  `json:"reason"`
		} `json:"clips"`
	}
	if err := json.Unmarshal([]byte(clean), &out); err != nil {
		return nil, nil
	}

	res := make([]pick, 0, maxClips)
	for _, c := range out.Clips {
		p, ok := normalizePick(c.Idx, c.StartSec, c.EndSec, top, d.minClip, d.maxClip, words)
		if !ok {
			continue
		}
		if !isDistinct(res, p.start, p.end, minClipGap) {
			continue
		}
		res = append(res, p)
		if len(res) >= maxClips {
			break
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].start < res[j].start })
	return res, nil
}

func buildPrompt(candsJSON []byte) string {
	return "Select the best highlight clips from the candidate list. " +
		"Return strictly valid JSON (no markdown, no code fences) matching the provided schema. " +
		"Prefer clips that are both informative and hooky. " +
		"Clips must be distinct scenes with no overlaps and can number anywhere from minClips to maxClips. " +
		"Each clip duration must be between minSec and maxSec. " +
		"Clips must start cleanly and end on a complete thought, ideally right after a payoff or hook explanation." +
		"\n\nCandidates JSON:\n" + string(candsJSON)
}

// normalizePick clamps a model-suggested window to duration bounds, snapping
// the end to a natural stop when word timing is available. A window the model
// mangled beyond repair falls back to the candidate it referenced by idx.
func normalizePick(
	idx int,
	startSec, endSec float64,
	cands []candidate,
	minClip, maxClip time.Duration,
	words []timedWord,
) (pick, bool) {
	st := time.Duration(startSec * float64(time.Second))
	en := time.Duration(endSec * float64(time.Second))
	if st < 0 {
		st = 0
	}
	text := ""
	if idx >= 0 && idx < len(cands) {
		text = cands[idx].Text
	}
	if p, ok := clampWindow(st, en, minClip, maxClip, words); ok {
		p.text = text
		return p, true
	}
	if idx < 0 || idx >= len(cands) {
		return pick{}, false
	}
	p, ok := clampWindow(cands[idx].Start, cands[idx].End, minClip, maxClip, words)
	p.text = text
	return p, ok
}

func clampWindow(st, en, minClip, maxClip time.Duration, words []timedWord) (pick, bool) {
	if en <= st {
		return pick{}, false
	}
	maxEnd := st + maxClip
	if en > maxEnd {
		en = maxEnd
	}
	minEnd := st + minClip
	if en < minEnd {
		return pick{}, false
	}
	if snapped, ok := snapToNaturalEnd(words, st, en, minEnd, maxEnd); ok {
		en = snapped
	}
	return pick{start: st, end: en}, true
}

// snapToNaturalEnd prefers, in order, the terminal-punctuation word end
// closest to the requested end, then the longest pause near the tail. Both
// searches allow a small extension past the requested end when headroom under
// maxEnd exists.
func snapToNaturalEnd(words []timedWord, start, requested, minEnd, maxEnd time.Duration) (time.Duration, bool) {
	if len(words) == 0 {
		return 0, false
	}
	searchEnd := requested + 2*time.Second
	if searchEnd > maxEnd {
		searchEnd = maxEnd
	}

	best := time.Duration(-1)
	bestDist := time.Duration(1<<62 - 1)
	for _, w := range words {
		if w.End <= start || w.End < minEnd || w.End > searchEnd {
			continue
		}
		if !endsSentence(w.Text) {
			continue
		}
		d := w.End - requested
		if d < 0 {
			d = -d
		}
		if d < bestDist {
			bestDist = d
			best = w.End
		}
	}
	if best >= minEnd {
		return best, true
	}

	const pauseThreshold = 350 * time.Millisecond
	var pauseEnd, longest time.Duration
	for i := 0; i+1 < len(words); i++ {
		cur, next := words[i], words[i+1]
		if cur.End <= start || cur.End < minEnd || cur.End > searchEnd {
			continue
		}
		if gap := next.Start - cur.End; gap >= pauseThreshold && gap > longest {
			longest = gap
			pauseEnd = cur.End
		}
	}
	if pauseEnd >= minEnd {
		return pauseEnd, true
	}
	return 0, false
}

func endsSentence(s string) bool {
	s = strings.TrimSpace(s)
	s = strings.TrimRight(s, `"'`+"`"+")]}")
	if s == "" {
		return false
	}
	switch s[len(s)-1] {
	case '.', '!', '?':
		return true
	}
	return false
}

// fallbackPicks keeps the pipeline useful when the model returns nothing
// parseable: highest combined score first, overlap-free, in timeline order.
func fallbackPicks(cands []candidate, maxClips int, minClip, maxClip time.Duration, words []timedWord) []pick {
	if maxClips <= 0 {
		return nil
	}
	best := make([]candidate, len(cands))
	copy(best, cands)
	sort.Slice(best, func(i, j int) bool {
		s1, s2 := best[i].Info+best[i].Hook, best[j].Info+best[j].Hook
		if s1 == s2 {
			return best[i].Start < best[j].Start
		}
		return s1 > s2
	})

	out := make([]pick, 0, maxClips)
	for _, c := range best {
		if len(out) >= maxClips {
			break
		}
		p, ok := clampWindow(c.Start, c.End, minClip, maxClip, words)
		if !ok {
			continue
		}
		if !isDistinct(out, p.start, p.end, minClipGap) {
			continue
		}
		p.text = c.Text
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].start < out[j].start })
	return out
}

// selectPromptCandidates trims the candidate set to what fits in a prompt:
// best combined scores first, mutually distinct, then timeline order so the
// model sees the video in sequence.
func selectPromptCandidates(cands []candidate, limit int) []candidate {
	if len(cands) == 0 || limit <= 0 {
		return nil
	}
	best := make([]candidate, len(cands))
	copy(best, cands)
	sort.Slice(best, func(i, j int) bool {
		s1, s2 := best[i].Info+best[i].Hook, best[j].Info+best[j].Hook
		if s1 == s2 {
			return best[i].Start < best[j].Start
		}
		return s1 > s2
	})

	out := make([]candidate, 0, limit)
	for _, c := range best {
		if len(out) >= limit {
			break
		}
		if overlapsAny(out, c.Start, c.End, minClipGap) {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out
}

func isDistinct(existing []pick, st, en, minGap time.Duration) bool {
	for _, e := range existing {
		if st < e.end+minGap && en > e.start-minGap {
			return false
		}
	}
	return true
}

func overlapsAny(existing []candidate, st, en, minGap time.Duration) bool {
	for _, e := range existing {
		if st < e.End+minGap && en > e.Start-minGap {
			return true
		}
	}
	return false
}

func messageContentToString(v any) (string, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case []any:
		// Some providers return an array of {type,text} parts.
		var b strings.Builder
		for _, it := range x {
			m, ok := it.(map[string]any)
			if !ok {
				continue
			}
			if t, ok := m["text"].(string); ok {
				b.WriteString(t)
			}
		}
		s := b.String()
		if strings.TrimSpace(s) == "" {
			return "", errors.New("openrouter: empty content")
		}
		return s, nil
	default:
		return "", fmt.Errorf("openrouter: unexpected content type %T", v)
	}
}

func extractJSONObject(s string) (string, error) {
	t := strings.TrimSpace(s)
	if t == "" {
		return "", errors.New("openrouter: empty content")
	}
	if strings.HasPrefix(t, "```") {
		if i := strings.Index(t, "\n"); i >= 0 {
			t = t[i+1:]
		}
		if j := strings.LastIndex(t, "```"); j >= 0 {
			t = t[:j]
		}
		t = strings.TrimSpace(t)
	}
	start := strings.Index(t, "{")
	end := strings.LastIndex(t, "}")
	if start >= 0 && end > start {
		return t[start : end+1], nil
	}
	return "", fmt.Errorf("openrouter: could not locate JSON object in: %q", truncate(t, 200))
}

var (
	bearerTokenRE = regexp.MustCompile(`(?i)\bBearer\s+[A-Za-z0-9._-]+\b`)
	authHeaderRE  = regexp.MustCompile(`(?i)(authorization\s*[:=]\s*)([^\n\r,;]+)`)
	apiKeyFieldRE = regexp.MustCompile(`(?i)(api[_-]?key\s*[:=]\s*)([^\n\r,;]+)`)
)

// redactSecrets scrubs API keys from error text before it reaches logs.
func redactSecrets(s, apiKey string) string {
	if s == "" {
		return s
	}
	out := s
	if apiKey != "" {
		out = strings.ReplaceAll(out, apiKey, "[REDACTED]")
	}
	out = bearerTokenRE.ReplaceAllString(out, "Bearer [REDACTED]")
	out = authHeaderRE.ReplaceAllString(out, "${1}[REDACTED]")
	out = apiKeyFieldRE.ReplaceAllString(out, "${1}[REDACTED]")
	return out
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func preview(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	return truncate(s, n)
}
