package deps

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// ModelFetcher verifies and prefetches speech-model artifacts. The whisperx
// adapter implements it by probing and populating the local model cache.
type ModelFetcher interface {
	ModelCached(modelSize string) bool
	FetchModel(ctx context.Context, modelSize, device, computeType string) error
	AlignModelCached(language string) bool
	FetchAlignModel(ctx context.Context, language, device string) error
}

// alignLangsEnv overrides the default alignment-model prefetch languages.
const alignLangsEnv = "CLIPCUT_PREFETCH_ALIGN_LANGS"

// BuildRequired returns the ordered dependency list for a transcription run:
// the whisper model first, then one alignment model per language. Pass no
// languages to prefetch the configured defaults.
func (m *Manager) BuildRequired(fetcher ModelFetcher, modelSize string, languages []string, device, computeType string) []Spec {
	if len(languages) == 0 {
		languages = parseCSVEnv(alignLangsEnv, "en,es")
	}

	specs := make([]Spec, 0, 1+len(languages))

	whisperKey := "whisper_model:" + modelSize
	specs = append(specs, Spec{
		Key:         whisperKey,
		Description: fmt.Sprintf("Whisper model (%s)", modelSize),
		Check: func() bool {
			return m.MarkedInstalled(whisperKey) || fetcher.ModelCached(modelSize)
		},
		Ensure: func(ctx context.Context) error {
			return fetcher.FetchModel(ctx, modelSize, device, computeType)
		},
	})

	for _, lang := range languages {
		lang := lang
		alignKey := "align_model:" + lang
		specs = append(specs, Spec{
			Key:         alignKey,
			Description: fmt.Sprintf("Alignment model (%s)", lang),
			Check: func() bool {
				return m.MarkedInstalled(alignKey) || fetcher.AlignModelCached(lang)
			},
			Ensure: func(ctx context.Context) error {
				return fetcher.FetchAlignModel(ctx, lang, device)
			},
		})
	}

	return specs
}

func parseCSVEnv(name, fallback string) []string {
	raw := os.Getenv(name)
	if strings.TrimSpace(raw) == "" {
		raw = fallback
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
