package deps

import (
	"context"
	"errors"
	"fmt"

	"clipcut/internal/core"
)

// TranscriptionGate blocks transcription until the whisper and alignment
// model artifacts it needs are present. It implements core.DependencyGate.
type TranscriptionGate struct {
	manager     *Manager
	fetcher     ModelFetcher
	reporter    Reporter
	onError     OnErrorFunc
	maxAttempts int
}

// NewTranscriptionGate wires the dependency manager to a model fetcher.
// reporter and onError may be nil; nil onError cancels on the first fetch
// failure, per the ensure protocol default.
func NewTranscriptionGate(manager *Manager, fetcher ModelFetcher, reporter Reporter, onError OnErrorFunc, maxAttempts int) *TranscriptionGate {
	if reporter == nil {
		reporter = NullReporter{}
	}
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &TranscriptionGate{
		manager:     manager,
		fetcher:     fetcher,
		reporter:    reporter,
		onError:     onError,
		maxAttempts: maxAttempts,
	}
}

// EnsureTranscription runs the ensure protocol for the given model
// configuration. Any unmet dependency (failed or canceled) is a hard stop.
func (g *TranscriptionGate) EnsureTranscription(ctx context.Context, modelSize, device, computeType string, languages []string) error {
	specs := g.manager.BuildRequired(g.fetcher, modelSize, languages, device, computeType)
	res := g.manager.EnsureAll(ctx, specs, g.reporter, g.onError, g.maxAttempts)
	if res.OK() {
		return nil
	}
	if res.Canceled {
		return core.Wrap(core.ErrDependency, "ensure transcription models", errors.New("canceled: "+Summary(res)))
	}
	return core.Wrap(core.ErrDependency, "ensure transcription models", fmt.Errorf("%d unmet: %s", len(res.Failed), Summary(res)))
}
