// Package deps gates expensive model-weight fetches behind an
// ensure-before-use protocol with retry/skip/cancel semantics.
package deps

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Decision is the caller's answer to a failed ensure attempt.
type Decision string

const (
	DecisionRetry  Decision = "retry"
	DecisionSkip   Decision = "skip"
	DecisionCancel Decision = "cancel"
)

// Status tracks one dependency through an ensure run.
type Status string

const (
	StatusChecking    Status = "checking"
	StatusDownloading Status = "downloading"
	StatusSkipped     Status = "skipped"
	StatusDone        Status = "done"
	StatusError       Status = "error"
)

// Progress is a point-in-time report for one dependency.
type Progress struct {
	Key         string
	Description string
	Status      Status
	Index       int
	Total       int
	Message     string
	Attempt     int
}

// Reporter observes ensure progress and supplies cooperative cancellation.
// IsCancelled is polled before each spec and before each retry attempt,
// never during an in-flight Ensure call.
type Reporter interface {
	Report(Progress)
	IsCancelled() bool
}

// NullReporter discards progress and never cancels.
type NullReporter struct{}

func (NullReporter) Report(Progress)   {}
func (NullReporter) IsCancelled() bool { return false }

// OnErrorFunc decides how to proceed after a failed ensure attempt.
type OnErrorFunc func(Progress, error) Decision

// Spec describes one required artifact: a fast local Check and a slow
// Ensure that fetches it.
type Spec struct {
	Key         string
	Description string
	Check       func() bool
	Ensure      func(context.Context) error
}

// Result summarizes an ensure run. OK is false if the run was canceled or
// any key failed; callers must treat non-OK as a hard stop for steps that
// depend on the unmet artifact.
type Result struct {
	Completed []string
	Skipped   []string
	Failed    map[string]string
	Canceled  bool
}

// OK reports whether every dependency is available.
func (r Result) OK() bool {
	return !r.Canceled && len(r.Failed) == 0
}

// Manager runs ensure protocols. It memoizes keys verified in this process
// and records on-disk markers so restarts re-verify cheaply.
type Manager struct {
	markers *markerStore

	mu      sync.Mutex
	ensured map[string]struct{}
}

// NewManager creates a Manager writing verification markers under markerDir.
func NewManager(markerDir string) *Manager {
	return &Manager{
		markers: &markerStore{dir: markerDir},
		ensured: make(map[string]struct{}),
	}
}

func (m *Manager) ensuredInProcess(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.ensured[key]
	return ok
}

func (m *Manager) noteEnsured(key string) {
	m.mu.Lock()
	m.ensured[key] = struct{}{}
	m.mu.Unlock()
	m.markers.mark(key)
}

// MarkedInstalled reports whether a persisted marker exists for key.
func (m *Manager) MarkedInstalled(key string) bool {
	return m.markers.exists(key)
}

// EnsureAll drives each spec through checking → (skipped | downloading →
// {done | error}). On an ensure error with attempts remaining, onError
// chooses retry, skip, or cancel; with no callback the default is cancel.
// Cancel aborts the whole run immediately with the partial result.
func (m *Manager) EnsureAll(ctx context.Context, specs []Spec, reporter Reporter, onError OnErrorFunc, maxAttempts int) Result {
	if reporter == nil {
		reporter = NullReporter{}
	}
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	res := Result{Failed: make(map[string]string)}
	total := len(specs)

	for idx, spec := range specs {
		index := idx + 1
		if reporter.IsCancelled() || ctx.Err() != nil {
			res.Canceled = true
			return res
		}

		if m.ensuredInProcess(spec.Key) {
			res.Skipped = append(res.Skipped, spec.Key)
			reporter.Report(Progress{
				Key: spec.Key, Description: spec.Description,
				Status: StatusSkipped, Index: index, Total: total,
				Message: "already ensured this run", Attempt: 1,
			})
			continue
		}

		reporter.Report(Progress{
			Key: spec.Key, Description: spec.Description,
			Status: StatusChecking, Index: index, Total: total, Attempt: 1,
		})
		if spec.Check != nil && spec.Check() {
			res.Skipped = append(res.Skipped, spec.Key)
			m.noteEnsured(spec.Key)
			reporter.Report(Progress{
				Key: spec.Key, Description: spec.Description,
				Status: StatusSkipped, Index: index, Total: total,
				Message: "already installed", Attempt: 1,
			})
			continue
		}

		attempt := 0
		for {
			attempt++
			if reporter.IsCancelled() || ctx.Err() != nil {
				res.Canceled = true
				return res
			}

			reporter.Report(Progress{
				Key: spec.Key, Description: spec.Description,
				Status: StatusDownloading, Index: index, Total: total, Attempt: attempt,
			})

			err := spec.Ensure(ctx)
			if err == nil {
				res.Completed = append(res.Completed, spec.Key)
				m.noteEnsured(spec.Key)
				reporter.Report(Progress{
					Key: spec.Key, Description: spec.Description,
					Status: StatusDone, Index: index, Total: total, Attempt: attempt,
				})
				break
			}

			failure := Progress{
				Key: spec.Key, Description: spec.Description,
				Status: StatusError, Index: index, Total: total,
				Message: err.Error(), Attempt: attempt,
			}
			reporter.Report(failure)

			if attempt >= maxAttempts {
				res.Failed[spec.Key] = err.Error()
				break
			}

			decision := DecisionCancel
			if onError != nil {
				decision = onError(failure, err)
			}
			switch decision {
			case DecisionRetry:
				continue
			case DecisionSkip:
				res.Failed[spec.Key] = err.Error()
			default:
				res.Canceled = true
				return res
			}
			break
		}
	}

	return res
}

// Summary renders a short human-readable account of a result, used in
// dependency error messages.
func Summary(res Result) string {
	if res.Canceled {
		return "dependency setup canceled"
	}
	if len(res.Failed) == 0 {
		return fmt.Sprintf("%d ensured, %d already present", len(res.Completed), len(res.Skipped))
	}
	keys := make([]string, 0, len(res.Failed))
	for k := range res.Failed {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return "unavailable: " + strings.Join(keys, ", ")
}
