package core

import "time"

// LogLevel classifies LogEvent severity.
type LogLevel string

const (
	LevelDebug   LogLevel = "debug"
	LevelInfo    LogLevel = "info"
	LevelWarning LogLevel = "warning"
	LevelError   LogLevel = "error"
)

// CoreEvent is the envelope shared by all pipeline notifications. Events are
// one-directional: the runner emits them into an injected sink and never
// reads anything back.
type CoreEvent struct {
	JobID   string
	VideoID string
	TS      string
}

// Event is implemented by every notification variant.
type Event interface {
	Core() CoreEvent
}

// EmitFunc receives pipeline events. It must not block on user input.
type EmitFunc func(Event)

func newCoreEvent(jobID, videoID string) CoreEvent {
	return CoreEvent{JobID: jobID, VideoID: videoID, TS: time.Now().Format(time.RFC3339)}
}

// LogEvent carries a human-readable progress message.
type LogEvent struct {
	CoreEvent
	Level   LogLevel
	Message string
}

func (e LogEvent) Core() CoreEvent { return e.CoreEvent }

// ProgressEvent reports step-granular progress through a job.
type ProgressEvent struct {
	CoreEvent
	Current int
	Total   int
	Label   string
}

func (e ProgressEvent) Core() CoreEvent { return e.CoreEvent }

// StateEvent announces persisted per-video state changes.
type StateEvent struct {
	CoreEvent
	Updates map[string]any
}

func (e StateEvent) Core() CoreEvent { return e.CoreEvent }

// JobStatusEvent announces job lifecycle transitions.
type JobStatusEvent struct {
	CoreEvent
	State JobState
	Error string
}

func (e JobStatusEvent) Core() CoreEvent { return e.CoreEvent }
