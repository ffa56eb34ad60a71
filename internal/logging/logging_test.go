package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"

	"clipcut/internal/core"
)

func newBufferLogger(level logrus.Level) (*logrus.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	log := logrus.New()
	log.SetOutput(&buf)
	log.SetLevel(level)
	log.SetFormatter(&logrus.TextFormatter{DisableColors: true, DisableTimestamp: true})
	return log, &buf
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want logrus.Level
	}{
		{"debug", logrus.DebugLevel},
		{"info", logrus.InfoLevel},
		{"warning", logrus.WarnLevel},
		{"warn", logrus.WarnLevel},
		{"error", logrus.ErrorLevel},
		{"", logrus.InfoLevel},
		{"bogus", logrus.InfoLevel},
	}
	for _, tt := range tests {
		if got := parseLevel(tt.in); got != tt.want {
			t.Fatalf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestEventSinkLogEventLevels(t *testing.T) {
	log, buf := newBufferLogger(logrus.DebugLevel)
	sink := EventSink(log)

	sink(core.LogEvent{Level: core.LevelWarning, Message: "fallback engaged"})
	sink(core.LogEvent{Level: core.LevelInfo, Message: "step done"})

	out := buf.String()
	if !strings.Contains(out, "level=warning") || !strings.Contains(out, "fallback engaged") {
		t.Fatalf("expected warning entry, got: %s", out)
	}
	if !strings.Contains(out, "level=info") || !strings.Contains(out, "step done") {
		t.Fatalf("expected info entry, got: %s", out)
	}
}

func TestEventSinkProgressEvent(t *testing.T) {
	log, buf := newBufferLogger(logrus.InfoLevel)
	sink := EventSink(log)

	sink(core.ProgressEvent{Current: 2, Total: 6, Label: "transcribe (vid1)"})

	out := buf.String()
	for _, want := range []string{"current=2", "total=6", "transcribe (vid1)"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output: %s", want, out)
		}
	}
}

func TestEventSinkJobStatusError(t *testing.T) {
	log, buf := newBufferLogger(logrus.InfoLevel)
	sink := EventSink(log)

	sink(core.JobStatusEvent{State: core.StateFailed, Error: "transcription failed"})

	out := buf.String()
	if !strings.Contains(out, "level=error") || !strings.Contains(out, "transcription failed") {
		t.Fatalf("expected error entry, got: %s", out)
	}
}

func TestEventSinkStateEventIsDebugOnly(t *testing.T) {
	log, buf := newBufferLogger(logrus.InfoLevel)
	sink := EventSink(log)

	sink(core.StateEvent{Updates: map[string]any{"transcribed": true}})

	if buf.Len() != 0 {
		t.Fatalf("expected no output at info level, got: %s", buf.String())
	}
}
