// Package logging wires logrus for the CLI: colored console output when
// attached to a terminal, plus a rotating log file. It also provides the
// bridge that turns pipeline events into log entries.
package logging

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"clipcut/internal/core"
)

type Options struct {
	Level      string
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	// Quiet drops console output below warning level.
	Quiet bool
}

// New builds the process logger. An unwritable log directory is not fatal;
// logging falls back to console only.
func New(opts Options) *logrus.Logger {
	log := logrus.New()
	log.SetLevel(parseLevel(opts.Level))
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
		ForceColors:     isTerminal(os.Stderr),
		DisableColors:   !isTerminal(os.Stderr),
	})

	writers := []io.Writer{os.Stderr}
	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err == nil {
			writers = append(writers, &lumberjack.Logger{
				Filename:   opts.File,
				MaxSize:    orDefault(opts.MaxSizeMB, 10),
				MaxBackups: orDefault(opts.MaxBackups, 5),
				MaxAge:     orDefault(opts.MaxAgeDays, 30),
				Compress:   true,
			})
		} else {
			log.WithError(err).Warn("log file directory not writable, console only")
		}
	}
	log.SetOutput(io.MultiWriter(writers...))

	if opts.Quiet {
		log.SetLevel(logrus.WarnLevel)
	}
	return log
}

func isTerminal(f *os.File) bool {
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func parseLevel(level string) logrus.Level {
	switch strings.ToLower(level) {
	case "debug":
		return logrus.DebugLevel
	case "warn", "warning":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// EventSink returns an emit function that logs every pipeline event. The
// runner only talks through this one-way sink, so the CLI stays responsive
// and the core never blocks on presentation.
func EventSink(log *logrus.Logger) core.EmitFunc {
	return func(ev core.Event) {
		env := ev.Core()
		entry := log.WithFields(logrus.Fields{"job": env.JobID, "video": env.VideoID})
		switch e := ev.(type) {
		case core.LogEvent:
			switch e.Level {
			case core.LevelDebug:
				entry.Debug(e.Message)
			case core.LevelWarning:
				entry.Warn(e.Message)
			case core.LevelError:
				entry.Error(e.Message)
			default:
				entry.Info(e.Message)
			}
		case core.ProgressEvent:
			entry.WithFields(logrus.Fields{
				"current": e.Current,
				"total":   e.Total,
			}).Info(e.Label)
		case core.StateEvent:
			fields := make(logrus.Fields, len(e.Updates))
			for k, v := range e.Updates {
				fields[k] = v
			}
			entry.WithFields(fields).Debug("state updated")
		case core.JobStatusEvent:
			if e.Error != "" {
				entry.WithField("state", string(e.State)).Error(e.Error)
				return
			}
			entry.WithField("state", string(e.State)).Info("job status changed")
		default:
			entry.Debugf("event %T", ev)
		}
	}
}
