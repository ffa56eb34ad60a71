package core

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel markers used to classify pipeline failures. Handlers wrap errors
// with one of these so callers can branch with errors.Is without inspecting
// message text.
var (
	// ErrConfiguration marks unsupported steps or invalid settings. Fatal
	// immediately, never retried.
	ErrConfiguration = errors.New("configuration error")
	// ErrDependency marks model weights or other required artifacts that
	// could not be obtained after the retry policy ran out.
	ErrDependency = errors.New("dependency error")
	// ErrExternalTool marks a non-zero exit from ffmpeg/ffprobe or another
	// subprocess. Fatal only for the artifact being produced.
	ErrExternalTool = errors.New("external tool error")
	// ErrTransient marks a failure worth retrying, such as a network hiccup
	// during a dependency fetch.
	ErrTransient = errors.New("transient failure")
)

// Wrap tags err with marker and a step/operation prefix for status
// classification. A nil marker degrades to ErrTransient.
func Wrap(marker error, operation string, err error) error {
	if marker == nil {
		marker = ErrTransient
	}
	operation = strings.TrimSpace(operation)
	if err != nil {
		if operation == "" {
			return fmt.Errorf("%w: %w", marker, err)
		}
		return fmt.Errorf("%w: %s: %w", marker, operation, err)
	}
	if operation == "" {
		return marker
	}
	return fmt.Errorf("%w: %s", marker, operation)
}
