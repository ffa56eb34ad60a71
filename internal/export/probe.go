package export

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// VideoInfo is the subset of ffprobe output the pipeline cares about.
type VideoInfo struct {
	Duration float64
	Width    int
	Height   int
	FPS      float64
	Codec    string
}

type probeOutput struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
	Streams []struct {
		CodecType  string `json:"codec_type"`
		CodecName  string `json:"codec_name"`
		Width      int    `json:"width"`
		Height     int    `json:"height"`
		RFrameRate string `json:"r_frame_rate"`
	} `json:"streams"`
}

// ProbeVideo reads duration, dimensions, frame rate and codec via ffprobe.
func (e *Engine) ProbeVideo(ctx context.Context, videoPath string) (VideoInfo, error) {
	out, err := e.capture(ctx, e.ffprobe,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		videoPath,
	)
	if err != nil {
		return VideoInfo{}, fmt.Errorf("ffprobe %s: %w", videoPath, err)
	}

	var probed probeOutput
	if err := json.Unmarshal(out, &probed); err != nil {
		return VideoInfo{}, fmt.Errorf("parse ffprobe output for %s: %w", videoPath, err)
	}

	info := VideoInfo{}
	if probed.Format.Duration != "" {
		if d, err := strconv.ParseFloat(probed.Format.Duration, 64); err == nil {
			info.Duration = d
		}
	}
	for _, s := range probed.Streams {
		if s.CodecType != "video" {
			continue
		}
		info.Width = s.Width
		info.Height = s.Height
		info.Codec = s.CodecName
		info.FPS = parseFrameRate(s.RFrameRate)
		break
	}
	return info, nil
}

// parseFrameRate converts ffprobe's r_frame_rate fraction ("30/1",
// "30000/1001") into FPS. Missing or malformed values yield 0.
func parseFrameRate(raw string) float64 {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0
	}
	if num, den, ok := strings.Cut(raw, "/"); ok {
		n, err1 := strconv.ParseFloat(num, 64)
		d, err2 := strconv.ParseFloat(den, 64)
		if err1 != nil || err2 != nil || d == 0 {
			return 0
		}
		fps := n / d
		if fps > 0 {
			return fps
		}
		return 0
	}
	fps, err := strconv.ParseFloat(raw, 64)
	if err != nil || fps <= 0 {
		return 0
	}
	return fps
}
