package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"clipcut/internal/core"
	"clipcut/internal/ports"
	"clipcut/internal/trim"
	"clipcut/internal/types"
)

// Engine renders clips and whole-video shorts with ffmpeg. It implements
// core.ClipExporter. Rendering is sequential; a failed clip is skipped and
// its siblings continue.
type Engine struct {
	ffmpeg    string
	ffprobe   string
	subtitles ports.SubtitleWriter
	reframer  ports.Reframer
	log       *logrus.Logger

	// Swapped out by tests in this package.
	run     runFunc
	capture captureFunc
}

// New returns an Engine shelling out to the given ffmpeg/ffprobe binaries
// (empty means $PATH lookup). The reframer may be nil; face tracking then
// falls back to the static crop.
func New(ffmpegPath, ffprobePath string, subtitles ports.SubtitleWriter, reframer ports.Reframer, log *logrus.Logger) *Engine {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Engine{
		ffmpeg:    ffmpegPath,
		ffprobe:   ffprobePath,
		subtitles: subtitles,
		reframer:  reframer,
		log:       log,
		run:       runCommand,
		capture:   captureCommand,
	}
}

// ExportClips renders every clip in the request into req.OutputDir (or a
// per-style subdirectory when the caller opted in and styles exist). A clip
// that fails to render is logged and skipped.
func (e *Engine) ExportClips(ctx context.Context, req core.ExportRequest) ([]string, error) {
	if _, err := os.Stat(req.VideoPath); err != nil {
		return nil, fmt.Errorf("source video %s: %w", req.VideoPath, err)
	}
	if err := os.MkdirAll(req.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	set := req.Settings
	logoPath := ""
	if set.AddLogo {
		logoPath = resolveLogoFile(set.LogoPath)
		if logoPath == "" {
			e.log.Warn("logo overlay requested but no valid logo file found, skipping logo")
		}
	}

	transcript := e.loadTranscriptForTrim(req.TranscriptPath, set.TrimStartMS, set.TrimEndMS)

	var exported []string
	for _, clip := range req.Clips {
		clipDir := req.OutputDir
		if set.OrganizeByStyle && len(req.ClipStyles) > 0 {
			style, ok := req.ClipStyles[clip.ID]
			if !ok {
				style = "unclassified"
			}
			clipDir = filepath.Join(req.OutputDir, style)
			if err := os.MkdirAll(clipDir, 0o755); err != nil {
				return exported, fmt.Errorf("create style dir: %w", err)
			}
		}

		out, err := e.exportSingleClip(ctx, singleClipJob{
			videoPath:      req.VideoPath,
			clip:           clip,
			outputDir:      clipDir,
			transcript:     transcript,
			transcriptPath: req.TranscriptPath,
			logoPath:       logoPath,
			settings:       set,
		})
		if err != nil {
			if ctx.Err() != nil {
				return exported, ctx.Err()
			}
			e.log.WithError(err).Warnf("clip %d failed to render, skipping", clip.ID)
			continue
		}
		exported = append(exported, out)
	}
	return exported, nil
}

type singleClipJob struct {
	videoPath      string
	clip           types.Clip
	outputDir      string
	transcript     *types.Transcript
	transcriptPath string
	logoPath       string
	settings       core.ExportSettings
}

func (e *Engine) exportSingleClip(ctx context.Context, job singleClipJob) (string, error) {
	set := job.settings
	start := job.clip.Start
	end := job.clip.End

	if job.transcript != nil {
		newStart, newEnd := trim.TrimToSpeech(*job.transcript, start, end, set.TrimStartMS, set.TrimEndMS)
		if newStart != start || newEnd != end {
			e.log.Infof("speech-aware trim for clip %d: %.3f-%.3f -> %.3f-%.3f",
				job.clip.ID, start, end, newStart, newEnd)
		}
		start, end = newStart, newEnd
	}
	if end <= start {
		e.log.Warnf("clip %d would have zero duration after trim, keeping original window", job.clip.ID)
		start, end = job.clip.Start, job.clip.End
	}
	duration := end - start

	outputPath := filepath.Join(job.outputDir, fmt.Sprintf("%d.mp4", job.clip.ID))
	tempStep1 := filepath.Join(job.outputDir, fmt.Sprintf("%d_step1_temp.mp4", job.clip.ID))
	tempReframed := filepath.Join(job.outputDir, fmt.Sprintf("%d_reframed_temp.mp4", job.clip.ID))
	defer func() {
		os.Remove(tempStep1)
		os.Remove(tempReframed)
	}()

	srtPath := ""
	if set.AddSubtitles && job.transcriptPath != "" {
		candidate := filepath.Join(job.outputDir, fmt.Sprintf("%d.srt", job.clip.ID))
		ok, err := e.subtitles.GenerateSRTForClip(job.transcriptPath, start, end, candidate,
			set.SubtitleMaxCharsPerLine, set.SubtitleMaxDuration)
		if err != nil {
			e.log.WithError(err).Warnf("subtitle generation failed for clip %d", job.clip.ID)
		} else if ok {
			srtPath = candidate
		}
	}

	videoToProcess := job.videoPath
	aspectRatio := set.AspectRatio
	usingFaceTracking := false
	if set.EnableFaceTracking && aspectRatio == "9:16" {
		if e.reframer == nil {
			e.log.Warnf("face tracking enabled for clip %d but no reframer configured, using static crop", job.clip.ID)
		} else if err := e.reframer.ReframeVideo(ctx, job.videoPath, tempReframed, 1080, 1920, start, end); err != nil {
			e.log.WithError(err).Warnf("face tracking failed for clip %d, falling back to static crop", job.clip.ID)
		} else {
			videoToProcess = tempReframed
			aspectRatio = ""
			usingFaceTracking = true
		}
	}

	needsTwoSteps := set.AddLogo && job.logoPath != "" && srtPath != ""
	firstStepOutput := outputPath
	if needsTwoSteps {
		firstStepOutput = tempStep1
	}

	// Step 1: everything except subtitles when a logo forces two passes.
	var args []string
	videoInputIdx, audioInputIdx := 0, 0
	if usingFaceTracking {
		// Reframed video carries no audio; pull audio from the trimmed
		// original as a second input.
		args = append(args, "-i", videoToProcess)
		args = append(args, "-ss", formatSeconds(start), "-t", formatSeconds(duration), "-i", job.videoPath)
		audioInputIdx = 1
	} else {
		args = append(args, "-ss", formatSeconds(start), "-t", formatSeconds(duration), "-i", job.videoPath)
	}

	logoInputIdx := -1
	if set.AddLogo && job.logoPath != "" {
		args = append(args, "-i", job.logoPath)
		logoInputIdx = audioInputIdx + 1
	}

	var simpleFilters []string
	if aspectRatio != "" {
		if f := aspectRatioFilter(aspectRatio); f != "" {
			simpleFilters = append(simpleFilters, f)
		} else {
			e.log.Warnf("unknown aspect ratio %q, keeping original", aspectRatio)
		}
	}
	if !needsTwoSteps && srtPath != "" {
		simpleFilters = append(simpleFilters, subtitleFilter(srtPath, set.SubtitleStyle))
	}

	lastVideoStream := fmt.Sprintf("[%d:v]", videoInputIdx)
	switch {
	case logoInputIdx != -1:
		var chains []string
		if len(simpleFilters) > 0 {
			chains = append(chains, lastVideoStream+strings.Join(simpleFilters, ",")+"[v_filtered]")
			lastVideoStream = "[v_filtered]"
		}
		logoChains, out := logoOverlayFilter(lastVideoStream, fmt.Sprintf("[%d:v]", logoInputIdx),
			set.LogoPosition, logoScaleOrDefault(set.LogoScale))
		chains = append(chains, logoChains...)
		args = append(args, "-filter_complex", strings.Join(chains, ";"), "-map", out)
	case len(simpleFilters) > 0:
		args = append(args, "-vf", strings.Join(simpleFilters, ","), "-map", fmt.Sprintf("%d:v", videoInputIdx))
	default:
		args = append(args, "-map", fmt.Sprintf("%d:v", videoInputIdx))
	}

	if needsTwoSteps {
		// Drop subtitle streams so step 2 does not burn them twice.
		args = append(args, "-sn")
	}
	args = append(args, e.encodingArgs(set.VideoCRF, set.FFmpegThreads, audioInputIdx)...)
	args = append(args, "-y", firstStepOutput)

	if err := e.run(ctx, e.ffmpeg, args...); err != nil {
		return "", fmt.Errorf("render clip %d: %w", job.clip.ID, err)
	}

	// Step 2: burn subtitles over the logo pass, copying audio untouched.
	if needsTwoSteps {
		args2 := []string{
			"-i", firstStepOutput,
			"-vf", subtitleFilter(srtPath, set.SubtitleStyle),
			"-c:a", "copy",
			"-y", outputPath,
		}
		if err := e.run(ctx, e.ffmpeg, args2...); err != nil {
			e.log.WithError(err).Warnf("subtitle pass failed for clip %d, keeping version without subtitles", job.clip.ID)
			if renameErr := os.Rename(firstStepOutput, outputPath); renameErr != nil {
				return "", fmt.Errorf("recover clip %d without subtitles: %w", job.clip.ID, renameErr)
			}
		}
	}

	return outputPath, nil
}

// ExportShort renders the whole source video as one short, optionally
// speech-trimmed at both edges, with the same logo and subtitle rules as
// clip export.
func (e *Engine) ExportShort(ctx context.Context, req core.ShortRequest) (string, error) {
	if _, err := os.Stat(req.VideoPath); err != nil {
		return "", fmt.Errorf("source video %s: %w", req.VideoPath, err)
	}
	if err := os.MkdirAll(req.OutputDir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}

	set := req.Settings
	filename := req.Filename
	if filename == "" {
		filename = "short.mp4"
	}
	outputPath := filepath.Join(req.OutputDir, filename)
	stem := strings.TrimSuffix(filename, filepath.Ext(filename))
	tempStep1 := filepath.Join(req.OutputDir, stem+"_step1_temp.mp4")
	tempSRT := filepath.Join(req.OutputDir, stem+"_trimmed.srt")
	defer func() {
		os.Remove(tempStep1)
		os.Remove(tempSRT)
	}()

	logoPath := ""
	if set.AddLogo {
		logoPath = resolveLogoFile(set.LogoPath)
		if logoPath == "" {
			e.log.Warn("logo overlay requested but no valid logo file found, skipping logo")
		}
	}

	// Window over the whole video, speech-trimmed when budgets are set.
	totalDuration := 0.0
	if info, err := e.ProbeVideo(ctx, req.VideoPath); err != nil {
		e.log.WithError(err).Warn("could not probe video duration, skipping trim and subtitles")
	} else {
		totalDuration = info.Duration
	}

	winStart, winEnd := 0.0, totalDuration
	trimmed := false
	if tr := e.loadTranscriptForTrim(req.TranscriptPath, set.TrimStartMS, set.TrimEndMS); tr != nil && totalDuration > 0 {
		candStart, candEnd := trim.TrimToSpeech(*tr, 0, totalDuration, set.TrimStartMS, set.TrimEndMS)
		if candEnd > candStart && (candStart > 0 || candEnd < totalDuration) {
			winStart, winEnd = candStart, candEnd
			trimmed = true
			e.log.Infof("speech-aware trim for short: 0.000-%.3f -> %.3f-%.3f", totalDuration, winStart, winEnd)
		}
	}

	var trimArgs, durationArgs []string
	if trimmed {
		if winStart > 0 {
			trimArgs = []string{"-ss", formatSeconds(winStart)}
		}
		durationArgs = []string{"-t", formatSeconds(winEnd - winStart)}
	}

	// Subtitles are generated window-relative so they stay in sync with
	// whatever trimming moved.
	srtPath := ""
	if set.AddSubtitles && req.TranscriptPath != "" && winEnd > winStart {
		ok, err := e.subtitles.GenerateSRTForClip(req.TranscriptPath, winStart, winEnd, tempSRT, 42, 5.0)
		if err != nil {
			e.log.WithError(err).Warn("subtitle generation failed for short")
		} else if ok {
			srtPath = tempSRT
		}
	}

	hasLogo := set.AddLogo && logoPath != ""
	needsTwoSteps := hasLogo && srtPath != ""

	if needsTwoSteps {
		args := append([]string{}, trimArgs...)
		args = append(args, "-i", req.VideoPath, "-i", logoPath)
		args = append(args, durationArgs...)
		chains, out := logoOverlayFilter("[0:v]", "[1:v]", set.LogoPosition, logoScaleOrDefault(set.LogoScale))
		args = append(args, "-filter_complex", strings.Join(chains, ";"), "-map", out, "-sn")
		args = append(args, e.encodingArgs(0, 0, 0)...)
		args = append(args, "-y", tempStep1)
		if err := e.run(ctx, e.ffmpeg, args...); err != nil {
			return "", core.Wrap(core.ErrExternalTool, "export short (logo pass)", err)
		}

		args2 := []string{
			"-i", tempStep1,
			"-vf", subtitleFilter(srtPath, set.SubtitleStyle),
			"-c:a", "copy",
			"-y", outputPath,
		}
		if err := e.run(ctx, e.ffmpeg, args2...); err != nil {
			return "", core.Wrap(core.ErrExternalTool, "export short (subtitle pass)", err)
		}
		return outputPath, nil
	}

	args := append([]string{}, trimArgs...)
	switch {
	case hasLogo:
		args = append(args, "-i", req.VideoPath, "-i", logoPath)
		args = append(args, durationArgs...)
		chains, out := logoOverlayFilter("[0:v]", "[1:v]", set.LogoPosition, logoScaleOrDefault(set.LogoScale))
		args = append(args, "-filter_complex", strings.Join(chains, ";"), "-map", out)
	case srtPath != "":
		args = append(args, "-i", req.VideoPath)
		args = append(args, durationArgs...)
		args = append(args, "-vf", subtitleFilter(srtPath, set.SubtitleStyle), "-map", "0:v")
	default:
		args = append(args, "-i", req.VideoPath)
		args = append(args, durationArgs...)
		args = append(args, "-map", "0:v")
	}
	args = append(args, "-sn")
	args = append(args, e.encodingArgs(0, 0, 0)...)
	args = append(args, "-y", outputPath)
	if err := e.run(ctx, e.ffmpeg, args...); err != nil {
		return "", core.Wrap(core.ErrExternalTool, "export short", err)
	}
	return outputPath, nil
}

// encodingArgs is the shared tail of every render: audio mapping and the
// libx264/aac encode settings.
func (e *Engine) encodingArgs(crf, threads, audioInputIdx int) []string {
	if crf <= 0 {
		crf = 23
	}
	return []string{
		"-map", fmt.Sprintf("%d:a?", audioInputIdx),
		"-c:v", "libx264",
		"-c:a", "aac",
		"-preset", "fast",
		"-crf", strconv.Itoa(crf),
		"-threads", strconv.Itoa(resolveThreads(threads)),
	}
}

// loadTranscriptForTrim loads the transcript only when trimming is in play.
// A missing or unreadable transcript disables trimming with a warning.
func (e *Engine) loadTranscriptForTrim(transcriptPath string, trimStartMS, trimEndMS int) *types.Transcript {
	if transcriptPath == "" || (trimStartMS <= 0 && trimEndMS <= 0) {
		return nil
	}
	tr, err := types.LoadTranscript(transcriptPath)
	if err != nil {
		e.log.WithError(err).Warn("could not load transcript, skipping speech-aware trim")
		return nil
	}
	return &tr
}

// resolveLogoFile validates the configured logo path, falling back to the
// bundled default. Only still images are accepted.
func resolveLogoFile(logoPath string) string {
	candidates := []string{logoPath, "assets/logo.png"}
	for _, c := range candidates {
		if c == "" {
			continue
		}
		switch strings.ToLower(filepath.Ext(c)) {
		case ".png", ".jpg", ".jpeg":
		default:
			continue
		}
		if info, err := os.Stat(c); err == nil && !info.IsDir() {
			return c
		}
	}
	return ""
}

func formatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}

func logoScaleOrDefault(scale float64) float64 {
	if scale <= 0 {
		return 0.1
	}
	return scale
}
