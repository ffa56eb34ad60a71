package export

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"

	"clipcut/internal/core"
	"clipcut/internal/types"
)

type fakeSubtitleWriter struct {
	calls []struct{ start, end float64 }
	fail  bool
}

func (f *fakeSubtitleWriter) GenerateSRTForClip(transcriptPath string, clipStart, clipEnd float64, outputPath string, maxCharsPerLine int, maxDuration float64) (bool, error) {
	f.calls = append(f.calls, struct{ start, end float64 }{clipStart, clipEnd})
	if f.fail {
		return false, errors.New("srt boom")
	}
	if err := os.WriteFile(outputPath, []byte("1\n00:00:00,000 --> 00:00:01,000\nhi\n\n"), 0o644); err != nil {
		return false, err
	}
	return true, nil
}

type fakeReframer struct {
	err   error
	calls int
}

func (f *fakeReframer) ReframeVideo(ctx context.Context, inputPath, outputPath string, targetWidth, targetHeight int, startTime, endTime float64) error {
	f.calls++
	if f.err != nil {
		return f.err
	}
	return os.WriteFile(outputPath, []byte("reframed"), 0o644)
}

// recordingRunner captures every command and writes the output file (the
// final argument) so downstream rename and cleanup paths behave as they
// would with real ffmpeg.
type recordingRunner struct {
	invocations [][]string
	failOn      map[int]error // 1-based invocation index
}

func (r *recordingRunner) run(ctx context.Context, name string, args ...string) error {
	r.invocations = append(r.invocations, append([]string{name}, args...))
	if err := r.failOn[len(r.invocations)]; err != nil {
		return err
	}
	out := args[len(args)-1]
	return os.WriteFile(out, []byte("rendered"), 0o644)
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetLevel(logrus.PanicLevel)
	return log
}

func newTestEngine(t *testing.T, runner *recordingRunner, subs *fakeSubtitleWriter, reframer *fakeReframer) *Engine {
	t.Helper()
	var e *Engine
	if reframer == nil {
		e = New("ffmpeg", "ffprobe", subs, nil, quietLogger())
	} else {
		e = New("ffmpeg", "ffprobe", subs, reframer, quietLogger())
	}
	e.run = runner.run
	return e
}

func writeSourceVideo(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "source.mp4")
	if err := os.WriteFile(path, []byte("video"), 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}
	return path
}

func writeLogo(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "logo.png")
	if err := os.WriteFile(path, []byte("png"), 0o644); err != nil {
		t.Fatalf("write logo: %v", err)
	}
	return path
}

func listFiles(t *testing.T, dir string) []string {
	t.Helper()
	var names []string
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestExportClipsLogoAndSubtitlesTwoInvocationsNoTemps(t *testing.T) {
	runner := &recordingRunner{}
	subs := &fakeSubtitleWriter{}
	e := newTestEngine(t, runner, subs, nil)

	outDir := t.TempDir()
	logo := writeLogo(t, t.TempDir())
	exported, err := e.ExportClips(context.Background(), core.ExportRequest{
		VideoPath:      writeSourceVideo(t),
		OutputDir:      outDir,
		Clips:          []types.Clip{{ID: 1, Start: 5, End: 15}},
		TranscriptPath: "transcript.json",
		Settings: core.ExportSettings{
			AddSubtitles: true,
			AddLogo:      true,
			LogoPath:     logo,
		},
	})
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if len(exported) != 1 {
		t.Fatalf("exported = %v, want one clip", exported)
	}
	if got := len(runner.invocations); got != 2 {
		t.Fatalf("ffmpeg invoked %d times, want exactly 2", got)
	}

	step1 := runner.invocations[0]
	if !containsArg(step1, "-filter_complex") {
		t.Errorf("step 1 should use -filter_complex for the logo: %v", step1)
	}
	if !containsArg(step1, "-sn") {
		t.Errorf("step 1 should discard subtitle streams with -sn: %v", step1)
	}
	step2 := runner.invocations[1]
	if !containsSeq(step2, "-c:a", "copy") {
		t.Errorf("step 2 should copy audio: %v", step2)
	}

	for _, name := range listFiles(t, outDir) {
		if name != "1.mp4" && name != "1.srt" {
			t.Errorf("leftover file %q in output dir", name)
		}
	}
}

func TestExportClipsSubtitlePassFailureFallsBackToLogoOnly(t *testing.T) {
	runner := &recordingRunner{failOn: map[int]error{2: errors.New("exit status 1")}}
	subs := &fakeSubtitleWriter{}
	e := newTestEngine(t, runner, subs, nil)

	outDir := t.TempDir()
	exported, err := e.ExportClips(context.Background(), core.ExportRequest{
		VideoPath:      writeSourceVideo(t),
		OutputDir:      outDir,
		Clips:          []types.Clip{{ID: 7, Start: 0, End: 10}},
		TranscriptPath: "transcript.json",
		Settings: core.ExportSettings{
			AddSubtitles: true,
			AddLogo:      true,
			LogoPath:     writeLogo(t, t.TempDir()),
		},
	})
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if len(exported) != 1 {
		t.Fatalf("step 2 failure should fall back to the logo-only render, got %v", exported)
	}
	if _, err := os.Stat(filepath.Join(outDir, "7.mp4")); err != nil {
		t.Fatalf("fallback output missing: %v", err)
	}
	if _, err := os.Stat(filepath.Join(outDir, "7_step1_temp.mp4")); !os.IsNotExist(err) {
		t.Fatalf("step 1 temp should be gone after fallback rename, stat err=%v", err)
	}
}

func TestExportClipsFailedClipDoesNotStopSiblings(t *testing.T) {
	runner := &recordingRunner{failOn: map[int]error{1: errors.New("exit status 1")}}
	e := newTestEngine(t, runner, &fakeSubtitleWriter{}, nil)

	exported, err := e.ExportClips(context.Background(), core.ExportRequest{
		VideoPath: writeSourceVideo(t),
		OutputDir: t.TempDir(),
		Clips: []types.Clip{
			{ID: 1, Start: 0, End: 5},
			{ID: 2, Start: 10, End: 20},
		},
	})
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if len(exported) != 1 || filepath.Base(exported[0]) != "2.mp4" {
		t.Fatalf("exported = %v, want only clip 2", exported)
	}
}

func TestExportClipsReframerFailureStillExports(t *testing.T) {
	runner := &recordingRunner{}
	reframer := &fakeReframer{err: errors.New("no faces detected")}
	e := newTestEngine(t, runner, &fakeSubtitleWriter{}, reframer)

	outDir := t.TempDir()
	exported, err := e.ExportClips(context.Background(), core.ExportRequest{
		VideoPath: writeSourceVideo(t),
		OutputDir: outDir,
		Clips:     []types.Clip{{ID: 3, Start: 1, End: 9}},
		Settings: core.ExportSettings{
			AspectRatio:        "9:16",
			EnableFaceTracking: true,
		},
	})
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if len(exported) != 1 {
		t.Fatalf("reframer failure must still yield an export, got %v", exported)
	}
	if reframer.calls != 1 {
		t.Fatalf("reframer called %d times, want 1", reframer.calls)
	}
	cmd := runner.invocations[0]
	if !containsSeq(cmd, "-vf", aspectRatioFilter("9:16")) {
		t.Errorf("fallback should apply the static 9:16 crop: %v", cmd)
	}
	for _, name := range listFiles(t, outDir) {
		if name != "3.mp4" {
			t.Errorf("leftover file %q in output dir", name)
		}
	}
}

func TestExportClipsReframerSuccessReplacesStaticCrop(t *testing.T) {
	runner := &recordingRunner{}
	reframer := &fakeReframer{}
	e := newTestEngine(t, runner, &fakeSubtitleWriter{}, reframer)

	outDir := t.TempDir()
	exported, err := e.ExportClips(context.Background(), core.ExportRequest{
		VideoPath: writeSourceVideo(t),
		OutputDir: outDir,
		Clips:     []types.Clip{{ID: 4, Start: 2, End: 8}},
		Settings: core.ExportSettings{
			AspectRatio:        "9:16",
			EnableFaceTracking: true,
		},
	})
	if err != nil || len(exported) != 1 {
		t.Fatalf("export: %v exported=%v", err, exported)
	}
	cmd := runner.invocations[0]
	if containsArg(cmd, "-vf") {
		t.Errorf("reframed clip must not also get the static crop: %v", cmd)
	}
	// Audio comes from the trimmed original as input 1.
	if !containsSeq(cmd, "-map", "1:a?") {
		t.Errorf("audio should be mapped from the original input: %v", cmd)
	}
	if _, err := os.Stat(filepath.Join(outDir, "4_reframed_temp.mp4")); !os.IsNotExist(err) {
		t.Fatalf("reframe temp should be cleaned up, stat err=%v", err)
	}
}

func TestExportClipsFaceTrackingSkippedForNonVertical(t *testing.T) {
	runner := &recordingRunner{}
	reframer := &fakeReframer{}
	e := newTestEngine(t, runner, &fakeSubtitleWriter{}, reframer)

	_, err := e.ExportClips(context.Background(), core.ExportRequest{
		VideoPath: writeSourceVideo(t),
		OutputDir: t.TempDir(),
		Clips:     []types.Clip{{ID: 1, Start: 0, End: 5}},
		Settings: core.ExportSettings{
			AspectRatio:        "16:9",
			EnableFaceTracking: true,
		},
	})
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if reframer.calls != 0 {
		t.Fatalf("face tracking is vertical-only, reframer called %d times", reframer.calls)
	}
}

func TestExportClipsOrganizeByStyle(t *testing.T) {
	runner := &recordingRunner{}
	e := newTestEngine(t, runner, &fakeSubtitleWriter{}, nil)

	outDir := t.TempDir()
	exported, err := e.ExportClips(context.Background(), core.ExportRequest{
		VideoPath:  writeSourceVideo(t),
		OutputDir:  outDir,
		Clips:      []types.Clip{{ID: 1, Start: 0, End: 5}, {ID: 2, Start: 5, End: 10}},
		ClipStyles: map[int]string{1: "viral"},
		Settings:   core.ExportSettings{OrganizeByStyle: true},
	})
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	want := map[string]bool{
		filepath.Join(outDir, "viral", "1.mp4"):        true,
		filepath.Join(outDir, "unclassified", "2.mp4"): true,
	}
	for _, p := range exported {
		if !want[p] {
			t.Errorf("unexpected export path %s", p)
		}
	}
	if len(exported) != 2 {
		t.Fatalf("exported = %v, want 2 clips", exported)
	}
}

func TestExportClipsMissingVideo(t *testing.T) {
	e := newTestEngine(t, &recordingRunner{}, &fakeSubtitleWriter{}, nil)
	_, err := e.ExportClips(context.Background(), core.ExportRequest{
		VideoPath: filepath.Join(t.TempDir(), "nope.mp4"),
		OutputDir: t.TempDir(),
	})
	if err == nil {
		t.Fatal("expected error for missing source video")
	}
}

func TestExportShortTrimsAndRegeneratesSubtitles(t *testing.T) {
	runner := &recordingRunner{}
	subs := &fakeSubtitleWriter{}
	e := newTestEngine(t, runner, subs, nil)
	e.capture = func(ctx context.Context, name string, args ...string) ([]byte, error) {
		return []byte(`{"format":{"duration":"60.0"},"streams":[{"codec_type":"video","width":1920,"height":1080,"r_frame_rate":"30/1"}]}`), nil
	}

	transcript := filepath.Join(t.TempDir(), "transcript.json")
	writeTranscriptFile(t, transcript, types.Transcript{Segments: []types.Segment{
		{Start: 5, End: 55, Text: "speech", Words: []types.Word{
			{Start: 5, End: 6, Word: "speech"},
			{Start: 54, End: 55, Word: "end"},
		}},
	}})

	outDir := t.TempDir()
	out, err := e.ExportShort(context.Background(), core.ShortRequest{
		VideoPath:      writeSourceVideo(t),
		OutputDir:      outDir,
		TranscriptPath: transcript,
		Settings: core.ShortsSettings{
			AddSubtitles: true,
			TrimStartMS:  1000,
			TrimEndMS:    1000,
		},
	})
	if err != nil {
		t.Fatalf("export short: %v", err)
	}
	if filepath.Base(out) != "short.mp4" {
		t.Fatalf("out = %s, want default short.mp4", out)
	}

	if len(subs.calls) != 1 {
		t.Fatalf("subtitle writer called %d times, want 1", len(subs.calls))
	}
	// Speech spans 5..55 with 1s budgets, so the window snaps to 4..56.
	if subs.calls[0].start != 4.0 || subs.calls[0].end != 56.0 {
		t.Fatalf("srt window = [%v, %v], want trimmed [4, 56]", subs.calls[0].start, subs.calls[0].end)
	}

	cmd := runner.invocations[0]
	if !containsSeq(cmd, "-ss", "4.000") {
		t.Errorf("expected -ss 4.000 before input: %v", cmd)
	}
	if !containsSeq(cmd, "-t", "52.000") {
		t.Errorf("expected trimmed -t 52.000: %v", cmd)
	}

	for _, name := range listFiles(t, outDir) {
		if name != "short.mp4" {
			t.Errorf("leftover file %q in output dir", name)
		}
	}
}

func TestExportShortLogoAndSubtitlesTwoSteps(t *testing.T) {
	runner := &recordingRunner{}
	subs := &fakeSubtitleWriter{}
	e := newTestEngine(t, runner, subs, nil)
	e.capture = func(ctx context.Context, name string, args ...string) ([]byte, error) {
		return []byte(`{"format":{"duration":"30.0"},"streams":[{"codec_type":"video"}]}`), nil
	}

	transcript := filepath.Join(t.TempDir(), "transcript.json")
	writeTranscriptFile(t, transcript, types.Transcript{})

	outDir := t.TempDir()
	out, err := e.ExportShort(context.Background(), core.ShortRequest{
		VideoPath:      writeSourceVideo(t),
		OutputDir:      outDir,
		Filename:       "promo.mp4",
		TranscriptPath: transcript,
		Settings: core.ShortsSettings{
			AddSubtitles: true,
			AddLogo:      true,
			LogoPath:     writeLogo(t, t.TempDir()),
		},
	})
	if err != nil {
		t.Fatalf("export short: %v", err)
	}
	if filepath.Base(out) != "promo.mp4" {
		t.Fatalf("out = %s", out)
	}
	if len(runner.invocations) != 2 {
		t.Fatalf("ffmpeg invoked %d times, want 2", len(runner.invocations))
	}
	for _, name := range listFiles(t, outDir) {
		if name != "promo.mp4" {
			t.Errorf("leftover file %q in output dir", name)
		}
	}
}

func TestExportShortRenderFailure(t *testing.T) {
	runner := &recordingRunner{failOn: map[int]error{1: errors.New("exit status 1")}}
	e := newTestEngine(t, runner, &fakeSubtitleWriter{}, nil)
	e.capture = func(ctx context.Context, name string, args ...string) ([]byte, error) {
		return []byte(`{"format":{"duration":"30.0"},"streams":[]}`), nil
	}

	_, err := e.ExportShort(context.Background(), core.ShortRequest{
		VideoPath: writeSourceVideo(t),
		OutputDir: t.TempDir(),
	})
	if !errors.Is(err, core.ErrExternalTool) {
		t.Fatalf("err = %v, want ErrExternalTool", err)
	}
}

func writeTranscriptFile(t *testing.T, path string, tr types.Transcript) {
	t.Helper()
	b, err := json.Marshal(tr)
	if err != nil {
		t.Fatalf("marshal transcript: %v", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		t.Fatalf("write transcript: %v", err)
	}
}

func containsArg(cmd []string, arg string) bool {
	for _, a := range cmd {
		if a == arg {
			return true
		}
	}
	return false
}

func containsSeq(cmd []string, flag, value string) bool {
	for i := 0; i+1 < len(cmd); i++ {
		if cmd[i] == flag && cmd[i+1] == value {
			return true
		}
	}
	return false
}
