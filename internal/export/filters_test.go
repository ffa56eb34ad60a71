package export

import (
	"context"
	"runtime"
	"strings"
	"testing"
)

func TestAspectRatioFilter(t *testing.T) {
	t.Parallel()

	cases := []struct {
		aspect string
		want   string
	}{
		{"9:16", "crop=ih*9/16:ih,scale=1080:1920"},
		{"1:1", "crop=ih:ih,scale=1080:1080"},
		{"16:9", "scale=1920:1080"},
		{"4:3", ""},
		{"", ""},
	}
	for _, tc := range cases {
		if got := aspectRatioFilter(tc.aspect); got != tc.want {
			t.Errorf("aspectRatioFilter(%q) = %q, want %q", tc.aspect, got, tc.want)
		}
	}
}

func TestSubtitleFilterStyles(t *testing.T) {
	t.Parallel()

	f := subtitleFilter("/tmp/clip.srt", "default")
	for _, want := range []string{
		"subtitles='/tmp/clip.srt'",
		"FontName=Arial",
		"FontSize=18",
		"PrimaryColour=&H0000FFFF",
		"Bold=0",
	} {
		if !strings.Contains(f, want) {
			t.Errorf("default filter missing %q: %s", want, f)
		}
	}
	if strings.Contains(f, "Alignment=") {
		t.Errorf("default style has no alignment override: %s", f)
	}

	tiktok := subtitleFilter("/tmp/clip.srt", "tiktok")
	if !strings.Contains(tiktok, "Alignment=10") {
		t.Errorf("tiktok style should center-top align: %s", tiktok)
	}

	small := subtitleFilter("/tmp/clip.srt", "small")
	if !strings.Contains(small, "MarginV=100") {
		t.Errorf("small style should carry MarginV: %s", small)
	}

	unknown := subtitleFilter("/tmp/clip.srt", "does-not-exist")
	if unknown != f {
		t.Errorf("unknown style should fall back to default:\n%s\n%s", unknown, f)
	}
}

func TestEscapeFilterPath(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want string
	}{
		{`/plain/path.srt`, `/plain/path.srt`},
		{`C:\clips\a.srt`, `C\:\\clips\\a.srt`},
		{`/it's here.srt`, `/it\'s here.srt`},
	}
	for _, tc := range cases {
		if got := escapeFilterPath(tc.in); got != tc.want {
			t.Errorf("escapeFilterPath(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestLogoOverlayFilter(t *testing.T) {
	t.Parallel()

	chains, out := logoOverlayFilter("[0:v]", "[1:v]", "top-right", 0.1)
	if out != "[v_out]" {
		t.Fatalf("out = %q", out)
	}
	if len(chains) != 2 {
		t.Fatalf("chains = %v, want scale2ref then overlay", chains)
	}
	if !strings.HasPrefix(chains[0], "[1:v][0:v]scale2ref=") {
		t.Errorf("scale2ref chain should take logo then video: %s", chains[0])
	}
	if !strings.Contains(chains[0], "2*trunc(iw*0.1/2)") {
		t.Errorf("logo width should be an even fraction of video width: %s", chains[0])
	}
	if !strings.Contains(chains[1], "overlay=W-w-20:20") {
		t.Errorf("top-right overlay position wrong: %s", chains[1])
	}

	chains, _ = logoOverlayFilter("[0:v]", "[1:v]", "bottom-left", 0.2)
	if !strings.Contains(chains[1], "overlay=20:H-h-20") {
		t.Errorf("bottom-left overlay position wrong: %s", chains[1])
	}

	chains, _ = logoOverlayFilter("[0:v]", "[1:v]", "sideways", 0.1)
	if !strings.Contains(chains[1], "overlay=W-w-20:20") {
		t.Errorf("unknown position should fall back to top-right: %s", chains[1])
	}
}

func TestResolveThreads(t *testing.T) {
	t.Parallel()

	if got := resolveThreads(0); got != 0 {
		t.Errorf("resolveThreads(0) = %d, want 0 (ffmpeg auto)", got)
	}
	if got := resolveThreads(4); got != 4 {
		t.Errorf("resolveThreads(4) = %d, want 4", got)
	}
	if got := resolveThreads(-1); got != max(1, runtime.NumCPU()-1) {
		t.Errorf("resolveThreads(-1) = %d, want NumCPU-1 floored at 1", got)
	}
	if got := resolveThreads(-1000); got != 1 {
		t.Errorf("resolveThreads(-1000) = %d, want floor of 1", got)
	}
}

func TestParseFrameRate(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want float64
	}{
		{"30/1", 30},
		{"30000/1001", 30000.0 / 1001.0},
		{"25", 25},
		{"", 0},
		{"0/0", 0},
		{"abc", 0},
		{"-30/1", 0},
	}
	for _, tc := range cases {
		if got := parseFrameRate(tc.in); got != tc.want {
			t.Errorf("parseFrameRate(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestProbeVideoParsesStreams(t *testing.T) {
	t.Parallel()

	e := New("", "", nil, nil, quietLogger())
	e.capture = func(ctx context.Context, name string, args ...string) ([]byte, error) {
		return []byte(`{
			"format": {"duration": "123.456"},
			"streams": [
				{"codec_type": "audio", "codec_name": "aac"},
				{"codec_type": "video", "codec_name": "h264", "width": 1920, "height": 1080, "r_frame_rate": "30000/1001"}
			]
		}`), nil
	}

	info, err := e.ProbeVideo(context.Background(), "in.mp4")
	if err != nil {
		t.Fatalf("probe: %v", err)
	}
	if info.Duration != 123.456 {
		t.Errorf("duration = %v", info.Duration)
	}
	if info.Width != 1920 || info.Height != 1080 {
		t.Errorf("dimensions = %dx%d", info.Width, info.Height)
	}
	if info.Codec != "h264" {
		t.Errorf("codec = %q", info.Codec)
	}
	if info.FPS < 29.9 || info.FPS > 30.0 {
		t.Errorf("fps = %v, want ~29.97", info.FPS)
	}
}
