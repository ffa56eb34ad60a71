package export

import (
	"fmt"
	"runtime"
	"strings"
)

// aspectRatioFilter returns the crop+scale chain for a target aspect ratio.
// Unknown ratios return "" and the source geometry is kept.
func aspectRatioFilter(aspectRatio string) string {
	switch aspectRatio {
	case "9:16":
		// Vertical for Reels, TikTok, Shorts: center crop then 1080x1920.
		return "crop=ih*9/16:ih,scale=1080:1920"
	case "1:1":
		return "crop=ih:ih,scale=1080:1080"
	case "16:9":
		return "scale=1920:1080"
	}
	return ""
}

type subtitleStyle struct {
	FontName      string
	FontSize      string
	PrimaryColour string
	OutlineColour string
	Outline       string
	Shadow        string
	Bold          string
	Alignment     string
	MarginV       string
}

// All presets use yellow text for visibility on busy footage.
var subtitleStyles = map[string]subtitleStyle{
	"default": {FontName: "Arial", FontSize: "18", PrimaryColour: "&H0000FFFF", OutlineColour: "&H00000000", Outline: "2", Shadow: "1", Bold: "0"},
	"bold":    {FontName: "Arial", FontSize: "22", PrimaryColour: "&H0000FFFF", OutlineColour: "&H00000000", Outline: "2", Shadow: "1", Bold: "-1"},
	"yellow":  {FontName: "Arial", FontSize: "20", PrimaryColour: "&H0000FFFF", OutlineColour: "&H00000000", Outline: "2", Shadow: "1", Bold: "-1"},
	"tiktok":  {FontName: "Arial", FontSize: "20", PrimaryColour: "&H0000FFFF", OutlineColour: "&H00000000", Outline: "2", Shadow: "2", Bold: "-1", Alignment: "10"},
	"small":   {FontName: "Arial", FontSize: "10", PrimaryColour: "&H0000FFFF", OutlineColour: "&H00000000", Outline: "1", Shadow: "1", Bold: "0", Alignment: "6", MarginV: "100"},
	"tiny":    {FontName: "Arial", FontSize: "8", PrimaryColour: "&H0000FFFF", OutlineColour: "&H00000000", Outline: "1", Shadow: "0", Bold: "0", Alignment: "6", MarginV: "100"},
}

// subtitleFilter builds the subtitles burn-in filter with force_style for
// the named preset. Unknown presets fall back to "default".
func subtitleFilter(srtPath, styleName string) string {
	style, ok := subtitleStyles[styleName]
	if !ok {
		style = subtitleStyles["default"]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "subtitles='%s':force_style='", escapeFilterPath(srtPath))
	fmt.Fprintf(&b, "FontName=%s,", style.FontName)
	fmt.Fprintf(&b, "FontSize=%s,", style.FontSize)
	fmt.Fprintf(&b, "PrimaryColour=%s,", style.PrimaryColour)
	fmt.Fprintf(&b, "OutlineColour=%s,", style.OutlineColour)
	fmt.Fprintf(&b, "Outline=%s,", style.Outline)
	fmt.Fprintf(&b, "Shadow=%s,", style.Shadow)
	fmt.Fprintf(&b, "Bold=%s", style.Bold)
	if style.Alignment != "" {
		fmt.Fprintf(&b, ",Alignment=%s", style.Alignment)
	}
	if style.MarginV != "" {
		fmt.Fprintf(&b, ",MarginV=%s", style.MarginV)
	}
	b.WriteString("'")
	return b.String()
}

var logoPositions = map[string]string{
	"top-right":    "W-w-20:20",
	"top-left":     "20:20",
	"bottom-right": "W-w-20:H-h-20",
	"bottom-left":  "20:H-h-20",
}

// logoOverlayFilter builds the filter_complex chains that scale the logo
// relative to the video width and overlay it. In scale2ref, iw/ih are the
// reference (video) dimensions and main_w/main_h are the logo's; the
// 2*trunc(x/2) keeps both logo dimensions even for yuv420p. Returns the
// chains and the label of the resulting video stream.
func logoOverlayFilter(videoStream, logoStream, position string, scale float64) ([]string, string) {
	pos, ok := logoPositions[position]
	if !ok {
		pos = logoPositions["top-right"]
	}
	scaled := fmt.Sprintf("%sscale2ref=w=2*trunc(iw*%[2]v/2):h=2*trunc(iw*%[2]v*main_h/main_w/2)[logo_scaled][video_for_overlay]",
		logoStream+videoStream, scale)
	overlay := fmt.Sprintf("[video_for_overlay][logo_scaled]overlay=%s[v_out]", pos)
	return []string{scaled, overlay}, "[v_out]"
}

// escapeFilterPath escapes a path for use inside a filter argument such as
// subtitles=... or movie=... Backslashes go first.
func escapeFilterPath(p string) string {
	p = strings.ReplaceAll(p, "\\", "\\\\")
	p = strings.ReplaceAll(p, ":", "\\:")
	p = strings.ReplaceAll(p, "'", "\\'")
	return p
}

// resolveThreads maps the configured -threads value: 0 lets ffmpeg decide,
// positive is used verbatim, negative means all CPUs minus N.
func resolveThreads(threads int) int {
	if threads >= 0 {
		return threads
	}
	n := runtime.NumCPU() + threads
	if n < 1 {
		n = 1
	}
	return n
}
