// Package watermark renders text watermarks onto videos and photos with
// ffmpeg drawtext presets.
package watermark

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

// Position anchors the watermark inside the frame.
type Position string

const (
	TopLeft     Position = "top-left"
	TopRight    Position = "top-right"
	BottomLeft  Position = "bottom-left"
	BottomRight Position = "bottom-right"
	Center      Position = "center"
)

// expr returns the drawtext x and y expressions for a margin in pixels.
func (p Position) expr(margin int) (x, y string) {
	m := strconv.Itoa(margin)
	switch p {
	case TopLeft:
		return m, m
	case TopRight:
		return "w-tw-" + m, m
	case BottomLeft:
		return m, "h-th-" + m
	case Center:
		return "(w-tw)/2", "(h-th)/2"
	default:
		return "w-tw-" + m, "h-th-" + m
	}
}

// Style is a watermark preset.
type Style struct {
	Key      string
	Name     string
	Text     string
	Font     string // fontconfig family or a font file path
	FontSize int
	Color    string
	Opacity  float64
	Position Position
	Box      bool
	Shadow   bool
	Margin   int
}

// Filter builds the ffmpeg drawtext filter for the style.
func (s Style) Filter() string {
	x, y := s.Position.expr(s.Margin)

	opts := []string{
		"text=" + escapeText(s.Text),
	}
	if s.Font != "" {
		if strings.ContainsRune(s.Font, '/') {
			opts = append(opts, "fontfile="+escapeValue(s.Font))
		} else {
			opts = append(opts, "font="+escapeValue(s.Font))
		}
	}

	size := s.FontSize
	if size <= 0 {
		size = 24
	}
	color := s.Color
	if color == "" {
		color = "white"
	}
	opacity := s.Opacity
	if opacity <= 0 || opacity > 1 {
		opacity = 1
	}

	opts = append(opts,
		"fontsize="+strconv.Itoa(size),
		fmt.Sprintf("fontcolor=%s@%s", color, strconv.FormatFloat(opacity, 'f', -1, 64)),
		"x="+x,
		"y="+y,
	)
	if s.Box {
		opts = append(opts, "box=1", "boxcolor=black@0.5", "boxborderw=10")
	}
	if s.Shadow {
		opts = append(opts, "shadowcolor=black@0.7", "shadowx=2", "shadowy=2")
	}

	return "drawtext=" + strings.Join(opts, ":")
}

// WithFontDir resolves a bare font file name (e.g. "DejaVuSans.ttf") against dir.
func (s Style) WithFontDir(dir string) Style {
	if dir == "" || s.Font == "" || filepath.IsAbs(s.Font) || filepath.Ext(s.Font) == "" {
		return s
	}
	s.Font = filepath.Join(dir, s.Font)
	return s
}

// Describe returns a one-line human summary for menus.
func (s Style) Describe() string {
	extras := ""
	if s.Box {
		extras += ", boxed"
	}
	if s.Shadow {
		extras += ", shadow"
	}
	return fmt.Sprintf("%s: %q, %dpx %s, %s%s", s.Name, s.Text, s.FontSize, s.Color, s.Position, extras)
}

// drawtext text goes through three parsers before it is rendered: the
// filter graph, the filter's option list, then drawtext's own expansion.
// Each level strips one layer of backslashes, so escapes are applied
// innermost first.
var (
	expansionEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`)
	optionEscaper    = strings.NewReplacer(`\`, `\\`, `'`, `\'`, `:`, `\:`)
	graphEscaper     = strings.NewReplacer(
		`\`, `\\`,
		`'`, `\'`,
		`,`, `\,`,
		`;`, `\;`,
		`[`, `\[`,
		`]`, `\]`,
	)
)

// escapeText escapes s for use as the drawtext text option.
func escapeText(s string) string {
	return escapeValue(expansionEscaper.Replace(s))
}

// escapeValue escapes a plain option value such as a font path.
func escapeValue(s string) string {
	return graphEscaper.Replace(optionEscaper.Replace(s))
}
