package watermark

import (
	"fmt"
	"sort"

	"github.com/iconidentify/mediabot/internal/domain"
)

// Presets registered at build time, in menu order.
var presets = []Style{
	{
		Key:      "classic",
		Name:     "Classic",
		Text:     "mediabot",
		Font:     "DejaVuSans-Bold.ttf",
		FontSize: 28,
		Color:    "white",
		Opacity:  0.8,
		Position: BottomRight,
		Shadow:   true,
		Margin:   20,
	},
	{
		Key:      "corner",
		Name:     "Corner tag",
		Text:     "@mediabot",
		Font:     "DejaVuSans.ttf",
		FontSize: 20,
		Color:    "white",
		Opacity:  0.6,
		Position: TopLeft,
		Margin:   12,
	},
	{
		Key:      "banner",
		Name:     "Banner",
		Text:     "Downloaded with mediabot",
		Font:     "DejaVuSans-Bold.ttf",
		FontSize: 32,
		Color:    "yellow",
		Opacity:  1,
		Position: BottomLeft,
		Box:      true,
		Margin:   16,
	},
	{
		Key:      "shadow",
		Name:     "Shadow",
		Text:     "mediabot",
		Font:     "DejaVuSerif-Bold.ttf",
		FontSize: 36,
		Color:    "white",
		Opacity:  0.9,
		Position: TopRight,
		Shadow:   true,
		Margin:   24,
	},
	{
		Key:      "center",
		Name:     "Center stamp",
		Text:     "MEDIABOT",
		Font:     "DejaVuSans-Bold.ttf",
		FontSize: 64,
		Color:    "white",
		Opacity:  0.35,
		Position: Center,
	},
}

var registry = func() map[string]Style {
	m := make(map[string]Style, len(presets))
	for _, s := range presets {
		if _, dup := m[s.Key]; dup {
			panic(fmt.Sprintf("watermark: duplicate style %q", s.Key))
		}
		m[s.Key] = s
	}
	return m
}()

// Lookup returns the style registered under key.
func Lookup(key string) (Style, error) {
	s, ok := registry[key]
	if !ok {
		return Style{}, fmt.Errorf("%w: %q", domain.ErrStyleNotFound, key)
	}
	return s, nil
}

// All returns every registered style in menu order.
func All() []Style {
	out := make([]Style, len(presets))
	copy(out, presets)
	return out
}

// Keys returns the registered style keys sorted alphabetically.
func Keys() []string {
	keys := make([]string, 0, len(registry))
	for k := range registry {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
