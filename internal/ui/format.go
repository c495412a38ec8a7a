package ui

import (
	"fmt"
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
)

// FormatDuration renders seconds as m:ss or h:mm:ss. Unknown or negative
// values render as --:--.
func FormatDuration(seconds float64) string {
	if seconds < 0 || math.IsNaN(seconds) || math.IsInf(seconds, 0) {
		return "--:--"
	}
	total := int(seconds)
	h, m, s := total/3600, (total%3600)/60, total%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

// ProgressBar renders a bar of the given width. The filled part is styled
// with the theme's Bar style.
func ProgressBar(t Theme, position, duration float64, width int) string {
	if width <= 0 {
		return ""
	}
	filled := 0
	if duration > 0 {
		frac := position / duration
		if frac < 0 {
			frac = 0
		}
		if frac > 1 {
			frac = 1
		}
		filled = int(math.Round(frac * float64(width)))
	}
	return t.Bar.Render(strings.Repeat("━", filled)) + t.Dim.Render(strings.Repeat("─", width-filled))
}

// Truncate shortens s to at most n terminal cells, marking the cut with an
// ellipsis. Wide characters count as two cells.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if lipgloss.Width(s) <= n {
		return s
	}
	if n == 1 {
		return "…"
	}
	out := make([]rune, 0, n)
	width := 0
	for _, r := range s {
		rw := runewidth.RuneWidth(r)
		if width+rw > n-1 {
			break
		}
		out = append(out, r)
		width += rw
	}
	return string(out) + "…"
}
