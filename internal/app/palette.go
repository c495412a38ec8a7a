package app

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/sahilm/fuzzy"
	"github.com/tomes/tomes/internal/playlist"
	"github.com/tomes/tomes/internal/ui"
)

const paletteRows = 10

// chapterSource adapts a chapter list for fuzzy matching.
type chapterSource []playlist.Chapter

func (c chapterSource) String(i int) string { return c[i].Title }
func (c chapterSource) Len() int { return len(c) }

// chapterPalette is the jump-to-chapter overlay.
type chapterPalette struct {
	chapters chapterSource
	input    string
	matches  fuzzy.Matches
	selected int
}

func newChapterPalette(chapters []playlist.Chapter) *chapterPalette {
	return &chapterPalette{chapters: chapterSource(chapters)}
}

func (p *chapterPalette) Input() string { return p.input }

func (p *chapterPalette) Type(s string) {
	p.input += s
	p.update()
}

func (p *chapterPalette) Backspace() {
	if p.input == "" {
		return
	}
	r := []rune(p.input)
	p.input = string(r[:len(r)-1])
	p.update()
}

func (p *chapterPalette) Up() {
	if p.selected > 0 {
		p.selected--
	}
}

func (p *chapterPalette) Down() {
	if p.selected < p.count()-1 {
		p.selected++
	}
}

func (p *chapterPalette) count() int {
	if p.input == "" {
		return len(p.chapters)
	}
	return len(p.matches)
}

// Selected returns the playlist index of the highlighted chapter.
func (p *chapterPalette) Selected() (int, bool) {
	if p.selected >= p.count() {
		return 0, false
	}
	if p.input == "" {
		return p.selected, true
	}
	return p.matches[p.selected].Index, true
}

func (p *chapterPalette) update() {
	p.selected = 0
	if p.input == "" {
		p.matches = nil
		return
	}
	p.matches = fuzzy.FindFrom(p.input, p.chapters)
}

func (p *chapterPalette) Render(t ui.Theme, width, height int) string {
	var b strings.Builder
	b.WriteString(t.Title.Render("Jump to chapter") + "\n\n")
	b.WriteString(lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1).Width(40).Render(p.input+"│") + "\n\n")

	n := p.count()
	if n == 0 {
		b.WriteString(t.Dim.Render("  No matching chapters") + "\n")
	}
	start := 0
	if p.selected >= paletteRows {
		start = p.selected - paletteRows + 1
	}
	end := min(start+paletteRows, n)
	for i := start; i < end; i++ {
		idx, title, hits := i, "", []int(nil)
		if p.input != "" {
			idx, hits = p.matches[i].Index, p.matches[i].MatchedIndexes
		}
		title = ui.Truncate(p.chapters[idx].Title, 48)
		if len(hits) > 0 {
			title = highlightMatches(title, hits, t.Accent)
		}
		if i == p.selected {
			b.WriteString(t.Highlight.Render(" ▸ ") + t.Text.Bold(true).Render(title) + "\n")
		} else {
			b.WriteString("   " + t.Text.Render(title) + "\n")
		}
	}
	b.WriteString("\n" + t.Dim.Render("  ↑↓ navigate  Enter play  Esc close"))

	box := lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(1, 2).Render(b.String())
	return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center, box)
}

// highlightMatches highlights matched byte offsets in s.
func highlightMatches(s string, indices []int, style lipgloss.Style) string {
	hit := make(map[int]bool, len(indices))
	for _, i := range indices {
		hit[i] = true
	}
	var out strings.Builder
	for i, ch := range s {
		if hit[i] {
			out.WriteString(style.Render(string(ch)))
		} else {
			out.WriteRune(ch)
		}
	}
	return out.String()
}
