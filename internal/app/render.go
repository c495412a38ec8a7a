package app

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/tomes/tomes/internal/playlist"
	"github.com/tomes/tomes/internal/search"
	"github.com/tomes/tomes/internal/session"
	"github.com/tomes/tomes/internal/ui"
)

const listRows = 12

func (m Model) View() string {
	if m.fatalErr != nil {
		return m.renderFatalError(m.fatalErr, "Press q to quit")
	}
	if m.showHelp {
		return m.renderHelp()
	}
	var main string
	switch m.screen {
	case screenPlayer:
		if m.palette != nil {
			return m.palette.Render(m.theme, m.width, m.height)
		}
		if m.np != nil {
			if err := m.np.view(time.Now()).Fatal; err != nil {
				return m.renderFatalError(err, "R retry · esc back to search · q quit")
			}
		}
		main = m.renderPlayer()
	default:
		main = m.renderSearch()
	}
	top := lipgloss.NewStyle().Bold(true).Render("Tomes ▸ " + m.screenTitle())
	status := m.theme.Dim.Render(m.status)
	if m.errorMsg != "" {
		status = m.theme.Error.Render(m.errorMsg)
	}
	return lipgloss.JoinVertical(lipgloss.Left, top, main, status, m.help.View(m.keys))
}

func (m Model) screenTitle() string {
	if m.screen == screenPlayer {
		return "Player"
	}
	return "Search"
}

func (m Model) renderFatalError(err error, hint string) string {
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center,
		m.theme.Border.Render(
			lipgloss.JoinVertical(lipgloss.Center,
				m.theme.Error.Render("Something went wrong"),
				"",
				m.theme.Text.Render(err.Error()),
				"",
				m.theme.Dim.Render(hint),
			),
		),
	)
}

func (m Model) renderSearch() string {
	var b strings.Builder

	cats := make([]string, 0, len(m.presets))
	for i, p := range m.presets {
		if i == m.category {
			cats = append(cats, m.theme.Highlight.Render("["+p.Name+"]"))
		} else {
			cats = append(cats, m.theme.Dim.Render(p.Name))
		}
	}
	b.WriteString(strings.Join(cats, " ") + "\n")

	filters := make([]string, 0, len(search.Filters))
	for i, f := range search.Filters {
		mark := "[ ]"
		if m.filters[f.Key] {
			mark = "[x]"
		}
		filters = append(filters, fmt.Sprintf("%d %s %s", i+1, mark, f.Label))
	}
	b.WriteString(m.theme.Dim.Render(strings.Join(filters, "  ")) + "\n\n")
	b.WriteString(m.input.View() + "\n\n")

	if m.searching {
		b.WriteString(m.spin.View() + " Searching…\n")
	}
	if m.retryErr != nil {
		b.WriteString(m.theme.Border.Render(lipgloss.JoinVertical(lipgloss.Left,
			m.theme.Error.Render("The catalog did not answer"),
			m.theme.Text.Render(m.retryErr.Error()),
			m.theme.Dim.Render("Press R to retry"),
		)) + "\n")
	}

	if len(m.results) == 0 {
		if m.searched && !m.searching && m.retryErr == nil {
			b.WriteString(m.theme.Dim.Render("No results") + "\n")
		}
		if len(m.recent) > 0 {
			b.WriteString("\n" + m.theme.Accent.Render("Recently viewed") + "\n")
			for i, r := range m.recent {
				b.WriteString(m.listLine(i == m.selected, ui.Truncate(r.Title, 70)) + "\n")
			}
		}
		return b.String()
	}

	start := clamp(m.selected-listRows/2, 0, max(0, len(m.results)-listRows))
	end := min(start+listRows, len(m.results))
	for i := start; i < end; i++ {
		d := m.results[i]
		line := ui.Truncate(d.Title.String(), 50)
		if d.Creator != "" {
			line += m.theme.Dim.Render(" · " + ui.Truncate(d.Creator.String(), 30))
		}
		if y := d.Year.Int(); y > 0 {
			line += m.theme.Dim.Render(fmt.Sprintf(" (%d)", y))
		}
		b.WriteString(m.listLine(i == m.selected, line) + "\n")
	}
	more := ""
	if m.deps.Search.HasMore() {
		more = " · more below"
	}
	b.WriteString(m.theme.Dim.Render(fmt.Sprintf("page %d · %d of %d%s", m.page, len(m.results), m.numFound, more)))
	return b.String()
}

func (m Model) listLine(selected bool, text string) string {
	if selected {
		return m.theme.Highlight.Render(" ▸ ") + m.theme.Text.Bold(true).Render(text)
	}
	return "   " + m.theme.Text.Render(text)
}

func (m Model) renderPlayer() string {
	if m.np == nil {
		return ""
	}
	v := m.np.view(time.Now())
	if m.opening || m.sess == nil {
		return m.spin.View() + " Opening " + m.openID + "…"
	}
	snap := m.sess.Snapshot()
	meta := m.sess.Item().Metadata

	var info strings.Builder
	info.WriteString(m.theme.Title.Render(v.Title) + "\n")
	if meta.Creator != "" {
		info.WriteString(m.theme.Text.Render("by "+meta.Creator.String()) + "\n")
	}
	if reader := meta.ReadBy(); reader != "" {
		info.WriteString(m.theme.Dim.Render("read by "+reader) + "\n")
	}
	if m.tags.Album != "" || m.tags.Artist != "" {
		info.WriteString(m.theme.Dim.Render(fmt.Sprintf("tagged %s · %s %s", m.tags.Artist, m.tags.Album, m.tags.Format)) + "\n")
	}
	info.WriteString(m.theme.Dim.Render(m.deps.Catalog.DetailsURL(snap.ID)) + "\n\n")
	info.WriteString(m.renderChapters(snap))

	body := info.String()
	if m.art != "" {
		body = lipgloss.JoinHorizontal(lipgloss.Top, m.art, "  ", body)
	}

	var b strings.Builder
	b.WriteString(body + "\n\n")
	b.WriteString(m.renderNowPlaying(v, snap) + "\n")
	if v.Hint != "" {
		b.WriteString(m.theme.Warning.Render(v.Hint) + "\n")
	}
	if v.Notice != "" {
		b.WriteString(m.theme.Accent.Render(v.Notice) + "\n")
	}
	if resume := resumeCommand(v.Location); resume != "" {
		b.WriteString(m.theme.Dim.Render("resume: "+resume) + "\n")
	}
	return b.String()
}

func (m Model) renderChapters(snap session.Snapshot) string {
	var b strings.Builder
	n := len(snap.Chapters)
	start := clamp(m.chapterSel-listRows/2, 0, max(0, n-listRows))
	end := min(start+listRows, n)
	for i := start; i < end; i++ {
		title := ui.Truncate(snap.Chapters[i].Title, 56)
		if i == snap.CurrentIndex {
			title = m.theme.Accent.Render("♪ ") + title
		}
		b.WriteString(m.listLine(i == m.chapterSel, title) + "\n")
	}
	b.WriteString(m.theme.Dim.Render(fmt.Sprintf("%d chapters", n)))
	return b.String()
}

func (m Model) renderNowPlaying(v npView, snap session.Snapshot) string {
	barWidth := 30
	if m.width > 60 {
		barWidth = min(60, m.width-40)
	}
	line := fmt.Sprintf("%s %s  %s %s / %s",
		stateIcon(v.State, m.cfg.UI.NoEmoji),
		ui.Truncate(v.Chapter.Title, 40),
		ui.ProgressBar(m.theme, v.Position, v.Duration, barWidth),
		ui.FormatDuration(v.Position),
		ui.FormatDuration(v.Duration),
	)
	flags := []string{fmt.Sprintf("vol %.0f%%", snap.Volume), fmt.Sprintf("%.2fx", snap.Speed)}
	if snap.Shuffled {
		flags = append(flags, "shuffle")
	}
	if snap.Loop != playlist.LoopNone {
		flags = append(flags, "loop "+snap.Loop.String())
	}
	return line + "\n" + m.theme.Dim.Render(strings.Join(flags, " · "))
}

func stateIcon(s session.State, noEmoji bool) string {
	if noEmoji {
		switch s {
		case session.StatePlaying:
			return ">"
		case session.StatePaused:
			return "||"
		case session.StateLoading:
			return "..."
		case session.StateErrored:
			return "!"
		}
		return "-"
	}
	switch s {
	case session.StatePlaying:
		return "⏵"
	case session.StatePaused:
		return "⏸"
	case session.StateLoading:
		return "⏳"
	case session.StateErrored:
		return "⚠"
	}
	return "⏹"
}

// resumeCommand renders a location as the command line that reopens it.
func resumeCommand(loc url.Values) string {
	id := loc.Get("id")
	if id == "" {
		return ""
	}
	if track := loc.Get("track"); track != "" {
		return fmt.Sprintf("tomes --id %s --track %s", id, track)
	}
	return "tomes --id " + id
}

func (m Model) renderHelp() string {
	h := m.help
	h.ShowAll = true
	lines := []string{
		m.theme.Title.Render("Help"),
		"",
		h.View(m.keys),
		"",
		m.theme.Dim.Render("On the search screen, / edits the query, tab cycles categories and 1-3 toggle filters."),
		m.theme.Dim.Render("On the player screen, / jumps to a chapter by name."),
		m.theme.Dim.Render("Press any key to close."),
	}
	return strings.Join(lines, "\n")
}
