package ui

import "github.com/charmbracelet/lipgloss"

type Theme struct {
	Name      string
	Accent    lipgloss.Style
	Dim       lipgloss.Style
	Text      lipgloss.Style
	Title     lipgloss.Style
	Error     lipgloss.Style
	Success   lipgloss.Style
	Warning   lipgloss.Style
	Border    lipgloss.Style
	Highlight lipgloss.Style
	// Bar is the filled part of the progress bar.
	Bar lipgloss.Style
}

// themeRegistry maps theme names to constructors.
var themeRegistry = map[string]func() Theme{
	"parchment": Parchment,
	"library":   Library,
	"midnight":  Midnight,
	"mono":      Monochrome,
	"nocolor":   NoColor,
}

// ThemeNames returns the list of available theme names.
func ThemeNames() []string {
	return []string{"parchment", "library", "midnight", "mono", "nocolor"}
}

// GetTheme returns a theme by name. Returns Parchment if name not found.
func GetTheme(name string, noColor bool) Theme {
	// NO_COLOR environment variable overrides theme selection
	if noColor {
		return NoColor()
	}
	if fn, ok := themeRegistry[name]; ok {
		return fn()
	}
	return Parchment()
}

// ValidTheme returns true if the theme name is valid.
func ValidTheme(name string) bool {
	_, ok := themeRegistry[name]
	return ok
}

func palette(name string, accent, dim, text, title, bar, border, highlight lipgloss.Color) Theme {
	return Theme{
		Name:      name,
		Accent:    lipgloss.NewStyle().Foreground(accent),
		Dim:       lipgloss.NewStyle().Foreground(dim),
		Text:      lipgloss.NewStyle().Foreground(text),
		Title:     lipgloss.NewStyle().Foreground(title).Bold(true),
		Error:     lipgloss.NewStyle().Foreground(lipgloss.Color("#E0604F")).Bold(true),
		Success:   lipgloss.NewStyle().Foreground(lipgloss.Color("#8FBF6A")).Bold(true),
		Warning:   lipgloss.NewStyle().Foreground(lipgloss.Color("#E8B450")).Bold(true),
		Border:    lipgloss.NewStyle().Foreground(border),
		Highlight: lipgloss.NewStyle().Foreground(highlight).Bold(true),
		Bar:       lipgloss.NewStyle().Foreground(bar),
	}
}

// Parchment is the default warm sepia theme.
func Parchment() Theme {
	return palette("parchment",
		lipgloss.Color("#D9A441"), lipgloss.Color("#8A7A63"), lipgloss.Color("#EFE3C8"),
		lipgloss.Color("#F2C879"), lipgloss.Color("#C98B3A"), lipgloss.Color("#7A5C3A"), lipgloss.Color("#FFD98E"))
}

// Library is a reading-room green theme.
func Library() Theme {
	return palette("library",
		lipgloss.Color("#6FBF73"), lipgloss.Color("#5A7A5C"), lipgloss.Color("#D7E8D0"),
		lipgloss.Color("#A8E6A1"), lipgloss.Color("#4E9F55"), lipgloss.Color("#35603A"), lipgloss.Color("#C6F5C0"))
}

// Midnight is a dark blue theme.
func Midnight() Theme {
	return palette("midnight",
		lipgloss.Color("#7AA2F7"), lipgloss.Color("#565F89"), lipgloss.Color("#C0CAF5"),
		lipgloss.Color("#BB9AF7"), lipgloss.Color("#7DCFFF"), lipgloss.Color("#3B4261"), lipgloss.Color("#E0AF68"))
}

// Monochrome is a grayscale theme using white, gray, and dark gray.
func Monochrome() Theme {
	t := palette("mono",
		lipgloss.Color("#FFFFFF"), lipgloss.Color("#666666"), lipgloss.Color("#CCCCCC"),
		lipgloss.Color("#FFFFFF"), lipgloss.Color("#AAAAAA"), lipgloss.Color("#888888"), lipgloss.Color("#FFFFFF"))
	t.Error = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFFFF")).Bold(true).Underline(true)
	t.Highlight = t.Highlight.Underline(true)
	return t
}

// NoColor is a high-contrast theme for NO_COLOR environments.
// Uses only bold, underline, and reverse instead of colors.
func NoColor() Theme {
	reset := lipgloss.NewStyle()
	return Theme{
		Name:      "nocolor",
		Accent:    reset.Bold(true),
		Dim:       reset,
		Text:      reset,
		Title:     reset.Bold(true),
		Error:     reset.Bold(true),
		Success:   reset.Bold(true),
		Warning:   reset.Bold(true),
		Border:    reset,
		Highlight: reset.Reverse(true),
		Bar:       reset.Bold(true),
	}
}
