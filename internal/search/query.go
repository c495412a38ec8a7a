package search

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Preset is a named category. Clause and Language are combined; either may
// be empty. YearFrom/YearTo give a default range that explicit params
// override.
type Preset struct {
	Name     string `toml:"name"`
	Clause   string `toml:"clause"`
	Language string `toml:"language"`
	YearFrom int    `toml:"year_from"`
	YearTo   int    `toml:"year_to"`
}

// DefaultCategory is the preset used when nothing else is selected.
const DefaultCategory = "All"

var builtinPresets = []Preset{
	{Name: DefaultCategory},
	{Name: "Fiction", Clause: "subject:(fiction)"},
	{Name: "Poetry", Clause: "subject:(poetry)"},
	{Name: "Non-fiction", Clause: "subject:(non-fiction OR nonfiction)"},
	{Name: "Children", Clause: "subject:(children)"},
	{Name: "Classics", YearFrom: 1800, YearTo: 1930},
	{Name: "French", Language: "french"},
	{Name: "German", Language: "german"},
	{Name: "Spanish", Language: "spanish"},
	{Name: "Italian", Language: "italian"},
}

// Filter is a boolean toggle that adds a clause when enabled.
type Filter struct {
	Key    string
	Label  string
	Clause string
}

// Filters lists the known toggles in display order.
var Filters = []Filter{
	{Key: "english", Label: "English only", Clause: languageClause("english")},
	{Key: "solo", Label: "Solo readings", Clause: "subject:(solo)"},
	{Key: "dramatic", Label: "Dramatic readings", Clause: "subject:(dramatic reading)"},
}

var titleCaser = cases.Title(language.English)

func languageClause(lang string) string {
	return fmt.Sprintf("language:(%s)", titleCaser.String(strings.TrimSpace(lang)))
}

// Params are the inputs of one search.
type Params struct {
	Text     string
	Category string
	YearFrom int
	YearTo   int
	Filters  map[string]bool
	Page     int
}

// Builder turns Params into catalog query strings.
type Builder struct {
	collection string
	presets    []Preset
}

// NewBuilder returns a builder scoped to collection. Extra presets replace
// built-ins with the same name and are otherwise appended.
func NewBuilder(collection string, extra ...Preset) *Builder {
	presets := make([]Preset, len(builtinPresets))
	copy(presets, builtinPresets)
	for _, p := range extra {
		if strings.TrimSpace(p.Name) == "" {
			continue
		}
		replaced := false
		for i := range presets {
			if strings.EqualFold(presets[i].Name, p.Name) {
				presets[i] = p
				replaced = true
				break
			}
		}
		if !replaced {
			presets = append(presets, p)
		}
	}
	return &Builder{collection: strings.TrimSpace(collection), presets: presets}
}

// Presets returns the categories in display order.
func (b *Builder) Presets() []Preset {
	out := make([]Preset, len(b.presets))
	copy(out, b.presets)
	return out
}

// Preset looks a category up by name, ignoring case.
func (b *Builder) Preset(name string) (Preset, bool) {
	for _, p := range b.presets {
		if strings.EqualFold(p.Name, strings.TrimSpace(name)) {
			return p, true
		}
	}
	return Preset{}, false
}

// BuildQuery joins the collection, category, free text, year range and
// filter clauses with AND.
func (b *Builder) BuildQuery(p Params) string {
	var clauses []string
	if b.collection != "" {
		clauses = append(clauses, fmt.Sprintf("collection:(%s)", b.collection))
	}

	preset, _ := b.Preset(p.Category)
	if preset.Clause != "" {
		clauses = append(clauses, preset.Clause)
	}
	if preset.Language != "" {
		clauses = append(clauses, languageClause(preset.Language))
	}

	if text := cleanText(p.Text); text != "" {
		clauses = append(clauses, fmt.Sprintf("(title:(%s) OR creator:(%s) OR subject:(%s))", text, text, text))
	}

	from, to := preset.YearFrom, preset.YearTo
	if p.YearFrom != 0 || p.YearTo != 0 {
		from, to = p.YearFrom, p.YearTo
	}
	if r := yearRange(from, to); r != "" {
		clauses = append(clauses, r)
	}

	for _, f := range Filters {
		if p.Filters[f.Key] {
			clauses = append(clauses, f.Clause)
		}
	}
	if len(clauses) == 0 {
		return "*:*"
	}
	return strings.Join(clauses, " AND ")
}

func yearRange(from, to int) string {
	if from == 0 && to == 0 {
		return ""
	}
	if from != 0 && to != 0 && from > to {
		from, to = to, from
	}
	bound := func(y int) string {
		if y == 0 {
			return "*"
		}
		return fmt.Sprint(y)
	}
	return fmt.Sprintf("year:[%s TO %s]", bound(from), bound(to))
}

// cleanText drops characters that would break the query grammar and
// collapses whitespace.
func cleanText(s string) string {
	s = strings.Map(func(r rune) rune {
		switch r {
		case '(', ')', '"', ':', '[', ']', '{', '}', '\\':
			return ' '
		}
		return r
	}, s)
	return strings.Join(strings.Fields(s), " ")
}
