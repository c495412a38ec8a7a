package search

import (
	"strings"
	"testing"
)

func TestBuildQuery(t *testing.T) {
	b := NewBuilder("librivoxaudio")
	tests := []struct {
		name   string
		params Params
		want   string
	}{
		{"all", Params{Category: "All"}, "collection:(librivoxaudio)"},
		{"unknown category", Params{Category: "Opera"}, "collection:(librivoxaudio)"},
		{"french", Params{Category: "French"}, "collection:(librivoxaudio) AND language:(French)"},
		{"fiction with text", Params{Category: "fiction", Text: "  jane   austen "},
			"collection:(librivoxaudio) AND subject:(fiction) AND (title:(jane austen) OR creator:(jane austen) OR subject:(jane austen))"},
		{"classics default years", Params{Category: "Classics"}, "collection:(librivoxaudio) AND year:[1800 TO 1930]"},
		{"explicit years override", Params{Category: "Classics", YearFrom: 1900, YearTo: 1850},
			"collection:(librivoxaudio) AND year:[1850 TO 1900]"},
		{"open range", Params{YearFrom: 1900}, "collection:(librivoxaudio) AND year:[1900 TO *]"},
		{"filters in order", Params{Filters: map[string]bool{"dramatic": true, "english": true, "solo": false}},
			"collection:(librivoxaudio) AND language:(English) AND subject:(dramatic reading)"},
		{"text is sanitized", Params{Text: `war: "peace" (1869)`},
			"collection:(librivoxaudio) AND (title:(war peace 1869) OR creator:(war peace 1869) OR subject:(war peace 1869))"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := b.BuildQuery(tt.params); got != tt.want {
				t.Fatalf("got  %s\nwant %s", got, tt.want)
			}
		})
	}
}

func TestBuildQueryWithoutCollection(t *testing.T) {
	if got := NewBuilder("").BuildQuery(Params{}); got != "*:*" {
		t.Fatalf("expected match-all, got %s", got)
	}
}

func TestExtraPresets(t *testing.T) {
	b := NewBuilder("librivoxaudio",
		Preset{Name: "Dutch", Language: "dutch"},
		Preset{Name: "poetry", Clause: "subject:(verse)"},
		Preset{Name: " "},
	)
	if got := b.BuildQuery(Params{Category: "Dutch"}); !strings.HasSuffix(got, "language:(Dutch)") {
		t.Fatalf("extra preset not applied: %s", got)
	}
	if got := b.BuildQuery(Params{Category: "Poetry"}); !strings.HasSuffix(got, "subject:(verse)") {
		t.Fatalf("override not applied: %s", got)
	}
	if len(b.Presets()) != len(builtinPresets)+1 {
		t.Fatalf("expected one added preset, got %d", len(b.Presets()))
	}
}
