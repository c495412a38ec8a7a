package playlist

import (
	"fmt"
	"math/rand"
	"sort"
	"testing"
)

func sampleChapters(n int) []Chapter {
	var out []Chapter
	for i := 0; i < n; i++ {
		out = append(out, Chapter{Title: fmt.Sprintf("Chapter %d", i), URL: fmt.Sprintf("https://example.org/c%02d.mp3", i)})
	}
	return out
}

func urls(chapters []Chapter) []string {
	out := make([]string, len(chapters))
	for i, c := range chapters {
		out[i] = c.URL
	}
	return out
}

func TestPlaylistCurrent(t *testing.T) {
	p := New(sampleChapters(2))
	if p.Len() != 2 {
		t.Fatalf("expected len 2 got %d", p.Len())
	}
	cur, err := p.Current()
	if err != nil || cur.Title != "Chapter 0" {
		t.Fatalf("expected first chapter, got %v err %v", cur, err)
	}
	if _, err := New(nil).Current(); err != ErrEmpty {
		t.Fatalf("expected ErrEmpty, got %v", err)
	}
}

func TestPlaylistSetCurrentRange(t *testing.T) {
	p := New(sampleChapters(3))
	if err := p.SetCurrent(3); err != ErrOutOfRange {
		t.Fatalf("expected ErrOutOfRange, got %v", err)
	}
	if err := p.SetCurrent(2); err != nil {
		t.Fatalf("set current: %v", err)
	}
	if p.CurrentIndex() != 2 {
		t.Fatalf("expected 2 got %d", p.CurrentIndex())
	}
}

func TestCycleLoop(t *testing.T) {
	p := New(sampleChapters(1))
	want := []LoopMode{LoopOne, LoopAll, LoopNone, LoopOne, LoopAll, LoopNone}
	for i, w := range want {
		if got := p.CycleLoop(); got != w {
			t.Fatalf("cycle %d: expected %s got %s", i, w, got)
		}
	}
}

func TestParseLoopMode(t *testing.T) {
	for _, m := range []LoopMode{LoopNone, LoopOne, LoopAll} {
		if ParseLoopMode(m.String()) != m {
			t.Errorf("round trip failed for %s", m)
		}
	}
	if ParseLoopMode("bogus") != LoopNone {
		t.Error("unknown loop mode should parse as none")
	}
}

func TestToggleShuffleKeepsCurrentAndMultiset(t *testing.T) {
	chapters := sampleChapters(12)
	p := New(chapters, WithRand(rand.New(rand.NewSource(7))))
	_ = p.SetCurrent(5)
	before, _ := p.Current()

	for round := 0; round < 4; round++ {
		p.ToggleShuffle()
		after, err := p.Current()
		if err != nil {
			t.Fatalf("round %d: current: %v", round, err)
		}
		if after.URL != before.URL {
			t.Fatalf("round %d: current moved from %s to %s", round, before.URL, after.URL)
		}
		got := urls(p.Chapters())
		want := urls(chapters)
		sort.Strings(got)
		sort.Strings(want)
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("round %d: not a permutation: %v", round, got)
			}
		}
	}
	if p.IsShuffled() {
		t.Fatal("expected shuffle off after even number of toggles")
	}
	for i, c := range p.Chapters() {
		if c.URL != chapters[i].URL {
			t.Fatalf("original order not restored at %d", i)
		}
	}
}

func TestNextIndex(t *testing.T) {
	tests := []struct {
		name    string
		current int
		loop    LoopMode
		want    int
		wantOK  bool
	}{
		{"middle", 1, LoopNone, 2, true},
		{"end no loop", 2, LoopNone, 2, false},
		{"end loop all wraps", 2, LoopAll, 0, true},
		{"end loop one does not wrap", 2, LoopOne, 2, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(sampleChapters(3))
			_ = p.SetCurrent(tt.current)
			for p.LoopMode() != tt.loop {
				p.CycleLoop()
			}
			got, ok := p.NextIndex()
			if got != tt.want || ok != tt.wantOK {
				t.Fatalf("NextIndex() = %d,%v want %d,%v", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestPrevIndex(t *testing.T) {
	p := New(sampleChapters(3))
	if _, ok := p.PrevIndex(); ok {
		t.Fatal("expected no previous at start without loop")
	}
	p.CycleLoop()
	p.CycleLoop() // all
	if idx, ok := p.PrevIndex(); !ok || idx != 2 {
		t.Fatalf("expected wrap to 2, got %d %v", idx, ok)
	}
	_ = p.SetCurrent(1)
	if idx, ok := p.PrevIndex(); !ok || idx != 0 {
		t.Fatalf("expected 0, got %d %v", idx, ok)
	}
}

func TestShuffledAdvanceStaysInRange(t *testing.T) {
	p := New(sampleChapters(5), WithRand(rand.New(rand.NewSource(1))))
	p.ToggleShuffle()
	for i := 0; i < 50; i++ {
		n, ok := p.NextIndex()
		if !ok || n < 0 || n >= 5 {
			t.Fatalf("next out of range: %d %v", n, ok)
		}
		pr, ok := p.PrevIndex()
		if !ok || pr < 0 || pr >= 5 {
			t.Fatalf("prev out of range: %d %v", pr, ok)
		}
	}
}

func TestOriginalIndexSurvivesShuffle(t *testing.T) {
	p := New([]Chapter{{Title: "a", URL: "u/a"}, {Title: "b", URL: "u/b"}, {Title: "c", URL: "u/c"}, {Title: "d", URL: "u/d"}},
		WithRand(rand.New(rand.NewSource(7))))
	if err := p.SetCurrent(2); err != nil {
		t.Fatal(err)
	}
	p.ToggleShuffle()
	if got := p.OriginalIndex(); got != 2 {
		t.Fatalf("expected original index 2 after shuffle, got %d", got)
	}
	if New(nil).OriginalIndex() != -1 {
		t.Fatal("empty playlist should report -1")
	}
}
