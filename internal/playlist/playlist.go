package playlist

import (
	"errors"
	"math/rand"
)

// Chapter is one playable audio segment of an item.
type Chapter struct {
	Title string
	URL   string
}

type LoopMode int

const (
	LoopNone LoopMode = iota
	LoopOne
	LoopAll
)

func (m LoopMode) String() string {
	switch m {
	case LoopOne:
		return "one"
	case LoopAll:
		return "all"
	default:
		return "none"
	}
}

// ParseLoopMode maps "one" and "all" to their modes; anything else is LoopNone.
func ParseLoopMode(s string) LoopMode {
	switch s {
	case "one":
		return LoopOne
	case "all":
		return LoopAll
	default:
		return LoopNone
	}
}

var (
	ErrEmpty      = errors.New("playlist is empty")
	ErrOutOfRange = errors.New("index out of range")
)

// Playlist holds the working chapter order, the original manifest order and
// the current position.
type Playlist struct {
	items    []Chapter
	original []Chapter
	current  int
	loop     LoopMode
	shuffled bool
	rng      *rand.Rand
}

type Option func(*Playlist)

// WithRand sets the random source used for shuffling and shuffled advance.
func WithRand(r *rand.Rand) Option {
	return func(p *Playlist) {
		if r != nil {
			p.rng = r
		}
	}
}

func New(chapters []Chapter, opts ...Option) *Playlist {
	items := make([]Chapter, len(chapters))
	copy(items, chapters)
	original := make([]Chapter, len(chapters))
	copy(original, chapters)
	p := &Playlist{items: items, original: original, current: -1}
	if len(items) > 0 {
		p.current = 0
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Playlist) Len() int { return len(p.items) }

// Chapters returns a copy of the working order.
func (p *Playlist) Chapters() []Chapter {
	out := make([]Chapter, len(p.items))
	copy(out, p.items)
	return out
}

func (p *Playlist) At(idx int) (Chapter, error) {
	if idx < 0 || idx >= len(p.items) {
		return Chapter{}, ErrOutOfRange
	}
	return p.items[idx], nil
}

func (p *Playlist) Current() (Chapter, error) {
	if p.current < 0 || p.current >= len(p.items) {
		return Chapter{}, ErrEmpty
	}
	return p.items[p.current], nil
}

func (p *Playlist) CurrentIndex() int { return p.current }

func (p *Playlist) SetCurrent(idx int) error {
	if idx < 0 || idx >= len(p.items) {
		return ErrOutOfRange
	}
	p.current = idx
	return nil
}

func (p *Playlist) IsShuffled() bool   { return p.shuffled }
func (p *Playlist) LoopMode() LoopMode { return p.loop }

// CycleLoop advances none -> one -> all -> none.
func (p *Playlist) CycleLoop() LoopMode {
	p.loop = (p.loop + 1) % 3
	return p.loop
}

// ToggleShuffle reorders the working list as a fresh permutation of the
// original order, or restores the original order, keeping the current
// chapter selected.
func (p *Playlist) ToggleShuffle() bool {
	var currentURL string
	if cur, err := p.Current(); err == nil {
		currentURL = cur.URL
	}

	p.shuffled = !p.shuffled
	items := make([]Chapter, len(p.original))
	copy(items, p.original)
	if p.shuffled {
		p.shuffle(items)
	}
	p.items = items

	if currentURL != "" {
		p.current = p.indexOf(currentURL)
	}
	return p.shuffled
}

func (p *Playlist) shuffle(items []Chapter) {
	swap := func(i, j int) { items[i], items[j] = items[j], items[i] }
	if p.rng != nil {
		p.rng.Shuffle(len(items), swap)
		return
	}
	rand.Shuffle(len(items), swap)
}

func (p *Playlist) intn(n int) int {
	if p.rng != nil {
		return p.rng.Intn(n)
	}
	return rand.Intn(n)
}

// IndexOf returns the working position of the chapter with the given URL, or -1.
func (p *Playlist) IndexOf(url string) int { return p.indexOf(url) }

func (p *Playlist) indexOf(url string) int {
	for i, c := range p.items {
		if c.URL == url {
			return i
		}
	}
	return -1
}

// OriginalIndex returns the manifest position of the current chapter, or -1.
func (p *Playlist) OriginalIndex() int {
	cur, err := p.Current()
	if err != nil {
		return -1
	}
	for i, c := range p.original {
		if c.URL == cur.URL {
			return i
		}
	}
	return -1
}

// HasNext reports whether an index follows the current one without wrapping.
func (p *Playlist) HasNext() bool {
	return p.current >= 0 && p.current < len(p.items)-1
}

// NextIndex resolves the chapter after the current one. ok is false when
// there is nowhere to go.
func (p *Playlist) NextIndex() (int, bool) {
	if len(p.items) == 0 {
		return 0, false
	}
	if p.shuffled {
		return p.intn(len(p.items)), true
	}
	if p.current+1 < len(p.items) {
		return p.current + 1, true
	}
	if p.loop == LoopAll {
		return 0, true
	}
	return p.current, false
}

// PrevIndex resolves the chapter before the current one.
func (p *Playlist) PrevIndex() (int, bool) {
	if len(p.items) == 0 {
		return 0, false
	}
	if p.shuffled {
		return p.intn(len(p.items)), true
	}
	if p.current > 0 {
		return p.current - 1, true
	}
	if p.loop == LoopAll {
		return len(p.items) - 1, true
	}
	return p.current, false
}
