package app

import (
	"net/url"
	"sync"
	"time"

	"github.com/tomes/tomes/internal/playlist"
	"github.com/tomes/tomes/internal/session"
)

const noticeTTL = 4 * time.Second

// nowPlaying is what the player screen renders. The playback session writes
// to it, possibly from the goroutine running Open, so it is locked.
type nowPlaying struct {
	mu       sync.Mutex
	title    string
	index    int
	chapter  playlist.Chapter
	position float64
	duration float64
	state    session.State
	location url.Values
	notice   string
	noticeAt time.Time
	hint     string
	fatal    error
}

func newNowPlaying() *nowPlaying {
	return &nowPlaying{index: -1}
}

func (n *nowPlaying) SetTitle(title string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.title = title
}

func (n *nowPlaying) SetTrack(index int, ch playlist.Chapter) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.index, n.chapter = index, ch
	n.hint = ""
}

func (n *nowPlaying) SetProgress(position, duration float64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.position, n.duration = position, duration
}

func (n *nowPlaying) SetState(state session.State) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.state = state
	if state == session.StatePlaying {
		n.hint = ""
	}
}

func (n *nowPlaying) SetLocation(loc url.Values) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.location = loc
}

func (n *nowPlaying) Notice(msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notice, n.noticeAt = msg, time.Now()
}

func (n *nowPlaying) Hint(msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.hint = msg
}

func (n *nowPlaying) Fatal(err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.fatal = err
}

// npView is a copy of nowPlaying for rendering.
type npView struct {
	Title    string
	Index    int
	Chapter  playlist.Chapter
	Position float64
	Duration float64
	State    session.State
	Location url.Values
	Notice   string
	Hint     string
	Fatal    error
}

func (n *nowPlaying) view(now time.Time) npView {
	n.mu.Lock()
	defer n.mu.Unlock()
	v := npView{
		Title:    n.title,
		Index:    n.index,
		Chapter:  n.chapter,
		Position: n.position,
		Duration: n.duration,
		State:    n.state,
		Location: n.location,
		Hint:     n.hint,
		Fatal:    n.fatal,
	}
	if n.notice != "" && now.Sub(n.noticeAt) < noticeTTL {
		v.Notice = n.notice
	}
	return v
}
