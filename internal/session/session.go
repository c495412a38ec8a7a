// Package session drives playback of one catalog item: it owns the chapter
// playlist and the state machine that turns user commands and media events
// into load, play, advance and error-recovery decisions.
//
// A Session is single-owner. Every method except Open must be called from
// the goroutine that consumes media events (the TUI update loop).
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/tomes/tomes/internal/catalog"
	"github.com/tomes/tomes/internal/player"
	"github.com/tomes/tomes/internal/playlist"
)

// Catalog resolves an identifier into an item and its playable chapters.
type Catalog interface {
	Item(ctx context.Context, identifier string) (catalog.Item, error)
	Chapters(item catalog.Item) []playlist.Chapter
}

// Media is the playback element. *player.Controller satisfies it.
type Media interface {
	Load(url string) error
	Play() error
	Pause() error
	Detach() error
	Seek(deltaSeconds float64) error
	SeekTo(seconds float64) error
	SetVolume(vol float64) error
	SetSpeed(rate float64) error
}

// View receives everything the session wants shown. Implementations must
// tolerate calls from the goroutine running Open.
type View interface {
	SetTitle(title string)
	SetTrack(index int, chapter playlist.Chapter)
	SetProgress(position, duration float64)
	SetState(state State)
	SetLocation(loc url.Values)
	Notice(msg string)
	Hint(msg string)
	Fatal(err error)
}

// Prefs records opened items.
type Prefs interface {
	AddRecentlyViewed(ctx context.Context, identifier, title string) error
}

// Stopper is anything that must stop when the session is destroyed, such as
// a visualization.
type Stopper interface {
	Stop()
}

const (
	// ErrorThreshold is the number of consecutive media errors that makes an
	// item unplayable.
	ErrorThreshold = 3
	// RestartThreshold is the position after which PrevTrack restarts the
	// current chapter instead of moving back.
	RestartThreshold = 3.0
	// DefaultReadyTimeout bounds how long a load may stay in flight.
	DefaultReadyTimeout = 10 * time.Second
)

var (
	// ErrAutoplayBlocked means the media element refused a play attempt.
	// It is reported as a hint, never as a failure.
	ErrAutoplayBlocked = errors.New("session: play attempt was refused")
	// ErrUnplayable is reported once ErrorThreshold chapters fail in a row.
	ErrUnplayable = errors.New("session: item appears to be unplayable")
	// ErrNotOpen is returned by commands issued before Open succeeded.
	ErrNotOpen = errors.New("session: no item is open")
	// ErrClosed is returned by an Open that lost to Destroy.
	ErrClosed = errors.New("session: destroyed")
)

// Deps are the collaborators of a Session.
type Deps struct {
	Catalog Catalog
	Media   Media
	View    View
	Prefs   Prefs
	// Stopper is optional.
	Stopper Stopper
	Logger  *slog.Logger
	// Rand drives shuffle and shuffled advance. Optional.
	Rand *rand.Rand
	// Now is the session clock. Defaults to time.Now.
	Now func() time.Time
	// ReadyTimeout defaults to DefaultReadyTimeout.
	ReadyTimeout time.Duration
	// Volume (0-100) and Speed start values. Zero means 100 and 1.
	Volume float64
	Speed  float64
}

// Session is the playback state machine for one opened item.
type Session struct {
	deps   Deps
	logger *slog.Logger

	id    string
	title string
	item  catalog.Item
	list  *playlist.Playlist

	state    State
	position float64
	duration float64
	volume   float64
	speed    float64

	consecutiveErrors int
	fatal             error

	// in-flight load, cleared by the ready event
	loading     bool
	loadStarted time.Time
	// one-shot play attempt that runs once the in-flight load is ready
	pendingPlay bool
	// attached is set once this session has sent a source to the media element
	attached bool

	// mu orders Destroy against the tail of Open, which may run on another
	// goroutine.
	mu        sync.Mutex
	destroyed bool
}

// New builds an idle session. Nothing is fetched until Open.
func New(deps Deps) *Session {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.ReadyTimeout <= 0 {
		deps.ReadyTimeout = DefaultReadyTimeout
	}
	if deps.Volume <= 0 {
		deps.Volume = 100
	}
	if deps.Speed <= 0 {
		deps.Speed = 1
	}
	return &Session{
		deps:   deps,
		logger: deps.Logger,
		state:  StateIdle,
		volume: clamp(deps.Volume, 0, 100),
		speed:  clamp(deps.Speed, MinSpeed, MaxSpeed),
	}
}

// Open fetches the item, builds its playlist and loads the start chapter
// without playing it. A start outside the playlist selects the first
// chapter. Any failure is terminal for this session and is shown as fatal.
func (s *Session) Open(ctx context.Context, identifier string, start int) error {
	identifier = strings.TrimSpace(identifier)
	s.logger.Info("opening item", slog.String("id", identifier), slog.Int("start", start))
	if identifier == "" {
		return s.fail(catalog.ErrInvalidIdentifier)
	}
	item, err := s.deps.Catalog.Item(ctx, identifier)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed {
		s.logger.Debug("open abandoned", slog.String("id", identifier))
		return ErrClosed
	}
	if err != nil {
		return s.fail(fmt.Errorf("open %s: %w", identifier, err))
	}
	chapters := s.deps.Catalog.Chapters(item)
	if len(chapters) == 0 {
		return s.fail(fmt.Errorf("open %s: %w", identifier, catalog.ErrEmptyCatalog))
	}

	var opts []playlist.Option
	if s.deps.Rand != nil {
		opts = append(opts, playlist.WithRand(s.deps.Rand))
	}
	s.id = identifier
	s.item = item
	s.title = item.Title()
	s.list = playlist.New(chapters, opts...)
	if start >= 0 && start < s.list.Len() {
		_ = s.list.SetCurrent(start)
	}
	s.logger.Info("item opened", slog.String("id", identifier), slog.String("title", s.title), slog.Int("chapters", s.list.Len()))

	if s.deps.Prefs != nil {
		if err := s.deps.Prefs.AddRecentlyViewed(ctx, identifier, s.title); err != nil {
			s.logger.Warn("failed to record recently viewed", slog.String("id", identifier), slog.Any("err", err))
		}
	}
	s.deps.View.SetTitle(s.title)
	// a chapter that fails to load is a media error, not an open failure
	if err := s.LoadTrack(s.list.CurrentIndex()); err != nil {
		s.logger.Warn("initial chapter load failed", slog.Any("err", err))
	}
	return nil
}

func (s *Session) fail(err error) error {
	s.logger.Error("open failed", slog.Any("err", err))
	s.fatal = err
	s.state = StateErrored
	s.deps.View.SetState(s.state)
	s.deps.View.Fatal(err)
	return err
}

// Destroy releases the media source and stops any attached visualization.
// It may be called any number of times, including while Open is running on
// another goroutine: that Open then returns ErrClosed without touching the
// media element. A session that never loaded a chapter leaves the media
// element alone.
func (s *Session) Destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed {
		return
	}
	s.destroyed = true
	s.pendingPlay = false
	s.loading = false
	if s.attached && s.deps.Media != nil {
		if err := s.deps.Media.Detach(); err != nil {
			s.logger.Debug("detach on destroy failed", slog.Any("err", err))
		}
	}
	if s.deps.Stopper != nil {
		s.deps.Stopper.Stop()
	}
	s.logger.Debug("session destroyed", slog.String("id", s.id))
}

// Item returns the opened item's metadata.
func (s *Session) Item() catalog.Item { return s.item }

// Location returns the resumable position: the identifier and the 1-based
// chapter number in manifest order.
func (s *Session) Location() url.Values {
	v := url.Values{}
	if s.id == "" {
		return v
	}
	v.Set("id", s.id)
	if s.list != nil {
		if idx := s.list.OriginalIndex(); idx >= 0 {
			v.Set("track", strconv.Itoa(idx+1))
		}
	}
	return v
}

// ParseLocation reads an id and 1-based track from query values. The returned
// start index is zero-based and -1 when absent or malformed.
func ParseLocation(v url.Values) (string, int) {
	id := strings.TrimSpace(v.Get("id"))
	n, err := strconv.Atoi(v.Get("track"))
	if err != nil || n < 1 {
		return id, -1
	}
	return id, n - 1
}

// Snapshot is a read-only copy of the session state.
type Snapshot struct {
	ID                string
	Title             string
	Chapters          []playlist.Chapter
	CurrentIndex      int
	State             State
	Loop              playlist.LoopMode
	Shuffled          bool
	Volume            float64
	Speed             float64
	Position          float64
	Duration          float64
	ConsecutiveErrors int
	Loading           bool
	PendingPlay       bool
	Fatal             error
}

func (s *Session) Snapshot() Snapshot {
	snap := Snapshot{
		ID:                s.id,
		Title:             s.title,
		CurrentIndex:      -1,
		State:             s.state,
		Volume:            s.volume,
		Speed:             s.speed,
		Position:          s.position,
		Duration:          s.duration,
		ConsecutiveErrors: s.consecutiveErrors,
		Loading:           s.loading,
		PendingPlay:       s.pendingPlay,
		Fatal:             s.fatal,
	}
	if s.list != nil {
		snap.Chapters = s.list.Chapters()
		snap.CurrentIndex = s.list.CurrentIndex()
		snap.Loop = s.list.LoopMode()
		snap.Shuffled = s.list.IsShuffled()
	}
	return snap
}

func (s *Session) setState(st State) {
	if s.state == st {
		return
	}
	s.logger.Debug("state change", slog.String("from", s.state.String()), slog.String("to", st.String()))
	s.state = st
	s.deps.View.SetState(st)
}

// IsMediaError reports whether err came from the playback element.
func IsMediaError(err error) bool {
	var me *player.MediaError
	return errors.As(err, &me)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
