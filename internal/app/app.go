// Package app is the terminal front end: a search screen over the catalog
// and a player screen driving one playback session.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/tomes/tomes/internal/artwork"
	"github.com/tomes/tomes/internal/catalog"
	"github.com/tomes/tomes/internal/config"
	"github.com/tomes/tomes/internal/player"
	"github.com/tomes/tomes/internal/prefs"
	"github.com/tomes/tomes/internal/search"
	"github.com/tomes/tomes/internal/session"
	"github.com/tomes/tomes/internal/ui"
)

type screen int

const (
	screenSearch screen = iota
	screenPlayer
)

// ErrPlayerExited is shown when the mpv event stream closes.
var ErrPlayerExited = errors.New("the player process exited")

// Catalog is what the TUI needs from the catalog client.
type Catalog interface {
	session.Catalog
	ReadTags(ctx context.Context, rawURL string) (catalog.Tags, error)
	DetailsURL(identifier string) string
}

// Player is the media element plus its event stream.
type Player interface {
	session.Media
	Events() <-chan player.Event
}

type Prefs interface {
	session.Prefs
	RecentlyViewed(ctx context.Context) ([]prefs.Recent, error)
}

// Deps wires the model. Artwork may be nil.
type Deps struct {
	Config  *config.Config
	Catalog Catalog
	Search  *search.Session
	Player  Player
	Prefs   Prefs
	Artwork *artwork.Loader
	Logger  *slog.Logger
	NoColor bool
	// StartID opens an item at launch. StartTrack is zero-based, -1 for none.
	StartID    string
	StartTrack int
}

type Model struct {
	deps   Deps
	cfg    *config.Config
	logger *slog.Logger
	theme  ui.Theme
	keys   keyMap
	help   help.Model
	spin   spinner.Model

	width, height int
	screen        screen
	showHelp      bool
	status        string
	errorMsg      string
	fatalErr      error

	// search screen
	input     textinput.Model
	presets   []search.Preset
	category  int
	filters   map[string]bool
	results   []catalog.Doc
	numFound  int
	page      int
	selected  int
	searching bool
	searched  bool
	retryErr  *search.RetryableError
	recent    []prefs.Recent

	// player screen
	sess       *session.Session
	np         *nowPlaying
	opening    bool
	opener     *session.Session
	cancelOpen context.CancelFunc
	openID     string
	openStart  int
	pending    []player.Event
	art        string
	tags       catalog.Tags
	tagsFor    string
	chapterSel int
	palette    *chapterPalette
	volume     float64
	speed      float64
}

func New(deps Deps) Model {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Config == nil {
		deps.Config = config.Default()
	}
	cfg := deps.Config

	in := textinput.New()
	in.Placeholder = "title, author or subject (add 1850-1900 for years)"
	in.Prompt = "/ "
	in.CharLimit = 200

	m := Model{
		deps:      deps,
		cfg:       cfg,
		logger:    deps.Logger,
		theme:     ui.GetTheme(cfg.UI.Theme, deps.NoColor),
		keys:      newKeyMap(cfg.Keybindings),
		help:      help.New(),
		spin:      spinner.New(spinner.WithSpinner(spinner.Dot)),
		input:     in,
		presets:   deps.Search.Builder().Presets(),
		filters:   map[string]bool{},
		openStart: -1,
		volume:    float64(cfg.Player.InitialVolume),
		speed:     cfg.Player.InitialSpeed,
		status:    "Ready",
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	initial := deps.Search.InitialCategory(ctx)
	for i, p := range m.presets {
		if p.Name == initial {
			m.category = i
		}
	}
	if deps.StartID == "" {
		m.searching = true
	}
	return m
}

type openRequestMsg struct {
	id    string
	start int
}

func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.watchPlayerCmd(), tickCmd(), m.recentCmd(), m.spin.Tick}
	if m.deps.StartID != "" {
		id, start := m.deps.StartID, m.deps.StartTrack
		cmds = append(cmds, func() tea.Msg { return openRequestMsg{id: id, start: start} })
	} else {
		cmds = append(cmds, m.searchCmd(m.params()))
	}
	return tea.Batch(cmds...)
}

// Messages

type playerMsg player.Event

type playerClosedMsg struct{}

type tickMsg time.Time

type clearErrorMsg struct{}

type openedMsg struct {
	sess *session.Session
	err  error
}

type searchResultMsg struct {
	appended bool
	err      error
}

type recentMsg struct {
	items []prefs.Recent
	err   error
}

type artMsg struct {
	id  string
	art string
}

type tagsMsg struct {
	url  string
	tags catalog.Tags
	err  error
}

func (m Model) watchPlayerCmd() tea.Cmd {
	events := m.deps.Player.Events()
	return func() tea.Msg {
		evt, ok := <-events
		if !ok {
			return playerClosedMsg{}
		}
		return playerMsg(evt)
	}
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m Model) clearErrorCmd() tea.Cmd {
	return tea.Tick(3*time.Second, func(t time.Time) tea.Msg {
		return clearErrorMsg{}
	})
}

func (m Model) setError(err error) (Model, tea.Cmd) {
	m.errorMsg = err.Error()
	return m, m.clearErrorCmd()
}

func (m Model) searchCmd(p search.Params) tea.Cmd {
	s := m.deps.Search
	return func() tea.Msg {
		_, err := s.Search(context.Background(), p)
		return searchResultMsg{err: err}
	}
}

func (m Model) pageCmd(next bool) tea.Cmd {
	s := m.deps.Search
	return func() tea.Msg {
		var err error
		if next {
			_, err = s.NextPage(context.Background())
		} else {
			_, err = s.PrevPage(context.Background())
		}
		return searchResultMsg{err: err}
	}
}

func (m Model) appendCmd() tea.Cmd {
	s := m.deps.Search
	return func() tea.Msg {
		ok, err := s.Append(context.Background())
		return searchResultMsg{appended: ok, err: err}
	}
}

func (m Model) retryCmd() tea.Cmd {
	s := m.deps.Search
	return func() tea.Msg {
		_, err := s.Retry(context.Background())
		return searchResultMsg{err: err}
	}
}

func (m Model) recentCmd() tea.Cmd {
	p := m.deps.Prefs
	if p == nil {
		return nil
	}
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		items, err := p.RecentlyViewed(ctx)
		return recentMsg{items: items, err: err}
	}
}

func (m Model) artCmd(id string) tea.Cmd {
	loader := m.deps.Artwork
	if loader == nil || m.cfg.Artwork.Disabled {
		return nil
	}
	w, h := m.cfg.Artwork.Width, m.cfg.Artwork.Height
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		art, _ := loader.Load(ctx, id, w, h)
		return artMsg{id: id, art: art}
	}
}

func (m Model) tagsCmd(url string) tea.Cmd {
	cat := m.deps.Catalog
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		tags, err := cat.ReadTags(ctx, url)
		return tagsMsg{url: url, tags: tags, err: err}
	}
}

// open tears down the current session and opens id on a fresh one. Open runs
// in a command; media events that arrive meanwhile are queued for it.
func (m Model) open(id string, start int) (Model, tea.Cmd) {
	m = m.teardown()
	np := newNowPlaying()
	sess := session.New(session.Deps{
		Catalog:      m.deps.Catalog,
		Media:        m.deps.Player,
		View:         np,
		Prefs:        m.deps.Prefs,
		Logger:       m.logger,
		ReadyTimeout: m.cfg.Player.ReadyTimeout(),
		Volume:       m.volume,
		Speed:        m.speed,
	})
	m.sess, m.np = nil, np
	m.opening = true
	m.openID, m.openStart = id, start
	m.pending = nil
	m.art, m.tags, m.tagsFor = "", catalog.Tags{}, ""
	m.palette = nil
	m.chapterSel = 0
	m.screen = screenPlayer
	m.status = "Opening " + id

	timeout := m.cfg.Catalog.Timeout()
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout*2)
	m.opener, m.cancelOpen = sess, cancel
	openCmd := func() tea.Msg {
		defer cancel()
		err := sess.Open(ctx, id, start)
		return openedMsg{sess: sess, err: err}
	}
	return m, tea.Batch(openCmd, m.artCmd(id))
}

// teardown destroys the published session and abandons an open in flight,
// so neither touches the player again.
func (m Model) teardown() Model {
	if m.cancelOpen != nil {
		m.cancelOpen()
	}
	if m.opener != nil {
		m.opener.Destroy()
	}
	if m.sess != nil {
		m.sess.Destroy()
	}
	m.opener, m.cancelOpen = nil, nil
	m.sess = nil
	return m
}

// closePlayer destroys the session and returns to search.
func (m Model) closePlayer() (Model, tea.Cmd) {
	m = m.teardown()
	m.np = nil
	m.opening = false
	m.pending = nil
	m.palette = nil
	m.screen = screenSearch
	m.status = "Ready"
	return m, m.recentCmd()
}

// syncTrack follows chapter changes: it moves the list cursor and reads the
// new chapter's tags.
func (m Model) syncTrack() (Model, tea.Cmd) {
	if m.sess == nil {
		return m, nil
	}
	snap := m.sess.Snapshot()
	if snap.CurrentIndex < 0 || snap.CurrentIndex >= len(snap.Chapters) {
		return m, nil
	}
	url := snap.Chapters[snap.CurrentIndex].URL
	if url == m.tagsFor {
		return m, nil
	}
	m.tagsFor = url
	m.tags = catalog.Tags{}
	m.chapterSel = snap.CurrentIndex
	return m, m.tagsCmd(url)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.help.Width = msg.Width
		m.input.Width = max(20, msg.Width-8)
		return m, nil
	case clearErrorMsg:
		m.errorMsg = ""
		return m, nil
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	case tickMsg:
		if m.sess != nil && !m.opening {
			m.sess.Tick()
		}
		return m, tickCmd()
	case playerClosedMsg:
		m.logger.Error("player event stream closed")
		m.fatalErr = ErrPlayerExited
		return m, nil
	case playerMsg:
		evt := player.Event(msg)
		switch {
		case m.opening:
			m.pending = append(m.pending, evt)
		case m.sess != nil:
			m.sess.HandleEvent(evt)
		}
		var cmd tea.Cmd
		m, cmd = m.syncTrack()
		return m, tea.Batch(m.watchPlayerCmd(), cmd)
	case openRequestMsg:
		return m.open(msg.id, msg.start)
	case openedMsg:
		if msg.sess != m.opener {
			// superseded by a later open or by leaving the player; teardown
			// already destroyed it
			msg.sess.Destroy()
			return m, nil
		}
		m.opening = false
		m.opener, m.cancelOpen = nil, nil
		m.sess = msg.sess
		if msg.err != nil {
			m.logger.Warn("open failed", slog.String("id", m.openID), slog.Any("err", msg.err))
			m.status = "Open failed"
			return m, nil
		}
		for _, evt := range m.pending {
			m.sess.HandleEvent(evt)
		}
		m.pending = nil
		m.status = "Opened " + m.sess.Snapshot().Title
		var cmd tea.Cmd
		m, cmd = m.syncTrack()
		return m, tea.Batch(cmd, m.recentCmd())
	case searchResultMsg:
		if errors.Is(msg.err, search.ErrSuperseded) {
			// the newer search reports on its own
			return m, nil
		}
		m.searching = false
		if msg.err != nil {
			var re *search.RetryableError
			if errors.As(msg.err, &re) {
				m.retryErr = re
				return m, nil
			}
			return m.setError(msg.err)
		}
		m.retryErr = nil
		m.searched = true
		m.results = m.deps.Search.Results()
		m.numFound = m.deps.Search.NumFound()
		m.page = m.deps.Search.Params().Page
		if !msg.appended {
			m.selected = 0
		}
		m.selected = clamp(m.selected, 0, max(0, len(m.results)-1))
		m.status = fmt.Sprintf("%d results", m.numFound)
		return m, nil
	case recentMsg:
		if msg.err != nil {
			m.logger.Warn("failed to read recently viewed", slog.Any("err", msg.err))
			return m, nil
		}
		m.recent = msg.items
		return m, nil
	case artMsg:
		if msg.id == m.openID {
			m.art = msg.art
		}
		return m, nil
	case tagsMsg:
		if msg.err != nil {
			m.logger.Debug("tag read failed", slog.String("url", msg.url), slog.Any("err", msg.err))
			return m, nil
		}
		if msg.url == m.tagsFor {
			m.tags = msg.tags
		}
		return m, nil
	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		return m.quit()
	}
	if m.fatalErr != nil {
		if key.Matches(msg, m.keys.Quit) {
			return m.quit()
		}
		return m, nil
	}
	if m.showHelp {
		if key.Matches(msg, m.keys.Quit) {
			return m.quit()
		}
		m.showHelp = false
		return m, nil
	}
	if m.screen == screenPlayer {
		return m.handlePlayerKey(msg)
	}
	return m.handleSearchKey(msg)
}

func (m Model) quit() (tea.Model, tea.Cmd) {
	m = m.teardown()
	return m, tea.Quit
}

func (m Model) handleSearchKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.input.Focused() {
		switch msg.String() {
		case "enter":
			m.input.Blur()
			return m.runSearch()
		case "esc":
			m.input.Blur()
			return m, nil
		case "tab":
			return m.cycleCategory()
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m.quit()
	case key.Matches(msg, m.keys.Help):
		m.showHelp = true
	case key.Matches(msg, m.keys.Search):
		cmd := m.input.Focus()
		return m, cmd
	case key.Matches(msg, m.keys.Back):
		m.retryErr = nil
	case key.Matches(msg, m.keys.Retry):
		if m.retryErr != nil && !m.searching {
			m.retryErr = nil
			m.searching = true
			return m, m.retryCmd()
		}
	case key.Matches(msg, m.keys.Category):
		return m.cycleCategory()
	case key.Matches(msg, m.keys.Filter):
		i, _ := strconv.Atoi(msg.String())
		if i >= 1 && i <= len(search.Filters) {
			k := search.Filters[i-1].Key
			m.filters[k] = !m.filters[k]
			return m.runSearch()
		}
	case key.Matches(msg, m.keys.Up):
		m.selected = max(0, m.selected-1)
	case key.Matches(msg, m.keys.Down):
		n := m.listLen()
		if m.selected < n-1 {
			m.selected++
		}
		// load more when the cursor reaches the end of the results
		if len(m.results) > 0 && m.selected >= len(m.results)-1 && m.deps.Search.HasMore() {
			return m, m.appendCmd()
		}
	case key.Matches(msg, m.keys.NextPage):
		if m.deps.Search.HasMore() && !m.searching {
			m.searching = true
			return m, m.pageCmd(true)
		}
	case key.Matches(msg, m.keys.PrevPage):
		if m.page > 1 && !m.searching {
			m.searching = true
			return m, m.pageCmd(false)
		}
	case key.Matches(msg, m.keys.Select):
		if id := m.selectedID(); id != "" {
			return m.open(id, -1)
		}
	}
	return m, nil
}

func (m Model) cycleCategory() (Model, tea.Cmd) {
	if len(m.presets) == 0 {
		return m, nil
	}
	m.category = (m.category + 1) % len(m.presets)
	return m.runSearch()
}

func (m Model) runSearch() (Model, tea.Cmd) {
	m.searching = true
	m.retryErr = nil
	return m, m.searchCmd(m.params())
}

// listLen is the length of the selectable list: results, or the recently
// viewed items before anything was found.
func (m Model) listLen() int {
	if len(m.results) > 0 {
		return len(m.results)
	}
	return len(m.recent)
}

func (m Model) selectedID() string {
	if len(m.results) > 0 {
		if m.selected < len(m.results) {
			return m.results[m.selected].Identifier
		}
		return ""
	}
	if m.selected < len(m.recent) {
		return m.recent[m.selected].Identifier
	}
	return ""
}

func (m Model) params() search.Params {
	text, from, to := splitYears(m.input.Value())
	filters := make(map[string]bool, len(m.filters))
	for k, v := range m.filters {
		filters[k] = v
	}
	p := search.Params{Text: text, YearFrom: from, YearTo: to, Filters: filters, Page: 1}
	if m.category < len(m.presets) {
		p.Category = m.presets[m.category].Name
	}
	return p
}

var yearRange = regexp.MustCompile(`(?:^|\s)(\d{3,4})?-(\d{3,4})?(?:\s|$)`)

// splitYears extracts a "1850-1900", "1850-" or "-1900" token from text.
func splitYears(text string) (string, int, int) {
	var loc []int
	for _, l := range yearRange.FindAllStringSubmatchIndex(text, -1) {
		if l[2] >= 0 || l[4] >= 0 {
			loc = l
			break
		}
	}
	if loc == nil {
		return strings.TrimSpace(text), 0, 0
	}
	var from, to int
	if loc[2] >= 0 {
		from, _ = strconv.Atoi(text[loc[2]:loc[3]])
	}
	if loc[4] >= 0 {
		to, _ = strconv.Atoi(text[loc[4]:loc[5]])
	}
	rest := strings.Join(strings.Fields(text[:loc[0]]+" "+text[loc[1]:]), " ")
	return rest, from, to
}

func (m Model) handlePlayerKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.palette != nil {
		return m.handlePaletteKey(msg)
	}
	if m.np != nil && m.np.view(time.Now()).Fatal != nil {
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m.quit()
		case key.Matches(msg, m.keys.Retry), msg.String() == "enter":
			return m.open(m.openID, m.openStart)
		case key.Matches(msg, m.keys.Back):
			return m.closePlayer()
		}
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m.quit()
	case key.Matches(msg, m.keys.Help):
		m.showHelp = true
		return m, nil
	case key.Matches(msg, m.keys.Back):
		return m.closePlayer()
	}
	if m.sess == nil {
		return m, nil
	}
	p := m.cfg.Player
	switch {
	case key.Matches(msg, m.keys.PlayPause):
		m.sess.PlayPause()
	case key.Matches(msg, m.keys.NextTrack):
		m.sess.NextTrack()
	case key.Matches(msg, m.keys.PrevTrack):
		m.sess.PrevTrack()
	case key.Matches(msg, m.keys.SeekFar):
		m.sess.Seek(float64(p.SeekLarge))
	case key.Matches(msg, m.keys.SeekFarBack):
		m.sess.Seek(-float64(p.SeekLarge))
	case key.Matches(msg, m.keys.SeekForward):
		m.sess.Seek(float64(p.SeekSmall))
	case key.Matches(msg, m.keys.SeekBackward):
		m.sess.Seek(-float64(p.SeekSmall))
	case key.Matches(msg, m.keys.VolumeUp):
		m.volume = m.sess.SetVolume(m.volume + float64(p.VolumeStep))
		m.status = fmt.Sprintf("Volume %.0f%%", m.volume)
	case key.Matches(msg, m.keys.VolumeDown):
		m.volume = m.sess.SetVolume(m.volume - float64(p.VolumeStep))
		m.status = fmt.Sprintf("Volume %.0f%%", m.volume)
	case key.Matches(msg, m.keys.SpeedUp):
		m.speed = m.sess.SetSpeed(roundSpeed(m.speed + p.SpeedStep))
		m.status = fmt.Sprintf("Speed %.2fx", m.speed)
	case key.Matches(msg, m.keys.SpeedDown):
		m.speed = m.sess.SetSpeed(roundSpeed(m.speed - p.SpeedStep))
		m.status = fmt.Sprintf("Speed %.2fx", m.speed)
	case key.Matches(msg, m.keys.Shuffle):
		if m.sess.ToggleShuffle() {
			m.status = "Shuffle on"
		} else {
			m.status = "Shuffle off"
		}
		m.chapterSel = m.sess.Snapshot().CurrentIndex
	case key.Matches(msg, m.keys.Loop):
		m.status = "Loop: " + m.sess.CycleLoop().String()
	case key.Matches(msg, m.keys.Up):
		m.chapterSel = max(0, m.chapterSel-1)
	case key.Matches(msg, m.keys.Down):
		m.chapterSel = clamp(m.chapterSel+1, 0, max(0, len(m.sess.Snapshot().Chapters)-1))
	case key.Matches(msg, m.keys.Select):
		if err := m.sess.SelectTrack(m.chapterSel); err != nil {
			return m.setError(err)
		}
	case key.Matches(msg, m.keys.Search):
		m.palette = newChapterPalette(m.sess.Snapshot().Chapters)
		return m, nil
	}
	return m.syncTrack()
}

func (m Model) handlePaletteKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.palette = nil
	case tea.KeyEnter:
		idx, ok := m.palette.Selected()
		m.palette = nil
		if ok && m.sess != nil {
			if err := m.sess.SelectTrack(idx); err != nil {
				return m.setError(err)
			}
			return m.syncTrack()
		}
	case tea.KeyUp:
		m.palette.Up()
	case tea.KeyDown:
		m.palette.Down()
	case tea.KeyBackspace:
		m.palette.Backspace()
	case tea.KeySpace:
		m.palette.Type(" ")
	case tea.KeyRunes:
		m.palette.Type(string(msg.Runes))
	}
	return m, nil
}

func roundSpeed(v float64) float64 {
	return math.Round(v*100) / 100
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
