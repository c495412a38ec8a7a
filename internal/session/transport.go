package session

import (
	"fmt"
	"log/slog"

	"github.com/tomes/tomes/internal/playlist"
)

// LoadTrack detaches the current source and loads chapter i, paused. It is
// dropped while another load is in flight.
func (s *Session) LoadTrack(i int) error {
	if s.list == nil {
		return ErrNotOpen
	}
	if s.loading {
		s.logger.Debug("load dropped, another load in flight", slog.Int("index", i))
		return nil
	}
	ch, err := s.list.At(i)
	if err != nil {
		return fmt.Errorf("load track %d: %w", i, err)
	}
	_ = s.list.SetCurrent(i)

	s.attached = true
	s.loading = true
	s.loadStarted = s.deps.Now()
	s.position, s.duration = 0, 0
	s.setState(StateLoading)
	s.deps.View.SetTrack(i, ch)
	s.deps.View.SetProgress(0, 0)

	if err := s.deps.Media.Detach(); err != nil {
		s.logger.Debug("detach before load failed", slog.Any("err", err))
	}
	s.logger.Info("loading chapter", slog.String("id", s.id), slog.Int("index", i), slog.String("title", ch.Title))
	if err := s.deps.Media.Load(ch.URL); err != nil {
		s.mediaError(fmt.Errorf("load %s: %w", ch.Title, err))
		return err
	}
	s.deps.View.SetLocation(s.Location())
	return nil
}

// loadAndPlay loads chapter i and schedules a play attempt for when the
// media element reports ready.
func (s *Session) loadAndPlay(i int) {
	if s.loading {
		s.logger.Debug("load dropped, another load in flight", slog.Int("index", i))
		return
	}
	if err := s.LoadTrack(i); err != nil || !s.loading {
		return
	}
	s.pendingPlay = true
}

// attemptPlay asks the media element to play. A refusal is not an error:
// the session settles in paused and shows a hint.
func (s *Session) attemptPlay() {
	if err := s.deps.Media.Play(); err != nil {
		s.logger.Warn("play attempt refused", slog.Any("err", fmt.Errorf("%w: %v", ErrAutoplayBlocked, err)))
		s.setState(StatePaused)
		s.deps.View.Hint("Playback did not start. Press space to play.")
	}
}

// PlayPause toggles playback. From paused or idle it attempts to play; from
// errored it reloads the current chapter and plays it.
func (s *Session) PlayPause() {
	if s.list == nil {
		return
	}
	if s.loading {
		s.pendingPlay = !s.pendingPlay
		return
	}
	switch s.state {
	case StatePlaying, StateLoading:
		if err := s.deps.Media.Pause(); err != nil {
			s.logger.Warn("pause failed", slog.Any("err", err))
			return
		}
		s.setState(StatePaused)
	case StateErrored:
		s.loadAndPlay(s.list.CurrentIndex())
	default:
		s.attemptPlay()
	}
}

// wantsPlayback reports whether a chapter change should keep playing.
func (s *Session) wantsPlayback() bool {
	return s.pendingPlay || s.state == StatePlaying || (s.state == StateLoading && !s.loading)
}

// NextTrack moves to the following chapter per the playlist policy.
func (s *Session) NextTrack() {
	if s.list == nil || s.loading {
		return
	}
	idx, ok := s.list.NextIndex()
	if !ok {
		s.deps.View.Notice("Already at the last chapter")
		return
	}
	s.changeTrack(idx)
}

// PrevTrack restarts the current chapter when more than RestartThreshold
// seconds have played, otherwise moves to the previous chapter.
func (s *Session) PrevTrack() {
	if s.list == nil || s.loading {
		return
	}
	if s.position > RestartThreshold {
		s.SeekTo(0)
		return
	}
	idx, ok := s.list.PrevIndex()
	if !ok {
		return
	}
	s.changeTrack(idx)
}

func (s *Session) changeTrack(idx int) {
	if s.wantsPlayback() {
		s.loadAndPlay(idx)
		return
	}
	_ = s.LoadTrack(idx)
}

// SelectTrack plays chapter i. Selecting the current chapter toggles play.
func (s *Session) SelectTrack(i int) error {
	if s.list == nil {
		return ErrNotOpen
	}
	if i == s.list.CurrentIndex() && !s.loading && s.state != StateErrored {
		s.PlayPause()
		return nil
	}
	if _, err := s.list.At(i); err != nil {
		return fmt.Errorf("select track %d: %w", i, err)
	}
	s.loadAndPlay(i)
	return nil
}

// ToggleShuffle reorders the playlist without interrupting playback.
func (s *Session) ToggleShuffle() bool {
	if s.list == nil {
		return false
	}
	on := s.list.ToggleShuffle()
	if ch, err := s.list.Current(); err == nil {
		s.deps.View.SetTrack(s.list.CurrentIndex(), ch)
	}
	s.logger.Debug("shuffle toggled", slog.Bool("shuffled", on))
	return on
}

func (s *Session) CycleLoop() playlist.LoopMode {
	if s.list == nil {
		return playlist.LoopNone
	}
	mode := s.list.CycleLoop()
	s.logger.Debug("loop mode changed", slog.String("loop", mode.String()))
	return mode
}

// Seek moves relative to the current position.
func (s *Session) Seek(delta float64) {
	if s.list == nil {
		return
	}
	if err := s.deps.Media.Seek(delta); err != nil {
		s.logger.Warn("seek failed", slog.Any("err", err))
	}
}

func (s *Session) SeekTo(sec float64) {
	if s.list == nil {
		return
	}
	if sec < 0 {
		sec = 0
	}
	if err := s.deps.Media.SeekTo(sec); err != nil {
		s.logger.Warn("seek failed", slog.Any("err", err))
		return
	}
	s.position = sec
	s.deps.View.SetProgress(s.position, s.duration)
}

// SetVolume sets the volume (0-100). It is re-applied after every load.
func (s *Session) SetVolume(v float64) float64 {
	s.volume = clamp(v, 0, 100)
	if err := s.deps.Media.SetVolume(s.volume); err != nil {
		s.logger.Warn("set volume failed", slog.Any("err", err))
	}
	return s.volume
}

// SetSpeed sets the playback rate. It is re-applied after every load.
func (s *Session) SetSpeed(r float64) float64 {
	s.speed = clamp(r, MinSpeed, MaxSpeed)
	if err := s.deps.Media.SetSpeed(s.speed); err != nil {
		s.logger.Warn("set speed failed", slog.Any("err", err))
	}
	return s.speed
}
