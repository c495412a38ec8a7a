package session

import (
	"fmt"
	"log/slog"

	"github.com/tomes/tomes/internal/player"
	"github.com/tomes/tomes/internal/playlist"
)

// HandleEvent applies one media event to the state machine.
func (s *Session) HandleEvent(evt player.Event) {
	if s.destroyed || s.list == nil {
		return
	}
	s.Tick()
	switch evt.Kind {
	case player.EventReady:
		s.ready()
	case player.EventPlaying:
		// every load starts paused, so playing before ready is left over
		// from the previous source
		if s.loading {
			s.logger.Debug("ignoring playing event during load")
			return
		}
		s.consecutiveErrors = 0
		s.setState(StatePlaying)
	case player.EventPause:
		if s.loading || (s.state != StatePlaying && s.state != StateLoading) {
			return
		}
		s.setState(StatePaused)
	case player.EventWaiting:
		s.setState(StateLoading)
	case player.EventTime:
		s.position, s.duration = evt.Position, evt.Duration
		s.deps.View.SetProgress(s.position, s.duration)
	case player.EventVolume:
		s.volume = clamp(evt.Volume, 0, 100)
	case player.EventEnded:
		s.trackEnded()
	case player.EventError:
		err := evt.Err
		if err == nil {
			err = &player.MediaError{Code: player.MediaErrDecode}
		}
		s.mediaError(err)
	}
}

// Tick expires an in-flight load that never became ready. The owner calls it
// periodically; HandleEvent calls it too.
func (s *Session) Tick() {
	if !s.loading {
		return
	}
	waited := s.deps.Now().Sub(s.loadStarted)
	if waited < s.deps.ReadyTimeout {
		return
	}
	s.logger.Warn("load did not become ready, discarding pending play",
		slog.Duration("waited", waited), slog.Bool("pending_play", s.pendingPlay))
	s.loading = false
	s.pendingPlay = false
	s.setState(StatePaused)
}

func (s *Session) ready() {
	if !s.loading {
		return
	}
	s.loading = false
	if err := s.deps.Media.SetVolume(s.volume); err != nil {
		s.logger.Debug("reapply volume failed", slog.Any("err", err))
	}
	if err := s.deps.Media.SetSpeed(s.speed); err != nil {
		s.logger.Debug("reapply speed failed", slog.Any("err", err))
	}
	if s.pendingPlay {
		s.pendingPlay = false
		s.attemptPlay()
		return
	}
	s.setState(StatePaused)
}

func (s *Session) trackEnded() {
	s.logger.Debug("chapter ended", slog.Int("index", s.list.CurrentIndex()))
	if s.list.LoopMode() == playlist.LoopOne {
		// the ended source is already unloaded; reload it
		s.loadAndPlay(s.list.CurrentIndex())
		return
	}
	if next, ok := s.list.NextIndex(); ok {
		s.loadAndPlay(next)
		return
	}
	s.logger.Info("playlist finished", slog.String("id", s.id))
	s.setState(StatePaused)
}

// mediaError records a failed chapter. Isolated failures are shown as
// notices; ErrorThreshold in a row without a successful play is fatal.
func (s *Session) mediaError(err error) {
	s.loading = false
	s.pendingPlay = false
	s.consecutiveErrors++
	s.setState(StateErrored)
	s.logger.Error("media error",
		slog.String("id", s.id),
		slog.Int("index", s.list.CurrentIndex()),
		slog.Int("consecutive", s.consecutiveErrors),
		slog.Any("err", err))

	if s.consecutiveErrors >= ErrorThreshold {
		s.fatal = fmt.Errorf("%w: %d chapters failed in a row: %w", ErrUnplayable, s.consecutiveErrors, err)
		s.deps.View.Fatal(s.fatal)
		return
	}
	s.deps.View.Notice(fmt.Sprintf("Chapter failed to play (%v)", err))
}
