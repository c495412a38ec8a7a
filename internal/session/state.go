package session

// State is the playback state of a Session.
type State int

const (
	StateIdle State = iota
	StateLoading
	StatePlaying
	StatePaused
	StateErrored
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateErrored:
		return "errored"
	default:
		return "unknown"
	}
}

const (
	MinSpeed = 0.5
	MaxSpeed = 3.0
)
