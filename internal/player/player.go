package player

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

type EventKind int

const (
	EventTime EventKind = iota
	EventReady
	EventPlaying
	EventPause
	EventWaiting
	EventEnded
	EventError
	EventVolume
)

func (k EventKind) String() string {
	switch k {
	case EventTime:
		return "time"
	case EventReady:
		return "ready"
	case EventPlaying:
		return "playing"
	case EventPause:
		return "pause"
	case EventWaiting:
		return "waiting"
	case EventEnded:
		return "ended"
	case EventError:
		return "error"
	case EventVolume:
		return "volume"
	default:
		return "unknown"
	}
}

// Event describes a playback update from mpv.
type Event struct {
	Kind     EventKind
	Position float64
	Duration float64
	Volume   float64
	Err      error
}

// Options configures the Controller.
type Options struct {
	MPVPath        string
	IPCPath        string
	Logger         *slog.Logger
	DisableProcess bool
	Dial           func(ctx context.Context, network, addr string) (net.Conn, error)
	ExtraArgs      []string
}

// ErrInstanceRunning is returned by Start when another process holds the IPC socket.
var ErrInstanceRunning = errors.New("player: another instance owns the mpv socket")

// Controller manages the mpv process and IPC connection.
type Controller struct {
	opts   Options
	cmd    *exec.Cmd
	conn   net.Conn
	lock   *flock.Flock
	mu     sync.Mutex
	events chan Event
	done   chan struct{}

	// read loop state
	paused   bool
	caching  bool
	seeking  bool
	position float64
	duration float64
}

func New(opts Options) *Controller {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Controller{
		opts:   opts,
		events: make(chan Event, 32),
		done:   make(chan struct{}),
		paused: true,
	}
}

func defaultIPCPath() string {
	if runtime.GOOS == "windows" {
		return `\\.\pipe\tomes-mpv`
	}
	return filepath.Join(os.TempDir(), "tomes-mpv.sock")
}

// Start takes the instance lock, launches mpv (unless disabled) and connects
// to the IPC socket.
func (c *Controller) Start(ctx context.Context) error {
	if c.opts.IPCPath == "" {
		c.opts.IPCPath = defaultIPCPath()
		c.opts.Logger.Debug("using default ipc path", slog.String("ipc_path", c.opts.IPCPath))
	}
	c.opts.Logger.Debug("starting player controller", slog.String("ipc_path", c.opts.IPCPath), slog.Bool("disable_process", c.opts.DisableProcess))

	c.mu.Lock()
	select {
	case <-c.done:
		c.done = make(chan struct{})
		c.events = make(chan Event, 32)
	default:
	}
	c.mu.Unlock()

	if err := c.acquireLock(); err != nil {
		return err
	}
	if !c.opts.DisableProcess {
		if err := c.spawnMPV(ctx); err != nil {
			c.opts.Logger.Error("failed to spawn mpv", slog.Any("err", err))
			c.releaseLock()
			return err
		}
	}
	if err := c.connect(ctx); err != nil {
		c.opts.Logger.Error("failed to connect to mpv ipc", slog.Any("err", err))
		c.releaseLock()
		return err
	}
	if err := c.observeProperties(); err != nil {
		c.opts.Logger.Error("failed to observe mpv properties", slog.Any("err", err))
		c.releaseLock()
		return err
	}
	go c.readLoop(c.conn, c.events)
	c.opts.Logger.Debug("player controller started")
	return nil
}

func (c *Controller) acquireLock() error {
	c.lock = flock.New(c.opts.IPCPath + ".lock")
	ok, err := c.lock.TryLock()
	if err != nil {
		return fmt.Errorf("lock mpv socket: %w", err)
	}
	if !ok {
		return ErrInstanceRunning
	}
	return nil
}

func (c *Controller) releaseLock() {
	if c.lock != nil {
		_ = c.lock.Unlock()
		c.lock = nil
	}
}

func (c *Controller) spawnMPV(ctx context.Context) error {
	args := []string{
		"--idle=yes",
		"--force-window=no",
		"--no-terminal",
		"--no-video",
		"--input-ipc-server=" + c.opts.IPCPath,
	}
	args = append(args, c.opts.ExtraArgs...)
	c.opts.Logger.Debug("spawning mpv process", slog.String("mpv_path", c.opts.MPVPath), slog.Any("args", args))
	c.cmd = exec.CommandContext(ctx, c.opts.MPVPath, args...)
	if err := c.cmd.Start(); err != nil {
		return fmt.Errorf("start mpv: %w", err)
	}
	c.opts.Logger.Debug("mpv process started", slog.Int("pid", c.cmd.Process.Pid))
	return nil
}

func (c *Controller) connect(ctx context.Context) error {
	dial := c.opts.Dial
	if dial == nil {
		dial = (&net.Dialer{Timeout: 5 * time.Second}).DialContext
	}
	var err error
	baseDelay := 50 * time.Millisecond
	maxDelay := 500 * time.Millisecond
	maxRetries := 10
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	for i := 0; i < maxRetries; i++ {
		var conn net.Conn
		conn, err = dial(ctx, "unix", c.opts.IPCPath)
		if err == nil {
			c.mu.Lock()
			c.conn = conn
			c.mu.Unlock()
			c.opts.Logger.Debug("connected to mpv ipc", slog.Int("attempt", i+1))
			return nil
		}
		if ctx.Err() != nil {
			return fmt.Errorf("connect mpv ipc: %w", ctx.Err())
		}
		if i < maxRetries-1 {
			delay := baseDelay * time.Duration(1<<uint(i))
			if delay > maxDelay {
				delay = maxDelay
			}
			jitter := time.Duration(float64(delay) * 0.2 * rng.Float64())
			c.opts.Logger.Debug("mpv ipc connection failed, retrying", slog.Int("attempt", i+1), slog.Any("err", err), slog.Duration("delay", delay+jitter))
			time.Sleep(delay + jitter)
		}
	}
	return fmt.Errorf("connect mpv ipc: %w", err)
}

func (c *Controller) observeProperties() error {
	props := []string{"time-pos", "duration", "pause", "volume", "paused-for-cache", "seeking"}
	for i, p := range props {
		if err := c.send("observe_property", i+1, p); err != nil {
			return err
		}
	}
	return nil
}

// Events returns the event channel. It is closed when the IPC connection ends.
func (c *Controller) Events() <-chan Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.events
}

func (c *Controller) send(args ...any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return fmt.Errorf("mpv not connected")
	}
	b, err := json.Marshal(map[string]any{"command": args})
	if err != nil {
		return err
	}
	_, err = c.conn.Write(append(b, '\n'))
	return err
}

// Load replaces the current source. The new source starts paused so that
// playback is always an explicit Play.
func (c *Controller) Load(url string) error {
	c.opts.Logger.Debug("loading source", slog.String("url", url))
	if err := c.send("set_property", "pause", true); err != nil {
		return err
	}
	return c.send("loadfile", url, "replace")
}

func (c *Controller) Play() error {
	return c.send("set_property", "pause", false)
}

func (c *Controller) Pause() error {
	return c.send("set_property", "pause", true)
}

// Detach stops playback and releases the current source.
func (c *Controller) Detach() error {
	return c.send("stop")
}

// Seek moves relative to the current position.
func (c *Controller) Seek(deltaSeconds float64) error {
	return c.send("seek", deltaSeconds, "relative")
}

// SeekTo moves to an absolute position.
func (c *Controller) SeekTo(seconds float64) error {
	if seconds < 0 {
		seconds = 0
	}
	return c.send("seek", seconds, "absolute")
}

func (c *Controller) SetVolume(vol float64) error {
	if vol < 0 {
		vol = 0
	}
	if vol > 100 {
		vol = 100
	}
	return c.send("set_property", "volume", vol)
}

func (c *Controller) SetSpeed(rate float64) error {
	if rate <= 0 {
		rate = 1
	}
	return c.send("set_property", "speed", rate)
}

// Stop shuts mpv down and releases the instance lock. It is safe to call
// more than once.
func (c *Controller) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	select {
	case <-c.done:
	default:
		close(c.done)
	}

	if c.conn != nil {
		b, _ := json.Marshal(map[string]any{"command": []any{"quit"}})
		_, _ = c.conn.Write(append(b, '\n'))
		_ = c.conn.Close()
		c.conn = nil
	}
	if c.cmd != nil && c.cmd.Process != nil {
		_ = c.cmd.Process.Kill()
		_ = c.cmd.Wait()
		c.cmd = nil
	}
	c.releaseLock()
	return nil
}

func (c *Controller) readLoop(conn net.Conn, events chan<- Event) {
	defer close(events)
	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		var msg ipcMessage
		if err := json.Unmarshal(scanner.Bytes(), &msg); err != nil {
			c.opts.Logger.Debug("undecodable mpv message", slog.Any("err", err))
			continue
		}
		for _, evt := range c.translate(msg) {
			events <- evt
		}
	}
	if err := scanner.Err(); err != nil {
		select {
		case <-c.done:
		default:
			events <- Event{Kind: EventError, Err: &MediaError{Code: MediaErrNetwork, Detail: err.Error()}}
		}
	}
}

type ipcMessage struct {
	Event     string `json:"event"`
	Name      string `json:"name"`
	Data      any    `json:"data"`
	Reason    string `json:"reason"`     // end-file: eof, stop, quit, error, redirect
	FileError string `json:"file_error"` // end-file with reason error
}

// translate maps one mpv message to media events. Only the read loop calls it.
func (c *Controller) translate(msg ipcMessage) []Event {
	switch msg.Event {
	case "file-loaded":
		c.position, c.duration = 0, 0
		return []Event{{Kind: EventReady}}
	case "end-file":
		switch msg.Reason {
		case "eof":
			return []Event{{Kind: EventEnded, Position: c.position, Duration: c.duration}}
		case "error":
			return []Event{{Kind: EventError, Err: mediaErrorFromMPV(msg.FileError)}}
		}
		// stop and quit come from our own Detach/Load; the old source is gone
		return nil
	case "property-change":
		return c.propertyChange(msg)
	}
	return nil
}

func (c *Controller) propertyChange(msg ipcMessage) []Event {
	switch msg.Name {
	case "time-pos":
		if v, ok := toFloat(msg.Data); ok {
			c.position = v
			return []Event{{Kind: EventTime, Position: c.position, Duration: c.duration}}
		}
	case "duration":
		if v, ok := toFloat(msg.Data); ok {
			c.duration = v
			return []Event{{Kind: EventTime, Position: c.position, Duration: c.duration}}
		}
	case "volume":
		if v, ok := toFloat(msg.Data); ok {
			return []Event{{Kind: EventVolume, Volume: v}}
		}
	case "pause":
		if b, ok := msg.Data.(bool); ok {
			c.paused = b
			if b {
				return []Event{{Kind: EventPause}}
			}
			if !c.waiting() {
				return []Event{{Kind: EventPlaying}}
			}
		}
	case "paused-for-cache", "seeking":
		if b, ok := msg.Data.(bool); ok {
			if msg.Name == "seeking" {
				c.seeking = b
			} else {
				c.caching = b
			}
			if c.waiting() {
				return []Event{{Kind: EventWaiting}}
			}
			if c.paused {
				return []Event{{Kind: EventPause}}
			}
			return []Event{{Kind: EventPlaying}}
		}
	}
	return nil
}

func (c *Controller) waiting() bool { return c.caching || c.seeking }

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func mediaErrorFromMPV(detail string) *MediaError {
	d := strings.ToLower(detail)
	code := MediaErrDecode
	switch {
	case strings.Contains(d, "format"), strings.Contains(d, "no audio"), strings.Contains(d, "unsupported"):
		code = MediaErrFormat
	case strings.Contains(d, "abort"), strings.Contains(d, "interrupt"):
		code = MediaErrAborted
	case strings.Contains(d, "loading failed"), strings.Contains(d, "network"), strings.Contains(d, "http"):
		code = MediaErrNetwork
	}
	return &MediaError{Code: code, Detail: detail}
}
