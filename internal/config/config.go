package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config holds tomes runtime configuration loaded from TOML.
type Config struct {
	Catalog     CatalogConfig `toml:"catalog"`
	Search      SearchConfig  `toml:"search"`
	Player      PlayerConfig  `toml:"player"`
	UI          UIConfig      `toml:"ui"`
	Artwork     ArtworkConfig `toml:"artwork"`
	Prefs       PrefsConfig   `toml:"prefs"`
	Log         LogConfig     `toml:"log"`
	Keybindings KeybindConfig `toml:"keybindings"`
}

type CatalogConfig struct {
	BaseURL      string `toml:"base_url"`
	Collection   string `toml:"collection"`
	UserAgent    string `toml:"user_agent"`
	TimeoutMS    int    `toml:"timeout_ms"`
	Retries      int    `toml:"retries"` // negative disables retries
	RetryDelayMS int    `toml:"retry_delay_ms"`
	CacheSize    int    `toml:"cache_size"`
	// DedupeDerivatives keeps one file per original recording.
	DedupeDerivatives bool `toml:"dedupe_derivatives"`
}

type SearchConfig struct {
	Retries     int              `toml:"retries"` // negative disables retries
	RetryBaseMS int              `toml:"retry_base_ms"`
	Categories  []CategoryConfig `toml:"categories"`
}

// CategoryConfig adds a search category or overrides a built-in one.
type CategoryConfig struct {
	Name     string `toml:"name"`
	Clause   string `toml:"clause"`
	Language string `toml:"language"`
	YearFrom int    `toml:"year_from"`
	YearTo   int    `toml:"year_to"`
}

type PlayerConfig struct {
	MPVPath        string  `toml:"mpv_path"`
	IPC            string  `toml:"ipc"`
	InitialVolume  int     `toml:"initial_volume"`
	InitialSpeed   float64 `toml:"initial_speed"`
	SeekSmall      int     `toml:"seek_small_seconds"`
	SeekLarge      int     `toml:"seek_large_seconds"`
	VolumeStep     int     `toml:"volume_step"`
	SpeedStep      float64 `toml:"speed_step"`
	ReadyTimeoutMS int     `toml:"ready_timeout_ms"`
}

type UIConfig struct {
	NoEmoji bool   `toml:"no_emoji"`
	Theme   string `toml:"theme"`
}

// ArtworkConfig holds cover art display settings.
type ArtworkConfig struct {
	Disabled bool `toml:"disabled"`
	Width    int  `toml:"width"`
	Height   int  `toml:"height"`
}

type PrefsConfig struct {
	Path string `toml:"path"` // empty means <state dir>/prefs.db
}

type LogConfig struct {
	Level string `toml:"level"` // debug, info, warn, error
}

// KeybindConfig allows customizing keybindings. Multiple keys are comma
// separated.
type KeybindConfig struct {
	PlayPause    string `toml:"play_pause"`
	NextTrack    string `toml:"next_track"`
	PrevTrack    string `toml:"prev_track"`
	SeekForward  string `toml:"seek_forward"`
	SeekBackward string `toml:"seek_backward"`
	VolumeUp     string `toml:"volume_up"`
	VolumeDown   string `toml:"volume_down"`
	SpeedUp      string `toml:"speed_up"`
	SpeedDown    string `toml:"speed_down"`
	Shuffle      string `toml:"shuffle"`
	Loop         string `toml:"loop"`
	Search       string `toml:"search"`
	Back         string `toml:"back"`
	Help         string `toml:"help"`
	Quit         string `toml:"quit"`
}

// Load reads configuration from disk. If path is empty, a default OS-specific
// location is used. A missing file yields the defaults.
func Load(path string) (*Config, string, error) {
	cfgPath := path
	if cfgPath == "" {
		var err error
		cfgPath, err = DefaultPath()
		if err != nil {
			return nil, "", fmt.Errorf("resolve config path: %w", err)
		}
	}

	var cfg Config
	data, err := os.ReadFile(cfgPath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, cfgPath, fmt.Errorf("read config: %w", err)
	default:
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, cfgPath, fmt.Errorf("parse config: %w", err)
		}
	}

	applyDefaults(&cfg)

	if err := Validate(cfg); err != nil {
		return nil, cfgPath, err
	}

	return &cfg, cfgPath, nil
}

// Default returns a configuration with every default applied.
func Default() *Config {
	var cfg Config
	applyDefaults(&cfg)
	return &cfg
}

// DefaultPath returns the OS-specific config file location.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	name := "tomes"
	if runtime.GOOS == "windows" {
		name = "Tomes"
	}
	return filepath.Join(dir, name, "config.toml"), nil
}

func applyDefaults(cfg *Config) {
	if cfg.Catalog.BaseURL == "" {
		cfg.Catalog.BaseURL = "https://archive.org"
	}
	if cfg.Catalog.Collection == "" {
		cfg.Catalog.Collection = "librivoxaudio"
	}
	if cfg.Catalog.UserAgent == "" {
		cfg.Catalog.UserAgent = "tomes/0.1"
	}
	if cfg.Catalog.TimeoutMS == 0 {
		cfg.Catalog.TimeoutMS = 15000
	}
	if cfg.Catalog.Retries == 0 {
		cfg.Catalog.Retries = 2
	}
	if cfg.Catalog.RetryDelayMS == 0 {
		cfg.Catalog.RetryDelayMS = 750
	}
	if cfg.Catalog.CacheSize == 0 {
		cfg.Catalog.CacheSize = 64
	}
	if cfg.Search.Retries == 0 {
		cfg.Search.Retries = 3
	}
	if cfg.Search.RetryBaseMS == 0 {
		cfg.Search.RetryBaseMS = 1000
	}
	if cfg.Player.MPVPath == "" {
		cfg.Player.MPVPath = "mpv"
	}
	if cfg.Player.InitialVolume == 0 {
		cfg.Player.InitialVolume = 80
	}
	if cfg.Player.InitialSpeed == 0 {
		cfg.Player.InitialSpeed = 1
	}
	if cfg.Player.SeekSmall == 0 {
		cfg.Player.SeekSmall = 10
	}
	if cfg.Player.SeekLarge == 0 {
		cfg.Player.SeekLarge = 60
	}
	if cfg.Player.VolumeStep == 0 {
		cfg.Player.VolumeStep = 5
	}
	if cfg.Player.SpeedStep == 0 {
		cfg.Player.SpeedStep = 0.1
	}
	if cfg.Player.ReadyTimeoutMS == 0 {
		cfg.Player.ReadyTimeoutMS = 10000
	}
	if cfg.UI.Theme == "" {
		cfg.UI.Theme = "parchment"
	}
	if cfg.Artwork.Width == 0 {
		cfg.Artwork.Width = 24
	}
	if cfg.Artwork.Height == 0 {
		cfg.Artwork.Height = 12
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	// Keybinding defaults
	if cfg.Keybindings.PlayPause == "" {
		cfg.Keybindings.PlayPause = "space"
	}
	if cfg.Keybindings.NextTrack == "" {
		cfg.Keybindings.NextTrack = "n"
	}
	if cfg.Keybindings.PrevTrack == "" {
		cfg.Keybindings.PrevTrack = "p"
	}
	if cfg.Keybindings.SeekForward == "" {
		cfg.Keybindings.SeekForward = "l,right"
	}
	if cfg.Keybindings.SeekBackward == "" {
		cfg.Keybindings.SeekBackward = "h,left"
	}
	if cfg.Keybindings.VolumeUp == "" {
		cfg.Keybindings.VolumeUp = "+,="
	}
	if cfg.Keybindings.VolumeDown == "" {
		cfg.Keybindings.VolumeDown = "-"
	}
	if cfg.Keybindings.SpeedUp == "" {
		cfg.Keybindings.SpeedUp = "]"
	}
	if cfg.Keybindings.SpeedDown == "" {
		cfg.Keybindings.SpeedDown = "["
	}
	if cfg.Keybindings.Shuffle == "" {
		cfg.Keybindings.Shuffle = "s"
	}
	if cfg.Keybindings.Loop == "" {
		cfg.Keybindings.Loop = "r"
	}
	if cfg.Keybindings.Search == "" {
		cfg.Keybindings.Search = "/"
	}
	if cfg.Keybindings.Back == "" {
		cfg.Keybindings.Back = "esc"
	}
	if cfg.Keybindings.Help == "" {
		cfg.Keybindings.Help = "?"
	}
	if cfg.Keybindings.Quit == "" {
		cfg.Keybindings.Quit = "q,ctrl+c"
	}
}

// Validate performs semantic validation of config.
func Validate(cfg Config) error {
	u, err := url.Parse(cfg.Catalog.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("catalog.base_url must be an http(s) URL: %q", cfg.Catalog.BaseURL)
	}
	if strings.TrimSpace(cfg.Catalog.Collection) == "" {
		return errors.New("catalog.collection is required")
	}
	if cfg.Catalog.TimeoutMS < 0 || cfg.Catalog.RetryDelayMS < 0 || cfg.Search.RetryBaseMS < 0 {
		return errors.New("timeouts and delays must not be negative")
	}
	if cfg.Catalog.CacheSize < 0 {
		return errors.New("catalog.cache_size must not be negative")
	}
	if cfg.Player.InitialVolume < 0 || cfg.Player.InitialVolume > 100 {
		return fmt.Errorf("player.initial_volume must be 0-100")
	}
	if cfg.Player.InitialSpeed < 0.5 || cfg.Player.InitialSpeed > 3 {
		return fmt.Errorf("player.initial_speed must be 0.5-3")
	}
	if cfg.Player.VolumeStep <= 0 || cfg.Player.SpeedStep <= 0 || cfg.Player.SeekSmall <= 0 || cfg.Player.SeekLarge <= 0 {
		return errors.New("player steps must be positive")
	}
	for i, c := range cfg.Search.Categories {
		if strings.TrimSpace(c.Name) == "" {
			return fmt.Errorf("search.categories[%d].name is required", i)
		}
		if c.YearFrom < 0 || c.YearTo < 0 {
			return fmt.Errorf("search.categories[%d] has a negative year", i)
		}
	}
	if _, err := ParseLevel(cfg.Log.Level); err != nil {
		return err
	}
	return nil
}

// CheckMPV verifies that the configured mpv binary can be found.
func CheckMPV(cfg Config) (string, error) {
	if _, err := os.Stat(cfg.Player.MPVPath); err == nil {
		return cfg.Player.MPVPath, nil
	}
	path, err := execLookPath(cfg.Player.MPVPath)
	if err != nil {
		return "", fmt.Errorf("mpv not found (%s): %w", cfg.Player.MPVPath, err)
	}
	return path, nil
}

// ParseLevel maps a config level name to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("log.level %q is not one of debug, info, warn, error", s)
	}
}

// EffectiveRetries returns the retry count with negatives meaning none.
func (c CatalogConfig) EffectiveRetries() int {
	if c.Retries < 0 {
		return 0
	}
	return c.Retries
}

func (c SearchConfig) EffectiveRetries() int {
	if c.Retries < 0 {
		return 0
	}
	return c.Retries
}

func (c CatalogConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMS) * time.Millisecond
}

func (c CatalogConfig) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelayMS) * time.Millisecond
}

func (c SearchConfig) RetryBase() time.Duration {
	return time.Duration(c.RetryBaseMS) * time.Millisecond
}

func (c PlayerConfig) ReadyTimeout() time.Duration {
	return time.Duration(c.ReadyTimeoutMS) * time.Millisecond
}

// DeadlineContext returns a context bounded by the catalog timeout.
func (c Config) DeadlineContext() (context.Context, context.CancelFunc) {
	d := c.Catalog.Timeout()
	if d == 0 {
		d = 15 * time.Second
	}
	return context.WithTimeout(context.Background(), d)
}

// execLookPath is a test seam.
var execLookPath = func(file string) (string, error) {
	return exec.LookPath(file)
}
