package main

import (
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"

	"github.com/tomes/tomes/internal/catalog"
	"github.com/tomes/tomes/internal/config"
	"github.com/tomes/tomes/internal/logging"
	"github.com/tomes/tomes/internal/prefs"
	"github.com/tomes/tomes/internal/search"
)

// commandContext lazily builds what the subcommands share.
type commandContext struct {
	configFlag *string
	noColor    *bool

	configOnce sync.Once
	config     *config.Config
	configPath string
	configErr  error

	loggerOnce sync.Once
	logger     *slog.Logger
	logFile    io.Closer
}

func newCommandContext(configFlag *string, noColor *bool) *commandContext {
	return &commandContext{configFlag: configFlag, noColor: noColor}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		c.config, c.configPath, c.configErr = config.Load(path)
	})
	return c.config, c.configErr
}

// loggerFor returns the file logger. When the log file cannot be opened the
// commands still run with logging discarded.
func (c *commandContext) loggerFor() *slog.Logger {
	c.loggerOnce.Do(func() {
		level := slog.LevelInfo
		if c.config != nil {
			level, _ = config.ParseLevel(c.config.Log.Level)
		}
		logger, f, err := logging.Setup(level)
		if err != nil {
			c.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
			return
		}
		c.logger, c.logFile = logger, f
		slog.SetDefault(logger)
	})
	return c.logger
}

func (c *commandContext) close() {
	if c.logFile != nil {
		c.logFile.Close()
	}
}

// colorDisabled reports whether output must stay plain.
func (c *commandContext) colorDisabled() bool {
	if c.noColor != nil && *c.noColor {
		return true
	}
	return os.Getenv("NO_COLOR") != ""
}

func (c *commandContext) catalogClient() *catalog.Client {
	cfg := c.config
	return catalog.New(
		catalog.WithBaseURL(cfg.Catalog.BaseURL),
		catalog.WithUserAgent(cfg.Catalog.UserAgent),
		catalog.WithHTTPClient(&http.Client{Timeout: cfg.Catalog.Timeout()}),
		catalog.WithRetry(cfg.Catalog.EffectiveRetries(), cfg.Catalog.RetryDelay()),
		catalog.WithCacheSize(cfg.Catalog.CacheSize),
		catalog.WithDedupe(cfg.Catalog.DedupeDerivatives),
		catalog.WithLogger(c.loggerFor()),
	)
}

func (c *commandContext) prefsStore() (*prefs.Store, error) {
	return prefs.NewStore(c.config.Prefs.Path, c.loggerFor())
}

// searchSession builds a search session. prefs may be nil.
func (c *commandContext) searchSession(cat search.Catalog, p search.Prefs) *search.Session {
	cfg := c.config
	presets := make([]search.Preset, 0, len(cfg.Search.Categories))
	for _, cc := range cfg.Search.Categories {
		presets = append(presets, search.Preset{
			Name:     cc.Name,
			Clause:   cc.Clause,
			Language: cc.Language,
			YearFrom: cc.YearFrom,
			YearTo:   cc.YearTo,
		})
	}
	return search.New(cat, p,
		search.WithCollection(cfg.Catalog.Collection),
		search.WithPresets(presets...),
		search.WithRetry(cfg.Search.EffectiveRetries(), cfg.Search.RetryBase()),
		search.WithLogger(c.loggerFor()),
	)
}
