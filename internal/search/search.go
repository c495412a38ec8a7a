// Package search builds catalog queries and keeps the paged result list.
package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tomes/tomes/internal/catalog"
)

// PageSize is fixed for every search.
const PageSize = 24

const (
	DefaultRetries   = 3
	DefaultRetryBase = time.Second
)

// Catalog runs one search request.
type Catalog interface {
	Search(ctx context.Context, q catalog.Query) (catalog.SearchPage, error)
}

// Prefs remembers the selected category.
type Prefs interface {
	SelectedCategory(ctx context.Context) (string, error)
	SetSelectedCategory(ctx context.Context, category string) error
}

// ErrSuperseded is returned by a Search or Append whose page arrived after a
// newer Search had started. The page is discarded.
var ErrSuperseded = errors.New("search: superseded by a newer search")

// RetryableError is returned once every attempt failed. Params are the ones
// Retry will replay.
type RetryableError struct {
	Params   Params
	Attempts int
	Err      error
}

func (e *RetryableError) Error() string {
	return fmt.Sprintf("search failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *RetryableError) Unwrap() error { return e.Err }

type Option func(*Session)

func WithCollection(name string) Option {
	return func(s *Session) { s.collection = name }
}

// WithPresets adds or overrides category presets.
func WithPresets(extra ...Preset) Option {
	return func(s *Session) { s.extra = append(s.extra, extra...) }
}

// WithRetry sets the retry count and the linear backoff base.
func WithRetry(retries int, base time.Duration) Option {
	return func(s *Session) {
		if retries >= 0 {
			s.retries = retries
		}
		if base >= 0 {
			s.retryBase = base
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithSleeper replaces the backoff sleep.
func WithSleeper(fn func(context.Context, time.Duration) error) Option {
	return func(s *Session) {
		if fn != nil {
			s.sleep = fn
		}
	}
}

// Session owns the current query and its loaded results. Methods are safe
// for concurrent use; Append additionally refuses to overlap itself.
type Session struct {
	catalog   Catalog
	prefs     Prefs
	builder   *Builder
	logger    *slog.Logger
	retries   int
	retryBase time.Duration
	sleep     func(context.Context, time.Duration) error

	collection string
	extra      []Preset

	mu        sync.Mutex
	params    Params
	attempted Params
	results   []catalog.Doc
	numFound  int
	loaded    bool
	// gen counts started searches; results from an older generation are dropped
	gen uint64

	appending atomic.Bool
}

func New(cat Catalog, prefs Prefs, opts ...Option) *Session {
	s := &Session{
		catalog:    cat,
		prefs:      prefs,
		logger:     slog.Default(),
		retries:    DefaultRetries,
		retryBase:  DefaultRetryBase,
		sleep:      sleepCtx,
		collection: catalog.DefaultCollection,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.builder = NewBuilder(s.collection, s.extra...)
	return s
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (s *Session) Builder() *Builder { return s.builder }

// InitialCategory returns the persisted category when it names a known
// preset, else DefaultCategory.
func (s *Session) InitialCategory(ctx context.Context) string {
	if s.prefs == nil {
		return DefaultCategory
	}
	name, err := s.prefs.SelectedCategory(ctx)
	if err != nil {
		s.logger.Warn("failed to read selected category", slog.Any("err", err))
		return DefaultCategory
	}
	if p, ok := s.builder.Preset(name); ok {
		return p.Name
	}
	return DefaultCategory
}

// Search replaces the result list with page p.Page (default 1) of p.
func (s *Session) Search(ctx context.Context, p Params) (catalog.SearchPage, error) {
	if p.Page < 1 {
		p.Page = 1
	}
	s.mu.Lock()
	prevCategory := s.params.Category
	s.attempted = p
	s.gen++
	gen := s.gen
	s.mu.Unlock()

	page, err := s.fetch(ctx, p)

	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		s.logger.Debug("dropping superseded search page", slog.Int("page", p.Page), slog.Any("err", err))
		return catalog.SearchPage{}, ErrSuperseded
	}
	if err != nil {
		s.mu.Unlock()
		return catalog.SearchPage{}, err
	}
	s.params = p
	s.results = page.Docs
	s.numFound = page.NumFound
	s.loaded = true
	s.mu.Unlock()

	if s.prefs != nil && p.Category != "" && p.Category != prevCategory {
		if err := s.prefs.SetSelectedCategory(ctx, p.Category); err != nil {
			s.logger.Warn("failed to persist category", slog.Any("err", err))
		}
	}
	return page, nil
}

// NextPage loads the page after the current one, if any.
func (s *Session) NextPage(ctx context.Context) (catalog.SearchPage, error) {
	s.mu.Lock()
	p := s.params
	more := s.hasMoreLocked()
	s.mu.Unlock()
	if !more {
		return s.currentPage(), nil
	}
	p.Page++
	return s.Search(ctx, p)
}

// PrevPage loads the page before the current one, if any.
func (s *Session) PrevPage(ctx context.Context) (catalog.SearchPage, error) {
	s.mu.Lock()
	p := s.params
	s.mu.Unlock()
	if p.Page <= 1 {
		return s.currentPage(), nil
	}
	p.Page--
	return s.Search(ctx, p)
}

// Append loads the next page and appends its results. A call made while
// another Append is running returns false without fetching. If a Search
// starts before the page arrives, the page is dropped with ErrSuperseded.
func (s *Session) Append(ctx context.Context) (bool, error) {
	if !s.appending.CompareAndSwap(false, true) {
		s.logger.Debug("append already in flight")
		return false, nil
	}
	defer s.appending.Store(false)

	s.mu.Lock()
	p := s.params
	if !s.hasMoreLocked() {
		s.mu.Unlock()
		return false, nil
	}
	p.Page++
	s.attempted = p
	gen := s.gen
	s.mu.Unlock()

	page, err := s.fetch(ctx, p)

	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		s.logger.Debug("dropping appended page of a replaced search", slog.Int("page", p.Page), slog.Any("err", err))
		return false, ErrSuperseded
	}
	if err != nil {
		s.mu.Unlock()
		return false, err
	}
	s.params = p
	s.results = append(s.results, page.Docs...)
	s.numFound = page.NumFound
	s.mu.Unlock()
	return true, nil
}

// Retry replays the last attempted params.
func (s *Session) Retry(ctx context.Context) (catalog.SearchPage, error) {
	s.mu.Lock()
	p := s.attempted
	s.mu.Unlock()
	return s.Search(ctx, p)
}

// HasMore reports whether pages remain after the last loaded one.
func (s *Session) HasMore() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hasMoreLocked()
}

func (s *Session) hasMoreLocked() bool {
	return s.loaded && s.params.Page*PageSize < s.numFound
}

// Results returns a copy of every loaded result.
func (s *Session) Results() []catalog.Doc {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]catalog.Doc, len(s.results))
	copy(out, s.results)
	return out
}

// Params returns the params of the last successful load.
func (s *Session) Params() Params {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.params
}

// NumFound is the total hit count reported by the catalog.
func (s *Session) NumFound() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.numFound
}

func (s *Session) currentPage() catalog.SearchPage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return catalog.SearchPage{NumFound: s.numFound, Page: s.params.Page, Rows: PageSize, Docs: s.results}
}

// fetch runs one search with linear backoff: attempt n waits n × retryBase.
func (s *Session) fetch(ctx context.Context, p Params) (catalog.SearchPage, error) {
	q := catalog.Query{Q: s.builder.BuildQuery(p), Page: p.Page, PageSize: PageSize}
	s.logger.Debug("search", slog.String("q", q.Q), slog.Int("page", q.Page))

	var err error
	for attempt := 0; attempt <= s.retries; attempt++ {
		if attempt > 0 {
			delay := time.Duration(attempt) * s.retryBase
			s.logger.Warn("search failed, retrying", slog.Int("attempt", attempt), slog.Duration("delay", delay), slog.Any("err", err))
			if sleepErr := s.sleep(ctx, delay); sleepErr != nil {
				return catalog.SearchPage{}, sleepErr
			}
		}
		var page catalog.SearchPage
		page, err = s.catalog.Search(ctx, q)
		if err == nil {
			return page, nil
		}
		if ctx.Err() != nil {
			return catalog.SearchPage{}, ctx.Err()
		}
	}
	s.logger.Error("search gave up", slog.String("q", q.Q), slog.Any("err", err))
	return catalog.SearchPage{}, &RetryableError{Params: p, Attempts: s.retries + 1, Err: err}
}
