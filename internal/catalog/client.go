package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	DefaultBaseURL    = "https://archive.org"
	DefaultCollection = "librivoxaudio"
	DefaultPageSize   = 24
	defaultUserAgent  = "tomes/0.1"
	defaultRetries    = 2
	defaultRetryDelay = 750 * time.Millisecond
	defaultCacheSize  = 64
	searchSort        = "downloads desc"
)

// SearchFields are the fields requested from the search endpoint.
var SearchFields = []string{"identifier", "title", "year", "creator", "date", "language", "runtime", "description", "subject"}

// Query is one request against the search endpoint.
type Query struct {
	Q        string
	Page     int
	PageSize int
}

// Client talks to the archive's search and metadata endpoints.
type Client struct {
	baseURL    string
	http       *http.Client
	userAgent  string
	retries    int
	retryDelay time.Duration
	dedupe     bool
	cache      *lru.Cache[string, Item]
	logger     *slog.Logger
	sleep      func(ctx context.Context, d time.Duration) error
}

// Option configures a Client.
type Option func(*Client)

func WithBaseURL(base string) Option {
	return func(c *Client) {
		if base = strings.TrimSpace(base); base != "" {
			c.baseURL = strings.TrimRight(base, "/")
		}
	}
}

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.http = client
		}
	}
}

func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// WithRetry sets how many times a transient metadata failure is retried and
// the fixed delay between attempts.
func WithRetry(retries int, delay time.Duration) Option {
	return func(c *Client) {
		if retries >= 0 {
			c.retries = retries
		}
		if delay >= 0 {
			c.retryDelay = delay
		}
	}
}

func WithCacheSize(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.cache, _ = lru.New[string, Item](n)
		}
	}
}

// WithDedupe keeps one derivative per original when building chapters.
func WithDedupe(on bool) Option {
	return func(c *Client) { c.dedupe = on }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

func New(opts ...Option) *Client {
	cache, _ := lru.New[string, Item](defaultCacheSize)
	c := &Client{
		baseURL:    DefaultBaseURL,
		http:       &http.Client{Timeout: 15 * time.Second},
		userAgent:  defaultUserAgent,
		retries:    defaultRetries,
		retryDelay: defaultRetryDelay,
		cache:      cache,
		logger:     slog.Default(),
		sleep:      sleepCtx,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
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

// DownloadURL addresses a file of an item.
func (c *Client) DownloadURL(identifier, name string) string {
	segments := strings.Split(name, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return c.baseURL + "/download/" + url.PathEscape(identifier) + "/" + strings.Join(segments, "/")
}

// CoverURL addresses the item's image service thumbnail.
func (c *Client) CoverURL(identifier string) string {
	return c.baseURL + "/services/img/" + url.PathEscape(identifier)
}

// DetailsURL is the item's public landing page.
func (c *Client) DetailsURL(identifier string) string {
	return c.baseURL + "/details/" + url.PathEscape(identifier)
}

// Search runs one query against the search endpoint. It does not retry.
func (c *Client) Search(ctx context.Context, q Query) (SearchPage, error) {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize <= 0 {
		q.PageSize = DefaultPageSize
	}
	params := url.Values{}
	params.Set("q", q.Q)
	for _, f := range SearchFields {
		params.Add("fl[]", f)
	}
	params.Set("sort[]", searchSort)
	params.Set("rows", strconv.Itoa(q.PageSize))
	params.Set("page", strconv.Itoa(q.Page))
	params.Set("output", "json")

	var payload searchResponse
	start := time.Now()
	if err := c.getJSON(ctx, c.baseURL+"/advancedsearch.php?"+params.Encode(), &payload); err != nil {
		c.logger.Warn("catalog search failed", slog.String("q", q.Q), slog.Int("page", q.Page), slog.Any("err", err))
		return SearchPage{}, err
	}
	c.logger.Debug("catalog search", slog.String("q", q.Q), slog.Int("page", q.Page),
		slog.Int("found", payload.Response.NumFound), slog.Duration("latency", time.Since(start)))
	return SearchPage{
		NumFound: payload.Response.NumFound,
		Page:     q.Page,
		Rows:     q.PageSize,
		Docs:     payload.Response.Docs,
	}, nil
}

// Item fetches item metadata and manifest, retrying transient failures with
// a fixed delay.
func (c *Client) Item(ctx context.Context, identifier string) (Item, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return Item{}, ErrInvalidIdentifier
	}
	if item, ok := c.cache.Get(identifier); ok {
		return item, nil
	}

	var lastErr error
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			c.logger.Debug("retrying item fetch", slog.String("identifier", identifier),
				slog.Int("attempt", attempt), slog.Any("err", lastErr))
			if err := c.sleep(ctx, c.retryDelay); err != nil {
				return Item{}, fmt.Errorf("%w: %w", ErrNetwork, err)
			}
		}
		item, err := c.fetchItem(ctx, identifier)
		if err == nil {
			c.cache.Add(identifier, item)
			return item, nil
		}
		lastErr = err
		if !isTransient(err) {
			break
		}
	}
	c.logger.Warn("item fetch failed", slog.String("identifier", identifier), slog.Any("err", lastErr))
	return Item{}, lastErr
}

func (c *Client) fetchItem(ctx context.Context, identifier string) (Item, error) {
	var payload itemResponse
	if err := c.getJSON(ctx, c.baseURL+"/metadata/"+url.PathEscape(identifier), &payload); err != nil {
		// the metadata endpoint answers unknown identifiers with nothing
		if errors.Is(err, errEmptyBody) {
			return Item{}, fmt.Errorf("%w: %s", ErrNotFound, identifier)
		}
		return Item{}, err
	}
	if payload.Metadata == nil {
		return Item{}, fmt.Errorf("%w: %s", ErrNotFound, identifier)
	}
	return Item{Identifier: identifier, Metadata: *payload.Metadata, Files: payload.Files}, nil
}

// Cover downloads the item's cover image.
func (c *Client) Cover(ctx context.Context, identifier string) ([]byte, string, error) {
	resp, err := c.do(ctx, c.CoverURL(identifier), nil)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, "", fmt.Errorf("%w: read cover: %w", ErrNetwork, err)
	}
	return data, resp.Header.Get("Content-Type"), nil
}

// statusError carries an HTTP status for retry classification.
type statusError struct {
	code int
	url  string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("%s returned status %d", e.url, e.code)
}

func (e *statusError) Unwrap() error {
	if e.code == http.StatusNotFound {
		return ErrNotFound
	}
	return ErrNetwork
}

type transportError struct{ err error }

func (e *transportError) Error() string { return "execute request: " + e.err.Error() }
func (e *transportError) Unwrap() []error {
	return []error{ErrNetwork, e.err}
}

func isTransient(err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		return se.code >= 500 || se.code == http.StatusTooManyRequests
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var te *transportError
	return errors.As(err, &te)
}

func (c *Client) do(ctx context.Context, rawURL string, header http.Header) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &transportError{err: err}
	}
	if resp.StatusCode >= 400 {
		_ = resp.Body.Close()
		return nil, &statusError{code: resp.StatusCode, url: req.URL.Path}
	}
	return resp, nil
}

func (c *Client) getJSON(ctx context.Context, rawURL string, dest any) error {
	resp, err := c.do(ctx, rawURL, http.Header{"Accept": {"application/json"}})
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &transportError{err: err}
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return fmt.Errorf("%w: %w", ErrNetwork, errEmptyBody)
	}
	if err := json.Unmarshal(body, dest); err != nil {
		return fmt.Errorf("%w: decode response: %w", ErrNetwork, err)
	}
	return nil
}
