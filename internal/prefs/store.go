// Package prefs persists lightweight user preferences: the selected search
// category and a short recently-viewed list.
package prefs

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

const (
	keyPrefix           = "tomes."
	keySelectedCategory = "selectedCategory"
	keyRecentlyViewed   = "recentlyViewed"

	// MaxRecent bounds the recently-viewed list.
	MaxRecent = 5
)

// Recent is one recently-viewed item.
type Recent struct {
	Identifier string `json:"identifier"`
	Title      string `json:"title"`
}

// Store is a key-scoped preference store backed by SQLite.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewStore opens (or creates) the store at dbPath. An empty path resolves to
// prefs.db in the state directory.
func NewStore(dbPath string, logger *slog.Logger) (*Store, error) {
	if dbPath == "" {
		var err error
		dbPath, err = defaultDBPath()
		if err != nil {
			return nil, fmt.Errorf("resolve prefs db path: %w", err)
		}
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}
	return open(dbPath, logger)
}

// OpenMemory opens a private in-memory store.
func OpenMemory(logger *slog.Logger) (*Store, error) {
	return open(":memory:", logger)
}

func open(dsn string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open prefs db: %w", err)
	}
	// a single connection keeps :memory: databases shared between calls
	db.SetMaxOpenConns(1)
	s := &Store{db: db, logger: logger}
	if err := s.ensureSchema(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func defaultDBPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "tomes", "state", "prefs.db"), nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS prefs (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);`)
	if err != nil {
		return fmt.Errorf("migrate prefs schema: %w", err)
	}
	return nil
}

func scoped(key string) string { return keyPrefix + key }

func (s *Store) get(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM prefs WHERE key = ?`, scoped(key)).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read pref %s: %w", key, err)
	}
	return v, true, nil
}

func (s *Store) set(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO prefs (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, scoped(key), value)
	if err != nil {
		return fmt.Errorf("write pref %s: %w", key, err)
	}
	return nil
}

func (s *Store) remove(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM prefs WHERE key = ?`, scoped(key)); err != nil {
		return fmt.Errorf("delete pref %s: %w", key, err)
	}
	return nil
}

// SelectedCategory returns the last selected search category, or "".
func (s *Store) SelectedCategory(ctx context.Context) (string, error) {
	v, _, err := s.get(ctx, keySelectedCategory)
	return v, err
}

func (s *Store) SetSelectedCategory(ctx context.Context, category string) error {
	return s.set(ctx, keySelectedCategory, strings.TrimSpace(category))
}

// RecentlyViewed returns the list most-recent-first. A malformed stored value
// is deleted and reported as an empty list.
func (s *Store) RecentlyViewed(ctx context.Context) ([]Recent, error) {
	raw, ok, err := s.get(ctx, keyRecentlyViewed)
	if err != nil || !ok {
		return nil, err
	}
	var list []Recent
	if err := json.Unmarshal([]byte(raw), &list); err != nil {
		s.logger.Warn("discarding corrupt recently viewed list", slog.Any("err", err))
		if rmErr := s.remove(ctx, keyRecentlyViewed); rmErr != nil {
			return nil, rmErr
		}
		return nil, nil
	}
	if len(list) > MaxRecent {
		list = list[:MaxRecent]
	}
	return list, nil
}

// AddRecentlyViewed puts the item at the front, dropping any earlier entry
// for the same identifier and anything past MaxRecent.
func (s *Store) AddRecentlyViewed(ctx context.Context, identifier, title string) error {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return nil
	}
	list, err := s.RecentlyViewed(ctx)
	if err != nil {
		return err
	}
	next := make([]Recent, 0, MaxRecent)
	next = append(next, Recent{Identifier: identifier, Title: title})
	for _, r := range list {
		if r.Identifier == identifier {
			continue
		}
		if len(next) == MaxRecent {
			break
		}
		next = append(next, r)
	}
	b, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("marshal recently viewed: %w", err)
	}
	return s.set(ctx, keyRecentlyViewed, string(b))
}

func (s *Store) ClearRecentlyViewed(ctx context.Context) error {
	return s.remove(ctx, keyRecentlyViewed)
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
