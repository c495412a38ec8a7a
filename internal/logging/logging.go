package logging

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// Setup creates a slog.Logger that writes to a dated log file in the user
// state directory. Every record carries the session_id of this run. The
// caller is responsible for closing the file.
func Setup(level slog.Level) (*slog.Logger, *os.File, error) {
	stateDir, err := StateDir()
	if err != nil {
		return nil, nil, fmt.Errorf("state dir: %w", err)
	}
	return SetupIn(stateDir, level, time.Now())
}

// SetupIn is Setup with an explicit directory and date.
func SetupIn(dir string, level slog.Level, now time.Time) (*slog.Logger, *os.File, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("create state dir: %w", err)
	}
	path := filepath.Join(dir, FileName(now))
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	handler := slog.NewTextHandler(f, &slog.HandlerOptions{Level: level})
	return slog.New(handler).With(slog.String("session_id", uuid.NewString())), f, nil
}

// FileName returns the log file name for the given day.
func FileName(now time.Time) string {
	return fmt.Sprintf("tomes-%s.log", now.Format("20060102"))
}

// StateDir returns the path to the tomes state directory (~/.config/tomes/state)
func StateDir() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "tomes", "state"), nil
}
