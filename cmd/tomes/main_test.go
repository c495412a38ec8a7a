package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/tomes/tomes/internal/prefs"
)

type cliTestEnv struct {
	server     *httptest.Server
	configPath string
	prefsPath  string

	mu      sync.Mutex
	queries []string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()
	base := t.TempDir()
	t.Setenv("HOME", base)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(base, "config"))
	t.Setenv("NO_COLOR", "1")

	env := &cliTestEnv{prefsPath: filepath.Join(base, "prefs.db")}
	env.server = httptest.NewServer(http.HandlerFunc(env.serve))
	t.Cleanup(env.server.Close)

	env.configPath = filepath.Join(base, "config.toml")
	cfg := fmt.Sprintf(`
[catalog]
base_url = %q
retries = -1

[search]
retries = -1

[player]
mpv_path = %q

[prefs]
path = %q
`, env.server.URL, filepath.Join(base, "no-such-mpv"), env.prefsPath)
	if err := os.WriteFile(env.configPath, []byte(cfg), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return env
}

func (e *cliTestEnv) serve(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/advancedsearch.php":
		e.mu.Lock()
		e.queries = append(e.queries, r.URL.Query().Get("q"))
		e.mu.Unlock()
		json.NewEncoder(w).Encode(map[string]any{
			"response": map[string]any{
				"numFound": 30,
				"docs": []map[string]any{
					{"identifier": "moby_dick_librivox", "title": "Moby Dick", "creator": "Herman Melville", "year": "1851"},
					{"identifier": "leaves_of_grass", "title": "Leaves of Grass", "creator": []string{"Walt Whitman"}},
				},
			},
		})
	case r.URL.Path == "/metadata/moby_dick_librivox":
		json.NewEncoder(w).Encode(map[string]any{
			"metadata": map[string]any{"identifier": "moby_dick_librivox", "title": "Moby Dick", "creator": "Herman Melville", "narrator": "Stewart Wills"},
			"files": []map[string]any{
				{"name": "mobydick_001_melville.mp3", "format": "64Kbps MP3", "title": "Loomings"},
				{"name": "mobydick_002_melville.mp3", "format": "64Kbps MP3", "title": "The Carpet-Bag"},
				{"name": "mobydick_files.xml", "format": "Metadata"},
			},
		})
	case r.URL.Path == "/metadata/empty_item":
		json.NewEncoder(w).Encode(map[string]any{
			"metadata": map[string]any{"identifier": "empty_item", "title": "Empty"},
			"files":    []map[string]any{{"name": "cover.jpg", "format": "JPEG"}},
		})
	default:
		w.Write([]byte("{}"))
	}
}

func (e *cliTestEnv) lastQuery() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.queries) == 0 {
		return ""
	}
	return e.queries[len(e.queries)-1]
}

func (e *cliTestEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--config", e.configPath}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestLocationValues(t *testing.T) {
	cases := []struct {
		name   string
		id     string
		track  int
		resume string
		want   string
	}{
		{name: "empty", want: ""},
		{name: "id only", id: "moby", want: "id=moby"},
		{name: "id and track", id: "moby", track: 3, want: "id=moby&track=3"},
		{name: "resume wins", id: "other", resume: "?id=moby&track=2", want: "id=moby&track=2"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v, err := locationValues(tc.id, tc.track, tc.resume)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := v.Encode(); got != tc.want {
				t.Fatalf("got %q, want %q", got, tc.want)
			}
		})
	}
	if _, err := locationValues("", 0, "id=%zz"); err == nil {
		t.Fatal("expected parse error for malformed resume")
	}
}

func TestSearchCommand(t *testing.T) {
	env := setupCLITestEnv(t)
	out, err := env.run(t, "search", "whale", "--category", "fiction", "--filter", "english")
	if err != nil {
		t.Fatalf("search failed: %v\n%s", err, out)
	}
	q := env.lastQuery()
	for _, want := range []string{"collection:(librivoxaudio)", "subject:(fiction)", "whale", "language:(English)"} {
		if !strings.Contains(q, want) {
			t.Errorf("query %q missing %q", q, want)
		}
	}
	for _, want := range []string{"moby_dick_librivox", "Leaves of Grass", "1851", "Page 1, 30 results", "--page 2"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestSearchCommandRejectsUnknownInput(t *testing.T) {
	env := setupCLITestEnv(t)
	if _, err := env.run(t, "search", "--category", "westerns"); err == nil || !strings.Contains(err.Error(), "unknown category") {
		t.Fatalf("expected unknown category error, got %v", err)
	}
	if _, err := env.run(t, "search", "--filter", "loud"); err == nil || !strings.Contains(err.Error(), "unknown filter") {
		t.Fatalf("expected unknown filter error, got %v", err)
	}
}

func TestChaptersCommand(t *testing.T) {
	env := setupCLITestEnv(t)
	out, err := env.run(t, "chapters", "moby_dick_librivox", "--urls")
	if err != nil {
		t.Fatalf("chapters failed: %v\n%s", err, out)
	}
	for _, want := range []string{"Moby Dick", "read by Stewart Wills", "Loomings", "The Carpet-Bag", "/download/moby_dick_librivox/mobydick_001_melville.mp3"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "mobydick_files") {
		t.Errorf("metadata file listed as chapter:\n%s", out)
	}
}

func TestChaptersCommandErrors(t *testing.T) {
	env := setupCLITestEnv(t)
	if _, err := env.run(t, "chapters", "empty_item"); err == nil || !strings.Contains(err.Error(), "no playable audio") {
		t.Fatalf("expected empty catalog error, got %v", err)
	}
	if _, err := env.run(t, "chapters", "unknown"); err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("expected not found error, got %v", err)
	}
}

func TestRecentCommand(t *testing.T) {
	env := setupCLITestEnv(t)
	out, err := env.run(t, "recent")
	if err != nil || !strings.Contains(out, "Nothing viewed yet") {
		t.Fatalf("expected empty list, got %v\n%s", err, out)
	}

	store, err := prefs.NewStore(env.prefsPath, nil)
	if err != nil {
		t.Fatalf("open prefs: %v", err)
	}
	if err := store.AddRecentlyViewed(context.Background(), "moby_dick_librivox", "Moby Dick"); err != nil {
		t.Fatalf("add recent: %v", err)
	}
	store.Close()

	out, err = env.run(t, "recent")
	if err != nil || !strings.Contains(out, "moby_dick_librivox") {
		t.Fatalf("expected recent item, got %v\n%s", err, out)
	}

	if _, err := env.run(t, "recent", "--clear"); err != nil {
		t.Fatalf("clear failed: %v", err)
	}
	out, _ = env.run(t, "recent")
	if !strings.Contains(out, "Nothing viewed yet") {
		t.Fatalf("expected cleared list:\n%s", out)
	}
}

func TestDoctorReportsMissingMPV(t *testing.T) {
	env := setupCLITestEnv(t)
	out, err := env.run(t, "doctor")
	if err == nil || !strings.Contains(err.Error(), "1 check(s) failed") {
		t.Fatalf("expected one failed check, got %v\n%s", err, out)
	}
	for _, want := range []string{"mpv", "FAIL", "catalog", env.server.URL} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestVersionFlag(t *testing.T) {
	env := setupCLITestEnv(t)
	out, err := env.run(t, "--version")
	if err != nil || !strings.Contains(out, "tomes "+version) {
		t.Fatalf("unexpected version output %q (%v)", out, err)
	}
}
