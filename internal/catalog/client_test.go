package catalog

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func newTestClient(url string, opts ...Option) *Client {
	c := New(append([]Option{WithBaseURL(url), WithRetry(2, 0)}, opts...)...)
	c.sleep = func(context.Context, time.Duration) error { return nil }
	return c
}

func TestClient_Search(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/advancedsearch.php" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		q := r.URL.Query()
		if q.Get("rows") != "24" || q.Get("page") != "2" || q.Get("output") != "json" {
			t.Errorf("unexpected paging params: %v", q)
		}
		if q.Get("sort[]") != "downloads desc" {
			t.Errorf("unexpected sort %q", q.Get("sort[]"))
		}
		if len(q["fl[]"]) != len(SearchFields) {
			t.Errorf("expected %d fields, got %v", len(SearchFields), q["fl[]"])
		}
		json.NewEncoder(w).Encode(map[string]any{
			"response": map[string]any{
				"numFound": 60,
				"docs": []map[string]any{
					{"identifier": "a", "title": "Alpha", "creator": []string{"One", "Two"}, "year": 1899},
				},
			},
		})
	}))
	defer server.Close()

	c := newTestClient(server.URL)
	page, err := c.Search(context.Background(), Query{Q: "collection:(librivoxaudio)", Page: 2})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if page.NumFound != 60 || len(page.Docs) != 1 {
		t.Fatalf("unexpected page %+v", page)
	}
	doc := page.Docs[0]
	if doc.Creator != "One; Two" {
		t.Errorf("expected joined creators, got %q", doc.Creator)
	}
	if doc.Year.Int() != 1899 {
		t.Errorf("expected year 1899, got %q", doc.Year)
	}
	if !page.HasMore() {
		t.Error("page 2 of 60 at 24 rows should have more")
	}
}

func TestClient_ItemNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("{}"))
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).Item(context.Background(), "missing")
	if !IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestClient_EmptyBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer server.Close()
	c := newTestClient(server.URL)

	_, err := c.Search(context.Background(), Query{Q: "whale"})
	if !IsNetwork(err) || IsNotFound(err) {
		t.Fatalf("empty search response should be a network error, got %v", err)
	}
	_, err = c.Item(context.Background(), "missing")
	if !IsNotFound(err) || IsNetwork(err) {
		t.Fatalf("empty metadata response should be not found, got %v", err)
	}
}

func TestClient_ItemInvalidIdentifier(t *testing.T) {
	if _, err := New().Item(context.Background(), "  "); err != ErrInvalidIdentifier {
		t.Fatalf("expected ErrInvalidIdentifier, got %v", err)
	}
}

func TestClient_ItemRetriesTransient(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"metadata": map[string]any{"title": "Book", "creator": "Someone"},
			"files":    []map[string]any{{"name": "01.mp3", "format": "VBR MP3"}},
		})
	}))
	defer server.Close()

	c := newTestClient(server.URL)
	item, err := c.Item(context.Background(), "book")
	if err != nil {
		t.Fatalf("Item failed: %v", err)
	}
	if item.Title() != "Book" || len(item.Files) != 1 {
		t.Fatalf("unexpected item %+v", item)
	}
	if calls.Load() != 3 {
		t.Fatalf("expected 3 calls, got %d", calls.Load())
	}

	// cached
	if _, err := c.Item(context.Background(), "book"); err != nil {
		t.Fatalf("cached Item failed: %v", err)
	}
	if calls.Load() != 3 {
		t.Fatalf("expected cache hit, got %d calls", calls.Load())
	}
}

func TestClient_ItemGivesUpAfterRetries(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).Item(context.Background(), "book")
	if !IsNetwork(err) {
		t.Fatalf("expected network error, got %v", err)
	}
	if calls.Load() != 3 {
		t.Fatalf("expected 1 attempt + 2 retries, got %d", calls.Load())
	}
}

func TestClient_ItemNoRetryOn404(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).Item(context.Background(), "book")
	if !IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("404 should not be retried, got %d calls", calls.Load())
	}
}

func TestClient_TransportFailureIsNetwork(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	_, err := newTestClient(url, WithRetry(0, 0)).Item(context.Background(), "book")
	if !IsNetwork(err) {
		t.Fatalf("expected network error, got %v", err)
	}
}

func id3Frame(id, text string) []byte {
	body := append([]byte{0}, []byte(text)...)
	frame := make([]byte, 10, 10+len(body))
	copy(frame, id)
	binary.BigEndian.PutUint32(frame[4:8], uint32(len(body)))
	return append(frame, body...)
}

func id3Head(frames ...[]byte) []byte {
	var payload []byte
	for _, f := range frames {
		payload = append(payload, f...)
	}
	n := len(payload)
	header := []byte{'I', 'D', '3', 3, 0, 0,
		byte(n >> 21 & 0x7f), byte(n >> 14 & 0x7f), byte(n >> 7 & 0x7f), byte(n & 0x7f)}
	return append(header, payload...)
}

func TestClient_ReadTags(t *testing.T) {
	head := id3Head(id3Frame("TIT2", "Chapter One"), id3Frame("TPE1", "A. Reader"))
	var gotRange string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotRange = r.Header.Get("Range")
		w.WriteHeader(http.StatusPartialContent)
		w.Write(head)
	}))
	defer server.Close()

	tags, err := newTestClient(server.URL).ReadTags(context.Background(), server.URL+"/download/x/01.mp3")
	if err != nil {
		t.Fatalf("ReadTags failed: %v", err)
	}
	if gotRange == "" {
		t.Error("expected a ranged request")
	}
	if tags.Title != "Chapter One" || tags.Artist != "A. Reader" {
		t.Fatalf("unexpected tags %+v", tags)
	}
}

func TestTextUnmarshal(t *testing.T) {
	tests := []struct {
		in   string
		want Text
	}{
		{`"plain"`, "plain"},
		{`["a","b"]`, "a; b"},
		{`1894`, "1894"},
		{`null`, ""},
		{`[" x ", ""]`, "x"},
	}
	for _, tt := range tests {
		var got Text
		if err := json.Unmarshal([]byte(tt.in), &got); err != nil {
			t.Fatalf("unmarshal %s: %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("unmarshal %s = %q want %q", tt.in, got, tt.want)
		}
	}
	if Text("1894-03-01").Int() != 1894 {
		t.Error("expected leading year to parse")
	}
}
