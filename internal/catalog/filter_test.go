package catalog

import (
	"reflect"
	"testing"
)

func TestIsAudio(t *testing.T) {
	tests := []struct {
		name string
		file File
		want bool
	}{
		{"vbr mp3", File{Name: "chapter01.mp3", Format: "VBR MP3"}, true},
		{"64kbps mp3", File{Name: "chapter01_64kb.mp3", Format: "64Kbps MP3", Original: "chapter01.mp3"}, true},
		{"ogg vorbis", File{Name: "chapter01.ogg", Format: "Ogg Vorbis", Original: "chapter01.mp3"}, true},
		{"cover jpeg", File{Name: "cover.jpg", Format: "JPEG"}, false},
		{"checksums", File{Name: "checksums.md5", Format: "Checksums"}, false},
		{"torrent", File{Name: "book_archive.torrent", Format: "Archive BitTorrent"}, false},
		{"mp3 zip", File{Name: "book_64kb_mp3.zip", Format: "64Kbps MP3 ZIP"}, false},
		{"mpeg subtitles", File{Name: "chapter01.asr.srt", Format: "MPEG Subtitles"}, false},
		{"spectrogram from audio", File{Name: "chapter01.png", Format: "PNG", Original: "chapter01.mp3"}, false},
		{"audio format with text original", File{Name: "chapter01.mp3", Format: "VBR MP3", Original: "book.txt"}, false},
		{"audio format with image original", File{Name: "clip.mp3", Format: "MP3", Original: "scan.jpg"}, false},
		{"flac original", File{Name: "chapter01.mp3", Format: "VBR MP3", Original: "chapter01.flac"}, true},
		{"metadata xml", File{Name: "book_meta.xml", Format: "Metadata"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsAudio(tt.file); got != tt.want {
				t.Fatalf("IsAudio(%+v) = %v, want %v", tt.file, got, tt.want)
			}
		})
	}
}

func TestAudioFilesIdempotentAndOrdered(t *testing.T) {
	manifest := []File{
		{Name: "03.mp3", Format: "VBR MP3"},
		{Name: "cover.jpg", Format: "JPEG"},
		{Name: "01.mp3", Format: "VBR MP3"},
		{Name: "book.torrent", Format: "Archive BitTorrent"},
		{Name: "02.ogg", Format: "Ogg Vorbis"},
	}
	once := AudioFiles(manifest)
	twice := AudioFiles(once)
	if !reflect.DeepEqual(once, twice) {
		t.Fatalf("filter not idempotent: %v vs %v", once, twice)
	}
	var names []string
	for _, f := range once {
		names = append(names, f.Name)
	}
	want := []string{"03.mp3", "01.mp3", "02.ogg"}
	if !reflect.DeepEqual(names, want) {
		t.Fatalf("got %v want %v", names, want)
	}
}

func TestChaptersFromManifest(t *testing.T) {
	c := New(WithBaseURL("https://archive.test"))
	item := Item{
		Identifier: "X",
		Files: []File{
			{Name: "cover.jpg", Format: "JPEG"},
			{Name: "01.mp3", Format: "VBR MP3"},
			{Name: "02.mp3", Format: "VBR MP3", Title: "The Second"},
			{Name: "checksums.md5", Format: "Checksums"},
		},
	}
	got := c.Chapters(item)
	if len(got) != 2 {
		t.Fatalf("expected 2 chapters, got %d", len(got))
	}
	if got[0].Title != "01" || got[0].URL != "https://archive.test/download/X/01.mp3" {
		t.Fatalf("unexpected first chapter %+v", got[0])
	}
	if got[1].Title != "The Second" {
		t.Fatalf("manifest title should win, got %q", got[1].Title)
	}
}

func TestDedupeDerivatives(t *testing.T) {
	files := []File{
		{Name: "a_64kb.mp3", Format: "64Kbps MP3", Original: "a.mp3"},
		{Name: "a.mp3", Format: "VBR MP3"},
		{Name: "a.ogg", Format: "Ogg Vorbis", Original: "a.mp3"},
		{Name: "b.mp3", Format: "VBR MP3"},
	}
	got := DedupeDerivatives(files)
	if len(got) != 2 || got[0].Name != "a_64kb.mp3" || got[1].Name != "b.mp3" {
		t.Fatalf("unexpected dedupe result %+v", got)
	}

	c := New(WithDedupe(true))
	if n := len(c.Chapters(Item{Identifier: "x", Files: files})); n != 2 {
		t.Fatalf("expected 2 chapters with dedupe, got %d", n)
	}
	if n := len(New().Chapters(Item{Identifier: "x", Files: files})); n != 4 {
		t.Fatalf("expected 4 chapters without dedupe, got %d", n)
	}
}

func TestDownloadURLEscapesSegments(t *testing.T) {
	c := New(WithBaseURL("https://archive.test/"))
	got := c.DownloadURL("my item", "disc 1/ch #1.mp3")
	want := "https://archive.test/download/my%20item/disc%201/ch%20%231.mp3"
	if got != want {
		t.Fatalf("got %s want %s", got, want)
	}
	if c.CoverURL("x") != "https://archive.test/services/img/x" {
		t.Fatalf("unexpected cover url %s", c.CoverURL("x"))
	}
}
