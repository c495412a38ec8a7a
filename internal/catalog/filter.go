package catalog

import (
	"path"
	"strings"

	"github.com/samber/lo"
	"github.com/tomes/tomes/internal/playlist"
)

var audioFormatTokens = []string{"mp3", "ogg", "vorbis", "mpeg"}

var audioExtensions = map[string]bool{
	".mp3":  true,
	".ogg":  true,
	".oga":  true,
	".opus": true,
	".flac": true,
	".wav":  true,
	".m4a":  true,
	".m4b":  true,
	".aac":  true,
	".aiff": true,
	".wma":  true,
}

// Derivatives the archive mixes into audio manifests: archives, text,
// images, manifests, checksums and subtitles.
var excludedExtensions = map[string]bool{
	".zip":     true,
	".tar":     true,
	".gz":      true,
	".7z":      true,
	".rar":     true,
	".torrent": true,
	".txt":     true,
	".pdf":     true,
	".epub":    true,
	".htm":     true,
	".html":    true,
	".xml":     true,
	".json":    true,
	".sqlite":  true,
	".jpg":     true,
	".jpeg":    true,
	".png":     true,
	".gif":     true,
	".bmp":     true,
	".webp":    true,
	".md5":     true,
	".sha1":    true,
	".sfv":     true,
	".srt":     true,
	".vtt":     true,
	".nfo":     true,
	".log":     true,
	".m3u":     true,
	".cue":     true,
}

func extension(name string) string {
	return strings.ToLower(path.Ext(name))
}

func hasAudioToken(s string) bool {
	s = strings.ToLower(s)
	for _, tok := range audioFormatTokens {
		if strings.Contains(s, tok) {
			return true
		}
	}
	return false
}

func looksLikeAudioName(name string) bool {
	ext := extension(name)
	if excludedExtensions[ext] {
		return false
	}
	return audioExtensions[ext] || hasAudioToken(name)
}

// IsAudio applies the three-way audio test to one manifest entry: declared
// format, filename extension, and (when present) the original it derives from.
func IsAudio(f File) bool {
	if !hasAudioToken(f.Format) {
		return false
	}
	if excludedExtensions[extension(f.Name)] {
		return false
	}
	if f.Original != "" && !looksLikeAudioName(f.Original) {
		return false
	}
	return true
}

// AudioFiles keeps the playable entries of a manifest in manifest order.
func AudioFiles(files []File) []File {
	return lo.Filter(files, func(f File, _ int) bool { return IsAudio(f) })
}

// DedupeDerivatives keeps the first file per original when an item carries
// several encodings of the same source.
func DedupeDerivatives(files []File) []File {
	return lo.UniqBy(files, func(f File) string {
		if f.Original != "" {
			return f.Original
		}
		return f.Name
	})
}

// ChapterTitle is the manifest title or the filename without extension.
func ChapterTitle(f File) string {
	if t := strings.TrimSpace(string(f.Title)); t != "" {
		return t
	}
	base := path.Base(f.Name)
	return strings.TrimSuffix(base, path.Ext(base))
}

// Chapters filters a manifest and maps the playable entries to chapters
// addressed under the item's download path.
func (c *Client) Chapters(item Item) []playlist.Chapter {
	files := AudioFiles(item.Files)
	if c.dedupe {
		files = DedupeDerivatives(files)
	}
	return lo.Map(files, func(f File, _ int) playlist.Chapter {
		return playlist.Chapter{Title: ChapterTitle(f), URL: c.DownloadURL(item.Identifier, f.Name)}
	})
}
