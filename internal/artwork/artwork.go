// Package artwork turns cover images into ANSI block art for the player view.
package artwork

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

var ErrInvalid = errors.New("invalid artwork data")

// Fetcher loads raw cover bytes for an item.
type Fetcher interface {
	Cover(ctx context.Context, identifier string) ([]byte, string, error)
}

type cacheKey struct {
	id            string
	width, height int
}

// Loader fetches covers and keeps rendered art in memory.
type Loader struct {
	fetcher Fetcher
	cache   *lru.Cache[cacheKey, string]
	logger  *slog.Logger
}

// NewLoader returns a loader caching up to size rendered covers.
func NewLoader(fetcher Fetcher, size int, logger *slog.Logger) *Loader {
	if size <= 0 {
		size = 32
	}
	if logger == nil {
		logger = slog.Default()
	}
	cache, _ := lru.New[cacheKey, string](size)
	return &Loader{fetcher: fetcher, cache: cache, logger: logger}
}

// Load returns the rendered cover for identifier. On any failure it returns
// a placeholder together with the error.
func (l *Loader) Load(ctx context.Context, identifier string, width, height int) (string, error) {
	key := cacheKey{identifier, width, height}
	if art, ok := l.cache.Get(key); ok {
		return art, nil
	}
	data, _, err := l.fetcher.Cover(ctx, identifier)
	if err != nil {
		l.logger.Debug("cover fetch failed", slog.String("id", identifier), slog.Any("err", err))
		return Placeholder(width, height), err
	}
	art, err := ConvertToANSI(data, width, height)
	if err != nil {
		l.logger.Debug("cover decode failed", slog.String("id", identifier), slog.Any("err", err))
		return Placeholder(width, height), err
	}
	l.cache.Add(key, art)
	return art, nil
}

// ConvertToANSI renders image data with upper half blocks, two pixel rows
// per terminal line, in 256-colour mode.
func ConvertToANSI(data []byte, width, height int) (string, error) {
	if width <= 0 {
		width = 24
	}
	if height <= 0 {
		height = 12
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("decode image: %w", err)
	}
	bounds := img.Bounds()
	imgW, imgH := bounds.Dx(), bounds.Dy()
	if imgW == 0 || imgH == 0 {
		return "", ErrInvalid
	}

	// each cell is one pixel wide and two pixels tall
	rows := height * 2
	cols := width
	aspect := float64(imgW) / float64(imgH)
	if fit := int(float64(cols) / aspect); fit < rows {
		rows = max(2, fit-fit%2)
	} else {
		cols = max(1, int(float64(rows)*aspect))
	}

	sample := func(x, y int) (int, bool) {
		sx := min(x*imgW/cols, imgW-1)
		sy := min(y*imgH/rows, imgH-1)
		r, g, b, a := img.At(bounds.Min.X+sx, bounds.Min.Y+sy).RGBA()
		if a>>8 < 128 {
			return 0, false
		}
		return rgbTo256(uint8(r>>8), uint8(g>>8), uint8(b>>8)), true
	}

	var out strings.Builder
	for y := 0; y < rows; y += 2 {
		for x := 0; x < cols; x++ {
			top, topOK := sample(x, y)
			bottom, bottomOK := sample(x, y+1)
			switch {
			case topOK && bottomOK:
				fmt.Fprintf(&out, "\x1b[38;5;%dm\x1b[48;5;%dm▀", top, bottom)
			case topOK:
				fmt.Fprintf(&out, "\x1b[38;5;%dm▀", top)
			case bottomOK:
				fmt.Fprintf(&out, "\x1b[38;5;%dm▄", bottom)
			default:
				out.WriteString(" ")
			}
			out.WriteString("\x1b[0m")
		}
		if y+2 < rows {
			out.WriteString("\n")
		}
	}
	return out.String(), nil
}

// rgbTo256 converts RGB to the closest 256-color palette index.
func rgbTo256(r, g, b uint8) int {
	if r == g && g == b {
		if r < 8 {
			return 16
		}
		if r > 248 {
			return 231
		}
		return int((r-8)/10) + 232
	}
	ri := int(r) * 5 / 255
	gi := int(g) * 5 / 255
	bi := int(b) * 5 / 255
	return 16 + 36*ri + 6*gi + bi
}

// Placeholder draws an empty framed box with a book glyph.
func Placeholder(width, height int) string {
	width = max(width, 4)
	height = max(height, 3)

	var out strings.Builder
	out.WriteString("╭" + strings.Repeat("─", width-2) + "╮\n")
	for y := 1; y < height-1; y++ {
		inner := strings.Repeat(" ", width-2)
		if y == height/2 {
			pad := (width - 3) / 2
			inner = strings.Repeat(" ", pad) + "≡" + strings.Repeat(" ", width-3-pad)
		}
		out.WriteString("│" + inner + "│\n")
	}
	out.WriteString("╰" + strings.Repeat("─", width-2) + "╯")
	return out.String()
}
