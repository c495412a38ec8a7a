package catalog

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/dhowden/tag"
)

// tagHeadBytes is enough to cover an ID3v2 header with a small embedded picture.
const tagHeadBytes = 256 << 10

// ReadTags reads the embedded tags at the head of a chapter file using a
// ranged request. Servers that ignore Range are read up to the same limit.
func (c *Client) ReadTags(ctx context.Context, rawURL string) (Tags, error) {
	resp, err := c.do(ctx, rawURL, http.Header{"Range": {fmt.Sprintf("bytes=0-%d", tagHeadBytes-1)}})
	if err != nil {
		return Tags{}, err
	}
	defer resp.Body.Close()
	head, err := io.ReadAll(io.LimitReader(resp.Body, tagHeadBytes))
	if err != nil {
		return Tags{}, fmt.Errorf("%w: read head: %w", ErrNetwork, err)
	}
	return readTags(head)
}

func readTags(head []byte) (Tags, error) {
	meta, err := tag.ReadFrom(bytes.NewReader(head))
	if err != nil {
		return Tags{}, fmt.Errorf("read tags: %w", err)
	}
	track, _ := meta.Track()
	return Tags{
		Title:  meta.Title(),
		Album:  meta.Album(),
		Artist: meta.Artist(),
		Format: string(meta.Format()),
		Track:  track,
	}, nil
}
