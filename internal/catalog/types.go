package catalog

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// Text is a metadata field the archive returns either as a scalar or as a
// list of scalars. Lists are joined with "; ".
type Text string

func (t *Text) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*t = ""
		return nil
	}
	switch b[0] {
	case '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*t = Text(strings.TrimSpace(s))
	case '[':
		var raw []json.RawMessage
		if err := json.Unmarshal(b, &raw); err != nil {
			return err
		}
		parts := make([]string, 0, len(raw))
		for _, r := range raw {
			var one Text
			if err := one.UnmarshalJSON(r); err != nil {
				return err
			}
			if one != "" {
				parts = append(parts, string(one))
			}
		}
		*t = Text(strings.Join(parts, "; "))
	default:
		// numbers and booleans
		*t = Text(string(b))
	}
	return nil
}

func (t Text) String() string { return string(t) }

// Int parses the leading integer of the field, e.g. "1894" or "1894-03-01".
func (t Text) Int() int {
	s := strings.TrimSpace(string(t))
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	n, _ := strconv.Atoi(s[:end])
	return n
}

// Doc is one search hit.
type Doc struct {
	Identifier  string `json:"identifier"`
	Title       Text   `json:"title"`
	Year        Text   `json:"year"`
	Creator     Text   `json:"creator"`
	Date        Text   `json:"date"`
	Language    Text   `json:"language"`
	Runtime     Text   `json:"runtime"`
	Description Text   `json:"description"`
	Subject     Text   `json:"subject"`
}

// SearchPage is one page of search results.
type SearchPage struct {
	NumFound int
	Page     int
	Rows     int
	Docs     []Doc
}

// HasMore reports whether pages follow this one.
func (p SearchPage) HasMore() bool {
	return p.Rows > 0 && p.Page*p.Rows < p.NumFound
}

type searchResponse struct {
	Response struct {
		NumFound int   `json:"numFound"`
		Start    int   `json:"start"`
		Docs     []Doc `json:"docs"`
	} `json:"response"`
}

// Metadata is the descriptive part of an item.
type Metadata struct {
	Identifier  Text `json:"identifier"`
	Title       Text `json:"title"`
	Creator     Text `json:"creator"`
	Language    Text `json:"language"`
	Date        Text `json:"date"`
	Year        Text `json:"year"`
	Narrator    Text `json:"narrator"`
	Reader      Text `json:"reader"`
	Runtime     Text `json:"runtime"`
	Genre       Text `json:"genre"`
	Description Text `json:"description"`
	Notes       Text `json:"notes"`
}

// ReadBy returns the narrator, falling back to the reader field.
func (m Metadata) ReadBy() string {
	if m.Narrator != "" {
		return string(m.Narrator)
	}
	return string(m.Reader)
}

// File is one manifest entry.
type File struct {
	Name     string `json:"name"`
	Format   string `json:"format"`
	Original string `json:"original,omitempty"`
	Title    Text   `json:"title,omitempty"`
	Length   Text   `json:"length,omitempty"`
	Track    Text   `json:"track,omitempty"`
}

// Item is a catalog entry with its manifest.
type Item struct {
	Identifier string
	Metadata   Metadata
	Files      []File
}

type itemResponse struct {
	Metadata *Metadata `json:"metadata"`
	Files    []File    `json:"files"`
}

// Title returns the item title or its identifier when untitled.
func (i Item) Title() string {
	if i.Metadata.Title != "" {
		return string(i.Metadata.Title)
	}
	return i.Identifier
}

// Tags holds embedded tag values read from the head of an audio file.
type Tags struct {
	Title  string
	Album  string
	Artist string
	Format string
	Track  int
}
