// Package chunker splits document text into fixed-size windows.
//
// Sizes and offsets are measured in characters (runes), never bytes, so a
// multi-byte character is never split across two chunks.
package chunker

import (
	"errors"
	"fmt"
	"unicode/utf8"
)

// Defaults used when the configuration leaves chunking unset.
const (
	DefaultSize    = 1000
	DefaultOverlap = 150
)

// ErrInvalidWindow is returned for a size/overlap pair that would not make
// forward progress.
var ErrInvalidWindow = errors.New("invalid chunk window")

// Window is a half-open rune range [Start, End) of the source text.
type Window struct {
	Start int
	End   int
}

// Len returns the window length in runes.
func (w Window) Len() int { return w.End - w.Start }

// Segment is a window together with the text it covers.
type Segment struct {
	Window
	Text string
}

// Chunker produces contiguous windows of at most Size runes. The next start
// is max(end-Overlap, end), which is always end, so windows never share runes;
// Overlap is validated and carried for configuration compatibility.
type Chunker struct {
	size    int
	overlap int
}

// New returns a Chunker. size must be positive and overlap must lie in
// [0, size).
func New(size, overlap int) (*Chunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: size must be positive, got %d", ErrInvalidWindow, size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("%w: overlap must be in [0, %d), got %d", ErrInvalidWindow, size, overlap)
	}
	return &Chunker{size: size, overlap: overlap}, nil
}

// Chunk splits text with a one-off Chunker.
func Chunk(text string, size, overlap int) ([]string, error) {
	c, err := New(size, overlap)
	if err != nil {
		return nil, err
	}
	return c.Split(text), nil
}

// Windows computes the windows for text with a one-off Chunker.
func Windows(text string, size, overlap int) ([]Window, error) {
	c, err := New(size, overlap)
	if err != nil {
		return nil, err
	}
	return c.Windows(text), nil
}

// Size returns the window size in runes.
func (c *Chunker) Size() int { return c.size }

// Overlap returns the configured overlap.
func (c *Chunker) Overlap() int { return c.overlap }

// Windows returns the rune windows covering text. Window k covers
// [start_k, min(start_k+size, n)) and the next window starts at end_k.
// The final window always ends at n. Empty input yields no windows.
func (c *Chunker) Windows(text string) []Window {
	return c.windows(utf8.RuneCountInString(text))
}

func (c *Chunker) windows(n int) []Window {
	if n == 0 {
		return nil
	}
	var out []Window
	for start := 0; ; {
		end := start + c.size
		if end > n {
			end = n
		}
		out = append(out, Window{Start: start, End: end})
		if end == n {
			return out
		}
		start = max(end-c.overlap, end)
	}
}

// Segments returns every window of text with the text it covers.
func (c *Chunker) Segments(text string) []Segment {
	runes := []rune(text)
	wins := c.windows(len(runes))
	out := make([]Segment, len(wins))
	for i, w := range wins {
		out[i] = Segment{Window: w, Text: string(runes[w.Start:w.End])}
	}
	return out
}

// Split returns the window texts for text.
func (c *Chunker) Split(text string) []string {
	segs := c.Segments(text)
	out := make([]string, len(segs))
	for i, s := range segs {
		out[i] = s.Text
	}
	return out
}
