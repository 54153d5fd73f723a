package extraction

import (
	"context"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"
)

// maxTextFileSize bounds plain-text documents read into memory.
const maxTextFileSize = 64 << 20

// TextExtractor returns a text file as a single page.
type TextExtractor struct{}

func (TextExtractor) Name() string { return "text" }

// Extract reads path. Invalid UTF-8 is replaced rather than rejected.
func (TextExtractor) Extract(ctx context.Context, path string) ([]Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExtractionFailed, err)
	}
	if info.Size() > maxTextFileSize {
		return nil, fmt.Errorf("%w: %s is %d bytes, limit is %d", ErrExtractionFailed, path, info.Size(), maxTextFileSize)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExtractionFailed, err)
	}
	text := string(data)
	if !utf8.ValidString(text) {
		text = strings.ToValidUTF8(text, "�")
	}
	if text == "" {
		return nil, nil
	}
	return []Page{{Number: 1, Text: text}}, nil
}
