package extraction

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/fyrsmithlabs/insightflow/internal/config"
)

var (
	// ErrUnsupportedType indicates no extractor handles the document type.
	ErrUnsupportedType = errors.New("unsupported document type")

	// ErrExtractionFailed indicates the extractor could not read the document.
	ErrExtractionFailed = errors.New("text extraction failed")
)

// Page is the raw text of one page. Number starts at 1.
type Page struct {
	Number int
	Text   string
}

// Extractor reads a local file into ordered pages.
type Extractor interface {
	Extract(ctx context.Context, path string) ([]Page, error)
	Name() string
}

const mimePDF = "application/pdf"

var textMIMETypes = map[string]bool{
	"text/plain":       true,
	"text/markdown":    true,
	"text/x-markdown":  true,
	"text/csv":         true,
	"application/json": true,
}

var textExtensions = map[string]bool{
	".txt":      true,
	".text":     true,
	".md":       true,
	".markdown": true,
	".csv":      true,
	".json":     true,
}

// Registry selects an extractor for a document.
type Registry struct {
	pdf  Extractor
	text Extractor
	// fallback handles other types. Nil disables them.
	fallback Extractor
}

// NewRegistry creates a registry. fallback may be nil.
func NewRegistry(pdf, text, fallback Extractor) *Registry {
	return &Registry{pdf: pdf, text: text, fallback: fallback}
}

// Select returns the extractor for mimeType, falling back to the extension
// of name when the MIME type is empty or generic.
func (r *Registry) Select(mimeType, name string) (Extractor, error) {
	mt := normalizeMIME(mimeType)
	ext := strings.ToLower(filepath.Ext(name))

	switch {
	case mt == mimePDF:
		return r.pdf, nil
	case textMIMETypes[mt]:
		return r.text, nil
	}

	if mt == "" || mt == "application/octet-stream" {
		switch {
		case ext == ".pdf" || ext == "":
			return r.pdf, nil
		case textExtensions[ext]:
			return r.text, nil
		}
	}

	if r.fallback != nil {
		return r.fallback, nil
	}
	kind := mt
	if kind == "" {
		kind = ext
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, kind)
}

// Extract selects an extractor and runs it on path.
func (r *Registry) Extract(ctx context.Context, path, mimeType, name string) ([]Page, error) {
	if name == "" {
		name = path
	}
	ex, err := r.Select(mimeType, name)
	if err != nil {
		return nil, err
	}
	return ex.Extract(ctx, path)
}

func normalizeMIME(mimeType string) string {
	if mimeType == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(mimeType))
	}
	return mt
}

// NewRegistryFromConfig wires pdftotext, the text reader and, when
// configured, Tika.
func NewRegistryFromConfig(cfg config.ExtractionConfig) *Registry {
	pdf := NewPDFExtractor(cfg.PDFToTextPath, WithTimeout(cfg.Timeout))
	var fallback Extractor
	if cfg.TikaURL != "" {
		fallback = NewTikaExtractor(cfg.TikaURL, &http.Client{Timeout: cfg.Timeout})
	}
	return NewRegistry(pdf, TextExtractor{}, fallback)
}
