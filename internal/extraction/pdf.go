package extraction

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os/exec"
	"strings"
	"time"
)

// CommandRunner runs an external command and returns its stdout.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%w: %s", err, msg)
		}
		return nil, err
	}
	return out, nil
}

// PDFExtractor shells out to poppler's pdftotext.
type PDFExtractor struct {
	binary  string
	runner  CommandRunner
	timeout time.Duration
}

// PDFOption configures a PDFExtractor.
type PDFOption func(*PDFExtractor)

// WithRunner replaces the command runner, mainly for tests.
func WithRunner(r CommandRunner) PDFOption {
	return func(p *PDFExtractor) { p.runner = r }
}

// WithTimeout bounds a single pdftotext run. Zero means no bound beyond ctx.
func WithTimeout(d time.Duration) PDFOption {
	return func(p *PDFExtractor) { p.timeout = d }
}

// NewPDFExtractor creates a PDF extractor. An empty binary uses "pdftotext"
// from PATH.
func NewPDFExtractor(binary string, opts ...PDFOption) *PDFExtractor {
	if binary == "" {
		binary = "pdftotext"
	}
	p := &PDFExtractor{binary: binary, runner: execRunner{}}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *PDFExtractor) Name() string { return "pdftotext" }

// Extract runs pdftotext and splits its output into pages.
func (p *PDFExtractor) Extract(ctx context.Context, path string) ([]Page, error) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	out, err := p.runner.Run(ctx, p.binary, "-enc", "UTF-8", "-eol", "unix", path, "-")
	if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s not found\n%s", ErrExtractionFailed, p.binary, installInstructions())
	}
	if err != nil {
		return nil, fmt.Errorf("%w: pdftotext %s: %v", ErrExtractionFailed, path, err)
	}
	return splitPages(string(out)), nil
}

// splitPages splits pdftotext output on form feeds. pdftotext terminates
// every page with one, so the empty tail after the last is dropped.
func splitPages(out string) []Page {
	if out == "" {
		return nil
	}
	parts := strings.Split(out, "\f")
	if len(parts) > 1 && parts[len(parts)-1] == "" {
		parts = parts[:len(parts)-1]
	}
	pages := make([]Page, len(parts))
	for i, text := range parts {
		pages[i] = Page{Number: i + 1, Text: text}
	}
	return pages
}

// installInstructions returns platform-specific install hints for pdftotext.
func installInstructions() string {
	return `pdftotext is required for PDF ingestion. Install poppler:
  macOS:         brew install poppler
  Ubuntu/Debian: apt install poppler-utils
  Fedora/RHEL:   dnf install poppler-utils
  Alpine:        apk add poppler-utils`
}
