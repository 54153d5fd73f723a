package extraction

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// TikaExtractor sends documents to an Apache Tika server's /tika endpoint
// and returns the plain text as a single page.
type TikaExtractor struct {
	serverURL string
	client    *http.Client
}

// NewTikaExtractor creates a Tika client. client may be nil.
func NewTikaExtractor(serverURL string, client *http.Client) *TikaExtractor {
	if client == nil {
		client = http.DefaultClient
	}
	return &TikaExtractor{serverURL: strings.TrimSuffix(serverURL, "/"), client: client}
}

func (t *TikaExtractor) Name() string { return "tika" }

func (t *TikaExtractor) Extract(ctx context.Context, path string) ([]Page, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExtractionFailed, err)
	}
	defer f.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, t.serverURL+"/tika", f)
	if err != nil {
		return nil, fmt.Errorf("%w: creating request: %v", ErrExtractionFailed, err)
	}
	req.Header.Set("Accept", "text/plain")
	req.Header.Set("Content-Type", detectMIMEType(path))

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: tika: %v", ErrExtractionFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnsupportedMediaType {
		return nil, fmt.Errorf("%w: tika cannot parse %s", ErrUnsupportedType, filepath.Base(path))
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: tika status %d: %s", ErrExtractionFailed, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading tika response: %v", ErrExtractionFailed, err)
	}
	if len(body) == 0 {
		return nil, nil
	}
	return []Page{{Number: 1, Text: string(body)}}, nil
}

// detectMIMEType infers the Content-Type from the file extension.
func detectMIMEType(name string) string {
	ext := filepath.Ext(name)
	if ext == "" {
		return "application/octet-stream"
	}
	if mt := mime.TypeByExtension(ext); mt != "" {
		return mt
	}
	return "application/octet-stream"
}
