package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Request and response bodies mirror internal/http.

type ingestRequest struct {
	UserID       string `json:"user_id"`
	ProjectID    string `json:"project_id"`
	DocumentID   string `json:"document_id"`
	FilePath     string `json:"file_path"`
	OriginalName string `json:"original_name,omitempty"`
	MimeType     string `json:"mime_type,omitempty"`
}

type ingestResponse struct {
	Status     string `json:"status"`
	Chunks     int    `json:"chunks,omitempty"`
	DocumentID string `json:"document_id,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

type queryRequest struct {
	UserID     string `json:"user_id"`
	ProjectID  string `json:"project_id"`
	DocumentID string `json:"document_id"`
	Message    string `json:"message"`
	SessionID  string `json:"session_id,omitempty"`
	TopK       *int   `json:"top_k,omitempty"`
}

type source struct {
	DocID string  `json:"doc_id"`
	File  string  `json:"file,omitempty"`
	Page  int     `json:"page,omitempty"`
	Score float64 `json:"score"`
	Text  string  `json:"text,omitempty"`
}

type queryResponse struct {
	Answer   string   `json:"answer"`
	Sources  []source `json:"sources"`
	Metadata struct {
		Retrieved int `json:"retrieved"`
		TopK      int `json:"top_k"`
	} `json:"metadata"`
}

type deleteRequest struct {
	UserID     string `json:"user_id"`
	ProjectID  string `json:"project_id"`
	DocumentID string `json:"document_id"`
}

type deleteResponse struct {
	Status     string `json:"status"`
	DocumentID string `json:"document_id"`
}

type healthResponse struct {
	Status string `json:"status"`
}

// apiError is a non-2xx response.
type apiError struct {
	Status int
	Detail string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("server returned status %d: %s", e.Status, e.Detail)
}

type client struct {
	baseURL string
	http    *http.Client
}

func newClient(baseURL string, timeout time.Duration) *client {
	return &client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// do sends body as JSON and returns the raw response body. Non-2xx responses
// become *apiError.
func (c *client) do(ctx context.Context, method, path string, body any) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reqJSON, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(reqJSON)
	}

	url := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request to %s: %w", url, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e struct {
			Detail string `json:"detail"`
		}
		detail := strings.TrimSpace(string(raw))
		if json.Unmarshal(raw, &e) == nil && e.Detail != "" {
			detail = e.Detail
		}
		return nil, &apiError{Status: resp.StatusCode, Detail: detail}
	}
	return raw, nil
}

// call is do followed by decoding into out.
func (c *client) call(ctx context.Context, method, path string, body, out any) ([]byte, error) {
	raw, err := c.do(ctx, method, path, body)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return raw, nil
}
