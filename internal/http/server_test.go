package http

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/insightflow/internal/embeddings"
	"github.com/fyrsmithlabs/insightflow/internal/logging"
	"github.com/fyrsmithlabs/insightflow/internal/rag"
	"github.com/fyrsmithlabs/insightflow/internal/source"
	"github.com/fyrsmithlabs/insightflow/internal/vectorstore"
)

// fakePipeline records requests and returns canned results.
type fakePipeline struct {
	ingestReq rag.IngestRequest
	queryReq  rag.QueryRequest
	deleted   rag.Scope
	err       error
}

func (f *fakePipeline) Ingest(_ context.Context, req rag.IngestRequest) (*rag.IngestResult, error) {
	f.ingestReq = req
	if f.err != nil {
		return nil, f.err
	}
	return &rag.IngestResult{Status: rag.StatusIngested, Chunks: 2, DocumentID: req.DocumentID}, nil
}

func (f *fakePipeline) Query(_ context.Context, req rag.QueryRequest) (*rag.AnswerResult, error) {
	f.queryReq = req
	if f.err != nil {
		return nil, f.err
	}
	return &rag.AnswerResult{
		Answer:   "Blue (p. 1).",
		Sources:  []rag.Source{{DocID: req.DocumentID, File: "a.pdf", Page: 1, Score: 0.5, Text: "The sky is blue."}},
		Metadata: rag.QueryMetadata{Retrieved: 1, TopK: req.TopK},
	}, nil
}

func (f *fakePipeline) Delete(_ context.Context, scope rag.Scope) (*rag.DeleteResult, error) {
	f.deleted = scope
	if f.err != nil {
		return nil, f.err
	}
	return &rag.DeleteResult{Status: rag.StatusDeleted, DocumentID: scope.DocumentID}, nil
}

func setupTestServer(t *testing.T) (*Server, *fakePipeline) {
	t.Helper()
	p := &fakePipeline{}
	server, err := NewServer(p, logging.NewNop(), &Config{Host: "127.0.0.1", Port: 8000})
	require.NoError(t, err)
	return server, p
}

func doJSON(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	return rec
}

func detail(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Detail
}

func TestNewServer(t *testing.T) {
	t.Run("uses defaults when config is nil", func(t *testing.T) {
		server, err := NewServer(&fakePipeline{}, logging.NewNop(), nil)
		require.NoError(t, err)
		assert.Equal(t, "0.0.0.0:8000", server.Addr())
		assert.Equal(t, 10*time.Second, server.config.ShutdownTimeout)
	})

	t.Run("returns error when logger is nil", func(t *testing.T) {
		_, err := NewServer(&fakePipeline{}, nil, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "logger is required")
	})

	t.Run("returns error when pipeline is nil", func(t *testing.T) {
		_, err := NewServer(nil, logging.NewNop(), nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "pipeline cannot be nil")
	})
}

func TestHandleHealth(t *testing.T) {
	server, _ := setupTestServer(t)
	rec := doJSON(t, server, http.MethodGet, "/health", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestHandleMetrics(t *testing.T) {
	server, _ := setupTestServer(t)
	rec := doJSON(t, server, http.MethodGet, "/metrics", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "insightflow_rag_chunks_indexed_total")
}

func TestHandleIngest(t *testing.T) {
	server, p := setupTestServer(t)
	rec := doJSON(t, server, http.MethodPost, "/v1/ingest",
		`{"user_id":"u1","project_id":"p1","document_id":"d1","file_path":"/srv/a.pdf","original_name":"A.pdf","mime_type":"application/pdf"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ingested","chunks":2,"document_id":"d1"}`, rec.Body.String())
	assert.Equal(t, rag.IngestRequest{
		Scope:        rag.Scope{OwnerID: "u1", ProjectID: "p1", DocumentID: "d1"},
		FilePath:     "/srv/a.pdf",
		OriginalName: "A.pdf",
		MimeType:     "application/pdf",
	}, p.ingestReq)
}

func TestHandleIngest_FailedResultIsOK(t *testing.T) {
	server, err := NewServer(failedIngest{&fakePipeline{}}, logging.NewNop(), nil)
	require.NoError(t, err)
	rec := doJSON(t, server, http.MethodPost, "/v1/ingest", `{"user_id":"u","project_id":"p","document_id":"d","file_path":"/x.pdf"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"failed","reason":"No extractable text from PDF"}`, rec.Body.String())
}

type failedIngest struct{ *fakePipeline }

func (failedIngest) Ingest(context.Context, rag.IngestRequest) (*rag.IngestResult, error) {
	return &rag.IngestResult{Status: rag.StatusFailed, Reason: rag.ReasonNoText}, nil
}

func TestHandleQuery(t *testing.T) {
	t.Run("passes request through", func(t *testing.T) {
		server, p := setupTestServer(t)
		rec := doJSON(t, server, http.MethodPost, "/v1/query",
			`{"user_id":"u1","project_id":"p1","document_id":"d1","message":"What color?","session_id":"s1","top_k":3}`)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 3, p.queryReq.TopK)
		assert.Equal(t, "s1", p.queryReq.SessionID)

		var resp rag.AnswerResult
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "Blue (p. 1).", resp.Answer)
		require.Len(t, resp.Sources, 1)
		assert.Equal(t, "d1", resp.Sources[0].DocID)
		assert.Equal(t, rag.QueryMetadata{Retrieved: 1, TopK: 3}, resp.Metadata)
	})

	t.Run("omitted top_k uses default", func(t *testing.T) {
		server, p := setupTestServer(t)
		rec := doJSON(t, server, http.MethodPost, "/v1/query", `{"user_id":"u","project_id":"p","document_id":"d","message":"q"}`)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 0, p.queryReq.TopK)
	})

	t.Run("explicit zero top_k is rejected", func(t *testing.T) {
		server, _ := setupTestServer(t)
		rec := doJSON(t, server, http.MethodPost, "/v1/query", `{"user_id":"u","project_id":"p","document_id":"d","message":"q","top_k":0}`)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		assert.Contains(t, detail(t, rec), "top_k")
	})
}

func TestHandleDelete(t *testing.T) {
	server, p := setupTestServer(t)
	rec := doJSON(t, server, http.MethodPost, "/v1/delete", `{"user_id":"u1","project_id":"p1","document_id":"d1"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"deleted","document_id":"d1"}`, rec.Body.String())
	assert.Equal(t, rag.Scope{OwnerID: "u1", ProjectID: "p1", DocumentID: "d1"}, p.deleted)
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantDetail string
	}{
		{
			name:       "not found",
			err:        fmt.Errorf("%w: %w", rag.ErrNotFound, source.ErrNotFound),
			wantStatus: http.StatusNotFound,
			wantDetail: "File not found",
		},
		{
			name:       "validation",
			err:        fmt.Errorf("%w: message is required", rag.ErrValidation),
			wantStatus: http.StatusUnprocessableEntity,
			wantDetail: "validation failed: message is required",
		},
		{
			name:       "invalid scope",
			err:        fmt.Errorf("%w: missing document_id", vectorstore.ErrInvalidScope),
			wantStatus: http.StatusUnprocessableEntity,
			wantDetail: "invalid scope: missing document_id",
		},
		{
			name:       "provider",
			err:        fmt.Errorf("embedding 2 chunks: %w: status 500", embeddings.ErrProviderFailure),
			wantStatus: http.StatusInternalServerError,
			wantDetail: "embedding 2 chunks: embedding provider failure: status 500",
		},
		{
			name:       "index",
			err:        fmt.Errorf("%w: connection refused", vectorstore.ErrIndexFailure),
			wantStatus: http.StatusInternalServerError,
			wantDetail: "vector index failure: connection refused",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, p := setupTestServer(t)
			p.err = tt.err
			rec := doJSON(t, server, http.MethodPost, "/v1/ingest", `{"user_id":"u","project_id":"p","document_id":"d","file_path":"/x.pdf"}`)
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantDetail, detail(t, rec))
		})
	}
}

func TestInvalidBody(t *testing.T) {
	server, _ := setupTestServer(t)
	rec := doJSON(t, server, http.MethodPost, "/v1/delete", `{"user_id":`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.NotEmpty(t, detail(t, rec))
}

func TestUnknownRoute(t *testing.T) {
	server, _ := setupTestServer(t)
	rec := doJSON(t, server, http.MethodGet, "/v2/nothing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Not Found", detail(t, rec))
}

func TestMiddleware(t *testing.T) {
	t.Run("adds request ID", func(t *testing.T) {
		server, _ := setupTestServer(t)
		rec := doJSON(t, server, http.MethodGet, "/health", "")
		assert.NotEmpty(t, rec.Header().Get(echo.HeaderXRequestID))
	})

	t.Run("recovers from panic", func(t *testing.T) {
		server, _ := setupTestServer(t)
		server.echo.GET("/panic", func(c echo.Context) error {
			panic("test panic")
		})

		var rec *httptest.ResponseRecorder
		assert.NotPanics(t, func() {
			rec = doJSON(t, server, http.MethodGet, "/panic", "")
		})
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})

	t.Run("bounds request context", func(t *testing.T) {
		server, err := NewServer(&fakePipeline{}, logging.NewNop(), &Config{RequestTimeout: time.Minute})
		require.NoError(t, err)
		var deadline bool
		server.echo.GET("/deadline", func(c echo.Context) error {
			_, deadline = c.Request().Context().Deadline()
			return c.NoContent(http.StatusNoContent)
		})
		doJSON(t, server, http.MethodGet, "/deadline", "")
		assert.True(t, deadline)
	})

	t.Run("logs requests with request id", func(t *testing.T) {
		logger := logging.NewTestLogger()
		server, err := NewServer(&fakePipeline{}, logger.Logger, nil)
		require.NoError(t, err)
		doJSON(t, server, http.MethodGet, "/health", "")

		entries := logger.FilterMessage("http request").All()
		require.Len(t, entries, 1)
		fields := entries[0].ContextMap()
		assert.Equal(t, int64(http.StatusOK), fields["status"])
		assert.NotEmpty(t, fields["request.id"])
	})
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())
	return port
}

func TestStart_GracefulShutdown(t *testing.T) {
	port := freePort(t)
	server, err := NewServer(&fakePipeline{}, logging.NewNop(), &Config{Host: "127.0.0.1", Port: port, ShutdownTimeout: 2 * time.Second})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- server.Start(ctx) }()

	url := fmt.Sprintf("http://127.0.0.1:%d/health", port)
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		return resp.StatusCode == http.StatusOK && strings.Contains(string(body), "ok")
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
