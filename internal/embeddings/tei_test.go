package embeddings

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTEIProvider(t *testing.T) {
	tests := []struct {
		name    string
		cfg     TEIConfig
		wantErr bool
	}{
		{name: "valid", cfg: TEIConfig{BaseURL: "http://localhost:8080", Model: "BAAI/bge-small-en-v1.5"}},
		{name: "trailing slash", cfg: TEIConfig{BaseURL: "http://localhost:8080/"}},
		{name: "empty base URL", cfg: TEIConfig{Model: "test"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewTEIProvider(tt.cfg)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidConfig)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "http://localhost:8080", p.baseURL)
			assert.NotNil(t, p.client)
		})
	}
}

func TestTEIProvider_EmbedDocuments(t *testing.T) {
	var got teiRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embed", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		out := make([][]float32, len(got.Inputs))
		for i, in := range got.Inputs {
			out[i] = []float32{float32(len(in)), 0}
		}
		_ = json.NewEncoder(w).Encode(out)
	}))
	defer srv.Close()

	p, err := NewTEIProvider(TEIConfig{BaseURL: srv.URL + "/", Model: "bge"})
	require.NoError(t, err)

	vecs, err := p.EmbedDocuments(context.Background(), []string{"hello", "hi"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{5, 0}, {2, 0}}, vecs)
	assert.Equal(t, []string{"hello", "hi"}, got.Inputs)
	assert.True(t, got.Truncate)
	assert.Equal(t, "bge", p.Model())
}

func TestTEIProvider_Errors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		errText string
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "model overloaded", http.StatusServiceUnavailable)
			},
			errText: "tei status 503: model overloaded",
		},
		{
			name: "malformed body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte("not json"))
			},
			errText: "decoding response",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			p, err := NewTEIProvider(TEIConfig{BaseURL: srv.URL})
			require.NoError(t, err)

			_, err = newTestGateway(p).Embed(context.Background(), []string{"x"})
			require.ErrorIs(t, err, ErrProviderFailure)
			assert.Contains(t, err.Error(), tt.errText)
		})
	}
}

func TestTEIProvider_EmptyInput(t *testing.T) {
	p, err := NewTEIProvider(TEIConfig{BaseURL: "http://localhost:1"})
	require.NoError(t, err)

	_, err = p.EmbedDocuments(context.Background(), nil)
	assert.ErrorIs(t, err, ErrEmptyInput)
}
