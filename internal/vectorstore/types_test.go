package vectorstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testScope(doc string) Scope {
	return Scope{OwnerID: "user-1", ProjectID: "proj-1", DocumentID: doc}
}

func TestScope_Validate(t *testing.T) {
	tests := []struct {
		name    string
		scope   Scope
		wantErr string
	}{
		{"complete", testScope("doc-1"), ""},
		{"missing owner", Scope{ProjectID: "p", DocumentID: "d"}, "user_id"},
		{"blank project", Scope{OwnerID: "u", ProjectID: "  ", DocumentID: "d"}, "project_id"},
		{"missing document", Scope{OwnerID: "u", ProjectID: "p"}, "document_id"},
		{"all missing", Scope{}, "user_id, project_id, document_id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.scope.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, ErrInvalidScope)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestPayload_WireForm(t *testing.T) {
	p := Payload{Scope: testScope("doc-1"), File: "report.pdf", Page: 3, Text: "hello"}

	m := p.toMap()
	assert.Equal(t, map[string]interface{}{
		"user_id":     "user-1",
		"project_id":  "proj-1",
		"document_id": "doc-1",
		"file":        "report.pdf",
		"page":        3,
		"text":        "hello",
	}, m)

	// Qdrant returns integers as int64.
	m["page"] = int64(3)
	assert.Equal(t, p, payloadFromMap(m))

	meta := p.toMetadata()
	assert.Equal(t, "3", meta["page"])
	assert.NotContains(t, meta, "text")
	assert.Equal(t, p, payloadFromMetadata(meta, "hello"))
}

func TestPayloadFromMap_MissingFields(t *testing.T) {
	p := payloadFromMap(map[string]interface{}{"text": "only text", "extra": true})
	assert.Equal(t, "only text", p.Text)
	assert.Zero(t, p.Page)
	assert.Empty(t, p.File)
}

func TestValidatePoints(t *testing.T) {
	good := IndexedVector{ID: "a", Embedding: []float32{1, 0, 0}, Payload: Payload{Scope: testScope("d"), Page: 1}}

	assert.NoError(t, validatePoints([]IndexedVector{good}, 3))
	assert.NoError(t, validatePoints([]IndexedVector{good}, 0))

	wrongDim := good
	wrongDim.Embedding = []float32{1, 0}
	assert.ErrorIs(t, validatePoints([]IndexedVector{good, wrongDim}, 3), ErrDimensionMismatch)

	noID := good
	noID.ID = ""
	assert.ErrorIs(t, validatePoints([]IndexedVector{noID}, 3), ErrInvalidPayload)

	badScope := good
	badScope.Payload.Scope.OwnerID = ""
	assert.ErrorIs(t, validatePoints([]IndexedVector{badScope}, 3), ErrInvalidScope)

	negPage := good
	negPage.Payload.Page = -1
	assert.ErrorIs(t, validatePoints([]IndexedVector{negPage}, 3), ErrInvalidPayload)
}
