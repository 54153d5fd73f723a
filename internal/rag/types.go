package rag

import (
	"github.com/fyrsmithlabs/insightflow/internal/vectorstore"
)

// Scope is the tenant partition of one document.
type Scope = vectorstore.Scope

// Result statuses.
const (
	StatusIngested = "ingested"
	StatusFailed   = "failed"
	StatusDeleted  = "deleted"
)

// ReasonNoText is reported when a document yields no non-blank chunk.
const ReasonNoText = "No extractable text from PDF"

// Query bounds.
const (
	DefaultTopK = 6
	MaxTopK     = 20
)

// IngestRequest names a document file to index under Scope.
type IngestRequest struct {
	Scope
	FilePath string `json:"file_path"`
	// OriginalName is the user-facing file name stored with each chunk.
	OriginalName string `json:"original_name,omitempty"`
	MimeType     string `json:"mime_type,omitempty"`
}

// IngestResult reports the outcome of an ingestion. A document with no
// extractable text is a failed result, not an error.
type IngestResult struct {
	Status     string `json:"status"`
	Chunks     int    `json:"chunks,omitempty"`
	DocumentID string `json:"document_id,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

// QueryRequest asks a question about one document.
type QueryRequest struct {
	Scope
	Message string `json:"message"`
	// SessionID is logged for correlation only. Conversation history is not
	// kept.
	SessionID string `json:"session_id,omitempty"`
	// TopK is the number of chunks to retrieve. Zero means DefaultTopK.
	TopK int `json:"top_k,omitempty"`
}

// Source is a retrieved chunk cited in an answer.
type Source struct {
	DocID string  `json:"doc_id"`
	File  string  `json:"file,omitempty"`
	Page  int     `json:"page,omitempty"`
	Score float32 `json:"score"`
	Text  string  `json:"text,omitempty"`
}

// QueryMetadata describes retrieval for an answer.
type QueryMetadata struct {
	Retrieved int `json:"retrieved"`
	TopK      int `json:"top_k"`
}

// AnswerResult is a generated answer with its sources.
type AnswerResult struct {
	Answer   string        `json:"answer"`
	Sources  []Source      `json:"sources"`
	Metadata QueryMetadata `json:"metadata"`
}

// DeleteResult reports a deletion.
type DeleteResult struct {
	Status     string `json:"status"`
	DocumentID string `json:"document_id"`
}
