package vectorstore

import (
	"fmt"
	"strconv"
	"strings"
)

// Payload field names. These are stored verbatim in the backend and are
// shared with other consumers of the collection.
const (
	FieldUserID     = "user_id"
	FieldProjectID  = "project_id"
	FieldDocumentID = "document_id"
	FieldFile       = "file"
	FieldPage       = "page"
	FieldText       = "text"
)

// Scope is the mandatory partition key for every index operation.
type Scope struct {
	OwnerID    string `json:"user_id"`
	ProjectID  string `json:"project_id"`
	DocumentID string `json:"document_id"`
}

// Validate reports ErrInvalidScope when any identifier is blank.
func (s Scope) Validate() error {
	var missing []string
	if strings.TrimSpace(s.OwnerID) == "" {
		missing = append(missing, FieldUserID)
	}
	if strings.TrimSpace(s.ProjectID) == "" {
		missing = append(missing, FieldProjectID)
	}
	if strings.TrimSpace(s.DocumentID) == "" {
		missing = append(missing, FieldDocumentID)
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalidScope, strings.Join(missing, ", "))
	}
	return nil
}

// filterPairs returns the scope as alternating field/value pairs.
func (s Scope) filterPairs() []string {
	return []string{
		FieldUserID, s.OwnerID,
		FieldProjectID, s.ProjectID,
		FieldDocumentID, s.DocumentID,
	}
}

// where returns the scope as an exact-match metadata filter.
func (s Scope) where() map[string]string {
	return map[string]string{
		FieldUserID:     s.OwnerID,
		FieldProjectID:  s.ProjectID,
		FieldDocumentID: s.DocumentID,
	}
}

// Payload is the typed form of the data stored next to each vector.
type Payload struct {
	Scope
	File string `json:"file,omitempty"`
	Page int    `json:"page"`
	Text string `json:"text"`
}

// Validate checks the scope and page number.
func (p Payload) Validate() error {
	if err := p.Scope.Validate(); err != nil {
		return err
	}
	if p.Page < 0 {
		return fmt.Errorf("%w: negative page %d", ErrInvalidPayload, p.Page)
	}
	return nil
}

// toMap converts the payload to the backend wire form.
func (p Payload) toMap() map[string]interface{} {
	return map[string]interface{}{
		FieldUserID:     p.OwnerID,
		FieldProjectID:  p.ProjectID,
		FieldDocumentID: p.DocumentID,
		FieldFile:       p.File,
		FieldPage:       p.Page,
		FieldText:       p.Text,
	}
}

// payloadFromMap reads a wire payload. Unknown fields are ignored and
// missing ones stay zero.
func payloadFromMap(m map[string]interface{}) Payload {
	var p Payload
	p.OwnerID, _ = m[FieldUserID].(string)
	p.ProjectID, _ = m[FieldProjectID].(string)
	p.DocumentID, _ = m[FieldDocumentID].(string)
	p.File, _ = m[FieldFile].(string)
	p.Text, _ = m[FieldText].(string)
	switch v := m[FieldPage].(type) {
	case int64:
		p.Page = int(v)
	case int:
		p.Page = v
	case float64:
		p.Page = int(v)
	case string:
		p.Page, _ = strconv.Atoi(v)
	}
	return p
}

// toMetadata converts the payload to chromem's string metadata. The text
// lives in the document content instead.
func (p Payload) toMetadata() map[string]string {
	return map[string]string{
		FieldUserID:     p.OwnerID,
		FieldProjectID:  p.ProjectID,
		FieldDocumentID: p.DocumentID,
		FieldFile:       p.File,
		FieldPage:       strconv.Itoa(p.Page),
	}
}

func payloadFromMetadata(meta map[string]string, content string) Payload {
	page, _ := strconv.Atoi(meta[FieldPage])
	return Payload{
		Scope: Scope{
			OwnerID:    meta[FieldUserID],
			ProjectID:  meta[FieldProjectID],
			DocumentID: meta[FieldDocumentID],
		},
		File: meta[FieldFile],
		Page: page,
		Text: content,
	}
}

// IndexedVector is one chunk embedding ready for upsert.
type IndexedVector struct {
	ID        string
	Embedding []float32
	Payload   Payload
}

// Hit is a single search result.
type Hit struct {
	ID      string
	Score   float32
	Payload Payload
}

// validatePoints checks every point against dim before any write.
// dim of zero skips the length check.
func validatePoints(points []IndexedVector, dim int) error {
	for i, p := range points {
		if p.ID == "" {
			return fmt.Errorf("%w: point %d has empty id", ErrInvalidPayload, i)
		}
		if err := p.Payload.Validate(); err != nil {
			return fmt.Errorf("point %d: %w", i, err)
		}
		if len(p.Embedding) == 0 {
			return fmt.Errorf("%w: point %d has empty embedding", ErrInvalidPayload, i)
		}
		if dim > 0 && len(p.Embedding) != dim {
			return fmt.Errorf("%w: point %d has %d dimensions, collection has %d",
				ErrDimensionMismatch, i, len(p.Embedding), dim)
		}
	}
	return nil
}
