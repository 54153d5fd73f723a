package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/insightflow/internal/logging"
	"github.com/fyrsmithlabs/insightflow/internal/rag"
)

const (
	toolIngest = "rag_ingest"
	toolQuery  = "rag_query"
	toolDelete = "rag_delete"
)

type ingestInput struct {
	UserID       string `json:"user_id" jsonschema:"Owner of the document"`
	ProjectID    string `json:"project_id" jsonschema:"Project the document belongs to"`
	DocumentID   string `json:"document_id" jsonschema:"Document identifier"`
	FilePath     string `json:"file_path" jsonschema:"Local path or s3://bucket/key of the file to ingest"`
	OriginalName string `json:"original_name,omitempty" jsonschema:"Display name recorded on every chunk"`
	MimeType     string `json:"mime_type,omitempty" jsonschema:"MIME type used to pick an extractor"`
}

type ingestOutput struct {
	Status     string `json:"status" jsonschema:"ingested or failed"`
	Chunks     int    `json:"chunks,omitempty" jsonschema:"Number of chunks indexed"`
	DocumentID string `json:"document_id,omitempty" jsonschema:"Document identifier"`
	Reason     string `json:"reason,omitempty" jsonschema:"Why nothing was indexed"`
}

type queryInput struct {
	UserID     string `json:"user_id" jsonschema:"Owner of the document"`
	ProjectID  string `json:"project_id" jsonschema:"Project the document belongs to"`
	DocumentID string `json:"document_id" jsonschema:"Document to answer from"`
	Message    string `json:"message" jsonschema:"Question to answer"`
	SessionID  string `json:"session_id,omitempty" jsonschema:"Caller session, used for log correlation only"`
	TopK       int    `json:"top_k,omitempty" jsonschema:"Chunks to retrieve, 1 to 20 (default: 6)"`
}

type sourceOutput struct {
	DocID string  `json:"doc_id" jsonschema:"Document identifier"`
	File  string  `json:"file,omitempty" jsonschema:"Source file name"`
	Page  int     `json:"page,omitempty" jsonschema:"1-based page number"`
	Score float64 `json:"score" jsonschema:"Similarity score"`
	Text  string  `json:"text,omitempty" jsonschema:"Excerpt of the chunk"`
}

type queryOutput struct {
	Answer    string         `json:"answer" jsonschema:"Generated answer"`
	Sources   []sourceOutput `json:"sources" jsonschema:"Chunks the answer was grounded on"`
	Retrieved int            `json:"retrieved" jsonschema:"Number of non-empty chunks retrieved"`
	TopK      int            `json:"top_k" jsonschema:"Effective top_k"`
}

type deleteInput struct {
	UserID     string `json:"user_id" jsonschema:"Owner of the document"`
	ProjectID  string `json:"project_id" jsonschema:"Project the document belongs to"`
	DocumentID string `json:"document_id" jsonschema:"Document to delete"`
}

type deleteOutput struct {
	Status     string `json:"status" jsonschema:"deleted"`
	DocumentID string `json:"document_id" jsonschema:"Document identifier"`
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        toolIngest,
		Description: "Extract, chunk, embed and index a document for one user, project and document scope",
	}, s.handleIngest)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        toolQuery,
		Description: "Answer a question from the indexed chunks of one document, with page citations",
	}, s.handleQuery)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        toolDelete,
		Description: "Remove every indexed chunk of one document",
	}, s.handleDelete)
}

// instrument records the call's metrics and logs failures with their kind.
func (s *Server) instrument(ctx context.Context, tool string) func(error) {
	end := s.metrics.begin(ctx, tool)
	return func(err error) {
		end(err)
		if err != nil {
			s.logger.Warn(ctx, "tool call failed",
				zap.String("tool", tool),
				zap.String("kind", outcome(err)),
				zap.Error(err),
			)
		}
	}
}

func (s *Server) handleIngest(ctx context.Context, _ *mcp.CallToolRequest, args ingestInput) (*mcp.CallToolResult, ingestOutput, error) {
	done := s.instrument(ctx, toolIngest)
	res, err := s.pipeline.Ingest(ctx, rag.IngestRequest{
		Scope:        rag.Scope{OwnerID: args.UserID, ProjectID: args.ProjectID, DocumentID: args.DocumentID},
		FilePath:     args.FilePath,
		OriginalName: args.OriginalName,
		MimeType:     args.MimeType,
	})
	done(err)
	if err != nil {
		return nil, ingestOutput{}, fmt.Errorf("%s: %w", toolIngest, err)
	}
	s.metrics.ingested(ctx, res)

	out := ingestOutput{
		Status:     res.Status,
		Chunks:     res.Chunks,
		DocumentID: res.DocumentID,
		Reason:     res.Reason,
	}
	text := fmt.Sprintf("Ingested %d chunks for document %s", out.Chunks, out.DocumentID)
	if out.Status != rag.StatusIngested {
		text = fmt.Sprintf("Nothing ingested: %s", out.Reason)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}, out, nil
}

func (s *Server) handleQuery(ctx context.Context, _ *mcp.CallToolRequest, args queryInput) (*mcp.CallToolResult, queryOutput, error) {
	if args.SessionID != "" {
		ctx = logging.WithSessionID(ctx, args.SessionID)
	}
	done := s.instrument(ctx, toolQuery)
	res, err := s.pipeline.Query(ctx, rag.QueryRequest{
		Scope:     rag.Scope{OwnerID: args.UserID, ProjectID: args.ProjectID, DocumentID: args.DocumentID},
		Message:   args.Message,
		SessionID: args.SessionID,
		TopK:      args.TopK,
	})
	done(err)
	if err != nil {
		return nil, queryOutput{}, fmt.Errorf("%s: %w", toolQuery, err)
	}
	s.metrics.answered(ctx, res)

	out := queryOutput{
		Answer:    res.Answer,
		Sources:   make([]sourceOutput, 0, len(res.Sources)),
		Retrieved: res.Metadata.Retrieved,
		TopK:      res.Metadata.TopK,
	}
	for _, src := range res.Sources {
		out.Sources = append(out.Sources, sourceOutput{
			DocID: src.DocID,
			File:  src.File,
			Page:  src.Page,
			Score: float64(src.Score),
			Text:  src.Text,
		})
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: formatAnswer(out)}},
	}, out, nil
}

func (s *Server) handleDelete(ctx context.Context, _ *mcp.CallToolRequest, args deleteInput) (*mcp.CallToolResult, deleteOutput, error) {
	done := s.instrument(ctx, toolDelete)
	res, err := s.pipeline.Delete(ctx, rag.Scope{
		OwnerID:    args.UserID,
		ProjectID:  args.ProjectID,
		DocumentID: args.DocumentID,
	})
	done(err)
	if err != nil {
		return nil, deleteOutput{}, fmt.Errorf("%s: %w", toolDelete, err)
	}

	out := deleteOutput{Status: res.Status, DocumentID: res.DocumentID}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf("Deleted document %s", out.DocumentID)}},
	}, out, nil
}

// formatAnswer renders the answer followed by its cited pages.
func formatAnswer(out queryOutput) string {
	var b strings.Builder
	b.WriteString(out.Answer)
	if len(out.Sources) == 0 {
		return b.String()
	}
	b.WriteString("\n\nSources:")
	for _, src := range out.Sources {
		fmt.Fprintf(&b, "\n- %s p.%d (%.3f)", src.File, src.Page, src.Score)
	}
	return b.String()
}
