package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/fyrsmithlabs/insightflow/internal/logging"
	"github.com/fyrsmithlabs/insightflow/internal/rag"
)

// Pipeline is the document pipeline the tools call.
type Pipeline interface {
	Ingest(ctx context.Context, req rag.IngestRequest) (*rag.IngestResult, error)
	Query(ctx context.Context, req rag.QueryRequest) (*rag.AnswerResult, error)
	Delete(ctx context.Context, scope rag.Scope) (*rag.DeleteResult, error)
}

// Server is an MCP server backed by a Pipeline.
type Server struct {
	mcp      *mcp.Server
	pipeline Pipeline
	metrics  *toolMetrics
	logger   *logging.Logger
}

// Config configures the MCP server.
type Config struct {
	// Name is the server implementation name (default: "insightflow")
	Name string

	// Version is the server version (default: "dev")
	Version string

	// Logger for structured logging
	Logger *logging.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Name:    "insightflow",
		Version: "dev",
		Logger:  logging.NewNop(),
	}
}

// NewServer creates a new MCP server with the rag tools registered.
func NewServer(cfg *Config, pipeline Pipeline) (*Server, error) {
	if pipeline == nil {
		return nil, fmt.Errorf("pipeline is required")
	}
	defaults := DefaultConfig()
	if cfg == nil {
		cfg = defaults
	}
	if cfg.Name == "" {
		cfg.Name = defaults.Name
	}
	if cfg.Version == "" {
		cfg.Version = defaults.Version
	}
	if cfg.Logger == nil {
		cfg.Logger = defaults.Logger
	}

	mcpServer := mcp.NewServer(
		&mcp.Implementation{
			Name:    cfg.Name,
			Version: cfg.Version,
		},
		nil,
	)

	s := &Server{
		mcp:      mcpServer,
		pipeline: pipeline,
		metrics:  newToolMetrics(cfg.Logger),
		logger:   cfg.Logger.Named("mcp"),
	}
	s.registerTools()

	return s, nil
}

// Run starts the MCP server on the stdio transport and blocks until the
// client disconnects or ctx is canceled.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info(ctx, "starting MCP server on stdio transport")
	if err := s.mcp.Run(ctx, &mcp.StdioTransport{}); err != nil {
		return fmt.Errorf("server run failed: %w", err)
	}
	return nil
}

// Connect serves a single session over transport.
func (s *Server) Connect(ctx context.Context, transport mcp.Transport) (*mcp.ServerSession, error) {
	return s.mcp.Connect(ctx, transport, nil)
}
