// Package mcp exposes the document pipeline as Model Context Protocol tools.
//
// The server uses the MCP SDK (github.com/modelcontextprotocol/go-sdk/mcp) and
// registers rag_ingest, rag_query and rag_delete. Tools call the pipeline
// in-process, so an agent gets the same behavior as the HTTP API without a
// network hop. Run serves the stdio transport; Connect attaches any other
// transport, which tests use with in-memory pairs.
package mcp
