// Package mcp exposes docrag to MCP clients over stdio.
//
// This implementation uses the MCP SDK (github.com/modelcontextprotocol/go-sdk/mcp)
// and registers three tools: ask_documents, ingest_file and list_documents.
// Answer and summary text is scrubbed for secrets before returning to clients.
package mcp
