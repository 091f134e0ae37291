// Package services assembles the docrag components from configuration.
//
// Build wires the metadata store, object storage, extraction, embeddings,
// the vector index, generation, prompts and redaction into the ingestion and
// answering services, and exposes them through a Registry. The returned
// Registry owns every connection it opened; call Close on shutdown.
package services
