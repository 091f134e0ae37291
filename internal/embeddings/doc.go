// Package embeddings turns text into fixed-dimension vectors.
//
// A Provider is the raw external service (an OpenAI-compatible endpoint,
// Ollama, or local FastEmbed). The Adapter wraps a Provider with rate
// limiting, timeouts and dimension checks, and never returns an error:
// every failure collapses to the Empty sentinel and a recoverable
// "embedding.failed" event.
package embeddings
