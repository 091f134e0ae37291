package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidRequest indicates a missing or empty upload.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrRateLimited indicates an upload arrived inside the cooldown window.
	ErrRateLimited = errors.New("rate limited")

	// ErrExtractionInsufficient indicates extraction failed or produced too
	// little text to index.
	ErrExtractionInsufficient = errors.New("insufficient extracted text")

	// ErrStorageUpload indicates the raw file could not be stored.
	ErrStorageUpload = errors.New("storage upload failed")

	// ErrNoValidVectors indicates every chunk failed to embed.
	ErrNoValidVectors = errors.New("no valid vectors")

	// ErrStoreWrite indicates the vector upsert failed.
	ErrStoreWrite = errors.New("vector store write failed")

	// ErrMetadataRead indicates the rate-limit lookup failed.
	ErrMetadataRead = errors.New("metadata read failed")

	// ErrMetadataWrite indicates the document row could not be committed.
	ErrMetadataWrite = errors.New("metadata write failed")
)

// RateLimitError carries how long the caller should wait. It unwraps to
// ErrRateLimited.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s: retry after %s", ErrRateLimited, e.RetryAfter.Round(time.Second))
}

func (e *RateLimitError) Unwrap() error {
	return ErrRateLimited
}

// RetryAfterSeconds rounds RetryAfter up to whole seconds, minimum 1.
func (e *RateLimitError) RetryAfterSeconds() int {
	secs := int((e.RetryAfter + time.Second - 1) / time.Second)
	return max(secs, 1)
}

// Reason maps an ingestion error to a short label for events and metrics.
func Reason(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrExtractionInsufficient):
		return "extraction_insufficient"
	case errors.Is(err, ErrStorageUpload):
		return "storage_upload"
	case errors.Is(err, ErrNoValidVectors):
		return "no_valid_vectors"
	case errors.Is(err, ErrStoreWrite):
		return "store_write"
	case errors.Is(err, ErrMetadataRead):
		return "metadata_read"
	case errors.Is(err, ErrMetadataWrite):
		return "metadata_write"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "internal"
	}
}
