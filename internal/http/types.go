package http

import (
	"time"

	"github.com/fyrsmithlabs/docrag/internal/answer"
	"github.com/fyrsmithlabs/docrag/internal/metadata"
)

// ChatRequest is the request body for POST /api/v1/chat.
type ChatRequest struct {
	Message string `json:"message"`
}

// ChatResponse is the response body for POST /api/v1/chat.
type ChatResponse struct {
	Answer        string          `json:"answer"`
	UsedContext   bool            `json:"used_context"`
	ContextLength int             `json:"context_length"`
	Sources       []answer.Source `json:"sources"`
}

// ErrorResponse is the body of every non-2xx API response.
type ErrorResponse struct {
	Error             string `json:"error"`
	RetryAfterSeconds int    `json:"retry_after_seconds,omitempty"`
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status  string            `json:"status"`
	Version string            `json:"version,omitempty"`
	Checks  map[string]string `json:"checks,omitempty"`
}

// DocumentInfo is a document record without its raw text.
type DocumentInfo struct {
	ID        string    `json:"id"`
	Filename  string    `json:"filename"`
	Summary   string    `json:"summary"`
	Path      string    `json:"path"`
	CreatedAt time.Time `json:"created_at"`
}

// DocumentsResponse is the response body for GET /api/v1/documents.
type DocumentsResponse struct {
	Documents []DocumentInfo `json:"documents"`
	Count     int            `json:"count"`
}

func documentInfo(d metadata.Document) DocumentInfo {
	return DocumentInfo{
		ID:        d.ID,
		Filename:  d.Filename,
		Summary:   d.Summary,
		Path:      d.StoragePath,
		CreatedAt: d.CreatedAt,
	}
}
