package workflows

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"

	"github.com/fyrsmithlabs/docrag/internal/generation"
	"github.com/fyrsmithlabs/docrag/internal/metadata"
)

// Activities holds the collaborators of the back-fill activities. Register
// a *Activities with the worker; Temporal names each activity after its method.
type Activities struct {
	Metadata   metadata.Store
	Summarizer generation.Summarizer
}

// NewActivities returns activities bound to store and summarizer.
func NewActivities(store metadata.Store, summarizer generation.Summarizer) *Activities {
	return &Activities{Metadata: store, Summarizer: summarizer}
}

// ListPendingSummariesActivity returns up to limit documents still carrying
// the unavailable sentinel, oldest first.
func (a *Activities) ListPendingSummariesActivity(ctx context.Context, limit int) (_ []PendingDocument, err error) {
	defer observeActivity(ctx, "list_pending", time.Now(), &err)

	if limit <= 0 {
		return nil, temporal.NewNonRetryableApplicationError("limit must be positive", errTypeInvalidInput, nil)
	}
	docs, err := a.Metadata.PendingSummaries(ctx, limit)
	if err != nil {
		return nil, WrapActivityError("failed to list pending summaries", err)
	}
	pending := make([]PendingDocument, len(docs))
	for i, d := range docs {
		pending[i] = PendingDocument{ID: d.ID, Filename: d.Filename}
	}
	return pending, nil
}

// SummarizeDocumentActivity loads the document text and asks the generation
// service for a summary.
func (a *Activities) SummarizeDocumentActivity(ctx context.Context, doc PendingDocument) (_ string, err error) {
	defer observeActivity(ctx, "summarize", time.Now(), &err)

	record, err := a.Metadata.GetDocument(ctx, doc.ID)
	if errors.Is(err, metadata.ErrNotFound) {
		return "", temporal.NewNonRetryableApplicationError("document not found: "+doc.ID, errTypeDocumentNotFound, err)
	}
	if err != nil {
		return "", WrapActivityError("failed to load document", err)
	}

	activity.GetLogger(ctx).Info("Summarizing document", "document_id", doc.ID, "filename", doc.Filename)

	summary, err := a.Summarizer.Summarize(ctx, record.RawText)
	if err != nil {
		return "", WrapActivityError("failed to summarize document", err)
	}
	summary = strings.TrimSpace(summary)
	if summary == "" || summary == metadata.SummaryUnavailable {
		return "", ErrSummaryUnavailable
	}
	return summary, nil
}

// UpdateSummaryActivity persists a generated summary.
func (a *Activities) UpdateSummaryActivity(ctx context.Context, input UpdateSummaryInput) (err error) {
	defer observeActivity(ctx, "update_summary", time.Now(), &err)

	if input.DocumentID == "" || strings.TrimSpace(input.Summary) == "" {
		return temporal.NewNonRetryableApplicationError("document id and summary are required", errTypeInvalidInput, nil)
	}
	err = a.Metadata.UpdateSummary(ctx, input.DocumentID, input.Summary)
	if errors.Is(err, metadata.ErrNotFound) {
		return temporal.NewNonRetryableApplicationError("document not found: "+input.DocumentID, errTypeDocumentNotFound, err)
	}
	if err != nil {
		return WrapActivityError("failed to update summary", err)
	}
	recordBackfilled(ctx)
	return nil
}
