package workflows

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

// SummaryBackfillWorkflow back-fills summaries for one batch of documents.
//
// This workflow:
// 1. Lists documents still carrying the unavailable sentinel
// 2. Summarizes each document, retrying transient generation failures
// 3. Writes every successful summary back to the metadata store
//
// A document that still fails after retries is counted in Failed and left
// for the next run.
func SummaryBackfillWorkflow(ctx workflow.Context, input BackfillInput) (*BackfillResult, error) {
	logger := workflow.GetLogger(ctx)
	if err := input.Validate(); err != nil {
		return nil, temporal.NewNonRetryableApplicationError(err.Error(), errTypeInvalidInput, err)
	}

	var a *Activities

	listCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts: 3,
		},
	})
	var pending []PendingDocument
	if err := workflow.ExecuteActivity(listCtx, a.ListPendingSummariesActivity, input.batchSize()).Get(ctx, &pending); err != nil {
		return nil, WrapActivityError("failed to list pending summaries", err)
	}

	result := &BackfillResult{Scanned: len(pending)}
	logger.Info("Starting summary back-fill", "pending", len(pending))
	if len(pending) == 0 {
		return result, nil
	}

	summarizeCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 3 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:        5 * time.Second,
			BackoffCoefficient:     2.0,
			MaximumInterval:        time.Minute,
			MaximumAttempts:        4,
			NonRetryableErrorTypes: []string{errTypeDocumentNotFound, errTypeInvalidInput},
		},
	})
	updateCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts:        3,
			NonRetryableErrorTypes: []string{errTypeDocumentNotFound, errTypeInvalidInput},
		},
	})

	futures := make([]workflow.Future, len(pending))
	for i, doc := range pending {
		futures[i] = workflow.ExecuteActivity(summarizeCtx, a.SummarizeDocumentActivity, doc)
	}

	for i, doc := range pending {
		var summary string
		if err := futures[i].Get(ctx, &summary); err != nil {
			logger.Warn("Summary still unavailable", "document_id", doc.ID, "error", err)
			result.Failed++
			result.Errors = append(result.Errors, FormatErrorForResult("failed to summarize "+doc.ID, err))
			continue
		}

		err := workflow.ExecuteActivity(updateCtx, a.UpdateSummaryActivity, UpdateSummaryInput{
			DocumentID: doc.ID,
			Summary:    summary,
		}).Get(ctx, nil)
		if err != nil {
			logger.Warn("Failed to store summary", "document_id", doc.ID, "error", err)
			result.Failed++
			result.Errors = append(result.Errors, FormatErrorForResult("failed to update "+doc.ID, err))
			continue
		}
		result.Updated++
	}

	logger.Info("Summary back-fill complete",
		"scanned", result.Scanned,
		"updated", result.Updated,
		"failed", result.Failed)
	return result, nil
}
