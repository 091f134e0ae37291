// Package workflows provides the Temporal summary back-fill workflow.
//
// Documents committed while the generation service was unavailable carry
// the metadata.SummaryUnavailable sentinel. The back-fill workflow lists
// them in batches, summarizes each one and writes the summary back.
package workflows

import (
	"fmt"
)

// DefaultTaskQueue is the task queue the back-fill worker polls.
const DefaultTaskQueue = "docrag-summaries"

// DefaultBatchSize bounds the documents handled by one workflow run.
const DefaultBatchSize = 20

// MaxBatchSize caps BackfillInput.BatchSize.
const MaxBatchSize = 500

// BackfillInput configures one back-fill run.
type BackfillInput struct {
	BatchSize int // Documents to process; 0 uses DefaultBatchSize
}

// Validate checks the batch size bounds.
func (in BackfillInput) Validate() error {
	if in.BatchSize < 0 {
		return fmt.Errorf("BatchSize must not be negative")
	}
	if in.BatchSize > MaxBatchSize {
		return fmt.Errorf("BatchSize must be at most %d", MaxBatchSize)
	}
	return nil
}

func (in BackfillInput) batchSize() int {
	if in.BatchSize == 0 {
		return DefaultBatchSize
	}
	return in.BatchSize
}

// BackfillResult summarizes one back-fill run.
type BackfillResult struct {
	Scanned int      // Documents found with the unavailable sentinel
	Updated int      // Documents whose summary was written
	Failed  int      // Documents left untouched after retries
	Errors  []string // One entry per failed document
}

// PendingDocument identifies a document awaiting a summary. Raw text is
// loaded inside the summarize activity to keep workflow payloads small.
type PendingDocument struct {
	ID       string
	Filename string
}

// UpdateSummaryInput carries a generated summary to persist.
type UpdateSummaryInput struct {
	DocumentID string
	Summary    string
}
