package workflows

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/testsuite"

	"github.com/fyrsmithlabs/docrag/internal/metadata"
)

func TestActivities(t *testing.T) {
	store := newSQLite(t)
	docs := seedDocuments(t, store, metadata.SummaryUnavailable)

	testSuite := &testsuite.WorkflowTestSuite{}

	t.Run("list rejects non-positive limit", func(t *testing.T) {
		env := testSuite.NewTestActivityEnvironment()
		env.RegisterActivity(NewActivities(store, fakeSummarizer{}))

		acts := &Activities{}
		_, err := env.ExecuteActivity(acts.ListPendingSummariesActivity, 0)
		require.Error(t, err)
		var appErr *temporal.ApplicationError
		require.ErrorAs(t, err, &appErr)
		assert.True(t, appErr.NonRetryable())
	})

	t.Run("summarize unknown document is non-retryable", func(t *testing.T) {
		env := testSuite.NewTestActivityEnvironment()
		env.RegisterActivity(NewActivities(store, fakeSummarizer{summary: "x"}))

		acts := &Activities{}
		_, err := env.ExecuteActivity(acts.SummarizeDocumentActivity, PendingDocument{ID: "missing"})
		require.Error(t, err)
		var appErr *temporal.ApplicationError
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, errTypeDocumentNotFound, appErr.Type())
	})

	t.Run("summarize rejects sentinel reply", func(t *testing.T) {
		env := testSuite.NewTestActivityEnvironment()
		env.RegisterActivity(NewActivities(store, fakeSummarizer{summary: metadata.SummaryUnavailable}))

		acts := &Activities{}
		_, err := env.ExecuteActivity(acts.SummarizeDocumentActivity, PendingDocument{ID: docs[0].ID})
		require.Error(t, err)
		assert.Contains(t, err.Error(), ErrSummaryUnavailable.Error())
	})

	t.Run("summarize and update", func(t *testing.T) {
		env := testSuite.NewTestActivityEnvironment()
		env.RegisterActivity(NewActivities(store, fakeSummarizer{summary: "  Short summary. "}))

		acts := &Activities{}
		val, err := env.ExecuteActivity(acts.SummarizeDocumentActivity, PendingDocument{ID: docs[0].ID})
		require.NoError(t, err)
		var summary string
		require.NoError(t, val.Get(&summary))
		assert.Equal(t, "Short summary.", summary)

		_, err = env.ExecuteActivity(acts.UpdateSummaryActivity, UpdateSummaryInput{DocumentID: docs[0].ID, Summary: summary})
		require.NoError(t, err)

		d, err := store.GetDocument(context.Background(), docs[0].ID)
		require.NoError(t, err)
		assert.Equal(t, "Short summary.", d.Summary)
	})

	t.Run("update unknown document", func(t *testing.T) {
		env := testSuite.NewTestActivityEnvironment()
		env.RegisterActivity(NewActivities(store, fakeSummarizer{}))

		acts := &Activities{}
		_, err := env.ExecuteActivity(acts.UpdateSummaryActivity, UpdateSummaryInput{DocumentID: "missing", Summary: "s"})
		require.Error(t, err)
		var appErr *temporal.ApplicationError
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, errTypeDocumentNotFound, appErr.Type())
	})
}
