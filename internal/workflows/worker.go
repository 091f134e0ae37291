package workflows

import (
	"context"
	"fmt"
	"time"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"

	"github.com/fyrsmithlabs/docrag/internal/config"
)

// Dial connects to the Temporal frontend named in cfg.
func Dial(cfg config.WorkflowsConfig) (client.Client, error) {
	c, err := client.Dial(client.Options{
		HostPort:  cfg.HostPort,
		Namespace: cfg.Namespace,
	})
	if err != nil {
		return nil, fmt.Errorf("unable to create Temporal client: %w", err)
	}
	return c, nil
}

// NewWorker returns a worker polling taskQueue with the back-fill workflow
// and activities registered. The caller starts and stops it.
func NewWorker(c client.Client, taskQueue string, acts *Activities) worker.Worker {
	if taskQueue == "" {
		taskQueue = DefaultTaskQueue
	}
	w := worker.New(c, taskQueue, worker.Options{})
	w.RegisterWorkflow(SummaryBackfillWorkflow)
	w.RegisterActivity(acts)
	return w
}

// StartBackfill starts one back-fill run and waits for its result.
func StartBackfill(ctx context.Context, c client.Client, taskQueue string, input BackfillInput) (*BackfillResult, string, error) {
	if taskQueue == "" {
		taskQueue = DefaultTaskQueue
	}
	opts := client.StartWorkflowOptions{
		ID:                       fmt.Sprintf("summary-backfill-%d", time.Now().UnixNano()),
		TaskQueue:                taskQueue,
		WorkflowExecutionTimeout: 30 * time.Minute,
	}
	run, err := c.ExecuteWorkflow(ctx, opts, SummaryBackfillWorkflow, input)
	if err != nil {
		return nil, "", fmt.Errorf("failed to start back-fill workflow: %w", err)
	}

	var result BackfillResult
	if err := run.Get(ctx, &result); err != nil {
		return nil, run.GetID(), fmt.Errorf("back-fill workflow %s failed: %w", run.GetID(), err)
	}
	return &result, run.GetID(), nil
}
