package temporal

import (
	"context"
	"fmt"

	"github.com/efebarandurmaz/bujo/internal/ingest"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
)

// StartWorker creates and starts a Temporal worker serving the bujo
// workflows on taskQueue.
func StartWorker(c client.Client, taskQueue string, acts *Activities) (worker.Worker, error) {
	w := worker.New(c, taskQueue, worker.Options{})

	w.RegisterWorkflow(IngestWorkflow)
	w.RegisterWorkflow(ReindexWorkflow)
	w.RegisterActivity(acts)

	if err := w.Start(); err != nil {
		return nil, fmt.Errorf("starting worker: %w", err)
	}
	return w, nil
}

// SubmitIngest starts an IngestWorkflow and waits for its result.
func SubmitIngest(ctx context.Context, c client.Client, taskQueue string, input IngestInput) (ingest.Result, error) {
	run, err := c.ExecuteWorkflow(ctx, client.StartWorkflowOptions{TaskQueue: taskQueue}, IngestWorkflow, input)
	if err != nil {
		return ingest.Result{}, fmt.Errorf("start ingest workflow: %w", err)
	}
	var res ingest.Result
	if err := run.Get(ctx, &res); err != nil {
		return ingest.Result{}, fmt.Errorf("ingest workflow %s: %w", run.GetID(), err)
	}
	return res, nil
}

// SubmitReindex starts a ReindexWorkflow and waits for its result.
func SubmitReindex(ctx context.Context, c client.Client, taskQueue string, input ReindexInput) (ingest.ReindexResult, error) {
	run, err := c.ExecuteWorkflow(ctx, client.StartWorkflowOptions{TaskQueue: taskQueue}, ReindexWorkflow, input)
	if err != nil {
		return ingest.ReindexResult{}, fmt.Errorf("start reindex workflow: %w", err)
	}
	var res ingest.ReindexResult
	if err := run.Get(ctx, &res); err != nil {
		return ingest.ReindexResult{}, fmt.Errorf("reindex workflow %s: %w", run.GetID(), err)
	}
	return res, nil
}
