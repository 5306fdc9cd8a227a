package temporal

import (
	"encoding/json"
	"time"

	"github.com/efebarandurmaz/bujo/internal/ingest"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

// IngestInput carries one notebook JSON object.
type IngestInput struct {
	Notebook json.RawMessage `json:"notebook"`
}

// ReindexInput bounds one reindex run. Zero values use the pipeline defaults.
type ReindexInput struct {
	Limit       int `json:"limit"`
	Concurrency int `json:"concurrency"`
}

// Application error types that stop activity retries.
const (
	ErrTypeInvalidPayload = "InvalidPayload"
	ErrTypeNoEmbedder     = "NoEmbedder"
)

// retryPolicy retries store outages. A retried ingest whose first attempt
// did commit is reported as a duplicate once the record is indexed.
var retryPolicy = &temporal.RetryPolicy{
	InitialInterval:        time.Second,
	BackoffCoefficient:     2.0,
	MaximumInterval:        time.Minute,
	MaximumAttempts:        5,
	NonRetryableErrorTypes: []string{ErrTypeInvalidPayload, ErrTypeNoEmbedder},
}

// IngestWorkflow ingests one notebook.
func IngestWorkflow(ctx workflow.Context, input IngestInput) (ingest.Result, error) {
	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 5 * time.Minute,
		RetryPolicy:         retryPolicy,
	})

	var a *Activities
	var res ingest.Result
	if err := workflow.ExecuteActivity(ctx, a.IngestActivity, input).Get(ctx, &res); err != nil {
		// Returned as is so the activity's ApplicationError type stays
		// reachable through errors.As for SubmitIngest callers.
		return ingest.Result{}, err
	}
	workflow.GetLogger(ctx).Info("notebook ingested",
		"id", res.ID, "verdict", res.Verdict.Kind, "committed", res.Committed, "warnings", len(res.Warnings))
	return res, nil
}

// ReindexWorkflow indexes notebooks that were committed during an index or
// embedder outage. It is meant to run on a Temporal schedule.
func ReindexWorkflow(ctx workflow.Context, input ReindexInput) (ingest.ReindexResult, error) {
	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Minute,
		RetryPolicy:         retryPolicy,
	})

	var a *Activities
	var res ingest.ReindexResult
	if err := workflow.ExecuteActivity(ctx, a.ReindexActivity, input).Get(ctx, &res); err != nil {
		return ingest.ReindexResult{}, err
	}
	return res, nil
}
