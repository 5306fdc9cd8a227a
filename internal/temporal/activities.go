package temporal

import (
	"context"
	"errors"

	"github.com/efebarandurmaz/bujo/internal/ingest"
	"github.com/efebarandurmaz/bujo/internal/notebook"
	"go.temporal.io/sdk/temporal"
)

// Pipeline is the part of *ingest.Pipeline the activities call.
type Pipeline interface {
	Ingest(ctx context.Context, rec notebook.Record) (ingest.Result, error)
	Reindex(ctx context.Context, limit, concurrency int) (ingest.ReindexResult, error)
}

// Activities are registered as a struct so every worker shares one
// pipeline and its connections.
type Activities struct {
	Pipeline Pipeline
}

// IngestActivity parses and ingests one notebook. Record store failures are
// returned as-is so Temporal retries them.
func (a *Activities) IngestActivity(ctx context.Context, input IngestInput) (ingest.Result, error) {
	rec, err := notebook.Parse(input.Notebook)
	if err != nil {
		return ingest.Result{}, temporal.NewNonRetryableApplicationError(err.Error(), ErrTypeInvalidPayload, err)
	}
	return a.Pipeline.Ingest(ctx, rec)
}

// ReindexActivity runs one reindex pass.
func (a *Activities) ReindexActivity(ctx context.Context, input ReindexInput) (ingest.ReindexResult, error) {
	res, err := a.Pipeline.Reindex(ctx, input.Limit, input.Concurrency)
	if errors.Is(err, ingest.ErrEmbeddingUnavailable) {
		return res, temporal.NewNonRetryableApplicationError(err.Error(), ErrTypeNoEmbedder, err)
	}
	return res, err
}
