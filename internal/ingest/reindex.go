package ingest

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/efebarandurmaz/bujo/internal/notebook"
	"github.com/efebarandurmaz/bujo/internal/observability"
	"github.com/efebarandurmaz/bujo/internal/vector"
	"golang.org/x/sync/errgroup"
)

// DefaultReindexConcurrency bounds parallel embed+upsert work in Reindex.
const DefaultReindexConcurrency = 4

// ReindexResult counts what a Reindex run did.
type ReindexResult struct {
	Scanned int `json:"scanned"`
	Indexed int `json:"indexed"`
	Failed  int `json:"failed"`
}

// Reindex embeds and upserts up to limit records that were committed without
// reaching the index. Per-record failures are counted and logged; the
// records stay unindexed for the next run. No arbitration is done.
func (p *Pipeline) Reindex(ctx context.Context, limit, concurrency int) (ReindexResult, error) {
	ctx, span := observability.StartReindexSpan(ctx, limit)
	defer span.End()

	if p.embedder == nil {
		return ReindexResult{}, ErrEmbeddingUnavailable
	}
	pending, err := p.store.ListUnindexed(ctx, limit)
	if err != nil {
		observability.RecordError(span, err)
		return ReindexResult{}, fmt.Errorf("list unindexed: %w", err)
	}
	if concurrency <= 0 {
		concurrency = DefaultReindexConcurrency
	}

	var indexed, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for _, rec := range pending {
		g.Go(func() error {
			if err := p.reindexOne(gctx, rec); err != nil {
				failed.Add(1)
				p.logger.Warn("reindex failed", "id", rec.ID, "error", err)
				return nil
			}
			indexed.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	res := ReindexResult{Scanned: len(pending), Indexed: int(indexed.Load()), Failed: int(failed.Load())}
	if p.metrics != nil {
		p.metrics.ReindexedTotal.Add(float64(res.Indexed))
	}
	if p.audit != nil {
		_ = p.audit.Log(&observability.AuditEvent{
			EventType: observability.AuditEventReindex,
			Success:   res.Failed == 0,
			Details:   map[string]any{"scanned": res.Scanned, "indexed": res.Indexed, "failed": res.Failed},
		})
	}
	p.logger.Info("reindex complete", "scanned", res.Scanned, "indexed", res.Indexed, "failed", res.Failed)
	return res, ctx.Err()
}

func (p *Pipeline) reindexOne(ctx context.Context, rec notebook.Record) error {
	summary := notebook.Summarize(rec)
	vec, err := p.embedder.Embed(ctx, summary)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrEmbeddingUnavailable, err)
	}
	if err := vector.CheckDimension(vec, p.index.Dimension()); err != nil {
		return err
	}
	if err := p.index.Upsert(ctx, vector.Entry{ID: rec.ID, Name: rec.Name, Summary: summary, Vector: vec}); err != nil {
		return err
	}
	return p.store.SetIndexed(ctx, rec.ID, true)
}
