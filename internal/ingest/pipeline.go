// Package ingest runs the deduplicating ingest pipeline: summarize, embed,
// search, arbitrate, then commit to the record store and the similarity
// index.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/efebarandurmaz/bujo/internal/arbiter"
	"github.com/efebarandurmaz/bujo/internal/notebook"
	"github.com/efebarandurmaz/bujo/internal/observability"
	"github.com/efebarandurmaz/bujo/internal/store"
	"github.com/efebarandurmaz/bujo/internal/vector"
)

// DefaultTopN is how many neighbours are handed to the arbiter.
const DefaultTopN = 5

// Embedder turns a summary into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Pipeline holds the process-wide collaborators. It keeps no per-call state,
// so concurrent Ingest calls are independent.
type Pipeline struct {
	store    store.Store
	index    vector.Index
	embedder Embedder
	arbiter  arbiter.Arbiter

	topN    int
	logger  *slog.Logger
	metrics *observability.IngestMetrics
	audit   *observability.AuditLogger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger (default slog.Default()).
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// WithTopN sets how many neighbours are searched.
func WithTopN(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.topN = n
		}
	}
}

// WithMetrics records ingest counters and stage latencies on m.
func WithMetrics(m *observability.IngestMetrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithAudit writes one audit event per ingest outcome to a.
func WithAudit(a *observability.AuditLogger) Option {
	return func(p *Pipeline) { p.audit = a }
}

// New creates a pipeline. embedder may be nil, in which case every record is
// committed unindexed. A nil arbiter uses arbiter.Rules at the default
// threshold.
func New(s store.Store, idx vector.Index, embedder Embedder, arb arbiter.Arbiter, opts ...Option) *Pipeline {
	if arb == nil {
		arb = arbiter.NewRules(arbiter.DefaultThreshold)
	}
	p := &Pipeline{
		store:    s,
		index:    idx,
		embedder: embedder,
		arbiter:  arb,
		topN:     DefaultTopN,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Ingest decides whether rec is new, a duplicate, or an update of a stored
// notebook, and commits it when new. Only a record store failure returns an
// error, as a *StageError; everything else degrades to warnings.
func (p *Pipeline) Ingest(ctx context.Context, rec notebook.Record) (Result, error) {
	start := time.Now()
	if rec.Name == "" {
		rec.Name = notebook.NameOf(rec.Payload)
	}

	ctx, span := observability.StartIngestSpan(ctx, rec.Name)
	defer span.End()
	if p.metrics != nil {
		p.metrics.InFlightIngests.Add(1)
		defer p.metrics.InFlightIngests.Add(-1)
	}

	res, err := p.run(ctx, rec)
	elapsed := time.Since(start)

	if p.metrics != nil {
		p.metrics.RecordIngest(elapsed, string(res.Verdict.Kind), len(res.Warnings), err)
		if res.HasWarning(CodeNotIndexed) {
			p.metrics.NotIndexedTotal.Inc()
		}
	}
	observability.RecordVerdict(span, string(res.Verdict.Kind), res.Verdict.MatchedID, res.Verdict.Similarity, res.Committed, len(res.Warnings))
	observability.RecordError(span, err)
	p.auditResult(res, err, elapsed)

	for _, w := range res.Warnings {
		p.logger.Warn("ingest warning", "stage", w.Stage, "code", w.Code, "message", w.Message, "error", w.Err)
	}
	if err != nil {
		p.logger.Error("ingest failed", "name", rec.Name, "error", err)
		return res, err
	}
	p.logger.Info("ingest complete",
		"id", res.ID,
		"verdict", res.Verdict.Kind,
		"committed", res.Committed,
		"warnings", len(res.Warnings),
		"duration_ms", elapsed.Milliseconds(),
	)
	return res, nil
}

func (p *Pipeline) run(ctx context.Context, rec notebook.Record) (Result, error) {
	summary := notebook.Summarize(rec)
	res := Result{Verdict: arbiter.Verdict{Kind: arbiter.NoMatch}, Warnings: []Warning{}}

	vec := p.embed(ctx, summary, &res)
	if vec != nil {
		if matches, ok := p.search(ctx, vec, &res); ok {
			res.Verdict = p.arbitrate(ctx, summary, matches, &res)
		}
	}

	switch res.Verdict.Kind {
	case arbiter.ExactDuplicate, arbiter.PartialUpdate:
		res.ID = res.Verdict.MatchedID
		return res, nil
	}
	return p.commit(ctx, rec, summary, vec, res)
}

// embed returns nil when no usable vector was produced; the reason is
// attached to res.
func (p *Pipeline) embed(ctx context.Context, summary string, res *Result) []float32 {
	if p.embedder == nil {
		res.warn(StageEmbed, CodeEmbeddingUnavailable, "no embedder configured", ErrEmbeddingUnavailable)
		return nil
	}

	ctx, span := observability.StartStageSpan(ctx, StageEmbed)
	defer span.End()
	start := time.Now()
	vec, err := p.embedder.Embed(ctx, summary)
	if p.metrics != nil {
		p.metrics.EmbedDuration.ObserveDuration(start)
	}
	if err != nil {
		observability.RecordError(span, err)
		res.warn(StageEmbed, CodeEmbeddingUnavailable, "embedding failed",
			fmt.Errorf("%w: %w", ErrEmbeddingUnavailable, err))
		return nil
	}
	if err := vector.CheckDimension(vec, p.index.Dimension()); err != nil {
		observability.RecordError(span, err)
		res.warn(StageEmbed, CodeDimensionMismatch, err.Error(), err)
		return nil
	}
	return vec
}

func (p *Pipeline) search(ctx context.Context, vec []float32, res *Result) ([]vector.Match, bool) {
	ctx, span := observability.StartStageSpan(ctx, StageSearch)
	defer span.End()

	matches, err := p.index.TopN(ctx, vec, p.topN)
	if err != nil {
		observability.RecordError(span, err)
		code := CodeSearchUnavailable
		if errors.Is(err, vector.ErrDimensionMismatch) {
			code = CodeDimensionMismatch
		}
		res.warn(StageSearch, code, "similarity search failed", err)
		return nil, false
	}
	return matches, true
}

// arbitrate falls back to NoMatch on any arbiter error: creating a possible
// duplicate is preferred over dropping a new notebook.
func (p *Pipeline) arbitrate(ctx context.Context, summary string, matches []vector.Match, res *Result) arbiter.Verdict {
	ctx, span := observability.StartStageSpan(ctx, StageArbitrate)
	defer span.End()

	v, err := p.arbiter.Decide(ctx, summary, matches)
	if err != nil {
		observability.RecordError(span, err)
		code := CodeArbitrationUnavailable
		if errors.Is(err, arbiter.ErrParse) {
			code = CodeArbitrationParse
		}
		res.warn(StageArbitrate, code, "arbitration failed, treated as no match", err)
		return arbiter.Verdict{Kind: arbiter.NoMatch}
	}
	return v
}

// commit writes the record store first. The index write happens only after
// the record is durable, and its failure is a warning.
func (p *Pipeline) commit(ctx context.Context, rec notebook.Record, summary string, vec []float32, res Result) (Result, error) {
	ctx, span := observability.StartStageSpan(ctx, StageCommit)
	defer span.End()

	rec.ID = ""
	rec.CreatedAt = time.Time{}
	rec.Indexed = false
	id, err := p.store.Put(ctx, rec)
	if err != nil {
		observability.RecordError(span, err)
		return res, &StageError{Stage: StageCommit, Committed: false, Err: err}
	}
	res.ID = id
	res.Committed = true

	if vec == nil {
		res.warn(StageIndex, CodeNotIndexed, "not indexed", nil)
		return res, nil
	}
	entry := vector.Entry{ID: id, Name: rec.Name, Summary: summary, Vector: vec}
	if err := p.index.Upsert(ctx, entry); err != nil {
		observability.RecordError(span, err)
		res.warn(StageIndex, CodeNotIndexed, "not indexed", err)
		return res, nil
	}
	if err := p.store.SetIndexed(ctx, id, true); err != nil {
		res.warn(StageIndex, CodeIndexFlagStale, "indexed but record flag not updated", err)
	}
	return res, nil
}

func (p *Pipeline) auditResult(res Result, err error, elapsed time.Duration) {
	if p.audit == nil {
		return
	}
	ev := &observability.AuditEvent{
		NotebookID: res.ID,
		MatchedID:  res.Verdict.MatchedID,
		Success:    err == nil,
		DurationMS: elapsed.Milliseconds(),
	}
	switch {
	case err != nil:
		ev.EventType = observability.AuditEventIngestFailed
		ev.Message = err.Error()
		var se *StageError
		if errors.As(err, &se) {
			ev.ErrorCode = se.Stage
		}
	case res.Verdict.Kind == arbiter.ExactDuplicate:
		ev.EventType = observability.AuditEventIngestDuplicate
	case res.Verdict.Kind == arbiter.PartialUpdate:
		ev.EventType = observability.AuditEventIngestUpdate
		ev.Details = map[string]any{"lines_to_add": res.Verdict.LinesToAdd}
	default:
		ev.EventType = observability.AuditEventIngestCommit
		ev.Details = map[string]any{"indexed": !res.HasWarning(CodeNotIndexed)}
	}
	if aerr := p.audit.Log(ev); aerr != nil {
		p.logger.Warn("audit write failed", "error", aerr)
	}
}
