// Package app builds the bujo components from configuration. Both binaries
// share it so the API server and the Temporal worker run the same pipeline.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/efebarandurmaz/bujo/internal/arbiter"
	"github.com/efebarandurmaz/bujo/internal/config"
	"github.com/efebarandurmaz/bujo/internal/ingest"
	"github.com/efebarandurmaz/bujo/internal/llm"
	"github.com/efebarandurmaz/bujo/internal/llmutil"
	"github.com/efebarandurmaz/bujo/internal/observability"
	"github.com/efebarandurmaz/bujo/internal/secrets"
	"github.com/efebarandurmaz/bujo/internal/server"
	"github.com/efebarandurmaz/bujo/internal/status"
	"github.com/efebarandurmaz/bujo/internal/store"
	"github.com/efebarandurmaz/bujo/internal/store/mongo"
	"github.com/efebarandurmaz/bujo/internal/store/neo4j"
	"github.com/efebarandurmaz/bujo/internal/store/sqlite"
	"github.com/efebarandurmaz/bujo/internal/vector"
	"github.com/efebarandurmaz/bujo/internal/vector/pgvector"
	"github.com/efebarandurmaz/bujo/internal/vector/qdrant"
)

// Version is stamped at build time with -ldflags.
var Version = "dev"

// App holds the process-wide collaborators.
type App struct {
	Config   *config.Config
	Store    store.Store
	Index    vector.Index
	Provider llm.Provider
	Arbiter  arbiter.Arbiter
	Pipeline *ingest.Pipeline
	Status   *status.Service
	Metrics  *observability.IngestMetrics
	Audit    *observability.AuditLogger
	Tracing  *observability.TracerProvider

	logger *slog.Logger
}

// New connects every backend. A record store that cannot be reached is an
// error; an unreachable index or missing embedder is logged and the app
// starts degraded.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := resolveSecrets(ctx, cfg); err != nil {
		return nil, err
	}
	a := &App{Config: cfg, logger: logger, Metrics: observability.NewIngestMetrics()}

	tp, err := observability.InitTracing(ctx, &observability.TracingConfig{
		ServiceVersion: Version,
		Environment:    cfg.Tracing.Environment,
		Endpoint:       tracingEndpoint(cfg.Tracing),
		Insecure:       cfg.Tracing.Insecure,
		SampleRate:     cfg.Tracing.SamplingRate,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}
	a.Tracing = tp

	audit, err := observability.NewAuditLogger(&observability.AuditConfig{
		Enabled:    cfg.Audit.Enabled,
		OutputPath: cfg.Audit.Path,
	})
	if err != nil {
		return nil, a.fail(ctx, err)
	}
	a.Audit = audit

	st, err := OpenStore(ctx, cfg.Store)
	if err != nil {
		return nil, a.fail(ctx, err)
	}
	a.Store = st
	if err := a.Store.Ping(ctx); err != nil {
		return nil, a.fail(ctx, fmt.Errorf("record store %s: %w", cfg.Store.Backend, err))
	}

	idx, err := OpenIndex(ctx, cfg.Vector)
	if err != nil {
		return nil, a.fail(ctx, err)
	}
	a.Index = idx
	if err := a.Index.EnsureSchema(ctx); err != nil {
		logger.Warn("similarity index unavailable, starting degraded", "backend", cfg.Vector.Backend, "error", err)
	}

	factory := llm.NewFactory()
	llmutil.RegisterDefaultProviders(factory)
	provider, err := factory.Create(providerConfig(cfg.LLM))
	if err != nil {
		return nil, a.fail(ctx, fmt.Errorf("llm provider: %w", err))
	}
	a.Provider = provider
	if a.Provider == nil {
		logger.Warn("no embedding provider configured, notebooks are stored without deduplication")
	}

	arb, err := buildArbiter(factory, cfg, logger)
	if err != nil {
		return nil, a.fail(ctx, err)
	}
	a.Arbiter = arb

	var embedder ingest.Embedder
	if e := llm.NewTextEmbedder(a.Provider); e != nil {
		embedder = e
	}
	a.Pipeline = ingest.New(a.Store, a.Index, embedder, a.Arbiter,
		ingest.WithLogger(logger),
		ingest.WithTopN(cfg.Vector.TopN),
		ingest.WithMetrics(a.Metrics),
		ingest.WithAudit(a.Audit),
	)
	a.Status = status.New(a.Store, a.Audit, logger)

	logger.Info("bujo ready",
		"store", cfg.Store.Backend,
		"index", cfg.Vector.Backend,
		"provider", providerName(a.Provider),
		"judge", cfg.LLM.Judge.Enabled,
	)
	return a, nil
}

// resolveSecrets replaces env:, file: and vault: references in credential
// fields with their values.
func resolveSecrets(ctx context.Context, cfg *config.Config) error {
	sources := []secrets.Source{secrets.EnvSource{}, secrets.FileSource{}}
	if cfg.Secrets.VaultAddr != "" {
		token, err := secrets.NewResolver(sources...).Resolve(ctx, cfg.Secrets.VaultToken)
		if err != nil {
			return fmt.Errorf("vault token: %w", err)
		}
		v, err := secrets.NewVaultSource(secrets.VaultConfig{
			Address:   cfg.Secrets.VaultAddr,
			Token:     token,
			MountPath: cfg.Secrets.VaultMount,
		})
		if err != nil {
			return fmt.Errorf("vault: %w", err)
		}
		sources = append(sources, v)
	}
	return secrets.NewResolver(sources...).ResolveAll(ctx,
		&cfg.LLM.APIKey,
		&cfg.LLM.Judge.APIKey,
		&cfg.Store.URI,
		&cfg.Store.Password,
		&cfg.Vector.DSN,
	)
}

// OpenStore connects the configured record store backend.
func OpenStore(ctx context.Context, cfg config.StoreConfig) (store.Store, error) {
	switch cfg.Backend {
	case "mongo":
		s, err := mongo.New(ctx, cfg.URI, cfg.Database, cfg.Collection)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "neo4j":
		s, err := neo4j.New(ctx, cfg.URI, cfg.Username, cfg.Password, cfg.Database)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "sqlite":
		s, err := sqlite.New(ctx, cfg.Path)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "memory":
		return store.NewMemory(), nil
	}
	return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
}

// OpenIndex builds the configured similarity index client. It does not
// contact the backend.
func OpenIndex(ctx context.Context, cfg config.VectorConfig) (vector.Index, error) {
	switch cfg.Backend {
	case "qdrant":
		idx, err := qdrant.New(cfg.Host, cfg.Port, cfg.Collection, cfg.Dimension)
		if err != nil {
			return nil, err
		}
		return idx, nil
	case "pgvector":
		pc := pgvector.DefaultConfig()
		pc.DSN = cfg.DSN
		pc.Dimension = cfg.Dimension
		if cfg.Collection != "" {
			pc.Table = cfg.Collection
		}
		idx, err := pgvector.New(ctx, pc)
		if err != nil {
			return nil, err
		}
		return idx, nil
	case "memory":
		if cfg.Dimension <= 0 {
			return nil, fmt.Errorf("memory index: dimension must be positive, got %d", cfg.Dimension)
		}
		return vector.NewMemory(cfg.Dimension), nil
	}
	return nil, fmt.Errorf("unknown vector backend %q", cfg.Backend)
}

func buildArbiter(factory *llm.ProviderFactory, cfg *config.Config, logger *slog.Logger) (arbiter.Arbiter, error) {
	if !cfg.LLM.Judge.Enabled {
		return arbiter.NewRules(cfg.Vector.Threshold), nil
	}
	judgeCfg := providerConfig(cfg.LLM.ResolveJudge())
	p, err := factory.Create(judgeCfg)
	if err != nil {
		return nil, fmt.Errorf("judge provider: %w", err)
	}
	if p == nil {
		logger.Warn("judge enabled without a provider, using threshold rules")
		return arbiter.NewRules(cfg.Vector.Threshold), nil
	}
	return arbiter.NewJudge(p, cfg.Vector.Threshold, logger), nil
}

func providerConfig(c config.LLMConfig) llm.ProviderConfig {
	pc := llm.DefaultProviderConfig()
	pc.Provider = c.Provider
	pc.APIKey = c.APIKey
	pc.Model = c.Model
	pc.BaseURL = c.BaseURL
	pc.EmbedModel = c.EmbedModel
	pc.Dimensions = c.Dimensions
	if c.Timeout > 0 {
		pc.Timeout = c.Timeout
	}
	if c.MaxRetries > 0 {
		pc.MaxRetries = c.MaxRetries
	}
	if c.RequestsPerMinute > 0 {
		pc.RateLimit = &llm.RateLimitConfig{RequestsPerMinute: c.RequestsPerMinute, BurstSize: c.Burst}
	}
	return pc
}

func providerName(p llm.Provider) string {
	if p == nil {
		return ""
	}
	return p.Name()
}

// embedderCheck embeds a one-word text so an unreachable provider reports
// degraded instead of merely configured.
func embedderCheck(p llm.Provider) func(ctx context.Context) error {
	if p == nil {
		return nil
	}
	return func(ctx context.Context) error {
		_, err := p.Embed(ctx, []string{"health"})
		return err
	}
}

func tracingEndpoint(c config.TracingConfig) string {
	if !c.Enabled {
		return ""
	}
	return c.Endpoint
}

// RegisterHealth adds the store, index and embedder checks and the metrics
// endpoint to h.
func (a *App) RegisterHealth(h *server.HealthServer) {
	h.RegisterCheck("record_store", server.StoreHealthChecker(a.Config.Store.Backend, a.Store.Ping))
	h.RegisterCheck("similarity_index", server.IndexHealthChecker(a.Config.Vector.Backend, func(ctx context.Context) error {
		return vector.Ping(ctx, a.Index)
	}))
	h.RegisterCheck("embedder", server.EmbedderHealthChecker(providerName(a.Provider), embedderCheck(a.Provider)))
	h.Mount("/metrics", a.Metrics.Handler())
}

// ShutdownHooks closes the backends in dependency order.
func (a *App) ShutdownHooks() []server.ShutdownHook {
	var hooks []server.ShutdownHook
	if a.Index != nil {
		hooks = append(hooks, server.IndexShutdownHook(a.Index.Close))
	}
	if a.Tracing != nil {
		hooks = append(hooks, server.TracingShutdownHook(a.Tracing.Shutdown))
	}
	if a.Store != nil {
		hooks = append(hooks, server.StoreShutdownHook(a.Store.Close))
	}
	if a.Audit != nil {
		hooks = append(hooks, server.AuditLoggerShutdownHook(a.Audit.Close))
	}
	return hooks
}

// Close runs the shutdown hooks directly. The CLI uses it for one-shot
// commands that have no ShutdownHandler.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for _, h := range a.ShutdownHooks() {
		if err := h.Fn(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", h.Name, err))
		}
	}
	return errors.Join(errs...)
}

func (a *App) fail(ctx context.Context, err error) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if cerr := a.Close(ctx); cerr != nil {
		a.logger.Warn("cleanup after failed startup", "error", cerr)
	}
	return err
}
