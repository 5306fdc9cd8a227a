package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/efebarandurmaz/bujo/internal/api"
	"github.com/efebarandurmaz/bujo/internal/app"
	"github.com/efebarandurmaz/bujo/internal/config"
	"github.com/efebarandurmaz/bujo/internal/llm"
	"github.com/efebarandurmaz/bujo/internal/notebook"
	"github.com/efebarandurmaz/bujo/internal/server"
	"github.com/efebarandurmaz/bujo/internal/status"
	bujotemporal "github.com/efebarandurmaz/bujo/internal/temporal"
	"github.com/spf13/cobra"
	temporalclient "go.temporal.io/sdk/client"
	temporallog "go.temporal.io/sdk/log"
	"golang.org/x/sync/errgroup"
)

const defaultConfigPath = "configs/bujo.yaml"

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "bujo",
		Short:         "Deduplicating store for digitized bullet-journal notebooks",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", defaultConfigPath, "Config file path")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API with health and metrics endpoints",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configPath)
		},
	}

	var viaTemporal bool
	ingestCmd := &cobra.Command{
		Use:   "ingest <notebook.json>",
		Short: "Ingest one notebook JSON file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(configPath, args[0], viaTemporal)
		},
	}
	ingestCmd.Flags().BoolVar(&viaTemporal, "temporal", false, "Submit through the Temporal worker instead of ingesting in-process")

	getCmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Print a stored notebook",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(configPath, func(ctx context.Context, a *app.App) error {
				rec, err := a.Store.Get(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(rec)
			})
		},
	}

	var listLimit int
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List stored notebooks in insertion order",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(configPath, func(ctx context.Context, a *app.App) error {
				recs, err := a.Store.List(ctx, listLimit)
				if err != nil {
					return err
				}
				for _, r := range recs {
					indexed := ""
					if !r.Indexed {
						indexed = "  (not indexed)"
					}
					fmt.Printf("%s  %s  %s%s\n", r.ID, r.CreatedAt.Format(time.RFC3339), r.Name, indexed)
				}
				return nil
			})
		},
	}
	listCmd.Flags().IntVar(&listLimit, "limit", 0, "Maximum records (default 100)")

	var req status.Request
	statusCmd := &cobra.Command{
		Use:   "status <id>",
		Short: "Change the status of one task or event",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(configPath, func(ctx context.Context, a *app.App) error {
				change, err := a.Status.Update(ctx, args[0], req)
				if err != nil {
					return err
				}
				return printJSON(change)
			})
		},
	}
	statusCmd.Flags().IntVar(&req.PageIndex, "page", 0, "Page index")
	statusCmd.Flags().IntVar(&req.ItemIndex, "item", 0, "Item index within the page")
	statusCmd.Flags().StringVar(&req.Status, "set", "", "New status (incomplete, completed, in_progress, scheduled)")
	_ = statusCmd.MarkFlagRequired("set")

	var (
		reindexLimit       int
		reindexConcurrency int
		reindexTemporal    bool
	)
	reindexCmd := &cobra.Command{
		Use:   "reindex",
		Short: "Embed and index notebooks committed during an outage",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReindex(configPath, reindexLimit, reindexConcurrency, reindexTemporal)
		},
	}
	reindexCmd.Flags().IntVar(&reindexLimit, "limit", 0, "Maximum records to scan (default ingest.reindex_batch)")
	reindexCmd.Flags().IntVar(&reindexConcurrency, "concurrency", 0, "Parallel embed calls (default ingest.reindex_concurrency)")
	reindexCmd.Flags().BoolVar(&reindexTemporal, "temporal", false, "Run as a Temporal workflow")

	providersCmd := &cobra.Command{
		Use:   "providers",
		Short: "List available LLM providers",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("Available LLM providers:")
			fmt.Println()
			for _, name := range llm.PresetNames() {
				p := llm.Presets[name]
				embed := "(no embeddings, judge only)"
				if p.EmbedModel != "" {
					embed = fmt.Sprintf("%s, %d dims", p.EmbedModel, p.Dimension)
				}
				fmt.Printf("  %-12s %-42s %s\n", name, p.BaseURL, embed)
			}
			fmt.Println("  custom       (set base_url to any OpenAI-compatible endpoint)")
			fmt.Println("  none         (store notebooks without deduplication)")
			fmt.Println()
			fmt.Println("Configure in bujo.yaml or via environment:")
			fmt.Println("  BUJO_LLM_PROVIDER=ollama")
			fmt.Println("  BUJO_VECTOR_DIMENSION=768")
		},
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("bujo", app.Version)
		},
	}

	rootCmd.AddCommand(serveCmd, ingestCmd, getCmd, listCmd, statusCmd, reindexCmd, providersCmd, versionCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// loadConfig reads path and installs the configured logger. A missing
// default config file falls back to defaults and BUJO_* variables.
func loadConfig(path string) (*config.Config, *slog.Logger, error) {
	if path == defaultConfigPath {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			path = ""
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, err
	}
	logger := app.NewLogger(cfg.Log, os.Stderr)
	slog.SetDefault(logger)
	return cfg, logger, nil
}

// withApp runs fn against a fully wired app and closes it afterwards.
func withApp(configPath string, fn func(ctx context.Context, a *app.App) error) error {
	cfg, logger, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := a.Close(closeCtx); err != nil {
			logger.Warn("close", "error", err)
		}
	}()
	return fn(ctx, a)
}

func runServe(configPath string) error {
	cfg, logger, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	a, err := app.New(context.Background(), cfg, logger)
	if err != nil {
		return err
	}

	gs := server.NewGracefulServer(&server.HealthConfig{Version: app.Version}, nil)
	a.RegisterHealth(gs.Health)

	apiServer := api.NewServer(&api.Config{
		ListenAddr:   cfg.Server.Addr,
		MaxBodyBytes: cfg.Server.MaxBodyBytes,
	}, a.Pipeline, a.Store, a.Status)
	gs.RegisterHook(server.HTTPServerShutdownHook("api-server", apiServer.Stop))
	for _, h := range a.ShutdownHooks() {
		gs.RegisterHook(h)
	}

	gs.Start(cfg.Server.HealthAddr)

	var g errgroup.Group
	g.Go(func() error {
		err := apiServer.Start()
		if err != nil {
			// The listener never came up; unwind everything else.
			gs.Shutdown.Shutdown()
		}
		return err
	})
	g.Go(gs.Wait)
	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("bujo stopped")
	return nil
}

func runIngest(configPath, file string, viaTemporal bool) error {
	data, err := os.ReadFile(file)
	if err != nil {
		return err
	}
	if viaTemporal {
		return withTemporal(configPath, func(ctx context.Context, c temporalclient.Client, queue string) error {
			res, err := bujotemporal.SubmitIngest(ctx, c, queue, bujotemporal.IngestInput{Notebook: data})
			if err != nil {
				return err
			}
			return printJSON(res)
		})
	}

	rec, err := notebook.Parse(data)
	if err != nil {
		return err
	}
	return withApp(configPath, func(ctx context.Context, a *app.App) error {
		res, err := a.Pipeline.Ingest(ctx, rec)
		if err != nil {
			return err
		}
		return printJSON(res)
	})
}

func runReindex(configPath string, limit, concurrency int, viaTemporal bool) error {
	if viaTemporal {
		return withTemporal(configPath, func(ctx context.Context, c temporalclient.Client, queue string) error {
			res, err := bujotemporal.SubmitReindex(ctx, c, queue, bujotemporal.ReindexInput{Limit: limit, Concurrency: concurrency})
			if err != nil {
				return err
			}
			return printJSON(res)
		})
	}
	return withApp(configPath, func(ctx context.Context, a *app.App) error {
		if limit <= 0 {
			limit = a.Config.Ingest.ReindexBatch
		}
		if concurrency <= 0 {
			concurrency = a.Config.Ingest.ReindexConcurrency
		}
		res, err := a.Pipeline.Reindex(ctx, limit, concurrency)
		if err != nil {
			return err
		}
		return printJSON(res)
	})
}

func withTemporal(configPath string, fn func(ctx context.Context, c temporalclient.Client, queue string) error) error {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	c, err := temporalclient.Dial(temporalclient.Options{
		HostPort:  cfg.Temporal.Host,
		Namespace: cfg.Temporal.Namespace,
		Logger:    temporallog.NewStructuredLogger(slog.Default()),
	})
	if err != nil {
		return fmt.Errorf("temporal client: %w", err)
	}
	defer c.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return fn(ctx, c, cfg.Temporal.TaskQueue)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
