package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"os"

	"github.com/efebarandurmaz/bujo/internal/app"
	"github.com/efebarandurmaz/bujo/internal/config"
	"github.com/efebarandurmaz/bujo/internal/server"
	bujotemporal "github.com/efebarandurmaz/bujo/internal/temporal"

	temporalclient "go.temporal.io/sdk/client"
	temporallog "go.temporal.io/sdk/log"
)

func main() {
	configPath := flag.String("config", "configs/bujo.yaml", "Config file path")
	flag.Parse()

	path := *configPath
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		path = ""
	}
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := app.NewLogger(cfg.Log, os.Stderr)
	slog.SetDefault(logger)

	a, err := app.New(context.Background(), cfg, logger)
	if err != nil {
		log.Fatalf("app: %v", err)
	}

	c, err := temporalclient.Dial(temporalclient.Options{
		HostPort:  cfg.Temporal.Host,
		Namespace: cfg.Temporal.Namespace,
		Logger:    temporallog.NewStructuredLogger(logger),
	})
	if err != nil {
		log.Fatalf("temporal client: %v", err)
	}
	defer c.Close()

	w, err := bujotemporal.StartWorker(c, cfg.Temporal.TaskQueue, &bujotemporal.Activities{Pipeline: a.Pipeline})
	if err != nil {
		log.Fatalf("worker: %v", err)
	}

	gs := server.NewGracefulServer(&server.HealthConfig{Version: app.Version}, nil)
	a.RegisterHealth(gs.Health)
	gs.Health.RegisterCheck("temporal", server.TemporalHealthChecker(func(ctx context.Context) error {
		_, err := c.CheckHealth(ctx, &temporalclient.CheckHealthRequest{})
		return err
	}))
	gs.RegisterHook(server.TemporalWorkerShutdownHook(w.Stop))
	for _, h := range a.ShutdownHooks() {
		gs.RegisterHook(h)
	}
	gs.Start(cfg.Server.HealthAddr)

	logger.Info("worker started", "task_queue", cfg.Temporal.TaskQueue, "health_addr", cfg.Server.HealthAddr)
	if err := gs.Wait(); err != nil {
		logger.Error("shutdown finished with errors", "error", err)
		os.Exit(1)
	}
	logger.Info("worker stopped")
}
