// Command worker consumes ingestion tasks from NATS and indexes the
// documents into Qdrant.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/WessleyAI/ragdesk/engine/ingest"
	"github.com/WessleyAI/ragdesk/internal/wire"
	"github.com/WessleyAI/ragdesk/pkg/config"
	"github.com/WessleyAI/ragdesk/pkg/fn"
	"github.com/WessleyAI/ragdesk/pkg/metrics"
	"github.com/WessleyAI/ragdesk/pkg/natsutil"
)

func main() {
	cfgPath := flag.String("config", "", "optional YAML config file")
	dotenv := flag.String("env", ".env", "dotenv file, ignored when missing")
	flag.Parse()

	cfg, err := config.Load(*cfgPath, *dotenv)
	if err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}
	logger := cfg.NewLogger()

	if err := run(cfg, logger); err != nil {
		logger.Error("worker exited with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := metrics.New()
	go reg.CollectRuntime(ctx, 15*time.Second)
	ms := reg.ServeAsync(cfg.MetricsAddr, logger)
	defer ms.Close()

	nc, err := natsutil.Connect(cfg.NATSURL, "ragdesk-worker", logger)
	if err != nil {
		return err
	}
	defer nc.Drain()

	idx, err := wire.Index(cfg, logger)
	if err != nil {
		return err
	}
	defer idx.Close()
	// Qdrant may still be starting. Not fatal: every run ensures the schema.
	if err := fn.RetryErr(ctx, fn.FixedRetry(5, 2*time.Second), idx.EnsureSchema); err != nil {
		logger.Warn("ensure schema at startup", "err", err)
	}
	emb, err := wire.Embedder(cfg, logger)
	if err != nil {
		return err
	}

	m := ingest.NewMetrics(reg)
	pipeline, err := wire.Pipeline(cfg, idx, emb, ingest.StatusPublisher(nc, logger), m, logger)
	if err != nil {
		return err
	}

	w, err := ingest.NewWorker(nc, pipeline, ingest.WorkerOptions{
		PoolSize:   cfg.Ingest.Workers,
		MaxRetries: cfg.Ingest.MaxRetries,
		Backoff:    cfg.Ingest.RetryBackoff,
	}, m, logger)
	if err != nil {
		return err
	}
	if err := w.Start(); err != nil {
		return err
	}

	<-ctx.Done()
	logger.Info("shutting down")
	if err := w.Stop(30 * time.Second); err != nil {
		return fmt.Errorf("stop worker: %w", err)
	}
	return nil
}
