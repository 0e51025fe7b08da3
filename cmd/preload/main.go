// Command preload ingests a directory of shared documents into the
// preloaded tenant, whose chunks every tenant can retrieve.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/WessleyAI/ragdesk/engine/domain"
	"github.com/WessleyAI/ragdesk/engine/ingest"
	"github.com/WessleyAI/ragdesk/internal/wire"
	"github.com/WessleyAI/ragdesk/pkg/config"
	"github.com/WessleyAI/ragdesk/pkg/fn"
)

func main() {
	app := &cli.App{
		Name:  "preload",
		Usage: "Index shared documents for every tenant",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "dir",
				Aliases:  []string{"d"},
				Usage:    "Directory of pdf, docx, txt and md files",
				Required: true,
			},
			&cli.BoolFlag{
				Name:  "watch",
				Usage: "Keep running and re-index files as they change",
			},
			&cli.StringFlag{
				Name:  "config",
				Usage: "Optional YAML config file",
			},
			&cli.StringFlag{
				Name:  "env",
				Usage: "Dotenv file, ignored when missing",
				Value: ".env",
			},
		},
		Action: preload,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := app.RunContext(ctx, os.Args); err != nil {
		slog.Error("preload failed", "err", err)
		os.Exit(1)
	}
}

func preload(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"), c.String("env"))
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	logger := cfg.NewLogger()
	ctx := c.Context

	idx, err := wire.Index(cfg, logger)
	if err != nil {
		return err
	}
	defer idx.Close()
	if err := fn.RetryErr(ctx, fn.FixedRetry(5, 2*time.Second), idx.EnsureSchema); err != nil {
		return err
	}
	emb, err := wire.Embedder(cfg, logger)
	if err != nil {
		return err
	}
	recorder := ingest.RecorderFunc(func(_ context.Context, s domain.TaskStatus) {
		logger.Debug("preload state", "file", s.FileName, "state", s.State)
	})
	pipeline, err := wire.Pipeline(cfg, idx, emb, recorder, nil, logger)
	if err != nil {
		return err
	}

	loader := NewLoader(pipeline, idx, cfg.PreloadedTenant, "", logger)
	dir := c.String("dir")
	n, err := loader.LoadDir(ctx, dir)
	logger.Info("preload finished", "dir", dir, "files", n, "tenant_id", cfg.PreloadedTenant)
	if !c.Bool("watch") {
		return err
	}
	if err != nil {
		logger.Warn("some files failed to load", "err", err)
	}
	return loader.Watch(ctx, dir)
}
