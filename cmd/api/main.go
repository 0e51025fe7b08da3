// Command api serves uploads, queries and task status over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/WessleyAI/ragdesk/engine/domain"
	"github.com/WessleyAI/ragdesk/engine/ingest"
	"github.com/WessleyAI/ragdesk/engine/tasks"
	"github.com/WessleyAI/ragdesk/internal/wire"
	"github.com/WessleyAI/ragdesk/pkg/config"
	"github.com/WessleyAI/ragdesk/pkg/metrics"
	"github.com/WessleyAI/ragdesk/pkg/mid"
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
		logger.Error("server exited with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := metrics.New()
	go reg.CollectRuntime(ctx, 15*time.Second)

	nc, err := natsutil.Connect(cfg.NATSURL, "ragdesk-api", logger)
	if err != nil {
		return err
	}
	defer nc.Drain()

	store, err := tasks.Open(cfg.Tasks.Dir, false, cfg.Tasks.TTL, logger)
	if err != nil {
		return err
	}
	defer store.Close()
	statusSub, err := store.Follow(nc, ingest.StatusSubject)
	if err != nil {
		return fmt.Errorf("follow task status: %w", err)
	}
	defer statusSub.Unsubscribe()

	idx, err := wire.Index(cfg, logger)
	if err != nil {
		return err
	}
	defer idx.Close()
	emb, err := wire.Embedder(cfg, logger)
	if err != nil {
		return err
	}
	model, err := wire.Model(ctx, cfg, logger)
	if err != nil {
		return err
	}
	svc := wire.Query(model, emb, idx, cfg, logger)

	if err := os.MkdirAll(cfg.HTTP.UploadDir, 0o755); err != nil {
		return fmt.Errorf("upload dir: %w", err)
	}
	srv := NewServer(svc,
		EnqueueFunc(func(ctx context.Context, t domain.Task) error { return ingest.Enqueue(ctx, nc, t) }),
		store, reg,
		ServerConfig{
			UploadDir:       cfg.HTTP.UploadDir,
			MaxUploadBytes:  cfg.HTTP.MaxUploadMB << 20,
			PreloadedTenant: cfg.PreloadedTenant,
			Ready: func() error {
				if nc.Status() != nats.CONNECTED {
					return errors.New("nats " + nc.Status().String())
				}
				return nil
			},
		}, logger)

	handler := mid.Chain(srv.Routes(),
		mid.Recover(logger),
		mid.RequestID(),
		mid.Logger(logger),
		mid.OTel("ragdesk-api"),
		mid.CORS(cfg.HTTP.CORSOrigin),
		mid.Metrics(reg),
	)

	hs := &http.Server{
		Addr:              ":" + cfg.HTTP.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server starting", "port", cfg.HTTP.Port)
		errCh <- hs.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return hs.Shutdown(shutCtx)
}
