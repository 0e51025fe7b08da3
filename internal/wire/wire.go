// Package wire builds the long-lived dependencies shared by the binaries
// from a config.Config. Everything is constructed once at startup; a
// failure here is a startup error.
package wire

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/WessleyAI/ragdesk/engine/chunk"
	"github.com/WessleyAI/ragdesk/engine/embed"
	"github.com/WessleyAI/ragdesk/engine/index"
	"github.com/WessleyAI/ragdesk/engine/ingest"
	"github.com/WessleyAI/ragdesk/engine/parse"
	"github.com/WessleyAI/ragdesk/engine/rag"
	"github.com/WessleyAI/ragdesk/pkg/config"
	"github.com/WessleyAI/ragdesk/pkg/llm"
	"github.com/WessleyAI/ragdesk/pkg/resilience"
	"github.com/WessleyAI/ragdesk/pkg/tokens"
)

// Index connects to Qdrant.
func Index(cfg config.Config, logger *slog.Logger) (*index.Store, error) {
	return index.New(cfg.Qdrant.Addr, index.Config{
		Collection:      cfg.Qdrant.Collection,
		Dim:             cfg.Embedding.Dim,
		PreloadedTenant: cfg.PreloadedTenant,
		TopK:            cfg.Qdrant.TopK,
		UpsertBatch:     cfg.Qdrant.UpsertBatch,
		Timeout:         cfg.Qdrant.Timeout,
	}, logger)
}

// Embedder opens the configured embedding backend.
func Embedder(cfg config.Config, logger *slog.Logger) (*embed.Embedder, error) {
	backend, err := embed.Open(embed.Config{
		Provider: cfg.Embedding.Provider,
		BaseURL:  cfg.Embedding.BaseURL,
		Model:    cfg.Embedding.Model,
		Token:    cfg.Embedding.Token,
	})
	if err != nil {
		return nil, err
	}
	return embed.New(backend, cfg.Embedding.Dim, cfg.Embedding.BatchSize, logger), nil
}

// Pipeline assembles the ingestion pipeline.
func Pipeline(cfg config.Config, idx ingest.Indexer, emb ingest.Embedder, rec ingest.StateRecorder, m *ingest.Metrics, logger *slog.Logger) (*ingest.Pipeline, error) {
	if err := parse.SetPDFLicense(cfg.Ingest.PDFLicenseKey); err != nil {
		return nil, fmt.Errorf("wire: pdf license: %w", err)
	}
	return ingest.NewPipeline(ingest.Deps{
		Parser:   parse.New(logger),
		Splitter: chunk.New(cfg.Ingest.ChunkSize, cfg.Ingest.ChunkOverlap),
		Embedder: emb,
		Index:    idx,
		Recorder: rec,
		Metrics:  m,
		Logger:   logger,
	}, ingest.Options{FailOnPartialIndex: cfg.Ingest.FailOnPartialIndex}), nil
}

// Model opens the language model behind a rate limiter and circuit breaker.
func Model(ctx context.Context, cfg config.Config, logger *slog.Logger) (llm.Model, error) {
	m, err := llm.Open(ctx, llm.Config{
		Provider:  cfg.LLM.Provider,
		APIKey:    cfg.LLM.APIKey,
		Model:     cfg.LLM.Model,
		BaseURL:   cfg.LLM.BaseURL,
		MaxTokens: cfg.LLM.MaxTokens,
	})
	if err != nil {
		return nil, err
	}
	return llm.Guard(m, resilience.Guard{
		Limiter: resilience.NewLimiter(resilience.LimiterOpts{Rate: cfg.LLM.RateLimit, Burst: cfg.LLM.Burst}),
		Breaker: resilience.NewBreaker(resilience.BreakerOpts{Name: "llm", Logger: logger}),
	}), nil
}

// Query assembles the query service.
func Query(model llm.Model, emb rag.QueryEmbedder, idx rag.Searcher, cfg config.Config, logger *slog.Logger) *rag.Service {
	return rag.New(model, emb, idx, tokens.New(cfg.Context.Encoding, logger), rag.Options{
		TopK:             cfg.Qdrant.TopK,
		MaxContextTokens: cfg.Context.MaxTokens,
		ReservedTokens:   cfg.Context.ReservedTokens,
		Converse:         cfg.LLM.Converse,
	}, logger)
}
