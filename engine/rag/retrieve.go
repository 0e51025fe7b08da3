package rag

import (
	"context"
	"log/slog"

	"github.com/WessleyAI/ragdesk/engine/index"
)

// QueryEmbedder embeds a single query.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Searcher runs a tenant-scoped hybrid search.
type Searcher interface {
	Search(ctx context.Context, req index.SearchRequest) []string
}

// Retriever embeds a query and runs the hybrid search for a tenant.
type Retriever struct {
	embedder QueryEmbedder
	index    Searcher
	topK     int
	logger   *slog.Logger
}

func NewRetriever(e QueryEmbedder, s Searcher, topK int, logger *slog.Logger) *Retriever {
	if logger == nil {
		logger = slog.Default()
	}
	if topK <= 0 {
		topK = index.DefaultConfig().TopK
	}
	return &Retriever{embedder: e, index: s, topK: topK, logger: logger}
}

// Retrieve returns at most topK chunk texts. An embedding failure yields no
// results rather than an error.
func (r *Retriever) Retrieve(ctx context.Context, tenant, text string) []string {
	vec, err := r.embedder.EmbedQuery(ctx, text)
	if err != nil {
		r.logger.Error("query embedding failed", "tenant_id", tenant, "err", err)
		return nil
	}
	hits := r.index.Search(ctx, index.SearchRequest{
		TenantID: tenant,
		Text:     text,
		Vector:   vec,
		TopK:     r.topK,
	})
	r.logger.Debug("retrieved", "tenant_id", tenant, "chunks", len(hits))
	return hits
}
