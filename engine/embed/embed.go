// Package embed turns text into fixed-dimension dense vectors. It wraps a
// provider backend with batching and a dimension check so a misconfigured
// model fails loudly instead of writing vectors the index rejects.
package embed

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/WessleyAI/ragdesk/engine/domain"
	"github.com/WessleyAI/ragdesk/pkg/fn"
	"github.com/WessleyAI/ragdesk/pkg/ollama"
)

// DefaultBatchSize bounds how many texts go to the backend per call.
const DefaultBatchSize = 100

// Backend produces raw vectors. langchaingo's embeddings.Embedder and the
// Ollama client both satisfy it.
type Backend interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

var (
	_ Backend = (embeddings.Embedder)(nil)
	_ Backend = (*ollama.EmbedClient)(nil)
)

// Config selects and configures a backend.
type Config struct {
	Provider string // "ollama" or "openai"
	BaseURL  string
	Model    string
	Token    string
}

// Open constructs the backend named by cfg.Provider.
func Open(cfg Config) (Backend, error) {
	switch cfg.Provider {
	case "", "ollama":
		return ollama.NewEmbedClient(cfg.BaseURL, cfg.Model), nil
	case "openai":
		return NewLangChain(cfg.BaseURL, cfg.Token, cfg.Model)
	default:
		return nil, fmt.Errorf("embed: unknown provider %q", cfg.Provider)
	}
}

// NewLangChain returns a backend for any OpenAI-compatible embeddings API.
func NewLangChain(baseURL, token, model string) (Backend, error) {
	if token == "" {
		token = "none"
	}
	opts := []openai.Option{
		openai.WithToken(token),
		openai.WithEmbeddingModel(model),
	}
	if baseURL != "" {
		opts = append(opts, openai.WithBaseURL(baseURL))
	}
	client, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("embed: openai client: %w", err)
	}
	e, err := embeddings.NewEmbedder(client, embeddings.WithStripNewLines(true))
	if err != nil {
		return nil, fmt.Errorf("embed: langchain embedder: %w", err)
	}
	return e, nil
}

// Embedder is safe for concurrent use when its backend is.
type Embedder struct {
	backend   Backend
	dim       int
	batchSize int
	logger    *slog.Logger
}

// New wraps backend. dim is the dimension every vector must have.
func New(backend Backend, dim, batchSize int, logger *slog.Logger) *Embedder {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Embedder{backend: backend, dim: dim, batchSize: batchSize, logger: logger}
}

// Dim returns the configured vector dimension.
func (e *Embedder) Dim() int { return e.dim }

// EmbedQuery embeds one string. Failures are returned as-is; there is no
// retry here.
func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vec, err := e.backend.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed: query: %w", err)
	}
	if err := e.check(vec); err != nil {
		return nil, err
	}
	return vec, nil
}

// EmbedDocuments embeds texts in batches and returns one vector per input,
// in order.
func (e *Embedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for i, batch := range fn.Batches(texts, e.batchSize) {
		vecs, err := e.backend.EmbedDocuments(ctx, batch)
		if err != nil {
			return nil, fmt.Errorf("embed: batch %d: %w", i, err)
		}
		if len(vecs) != len(batch) {
			return nil, fmt.Errorf("embed: batch %d: got %d vectors for %d texts", i, len(vecs), len(batch))
		}
		for _, v := range vecs {
			if err := e.check(v); err != nil {
				return nil, err
			}
		}
		out = append(out, vecs...)
	}
	e.logger.Debug("embedded documents", "count", len(texts))
	return out, nil
}

func (e *Embedder) check(vec []float32) error {
	if len(vec) != e.dim {
		return fmt.Errorf("embed: got %d dimensions, want %d: %w", len(vec), e.dim, domain.ErrDimension)
	}
	return nil
}
