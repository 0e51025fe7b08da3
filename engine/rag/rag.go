// Package rag answers tenant questions over their indexed documents.
// A query is routed, rewritten for search, matched against the tenant's
// chunks and the shared preloaded set, packed into a token budget and
// handed to a language model with grounding instructions.
package rag

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/WessleyAI/ragdesk/engine/domain"
	"github.com/WessleyAI/ragdesk/pkg/llm"
	"github.com/WessleyAI/ragdesk/pkg/tokens"
)

const tracerName = "github.com/WessleyAI/ragdesk/engine/rag"

// Options configures the query path.
type Options struct {
	TopK             int
	MaxContextTokens int
	ReservedTokens   int
	// Converse answers chit-chat with a conversational prompt. When false,
	// chit-chat goes to the answer generator with empty context and gets
	// the not-found reply.
	Converse bool
}

func DefaultOptions() Options {
	return Options{
		TopK:             5,
		MaxContextTokens: DefaultMaxContextTokens,
		ReservedTokens:   DefaultReservedTokens,
	}
}

// Answer is the result of a query.
type Answer struct {
	Text           string  `json:"answer"`
	Intent         Intent  `json:"intent"`
	RewrittenQuery string  `json:"rewritten_query,omitempty"`
	Chunks         int     `json:"chunks"`
	Outcome        Outcome `json:"outcome"`
}

// Service is the query orchestrator.
type Service struct {
	router    *Router
	rewriter  *Rewriter
	retriever *Retriever
	assembler *Assembler
	generator *Generator
	opts      Options
	logger    *slog.Logger
}

// New wires the query path from its dependencies.
func New(model llm.Model, embedder QueryEmbedder, index Searcher, counter tokens.Counter, opts Options, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		router:    NewRouter(model, logger),
		rewriter:  NewRewriter(model, logger),
		retriever: NewRetriever(embedder, index, opts.TopK, logger),
		assembler: NewAssembler(counter, opts.MaxContextTokens, opts.ReservedTokens, logger),
		generator: NewGenerator(model, logger),
		opts:      opts,
		logger:    logger,
	}
}

// Query answers q. The only error is a validation error; every downstream
// failure is reflected in Answer.Outcome.
func (s *Service) Query(ctx context.Context, q domain.Query) (*Answer, error) {
	if err := domain.ValidateQuery(q); err != nil {
		return nil, fmt.Errorf("rag: query: %w", err)
	}
	ctx, span := otel.Tracer(tracerName).Start(ctx, "rag.query")
	defer span.End()

	intent := s.router.Route(ctx, q.Text).Value
	span.SetAttributes(attribute.String("rag.intent", string(intent)))
	s.logger.Info("query routed", "tenant_id", q.TenantID, "intent", intent)

	if intent == IntentChitChat {
		var r Reply
		if s.opts.Converse {
			r = s.generator.Converse(ctx, q.Text)
		} else {
			r = s.generator.Answer(ctx, q.Text, "")
		}
		return &Answer{Text: r.Text, Intent: intent, Outcome: r.Outcome}, nil
	}

	rewritten := s.rewriter.Rewrite(ctx, q.Text).Value
	chunks := s.retriever.Retrieve(ctx, q.TenantID, rewritten)
	if len(chunks) == 0 {
		s.logger.Info("no chunks retrieved", "tenant_id", q.TenantID)
	}
	evidence := s.assembler.Assemble(chunks, q.Session)
	r := s.generator.Answer(ctx, q.Text, evidence)

	span.SetAttributes(
		attribute.Int("rag.chunks", len(chunks)),
		attribute.String("rag.outcome", string(r.Outcome)),
	)
	s.logger.Info("query answered", "tenant_id", q.TenantID, "chunks", len(chunks), "outcome", r.Outcome)
	return &Answer{
		Text:           r.Text,
		Intent:         intent,
		RewrittenQuery: rewritten,
		Chunks:         len(chunks),
		Outcome:        r.Outcome,
	}, nil
}
