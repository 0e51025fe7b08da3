package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/WessleyAI/ragdesk/pkg/fn"
	"github.com/WessleyAI/ragdesk/pkg/llm"
)

// Intent is the router's classification of a query.
type Intent string

const (
	IntentChitChat       Intent = "chit_chat"
	IntentQueryDocuments Intent = "query_documents"
)

var (
	ErrUnknownIntent = errors.New("rag: unknown intent")
	ErrBlocked       = errors.New("rag: completion blocked")
	ErrEmptyRewrite  = errors.New("rag: empty rewrite")
)

// Router classifies queries. Every failure falls back to
// IntentQueryDocuments so a document question is never answered without
// retrieval.
type Router struct {
	model  llm.Model
	logger *slog.Logger
}

func NewRouter(model llm.Model, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{model: model, logger: logger}
}

func (r *Router) Route(ctx context.Context, query string) fn.Decision[Intent] {
	d := r.route(ctx, query)
	if d.IsFallback() {
		r.logger.Warn("router fell back", "intent", d.Value, "err", d.Cause)
	}
	return d
}

func (r *Router) route(ctx context.Context, query string) fn.Decision[Intent] {
	prompt, err := render(routerTmpl, queryPrompt{Query: query})
	if err != nil {
		return fn.Fallback(IntentQueryDocuments, fmt.Errorf("rag: router prompt: %w", err))
	}
	c, err := r.model.Complete(ctx, prompt)
	if err != nil {
		return fn.Fallback(IntentQueryDocuments, fmt.Errorf("rag: route: %w", err))
	}
	if c.Blocked {
		return fn.Fallback(IntentQueryDocuments, fmt.Errorf("%w: %s", ErrBlocked, c.BlockReason))
	}
	return parseIntent(c.Text)
}

func parseIntent(text string) fn.Decision[Intent] {
	label := strings.ToLower(strings.TrimSpace(text))
	label = strings.Trim(label, "\"'`.")
	switch Intent(label) {
	case IntentChitChat:
		return fn.Decided(IntentChitChat)
	case IntentQueryDocuments:
		return fn.Decided(IntentQueryDocuments)
	}
	return fn.Fallback(IntentQueryDocuments, fmt.Errorf("%w: %q", ErrUnknownIntent, text))
}

// Rewriter turns a conversational query into a search query. On any
// failure the original query is used unchanged.
type Rewriter struct {
	model  llm.Model
	logger *slog.Logger
}

func NewRewriter(model llm.Model, logger *slog.Logger) *Rewriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Rewriter{model: model, logger: logger}
}

func (r *Rewriter) Rewrite(ctx context.Context, query string) fn.Decision[string] {
	d := r.rewrite(ctx, query)
	if d.IsFallback() {
		r.logger.Warn("rewriter fell back to original query", "err", d.Cause)
	}
	return d
}

func (r *Rewriter) rewrite(ctx context.Context, query string) fn.Decision[string] {
	prompt, err := render(rewriteTmpl, queryPrompt{Query: query})
	if err != nil {
		return fn.Fallback(query, fmt.Errorf("rag: rewrite prompt: %w", err))
	}
	c, err := r.model.Complete(ctx, prompt)
	if err != nil {
		return fn.Fallback(query, fmt.Errorf("rag: rewrite: %w", err))
	}
	if c.Blocked {
		return fn.Fallback(query, fmt.Errorf("%w: %s", ErrBlocked, c.BlockReason))
	}
	text := strings.Trim(strings.TrimSpace(c.Text), "\"")
	if text == "" {
		return fn.Fallback(query, ErrEmptyRewrite)
	}
	return fn.Decided(text)
}
