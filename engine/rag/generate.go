package rag

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/WessleyAI/ragdesk/pkg/llm"
)

// User-facing fixed replies. NotFoundAnswer and ErrorAnswer must stay
// distinct so clients can tell them apart.
const (
	NotFoundAnswer = "I'm sorry, I couldn't find an answer to that in the provided documents."
	ErrorAnswer    = "I'm sorry, but I encountered an error while trying to generate a response. Please try again."
	blockedFormat  = "I'm sorry, I can't help with that request (blocked: %s)."
	unknownReason  = "unspecified"
)

// Outcome classifies a reply.
type Outcome string

const (
	OutcomeAnswered Outcome = "answered"
	OutcomeNotFound Outcome = "not_found"
	OutcomeBlocked  Outcome = "blocked"
	OutcomeError    Outcome = "error"
)

// Reply is what the generator tells the user.
type Reply struct {
	Text    string
	Outcome Outcome
}

// Generator produces the final answer.
type Generator struct {
	model  llm.Model
	logger *slog.Logger
}

func NewGenerator(model llm.Model, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{model: model, logger: logger}
}

// Answer answers query from context only. An empty context returns
// NotFoundAnswer without calling the model.
func (g *Generator) Answer(ctx context.Context, query, evidence string) Reply {
	if strings.TrimSpace(evidence) == "" {
		g.logger.Info("no context, answering not found")
		return Reply{Text: NotFoundAnswer, Outcome: OutcomeNotFound}
	}
	prompt, err := render(answerTmpl, answerPrompt{Context: evidence, Question: query, Refusal: NotFoundAnswer})
	if err != nil {
		g.logger.Error("answer prompt", "err", err)
		return Reply{Text: ErrorAnswer, Outcome: OutcomeError}
	}
	r := g.complete(ctx, prompt)
	if r.Outcome == OutcomeAnswered && r.Text == NotFoundAnswer {
		r.Outcome = OutcomeNotFound
	}
	return r
}

// Converse replies to small talk. It never retrieves.
func (g *Generator) Converse(ctx context.Context, query string) Reply {
	prompt, err := render(converseTmpl, queryPrompt{Query: query})
	if err != nil {
		g.logger.Error("converse prompt", "err", err)
		return Reply{Text: ErrorAnswer, Outcome: OutcomeError}
	}
	return g.complete(ctx, prompt)
}

func (g *Generator) complete(ctx context.Context, prompt string) Reply {
	c, err := g.model.Complete(ctx, prompt)
	switch {
	case err != nil:
		g.logger.Error("generation failed", "err", err)
		return Reply{Text: ErrorAnswer, Outcome: OutcomeError}
	case c.Blocked:
		reason := c.BlockReason
		if reason == "" {
			reason = unknownReason
		}
		g.logger.Warn("generation blocked", "reason", reason)
		return Reply{Text: fmt.Sprintf(blockedFormat, reason), Outcome: OutcomeBlocked}
	case strings.TrimSpace(c.Text) == "":
		g.logger.Warn("generation returned no text")
		return Reply{Text: ErrorAnswer, Outcome: OutcomeError}
	}
	return Reply{Text: strings.TrimSpace(c.Text), Outcome: OutcomeAnswered}
}
