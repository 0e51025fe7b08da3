package rag

import (
	"log/slog"
	"strings"

	"github.com/WessleyAI/ragdesk/pkg/tokens"
)

const (
	DefaultMaxContextTokens = 8000
	DefaultReservedTokens   = 500

	chunkSeparator = "\n---\n"
	sessionHeader  = "Session context:\n"
	ellipsis       = "..."
)

// Assembler builds the model context from retrieved chunks and optional
// session text within a token budget. Chunks are never cut; the session
// text absorbs any overflow.
type Assembler struct {
	counter tokens.Counter
	budget  int
	logger  *slog.Logger
}

// NewAssembler budgets maxTokens-reserved tokens for context.
func NewAssembler(counter tokens.Counter, maxTokens, reserved int, logger *slog.Logger) *Assembler {
	if logger == nil {
		logger = slog.Default()
	}
	if counter == nil {
		counter = tokens.Words{}
	}
	if maxTokens <= 0 {
		maxTokens = DefaultMaxContextTokens
	}
	if reserved < 0 || reserved >= maxTokens {
		reserved = min(DefaultReservedTokens, maxTokens/2)
	}
	return &Assembler{counter: counter, budget: maxTokens - reserved, logger: logger}
}

// Budget is the effective context size in tokens.
func (a *Assembler) Budget() int { return a.budget }

// Assemble returns "" when there is nothing to put in context.
func (a *Assembler) Assemble(chunks []string, session string) string {
	evidence := strings.Join(chunks, chunkSeparator)
	session = strings.TrimSpace(session)
	if session == "" {
		return evidence
	}

	full := a.withSession(evidence, session)
	if a.counter.Count(full) <= a.budget {
		return full
	}

	used := a.counter.Count(a.withSession(evidence, ""))
	remaining := a.budget - used - a.counter.Count(ellipsis)
	if remaining <= 0 {
		a.logger.Warn("session context dropped, no budget left after retrieved chunks",
			"budget", a.budget, "chunk_tokens", used)
		return evidence
	}
	cut := a.counter.Truncate(session, remaining)
	a.logger.Info("session context truncated",
		"budget", a.budget, "session_tokens", a.counter.Count(session), "kept_tokens", remaining)
	return a.withSession(evidence, cut+ellipsis)
}

func (a *Assembler) withSession(evidence, session string) string {
	if evidence == "" {
		return sessionHeader + session
	}
	return evidence + chunkSeparator + sessionHeader + session
}
