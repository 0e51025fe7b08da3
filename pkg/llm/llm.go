// Package llm wraps the single-turn text completion calls used by the
// query path.
package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/WessleyAI/ragdesk/pkg/resilience"
)

// ErrNotConfigured is returned by Open when no provider credentials are set.
var ErrNotConfigured = errors.New("llm: not configured")

// Completion is the outcome of one model call. A blocked completion is not
// an error; BlockReason carries the provider's reason when it gave one.
type Completion struct {
	Text        string
	Blocked     bool
	BlockReason string
}

// Model completes a prompt.
type Model interface {
	Complete(ctx context.Context, prompt string) (Completion, error)
}

// Func adapts a function to Model.
type Func func(ctx context.Context, prompt string) (Completion, error)

func (f Func) Complete(ctx context.Context, prompt string) (Completion, error) { return f(ctx, prompt) }

// Config selects and configures a provider.
type Config struct {
	Provider  string // gemini or openai
	APIKey    string
	Model     string
	BaseURL   string // openai-compatible endpoints only
	MaxTokens int
}

// Open builds the configured provider.
func Open(ctx context.Context, cfg Config) (Model, error) {
	switch cfg.Provider {
	case "", "gemini":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("%w: missing gemini api key", ErrNotConfigured)
		}
		return NewGemini(ctx, cfg)
	case "openai":
		return NewOpenAI(cfg)
	default:
		return nil, fmt.Errorf("llm: unknown provider %q", cfg.Provider)
	}
}

type guarded struct {
	m Model
	g resilience.Guard
}

// Guard routes every call through g's limiter and breaker.
func Guard(m Model, g resilience.Guard) Model {
	return &guarded{m: m, g: g}
}

func (g *guarded) Complete(ctx context.Context, prompt string) (Completion, error) {
	return resilience.Guarded(ctx, g.g, func(ctx context.Context) (Completion, error) {
		return g.m.Complete(ctx, prompt)
	})
}
