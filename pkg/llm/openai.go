package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// OpenAI calls an OpenAI-compatible chat endpoint through langchaingo.
type OpenAI struct {
	llm       llms.Model
	maxTokens int
}

func NewOpenAI(cfg Config) (*OpenAI, error) {
	opts := []openai.Option{openai.WithToken(cfg.APIKey)}
	if cfg.Model != "" {
		opts = append(opts, openai.WithModel(cfg.Model))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	client, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("llm: openai client: %w", err)
	}
	return &OpenAI{llm: client, maxTokens: cfg.MaxTokens}, nil
}

func (o *OpenAI) Complete(ctx context.Context, prompt string) (Completion, error) {
	var callOpts []llms.CallOption
	if o.maxTokens > 0 {
		callOpts = append(callOpts, llms.WithMaxTokens(o.maxTokens))
	}
	resp, err := o.llm.GenerateContent(ctx, []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeHuman, prompt),
	}, callOpts...)
	if err != nil {
		return Completion{}, fmt.Errorf("llm: openai generate: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Completion{Blocked: true, BlockReason: "no choices"}, nil
	}
	ch := resp.Choices[0]
	if ch.StopReason == "content_filter" {
		return Completion{Blocked: true, BlockReason: ch.StopReason}, nil
	}
	return Completion{Text: strings.TrimSpace(ch.Content)}, nil
}
