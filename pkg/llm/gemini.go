package llm

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

const DefaultGeminiModel = "gemini-2.5-flash"

var safetySettings = []*genai.SafetySetting{
	{Category: genai.HarmCategoryHarassment, Threshold: genai.HarmBlockThresholdBlockMediumAndAbove},
	{Category: genai.HarmCategoryHateSpeech, Threshold: genai.HarmBlockThresholdBlockMediumAndAbove},
	{Category: genai.HarmCategorySexuallyExplicit, Threshold: genai.HarmBlockThresholdBlockMediumAndAbove},
	{Category: genai.HarmCategoryDangerousContent, Threshold: genai.HarmBlockThresholdBlockMediumAndAbove},
}

// Gemini calls the Gemini API.
type Gemini struct {
	models *genai.Models
	model  string
	config *genai.GenerateContentConfig
}

func NewGemini(ctx context.Context, cfg Config) (*Gemini, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("llm: gemini client: %w", err)
	}
	model := cfg.Model
	if model == "" {
		model = DefaultGeminiModel
	}
	gc := &genai.GenerateContentConfig{SafetySettings: safetySettings}
	if cfg.MaxTokens > 0 {
		gc.MaxOutputTokens = int32(cfg.MaxTokens)
	}
	return &Gemini{models: client.Models, model: model, config: gc}, nil
}

func (g *Gemini) Complete(ctx context.Context, prompt string) (Completion, error) {
	resp, err := g.models.GenerateContent(ctx, g.model, genai.Text(prompt), g.config)
	if err != nil {
		return Completion{}, fmt.Errorf("llm: gemini generate: %w", err)
	}
	return completionFromResponse(resp), nil
}

// blockingFinish lists finish reasons that mean the output was withheld.
var blockingFinish = map[genai.FinishReason]bool{
	genai.FinishReasonSafety:            true,
	genai.FinishReasonRecitation:        true,
	genai.FinishReasonBlocklist:         true,
	genai.FinishReasonProhibitedContent: true,
	genai.FinishReasonSPII:              true,
}

func completionFromResponse(resp *genai.GenerateContentResponse) Completion {
	if resp == nil {
		return Completion{Blocked: true, BlockReason: "empty response"}
	}
	if fb := resp.PromptFeedback; fb != nil && fb.BlockReason != "" {
		return Completion{Blocked: true, BlockReason: string(fb.BlockReason)}
	}
	if len(resp.Candidates) == 0 {
		return Completion{Blocked: true, BlockReason: "no candidates"}
	}
	c := resp.Candidates[0]
	var sb strings.Builder
	if c.Content != nil {
		for _, p := range c.Content.Parts {
			if p != nil && !p.Thought {
				sb.WriteString(p.Text)
			}
		}
	}
	text := strings.TrimSpace(sb.String())
	if blockingFinish[c.FinishReason] && text == "" {
		return Completion{Blocked: true, BlockReason: string(c.FinishReason)}
	}
	return Completion{Text: text}
}
