package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"google.golang.org/genai"

	"github.com/WessleyAI/ragdesk/pkg/resilience"
)

func TestCompletionFromResponse(t *testing.T) {
	text := func(parts ...string) *genai.Content {
		c := &genai.Content{Role: "model"}
		for _, p := range parts {
			c.Parts = append(c.Parts, &genai.Part{Text: p})
		}
		return c
	}

	tests := []struct {
		name string
		resp *genai.GenerateContentResponse
		want Completion
	}{
		{"nil", nil, Completion{Blocked: true, BlockReason: "empty response"}},
		{"prompt blocked", &genai.GenerateContentResponse{
			PromptFeedback: &genai.GenerateContentResponsePromptFeedback{BlockReason: genai.BlockedReasonSafety},
		}, Completion{Blocked: true, BlockReason: "SAFETY"}},
		{"no candidates", &genai.GenerateContentResponse{}, Completion{Blocked: true, BlockReason: "no candidates"}},
		{"joined parts", &genai.GenerateContentResponse{
			Candidates: []*genai.Candidate{{Content: text("Three ", "days. "), FinishReason: genai.FinishReasonStop}},
		}, Completion{Text: "Three days."}},
		{"safety finish", &genai.GenerateContentResponse{
			Candidates: []*genai.Candidate{{FinishReason: genai.FinishReasonSafety}},
		}, Completion{Blocked: true, BlockReason: "SAFETY"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := completionFromResponse(tt.resp); got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestOpenRequiresKey(t *testing.T) {
	if _, err := Open(context.Background(), Config{Provider: "gemini"}); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
	if _, err := Open(context.Background(), Config{Provider: "carrier-pigeon"}); err == nil {
		t.Fatal("expected unknown provider error")
	}
}

func TestGuardTripsBreaker(t *testing.T) {
	calls := 0
	boom := errors.New("boom")
	m := Guard(Func(func(context.Context, string) (Completion, error) {
		calls++
		return Completion{}, boom
	}), resilience.Guard{Breaker: resilience.NewBreaker(resilience.BreakerOpts{FailThreshold: 2})})

	for i := 0; i < 3; i++ {
		m.Complete(context.Background(), "hi")
	}
	if calls != 2 {
		t.Fatalf("expected breaker to stop the third call, got %d calls", calls)
	}
	if _, err := m.Complete(context.Background(), "hi"); !errors.Is(err, resilience.ErrCircuitOpen) {
		t.Fatalf("got %v", err)
	}
}

func TestOpenAIComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		var req struct {
			Messages []struct {
				Content any `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Messages) != 1 {
			t.Errorf("bad request body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"c1","object":"chat.completion","model":"m","choices":[{"index":0,"message":{"role":"assistant","content":" query_documents \n"},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	m, err := NewOpenAI(Config{APIKey: "k", Model: "m", BaseURL: srv.URL})
	if err != nil {
		t.Fatal(err)
	}
	got, err := m.Complete(context.Background(), "classify")
	if err != nil {
		t.Fatal(err)
	}
	if got.Text != "query_documents" || got.Blocked {
		t.Fatalf("got %+v", got)
	}
}
