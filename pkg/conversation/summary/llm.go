package summary

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/AlejandroLoraG/luke-poc/pkg/types"
)

// DefaultLLMModel is the model used for summarization calls when no
// override is given. Summaries are short, so the small model is enough.
const DefaultLLMModel = "gpt-4o-mini"

// LLMSummarizer delegates middle-segment compaction to an
// OpenAI-compatible chat completion endpoint. Errors propagate to the
// caller; the Progressive compactor handles the local fallback.
type LLMSummarizer struct {
	client openai.Client
	model  string
}

// LLMOption configures an LLMSummarizer.
type LLMOption func(*llmSettings)

type llmSettings struct {
	model   string
	baseURL string
}

// WithModel overrides the summarization model.
func WithModel(model string) LLMOption {
	return func(s *llmSettings) {
		if model != "" {
			s.model = model
		}
	}
}

// WithBaseURL points the client at an OpenAI-compatible endpoint
// (Azure, local models, and so on).
func WithBaseURL(baseURL string) LLMOption {
	return func(s *llmSettings) {
		s.baseURL = baseURL
	}
}

// NewLLMSummarizer creates a summarizer backed by the OpenAI API.
func NewLLMSummarizer(apiKey string, opts ...LLMOption) (*LLMSummarizer, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("summary: API key is required for LLM summarization")
	}

	settings := llmSettings{model: DefaultLLMModel}
	for _, opt := range opts {
		opt(&settings)
	}

	clientOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if settings.baseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(settings.baseURL))
	}

	return &LLMSummarizer{
		client: openai.NewClient(clientOpts...),
		model:  settings.model,
	}, nil
}

// Summarize implements Summarizer via a chat completion call.
func (s *LLMSummarizer) Summarize(ctx context.Context, turns []types.Turn) (string, error) {
	resp, err := s.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(s.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage("You summarize business workflow conversations for reuse as prompt context. Be concise and concrete."),
			openai.UserMessage(buildPrompt(turns)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("summary: completion call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("summary: completion returned no choices")
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", fmt.Errorf("summary: completion returned empty content")
	}
	return text, nil
}

func buildPrompt(turns []types.Turn) string {
	var b strings.Builder

	b.WriteString("Summarize this conversation in 2-3 sentences, focusing on:\n")
	b.WriteString("- Key topics discussed\n")
	b.WriteString("- Important decisions or outcomes\n")
	b.WriteString("- Workflow operations performed\n\n")
	b.WriteString("Conversation:\n")

	for i, turn := range turns {
		fmt.Fprintf(&b, "Turn %d:\n", i+1)
		fmt.Fprintf(&b, "User: %s\n", turn.UserMessage)
		fmt.Fprintf(&b, "Agent: %s\n\n", turn.AgentMessage)
	}

	b.WriteString("Concise summary:")
	return b.String()
}
