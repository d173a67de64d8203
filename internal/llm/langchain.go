package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/openai"
)

// langchainBackend drives any langchaingo chat model.
type langchainBackend struct {
	model llms.Model
	// Anthropic requires max_tokens on every request.
	requireMaxTokens bool
}

func newOpenAIBackend(_ context.Context, creds credentials, s settings, httpClient *http.Client) (backend, error) {
	opts := []openai.Option{
		openai.WithToken(creds.apiKey),
		openai.WithModel(s.model),
		openai.WithHTTPClient(httpClient),
	}
	if base := strings.TrimSpace(creds.baseURL); base != "" {
		opts = append(opts, openai.WithBaseURL(base))
	}
	model, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create openai client: %w", err)
	}
	return langchainBackend{model: model}, nil
}

func newAnthropicBackend(_ context.Context, creds credentials, s settings, httpClient *http.Client) (backend, error) {
	opts := []anthropic.Option{
		anthropic.WithToken(creds.apiKey),
		anthropic.WithModel(s.model),
		anthropic.WithHTTPClient(httpClient),
	}
	if base := strings.TrimSpace(creds.baseURL); base != "" {
		opts = append(opts, anthropic.WithBaseURL(base))
	}
	model, err := anthropic.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create anthropic client: %w", err)
	}
	return langchainBackend{model: model, requireMaxTokens: true}, nil
}

func (b langchainBackend) generate(ctx context.Context, messages []Message, s settings) (Reply, error) {
	content := make([]llms.MessageContent, 0, len(messages))
	for _, msg := range messages {
		content = append(content, llms.TextParts(chatMessageType(msg.Role), msg.Content))
	}

	opts := []llms.CallOption{
		llms.WithModel(s.model),
		llms.WithTemperature(s.temperature),
	}
	if s.sendTopP {
		opts = append(opts, llms.WithTopP(s.topP))
	}
	if b.requireMaxTokens && s.maxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(s.maxTokens))
	}

	resp, err := b.model.GenerateContent(ctx, content, opts...)
	if err != nil {
		return Reply{}, err
	}
	if resp == nil || len(resp.Choices) == 0 || resp.Choices[0] == nil {
		return Reply{}, errors.New("provider returned no choices")
	}

	choice := resp.Choices[0]
	return Reply{
		Text: choice.Content,
		Metadata: Metadata{
			FinishReason: choice.StopReason,
			Usage:        usageFromGenerationInfo(choice.GenerationInfo),
		},
	}, nil
}

func chatMessageType(role Role) llms.ChatMessageType {
	switch role {
	case RoleSystem:
		return llms.ChatMessageTypeSystem
	case RoleAssistant:
		return llms.ChatMessageTypeAI
	default:
		return llms.ChatMessageTypeHuman
	}
}

// usageFromGenerationInfo reads token counts from the provider-specific
// keys langchaingo places in GenerationInfo.
func usageFromGenerationInfo(info map[string]any) *Usage {
	if len(info) == 0 {
		return nil
	}

	input, okIn := intFromInfo(info, "PromptTokens", "InputTokens")
	output, okOut := intFromInfo(info, "CompletionTokens", "OutputTokens")
	if !okIn && !okOut {
		return nil
	}

	usage := &Usage{InputTokens: input, OutputTokens: output}
	if total, ok := intFromInfo(info, "TotalTokens"); ok {
		usage.TotalTokens = total
	} else {
		usage.TotalTokens = input + output
	}
	if reasoning, ok := intFromInfo(info, "ReasoningTokens", "CompletionReasoningTokens"); ok && reasoning > 0 {
		usage.OutputTokenDetails = &OutputTokenDetails{Reasoning: reasoning}
	}
	return usage
}

func intFromInfo(info map[string]any, keys ...string) (int, bool) {
	for _, key := range keys {
		switch v := info[key].(type) {
		case int:
			return v, true
		case int32:
			return int(v), true
		case int64:
			return int(v), true
		case float64:
			return int(v), true
		}
	}
	return 0, false
}
