package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"math/big"
	"net/http"
	"strconv"
	"strings"

	"research/backend/internal/config"
)

const maxErrorBodyBytes = 8 * 1024

// OpenRouterModel is one entry of the OpenRouter model catalog.
type OpenRouterModel struct {
	ID                       string   `json:"id"`
	Name                     string   `json:"name"`
	ContextWindow            int      `json:"contextWindow"`
	PromptPriceMicrosUSD     int      `json:"promptPriceMicrosUsd"`
	CompletionPriceMicrosUSD int      `json:"completionPriceMicrosUsd"`
	SupportedParameters      []string `json:"supportedParameters,omitempty"`
	SupportsReasoning        bool     `json:"supportsReasoning"`
}

type openRouterMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openRouterRequest struct {
	Model         string              `json:"model"`
	Messages      []openRouterMessage `json:"messages"`
	Temperature   *float64            `json:"temperature,omitempty"`
	TopP          *float64            `json:"top_p,omitempty"`
	Stream        bool                `json:"stream"`
	StreamOptions *streamOptions      `json:"stream_options,omitempty"`
}

type streamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

type completionTokensDetails struct {
	ReasoningTokens int `json:"reasoning_tokens"`
}

type streamUsage struct {
	PromptTokens            int                      `json:"prompt_tokens"`
	CompletionTokens        int                      `json:"completion_tokens"`
	TotalTokens             int                      `json:"total_tokens"`
	CompletionTokensDetails *completionTokensDetails `json:"completion_tokens_details"`
}

type streamChunk struct {
	Model   string `json:"model"`
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *streamUsage `json:"usage,omitempty"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

type listModelsResponse struct {
	Data []struct {
		ID                  string   `json:"id"`
		Name                string   `json:"name"`
		ContextLength       int      `json:"context_length"`
		SupportedParameters []string `json:"supported_parameters"`
		Pricing             struct {
			Prompt     json.RawMessage `json:"prompt"`
			Completion json.RawMessage `json:"completion"`
		} `json:"pricing"`
		TopProvider struct {
			ContextLength int `json:"context_length"`
		} `json:"top_provider"`
	} `json:"data"`
}

type upstreamStatusError struct {
	statusCode int
	body       string
}

func (e upstreamStatusError) Error() string {
	return fmt.Sprintf("openrouter returned %d: %s", e.statusCode, e.body)
}

// OpenRouterClient talks to the OpenRouter chat completions API.
type OpenRouterClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

func NewOpenRouterClient(cfg config.Config, httpClient *http.Client) OpenRouterClient {
	return newOpenRouterClient(credentials{apiKey: cfg.OpenRouterAPIKey, baseURL: cfg.OpenRouterBaseURL}, httpClient)
}

func newOpenRouterClient(creds credentials, httpClient *http.Client) OpenRouterClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return OpenRouterClient{
		apiKey:     strings.TrimSpace(creds.apiKey),
		baseURL:    strings.TrimRight(strings.TrimSpace(creds.baseURL), "/"),
		httpClient: httpClient,
	}
}

func newOpenRouterBackend(_ context.Context, creds credentials, _ settings, httpClient *http.Client) (backend, error) {
	return newOpenRouterClient(creds, httpClient), nil
}

func (c OpenRouterClient) generate(ctx context.Context, messages []Message, s settings) (Reply, error) {
	var text strings.Builder
	meta := Metadata{}

	req := openRouterRequest{
		Model:         s.model,
		Messages:      make([]openRouterMessage, 0, len(messages)),
		Temperature:   &s.temperature,
		Stream:        true,
		StreamOptions: &streamOptions{IncludeUsage: true},
	}
	if s.sendTopP {
		req.TopP = &s.topP
	}
	for _, msg := range messages {
		req.Messages = append(req.Messages, openRouterMessage{Role: string(msg.Role), Content: msg.Content})
	}

	err := c.stream(ctx, req, func(chunk streamChunk) {
		if chunk.Model != "" {
			meta.Model = chunk.Model
		}
		for _, choice := range chunk.Choices {
			text.WriteString(choice.Delta.Content)
			if choice.FinishReason != "" {
				meta.FinishReason = choice.FinishReason
			}
		}
		if chunk.Usage != nil {
			usage := &Usage{
				InputTokens:  chunk.Usage.PromptTokens,
				OutputTokens: chunk.Usage.CompletionTokens,
				TotalTokens:  chunk.Usage.TotalTokens,
			}
			if details := chunk.Usage.CompletionTokensDetails; details != nil && details.ReasoningTokens > 0 {
				usage.OutputTokenDetails = &OutputTokenDetails{Reasoning: details.ReasoningTokens}
			}
			meta.Usage = usage
		}
	})
	if err != nil {
		return Reply{}, err
	}
	return Reply{Text: text.String(), Metadata: meta}, nil
}

func (c OpenRouterClient) stream(ctx context.Context, req openRouterRequest, onChunk func(streamChunk)) error {
	if c.apiKey == "" {
		return ErrMissingAPIKey
	}
	if strings.TrimSpace(req.Model) == "" {
		return errors.New("model is required")
	}
	if len(req.Messages) == 0 {
		return ErrNoMessages
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal openrouter request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build openrouter request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("request openrouter: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return upstreamStatusError{statusCode: resp.StatusCode, body: strings.TrimSpace(string(body))}
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, ":") || !strings.HasPrefix(line, "data:") {
			continue
		}

		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" {
			continue
		}
		if data == "[DONE]" {
			return nil
		}

		var chunk streamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			continue
		}
		if chunk.Error != nil && strings.TrimSpace(chunk.Error.Message) != "" {
			return errors.New(strings.TrimSpace(chunk.Error.Message))
		}
		onChunk(chunk)
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read openrouter stream: %w", err)
	}
	return nil
}

// ListModels returns the catalog visible to the configured key, falling
// back to the public catalog when the per-user endpoint is unavailable.
func (c OpenRouterClient) ListModels(ctx context.Context) ([]OpenRouterModel, error) {
	if c.apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	models, err := c.listModelsFromPath(ctx, "/models/user")
	if err == nil {
		return models, nil
	}

	var upstreamErr upstreamStatusError
	if errors.As(err, &upstreamErr) && (upstreamErr.statusCode == http.StatusNotFound || upstreamErr.statusCode == http.StatusMethodNotAllowed) {
		return c.listModelsFromPath(ctx, "/models")
	}
	return nil, err
}

func (c OpenRouterClient) listModelsFromPath(ctx context.Context, path string) ([]OpenRouterModel, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("build openrouter models request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request openrouter models: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return nil, upstreamStatusError{statusCode: resp.StatusCode, body: strings.TrimSpace(string(body))}
	}

	var parsed listModelsResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode openrouter models response: %w", err)
	}

	models := make([]OpenRouterModel, 0, len(parsed.Data))
	for _, item := range parsed.Data {
		id := strings.TrimSpace(item.ID)
		if id == "" {
			continue
		}
		name := strings.TrimSpace(item.Name)
		if name == "" {
			name = id
		}
		contextWindow := item.ContextLength
		if contextWindow <= 0 {
			contextWindow = item.TopProvider.ContextLength
		}
		params := normalizeParameters(item.SupportedParameters)

		models = append(models, OpenRouterModel{
			ID:                       id,
			Name:                     name,
			ContextWindow:            contextWindow,
			PromptPriceMicrosUSD:     priceMicros(item.Pricing.Prompt),
			CompletionPriceMicrosUSD: priceMicros(item.Pricing.Completion),
			SupportedParameters:      params,
			SupportsReasoning:        containsAny(params, "reasoning", "reasoning_effort"),
		})
	}
	return models, nil
}

// priceMicros converts a per-token USD price (string or number) to micro-dollars.
func priceMicros(raw json.RawMessage) int {
	value := strings.TrimSpace(string(raw))
	if value == "" || value == "null" {
		return 0
	}

	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return priceStringToMicros(asString)
	}

	var asNumber float64
	if err := json.Unmarshal(raw, &asNumber); err == nil && asNumber >= 0 {
		return int(math.Round(asNumber * 1_000_000))
	}
	return 0
}

func priceStringToMicros(raw string) int {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return 0
	}
	if f, err := strconv.ParseFloat(trimmed, 64); err == nil {
		if f < 0 {
			return 0
		}
		return int(math.Round(f * 1_000_000))
	}

	rat := new(big.Rat)
	if _, ok := rat.SetString(trimmed); !ok || rat.Sign() < 0 {
		return 0
	}
	rat.Mul(rat, big.NewRat(1_000_000, 1))
	f, _ := rat.Float64()
	return int(math.Round(f))
}

func normalizeParameters(raw []string) []string {
	if len(raw) == 0 {
		return nil
	}
	out := make([]string, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for _, p := range raw {
		normalized := strings.ToLower(strings.TrimSpace(p))
		if normalized == "" {
			continue
		}
		if _, exists := seen[normalized]; exists {
			continue
		}
		seen[normalized] = struct{}{}
		out = append(out, normalized)
	}
	return out
}

func containsAny(values []string, targets ...string) bool {
	for _, v := range values {
		for _, t := range targets {
			if v == t {
				return true
			}
		}
	}
	return false
}
