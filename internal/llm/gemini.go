package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"
)

type geminiBackend struct {
	client *genai.Client
}

func newGeminiBackend(ctx context.Context, creds credentials, _ settings, httpClient *http.Client) (backend, error) {
	clientCfg := &genai.ClientConfig{
		APIKey:     creds.apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: httpClient,
	}
	if base := strings.TrimSpace(creds.baseURL); base != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: base}
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return geminiBackend{client: client}, nil
}

func (b geminiBackend) generate(ctx context.Context, messages []Message, s settings) (Reply, error) {
	system, rest := splitSystem(messages)

	contents := make([]*genai.Content, 0, len(rest))
	for _, msg := range rest {
		role := genai.Role(genai.RoleUser)
		if msg.Role == RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(msg.Content, role))
	}
	if len(contents) == 0 {
		// Gemini rejects a request made of a system instruction only.
		contents = append(contents, genai.NewContentFromText(system, genai.RoleUser))
		system = ""
	}

	genCfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(s.temperature)),
	}
	if s.sendTopP {
		genCfg.TopP = genai.Ptr(float32(s.topP))
	}
	if system != "" {
		genCfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}

	resp, err := b.client.Models.GenerateContent(ctx, s.model, contents, genCfg)
	if err != nil {
		return Reply{}, err
	}
	if resp == nil || len(resp.Candidates) == 0 {
		return Reply{}, errors.New("gemini returned no candidates")
	}

	meta := Metadata{Model: resp.ModelVersion}
	if reason := resp.Candidates[0].FinishReason; reason != "" {
		meta.FinishReason = string(reason)
	}
	if u := resp.UsageMetadata; u != nil {
		meta.Usage = &Usage{
			InputTokens:        int(u.PromptTokenCount),
			OutputTokens:       int(u.CandidatesTokenCount),
			TotalTokens:        int(u.TotalTokenCount),
			ThoughtsTokenCount: int(u.ThoughtsTokenCount),
		}
	}

	return Reply{Text: resp.Text(), Metadata: meta}, nil
}
