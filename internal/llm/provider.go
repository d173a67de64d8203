package llm

import (
	"context"
	"net/http"

	"research/backend/internal/config"
)

const (
	ProviderGoogle     = "google"
	ProviderOpenAI     = "openai"
	ProviderAnthropic  = "anthropic"
	ProviderOpenRouter = "openrouter"
)

type credentials struct {
	apiKey  string
	baseURL string
}

type providerSpec struct {
	name         string
	defaultModel string
	// acceptsTopP is false for providers whose chat models are driven by
	// temperature alone.
	acceptsTopP bool
	credentials func(config.Config) credentials
	build       func(context.Context, credentials, settings, *http.Client) (backend, error)
}

var providers = []providerSpec{
	{
		name:         ProviderGoogle,
		defaultModel: "gemini-2.0-flash",
		acceptsTopP:  true,
		credentials: func(cfg config.Config) credentials {
			return credentials{apiKey: cfg.GeminiAPIKey, baseURL: cfg.GeminiBaseURL}
		},
		build: newGeminiBackend,
	},
	{
		name:         ProviderOpenAI,
		defaultModel: "gpt-3.5-turbo",
		credentials: func(cfg config.Config) credentials {
			return credentials{apiKey: cfg.OpenAIAPIKey, baseURL: cfg.OpenAIBaseURL}
		},
		build: newOpenAIBackend,
	},
	{
		name:         ProviderAnthropic,
		defaultModel: "claude-3-haiku-20240307",
		credentials: func(cfg config.Config) credentials {
			return credentials{apiKey: cfg.AnthropicAPIKey, baseURL: cfg.AnthropicBaseURL}
		},
		build: newAnthropicBackend,
	},
	{
		name:         ProviderOpenRouter,
		defaultModel: "openrouter/free",
		acceptsTopP:  true,
		credentials: func(cfg config.Config) credentials {
			return credentials{apiKey: cfg.OpenRouterAPIKey, baseURL: cfg.OpenRouterBaseURL}
		},
		build: newOpenRouterBackend,
	},
}

// Providers lists the supported provider identifiers.
func Providers() []string {
	out := make([]string, 0, len(providers))
	for _, p := range providers {
		out = append(out, p.name)
	}
	return out
}

// DefaultModel returns the model used for provider when none is given.
func DefaultModel(provider string) (string, bool) {
	spec, ok := lookupProvider(provider)
	if !ok {
		return "", false
	}
	return spec.defaultModel, true
}

func lookupProvider(name string) (providerSpec, bool) {
	for _, p := range providers {
		if p.name == name {
			return p, true
		}
	}
	return providerSpec{}, false
}
