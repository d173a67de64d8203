// Package llm is the completion client: one call shape over several chat
// model providers, chosen by name when the client is built.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"research/backend/internal/config"
	"research/backend/internal/metrics"

	"go.uber.org/zap"
)

const (
	// NoMessagesText is returned by Complete when called without messages.
	NoMessagesText = "No messages provided."
	// FallbackText is returned by Complete when the provider call fails.
	FallbackText = "An error occurred while processing your request."
)

var (
	ErrNoMessages          = errors.New("no messages provided")
	ErrUnsupportedProvider = errors.New("unsupported model provider")
	ErrMissingAPIKey       = errors.New("api key is not configured")
)

// ConfigError reports a client that cannot be built for Provider.
type ConfigError struct {
	Provider string
	Err      error
}

func (e *ConfigError) Error() string {
	if errors.Is(e.Err, ErrUnsupportedProvider) {
		return fmt.Sprintf("unsupported model provider: %q (supported: %s)", e.Provider, strings.Join(Providers(), ", "))
	}
	return fmt.Sprintf("%s provider: %v", e.Provider, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// Params are per-client overrides. Nil or empty fields fall back to config.
type Params struct {
	Provider    string
	Model       string
	Temperature *float64
	TopP        *float64
}

type settings struct {
	model       string
	temperature float64
	topP        float64
	sendTopP    bool
	maxTokens   int
}

// backend is one provider's implementation of a single chat completion.
type backend interface {
	generate(ctx context.Context, messages []Message, s settings) (Reply, error)
}

type Client struct {
	provider string
	settings settings
	backend  backend
	logger   *zap.Logger
}

// New builds a client for params.Provider (or cfg.LLMProvider when empty).
// It fails with a *ConfigError for an unknown provider or a missing key.
func New(ctx context.Context, cfg config.Config, params Params, httpClient *http.Client, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	name := strings.ToLower(strings.TrimSpace(params.Provider))
	if name == "" {
		name = cfg.LLMProvider
	}
	spec, ok := lookupProvider(name)
	if !ok {
		return nil, &ConfigError{Provider: name, Err: ErrUnsupportedProvider}
	}

	s := settings{
		model:       spec.defaultModel,
		temperature: cfg.LLMTemperature,
		topP:        cfg.LLMTopP,
		sendTopP:    spec.acceptsTopP,
		maxTokens:   cfg.LLMMaxTokens,
	}
	if strings.TrimSpace(params.Model) != "" {
		s.model = strings.TrimSpace(params.Model)
	} else if cfg.LLMModel != "" && name == cfg.LLMProvider {
		s.model = cfg.LLMModel
	}
	if params.Temperature != nil {
		s.temperature = *params.Temperature
	}
	if params.TopP != nil {
		s.topP = *params.TopP
	}

	creds := spec.credentials(cfg)
	if strings.TrimSpace(creds.apiKey) == "" {
		return nil, &ConfigError{Provider: name, Err: ErrMissingAPIKey}
	}

	b, err := spec.build(ctx, creds, s, httpClient)
	if err != nil {
		return nil, &ConfigError{Provider: name, Err: err}
	}

	return &Client{provider: name, settings: s, backend: b, logger: logger.With(zap.String("provider", name))}, nil
}

func (c *Client) Provider() string { return c.provider }
func (c *Client) Model() string    { return c.settings.model }

// Generate runs one completion and surfaces provider errors.
func (c *Client) Generate(ctx context.Context, messages []Message) (Reply, error) {
	if len(messages) == 0 {
		return Reply{}, ErrNoMessages
	}

	reply, err := c.backend.generate(ctx, messages, c.settings)
	metrics.CompletionCallsTotal.WithLabelValues(c.provider, metrics.Outcome(err)).Inc()
	if err != nil {
		return Reply{}, fmt.Errorf("%s completion: %w", c.provider, err)
	}

	if reply.Metadata.Provider == "" {
		reply.Metadata.Provider = c.provider
	}
	if reply.Metadata.Model == "" {
		reply.Metadata.Model = c.settings.model
	}
	if usage := reply.Metadata.Usage; usage != nil {
		c.logger.Debug("completion usage", append([]zap.Field{zap.String("model", reply.Metadata.Model)}, usage.fields()...)...)
		metrics.CompletionTokensTotal.WithLabelValues(c.provider, "input").Add(float64(usage.InputTokens))
		metrics.CompletionTokensTotal.WithLabelValues(c.provider, "output").Add(float64(usage.OutputTokens))
		metrics.CompletionTokensTotal.WithLabelValues(c.provider, "reasoning").Add(float64(usage.ReasoningTokens()))
	}
	return reply, nil
}

// Complete never fails: it returns NoMessagesText for empty input and
// FallbackText with empty metadata when the provider call errors.
func (c *Client) Complete(ctx context.Context, messages []Message) (string, Metadata) {
	if len(messages) == 0 {
		return NoMessagesText, Metadata{}
	}
	reply, err := c.Generate(ctx, messages)
	if err != nil {
		c.logger.Error("completion failed", zap.String("model", c.settings.model), zap.Error(err))
		return FallbackText, Metadata{}
	}
	return reply.Text, reply.Metadata
}
