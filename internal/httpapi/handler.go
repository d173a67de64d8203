package httpapi

import (
	"context"
	"errors"
	"net/http"

	"research/backend/internal/config"
	"research/backend/internal/llm"
	"research/backend/internal/research"
	"research/backend/internal/runlog"
	"research/backend/internal/search"

	"go.uber.org/zap"
)

// CompletionClient is what the handlers need from llm.Client.
type CompletionClient interface {
	research.Completer
	Complete(ctx context.Context, messages []llm.Message) (string, llm.Metadata)
	Provider() string
	Model() string
}

// CompleterFactory builds a client per request so callers can pick the
// provider and sampling parameters.
type CompleterFactory func(ctx context.Context, params llm.Params) (CompletionClient, error)

type RunStore interface {
	Create(ctx context.Context, run runlog.Run) (runlog.Run, error)
	Get(ctx context.Context, id string) (runlog.Run, error)
}

type ModelLister interface {
	ListModels(ctx context.Context) ([]llm.OpenRouterModel, error)
}

// Deps are the collaborators behind the handlers. Runs and Models may be
// nil; the routes that need them then answer 503.
type Deps struct {
	Completers CompleterFactory
	Searcher   search.Searcher
	Runs       RunStore
	Models     ModelLister
}

type Handler struct {
	cfg    config.Config
	logger *zap.Logger
	deps   Deps
}

func NewHandler(cfg config.Config, logger *zap.Logger, deps Deps) Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return Handler{cfg: cfg, logger: logger, deps: deps}
}

// NewCompleterFactory returns a factory backed by llm.New.
func NewCompleterFactory(cfg config.Config, httpClient *http.Client, logger *zap.Logger) CompleterFactory {
	return func(ctx context.Context, params llm.Params) (CompletionClient, error) {
		client, err := llm.New(ctx, cfg, params, httpClient, logger)
		if err != nil {
			return nil, err
		}
		return client, nil
	}
}

func (h Handler) Root(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "Research backend is running"})
}

func (h Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "healthy",
		"environment":    h.cfg.Environment,
		"llmProvider":    h.cfg.LLMProvider,
		"searchProvider": h.cfg.SearchProvider,
		"runLog":         h.deps.Runs != nil,
	})
}

func (h Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// completer resolves a client for params, writing the error response
// itself when it cannot.
func (h Handler) completer(w http.ResponseWriter, r *http.Request, params llm.Params) (CompletionClient, bool) {
	if h.deps.Completers == nil {
		writeError(w, http.StatusServiceUnavailable, "provider_unavailable", "completion client is not configured")
		return nil, false
	}
	client, err := h.deps.Completers(r.Context(), params)
	if err != nil {
		switch {
		case errors.Is(err, llm.ErrUnsupportedProvider):
			writeError(w, http.StatusBadRequest, "unsupported_provider", err.Error())
		default:
			h.logger.Warn("completion client unavailable", zap.String("provider", params.Provider), zap.Error(err))
			writeError(w, http.StatusServiceUnavailable, "provider_unavailable", err.Error())
		}
		return nil, false
	}
	return client, true
}
