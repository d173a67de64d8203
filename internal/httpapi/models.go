package httpapi

import (
	"net/http"

	"research/backend/internal/llm"

	"go.uber.org/zap"
)

type providerResponse struct {
	ID           string `json:"id"`
	DefaultModel string `json:"defaultModel"`
	Configured   bool   `json:"configured"`
}

func (h Handler) ListProviders(w http.ResponseWriter, _ *http.Request) {
	providers := make([]providerResponse, 0, len(llm.Providers()))
	for _, id := range llm.Providers() {
		model, _ := llm.DefaultModel(id)
		if id == h.cfg.LLMProvider && h.cfg.LLMModel != "" {
			model = h.cfg.LLMModel
		}
		providers = append(providers, providerResponse{
			ID:           id,
			DefaultModel: model,
			Configured:   h.cfg.HasLLMKey(id),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"default":   h.cfg.LLMProvider,
		"providers": providers,
	})
}

// ListOpenRouterModels proxies the OpenRouter catalog.
func (h Handler) ListOpenRouterModels(w http.ResponseWriter, r *http.Request) {
	if h.deps.Models == nil {
		writeError(w, http.StatusServiceUnavailable, "provider_unavailable", "openrouter is not configured")
		return
	}

	models, err := h.deps.Models.ListModels(r.Context())
	if err != nil {
		h.logger.Warn("list openrouter models", zap.Error(err))
		writeError(w, http.StatusBadGateway, "upstream_error", "failed to load models")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"models": models})
}
