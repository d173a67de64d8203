package httpapi

import (
	"net/http"

	"research/backend/internal/llm"

	"go.uber.org/zap"
)

type invokeRequest struct {
	Messages      []any    `json:"messages"`
	Temperature   *float64 `json:"temperature,omitempty"`
	TopP          *float64 `json:"top_p,omitempty"`
	ModelName     string   `json:"model_name,omitempty"`
	ModelProvider string   `json:"model_provider,omitempty"`
}

type invokeResponse struct {
	Response string       `json:"response"`
	Metadata llm.Metadata `json:"metadata"`
}

// Invoke runs a single chat completion. Provider failures still answer
// 200 with the client's fallback text and empty metadata.
func (h Handler) Invoke(w http.ResponseWriter, r *http.Request) {
	var req invokeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	client, ok := h.completer(w, r, llm.Params{
		Provider:    req.ModelProvider,
		Model:       req.ModelName,
		Temperature: req.Temperature,
		TopP:        req.TopP,
	})
	if !ok {
		return
	}

	messages := llm.Normalize(req.Messages)
	h.logger.Info("invoke request",
		zap.String("provider", client.Provider()),
		zap.String("model", client.Model()),
		zap.Int("messages", len(messages)),
	)

	text, metadata := client.Complete(r.Context(), messages)
	writeJSON(w, http.StatusOK, invokeResponse{Response: text, Metadata: metadata})
}
