package llm

import "go.uber.org/zap"

type OutputTokenDetails struct {
	Reasoning int `json:"reasoning,omitempty"`
}

// Usage is the token accounting reported by a provider. Reasoning tokens
// arrive either in OutputTokenDetails (current providers) or in
// ThoughtsTokenCount (Gemini's legacy field).
type Usage struct {
	InputTokens        int                 `json:"input_tokens"`
	OutputTokens       int                 `json:"output_tokens"`
	TotalTokens        int                 `json:"total_tokens"`
	OutputTokenDetails *OutputTokenDetails `json:"output_token_details,omitempty"`
	ThoughtsTokenCount int                 `json:"thoughts_token_count,omitempty"`
}

// ReasoningTokens prefers the current count and falls back to the legacy one.
func (u Usage) ReasoningTokens() int {
	if u.OutputTokenDetails != nil && u.OutputTokenDetails.Reasoning > 0 {
		return u.OutputTokenDetails.Reasoning
	}
	return u.ThoughtsTokenCount
}

// ReasoningRatio is the share of total tokens spent on reasoning, in [0,1].
func (u Usage) ReasoningRatio() float64 {
	if u.TotalTokens <= 0 {
		return 0
	}
	return float64(u.ReasoningTokens()) / float64(u.TotalTokens)
}

func (u Usage) fields() []zap.Field {
	fields := []zap.Field{
		zap.Int("input_tokens", u.InputTokens),
		zap.Int("output_tokens", u.OutputTokens),
		zap.Int("total_tokens", u.TotalTokens),
	}
	if reasoning := u.ReasoningTokens(); reasoning > 0 {
		fields = append(fields,
			zap.Int("reasoning_tokens", reasoning),
			zap.Float64("reasoning_ratio", u.ReasoningRatio()),
		)
	}
	return fields
}

// Metadata accompanies a completion. The zero value is the "empty
// metadata" returned alongside fallback text.
type Metadata struct {
	Provider     string `json:"provider,omitempty"`
	Model        string `json:"model,omitempty"`
	FinishReason string `json:"finish_reason,omitempty"`
	Usage        *Usage `json:"usage_metadata,omitempty"`
}

func (m Metadata) IsEmpty() bool {
	return m == (Metadata{})
}

type Reply struct {
	Text     string
	Metadata Metadata
}
