package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"research/backend/internal/config"
)

type TavilyClient struct {
	apiKey     string
	baseURL    string
	maxResults int
	topic      string
	httpClient *http.Client
}

type tavilyRequest struct {
	Query          string   `json:"query"`
	MaxResults     int      `json:"max_results"`
	Topic          string   `json:"topic,omitempty"`
	IncludeDomains []string `json:"include_domains,omitempty"`
	ExcludeDomains []string `json:"exclude_domains,omitempty"`
}

type tavilyResponse struct {
	Results []struct {
		Title   string  `json:"title"`
		URL     string  `json:"url"`
		Content string  `json:"content"`
		Score   float64 `json:"score"`
	} `json:"results"`
}

func NewTavilyClient(cfg config.Config, httpClient *http.Client) TavilyClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	maxResults := cfg.SearchMaxResults
	if maxResults <= 0 {
		maxResults = 5
	}
	return TavilyClient{
		apiKey:     strings.TrimSpace(cfg.TavilyAPIKey),
		baseURL:    strings.TrimRight(strings.TrimSpace(cfg.TavilyBaseURL), "/"),
		maxResults: maxResults,
		topic:      strings.TrimSpace(cfg.TavilyTopic),
		httpClient: httpClient,
	}
}

func (c TavilyClient) Search(ctx context.Context, q Query) ([]Document, error) {
	if c.apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	text := strings.TrimSpace(q.Text)
	if text == "" {
		return nil, nil
	}

	payload, err := json.Marshal(tavilyRequest{
		Query:          text,
		MaxResults:     c.maxResults,
		Topic:          c.topic,
		IncludeDomains: cleanDomains(q.IncludeDomains),
		ExcludeDomains: cleanDomains(q.ExcludeDomains),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal tavily request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/search", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build tavily request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request tavily: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return nil, APIError{Provider: "tavily", StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var parsed tavilyResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode tavily response: %w", err)
	}

	docs := make([]Document, 0, len(parsed.Results))
	for _, item := range parsed.Results {
		docs = append(docs, Document{
			Title:   strings.TrimSpace(item.Title),
			URL:     strings.TrimSpace(item.URL),
			Content: item.Content,
		})
	}
	return docs, nil
}
