// Package search wraps external web-search APIs behind a single Searcher.
package search

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"research/backend/internal/config"
	"research/backend/internal/metrics"
)

const maxErrorBodyBytes = 8 * 1024

var (
	ErrMissingAPIKey       = errors.New("search api key is not configured")
	ErrUnsupportedProvider = errors.New("unsupported search provider")
)

type APIError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e APIError) Error() string {
	return fmt.Sprintf("%s returned %d: %s", e.Provider, e.StatusCode, e.Body)
}

// Query is one web search. Domain lists are optional filters.
type Query struct {
	Text           string   `json:"query"`
	IncludeDomains []string `json:"include_domains,omitempty"`
	ExcludeDomains []string `json:"exclude_domains,omitempty"`
}

// Document is a raw search hit.
type Document struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Content string `json:"content"`
}

type Searcher interface {
	Search(ctx context.Context, q Query) ([]Document, error)
}

// ErrorRecord is the error shape returned at the search boundary.
type ErrorRecord struct {
	Error string `json:"error"`
}

// Run performs q and returns either the documents or an error record.
func Run(ctx context.Context, s Searcher, q Query) ([]Document, *ErrorRecord) {
	docs, err := s.Search(ctx, q)
	if err != nil {
		return nil, &ErrorRecord{Error: err.Error()}
	}
	if docs == nil {
		docs = []Document{}
	}
	return docs, nil
}

// New builds the Searcher selected by cfg.SearchProvider, wrapped with
// per-query metrics and the configured pacing.
func New(cfg config.Config, httpClient *http.Client) (Searcher, error) {
	var inner Searcher
	switch strings.ToLower(strings.TrimSpace(cfg.SearchProvider)) {
	case "tavily", "":
		inner = NewTavilyClient(cfg, httpClient)
	case "brave":
		inner = NewBraveClient(cfg, httpClient)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedProvider, cfg.SearchProvider)
	}
	return NewRateLimited(instrumented{inner: inner, provider: providerName(cfg)}, cfg.SearchMinInterval), nil
}

func providerName(cfg config.Config) string {
	name := strings.ToLower(strings.TrimSpace(cfg.SearchProvider))
	if name == "" {
		return "tavily"
	}
	return name
}

type instrumented struct {
	inner    Searcher
	provider string
}

func (s instrumented) Search(ctx context.Context, q Query) ([]Document, error) {
	docs, err := s.inner.Search(ctx, q)
	metrics.SearchQueriesTotal.WithLabelValues(s.provider, metrics.Outcome(err)).Inc()
	return docs, err
}

func cleanDomains(domains []string) []string {
	if len(domains) == 0 {
		return nil
	}
	out := make([]string, 0, len(domains))
	for _, d := range domains {
		trimmed := strings.ToLower(strings.TrimSpace(d))
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
