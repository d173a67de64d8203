package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"research/backend/internal/config"
)

const maxBraveQueryWords = 50

type BraveClient struct {
	apiKey     string
	baseURL    string
	count      int
	httpClient *http.Client
}

type braveResponse struct {
	Web struct {
		Results []braveResult `json:"results"`
	} `json:"web"`
	Results []braveResult `json:"results"`
}

type braveResult struct {
	URL           string   `json:"url"`
	Title         string   `json:"title"`
	Description   string   `json:"description"`
	Snippet       string   `json:"snippet"`
	ExtraSnippets []string `json:"extra_snippets"`
}

func NewBraveClient(cfg config.Config, httpClient *http.Client) BraveClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	count := cfg.SearchMaxResults
	if count <= 0 {
		count = 5
	}
	return BraveClient{
		apiKey:     strings.TrimSpace(cfg.BraveAPIKey),
		baseURL:    strings.TrimRight(strings.TrimSpace(cfg.BraveBaseURL), "/"),
		count:      count,
		httpClient: httpClient,
	}
}

// Search maps domain filters onto Brave's site: operators.
func (c BraveClient) Search(ctx context.Context, q Query) ([]Document, error) {
	if c.apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	text := strings.TrimSpace(q.Text)
	if text == "" {
		return nil, nil
	}
	text = braveQuery(trimToWordLimit(text, maxBraveQueryWords), q.IncludeDomains, q.ExcludeDomains)

	endpoint, err := url.Parse(c.baseURL + "/web/search")
	if err != nil {
		return nil, fmt.Errorf("parse brave endpoint: %w", err)
	}
	params := endpoint.Query()
	params.Set("q", text)
	params.Set("count", strconv.Itoa(c.count))
	params.Set("spellcheck", "0")
	params.Set("text_decorations", "0")
	endpoint.RawQuery = params.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build brave request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("X-Subscription-Token", c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request brave: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return nil, APIError{Provider: "brave", StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var parsed braveResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode brave response: %w", err)
	}

	raw := parsed.Web.Results
	if len(raw) == 0 {
		raw = parsed.Results
	}

	docs := make([]Document, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for _, item := range raw {
		rawURL := strings.TrimSpace(item.URL)
		if rawURL == "" {
			continue
		}
		if _, exists := seen[rawURL]; exists {
			continue
		}
		seen[rawURL] = struct{}{}

		title := strings.TrimSpace(item.Title)
		if title == "" {
			title = rawURL
		}

		content := strings.TrimSpace(item.Description)
		if content == "" {
			content = strings.TrimSpace(item.Snippet)
		}
		if len(item.ExtraSnippets) > 0 {
			content = strings.TrimSpace(strings.Join(append([]string{content}, item.ExtraSnippets...), " "))
		}

		docs = append(docs, Document{Title: title, URL: rawURL, Content: content})
		if len(docs) >= c.count {
			break
		}
	}
	return docs, nil
}

func braveQuery(text string, include, exclude []string) string {
	include = cleanDomains(include)
	exclude = cleanDomains(exclude)

	parts := []string{text}
	switch len(include) {
	case 0:
	case 1:
		parts = append(parts, "site:"+include[0])
	default:
		sites := make([]string, 0, len(include))
		for _, d := range include {
			sites = append(sites, "site:"+d)
		}
		parts = append(parts, "("+strings.Join(sites, " OR ")+")")
	}
	for _, d := range exclude {
		parts = append(parts, "-site:"+d)
	}
	return strings.Join(parts, " ")
}

func trimToWordLimit(input string, maxWords int) string {
	if maxWords <= 0 {
		return ""
	}
	words := strings.Fields(strings.TrimSpace(input))
	if len(words) <= maxWords {
		return strings.Join(words, " ")
	}
	return strings.Join(words[:maxWords], " ")
}
