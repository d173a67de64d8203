package search

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"research/backend/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTavilySearchSendsDomainsAndParsesResults(t *testing.T) {
	var received tavilyRequest
	var auth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/search" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		auth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"query":"q","results":[
		  {"title":" Pytest docs ","url":"https://docs.pytest.org/","content":"Fixtures and parametrize","score":0.9},
		  {"title":"Blog","url":"https://blog.example.com/p","content":"Testing tips","score":0.4}
		]}`))
	}))
	defer server.Close()

	client := NewTavilyClient(config.Config{
		TavilyAPIKey:     "tvly-key",
		TavilyBaseURL:    server.URL,
		SearchMaxResults: 3,
		TavilyTopic:      "general",
	}, server.Client())

	docs, err := client.Search(context.Background(), Query{
		Text:           "python testing",
		IncludeDomains: []string{" Docs.Pytest.org ", ""},
		ExcludeDomains: []string{"spam.example"},
	})
	require.NoError(t, err)

	assert.Equal(t, "Bearer tvly-key", auth)
	assert.Equal(t, "python testing", received.Query)
	assert.Equal(t, 3, received.MaxResults)
	assert.Equal(t, "general", received.Topic)
	assert.Equal(t, []string{"docs.pytest.org"}, received.IncludeDomains)
	assert.Equal(t, []string{"spam.example"}, received.ExcludeDomains)

	require.Len(t, docs, 2)
	assert.Equal(t, Document{Title: "Pytest docs", URL: "https://docs.pytest.org/", Content: "Fixtures and parametrize"}, docs[0])
}

func TestTavilySearchReturnsAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"detail":"invalid key"}`))
	}))
	defer server.Close()

	client := NewTavilyClient(config.Config{TavilyAPIKey: "bad", TavilyBaseURL: server.URL}, server.Client())
	_, err := client.Search(context.Background(), Query{Text: "test"})

	var apiErr APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Contains(t, err.Error(), "tavily returned 401")
}

func TestTavilySearchRequiresKey(t *testing.T) {
	client := NewTavilyClient(config.Config{TavilyBaseURL: "https://api.tavily.com"}, nil)
	_, err := client.Search(context.Background(), Query{Text: "test"})
	require.ErrorIs(t, err, ErrMissingAPIKey)
}

type failingSearcher struct{ err error }

func (s failingSearcher) Search(context.Context, Query) ([]Document, error) { return nil, s.err }

type emptySearcher struct{}

func (emptySearcher) Search(context.Context, Query) ([]Document, error) { return nil, nil }

func TestRunReturnsErrorRecord(t *testing.T) {
	docs, rec := Run(context.Background(), failingSearcher{err: errors.New("quota exceeded")}, Query{Text: "x"})
	assert.Nil(t, docs)
	require.NotNil(t, rec)
	assert.Equal(t, "quota exceeded", rec.Error)

	docs, rec = Run(context.Background(), emptySearcher{}, Query{Text: "x"})
	assert.Nil(t, rec)
	assert.NotNil(t, docs)
	assert.Empty(t, docs)
}

func TestNewSelectsProvider(t *testing.T) {
	s, err := New(config.Config{SearchProvider: "brave"}, nil)
	require.NoError(t, err)
	inst, ok := s.(instrumented)
	require.True(t, ok)
	assert.IsType(t, BraveClient{}, inst.inner)

	s, err = New(config.Config{}, nil)
	require.NoError(t, err)
	assert.IsType(t, TavilyClient{}, s.(instrumented).inner)

	_, err = New(config.Config{SearchProvider: "bing"}, nil)
	require.ErrorIs(t, err, ErrUnsupportedProvider)
}
