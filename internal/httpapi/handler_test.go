package httpapi

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"research/backend/internal/config"
	"research/backend/internal/db"
	"research/backend/internal/llm"
	"research/backend/internal/research"
	"research/backend/internal/runlog"
	"research/backend/internal/search"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	_ "modernc.org/sqlite"
)

type stubClient struct {
	provider string
	model    string
	reply    func(prompt string) (string, error)
}

func (s stubClient) Generate(_ context.Context, messages []llm.Message) (llm.Reply, error) {
	prompt := messages[len(messages)-1].Content
	text, err := s.reply(prompt)
	if err != nil {
		return llm.Reply{}, err
	}
	return llm.Reply{Text: text, Metadata: llm.Metadata{Provider: s.provider, Model: s.model}}, nil
}

func (s stubClient) Complete(ctx context.Context, messages []llm.Message) (string, llm.Metadata) {
	if len(messages) == 0 {
		return llm.NoMessagesText, llm.Metadata{}
	}
	reply, err := s.Generate(ctx, messages)
	if err != nil {
		return llm.FallbackText, llm.Metadata{}
	}
	return reply.Text, reply.Metadata
}

func (s stubClient) Provider() string { return s.provider }
func (s stubClient) Model() string    { return s.model }

type stubSearcher struct {
	mu   sync.Mutex
	docs []search.Document
	err  error
	seen []search.Query
}

func (s *stubSearcher) Search(_ context.Context, q search.Query) ([]search.Document, error) {
	s.mu.Lock()
	s.seen = append(s.seen, q)
	s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return s.docs, nil
}

type stubModels struct {
	models []llm.OpenRouterModel
	err    error
}

func (s stubModels) ListModels(context.Context) ([]llm.OpenRouterModel, error) {
	return s.models, s.err
}

func testConfig() config.Config {
	return config.Config{
		Environment:                "test",
		AllowedOrigins:             []string{"http://localhost:3000"},
		LLMProvider:                "google",
		SearchProvider:             "tavily",
		GeminiAPIKey:               "key",
		ResearchNumQueries:         2,
		ResearchRelevanceThreshold: 0.3,
		ResearchTimeoutSeconds:     5,
		SearchConcurrency:          2,
	}
}

func staticFactory(client CompletionClient) CompleterFactory {
	return func(_ context.Context, params llm.Params) (CompletionClient, error) {
		if params.Provider != "" && params.Provider != "google" {
			return nil, &llm.ConfigError{Provider: params.Provider, Err: llm.ErrUnsupportedProvider}
		}
		return client, nil
	}
}

func newTestRunStore(t *testing.T) runlog.Store {
	t.Helper()
	database, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	database.SetMaxOpenConns(1)
	t.Cleanup(func() { database.Close() })
	require.NoError(t, db.Migrate(context.Background(), database))
	return runlog.NewStore(database)
}

func researchClient() stubClient {
	return stubClient{
		provider: "google",
		model:    "gemini-2.0-flash",
		reply: func(prompt string) (string, error) {
			switch {
			case strings.Contains(prompt, "diverse search queries"):
				return "python testing\npytest fixtures", nil
			case strings.Contains(prompt, "Analyze the following search results"):
				return `[{"index": 0, "relevance_score": 0.9, "summary": "pytest guide", "keep": true}]`, nil
			default:
				return "anonymized", nil
			}
		},
	}
}

func do(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch v := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(v))
	default:
		raw, err := json.Marshal(v)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var out errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out.Error
}

func TestHealthEndpoints(t *testing.T) {
	router := newRouter(NewHandler(testConfig(), zap.NewNop(), Deps{}), zap.NewNop())

	rec := do(t, router, http.MethodGet, "/", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "running")

	rec = do(t, router, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var health map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "healthy", health["status"])
	assert.Equal(t, "test", health["environment"])
	assert.Equal(t, false, health["runLog"])

	rec = do(t, router, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, router, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestInvokeReturnsResponseAndMetadata(t *testing.T) {
	client := stubClient{provider: "google", model: "gemini-2.0-flash", reply: func(prompt string) (string, error) {
		return "echo: " + prompt, nil
	}}
	router := newRouter(NewHandler(testConfig(), zap.NewNop(), Deps{Completers: staticFactory(client)}), zap.NewNop())

	for _, path := range []string{"/v1/invoke", "/invoke_gemini"} {
		rec := do(t, router, http.MethodPost, path, map[string]any{
			"messages": []any{
				map[string]any{"role": "system", "content": "be brief"},
				map[string]any{"role": "user", "content": "hi"},
			},
			"temperature": 0.2,
		})
		require.Equal(t, http.StatusOK, rec.Code, path)

		var out invokeResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
		assert.Equal(t, "echo: hi", out.Response)
		assert.Equal(t, "google", out.Metadata.Provider)
	}
}

func TestInvokeFallbackOnProviderFailure(t *testing.T) {
	client := stubClient{provider: "google", reply: func(string) (string, error) { return "", errors.New("quota") }}
	router := newRouter(NewHandler(testConfig(), zap.NewNop(), Deps{Completers: staticFactory(client)}), zap.NewNop())

	rec := do(t, router, http.MethodPost, "/v1/invoke", map[string]any{"messages": []any{"hello"}})
	require.Equal(t, http.StatusOK, rec.Code)

	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, llm.FallbackText, out["response"])
	assert.Equal(t, map[string]any{}, out["metadata"])
}

func TestInvokeUnsupportedProvider(t *testing.T) {
	router := newRouter(NewHandler(testConfig(), zap.NewNop(), Deps{Completers: staticFactory(researchClient())}), zap.NewNop())

	rec := do(t, router, http.MethodPost, "/v1/invoke", map[string]any{
		"messages":       []any{map[string]any{"role": "user", "content": "hi"}},
		"model_provider": "mystery",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "unsupported_provider", decodeError(t, rec).Code)
}

func TestInvokeMissingKeyIsUnavailable(t *testing.T) {
	factory := func(context.Context, llm.Params) (CompletionClient, error) {
		return nil, &llm.ConfigError{Provider: "openai", Err: llm.ErrMissingAPIKey}
	}
	router := newRouter(NewHandler(testConfig(), zap.NewNop(), Deps{Completers: factory}), zap.NewNop())

	rec := do(t, router, http.MethodPost, "/v1/invoke", map[string]any{"messages": []any{}})
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "provider_unavailable", decodeError(t, rec).Code)
}

func TestInvokeRejectsUnknownFields(t *testing.T) {
	router := newRouter(NewHandler(testConfig(), zap.NewNop(), Deps{Completers: staticFactory(researchClient())}), zap.NewNop())

	rec := do(t, router, http.MethodPost, "/v1/invoke", `{"messages": [], "stream": true}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_request", decodeError(t, rec).Code)

	rec = do(t, router, http.MethodPost, "/v1/invoke", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestResearchRunsPipelineAndRecordsRun(t *testing.T) {
	searcher := &stubSearcher{docs: []search.Document{
		{Title: "Pytest guide", URL: "https://docs.pytest.org/en/latest", Content: "Fixtures and parametrize."},
		{Title: "Cake", URL: "https://food.example/cake", Content: "Flour."},
	}}
	store := newTestRunStore(t)
	router := newRouter(NewHandler(testConfig(), zap.NewNop(), Deps{
		Completers: staticFactory(researchClient()),
		Searcher:   searcher,
		Runs:       store,
	}), zap.NewNop())

	rec := do(t, router, http.MethodPost, "/v1/research", map[string]any{
		"context":         "I work at Acme, mail me at dev@acme.io",
		"objective":       "python testing best practices",
		"include_domains": []string{"docs.pytest.org"},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Header().Get(headerResearchStatus))

	var result research.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, "python testing best practices", result.OriginalObjective)
	assert.Equal(t, []string{"python testing", "pytest fixtures"}, result.AnonymizedQueries)
	assert.Equal(t, 4, result.TotalDocumentsFound)
	require.Len(t, result.SelectedDocuments, 1)
	assert.Equal(t, "docs.pytest.org", result.SelectedDocuments[0].SourceDomain)

	require.Len(t, searcher.seen, 2)
	assert.Equal(t, []string{"docs.pytest.org"}, searcher.seen[0].IncludeDomains)

	runID := rec.Header().Get(headerResearchRunID)
	require.NotEmpty(t, runID)

	rec = do(t, router, http.MethodGet, "/v1/research/runs/"+runID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var run runlog.Run
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &run))
	assert.Equal(t, "ok", run.Status)
	assert.Equal(t, 4, run.DocumentsFound)
	assert.Equal(t, 1, run.DocumentsSelected)
	assert.Equal(t, "gemini-2.0-flash", run.Model)
	assert.NotContains(t, rec.Body.String(), "dev@acme.io")
}

func TestResearchOverridesAndDegradedStatus(t *testing.T) {
	searcher := &stubSearcher{err: errors.New("upstream 503")}
	router := newRouter(NewHandler(testConfig(), zap.NewNop(), Deps{
		Completers: staticFactory(researchClient()),
		Searcher:   searcher,
	}), zap.NewNop())

	rec := do(t, router, http.MethodPost, "/v1/research", map[string]any{
		"context":     "",
		"objective":   "go generics",
		"num_queries": 3,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "degraded", rec.Header().Get(headerResearchStatus))
	assert.Empty(t, rec.Header().Get(headerResearchRunID))

	var result research.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, []string{"python testing", "pytest fixtures", "go generics"}, result.AnonymizedQueries)
	assert.Equal(t, 0, result.TotalDocumentsFound)
	assert.Empty(t, result.SelectedDocuments)
}

func TestResearchValidation(t *testing.T) {
	router := newRouter(NewHandler(testConfig(), zap.NewNop(), Deps{
		Completers: staticFactory(researchClient()),
		Searcher:   &stubSearcher{},
	}), zap.NewNop())

	rec := do(t, router, http.MethodPost, "/v1/research", map[string]any{"context": "x", "objective": "  "})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, router, http.MethodPost, "/v1/research", map[string]any{"objective": "x", "model_provider": "mystery"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "unsupported_provider", decodeError(t, rec).Code)

	for _, body := range []map[string]any{
		{"objective": "x", "num_queries": 1000000},
		{"objective": "x", "num_queries": 0},
		{"objective": "x", "relevance_threshold": 1.5},
		{"objective": "x", "relevance_threshold": -0.1},
	} {
		rec = do(t, router, http.MethodPost, "/v1/research", body)
		require.Equal(t, http.StatusBadRequest, rec.Code, "body %v", body)
		assert.Equal(t, "invalid_request", decodeError(t, rec).Code)
	}

	noSearch := newRouter(NewHandler(testConfig(), zap.NewNop(), Deps{Completers: staticFactory(researchClient())}), zap.NewNop())
	rec = do(t, noSearch, http.MethodPost, "/v1/research", map[string]any{"objective": "x"})
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestGetResearchRun(t *testing.T) {
	disabled := newRouter(NewHandler(testConfig(), zap.NewNop(), Deps{}), zap.NewNop())
	rec := do(t, disabled, http.MethodGet, "/v1/research/runs/abc", nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	router := newRouter(NewHandler(testConfig(), zap.NewNop(), Deps{Runs: newTestRunStore(t)}), zap.NewNop())
	rec = do(t, router, http.MethodGet, "/v1/research/runs/missing", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decodeError(t, rec).Code)
}

func TestSearchEndpoint(t *testing.T) {
	searcher := &stubSearcher{docs: []search.Document{{Title: "Go", URL: "https://go.dev", Content: "The Go language"}}}
	router := newRouter(NewHandler(testConfig(), zap.NewNop(), Deps{Searcher: searcher}), zap.NewNop())

	rec := do(t, router, http.MethodPost, "/v1/search", map[string]any{"query": "golang", "exclude_domains": []string{"spam.example"}})
	require.Equal(t, http.StatusOK, rec.Code)
	var docs []search.Document
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &docs))
	require.Len(t, docs, 1)
	assert.Equal(t, []string{"spam.example"}, searcher.seen[0].ExcludeDomains)

	rec = do(t, router, http.MethodPost, "/v1/search", map[string]any{"query": ""})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSearchEndpointReturnsErrorRecord(t *testing.T) {
	router := newRouter(NewHandler(testConfig(), zap.NewNop(), Deps{Searcher: &stubSearcher{err: errors.New("tavily returned 401")}}), zap.NewNop())

	rec := do(t, router, http.MethodPost, "/v1/search", map[string]any{"query": "golang"})
	require.Equal(t, http.StatusBadGateway, rec.Code)
	var record search.ErrorRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &record))
	assert.Equal(t, "tavily returned 401", record.Error)
}

func TestListProviders(t *testing.T) {
	cfg := testConfig()
	cfg.LLMModel = "gemini-2.5-pro"
	router := newRouter(NewHandler(cfg, zap.NewNop(), Deps{}), zap.NewNop())

	rec := do(t, router, http.MethodGet, "/v1/models", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var out struct {
		Default   string             `json:"default"`
		Providers []providerResponse `json:"providers"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "google", out.Default)
	require.Len(t, out.Providers, len(llm.Providers()))
	for _, p := range out.Providers {
		if p.ID == "google" {
			assert.Equal(t, "gemini-2.5-pro", p.DefaultModel)
			assert.True(t, p.Configured)
		} else {
			assert.False(t, p.Configured)
		}
	}
}

func TestListOpenRouterModels(t *testing.T) {
	router := newRouter(NewHandler(testConfig(), zap.NewNop(), Deps{}), zap.NewNop())
	rec := do(t, router, http.MethodGet, "/v1/models/openrouter", nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	router = newRouter(NewHandler(testConfig(), zap.NewNop(), Deps{Models: stubModels{models: []llm.OpenRouterModel{{ID: "openrouter/free", Name: "Free"}}}}), zap.NewNop())
	rec = do(t, router, http.MethodGet, "/v1/models/openrouter", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "openrouter/free")

	router = newRouter(NewHandler(testConfig(), zap.NewNop(), Deps{Models: stubModels{err: errors.New("down")}}), zap.NewNop())
	rec = do(t, router, http.MethodGet, "/v1/models/openrouter", nil)
	require.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestCORSExposesResearchHeaders(t *testing.T) {
	router := newRouter(NewHandler(testConfig(), zap.NewNop(), Deps{}), zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Expose-Headers"), headerResearchStatus)
}
