package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"research/backend/internal/llm"
	"research/backend/internal/research"
	"research/backend/internal/runlog"
	"research/backend/internal/search"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const (
	headerResearchStatus = "X-Research-Status"
	headerResearchRunID  = "X-Research-Run-ID"
)

type researchRequest struct {
	Context            string   `json:"context"`
	Objective          string   `json:"objective"`
	NumQueries         *int     `json:"num_queries,omitempty"`
	RelevanceThreshold *float64 `json:"relevance_threshold,omitempty"`
	IncludeDomains     []string `json:"include_domains,omitempty"`
	ExcludeDomains     []string `json:"exclude_domains,omitempty"`
	ModelName          string   `json:"model_name,omitempty"`
	ModelProvider      string   `json:"model_provider,omitempty"`
}

func (req researchRequest) validateOverrides() error {
	if n := req.NumQueries; n != nil && (*n < 1 || *n > research.MaxNumQueries) {
		return fmt.Errorf("num_queries must be between 1 and %d", research.MaxNumQueries)
	}
	if t := req.RelevanceThreshold; t != nil && !(*t >= 0 && *t <= 1) {
		return errors.New("relevance_threshold must be within [0, 1]")
	}
	return nil
}

// Research runs the pipeline. Failed runs still answer 200 with an empty
// result; the outcome is carried in the X-Research-Status header and the
// run log.
func (h Handler) Research(w http.ResponseWriter, r *http.Request) {
	var req researchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.Objective) == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "objective is required")
		return
	}
	if err := req.validateOverrides(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if h.deps.Searcher == nil {
		writeError(w, http.StatusServiceUnavailable, "search_unavailable", "search client is not configured")
		return
	}

	client, ok := h.completer(w, r, llm.Params{Provider: req.ModelProvider, Model: req.ModelName})
	if !ok {
		return
	}

	opts := research.ResolveOptions(research.OptionsFromConfig(h.cfg), research.Overrides{
		NumQueries:         req.NumQueries,
		RelevanceThreshold: req.RelevanceThreshold,
		IncludeDomains:     req.IncludeDomains,
		ExcludeDomains:     req.ExcludeDomains,
	})

	ctx, cancel := context.WithTimeout(r.Context(), h.cfg.ResearchTimeout())
	defer cancel()

	startedAt := time.Now().UTC()
	pipeline := research.NewPipeline(client, h.deps.Searcher, opts, h.logger)
	report := pipeline.Run(ctx, research.Request{Context: req.Context, Objective: req.Objective})

	if runID := h.recordRun(r.Context(), client, req.Objective, report, startedAt); runID != "" {
		w.Header().Set(headerResearchRunID, runID)
	}
	w.Header().Set(headerResearchStatus, string(report.Status))
	writeJSON(w, http.StatusOK, report.Result)
}

func (h Handler) recordRun(ctx context.Context, client CompletionClient, objective string, report research.Report, startedAt time.Time) string {
	if h.deps.Runs == nil {
		return ""
	}

	run := runlog.Run{
		Objective:         objective,
		Status:            string(report.Status),
		FailedStage:       string(report.FailedStage),
		Warnings:          report.Warnings,
		NumQueries:        len(report.Result.AnonymizedQueries),
		DocumentsFound:    report.Result.TotalDocumentsFound,
		DocumentsSelected: len(report.Result.SelectedDocuments),
		Provider:          client.Provider(),
		Model:             client.Model(),
		StartedAt:         startedAt,
		FinishedAt:        startedAt.Add(report.Duration),
	}
	if report.Err != nil {
		run.Error = report.Err.Error()
	}

	stored, err := h.deps.Runs.Create(ctx, run)
	if err != nil {
		h.logger.Warn("record research run", zap.Error(err))
		return ""
	}
	return stored.ID
}

func (h Handler) GetResearchRun(w http.ResponseWriter, r *http.Request) {
	if h.deps.Runs == nil {
		writeError(w, http.StatusServiceUnavailable, "run_log_disabled", "research run log is not configured")
		return
	}

	run, err := h.deps.Runs.Get(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, runlog.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "research run not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "db_error", "failed to read research run")
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// Search performs one web search. Provider failures answer 502 with the
// {error} record instead of the usual envelope.
func (h Handler) Search(w http.ResponseWriter, r *http.Request) {
	var q search.Query
	if err := decodeJSON(w, r, &q); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(q.Text) == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "query is required")
		return
	}
	if h.deps.Searcher == nil {
		writeError(w, http.StatusServiceUnavailable, "search_unavailable", "search client is not configured")
		return
	}

	docs, record := search.Run(r.Context(), h.deps.Searcher, q)
	if record != nil {
		h.logger.Warn("search request failed", zap.String("error", record.Error))
		writeJSON(w, http.StatusBadGateway, record)
		return
	}
	writeJSON(w, http.StatusOK, docs)
}
