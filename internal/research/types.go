package research

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"research/backend/internal/llm"
	"research/backend/internal/search"
)

var ErrScoreOutOfRange = errors.New("relevance score must be within [0, 1]")

type Request struct {
	Context   string `json:"context"`
	Objective string `json:"objective"`
}

// ScoredDocument is a search hit that passed relevance filtering. Build
// it with NewScoredDocument so the score is always within [0, 1].
type ScoredDocument struct {
	Title          string  `json:"title"`
	URL            string  `json:"url"`
	Content        string  `json:"content"`
	RelevanceScore float64 `json:"relevance_score"`
	Summary        string  `json:"summary"`
	SourceDomain   string  `json:"source_domain"`
}

func NewScoredDocument(doc search.Document, score float64, summary string) (ScoredDocument, error) {
	if math.IsNaN(score) || score < 0 || score > 1 {
		return ScoredDocument{}, fmt.Errorf("%w: got %v", ErrScoreOutOfRange, score)
	}
	return ScoredDocument{
		Title:          doc.Title,
		URL:            doc.URL,
		Content:        doc.Content,
		RelevanceScore: score,
		Summary:        summary,
		SourceDomain:   sourceDomain(doc.URL),
	}, nil
}

type Result struct {
	OriginalObjective   string           `json:"original_objective"`
	AnonymizedQueries   []string         `json:"anonymized_queries"`
	SelectedDocuments   []ScoredDocument `json:"selected_documents"`
	TotalDocumentsFound int              `json:"total_documents_found"`
	ResearchTimestamp   time.Time        `json:"research_timestamp"`
}

// emptyResult is returned when a stage fails.
func emptyResult(objective string, now time.Time) Result {
	return Result{
		OriginalObjective: objective,
		AnonymizedQueries: []string{},
		SelectedDocuments: []ScoredDocument{},
		ResearchTimestamp: now,
	}
}

type Stage string

const (
	StageAnonymize       Stage = "anonymize"
	StageGenerateQueries Stage = "generate_queries"
	StageSearch          Stage = "search"
	StageAnalyze         Stage = "analyze"
	StageAssemble        Stage = "assemble"
)

type Status string

const (
	StatusOK       Status = "ok"
	StatusDegraded Status = "degraded"
	StatusFailed   Status = "failed"
)

// State is the working record of one invocation. Each stage receives the
// previous state by value and returns the next one.
type State struct {
	Request          Request
	SanitizedContext string
	Queries          []string
	RawDocuments     []search.Document
	ScoredDocuments  []ScoredDocument
	Result           *Result
	Warnings         []string
}

// Report is what Run hands back: the result (empty on failure) plus how
// the run went.
type Report struct {
	Result      Result
	Status      Status
	FailedStage Stage
	Err         error
	Warnings    []string
	Duration    time.Duration
}

// Completer is the slice of the completion client the pipeline uses.
type Completer interface {
	Generate(ctx context.Context, messages []llm.Message) (llm.Reply, error)
}

// Progress is emitted when a stage starts and when it finishes.
type Progress struct {
	Stage    Stage         `json:"stage"`
	Done     bool          `json:"done"`
	Duration time.Duration `json:"duration,omitempty"`
	Err      string        `json:"error,omitempty"`
}
