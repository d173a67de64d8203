package research

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"research/backend/internal/llm"
	"research/backend/internal/sanitize"
	"research/backend/internal/search"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	errNoCompleter  = errors.New("completion client is not configured")
	errEmptyReply   = errors.New("completion returned no usable text")
	listMarkerTrims = []string{"-", "*", "•"}
)

// complete returns the trimmed reply text or an error when the model gave
// nothing usable. The client's fallback text counts as nothing usable.
func (p *Pipeline) complete(ctx context.Context, messages ...llm.Message) (string, error) {
	if p.completer == nil {
		return "", errNoCompleter
	}
	reply, err := p.completer.Generate(ctx, messages)
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(reply.Text)
	if text == "" || text == llm.FallbackText || text == llm.NoMessagesText {
		return "", errEmptyReply
	}
	return text, nil
}

func (p *Pipeline) anonymize(ctx context.Context, state State) (State, error) {
	if strings.TrimSpace(state.Request.Objective) == "" {
		return state, ErrEmptyObjective
	}

	raw := state.Request.Context
	if strings.TrimSpace(raw) == "" {
		state.SanitizedContext = ""
		return state, nil
	}

	text, err := p.complete(ctx, llm.User(buildAnonymizationPrompt(raw)))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return state, ctxErr
		}
		p.logger.Warn("anonymization fell back to pattern masking", zap.Error(err))
		state.SanitizedContext = sanitize.Text(raw)
		state.Warnings = appendUniqueWarning(state.Warnings, "anonymization used pattern masking only")
		return state, nil
	}

	state.SanitizedContext = sanitize.Text(text)
	return state, nil
}

func (p *Pipeline) generateQueries(ctx context.Context, state State) (State, error) {
	objective := strings.TrimSpace(state.Request.Objective)
	prompt := buildQueryPrompt(state.SanitizedContext, objective, p.opts.NumQueries)

	text, err := p.complete(ctx, llm.System(systemPrompt), llm.User(prompt))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return state, ctxErr
		}
		p.logger.Warn("query generation fell back to objective", zap.Error(err))
		state.Queries = []string{objective}
		state.Warnings = appendUniqueWarning(state.Warnings, "query generation failed; searching the objective only")
		return state, nil
	}

	state.Queries = parseQueries(text, objective, p.opts.NumQueries)
	return state, nil
}

// parseQueries treats each non-empty line as a query, pads with the
// objective up to n and truncates to n.
func parseQueries(text, objective string, n int) []string {
	queries := make([]string, 0, n)
	for _, line := range strings.Split(text, "\n") {
		query := cleanQueryLine(line)
		if query == "" {
			continue
		}
		queries = append(queries, query)
	}
	for len(queries) < n {
		queries = append(queries, objective)
	}
	if len(queries) > n {
		queries = queries[:n]
	}
	return queries
}

func cleanQueryLine(line string) string {
	value := strings.TrimSpace(line)
	for _, marker := range listMarkerTrims {
		if rest, ok := strings.CutPrefix(value, marker); ok && startsWithSpace(rest) {
			value = strings.TrimSpace(rest)
			break
		}
	}
	if i := numberedPrefixEnd(value); i > 0 {
		value = strings.TrimSpace(value[i:])
	}
	if len(value) >= 2 {
		first, last := value[0], value[len(value)-1]
		if (first == '"' && last == '"') || (first == '\'' && last == '\'') {
			value = strings.TrimSpace(value[1 : len(value)-1])
		}
	}
	return value
}

// numberedPrefixEnd returns the length of a "1." or "1)" prefix followed by
// whitespace, or 0. "3.11 release notes" has no prefix.
func numberedPrefixEnd(value string) int {
	i := 0
	for i < len(value) && value[i] >= '0' && value[i] <= '9' {
		i++
	}
	if i == 0 || i >= len(value) {
		return 0
	}
	if (value[i] == '.' || value[i] == ')') && startsWithSpace(value[i+1:]) {
		return i + 1
	}
	return 0
}

func startsWithSpace(value string) bool {
	return value != "" && (value[0] == ' ' || value[0] == '\t')
}

func (p *Pipeline) search(ctx context.Context, state State) (State, error) {
	if p.searcher == nil {
		return state, ErrSearcherUnavailable
	}

	perQuery := make([][]search.Document, len(state.Queries))
	var (
		mu       sync.Mutex
		failures []string
	)

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(p.opts.SearchConcurrency)
	for i, text := range state.Queries {
		group.Go(func() error {
			q := search.Query{
				Text:           text,
				IncludeDomains: p.opts.IncludeDomains,
				ExcludeDomains: p.opts.ExcludeDomains,
			}
			docs, record := search.Run(groupCtx, p.searcher, q)
			if record != nil {
				p.logger.Warn("search query failed",
					zap.Int("query_index", i),
					zap.String("error", record.Error),
				)
				mu.Lock()
				failures = append(failures, record.Error)
				mu.Unlock()
				return nil
			}
			perQuery[i] = docs
			return nil
		})
	}
	_ = group.Wait()

	if err := ctx.Err(); err != nil {
		return state, err
	}

	total := 0
	for _, docs := range perQuery {
		total += len(docs)
	}
	raw := make([]search.Document, 0, total)
	for _, docs := range perQuery {
		raw = append(raw, docs...)
	}
	state.RawDocuments = raw

	if len(failures) > 0 {
		state.Warnings = appendUniqueWarning(state.Warnings,
			fmt.Sprintf("%d of %d search queries failed", len(failures), len(state.Queries)))
	}
	return state, nil
}

func (p *Pipeline) analyze(ctx context.Context, state State) (State, error) {
	if len(state.RawDocuments) == 0 {
		state.ScoredDocuments = []ScoredDocument{}
		return state, nil
	}

	objective := strings.TrimSpace(state.Request.Objective)
	threshold := p.opts.RelevanceThreshold

	selected, err := p.modelSelect(ctx, objective, state.RawDocuments, threshold)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return state, ctxErr
		}
		p.logger.Warn("analysis fell back to keyword heuristic", zap.Error(err))
		selected = heuristicSelect(state.RawDocuments, objective, threshold)
		state.Warnings = appendUniqueWarning(state.Warnings, "relevance analysis used keyword heuristic")
	}

	state.ScoredDocuments = selected
	return state, nil
}

func (p *Pipeline) modelSelect(ctx context.Context, objective string, docs []search.Document, threshold float64) ([]ScoredDocument, error) {
	prompt, err := buildAnalysisPrompt(objective, docs, threshold)
	if err != nil {
		return nil, err
	}
	text, err := p.complete(ctx, llm.System(systemPrompt), llm.User(prompt))
	if err != nil {
		return nil, err
	}
	entries, err := parseAnalysis(text)
	if err != nil {
		return nil, err
	}
	return selectFromAnalysis(docs, entries, threshold)
}

func (p *Pipeline) assemble(_ context.Context, state State) (State, error) {
	queries := make([]string, len(state.Queries))
	copy(queries, state.Queries)

	selected := state.ScoredDocuments
	if selected == nil {
		selected = []ScoredDocument{}
	}

	state.Result = &Result{
		OriginalObjective:   state.Request.Objective,
		AnonymizedQueries:   queries,
		SelectedDocuments:   selected,
		TotalDocumentsFound: len(state.RawDocuments),
		ResearchTimestamp:   p.now(),
	}
	return state, nil
}
