package research

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"research/backend/internal/search"
)

const (
	titleMatchWeight   = 0.3
	contentMatchWeight = 0.1
	summaryRunes       = 200
)

var errUnparseableAnalysis = errors.New("analysis reply is not a JSON array")

// analysisEntry is one model verdict. Keep is accepted but the threshold
// alone decides what survives.
type analysisEntry struct {
	Index          int
	RelevanceScore float64
	Summary        string
	Keep           bool
}

// parseAnalysis decodes the model's JSON array. Non-object elements are
// skipped; a malformed field fails the whole reply.
func parseAnalysis(raw string) ([]analysisEntry, error) {
	block := extractJSONArray(raw)
	if block == "" {
		return nil, errUnparseableAnalysis
	}

	var items []json.RawMessage
	if err := json.Unmarshal([]byte(block), &items); err != nil {
		return nil, fmt.Errorf("%w: %v", errUnparseableAnalysis, err)
	}

	entries := make([]analysisEntry, 0, len(items))
	for i, item := range items {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(item, &fields); err != nil || fields == nil {
			continue
		}

		entry := analysisEntry{}
		if rawIndex, ok := fields["index"]; ok {
			if err := json.Unmarshal(rawIndex, &entry.Index); err != nil {
				return nil, fmt.Errorf("analysis entry %d: index: %w", i, err)
			}
		}
		if rawScore, ok := fields["relevance_score"]; ok {
			score, err := parseScore(rawScore)
			if err != nil {
				return nil, fmt.Errorf("analysis entry %d: relevance_score: %w", i, err)
			}
			entry.RelevanceScore = score
		}
		if rawSummary, ok := fields["summary"]; ok {
			_ = json.Unmarshal(rawSummary, &entry.Summary)
		}
		if rawKeep, ok := fields["keep"]; ok {
			_ = json.Unmarshal(rawKeep, &entry.Keep)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// parseScore accepts a JSON number or a numeric string.
func parseScore(raw json.RawMessage) (float64, error) {
	var number float64
	if err := json.Unmarshal(raw, &number); err == nil {
		return number, nil
	}
	var text string
	if err := json.Unmarshal(raw, &text); err != nil {
		return 0, err
	}
	return strconv.ParseFloat(strings.TrimSpace(text), 64)
}

// selectFromAnalysis keeps entries at or above threshold. Out-of-range
// indices are skipped; a kept score outside [0, 1] rejects the whole
// analysis so the caller falls back to the heuristic.
func selectFromAnalysis(docs []search.Document, entries []analysisEntry, threshold float64) ([]ScoredDocument, error) {
	selected := make([]ScoredDocument, 0, len(entries))
	for _, entry := range entries {
		if entry.Index < 0 || entry.Index >= len(docs) {
			continue
		}
		if entry.RelevanceScore < threshold {
			continue
		}
		scored, err := NewScoredDocument(docs[entry.Index], entry.RelevanceScore, entry.Summary)
		if err != nil {
			return nil, fmt.Errorf("document %d: %w", entry.Index, err)
		}
		selected = append(selected, scored)
	}
	sortByRelevance(selected)
	return selected, nil
}

// heuristicSelect scores documents by keyword overlap with the objective:
// each objective word adds 0.3 when found in the title and 0.1 when found
// in the content, capped at 1.0.
func heuristicSelect(docs []search.Document, objective string, threshold float64) []ScoredDocument {
	words := strings.Fields(strings.ToLower(objective))

	selected := make([]ScoredDocument, 0, len(docs))
	for _, doc := range docs {
		score := heuristicScore(words, doc)
		if score < threshold {
			continue
		}
		scored, err := NewScoredDocument(doc, score, heuristicSummary(doc.Content))
		if err != nil {
			continue
		}
		selected = append(selected, scored)
	}
	sortByRelevance(selected)
	return selected
}

func heuristicScore(words []string, doc search.Document) float64 {
	title := strings.ToLower(doc.Title)
	content := strings.ToLower(doc.Content)

	score := 0.0
	for _, word := range words {
		if strings.Contains(title, word) {
			score += titleMatchWeight
		}
		if strings.Contains(content, word) {
			score += contentMatchWeight
		}
	}
	return math.Min(score, 1.0)
}

func heuristicSummary(content string) string {
	if utf8.RuneCountInString(content) > summaryRunes {
		return trimToRunes(content, summaryRunes) + "..."
	}
	return content
}

func sortByRelevance(docs []ScoredDocument) {
	sort.SliceStable(docs, func(i, j int) bool {
		return docs[i].RelevanceScore > docs[j].RelevanceScore
	})
}
