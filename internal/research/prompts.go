package research

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"research/backend/internal/search"
)

const maxAnalysisContentRunes = 1000

const systemPrompt = `You are a helpful research assistant with access to web search capabilities. Your goal is to:
1. Generate effective search queries based on user context and objectives
2. Analyze search results for relevance and quality
3. Provide structured, useful responses while protecting user privacy

Always maintain user privacy by anonymizing sensitive information before performing searches.`

func buildAnonymizationPrompt(context string) string {
	var b strings.Builder
	b.WriteString("You are an expert at anonymizing sensitive information. Remove or replace any private data including:\n")
	b.WriteString("- Email addresses (replace with [EMAIL])\n")
	b.WriteString("- API keys (replace with [API_KEY])\n")
	b.WriteString("- Personal names (replace with [PERSON_NAME])\n")
	b.WriteString("- Company names (replace with [COMPANY_NAME])\n")
	b.WriteString("- Phone numbers (replace with [PHONE])\n")
	b.WriteString("- Sensitive URLs (replace with [URL])\n")
	b.WriteString("- IP addresses (replace with [IP_ADDRESS])\n")
	b.WriteString("- Passwords or tokens (replace with [TOKEN])\n")
	b.WriteString("- File paths that might contain usernames (replace with [PATH])\n\n")
	b.WriteString("Preserve the meaning and context while protecting privacy. Return only the anonymized text.\n\n")
	b.WriteString("Text to anonymize:\n")
	b.WriteString(context)
	b.WriteString("\n")
	return b.String()
}

func buildQueryPrompt(sanitizedContext, objective string, numQueries int) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("Based on the following anonymized context and objective, generate %d diverse search queries that would help accomplish the objective.\n\n", numQueries))
	b.WriteString("Make the queries:\n")
	b.WriteString("1. Specific and actionable\n")
	b.WriteString("2. Complementary to each other (covering different aspects)\n")
	b.WriteString("3. Likely to return relevant, high-quality results\n")
	b.WriteString("4. Professional and appropriate for web search\n\n")
	b.WriteString("Context: ")
	b.WriteString(sanitizedContext)
	b.WriteString("\nObjective: ")
	b.WriteString(objective)
	b.WriteString("\n\nReturn only the queries, one per line, without numbering or bullets.\n")
	return b.String()
}

type analysisInput struct {
	Index   int    `json:"index"`
	Title   string `json:"title"`
	URL     string `json:"url"`
	Content string `json:"content"`
}

func buildAnalysisPrompt(objective string, docs []search.Document, threshold float64) (string, error) {
	formatted := make([]analysisInput, 0, len(docs))
	for i, doc := range docs {
		formatted = append(formatted, analysisInput{
			Index:   i,
			Title:   doc.Title,
			URL:     doc.URL,
			Content: trimToRunes(doc.Content, maxAnalysisContentRunes),
		})
	}
	encoded, err := json.MarshalIndent(formatted, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode documents for analysis: %w", err)
	}

	cutoff := strconv.FormatFloat(threshold, 'f', -1, 64)

	var b strings.Builder
	b.WriteString("Analyze the following search results for the objective: ")
	b.WriteString(objective)
	b.WriteString("\n\nFor each document, provide a JSON object with:\n")
	b.WriteString("1. \"index\": the index of the document in the list below\n")
	b.WriteString("2. \"relevance_score\": a score from 0.0 to 1.0 indicating how relevant this document is to the objective\n")
	b.WriteString("3. \"summary\": a brief summary (max 100 words) of the document's key points\n")
	b.WriteString("4. \"keep\": true if relevance_score >= " + cutoff + ", false otherwise\n\n")
	b.WriteString("Only include documents with relevance_score >= " + cutoff + " in your analysis.\n\n")
	b.WriteString("Search Results:\n")
	b.Write(encoded)
	b.WriteString("\n\nFormat your response as a JSON array of objects, one for each document worth keeping. Respond with JSON only.\n")
	return b.String(), nil
}
