package research

import (
	"net/url"
	"strings"
	"unicode/utf8"
)

const unknownDomain = "unknown"

func trimToRunes(raw string, limit int) string {
	if limit <= 0 {
		return ""
	}
	if utf8.RuneCountInString(raw) <= limit {
		return raw
	}
	return string([]rune(raw)[:limit])
}

// sourceDomain returns the host of rawURL, or "unknown".
func sourceDomain(rawURL string) string {
	trimmed := strings.TrimSpace(rawURL)
	if trimmed == "" {
		return unknownDomain
	}
	parsed, err := url.Parse(trimmed)
	if err != nil || parsed.Host == "" {
		return unknownDomain
	}
	return parsed.Host
}

func appendUniqueWarning(warnings []string, warning string) []string {
	trimmed := strings.TrimSpace(warning)
	if trimmed == "" {
		return warnings
	}
	for _, existing := range warnings {
		if strings.EqualFold(strings.TrimSpace(existing), trimmed) {
			return warnings
		}
	}
	out := make([]string, 0, len(warnings)+1)
	out = append(out, warnings...)
	return append(out, trimmed)
}

// extractJSONArray pulls the outermost JSON array out of a model reply,
// tolerating code fences and surrounding prose.
func extractJSONArray(raw string) string {
	value := strings.TrimSpace(raw)
	if strings.HasPrefix(value, "[") && strings.HasSuffix(value, "]") {
		return value
	}
	start := strings.Index(value, "[")
	end := strings.LastIndex(value, "]")
	if start == -1 || end == -1 || end <= start {
		return ""
	}
	return strings.TrimSpace(value[start : end+1])
}
