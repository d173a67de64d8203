// Package sanitize masks common kinds of sensitive tokens in free text.
//
// The rules are heuristics: they catch emails, long key-like strings, IPv4
// addresses, US-style phone numbers and URLs. Anything else (names,
// addresses, international phone formats) passes through unchanged.
package sanitize

import "regexp"

const (
	EmailToken     = "[EMAIL]"
	APIKeyToken    = "[API_KEY]"
	IPAddressToken = "[IP_ADDRESS]"
	PhoneToken     = "[PHONE]"
	URLToken       = "[URL]"
)

type rule struct {
	pattern     *regexp.Regexp
	replacement string
}

// Applied in order. URLs go last so that an email or key embedded in a
// URL is masked first and the URL rule then swallows the remainder.
var rules = []rule{
	{regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`), EmailToken},
	{regexp.MustCompile(`\b[A-Za-z0-9]{32,}\b`), APIKeyToken},
	{regexp.MustCompile(`sk-[A-Za-z0-9]{48}`), APIKeyToken},
	{regexp.MustCompile(`\b(?:[0-9]{1,3}\.){3}[0-9]{1,3}\b`), IPAddressToken},
	{regexp.MustCompile(`\b\d{3}[-.]?\d{3}[-.]?\d{4}\b`), PhoneToken},
	{regexp.MustCompile(`https?://[^\s]+`), URLToken},
}

// maxPasses bounds the fixed-point loop in Text. Masking a URL can give a
// token glued to it a word boundary, so one pass is not always enough.
const maxPasses = 8

// Text returns text with every sensitive match replaced by its placeholder.
// It never fails, is idempotent, and returns text unchanged when nothing
// matches.
func Text(text string) string {
	for i := 0; i < maxPasses; i++ {
		next := applyRules(text)
		if next == text {
			break
		}
		text = next
	}
	return text
}

func applyRules(text string) string {
	for _, r := range rules {
		text = r.pattern.ReplaceAllLiteralString(text, r.replacement)
	}
	return text
}
