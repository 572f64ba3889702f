package search

import (
	"regexp"
	"strings"
)

var (
	labelTokenRe = regexp.MustCompile(`(?i)\blabel:([A-Za-z0-9_-]+)`)
	hashtagRe    = regexp.MustCompile(`#([^\s#;,]+)[;,]*`)
)

// Tokenize splits a raw query string into free text, label codes and
// hashtags. Filter tokens are removed from the remaining text; codes and tags
// are lowercased and deduplicated. Any input, including empty, produces a
// valid result.
func Tokenize(raw string) (freeText string, labelCodes, hashtags []string) {
	labelCodes = []string{}
	hashtags = []string{}

	rest := labelTokenRe.ReplaceAllStringFunc(raw, func(token string) string {
		code := strings.ToLower(token[len("label:"):])
		labelCodes = appendUnique(labelCodes, code)
		return ""
	})
	rest = hashtagRe.ReplaceAllStringFunc(rest, func(token string) string {
		tag := strings.ToLower(strings.Trim(strings.TrimPrefix(token, "#"), ";,"))
		hashtags = appendUnique(hashtags, tag)
		return ""
	})

	freeText = strings.Join(strings.Fields(rest), " ")
	return freeText, labelCodes, hashtags
}

func appendUnique(values []string, value string) []string {
	for _, existing := range values {
		if existing == value {
			return values
		}
	}
	return append(values, value)
}
