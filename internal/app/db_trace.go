package app

import (
	"regexp"
	"strconv"
	"strings"
)

const maxTracedQueryLength = 512

var (
	queryWhitespaceRegex = regexp.MustCompile(`\s+`)
	multiRowValuesRegex  = regexp.MustCompile(`VALUES (\([^)]*\))((?:, \([^)]*\))+)`)
)

// formatDBQueryForTrace flattens whitespace and folds multi-row VALUES lists
// so staging inserts stay readable in span attributes.
func formatDBQueryForTrace(query string) string {
	query = strings.TrimSpace(query)
	if query == "" {
		return query
	}

	normalized := queryWhitespaceRegex.ReplaceAllString(query, " ")
	normalized = multiRowValuesRegex.ReplaceAllStringFunc(normalized, func(match string) string {
		parts := multiRowValuesRegex.FindStringSubmatch(match)
		extra := strings.Count(parts[2], ", (")
		return "VALUES " + parts[1] + " /* +" + strconv.Itoa(extra) + " rows */"
	})
	if len(normalized) <= maxTracedQueryLength {
		return normalized
	}

	return normalized[:maxTracedQueryLength] + "..."
}
