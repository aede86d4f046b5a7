package tools

import (
	"regexp"
	"strings"

	"github.com/ghonijee/money-tracker-ai-agent/framework"
)

var (
	codeFence     = regexp.MustCompile("(?s)^```[a-zA-Z]*\\s*(.*?)\\s*```$")
	userIDFilter  = regexp.MustCompile(`(?i)\buser_id\b`)
	selectKeyword = regexp.MustCompile(`(?i)^select\b`)
)

// CleanQuery strips the code fences models wrap SQL in, and quotes or
// backticks only when the same character encloses the whole query, so a
// trailing string literal stays intact.
func CleanQuery(query string) string {
	q := strings.TrimSpace(query)
	if m := codeFence.FindStringSubmatch(q); m != nil {
		q = m[1]
	}
	for len(q) >= 2 && q[0] == q[len(q)-1] && strings.ContainsRune("`\"'", rune(q[0])) {
		q = strings.TrimSpace(q[1 : len(q)-1])
	}
	return q
}

// GateQuery is the read-only gate applied before a generated query reaches
// storage. It accepts only a single SELECT statement that filters on
// user_id and returns the cleaned query.
func GateQuery(tool, query string) (string, error) {
	q := CleanQuery(query)
	if !selectKeyword.MatchString(q) {
		return "", framework.InvalidArgs(tool, "Query must start with SELECT")
	}
	if !userIDFilter.MatchString(q) {
		return "", framework.InvalidArgs(tool, "Query must contain user_id filter")
	}
	if i := strings.Index(q, ";"); i >= 0 && strings.TrimSpace(q[i+1:]) != "" {
		return "", framework.InvalidArgs(tool, "Query must be a single statement")
	}
	return q, nil
}
