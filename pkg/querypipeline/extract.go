package querypipeline

import (
	"regexp"
	"strings"
)

var (
	fencedSQL = regexp.MustCompile("(?is)```(?:sql)?[ \\t]*\\n(.*?)\\n?[ \\t]*```")
	bareQuery = regexp.MustCompile(`(?is)\b((?:select\b|with\s+(?:recursive\s+)?\w+\s+as\s*\().*?)(?:;|\n\s*\n|$)`)
)

// ExtractSQL pulls the query out of model output: the first fenced block
// if there is one, else the first SELECT/WITH statement. It returns "" when
// neither is found.
func ExtractSQL(response string) string {
	if m := fencedSQL.FindStringSubmatch(response); m != nil {
		if q := cleanSQL(m[1]); q != "" {
			return q
		}
	}
	if m := bareQuery.FindStringSubmatch(response); m != nil {
		return cleanSQL(m[1])
	}
	return ""
}

func cleanSQL(s string) string {
	return strings.TrimSpace(strings.TrimRight(strings.TrimSpace(s), ";"))
}
