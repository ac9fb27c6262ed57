// Package sqlgate decides whether generated SQL may reach the warehouse.
// Every check is syntactic and fails closed.
package sqlgate

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	readOnlyStart = regexp.MustCompile(`^(select|with)\b`)

	// Mutating and administrative statements. Matching is by whole word, so
	// columns like created_at or update_time pass; the same words inside a
	// string literal do not.
	denylist = regexp.MustCompile(`\b(insert|update|delete|drop|create|alter|truncate|merge|call|execute|exec|grant|revoke|backup|restore|upsert|copy|attach|detach|pragma|vacuum|lock|unload)\b`)
)

func normalize(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}

// IsPermitted reports whether text is a single read-only statement.
func IsPermitted(text string) bool {
	q := normalize(text)
	if q == "" {
		return false
	}
	if !readOnlyStart.MatchString(q) {
		return false
	}
	// Comments can hide anything from a lexical check.
	if strings.Contains(q, "--") || strings.Contains(q, "/*") {
		return false
	}
	// One trailing terminator is fine, a second statement is not.
	if strings.Contains(strings.TrimRight(q, "; \t\r\n"), ";") {
		return false
	}
	return !denylist.MatchString(q)
}

// EnforceTableAllowList reports whether every table the query reads is in
// allowList. Queries whose tables cannot be determined are rejected.
func EnforceTableAllowList(text string, allowList []string) bool {
	if len(allowList) == 0 {
		return false
	}
	tables, err := TablesIn(text)
	if err != nil || len(tables) == 0 {
		return false
	}

	allowed := make(map[string]struct{}, len(allowList))
	for _, t := range allowList {
		allowed[normalizeIdent(t)] = struct{}{}
	}
	for _, t := range tables {
		if _, ok := allowed[t]; !ok {
			return false
		}
	}
	return true
}

// HasRowLimit reports whether the outermost query already bounds its row
// count with LIMIT n, FETCH FIRST/NEXT or TOP. Clauses inside parentheses or
// string literals bound something else and do not count.
func HasRowLimit(text string) bool {
	toks, err := tokenize(text)
	if err != nil {
		return false
	}
	depth := 0
	for i, t := range toks {
		if t.kind == tokPunct {
			switch t.text {
			case "(":
				depth++
			case ")":
				depth--
			}
			continue
		}
		if depth != 0 || t.kind != tokIdent || i+1 >= len(toks) {
			continue
		}
		next := toks[i+1]
		switch t.text {
		case "limit":
			if next.kind == tokNumber {
				return true
			}
		case "fetch":
			if next.text == "first" || next.text == "next" {
				return true
			}
		case "top":
			if next.kind == tokNumber || next.text == "(" {
				return true
			}
		}
	}
	return false
}

// EnsureLimit strips a trailing terminator and appends LIMIT max when the
// query has no row-limiting clause.
func EnsureLimit(text string, max int) string {
	q := strings.TrimRight(strings.TrimSpace(text), "; \t\r\n")
	if HasRowLimit(q) {
		return q
	}
	return q + " LIMIT " + strconv.Itoa(max)
}
