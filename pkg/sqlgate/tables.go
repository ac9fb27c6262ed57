package sqlgate

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

var (
	ErrUnterminated = errors.New("unterminated quote")
	ErrUnparseable  = errors.New("cannot determine referenced tables")
)

type tokenKind int

const (
	tokIdent tokenKind = iota
	tokQuotedIdent
	tokString
	tokNumber
	tokPunct
)

type token struct {
	kind tokenKind
	text string
}

// keywords are never taken as table aliases and mark parentheses that open
// subqueries rather than function calls.
var keywords = map[string]struct{}{
	"select": {}, "from": {}, "where": {}, "join": {}, "inner": {}, "left": {}, "right": {},
	"full": {}, "outer": {}, "cross": {}, "natural": {}, "lateral": {}, "on": {}, "using": {},
	"group": {}, "order": {}, "by": {}, "having": {}, "limit": {}, "offset": {}, "fetch": {},
	"union": {}, "intersect": {}, "except": {}, "minus": {}, "window": {}, "qualify": {},
	"as": {}, "and": {}, "or": {}, "not": {}, "in": {}, "exists": {}, "with": {}, "recursive": {},
	"when": {}, "then": {}, "else": {}, "case": {}, "end": {}, "all": {}, "any": {}, "distinct": {},
	"is": {}, "null": {}, "between": {}, "like": {}, "ilike": {}, "over": {}, "partition": {},
	"values": {}, "sample": {}, "pivot": {}, "unpivot": {},
}

func isKeyword(s string) bool {
	_, ok := keywords[s]
	return ok
}

func tokenize(q string) ([]token, error) {
	var out []token
	rs := []rune(q)
	for i := 0; i < len(rs); {
		r := rs[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case r == '\'':
			j, err := scanQuoted(rs, i, '\'')
			if err != nil {
				return nil, err
			}
			out = append(out, token{tokString, string(rs[i+1 : j])})
			i = j + 1
		case r == '"' || r == '`':
			j, err := scanQuoted(rs, i, r)
			if err != nil {
				return nil, err
			}
			out = append(out, token{tokQuotedIdent, string(rs[i+1 : j])})
			i = j + 1
		case r == '[':
			j := i + 1
			for j < len(rs) && rs[j] != ']' {
				j++
			}
			if j >= len(rs) {
				return nil, ErrUnterminated
			}
			out = append(out, token{tokQuotedIdent, string(rs[i+1 : j])})
			i = j + 1
		case unicode.IsLetter(r) || r == '_':
			j := i
			for j < len(rs) && (unicode.IsLetter(rs[j]) || unicode.IsDigit(rs[j]) || rs[j] == '_' || rs[j] == '$') {
				j++
			}
			out = append(out, token{tokIdent, strings.ToLower(string(rs[i:j]))})
			i = j
		case unicode.IsDigit(r):
			j := i
			for j < len(rs) && (unicode.IsDigit(rs[j]) || rs[j] == '.') {
				j++
			}
			out = append(out, token{tokNumber, string(rs[i:j])})
			i = j
		default:
			out = append(out, token{tokPunct, string(r)})
			i++
		}
	}
	return out, nil
}

// scanQuoted returns the index of the closing quote, honouring doubled quotes.
func scanQuoted(rs []rune, start int, quote rune) (int, error) {
	for j := start + 1; j < len(rs); j++ {
		if rs[j] != quote {
			continue
		}
		if j+1 < len(rs) && rs[j+1] == quote {
			j++
			continue
		}
		return j, nil
	}
	return 0, ErrUnterminated
}

func normalizeIdent(s string) string {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ".")
	for i, p := range parts {
		parts[i] = strings.ToLower(strings.Trim(p, "\"`[]"))
	}
	return strings.Join(parts, ".")
}

func isName(t token) bool {
	return t.kind == tokQuotedIdent || (t.kind == tokIdent && !isKeyword(t.text))
}

// subqueryStarts open a query expression when they directly follow "(",
// whatever the parenthesis is attached to (ARRAY(, SOME(, a plain call).
var subqueryStarts = map[string]struct{}{
	"select": {}, "with": {}, "values": {}, "table": {},
}

// exemptCalls are the functions whose argument grammar uses FROM or IN
// without naming a table.
var exemptCalls = map[string]string{
	"extract":   "from",
	"substring": "from",
	"trim":      "from",
	"overlay":   "from",
	"position":  "in",
}

// TablesIn lists the distinct tables a query reads, lower-cased and with
// qualifiers kept (schema.table). CTE names are excluded.
//
// Tables are introduced by FROM, JOIN, TABLE (Postgres shorthand for
// SELECT * FROM) and a bare name after IN (SQLite table operand).
func TablesIn(query string) ([]string, error) {
	toks, err := tokenize(query)
	if err != nil {
		return nil, err
	}

	ctes := collectCTENames(toks)

	var (
		tables []string
		seen   = map[string]struct{}{}
		// parens holds, per open parenthesis, the function it calls or ""
		// when it groups or opens a subquery.
		parens []string
	)

	for i := 0; i < len(toks); i++ {
		t := toks[i]
		if t.kind == tokPunct {
			switch t.text {
			case "(":
				parens = append(parens, callName(toks, i))
			case ")":
				if len(parens) == 0 {
					return nil, ErrUnparseable
				}
				parens = parens[:len(parens)-1]
			}
			continue
		}
		if t.kind != tokIdent {
			continue
		}

		allowComma := false
		switch t.text {
		case "from":
			allowComma = true
		case "join":
		case "table":
			if i+1 >= len(toks) || !isName(toks[i+1]) {
				return nil, fmt.Errorf("%w: unexpected token after TABLE", ErrUnparseable)
			}
		case "in":
			if i+1 >= len(toks) || !isName(toks[i+1]) {
				continue
			}
		default:
			continue
		}
		if len(parens) > 0 {
			if kw, ok := exemptCalls[parens[len(parens)-1]]; ok && kw == t.text {
				continue
			}
		}

		next, names, err := readTableList(toks, i+1, allowComma)
		if err != nil {
			return nil, err
		}
		for _, n := range names {
			if _, isCTE := ctes[n]; isCTE {
				continue
			}
			if _, dup := seen[n]; !dup {
				seen[n] = struct{}{}
				tables = append(tables, n)
			}
		}
		i = next - 1
	}

	if len(parens) != 0 {
		return nil, ErrUnparseable
	}
	return tables, nil
}

// callName returns the function an opening parenthesis at i belongs to, or ""
// when it opens a subquery or a plain group.
func callName(toks []token, i int) string {
	if i+1 < len(toks) && toks[i+1].kind == tokIdent {
		if _, ok := subqueryStarts[toks[i+1].text]; ok {
			return ""
		}
	}
	if i == 0 || toks[i-1].kind != tokIdent || isKeyword(toks[i-1].text) {
		return ""
	}
	return toks[i-1].text
}

// readTableList consumes "name [AS] [alias] {, name [AS] [alias]}" starting at
// i. It stops at a subquery parenthesis, leaving it for the outer scan.
func readTableList(toks []token, i int, allowComma bool) (int, []string, error) {
	var names []string
	for {
		for i < len(toks) && toks[i].kind == tokIdent && (toks[i].text == "lateral" || toks[i].text == "only") {
			i++
		}
		if i >= len(toks) {
			return i, nil, fmt.Errorf("%w: dangling table reference", ErrUnparseable)
		}
		if toks[i].kind == tokPunct && toks[i].text == "(" {
			return i, names, nil
		}
		if !isName(toks[i]) {
			return i, nil, fmt.Errorf("%w: unexpected %q where a table was expected", ErrUnparseable, toks[i].text)
		}

		parts := []string{toks[i].text}
		i++
		for i+1 < len(toks) && toks[i].kind == tokPunct && toks[i].text == "." && isName(toks[i+1]) {
			parts = append(parts, toks[i+1].text)
			i += 2
		}
		if i < len(toks) && toks[i].kind == tokPunct && toks[i].text == "(" {
			return i, nil, fmt.Errorf("%w: table function %q", ErrUnparseable, strings.Join(parts, "."))
		}
		names = append(names, normalizeIdent(strings.Join(parts, ".")))

		if i < len(toks) && toks[i].kind == tokIdent && toks[i].text == "as" {
			i++
		}
		if i < len(toks) && isName(toks[i]) {
			i++
		}

		if allowComma && i < len(toks) && toks[i].kind == tokPunct && toks[i].text == "," {
			i++
			continue
		}
		return i, names, nil
	}
}

// collectCTENames finds "name AS (" directly after WITH [RECURSIVE] or a
// comma that separates CTE definitions.
func collectCTENames(toks []token) map[string]struct{} {
	ctes := map[string]struct{}{}
	if len(toks) == 0 || toks[0].text != "with" {
		return ctes
	}
	depth := 0
	for i := 0; i < len(toks); i++ {
		t := toks[i]
		if t.kind == tokPunct {
			switch t.text {
			case "(":
				depth++
			case ")":
				depth--
			}
			continue
		}
		if depth != 0 || !isName(t) || i == 0 {
			continue
		}
		prev := toks[i-1]
		afterIntro := prev.text == "with" || prev.text == "recursive" || (prev.kind == tokPunct && prev.text == ",")
		if !afterIntro {
			continue
		}
		if i+2 < len(toks) && toks[i+1].text == "as" && toks[i+2].text == "(" {
			ctes[normalizeIdent(t.text)] = struct{}{}
		}
	}
	return ctes
}
