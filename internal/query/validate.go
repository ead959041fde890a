package query

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ashirbekov/txinsights/internal/domain"
)

// Verdict is the validator's accepted form of a statement.
type Verdict struct {
	SQL       string // statement to execute, after rewriting
	Rewritten bool   // free-text predicates were made case-insensitive
}

// denylist matches destructive keywords as standalone words anywhere in the
// statement, string literals included: a statement that needs one of these
// words even as data is not worth running.
var denylist = regexp.MustCompile(`(?i)\b(DROP|DELETE|UPDATE|INSERT|ALTER|TRUNCATE|CREATE|GRANT|REVOKE)\b`)

var allowedLeading = map[string]bool{
	"SELECT":  true,
	"WITH":    true,
	"EXPLAIN": true,
}

// Validate decides whether a generated statement may run and rewrites
// free-text predicates to match case-insensitively. It is pure: no sink
// access, no network. Validating an already accepted statement returns it
// unchanged.
func Validate(sql string) (Verdict, error) {
	trimmed := strings.TrimSpace(sql)
	if trimmed == "" {
		return Verdict{}, &RejectedError{Reason: "empty statement"}
	}

	if m := denylist.FindString(trimmed); m != "" {
		return Verdict{}, &RejectedError{Reason: strings.ToUpper(m)}
	}

	keyword := leadingKeyword(trimmed)
	if !allowedLeading[keyword] {
		if keyword == "" {
			return Verdict{}, &RejectedError{Reason: "no statement keyword found"}
		}
		return Verdict{}, &RejectedError{
			Reason: fmt.Sprintf("statement must begin with SELECT, WITH or EXPLAIN, not %s", keyword),
		}
	}

	rewritten := rewriteFreeText(trimmed)
	return Verdict{SQL: rewritten, Rewritten: rewritten != trimmed}, nil
}

// leadingKeyword returns the first SQL token upper-cased, skipping
// whitespace, line comments and block comments.
func leadingKeyword(sql string) string {
	s := sql
	for {
		s = strings.TrimLeft(s, " \t\r\n")
		switch {
		case strings.HasPrefix(s, "--"):
			i := strings.IndexByte(s, '\n')
			if i < 0 {
				return ""
			}
			s = s[i+1:]
		case strings.HasPrefix(s, "/*"):
			i := strings.Index(s, "*/")
			if i < 0 {
				return ""
			}
			s = s[i+2:]
		default:
			end := 0
			for end < len(s) {
				c := s[end]
				if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') {
					end++
					continue
				}
				break
			}
			return strings.ToUpper(s[:end])
		}
	}
}

// freeTextPredicate matches comparisons of a free-text column against a
// string literal. Wrapped predicates no longer match, which is what makes
// the rewrite idempotent.
var freeTextPredicate = buildFreeTextPattern()

func buildFreeTextPattern() *regexp.Regexp {
	cols := domain.FreeTextColumns()
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = regexp.QuoteMeta(c)
	}
	pattern := `(?i)\b(` + strings.Join(names, "|") + `)\s*(!=|<>|=|NOT\s+LIKE|LIKE)\s*('(?:[^']|'')*')`
	return regexp.MustCompile(pattern)
}

// rewriteFreeText lowercases both sides of free-text comparisons so stored
// casing never decides a match. IN lists and reversed comparisons are left
// alone.
func rewriteFreeText(sql string) string {
	return freeTextPredicate.ReplaceAllString(sql, "LOWER(${1}) ${2} LOWER(${3})")
}
