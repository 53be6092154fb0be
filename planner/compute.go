package planner

import (
	"fmt"
	"strings"

	"github.com/rvegajr/sqlite-db-odata4-sub000/errkind"
	"github.com/rvegajr/sqlite-db-odata4-sub000/query"
	"github.com/rvegajr/sqlite-db-odata4-sub000/schema"
)

// computeWhitelist is the set of functions $compute expressions may call
// (spec §4.5). CASE/WHEN/THEN/ELSE/END are keywords, not functions, and are
// recognized separately.
var computeWhitelist = map[string]bool{
	"UPPER": true, "LOWER": true, "SUBSTR": true, "INSTR": true,
	"LENGTH": true, "TRIM": true, "ROUND": true, "ABS": true,
	"CEIL": true, "FLOOR": true, "COALESCE": true, "CAST": true,
	"JULIANDAY": true, "SUM": true, "AVG": true, "COUNT": true,
	"MIN": true, "MAX": true,
}

var computeKeywords = map[string]bool{
	"CASE": true, "WHEN": true, "THEN": true, "ELSE": true, "END": true,
	"AS": true, "AND": true, "OR": true, "NOT": true,
}

// lowerComputeList validates and lowers every $compute clause against
// table's schema, returning the "(<expr>) AS <alias>" SQL fragments (in
// request order) and their output column names. c.As is spliced into SQL
// unescaped; query.parseCompute already rejects anything but a bare
// identifier for it, so that guarantee must hold for every Compute this
// function is given.
func lowerComputeList(reg *schema.Registry, table string, computes []query.Compute, fieldMap FieldMap) ([]string, []string, error) {
	if len(computes) == 0 {
		return nil, nil, nil
	}
	cols := make([]string, 0, len(computes))
	names := make([]string, 0, len(computes))
	for _, c := range computes {
		expr, err := lowerComputeExpr(reg, table, c.Expression, fieldMap)
		if err != nil {
			return nil, nil, err
		}
		cols = append(cols, fmt.Sprintf("(%s) AS %s", expr, c.As))
		names = append(names, c.As)
	}
	return cols, names, nil
}

// lowerComputeExpr validates expr against the restricted grammar of spec
// §4.5 (balanced parens/quotes, whitelisted functions/keywords only, no
// consecutive operators, no semicolons or comments) and rewrites every
// bare column identifier through fieldMap, returning SQL text safe to
// splice into a SELECT list. No value from the expression text is ever
// treated as a bind parameter: the expression is schema-validated
// identifier-for-identifier instead, which is what makes it safe to emit
// as literal SQL.
func lowerComputeExpr(reg *schema.Registry, table, expr string, fieldMap FieldMap) (string, error) {
	const op = "planner.lowerComputeExpr"

	if err := checkComputeSyntax(expr); err != nil {
		return "", err
	}

	var out strings.Builder
	depth := 0
	i := 0
	for i < len(expr) {
		c := expr[i]
		switch {
		case c == '\'':
			j := i + 1
			for j < len(expr) && expr[j] != '\'' {
				j++
			}
			if j >= len(expr) {
				return "", errkind.BadRequestf("%s: unterminated string literal in $compute expression", op)
			}
			out.WriteString(expr[i : j+1])
			i = j + 1
		case c == '(':
			depth++
			out.WriteByte(c)
			i++
		case c == ')':
			depth--
			if depth < 0 {
				return "", errkind.BadRequestf("%s: unbalanced parentheses in $compute expression", op)
			}
			out.WriteByte(c)
			i++
		case isIdentStart(rune(c)):
			j := i
			for j < len(expr) && isIdentRune(rune(expr[j])) {
				j++
			}
			word := expr[i:j]
			upper := strings.ToUpper(word)
			followedByParen := nextNonSpace(expr, j) == '('

			switch {
			case computeKeywords[upper]:
				out.WriteString(upper)
			case followedByParen && computeWhitelist[upper]:
				out.WriteString(upper)
			case isNumericLiteral(word):
				out.WriteString(word)
			default:
				dbField := fieldMap.resolve(word)
				if _, err := reg.Field(table, dbField); err != nil {
					return "", err
				}
				out.WriteString(dbField)
			}
			i = j
		default:
			out.WriteByte(c)
			i++
		}
	}
	if depth != 0 {
		return "", errkind.BadRequestf("%s: unbalanced parentheses in $compute expression", op)
	}
	return out.String(), nil
}

// checkComputeSyntax rejects the disallowed constructs of spec §4.5 that
// are easiest to catch as raw substrings: consecutive operators,
// semicolons, and comments. It scans outside of quoted strings only.
func checkComputeSyntax(expr string) error {
	const op = "planner.checkComputeSyntax"
	inQuote := false
	forbidden := []string{"++", "--", "**", "//", ";", "/*", "*/"}
	for i := 0; i < len(expr); i++ {
		if expr[i] == '\'' {
			inQuote = !inQuote
			continue
		}
		if inQuote {
			continue
		}
		for _, f := range forbidden {
			if strings.HasPrefix(expr[i:], f) {
				return errkind.BadRequestf("%s: disallowed token %q in $compute expression", op, f)
			}
		}
	}
	if inQuote {
		return errkind.BadRequestf("%s: unterminated string literal in $compute expression", op)
	}
	return nil
}

func isIdentStart(r rune) bool {
	return r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

func isIdentRune(r rune) bool {
	return isIdentStart(r) || (r >= '0' && r <= '9')
}

func nextNonSpace(s string, from int) byte {
	for i := from; i < len(s); i++ {
		if s[i] != ' ' && s[i] != '\t' {
			return s[i]
		}
	}
	return 0
}

func isNumericLiteral(s string) bool {
	if s == "" {
		return false
	}
	seenDigit, seenDot := false, false
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			seenDigit = true
		case r == '.' && !seenDot:
			seenDot = true
		default:
			return false
		}
	}
	return seenDigit
}
