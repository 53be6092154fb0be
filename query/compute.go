package query

import (
	"strings"

	"github.com/rvegajr/sqlite-db-odata4-sub000/errkind"
)

// parseCompute splits the $compute system option into its comma-separated
// `<expression> as <alias>` clauses. Top-level commas are the only split
// points considered; commas inside parentheses or quoted strings (function
// argument lists, CASE expressions) are not. The expression text itself is
// validated and lowered to SQL later, by the planner, once the target
// table's schema is known (query.Compute.Expression is kept as raw text).
func parseCompute(raw string) ([]Compute, error) {
	const op = "query.parseCompute"
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	clauses := splitTopLevel(raw, ',')
	computes := make([]Compute, 0, len(clauses))
	for _, clause := range clauses {
		expr, alias, err := splitAsAlias(clause)
		if err != nil {
			return nil, err
		}
		computes = append(computes, Compute{Expression: expr, As: alias})
	}
	if len(computes) == 0 {
		return nil, errkind.BadRequestf("%s: empty $compute clause", op)
	}
	return computes, nil
}

// splitTopLevel splits s on sep, ignoring separators nested inside
// parentheses or single-quoted strings.
func splitTopLevel(s string, sep byte) []string {
	var parts []string
	depth := 0
	inQuote := false
	start := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\'':
			inQuote = !inQuote
		case '(':
			if !inQuote {
				depth++
			}
		case ')':
			if !inQuote {
				depth--
			}
		default:
			if s[i] == sep && depth == 0 && !inQuote {
				parts = append(parts, strings.TrimSpace(s[start:i]))
				start = i + 1
			}
		}
	}
	parts = append(parts, strings.TrimSpace(s[start:]))
	return parts
}

// splitAsAlias splits "<expression> as <alias>" on the last top-level
// " as " (case-insensitive), so expressions containing the substring "as"
// inside function names or quoted strings are not mistaken for the
// separator.
func splitAsAlias(clause string) (expr string, alias string, err error) {
	const op = "query.splitAsAlias"
	depth := 0
	inQuote := false
	lastIdx := -1
	lower := strings.ToLower(clause)
	for i := 0; i < len(clause); i++ {
		switch clause[i] {
		case '\'':
			inQuote = !inQuote
		case '(':
			if !inQuote {
				depth++
			}
		case ')':
			if !inQuote {
				depth--
			}
		}
		if depth == 0 && !inQuote && i+4 <= len(clause) && lower[i:i+4] == " as " {
			lastIdx = i
		}
	}
	if lastIdx < 0 {
		return "", "", errkind.BadRequestf("%s: missing ' as <alias>' in $compute clause %q", op, clause)
	}
	expr = strings.TrimSpace(clause[:lastIdx])
	alias = strings.TrimSpace(clause[lastIdx+4:])
	if expr == "" || alias == "" {
		return "", "", errkind.BadRequestf("%s: empty expression or alias in $compute clause %q", op, clause)
	}
	if !isBareIdent(alias) {
		return "", "", errkind.BadRequestf("%s: alias %q in $compute clause %q must be a bare identifier", op, alias, clause)
	}
	return expr, alias, nil
}

// isBareIdent reports whether s is a single identifier: letters, digits,
// underscore, not starting with a digit. The planner splices a $compute
// alias straight into generated SQL as `AS <alias>`, so it must never
// carry anything but identifier characters through this boundary.
func isBareIdent(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if !isIdentRune(r) {
			return false
		}
		if i == 0 && r >= '0' && r <= '9' {
			return false
		}
	}
	return true
}
