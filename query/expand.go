package query

import (
	"strings"

	"github.com/rvegajr/sqlite-db-odata4-sub000/errkind"
)

// parseExpand parses the $expand system option: a comma-separated list of
// navigation paths, each optionally followed by a parenthesized,
// semicolon-separated set of nested system options, which may themselves
// contain a nested $expand (parsed recursively).
func parseExpand(raw string) ([]*ExpandField, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	terms := splitTopLevel(raw, ',')
	fields := make([]*ExpandField, 0, len(terms))
	for _, term := range terms {
		f, err := parseExpandTerm(term)
		if err != nil {
			return nil, err
		}
		fields = append(fields, f)
	}
	return fields, nil
}

func parseExpandTerm(term string) (*ExpandField, error) {
	const op = "query.parseExpandTerm"
	term = strings.TrimSpace(term)
	open := strings.IndexByte(term, '(')
	if open < 0 {
		if term == "" {
			return nil, errkind.BadRequestf("%s: empty $expand term", op)
		}
		return &ExpandField{Path: term}, nil
	}
	if !strings.HasSuffix(term, ")") {
		return nil, errkind.BadRequestf("%s: missing closing paren in $expand term %q", op, term)
	}
	path := strings.TrimSpace(term[:open])
	if path == "" {
		return nil, errkind.BadRequestf("%s: empty navigation name in $expand term %q", op, term)
	}
	inner := term[open+1 : len(term)-1]

	field := &ExpandField{Path: path}
	for _, opt := range splitTopLevel(inner, ';') {
		opt = strings.TrimSpace(opt)
		if opt == "" {
			continue
		}
		eq := strings.IndexByte(opt, '=')
		if eq < 0 {
			return nil, errkind.BadRequestf("%s: malformed nested option %q in $expand(%s)", op, opt, path)
		}
		key := strings.TrimSpace(opt[:eq])
		val := strings.TrimSpace(opt[eq+1:])

		var err error
		switch key {
		case "$filter":
			field.Filter, err = parseFilter(val)
		case "$select":
			field.Select = parseSelect(val)
		case "$orderby":
			field.OrderBy, err = parseOrderBy(val)
		case "$top":
			field.Top, err = parseNonNegativeInt("$top", val)
		case "$skip":
			field.Skip, err = parseNonNegativeInt("$skip", val)
		case "$expand":
			field.Nested, err = parseExpand(val)
		default:
			return nil, errkind.BadRequestf("%s: unknown nested option %q in $expand(%s)", op, key, path)
		}
		if err != nil {
			return nil, err
		}
	}
	return field, nil
}
