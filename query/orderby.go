package query

import (
	"strings"

	"github.com/rvegajr/sqlite-db-odata4-sub000/errkind"
)

// parseOrderBy parses a comma-separated `field (asc|desc)?` list, defaulting
// each term's direction to asc.
func parseOrderBy(raw string) ([]OrderTerm, error) {
	const op = "query.parseOrderBy"
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	terms := make([]OrderTerm, 0, len(parts))
	for _, part := range parts {
		fields := strings.Fields(strings.TrimSpace(part))
		switch len(fields) {
		case 1:
			terms = append(terms, OrderTerm{Field: fields[0], Direction: Asc})
		case 2:
			dir, err := parseDirection(fields[1])
			if err != nil {
				return nil, err
			}
			terms = append(terms, OrderTerm{Field: fields[0], Direction: dir})
		default:
			return nil, errkind.BadRequestf("%s: invalid $orderby term %q", op, part)
		}
	}
	return terms, nil
}

func parseDirection(s string) (Direction, error) {
	switch strings.ToLower(s) {
	case "asc":
		return Asc, nil
	case "desc":
		return Desc, nil
	default:
		return "", errkind.BadRequestf("query.parseDirection: invalid sort direction %q", s)
	}
}
