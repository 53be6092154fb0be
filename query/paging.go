package query

import (
	"strconv"
	"strings"

	"github.com/rvegajr/sqlite-db-odata4-sub000/errkind"
)

// parseNonNegativeInt parses $top/$skip: a non-negative base-10 integer.
// An empty string returns (nil, nil) meaning "unspecified".
func parseNonNegativeInt(optName, raw string) (*int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return nil, errkind.BadRequestf("query.parseNonNegativeInt: %s must be a non-negative integer, got %q", optName, raw)
	}
	return &n, nil
}

// parseBool parses $count: a literal "true"/"false".
func parseBool(optName, raw string) (*bool, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	switch strings.ToLower(raw) {
	case "true":
		b := true
		return &b, nil
	case "false":
		b := false
		return &b, nil
	default:
		return nil, errkind.BadRequestf("query.parseBool: %s must be true or false, got %q", optName, raw)
	}
}
