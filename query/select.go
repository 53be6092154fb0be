package query

import "strings"

// parseSelect parses a comma-separated field list. An empty string means
// "unspecified" (select all), represented as a nil slice.
func parseSelect(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	fields := make([]string, 0, len(parts))
	for _, p := range parts {
		f := strings.TrimSpace(p)
		if f != "" {
			fields = append(fields, f)
		}
	}
	return fields
}
