package delta

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rvegajr/sqlite-db-odata4-sub000/errkind"
)

// Token is a parsed $deltatoken: either a positive-integer timestamp lower
// bound, or an opaque client-held marker (spec §3).
type Token struct {
	Timestamp int64
	Opaque    string
	IsOpaque  bool
}

// ParseDeltaToken parses raw per spec §4.7: empty is invalid; a value
// containing '-' or '_' is an opaque custom token; otherwise it must parse
// as a positive integer timestamp. This check can misclassify a numeric
// opaque token that happens to contain neither character as a timestamp;
// that is a known, accepted limitation of the wire format (spec §9 Open
// Question), not silently worked around here.
func ParseDeltaToken(raw string) (Token, error) {
	const op = "delta.ParseDeltaToken"
	if raw == "" {
		return Token{}, errkind.BadRequestf("%s: delta token must not be empty", op)
	}
	if strings.ContainsAny(raw, "-_") {
		return Token{Opaque: raw, IsOpaque: true}, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n <= 0 {
		return Token{}, errkind.BadRequestf("%s: invalid delta token %q", op, raw)
	}
	return Token{Timestamp: n}, nil
}

// FormatTimestamp renders a raw timestamp as its plain decimal digits, the
// inverse of ParseDeltaToken for the integer-token case (Testable Property
// 3, spec §8): ParseDeltaToken(FormatTimestamp(t)).Timestamp == t for every
// positive t.
func FormatTimestamp(ts int64) string {
	return strconv.FormatInt(ts, 10)
}

// dateStamp renders ts (wall-clock milliseconds) as the 17-char zero-padded
// YYYYMMDDHHMMSSMMM stamp used as the default delta-link token when the
// caller supplies no custom token.
func dateStamp(ts int64) string {
	t := time.UnixMilli(ts).UTC()
	return fmt.Sprintf("%s%03d", t.Format("20060102150405"), t.Nanosecond()/1_000_000)
}

// GenerateDeltaLink builds `<baseUrl>/<resource><existingQuery>[&|?]$deltatoken=<token>`.
// token is customToken if non-empty, else the 17-char date stamp derived
// from ts.
func GenerateDeltaLink(baseURL, resource string, ts int64, existingQuery, customToken string) string {
	token := customToken
	if token == "" {
		token = dateStamp(ts)
	}
	link := strings.TrimRight(baseURL, "/") + "/" + resource + existingQuery
	sep := "?"
	if existingQuery != "" {
		sep = "&"
	}
	return fmt.Sprintf("%s%s$deltatoken=%s", link, sep, token)
}
