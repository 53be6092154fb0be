package batch

import (
	"net/http"
	"net/url"
)

// RequestHandler is the seam batch sub-GETs are dispatched through: the
// same framework-neutral signature the root Handler exposes (spec §6).
// The root Handler satisfies this interface structurally; batch never
// imports the root package, so there is no import cycle.
type RequestHandler interface {
	Handle(method, path string, query url.Values, headers http.Header, body []byte) (status int, respHeaders http.Header, respBody []byte)
}

// OperationResult is one sub-request's outcome, in input order.
type OperationResult struct {
	Status  int
	Headers map[string]string
	Body    []byte
}
