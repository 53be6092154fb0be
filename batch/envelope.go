// Package batch implements the Batch Processor (spec §4.6): parsing a MIME
// multipart envelope of sub-requests, executing them as one atomic
// transaction (all-or-nothing per changeset), and emitting the multipart
// response envelope in operation order.
package batch

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/rvegajr/sqlite-db-odata4-sub000/errkind"
)

// MaxOperations is the default cap on operations per batch (spec §4.6).
const MaxOperations = 1000

// Operation is one parsed sub-request.
type Operation struct {
	Method  string
	URL     string
	Headers http.Header
	Body    any // json.Unmarshal result, or a raw string if not valid JSON
}

var allowedMethods = map[string]bool{
	http.MethodGet: true, http.MethodPost: true, http.MethodPut: true,
	http.MethodDelete: true, http.MethodPatch: true,
}

// ParseEnvelope parses a batch body with the default MaxOperations cap.
func ParseEnvelope(contentType string, body []byte) ([]Operation, error) {
	return ParseEnvelopeWithLimit(contentType, body, MaxOperations)
}

// ParseEnvelopeWithLimit parses a multipart/mixed batch body (outer
// boundary enclosing one changeset's multipart/mixed part) into an ordered
// list of Operations (spec §4.6). contentType is the request's own
// Content-Type header, which carries the outer boundary parameter.
// maxOps overrides MaxOperations, e.g. per-Handler configuration.
func ParseEnvelopeWithLimit(contentType string, body []byte, maxOps int) ([]Operation, error) {
	const op = "batch.ParseEnvelopeWithLimit"
	if maxOps <= 0 {
		maxOps = MaxOperations
	}

	_, params, err := mime.ParseMediaType(contentType)
	if err != nil || params["boundary"] == "" {
		return nil, errkind.BadRequestf("%s: Invalid batch format", op)
	}

	outer := multipart.NewReader(bytes.NewReader(body), params["boundary"])
	changesetPart, err := outer.NextPart()
	if err != nil {
		return nil, errkind.BadRequestf("%s: Invalid batch format", op)
	}
	defer changesetPart.Close()

	changesetCT := changesetPart.Header.Get("Content-Type")
	_, csParams, err := mime.ParseMediaType(changesetCT)
	if err != nil || csParams["boundary"] == "" {
		return nil, errkind.BadRequestf("%s: Invalid batch format", op)
	}

	changesetBody, err := io.ReadAll(changesetPart)
	if err != nil {
		return nil, errkind.BadRequestf("%s: Invalid batch format", op)
	}

	inner := multipart.NewReader(bytes.NewReader(changesetBody), csParams["boundary"])
	var ops []Operation
	for {
		part, err := inner.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errkind.BadRequestf("%s: Invalid batch format", op)
		}
		o, err := parseOperationPart(part)
		part.Close()
		if err != nil {
			return nil, err
		}
		ops = append(ops, o)
		if len(ops) > maxOps {
			return nil, errkind.BadRequestf("%s: batch exceeds %d operations", op, maxOps)
		}
	}

	for _, o := range ops {
		if err := validateOperation(o); err != nil {
			return nil, err
		}
	}
	return ops, nil
}

func parseOperationPart(part *multipart.Part) (Operation, error) {
	const op = "batch.parseOperationPart"
	raw, err := io.ReadAll(part)
	if err != nil {
		return Operation{}, errkind.BadRequestf("%s: Invalid batch format", op)
	}
	req, err := http.ReadRequest(bufio.NewReader(bytes.NewReader(raw)))
	if err != nil {
		return Operation{}, errkind.BadRequestf("%s: Invalid batch format", op)
	}
	defer req.Body.Close()
	bodyBytes, err := io.ReadAll(req.Body)
	if err != nil {
		return Operation{}, errkind.BadRequestf("%s: Invalid batch format", op)
	}

	o := Operation{Method: req.Method, URL: req.URL.String(), Headers: req.Header}
	if len(bytes.TrimSpace(bodyBytes)) > 0 {
		var parsed any
		if json.Unmarshal(bodyBytes, &parsed) == nil {
			o.Body = parsed
		} else {
			o.Body = strings.TrimSpace(string(bodyBytes))
		}
	}
	return o, nil
}

func validateOperation(o Operation) error {
	const op = "batch.validateOperation"
	if !strings.HasPrefix(o.URL, "/") {
		return errkind.BadRequestf("%s: operation URL %q must be absolute", op, o.URL)
	}
	if !allowedMethods[o.Method] {
		return errkind.BadRequestf("%s: unsupported method %q in batch", op, o.Method)
	}
	return nil
}
