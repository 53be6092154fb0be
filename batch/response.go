package batch

import (
	"bytes"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
)

// ResponseBoundary is the literal outer MIME boundary spec §6 names for
// a batch response, mirroring the "batch_boundary" a request envelope
// carries.
const ResponseBoundary = "batch_boundary"

// Serialize renders results as a multipart/mixed batch response envelope,
// one "application/http" part per operation, in input order (spec §4.6).
// It returns the body and the Content-Type header value to send with it.
func Serialize(results []OperationResult) (body []byte, contentType string, err error) {
	const op = "batch.Serialize"
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)
	if err := w.SetBoundary(ResponseBoundary); err != nil {
		return nil, "", fmt.Errorf("%s: failed to set boundary: %w", op, err)
	}

	for _, r := range results {
		partHeader := make(textproto.MIMEHeader)
		partHeader.Set("Content-Type", "application/http; content-transfer-encoding: binary")
		part, err := w.CreatePart(partHeader)
		if err != nil {
			return nil, "", fmt.Errorf("%s: failed to create part: %w", op, err)
		}
		if err := writeHTTPResponse(part, r); err != nil {
			return nil, "", fmt.Errorf("%s: %w", op, err)
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("%s: failed to close writer: %w", op, err)
	}
	return buf.Bytes(), "multipart/mixed; boundary=" + ResponseBoundary, nil
}

func writeHTTPResponse(w interface{ Write([]byte) (int, error) }, r OperationResult) error {
	status := r.Status
	if status == 0 {
		status = http.StatusOK
	}
	if _, err := fmt.Fprintf(w, "HTTP/1.1 %d %s\r\n", status, http.StatusText(status)); err != nil {
		return err
	}
	for k, v := range r.Headers {
		if _, err := fmt.Fprintf(w, "%s: %s\r\n", k, v); err != nil {
			return err
		}
	}
	if len(r.Body) > 0 {
		if _, ok := r.Headers["Content-Type"]; !ok {
			if _, err := fmt.Fprintf(w, "Content-Type: application/json\r\n"); err != nil {
				return err
			}
		}
	}
	if _, err := fmt.Fprintf(w, "\r\n"); err != nil {
		return err
	}
	if len(r.Body) > 0 {
		if _, err := w.Write(r.Body); err != nil {
			return err
		}
	}
	return nil
}
