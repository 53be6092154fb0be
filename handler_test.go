package odata4_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	odata4 "github.com/rvegajr/sqlite-db-odata4-sub000"
	"github.com/rvegajr/sqlite-db-odata4-sub000/delta"
	"github.com/rvegajr/sqlite-db-odata4-sub000/schema"
	"github.com/rvegajr/sqlite-db-odata4-sub000/store"
)

func newTestHandler(t *testing.T) (*odata4.Handler, *store.SQLStore) {
	t.Helper()
	conn, err := store.Open("file:" + t.Name() + "?mode=memory&cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	ctx := context.Background()
	_, err = conn.Exec(ctx, `CREATE TABLE customers (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL
	)`)
	require.NoError(t, err)
	_, err = conn.Exec(ctx, `CREATE TABLE orders (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		customer_id INTEGER NOT NULL,
		total REAL NOT NULL
	)`)
	require.NoError(t, err)
	_, err = conn.Exec(ctx, `INSERT INTO customers (id, name) VALUES (1, 'Ada')`)
	require.NoError(t, err)
	_, err = conn.Exec(ctx, `INSERT INTO orders (id, customer_id, total) VALUES (1, 1, 9.5), (2, 1, 20.0)`)
	require.NoError(t, err)

	reg := schema.NewRegistry()
	reg.Register(schema.Table{
		Name: "customers",
		Columns: []schema.Column{
			{Name: "id", Type: schema.Integer, PrimaryKey: true},
			{Name: "name", Type: schema.Text},
		},
	})
	reg.Register(schema.Table{
		Name: "orders",
		Columns: []schema.Column{
			{Name: "id", Type: schema.Integer, PrimaryKey: true},
			{Name: "customer_id", Type: schema.Integer},
			{Name: "total", Type: schema.Real},
		},
	})
	reg.RegisterForeignKey(schema.ForeignKey{
		FromTable: "orders", FromColumn: "customer_id",
		ToTable: "customers", ToColumn: "id", NavName: "customer",
	})

	tracker := delta.NewTracker(0, nil, nil)
	h := odata4.NewHandler(reg, conn, tracker, nil, odata4.WithBaseURL("http://test"))
	return h, conn
}

func TestHandler_CollectionGet(t *testing.T) {
	t.Parallel()
	h, _ := newTestHandler(t)

	status, headers, body := h.Handle(http.MethodGet, "/orders", url.Values{"$filter": {"total gt 10"}}, http.Header{}, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "application/json", headers.Get("Content-Type"))

	var env struct {
		Value []map[string]any `json:"value"`
	}
	require.NoError(t, json.Unmarshal(body, &env))
	require.Len(t, env.Value, 1)
	assert.InDelta(t, 20.0, env.Value[0]["total"], 0.001)
}

func TestHandler_EntityGet_NotFound(t *testing.T) {
	t.Parallel()
	h, _ := newTestHandler(t)

	status, _, body := h.Handle(http.MethodGet, "/orders(999)", url.Values{}, http.Header{}, nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Contains(t, string(body), `"code":"404"`)
}

func TestHandler_PostThenGet(t *testing.T) {
	t.Parallel()
	h, _ := newTestHandler(t)

	postBody := []byte(`{"customer_id":1,"total":42.5}`)
	status, _, body := h.Handle(http.MethodPost, "/orders", url.Values{}, http.Header{}, postBody)
	require.Equal(t, http.StatusCreated, status)

	var created map[string]any
	require.NoError(t, json.Unmarshal(body, &created))
	id := int64(created["id"].(float64))

	status, _, body = h.Handle(http.MethodGet, resourcePathFor(id), url.Values{}, http.Header{}, nil)
	require.Equal(t, http.StatusOK, status)
	var got map[string]any
	require.NoError(t, json.Unmarshal(body, &got))
	assert.InDelta(t, 42.5, got["total"], 0.001)
}

func resourcePathFor(id int64) string {
	return "/orders(" + strconv.FormatInt(id, 10) + ")"
}

func TestHandler_Batch_AbortedChangesetYieldsMultipartWithTwo500s(t *testing.T) {
	t.Parallel()
	h, _ := newTestHandler(t)

	envelope := "--batch_boundary\r\n" +
		"Content-Type: multipart/mixed; boundary=changeset_boundary\r\n\r\n" +
		"--changeset_boundary\r\n" +
		"Content-Type: application/http\r\n\r\n" +
		"POST /orders HTTP/1.1\r\n" +
		"Content-Type: application/json\r\n\r\n" +
		"{\"customer_id\":1,\"total\":123.45}" +
		"\r\n--changeset_boundary\r\n" +
		"Content-Type: application/http\r\n\r\n" +
		"PUT /orders(999) HTTP/1.1\r\n" +
		"Content-Type: application/json\r\n\r\n" +
		"{\"total\":1}" +
		"\r\n--changeset_boundary--\r\n" +
		"--batch_boundary--\r\n"

	headers := http.Header{}
	headers.Set("Content-Type", "multipart/mixed; boundary=batch_boundary")
	status, respHeaders, body := h.Handle(http.MethodPost, "/$batch", url.Values{}, headers, []byte(envelope))

	require.Equal(t, http.StatusOK, status, "the outer $batch response is always 200; failures live in the sub-parts")
	contentType := respHeaders.Get("Content-Type")
	require.Contains(t, contentType, "multipart/mixed")

	_, params, err := mime.ParseMediaType(contentType)
	require.NoError(t, err)
	reader := multipart.NewReader(bytes.NewReader(body), params["boundary"])
	var parts []string
	for {
		part, err := reader.NextPart()
		if err != nil {
			break
		}
		raw, err := io.ReadAll(part)
		require.NoError(t, err)
		parts = append(parts, string(raw))
	}
	require.Len(t, parts, 2, "one part per input operation, even on abort")
	for _, p := range parts {
		assert.Contains(t, p, "HTTP/1.1 500 Internal Server Error")
	}

	// The POST's row must not have survived the rollback.
	status, _, body = h.Handle(http.MethodGet, "/orders", url.Values{"$filter": {"total eq 123.45"}}, http.Header{}, nil)
	require.Equal(t, http.StatusOK, status)
	var env struct {
		Value []map[string]any `json:"value"`
	}
	require.NoError(t, json.Unmarshal(body, &env))
	assert.Empty(t, env.Value, "the POST from the aborted changeset must have been rolled back")
}
