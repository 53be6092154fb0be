package odata4

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rvegajr/sqlite-db-odata4-sub000/batch"
	"github.com/rvegajr/sqlite-db-odata4-sub000/delta"
	"github.com/rvegajr/sqlite-db-odata4-sub000/errkind"
	"github.com/rvegajr/sqlite-db-odata4-sub000/format"
	"github.com/rvegajr/sqlite-db-odata4-sub000/planner"
	"github.com/rvegajr/sqlite-db-odata4-sub000/query"
	"github.com/rvegajr/sqlite-db-odata4-sub000/schema"
	"github.com/rvegajr/sqlite-db-odata4-sub000/store"
)

// Handler is the framework-neutral entry point (spec §6): every request,
// regardless of transport, is routed through Handle.
type Handler struct {
	cfg       Config
	reg       *schema.Registry
	conn      store.Connection
	tracker   *delta.Tracker
	processor *batch.Processor
	fieldMap  planner.FieldMap
}

// NewHandler builds a Handler over reg/conn/tracker. tracker may be nil to
// disable delta support; fieldMap may be nil when wire field names equal
// database column names everywhere.
func NewHandler(reg *schema.Registry, conn store.Connection, tracker *delta.Tracker, fieldMap planner.FieldMap, opts ...Option) *Handler {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	h := &Handler{cfg: cfg, reg: reg, conn: conn, tracker: tracker, fieldMap: fieldMap}
	h.processor = batch.NewProcessor(reg, tracker, h, cfg.log)
	return h
}

var (
	countPath    = regexp.MustCompile(`^/([A-Za-z_][A-Za-z0-9_]*)/\$count$`)
	resourcePath = regexp.MustCompile(`^/([A-Za-z_][A-Za-z0-9_]*)(?:\((\d+)\))?(?:/([A-Za-z_][A-Za-z0-9_]*))?$`)
)

// Handle routes one request per spec §6's path forms and never panics:
// every failure is translated into the {"error":{...}} envelope with its
// matching HTTP status. It satisfies batch.RequestHandler, letting the
// batch processor reuse it for a changeset's GET sub-requests.
func (h *Handler) Handle(method, path string, q url.Values, headers http.Header, body []byte) (int, http.Header, []byte) {
	ctx := context.Background()
	respHeaders := http.Header{}
	respHeaders.Set("OData-Version", "4.0")

	log := h.cfg.log
	if log == nil {
		log = logrus.New()
	}
	log.WithFields(logrus.Fields{"method": method, "path": path}).Debug("odata4: handling request")

	switch path {
	case "/$metadata":
		if method != http.MethodGet {
			return h.errorResponse(respHeaders, errkind.MethodNotAllowedf("odata4.Handle: $metadata requires GET"))
		}
		respHeaders.Set("Content-Type", "application/xml")
		return http.StatusOK, respHeaders, metadataXML(h.reg)
	case "/$batch":
		if method != http.MethodPost {
			return h.errorResponse(respHeaders, errkind.MethodNotAllowedf("odata4.Handle: $batch requires POST"))
		}
		return h.handleBatch(ctx, headers, body, respHeaders)
	}

	if m := countPath.FindStringSubmatch(path); m != nil {
		if method != http.MethodGet {
			return h.errorResponse(respHeaders, errkind.MethodNotAllowedf("odata4.Handle: $count requires GET"))
		}
		return h.handleCount(ctx, m[1], q, respHeaders)
	}

	m := resourcePath.FindStringSubmatch(path)
	if m == nil {
		return h.errorResponse(respHeaders, errkind.NotFoundf("odata4.Handle: unrecognized path %q", path))
	}
	resource, idStr, nav := m[1], m[2], m[3]

	switch {
	case idStr == "" && nav == "":
		switch method {
		case http.MethodGet:
			return h.handleCollectionGet(ctx, resource, q, respHeaders)
		case http.MethodPost:
			return h.handleCollectionPost(ctx, resource, body, respHeaders)
		default:
			return h.errorResponse(respHeaders, errkind.MethodNotAllowedf("odata4.Handle: method %s not allowed on a collection", method))
		}
	case idStr != "" && nav == "":
		id, _ := strconv.ParseInt(idStr, 10, 64)
		switch method {
		case http.MethodGet:
			return h.handleEntityGet(ctx, resource, id, q, respHeaders)
		case http.MethodPut:
			return h.handleEntityPut(ctx, resource, id, body, respHeaders)
		case http.MethodDelete:
			return h.handleEntityDelete(ctx, resource, id, respHeaders)
		default:
			return h.errorResponse(respHeaders, errkind.MethodNotAllowedf("odata4.Handle: method %s not allowed on an entity", method))
		}
	case idStr != "" && nav != "":
		if method != http.MethodGet {
			return h.errorResponse(respHeaders, errkind.MethodNotAllowedf("odata4.Handle: navigation requires GET"))
		}
		id, _ := strconv.ParseInt(idStr, 10, 64)
		return h.handleNavigationGet(ctx, resource, id, nav, q, respHeaders)
	default:
		return h.errorResponse(respHeaders, errkind.NotFoundf("odata4.Handle: unrecognized path %q", path))
	}
}

func (h *Handler) handleCollectionGet(ctx context.Context, resource string, q url.Values, respHeaders http.Header) (int, http.Header, []byte) {
	params := urlValuesToParams(q)

	if token := params["$deltatoken"]; token != "" {
		return h.handleDelta(resource, token, respHeaders)
	}

	parsed, err := query.ParseQuery(params)
	if err != nil {
		return h.errorResponse(respHeaders, err)
	}

	plan, err := planner.Build(h.reg, resource, parsed, h.fieldMap)
	if err != nil {
		return h.errorResponse(respHeaders, err)
	}
	rows, err := h.queryAll(ctx, plan)
	if err != nil {
		return h.errorResponse(respHeaders, err)
	}

	var count *int64
	if parsed.Count != nil && *parsed.Count {
		n, err := h.countRows(ctx, resource, parsed)
		if err != nil {
			return h.errorResponse(respHeaders, err)
		}
		count = &n
	}

	env := format.Collection(h.cfg.baseURL, resource, rows, count, "")
	return h.jsonResponse(http.StatusOK, env, respHeaders)
}

func (h *Handler) handleDelta(resource, token string, respHeaders http.Header) (int, http.Header, []byte) {
	if h.tracker == nil {
		return h.errorResponse(respHeaders, errkind.BadRequestf("odata4.handleDelta: delta tracking is disabled"))
	}
	parsedToken, err := delta.ParseDeltaToken(token)
	if err != nil {
		return h.errorResponse(respHeaders, err)
	}
	if parsedToken.IsOpaque {
		return h.errorResponse(respHeaders, errkind.BadRequestf("odata4.handleDelta: opaque delta tokens are not resolvable to a timestamp"))
	}
	now := time.Now().UnixMilli()
	feed := h.tracker.GenerateDeltaResponse(h.cfg.baseURL, resource, parsedToken.Timestamp, now)
	return h.jsonResponse(http.StatusOK, feed, respHeaders)
}

func (h *Handler) handleCollectionPost(ctx context.Context, resource string, body []byte, respHeaders http.Header) (int, http.Header, []byte) {
	var fields map[string]any
	if err := json.Unmarshal(body, &fields); err != nil {
		return h.errorResponse(respHeaders, errkind.BadRequestf("odata4.handleCollectionPost: body must be a JSON object"))
	}
	results, err := h.processor.Execute(ctx, h.conn, []batch.Operation{{Method: http.MethodPost, URL: "/" + resource, Body: fields}})
	if err != nil {
		return h.errorResponse(respHeaders, err)
	}
	result := results[0]
	for k, v := range result.Headers {
		respHeaders.Set(k, v)
	}
	return result.Status, respHeaders, result.Body
}

func (h *Handler) handleEntityGet(ctx context.Context, resource string, id int64, q url.Values, respHeaders http.Header) (int, http.Header, []byte) {
	table, err := h.reg.Resource(resource)
	if err != nil {
		return h.errorResponse(respHeaders, err)
	}
	pk, ok := table.PrimaryKey()
	if !ok {
		return h.errorResponse(respHeaders, errkind.Internalf("odata4.handleEntityGet: resource %q has no primary key", resource))
	}

	params := urlValuesToParams(q)
	parsed, err := query.ParseQuery(params)
	if err != nil {
		return h.errorResponse(respHeaders, err)
	}
	idFilter := &query.Compare{Field: pk.Name, Op: query.OpEq, Value: query.Literal{Value: id}}
	if parsed.Filter != nil {
		parsed.Filter = &query.And{Left: idFilter, Right: parsed.Filter}
	} else {
		parsed.Filter = idFilter
	}

	plan, err := planner.Build(h.reg, resource, parsed, h.fieldMap)
	if err != nil {
		return h.errorResponse(respHeaders, err)
	}
	rows, err := h.queryAll(ctx, plan)
	if err != nil {
		return h.errorResponse(respHeaders, err)
	}
	if len(rows) == 0 {
		return h.errorResponse(respHeaders, errkind.NotFoundf("odata4.handleEntityGet: %s(%d) not found", resource, id))
	}
	env := format.Entity(h.cfg.baseURL, resource, rows[0])
	return h.jsonResponse(http.StatusOK, env, respHeaders)
}

func (h *Handler) handleEntityPut(ctx context.Context, resource string, id int64, body []byte, respHeaders http.Header) (int, http.Header, []byte) {
	var fields map[string]any
	if err := json.Unmarshal(body, &fields); err != nil {
		return h.errorResponse(respHeaders, errkind.BadRequestf("odata4.handleEntityPut: body must be a JSON object"))
	}
	return h.runSingleOp(ctx, http.MethodPut, resource, id, fields, respHeaders)
}

func (h *Handler) handleEntityDelete(ctx context.Context, resource string, id int64, respHeaders http.Header) (int, http.Header, []byte) {
	return h.runSingleOp(ctx, http.MethodDelete, resource, id, nil, respHeaders)
}

func (h *Handler) runSingleOp(ctx context.Context, method, resource string, id int64, fields map[string]any, respHeaders http.Header) (int, http.Header, []byte) {
	target := resourceURL(resource, id)
	results, err := h.processor.Execute(ctx, h.conn, []batch.Operation{{Method: method, URL: target, Body: fields}})
	if err != nil {
		return h.errorResponse(respHeaders, err)
	}
	result := results[0]
	for k, v := range result.Headers {
		respHeaders.Set(k, v)
	}
	return result.Status, respHeaders, result.Body
}

func (h *Handler) handleNavigationGet(ctx context.Context, resource string, id int64, nav string, q url.Values, respHeaders http.Header) (int, http.Header, []byte) {
	fk, err := h.reg.Navigation(resource, nav)
	if err != nil {
		return h.errorResponse(respHeaders, err)
	}
	table, err := h.reg.Resource(resource)
	if err != nil {
		return h.errorResponse(respHeaders, err)
	}
	_, ok := table.Column(fk.FromColumn)
	if !ok {
		return h.errorResponse(respHeaders, errkind.Internalf("odata4.handleNavigationGet: %s.%s not found", resource, fk.FromColumn))
	}

	// Resolve the foreign key value on the origin row, then delegate to the
	// target resource's collection GET, filtered to that value.
	originPlan, err := planner.Build(h.reg, resource, &query.Query{
		Filter: &query.Compare{Field: tablePKName(table), Op: query.OpEq, Value: query.Literal{Value: id}},
	}, h.fieldMap)
	if err != nil {
		return h.errorResponse(respHeaders, err)
	}
	originRows, err := h.queryAll(ctx, originPlan)
	if err != nil {
		return h.errorResponse(respHeaders, err)
	}
	if len(originRows) == 0 {
		return h.errorResponse(respHeaders, errkind.NotFoundf("odata4.handleNavigationGet: %s(%d) not found", resource, id))
	}
	fkValue := originRows[0][fk.FromColumn]

	targetQuery, err := query.ParseQuery(urlValuesToParams(q))
	if err != nil {
		return h.errorResponse(respHeaders, err)
	}
	navFilter := &query.Compare{Field: fk.ToColumn, Op: query.OpEq, Value: query.Literal{Value: fkValue}}
	if targetQuery.Filter != nil {
		targetQuery.Filter = &query.And{Left: navFilter, Right: targetQuery.Filter}
	} else {
		targetQuery.Filter = navFilter
	}
	targetPlan, err := planner.Build(h.reg, fk.ToTable, targetQuery, h.fieldMap)
	if err != nil {
		return h.errorResponse(respHeaders, err)
	}
	rows, err := h.queryAll(ctx, targetPlan)
	if err != nil {
		return h.errorResponse(respHeaders, err)
	}
	env := format.Collection(h.cfg.baseURL, fk.ToTable, rows, nil, "")
	return h.jsonResponse(http.StatusOK, env, respHeaders)
}

func (h *Handler) handleCount(ctx context.Context, resource string, q url.Values, respHeaders http.Header) (int, http.Header, []byte) {
	parsed, err := query.ParseQuery(urlValuesToParams(q))
	if err != nil {
		return h.errorResponse(respHeaders, err)
	}
	n, err := h.countRows(ctx, resource, parsed)
	if err != nil {
		return h.errorResponse(respHeaders, err)
	}
	respHeaders.Set("Content-Type", "text/plain")
	return http.StatusOK, respHeaders, []byte(strconv.FormatInt(n, 10))
}

func (h *Handler) handleBatch(ctx context.Context, headers http.Header, body []byte, respHeaders http.Header) (int, http.Header, []byte) {
	ops, err := batch.ParseEnvelopeWithLimit(headers.Get("Content-Type"), body, h.cfg.maxBatchOperations)
	if err != nil {
		return h.errorResponse(respHeaders, err)
	}
	results, err := h.processor.Execute(ctx, h.conn, ops)
	if err != nil {
		// The changeset aborted and rolled back. Spec §4.6 still wants a
		// multipart/mixed envelope out of $batch, one 500 result per input
		// operation, not a top-level JSON error.
		results = batchAbortResults(err, len(ops))
	}
	respBody, contentType, err := batch.Serialize(results)
	if err != nil {
		return h.errorResponse(respHeaders, errkind.Wrap(errkind.InternalError, err, "odata4.handleBatch: failed to serialize response"))
	}
	respHeaders.Set("Content-Type", contentType)
	return http.StatusOK, respHeaders, respBody
}

// batchAbortResults renders a rolled-back changeset's failure as one 500
// OperationResult per input operation (spec §4.6, scenario 5: "response
// has two parts, both status 500").
func batchAbortResults(err error, n int) []batch.OperationResult {
	message := err.Error()
	if e, ok := errkind.As(err); ok {
		message = e.Message
	}
	body, marshalErr := json.Marshal(format.Error(errkind.InternalError.Code(), message))
	if marshalErr != nil {
		body = []byte(`{"error":{"code":"500","message":"internal error"}}`)
	}
	result := batch.OperationResult{
		Status:  http.StatusInternalServerError,
		Headers: map[string]string{"Content-Type": "application/json"},
		Body:    body,
	}
	results := make([]batch.OperationResult, n)
	for i := range results {
		results[i] = result
	}
	return results
}

func (h *Handler) countRows(ctx context.Context, resource string, q *query.Query) (int64, error) {
	plan, err := planner.Count(h.reg, resource, q, h.fieldMap)
	if err != nil {
		return 0, err
	}
	rows, err := h.queryAll(ctx, plan)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}
	switch v := rows[0]["count"].(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	default:
		return 0, nil
	}
}

func (h *Handler) queryAll(ctx context.Context, plan *planner.Plan) ([]map[string]any, error) {
	const op = "odata4.Handler.queryAll"
	stmt, err := h.conn.Prepare(ctx, plan.SQL)
	if err != nil {
		return nil, errkind.Wrap(errkind.InternalError, err, "%s: failed to prepare statement", op)
	}
	defer stmt.Close()
	rows, err := stmt.All(ctx, plan.Params...)
	if err != nil {
		return nil, errkind.Wrap(errkind.InternalError, err, "%s: query failed", op)
	}
	out := make([]map[string]any, len(rows))
	for i, r := range rows {
		out[i] = map[string]any(r)
	}
	return out, nil
}

func (h *Handler) jsonResponse(status int, v any, respHeaders http.Header) (int, http.Header, []byte) {
	body, err := json.Marshal(v)
	if err != nil {
		return h.errorResponse(respHeaders, errkind.Wrap(errkind.InternalError, err, "odata4.jsonResponse: failed to marshal response"))
	}
	respHeaders.Set("Content-Type", "application/json")
	return status, respHeaders, body
}

func (h *Handler) errorResponse(respHeaders http.Header, err error) (int, http.Header, []byte) {
	kind := errkind.KindOf(err)
	message := err.Error()
	if e, ok := errkind.As(err); ok {
		message = e.Message
	}
	env := format.Error(kind.Code(), message)
	body, marshalErr := json.Marshal(env)
	if marshalErr != nil {
		body = []byte(`{"error":{"code":"500","message":"internal error"}}`)
	}
	respHeaders.Set("Content-Type", "application/json")
	return kind.Status(), respHeaders, body
}

func urlValuesToParams(q url.Values) query.Params {
	params := make(query.Params, len(q))
	for k, vs := range q {
		if len(vs) > 0 {
			params[k] = vs[0]
		}
	}
	return params
}

func resourceURL(resource string, id int64) string {
	return "/" + resource + "(" + strconv.FormatInt(id, 10) + ")"
}

func tablePKName(t schema.Table) string {
	if pk, ok := t.PrimaryKey(); ok {
		return pk.Name
	}
	return "id"
}

