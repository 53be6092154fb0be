package batch

import (
	"context"
	"encoding/json"
	"net/url"
	"regexp"
	"strconv"

	sq "github.com/Masterminds/squirrel"
	"github.com/sirupsen/logrus"

	"github.com/rvegajr/sqlite-db-odata4-sub000/delta"
	"github.com/rvegajr/sqlite-db-odata4-sub000/errkind"
	"github.com/rvegajr/sqlite-db-odata4-sub000/schema"
	"github.com/rvegajr/sqlite-db-odata4-sub000/store"
)

// Processor executes a parsed batch changeset inside one transaction
// (spec §4.6: "all operations in a changeset succeed or none do").
type Processor struct {
	Registry   *schema.Registry
	Tracker    *delta.Tracker
	GetHandler RequestHandler
	Log        *logrus.Logger
}

// NewProcessor builds a Processor. log may be nil (a default logger is used).
func NewProcessor(reg *schema.Registry, tracker *delta.Tracker, getHandler RequestHandler, log *logrus.Logger) *Processor {
	if log == nil {
		log = logrus.New()
	}
	return &Processor{Registry: reg, Tracker: tracker, GetHandler: getHandler, Log: log}
}

var pathPattern = regexp.MustCompile(`^/([A-Za-z_][A-Za-z0-9_]*)(?:\((\d+)\))?$`)

func parsePath(path string) (resource string, id int64, hasID bool, err error) {
	m := pathPattern.FindStringSubmatch(path)
	if m == nil {
		return "", 0, false, errkind.BadRequestf("batch.parsePath: malformed URL %q", path)
	}
	resource = m[1]
	if m[2] != "" {
		id, err = strconv.ParseInt(m[2], 10, 64)
		if err != nil {
			return "", 0, false, errkind.BadRequestf("batch.parsePath: malformed id in %q", path)
		}
		hasID = true
	}
	return resource, id, hasID, nil
}

// Execute runs ops, in order, inside one conn.Transaction call (spec §4.6).
// Any operation error aborts and rolls back the whole changeset; the
// returned error is the first failure encountered, with its original
// errkind.Kind preserved (callers outside $batch, e.g. a plain PUT or
// DELETE routed through a single-operation changeset, need the real
// status rather than a blanket 500). The $batch endpoint itself is
// responsible for turning an aborted changeset into the one-500-per-op
// wire shape spec §4.6 requires; see handleBatch.
func (p *Processor) Execute(ctx context.Context, conn store.Connection, ops []Operation) ([]OperationResult, error) {
	const op = "batch.Processor.Execute"
	results := make([]OperationResult, len(ops))
	err := conn.Transaction(ctx, func(ctx context.Context, tx store.Connection) error {
		for i, o := range ops {
			res, err := p.executeOne(ctx, tx, o)
			if err != nil {
				return errkind.Wrap(errkind.KindOf(err), err, "%s: operation %d (%s %s) failed", op, i, o.Method, o.URL)
			}
			results[i] = res
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

func (p *Processor) executeOne(ctx context.Context, tx store.Connection, o Operation) (OperationResult, error) {
	switch o.Method {
	case "GET":
		return p.executeGet(ctx, o)
	case "POST":
		return p.executePost(ctx, tx, o)
	case "PUT":
		return p.executePut(ctx, tx, o)
	case "DELETE":
		return p.executeDelete(ctx, tx, o)
	case "PATCH":
		return OperationResult{}, errkind.MethodNotAllowedf("batch.Processor: PATCH is not supported")
	default:
		return OperationResult{}, errkind.BadRequestf("batch.Processor: unsupported method %q", o.Method)
	}
}

func (p *Processor) executeGet(_ context.Context, o Operation) (OperationResult, error) {
	const op = "batch.Processor.executeGet"
	if p.GetHandler == nil {
		return OperationResult{}, errkind.Internalf("%s: no GET handler configured", op)
	}
	u, err := url.Parse(o.URL)
	if err != nil {
		return OperationResult{}, errkind.BadRequestf("%s: malformed URL %q", op, o.URL)
	}
	status, respHeaders, body := p.GetHandler.Handle("GET", u.Path, u.Query(), o.Headers, nil)
	headers := make(map[string]string, len(respHeaders))
	for k := range respHeaders {
		headers[k] = respHeaders.Get(k)
	}
	return OperationResult{Status: status, Headers: headers, Body: body}, nil
}

func (p *Processor) executePost(ctx context.Context, tx store.Connection, o Operation) (OperationResult, error) {
	const op = "batch.Processor.executePost"
	resource, _, hasID, err := parsePath(o.URL)
	if err != nil {
		return OperationResult{}, err
	}
	if hasID {
		return OperationResult{}, errkind.BadRequestf("%s: POST target must not include an id", op)
	}
	table, err := p.Registry.Resource(resource)
	if err != nil {
		return OperationResult{}, err
	}
	fields, ok := o.Body.(map[string]any)
	if !ok {
		return OperationResult{}, errkind.BadRequestf("%s: POST body must be a JSON object", op)
	}

	cols := make([]string, 0, len(fields))
	vals := make([]any, 0, len(fields))
	for _, c := range table.Columns {
		if c.PrimaryKey {
			continue
		}
		if v, present := fields[c.Name]; present {
			cols = append(cols, c.Name)
			vals = append(vals, v)
		}
	}
	if len(cols) == 0 {
		return OperationResult{}, errkind.BadRequestf("%s: POST body has no recognized columns for %q", op, resource)
	}

	sqlStr, args, err := sq.Insert(table.Name).Columns(cols...).Values(vals...).ToSql()
	if err != nil {
		return OperationResult{}, errkind.Wrap(errkind.InternalError, err, "%s: failed to build insert", op)
	}
	result, err := tx.Exec(ctx, sqlStr, args...)
	if err != nil {
		return OperationResult{}, errkind.Wrap(errkind.InternalError, err, "%s: insert failed", op)
	}

	row := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		row[k] = v
	}
	if pk, ok := table.PrimaryKey(); ok {
		row[pk.Name] = result.LastInsertID
	}

	if p.Tracker != nil {
		if _, err := p.Tracker.TrackChangeWithData(ctx, resource, result.LastInsertID, delta.Create, nowHint(), row); err != nil {
			return OperationResult{}, err
		}
	}

	body, err := json.Marshal(row)
	if err != nil {
		return OperationResult{}, errkind.Wrap(errkind.InternalError, err, "%s: failed to marshal result", op)
	}
	return OperationResult{Status: 201, Headers: map[string]string{"Content-Type": "application/json"}, Body: body}, nil
}

func (p *Processor) executePut(ctx context.Context, tx store.Connection, o Operation) (OperationResult, error) {
	const op = "batch.Processor.executePut"
	resource, id, hasID, err := parsePath(o.URL)
	if err != nil {
		return OperationResult{}, err
	}
	if !hasID {
		return OperationResult{}, errkind.BadRequestf("%s: PUT target must include an id", op)
	}
	table, err := p.Registry.Resource(resource)
	if err != nil {
		return OperationResult{}, err
	}
	pk, ok := table.PrimaryKey()
	if !ok {
		return OperationResult{}, errkind.Internalf("%s: resource %q has no primary key", op, resource)
	}
	fields, ok := o.Body.(map[string]any)
	if !ok {
		return OperationResult{}, errkind.BadRequestf("%s: PUT body must be a JSON object", op)
	}

	update := sq.Update(table.Name)
	set := make(map[string]any, len(fields))
	for _, c := range table.Columns {
		if c.PrimaryKey {
			continue
		}
		if v, present := fields[c.Name]; present {
			set[c.Name] = v
		}
	}
	if len(set) == 0 {
		return OperationResult{}, errkind.BadRequestf("%s: PUT body has no recognized columns for %q", op, resource)
	}
	for col, v := range set {
		update = update.Set(col, v)
	}
	sqlStr, args, err := update.Where(sq.Eq{pk.Name: id}).ToSql()
	if err != nil {
		return OperationResult{}, errkind.Wrap(errkind.InternalError, err, "%s: failed to build update", op)
	}
	result, err := tx.Exec(ctx, sqlStr, args...)
	if err != nil {
		return OperationResult{}, errkind.Wrap(errkind.InternalError, err, "%s: update failed", op)
	}
	if result.RowsAffected == 0 {
		return OperationResult{}, errkind.NotFoundf("%s: %s(%d) not found", op, resource, id)
	}

	if p.Tracker != nil {
		row := make(map[string]any, len(fields)+1)
		for k, v := range fields {
			row[k] = v
		}
		row[pk.Name] = id
		if _, err := p.Tracker.TrackChangeWithData(ctx, resource, id, delta.Update, nowHint(), row); err != nil {
			return OperationResult{}, err
		}
	}

	return OperationResult{Status: 204}, nil
}

func (p *Processor) executeDelete(ctx context.Context, tx store.Connection, o Operation) (OperationResult, error) {
	const op = "batch.Processor.executeDelete"
	resource, id, hasID, err := parsePath(o.URL)
	if err != nil {
		return OperationResult{}, err
	}
	if !hasID {
		return OperationResult{}, errkind.BadRequestf("%s: DELETE target must include an id", op)
	}
	table, err := p.Registry.Resource(resource)
	if err != nil {
		return OperationResult{}, err
	}
	pk, ok := table.PrimaryKey()
	if !ok {
		return OperationResult{}, errkind.Internalf("%s: resource %q has no primary key", op, resource)
	}

	sqlStr, args, err := sq.Delete(table.Name).Where(sq.Eq{pk.Name: id}).ToSql()
	if err != nil {
		return OperationResult{}, errkind.Wrap(errkind.InternalError, err, "%s: failed to build delete", op)
	}
	result, err := tx.Exec(ctx, sqlStr, args...)
	if err != nil {
		return OperationResult{}, errkind.Wrap(errkind.InternalError, err, "%s: delete failed", op)
	}
	if result.RowsAffected == 0 {
		return OperationResult{}, errkind.NotFoundf("%s: %s(%d) not found", op, resource, id)
	}

	// Emit the change event only when a row actually disappeared, not on
	// every DELETE attempt. Routed through TrackChangeWithData (data nil)
	// so a configured persistence conn durably records the delete too.
	if p.Tracker != nil {
		if _, err := p.Tracker.TrackChangeWithData(ctx, resource, id, delta.Delete, nowHint(), nil); err != nil {
			return OperationResult{}, err
		}
	}

	return OperationResult{Status: 204}, nil
}

// nowHint supplies TrackChange's requestedTS hint. The tracker bumps it to
// last+1 whenever two changes land in the same millisecond, so a coarse
// hint is sufficient; it is a var (not time.Now() inlined) so tests can
// substitute a deterministic clock.
var nowHint = func() int64 { return timeNowMillis() }
