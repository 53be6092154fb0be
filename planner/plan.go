package planner

import (
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/rvegajr/sqlite-db-odata4-sub000/errkind"
	"github.com/rvegajr/sqlite-db-odata4-sub000/query"
	"github.com/rvegajr/sqlite-db-odata4-sub000/schema"
)

// Plan is a rendered SQL statement and its positional parameters. No
// parameter ever appears interpolated into SQL; every literal from the
// query's filter, search term, or paging bounds is carried in Params.
type Plan struct {
	SQL    string
	Params []any
	// Columns lists, in order, the output column names the statement's
	// result set rows should be read under (including any expand aliases
	// and compute aliases). Empty means "whatever the driver reports",
	// i.e. a bare SELECT *.
	Columns []string
}

// Build lowers q against table (resolved from reg) into a Plan. fieldMap
// renames wire field names to database column names uniformly at every
// reference site (filter, order, select, compute, group-by, aggregate
// source).
func Build(reg *schema.Registry, table string, q *query.Query, fieldMap FieldMap) (*Plan, error) {
	if _, err := reg.Resource(table); err != nil {
		return nil, err
	}
	if q.Apply != nil {
		return buildApply(reg, table, q, fieldMap)
	}
	return buildSelect(reg, table, q, fieldMap)
}

func buildSelect(reg *schema.Registry, table string, q *query.Query, fieldMap FieldMap) (*Plan, error) {
	const op = "planner.buildSelect"

	joins, err := planExpand(reg, table, q.Expand, fieldMap)
	if err != nil {
		return nil, err
	}
	hasJoins := len(joins.fragments) > 0

	cols, outNames, err := selectColumns(reg, table, q.Select, fieldMap, hasJoins)
	if err != nil {
		return nil, err
	}
	cols = append(cols, joins.selectColumns...)
	outNames = append(outNames, joins.outNames...)

	computeSQL, computeNames, err := lowerComputeList(reg, table, q.Compute, fieldMap)
	if err != nil {
		return nil, err
	}
	cols = append(cols, computeSQL...)
	outNames = append(outNames, computeNames...)

	builder := sq.Select(cols...).From(table)

	for _, j := range joins.fragments {
		builder = builder.LeftJoin(j.clause, j.args...)
	}

	if q.Filter != nil {
		pred, err := lowerFilter(reg, table, q.Filter, fieldMap)
		if err != nil {
			return nil, err
		}
		builder = builder.Where(pred)
	}

	if q.Search != nil && *q.Search != "" {
		t, _ := reg.Resource(table)
		if t.FTSTable == "" {
			return nil, errkind.BadRequestf("%s: %q has no full-text index configured for $search", op, table)
		}
		pk, ok := t.PrimaryKey()
		if !ok {
			return nil, errkind.Internalf("%s: %q has no primary key for $search", op, table)
		}
		searchPred := sq.Expr(fmt.Sprintf("%s.%s IN (SELECT rowid FROM %s WHERE %s MATCH ?)", table, pk.Name, t.FTSTable, t.FTSTable), *q.Search)
		builder = builder.Where(searchPred)
	}

	orderBy, err := joins.orderByTerms(reg, table, q.OrderBy, fieldMap)
	if err != nil {
		return nil, err
	}
	if len(orderBy) > 0 {
		builder = builder.OrderBy(orderBy...)
	}

	builder = applyPaging(builder, effectivePaging(q.Paging, joins))

	sqlStr, args, err := builder.ToSql()
	if err != nil {
		return nil, errkind.Wrap(errkind.InternalError, err, "%s: failed to render SQL", op)
	}
	return &Plan{SQL: sqlStr, Params: args, Columns: outNames}, nil
}

// selectColumns resolves the $select list (or "*"/"<table>.*") into the
// squirrel column expressions and the output names a row-scanner should
// use.
func selectColumns(reg *schema.Registry, table string, fields []string, fieldMap FieldMap, hasJoins bool) (cols []string, names []string, err error) {
	if len(fields) == 0 {
		if hasJoins {
			return []string{table + ".*"}, nil, nil
		}
		return []string{"*"}, nil, nil
	}
	cols = make([]string, 0, len(fields))
	names = make([]string, 0, len(fields))
	for _, f := range fields {
		col, err := resolveColumn(reg, table, f, fieldMap)
		if err != nil {
			return nil, nil, err
		}
		cols = append(cols, col)
		names = append(names, f)
	}
	return cols, names, nil
}

// effectivePaging applies the expand-planner's documented simplification
// (spec §9 Open Question): a per-expand $top/$skip is honored at the outer
// query only when the request's own $top/$skip did not already specify
// one. This is semantically wrong for multi-row children — it limits the
// joined result set, not the child collection — and is implemented exactly
// as flagged rather than silently corrected.
func effectivePaging(base query.Paging, joins *expandPlan) query.Paging {
	out := base
	if out.Top == nil {
		out.Top = joins.outerTop
	}
	if out.Skip == nil {
		out.Skip = joins.outerSkip
	}
	return out
}

func applyPaging(builder sq.SelectBuilder, p query.Paging) sq.SelectBuilder {
	switch {
	case p.Top != nil && p.Skip != nil:
		builder = builder.Suffix("LIMIT ? OFFSET ?", *p.Top, *p.Skip)
	case p.Top != nil:
		builder = builder.Suffix("LIMIT ?", *p.Top)
	case p.Skip != nil:
		// SQLite requires a LIMIT clause before OFFSET is honored; -1
		// means unbounded (spec §4.3).
		builder = builder.Suffix("LIMIT -1 OFFSET ?", *p.Skip)
	}
	return builder
}

// Count builds the $count query: `SELECT COUNT(*) AS count FROM <t>
// [WHERE ...]`, ignoring $top/$skip/$orderby/$select (Testable Property 6,
// spec §8).
func Count(reg *schema.Registry, table string, q *query.Query, fieldMap FieldMap) (*Plan, error) {
	const op = "planner.Count"
	if _, err := reg.Resource(table); err != nil {
		return nil, err
	}
	builder := sq.Select("COUNT(*) AS count").From(table)
	if q.Filter != nil {
		pred, err := lowerFilter(reg, table, q.Filter, fieldMap)
		if err != nil {
			return nil, err
		}
		builder = builder.Where(pred)
	}
	sqlStr, args, err := builder.ToSql()
	if err != nil {
		return nil, errkind.Wrap(errkind.InternalError, err, "%s: failed to render SQL", op)
	}
	return &Plan{SQL: sqlStr, Params: args, Columns: []string{"count"}}, nil
}
