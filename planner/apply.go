package planner

import (
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"github.com/rvegajr/sqlite-db-odata4-sub000/errkind"
	"github.com/rvegajr/sqlite-db-odata4-sub000/query"
	"github.com/rvegajr/sqlite-db-odata4-sub000/schema"
)

// buildApply lowers $apply (groupby + aggregates) into a SELECT/GROUP BY
// statement, per spec §4.5. The request's $filter, if present, is applied
// as a WHERE clause over the base table before grouping; $orderby/$top/
// $skip apply to the grouped result as usual. The distilled $apply grammar
// (spec §4.1) has no surface syntax for a HAVING predicate, so none is
// synthesized here — see DESIGN.md.
func buildApply(reg *schema.Registry, table string, q *query.Query, fieldMap FieldMap) (*Plan, error) {
	const op = "planner.buildApply"
	apply := q.Apply

	if len(apply.GroupBy) == 0 && len(apply.Aggregates) == 0 {
		return nil, errkind.BadRequestf("%s: $apply must name at least one group-by field or aggregate", op)
	}

	groupCols := make([]string, 0, len(apply.GroupBy))
	selectCols := make([]string, 0, len(apply.GroupBy)+len(apply.Aggregates))
	outNames := make([]string, 0, len(apply.GroupBy)+len(apply.Aggregates))
	for _, f := range apply.GroupBy {
		col, err := resolveColumn(reg, table, f, fieldMap)
		if err != nil {
			return nil, err
		}
		groupCols = append(groupCols, col)
		selectCols = append(selectCols, col)
		outNames = append(outNames, f)
	}
	for _, agg := range apply.Aggregates {
		sqlFunc, err := aggregateSQLFunc(agg.Op)
		if err != nil {
			return nil, err
		}
		var colExpr string
		if agg.Op == query.AggCount && agg.Source == "" {
			colExpr = "*"
		} else {
			col, err := resolveColumn(reg, table, agg.Source, fieldMap)
			if err != nil {
				return nil, err
			}
			colExpr = col
		}
		selectCols = append(selectCols, fmt.Sprintf("%s(%s) AS %s", sqlFunc, colExpr, agg.As))
		outNames = append(outNames, agg.As)
	}

	builder := sq.Select(selectCols...).From(table)

	if q.Filter != nil {
		pred, err := lowerFilter(reg, table, q.Filter, fieldMap)
		if err != nil {
			return nil, err
		}
		builder = builder.Where(pred)
	}

	if len(groupCols) > 0 {
		builder = builder.GroupBy(groupCols...)
	}

	if len(q.OrderBy) > 0 {
		terms := make([]string, 0, len(q.OrderBy))
		for _, ot := range q.OrderBy {
			// order-by after $apply may reference either a group-by field
			// (a real column) or an aggregate alias; aliases are not
			// schema columns, so only validate when it isn't one of our
			// own output names.
			if containsName(outNames, ot.Field) {
				terms = append(terms, fmt.Sprintf("%s %s", ot.Field, strings.ToUpper(string(ot.Direction))))
				continue
			}
			col, err := resolveColumn(reg, table, ot.Field, fieldMap)
			if err != nil {
				return nil, err
			}
			terms = append(terms, fmt.Sprintf("%s %s", col, strings.ToUpper(string(ot.Direction))))
		}
		builder = builder.OrderBy(terms...)
	}

	builder = applyPaging(builder, q.Paging)

	sqlStr, args, err := builder.ToSql()
	if err != nil {
		return nil, errkind.Wrap(errkind.InternalError, err, "%s: failed to render SQL", op)
	}
	return &Plan{SQL: sqlStr, Params: args, Columns: outNames}, nil
}

func aggregateSQLFunc(op query.AggregateOp) (string, error) {
	const errOp = "planner.aggregateSQLFunc"
	switch op {
	case query.AggSum:
		return "SUM", nil
	case query.AggAvg:
		return "AVG", nil
	case query.AggMin:
		return "MIN", nil
	case query.AggMax:
		return "MAX", nil
	case query.AggCount:
		return "COUNT", nil
	default:
		return "", errkind.BadRequestf("%s: unknown aggregate operator %q", errOp, op)
	}
}

func containsName(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}
