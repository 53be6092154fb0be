package planner

import (
	"fmt"
	"strings"

	"github.com/rvegajr/sqlite-db-odata4-sub000/errkind"
	"github.com/rvegajr/sqlite-db-odata4-sub000/query"
	"github.com/rvegajr/sqlite-db-odata4-sub000/schema"
)

// joinFragment is one LEFT JOIN clause plus the positional arguments its
// ON-clause predicates reference, emitted in depth-first traversal order
// (spec §4.4).
type joinFragment struct {
	clause string
	args   []any
}

// expandPlan is the folded result of planning every $expand node for one
// request: the ordered join fragments, the aliased SELECT columns they
// contribute, and the outer-query ORDER BY/paging overrides contributed by
// per-expand $orderby/$top/$skip (spec §4.4's documented simplification:
// these apply at the outer query, not per expanded child — see the doc
// comment on effectivePaging).
type expandPlan struct {
	fragments     []joinFragment
	selectColumns []string
	outNames      []string
	// outerOrderBy/outerTop/outerSkip are contributed by expand nodes that
	// carry their own $orderby/$top/$skip. They are folded into the outer
	// query because this planner does not implement per-child correlated
	// subqueries/window functions (spec §9, Open Question).
	outerOrderBy []string
	outerTop     *int
	outerSkip    *int
}

// planExpand resolves fields (the request's $expand list) against scope
// (the current table) into an expandPlan, recursing depth-first into any
// nested expands.
func planExpand(reg *schema.Registry, scope string, fields []*query.ExpandField, fieldMap FieldMap) (*expandPlan, error) {
	plan := &expandPlan{}
	if err := foldExpand(reg, scope, nil, fields, fieldMap, plan); err != nil {
		return nil, err
	}
	return plan, nil
}

func foldExpand(reg *schema.Registry, scope string, chain []string, fields []*query.ExpandField, fieldMap FieldMap, plan *expandPlan) error {
	const op = "planner.foldExpand"
	for _, f := range fields {
		fk, err := reg.Navigation(scope, f.Path)
		if err != nil {
			if errkind.KindOf(err) == errkind.NotFound {
				return errkind.BadRequestf("%s: Relationship %q not found on %q", op, f.Path, scope)
			}
			return err
		}
		toTable, err := reg.Resource(fk.ToTable)
		if err != nil {
			return err
		}

		prefixChain := append(append([]string{}, chain...), f.Path)
		prefix := strings.Join(prefixChain, "_")

		clause := fmt.Sprintf("%s ON %s.%s = %s.%s", fk.ToTable, fk.FromTable, fk.FromColumn, fk.ToTable, fk.ToColumn)
		var args []any
		if f.Filter != nil {
			pred, err := lowerFilter(reg, fk.ToTable, f.Filter, fieldMap)
			if err != nil {
				return err
			}
			predSQL, predArgs, err := pred.ToSql()
			if err != nil {
				return errkind.Wrap(errkind.InternalError, err, "%s: failed to render expand filter", op)
			}
			clause = fmt.Sprintf("%s AND (%s)", clause, predSQL)
			args = predArgs
		}
		plan.fragments = append(plan.fragments, joinFragment{clause: clause, args: args})

		colNames := f.Select
		if len(colNames) == 0 {
			for _, c := range toTable.Columns {
				colNames = append(colNames, c.Name)
			}
		}
		for _, c := range colNames {
			dbCol := fieldMap.resolve(c)
			if _, err := reg.Field(fk.ToTable, dbCol); err != nil {
				return err
			}
			plan.selectColumns = append(plan.selectColumns, fmt.Sprintf("%s.%s AS %s_%s", fk.ToTable, dbCol, prefix, dbCol))
			plan.outNames = append(plan.outNames, prefix+"_"+dbCol)
		}

		for _, ot := range f.OrderBy {
			col, err := resolveColumn(reg, fk.ToTable, ot.Field, fieldMap)
			if err != nil {
				return err
			}
			plan.outerOrderBy = append(plan.outerOrderBy, fmt.Sprintf("%s %s", col, strings.ToUpper(string(ot.Direction))))
		}
		if f.Top != nil {
			plan.outerTop = f.Top
		}
		if f.Skip != nil {
			plan.outerSkip = f.Skip
		}

		if len(f.Nested) > 0 {
			if err := foldExpand(reg, fk.ToTable, prefixChain, f.Nested, fieldMap, plan); err != nil {
				return err
			}
		}
	}
	return nil
}

// orderByTerms merges the base query's $orderby with any outer ORDER BY
// terms contributed by expand nodes (see expandPlan's doc comment).
func (p *expandPlan) orderByTerms(reg *schema.Registry, table string, base []query.OrderTerm, fieldMap FieldMap) ([]string, error) {
	terms := make([]string, 0, len(base)+len(p.outerOrderBy))
	for _, ot := range base {
		col, err := resolveColumn(reg, table, ot.Field, fieldMap)
		if err != nil {
			return nil, err
		}
		terms = append(terms, fmt.Sprintf("%s %s", col, strings.ToUpper(string(ot.Direction))))
	}
	terms = append(terms, p.outerOrderBy...)
	return terms, nil
}
