// Package planner lowers a validated query.Query plus a schema.Registry
// into a parameterized SQL plan. It implements the SQL Builder,
// Expand/Join Planner, and Aggregation & Compute components (spec
// §4.3-§4.5) as pure functions composed over a small algebraic SQL tree
// (github.com/Masterminds/squirrel's SelectBuilder), rendered once via
// ToSql(). Filter, search and paging literals are always bound as
// parameters (Design Note, spec §9); $compute expressions are the one
// exception, emitted as schema-validated SQL text (see lowerComputeExpr).
package planner

import (
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/rvegajr/sqlite-db-odata4-sub000/errkind"
	"github.com/rvegajr/sqlite-db-odata4-sub000/query"
	"github.com/rvegajr/sqlite-db-odata4-sub000/schema"
)

// FieldMap renames wire (API) field names to database column names. A
// field absent from the map is used as-is.
type FieldMap map[string]string

func (m FieldMap) resolve(name string) string {
	if m == nil {
		return name
	}
	if db, ok := m[name]; ok {
		return db
	}
	return name
}

// resolveColumn validates field against table in reg, applying fieldMap,
// and returns the qualified column reference to use in generated SQL.
func resolveColumn(reg *schema.Registry, table, field string, fieldMap FieldMap) (string, error) {
	dbField := fieldMap.resolve(field)
	if _, err := reg.Field(table, dbField); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s.%s", table, dbField), nil
}

// notExpr wraps a Sqlizer with a SQL NOT (...), implementing
// squirrel.Sqlizer so it composes with the rest of the algebraic tree.
type notExpr struct{ inner sq.Sqlizer }

func (n notExpr) ToSql() (string, []any, error) {
	s, args, err := n.inner.ToSql()
	if err != nil {
		return "", nil, err
	}
	return "NOT (" + s + ")", args, nil
}

// lowerFilter turns a query.FilterExpr into a squirrel.Sqlizer, validating
// every field reference against table (via reg and fieldMap) before any
// SQL is produced. table is the table the filter's field names resolve
// against (the main table, or an expanded table for a nested filter).
func lowerFilter(reg *schema.Registry, table string, expr query.FilterExpr, fieldMap FieldMap) (sq.Sqlizer, error) {
	const op = "planner.lowerFilter"
	if expr == nil {
		return nil, nil
	}
	switch e := expr.(type) {
	case *query.Compare:
		col, err := resolveColumn(reg, table, e.Field, fieldMap)
		if err != nil {
			return nil, err
		}
		return compareSqlizer(col, e.Op, e.Value.Value)

	case *query.StringPred:
		col, err := resolveColumn(reg, table, e.Field, fieldMap)
		if err != nil {
			return nil, err
		}
		str, ok := e.Value.Value.(string)
		if !ok {
			return nil, errkind.BadRequestf("%s: %s() requires a string literal", op, e.Op)
		}
		return stringPredSqlizer(col, e.Op, str)

	case *query.In:
		col, err := resolveColumn(reg, table, e.Field, fieldMap)
		if err != nil {
			return nil, err
		}
		vals := make([]any, len(e.Values))
		for i, v := range e.Values {
			vals[i] = v.Value
		}
		return sq.Eq{col: vals}, nil

	case *query.And:
		left, err := lowerFilter(reg, table, e.Left, fieldMap)
		if err != nil {
			return nil, err
		}
		right, err := lowerFilter(reg, table, e.Right, fieldMap)
		if err != nil {
			return nil, err
		}
		return sq.And{left, right}, nil

	case *query.Or:
		left, err := lowerFilter(reg, table, e.Left, fieldMap)
		if err != nil {
			return nil, err
		}
		right, err := lowerFilter(reg, table, e.Right, fieldMap)
		if err != nil {
			return nil, err
		}
		return sq.Or{left, right}, nil

	case *query.Not:
		inner, err := lowerFilter(reg, table, e.Inner, fieldMap)
		if err != nil {
			return nil, err
		}
		return notExpr{inner: inner}, nil

	default:
		return nil, errkind.Internalf("%s: unexpected filter expr type %T", op, expr)
	}
}

func compareSqlizer(col string, op query.CompareOp, value any) (sq.Sqlizer, error) {
	const errOp = "planner.compareSqlizer"
	switch op {
	case query.OpEq:
		return sq.Eq{col: value}, nil
	case query.OpNe:
		return sq.NotEq{col: value}, nil
	case query.OpLt:
		return sq.Lt{col: value}, nil
	case query.OpLe:
		return sq.LtOrEq{col: value}, nil
	case query.OpGt:
		return sq.Gt{col: value}, nil
	case query.OpGe:
		return sq.GtOrEq{col: value}, nil
	default:
		return nil, errkind.BadRequestf("%s: unknown comparison operator %q", errOp, op)
	}
}

func stringPredSqlizer(col string, op query.StringOp, value string) (sq.Sqlizer, error) {
	const errOp = "planner.stringPredSqlizer"
	switch op {
	case query.OpContains:
		return sq.Like{col: "%" + value + "%"}, nil
	case query.OpStartsWith:
		return sq.Like{col: value + "%"}, nil
	case query.OpEndsWith:
		return sq.Like{col: "%" + value}, nil
	default:
		return nil, errkind.BadRequestf("%s: unknown string predicate %q", errOp, op)
	}
}
