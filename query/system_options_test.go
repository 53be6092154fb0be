package query_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rvegajr/sqlite-db-odata4-sub000/query"
)

func TestParseQuery_OrderBy(t *testing.T) {
	t.Parallel()
	q, err := query.ParseQuery(query.Params{"$orderby": "total desc, name"})
	require.NoError(t, err)
	require.Len(t, q.OrderBy, 2)
	assert.Equal(t, query.OrderTerm{Field: "total", Direction: query.Desc}, q.OrderBy[0])
	assert.Equal(t, query.OrderTerm{Field: "name", Direction: query.Asc}, q.OrderBy[1])
}

func TestParseQuery_OrderBy_InvalidDirection(t *testing.T) {
	t.Parallel()
	_, err := query.ParseQuery(query.Params{"$orderby": "total sideways"})
	require.Error(t, err)
}

func TestParseQuery_Apply(t *testing.T) {
	t.Parallel()
	q, err := query.ParseQuery(query.Params{
		"$apply": "groupby((customer_id), aggregate(total with sum as totalSum))",
	})
	require.NoError(t, err)
	require.NotNil(t, q.Apply)
	assert.Equal(t, []string{"customer_id"}, q.Apply.GroupBy)
	require.Len(t, q.Apply.Aggregates, 1)
	assert.Equal(t, query.Aggregate{Source: "total", Op: query.AggSum, As: "totalSum"}, q.Apply.Aggregates[0])
}

func TestParseQuery_Apply_GroupByOnly(t *testing.T) {
	t.Parallel()
	q, err := query.ParseQuery(query.Params{"$apply": "groupby((customer_id))"})
	require.NoError(t, err)
	require.NotNil(t, q.Apply)
	assert.Equal(t, []string{"customer_id"}, q.Apply.GroupBy)
	assert.Empty(t, q.Apply.Aggregates)
}

func TestParseQuery_Apply_UnknownAggregateOp(t *testing.T) {
	t.Parallel()
	_, err := query.ParseQuery(query.Params{
		"$apply": "groupby((customer_id), aggregate(total with median as m))",
	})
	require.Error(t, err)
}

func TestParseQuery_Compute(t *testing.T) {
	t.Parallel()
	q, err := query.ParseQuery(query.Params{"$compute": "total * 2 as doubled, qty as quantity"})
	require.NoError(t, err)
	require.Len(t, q.Compute, 2)
	assert.Equal(t, query.Compute{Expression: "total * 2", As: "doubled"}, q.Compute[0])
	assert.Equal(t, query.Compute{Expression: "qty", As: "quantity"}, q.Compute[1])
}

func TestParseQuery_Compute_MissingAlias(t *testing.T) {
	t.Parallel()
	_, err := query.ParseQuery(query.Params{"$compute": "total * 2"})
	require.Error(t, err)
}

func TestParseQuery_Compute_RejectsNonIdentifierAlias(t *testing.T) {
	t.Parallel()
	tests := []string{
		"price as x FROM secret--",
		"price as `x`",
		"price as x; DROP TABLE orders",
		"price as 1x",
		"price as x y",
	}
	for _, raw := range tests {
		raw := raw
		t.Run(raw, func(t *testing.T) {
			t.Parallel()
			_, err := query.ParseQuery(query.Params{"$compute": raw})
			require.Error(t, err, "alias must be rejected as a bare identifier")
		})
	}
}

func TestParseQuery_Expand_Simple(t *testing.T) {
	t.Parallel()
	q, err := query.ParseQuery(query.Params{"$expand": "customer"})
	require.NoError(t, err)
	require.Len(t, q.Expand, 1)
	assert.Equal(t, "customer", q.Expand[0].Path)
}

func TestParseQuery_Expand_WithNestedOptions(t *testing.T) {
	t.Parallel()
	q, err := query.ParseQuery(query.Params{
		"$expand": "orders($filter=total gt 10;$top=5;$expand=customer)",
	})
	require.NoError(t, err)
	require.Len(t, q.Expand, 1)
	f := q.Expand[0]
	assert.Equal(t, "orders", f.Path)
	require.NotNil(t, f.Filter)
	require.NotNil(t, f.Top)
	assert.Equal(t, 5, *f.Top)
	require.Len(t, f.Nested, 1)
	assert.Equal(t, "customer", f.Nested[0].Path)
}

func TestParseQuery_Expand_UnknownNestedOption(t *testing.T) {
	t.Parallel()
	_, err := query.ParseQuery(query.Params{"$expand": "orders($bogus=1)"})
	require.Error(t, err)
}

func TestParseQuery_Search(t *testing.T) {
	t.Parallel()
	q, err := query.ParseQuery(query.Params{"$search": "widget"})
	require.NoError(t, err)
	require.NotNil(t, q.Search)
	assert.Equal(t, "widget", *q.Search)
}

func TestParseQuery_DeltaToken(t *testing.T) {
	t.Parallel()
	q, err := query.ParseQuery(query.Params{"$deltatoken": "12345"})
	require.NoError(t, err)
	require.NotNil(t, q.DeltaToken)
	assert.Equal(t, "12345", *q.DeltaToken)
}
