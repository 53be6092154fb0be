package planner_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rvegajr/sqlite-db-odata4-sub000/planner"
	"github.com/rvegajr/sqlite-db-odata4-sub000/query"
)

func TestBuild_Apply_GroupByAndAggregate(t *testing.T) {
	t.Parallel()
	reg := newOrdersRegistry()
	q, err := query.ParseQuery(query.Params{
		"$apply": "groupby((customer_id), aggregate(total with sum as totalSum))",
	})
	require.NoError(t, err)

	plan, err := planner.Build(reg, "orders", q, nil)
	require.NoError(t, err)
	assert.Contains(t, plan.SQL, "SELECT orders.customer_id, SUM(orders.total) AS totalSum FROM orders")
	assert.Contains(t, plan.SQL, "GROUP BY orders.customer_id")
	assert.Equal(t, []string{"customer_id", "totalSum"}, plan.Columns)
}

func TestBuild_Apply_CountColumn(t *testing.T) {
	t.Parallel()
	reg := newOrdersRegistry()
	q, err := query.ParseQuery(query.Params{
		"$apply": "groupby((customer_id), aggregate(total with count as n))",
	})
	require.NoError(t, err)

	plan, err := planner.Build(reg, "orders", q, nil)
	require.NoError(t, err)
	assert.Contains(t, plan.SQL, "COUNT(orders.total) AS n")
}

func TestBuild_Apply_OrderByAggregateAlias(t *testing.T) {
	t.Parallel()
	reg := newOrdersRegistry()
	q, err := query.ParseQuery(query.Params{
		"$apply":   "groupby((customer_id), aggregate(total with sum as totalSum))",
		"$orderby": "totalSum desc",
	})
	require.NoError(t, err)

	plan, err := planner.Build(reg, "orders", q, nil)
	require.NoError(t, err)
	assert.Contains(t, plan.SQL, "ORDER BY totalSum DESC")
}

func TestBuild_Apply_UnknownGroupByField(t *testing.T) {
	t.Parallel()
	reg := newOrdersRegistry()
	q, err := query.ParseQuery(query.Params{"$apply": "groupby((bogus))"})
	require.NoError(t, err)

	_, err = planner.Build(reg, "orders", q, nil)
	require.Error(t, err)
}

func TestBuild_Compute(t *testing.T) {
	t.Parallel()
	reg := newOrdersRegistry()
	q, err := query.ParseQuery(query.Params{"$compute": "total * 2 as doubled"})
	require.NoError(t, err)

	plan, err := planner.Build(reg, "orders", q, nil)
	require.NoError(t, err)
	assert.Contains(t, plan.SQL, "(total * 2) AS doubled")
	assert.Contains(t, plan.Columns, "doubled")
}

func TestBuild_Compute_RejectsDisallowedTokens(t *testing.T) {
	t.Parallel()
	reg := newOrdersRegistry()
	q, err := query.ParseQuery(query.Params{"$compute": "total; DROP TABLE orders as x"})
	require.NoError(t, err)

	_, err = planner.Build(reg, "orders", q, nil)
	require.Error(t, err)
}

func TestBuild_Compute_AllowsWhitelistedFunction(t *testing.T) {
	t.Parallel()
	reg := newOrdersRegistry()
	q, err := query.ParseQuery(query.Params{"$compute": "ROUND(total) as rounded"})
	require.NoError(t, err)

	plan, err := planner.Build(reg, "orders", q, nil)
	require.NoError(t, err)
	assert.Contains(t, plan.SQL, "(ROUND(total)) AS rounded")
}
