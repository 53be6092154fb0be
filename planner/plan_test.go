package planner_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rvegajr/sqlite-db-odata4-sub000/errkind"
	"github.com/rvegajr/sqlite-db-odata4-sub000/planner"
	"github.com/rvegajr/sqlite-db-odata4-sub000/query"
	"github.com/rvegajr/sqlite-db-odata4-sub000/schema"
)

func newOrdersRegistry() *schema.Registry {
	reg := schema.NewRegistry()
	reg.Register(schema.Table{
		Name: "orders",
		Columns: []schema.Column{
			{Name: "id", Type: schema.Integer, PrimaryKey: true},
			{Name: "customer_id", Type: schema.Integer},
			{Name: "total", Type: schema.Real},
		},
	})
	reg.Register(schema.Table{
		Name: "customers",
		Columns: []schema.Column{
			{Name: "id", Type: schema.Integer, PrimaryKey: true},
			{Name: "name", Type: schema.Text},
		},
	})
	reg.RegisterForeignKey(schema.ForeignKey{
		FromTable: "orders", FromColumn: "customer_id",
		ToTable: "customers", ToColumn: "id", NavName: "customer",
	})
	return reg
}

func TestBuild_SimpleFilter(t *testing.T) {
	t.Parallel()
	reg := newOrdersRegistry()
	q, err := query.ParseQuery(query.Params{"$filter": "total gt 10"})
	require.NoError(t, err)

	plan, err := planner.Build(reg, "orders", q, nil)
	require.NoError(t, err)
	assert.Contains(t, plan.SQL, "SELECT * FROM orders WHERE orders.total > ?")
	assert.Equal(t, []any{int64(10)}, plan.Params)
}

func TestBuild_TopSkip(t *testing.T) {
	t.Parallel()
	reg := newOrdersRegistry()
	q, err := query.ParseQuery(query.Params{"$top": "5", "$skip": "2"})
	require.NoError(t, err)

	plan, err := planner.Build(reg, "orders", q, nil)
	require.NoError(t, err)
	assert.Contains(t, plan.SQL, "LIMIT ? OFFSET ?")
	assert.Equal(t, []any{5, 2}, plan.Params)
}

func TestBuild_UnknownTable(t *testing.T) {
	t.Parallel()
	reg := newOrdersRegistry()
	q, err := query.ParseQuery(query.Params{})
	require.NoError(t, err)

	_, err = planner.Build(reg, "nonexistent", q, nil)
	require.Error(t, err)
}

func TestBuild_UnknownFilterField(t *testing.T) {
	t.Parallel()
	reg := newOrdersRegistry()
	q, err := query.ParseQuery(query.Params{"$filter": "bogus eq 1"})
	require.NoError(t, err)

	_, err = planner.Build(reg, "orders", q, nil)
	require.Error(t, err)
}

func TestBuild_Expand(t *testing.T) {
	t.Parallel()
	reg := newOrdersRegistry()
	q, err := query.ParseQuery(query.Params{"$expand": "customer"})
	require.NoError(t, err)

	plan, err := planner.Build(reg, "orders", q, nil)
	require.NoError(t, err)
	assert.Contains(t, plan.SQL, "LEFT JOIN customers ON orders.customer_id = customers.id")
	assert.Contains(t, plan.Columns, "customer_id")
	assert.Contains(t, plan.Columns, "customer_name")
}

func TestBuild_ExpandUnknownRelationship(t *testing.T) {
	t.Parallel()
	reg := newOrdersRegistry()
	q, err := query.ParseQuery(query.Params{"$expand": "bogus"})
	require.NoError(t, err)

	_, err = planner.Build(reg, "orders", q, nil)
	require.Error(t, err)
	assert.Equal(t, errkind.BadRequest, errkind.KindOf(err))
	assert.Contains(t, err.Error(), "Relationship")
}

func TestBuild_FieldMapRenaming(t *testing.T) {
	t.Parallel()
	reg := newOrdersRegistry()
	q, err := query.ParseQuery(query.Params{"$filter": "grandTotal gt 10"})
	require.NoError(t, err)

	plan, err := planner.Build(reg, "orders", q, planner.FieldMap{"grandTotal": "total"})
	require.NoError(t, err)
	assert.Contains(t, plan.SQL, "orders.total > ?")
}

func TestCount_IgnoresPagingAndOrder(t *testing.T) {
	t.Parallel()
	reg := newOrdersRegistry()
	q, err := query.ParseQuery(query.Params{"$filter": "total gt 10", "$top": "1", "$orderby": "total desc"})
	require.NoError(t, err)

	plan, err := planner.Count(reg, "orders", q, nil)
	require.NoError(t, err)
	assert.Equal(t, "SELECT COUNT(*) AS count FROM orders WHERE orders.total > ?", plan.SQL)
	assert.Equal(t, []any{int64(10)}, plan.Params)
	assert.Equal(t, []string{"count"}, plan.Columns)
}
