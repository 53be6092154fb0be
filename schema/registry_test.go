package schema_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rvegajr/sqlite-db-odata4-sub000/schema"
)

func newTestRegistry() *schema.Registry {
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

func TestRegistry_Resource(t *testing.T) {
	t.Parallel()
	reg := newTestRegistry()

	tbl, err := reg.Resource("orders")
	require.NoError(t, err)
	assert.Equal(t, "orders", tbl.Name)

	_, err = reg.Resource("nonexistent")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"nonexistent" not found`)
}

func TestRegistry_Field(t *testing.T) {
	t.Parallel()
	reg := newTestRegistry()

	col, err := reg.Field("orders", "total")
	require.NoError(t, err)
	assert.Equal(t, schema.Real, col.Type)

	_, err = reg.Field("orders", "nope")
	require.Error(t, err)

	_, err = reg.Field("nope", "id")
	require.Error(t, err)
}

func TestRegistry_Navigation(t *testing.T) {
	t.Parallel()
	reg := newTestRegistry()

	fk, err := reg.Navigation("orders", "customer")
	require.NoError(t, err)
	assert.Equal(t, "customers", fk.ToTable)
	assert.Equal(t, "customer_id", fk.FromColumn)

	_, err = reg.Navigation("orders", "nope")
	require.Error(t, err)

	_, err = reg.Navigation("customers", "customer")
	require.Error(t, err)
}

func TestTable_PrimaryKey(t *testing.T) {
	t.Parallel()
	reg := newTestRegistry()
	tbl, err := reg.Resource("orders")
	require.NoError(t, err)

	pk, ok := tbl.PrimaryKey()
	require.True(t, ok)
	assert.Equal(t, "id", pk.Name)
}

func TestColumnType_EdmType(t *testing.T) {
	t.Parallel()
	tests := []struct {
		ct   schema.ColumnType
		want string
	}{
		{schema.Integer, "Edm.Int32"},
		{schema.Real, "Edm.Double"},
		{schema.Text, "Edm.String"},
		{schema.Blob, "Edm.Binary"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.ct.EdmType())
	}
}
