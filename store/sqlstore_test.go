package store_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rvegajr/sqlite-db-odata4-sub000/store"
)

func newTestStore(t *testing.T) *store.SQLStore {
	t.Helper()
	conn, err := store.Open("file:" + t.Name() + "?mode=memory&cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	ctx := context.Background()
	_, err = conn.Exec(ctx, `CREATE TABLE widgets (id INTEGER PRIMARY KEY AUTOINCREMENT, name TEXT NOT NULL)`)
	require.NoError(t, err)
	return conn
}

func TestSQLStore_ExecAndQuery(t *testing.T) {
	t.Parallel()
	conn := newTestStore(t)
	ctx := context.Background()

	res, err := conn.Exec(ctx, `INSERT INTO widgets (name) VALUES (?)`, "gear")
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.LastInsertID)
	assert.Equal(t, int64(1), res.RowsAffected)

	stmt, err := conn.Prepare(ctx, `SELECT id, name FROM widgets WHERE id = ?`)
	require.NoError(t, err)
	defer stmt.Close()

	row, ok, err := stmt.Get(ctx, res.LastInsertID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "gear", row["name"])

	_, ok, err = stmt.Get(ctx, 999)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSQLStore_All(t *testing.T) {
	t.Parallel()
	conn := newTestStore(t)
	ctx := context.Background()

	_, err := conn.Exec(ctx, `INSERT INTO widgets (name) VALUES ('a'), ('b'), ('c')`)
	require.NoError(t, err)

	stmt, err := conn.Prepare(ctx, `SELECT name FROM widgets ORDER BY name`)
	require.NoError(t, err)
	defer stmt.Close()

	rows, err := stmt.All(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "a", rows[0]["name"])
	assert.Equal(t, "c", rows[2]["name"])
}

func TestSQLStore_Transaction_CommitsOnSuccess(t *testing.T) {
	t.Parallel()
	conn := newTestStore(t)
	ctx := context.Background()

	err := conn.Transaction(ctx, func(ctx context.Context, tx store.Connection) error {
		_, err := tx.Exec(ctx, `INSERT INTO widgets (name) VALUES ('tx-row')`)
		return err
	})
	require.NoError(t, err)

	stmt, err := conn.Prepare(ctx, `SELECT COUNT(*) AS n FROM widgets WHERE name = 'tx-row'`)
	require.NoError(t, err)
	defer stmt.Close()
	row, ok, err := stmt.Get(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.EqualValues(t, 1, row["n"])
}

func TestSQLStore_Transaction_RollsBackOnError(t *testing.T) {
	t.Parallel()
	conn := newTestStore(t)
	ctx := context.Background()

	sentinel := assert.AnError
	err := conn.Transaction(ctx, func(ctx context.Context, tx store.Connection) error {
		if _, err := tx.Exec(ctx, `INSERT INTO widgets (name) VALUES ('doomed')`); err != nil {
			return err
		}
		return sentinel
	})
	require.ErrorIs(t, err, sentinel)

	stmt, err := conn.Prepare(ctx, `SELECT COUNT(*) AS n FROM widgets WHERE name = 'doomed'`)
	require.NoError(t, err)
	defer stmt.Close()
	row, ok, err := stmt.Get(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.EqualValues(t, 0, row["n"])
}

func TestSQLStore_Transaction_RejectsNesting(t *testing.T) {
	t.Parallel()
	conn := newTestStore(t)
	ctx := context.Background()

	err := conn.Transaction(ctx, func(ctx context.Context, tx store.Connection) error {
		return tx.Transaction(ctx, func(context.Context, store.Connection) error { return nil })
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nested transactions are not supported")
}
