package store

import (
	"context"
	"database/sql"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/rvegajr/sqlite-db-odata4-sub000/errkind"
)

// querier is satisfied by both *sql.DB and *sql.Tx, letting SQLStore and
// sqlTx share the same Statement/Exec implementation.
type querier interface {
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// SQLStore is the reference Connection implementation, backed by SQLite
// via the pure-Go modernc.org/sqlite driver (no cgo).
type SQLStore struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database at path ("file::memory:?cache=shared"
// for an in-process, ephemeral store).
func Open(path string) (*SQLStore, error) {
	const op = "store.Open"
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errkind.Wrap(errkind.InternalError, err, "%s: failed to open database", op)
	}
	return &SQLStore{db: db}, nil
}

func (s *SQLStore) Close() error { return s.db.Close() }

func (s *SQLStore) Prepare(ctx context.Context, sqlText string) (Statement, error) {
	return prepareOn(ctx, s.db, sqlText)
}

func (s *SQLStore) Exec(ctx context.Context, sqlText string, params ...any) (RunResult, error) {
	return execOn(ctx, s.db, sqlText, params...)
}

func (s *SQLStore) Transaction(ctx context.Context, fn func(ctx context.Context, tx Connection) error) error {
	const op = "store.SQLStore.Transaction"
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errkind.Wrap(errkind.InternalError, err, "%s: failed to begin transaction", op)
	}
	if err := fn(ctx, &sqlTx{tx: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errkind.Wrap(errkind.InternalError, rbErr, "%s: rollback failed after error: %v", op, err)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return errkind.Wrap(errkind.InternalError, err, "%s: failed to commit transaction", op)
	}
	return nil
}

// sqlTx is the Connection view handed to code running inside a
// transaction. Its own Transaction method is intentionally unsupported:
// this module never nests transactions (spec §4.6, one transaction per
// changeset).
type sqlTx struct {
	tx *sql.Tx
}

func (t *sqlTx) Prepare(ctx context.Context, sqlText string) (Statement, error) {
	return prepareOn(ctx, t.tx, sqlText)
}

func (t *sqlTx) Exec(ctx context.Context, sqlText string, params ...any) (RunResult, error) {
	return execOn(ctx, t.tx, sqlText, params...)
}

func (t *sqlTx) Transaction(context.Context, func(ctx context.Context, tx Connection) error) error {
	return errkind.Internalf("store.sqlTx.Transaction: nested transactions are not supported")
}

func execOn(ctx context.Context, q querier, sqlText string, params ...any) (RunResult, error) {
	const op = "store.execOn"
	res, err := q.ExecContext(ctx, sqlText, params...)
	if err != nil {
		return RunResult{}, errkind.Wrap(errkind.InternalError, err, "%s: statement failed", op)
	}
	id, _ := res.LastInsertId()
	n, _ := res.RowsAffected()
	return RunResult{LastInsertID: id, RowsAffected: n}, nil
}

func prepareOn(ctx context.Context, q querier, sqlText string) (Statement, error) {
	const op = "store.prepareOn"
	stmt, err := q.PrepareContext(ctx, sqlText)
	if err != nil {
		return nil, errkind.Wrap(errkind.InternalError, err, "%s: failed to prepare statement", op)
	}
	return &sqlStatement{stmt: stmt}, nil
}

type sqlStatement struct {
	stmt *sql.Stmt
}

func (s *sqlStatement) Close() error { return s.stmt.Close() }

func (s *sqlStatement) Run(ctx context.Context, params ...any) (RunResult, error) {
	const op = "store.sqlStatement.Run"
	res, err := s.stmt.ExecContext(ctx, params...)
	if err != nil {
		return RunResult{}, errkind.Wrap(errkind.InternalError, err, "%s: statement failed", op)
	}
	id, _ := res.LastInsertId()
	n, _ := res.RowsAffected()
	return RunResult{LastInsertID: id, RowsAffected: n}, nil
}

func (s *sqlStatement) Get(ctx context.Context, params ...any) (Row, bool, error) {
	const op = "store.sqlStatement.Get"
	rows, err := s.stmt.QueryContext(ctx, params...)
	if err != nil {
		return nil, false, errkind.Wrap(errkind.InternalError, err, "%s: query failed", op)
	}
	defer rows.Close()
	if !rows.Next() {
		return nil, false, nil
	}
	row, err := scanRow(rows)
	if err != nil {
		return nil, false, errkind.Wrap(errkind.InternalError, err, "%s: scan failed", op)
	}
	return row, true, nil
}

func (s *sqlStatement) All(ctx context.Context, params ...any) ([]Row, error) {
	const op = "store.sqlStatement.All"
	rows, err := s.stmt.QueryContext(ctx, params...)
	if err != nil {
		return nil, errkind.Wrap(errkind.InternalError, err, "%s: query failed", op)
	}
	defer rows.Close()
	var out []Row
	for rows.Next() {
		row, err := scanRow(rows)
		if err != nil {
			return nil, errkind.Wrap(errkind.InternalError, err, "%s: scan failed", op)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, errkind.Wrap(errkind.InternalError, err, "%s: row iteration failed", op)
	}
	return out, nil
}

func scanRow(rows *sql.Rows) (Row, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	values := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, err
	}
	row := make(Row, len(cols))
	for i, c := range cols {
		row[c] = values[i]
	}
	return row, nil
}
