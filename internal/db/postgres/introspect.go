package postgres

import (
	"context"

	"github.com/kailas-cloud/loom/internal/db"
)

// TableExists checks the catalog for a table in the public schema.
func (s *Store) TableExists(ctx context.Context, table string) (bool, error) {
	const q = `
		SELECT EXISTS (
			SELECT 1 FROM information_schema.tables
			WHERE table_schema = 'public' AND table_name = $1
		)`

	var exists bool
	if err := s.pool.QueryRow(ctx, q, table).Scan(&exists); err != nil {
		return false, &db.Error{Op: db.OpIntrospect, Err: err}
	}
	return exists, nil
}

// IndexExists checks pg_indexes for a named index on a table in the public
// schema.
func (s *Store) IndexExists(ctx context.Context, table, name string) (bool, error) {
	const q = `
		SELECT EXISTS (
			SELECT 1 FROM pg_indexes
			WHERE schemaname = 'public' AND tablename = $1 AND indexname = $2
		)`

	var exists bool
	if err := s.pool.QueryRow(ctx, q, table, name).Scan(&exists); err != nil {
		return false, &db.Error{Op: db.OpIntrospect, Err: err}
	}
	return exists, nil
}

// TableColumns lists the columns of a table in ordinal order.
func (s *Store) TableColumns(ctx context.Context, table string) ([]db.Column, error) {
	const q = `
		SELECT column_name, data_type, is_nullable
		FROM information_schema.columns
		WHERE table_schema = 'public' AND table_name = $1
		ORDER BY ordinal_position`

	rows, err := s.pool.Query(ctx, q, table)
	if err != nil {
		return nil, &db.Error{Op: db.OpIntrospect, Err: err}
	}
	defer rows.Close()

	var cols []db.Column
	for rows.Next() {
		var col db.Column
		var nullable string
		if err := rows.Scan(&col.Name, &col.DataType, &nullable); err != nil {
			return nil, &db.Error{Op: db.OpIntrospect, Err: err}
		}
		col.Nullable = nullable == "YES"
		cols = append(cols, col)
	}
	if err := rows.Err(); err != nil {
		return nil, &db.Error{Op: db.OpIntrospect, Err: err}
	}
	return cols, nil
}
