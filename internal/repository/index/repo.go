// Package index persists index definitions in the loom_indexes table.
// Definition rows are independent of the derived record tables: an index may
// be declared long before the schema registry materializes it.
package index

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/kailas-cloud/loom/internal/db"
	"github.com/kailas-cloud/loom/internal/domain"
	domidx "github.com/kailas-cloud/loom/internal/domain/index"
)

// store is the consumer interface for index definition rows (ISP).
type store interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const selectColumns = `id, description, fields, created_at, updated_at`

// Repo implements usecase/index.Repository.
type Repo struct {
	store store
}

// New creates an index definition repository.
func New(s store) *Repo {
	return &Repo{store: s}
}

// EnsureTable creates loom_indexes if it does not exist.
func (r *Repo) EnsureTable(ctx context.Context) error {
	const ddl = `
		CREATE TABLE IF NOT EXISTS loom_indexes (
			id          text PRIMARY KEY,
			description text NOT NULL DEFAULT '',
			fields      jsonb NOT NULL DEFAULT '[]',
			created_at  timestamptz NOT NULL,
			updated_at  timestamptz NOT NULL
		)`
	if _, err := r.store.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("create loom_indexes: %w", err)
	}
	return nil
}

// Create inserts an index definition.
func (r *Repo) Create(ctx context.Context, idx domidx.Index) error {
	fieldsJSON, err := fieldsToJSON(idx.Fields())
	if err != nil {
		return err
	}

	const q = `
		INSERT INTO loom_indexes (id, description, fields, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)`

	_, err = r.store.Exec(ctx, q, idx.ID(), idx.Description(), fieldsJSON, idx.CreatedAt(), idx.UpdatedAt())
	if err != nil {
		if db.IsUniqueViolation(err) {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("insert index %s: %w", idx.ID(), err)
	}
	return nil
}

// Get retrieves an index definition by id.
func (r *Repo) Get(ctx context.Context, id string) (domidx.Index, error) {
	q := `SELECT ` + selectColumns + ` FROM loom_indexes WHERE id = $1`

	idx, err := scanIndex(r.store.QueryRow(ctx, q, id))
	if err != nil {
		if db.IsNoRows(err) {
			return domidx.Index{}, domain.ErrNotFound
		}
		return domidx.Index{}, fmt.Errorf("select index %s: %w", id, err)
	}
	return idx, nil
}

// List returns all index definitions ordered by id.
func (r *Repo) List(ctx context.Context) ([]domidx.Index, error) {
	q := `SELECT ` + selectColumns + ` FROM loom_indexes ORDER BY id`

	rows, err := r.store.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list indexes: %w", err)
	}
	defer rows.Close()

	indexes := make([]domidx.Index, 0)
	for rows.Next() {
		idx, err := scanIndex(rows)
		if err != nil {
			return nil, fmt.Errorf("scan index row: %w", err)
		}
		indexes = append(indexes, idx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate indexes: %w", err)
	}
	return indexes, nil
}

// Delete removes an index definition by id. The derived record table is the
// schema registry's to drop, not ours.
func (r *Repo) Delete(ctx context.Context, id string) error {
	tag, err := r.store.Exec(ctx, `DELETE FROM loom_indexes WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete index %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
