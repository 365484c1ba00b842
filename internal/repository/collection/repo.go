// Package collection persists collections in the loom_collections table.
package collection

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/kailas-cloud/loom/internal/db"
	"github.com/kailas-cloud/loom/internal/domain"
	domcol "github.com/kailas-cloud/loom/internal/domain/collection"
)

// store is the consumer interface for collection rows (ISP).
type store interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const selectColumns = `id, description, config, created_at, updated_at`

// Repo implements usecase/collection.Repository.
type Repo struct {
	store store
}

// New creates a collection repository.
func New(s store) *Repo {
	return &Repo{store: s}
}

// EnsureTable creates loom_collections if it does not exist. Documents
// reference this table with a cascading foreign key, so it must be ensured
// before loom_documents.
func (r *Repo) EnsureTable(ctx context.Context) error {
	const ddl = `
		CREATE TABLE IF NOT EXISTS loom_collections (
			id          text PRIMARY KEY,
			description text NOT NULL DEFAULT '',
			config      jsonb NOT NULL DEFAULT '{}',
			created_at  timestamptz NOT NULL,
			updated_at  timestamptz NOT NULL
		)`
	if _, err := r.store.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("create loom_collections: %w", err)
	}
	return nil
}

// Create inserts a collection.
func (r *Repo) Create(ctx context.Context, col domcol.Collection) error {
	configJSON, err := configToJSON(col.Config())
	if err != nil {
		return err
	}

	const q = `
		INSERT INTO loom_collections (id, description, config, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)`

	_, err = r.store.Exec(ctx, q, col.ID(), col.Description(), configJSON, col.CreatedAt(), col.UpdatedAt())
	if err != nil {
		if db.IsUniqueViolation(err) {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("insert collection %s: %w", col.ID(), err)
	}
	return nil
}

// Get retrieves a collection by id.
func (r *Repo) Get(ctx context.Context, id string) (domcol.Collection, error) {
	q := `SELECT ` + selectColumns + ` FROM loom_collections WHERE id = $1`

	col, err := scanCollection(r.store.QueryRow(ctx, q, id))
	if err != nil {
		if db.IsNoRows(err) {
			return domcol.Collection{}, domain.ErrNotFound
		}
		return domcol.Collection{}, fmt.Errorf("select collection %s: %w", id, err)
	}
	return col, nil
}

// List returns all collections ordered by id.
func (r *Repo) List(ctx context.Context) ([]domcol.Collection, error) {
	q := `SELECT ` + selectColumns + ` FROM loom_collections ORDER BY id`

	rows, err := r.store.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	defer rows.Close()

	collections := make([]domcol.Collection, 0)
	for rows.Next() {
		col, err := scanCollection(rows)
		if err != nil {
			return nil, fmt.Errorf("scan collection row: %w", err)
		}
		collections = append(collections, col)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate collections: %w", err)
	}
	return collections, nil
}

// Update replaces the mutable columns of a collection.
func (r *Repo) Update(ctx context.Context, col domcol.Collection) error {
	configJSON, err := configToJSON(col.Config())
	if err != nil {
		return err
	}

	const q = `
		UPDATE loom_collections
		SET description = $2, config = $3, updated_at = $4
		WHERE id = $1`

	tag, err := r.store.Exec(ctx, q, col.ID(), col.Description(), configJSON, col.UpdatedAt())
	if err != nil {
		return fmt.Errorf("update collection %s: %w", col.ID(), err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Delete removes a collection by id. Documents cascade at the storage level;
// bindings are the caller's to detach.
func (r *Repo) Delete(ctx context.Context, id string) error {
	tag, err := r.store.Exec(ctx, `DELETE FROM loom_collections WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete collection %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
