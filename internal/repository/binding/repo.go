// Package binding persists bindings in the loom_bindings table.
package binding

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/kailas-cloud/loom/internal/db"
	"github.com/kailas-cloud/loom/internal/domain"
	dombind "github.com/kailas-cloud/loom/internal/domain/binding"
)

// store is the consumer interface for binding rows (ISP).
type store interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repo implements usecase/binding.Repository.
type Repo struct {
	store store
}

// New creates a binding repository.
func New(s store) *Repo {
	return &Repo{store: s}
}

// EnsureTable creates loom_bindings if it does not exist. Bindings reference
// collections, transformers and indexes by id without foreign keys: a binding
// outlives its endpoints and flips to the detached status instead of being
// cascaded away.
func (r *Repo) EnsureTable(ctx context.Context) error {
	const ddl = `
		CREATE TABLE IF NOT EXISTS loom_bindings (
			id                 bigserial PRIMARY KEY,
			collection_id      text NOT NULL,
			transformer_id     text NOT NULL,
			index_id           text NOT NULL,
			description        text NOT NULL DEFAULT '',
			execution_params   jsonb NOT NULL DEFAULT '{}',
			transformer_params jsonb NOT NULL DEFAULT '{}',
			filter             jsonb,
			status             text NOT NULL,
			created_at         timestamptz NOT NULL,
			updated_at         timestamptz NOT NULL
		)`
	if _, err := r.store.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("create loom_bindings: %w", err)
	}

	const idx = `
		CREATE INDEX IF NOT EXISTS loom_bindings_collection_status_idx
		ON loom_bindings (collection_id, status)`
	if _, err := r.store.Exec(ctx, idx); err != nil {
		return fmt.Errorf("index loom_bindings: %w", err)
	}
	return nil
}

// Create inserts the binding and backfills its generated id.
func (r *Repo) Create(ctx context.Context, b *dombind.Binding) error {
	args, err := bindingArgs(*b)
	if err != nil {
		return err
	}

	const q = `
		INSERT INTO loom_bindings
			(collection_id, transformer_id, index_id, description,
			 execution_params, transformer_params, filter, status,
			 created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`

	var id int64
	if err := r.store.QueryRow(ctx, q, args...).Scan(&id); err != nil {
		return fmt.Errorf("insert binding: %w", err)
	}
	b.SetID(id)
	return nil
}

// Get retrieves a binding by id.
func (r *Repo) Get(ctx context.Context, id int64) (dombind.Binding, error) {
	q := `SELECT ` + selectColumns + ` FROM loom_bindings WHERE id = $1`

	b, err := scanBinding(r.store.QueryRow(ctx, q, id))
	if err != nil {
		if db.IsNoRows(err) {
			return dombind.Binding{}, domain.ErrNotFound
		}
		return dombind.Binding{}, fmt.Errorf("select binding %d: %w", id, err)
	}
	return b, nil
}

// List returns all bindings ordered by id.
func (r *Repo) List(ctx context.Context) ([]dombind.Binding, error) {
	q := `SELECT ` + selectColumns + ` FROM loom_bindings ORDER BY id`

	rows, err := r.store.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list bindings: %w", err)
	}
	return collectBindings(rows)
}

// ListByCollection returns the collection's bindings, optionally narrowed to
// the given statuses, ordered by id.
func (r *Repo) ListByCollection(
	ctx context.Context, collectionID string, statuses ...dombind.Status,
) ([]dombind.Binding, error) {
	q := `SELECT ` + selectColumns + ` FROM loom_bindings WHERE collection_id = $1`
	args := []any{collectionID}

	if len(statuses) > 0 {
		names := make([]string, len(statuses))
		for i, s := range statuses {
			names[i] = string(s)
		}
		q += ` AND status = ANY($2)`
		args = append(args, names)
	}
	q += ` ORDER BY id`

	rows, err := r.store.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list bindings for collection %s: %w", collectionID, err)
	}
	return collectBindings(rows)
}

// Update rewrites all mutable columns of the binding row.
func (r *Repo) Update(ctx context.Context, b dombind.Binding) error {
	args, err := bindingArgs(b)
	if err != nil {
		return err
	}
	args = append(args, b.ID())

	const q = `
		UPDATE loom_bindings SET
			collection_id = $1, transformer_id = $2, index_id = $3,
			description = $4, execution_params = $5, transformer_params = $6,
			filter = $7, status = $8, created_at = $9, updated_at = $10
		WHERE id = $11`

	tag, err := r.store.Exec(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("update binding %d: %w", b.ID(), err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Delete removes a binding by id.
func (r *Repo) Delete(ctx context.Context, id int64) error {
	tag, err := r.store.Exec(ctx, `DELETE FROM loom_bindings WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete binding %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// DetachByCollection flips every binding of the collection to the detached
// status and reports how many rows changed.
func (r *Repo) DetachByCollection(ctx context.Context, collectionID string) (int64, error) {
	return r.detach(ctx, "collection_id", collectionID)
}

// DetachByTransformer flips every binding of the transformer to the detached
// status and reports how many rows changed.
func (r *Repo) DetachByTransformer(ctx context.Context, transformerID string) (int64, error) {
	return r.detach(ctx, "transformer_id", transformerID)
}

// DetachByIndex flips every binding of the index to the detached status and
// reports how many rows changed.
func (r *Repo) DetachByIndex(ctx context.Context, indexID string) (int64, error) {
	return r.detach(ctx, "index_id", indexID)
}

func (r *Repo) detach(ctx context.Context, column, endpointID string) (int64, error) {
	q := fmt.Sprintf(
		`UPDATE loom_bindings SET status = $1, updated_at = now() WHERE %s = $2 AND status <> $1`,
		column,
	)
	tag, err := r.store.Exec(ctx, q, string(dombind.StatusDetached), endpointID)
	if err != nil {
		return 0, fmt.Errorf("detach bindings by %s=%s: %w", column, endpointID, err)
	}
	return tag.RowsAffected(), nil
}
