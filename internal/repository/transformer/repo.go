// Package transformer persists transformer registrations in the
// loom_transformers table.
package transformer

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/kailas-cloud/loom/internal/db"
	"github.com/kailas-cloud/loom/internal/domain"
	domtrans "github.com/kailas-cloud/loom/internal/domain/transformer"
)

// store is the consumer interface for transformer rows (ISP).
type store interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const selectColumns = `id, path, description, created_at, updated_at`

// Repo implements usecase/transformer.Repository.
type Repo struct {
	store store
}

// New creates a transformer repository.
func New(s store) *Repo {
	return &Repo{store: s}
}

// EnsureTable creates loom_transformers if it does not exist.
func (r *Repo) EnsureTable(ctx context.Context) error {
	const ddl = `
		CREATE TABLE IF NOT EXISTS loom_transformers (
			id          text PRIMARY KEY,
			path        text NOT NULL DEFAULT '',
			description text NOT NULL DEFAULT '',
			created_at  timestamptz NOT NULL,
			updated_at  timestamptz NOT NULL
		)`
	if _, err := r.store.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("create loom_transformers: %w", err)
	}
	return nil
}

// Create inserts a transformer registration.
func (r *Repo) Create(ctx context.Context, tr domtrans.Transformer) error {
	const q = `
		INSERT INTO loom_transformers (id, path, description, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := r.store.Exec(ctx, q, tr.ID(), tr.Path(), tr.Description(), tr.CreatedAt(), tr.UpdatedAt())
	if err != nil {
		if db.IsUniqueViolation(err) {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("insert transformer %s: %w", tr.ID(), err)
	}
	return nil
}

// Get retrieves a transformer by id.
func (r *Repo) Get(ctx context.Context, id string) (domtrans.Transformer, error) {
	q := `SELECT ` + selectColumns + ` FROM loom_transformers WHERE id = $1`

	tr, err := scanTransformer(r.store.QueryRow(ctx, q, id))
	if err != nil {
		if db.IsNoRows(err) {
			return domtrans.Transformer{}, domain.ErrNotFound
		}
		return domtrans.Transformer{}, fmt.Errorf("select transformer %s: %w", id, err)
	}
	return tr, nil
}

// List returns all transformers ordered by id.
func (r *Repo) List(ctx context.Context) ([]domtrans.Transformer, error) {
	q := `SELECT ` + selectColumns + ` FROM loom_transformers ORDER BY id`

	rows, err := r.store.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list transformers: %w", err)
	}
	defer rows.Close()

	transformers := make([]domtrans.Transformer, 0)
	for rows.Next() {
		tr, err := scanTransformer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transformer row: %w", err)
		}
		transformers = append(transformers, tr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transformers: %w", err)
	}
	return transformers, nil
}

// Update rewrites the path and description of a transformer.
func (r *Repo) Update(ctx context.Context, tr domtrans.Transformer) error {
	const q = `
		UPDATE loom_transformers
		SET path = $2, description = $3, updated_at = $4
		WHERE id = $1`

	tag, err := r.store.Exec(ctx, q, tr.ID(), tr.Path(), tr.Description(), tr.UpdatedAt())
	if err != nil {
		return fmt.Errorf("update transformer %s: %w", tr.ID(), err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Delete removes a transformer by id.
func (r *Repo) Delete(ctx context.Context, id string) error {
	tag, err := r.store.Exec(ctx, `DELETE FROM loom_transformers WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete transformer %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func scanTransformer(row pgx.Row) (domtrans.Transformer, error) {
	var (
		id, path, description string
		createdAt, updatedAt  time.Time
	)
	if err := row.Scan(&id, &path, &description, &createdAt, &updatedAt); err != nil {
		return domtrans.Transformer{}, err
	}
	return domtrans.Reconstruct(id, path, description, createdAt, updatedAt), nil
}
