// Package document persists documents in the loom_documents table.
package document

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/kailas-cloud/loom/internal/db"
	"github.com/kailas-cloud/loom/internal/domain"
	domdoc "github.com/kailas-cloud/loom/internal/domain/document"
)

// defaultPageSize bounds List when the caller passes no limit.
const defaultPageSize = 20

// store is the consumer interface for document rows (ISP).
type store interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const selectColumns = `id, collection_id, content, title, meta, created_at, updated_at`

// Repo implements usecase/document.Repository.
type Repo struct {
	store store
}

// New creates a document repository.
func New(s store) *Repo {
	return &Repo{store: s}
}

// EnsureTable creates loom_documents if it does not exist. Requires
// loom_collections: documents cascade away with their collection.
func (r *Repo) EnsureTable(ctx context.Context) error {
	const ddl = `
		CREATE TABLE IF NOT EXISTS loom_documents (
			id            uuid PRIMARY KEY,
			collection_id text NOT NULL REFERENCES loom_collections(id) ON DELETE CASCADE,
			content       text NOT NULL DEFAULT '',
			title         text NOT NULL DEFAULT '',
			meta          jsonb NOT NULL DEFAULT '{}',
			created_at    timestamptz NOT NULL,
			updated_at    timestamptz NOT NULL
		)`
	if _, err := r.store.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("create loom_documents: %w", err)
	}

	const idx = `
		CREATE INDEX IF NOT EXISTS loom_documents_collection_id_idx
		ON loom_documents (collection_id, id)`
	if _, err := r.store.Exec(ctx, idx); err != nil {
		return fmt.Errorf("index loom_documents: %w", err)
	}
	return nil
}

// Create inserts a document.
func (r *Repo) Create(ctx context.Context, doc domdoc.Document) error {
	metaJSON, err := metaToJSON(doc.Meta())
	if err != nil {
		return err
	}

	const q = `
		INSERT INTO loom_documents (id, collection_id, content, title, meta, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err = r.store.Exec(ctx, q,
		doc.ID(), doc.CollectionID(), doc.Content(), doc.Title(), metaJSON,
		doc.CreatedAt(), doc.UpdatedAt(),
	)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("insert document %s: %w", doc.ID(), err)
	}
	return nil
}

// Get retrieves a document by id.
func (r *Repo) Get(ctx context.Context, id uuid.UUID) (domdoc.Document, error) {
	q := `SELECT ` + selectColumns + ` FROM loom_documents WHERE id = $1`

	doc, err := scanDocument(r.store.QueryRow(ctx, q, id))
	if err != nil {
		if db.IsNoRows(err) {
			return domdoc.Document{}, domain.ErrNotFound
		}
		return domdoc.Document{}, fmt.Errorf("select document %s: %w", id, err)
	}
	return doc, nil
}

// List pages through a collection's documents in id order. The cursor is the
// id of the last document of the previous page; empty starts from the top.
// Returns the next cursor, or empty when the collection is exhausted.
func (r *Repo) List(ctx context.Context, collectionID, cursor string, limit int) (
	[]domdoc.Document, string, error,
) {
	if limit <= 0 {
		limit = defaultPageSize
	}

	q := `SELECT ` + selectColumns + ` FROM loom_documents WHERE collection_id = $1`
	args := []any{collectionID}

	if cursor != "" {
		after, err := uuid.Parse(cursor)
		if err != nil {
			return nil, "", fmt.Errorf("%w: invalid cursor %q", domain.ErrValidation, cursor)
		}
		q += ` AND id > $2`
		args = append(args, after)
	}
	q += fmt.Sprintf(` ORDER BY id LIMIT $%d`, len(args)+1)
	// One extra row decides whether another page exists.
	args = append(args, limit+1)

	rows, err := r.store.Query(ctx, q, args...)
	if err != nil {
		return nil, "", fmt.Errorf("list documents %s: %w", collectionID, err)
	}
	docs, err := collectDocuments(rows)
	if err != nil {
		return nil, "", err
	}

	next := ""
	if len(docs) > limit {
		docs = docs[:limit]
		next = docs[limit-1].ID().String()
	}
	return docs, next, nil
}

// GetMulti retrieves documents by id, keyed by id. Missing ids are simply
// absent from the result.
func (r *Repo) GetMulti(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]domdoc.Document, error) {
	if len(ids) == 0 {
		return map[uuid.UUID]domdoc.Document{}, nil
	}

	q := `SELECT ` + selectColumns + ` FROM loom_documents WHERE id = ANY($1)`

	rows, err := r.store.Query(ctx, q, ids)
	if err != nil {
		return nil, fmt.Errorf("select documents: %w", err)
	}
	docs, err := collectDocuments(rows)
	if err != nil {
		return nil, err
	}

	byID := make(map[uuid.UUID]domdoc.Document, len(docs))
	for _, doc := range docs {
		byID[doc.ID()] = doc
	}
	return byID, nil
}

// Update rewrites the mutable columns of a document.
func (r *Repo) Update(ctx context.Context, doc domdoc.Document) error {
	metaJSON, err := metaToJSON(doc.Meta())
	if err != nil {
		return err
	}

	const q = `
		UPDATE loom_documents
		SET content = $2, title = $3, meta = $4, updated_at = $5
		WHERE id = $1`

	tag, err := r.store.Exec(ctx, q, doc.ID(), doc.Content(), doc.Title(), metaJSON, doc.UpdatedAt())
	if err != nil {
		return fmt.Errorf("update document %s: %w", doc.ID(), err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Delete removes a document by id. Index records referencing it cascade at
// the storage level.
func (r *Repo) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.store.Exec(ctx, `DELETE FROM loom_documents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete document %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// DeleteByCollection removes every document of a collection and returns the
// count. Zero rows is not an error: an empty collection is a valid target.
func (r *Repo) DeleteByCollection(ctx context.Context, collectionID string) (int64, error) {
	tag, err := r.store.Exec(ctx, `DELETE FROM loom_documents WHERE collection_id = $1`, collectionID)
	if err != nil {
		return 0, fmt.Errorf("delete documents of %s: %w", collectionID, err)
	}
	return tag.RowsAffected(), nil
}

// CountByCollection reports how many documents the collection holds.
func (r *Repo) CountByCollection(ctx context.Context, collectionID string) (int64, error) {
	const q = `SELECT count(*) FROM loom_documents WHERE collection_id = $1`

	var n int64
	if err := r.store.QueryRow(ctx, q, collectionID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count documents %s: %w", collectionID, err)
	}
	return n, nil
}
