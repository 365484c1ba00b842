// Package record reads rows of materialized index tables. Unlike the entity
// repositories it has no fixed table: every query is shaped by the layout the
// schema registry hands out.
package record

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"

	"github.com/kailas-cloud/loom/internal/db"
	"github.com/kailas-cloud/loom/internal/domain"
	"github.com/kailas-cloud/loom/internal/domain/index"
	domrec "github.com/kailas-cloud/loom/internal/domain/record"
	"github.com/kailas-cloud/loom/internal/schema"
)

// distanceAlias names the projected KNN distance column.
const distanceAlias = "distance"

// store is the consumer interface for record reads (ISP).
type store interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repo implements usecase/record.Repository.
type Repo struct {
	store store
}

// New creates a record repository.
func New(s store) *Repo {
	return &Repo{store: s}
}

// List pages through an index table's records, newest first.
func (r *Repo) List(ctx context.Context, layout schema.Layout, limit, offset int) ([]domrec.Record, error) {
	sql, args, err := db.NewSelect(layout.Table).
		Columns(selectColumns(layout)...).
		OrderBy("created_at DESC, index_record_id").
		Limit(limit).
		Offset(offset).
		Build()
	if err != nil {
		return nil, fmt.Errorf("build record list: %w", err)
	}

	rows, err := r.store.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list records of %s: %w", layout.IndexID, err)
	}
	defer rows.Close()

	declared := layout.DeclaredFields()
	records := make([]domrec.Record, 0)
	for rows.Next() {
		rec, _, err := scanRecord(rows, declared, false)
		if err != nil {
			return nil, fmt.Errorf("scan record row: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return records, nil
}

// Count reports how many records the index table holds.
func (r *Repo) Count(ctx context.Context, layout schema.Layout) (int64, error) {
	if !db.IsValidIdentifier(layout.Table) {
		return 0, fmt.Errorf("%w: invalid table name %q", domain.ErrValidation, layout.Table)
	}
	q := `SELECT count(*) FROM ` + db.QuoteIdentifier(layout.Table)

	var n int64
	if err := r.store.QueryRow(ctx, q).Scan(&n); err != nil {
		return 0, fmt.Errorf("count records of %s: %w", layout.IndexID, err)
	}
	return n, nil
}

// KNN returns the k records nearest to the query vector on the given
// embedding field, using the field's declared distance metric. Rows with a
// NULL embedding never match.
func (r *Repo) KNN(
	ctx context.Context, layout schema.Layout, field string, vector pgvector.Vector, k int,
) ([]domrec.Hit, error) {
	f, ok := layout.Field(field)
	if !ok {
		return nil, fmt.Errorf("%w: index %s has no field %q", domain.ErrNotFound, layout.IndexID, field)
	}
	if !f.IsEmbedding() {
		return nil, fmt.Errorf("%w: field %q of index %s is not an embedding",
			domain.ErrValidation, field, layout.IndexID)
	}
	op, err := vectorOpFor(f.Metric())
	if err != nil {
		return nil, err
	}

	sql, args, err := db.NewSelect(layout.Table).
		Columns(selectColumns(layout)...).
		Distance(field, op, distanceAlias, vector).
		WhereNotNull(field).
		Limit(k).
		Build()
	if err != nil {
		return nil, fmt.Errorf("build knn query: %w", err)
	}

	rows, err := r.store.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("knn query %s.%s: %w", layout.IndexID, field, err)
	}
	defer rows.Close()

	declared := layout.DeclaredFields()
	hits := make([]domrec.Hit, 0, k)
	for rows.Next() {
		rec, distance, err := scanRecord(rows, declared, true)
		if err != nil {
			return nil, fmt.Errorf("scan knn row: %w", err)
		}
		hits = append(hits, domrec.Hit{Record: rec, Distance: distance})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate knn rows: %w", err)
	}
	return hits, nil
}

func vectorOpFor(metric index.Distance) (string, error) {
	switch metric {
	case index.DistanceCosine:
		return db.VectorOpCosine, nil
	case index.DistanceL2:
		return db.VectorOpL2, nil
	case index.DistanceIP:
		return db.VectorOpIP, nil
	default:
		return "", fmt.Errorf("%w: no distance operator for metric %q", domain.ErrValidation, metric)
	}
}
