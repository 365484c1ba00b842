package index

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/kailas-cloud/loom/internal/db/postgres"
	domidx "github.com/kailas-cloud/loom/internal/domain/index"
)

// mockStore implements the consumer interface for tests.
type mockStore struct {
	execFn     func(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	queryFn    func(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	queryRowFn func(ctx context.Context, sql string, args ...any) pgx.Row
}

func (m *mockStore) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if m.execFn != nil {
		return m.execFn(ctx, sql, args...)
	}
	return pgconn.NewCommandTag("UPDATE 1"), nil
}

func (m *mockStore) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if m.queryFn != nil {
		return m.queryFn(ctx, sql, args...)
	}
	return postgres.NewFakeRows(nil), nil
}

func (m *mockStore) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if m.queryRowFn != nil {
		return m.queryRowFn(ctx, sql, args...)
	}
	return postgres.NewFakeRowNoRows()
}

func newTestRepo(_ *testing.T) (*Repo, *mockStore) {
	ms := &mockStore{}
	return New(ms), ms
}

var testTime = time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)

var indexCols = []string{"id", "description", "fields", "created_at", "updated_at"}

// testIndex builds a definition with one scalar and one embedding field,
// in that declaration order.
func testIndex(t *testing.T) domidx.Index {
	t.Helper()
	words, err := domidx.NewField("n_words", domidx.TypeInt, true)
	if err != nil {
		t.Fatalf("build field: %v", err)
	}
	emb, err := domidx.NewEmbeddingField("embedding", 1536, domidx.DistanceCosine, "text-embedding-3-small")
	if err != nil {
		t.Fatalf("build embedding field: %v", err)
	}
	return domidx.Reconstruct(
		"word_stats", "per-document word statistics",
		[]domidx.Field{words, emb}, testTime, testTime,
	)
}

func indexRow(t *testing.T, idx domidx.Index) []any {
	t.Helper()
	fieldsJSON, err := fieldsToJSON(idx.Fields())
	if err != nil {
		t.Fatalf("marshal fields: %v", err)
	}
	return []any{idx.ID(), idx.Description(), fieldsJSON, idx.CreatedAt(), idx.UpdatedAt()}
}
