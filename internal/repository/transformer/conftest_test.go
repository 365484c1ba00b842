package transformer

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/kailas-cloud/loom/internal/db/postgres"
	domtrans "github.com/kailas-cloud/loom/internal/domain/transformer"
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

var transformerCols = []string{"id", "path", "description", "created_at", "updated_at"}

func transformerRow(tr domtrans.Transformer) []any {
	return []any{tr.ID(), tr.Path(), tr.Description(), tr.CreatedAt(), tr.UpdatedAt()}
}

func testTransformer() domtrans.Transformer {
	return domtrans.Reconstruct("text.counter", "builtin/counter", "word and char counts", testTime, testTime)
}

// domtransReconstructNoPath builds a declarative-only transformer.
func domtransReconstructNoPath(t *testing.T) domtrans.Transformer {
	t.Helper()
	return domtrans.Reconstruct("ext.unported", "", "registered but not runnable", testTime, testTime)
}
