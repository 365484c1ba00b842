package document

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/kailas-cloud/loom/internal/db/postgres"
	domdoc "github.com/kailas-cloud/loom/internal/domain/document"
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

var documentCols = []string{
	"id", "collection_id", "content", "title", "meta", "created_at", "updated_at",
}

// docWithID reconstructs a document with a fixed id for deterministic cursors.
func docWithID(id string, content string) domdoc.Document {
	return domdoc.Reconstruct(
		uuid.MustParse(id), "articles", content, "",
		map[string]any{"type": "text"}, testTime, testTime,
	)
}

func documentRow(t *testing.T, doc domdoc.Document) []any {
	t.Helper()
	metaJSON, err := metaToJSON(doc.Meta())
	if err != nil {
		t.Fatalf("marshal meta: %v", err)
	}
	return []any{
		doc.ID(), doc.CollectionID(), doc.Content(), doc.Title(), metaJSON,
		doc.CreatedAt(), doc.UpdatedAt(),
	}
}
