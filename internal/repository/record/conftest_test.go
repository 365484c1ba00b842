package record

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/kailas-cloud/loom/internal/db/postgres"
	"github.com/kailas-cloud/loom/internal/domain/index"
	domrec "github.com/kailas-cloud/loom/internal/domain/record"
	"github.com/kailas-cloud/loom/internal/schema"
)

// mockStore implements the consumer interface for tests.
type mockStore struct {
	queryFn    func(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	queryRowFn func(ctx context.Context, sql string, args ...any) pgx.Row
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

var (
	testTime  = time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)
	testRecID = uuid.MustParse("11111111-1111-1111-1111-111111111111")
	testDocID = uuid.MustParse("22222222-2222-2222-2222-222222222222")
)

// testLayout builds a word_stats layout with one scalar and one cosine
// embedding field.
func testLayout(t *testing.T, metric index.Distance) schema.Layout {
	t.Helper()
	nWords, err := index.NewField("n_words", index.TypeInt, true)
	if err != nil {
		t.Fatalf("NewField(n_words): %v", err)
	}
	emb, err := index.NewEmbeddingField("embedding", 3, metric, "")
	if err != nil {
		t.Fatalf("NewEmbeddingField: %v", err)
	}
	return schema.Layout{
		IndexID: "word_stats",
		Table:   index.TablePrefix + "word_stats",
		Columns: []schema.Column{
			{Name: domrec.ColRecordID, SQLType: "uuid PRIMARY KEY", Reserved: true},
			{Name: domrec.ColDocumentID, SQLType: "uuid", Reserved: true},
			{Name: domrec.ColBindingID, SQLType: "bigint", Reserved: true},
			{Name: domrec.ColTaskID, SQLType: "text", Reserved: true},
			{Name: domrec.ColCustomID, SQLType: "text", Reserved: true},
			{Name: domrec.ColMeta, SQLType: "jsonb", Reserved: true},
			{Name: domrec.ColCreatedAt, SQLType: "timestamptz", Reserved: true},
			{Name: domrec.ColUpdatedAt, SQLType: "timestamptz", Reserved: true},
			{Name: "n_words", SQLType: "bigint", Field: nWords},
			{Name: "embedding", SQLType: "vector(3)", Field: emb},
		},
	}
}

func ptr[T any](v T) *T { return &v }

// populatedRow is a fully filled result row in selectColumns order, without
// the distance column.
func populatedRow(words int64, embedding any) []any {
	return []any{
		testRecID, ptr(testDocID), ptr(int64(7)), ptr("task-1"), (*string)(nil),
		[]byte(`{"source":"test"}`), testTime, testTime,
		words, embedding,
	}
}

var recordCols = []string{
	"index_record_id", "document_id", "binding_id", "task_id", "custom_id",
	"meta", "created_at", "updated_at", "n_words", "embedding",
}
