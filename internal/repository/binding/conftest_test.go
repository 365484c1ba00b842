package binding

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/kailas-cloud/loom/internal/db/postgres"
	dombind "github.com/kailas-cloud/loom/internal/domain/binding"
	"github.com/kailas-cloud/loom/internal/domain/filter"
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

// testFilter builds a single-condition filter on meta.type == "image".
func testFilter(t *testing.T) *filter.Filter {
	t.Helper()
	cond, err := filter.NewCondition("meta.type", filter.OpEquals, "image", false)
	if err != nil {
		t.Fatalf("build condition: %v", err)
	}
	f, err := filter.New([]filter.Condition{cond}, filter.CombinationAnd)
	if err != nil {
		t.Fatalf("build filter: %v", err)
	}
	return &f
}

// testBinding reconstructs a persisted-shape binding.
func testBinding(t *testing.T, f *filter.Filter) dombind.Binding {
	t.Helper()
	return dombind.Reconstruct(
		7, "articles", "counter1", "word_stats", "word statistics",
		map[string]any{"band": "transform"},
		map[string]any{dombind.ParamIndexFields: []string{"n_words"}},
		f, dombind.StatusOn, testTime, testTime,
	)
}

// bindingRow renders a binding as a fake result row in selectColumns order.
func bindingRow(t *testing.T, b dombind.Binding) []any {
	t.Helper()
	execJSON, err := json.Marshal(b.ExecutionParams())
	if err != nil {
		t.Fatalf("marshal execution params: %v", err)
	}
	transJSON, err := json.Marshal(b.TransformerParams())
	if err != nil {
		t.Fatalf("marshal transformer params: %v", err)
	}
	var filterJSON []byte
	if b.Filter() != nil {
		filterJSON, err = json.Marshal(b.Filter())
		if err != nil {
			t.Fatalf("marshal filter: %v", err)
		}
	}
	return []any{
		b.ID(), b.CollectionID(), b.TransformerID(), b.IndexID(), b.Description(),
		execJSON, transJSON, filterJSON, string(b.Status()),
		b.CreatedAt(), b.UpdatedAt(),
	}
}

var bindingCols = []string{
	"id", "collection_id", "transformer_id", "index_id", "description",
	"execution_params", "transformer_params", "filter", "status",
	"created_at", "updated_at",
}
