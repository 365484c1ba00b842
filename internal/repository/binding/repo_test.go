package binding

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/kailas-cloud/loom/internal/db/postgres"
	"github.com/kailas-cloud/loom/internal/domain"
	dombind "github.com/kailas-cloud/loom/internal/domain/binding"
)

// --- Create ---

func TestCreate_AssignsGeneratedID(t *testing.T) {
	repo, ms := newTestRepo(t)
	ctx := context.Background()

	var gotSQL string
	var gotArgs []any
	ms.queryRowFn = func(_ context.Context, sql string, args ...any) pgx.Row {
		gotSQL = sql
		gotArgs = args
		return postgres.NewFakeRow(int64(42))
	}

	b, err := dombind.New("articles", "counter1", "word_stats", "", nil, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := repo.Create(ctx, &b); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.ID() != 42 {
		t.Errorf("expected id 42, got %d", b.ID())
	}
	if !strings.Contains(gotSQL, "INSERT INTO loom_bindings") {
		t.Errorf("unexpected sql: %s", gotSQL)
	}
	if !strings.Contains(gotSQL, "RETURNING id") {
		t.Errorf("expected RETURNING id: %s", gotSQL)
	}
	if len(gotArgs) != 10 {
		t.Fatalf("expected 10 args, got %d", len(gotArgs))
	}
	if gotArgs[7] != string(dombind.StatusPending) {
		t.Errorf("expected pending status arg, got %v", gotArgs[7])
	}
}

func TestCreate_MarshalsFilterAndParams(t *testing.T) {
	repo, ms := newTestRepo(t)
	ctx := context.Background()

	var gotArgs []any
	ms.queryRowFn = func(_ context.Context, _ string, args ...any) pgx.Row {
		gotArgs = args
		return postgres.NewFakeRow(int64(1))
	}

	b := testBinding(t, testFilter(t))
	if err := repo.Create(ctx, &b); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	transJSON, ok := gotArgs[5].([]byte)
	if !ok {
		t.Fatalf("expected jsonb transformer_params, got %T", gotArgs[5])
	}
	var trans map[string]any
	if err := json.Unmarshal(transJSON, &trans); err != nil {
		t.Fatalf("unmarshal transformer_params: %v", err)
	}
	if _, ok := trans[dombind.ParamIndexFields]; !ok {
		t.Errorf("transformer_params lost %s: %v", dombind.ParamIndexFields, trans)
	}

	filterJSON, ok := gotArgs[6].([]byte)
	if !ok {
		t.Fatalf("expected jsonb filter, got %T", gotArgs[6])
	}
	if !strings.Contains(string(filterJSON), `"meta.type"`) {
		t.Errorf("filter json missing condition field: %s", filterJSON)
	}
}

func TestCreate_NilFilterStoresNull(t *testing.T) {
	repo, ms := newTestRepo(t)
	ctx := context.Background()

	var gotArgs []any
	ms.queryRowFn = func(_ context.Context, _ string, args ...any) pgx.Row {
		gotArgs = args
		return postgres.NewFakeRow(int64(1))
	}

	b := testBinding(t, nil)
	if err := repo.Create(ctx, &b); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got, ok := gotArgs[6].([]byte); !ok || got != nil {
		t.Errorf("expected nil filter arg, got %v", gotArgs[6])
	}
}

func TestCreate_InsertError(t *testing.T) {
	repo, ms := newTestRepo(t)
	ctx := context.Background()

	ms.queryRowFn = func(_ context.Context, _ string, _ ...any) pgx.Row {
		return postgres.NewFakeRowError(errors.New("connection lost"))
	}

	b := testBinding(t, nil)
	if err := repo.Create(ctx, &b); err == nil {
		t.Fatal("expected error")
	}
}

// --- Get ---

func TestGet_HydratesAllColumns(t *testing.T) {
	repo, ms := newTestRepo(t)
	ctx := context.Background()
	want := testBinding(t, testFilter(t))

	ms.queryRowFn = func(_ context.Context, sql string, args ...any) pgx.Row {
		if !strings.Contains(sql, "WHERE id = $1") {
			t.Errorf("unexpected sql: %s", sql)
		}
		if args[0] != int64(7) {
			t.Errorf("unexpected id arg: %v", args[0])
		}
		return postgres.NewFakeRow(bindingRow(t, want)...)
	}

	got, err := repo.Get(ctx, 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID() != 7 || got.CollectionID() != "articles" || got.TransformerID() != "counter1" {
		t.Errorf("unexpected binding: %+v", got)
	}
	if got.Status() != dombind.StatusOn {
		t.Errorf("expected status on, got %s", got.Status())
	}
	if got.Filter() == nil {
		t.Fatal("expected filter to survive the round trip")
	}
	fields, ok := got.IndexFields()
	if !ok || len(fields) != 1 || fields[0] != "n_words" {
		t.Errorf("unexpected index fields: %v (ok=%v)", fields, ok)
	}
}

func TestGet_NotFound(t *testing.T) {
	repo, _ := newTestRepo(t)

	_, err := repo.Get(context.Background(), 99)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGet_NullFilterHydratesNil(t *testing.T) {
	repo, ms := newTestRepo(t)
	want := testBinding(t, nil)

	ms.queryRowFn = func(_ context.Context, _ string, _ ...any) pgx.Row {
		return postgres.NewFakeRow(bindingRow(t, want)...)
	}

	got, err := repo.Get(context.Background(), 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Filter() != nil {
		t.Errorf("expected nil filter, got %+v", got.Filter())
	}
}

// --- List ---

func TestList_ReturnsAllRows(t *testing.T) {
	repo, ms := newTestRepo(t)
	first := testBinding(t, nil)
	second := testBinding(t, testFilter(t))

	ms.queryFn = func(_ context.Context, sql string, _ ...any) (pgx.Rows, error) {
		if !strings.Contains(sql, "ORDER BY id") {
			t.Errorf("expected deterministic order: %s", sql)
		}
		return postgres.NewFakeRows(bindingCols, bindingRow(t, first), bindingRow(t, second)), nil
	}

	got, err := repo.List(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 bindings, got %d", len(got))
	}
	if got[1].Filter() == nil {
		t.Error("second binding lost its filter")
	}
}

func TestList_QueryError(t *testing.T) {
	repo, ms := newTestRepo(t)

	ms.queryFn = func(_ context.Context, _ string, _ ...any) (pgx.Rows, error) {
		return nil, errors.New("connection lost")
	}

	if _, err := repo.List(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestList_IterationError(t *testing.T) {
	repo, ms := newTestRepo(t)

	ms.queryFn = func(_ context.Context, _ string, _ ...any) (pgx.Rows, error) {
		return postgres.NewFakeRowsError(errors.New("stream cut")), nil
	}

	if _, err := repo.List(context.Background()); err == nil {
		t.Fatal("expected iteration error")
	}
}

// --- ListByCollection ---

func TestListByCollection_NoStatusFilter(t *testing.T) {
	repo, ms := newTestRepo(t)

	var gotSQL string
	var gotArgs []any
	ms.queryFn = func(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
		gotSQL = sql
		gotArgs = args
		return postgres.NewFakeRows(bindingCols), nil
	}

	got, err := repo.ListByCollection(context.Background(), "articles")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected empty result, got %d", len(got))
	}
	if strings.Contains(gotSQL, "ANY") {
		t.Errorf("unexpected status clause: %s", gotSQL)
	}
	if len(gotArgs) != 1 || gotArgs[0] != "articles" {
		t.Errorf("unexpected args: %v", gotArgs)
	}
}

func TestListByCollection_StatusNarrowing(t *testing.T) {
	repo, ms := newTestRepo(t)
	b := testBinding(t, nil)

	var gotSQL string
	var gotArgs []any
	ms.queryFn = func(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
		gotSQL = sql
		gotArgs = args
		return postgres.NewFakeRows(bindingCols, bindingRow(t, b)), nil
	}

	got, err := repo.ListByCollection(context.Background(), "articles", dombind.StatusOn)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 binding, got %d", len(got))
	}
	if !strings.Contains(gotSQL, "status = ANY($2)") {
		t.Errorf("expected status clause: %s", gotSQL)
	}
	statuses, ok := gotArgs[1].([]string)
	if !ok || len(statuses) != 1 || statuses[0] != "on" {
		t.Errorf("unexpected status args: %v", gotArgs[1])
	}
}

// --- Update ---

func TestUpdate_HappyPath(t *testing.T) {
	repo, ms := newTestRepo(t)

	var gotArgs []any
	ms.execFn = func(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
		if !strings.Contains(sql, "UPDATE loom_bindings SET") {
			t.Errorf("unexpected sql: %s", sql)
		}
		gotArgs = args
		return pgconn.NewCommandTag("UPDATE 1"), nil
	}

	if err := repo.Update(context.Background(), testBinding(t, nil)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(gotArgs) != 11 {
		t.Fatalf("expected 11 args, got %d", len(gotArgs))
	}
	if gotArgs[10] != int64(7) {
		t.Errorf("expected id as last arg, got %v", gotArgs[10])
	}
}

func TestUpdate_NotFound(t *testing.T) {
	repo, ms := newTestRepo(t)

	ms.execFn = func(_ context.Context, _ string, _ ...any) (pgconn.CommandTag, error) {
		return pgconn.NewCommandTag("UPDATE 0"), nil
	}

	err := repo.Update(context.Background(), testBinding(t, nil))
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

// --- Delete ---

func TestDelete_HappyPath(t *testing.T) {
	repo, ms := newTestRepo(t)

	ms.execFn = func(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
		if !strings.Contains(sql, "DELETE FROM loom_bindings") {
			t.Errorf("unexpected sql: %s", sql)
		}
		if args[0] != int64(7) {
			t.Errorf("unexpected id arg: %v", args[0])
		}
		return pgconn.NewCommandTag("DELETE 1"), nil
	}

	if err := repo.Delete(context.Background(), 7); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestDelete_NotFound(t *testing.T) {
	repo, ms := newTestRepo(t)

	ms.execFn = func(_ context.Context, _ string, _ ...any) (pgconn.CommandTag, error) {
		return pgconn.NewCommandTag("DELETE 0"), nil
	}

	err := repo.Delete(context.Background(), 99)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

// --- Detach ---

func TestDetachByCollection(t *testing.T) {
	repo, ms := newTestRepo(t)

	ms.execFn = func(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
		if !strings.Contains(sql, "WHERE collection_id = $2") {
			t.Errorf("unexpected sql: %s", sql)
		}
		if args[0] != "detached" || args[1] != "articles" {
			t.Errorf("unexpected args: %v", args)
		}
		return pgconn.NewCommandTag("UPDATE 3"), nil
	}

	n, err := repo.DetachByCollection(context.Background(), "articles")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 3 {
		t.Errorf("expected 3 detached, got %d", n)
	}
}

func TestDetachByIndex(t *testing.T) {
	repo, ms := newTestRepo(t)

	ms.execFn = func(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
		if !strings.Contains(sql, "WHERE index_id = $2") {
			t.Errorf("unexpected sql: %s", sql)
		}
		return pgconn.NewCommandTag("UPDATE 0"), nil
	}

	n, err := repo.DetachByIndex(context.Background(), "word_stats")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 0 {
		t.Errorf("expected 0 detached, got %d", n)
	}
}

// --- EnsureTable ---

func TestEnsureTable_CreatesTableAndIndex(t *testing.T) {
	repo, ms := newTestRepo(t)

	var ddl []string
	ms.execFn = func(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
		ddl = append(ddl, sql)
		return pgconn.NewCommandTag(""), nil
	}

	if err := repo.EnsureTable(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ddl) != 2 {
		t.Fatalf("expected 2 statements, got %d", len(ddl))
	}
	if !strings.Contains(ddl[0], "CREATE TABLE IF NOT EXISTS loom_bindings") {
		t.Errorf("unexpected ddl: %s", ddl[0])
	}
	if !strings.Contains(ddl[1], "CREATE INDEX IF NOT EXISTS") {
		t.Errorf("unexpected ddl: %s", ddl[1])
	}
}
