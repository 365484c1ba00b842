package chi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gochi "github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	dombatch "github.com/kailas-cloud/loom/internal/domain/batch"
	dombind "github.com/kailas-cloud/loom/internal/domain/binding"
	domcol "github.com/kailas-cloud/loom/internal/domain/collection"
	domdoc "github.com/kailas-cloud/loom/internal/domain/document"
	domidx "github.com/kailas-cloud/loom/internal/domain/index"
	domrec "github.com/kailas-cloud/loom/internal/domain/record"
	domtrans "github.com/kailas-cloud/loom/internal/domain/transformer"
	"github.com/kailas-cloud/loom/internal/schema"
	"github.com/kailas-cloud/loom/internal/task"
	batchuc "github.com/kailas-cloud/loom/internal/usecase/batch"
	collectionuc "github.com/kailas-cloud/loom/internal/usecase/collection"
	documentuc "github.com/kailas-cloud/loom/internal/usecase/document"
	healthuc "github.com/kailas-cloud/loom/internal/usecase/health"
	recorduc "github.com/kailas-cloud/loom/internal/usecase/record"
	transformeruc "github.com/kailas-cloud/loom/internal/usecase/transformer"
)

var testTime = time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)

// --- Mocks ---

type mockCollections struct {
	createFn func(ctx context.Context, id, description string, config map[string]any) (domcol.Collection, error)
	getFn    func(ctx context.Context, id string) (domcol.Collection, error)
	listFn   func(ctx context.Context) ([]domcol.Collection, error)
	updateFn func(ctx context.Context, id string, upd collectionuc.Update) (domcol.Collection, error)
	deleteFn func(ctx context.Context, id string, deleteDocuments bool) (int64, error)
}

func (m *mockCollections) Create(ctx context.Context, id, description string, config map[string]any) (domcol.Collection, error) {
	if m.createFn != nil {
		return m.createFn(ctx, id, description, config)
	}
	return testCollection(id), nil
}

func (m *mockCollections) Get(ctx context.Context, id string) (domcol.Collection, error) {
	if m.getFn != nil {
		return m.getFn(ctx, id)
	}
	return testCollection(id), nil
}

func (m *mockCollections) List(ctx context.Context) ([]domcol.Collection, error) {
	if m.listFn != nil {
		return m.listFn(ctx)
	}
	return nil, nil
}

func (m *mockCollections) Update(ctx context.Context, id string, upd collectionuc.Update) (domcol.Collection, error) {
	if m.updateFn != nil {
		return m.updateFn(ctx, id, upd)
	}
	return testCollection(id), nil
}

func (m *mockCollections) Delete(ctx context.Context, id string, deleteDocuments bool) (int64, error) {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, id, deleteDocuments)
	}
	return 0, nil
}

type mockDocuments struct {
	createFn   func(ctx context.Context, collectionID, content, title string, meta map[string]any) (domdoc.Document, task.Manifest, error)
	getFn      func(ctx context.Context, id uuid.UUID) (domdoc.Document, error)
	listFn     func(ctx context.Context, collectionID, cursor string, limit int) ([]domdoc.Document, string, error)
	updateFn   func(ctx context.Context, id uuid.UUID, upd documentuc.Update) (domdoc.Document, task.Manifest, error)
	deleteFn   func(ctx context.Context, id uuid.UUID) error
	deleteCoFn func(ctx context.Context, collectionID string) (int64, error)
}

func (m *mockDocuments) Create(ctx context.Context, collectionID, content, title string, meta map[string]any) (domdoc.Document, task.Manifest, error) {
	if m.createFn != nil {
		return m.createFn(ctx, collectionID, content, title, meta)
	}
	return testDocument(collectionID, content), nil, nil
}

func (m *mockDocuments) Get(ctx context.Context, id uuid.UUID) (domdoc.Document, error) {
	if m.getFn != nil {
		return m.getFn(ctx, id)
	}
	return domdoc.Reconstruct(id, "articles", "content", "", nil, testTime, testTime), nil
}

func (m *mockDocuments) List(ctx context.Context, collectionID, cursor string, limit int) ([]domdoc.Document, string, error) {
	if m.listFn != nil {
		return m.listFn(ctx, collectionID, cursor, limit)
	}
	return nil, "", nil
}

func (m *mockDocuments) Update(ctx context.Context, id uuid.UUID, upd documentuc.Update) (domdoc.Document, task.Manifest, error) {
	if m.updateFn != nil {
		return m.updateFn(ctx, id, upd)
	}
	return domdoc.Reconstruct(id, "articles", "content", "", nil, testTime, testTime), nil, nil
}

func (m *mockDocuments) Delete(ctx context.Context, id uuid.UUID) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, id)
	}
	return nil
}

func (m *mockDocuments) DeleteByCollection(ctx context.Context, collectionID string) (int64, error) {
	if m.deleteCoFn != nil {
		return m.deleteCoFn(ctx, collectionID)
	}
	return 0, nil
}

type mockBatch struct {
	addFn    func(ctx context.Context, collectionID string, items []batchuc.Item) []batchuc.AddResult
	deleteFn func(ctx context.Context, ids []string) []dombatch.Result
}

func (m *mockBatch) Add(ctx context.Context, collectionID string, items []batchuc.Item) []batchuc.AddResult {
	if m.addFn != nil {
		return m.addFn(ctx, collectionID, items)
	}
	return nil
}

func (m *mockBatch) Delete(ctx context.Context, ids []string) []dombatch.Result {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, ids)
	}
	return nil
}

type mockTransformers struct {
	createFn func(ctx context.Context, id, path, description string) (domtrans.Transformer, error)
	getFn    func(ctx context.Context, id string) (domtrans.Transformer, error)
	listFn   func(ctx context.Context) ([]domtrans.Transformer, error)
	updateFn func(ctx context.Context, id string, upd transformeruc.Update) (domtrans.Transformer, error)
	deleteFn func(ctx context.Context, id string) error
}

func (m *mockTransformers) Create(ctx context.Context, id, path, description string) (domtrans.Transformer, error) {
	if m.createFn != nil {
		return m.createFn(ctx, id, path, description)
	}
	return testTransformer(id), nil
}

func (m *mockTransformers) Get(ctx context.Context, id string) (domtrans.Transformer, error) {
	if m.getFn != nil {
		return m.getFn(ctx, id)
	}
	return testTransformer(id), nil
}

func (m *mockTransformers) List(ctx context.Context) ([]domtrans.Transformer, error) {
	if m.listFn != nil {
		return m.listFn(ctx)
	}
	return nil, nil
}

func (m *mockTransformers) Update(ctx context.Context, id string, upd transformeruc.Update) (domtrans.Transformer, error) {
	if m.updateFn != nil {
		return m.updateFn(ctx, id, upd)
	}
	return testTransformer(id), nil
}

func (m *mockTransformers) Delete(ctx context.Context, id string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, id)
	}
	return nil
}

type mockIndexes struct {
	createFn      func(ctx context.Context, id, description string, fields []domidx.Field, materialize bool) (domidx.Index, error)
	getFn         func(ctx context.Context, id string) (domidx.Index, error)
	listFn        func(ctx context.Context) ([]domidx.Index, error)
	materializeFn func(ctx context.Context, id string) (schema.Layout, bool, error)
	deleteFn      func(ctx context.Context, id string, dropTable bool) error
}

func (m *mockIndexes) Create(ctx context.Context, id, description string, fields []domidx.Field, materialize bool) (domidx.Index, error) {
	if m.createFn != nil {
		return m.createFn(ctx, id, description, fields, materialize)
	}
	return testIndex(id), nil
}

func (m *mockIndexes) Get(ctx context.Context, id string) (domidx.Index, error) {
	if m.getFn != nil {
		return m.getFn(ctx, id)
	}
	return testIndex(id), nil
}

func (m *mockIndexes) List(ctx context.Context) ([]domidx.Index, error) {
	if m.listFn != nil {
		return m.listFn(ctx)
	}
	return nil, nil
}

func (m *mockIndexes) Materialize(ctx context.Context, id string) (schema.Layout, bool, error) {
	if m.materializeFn != nil {
		return m.materializeFn(ctx, id)
	}
	return schema.Layout{IndexID: id, Table: domidx.TablePrefix + id}, true, nil
}

func (m *mockIndexes) Delete(ctx context.Context, id string, dropTable bool) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, id, dropTable)
	}
	return nil
}

type mockBindings struct {
	createFn  func(ctx context.Context, b *dombind.Binding) error
	getFn     func(ctx context.Context, id int64) (dombind.Binding, error)
	listFn    func(ctx context.Context) ([]dombind.Binding, error)
	updateFn  func(ctx context.Context, b dombind.Binding) error
	deleteFn  func(ctx context.Context, id int64) error
	processFn func(ctx context.Context, b dombind.Binding, createMissingIndexTable bool) (dombind.Binding, task.Manifest, error)
}

func (m *mockBindings) Create(ctx context.Context, b *dombind.Binding) error {
	if m.createFn != nil {
		return m.createFn(ctx, b)
	}
	b.SetID(1)
	return nil
}

func (m *mockBindings) Get(ctx context.Context, id int64) (dombind.Binding, error) {
	if m.getFn != nil {
		return m.getFn(ctx, id)
	}
	return testBinding(id, dombind.StatusOn), nil
}

func (m *mockBindings) List(ctx context.Context) ([]dombind.Binding, error) {
	if m.listFn != nil {
		return m.listFn(ctx)
	}
	return nil, nil
}

func (m *mockBindings) Update(ctx context.Context, b dombind.Binding) error {
	if m.updateFn != nil {
		return m.updateFn(ctx, b)
	}
	return nil
}

func (m *mockBindings) Delete(ctx context.Context, id int64) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, id)
	}
	return nil
}

func (m *mockBindings) ProcessBinding(ctx context.Context, b dombind.Binding, createMissingIndexTable bool) (dombind.Binding, task.Manifest, error) {
	if m.processFn != nil {
		return m.processFn(ctx, b, createMissingIndexTable)
	}
	_ = b.SetStatus(dombind.StatusOn)
	return b, task.Manifest{}, nil
}

type mockRecords struct {
	listFn  func(ctx context.Context, indexID string, limit, offset int) ([]domrec.Record, error)
	countFn func(ctx context.Context, indexID string) (int64, error)
	queryFn func(ctx context.Context, q recorduc.Query) ([]recorduc.Hit, error)
}

func (m *mockRecords) List(ctx context.Context, indexID string, limit, offset int) ([]domrec.Record, error) {
	if m.listFn != nil {
		return m.listFn(ctx, indexID, limit, offset)
	}
	return nil, nil
}

func (m *mockRecords) Count(ctx context.Context, indexID string) (int64, error) {
	if m.countFn != nil {
		return m.countFn(ctx, indexID)
	}
	return 0, nil
}

func (m *mockRecords) Query(ctx context.Context, q recorduc.Query) ([]recorduc.Hit, error) {
	if m.queryFn != nil {
		return m.queryFn(ctx, q)
	}
	return nil, nil
}

type mockHealth struct {
	checkFn func(ctx context.Context) healthuc.Report
}

func (m *mockHealth) Check(ctx context.Context) healthuc.Report {
	if m.checkFn != nil {
		return m.checkFn(ctx)
	}
	return healthuc.Report{
		Status: healthuc.Healthy,
		Checks: map[string]healthuc.CheckResult{"postgres": healthuc.CheckOK},
	}
}

// --- Fixtures ---

func testCollection(id string) domcol.Collection {
	return domcol.Reconstruct(id, "test collection", map[string]any{domcol.ConfigStoreFiles: true}, testTime, testTime)
}

func testDocument(collectionID, content string) domdoc.Document {
	return domdoc.Reconstruct(uuid.New(), collectionID, content, "", nil, testTime, testTime)
}

func testTransformer(id string) domtrans.Transformer {
	return domtrans.Reconstruct(id, "text.counter", "counts things", testTime, testTime)
}

func testIndex(id string) domidx.Index {
	text, _ := domidx.NewField("text", domidx.TypeText, false)
	return domidx.Reconstruct(id, "test index", []domidx.Field{text}, testTime, testTime)
}

func testBinding(id int64, status dombind.Status) dombind.Binding {
	return dombind.Reconstruct(id, "articles", "text.counter", "counts", "",
		map[string]any{}, map[string]any{}, nil, status, testTime, testTime)
}

func testRecord() domrec.Record {
	return domrec.Reconstruct(uuid.New(), uuid.New(), 1, uuid.NewString(), "",
		map[string]any{}, map[string]any{"n_words": int64(4)}, testTime, testTime)
}

// --- Server harness ---

type testServer struct {
	collections  *mockCollections
	documents    *mockDocuments
	batch        *mockBatch
	transformers *mockTransformers
	indexes      *mockIndexes
	bindings     *mockBindings
	records      *mockRecords
	health       *mockHealth
	handler      http.Handler
}

func newTestServer() *testServer {
	ts := &testServer{
		collections:  &mockCollections{},
		documents:    &mockDocuments{},
		batch:        &mockBatch{},
		transformers: &mockTransformers{},
		indexes:      &mockIndexes{},
		bindings:     &mockBindings{},
		records:      &mockRecords{},
		health:       &mockHealth{},
	}

	srv := NewServer(ts.collections, ts.documents, ts.batch, ts.transformers,
		ts.indexes, ts.bindings, ts.records, ts.health, zap.NewNop())

	r := gochi.NewRouter()
	srv.Routes(r)
	ts.handler = r
	return ts
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader = http.NoBody
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	rr := httptest.NewRecorder()
	ts.handler.ServeHTTP(rr, req)
	return rr
}

// doRaw sends the body verbatim, for malformed-payload cases.
func (ts *testServer) doRaw(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rr := httptest.NewRecorder()
	ts.handler.ServeHTTP(rr, req)
	return rr
}

func decodeBody[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rr.Body).Decode(&v); err != nil {
		t.Fatalf("decode response body: %v", err)
	}
	return v
}
