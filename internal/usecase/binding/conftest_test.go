package binding

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	dombind "github.com/kailas-cloud/loom/internal/domain/binding"
	domcol "github.com/kailas-cloud/loom/internal/domain/collection"
	domdoc "github.com/kailas-cloud/loom/internal/domain/document"
	"github.com/kailas-cloud/loom/internal/domain/index"
	"github.com/kailas-cloud/loom/internal/domain/transformer"
	"github.com/kailas-cloud/loom/internal/schema"
	"github.com/kailas-cloud/loom/internal/task"
)

// --- mocks (function fields; nil means a benign default) ---

type mockRepo struct {
	createFn  func(ctx context.Context, b *dombind.Binding) error
	getFn     func(ctx context.Context, id int64) (dombind.Binding, error)
	listFn    func(ctx context.Context) ([]dombind.Binding, error)
	byCollFn  func(ctx context.Context, collectionID string, statuses ...dombind.Status) ([]dombind.Binding, error)
	updateFn  func(ctx context.Context, b dombind.Binding) error
	deleteFn  func(ctx context.Context, id int64) error
	updated   []dombind.Binding
	deletions []int64
}

func (m *mockRepo) Create(ctx context.Context, b *dombind.Binding) error {
	if m.createFn == nil {
		b.SetID(1)
		return nil
	}
	return m.createFn(ctx, b)
}

func (m *mockRepo) Get(ctx context.Context, id int64) (dombind.Binding, error) {
	if m.getFn == nil {
		return dombind.Binding{}, nil
	}
	return m.getFn(ctx, id)
}

func (m *mockRepo) List(ctx context.Context) ([]dombind.Binding, error) {
	if m.listFn == nil {
		return nil, nil
	}
	return m.listFn(ctx)
}

func (m *mockRepo) ListByCollection(ctx context.Context, collectionID string, statuses ...dombind.Status) ([]dombind.Binding, error) {
	if m.byCollFn == nil {
		return nil, nil
	}
	return m.byCollFn(ctx, collectionID, statuses...)
}

func (m *mockRepo) Update(ctx context.Context, b dombind.Binding) error {
	m.updated = append(m.updated, b)
	if m.updateFn == nil {
		return nil
	}
	return m.updateFn(ctx, b)
}

func (m *mockRepo) Delete(ctx context.Context, id int64) error {
	m.deletions = append(m.deletions, id)
	if m.deleteFn == nil {
		return nil
	}
	return m.deleteFn(ctx, id)
}

type mockTransformers struct {
	getFn func(ctx context.Context, id string) (transformer.Transformer, error)
}

func (m *mockTransformers) Get(ctx context.Context, id string) (transformer.Transformer, error) {
	if m.getFn == nil {
		now := time.Now()
		return transformer.Reconstruct(id, "text.counter", "", now, now), nil
	}
	return m.getFn(ctx, id)
}

type mockIndexes struct {
	getFn func(ctx context.Context, id string) (index.Index, error)
}

func (m *mockIndexes) Get(ctx context.Context, id string) (index.Index, error) {
	if m.getFn == nil {
		return fixtureIndex(id), nil
	}
	return m.getFn(ctx, id)
}

type mockSchemas struct {
	existsFn func(ctx context.Context, indexID string) (bool, error)
	createFn func(ctx context.Context, idx index.Index) (schema.Layout, bool, error)
	created  []string
}

func (m *mockSchemas) TableExists(ctx context.Context, indexID string) (bool, error) {
	if m.existsFn == nil {
		return true, nil
	}
	return m.existsFn(ctx, indexID)
}

func (m *mockSchemas) CreateTable(ctx context.Context, idx index.Index) (schema.Layout, bool, error) {
	m.created = append(m.created, idx.ID())
	if m.createFn == nil {
		return schema.Layout{IndexID: idx.ID(), Table: idx.TableName()}, true, nil
	}
	return m.createFn(ctx, idx)
}

type mockCollections struct {
	getFn func(ctx context.Context, id string) (domcol.Collection, error)
}

func (m *mockCollections) Get(ctx context.Context, id string) (domcol.Collection, error) {
	if m.getFn == nil {
		return domcol.Reconstruct(id, "", nil, time.Now(), time.Now()), nil
	}
	return m.getFn(ctx, id)
}

type mockDocs struct {
	listFn func(ctx context.Context, collectionID, cursor string, limit int) ([]domdoc.Document, string, error)
}

func (m *mockDocs) List(ctx context.Context, collectionID, cursor string, limit int) ([]domdoc.Document, string, error) {
	if m.listFn == nil {
		return nil, "", nil
	}
	return m.listFn(ctx, collectionID, cursor, limit)
}

type dispatchCall struct {
	band task.Band
	msg  task.Message
}

type mockDispatcher struct {
	dispatchFn func(ctx context.Context, band task.Band, msg task.Message) (string, error)
	calls      []dispatchCall
}

func (m *mockDispatcher) Dispatch(ctx context.Context, band task.Band, msg task.Message) (string, error) {
	m.calls = append(m.calls, dispatchCall{band: band, msg: msg})
	if m.dispatchFn == nil {
		return "task-" + msg.Document.ID, nil
	}
	return m.dispatchFn(ctx, band, msg)
}

type mockLocators struct {
	refreshFn func(ctx context.Context, doc domdoc.Document) (domdoc.Document, bool, error)
	refreshed []uuid.UUID
}

func (m *mockLocators) Refresh(ctx context.Context, doc domdoc.Document) (domdoc.Document, bool, error) {
	m.refreshed = append(m.refreshed, doc.ID())
	if m.refreshFn == nil {
		return doc, false, nil
	}
	return m.refreshFn(ctx, doc)
}

// --- fixtures ---

type testEnv struct {
	repo         *mockRepo
	transformers *mockTransformers
	indexes      *mockIndexes
	schemas      *mockSchemas
	collections  *mockCollections
	documents    *mockDocs
	dispatcher   *mockDispatcher
	locators     *mockLocators
}

func newTestService(t *testing.T) (*Service, *testEnv) {
	t.Helper()
	env := &testEnv{
		repo:         &mockRepo{},
		transformers: &mockTransformers{},
		indexes:      &mockIndexes{},
		schemas:      &mockSchemas{},
		collections:  &mockCollections{},
		documents:    &mockDocs{},
		dispatcher:   &mockDispatcher{},
		locators:     &mockLocators{},
	}
	svc := New(
		env.repo,
		env.transformers,
		env.indexes,
		env.schemas,
		env.collections,
		env.documents,
		env.dispatcher,
		env.locators,
		zap.NewNop(),
	)
	return svc, env
}

// fixtureIndex builds the two-field index definition the mocks serve by
// default: text (text) and n_words (int).
func fixtureIndex(id string) index.Index {
	text, _ := index.NewField("text", index.TypeText, true)
	nWords, _ := index.NewField("n_words", index.TypeInt, true)
	now := time.Now()
	return index.Reconstruct(id, "", []index.Field{text, nWords}, now, now)
}

func testBinding(t *testing.T, params map[string]any) dombind.Binding {
	t.Helper()
	now := time.Now()
	return dombind.Reconstruct(7, "articles", "counter1", "word_stats", "",
		map[string]any{}, params, nil, dombind.StatusPending, now, now)
}

func testDoc(t *testing.T, content string, meta map[string]any) domdoc.Document {
	t.Helper()
	now := time.Now()
	return domdoc.Reconstruct(uuid.New(), "articles", content, "", meta, now, now)
}

// singlePage serves one fixed page of documents for any cursor.
func singlePage(docs ...domdoc.Document) func(context.Context, string, string, int) ([]domdoc.Document, string, error) {
	return func(_ context.Context, _, _ string, _ int) ([]domdoc.Document, string, error) {
		return docs, "", nil
	}
}
