package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/kailas-cloud/loom/internal/db"
	"github.com/kailas-cloud/loom/internal/domain/index"
	"github.com/kailas-cloud/loom/internal/domain/record"
	"github.com/kailas-cloud/loom/internal/domain/transformer"
	"github.com/kailas-cloud/loom/internal/schema"
	"github.com/kailas-cloud/loom/internal/transform"
)

// --- mocks (function fields; nil means a benign default) ---

type mockQueue struct {
	mu       sync.Mutex
	readFn   func(ctx context.Context, group, consumer string, streams []string, count int64, block time.Duration) ([]db.StreamMessage, error)
	claimFn  func(ctx context.Context, stream, group, consumer string, minIdle time.Duration, start string, count int64) ([]db.StreamMessage, string, error)
	ackCalls []string
}

func (m *mockQueue) XReadGroup(ctx context.Context, group, consumer string, streams []string, count int64, block time.Duration) ([]db.StreamMessage, error) {
	if m.readFn == nil {
		return nil, nil
	}
	return m.readFn(ctx, group, consumer, streams, count, block)
}

func (m *mockQueue) XAck(_ context.Context, stream, _ string, ids ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		m.ackCalls = append(m.ackCalls, stream+"/"+id)
	}
	return nil
}

func (m *mockQueue) XAutoClaim(ctx context.Context, stream, group, consumer string, minIdle time.Duration, start string, count int64) ([]db.StreamMessage, string, error) {
	if m.claimFn == nil {
		return nil, "0-0", nil
	}
	return m.claimFn(ctx, stream, group, consumer, minIdle, start, count)
}

func (m *mockQueue) acked() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.ackCalls...)
}

type mockConn struct {
	execFn    func(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	released  bool
	discarded bool
}

func (m *mockConn) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if m.execFn == nil {
		return pgconn.CommandTag{}, nil
	}
	return m.execFn(ctx, sql, args...)
}

func (m *mockConn) Query(_ context.Context, _ string, _ ...any) (pgx.Rows, error) {
	return nil, nil
}

func (m *mockConn) QueryRow(_ context.Context, _ string, _ ...any) pgx.Row {
	return nil
}

func (m *mockConn) Release()                  { m.released = true }
func (m *mockConn) Discard(_ context.Context) { m.discarded = true }

type mockConns struct {
	acquireFn func(ctx context.Context) (db.Conn, error)
	acquired  int
}

func (m *mockConns) AcquireConn(ctx context.Context) (db.Conn, error) {
	m.acquired++
	if m.acquireFn == nil {
		return &mockConn{}, nil
	}
	return m.acquireFn(ctx)
}

type mockSchemas struct {
	layoutFn       func(ctx context.Context, indexID string) (schema.Layout, error)
	buildFn        func(ctx context.Context, indexID, field string) error
	invalidatedAll int
}

func (m *mockSchemas) Layout(ctx context.Context, indexID string) (schema.Layout, error) {
	if m.layoutFn == nil {
		return schema.Layout{}, nil
	}
	return m.layoutFn(ctx, indexID)
}

func (m *mockSchemas) InvalidateAll() { m.invalidatedAll++ }

func (m *mockSchemas) BuildANNIndex(ctx context.Context, indexID, field string) error {
	if m.buildFn == nil {
		return nil
	}
	return m.buildFn(ctx, indexID, field)
}

type mockTransformers struct {
	getFn func(ctx context.Context, id string) (transformer.Transformer, error)
	gets  int
}

func (m *mockTransformers) Get(ctx context.Context, id string) (transformer.Transformer, error) {
	m.gets++
	if m.getFn == nil {
		now := time.Now()
		return transformer.Reconstruct(id, transform.PathCounter, "", now, now), nil
	}
	return m.getFn(ctx, id)
}

type mockAckStore struct {
	mu      sync.Mutex
	incrs   map[string]int64
	expires map[string]time.Duration
}

func (m *mockAckStore) IncrBy(_ context.Context, key string, val int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.incrs == nil {
		m.incrs = make(map[string]int64)
	}
	m.incrs[key] += val
	return nil
}

func (m *mockAckStore) Expire(_ context.Context, key string, ttl time.Duration, _ bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.expires == nil {
		m.expires = make(map[string]time.Duration)
	}
	m.expires[key] = ttl
	return nil
}

type mockSub struct {
	subscribeFn func(ctx context.Context, channel string, handler func(channel string, payload []byte)) error
}

func (m *mockSub) Subscribe(ctx context.Context, channel string, handler func(channel string, payload []byte)) error {
	if m.subscribeFn == nil {
		<-ctx.Done()
		return nil
	}
	return m.subscribeFn(ctx, channel, handler)
}

// --- fixtures ---

type testDeps struct {
	queue        *mockQueue
	conns        *mockConns
	schemas      *mockSchemas
	transformers *mockTransformers
	acks         *mockAckStore
	sub          *mockSub
}

func newTestWorker(t *testing.T) (*Worker, *testDeps) {
	t.Helper()
	d := &testDeps{
		queue:        &mockQueue{},
		conns:        &mockConns{},
		schemas:      &mockSchemas{},
		transformers: &mockTransformers{},
		acks:         &mockAckStore{},
		sub:          &mockSub{},
	}
	d.schemas.layoutFn = func(_ context.Context, indexID string) (schema.Layout, error) {
		return testLayout(t, indexID), nil
	}

	w, err := New(Config{
		Name:       "test-consumer",
		RetryDelay: time.Millisecond,
	}, Deps{
		Queue:        d.queue,
		Conns:        d.conns,
		Schemas:      d.schemas,
		Registry:     transform.Builtins(nil),
		Transformers: d.transformers,
		Acks:         d.acks,
		Subscriber:   d.sub,
		Logger:       zap.NewNop(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return w, d
}

// testLayout declares n_words (int) and text (optional) on top of the
// reserved columns the writer touches.
func testLayout(t *testing.T, indexID string) schema.Layout {
	t.Helper()
	nWords, err := index.NewField("n_words", index.TypeInt, true)
	if err != nil {
		t.Fatalf("NewField(n_words): %v", err)
	}
	text, err := index.NewField("text", index.TypeText, true)
	if err != nil {
		t.Fatalf("NewField(text): %v", err)
	}
	return schema.Layout{
		IndexID: indexID,
		Table:   index.TablePrefix + indexID,
		Columns: []schema.Column{
			{Name: record.ColRecordID, SQLType: "uuid PRIMARY KEY", Reserved: true},
			{Name: record.ColDocumentID, SQLType: "uuid", Reserved: true},
			{Name: record.ColBindingID, SQLType: "bigint", Reserved: true},
			{Name: record.ColTaskID, SQLType: "text", Reserved: true},
			{Name: "n_words", SQLType: "bigint", Field: nWords},
			{Name: "text", SQLType: "text", Field: text},
		},
	}
}
