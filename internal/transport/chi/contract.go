package chi

import (
	"context"

	"github.com/google/uuid"

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

// CollectionService is the collection usecase surface the API exposes.
type CollectionService interface {
	Create(ctx context.Context, id, description string, config map[string]any) (domcol.Collection, error)
	Get(ctx context.Context, id string) (domcol.Collection, error)
	List(ctx context.Context) ([]domcol.Collection, error)
	Update(ctx context.Context, id string, upd collectionuc.Update) (domcol.Collection, error)
	Delete(ctx context.Context, id string, deleteDocuments bool) (int64, error)
}

// DocumentService is the document usecase surface the API exposes.
type DocumentService interface {
	Create(ctx context.Context, collectionID, content, title string, meta map[string]any) (domdoc.Document, task.Manifest, error)
	Get(ctx context.Context, id uuid.UUID) (domdoc.Document, error)
	List(ctx context.Context, collectionID, cursor string, limit int) ([]domdoc.Document, string, error)
	Update(ctx context.Context, id uuid.UUID, upd documentuc.Update) (domdoc.Document, task.Manifest, error)
	Delete(ctx context.Context, id uuid.UUID) error
	DeleteByCollection(ctx context.Context, collectionID string) (int64, error)
}

// BatchService handles multi-document operations with per-item results.
type BatchService interface {
	Add(ctx context.Context, collectionID string, items []batchuc.Item) []batchuc.AddResult
	Delete(ctx context.Context, ids []string) []dombatch.Result
}

// TransformerService is the transformer usecase surface the API exposes.
type TransformerService interface {
	Create(ctx context.Context, id, path, description string) (domtrans.Transformer, error)
	Get(ctx context.Context, id string) (domtrans.Transformer, error)
	List(ctx context.Context) ([]domtrans.Transformer, error)
	Update(ctx context.Context, id string, upd transformeruc.Update) (domtrans.Transformer, error)
	Delete(ctx context.Context, id string) error
}

// IndexService is the index usecase surface the API exposes.
type IndexService interface {
	Create(ctx context.Context, id, description string, fields []domidx.Field, materialize bool) (domidx.Index, error)
	Get(ctx context.Context, id string) (domidx.Index, error)
	List(ctx context.Context) ([]domidx.Index, error)
	Materialize(ctx context.Context, id string) (schema.Layout, bool, error)
	Delete(ctx context.Context, id string, dropTable bool) error
}

// BindingService is the binding usecase surface the API exposes.
type BindingService interface {
	Create(ctx context.Context, b *dombind.Binding) error
	Get(ctx context.Context, id int64) (dombind.Binding, error)
	List(ctx context.Context) ([]dombind.Binding, error)
	Update(ctx context.Context, b dombind.Binding) error
	Delete(ctx context.Context, id int64) error
	ProcessBinding(ctx context.Context, b dombind.Binding, createMissingIndexTable bool) (dombind.Binding, task.Manifest, error)
}

// RecordService is the index record usecase surface the API exposes.
type RecordService interface {
	List(ctx context.Context, indexID string, limit, offset int) ([]domrec.Record, error)
	Count(ctx context.Context, indexID string) (int64, error)
	Query(ctx context.Context, q recorduc.Query) ([]recorduc.Hit, error)
}

// HealthService aggregates component health checks.
type HealthService interface {
	Check(ctx context.Context) healthuc.Report
}
