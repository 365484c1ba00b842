package binding

import (
	"context"

	dombind "github.com/kailas-cloud/loom/internal/domain/binding"
	domcol "github.com/kailas-cloud/loom/internal/domain/collection"
	domdoc "github.com/kailas-cloud/loom/internal/domain/document"
	"github.com/kailas-cloud/loom/internal/domain/index"
	"github.com/kailas-cloud/loom/internal/domain/transformer"
	"github.com/kailas-cloud/loom/internal/schema"
	"github.com/kailas-cloud/loom/internal/task"
)

// Repository defines the storage contract for bindings.
type Repository interface {
	Create(ctx context.Context, b *dombind.Binding) error
	Get(ctx context.Context, id int64) (dombind.Binding, error)
	List(ctx context.Context) ([]dombind.Binding, error)
	ListByCollection(ctx context.Context, collectionID string, statuses ...dombind.Status) ([]dombind.Binding, error)
	Update(ctx context.Context, b dombind.Binding) error
	Delete(ctx context.Context, id int64) error
}

// TransformerReader resolves transformer declarations.
type TransformerReader interface {
	Get(ctx context.Context, id string) (transformer.Transformer, error)
}

// IndexReader resolves index definitions.
type IndexReader interface {
	Get(ctx context.Context, id string) (index.Index, error)
}

// SchemaManager materializes index tables.
type SchemaManager interface {
	TableExists(ctx context.Context, indexID string) (bool, error)
	CreateTable(ctx context.Context, idx index.Index) (schema.Layout, bool, error)
}

// CollectionReader reads collections for file-storage detection.
type CollectionReader interface {
	Get(ctx context.Context, id string) (domcol.Collection, error)
}

// DocumentSource pages through a collection's documents.
type DocumentSource interface {
	List(ctx context.Context, collectionID, cursor string, limit int) (
		docs []domdoc.Document, nextCursor string, err error,
	)
}

// Dispatcher enqueues task messages.
type Dispatcher interface {
	Dispatch(ctx context.Context, band task.Band, msg task.Message) (string, error)
}

// LocatorRefresher re-signs stale content locators before dispatch. The
// returned document carries the fresh URL; the bool reports whether a
// refresh happened.
type LocatorRefresher interface {
	Refresh(ctx context.Context, doc domdoc.Document) (domdoc.Document, bool, error)
}
