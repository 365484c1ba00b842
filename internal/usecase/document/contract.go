package document

import (
	"context"

	"github.com/google/uuid"

	domcol "github.com/kailas-cloud/loom/internal/domain/collection"
	domdoc "github.com/kailas-cloud/loom/internal/domain/document"
	"github.com/kailas-cloud/loom/internal/task"
)

// Repository defines the storage contract for documents.
type Repository interface {
	Create(ctx context.Context, doc domdoc.Document) error
	Get(ctx context.Context, id uuid.UUID) (domdoc.Document, error)
	List(ctx context.Context, collectionID, cursor string, limit int) (
		docs []domdoc.Document, nextCursor string, err error,
	)
	Update(ctx context.Context, doc domdoc.Document) error
	Delete(ctx context.Context, id uuid.UUID) error
	DeleteByCollection(ctx context.Context, collectionID string) (int64, error)
}

// CollectionReader reads collections for existence checks.
type CollectionReader interface {
	Get(ctx context.Context, id string) (domcol.Collection, error)
}

// TaskGenerator fans an ingested document out to its collection's live
// bindings.
type TaskGenerator interface {
	GenerateTasksForDocument(ctx context.Context, doc domdoc.Document) (task.Manifest, error)
}
