package batch

import (
	"context"

	"github.com/google/uuid"

	domcol "github.com/kailas-cloud/loom/internal/domain/collection"
	domdoc "github.com/kailas-cloud/loom/internal/domain/document"
	"github.com/kailas-cloud/loom/internal/task"
)

// DocumentCreator stores a single document and fans it out to the live
// bindings of its collection.
type DocumentCreator interface {
	Create(ctx context.Context, collectionID, content, title string, meta map[string]any) (domdoc.Document, task.Manifest, error)
}

// DocumentDeleter deletes a document from storage.
type DocumentDeleter interface {
	Delete(ctx context.Context, id uuid.UUID) error
}

// CollectionReader reads collections for existence checks.
type CollectionReader interface {
	Get(ctx context.Context, id string) (domcol.Collection, error)
}
