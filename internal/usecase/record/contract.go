package record

import (
	"context"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"

	"github.com/kailas-cloud/loom/internal/domain"
	domdoc "github.com/kailas-cloud/loom/internal/domain/document"
	domrec "github.com/kailas-cloud/loom/internal/domain/record"
	"github.com/kailas-cloud/loom/internal/schema"
)

// Repository reads rows of index tables, shaped by a layout.
type Repository interface {
	List(ctx context.Context, layout schema.Layout, limit, offset int) ([]domrec.Record, error)
	Count(ctx context.Context, layout schema.Layout) (int64, error)
	KNN(ctx context.Context, layout schema.Layout, field string, vector pgvector.Vector, k int) ([]domrec.Hit, error)
}

// LayoutSource resolves cached record layouts by index id.
type LayoutSource interface {
	Layout(ctx context.Context, indexID string) (schema.Layout, error)
}

// DocumentReader joins hits with their source documents.
type DocumentReader interface {
	GetMulti(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]domdoc.Document, error)
}

// Embedder vectorizes query text.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}
