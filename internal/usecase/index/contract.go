package index

import (
	"context"

	domidx "github.com/kailas-cloud/loom/internal/domain/index"
	"github.com/kailas-cloud/loom/internal/schema"
)

// Repository defines the storage contract for index definitions.
type Repository interface {
	Create(ctx context.Context, idx domidx.Index) error
	Get(ctx context.Context, id string) (domidx.Index, error)
	List(ctx context.Context) ([]domidx.Index, error)
	Delete(ctx context.Context, id string) error
}

// SchemaManager materializes and drops index tables.
type SchemaManager interface {
	CreateTable(ctx context.Context, idx domidx.Index) (schema.Layout, bool, error)
	DropTable(ctx context.Context, indexID string) (bool, error)
	TableExists(ctx context.Context, indexID string) (bool, error)
}

// BindingDetacher flips bindings of a deleted index to detached.
type BindingDetacher interface {
	DetachByIndex(ctx context.Context, indexID string) (int64, error)
}

// Notifier tells workers to refresh cached record layouts.
type Notifier interface {
	NotifySchemaChange(ctx context.Context, target string, modules []string) error
}
