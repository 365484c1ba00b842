package transformer

import (
	"context"

	domtrans "github.com/kailas-cloud/loom/internal/domain/transformer"
)

// Repository defines the storage contract for transformer declarations.
type Repository interface {
	Create(ctx context.Context, tr domtrans.Transformer) error
	Get(ctx context.Context, id string) (domtrans.Transformer, error)
	List(ctx context.Context) ([]domtrans.Transformer, error)
	Update(ctx context.Context, tr domtrans.Transformer) error
	Delete(ctx context.Context, id string) error
}

// BindingDetacher flips bindings of a deleted transformer to detached.
type BindingDetacher interface {
	DetachByTransformer(ctx context.Context, transformerID string) (int64, error)
}

// Notifier tells workers to re-resolve transformer handlers.
type Notifier interface {
	NotifySchemaChange(ctx context.Context, target string, modules []string) error
}
