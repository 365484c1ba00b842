package collection

import (
	"context"

	domcol "github.com/kailas-cloud/loom/internal/domain/collection"
)

// Repository defines the storage contract for collections.
type Repository interface {
	Create(ctx context.Context, col domcol.Collection) error
	Get(ctx context.Context, id string) (domcol.Collection, error)
	List(ctx context.Context) ([]domcol.Collection, error)
	Update(ctx context.Context, col domcol.Collection) error
	Delete(ctx context.Context, id string) error
}

// DocumentCounter reports how many documents a collection holds.
type DocumentCounter interface {
	CountByCollection(ctx context.Context, collectionID string) (int64, error)
}

// BindingDetacher flips bindings of a deleted collection to detached.
type BindingDetacher interface {
	DetachByCollection(ctx context.Context, collectionID string) (int64, error)
}
