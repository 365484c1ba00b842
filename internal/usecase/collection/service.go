package collection

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/kailas-cloud/loom/internal/domain"
	domcol "github.com/kailas-cloud/loom/internal/domain/collection"
)

// Update carries the mutable collection attributes. Nil fields keep their
// current value.
type Update struct {
	Description *string
	Config      map[string]any
}

// Service handles collection CRUD operations.
type Service struct {
	repo      Repository
	documents DocumentCounter
	bindings  BindingDetacher
	logger    *zap.Logger
}

// New creates a collection service.
func New(repo Repository, documents DocumentCounter, bindings BindingDetacher, logger *zap.Logger) *Service {
	return &Service{repo: repo, documents: documents, bindings: bindings, logger: logger}
}

// Create validates and stores a new collection.
func (s *Service) Create(ctx context.Context, id, description string, config map[string]any) (domcol.Collection, error) {
	col, err := domcol.New(id, description, config)
	if err != nil {
		return domcol.Collection{}, fmt.Errorf("validate collection: %w", err)
	}

	if err := s.repo.Create(ctx, col); err != nil {
		return domcol.Collection{}, fmt.Errorf("create collection %q: %w", id, err)
	}

	return col, nil
}

// Get retrieves a collection by id.
func (s *Service) Get(ctx context.Context, id string) (domcol.Collection, error) {
	col, err := s.repo.Get(ctx, id)
	if err != nil {
		return domcol.Collection{}, fmt.Errorf("get collection %q: %w", id, err)
	}
	return col, nil
}

// List returns all collections.
func (s *Service) List(ctx context.Context) ([]domcol.Collection, error) {
	cols, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	return cols, nil
}

// Update applies a partial update to a collection.
func (s *Service) Update(ctx context.Context, id string, upd Update) (domcol.Collection, error) {
	col, err := s.repo.Get(ctx, id)
	if err != nil {
		return domcol.Collection{}, fmt.Errorf("get collection %q: %w", id, err)
	}

	if upd.Description != nil {
		col.SetDescription(*upd.Description)
	}
	if upd.Config != nil {
		col.SetConfig(upd.Config)
	}

	if err := s.repo.Update(ctx, col); err != nil {
		return domcol.Collection{}, fmt.Errorf("update collection %q: %w", id, err)
	}
	return col, nil
}

// Delete removes a collection and reports how many documents went with it.
// A non-empty collection is only deleted when deleteDocuments is set;
// documents then cascade away in storage. Bindings that pointed at the
// collection are flipped to detached rather than removed.
func (s *Service) Delete(ctx context.Context, id string, deleteDocuments bool) (int64, error) {
	docs, err := s.documents.CountByCollection(ctx, id)
	if err != nil {
		return 0, fmt.Errorf("count documents of %q: %w", id, err)
	}
	if docs > 0 && !deleteDocuments {
		return 0, fmt.Errorf("%w: collection %q still holds %d documents; set delete_documents to remove them",
			domain.ErrValidation, id, docs)
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return 0, fmt.Errorf("delete collection %q: %w", id, err)
	}

	detached, err := s.bindings.DetachByCollection(ctx, id)
	if err != nil {
		return docs, fmt.Errorf("detach bindings of %q: %w", id, err)
	}

	s.logger.Info("Collection deleted",
		zap.String("collection_id", id),
		zap.Int64("documents_deleted", docs),
		zap.Int64("bindings_detached", detached),
	)
	return docs, nil
}
