package document

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	domdoc "github.com/kailas-cloud/loom/internal/domain/document"
	"github.com/kailas-cloud/loom/internal/task"
)

// Update carries the partial-update fields: nil pointers leave the stored
// value alone, a nil meta map keeps the stored map.
type Update struct {
	Content *string
	Title   *string
	Meta    map[string]any
}

// Service handles document CRUD and the ingestion fan-out.
type Service struct {
	repo            Repository
	colls           CollectionReader
	tasks           TaskGenerator
	defaultPageSize int
	maxPageSize     int
}

// New creates a document service.
func New(repo Repository, colls CollectionReader, tasks TaskGenerator) *Service {
	return &Service{
		repo:            repo,
		colls:           colls,
		tasks:           tasks,
		defaultPageSize: 20,
		maxPageSize:     100,
	}
}

// WithPagination configures page size limits.
func (s *Service) WithPagination(defaultPageSize, maxPageSize int) *Service {
	if defaultPageSize > 0 {
		s.defaultPageSize = defaultPageSize
	}
	if maxPageSize > 0 {
		s.maxPageSize = maxPageSize
	}
	return s
}

// Create stores a new document and dispatches one task per live binding of
// its collection. The document survives a fan-out failure: the returned
// manifest then holds whatever was dispatched before the error.
func (s *Service) Create(
	ctx context.Context, collectionID, content, title string, meta map[string]any,
) (domdoc.Document, task.Manifest, error) {
	if _, err := s.colls.Get(ctx, collectionID); err != nil {
		return domdoc.Document{}, nil, fmt.Errorf("get collection %q: %w", collectionID, err)
	}

	doc, err := domdoc.New(collectionID, content, title, meta)
	if err != nil {
		return domdoc.Document{}, nil, fmt.Errorf("validate document: %w", err)
	}
	if err := s.repo.Create(ctx, doc); err != nil {
		return domdoc.Document{}, nil, fmt.Errorf("create document: %w", err)
	}

	manifest, err := s.tasks.GenerateTasksForDocument(ctx, doc)
	if err != nil {
		return doc, manifest, fmt.Errorf("generate tasks for document %s: %w", doc.ID(), err)
	}
	return doc, manifest, nil
}

// Get retrieves a document by id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (domdoc.Document, error) {
	doc, err := s.repo.Get(ctx, id)
	if err != nil {
		return domdoc.Document{}, fmt.Errorf("get document %s: %w", id, err)
	}
	return doc, nil
}

// List returns a page of the collection's documents with a keyset cursor.
func (s *Service) List(
	ctx context.Context, collectionID, cursor string, limit int,
) ([]domdoc.Document, string, error) {
	if _, err := s.colls.Get(ctx, collectionID); err != nil {
		return nil, "", fmt.Errorf("get collection %q: %w", collectionID, err)
	}

	if limit <= 0 {
		limit = s.defaultPageSize
	}
	if limit > s.maxPageSize {
		limit = s.maxPageSize
	}

	docs, nextCursor, err := s.repo.List(ctx, collectionID, cursor, limit)
	if err != nil {
		return nil, "", fmt.Errorf("list documents of %q: %w", collectionID, err)
	}
	return docs, nextCursor, nil
}

// Update applies a partial update and re-runs the binding fan-out, so indexes
// track the new content.
func (s *Service) Update(ctx context.Context, id uuid.UUID, upd Update) (domdoc.Document, task.Manifest, error) {
	doc, err := s.repo.Get(ctx, id)
	if err != nil {
		return domdoc.Document{}, nil, fmt.Errorf("get document %s: %w", id, err)
	}

	if upd.Content != nil {
		doc.SetContent(*upd.Content)
	}
	if upd.Title != nil {
		doc.SetTitle(*upd.Title)
	}
	if upd.Meta != nil {
		doc.SetMeta(upd.Meta)
	}

	if err := s.repo.Update(ctx, doc); err != nil {
		return domdoc.Document{}, nil, fmt.Errorf("update document %s: %w", id, err)
	}

	manifest, err := s.tasks.GenerateTasksForDocument(ctx, doc)
	if err != nil {
		return doc, manifest, fmt.Errorf("generate tasks for document %s: %w", id, err)
	}
	return doc, manifest, nil
}

// Delete removes a document. Its index records cascade away in storage.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete document %s: %w", id, err)
	}
	return nil
}

// DeleteByCollection removes every document of a collection and reports the
// count.
func (s *Service) DeleteByCollection(ctx context.Context, collectionID string) (int64, error) {
	if _, err := s.colls.Get(ctx, collectionID); err != nil {
		return 0, fmt.Errorf("get collection %q: %w", collectionID, err)
	}

	n, err := s.repo.DeleteByCollection(ctx, collectionID)
	if err != nil {
		return 0, fmt.Errorf("delete documents of %q: %w", collectionID, err)
	}
	return n, nil
}
