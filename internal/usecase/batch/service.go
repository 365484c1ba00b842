package batch

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/kailas-cloud/loom/internal/domain"
	dombatch "github.com/kailas-cloud/loom/internal/domain/batch"
	domdoc "github.com/kailas-cloud/loom/internal/domain/document"
	"github.com/kailas-cloud/loom/internal/task"
)

// MaxBatchSize is the maximum number of items per batch request.
const MaxBatchSize = 100

// Item is one document payload in a batch add.
type Item struct {
	Content string
	Title   string
	Meta    map[string]any
}

// AddResult pairs the per-item outcome with what the create produced. On a
// fan-out failure the document is already stored: Document and Manifest then
// report what survived.
type AddResult struct {
	Result   dombatch.Result
	Document domdoc.Document
	Manifest task.Manifest
}

// Service handles batch document operations with per-item error reporting.
type Service struct {
	docs         DocumentCreator
	del          DocumentDeleter
	colls        CollectionReader
	maxBatchSize int
}

// New creates a batch service.
func New(docs DocumentCreator, del DocumentDeleter, colls CollectionReader) *Service {
	return &Service{docs: docs, del: del, colls: colls, maxBatchSize: MaxBatchSize}
}

// WithMaxBatchSize configures the maximum batch size.
func (s *Service) WithMaxBatchSize(size int) *Service {
	if size > 0 {
		s.maxBatchSize = size
	}
	return s
}

// Add stores documents one by one through the single-document path. Each item
// gets its own result: a bad document never blocks its neighbours.
func (s *Service) Add(ctx context.Context, collectionID string, items []Item) []AddResult {
	results := make([]AddResult, len(items))

	if len(items) > s.maxBatchSize {
		err := fmt.Errorf("batch size exceeds %d: %w", s.maxBatchSize, domain.ErrValidation)
		for i := range items {
			results[i] = AddResult{Result: dombatch.NewError("", err)}
		}
		return results
	}

	if _, err := s.colls.Get(ctx, collectionID); err != nil {
		wrapped := fmt.Errorf("get collection %q: %w", collectionID, err)
		for i := range items {
			results[i] = AddResult{Result: dombatch.NewError("", wrapped)}
		}
		return results
	}

	for i, item := range items {
		doc, manifest, err := s.docs.Create(ctx, collectionID, item.Content, item.Title, item.Meta)
		if err != nil {
			var id string
			if doc.ID() != uuid.Nil {
				id = doc.ID().String()
			}
			results[i] = AddResult{Result: dombatch.NewError(id, err), Document: doc, Manifest: manifest}
			continue
		}
		results[i] = AddResult{Result: dombatch.NewOK(doc.ID().String()), Document: doc, Manifest: manifest}
	}

	return results
}

// Delete removes documents by id in batch.
func (s *Service) Delete(ctx context.Context, ids []string) []dombatch.Result {
	results := make([]dombatch.Result, len(ids))

	if len(ids) > s.maxBatchSize {
		err := fmt.Errorf("batch size exceeds %d: %w", s.maxBatchSize, domain.ErrValidation)
		for i, id := range ids {
			results[i] = dombatch.NewError(id, err)
		}
		return results
	}

	for i, id := range ids {
		docID, err := uuid.Parse(id)
		if err != nil {
			results[i] = dombatch.NewError(id, fmt.Errorf("%w: document id %q is not a uuid", domain.ErrValidation, id))
			continue
		}
		if err := s.del.Delete(ctx, docID); err != nil {
			results[i] = dombatch.NewError(id, fmt.Errorf("delete: %w", err))
			continue
		}
		results[i] = dombatch.NewOK(id)
	}

	return results
}
