// Package record serves the read side of index tables: listing stored
// records and nearest-neighbour queries over their embedding columns.
package record

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"

	"github.com/kailas-cloud/loom/internal/domain"
	domdoc "github.com/kailas-cloud/loom/internal/domain/document"
	"github.com/kailas-cloud/loom/internal/domain/index"
	domrec "github.com/kailas-cloud/loom/internal/domain/record"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
	defaultK        = 10
	maxK            = 100
)

// Query describes a nearest-neighbour search over an index.
type Query struct {
	IndexID string
	// Text is embedded at interactive priority and compared against Field.
	Text string
	// Field names the embedding column; empty picks the index's first one.
	Field string
	// K bounds the result size; zero means the default.
	K int
	// WithDocuments joins each hit with its source document.
	WithDocuments bool
}

// Hit is a scored record, optionally joined with its source document.
// Document is nil when the join was not requested or the source document no
// longer exists.
type Hit struct {
	Record   domrec.Record
	Distance float64
	Document *domdoc.Document
}

// Service handles index record reads.
type Service struct {
	records   Repository
	layouts   LayoutSource
	documents DocumentReader
	embedder  Embedder
}

// New creates a record service.
func New(records Repository, layouts LayoutSource, documents DocumentReader, embedder Embedder) *Service {
	return &Service{records: records, layouts: layouts, documents: documents, embedder: embedder}
}

// List returns a page of the index's records in reverse insertion order.
func (s *Service) List(ctx context.Context, indexID string, limit, offset int) ([]domrec.Record, error) {
	layout, err := s.layouts.Layout(ctx, indexID)
	if err != nil {
		return nil, fmt.Errorf("resolve layout for %q: %w", indexID, err)
	}

	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}

	records, err := s.records.List(ctx, layout, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list records of %q: %w", indexID, err)
	}
	return records, nil
}

// Count reports how many records the index holds.
func (s *Service) Count(ctx context.Context, indexID string) (int64, error) {
	layout, err := s.layouts.Layout(ctx, indexID)
	if err != nil {
		return 0, fmt.Errorf("resolve layout for %q: %w", indexID, err)
	}

	n, err := s.records.Count(ctx, layout)
	if err != nil {
		return 0, fmt.Errorf("count records of %q: %w", indexID, err)
	}
	return n, nil
}

// Query embeds the query text and returns the k nearest records by the
// field's distance metric, closest first.
func (s *Service) Query(ctx context.Context, q Query) ([]Hit, error) {
	if q.Text == "" {
		return nil, fmt.Errorf("%w: query text is required", domain.ErrValidation)
	}

	layout, err := s.layouts.Layout(ctx, q.IndexID)
	if err != nil {
		return nil, fmt.Errorf("resolve layout for %q: %w", q.IndexID, err)
	}

	field, err := resolveField(layout.DeclaredFields(), q.Field, q.IndexID)
	if err != nil {
		return nil, err
	}

	k := q.K
	if k <= 0 {
		k = defaultK
	}
	if k > maxK {
		k = maxK
	}

	result, err := s.embedder.Embed(ctx, q.Text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(result.Embedding) != field.Dims() {
		return nil, fmt.Errorf("%w: query embedding has %d dimensions, field %q wants %d",
			domain.ErrValidation, len(result.Embedding), field.Name(), field.Dims())
	}

	knn, err := s.records.KNN(ctx, layout, field.Name(), pgvector.NewVector(result.Embedding), k)
	if err != nil {
		return nil, fmt.Errorf("query %q: %w", q.IndexID, err)
	}

	hits := make([]Hit, len(knn))
	for i, h := range knn {
		hits[i] = Hit{Record: h.Record, Distance: h.Distance}
	}
	if !q.WithDocuments {
		return hits, nil
	}
	if err := s.joinDocuments(ctx, hits); err != nil {
		return nil, err
	}
	return hits, nil
}

// joinDocuments attaches source documents to hits in place. Records whose
// document was deleted keep a nil Document.
func (s *Service) joinDocuments(ctx context.Context, hits []Hit) error {
	seen := make(map[uuid.UUID]struct{}, len(hits))
	ids := make([]uuid.UUID, 0, len(hits))
	for _, h := range hits {
		id := h.Record.DocumentID()
		if id == uuid.Nil {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}

	docs, err := s.documents.GetMulti(ctx, ids)
	if err != nil {
		return fmt.Errorf("join source documents: %w", err)
	}
	for i := range hits {
		if doc, ok := docs[hits[i].Record.DocumentID()]; ok {
			d := doc
			hits[i].Document = &d
		}
	}
	return nil
}

// resolveField picks the embedding column a query runs against: the named
// field when given, the first declared embedding field otherwise.
func resolveField(fields []index.Field, name, indexID string) (index.Field, error) {
	if name == "" {
		for _, f := range fields {
			if f.IsEmbedding() {
				return f, nil
			}
		}
		return index.Field{}, fmt.Errorf("%w: index %q declares no embedding field", domain.ErrValidation, indexID)
	}
	for _, f := range fields {
		if f.Name() == name {
			if !f.IsEmbedding() {
				return index.Field{}, fmt.Errorf("%w: field %q of %q is not an embedding", domain.ErrValidation, name, indexID)
			}
			return f, nil
		}
	}
	return index.Field{}, fmt.Errorf("%w: index %q has no field %q", domain.ErrNotFound, indexID, name)
}
