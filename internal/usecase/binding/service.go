// Package binding activates bindings and fans documents out into transformer
// tasks: ProcessBinding covers the full collection on activation,
// GenerateTasksForDocument covers a single new document.
package binding

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/kailas-cloud/loom/internal/domain"
	dombind "github.com/kailas-cloud/loom/internal/domain/binding"
	domdoc "github.com/kailas-cloud/loom/internal/domain/document"
	"github.com/kailas-cloud/loom/internal/domain/transformer"
	"github.com/kailas-cloud/loom/internal/task"
)

// listPageSize is the document page size ProcessBinding walks with.
const listPageSize = 200

// Service handles binding CRUD and task fan-out.
type Service struct {
	repo         Repository
	transformers TransformerReader
	indexes      IndexReader
	schemas      SchemaManager
	collections  CollectionReader
	documents    DocumentSource
	dispatcher   Dispatcher
	locators     LocatorRefresher
	logger       *zap.Logger
}

// New creates a binding service. The locator refresher may be nil when no
// object store is configured; content URLs are then dispatched as stored.
func New(
	repo Repository,
	transformers TransformerReader,
	indexes IndexReader,
	schemas SchemaManager,
	collections CollectionReader,
	documents DocumentSource,
	dispatcher Dispatcher,
	locators LocatorRefresher,
	logger *zap.Logger,
) *Service {
	return &Service{
		repo:         repo,
		transformers: transformers,
		indexes:      indexes,
		schemas:      schemas,
		collections:  collections,
		documents:    documents,
		dispatcher:   dispatcher,
		locators:     locators,
		logger:       logger,
	}
}

// Create validates and stores a new binding in the pending state.
func (s *Service) Create(ctx context.Context, b *dombind.Binding) error {
	if _, err := s.collections.Get(ctx, b.CollectionID()); err != nil {
		return fmt.Errorf("get collection %q: %w", b.CollectionID(), err)
	}
	if _, err := s.transformers.Get(ctx, b.TransformerID()); err != nil {
		return fmt.Errorf("get transformer %q: %w", b.TransformerID(), err)
	}
	if _, err := s.indexes.Get(ctx, b.IndexID()); err != nil {
		return fmt.Errorf("get index %q: %w", b.IndexID(), err)
	}
	if err := s.repo.Create(ctx, b); err != nil {
		return fmt.Errorf("create binding: %w", err)
	}
	return nil
}

// Get retrieves a binding by id.
func (s *Service) Get(ctx context.Context, id int64) (dombind.Binding, error) {
	b, err := s.repo.Get(ctx, id)
	if err != nil {
		return dombind.Binding{}, fmt.Errorf("get binding %d: %w", id, err)
	}
	return b, nil
}

// List returns all bindings.
func (s *Service) List(ctx context.Context) ([]dombind.Binding, error) {
	bindings, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list bindings: %w", err)
	}
	return bindings, nil
}

// Update persists binding mutations.
func (s *Service) Update(ctx context.Context, b dombind.Binding) error {
	if err := s.repo.Update(ctx, b); err != nil {
		return fmt.Errorf("update binding %d: %w", b.ID(), err)
	}
	return nil
}

// Delete removes a binding.
func (s *Service) Delete(ctx context.Context, id int64) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete binding %d: %w", id, err)
	}
	return nil
}

// ProcessBinding activates a binding: verifies its transformer, index and
// destination field list, walks the collection's documents through the
// binding filter, and dispatches one transformer task per match. The binding
// comes back in the "on" state with a manifest of dispatched tasks. An empty
// manifest is a valid round. Tasks dispatched before a mid-walk failure are
// not retracted.
func (s *Service) ProcessBinding(ctx context.Context, b dombind.Binding, createMissingIndexTable bool) (dombind.Binding, task.Manifest, error) {
	tr, err := s.checkTransformer(ctx, b)
	if err != nil {
		return b, nil, err
	}
	if err := s.checkIndex(ctx, b, createMissingIndexTable); err != nil {
		return b, nil, err
	}
	b, err = s.ensureIndexFields(ctx, b)
	if err != nil {
		return b, nil, err
	}

	manifest, err := s.fanOut(ctx, &b, tr)
	if err != nil {
		return b, manifest, err
	}

	if b.Status() != dombind.StatusOn {
		if err := b.SetStatus(dombind.StatusOn); err != nil {
			return b, manifest, err
		}
		if err := s.repo.Update(ctx, b); err != nil {
			return b, manifest, fmt.Errorf("activate binding %d: %w", b.ID(), err)
		}
	}

	s.logger.Info("Binding processed",
		zap.Int64("binding_id", b.ID()),
		zap.String("collection_id", b.CollectionID()),
		zap.String("index_id", b.IndexID()),
		zap.Int("tasks", len(manifest)),
	)
	return b, manifest, nil
}

// checkTransformer enforces the dispatchable-transformer precondition.
func (s *Service) checkTransformer(ctx context.Context, b dombind.Binding) (transformer.Transformer, error) {
	tr, err := s.transformers.Get(ctx, b.TransformerID())
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return transformer.Transformer{}, domain.NewConfigurationError(b.ID(),
				"transformer %q does not exist", b.TransformerID())
		}
		return transformer.Transformer{}, fmt.Errorf("get transformer %q: %w", b.TransformerID(), err)
	}
	if !tr.Dispatchable() {
		return transformer.Transformer{}, domain.NewConfigurationError(b.ID(),
			"transformer %q has no implementation path", b.TransformerID())
	}
	return tr, nil
}

// checkIndex enforces the materialized-index precondition, creating the
// table when allowed.
func (s *Service) checkIndex(ctx context.Context, b dombind.Binding, createMissing bool) error {
	idx, err := s.indexes.Get(ctx, b.IndexID())
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.NewConfigurationError(b.ID(), "index %q does not exist", b.IndexID())
		}
		return fmt.Errorf("get index %q: %w", b.IndexID(), err)
	}

	exists, err := s.schemas.TableExists(ctx, idx.ID())
	if err != nil {
		return fmt.Errorf("check table for index %q: %w", idx.ID(), err)
	}
	if exists {
		return nil
	}
	if !createMissing {
		return domain.NewConfigurationError(b.ID(), "index table %q is not materialized", idx.TableName())
	}

	if _, created, err := s.schemas.CreateTable(ctx, idx); err != nil {
		return fmt.Errorf("materialize index %q: %w", idx.ID(), err)
	} else if created {
		s.logger.Info("Index table materialized for binding",
			zap.Int64("binding_id", b.ID()),
			zap.String("index_id", idx.ID()),
		)
	}
	return nil
}

// ensureIndexFields auto-populates the destination field list from the index
// definition when the binding does not carry one, and persists the result.
func (s *Service) ensureIndexFields(ctx context.Context, b dombind.Binding) (dombind.Binding, error) {
	if _, ok := b.IndexFields(); ok {
		return b, nil
	}

	idx, err := s.indexes.Get(ctx, b.IndexID())
	if err != nil {
		return b, fmt.Errorf("get index %q: %w", b.IndexID(), err)
	}
	names := idx.FieldNames()
	if len(names) == 0 {
		return b, domain.NewConfigurationError(b.ID(), "index %q declares no fields to populate", b.IndexID())
	}
	if err := b.SetIndexFields(names); err != nil {
		return b, domain.NewConfigurationError(b.ID(), "populate %s: %v", dombind.ParamIndexFields, err)
	}
	if err := s.repo.Update(ctx, b); err != nil {
		return b, fmt.Errorf("persist %s for binding %d: %w", dombind.ParamIndexFields, b.ID(), err)
	}

	s.logger.Info("Destination fields auto-populated",
		zap.Int64("binding_id", b.ID()),
		zap.Strings("fields", names),
	)
	return b, nil
}

// fanOut walks the binding's collection and dispatches one task per document
// passing the filter. The returned manifest holds everything dispatched so
// far even when the walk fails mid-page.
func (s *Service) fanOut(ctx context.Context, b *dombind.Binding, tr transformer.Transformer) (task.Manifest, error) {
	col, err := s.collections.Get(ctx, b.CollectionID())
	if err != nil {
		return nil, fmt.Errorf("get collection %q: %w", b.CollectionID(), err)
	}
	refresh := s.locators != nil && col.StoresFiles()

	manifest := task.Manifest{}
	cursor := ""
	for {
		docs, next, err := s.documents.List(ctx, b.CollectionID(), cursor, listPageSize)
		if err != nil {
			return manifest, fmt.Errorf("list documents of %q: %w", b.CollectionID(), err)
		}
		for _, doc := range docs {
			match, err := s.passesFilter(*b, doc)
			if err != nil {
				return manifest, err
			}
			if !match {
				continue
			}
			if refresh {
				doc, _, err = s.locators.Refresh(ctx, doc)
				if err != nil {
					return manifest, fmt.Errorf("refresh locator for document %s: %w", doc.ID(), err)
				}
			}
			ref, err := s.dispatch(ctx, *b, tr.TaskName(), doc)
			if err != nil {
				return manifest, err
			}
			manifest = append(manifest, ref)
		}
		if next == "" {
			return manifest, nil
		}
		cursor = next
	}
}

// GenerateTasksForDocument dispatches one task per "on" binding of the
// document's collection whose filter passes. Bindings in any other status
// are skipped.
func (s *Service) GenerateTasksForDocument(ctx context.Context, doc domdoc.Document) (task.Manifest, error) {
	bindings, err := s.repo.ListByCollection(ctx, doc.CollectionID(), dombind.StatusOn)
	if err != nil {
		return nil, fmt.Errorf("list bindings of %q: %w", doc.CollectionID(), err)
	}

	manifest := task.Manifest{}
	for _, b := range bindings {
		match, err := s.passesFilter(b, doc)
		if err != nil {
			return manifest, err
		}
		if !match {
			continue
		}
		if _, ok := b.IndexFields(); !ok {
			s.logger.Warn("Skipping binding without destination fields",
				zap.Int64("binding_id", b.ID()),
				zap.String("document_id", doc.ID().String()),
			)
			continue
		}
		ref, err := s.dispatch(ctx, b, transformer.TaskNamePrefix+b.TransformerID(), doc)
		if err != nil {
			return manifest, err
		}
		manifest = append(manifest, ref)
	}
	return manifest, nil
}

// passesFilter applies the binding filter; no filter admits every document.
func (s *Service) passesFilter(b dombind.Binding, doc domdoc.Document) (bool, error) {
	f := b.Filter()
	if f == nil {
		return true, nil
	}
	match, err := f.Matches(doc)
	if err != nil {
		return false, fmt.Errorf("filter binding %d against document %s: %w", b.ID(), doc.ID(), err)
	}
	return match, nil
}

// dispatch enqueues one transformer task for the document.
func (s *Service) dispatch(ctx context.Context, b dombind.Binding, taskName string, doc domdoc.Document) (task.TaskRef, error) {
	taskID, err := s.dispatcher.Dispatch(ctx, bandFor(b), task.Message{
		Name: taskName,
		Document: &task.DocumentPayload{
			ID:      doc.ID().String(),
			Content: doc.Content(),
			Title:   doc.Title(),
			Meta:    doc.Meta(),
		},
		Params:    b.TransformerParams(),
		BindingID: b.ID(),
		IndexID:   b.IndexID(),
	})
	if err != nil {
		return task.TaskRef{}, fmt.Errorf("dispatch for document %s: %w", doc.ID(), err)
	}
	return task.TaskRef{TaskID: taskID, DocumentID: doc.ID().String()}, nil
}

// bandFor picks the queue band: the execution-params override when valid,
// the transform band otherwise.
func bandFor(b dombind.Binding) task.Band {
	if raw, ok := b.ExecutionParams()[dombind.ParamBand]; ok {
		if name, ok := raw.(string); ok && task.Band(name).IsValid() {
			return task.Band(name)
		}
	}
	return task.BandTransform
}
