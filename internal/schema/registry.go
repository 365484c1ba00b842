package schema

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/kailas-cloud/loom/internal/db"
	"github.com/kailas-cloud/loom/internal/domain"
	"github.com/kailas-cloud/loom/internal/domain/index"
	"github.com/kailas-cloud/loom/internal/metrics"
)

// Registry materializes index tables and caches their record layouts.
type Registry struct {
	store      Store
	indexes    IndexReader
	dispatcher Dispatcher
	logger     *zap.Logger

	mu         sync.RWMutex
	layouts    map[string]Layout
	generation uint64
}

// New creates a schema registry. Dispatcher may be nil for processes that
// never create tables (ANN builds are then not scheduled).
func New(store Store, indexes IndexReader, dispatcher Dispatcher, logger *zap.Logger) *Registry {
	return &Registry{
		store:      store,
		indexes:    indexes,
		dispatcher: dispatcher,
		logger:     logger,
		layouts:    make(map[string]Layout),
	}
}

// CreateTable materializes the index table if it does not exist yet.
// Returns the layout and whether the table was created by this call.
// Existing tables are returned as created=false with no DDL issued and no
// ANN builds scheduled.
func (r *Registry) CreateTable(ctx context.Context, idx index.Index) (Layout, bool, error) {
	if len(idx.Fields()) == 0 {
		return Layout{}, false, fmt.Errorf("%w: index %q declares no fields", domain.ErrValidation, idx.ID())
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	layout, err := buildLayout(idx, r.generation)
	if err != nil {
		return Layout{}, false, fmt.Errorf("build layout: %w", err)
	}

	exists, err := r.store.TableExists(ctx, layout.Table)
	if err != nil {
		return Layout{}, false, fmt.Errorf("check table %s: %w", layout.Table, err)
	}
	if exists {
		r.logger.Warn("Index table already exists, skipping creation",
			zap.String("index_id", idx.ID()),
			zap.String("table", layout.Table),
		)
		r.layouts[idx.ID()] = layout
		return layout, false, nil
	}

	if _, err := r.store.Exec(ctx, tableDDL(layout)); err != nil {
		return Layout{}, false, fmt.Errorf("create table %s: %w", layout.Table, err)
	}
	if _, err := r.store.Exec(ctx, documentIndexDDL(layout.Table)); err != nil {
		return Layout{}, false, fmt.Errorf("create document index on %s: %w", layout.Table, err)
	}

	r.scheduleANNBuilds(ctx, idx)

	r.generation++
	layout.Generation = r.generation
	r.layouts[idx.ID()] = layout

	metrics.SchemaTablesCreatedTotal.Inc()
	r.logger.Info("Index table created",
		zap.String("index_id", idx.ID()),
		zap.String("table", layout.Table),
		zap.Int("columns", len(layout.Columns)),
	)

	return layout, true, nil
}

// scheduleANNBuilds enqueues one deferred HNSW build per embedding column.
// Scheduling failures are logged, not fatal: the build DDL is idempotent and
// operators can re-trigger it.
func (r *Registry) scheduleANNBuilds(ctx context.Context, idx index.Index) {
	embeddings := idx.EmbeddingFields()
	if len(embeddings) == 0 {
		return
	}
	if r.dispatcher == nil {
		r.logger.Warn("No dispatcher configured, ANN index builds not scheduled",
			zap.String("index_id", idx.ID()),
			zap.Int("embedding_fields", len(embeddings)),
		)
		return
	}
	for _, f := range embeddings {
		taskID, err := r.dispatcher.DispatchANNBuild(ctx, idx.ID(), f.Name())
		if err != nil {
			r.logger.Error("Failed to schedule ANN index build",
				zap.String("index_id", idx.ID()),
				zap.String("field", f.Name()),
				zap.Error(err),
			)
			continue
		}
		r.logger.Info("ANN index build scheduled",
			zap.String("index_id", idx.ID()),
			zap.String("field", f.Name()),
			zap.String("task_id", taskID),
		)
	}
}

// DropTable removes the index table. Returns false without error when the
// definition or the physical table is unknown; the cached layout is removed
// in either case.
func (r *Registry) DropTable(ctx context.Context, indexID string) (bool, error) {
	if !index.IsValidID(indexID) {
		return false, fmt.Errorf("%w: invalid index id %q", domain.ErrValidation, indexID)
	}
	table := index.TablePrefix + indexID

	r.mu.Lock()
	_, known := r.layouts[indexID]
	delete(r.layouts, indexID)
	r.generation++
	r.mu.Unlock()

	if !known {
		// A fresh process has an empty cache; consult stored definitions
		// before declaring the table unknown.
		if _, err := r.indexes.Get(ctx, indexID); err != nil {
			r.logger.Warn("Drop requested for unknown index",
				zap.String("index_id", indexID),
				zap.Error(err),
			)
			return false, nil
		}
	}

	exists, err := r.store.TableExists(ctx, table)
	if err != nil {
		return false, fmt.Errorf("check table %s: %w", table, err)
	}
	if !exists {
		r.logger.Warn("Drop requested but index table does not exist",
			zap.String("index_id", indexID),
			zap.String("table", table),
		)
		return false, nil
	}

	ddl := "DROP TABLE IF EXISTS " + db.QuoteIdentifier(table)
	if _, err := r.store.Exec(ctx, ddl); err != nil {
		return false, fmt.Errorf("drop table %s: %w", table, err)
	}

	metrics.SchemaTablesDroppedTotal.Inc()
	r.logger.Info("Index table dropped",
		zap.String("index_id", indexID),
		zap.String("table", table),
	)
	return true, nil
}

// TableExists reports physical existence via catalog introspection, not
// cache state.
func (r *Registry) TableExists(ctx context.Context, indexID string) (bool, error) {
	if !index.IsValidID(indexID) {
		return false, fmt.Errorf("%w: invalid index id %q", domain.ErrValidation, indexID)
	}
	exists, err := r.store.TableExists(ctx, index.TablePrefix+indexID)
	if err != nil {
		return false, fmt.Errorf("check table: %w", err)
	}
	return exists, nil
}

// GetIndex returns the stored index definition.
func (r *Registry) GetIndex(ctx context.Context, indexID string) (index.Index, error) {
	idx, err := r.indexes.Get(ctx, indexID)
	if err != nil {
		return index.Index{}, fmt.Errorf("get index %q: %w", indexID, err)
	}
	return idx, nil
}

// Layout returns the cached layout for an index. A cache miss triggers one
// synchronous rebuild from the stored definition.
func (r *Registry) Layout(ctx context.Context, indexID string) (Layout, error) {
	r.mu.RLock()
	layout, ok := r.layouts[indexID]
	r.mu.RUnlock()
	if ok {
		metrics.SchemaLayoutCacheTotal.WithLabelValues("hit").Inc()
		return layout, nil
	}

	metrics.SchemaLayoutCacheTotal.WithLabelValues("miss").Inc()
	r.logger.Debug("Layout cache miss, rebuilding from stored definition",
		zap.String("index_id", indexID),
	)

	idx, err := r.indexes.Get(ctx, indexID)
	if err != nil {
		return Layout{}, fmt.Errorf("rebuild layout for %q: %w", indexID, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	layout, err = buildLayout(idx, r.generation)
	if err != nil {
		return Layout{}, fmt.Errorf("rebuild layout for %q: %w", indexID, err)
	}
	r.layouts[indexID] = layout
	return layout, nil
}

// Invalidate drops one cached layout and bumps the generation.
func (r *Registry) Invalidate(indexID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.layouts, indexID)
	r.generation++
}

// InvalidateAll clears the layout cache.
func (r *Registry) InvalidateAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.layouts = make(map[string]Layout)
	r.generation++
}

// Generation returns the current cache generation.
func (r *Registry) Generation() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.generation
}

// BuildANNIndex executes the deferred HNSW build for one embedding field.
func (r *Registry) BuildANNIndex(ctx context.Context, indexID, fieldName string) error {
	idx, err := r.GetIndex(ctx, indexID)
	if err != nil {
		metrics.SchemaANNBuildsTotal.WithLabelValues("error").Inc()
		return err
	}
	f, ok := idx.FieldByName(fieldName)
	if !ok || !f.IsEmbedding() {
		metrics.SchemaANNBuildsTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("%w: index %q has no embedding field %q", domain.ErrValidation, indexID, fieldName)
	}

	ddl, err := annIndexDDL(idx.TableName(), f)
	if err != nil {
		metrics.SchemaANNBuildsTotal.WithLabelValues("error").Inc()
		return err
	}
	if _, err := r.store.Exec(ctx, ddl); err != nil {
		metrics.SchemaANNBuildsTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("build ann index on %s(%s): %w", idx.TableName(), fieldName, err)
	}

	metrics.SchemaANNBuildsTotal.WithLabelValues("ok").Inc()
	r.logger.Info("ANN index built",
		zap.String("index_id", indexID),
		zap.String("field", fieldName),
	)
	return nil
}
