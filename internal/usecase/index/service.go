// Package index manages index definitions and their record tables. The
// definition row and the physical table have separate lifecycles: a
// definition may exist unmaterialized, and table changes end with a
// best-effort worker broadcast.
package index

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/kailas-cloud/loom/internal/domain"
	domidx "github.com/kailas-cloud/loom/internal/domain/index"
	"github.com/kailas-cloud/loom/internal/schema"
)

// ReloadTarget names index-layout reloads on the broadcast channel.
const ReloadTarget = "indexes"

// Service handles index definition CRUD and table materialization.
type Service struct {
	repo     Repository
	schemas  SchemaManager
	bindings BindingDetacher
	notifier Notifier
	logger   *zap.Logger
}

// New creates an index service. The notifier may be nil when no worker
// broadcast channel is configured.
func New(repo Repository, schemas SchemaManager, bindings BindingDetacher, notifier Notifier, logger *zap.Logger) *Service {
	return &Service{repo: repo, schemas: schemas, bindings: bindings, notifier: notifier, logger: logger}
}

// Create validates and stores a new index definition. With materialize set
// the record table is created in the same call and workers are told to pick
// up the new layout; otherwise materialization waits for the first binding
// activation.
func (s *Service) Create(
	ctx context.Context, id, description string, fields []domidx.Field, materialize bool,
) (domidx.Index, error) {
	idx, err := domidx.New(id, description, fields)
	if err != nil {
		return domidx.Index{}, fmt.Errorf("validate index: %w", err)
	}
	if err := s.repo.Create(ctx, idx); err != nil {
		return domidx.Index{}, fmt.Errorf("create index %q: %w", id, err)
	}

	if !materialize {
		return idx, nil
	}

	if _, _, err := s.schemas.CreateTable(ctx, idx); err != nil {
		return idx, fmt.Errorf("materialize index %q: %w", id, err)
	}
	s.broadcast(ctx, id)
	return idx, nil
}

// Get retrieves an index definition by id.
func (s *Service) Get(ctx context.Context, id string) (domidx.Index, error) {
	idx, err := s.repo.Get(ctx, id)
	if err != nil {
		return domidx.Index{}, fmt.Errorf("get index %q: %w", id, err)
	}
	return idx, nil
}

// List returns all index definitions.
func (s *Service) List(ctx context.Context) ([]domidx.Index, error) {
	idxs, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list indexes: %w", err)
	}
	return idxs, nil
}

// Materialize creates the record table for an existing definition. Calling
// it on an already-materialized index is a no-op (created=false).
func (s *Service) Materialize(ctx context.Context, id string) (schema.Layout, bool, error) {
	idx, err := s.repo.Get(ctx, id)
	if err != nil {
		return schema.Layout{}, false, fmt.Errorf("get index %q: %w", id, err)
	}

	layout, created, err := s.schemas.CreateTable(ctx, idx)
	if err != nil {
		return schema.Layout{}, false, fmt.Errorf("materialize index %q: %w", id, err)
	}
	if created {
		s.broadcast(ctx, id)
	}
	return layout, created, nil
}

// Materialized reports whether the index's record table exists in storage.
func (s *Service) Materialized(ctx context.Context, id string) (bool, error) {
	exists, err := s.schemas.TableExists(ctx, id)
	if err != nil {
		return false, fmt.Errorf("check table for index %q: %w", id, err)
	}
	return exists, nil
}

// Delete removes an index definition. Bindings writing to it flip to
// detached. With dropTable set the record table and its rows go too;
// otherwise the table is orphaned but intact for manual recovery.
func (s *Service) Delete(ctx context.Context, id string, dropTable bool) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete index %q: %w", id, err)
	}

	detached, err := s.bindings.DetachByIndex(ctx, id)
	if err != nil {
		return fmt.Errorf("detach bindings of index %q: %w", id, err)
	}
	if detached > 0 {
		s.logger.Info("Bindings detached with index",
			zap.String("index_id", id),
			zap.Int64("bindings_detached", detached),
		)
	}

	if dropTable {
		dropped, err := s.schemas.DropTable(ctx, id)
		if err != nil {
			return fmt.Errorf("drop table of index %q: %w", id, err)
		}
		if !dropped {
			s.logger.Warn("Index table was never materialized, nothing to drop",
				zap.String("index_id", id))
		}
	}

	s.broadcast(ctx, id)
	return nil
}

// broadcast tells workers to refresh the changed layout. Failures are
// logged, never returned: workers rebuild on the next cache miss anyway.
func (s *Service) broadcast(ctx context.Context, id string) {
	if s.notifier == nil {
		return
	}
	err := s.notifier.NotifySchemaChange(ctx, ReloadTarget, []string{id})
	if err == nil {
		return
	}
	if errors.Is(err, domain.ErrBroadcastTimeout) {
		s.logger.Warn("Index reload broadcast not acknowledged",
			zap.String("index_id", id),
			zap.Error(err),
		)
		return
	}
	s.logger.Error("Index reload broadcast failed",
		zap.String("index_id", id),
		zap.Error(err),
	)
}
