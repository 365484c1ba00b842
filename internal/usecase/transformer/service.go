// Package transformer manages transformer declarations. Workers cache their
// handler registry, so every mutation ends with a best-effort reload
// broadcast; a missed broadcast only delays the refresh until the next cache
// miss.
package transformer

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/kailas-cloud/loom/internal/domain"
	domtrans "github.com/kailas-cloud/loom/internal/domain/transformer"
)

// ReloadTarget names transformer reloads on the broadcast channel.
const ReloadTarget = "transformers"

// Update carries the partial-update fields: nil pointers leave the stored
// value alone.
type Update struct {
	Path        *string
	Description *string
}

// Service handles transformer declaration CRUD.
type Service struct {
	repo     Repository
	bindings BindingDetacher
	notifier Notifier
	logger   *zap.Logger
}

// New creates a transformer service. The notifier may be nil when no worker
// broadcast channel is configured.
func New(repo Repository, bindings BindingDetacher, notifier Notifier, logger *zap.Logger) *Service {
	return &Service{repo: repo, bindings: bindings, notifier: notifier, logger: logger}
}

// Create validates and stores a new transformer declaration.
func (s *Service) Create(ctx context.Context, id, path, description string) (domtrans.Transformer, error) {
	tr, err := domtrans.New(id, path, description)
	if err != nil {
		return domtrans.Transformer{}, fmt.Errorf("validate transformer: %w", err)
	}
	if err := s.repo.Create(ctx, tr); err != nil {
		return domtrans.Transformer{}, fmt.Errorf("create transformer %q: %w", id, err)
	}

	s.broadcast(ctx, id)
	return tr, nil
}

// Get retrieves a transformer by id.
func (s *Service) Get(ctx context.Context, id string) (domtrans.Transformer, error) {
	tr, err := s.repo.Get(ctx, id)
	if err != nil {
		return domtrans.Transformer{}, fmt.Errorf("get transformer %q: %w", id, err)
	}
	return tr, nil
}

// List returns all transformer declarations.
func (s *Service) List(ctx context.Context) ([]domtrans.Transformer, error) {
	trs, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list transformers: %w", err)
	}
	return trs, nil
}

// Update applies a partial update to a transformer declaration.
func (s *Service) Update(ctx context.Context, id string, upd Update) (domtrans.Transformer, error) {
	tr, err := s.repo.Get(ctx, id)
	if err != nil {
		return domtrans.Transformer{}, fmt.Errorf("get transformer %q: %w", id, err)
	}

	if upd.Path != nil {
		tr.SetPath(*upd.Path)
	}
	if upd.Description != nil {
		tr.SetDescription(*upd.Description)
	}

	if err := s.repo.Update(ctx, tr); err != nil {
		return domtrans.Transformer{}, fmt.Errorf("update transformer %q: %w", id, err)
	}

	s.broadcast(ctx, id)
	return tr, nil
}

// Delete removes a transformer declaration. Bindings that dispatched through
// it flip to detached rather than being removed.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete transformer %q: %w", id, err)
	}

	detached, err := s.bindings.DetachByTransformer(ctx, id)
	if err != nil {
		return fmt.Errorf("detach bindings of transformer %q: %w", id, err)
	}
	if detached > 0 {
		s.logger.Info("Bindings detached with transformer",
			zap.String("transformer_id", id),
			zap.Int64("bindings_detached", detached),
		)
	}

	s.broadcast(ctx, id)
	return nil
}

// broadcast tells workers to re-resolve the changed transformer. Failures
// are logged, never returned: workers refresh on the next cache miss anyway.
func (s *Service) broadcast(ctx context.Context, id string) {
	if s.notifier == nil {
		return
	}
	err := s.notifier.NotifySchemaChange(ctx, ReloadTarget, []string{id})
	if err == nil {
		return
	}
	if errors.Is(err, domain.ErrBroadcastTimeout) {
		s.logger.Warn("Transformer reload broadcast not acknowledged",
			zap.String("transformer_id", id),
			zap.Error(err),
		)
		return
	}
	s.logger.Error("Transformer reload broadcast failed",
		zap.String("transformer_id", id),
		zap.Error(err),
	)
}
