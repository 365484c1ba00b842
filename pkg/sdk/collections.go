package loom

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// CollectionService manages collections.
type CollectionService struct {
	client *Client
}

// CollectionOption configures collection creation.
type CollectionOption func(*createCollectionRequest)

type createCollectionRequest struct {
	ID          string         `json:"collection_id"`
	Description string         `json:"description,omitempty"`
	Config      map[string]any `json:"config,omitempty"`
}

// WithCollectionDescription sets the human description.
func WithCollectionDescription(description string) CollectionOption {
	return func(r *createCollectionRequest) {
		r.Description = description
	}
}

// WithCollectionConfig sets the collection config map (e.g. store_files).
func WithCollectionConfig(config map[string]any) CollectionOption {
	return func(r *createCollectionRequest) {
		r.Config = config
	}
}

// Create creates a new collection.
func (s *CollectionService) Create(
	ctx context.Context, id string, opts ...CollectionOption,
) (_ Collection, err error) {
	start := time.Now()
	defer func() { s.client.obs.observe("collection.create", start, err) }()

	req := createCollectionRequest{ID: id}
	for _, o := range opts {
		o(&req)
	}

	var out Collection
	if err = s.client.do(ctx, http.MethodPost, "/collections", nil, req, &out); err != nil {
		return Collection{}, fmt.Errorf("create collection: %w", err)
	}
	return out, nil
}

// Ensure creates a collection if it does not exist. If it already exists,
// returns the existing one.
func (s *CollectionService) Ensure(
	ctx context.Context, id string, opts ...CollectionOption,
) (_ Collection, err error) {
	start := time.Now()
	defer func() { s.client.obs.observe("collection.ensure", start, err) }()

	col, err := s.Create(ctx, id, opts...)
	if err == nil {
		return col, nil
	}
	if !errors.Is(err, ErrAlreadyExists) {
		return Collection{}, fmt.Errorf("ensure collection: %w", err)
	}

	col, err = s.Get(ctx, id)
	if err != nil {
		return Collection{}, fmt.Errorf("ensure collection: %w", err)
	}
	return col, nil
}

// Get retrieves collection metadata by id.
func (s *CollectionService) Get(ctx context.Context, id string) (_ Collection, err error) {
	start := time.Now()
	defer func() { s.client.obs.observe("collection.get", start, err) }()

	var out Collection
	if err = s.client.do(ctx, http.MethodGet, "/collections/"+url.PathEscape(id), nil, nil, &out); err != nil {
		return Collection{}, fmt.Errorf("get collection: %w", err)
	}
	return out, nil
}

// List returns all collections.
func (s *CollectionService) List(ctx context.Context) (_ []Collection, err error) {
	start := time.Now()
	defer func() { s.client.obs.observe("collection.list", start, err) }()

	var out []Collection
	if err = s.client.do(ctx, http.MethodGet, "/collections", nil, nil, &out); err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	return out, nil
}

// Update patches a collection.
func (s *CollectionService) Update(
	ctx context.Context, id string, patch CollectionPatch,
) (_ Collection, err error) {
	start := time.Now()
	defer func() { s.client.obs.observe("collection.update", start, err) }()

	var out Collection
	if err = s.client.do(ctx, http.MethodPatch, "/collections/"+url.PathEscape(id), nil, patch, &out); err != nil {
		return Collection{}, fmt.Errorf("update collection: %w", err)
	}
	return out, nil
}

// Delete removes a collection. A non-empty collection is rejected unless
// deleteDocuments is true; the count of removed documents is returned.
func (s *CollectionService) Delete(
	ctx context.Context, id string, deleteDocuments bool,
) (_ int64, err error) {
	start := time.Now()
	defer func() { s.client.obs.observe("collection.delete", start, err) }()

	q := url.Values{}
	if deleteDocuments {
		q.Set("delete_documents", "true")
	}

	var out struct {
		DocumentsDeleted int64 `json:"documents_deleted"`
	}
	if err = s.client.do(ctx, http.MethodDelete, "/collections/"+url.PathEscape(id), q, nil, &out); err != nil {
		return 0, fmt.Errorf("delete collection: %w", err)
	}
	return out.DocumentsDeleted, nil
}
