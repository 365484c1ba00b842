package loom

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// TransformerService manages transformer declarations.
type TransformerService struct {
	client *Client
}

// Create registers a transformer. Path names the worker-side implementation
// (e.g. "text.counter"); an empty path declares the transformer without
// making it runnable.
func (s *TransformerService) Create(
	ctx context.Context, id, path, description string,
) (_ Transformer, err error) {
	start := time.Now()
	defer func() { s.client.obs.observe("transformer.create", start, err) }()

	req := struct {
		ID          string `json:"transformer_id"`
		Path        string `json:"path,omitempty"`
		Description string `json:"description,omitempty"`
	}{ID: id, Path: path, Description: description}

	var out Transformer
	if err = s.client.do(ctx, http.MethodPost, "/transformers", nil, req, &out); err != nil {
		return Transformer{}, fmt.Errorf("create transformer: %w", err)
	}
	return out, nil
}

// Get retrieves a transformer by id.
func (s *TransformerService) Get(ctx context.Context, id string) (_ Transformer, err error) {
	start := time.Now()
	defer func() { s.client.obs.observe("transformer.get", start, err) }()

	var out Transformer
	if err = s.client.do(ctx, http.MethodGet, "/transformers/"+url.PathEscape(id), nil, nil, &out); err != nil {
		return Transformer{}, fmt.Errorf("get transformer: %w", err)
	}
	return out, nil
}

// List returns all transformers.
func (s *TransformerService) List(ctx context.Context) (_ []Transformer, err error) {
	start := time.Now()
	defer func() { s.client.obs.observe("transformer.list", start, err) }()

	var out []Transformer
	if err = s.client.do(ctx, http.MethodGet, "/transformers", nil, nil, &out); err != nil {
		return nil, fmt.Errorf("list transformers: %w", err)
	}
	return out, nil
}

// Update patches a transformer. Changing the path notifies workers.
func (s *TransformerService) Update(
	ctx context.Context, id string, patch TransformerPatch,
) (_ Transformer, err error) {
	start := time.Now()
	defer func() { s.client.obs.observe("transformer.update", start, err) }()

	var out Transformer
	if err = s.client.do(ctx, http.MethodPatch, "/transformers/"+url.PathEscape(id), nil, patch, &out); err != nil {
		return Transformer{}, fmt.Errorf("update transformer: %w", err)
	}
	return out, nil
}

// Delete removes a transformer; bindings that used it are detached.
func (s *TransformerService) Delete(ctx context.Context, id string) (err error) {
	start := time.Now()
	defer func() { s.client.obs.observe("transformer.delete", start, err) }()

	if err = s.client.do(ctx, http.MethodDelete, "/transformers/"+url.PathEscape(id), nil, nil, nil); err != nil {
		return fmt.Errorf("delete transformer: %w", err)
	}
	return nil
}
