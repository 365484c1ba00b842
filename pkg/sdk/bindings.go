package loom

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// BindingService manages bindings.
type BindingService struct {
	client *Client
}

// Create stores a binding and activates it: preconditions are checked, the
// collection's existing documents fan out, and the status flips to "on".
// The returned Tasks list what was dispatched. A configuration failure
// leaves the stored binding pending; inspect it with errors.As on *APIError.
func (s *BindingService) Create(ctx context.Context, b NewBinding) (_ CreatedBinding, err error) {
	start := time.Now()
	defer func() { s.client.obs.observe("binding.create", start, err) }()

	var out CreatedBinding
	if err = s.client.do(ctx, http.MethodPost, "/bindings", nil, b, &out); err != nil {
		return CreatedBinding{}, fmt.Errorf("create binding: %w", err)
	}
	return out, nil
}

// Get retrieves a binding by id.
func (s *BindingService) Get(ctx context.Context, id int64) (_ Binding, err error) {
	start := time.Now()
	defer func() { s.client.obs.observe("binding.get", start, err) }()

	var out Binding
	if err = s.client.do(ctx, http.MethodGet, bindingPath(id), nil, nil, &out); err != nil {
		return Binding{}, fmt.Errorf("get binding: %w", err)
	}
	return out, nil
}

// List returns all bindings.
func (s *BindingService) List(ctx context.Context) (_ []Binding, err error) {
	start := time.Now()
	defer func() { s.client.obs.observe("binding.list", start, err) }()

	var out []Binding
	if err = s.client.do(ctx, http.MethodGet, "/bindings", nil, nil, &out); err != nil {
		return nil, fmt.Errorf("list bindings: %w", err)
	}
	return out, nil
}

// Update patches a binding. Flipping status to "on" re-runs activation; the
// returned Tasks list the re-dispatched fan-out.
func (s *BindingService) Update(
	ctx context.Context, id int64, patch BindingPatch,
) (_ CreatedBinding, err error) {
	start := time.Now()
	defer func() { s.client.obs.observe("binding.update", start, err) }()

	var out CreatedBinding
	if err = s.client.do(ctx, http.MethodPatch, bindingPath(id), nil, patch, &out); err != nil {
		return CreatedBinding{}, fmt.Errorf("update binding: %w", err)
	}
	return out, nil
}

// Delete removes a binding. Documents and index records stay.
func (s *BindingService) Delete(ctx context.Context, id int64) (err error) {
	start := time.Now()
	defer func() { s.client.obs.observe("binding.delete", start, err) }()

	if err = s.client.do(ctx, http.MethodDelete, bindingPath(id), nil, nil, nil); err != nil {
		return fmt.Errorf("delete binding: %w", err)
	}
	return nil
}

func bindingPath(id int64) string {
	return "/bindings/" + strconv.FormatInt(id, 10)
}
