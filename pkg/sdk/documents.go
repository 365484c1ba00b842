package loom

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// DocumentService manages documents in one collection. Lookup, update and
// delete address documents by their globally unique id and work regardless
// of the bound collection.
type DocumentService struct {
	client     *Client
	collection string
}

// DocumentOption configures document ingestion.
type DocumentOption func(*NewDocument)

// WithTitle sets the document title.
func WithTitle(title string) DocumentOption {
	return func(d *NewDocument) {
		d.Title = title
	}
}

// WithMeta sets the document meta map (filterable and carried into records).
func WithMeta(meta map[string]any) DocumentOption {
	return func(d *NewDocument) {
		d.Meta = meta
	}
}

// Add stores one document and fans it out through the collection's active
// bindings. The returned Tasks list what was dispatched.
func (s *DocumentService) Add(
	ctx context.Context, content string, opts ...DocumentOption,
) (_ CreatedDocument, err error) {
	start := time.Now()
	defer func() { s.client.obs.observe("document.add", start, err) }()

	doc := NewDocument{Content: content}
	for _, o := range opts {
		o(&doc)
	}

	var out CreatedDocument
	path := "/collections/" + url.PathEscape(s.collection) + "/documents"
	if err = s.client.do(ctx, http.MethodPost, path, nil, doc, &out); err != nil {
		return CreatedDocument{}, fmt.Errorf("add document: %w", err)
	}
	return out, nil
}

// AddBatch stores documents with per-item outcomes; one bad document does
// not fail the rest.
func (s *DocumentService) AddBatch(
	ctx context.Context, docs []NewDocument,
) (_ []BatchItem, err error) {
	start := time.Now()
	defer func() { s.client.obs.observe("document.add_batch", start, err) }()

	req := struct {
		Documents []NewDocument `json:"documents"`
	}{Documents: docs}

	var out struct {
		Results []BatchItem `json:"results"`
	}
	path := "/collections/" + url.PathEscape(s.collection) + "/documents/batch"
	if err = s.client.do(ctx, http.MethodPost, path, nil, req, &out); err != nil {
		return nil, fmt.Errorf("add documents: %w", err)
	}
	return out.Results, nil
}

// List returns one cursor page of the collection's documents, newest first.
// Empty cursor starts from the beginning; limit 0 uses the server default.
func (s *DocumentService) List(
	ctx context.Context, cursor string, limit int,
) (_ DocumentPage, err error) {
	start := time.Now()
	defer func() { s.client.obs.observe("document.list", start, err) }()

	q := url.Values{}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}

	var out DocumentPage
	path := "/collections/" + url.PathEscape(s.collection) + "/documents"
	if err = s.client.do(ctx, http.MethodGet, path, q, nil, &out); err != nil {
		return DocumentPage{}, fmt.Errorf("list documents: %w", err)
	}
	return out, nil
}

// Get retrieves a document by id.
func (s *DocumentService) Get(ctx context.Context, id string) (_ Document, err error) {
	start := time.Now()
	defer func() { s.client.obs.observe("document.get", start, err) }()

	var out Document
	if err = s.client.do(ctx, http.MethodGet, "/documents/"+url.PathEscape(id), nil, nil, &out); err != nil {
		return Document{}, fmt.Errorf("get document: %w", err)
	}
	return out, nil
}

// Update patches a document. Content and meta changes re-run the binding
// fan-out; the returned Tasks list what was re-dispatched.
func (s *DocumentService) Update(
	ctx context.Context, id string, patch DocumentPatch,
) (_ CreatedDocument, err error) {
	start := time.Now()
	defer func() { s.client.obs.observe("document.update", start, err) }()

	var out CreatedDocument
	if err = s.client.do(ctx, http.MethodPatch, "/documents/"+url.PathEscape(id), nil, patch, &out); err != nil {
		return CreatedDocument{}, fmt.Errorf("update document: %w", err)
	}
	return out, nil
}

// Delete removes a document and its index records.
func (s *DocumentService) Delete(ctx context.Context, id string) (err error) {
	start := time.Now()
	defer func() { s.client.obs.observe("document.delete", start, err) }()

	if err = s.client.do(ctx, http.MethodDelete, "/documents/"+url.PathEscape(id), nil, nil, nil); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	return nil
}

// DeleteBatch removes documents by id with per-item outcomes.
func (s *DocumentService) DeleteBatch(
	ctx context.Context, ids []string,
) (_ []BatchItem, err error) {
	start := time.Now()
	defer func() { s.client.obs.observe("document.delete_batch", start, err) }()

	req := struct {
		IDs []string `json:"ids"`
	}{IDs: ids}

	var out struct {
		Results []BatchItem `json:"results"`
	}
	if err = s.client.do(ctx, http.MethodDelete, "/documents/batch", nil, req, &out); err != nil {
		return nil, fmt.Errorf("delete documents: %w", err)
	}
	return out.Results, nil
}

// DeleteAll removes every document in the collection, returning the count.
func (s *DocumentService) DeleteAll(ctx context.Context) (_ int64, err error) {
	start := time.Now()
	defer func() { s.client.obs.observe("document.delete_all", start, err) }()

	var out struct {
		DeletedCount int64 `json:"deleted_count"`
	}
	path := "/collections/" + url.PathEscape(s.collection) + "/documents"
	if err = s.client.do(ctx, http.MethodDelete, path, nil, nil, &out); err != nil {
		return 0, fmt.Errorf("delete all documents: %w", err)
	}
	return out.DeletedCount, nil
}
