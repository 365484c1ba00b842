package loom

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// IndexService manages index definitions and queries their records.
type IndexService struct {
	client *Client
}

// IndexOption configures index creation.
type IndexOption func(*createIndexRequest)

type createIndexRequest struct {
	ID          string           `json:"index_id"`
	Description string           `json:"description,omitempty"`
	Fields      map[string]Field `json:"fields"`
	Materialize bool             `json:"materialize,omitempty"`
}

// WithIndexDescription sets the human description.
func WithIndexDescription(description string) IndexOption {
	return func(r *createIndexRequest) {
		r.Description = description
	}
}

// WithMaterialize creates the index table immediately instead of waiting for
// the first binding activation.
func WithMaterialize() IndexOption {
	return func(r *createIndexRequest) {
		r.Materialize = true
	}
}

// Create declares an index with its typed fields.
func (s *IndexService) Create(
	ctx context.Context, id string, fields map[string]Field, opts ...IndexOption,
) (_ Index, err error) {
	start := time.Now()
	defer func() { s.client.obs.observe("index.create", start, err) }()

	req := createIndexRequest{ID: id, Fields: fields}
	for _, o := range opts {
		o(&req)
	}

	var out Index
	if err = s.client.do(ctx, http.MethodPost, "/indexes", nil, req, &out); err != nil {
		return Index{}, fmt.Errorf("create index: %w", err)
	}
	return out, nil
}

// Get retrieves an index definition by id.
func (s *IndexService) Get(ctx context.Context, id string) (_ Index, err error) {
	start := time.Now()
	defer func() { s.client.obs.observe("index.get", start, err) }()

	var out Index
	if err = s.client.do(ctx, http.MethodGet, "/indexes/"+url.PathEscape(id), nil, nil, &out); err != nil {
		return Index{}, fmt.Errorf("get index: %w", err)
	}
	return out, nil
}

// List returns all index definitions.
func (s *IndexService) List(ctx context.Context) (_ []Index, err error) {
	start := time.Now()
	defer func() { s.client.obs.observe("index.list", start, err) }()

	var out []Index
	if err = s.client.do(ctx, http.MethodGet, "/indexes", nil, nil, &out); err != nil {
		return nil, fmt.Errorf("list indexes: %w", err)
	}
	return out, nil
}

// Materialize creates the index table now. Idempotent: Created is false when
// the table already existed.
func (s *IndexService) Materialize(ctx context.Context, id string) (_ MaterializeResult, err error) {
	start := time.Now()
	defer func() { s.client.obs.observe("index.materialize", start, err) }()

	var out MaterializeResult
	path := "/indexes/" + url.PathEscape(id) + "/materialize"
	if err = s.client.do(ctx, http.MethodPost, path, nil, nil, &out); err != nil {
		return MaterializeResult{}, fmt.Errorf("materialize index: %w", err)
	}
	return out, nil
}

// Delete removes an index definition. dropTable also drops the records table.
func (s *IndexService) Delete(ctx context.Context, id string, dropTable bool) (err error) {
	start := time.Now()
	defer func() { s.client.obs.observe("index.delete", start, err) }()

	q := url.Values{}
	if dropTable {
		q.Set("drop_table", "true")
	}
	if err = s.client.do(ctx, http.MethodDelete, "/indexes/"+url.PathEscape(id), q, nil, nil); err != nil {
		return fmt.Errorf("delete index: %w", err)
	}
	return nil
}

// Records returns one offset page of the index's records, newest first,
// with the table total. Limit 0 uses the server default.
func (s *IndexService) Records(
	ctx context.Context, id string, limit, offset int,
) (_ RecordPage, err error) {
	start := time.Now()
	defer func() { s.client.obs.observe("index.records", start, err) }()

	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if offset > 0 {
		q.Set("offset", strconv.Itoa(offset))
	}

	var out RecordPage
	path := "/indexes/" + url.PathEscape(id) + "/records"
	if err = s.client.do(ctx, http.MethodGet, path, q, nil, &out); err != nil {
		return RecordPage{}, fmt.Errorf("list records: %w", err)
	}
	return out, nil
}

// QueryOption configures a record query.
type QueryOption func(*queryRequest)

type queryRequest struct {
	Text          string `json:"text"`
	Field         string `json:"field,omitempty"`
	K             int    `json:"k,omitempty"`
	WithDocuments bool   `json:"with_documents,omitempty"`
}

// QueryField names the embedding column to search; empty picks the index's
// first one.
func QueryField(field string) QueryOption {
	return func(r *queryRequest) {
		r.Field = field
	}
}

// QueryK bounds the result size; zero means the server default.
func QueryK(k int) QueryOption {
	return func(r *queryRequest) {
		r.K = k
	}
}

// QueryWithDocuments joins each hit with its source document.
func QueryWithDocuments() QueryOption {
	return func(r *queryRequest) {
		r.WithDocuments = true
	}
}

// Query embeds text and returns the index's nearest records.
func (s *IndexService) Query(
	ctx context.Context, id, text string, opts ...QueryOption,
) (_ []Hit, err error) {
	start := time.Now()
	defer func() { s.client.obs.observe("index.query", start, err) }()

	req := queryRequest{Text: text}
	for _, o := range opts {
		o(&req)
	}

	var out struct {
		Hits []Hit `json:"hits"`
	}
	path := "/indexes/" + url.PathEscape(id) + "/query"
	if err = s.client.do(ctx, http.MethodPost, path, nil, req, &out); err != nil {
		return nil, fmt.Errorf("query index: %w", err)
	}
	return out.Hits, nil
}
