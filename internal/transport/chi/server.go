// Package chi exposes the HTTP API: entity CRUD, document ingestion with
// task fan-out, index materialization, binding activation and record
// queries. Handlers decode, delegate to usecases and map domain errors to
// statuses; wire types live in dto.go.
package chi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/loom/internal/domain"
	dombind "github.com/kailas-cloud/loom/internal/domain/binding"
	domidx "github.com/kailas-cloud/loom/internal/domain/index"
	"github.com/kailas-cloud/loom/internal/task"
	batchuc "github.com/kailas-cloud/loom/internal/usecase/batch"
	collectionuc "github.com/kailas-cloud/loom/internal/usecase/collection"
	documentuc "github.com/kailas-cloud/loom/internal/usecase/document"
	healthuc "github.com/kailas-cloud/loom/internal/usecase/health"
	recorduc "github.com/kailas-cloud/loom/internal/usecase/record"
	transformeruc "github.com/kailas-cloud/loom/internal/usecase/transformer"
	"github.com/kailas-cloud/loom/internal/version"
)

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server holds the API handlers.
type Server struct {
	collections   CollectionService
	documents     DocumentService
	batch         BatchService
	transformers  TransformerService
	indexes       IndexService
	bindings      BindingService
	records       RecordService
	health        HealthService
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(
	collections CollectionService,
	documents DocumentService,
	batch BatchService,
	transformers TransformerService,
	indexes IndexService,
	bindings BindingService,
	records RecordService,
	health HealthService,
	logger *zap.Logger,
) *Server {
	s := &Server{
		collections:  collections,
		documents:    documents,
		batch:        batch,
		transformers: transformers,
		indexes:      indexes,
		bindings:     bindings,
		records:      records,
		health:       health,
		logger:       logger,
	}
	s.errorHandlers = []errorHandler{
		configurationHandler,
		sentinelHandler(domain.ErrNotFound, http.StatusNotFound, ErrorCodeNotFound),
		sentinelHandler(domain.ErrAlreadyExists, http.StatusConflict, ErrorCodeAlreadyExists),
		sentinelHandler(domain.ErrValidation, http.StatusBadRequest, ErrorCodeValidationFailed),
		sentinelHandler(domain.ErrUnsupportedOperation, http.StatusBadRequest, ErrorCodeUnsupportedFilterOp),
		sentinelHandler(domain.ErrSchemaRace, http.StatusServiceUnavailable, ErrorCodeSchemaNotReady),
		sentinelHandler(domain.ErrEmbeddingProviderError, http.StatusBadGateway, ErrorCodeEmbeddingProvider),
	}
	return s
}

// Routes registers every API route on r. Health and metrics sit at the root;
// everything else is versioned under /api/v1.
func (s *Server) Routes(r chi.Router) {
	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)

	r.Route("/api/v1", func(api chi.Router) {
		api.Route("/collections", func(r chi.Router) {
			r.Post("/", s.CreateCollection)
			r.Get("/", s.ListCollections)
			r.Route("/{collectionID}", func(r chi.Router) {
				r.Get("/", s.GetCollection)
				r.Patch("/", s.UpdateCollection)
				r.Delete("/", s.DeleteCollection)
				r.Route("/documents", func(r chi.Router) {
					r.Post("/", s.CreateDocument)
					r.Get("/", s.ListDocuments)
					r.Delete("/", s.DeleteCollectionDocuments)
					r.Post("/batch", s.BatchAddDocuments)
				})
			})
		})

		api.Route("/documents", func(r chi.Router) {
			r.Delete("/batch", s.BatchDeleteDocuments)
			r.Route("/{documentID}", func(r chi.Router) {
				r.Get("/", s.GetDocument)
				r.Patch("/", s.UpdateDocument)
				r.Delete("/", s.DeleteDocument)
			})
		})

		api.Route("/transformers", func(r chi.Router) {
			r.Post("/", s.CreateTransformer)
			r.Get("/", s.ListTransformers)
			r.Route("/{transformerID}", func(r chi.Router) {
				r.Get("/", s.GetTransformer)
				r.Patch("/", s.UpdateTransformer)
				r.Delete("/", s.DeleteTransformer)
			})
		})

		api.Route("/indexes", func(r chi.Router) {
			r.Post("/", s.CreateIndex)
			r.Get("/", s.ListIndexes)
			r.Route("/{indexID}", func(r chi.Router) {
				r.Get("/", s.GetIndex)
				r.Delete("/", s.DeleteIndex)
				r.Post("/materialize", s.MaterializeIndex)
				r.Get("/records", s.ListRecords)
				r.Post("/query", s.QueryRecords)
			})
		})

		api.Route("/bindings", func(r chi.Router) {
			r.Post("/", s.CreateBinding)
			r.Get("/", s.ListBindings)
			r.Route("/{bindingID}", func(r chi.Router) {
				r.Get("/", s.GetBinding)
				r.Patch("/", s.UpdateBinding)
				r.Delete("/", s.DeleteBinding)
			})
		})
	})
}

// --- Collections ---

// CreateCollection handles POST /collections.
func (s *Server) CreateCollection(w http.ResponseWriter, r *http.Request) {
	var req CreateCollectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrorCodeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	col, err := s.collections.Create(r.Context(), req.ID, req.Description, req.Config)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, collectionToDTO(col))
}

// ListCollections handles GET /collections.
func (s *Server) ListCollections(w http.ResponseWriter, r *http.Request) {
	cols, err := s.collections.List(r.Context())
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	items := make([]Collection, len(cols))
	for i, c := range cols {
		items[i] = collectionToDTO(c)
	}
	writeJSON(w, http.StatusOK, items)
}

// GetCollection handles GET /collections/{collectionID}.
func (s *Server) GetCollection(w http.ResponseWriter, r *http.Request) {
	col, err := s.collections.Get(r.Context(), chi.URLParam(r, "collectionID"))
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, collectionToDTO(col))
}

// UpdateCollection handles PATCH /collections/{collectionID}.
func (s *Server) UpdateCollection(w http.ResponseWriter, r *http.Request) {
	var req UpdateCollectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrorCodeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	col, err := s.collections.Update(r.Context(), chi.URLParam(r, "collectionID"), collectionuc.Update{
		Description: req.Description,
		Config:      req.Config,
	})
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, collectionToDTO(col))
}

// DeleteCollection handles DELETE /collections/{collectionID}. A non-empty
// collection requires delete_documents=true.
func (s *Server) DeleteCollection(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "collectionID")

	deleted, err := s.collections.Delete(r.Context(), id, boolParam(r, "delete_documents"))
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, DeleteCollectionResponse{
		CollectionID:     id,
		DocumentsDeleted: deleted,
	})
}

// --- Documents ---

// CreateDocument handles POST /collections/{collectionID}/documents.
func (s *Server) CreateDocument(w http.ResponseWriter, r *http.Request) {
	var req CreateDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrorCodeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	doc, manifest, err := s.documents.Create(
		r.Context(), chi.URLParam(r, "collectionID"), req.Content, req.Title, req.Meta)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	w.Header().Set("Location", fmt.Sprintf("/api/v1/documents/%s", doc.ID()))
	writeJSON(w, http.StatusCreated, DocumentResponse{
		Document: documentToDTO(doc),
		Tasks:    nonNilManifest(manifest),
	})
}

// ListDocuments handles GET /collections/{collectionID}/documents.
func (s *Server) ListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, nextCursor, err := s.documents.List(
		r.Context(), chi.URLParam(r, "collectionID"), r.URL.Query().Get("cursor"), intParam(r, "limit"))
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	items := make([]Document, len(docs))
	for i, d := range docs {
		items[i] = documentToDTO(d)
	}

	resp := DocumentListResponse{Items: items, HasMore: nextCursor != ""}
	if nextCursor != "" {
		resp.NextCursor = &nextCursor
	}
	writeJSON(w, http.StatusOK, resp)
}

// DeleteCollectionDocuments handles DELETE /collections/{collectionID}/documents.
func (s *Server) DeleteCollectionDocuments(w http.ResponseWriter, r *http.Request) {
	deleted, err := s.documents.DeleteByCollection(r.Context(), chi.URLParam(r, "collectionID"))
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, BulkDeleteResponse{DeletedCount: deleted})
}

// GetDocument handles GET /documents/{documentID}.
func (s *Server) GetDocument(w http.ResponseWriter, r *http.Request) {
	id, ok := s.documentID(w, r)
	if !ok {
		return
	}

	doc, err := s.documents.Get(r.Context(), id)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, documentToDTO(doc))
}

// UpdateDocument handles PATCH /documents/{documentID}. Content and meta
// changes re-run the binding fan-out.
func (s *Server) UpdateDocument(w http.ResponseWriter, r *http.Request) {
	id, ok := s.documentID(w, r)
	if !ok {
		return
	}

	var req UpdateDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrorCodeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	doc, manifest, err := s.documents.Update(r.Context(), id, documentuc.Update{
		Content: req.Content,
		Title:   req.Title,
		Meta:    req.Meta,
	})
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, DocumentResponse{
		Document: documentToDTO(doc),
		Tasks:    nonNilManifest(manifest),
	})
}

// DeleteDocument handles DELETE /documents/{documentID}.
func (s *Server) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	id, ok := s.documentID(w, r)
	if !ok {
		return
	}

	if err := s.documents.Delete(r.Context(), id); err != nil {
		s.handleDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// BatchAddDocuments handles POST /collections/{collectionID}/documents/batch.
// Items succeed or fail independently; the response reports each outcome in
// request order.
func (s *Server) BatchAddDocuments(w http.ResponseWriter, r *http.Request) {
	var req BatchAddRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrorCodeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if len(req.Documents) == 0 {
		writeError(w, http.StatusBadRequest, ErrorCodeValidationFailed, "documents must not be empty")
		return
	}

	items := make([]batchuc.Item, len(req.Documents))
	for i, d := range req.Documents {
		items[i] = batchuc.Item{Content: d.Content, Title: d.Title, Meta: d.Meta}
	}

	results := s.batch.Add(r.Context(), chi.URLParam(r, "collectionID"), items)

	out := make([]BatchItemResult, len(results))
	for i, res := range results {
		out[i] = BatchItemResult{
			DocumentID: res.Result.ID(),
			Status:     string(res.Result.Status()),
		}
		if res.Result.Err() != nil {
			out[i].Error = res.Result.Message()
			continue
		}
		doc := documentToDTO(res.Document)
		out[i].Document = &doc
		out[i].Tasks = nonNilManifest(res.Manifest)
	}
	writeJSON(w, http.StatusOK, BatchResponse{Results: out})
}

// BatchDeleteDocuments handles DELETE /documents/batch.
func (s *Server) BatchDeleteDocuments(w http.ResponseWriter, r *http.Request) {
	var req BatchDeleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrorCodeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if len(req.IDs) == 0 {
		writeError(w, http.StatusBadRequest, ErrorCodeValidationFailed, "ids must not be empty")
		return
	}

	results := s.batch.Delete(r.Context(), req.IDs)

	out := make([]BatchItemResult, len(results))
	for i, res := range results {
		out[i] = BatchItemResult{DocumentID: res.ID(), Status: string(res.Status()), Error: res.Message()}
	}
	writeJSON(w, http.StatusOK, BatchResponse{Results: out})
}

// --- Transformers ---

// CreateTransformer handles POST /transformers.
func (s *Server) CreateTransformer(w http.ResponseWriter, r *http.Request) {
	var req CreateTransformerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrorCodeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	tr, err := s.transformers.Create(r.Context(), req.ID, req.Path, req.Description)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, transformerToDTO(tr))
}

// ListTransformers handles GET /transformers.
func (s *Server) ListTransformers(w http.ResponseWriter, r *http.Request) {
	trs, err := s.transformers.List(r.Context())
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	items := make([]Transformer, len(trs))
	for i, tr := range trs {
		items[i] = transformerToDTO(tr)
	}
	writeJSON(w, http.StatusOK, items)
}

// GetTransformer handles GET /transformers/{transformerID}.
func (s *Server) GetTransformer(w http.ResponseWriter, r *http.Request) {
	tr, err := s.transformers.Get(r.Context(), chi.URLParam(r, "transformerID"))
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, transformerToDTO(tr))
}

// UpdateTransformer handles PATCH /transformers/{transformerID}.
func (s *Server) UpdateTransformer(w http.ResponseWriter, r *http.Request) {
	var req UpdateTransformerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrorCodeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	tr, err := s.transformers.Update(r.Context(), chi.URLParam(r, "transformerID"), transformeruc.Update{
		Path:        req.Path,
		Description: req.Description,
	})
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, transformerToDTO(tr))
}

// DeleteTransformer handles DELETE /transformers/{transformerID}.
func (s *Server) DeleteTransformer(w http.ResponseWriter, r *http.Request) {
	if err := s.transformers.Delete(r.Context(), chi.URLParam(r, "transformerID")); err != nil {
		s.handleDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Indexes ---

// CreateIndex handles POST /indexes.
func (s *Server) CreateIndex(w http.ResponseWriter, r *http.Request) {
	var req CreateIndexRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrorCodeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	fields, err := domidx.FieldsFromWire(req.Fields)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	idx, err := s.indexes.Create(r.Context(), req.ID, req.Description, fields, req.Materialize)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, indexToDTO(idx))
}

// ListIndexes handles GET /indexes.
func (s *Server) ListIndexes(w http.ResponseWriter, r *http.Request) {
	idxs, err := s.indexes.List(r.Context())
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	items := make([]Index, len(idxs))
	for i, idx := range idxs {
		items[i] = indexToDTO(idx)
	}
	writeJSON(w, http.StatusOK, items)
}

// GetIndex handles GET /indexes/{indexID}.
func (s *Server) GetIndex(w http.ResponseWriter, r *http.Request) {
	idx, err := s.indexes.Get(r.Context(), chi.URLParam(r, "indexID"))
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, indexToDTO(idx))
}

// DeleteIndex handles DELETE /indexes/{indexID}. drop_table=true also drops
// the records table.
func (s *Server) DeleteIndex(w http.ResponseWriter, r *http.Request) {
	if err := s.indexes.Delete(r.Context(), chi.URLParam(r, "indexID"), boolParam(r, "drop_table")); err != nil {
		s.handleDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// MaterializeIndex handles POST /indexes/{indexID}/materialize. Idempotent:
// an existing table reports created=false.
func (s *Server) MaterializeIndex(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "indexID")

	layout, created, err := s.indexes.Materialize(r.Context(), id)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, MaterializeResponse{
		IndexID:   id,
		TableName: layout.Table,
		Created:   created,
	})
}

// ListRecords handles GET /indexes/{indexID}/records.
func (s *Server) ListRecords(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "indexID")

	recs, err := s.records.List(r.Context(), id, intParam(r, "limit"), intParam(r, "offset"))
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	total, err := s.records.Count(r.Context(), id)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	items := make([]Record, len(recs))
	for i, rec := range recs {
		items[i] = recordToDTO(rec)
	}
	writeJSON(w, http.StatusOK, RecordListResponse{Records: items, Total: total})
}

// QueryRecords handles POST /indexes/{indexID}/query.
func (s *Server) QueryRecords(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrorCodeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, ErrorCodeValidationFailed, "query text is required")
		return
	}

	hits, err := s.records.Query(r.Context(), recorduc.Query{
		IndexID:       chi.URLParam(r, "indexID"),
		Text:          req.Text,
		Field:         req.Field,
		K:             req.K,
		WithDocuments: req.WithDocuments,
	})
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	items := make([]Hit, len(hits))
	for i, h := range hits {
		items[i] = hitToDTO(h)
	}
	writeJSON(w, http.StatusOK, QueryResponse{Hits: items})
}

// --- Bindings ---

// CreateBinding handles POST /bindings. The binding is stored and then
// processed: preconditions checked, existing documents fanned out, status
// flipped to "on". A processing failure leaves the stored binding pending.
func (s *Server) CreateBinding(w http.ResponseWriter, r *http.Request) {
	var req CreateBindingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrorCodeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	b, err := dombind.New(req.CollectionID, req.TransformerID, req.IndexID, req.Description,
		req.ExecutionParams, req.TransformerParams, req.Filter)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	if err := s.bindings.Create(r.Context(), &b); err != nil {
		s.handleDomainError(w, err)
		return
	}

	createTable := true
	if req.CreateIndexTable != nil {
		createTable = *req.CreateIndexTable
	}

	processed, manifest, err := s.bindings.ProcessBinding(r.Context(), b, createTable)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, BindingResponse{
		Binding: bindingToDTO(processed),
		Tasks:   nonNilManifest(manifest),
	})
}

// ListBindings handles GET /bindings.
func (s *Server) ListBindings(w http.ResponseWriter, r *http.Request) {
	bs, err := s.bindings.List(r.Context())
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	items := make([]Binding, len(bs))
	for i, b := range bs {
		items[i] = bindingToDTO(b)
	}
	writeJSON(w, http.StatusOK, items)
}

// GetBinding handles GET /bindings/{bindingID}.
func (s *Server) GetBinding(w http.ResponseWriter, r *http.Request) {
	id, ok := s.bindingID(w, r)
	if !ok {
		return
	}

	b, err := s.bindings.Get(r.Context(), id)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bindingToDTO(b))
}

// UpdateBinding handles PATCH /bindings/{bindingID}. Flipping status to "on"
// re-runs activation and returns the dispatched tasks.
func (s *Server) UpdateBinding(w http.ResponseWriter, r *http.Request) {
	id, ok := s.bindingID(w, r)
	if !ok {
		return
	}

	var req UpdateBindingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrorCodeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	b, err := s.bindings.Get(r.Context(), id)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	if req.Description != nil {
		b.SetDescription(*req.Description)
	}
	if req.ExecutionParams != nil {
		b.SetExecutionParams(req.ExecutionParams)
	}
	if req.TransformerParams != nil {
		if err := b.SetTransformerParams(req.TransformerParams); err != nil {
			s.handleDomainError(w, err)
			return
		}
	}
	if req.Filter != nil {
		b.SetFilter(req.Filter)
	}

	activate := false
	if req.Status != nil {
		st := dombind.Status(*req.Status)
		if st == dombind.StatusOn && b.Status() != dombind.StatusOn {
			activate = true
		} else if err := b.SetStatus(st); err != nil {
			s.handleDomainError(w, err)
			return
		}
	}

	if err := s.bindings.Update(r.Context(), b); err != nil {
		s.handleDomainError(w, err)
		return
	}

	var manifest task.Manifest
	if activate {
		b, manifest, err = s.bindings.ProcessBinding(r.Context(), b, true)
		if err != nil {
			s.handleDomainError(w, err)
			return
		}
	}

	writeJSON(w, http.StatusOK, BindingResponse{
		Binding: bindingToDTO(b),
		Tasks:   nonNilManifest(manifest),
	})
}

// DeleteBinding handles DELETE /bindings/{bindingID}.
func (s *Server) DeleteBinding(w http.ResponseWriter, r *http.Request) {
	id, ok := s.bindingID(w, r)
	if !ok {
		return
	}

	if err := s.bindings.Delete(r.Context(), id); err != nil {
		s.handleDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Health and metrics ---

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	httpStatus := http.StatusOK
	if report.Status == healthuc.Unhealthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, HealthResponse{
		Status:  string(report.Status),
		Version: version.Version,
		Checks:  checks,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

// --- Helpers ---

func (s *Server) documentID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := chi.URLParam(r, "documentID")
	id, err := uuid.Parse(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrorCodeValidationFailed,
			fmt.Sprintf("document id %q is not a uuid", raw))
		return uuid.Nil, false
	}
	return id, true
}

func (s *Server) bindingID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := chi.URLParam(r, "bindingID")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrorCodeValidationFailed,
			fmt.Sprintf("binding id %q is not an integer", raw))
		return 0, false
	}
	return id, true
}

// boolParam reads a boolean query parameter; absent or malformed is false.
func boolParam(r *http.Request, name string) bool {
	v, err := strconv.ParseBool(r.URL.Query().Get(name))
	return err == nil && v
}

// intParam reads an integer query parameter; absent or malformed is zero,
// which usecases replace with their defaults.
func intParam(r *http.Request, name string) int {
	n, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil {
		return 0
	}
	return n
}

func nonNilManifest(m task.Manifest) task.Manifest {
	if m == nil {
		return task.Manifest{}
	}
	return m
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code ErrorCode, message string) {
	writeJSON(w, status, ErrorResponse{
		Code:    code,
		Message: message,
	})
}

// safeDomainMessage returns the client-facing message for a domain error.
// Validation, configuration and filter errors are built from caller input and
// returned verbatim; everything else collapses to its sentinel text so
// internals never leak.
func safeDomainMessage(err error) string {
	verbatim := []error{
		domain.ErrValidation,
		domain.ErrConfiguration,
		domain.ErrUnsupportedOperation,
	}
	for _, s := range verbatim {
		if errors.Is(err, s) {
			return err.Error()
		}
	}

	sentinels := []error{
		domain.ErrNotFound,
		domain.ErrAlreadyExists,
		domain.ErrSchemaRace,
		domain.ErrEmbeddingProviderError,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code ErrorCode) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

// configurationHandler handles ErrConfiguration with the offending binding id.
func configurationHandler(w http.ResponseWriter, err error, msg string) bool {
	if !errors.Is(err, domain.ErrConfiguration) {
		return false
	}
	resp := ErrorResponse{Code: ErrorCodeConfigurationError, Message: msg}
	var ce *domain.ConfigurationError
	if errors.As(err, &ce) && ce.BindingID != 0 {
		id := ce.BindingID
		resp.BindingID = &id
	}
	writeJSON(w, http.StatusUnprocessableEntity, resp)
	return true
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	s.logger.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, ErrorCodeInternalError, "internal error")
}
