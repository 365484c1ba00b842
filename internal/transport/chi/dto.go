package chi

import (
	"time"

	"github.com/google/uuid"

	dombind "github.com/kailas-cloud/loom/internal/domain/binding"
	domcol "github.com/kailas-cloud/loom/internal/domain/collection"
	domdoc "github.com/kailas-cloud/loom/internal/domain/document"
	"github.com/kailas-cloud/loom/internal/domain/filter"
	domidx "github.com/kailas-cloud/loom/internal/domain/index"
	domrec "github.com/kailas-cloud/loom/internal/domain/record"
	domtrans "github.com/kailas-cloud/loom/internal/domain/transformer"
	"github.com/kailas-cloud/loom/internal/task"
	recorduc "github.com/kailas-cloud/loom/internal/usecase/record"
)

// ErrorCode classifies an API error for clients.
type ErrorCode string

// Error codes returned in ErrorResponse bodies.
const (
	ErrorCodeBadRequest          ErrorCode = "bad_request"
	ErrorCodeValidationFailed    ErrorCode = "validation_failed"
	ErrorCodeNotFound            ErrorCode = "not_found"
	ErrorCodeAlreadyExists       ErrorCode = "already_exists"
	ErrorCodeConfigurationError  ErrorCode = "configuration_error"
	ErrorCodeUnsupportedFilterOp ErrorCode = "unsupported_filter_operation"
	ErrorCodeSchemaNotReady      ErrorCode = "schema_not_ready"
	ErrorCodeEmbeddingProvider   ErrorCode = "embedding_provider_error"
	ErrorCodeInternalError       ErrorCode = "internal_error"
)

// ErrorResponse is the JSON error body for every non-2xx response.
type ErrorResponse struct {
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	BindingID *int64    `json:"binding_id,omitempty"`
}

// Collection is the wire form of a collection.
type Collection struct {
	ID          string         `json:"collection_id"`
	Description string         `json:"description,omitempty"`
	Config      map[string]any `json:"config,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// CreateCollectionRequest is the POST /collections body.
type CreateCollectionRequest struct {
	ID          string         `json:"collection_id"`
	Description string         `json:"description,omitempty"`
	Config      map[string]any `json:"config,omitempty"`
}

// UpdateCollectionRequest is the PATCH /collections/{id} body. Absent fields
// keep their current value.
type UpdateCollectionRequest struct {
	Description *string        `json:"description,omitempty"`
	Config      map[string]any `json:"config,omitempty"`
}

// DeleteCollectionResponse reports what a collection delete removed.
type DeleteCollectionResponse struct {
	CollectionID     string `json:"collection_id"`
	DocumentsDeleted int64  `json:"documents_deleted"`
}

// Document is the wire form of a document.
type Document struct {
	ID           uuid.UUID      `json:"document_id"`
	CollectionID string         `json:"collection_id"`
	Content      string         `json:"content"`
	Title        string         `json:"title,omitempty"`
	Meta         map[string]any `json:"meta,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// CreateDocumentRequest is one document payload for ingestion.
type CreateDocumentRequest struct {
	Content string         `json:"content"`
	Title   string         `json:"title,omitempty"`
	Meta    map[string]any `json:"meta,omitempty"`
}

// UpdateDocumentRequest is the PATCH /documents/{id} body. Absent fields
// keep their current value; a present meta replaces the whole map.
type UpdateDocumentRequest struct {
	Content *string        `json:"content,omitempty"`
	Title   *string        `json:"title,omitempty"`
	Meta    map[string]any `json:"meta,omitempty"`
}

// DocumentResponse pairs a document with the tasks its ingestion dispatched.
type DocumentResponse struct {
	Document Document      `json:"document"`
	Tasks    task.Manifest `json:"tasks"`
}

// DocumentListResponse is a cursor page of documents.
type DocumentListResponse struct {
	Items      []Document `json:"items"`
	NextCursor *string    `json:"next_cursor,omitempty"`
	HasMore    bool       `json:"has_more"`
}

// BulkDeleteResponse reports a bulk document delete.
type BulkDeleteResponse struct {
	DeletedCount int64 `json:"deleted_count"`
}

// BatchAddRequest is the POST .../documents/batch body.
type BatchAddRequest struct {
	Documents []CreateDocumentRequest `json:"documents"`
}

// BatchDeleteRequest is the DELETE /documents/batch body.
type BatchDeleteRequest struct {
	IDs []string `json:"ids"`
}

// BatchItemResult is the per-item outcome of a batch operation.
type BatchItemResult struct {
	DocumentID string        `json:"document_id,omitempty"`
	Status     string        `json:"status"`
	Error      string        `json:"error,omitempty"`
	Document   *Document     `json:"document,omitempty"`
	Tasks      task.Manifest `json:"tasks,omitempty"`
}

// BatchResponse lists per-item outcomes in request order.
type BatchResponse struct {
	Results []BatchItemResult `json:"results"`
}

// Transformer is the wire form of a transformer declaration.
type Transformer struct {
	ID          string    `json:"transformer_id"`
	Path        string    `json:"path,omitempty"`
	Description string    `json:"description,omitempty"`
	TaskName    string    `json:"task_name"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// CreateTransformerRequest is the POST /transformers body.
type CreateTransformerRequest struct {
	ID          string `json:"transformer_id"`
	Path        string `json:"path,omitempty"`
	Description string `json:"description,omitempty"`
}

// UpdateTransformerRequest is the PATCH /transformers/{id} body.
type UpdateTransformerRequest struct {
	Path        *string `json:"path,omitempty"`
	Description *string `json:"description,omitempty"`
}

// Index is the wire form of an index definition.
type Index struct {
	ID          string                      `json:"index_id"`
	Description string                      `json:"description,omitempty"`
	TableName   string                      `json:"table_name"`
	Fields      map[string]domidx.WireField `json:"fields"`
	CreatedAt   time.Time                   `json:"created_at"`
	UpdatedAt   time.Time                   `json:"updated_at"`
}

// CreateIndexRequest is the POST /indexes body. Materialize additionally
// creates the index table right away.
type CreateIndexRequest struct {
	ID          string                      `json:"index_id"`
	Description string                      `json:"description,omitempty"`
	Fields      map[string]domidx.WireField `json:"fields"`
	Materialize bool                        `json:"materialize,omitempty"`
}

// MaterializeResponse reports an index table materialization. Created is
// false when the table already existed.
type MaterializeResponse struct {
	IndexID   string `json:"index_id"`
	TableName string `json:"table_name"`
	Created   bool   `json:"created"`
}

// Binding is the wire form of a binding.
type Binding struct {
	ID                int64          `json:"binding_id"`
	CollectionID      string         `json:"collection_id"`
	TransformerID     string         `json:"transformer_id"`
	IndexID           string         `json:"index_id"`
	Description       string         `json:"description,omitempty"`
	ExecutionParams   map[string]any `json:"execution_params,omitempty"`
	TransformerParams map[string]any `json:"transformer_params,omitempty"`
	Filter            *filter.Filter `json:"filter,omitempty"`
	Status            string         `json:"status"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

// CreateBindingRequest is the POST /bindings body. CreateIndexTable defaults
// to true: a missing index table is materialized during activation.
type CreateBindingRequest struct {
	CollectionID      string         `json:"collection_id"`
	TransformerID     string         `json:"transformer_id"`
	IndexID           string         `json:"index_id"`
	Description       string         `json:"description,omitempty"`
	ExecutionParams   map[string]any `json:"execution_params,omitempty"`
	TransformerParams map[string]any `json:"transformer_params,omitempty"`
	Filter            *filter.Filter `json:"filter,omitempty"`
	CreateIndexTable  *bool          `json:"create_index_table,omitempty"`
}

// UpdateBindingRequest is the PATCH /bindings/{id} body. Setting status to
// "on" re-runs binding activation and fan-out.
type UpdateBindingRequest struct {
	Description       *string        `json:"description,omitempty"`
	Status            *string        `json:"status,omitempty"`
	ExecutionParams   map[string]any `json:"execution_params,omitempty"`
	TransformerParams map[string]any `json:"transformer_params,omitempty"`
	Filter            *filter.Filter `json:"filter,omitempty"`
}

// BindingResponse pairs a binding with the tasks its processing dispatched.
type BindingResponse struct {
	Binding Binding       `json:"binding"`
	Tasks   task.Manifest `json:"tasks"`
}

// Record is the wire form of an index record.
type Record struct {
	ID         uuid.UUID      `json:"index_record_id"`
	DocumentID uuid.UUID      `json:"document_id"`
	BindingID  int64          `json:"binding_id,omitempty"`
	TaskID     string         `json:"task_id,omitempty"`
	CustomID   string         `json:"custom_id,omitempty"`
	Meta       map[string]any `json:"meta,omitempty"`
	Values     map[string]any `json:"values,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// RecordListResponse is a page of index records with the table total.
type RecordListResponse struct {
	Records []Record `json:"records"`
	Total   int64    `json:"total"`
}

// QueryRequest is the POST /indexes/{id}/query body. Field names the
// embedding column; empty picks the index's first one. K bounds the result
// size; zero means the default.
type QueryRequest struct {
	Text          string `json:"text"`
	Field         string `json:"field,omitempty"`
	K             int    `json:"k,omitempty"`
	WithDocuments bool   `json:"with_documents,omitempty"`
}

// Hit is a scored query result.
type Hit struct {
	Record   Record    `json:"record"`
	Distance float64   `json:"distance"`
	Document *Document `json:"document,omitempty"`
}

// QueryResponse lists query hits nearest-first.
type QueryResponse struct {
	Hits []Hit `json:"hits"`
}

// HealthResponse is the GET /health body.
type HealthResponse struct {
	Status  string            `json:"status"`
	Version string            `json:"version"`
	Checks  map[string]string `json:"checks"`
}

func collectionToDTO(c domcol.Collection) Collection {
	return Collection{
		ID:          c.ID(),
		Description: c.Description(),
		Config:      c.Config(),
		CreatedAt:   c.CreatedAt(),
		UpdatedAt:   c.UpdatedAt(),
	}
}

func documentToDTO(d domdoc.Document) Document {
	return Document{
		ID:           d.ID(),
		CollectionID: d.CollectionID(),
		Content:      d.Content(),
		Title:        d.Title(),
		Meta:         d.Meta(),
		CreatedAt:    d.CreatedAt(),
		UpdatedAt:    d.UpdatedAt(),
	}
}

func transformerToDTO(tr domtrans.Transformer) Transformer {
	return Transformer{
		ID:          tr.ID(),
		Path:        tr.Path(),
		Description: tr.Description(),
		TaskName:    tr.TaskName(),
		CreatedAt:   tr.CreatedAt(),
		UpdatedAt:   tr.UpdatedAt(),
	}
}

func indexToDTO(idx domidx.Index) Index {
	return Index{
		ID:          idx.ID(),
		Description: idx.Description(),
		TableName:   idx.TableName(),
		Fields:      domidx.FieldsToWire(idx.Fields()),
		CreatedAt:   idx.CreatedAt(),
		UpdatedAt:   idx.UpdatedAt(),
	}
}

func bindingToDTO(b dombind.Binding) Binding {
	return Binding{
		ID:                b.ID(),
		CollectionID:      b.CollectionID(),
		TransformerID:     b.TransformerID(),
		IndexID:           b.IndexID(),
		Description:       b.Description(),
		ExecutionParams:   b.ExecutionParams(),
		TransformerParams: b.TransformerParams(),
		Filter:            b.Filter(),
		Status:            string(b.Status()),
		CreatedAt:         b.CreatedAt(),
		UpdatedAt:         b.UpdatedAt(),
	}
}

func recordToDTO(rec domrec.Record) Record {
	return Record{
		ID:         rec.ID(),
		DocumentID: rec.DocumentID(),
		BindingID:  rec.BindingID(),
		TaskID:     rec.TaskID(),
		CustomID:   rec.CustomID(),
		Meta:       rec.Meta(),
		Values:     rec.Values(),
		CreatedAt:  rec.CreatedAt(),
		UpdatedAt:  rec.UpdatedAt(),
	}
}

func hitToDTO(h recorduc.Hit) Hit {
	out := Hit{Record: recordToDTO(h.Record), Distance: h.Distance}
	if h.Document != nil {
		doc := documentToDTO(*h.Document)
		out.Document = &doc
	}
	return out
}
