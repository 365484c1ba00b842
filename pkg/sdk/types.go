package loom

import "time"

// Collection is a named document container.
type Collection struct {
	ID          string         `json:"collection_id"`
	Description string         `json:"description,omitempty"`
	Config      map[string]any `json:"config,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// CollectionPatch updates a collection. Nil fields keep their current value.
type CollectionPatch struct {
	Description *string        `json:"description,omitempty"`
	Config      map[string]any `json:"config,omitempty"`
}

// Document is a stored document.
type Document struct {
	ID           string         `json:"document_id"`
	CollectionID string         `json:"collection_id"`
	Content      string         `json:"content"`
	Title        string         `json:"title,omitempty"`
	Meta         map[string]any `json:"meta,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// NewDocument is one document payload for ingestion.
type NewDocument struct {
	Content string         `json:"content"`
	Title   string         `json:"title,omitempty"`
	Meta    map[string]any `json:"meta,omitempty"`
}

// DocumentPatch updates a document. Nil fields keep their current value; a
// present Meta replaces the whole map. Content and meta changes re-run the
// binding fan-out.
type DocumentPatch struct {
	Content *string        `json:"content,omitempty"`
	Title   *string        `json:"title,omitempty"`
	Meta    map[string]any `json:"meta,omitempty"`
}

// TaskRef identifies one dispatched transformer task.
type TaskRef struct {
	TaskID     string `json:"task_id"`
	DocumentID string `json:"document_id"`
}

// CreatedDocument pairs a stored document with the tasks its ingestion
// dispatched (one per matching active binding).
type CreatedDocument struct {
	Document Document  `json:"document"`
	Tasks    []TaskRef `json:"tasks"`
}

// DocumentPage is one cursor page of documents.
type DocumentPage struct {
	Items      []Document `json:"items"`
	NextCursor string     `json:"next_cursor,omitempty"`
	HasMore    bool       `json:"has_more"`
}

// BatchItem is the per-item outcome of a batch operation. Items succeed or
// fail independently; outcomes arrive in request order.
type BatchItem struct {
	DocumentID string    `json:"document_id,omitempty"`
	Status     string    `json:"status"`
	Error      string    `json:"error,omitempty"`
	Document   *Document `json:"document,omitempty"`
	Tasks      []TaskRef `json:"tasks,omitempty"`
}

// Transformer is a registered document transformer.
type Transformer struct {
	ID          string    `json:"transformer_id"`
	Path        string    `json:"path,omitempty"`
	Description string    `json:"description,omitempty"`
	TaskName    string    `json:"task_name"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TransformerPatch updates a transformer. Nil fields keep their current value.
type TransformerPatch struct {
	Path        *string `json:"path,omitempty"`
	Description *string `json:"description,omitempty"`
}

// Field declares one index column. Type accepts the canonical names and
// their aliases (int/integer, str/string, dict/object, list/array, text,
// float, bool, bytes, date, datetime, time, uuid, embedding). Embedding
// fields carry extras: dims (required), model, distance_metric.
type Field struct {
	Type     string         `json:"type"`
	Optional bool           `json:"optional,omitempty"`
	Extras   map[string]any `json:"extras,omitempty"`
}

// Index is a typed index definition with its derived table name.
type Index struct {
	ID          string           `json:"index_id"`
	Description string           `json:"description,omitempty"`
	TableName   string           `json:"table_name"`
	Fields      map[string]Field `json:"fields"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// MaterializeResult reports an index table materialization. Created is false
// when the table already existed.
type MaterializeResult struct {
	IndexID   string `json:"index_id"`
	TableName string `json:"table_name"`
	Created   bool   `json:"created"`
}

// FilterCondition is one comparison over a document attribute or meta field.
type FilterCondition struct {
	Field     string `json:"field"`
	Operation string `json:"operation"`
	Value     any    `json:"value"`
	Negate    bool   `json:"negate,omitempty"`
}

// Filter gates a binding: only matching documents fan out. Combination is
// "AND" (default) or "OR".
type Filter struct {
	Conditions  []FilterCondition `json:"conditions"`
	Combination string            `json:"combination,omitempty"`
}

// Binding connects a collection to a transformer and an index.
type Binding struct {
	ID                int64          `json:"binding_id"`
	CollectionID      string         `json:"collection_id"`
	TransformerID     string         `json:"transformer_id"`
	IndexID           string         `json:"index_id"`
	Description       string         `json:"description,omitempty"`
	ExecutionParams   map[string]any `json:"execution_params,omitempty"`
	TransformerParams map[string]any `json:"transformer_params,omitempty"`
	Filter            *Filter        `json:"filter,omitempty"`
	Status            string         `json:"status"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

// NewBinding is the payload for creating a binding. CreateIndexTable defaults
// to true: a missing index table is materialized during activation.
type NewBinding struct {
	CollectionID      string         `json:"collection_id"`
	TransformerID     string         `json:"transformer_id"`
	IndexID           string         `json:"index_id"`
	Description       string         `json:"description,omitempty"`
	ExecutionParams   map[string]any `json:"execution_params,omitempty"`
	TransformerParams map[string]any `json:"transformer_params,omitempty"`
	Filter            *Filter        `json:"filter,omitempty"`
	CreateIndexTable  *bool          `json:"create_index_table,omitempty"`
}

// BindingPatch updates a binding. Setting Status to "on" re-runs activation
// and fan-out over the collection's existing documents.
type BindingPatch struct {
	Description       *string        `json:"description,omitempty"`
	Status            *string        `json:"status,omitempty"`
	ExecutionParams   map[string]any `json:"execution_params,omitempty"`
	TransformerParams map[string]any `json:"transformer_params,omitempty"`
	Filter            *Filter        `json:"filter,omitempty"`
}

// CreatedBinding pairs a binding with the tasks its activation dispatched.
type CreatedBinding struct {
	Binding Binding   `json:"binding"`
	Tasks   []TaskRef `json:"tasks"`
}

// Record is one row of an index table.
type Record struct {
	ID         string         `json:"index_record_id"`
	DocumentID string         `json:"document_id"`
	BindingID  int64          `json:"binding_id,omitempty"`
	TaskID     string         `json:"task_id,omitempty"`
	CustomID   string         `json:"custom_id,omitempty"`
	Meta       map[string]any `json:"meta,omitempty"`
	Values     map[string]any `json:"values,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// RecordPage is one offset page of index records with the table total.
type RecordPage struct {
	Records []Record `json:"records"`
	Total   int64    `json:"total"`
}

// Hit is a scored query result, nearest first.
type Hit struct {
	Record   Record    `json:"record"`
	Distance float64   `json:"distance"`
	Document *Document `json:"document,omitempty"`
}

// HealthStatus is the service health report.
type HealthStatus struct {
	Status  string            `json:"status"`
	Version string            `json:"version"`
	Checks  map[string]string `json:"checks"`
}
