// Package task defines queued task messages, their priority bands, and the
// dispatcher that enqueues them.
package task

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/kailas-cloud/loom/internal/domain"
)

// Band is a queue priority band. Bands are drained strictly highest-first.
type Band string

const (
	// BandInteractive is the top band: caller-blocking work such as query
	// embeddings.
	BandInteractive Band = "interactive"
	// BandTransform carries document transform dispatches.
	BandTransform Band = "transform"
	// BandBackground carries maintenance work such as deferred ANN builds.
	BandBackground Band = "background"
)

// Bands returns all bands in drain order, highest priority first.
func Bands() []Band {
	return []Band{BandInteractive, BandTransform, BandBackground}
}

// IsValid reports whether b is a known band.
func (b Band) IsValid() bool {
	switch b {
	case BandInteractive, BandTransform, BandBackground:
		return true
	}
	return false
}

// Built-in task names outside the transformer namespace.
const (
	// NameANNBuild is the deferred ANN index build task.
	NameANNBuild = "loom.schema.build_ann_index"
)

// Params keys used by built-in tasks.
const (
	ParamIndexID = "index_id"
	ParamField   = "field"
)

// payloadField is the single stream entry field carrying the JSON message.
const payloadField = "payload"

// DocumentPayload is the document snapshot a transform task operates on.
type DocumentPayload struct {
	ID      string         `json:"document_id"`
	Content string         `json:"content"`
	Title   string         `json:"title,omitempty"`
	Meta    map[string]any `json:"meta,omitempty"`
}

// Message is the wire form of one queued task.
type Message struct {
	ID         string           `json:"task_id"`
	Name       string           `json:"task_name"`
	Document   *DocumentPayload `json:"document,omitempty"`
	Params     map[string]any   `json:"params,omitempty"`
	BindingID  int64            `json:"binding_id,omitempty"`
	IndexID    string           `json:"index_id,omitempty"`
	EnqueuedAt time.Time        `json:"enqueued_at"`
}

// Encode renders the message as stream entry fields.
func (m Message) Encode() (map[string]string, error) {
	if m.ID == "" {
		return nil, fmt.Errorf("%w: task message requires an id", domain.ErrValidation)
	}
	if m.Name == "" {
		return nil, fmt.Errorf("%w: task message requires a name", domain.ErrValidation)
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal task message: %w", err)
	}
	return map[string]string{payloadField: string(data)}, nil
}

// Decode parses stream entry fields back into a message.
func Decode(fields map[string]string) (Message, error) {
	raw, ok := fields[payloadField]
	if !ok {
		return Message{}, fmt.Errorf("%w: stream entry has no %s field", domain.ErrValidation, payloadField)
	}
	var m Message
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return Message{}, fmt.Errorf("unmarshal task message: %w", err)
	}
	if m.ID == "" || m.Name == "" {
		return Message{}, fmt.Errorf("%w: task message missing id or name", domain.ErrValidation)
	}
	return m, nil
}

// TaskRef identifies one dispatched task and the document it covers.
type TaskRef struct {
	TaskID     string `json:"task_id"`
	DocumentID string `json:"document_id"`
}

// Manifest lists the tasks dispatched by one operation, in dispatch order.
type Manifest []TaskRef
