package record

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/kailas-cloud/loom/internal/domain/index"
	domrec "github.com/kailas-cloud/loom/internal/domain/record"
	"github.com/kailas-cloud/loom/internal/schema"
)

// selectColumns projects the reserved columns in their canonical order
// followed by the declared fields in layout order.
func selectColumns(layout schema.Layout) []string {
	cols := []string{
		domrec.ColRecordID, domrec.ColDocumentID, domrec.ColBindingID,
		domrec.ColTaskID, domrec.ColCustomID, domrec.ColMeta,
		domrec.ColCreatedAt, domrec.ColUpdatedAt,
	}
	for _, f := range layout.DeclaredFields() {
		cols = append(cols, f.Name())
	}
	return cols
}

// scanRecord hydrates one row in selectColumns order, plus the trailing
// distance column when withDistance is set.
func scanRecord(rows pgx.Rows, declared []index.Field, withDistance bool) (domrec.Record, float64, error) {
	var (
		id                   uuid.UUID
		documentID           *uuid.UUID
		bindingID            *int64
		taskID               *string
		customID             *string
		metaJSON             []byte
		createdAt, updatedAt time.Time
	)

	dests := []any{
		&id, &documentID, &bindingID, &taskID, &customID, &metaJSON, &createdAt, &updatedAt,
	}
	vals := make([]any, len(declared))
	for i := range vals {
		dests = append(dests, &vals[i])
	}
	var distance float64
	if withDistance {
		dests = append(dests, &distance)
	}

	if err := rows.Scan(dests...); err != nil {
		return domrec.Record{}, 0, err
	}

	var meta map[string]any
	if len(metaJSON) > 0 {
		if err := json.Unmarshal(metaJSON, &meta); err != nil {
			return domrec.Record{}, 0, fmt.Errorf("unmarshal meta: %w", err)
		}
	}

	values := make(map[string]any, len(declared))
	for i, f := range declared {
		if vals[i] == nil {
			continue
		}
		values[f.Name()] = vals[i]
	}

	rec := domrec.Reconstruct(
		id, deref(documentID, uuid.Nil), deref(bindingID, 0),
		deref(taskID, ""), deref(customID, ""),
		meta, values, createdAt, updatedAt,
	)
	return rec, distance, nil
}

func deref[T any](p *T, fallback T) T {
	if p == nil {
		return fallback
	}
	return *p
}
