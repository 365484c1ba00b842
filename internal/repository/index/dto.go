package index

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	domidx "github.com/kailas-cloud/loom/internal/domain/index"
)

// fieldRow is the JSON-serializable representation of a field descriptor.
// The column stores an ordered array: declaration order is load-bearing for
// record zipping, so the wire-form name-keyed map is not usable here.
type fieldRow struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Optional bool   `json:"optional"`
	Dims     int    `json:"dims,omitempty"`
	Model    string `json:"model,omitempty"`
	Metric   string `json:"metric,omitempty"`
}

func fieldsToJSON(fields []domidx.Field) ([]byte, error) {
	rows := make([]fieldRow, len(fields))
	for i, f := range fields {
		rows[i] = fieldRow{
			Name:     f.Name(),
			Type:     string(f.FieldType()),
			Optional: f.Optional(),
			Dims:     f.Dims(),
			Model:    f.Model(),
			Metric:   string(f.Metric()),
		}
	}
	data, err := json.Marshal(rows)
	if err != nil {
		return nil, fmt.Errorf("marshal fields: %w", err)
	}
	return data, nil
}

func fieldsFromJSON(data []byte) ([]domidx.Field, error) {
	var rows []fieldRow
	if len(data) > 0 {
		if err := json.Unmarshal(data, &rows); err != nil {
			return nil, fmt.Errorf("unmarshal fields: %w", err)
		}
	}
	fields := make([]domidx.Field, len(rows))
	for i, r := range rows {
		fields[i] = domidx.ReconstructField(
			r.Name, domidx.Type(r.Type), r.Optional, r.Dims, r.Model, domidx.Distance(r.Metric),
		)
	}
	return fields, nil
}

func scanIndex(row pgx.Row) (domidx.Index, error) {
	var (
		id, description      string
		fieldsJSON           []byte
		createdAt, updatedAt time.Time
	)
	if err := row.Scan(&id, &description, &fieldsJSON, &createdAt, &updatedAt); err != nil {
		return domidx.Index{}, err
	}
	fields, err := fieldsFromJSON(fieldsJSON)
	if err != nil {
		return domidx.Index{}, err
	}
	return domidx.Reconstruct(id, description, fields, createdAt, updatedAt), nil
}
